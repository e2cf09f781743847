package model

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// AsDecimal converts a raw data-model value into a decimal. Strings may carry
// currency symbols, thousands separators and a trailing percent sign. The
// second result is false when v is absent or not numeric.
func AsDecimal(v any) (decimal.Decimal, bool) {
	switch n := v.(type) {
	case nil:
		return decimal.Zero, false
	case decimal.Decimal:
		return n, true
	case float64:
		return decimal.NewFromFloat(n), true
	case float32:
		return decimal.NewFromFloat32(n), true
	case int:
		return decimal.NewFromInt(int64(n)), true
	case int32:
		return decimal.NewFromInt32(n), true
	case int64:
		return decimal.NewFromInt(n), true
	case uint:
		return decimal.NewFromInt(int64(n)), true
	case uint32:
		return decimal.NewFromInt(int64(n)), true
	case uint64:
		return decimal.RequireFromString(strconv.FormatUint(n, 10)), true
	case json.Number:
		d, err := decimal.NewFromString(n.String())
		return d, err == nil
	case string:
		s := strings.TrimSpace(n)
		s = strings.NewReplacer("$", "", ",", "", "%", "", " ", "").Replace(s)
		if s == "" {
			return decimal.Zero, false
		}
		if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
			s = "-" + strings.Trim(s, "()")
		}
		d, err := decimal.NewFromString(s)
		return d, err == nil
	default:
		return decimal.Zero, false
	}
}

// IsNumeric reports whether v is a Go numeric type (not a numeric string).
func IsNumeric(v any) bool {
	switch v.(type) {
	case decimal.Decimal, float64, float32, int, int32, int64, uint, uint32, uint64, json.Number:
		return true
	default:
		return false
	}
}

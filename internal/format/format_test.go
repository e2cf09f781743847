package format

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/sells-group/pfs-cli/internal/model"
)

func TestFormat(t *testing.T) {
	t.Parallel()

	f := New("USD")
	tests := []struct {
		name string
		in   any
		typ  model.FieldType
		want string
	}{
		{"currency", 1500, model.TypeCurrency, "$1,500"},
		{"currency rounds", 1234567.5, model.TypeCurrency, "$1,234,568"},
		{"currency negative", -1500.0, model.TypeCurrency, "-$1,500"},
		{"currency decimal", decimal.RequireFromString("99.4"), model.TypeCurrency, "$99"},
		{"currency from string", "$2,000", model.TypeCurrency, "$2,000"},
		{"currency below one rounds to zero", 0.4, model.TypeCurrency, "$0"},
		{"currency non numeric", "n/a", model.TypeCurrency, ""},
		{"currency past int64", decimal.RequireFromString("10000000000000000000000000"), model.TypeCurrency, "$10,000,000,000,000,000,000,000,000"},
		{"currency past int64 negative", decimal.RequireFromString("-9223372036854775808.6"), model.TypeCurrency, "-$9,223,372,036,854,775,809"},
		{"currency at int64 max", decimal.RequireFromString("9223372036854775807"), model.TypeCurrency, "$9,223,372,036,854,775,807"},
		{"number integer", 1234, model.TypeNumber, "1,234"},
		{"number fraction", 1234.5, model.TypeNumber, "1,234.5"},
		{"number past int64", decimal.RequireFromString("-20000000000000000000"), model.TypeNumber, "-20,000,000,000,000,000,000"},
		{"number max three digits", 1.23456, model.TypeNumber, "1.235"},
		{"percentage", 12.5, model.TypePercentage, "12.50%"},
		{"percentage json number", json.Number("4"), model.TypePercentage, "4.00%"},
		{"date iso", "2024-03-15", model.TypeDate, "03/15/2024"},
		{"date timestamp", "2024-03-15T23:30:00Z", model.TypeDate, "03/15/2024"},
		{"date unix millis", int64(1710460800000), model.TypeDate, "03/15/2024"},
		{"date time value", time.Date(2021, 1, 2, 0, 0, 0, 0, time.UTC), model.TypeDate, "01/02/2021"},
		{"date garbage", "soon", model.TypeDate, ""},
		{"text trimmed", "  Jane Doe ", model.TypeText, "Jane Doe"},
		{"text bool", true, model.TypeText, "Yes"},
		{"text float", 2.5, model.TypeText, "2.5"},
		{"unknown type renders as text", "abc", model.FieldType("shape"), "abc"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, f.Format(tt.in, tt.typ))
		})
	}
}

func TestFormat_BlankValues(t *testing.T) {
	t.Parallel()

	f := New("")
	types := []model.FieldType{
		model.TypeText, model.TypeNumber, model.TypeDate, model.TypeCurrency, model.TypePercentage,
	}
	blanks := []any{nil, "", "   ", 0, 0.0, int64(0), decimal.Zero, json.Number("0")}

	for _, typ := range types {
		for _, v := range blanks {
			assert.Empty(t, f.Format(v, typ), "type %s value %#v", typ, v)
		}
	}
}

func TestText_ZeroStringIsBlank(t *testing.T) {
	t.Parallel()

	assert.Empty(t, Text("0"))
	assert.Empty(t, Text(" 0 "))
	assert.Equal(t, "00", Text("00"))
}

func TestNew_UnknownCurrencyFallsBack(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "$10", New("XXZ").Currency(10))
	assert.Contains(t, New("eur").Currency(10), "€")
}

// Package format renders resolved values into the strings written to a
// document. The empty string is the canonical "leave blank" result.
package format

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"

	"github.com/sells-group/pfs-cli/internal/model"
)

// DateLayout is the rendered date format (MM/DD/YYYY).
const DateLayout = "01/02/2006"

// Formatter renders values per model.FieldType. It is immutable after New and
// safe for concurrent use.
type Formatter struct {
	currency *money.Formatter
	printer  *message.Printer
}

// New returns a Formatter that renders currency amounts in whole units of
// the given ISO 4217 code. An empty or unknown code means USD.
func New(currencyCode string) *Formatter {
	c := money.GetCurrency(strings.ToUpper(currencyCode))
	if c == nil {
		c = money.GetCurrency(money.USD)
	}
	f := c.Formatter()
	f.Fraction = 0
	return &Formatter{
		currency: f,
		printer:  message.NewPrinter(language.AmericanEnglish),
	}
}

// Format renders v for fieldType. Absent values, empty strings and numeric
// zero render as "". Unknown field types render as text.
func (f *Formatter) Format(v any, fieldType model.FieldType) string {
	if isEmpty(v) {
		return ""
	}

	switch fieldType {
	case model.TypeCurrency:
		return f.Currency(v)
	case model.TypePercentage:
		return Percentage(v)
	case model.TypeNumber:
		return f.Number(v)
	case model.TypeDate:
		return Date(v)
	default:
		return Text(v)
	}
}

// Currency rounds to whole units and adds thousands separators and the
// currency symbol: 1500 -> "$1,500".
func (f *Formatter) Currency(v any) string {
	d, ok := nonZero(v)
	if !ok {
		return ""
	}
	whole := d.Round(0)
	if whole.Abs().LessThanOrEqual(maxWholeUnits) {
		return f.currency.Format(whole.IntPart())
	}
	return f.largeCurrency(whole)
}

var maxWholeUnits = decimal.NewFromInt(math.MaxInt64)

// largeCurrency applies the currency template to amounts past int64.
func (f *Formatter) largeCurrency(whole decimal.Decimal) string {
	digits := groupDigits(whole.Abs().String(), f.currency.Thousand)
	s := strings.Replace(f.currency.Template, "1", digits, 1)
	s = strings.Replace(s, "$", f.currency.Grapheme, 1)
	if whole.IsNegative() {
		s = "-" + s
	}
	return s
}

func groupDigits(digits, sep string) string {
	if sep == "" {
		return digits
	}
	for i := len(digits) - 3; i > 0; i -= 3 {
		digits = digits[:i] + sep + digits[i:]
	}
	return digits
}

// Number adds thousands separators and keeps up to three fraction digits:
// 1234.5 -> "1,234.5".
func (f *Formatter) Number(v any) string {
	d, ok := nonZero(v)
	if !ok {
		return ""
	}
	if d.IsInteger() {
		if d.Abs().GreaterThan(maxWholeUnits) {
			sign := ""
			if d.IsNegative() {
				sign = "-"
			}
			return sign + groupDigits(d.Abs().String(), ",")
		}
		return f.printer.Sprintf("%v", number.Decimal(d.IntPart()))
	}
	return f.printer.Sprintf("%v", number.Decimal(d.InexactFloat64(), number.MaxFractionDigits(3)))
}

// Percentage renders exactly two decimals and a percent sign: 12.5 -> "12.50%".
// The value is taken as already expressed in percent.
func Percentage(v any) string {
	d, ok := nonZero(v)
	if !ok {
		return ""
	}
	return d.StringFixed(2) + "%"
}

var dateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"2006/01/02",
	"01/02/2006",
	"1/2/2006",
	"2006-01",
}

// Date renders ISO-like strings, time.Time values and Unix millisecond
// timestamps as MM/DD/YYYY. Unparseable input renders as "".
func Date(v any) string {
	switch t := v.(type) {
	case time.Time:
		if t.IsZero() {
			return ""
		}
		return t.Format(DateLayout)
	case *time.Time:
		if t == nil || t.IsZero() {
			return ""
		}
		return t.Format(DateLayout)
	case string:
		s := strings.TrimSpace(t)
		for _, layout := range dateLayouts {
			if parsed, err := time.Parse(layout, s); err == nil {
				return parsed.Format(DateLayout)
			}
		}
		return ""
	}

	if ms, ok := nonZero(v); ok && model.IsNumeric(v) {
		return time.UnixMilli(ms.IntPart()).UTC().Format(DateLayout)
	}
	return ""
}

// Text trims the value. Both "" and the literal "0" render as "", so a
// genuine free-text answer of "0" is blanked as well.
func Text(v any) string {
	var s string
	switch t := v.(type) {
	case string:
		s = t
	case bool:
		if t {
			s = "Yes"
		} else {
			s = "No"
		}
	case fmt.Stringer:
		s = t.String()
	default:
		if d, ok := model.AsDecimal(v); ok && model.IsNumeric(v) {
			s = d.String()
		} else {
			s = fmt.Sprint(v)
		}
	}
	s = strings.TrimSpace(s)
	if s == "0" {
		return ""
	}
	return s
}

// isEmpty reports the values that render blank regardless of field type.
func isEmpty(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(t) == ""
	}
	if model.IsNumeric(v) {
		d, _ := model.AsDecimal(v)
		return d.IsZero()
	}
	return false
}

// nonZero returns v as a decimal when it is numeric and not zero.
func nonZero(v any) (decimal.Decimal, bool) {
	d, ok := model.AsDecimal(v)
	if !ok || d.IsZero() {
		return decimal.Zero, false
	}
	return d, true
}

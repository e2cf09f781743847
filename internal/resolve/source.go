package resolve

import (
	"strconv"
	"strings"

	"github.com/PaesslerAG/jsonpath"

	"github.com/sells-group/pfs-cli/internal/model"
)

// Path reads a scalar from data.Fields by dotted path. Any missing segment
// resolves to absent.
func Path(data *model.FinancialData, dotted string) Value {
	if data == nil || data.Fields == nil || strings.TrimSpace(dotted) == "" {
		return Absent()
	}
	expr, ok := pathExpr(dotted)
	if !ok {
		return Absent()
	}
	v, err := guard(func() (any, error) { return jsonpath.Get(expr, data.Fields) })
	if err != nil {
		return Absent()
	}
	return Of(v)
}

// pathExpr turns "applicant.phones.0" into $["applicant"]["phones"][0].
func pathExpr(dotted string) (string, bool) {
	var b strings.Builder
	b.WriteString("$")
	for _, seg := range strings.Split(dotted, ".") {
		if seg == "" {
			return "", false
		}
		if isIndex(seg) {
			b.WriteString("[" + seg + "]")
			continue
		}
		b.WriteString("[" + strconv.Quote(seg) + "]")
	}
	return b.String(), true
}

func isIndex(seg string) bool {
	for _, r := range seg {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// ScheduleCell reads column of row index in schedule id. Rows outside the
// schedule's capacity or beyond the provided rows are absent.
func ScheduleCell(data *model.FinancialData, id string, index int, column string) Value {
	row, ok := data.Schedule(id).Row(index)
	if !ok {
		return Absent()
	}
	v, ok := row[column]
	if !ok {
		return Absent()
	}
	return Of(v)
}

// PropertyField reads a logical field of the property at index. Balance and
// payment prefer the joined mortgage's positive amount, then the property's
// own positive amount, else absent.
func PropertyField(data *model.FinancialData, index int, field string) Value {
	if data == nil || index < 0 || index >= len(data.Properties) {
		return Absent()
	}
	p := data.Properties[index]

	switch field {
	case "balance", "payment":
		return JoinedAmount(data, p, field)
	case "lender":
		if m, ok := data.MortgageFor(p.ID); ok && m.Lender != "" {
			return Of(m.Lender)
		}
		return Of(p.Lender)
	}

	v, ok := p.Value(field)
	if !ok {
		return Absent()
	}
	return Of(v)
}

// JoinedAmount applies the mortgage join for "balance" or "payment".
func JoinedAmount(data *model.FinancialData, p model.Property, field string) Value {
	var fromMortgage, local float64
	m, joined := data.MortgageFor(p.ID)
	switch field {
	case "balance":
		fromMortgage, local = m.PrincipalBalance, p.Balance
	case "payment":
		fromMortgage, local = m.MonthlyPayment, p.Payment
	default:
		return Absent()
	}

	if joined && fromMortgage > 0 {
		return Of(fromMortgage)
	}
	if local > 0 {
		return Of(local)
	}
	return Absent()
}

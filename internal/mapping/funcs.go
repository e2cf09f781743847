package mapping

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"

	"github.com/sells-group/pfs-cli/internal/model"
	"github.com/sells-group/pfs-cli/internal/resolve"
)

// FuncSpec names a registered calculator or transform and its arguments.
type FuncSpec struct {
	Fn   string   `yaml:"fn" json:"fn"`
	Args []string `yaml:"args,omitempty" json:"args,omitempty"`
}

func (f *FuncSpec) String() string {
	if f == nil {
		return ""
	}
	if len(f.Args) == 0 {
		return f.Fn
	}
	return f.Fn + "(" + strings.Join(f.Args, ", ") + ")"
}

// scope gives calculators access to rules compiled before them.
type scope struct {
	rules map[string]model.FieldMapping
}

func (s *scope) rule(key string) (model.FieldMapping, error) {
	m, ok := s.rules[key]
	if !ok {
		return model.FieldMapping{}, eris.Errorf("mapping: rule %q is not defined before use or is indexed", key)
	}
	return m, nil
}

type calcBuilder func(args []string, s *scope) (model.CalculateFunc, error)

var calculators = map[string]calcBuilder{
	"sum_schedule":   sumSchedule,
	"sum_properties": sumProperties,
	"sum_paths":      sumPaths,
	"sum_of":         sumOf,
	"difference":     difference,
	"count_rows":     countRows,
}

var transforms = map[string]model.TransformFunc{
	"upper":        upper,
	"trim":         trim,
	"abs":          absolute,
	"negate":       negate,
	"yes_no":       yesNo,
	"year":         year,
	"join_address": joinAddress,
}

// Calculators lists the registered calculator names.
func Calculators() []string { return sortedKeys(calculators) }

// Transforms lists the registered transform names.
func Transforms() []string { return sortedKeys(transforms) }

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func arity(name string, args []string, n int) error {
	if len(args) != n {
		return eris.Errorf("mapping: %s takes %d argument(s), got %d", name, n, len(args))
	}
	return nil
}

// accumulate adds v to total. Absent and empty values count as zero; a
// present value that is not numeric is an error.
func accumulate(total decimal.Decimal, v resolve.Value, what string) (decimal.Decimal, error) {
	if !v.Present {
		return total, nil
	}
	if s, ok := v.Raw.(string); ok && strings.TrimSpace(s) == "" {
		return total, nil
	}
	d, ok := model.AsDecimal(v.Raw)
	if !ok {
		return total, eris.Errorf("%s: non-numeric value %q", what, fmt.Sprint(v.Raw))
	}
	return total.Add(d), nil
}

func sumSchedule(args []string, _ *scope) (model.CalculateFunc, error) {
	if err := arity("sum_schedule", args, 2); err != nil {
		return nil, err
	}
	id, column := args[0], args[1]
	return func(data *model.FinancialData) (any, error) {
		total := decimal.Zero
		for i, row := range allRows(data, id) {
			var err error
			total, err = accumulate(total, resolve.Of(row[column]), fmt.Sprintf("%s[%d].%s", id, i, column))
			if err != nil {
				return nil, err
			}
		}
		return total, nil
	}, nil
}

func sumProperties(args []string, _ *scope) (model.CalculateFunc, error) {
	if err := arity("sum_properties", args, 1); err != nil {
		return nil, err
	}
	field := args[0]
	return func(data *model.FinancialData) (any, error) {
		if data == nil {
			return decimal.Zero, nil
		}
		total := decimal.Zero
		for i := range data.Properties {
			var err error
			total, err = accumulate(total, resolve.PropertyField(data, i, field), fmt.Sprintf("property[%d].%s", i, field))
			if err != nil {
				return nil, err
			}
		}
		return total, nil
	}, nil
}

func sumPaths(args []string, _ *scope) (model.CalculateFunc, error) {
	if len(args) == 0 {
		return nil, eris.New("mapping: sum_paths needs at least one path")
	}
	paths := append([]string(nil), args...)
	return func(data *model.FinancialData) (any, error) {
		total := decimal.Zero
		for _, p := range paths {
			var err error
			total, err = accumulate(total, resolve.Path(data, p), p)
			if err != nil {
				return nil, err
			}
		}
		return total, nil
	}, nil
}

func sumOf(args []string, s *scope) (model.CalculateFunc, error) {
	if len(args) == 0 {
		return nil, eris.New("mapping: sum_of needs at least one rule")
	}
	refs := make([]model.FieldMapping, 0, len(args))
	for _, key := range args {
		m, err := s.rule(key)
		if err != nil {
			return nil, err
		}
		refs = append(refs, m)
	}
	return func(data *model.FinancialData) (any, error) {
		return sumRules(data, refs)
	}, nil
}

func difference(args []string, s *scope) (model.CalculateFunc, error) {
	if err := arity("difference", args, 2); err != nil {
		return nil, err
	}
	minuend, err := s.rule(args[0])
	if err != nil {
		return nil, err
	}
	subtrahend, err := s.rule(args[1])
	if err != nil {
		return nil, err
	}
	return func(data *model.FinancialData) (any, error) {
		a, err := sumRules(data, []model.FieldMapping{minuend})
		if err != nil {
			return nil, err
		}
		b, err := sumRules(data, []model.FieldMapping{subtrahend})
		if err != nil {
			return nil, err
		}
		return a.Sub(b), nil
	}, nil
}

func sumRules(data *model.FinancialData, refs []model.FieldMapping) (decimal.Decimal, error) {
	r := resolve.New()
	total := decimal.Zero
	for _, m := range refs {
		v, err := r.Resolve(m, data)
		if err != nil {
			return decimal.Zero, err
		}
		total, err = accumulate(total, v, m.Key)
		if err != nil {
			return decimal.Zero, err
		}
	}
	return total, nil
}

func countRows(args []string, _ *scope) (model.CalculateFunc, error) {
	if err := arity("count_rows", args, 1); err != nil {
		return nil, err
	}
	id := args[0]
	return func(data *model.FinancialData) (any, error) {
		return len(allRows(data, id)), nil
	}, nil
}

// allRows ignores capacity: totals cover every holding, including rows the
// layout has no room for.
func allRows(data *model.FinancialData, id string) []model.Row {
	if s := data.Schedule(id); s != nil {
		return s.Rows
	}
	return nil
}

func upper(v any) (any, error) {
	return strings.ToUpper(fmt.Sprint(v)), nil
}

func trim(v any) (any, error) {
	return strings.TrimSpace(fmt.Sprint(v)), nil
}

func absolute(v any) (any, error) {
	d, ok := model.AsDecimal(v)
	if !ok {
		return nil, eris.Errorf("abs: non-numeric value %q", fmt.Sprint(v))
	}
	return d.Abs(), nil
}

func negate(v any) (any, error) {
	d, ok := model.AsDecimal(v)
	if !ok {
		return nil, eris.Errorf("negate: non-numeric value %q", fmt.Sprint(v))
	}
	return d.Neg(), nil
}

func yesNo(v any) (any, error) {
	switch t := v.(type) {
	case bool:
		if t {
			return "Yes", nil
		}
		return "No", nil
	case string:
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "y", "yes", "true", "1", "x":
			return "Yes", nil
		case "n", "no", "false", "0":
			return "No", nil
		case "":
			return "", nil
		}
	}
	if d, ok := model.AsDecimal(v); ok && model.IsNumeric(v) {
		if d.IsZero() {
			return "No", nil
		}
		return "Yes", nil
	}
	return nil, eris.Errorf("yes_no: cannot interpret %q", fmt.Sprint(v))
}

func year(v any) (any, error) {
	switch t := v.(type) {
	case time.Time:
		return strconv.Itoa(t.Year()), nil
	case string:
		return model.AcquisitionYear(strings.TrimSpace(t)), nil
	}
	if model.IsNumeric(v) {
		return v, nil
	}
	return nil, eris.Errorf("year: cannot interpret %q", fmt.Sprint(v))
}

// joinAddress renders {street|address, city, state, zip} as one line.
func joinAddress(v any) (any, error) {
	m, ok := v.(map[string]any)
	if !ok {
		return nil, eris.Errorf("join_address: expected an address object, got %T", v)
	}
	get := func(keys ...string) string {
		for _, k := range keys {
			if s, ok := m[k].(string); ok && strings.TrimSpace(s) != "" {
				return strings.TrimSpace(s)
			}
		}
		return ""
	}
	p := model.Property{
		Address: get("street", "address", "line1"),
		City:    get("city"),
		State:   get("state"),
		Zip:     get("zip", "postal_code", "zipCode"),
	}
	return p.FullAddress(), nil
}

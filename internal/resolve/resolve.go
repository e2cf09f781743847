// Package resolve extracts raw values from a FinancialData model according
// to a FieldMapping's resolution strategy.
package resolve

import (
	"fmt"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/pfs-cli/internal/model"
)

// Value is the raw result of resolving one mapping. Present is false when
// nothing was found; a present value may still be 0 or "".
type Value struct {
	Raw     any
	Present bool
}

// Absent is the zero Value.
func Absent() Value { return Value{} }

// Of wraps v; a nil v is absent.
func Of(v any) Value { return Value{Raw: v, Present: v != nil} }

// Error reports a calculate or transform function that failed for one field.
type Error struct {
	Field string
	Func  string
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("resolve %s: %s: %v", e.Field, e.Func, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Resolver dispatches on FieldMapping.DataSource. It holds no state and is
// safe for concurrent use.
type Resolver struct{}

// New returns a Resolver.
func New() *Resolver { return &Resolver{} }

// Resolve returns the raw value for m. Missing data is never an error: the
// only errors come from a mapping's own Calculate or Transform function, and
// they are returned as *Error.
func (r *Resolver) Resolve(m model.FieldMapping, data *model.FinancialData) (Value, error) {
	var (
		v   Value
		err error
	)

	switch m.DataSource {
	case model.SourceDirect:
		v = Path(data, m.DataPath)
	case model.SourceCalculated:
		if m.Calculate == nil {
			zap.L().Warn("resolve: calculated mapping without function",
				zap.String("field", m.OutputFieldName),
			)
			return Absent(), nil
		}
		var raw any
		raw, err = guard(func() (any, error) { return m.Calculate(data) })
		if err != nil {
			return Absent(), &Error{Field: m.OutputFieldName, Func: funcName("calculate", m.CalculateName), Err: err}
		}
		v = Of(raw)
	case model.SourceSchedule:
		v = ScheduleCell(data, m.ScheduleID, m.ScheduleIndex, m.ScheduleField)
	case model.SourceProperty:
		v = PropertyField(data, m.PropertyIndex, m.PropertyField)
	default:
		zap.L().Warn("resolve: unknown data source, ignoring mapping",
			zap.String("field", m.OutputFieldName),
			zap.String("data_source", string(m.DataSource)),
		)
		return Absent(), nil
	}

	if m.Transform == nil || !v.Present {
		return v, nil
	}
	raw, err := guard(func() (any, error) { return m.Transform(v.Raw) })
	if err != nil {
		return Absent(), &Error{Field: m.OutputFieldName, Func: funcName("transform", m.TransformName), Err: err}
	}
	return Of(raw), nil
}

func funcName(kind, name string) string {
	if name == "" {
		return kind
	}
	return kind + " " + name
}

// guard runs fn and converts a panic into an error.
func guard(fn func() (any, error)) (v any, err error) {
	defer func() {
		if p := recover(); p != nil {
			v = nil
			err = eris.Errorf("panic: %v", p)
		}
	}()
	return fn()
}

package fill

import (
	"fmt"
	"strings"

	"github.com/sells-group/pfs-cli/internal/document"
	"github.com/sells-group/pfs-cli/internal/model"
)

// apply resolves, formats and writes one mapping. It never fails: every
// problem becomes the outcome's status.
func (e *Engine) apply(form *document.Form, m model.FieldMapping, data *model.FinancialData) model.FillOutcome {
	o := model.FillOutcome{FieldName: m.OutputFieldName}

	v, err := e.resolver.Resolve(m, data)
	if err != nil {
		o.Status, o.Detail = model.StatusResolutionError, err.Error()
		return o
	}

	fld, ok := form.Lookup(m.OutputFieldName)
	if !ok {
		o.Status, o.Detail = model.StatusMissingInDocument, "no field with this name in the document"
		return o
	}

	w := document.Probe(fld)
	o.Widget = w.Kind.String()
	o.Value = e.formatter.Format(v.Raw, m.FieldType)

	switch w.Kind {
	case document.KindText:
		return writeText(o, w.Text)
	case document.KindDropdown:
		return writeDropdown(o, w.Dropdown)
	case document.KindCheckbox:
		return writeCheckbox(o, w.Checkbox)
	default:
		o.Status, o.Detail = model.StatusUnsupportedFieldType, fmt.Sprintf("%T is not writable", fld)
		return o
	}
}

func mismatch(o model.FillOutcome, format string, args ...any) model.FillOutcome {
	o.Status, o.Detail = model.StatusWriteVerificationMismatch, fmt.Sprintf(format, args...)
	return o
}

// writeText writes the value, or clears the field for an empty one, and
// reads it back.
func writeText(o model.FillOutcome, f *document.TextField) model.FillOutcome {
	if err := f.SetText(o.Value); err != nil {
		return mismatch(o, "write failed: %v", err)
	}
	got := f.Text()
	switch {
	case o.Value == "" && got != "":
		return mismatch(o, "cleared, read back %q", got)
	case got != o.Value:
		return mismatch(o, "wrote %q, read back %q", o.Value, got)
	case o.Value == "":
		o.Status = model.StatusBlank
	default:
		o.Status = model.StatusFilled
	}
	return o
}

// writeDropdown selects the option whose label matches and falls back to a
// raw text assignment.
func writeDropdown(o model.FillOutcome, f *document.ChoiceField) model.FillOutcome {
	if o.Value == "" {
		if err := f.SetText(""); err != nil {
			return mismatch(o, "clear failed: %v", err)
		}
		if got := f.Selected(); got != "" {
			return mismatch(o, "cleared, read back %q", got)
		}
		o.Status = model.StatusBlank
		return o
	}

	if err := f.Select(o.Value); err == nil {
		if got := f.Selected(); !strings.EqualFold(got, o.Value) {
			return mismatch(o, "selected %q, read back %q", o.Value, got)
		}
		o.Status = model.StatusFilled
		return o
	}

	if err := f.SetText(o.Value); err != nil {
		return mismatch(o, "write failed: %v", err)
	}
	if got := f.Selected(); got != o.Value {
		return mismatch(o, "wrote %q, read back %q", o.Value, got)
	}
	o.Status, o.Detail = model.StatusFilled, "value is not one of the options; assigned as text"
	return o
}

// writeCheckbox checks the box for a truthy value and clears it otherwise.
func writeCheckbox(o model.FillOutcome, f *document.CheckboxField) model.FillOutcome {
	on := truthy(o.Value)
	if err := f.SetChecked(on); err != nil {
		return mismatch(o, "write failed: %v", err)
	}
	if f.IsChecked() != on {
		return mismatch(o, "set checked=%t, read back %t", on, f.IsChecked())
	}
	if !on {
		o.Status = model.StatusBlank
		return o
	}
	o.Status = model.StatusFilled
	return o
}

func truthy(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "x", "y", "yes", "true", "on", "1", "checked":
		return true
	default:
		return false
	}
}

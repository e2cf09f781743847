package audit

import (
	"github.com/sells-group/pfs-cli/internal/document"
)

// CanaryVerdict explains a zero-fill pass.
type CanaryVerdict string

const (
	// VerdictReadOnly means the document rejects writes.
	VerdictReadOnly CanaryVerdict = "read_only"
	// VerdictWritable means the document accepts writes, so the mapping
	// names are wrong for this document.
	VerdictWritable CanaryVerdict = "writable"
	// VerdictNoTextField means there was nothing to probe.
	VerdictNoTextField CanaryVerdict = "no_text_field"
)

// canaryValue is written and read back; the field's value is restored after.
const canaryValue = "PFS-CANARY"

// Canary is the result of one probe write.
type Canary struct {
	Field   string        `json:"field,omitempty"`
	Verdict CanaryVerdict `json:"verdict"`
	Detail  string        `json:"detail,omitempty"`
}

// RunCanary writes a probe value to the first text field of form, reads it
// back and restores the original value.
func RunCanary(form *document.Form) Canary {
	for _, fld := range form.Fields() {
		w := document.Probe(fld)
		if w.Kind != document.KindText || (w.Text.MaxLen > 0 && w.Text.MaxLen < len(canaryValue)) {
			continue
		}

		original := w.Text.Text()
		c := Canary{Field: fld.Name()}
		if err := w.Text.SetText(canaryValue); err != nil {
			c.Verdict, c.Detail = VerdictReadOnly, err.Error()
			return c
		}
		if w.Text.Text() != canaryValue {
			c.Verdict, c.Detail = VerdictReadOnly, "write did not persist"
			return c
		}
		_ = w.Text.SetText(original)
		c.Verdict, c.Detail = VerdictWritable, "document accepts writes; mapping names do not match it"
		return c
	}
	return Canary{Verdict: VerdictNoTextField}
}

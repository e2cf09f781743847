package audit

import (
	"encoding/json"
	"io"
	"sort"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/pfs-cli/internal/model"
)

// Report is the machine-readable result of one pass.
type Report struct {
	TemplateID     string              `json:"template_id,omitempty"`
	Edition        string              `json:"edition,omitempty"`
	Status         model.RunStatus     `json:"status"`
	Summary        Summary             `json:"summary"`
	Reconciliation Reconciliation      `json:"reconciliation"`
	Canary         *Canary             `json:"canary,omitempty"`
	Outcomes       []model.FillOutcome `json:"outcomes"`
}

// Report formats.
const (
	FormatJSON = "json"
	FormatXLSX = "xlsx"
)

// Write encodes r in format.
func Write(w io.Writer, r Report, format string) error {
	switch format {
	case "", FormatJSON:
		return WriteJSON(w, r)
	case FormatXLSX:
		return WriteXLSX(w, r)
	default:
		return eris.Errorf("audit: unknown report format %q", format)
	}
}

// WriteJSON writes r as indented JSON.
func WriteJSON(w io.Writer, r Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(r); err != nil {
		return eris.Wrap(err, "audit: encode json report")
	}
	return nil
}

// WriteXLSX writes r as a workbook with Summary, Outcomes and
// Reconciliation sheets.
func WriteXLSX(w io.Writer, r Report) error {
	f := xlsx.NewFile()

	summary, err := f.AddSheet("Summary")
	if err != nil {
		return eris.Wrap(err, "audit: add summary sheet")
	}
	addRow(summary, "template", r.TemplateID)
	addRow(summary, "edition", r.Edition)
	addRow(summary, "status", string(r.Status))
	addCount(summary, "total", r.Summary.Total)
	addCount(summary, "filled", r.Summary.Filled)
	addCount(summary, "blank", r.Summary.Blank)
	addCount(summary, "missing", r.Summary.Missing)
	addCount(summary, "failed", r.Summary.Failed)
	statuses := make([]string, 0, len(r.Summary.ByStatus))
	for s := range r.Summary.ByStatus {
		statuses = append(statuses, string(s))
	}
	sort.Strings(statuses)
	for _, s := range statuses {
		addCount(summary, "status:"+s, r.Summary.ByStatus[model.OutcomeStatus(s)])
	}
	if r.Canary != nil {
		addRow(summary, "canary field", r.Canary.Field)
		addRow(summary, "canary verdict", string(r.Canary.Verdict))
	}

	outcomes, err := f.AddSheet("Outcomes")
	if err != nil {
		return eris.Wrap(err, "audit: add outcomes sheet")
	}
	addRow(outcomes, "field", "status", "value", "widget", "detail")
	for _, o := range r.Outcomes {
		addRow(outcomes, o.FieldName, string(o.Status), o.Value, o.Widget, o.Detail)
	}

	recon, err := f.AddSheet("Reconciliation")
	if err != nil {
		return eris.Wrap(err, "audit: add reconciliation sheet")
	}
	addRow(recon, "kind", "name")
	for _, n := range r.Reconciliation.UnmatchedMappings {
		addRow(recon, "unmatched_mapping", n)
	}
	for _, n := range r.Reconciliation.UnmappedFields {
		addRow(recon, "unmapped_field", n)
	}

	if err := f.Write(w); err != nil {
		return eris.Wrap(err, "audit: write xlsx report")
	}
	return nil
}

func addRow(sheet *xlsx.Sheet, values ...string) {
	row := sheet.AddRow()
	for _, v := range values {
		row.AddCell().SetString(v)
	}
}

func addCount(sheet *xlsx.Sheet, label string, n int) {
	row := sheet.AddRow()
	row.AddCell().SetString(label)
	row.AddCell().SetInt(n)
}

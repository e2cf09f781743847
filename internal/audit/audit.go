// Package audit aggregates fill outcomes into counts, reconciles mapping
// names against a document's registry and runs the zero-fill canary.
package audit

import (
	"github.com/sells-group/pfs-cli/internal/model"
)

// Summary counts one pass's outcomes.
type Summary struct {
	Total    int                         `json:"total"`
	Filled   int                         `json:"filled"`
	Blank    int                         `json:"blank"`
	Missing  int                         `json:"missing"`
	Failed   int                         `json:"failed"`
	ByStatus map[model.OutcomeStatus]int `json:"by_status"`
}

// Summarize folds outcomes into a Summary.
func Summarize(outcomes []model.FillOutcome) Summary {
	s := Summary{Total: len(outcomes), ByStatus: make(map[model.OutcomeStatus]int)}
	for _, o := range outcomes {
		s.ByStatus[o.Status]++
		switch {
		case o.Status == model.StatusFilled:
			s.Filled++
		case o.Status == model.StatusBlank:
			s.Blank++
		case o.Status == model.StatusMissingInDocument:
			s.Missing++
		case o.Status.Failed():
			s.Failed++
		}
	}
	return s
}

// ZeroFill reports a pass that wrote nothing. It is not an error, but it
// almost always means the mapping and the document disagree.
func (s Summary) ZeroFill() bool { return s.Filled == 0 }

// HasWarnings reports per-field problems.
func (s Summary) HasWarnings() bool { return s.Missing > 0 || s.Failed > 0 }

// RunStatus classifies a completed pass.
func (s Summary) RunStatus() model.RunStatus {
	switch {
	case s.ZeroFill():
		return model.RunStatusZeroFilled
	case s.HasWarnings():
		return model.RunStatusWarnings
	default:
		return model.RunStatusComplete
	}
}

// Reconciliation compares mapping output names with the document registry.
type Reconciliation struct {
	Matched int `json:"matched"`
	// UnmatchedMappings are mapping names with no field in the document,
	// in mapping order.
	UnmatchedMappings []string `json:"unmatched_mappings"`
	// UnmappedFields are document fields no mapping targets, in document
	// order.
	UnmappedFields []string `json:"unmapped_fields"`
}

// Drifted reports whether any mapping targets a field the document lacks.
func (r Reconciliation) Drifted() bool { return len(r.UnmatchedMappings) > 0 }

// Reconcile matches names exactly.
func Reconcile(mappingNames, fieldNames []string) Reconciliation {
	inDoc := make(map[string]bool, len(fieldNames))
	for _, n := range fieldNames {
		inDoc[n] = true
	}
	mapped := make(map[string]bool, len(mappingNames))

	r := Reconciliation{UnmatchedMappings: []string{}, UnmappedFields: []string{}}
	for _, n := range mappingNames {
		mapped[n] = true
		if inDoc[n] {
			r.Matched++
			continue
		}
		r.UnmatchedMappings = append(r.UnmatchedMappings, n)
	}
	for _, n := range fieldNames {
		if !mapped[n] {
			r.UnmappedFields = append(r.UnmappedFields, n)
		}
	}
	return r
}

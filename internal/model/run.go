package model

import "time"

// Snapshot is a stored version of a user's financial data set.
type Snapshot struct {
	ID        string        `json:"id"`
	Owner     string        `json:"owner"`
	Label     string        `json:"label,omitempty"`
	Data      FinancialData `json:"data"`
	CreatedAt time.Time     `json:"created_at"`
}

// RunStatus summarizes how a fill pass ended.
type RunStatus string

const (
	RunStatusComplete   RunStatus = "complete"    // every mapping filled or blank
	RunStatusWarnings   RunStatus = "warnings"    // document produced, some fields not applied
	RunStatusZeroFilled RunStatus = "zero_filled" // document produced, nothing filled
	RunStatusStructural RunStatus = "structural"  // aborted before filling
)

// FillRun records one fill pass for audit and operator debugging.
type FillRun struct {
	ID         string        `json:"id"`
	SnapshotID string        `json:"snapshot_id,omitempty"`
	TemplateID string        `json:"template_id"`
	Edition    string        `json:"edition"`
	Status     RunStatus     `json:"status"`
	Filled     int           `json:"filled"`
	Blank      int           `json:"blank"`
	Missing    int           `json:"missing"`
	Failed     int           `json:"failed"`
	Error      string        `json:"error,omitempty"`
	Outcomes   []FillOutcome `json:"outcomes,omitempty"`
	CreatedAt  time.Time     `json:"created_at"`
}

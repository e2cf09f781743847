package model

// OutcomeStatus classifies what happened to one field during a fill pass.
type OutcomeStatus string

const (
	StatusFilled                    OutcomeStatus = "filled"
	StatusBlank                     OutcomeStatus = "blank"
	StatusMissingInDocument         OutcomeStatus = "missing_in_document"
	StatusUnsupportedFieldType      OutcomeStatus = "unsupported_field_type"
	StatusResolutionError           OutcomeStatus = "resolution_error"
	StatusWriteVerificationMismatch OutcomeStatus = "write_verification_mismatch"
)

// Failed reports whether the status counts as a per-field failure.
func (s OutcomeStatus) Failed() bool {
	switch s {
	case StatusUnsupportedFieldType, StatusResolutionError, StatusWriteVerificationMismatch:
		return true
	default:
		return false
	}
}

// FillOutcome is the per-field record produced by one fill pass.
type FillOutcome struct {
	FieldName string        `json:"field_name"`
	Status    OutcomeStatus `json:"status"`
	Detail    string        `json:"detail,omitempty"`
	Value     string        `json:"value,omitempty"`
	Widget    string        `json:"widget,omitempty"`
}

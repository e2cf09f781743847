package model

// DataSource selects how a FieldMapping derives its raw value.
type DataSource string

const (
	SourceDirect     DataSource = "direct"
	SourceCalculated DataSource = "calculated"
	SourceSchedule   DataSource = "schedule"
	SourceProperty   DataSource = "property"
)

// Valid reports whether s is one of the known resolution strategies.
func (s DataSource) Valid() bool {
	switch s {
	case SourceDirect, SourceCalculated, SourceSchedule, SourceProperty:
		return true
	default:
		return false
	}
}

// FieldType selects how a resolved value is rendered.
type FieldType string

const (
	TypeText       FieldType = "text"
	TypeNumber     FieldType = "number"
	TypeDate       FieldType = "date"
	TypeCurrency   FieldType = "currency"
	TypePercentage FieldType = "percentage"
)

// Valid reports whether t is one of the known render types.
func (t FieldType) Valid() bool {
	switch t {
	case TypeText, TypeNumber, TypeDate, TypeCurrency, TypePercentage:
		return true
	default:
		return false
	}
}

// CalculateFunc aggregates a value over the whole data model. It must be pure.
type CalculateFunc func(data *FinancialData) (any, error)

// TransformFunc post-processes a resolved value. It must be pure.
type TransformFunc func(v any) (any, error)

// FieldMapping links one output document field to a value derivation and a
// render policy. Only the attributes of the selected DataSource are read.
type FieldMapping struct {
	OutputFieldName string     `json:"output_field_name"`
	Key             string     `json:"key"`
	DataSource      DataSource `json:"data_source"`
	DataPath        string     `json:"data_path,omitempty"`
	ScheduleID      string     `json:"schedule_id,omitempty"`
	ScheduleIndex   int        `json:"schedule_index,omitempty"`
	ScheduleField   string     `json:"schedule_field,omitempty"`
	PropertyIndex   int        `json:"property_index,omitempty"`
	PropertyField   string     `json:"property_field,omitempty"`
	FieldType       FieldType  `json:"field_type"`

	// Names of the registered functions, kept for listings and reports.
	CalculateName string `json:"calculate,omitempty"`
	TransformName string `json:"transform,omitempty"`

	Calculate CalculateFunc `json:"-"`
	Transform TransformFunc `json:"-"`
}

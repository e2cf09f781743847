package model

import (
	"regexp"
	"strings"
)

// FinancialData is the data model supplied wholesale to one fill pass. It is
// treated as immutable for the duration of the pass.
type FinancialData struct {
	// Fields holds nested scalar values addressed by dotted paths
	// (e.g. "applicant.name"). Values follow JSON decoding conventions.
	Fields     map[string]any       `json:"fields" yaml:"fields"`
	Schedules  map[string]*Schedule `json:"schedules" yaml:"schedules"`
	Properties []Property           `json:"properties" yaml:"properties"`
	Mortgages  []Mortgage           `json:"mortgages" yaml:"mortgages"`
}

// Row is one record of a schedule, keyed by column name.
type Row map[string]any

// Schedule is a named, fixed-capacity, ordered group of rows for one
// financial category.
type Schedule struct {
	// Capacity is the number of rows the document layout reserves. Zero
	// means the schedule is bounded only by its rows.
	Capacity int   `json:"capacity" yaml:"capacity"`
	Rows     []Row `json:"rows" yaml:"rows"`
}

// Schedule returns the schedule with the given id, or nil.
func (d *FinancialData) Schedule(id string) *Schedule {
	if d == nil || d.Schedules == nil {
		return nil
	}
	return d.Schedules[id]
}

// Row returns row i when it is within both the capacity and the provided rows.
func (s *Schedule) Row(i int) (Row, bool) {
	if s == nil || i < 0 || i >= len(s.Rows) {
		return nil, false
	}
	if s.Capacity > 0 && i >= s.Capacity {
		return nil, false
	}
	return s.Rows[i], s.Rows[i] != nil
}

// Visible returns the rows that fit within the schedule's capacity.
func (s *Schedule) Visible() []Row {
	if s == nil {
		return nil
	}
	if s.Capacity > 0 && len(s.Rows) > s.Capacity {
		return s.Rows[:s.Capacity]
	}
	return s.Rows
}

// Property is one selected real-estate holding.
type Property struct {
	ID           string  `json:"id" yaml:"id"`
	Address      string  `json:"address" yaml:"address"`
	City         string  `json:"city,omitempty" yaml:"city"`
	State        string  `json:"state,omitempty" yaml:"state"`
	Zip          string  `json:"zip,omitempty" yaml:"zip"`
	PropertyType string  `json:"propertyType" yaml:"propertyType"`
	TitleHolder  string  `json:"titleHolder,omitempty" yaml:"titleHolder"`
	YearAcquired string  `json:"yearAcquired,omitempty" yaml:"yearAcquired"`
	OriginalCost float64 `json:"originalCost,omitempty" yaml:"originalCost"`
	MarketValue  float64 `json:"marketValue,omitempty" yaml:"marketValue"`
	Lender       string  `json:"lender,omitempty" yaml:"lender"`
	Balance      float64 `json:"balance,omitempty" yaml:"balance"`
	Payment      float64 `json:"payment,omitempty" yaml:"payment"`
	Status       string  `json:"status,omitempty" yaml:"status"`
	RentalIncome float64 `json:"rentalIncome,omitempty" yaml:"rentalIncome"`
}

// Mortgage is a lien joined to a Property through PropertyID.
type Mortgage struct {
	ID               string  `json:"id" yaml:"id"`
	PropertyID       string  `json:"propertyId" yaml:"propertyId"`
	Lender           string  `json:"lender,omitempty" yaml:"lender"`
	PrincipalBalance float64 `json:"principalBalance" yaml:"principalBalance"`
	MonthlyPayment   float64 `json:"monthlyPayment" yaml:"monthlyPayment"`
	InterestRate     float64 `json:"interestRate,omitempty" yaml:"interestRate"`
	MaturityDate     string  `json:"maturityDate,omitempty" yaml:"maturityDate"`
}

var isoDatePrefix = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}`)

// Value returns the property's own value for a logical field name. The
// mortgage join for balance and payment is a resolver concern.
func (p Property) Value(field string) (any, bool) {
	switch field {
	case "id":
		return p.ID, true
	case "address":
		return p.Address, true
	case "city":
		return p.City, true
	case "state":
		return p.State, true
	case "zip":
		return p.Zip, true
	case "fullAddress":
		return p.FullAddress(), true
	case "propertyType", "type":
		return p.PropertyType, true
	case "titleHolder":
		return p.TitleHolder, true
	case "yearAcquired":
		return AcquisitionYear(p.YearAcquired), true
	case "originalCost":
		return p.OriginalCost, true
	case "marketValue":
		return p.MarketValue, true
	case "lender":
		return p.Lender, true
	case "balance":
		return p.Balance, true
	case "payment":
		return p.Payment, true
	case "status":
		return p.Status, true
	case "rentalIncome":
		return p.RentalIncome, true
	default:
		return nil, false
	}
}

// FullAddress joins the non-empty address parts.
func (p Property) FullAddress() string {
	var parts []string
	for _, s := range []string{p.Address, p.City, strings.TrimSpace(p.State + " " + p.Zip)} {
		if s = strings.TrimSpace(s); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, ", ")
}

// AcquisitionYear extracts the year from an ISO date ("2015-06-01" -> "2015").
// Anything else passes through unchanged.
func AcquisitionYear(s string) string {
	if !isoDatePrefix.MatchString(s) {
		return s
	}
	year, _, _ := strings.Cut(s, "-")
	return year
}

// MortgageFor returns the first mortgage joined to propertyID.
func (d *FinancialData) MortgageFor(propertyID string) (Mortgage, bool) {
	if d == nil || propertyID == "" {
		return Mortgage{}, false
	}
	for _, m := range d.Mortgages {
		if m.PropertyID == propertyID {
			return m, true
		}
	}
	return Mortgage{}, false
}

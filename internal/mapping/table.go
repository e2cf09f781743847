package mapping

import "github.com/sells-group/pfs-cli/internal/model"

// Table is the ordered mapping list for one edition. Order is the asset order
// with indexed rules expanded in place; fill passes emit outcomes in it.
type Table struct {
	Version  string
	Edition  Edition
	mappings []model.FieldMapping
	byName   map[string]int
}

// NewTable builds a Table from explicit mappings, e.g. for tests or ad-hoc
// layouts. Later duplicates of an output name are dropped.
func NewTable(edition Edition, mappings ...model.FieldMapping) *Table {
	t := &Table{Edition: edition, byName: make(map[string]int, len(mappings))}
	for _, m := range mappings {
		if _, dup := t.byName[m.OutputFieldName]; dup {
			continue
		}
		t.byName[m.OutputFieldName] = len(t.mappings)
		t.mappings = append(t.mappings, m)
	}
	return t
}

// Mappings returns a copy of the ordered mappings.
func (t *Table) Mappings() []model.FieldMapping {
	return append([]model.FieldMapping(nil), t.mappings...)
}

// Len returns the number of mappings.
func (t *Table) Len() int { return len(t.mappings) }

// Names returns output field names in table order.
func (t *Table) Names() []string {
	names := make([]string, len(t.mappings))
	for i, m := range t.mappings {
		names[i] = m.OutputFieldName
	}
	return names
}

// ByName returns the mapping for an output field name.
func (t *Table) ByName(name string) (model.FieldMapping, bool) {
	i, ok := t.byName[name]
	if !ok {
		return model.FieldMapping{}, false
	}
	return t.mappings[i], true
}

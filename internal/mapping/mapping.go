// Package mapping holds the declarative field mapping rule set. One shared
// list of rules is rendered into a concrete Table per document edition, so
// editions differ only in naming convention and cannot drift apart.
package mapping

import (
	_ "embed"
	"os"
	"sync"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/pfs-cli/internal/model"
)

//go:embed rules/pfs.yaml
var defaultRules []byte

// ErrUnknownEdition is returned for an edition the rule set does not declare.
var ErrUnknownEdition = eris.New("mapping: unknown edition")

// Edition is one document edition and the naming convention its field
// registry uses.
type Edition struct {
	ID         string     `yaml:"id" json:"id"`
	Title      string     `yaml:"title,omitempty" json:"title,omitempty"`
	Convention Convention `yaml:"convention" json:"convention"`
}

// Rule is one entry of the asset. A rule with Rows expands into one mapping
// per schedule row; a rule with Properties expands into one mapping per
// property slot.
type Rule struct {
	Key           string            `yaml:"key"`
	Source        model.DataSource  `yaml:"source"`
	Type          model.FieldType   `yaml:"type"`
	Path          string            `yaml:"path,omitempty"`
	Schedule      string            `yaml:"schedule,omitempty"`
	Column        string            `yaml:"column,omitempty"`
	Rows          int               `yaml:"rows,omitempty"`
	PropertyField string            `yaml:"property_field,omitempty"`
	Properties    int               `yaml:"properties,omitempty"`
	Calculate     *FuncSpec         `yaml:"calculate,omitempty"`
	Transform     *FuncSpec         `yaml:"transform,omitempty"`
	Names         map[string]string `yaml:"names,omitempty"`
}

func (r Rule) indexed() bool { return r.Rows > 0 || r.Properties > 0 }

// RuleSet is a parsed and compiled asset. It is immutable.
type RuleSet struct {
	Version  string
	editions []Edition
	rules    []Rule
	compiled []model.FieldMapping
	tables   map[string]*Table
}

type asset struct {
	Version  string    `yaml:"version"`
	Editions []Edition `yaml:"editions"`
	Rules    []Rule    `yaml:"rules"`
}

var (
	defaultOnce sync.Once
	defaultSet  *RuleSet
	defaultErr  error
)

// Default returns the rule set embedded in the binary. It is parsed once.
func Default() (*RuleSet, error) {
	defaultOnce.Do(func() {
		defaultSet, defaultErr = Parse(defaultRules)
	})
	return defaultSet, defaultErr
}

// Load reads a rule set from a YAML file, replacing the embedded one.
func Load(path string) (*RuleSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "mapping: read rules %s", path)
	}
	rs, err := Parse(data)
	if err != nil {
		return nil, eris.Wrapf(err, "mapping: load %s", path)
	}
	return rs, nil
}

// Parse decodes, validates and compiles a rule set and renders a Table for
// every edition it declares.
func Parse(data []byte) (*RuleSet, error) {
	var a asset
	if err := yaml.Unmarshal(data, &a); err != nil {
		return nil, eris.Wrap(err, "mapping: parse rules")
	}
	if a.Version == "" {
		return nil, eris.New("mapping: rules have no version")
	}
	if len(a.Editions) == 0 {
		return nil, eris.New("mapping: rules declare no editions")
	}

	rs := &RuleSet{
		Version:  a.Version,
		editions: a.Editions,
		rules:    a.Rules,
		tables:   make(map[string]*Table, len(a.Editions)),
	}
	if err := rs.compile(); err != nil {
		return nil, err
	}

	for _, ed := range a.Editions {
		if ed.ID == "" {
			return nil, eris.New("mapping: edition without id")
		}
		if _, dup := rs.tables[ed.ID]; dup {
			return nil, eris.Errorf("mapping: duplicate edition %q", ed.ID)
		}
		if err := ed.Convention.validate(); err != nil {
			return nil, eris.Wrapf(err, "mapping: edition %s", ed.ID)
		}
		t, err := rs.render(ed)
		if err != nil {
			return nil, err
		}
		rs.tables[ed.ID] = t
	}
	return rs, nil
}

// Editions returns the declared editions in asset order.
func (rs *RuleSet) Editions() []Edition {
	return append([]Edition(nil), rs.editions...)
}

// Table returns the mapping table for an edition.
func (rs *RuleSet) Table(editionID string) (*Table, error) {
	t, ok := rs.tables[editionID]
	if !ok {
		return nil, eris.Wrapf(ErrUnknownEdition, "mapping: %q", editionID)
	}
	return t, nil
}

// Rules returns the number of rules before row and slot expansion.
func (rs *RuleSet) Rules() int { return len(rs.rules) }

// compile validates every rule and binds its functions. compiled[i] is the
// edition-independent template for rules[i].
func (rs *RuleSet) compile() error {
	sc := &scope{rules: make(map[string]model.FieldMapping, len(rs.rules))}
	seen := make(map[string]bool, len(rs.rules))
	rs.compiled = make([]model.FieldMapping, len(rs.rules))

	for i, r := range rs.rules {
		m, err := compileRule(r, sc)
		if err != nil {
			return eris.Wrapf(err, "mapping: rule %d (%s)", i, r.Key)
		}
		if seen[r.Key] {
			return eris.Errorf("mapping: duplicate rule key %q", r.Key)
		}
		seen[r.Key] = true
		if !r.indexed() {
			sc.rules[r.Key] = m
		}
		rs.compiled[i] = m
	}
	return nil
}

func compileRule(r Rule, sc *scope) (model.FieldMapping, error) {
	if r.Key == "" {
		return model.FieldMapping{}, eris.New("mapping: rule without key")
	}
	if !r.Source.Valid() {
		return model.FieldMapping{}, eris.Errorf("mapping: unknown source %q", r.Source)
	}
	if !r.Type.Valid() {
		return model.FieldMapping{}, eris.Errorf("mapping: unknown type %q", r.Type)
	}
	if r.Rows < 0 || r.Properties < 0 {
		return model.FieldMapping{}, eris.New("mapping: negative expansion count")
	}
	if r.indexed() && len(r.Names) > 0 {
		return model.FieldMapping{}, eris.New("mapping: indexed rules cannot override names")
	}

	m := model.FieldMapping{
		Key:        r.Key,
		DataSource: r.Source,
		FieldType:  r.Type,
	}

	switch r.Source {
	case model.SourceDirect:
		if r.Path == "" {
			return m, eris.New("mapping: direct rule needs a path")
		}
		m.DataPath = r.Path
	case model.SourceSchedule:
		if r.Schedule == "" || r.Column == "" || r.Rows == 0 {
			return m, eris.New("mapping: schedule rule needs schedule, column and rows")
		}
		m.ScheduleID, m.ScheduleField = r.Schedule, r.Column
	case model.SourceProperty:
		if r.PropertyField == "" || r.Properties == 0 {
			return m, eris.New("mapping: property rule needs property_field and properties")
		}
		m.PropertyField = r.PropertyField
	case model.SourceCalculated:
		if r.Calculate == nil {
			return m, eris.New("mapping: calculated rule needs calculate")
		}
		if r.indexed() {
			return m, eris.New("mapping: calculated rules cannot expand")
		}
		build, ok := calculators[r.Calculate.Fn]
		if !ok {
			return m, eris.Errorf("mapping: unknown calculator %q", r.Calculate.Fn)
		}
		fn, err := build(r.Calculate.Args, sc)
		if err != nil {
			return m, err
		}
		m.Calculate, m.CalculateName = fn, r.Calculate.String()
	}
	if r.Source != model.SourceSchedule && r.Rows > 0 {
		return m, eris.New("mapping: rows only apply to schedule rules")
	}
	if r.Source != model.SourceProperty && r.Properties > 0 {
		return m, eris.New("mapping: properties only apply to property rules")
	}

	if r.Transform != nil {
		fn, ok := transforms[r.Transform.Fn]
		if !ok {
			return m, eris.Errorf("mapping: unknown transform %q", r.Transform.Fn)
		}
		if len(r.Transform.Args) > 0 {
			return m, eris.Errorf("mapping: transform %s takes no arguments", r.Transform.Fn)
		}
		m.Transform, m.TransformName = fn, r.Transform.Fn
	}
	return m, nil
}

// render expands and names every compiled rule for one edition.
func (rs *RuleSet) render(ed Edition) (*Table, error) {
	t := &Table{
		Version: rs.Version,
		Edition: ed,
		byName:  make(map[string]int),
	}
	add := func(m model.FieldMapping) error {
		if _, dup := t.byName[m.OutputFieldName]; dup {
			return eris.Errorf("mapping: edition %s renders %q twice", ed.ID, m.OutputFieldName)
		}
		t.byName[m.OutputFieldName] = len(t.mappings)
		t.mappings = append(t.mappings, m)
		return nil
	}

	for i, r := range rs.rules {
		base := rs.compiled[i]
		switch {
		case r.Rows > 0:
			for row := 0; row < r.Rows; row++ {
				m := base
				m.ScheduleIndex = row
				m.OutputFieldName = ed.Convention.Name(r.Key, row)
				if err := add(m); err != nil {
					return nil, err
				}
			}
		case r.Properties > 0:
			for slot := 0; slot < r.Properties; slot++ {
				m := base
				m.PropertyIndex = slot
				m.OutputFieldName = ed.Convention.Name(r.Key, slot)
				if err := add(m); err != nil {
					return nil, err
				}
			}
		default:
			m := base
			m.OutputFieldName = ed.Convention.Name(r.Key, -1)
			if name, ok := r.Names[ed.ID]; ok {
				m.OutputFieldName = name
			}
			if err := add(m); err != nil {
				return nil, err
			}
		}
	}
	return t, nil
}

package document

import (
	"bytes"
	"encoding/json"

	"github.com/rotisserie/eris"
)

// Codec converts between document bytes and a Form.
type Codec interface {
	Decode(src []byte) (*Form, error)
	Encode(f *Form) ([]byte, error)
}

// DetectCodec returns PDFCodec for PDF bytes and JSONCodec otherwise.
func DetectCodec(src []byte) Codec {
	if bytes.HasPrefix(bytes.TrimLeft(src, " \t\r\n"), []byte("%PDF-")) {
		return PDFCodec{}
	}
	return JSONCodec{}
}

// JSONCodec reads and writes the form-export JSON layout: one group with a
// "forms" list, each form holding its fields by widget kind.
type JSONCodec struct{}

type formGroup struct {
	Header *formHeader `json:"header,omitempty"`
	Forms  []formJSON  `json:"forms"`
}

type formHeader struct {
	Source   string `json:"source,omitempty"`
	Version  string `json:"version,omitempty"`
	Creation string `json:"creation,omitempty"`
	Producer string `json:"producer,omitempty"`
}

type formJSON struct {
	TextFields        []textJSON  `json:"textfield,omitempty"`
	DateFields        []dateJSON  `json:"datefield,omitempty"`
	CheckBoxes        []checkJSON `json:"checkbox,omitempty"`
	RadioButtonGroups []radioJSON `json:"radiobuttongroup,omitempty"`
	ComboBoxes        []comboJSON `json:"combobox,omitempty"`
	ListBoxes         []listJSON  `json:"listbox,omitempty"`
}

type textJSON struct {
	Pages     []int  `json:"pages"`
	ID        string `json:"id"`
	Name      string `json:"name,omitempty"`
	Default   string `json:"default,omitempty"`
	Value     string `json:"value"`
	Multiline bool   `json:"multiline"`
	Locked    bool   `json:"locked"`
	MaxLen    int    `json:"maxlen,omitempty"`
}

type dateJSON struct {
	Pages   []int  `json:"pages"`
	ID      string `json:"id"`
	Name    string `json:"name,omitempty"`
	Format  string `json:"format"`
	Default string `json:"default,omitempty"`
	Value   string `json:"value"`
	Locked  bool   `json:"locked"`
}

type checkJSON struct {
	Pages   []int  `json:"pages"`
	ID      string `json:"id"`
	Name    string `json:"name,omitempty"`
	Default bool   `json:"default"`
	Value   bool   `json:"value"`
	Locked  bool   `json:"locked"`
}

type radioJSON struct {
	Pages   []int    `json:"pages"`
	ID      string   `json:"id"`
	Name    string   `json:"name,omitempty"`
	Options []string `json:"options"`
	Default string   `json:"default,omitempty"`
	Value   string   `json:"value"`
	Locked  bool     `json:"locked"`
}

type comboJSON struct {
	Pages    []int    `json:"pages"`
	ID       string   `json:"id"`
	Name     string   `json:"name,omitempty"`
	Editable bool     `json:"editable"`
	Options  []string `json:"options"`
	Default  string   `json:"default,omitempty"`
	Value    string   `json:"value"`
	Locked   bool     `json:"locked"`
}

type listJSON struct {
	Pages    []int    `json:"pages"`
	ID       string   `json:"id"`
	Name     string   `json:"name,omitempty"`
	Multi    bool     `json:"multi"`
	Options  []string `json:"options"`
	Defaults []string `json:"defaults,omitempty"`
	Values   []string `json:"values,omitempty"`
	Locked   bool     `json:"locked"`
}

// fieldName falls back to the id for unnamed fields.
func fieldName(name, id string) string {
	if name != "" {
		return name
	}
	return id
}

// Decode parses form JSON. A document without any form yields ErrNoForm; a
// form without fields decodes to an empty Form.
func (JSONCodec) Decode(src []byte) (*Form, error) {
	var g formGroup
	if err := json.Unmarshal(src, &g); err != nil {
		return nil, eris.Wrap(err, "document: decode form json")
	}
	if len(g.Forms) == 0 {
		return nil, ErrNoForm
	}

	var fields []Field
	for _, f := range g.Forms {
		for _, t := range f.TextFields {
			fields = append(fields, &TextField{
				base:      base{FieldName: fieldName(t.Name, t.ID), ID: t.ID, Pages: t.Pages, ReadOnly: t.Locked},
				Value:     t.Value,
				Default:   t.Default,
				MaxLen:    t.MaxLen,
				Multiline: t.Multiline,
			})
		}
		for _, d := range f.DateFields {
			fields = append(fields, &TextField{
				base:       base{FieldName: fieldName(d.Name, d.ID), ID: d.ID, Pages: d.Pages, ReadOnly: d.Locked},
				Value:      d.Value,
				Default:    d.Default,
				Date:       true,
				DateFormat: d.Format,
			})
		}
		for _, c := range f.CheckBoxes {
			fields = append(fields, &CheckboxField{
				base:    base{FieldName: fieldName(c.Name, c.ID), ID: c.ID, Pages: c.Pages, ReadOnly: c.Locked},
				Checked: c.Value,
				Default: c.Default,
			})
		}
		for _, r := range f.RadioButtonGroups {
			fields = append(fields, &RadioGroup{
				base:    base{FieldName: fieldName(r.Name, r.ID), ID: r.ID, Pages: r.Pages, ReadOnly: r.Locked},
				Options: r.Options,
				Value:   r.Value,
				Default: r.Default,
			})
		}
		for _, c := range f.ComboBoxes {
			fields = append(fields, &ChoiceField{
				base:     base{FieldName: fieldName(c.Name, c.ID), ID: c.ID, Pages: c.Pages, ReadOnly: c.Locked},
				Options:  c.Options,
				Value:    c.Value,
				Default:  c.Default,
				Editable: c.Editable,
			})
		}
		for _, l := range f.ListBoxes {
			cf := &ChoiceField{
				base:    base{FieldName: fieldName(l.Name, l.ID), ID: l.ID, Pages: l.Pages, ReadOnly: l.Locked},
				Options: l.Options,
				List:    true,
				Multi:   l.Multi,
			}
			if len(l.Values) > 0 {
				cf.Value = l.Values[0]
			}
			if len(l.Defaults) > 0 {
				cf.Default = l.Defaults[0]
			}
			fields = append(fields, cf)
		}
	}

	return NewForm(fields...), nil
}

// Encode writes the form as a single-form group. Flattened fields are
// written as locked.
func (JSONCodec) Encode(f *Form) ([]byte, error) {
	var out formJSON
	for _, fld := range f.fields {
		switch t := fld.(type) {
		case *TextField:
			if t.Date {
				out.DateFields = append(out.DateFields, dateJSON{
					Pages: t.Pages, ID: t.ID, Name: t.FieldName, Format: t.DateFormat,
					Default: t.Default, Value: t.Value, Locked: t.ReadOnly || t.locked,
				})
				continue
			}
			out.TextFields = append(out.TextFields, textJSON{
				Pages: t.Pages, ID: t.ID, Name: t.FieldName, Default: t.Default, Value: t.Value,
				Multiline: t.Multiline, Locked: t.ReadOnly || t.locked, MaxLen: t.MaxLen,
			})
		case *CheckboxField:
			out.CheckBoxes = append(out.CheckBoxes, checkJSON{
				Pages: t.Pages, ID: t.ID, Name: t.FieldName, Default: t.Default,
				Value: t.Checked, Locked: t.ReadOnly || t.locked,
			})
		case *RadioGroup:
			out.RadioButtonGroups = append(out.RadioButtonGroups, radioJSON{
				Pages: t.Pages, ID: t.ID, Name: t.FieldName, Options: t.Options,
				Default: t.Default, Value: t.Value, Locked: t.ReadOnly || t.locked,
			})
		case *ChoiceField:
			if t.List {
				l := listJSON{
					Pages: t.Pages, ID: t.ID, Name: t.FieldName, Multi: t.Multi,
					Options: t.Options, Locked: t.ReadOnly || t.locked,
				}
				if t.Value != "" {
					l.Values = []string{t.Value}
				}
				if t.Default != "" {
					l.Defaults = []string{t.Default}
				}
				out.ListBoxes = append(out.ListBoxes, l)
				continue
			}
			out.ComboBoxes = append(out.ComboBoxes, comboJSON{
				Pages: t.Pages, ID: t.ID, Name: t.FieldName, Editable: t.Editable,
				Options: t.Options, Default: t.Default, Value: t.Value, Locked: t.ReadOnly || t.locked,
			})
		}
	}

	data, err := json.MarshalIndent(formGroup{Forms: []formJSON{out}}, "", "  ")
	if err != nil {
		return nil, eris.Wrap(err, "document: encode form json")
	}
	return data, nil
}

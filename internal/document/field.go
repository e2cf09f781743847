// Package document models a fillable document's named field registry and
// reads and writes it through a Codec.
package document

import (
	"strings"
	"unicode/utf8"

	"github.com/rotisserie/eris"
)

var (
	// ErrNoForm is returned by a Codec when the document has no form.
	ErrNoForm = eris.New("document has no form")
	// ErrFlattened is returned by writes after Form.Flatten.
	ErrFlattened = eris.New("document: form is flattened")
	// ErrNoSuchOption is returned by ChoiceField.Select for an unknown label.
	ErrNoSuchOption = eris.New("document: no such option")
	// ErrNotEditable is returned by ChoiceField.SetText when the field only
	// accepts one of its options.
	ErrNotEditable = eris.New("document: choice is not editable")
)

// Field is one named entry of a form's field registry.
type Field interface {
	Name() string
	IsReadOnly() bool
	lock()
}

// base carries what every field type shares.
type base struct {
	FieldName string
	ID        string
	Pages     []int
	// ReadOnly fields accept writes but keep their value, the way viewers
	// treat protected fields.
	ReadOnly bool
	locked   bool
}

func (b *base) Name() string      { return b.FieldName }
func (b *base) IsReadOnly() bool { return b.ReadOnly }
func (b *base) lock()            { b.locked = true }

// Locked reports whether the field was flattened.
func (b *base) Locked() bool { return b.locked }

// TextField is a free-text (or date) field.
type TextField struct {
	base
	Value     string
	Default   string
	MaxLen    int
	Multiline bool
	// Date marks a date field; DateFormat is its display format.
	Date       bool
	DateFormat string
}

// NewTextField returns a writable text field.
func NewTextField(name, value string) *TextField {
	return &TextField{base: base{FieldName: name}, Value: value}
}

// Text returns the current value.
func (f *TextField) Text() string { return f.Value }

// SetText writes s. Values longer than MaxLen are truncated.
func (f *TextField) SetText(s string) error {
	if f.locked {
		return ErrFlattened
	}
	if f.ReadOnly {
		return nil
	}
	if f.MaxLen > 0 && utf8.RuneCountInString(s) > f.MaxLen {
		s = string([]rune(s)[:f.MaxLen])
	}
	f.Value = s
	return nil
}

// ChoiceField is a combo box or list box.
type ChoiceField struct {
	base
	Options  []string
	Value    string
	Default  string
	Editable bool
	// List marks a list box rather than a combo box.
	List  bool
	Multi bool
}

// NewChoiceField returns a writable combo box.
func NewChoiceField(name string, options ...string) *ChoiceField {
	return &ChoiceField{base: base{FieldName: name}, Options: options}
}

// Selected returns the current value.
func (f *ChoiceField) Selected() string { return f.Value }

// Select picks the option whose label matches, ignoring case.
func (f *ChoiceField) Select(label string) error {
	if f.locked {
		return ErrFlattened
	}
	for _, o := range f.Options {
		if strings.EqualFold(strings.TrimSpace(o), strings.TrimSpace(label)) {
			if !f.ReadOnly {
				f.Value = o
			}
			return nil
		}
	}
	return eris.Wrapf(ErrNoSuchOption, "document: %s has no option %q", f.FieldName, label)
}

// SetText assigns a raw value. Only editable combo boxes take values outside
// the option list; list boxes and fixed combo boxes refuse them with
// ErrNotEditable and keep their current value.
func (f *ChoiceField) SetText(s string) error {
	if f.locked {
		return ErrFlattened
	}
	if s != "" && !f.acceptsRaw() && !f.hasOption(s) {
		return eris.Wrapf(ErrNotEditable, "document: %s does not accept %q", f.FieldName, s)
	}
	if !f.ReadOnly {
		f.Value = s
	}
	return nil
}

func (f *ChoiceField) acceptsRaw() bool {
	return (f.Editable && !f.List) || len(f.Options) == 0
}

func (f *ChoiceField) hasOption(s string) bool {
	for _, o := range f.Options {
		if o == s {
			return true
		}
	}
	return false
}

// CheckboxField is an on/off button.
type CheckboxField struct {
	base
	Checked bool
	Default bool
}

// NewCheckboxField returns a writable checkbox.
func NewCheckboxField(name string, checked bool) *CheckboxField {
	return &CheckboxField{base: base{FieldName: name}, Checked: checked}
}

// IsChecked returns the current state.
func (f *CheckboxField) IsChecked() bool { return f.Checked }

// SetChecked sets the state.
func (f *CheckboxField) SetChecked(on bool) error {
	if f.locked {
		return ErrFlattened
	}
	if !f.ReadOnly {
		f.Checked = on
	}
	return nil
}

// RadioGroup is a set of mutually exclusive buttons. Writers do not fill it.
type RadioGroup struct {
	base
	Options []string
	Value   string
	Default string
}

// Kind is the widget capability a field exposes to a writer.
type Kind int

const (
	KindUnsupported Kind = iota
	KindText
	KindDropdown
	KindCheckbox
)

func (k Kind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindDropdown:
		return "dropdown"
	case KindCheckbox:
		return "checkbox"
	default:
		return "unsupported"
	}
}

// Widget is the tagged result of Probe. Exactly the member matching Kind
// is set.
type Widget struct {
	Kind     Kind
	Text     *TextField
	Dropdown *ChoiceField
	Checkbox *CheckboxField
}

// Probe reports the capability of f, checking text, then dropdown, then
// checkbox.
func Probe(f Field) Widget {
	switch t := f.(type) {
	case *TextField:
		return Widget{Kind: KindText, Text: t}
	case *ChoiceField:
		return Widget{Kind: KindDropdown, Dropdown: t}
	case *CheckboxField:
		return Widget{Kind: KindCheckbox, Checkbox: t}
	default:
		return Widget{Kind: KindUnsupported}
	}
}

package document

import (
	"bytes"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/rotisserie/eris"
)

// PDFCodec reads and writes AcroForm PDFs with pdfcpu. Decode exports the
// field registry as form JSON; Encode fills the original bytes from the Form
// and, when the Form was flattened, locks every field.
type PDFCodec struct{}

// Decode extracts the form of a PDF.
func (PDFCodec) Decode(src []byte) (*Form, error) {
	var buf bytes.Buffer
	if err := api.ExportFormJSON(bytes.NewReader(src), &buf, "document", nil); err != nil {
		switch {
		case isNoForm(err):
			return nil, ErrNoForm
		case isNoFields(err):
			form := NewForm()
			form.source = append([]byte(nil), src...)
			return form, nil
		}
		return nil, eris.Wrap(err, "document: export pdf form")
	}

	form, err := JSONCodec{}.Decode(buf.Bytes())
	if err != nil {
		return nil, err
	}
	form.source = append([]byte(nil), src...)
	return form, nil
}

// Encode writes the Form's values into the PDF it was decoded from.
func (PDFCodec) Encode(f *Form) ([]byte, error) {
	if len(f.source) == 0 {
		return nil, eris.New("document: form was not decoded from a pdf")
	}

	// Fill with the unlocked view so pdfcpu accepts every value; locking is a
	// separate pass below.
	data, err := JSONCodec{}.Encode(unlockedView(f))
	if err != nil {
		return nil, err
	}

	var filled bytes.Buffer
	if err := api.FillForm(bytes.NewReader(f.source), bytes.NewReader(data), &filled, nil); err != nil {
		return nil, eris.Wrap(err, "document: fill pdf form")
	}
	if !f.flattened {
		return filled.Bytes(), nil
	}

	var locked bytes.Buffer
	if err := api.LockFormFields(bytes.NewReader(filled.Bytes()), &locked, nil, nil); err != nil {
		return nil, eris.Wrap(err, "document: lock pdf form")
	}
	return locked.Bytes(), nil
}

// unlockedView shares f's fields but reports them as writable to the encoder.
func unlockedView(f *Form) *Form {
	fields := make([]Field, 0, len(f.fields))
	for _, fld := range f.fields {
		switch t := fld.(type) {
		case *TextField:
			c := *t
			c.locked, c.ReadOnly = false, false
			fields = append(fields, &c)
		case *ChoiceField:
			c := *t
			c.locked, c.ReadOnly = false, false
			fields = append(fields, &c)
		case *CheckboxField:
			c := *t
			c.locked, c.ReadOnly = false, false
			fields = append(fields, &c)
		case *RadioGroup:
			c := *t
			c.locked, c.ReadOnly = false, false
			fields = append(fields, &c)
		}
	}
	return NewForm(fields...)
}

// isNoForm matches a document without an AcroForm dictionary.
func isNoForm(err error) bool {
	return strings.Contains(strings.ToLower(err.Error()), "no form available")
}

// isNoFields matches an AcroForm whose field list is missing or empty, or
// whose fields have no widgets on any page.
func isNoFields(err error) bool {
	if eris.Is(err, api.ErrNoFormFieldsAffected) {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "no form fields available")
}

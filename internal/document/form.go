package document

// Form is an in-memory field registry in document order. It is not safe for
// concurrent use; each fill pass owns its own Form.
type Form struct {
	fields    []Field
	byName    map[string]Field
	flattened bool

	// source holds the original document bytes for codecs that re-emit them.
	source []byte
}

// NewForm builds a registry. When names repeat, the first field wins.
func NewForm(fields ...Field) *Form {
	f := &Form{byName: make(map[string]Field, len(fields))}
	for _, fld := range fields {
		if fld == nil {
			continue
		}
		if _, dup := f.byName[fld.Name()]; dup {
			continue
		}
		f.byName[fld.Name()] = fld
		f.fields = append(f.fields, fld)
	}
	return f
}

// Lookup finds a field by exact name.
func (f *Form) Lookup(name string) (Field, bool) {
	fld, ok := f.byName[name]
	return fld, ok
}

// Fields returns the fields in document order.
func (f *Form) Fields() []Field { return append([]Field(nil), f.fields...) }

// Names returns field names in document order.
func (f *Form) Names() []string {
	names := make([]string, len(f.fields))
	for i, fld := range f.fields {
		names[i] = fld.Name()
	}
	return names
}

// Len returns the number of fields.
func (f *Form) Len() int { return len(f.fields) }

// Flatten makes every field immutable. Subsequent writes fail with
// ErrFlattened.
func (f *Form) Flatten() {
	for _, fld := range f.fields {
		fld.lock()
	}
	f.flattened = true
}

// Flattened reports whether Flatten was called.
func (f *Form) Flattened() bool { return f.flattened }

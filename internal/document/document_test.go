package document

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleJSON = `{
  "header": {"source": "pfs.pdf", "version": "pdfcpu v0.9.1"},
  "forms": [
    {
      "textfield": [
        {"pages": [1], "id": "10", "name": "ApplicantName", "value": "", "multiline": false, "locked": false},
        {"pages": [1], "id": "11", "name": "AssetsCashOnHand", "value": "", "multiline": false, "locked": true},
        {"pages": [1], "id": "12", "name": "ApplicantZip", "value": "", "multiline": false, "locked": false, "maxlen": 5}
      ],
      "datefield": [
        {"pages": [1], "id": "13", "name": "StatementAsOfDate", "format": "mm/dd/yyyy", "value": "", "locked": false}
      ],
      "checkbox": [
        {"pages": [2], "id": "20", "name": "QuestionsGuarantor", "default": false, "value": false, "locked": false}
      ],
      "radiobuttongroup": [
        {"pages": [2], "id": "30", "name": "MaritalStatus", "options": ["Married", "Single"], "value": "", "locked": false}
      ],
      "combobox": [
        {"pages": [2], "id": "40", "name": "ApplicantState", "editable": false, "options": ["CA", "TX"], "value": "", "locked": false}
      ],
      "listbox": [
        {"pages": [2], "id": "50", "name": "AccountType", "multi": false, "options": ["Checking", "Savings"], "values": ["Savings"], "locked": false}
      ]
    }
  ]
}`

func decodeSample(t *testing.T) *Form {
	t.Helper()
	f, err := JSONCodec{}.Decode([]byte(sampleJSON))
	require.NoError(t, err)
	return f
}

func TestJSONCodec_Decode(t *testing.T) {
	t.Parallel()

	f := decodeSample(t)
	assert.Equal(t, []string{
		"ApplicantName", "AssetsCashOnHand", "ApplicantZip", "StatementAsOfDate",
		"QuestionsGuarantor", "MaritalStatus", "ApplicantState", "AccountType",
	}, f.Names())
	assert.Equal(t, 8, f.Len())

	fld, ok := f.Lookup("AssetsCashOnHand")
	require.True(t, ok)
	tf := fld.(*TextField)
	assert.True(t, tf.ReadOnly)
	assert.Equal(t, "11", tf.ID)

	fld, _ = f.Lookup("AccountType")
	cf := fld.(*ChoiceField)
	assert.True(t, cf.List)
	assert.Equal(t, "Savings", cf.Selected())

	_, ok = f.Lookup("applicantname")
	assert.False(t, ok, "lookup is exact")
}

func TestJSONCodec_DecodeErrors(t *testing.T) {
	t.Parallel()

	_, err := JSONCodec{}.Decode([]byte(`{"forms": []}`))
	assert.ErrorIs(t, err, ErrNoForm)

	_, err = JSONCodec{}.Decode([]byte(`{}`))
	assert.ErrorIs(t, err, ErrNoForm)

	_, err = JSONCodec{}.Decode([]byte(`not json`))
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNoForm)

	f, err := JSONCodec{}.Decode([]byte(`{"forms": [{}]}`))
	require.NoError(t, err)
	assert.Zero(t, f.Len(), "a form without fields is not a decode error")
}

func TestJSONCodec_RoundTrip(t *testing.T) {
	t.Parallel()

	f := decodeSample(t)
	fld, _ := f.Lookup("ApplicantName")
	require.NoError(t, fld.(*TextField).SetText("Jane Doe"))
	fld, _ = f.Lookup("QuestionsGuarantor")
	require.NoError(t, fld.(*CheckboxField).SetChecked(true))
	fld, _ = f.Lookup("ApplicantState")
	require.NoError(t, fld.(*ChoiceField).Select("tx"))
	f.Flatten()

	out, err := JSONCodec{}.Encode(f)
	require.NoError(t, err)

	again, err := JSONCodec{}.Decode(out)
	require.NoError(t, err)
	assert.Equal(t, f.Names(), again.Names())

	fld, _ = again.Lookup("ApplicantName")
	assert.Equal(t, "Jane Doe", fld.(*TextField).Text())
	assert.True(t, fld.(*TextField).ReadOnly, "flattened fields encode as locked")
	fld, _ = again.Lookup("QuestionsGuarantor")
	assert.True(t, fld.(*CheckboxField).IsChecked())
	fld, _ = again.Lookup("ApplicantState")
	assert.Equal(t, "TX", fld.(*ChoiceField).Selected())
	fld, _ = again.Lookup("StatementAsOfDate")
	assert.True(t, fld.(*TextField).Date)
	assert.Equal(t, "mm/dd/yyyy", fld.(*TextField).DateFormat)

	out2, err := JSONCodec{}.Encode(f)
	require.NoError(t, err)
	assert.Equal(t, out, out2, "encoding is deterministic")
}

func TestProbe(t *testing.T) {
	t.Parallel()

	f := decodeSample(t)
	tests := []struct {
		name string
		want Kind
	}{
		{"ApplicantName", KindText},
		{"StatementAsOfDate", KindText},
		{"ApplicantState", KindDropdown},
		{"AccountType", KindDropdown},
		{"QuestionsGuarantor", KindCheckbox},
		{"MaritalStatus", KindUnsupported},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			fld, ok := f.Lookup(tt.name)
			require.True(t, ok)
			w := Probe(fld)
			assert.Equal(t, tt.want, w.Kind)
			switch tt.want {
			case KindText:
				assert.NotNil(t, w.Text)
			case KindDropdown:
				assert.NotNil(t, w.Dropdown)
			case KindCheckbox:
				assert.NotNil(t, w.Checkbox)
			}
		})
	}
	assert.Equal(t, "unsupported", KindUnsupported.String())
}

func TestTextField_SetText(t *testing.T) {
	t.Parallel()

	t.Run("writable", func(t *testing.T) {
		t.Parallel()
		f := NewTextField("a", "old")
		require.NoError(t, f.SetText("new"))
		assert.Equal(t, "new", f.Text())
	})

	t.Run("read only keeps value", func(t *testing.T) {
		t.Parallel()
		f := NewTextField("a", "old")
		f.ReadOnly = true
		require.NoError(t, f.SetText("new"))
		assert.Equal(t, "old", f.Text())
	})

	t.Run("max length truncates", func(t *testing.T) {
		t.Parallel()
		f := NewTextField("zip", "")
		f.MaxLen = 5
		require.NoError(t, f.SetText("78701-1234"))
		assert.Equal(t, "78701", f.Text())
	})

	t.Run("flattened rejects writes", func(t *testing.T) {
		t.Parallel()
		f := NewTextField("a", "old")
		form := NewForm(f)
		form.Flatten()
		assert.True(t, form.Flattened())
		assert.True(t, f.Locked())
		assert.ErrorIs(t, f.SetText("new"), ErrFlattened)
		assert.Equal(t, "old", f.Text())
	})
}

func TestChoiceField(t *testing.T) {
	t.Parallel()

	f := NewChoiceField("state", "CA", "TX")
	require.NoError(t, f.Select(" ca "))
	assert.Equal(t, "CA", f.Selected())

	err := f.Select("Texas")
	assert.ErrorIs(t, err, ErrNoSuchOption)
	assert.Equal(t, "CA", f.Selected())

	err = f.SetText("Texas")
	assert.ErrorIs(t, err, ErrNotEditable)
	assert.Equal(t, "CA", f.Selected())

	require.NoError(t, f.SetText("TX"))
	assert.Equal(t, "TX", f.Selected())
	require.NoError(t, f.SetText(""))
	assert.Empty(t, f.Selected())

	f.Editable = true
	require.NoError(t, f.SetText("Texas"))
	assert.Equal(t, "Texas", f.Selected())

	list := NewChoiceField("accounts", "Checking", "Savings")
	list.List, list.Editable = true, true
	assert.ErrorIs(t, list.SetText("Brokerage"), ErrNotEditable)
}

func TestCheckboxField(t *testing.T) {
	t.Parallel()

	f := NewCheckboxField("c", false)
	require.NoError(t, f.SetChecked(true))
	assert.True(t, f.IsChecked())

	NewForm(f).Flatten()
	assert.ErrorIs(t, f.SetChecked(false), ErrFlattened)
}

func TestNewForm_FirstNameWins(t *testing.T) {
	t.Parallel()

	a := NewTextField("x", "first")
	b := NewTextField("x", "second")
	f := NewForm(a, nil, b)
	assert.Equal(t, 1, f.Len())
	got, _ := f.Lookup("x")
	assert.Same(t, a, got)
}

func TestDetectCodec(t *testing.T) {
	t.Parallel()

	assert.IsType(t, PDFCodec{}, DetectCodec([]byte("%PDF-1.7\n...")))
	assert.IsType(t, PDFCodec{}, DetectCodec([]byte("\n%PDF-1.4")))
	assert.IsType(t, JSONCodec{}, DetectCodec([]byte(sampleJSON)))
}

func TestPDFCodec_Errors(t *testing.T) {
	t.Parallel()

	_, err := PDFCodec{}.Encode(NewForm(NewTextField("a", "")))
	assert.ErrorContains(t, err, "not decoded from a pdf")

	_, err = PDFCodec{}.Decode([]byte("%PDF-1.7 truncated"))
	assert.Error(t, err)
}

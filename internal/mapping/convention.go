package mapping

import (
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Naming styles for rendered output field names.
const (
	StyleCamel  = "camel"  // assetsCashOnHand
	StylePascal = "pascal" // AssetsCashOnHand
	StyleSnake  = "snake"  // assets_cash_on_hand
	StyleLabel  = "label"  // Assets Cash On Hand
)

// Row/slot index placement.
const (
	IndexSuffix  = "suffix"  // NotesPayableNoteholder1
	IndexBracket = "bracket" // notes_payable_noteholder[0]
)

// Convention turns a rule's logical key into the concrete field name a
// document edition uses.
type Convention struct {
	Style  string `yaml:"style" json:"style"`
	Prefix string `yaml:"prefix,omitempty" json:"prefix,omitempty"`
	Index  string `yaml:"index" json:"index"`
	Base   int    `yaml:"base" json:"base"`
}

func (c Convention) validate() error {
	switch c.Style {
	case StyleCamel, StylePascal, StyleSnake, StyleLabel:
	default:
		return eris.Errorf("mapping: unknown naming style %q", c.Style)
	}
	switch c.Index {
	case IndexSuffix, IndexBracket:
	default:
		return eris.Errorf("mapping: unknown index placement %q", c.Index)
	}
	if c.Base != 0 && c.Base != 1 {
		return eris.Errorf("mapping: index base must be 0 or 1, got %d", c.Base)
	}
	return nil
}

// Name renders key. A negative index means the rule is not indexed.
func (c Convention) Name(key string, index int) string {
	words := strings.FieldsFunc(key, func(r rune) bool {
		return r == '.' || r == '_' || r == '-' || r == ' '
	})

	// Casers carry state, so each call gets its own.
	title := cases.Title(language.Und, cases.NoLower)

	var name string
	switch c.Style {
	case StyleSnake:
		lower := make([]string, len(words))
		for i, w := range words {
			lower[i] = strings.ToLower(w)
		}
		name = strings.Join(lower, "_")
	case StyleLabel:
		titled := make([]string, len(words))
		for i, w := range words {
			titled[i] = title.String(w)
		}
		name = strings.Join(titled, " ")
	default:
		var b strings.Builder
		for i, w := range words {
			if i == 0 && c.Style == StyleCamel {
				b.WriteString(strings.ToLower(w[:1]) + w[1:])
				continue
			}
			b.WriteString(title.String(w))
		}
		name = b.String()
	}
	name = c.Prefix + name

	if index < 0 {
		return name
	}
	n := strconv.Itoa(index + c.Base)
	switch {
	case c.Index == IndexBracket:
		return name + "[" + n + "]"
	case c.Style == StyleLabel:
		return name + " " + n
	default:
		return name + n
	}
}

// Package dataset reads financial data sets from disk.
package dataset

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/pfs-cli/internal/model"
)

// Load reads a FinancialData from a JSON or YAML file, chosen by extension.
func Load(path string) (*model.FinancialData, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "dataset: read %s", path)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return ParseYAML(raw)
	case ".json", "":
		return ParseJSON(raw)
	default:
		return nil, eris.Errorf("dataset: unsupported file type %q", filepath.Ext(path))
	}
}

// ParseJSON decodes a FinancialData. Numbers stay float64, matching what the
// resolvers expect from decoded JSON.
func ParseJSON(raw []byte) (*model.FinancialData, error) {
	var d model.FinancialData
	dec := json.NewDecoder(bytes.NewReader(raw))
	if err := dec.Decode(&d); err != nil {
		return nil, eris.Wrap(err, "dataset: decode json")
	}
	return normalize(&d), nil
}

// ParseYAML decodes a FinancialData from YAML.
func ParseYAML(raw []byte) (*model.FinancialData, error) {
	var d model.FinancialData
	if err := yaml.Unmarshal(raw, &d); err != nil {
		return nil, eris.Wrap(err, "dataset: decode yaml")
	}
	d.Fields = jsonMap(d.Fields)
	for _, sch := range d.Schedules {
		if sch == nil {
			continue
		}
		for _, row := range sch.Rows {
			for k, v := range row {
				row[k] = jsonValue(v)
			}
		}
	}
	return normalize(&d), nil
}

func normalize(d *model.FinancialData) *model.FinancialData {
	if d.Fields == nil {
		d.Fields = map[string]any{}
	}
	if d.Schedules == nil {
		d.Schedules = map[string]*model.Schedule{}
	}
	return d
}

// jsonMap rewrites YAML-decoded values so nested maps and integers look the
// same as decoded JSON.
func jsonMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	for k, v := range m {
		m[k] = jsonValue(v)
	}
	return m
}

func jsonValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return jsonMap(t)
	case []any:
		for i := range t {
			t[i] = jsonValue(t[i])
		}
		return t
	case int:
		return float64(t)
	case int64:
		return float64(t)
	default:
		return v
	}
}

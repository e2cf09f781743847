package dataset

import (
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/pfs-cli/internal/model"
)

// ImportOptions selects the sheet a schedule is read from.
type ImportOptions struct {
	SheetName  string // overrides SheetIndex when set
	SheetIndex int
}

// ImportScheduleXLSX reads one schedule from a workbook. The first row holds
// column names; every following non-empty row becomes a schedule row.
// Numeric cells become float64, everything else a trimmed string.
func ImportScheduleXLSX(path string, capacity int, opts ImportOptions) (*model.Schedule, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "dataset: open workbook")
	}
	sheet, err := getSheet(f, opts)
	if err != nil {
		return nil, err
	}
	if len(sheet.Rows) == 0 {
		return nil, eris.Errorf("dataset: sheet %q is empty", sheet.Name)
	}

	header := rowToStrings(sheet.Rows[0])
	sched := &model.Schedule{Capacity: capacity}
	for _, r := range sheet.Rows[1:] {
		row := make(model.Row)
		for j, cell := range r.Cells {
			if j >= len(header) || header[j] == "" {
				continue
			}
			if v, ok := cellValue(cell); ok {
				row[header[j]] = v
			}
		}
		if len(row) == 0 {
			continue
		}
		sched.Rows = append(sched.Rows, row)
	}
	return sched, nil
}

// MergeSchedule stores s under id, replacing any previous schedule.
func MergeSchedule(d *model.FinancialData, id string, s *model.Schedule) {
	if d.Schedules == nil {
		d.Schedules = map[string]*model.Schedule{}
	}
	d.Schedules[id] = s
}

func getSheet(f *xlsx.File, opts ImportOptions) (*xlsx.Sheet, error) {
	if opts.SheetName != "" {
		sheet, ok := f.Sheet[opts.SheetName]
		if !ok {
			return nil, eris.Errorf("dataset: sheet %q not found", opts.SheetName)
		}
		return sheet, nil
	}
	if opts.SheetIndex < 0 || opts.SheetIndex >= len(f.Sheets) {
		return nil, eris.Errorf("dataset: sheet index %d out of range (workbook has %d sheets)", opts.SheetIndex, len(f.Sheets))
	}
	return f.Sheets[opts.SheetIndex], nil
}

func rowToStrings(row *xlsx.Row) []string {
	cells := make([]string, len(row.Cells))
	for j, cell := range row.Cells {
		cells[j] = strings.TrimSpace(cell.String())
	}
	return cells
}

func cellValue(cell *xlsx.Cell) (any, bool) {
	s := strings.TrimSpace(cell.String())
	if s == "" {
		return nil, false
	}
	if cell.Type() == xlsx.CellTypeNumeric {
		if f, err := strconv.ParseFloat(cell.Value, 64); err == nil {
			return f, true
		}
	}
	return s, true
}

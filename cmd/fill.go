package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/pfs-cli/internal/audit"
	"github.com/sells-group/pfs-cli/internal/dataset"
	"github.com/sells-group/pfs-cli/internal/model"
	"github.com/sells-group/pfs-cli/internal/store"
)

var (
	fillTemplate     string
	fillData         string
	fillSnapshot     string
	fillEdition      string
	fillOut          string
	fillReport       string
	fillReportFormat string
	fillRules        string
	fillSave         bool
	fillXLSX         []string
)

var fillCmd = &cobra.Command{
	Use:   "fill",
	Short: "Fill one form from a data set",
	Long: "Fills a blank form template from a financial data set. The data comes from --data (JSON or YAML) " +
		"or from a stored snapshot. Every field gets an outcome in the report; only a form without fields aborts.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("fill"); err != nil {
			return err
		}
		if fillData == "" && fillSnapshot == "" {
			return eris.New("one of --data or --snapshot is required")
		}

		env, err := newFillEnv(cfg, fillRules)
		if err != nil {
			return err
		}
		defer env.Close()

		var st store.Store
		if fillSave || fillSnapshot != "" {
			st, err = initStore(ctx)
			if err != nil {
				return err
			}
			if fillSave {
				env.Store = st
			} else {
				defer st.Close() //nolint:errcheck
			}
		}

		data, err := loadFillData(cmd, st)
		if err != nil {
			return err
		}

		out, err := env.runFill(ctx, fillRequest{
			TemplateID: fillTemplate,
			Edition:    fillEdition,
			SnapshotID: fillSnapshot,
			Data:       data,
		})
		if err != nil {
			return err
		}

		dest := fillOut
		if dest == "" {
			dest = defaultOutPath(fillTemplate, out.Result.Document)
		}
		if err := os.WriteFile(dest, out.Result.Document, 0o644); err != nil {
			return eris.Wrap(err, "write filled document")
		}

		report := out.Result.Report(fillTemplate, out.Edition)
		format := fillReportFormat
		if format == "" {
			format = cfg.Fill.ReportFormat
		}
		if err := writeReport(fillReport, report, format); err != nil {
			return err
		}

		zap.L().Info("fill complete",
			zap.String("out", dest),
			zap.String("status", string(report.Status)),
			zap.String("run_id", out.Run.ID),
		)
		fmt.Fprintf(os.Stderr, "%s: %d filled, %d blank, %d missing, %d failed (%s)\n",
			dest, report.Summary.Filled, report.Summary.Blank, report.Summary.Missing, report.Summary.Failed, report.Status)
		return nil
	},
}

func init() {
	f := fillCmd.Flags()
	f.StringVar(&fillTemplate, "template", "", "template id or path to a blank form")
	f.StringVar(&fillData, "data", "", "financial data file (.json, .yaml)")
	f.StringVar(&fillSnapshot, "snapshot", "", "stored snapshot id to fill from")
	f.StringVar(&fillEdition, "edition", "", "mapping edition (default from template source or config)")
	f.StringVar(&fillOut, "out", "", "output path (default <template>-filled.<ext>)")
	f.StringVar(&fillReport, "report", "", "report path (default stdout, '-' for stdout)")
	f.StringVar(&fillReportFormat, "report-format", "", "report format: json or xlsx (default from config)")
	f.StringVar(&fillRules, "rules", "", "mapping rule asset (default embedded)")
	f.BoolVar(&fillSave, "save", false, "record the pass in the store")
	f.StringArrayVar(&fillXLSX, "schedule-xlsx", nil, "import a schedule from a workbook: <schedule>=<path>[#sheet]")
	_ = fillCmd.MarkFlagRequired("template")
	rootCmd.AddCommand(fillCmd)
}

// loadFillData reads --data or --snapshot and applies --schedule-xlsx imports.
func loadFillData(cmd *cobra.Command, st store.Store) (*model.FinancialData, error) {
	var data *model.FinancialData
	if fillSnapshot != "" {
		snap, err := st.GetSnapshot(cmd.Context(), fillSnapshot)
		if err != nil {
			return nil, eris.Wrapf(err, "load snapshot %s", fillSnapshot)
		}
		data = &snap.Data
	} else {
		d, err := dataset.Load(fillData)
		if err != nil {
			return nil, err
		}
		data = d
	}

	for _, arg := range fillXLSX {
		id, path, sheet, err := parseScheduleImport(arg)
		if err != nil {
			return nil, err
		}
		capacity := 0
		if existing := data.Schedule(id); existing != nil {
			capacity = existing.Capacity
		}
		s, err := dataset.ImportScheduleXLSX(path, capacity, dataset.ImportOptions{SheetName: sheet})
		if err != nil {
			return nil, err
		}
		dataset.MergeSchedule(data, id, s)
	}
	return data, nil
}

// parseScheduleImport splits "<schedule>=<path>[#sheet]".
func parseScheduleImport(s string) (id, path, sheet string, err error) {
	id, rest, ok := strings.Cut(s, "=")
	if !ok || id == "" || rest == "" {
		return "", "", "", eris.Errorf("invalid --schedule-xlsx %q, want <schedule>=<path>[#sheet]", s)
	}
	path, sheet, _ = strings.Cut(rest, "#")
	return id, path, sheet, nil
}

func defaultOutPath(templateID string, doc []byte) string {
	base := filepath.Base(templateID)
	return strings.TrimSuffix(base, filepath.Ext(base)) + "-filled" + documentExt(doc)
}

// writeReport writes the report to path, or stdout for "" and "-".
func writeReport(path string, r audit.Report, format string) error {
	var w io.Writer = os.Stdout
	if path != "" && path != "-" {
		f, err := os.Create(path)
		if err != nil {
			return eris.Wrap(err, "create report file")
		}
		defer f.Close() //nolint:errcheck
		w = f
	}
	return audit.Write(w, r, format)
}

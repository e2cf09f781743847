package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync/atomic"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/pfs-cli/internal/audit"
	"github.com/sells-group/pfs-cli/internal/dataset"
	"github.com/sells-group/pfs-cli/internal/model"
)

var (
	batchTemplate     string
	batchEdition      string
	batchOutDir       string
	batchReportFormat string
	batchConcurrency  int
	batchSave         bool
)

var batchCmd = &cobra.Command{
	Use:   "batch <data-file>...",
	Short: "Fill one template from many data sets",
	Long:  "Runs one independent fill pass per data file with bounded concurrency. A failing file is logged and never aborts the batch.",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("batch"); err != nil {
			return err
		}

		env, err := newFillEnv(cfg, "")
		if err != nil {
			return err
		}
		defer env.Close()

		if batchSave {
			st, err := initStore(ctx)
			if err != nil {
				return err
			}
			env.Store = st
		}

		if err := os.MkdirAll(batchOutDir, 0o755); err != nil {
			return eris.Wrap(err, "create output dir")
		}

		concurrency := batchConcurrency
		if concurrency <= 0 {
			concurrency = cfg.Batch.MaxConcurrent
		}
		format := batchReportFormat
		if format == "" {
			format = cfg.Fill.ReportFormat
		}

		paths, stems := outputStems(args)
		_, err = processBatch(ctx, paths, concurrency, func(ctx context.Context, path string) (string, error) {
			return fillOne(ctx, env, path, stems[path], format)
		})
		return err
	},
}

func init() {
	f := batchCmd.Flags()
	f.StringVar(&batchTemplate, "template", "", "template id or path to a blank form")
	f.StringVar(&batchEdition, "edition", "", "mapping edition (default from template source or config)")
	f.StringVar(&batchOutDir, "out-dir", "filled", "directory for filled documents and reports")
	f.StringVar(&batchReportFormat, "report-format", "", "report format: json or xlsx (default from config)")
	f.IntVar(&batchConcurrency, "concurrency", 0, "max concurrent passes (default from config)")
	f.BoolVar(&batchSave, "save", false, "record every pass in the store")
	_ = batchCmd.MarkFlagRequired("template")
	rootCmd.AddCommand(batchCmd)
}

// fillFunc fills one data file and returns the run status.
type fillFunc func(ctx context.Context, path string) (string, error)

// batchResult counts how a batch went.
type batchResult struct {
	Succeeded int64
	Failed    int64
	ZeroFill  int64
}

// processBatch runs fn for every path with at most concurrency passes in
// flight. Individual failures are logged and counted, never returned.
func processBatch(ctx context.Context, paths []string, concurrency int, fn fillFunc) (batchResult, error) {
	if len(paths) == 0 {
		zap.L().Info("no data files given")
		return batchResult{}, nil
	}
	if concurrency < 1 {
		concurrency = 1
	}

	zap.L().Info("processing batch",
		zap.Int("files", len(paths)),
		zap.Int("concurrency", concurrency),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	var succeeded, failed, zero atomic.Int64

	for _, path := range paths {
		g.Go(func() error {
			log := zap.L().With(zap.String("data", path))

			status, err := fn(gctx, path)
			if err != nil {
				failed.Add(1)
				log.Error("fill failed", zap.Error(err))
				return nil // don't abort batch on individual failure
			}

			succeeded.Add(1)
			if status == string(model.RunStatusZeroFilled) {
				zero.Add(1)
			}
			log.Info("fill complete", zap.String("status", status))
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return batchResult{}, eris.Wrap(err, "batch processing")
	}

	res := batchResult{Succeeded: succeeded.Load(), Failed: failed.Load(), ZeroFill: zero.Load()}
	zap.L().Info("batch complete",
		zap.Int64("succeeded", res.Succeeded),
		zap.Int64("failed", res.Failed),
		zap.Int64("zero_filled", res.ZeroFill),
	)
	return res, nil
}

// outputStems drops repeated paths and names every remaining input's outputs
// after its base name. Inputs sharing a base name get -2, -3 and so on in
// argument order, so no two passes write the same file.
func outputStems(paths []string) ([]string, map[string]string) {
	stems := make(map[string]string, len(paths))
	used := make(map[string]bool, len(paths))
	unique := make([]string, 0, len(paths))
	for _, p := range paths {
		if _, seen := stems[p]; seen {
			continue
		}
		base := strings.TrimSuffix(filepath.Base(p), filepath.Ext(p))
		stem := base
		for n := 2; used[stem]; n++ {
			stem = fmt.Sprintf("%s-%d", base, n)
		}
		used[stem] = true
		stems[p] = stem
		unique = append(unique, p)
	}
	return unique, stems
}

// fillOne runs one pass for a data file and writes its document and report
// next to each other in the output dir, named after stem.
func fillOne(ctx context.Context, env *fillEnv, path, stem, format string) (string, error) {
	data, err := dataset.Load(path)
	if err != nil {
		return "", err
	}

	out, err := env.runFill(ctx, fillRequest{
		TemplateID: batchTemplate,
		Edition:    batchEdition,
		Data:       data,
	})
	if err != nil {
		return "", err
	}

	docPath := filepath.Join(batchOutDir, stem+"-filled"+documentExt(out.Result.Document))
	if err := os.WriteFile(docPath, out.Result.Document, 0o644); err != nil {
		return "", eris.Wrap(err, "write filled document")
	}

	ext := ".json"
	if format == audit.FormatXLSX {
		ext = ".xlsx"
	}
	report := out.Result.Report(batchTemplate, out.Edition)
	if err := writeReport(filepath.Join(batchOutDir, stem+"-report"+ext), report, format); err != nil {
		return "", err
	}
	return string(report.Status), nil
}

// documentExt picks the extension of a filled document from its bytes.
func documentExt(b []byte) string {
	if strings.HasPrefix(string(b[:min(len(b), 5)]), "%PDF-") {
		return ".pdf"
	}
	return ".json"
}

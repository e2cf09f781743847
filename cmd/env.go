package main

import (
	"context"
	"errors"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/pfs-cli/internal/config"
	"github.com/sells-group/pfs-cli/internal/fill"
	"github.com/sells-group/pfs-cli/internal/format"
	"github.com/sells-group/pfs-cli/internal/mapping"
	"github.com/sells-group/pfs-cli/internal/model"
	"github.com/sells-group/pfs-cli/internal/monitoring"
	"github.com/sells-group/pfs-cli/internal/resilience"
	"github.com/sells-group/pfs-cli/internal/store"
	"github.com/sells-group/pfs-cli/internal/template"
)

// fillEnv holds everything a fill pass needs. Store is nil when passes are
// not recorded.
type fillEnv struct {
	Rules     *mapping.RuleSet
	Templates *template.Registry
	Engine    *fill.Engine
	Alerter   *monitoring.Alerter
	Store     store.Store
	Edition   string
}

// Close releases the store.
func (e *fillEnv) Close() {
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

// newFillEnv builds a fillEnv from c. The rule set comes from rulesPath when
// set and from the embedded asset otherwise.
func newFillEnv(c *config.Config, rulesPath string) (*fillEnv, error) {
	var (
		rs  *mapping.RuleSet
		err error
	)
	if rulesPath != "" {
		rs, err = mapping.Load(rulesPath)
	} else {
		rs, err = mapping.Default()
	}
	if err != nil {
		return nil, eris.Wrap(err, "load mapping rules")
	}

	retry := resilience.RetryFromConfig(c.Retry)
	breakers := resilience.NewBreakers(resilience.BreakerFromConfig(c.Circuit))

	return &fillEnv{
		Rules:     rs,
		Templates: template.NewRegistry(c.Templates, retry, template.WithBreakers(breakers)),
		Engine: fill.New(
			fill.WithFormatter(format.New(c.Fill.Currency)),
			fill.WithCanary(c.Fill.Canary),
		),
		Alerter: monitoring.NewAlerter(c.Monitoring),
		Edition: c.Fill.DefaultEdition,
	}, nil
}

// initStore opens and migrates the configured store.
func initStore(ctx context.Context) (store.Store, error) {
	if err := cfg.Validate("store"); err != nil {
		return nil, err
	}
	st, err := store.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}
	return st, nil
}

// fillRequest is one pass to run.
type fillRequest struct {
	TemplateID string
	Edition    string
	SnapshotID string
	Data       *model.FinancialData
	// Confined limits TemplateID to configured ids and names inside the
	// template dir.
	Confined bool
}

// fillOutput is a finished pass. Result is nil when the pass aborted on a
// structural error; Run is always set.
type fillOutput struct {
	Result  *fill.Result
	Edition string
	Run     model.FillRun
}

// runFill resolves the template, picks the edition, runs the pass and records
// it. A structural error is returned after the run has been recorded.
func (e *fillEnv) runFill(ctx context.Context, req fillRequest) (*fillOutput, error) {
	resolveTemplate := e.Templates.Resolve
	if req.Confined {
		resolveTemplate = e.Templates.ResolveConfined
	}
	tmpl, err := resolveTemplate(ctx, req.TemplateID)
	if err != nil {
		return nil, err
	}

	edition := req.Edition
	if edition == "" {
		edition = tmpl.Edition
	}
	if edition == "" {
		edition = e.Edition
	}
	table, err := e.Rules.Table(edition)
	if err != nil {
		return nil, err
	}

	log := zap.L().With(
		zap.String("template", req.TemplateID),
		zap.String("edition", edition),
	)
	log.Info("fill: starting pass", zap.String("location", tmpl.Location), zap.Int("mappings", table.Len()))

	out := &fillOutput{
		Edition: edition,
		Run: model.FillRun{
			SnapshotID: req.SnapshotID,
			TemplateID: req.TemplateID,
			Edition:    edition,
		},
	}

	res, fillErr := e.Engine.Fill(ctx, tmpl.Bytes, req.Data, table)
	var structural *fill.StructuralError
	switch {
	case fillErr == nil:
		out.Result = res
		out.Run.Status = res.Summary.RunStatus()
		out.Run.Filled = res.Summary.Filled
		out.Run.Blank = res.Summary.Blank
		out.Run.Missing = res.Summary.Missing
		out.Run.Failed = res.Summary.Failed
		out.Run.Outcomes = res.Outcomes
	case errors.As(fillErr, &structural):
		out.Run.Status = model.RunStatusStructural
		out.Run.Error = structural.Error()
	default:
		return nil, fillErr
	}

	e.record(ctx, &out.Run)

	if out.Run.Status == model.RunStatusZeroFilled {
		info := monitoring.RunInfo{
			RunID:      out.Run.ID,
			TemplateID: req.TemplateID,
			Edition:    edition,
			Total:      res.Summary.Total,
			Missing:    res.Summary.Missing,
		}
		if res.Canary != nil {
			info.CanaryVerdict = string(res.Canary.Verdict)
		}
		if err := e.Alerter.ZeroFill(ctx, info); err != nil {
			log.Warn("fill: zero-fill alert failed", zap.Error(err))
		}
	}

	if fillErr != nil {
		return out, fillErr
	}
	return out, nil
}

// record saves the run. A store failure never fails the pass.
func (e *fillEnv) record(ctx context.Context, run *model.FillRun) {
	if e.Store == nil {
		return
	}
	if err := e.Store.SaveFillRun(ctx, run); err != nil {
		zap.L().Warn("fill: failed to record run",
			zap.String("template", run.TemplateID),
			zap.Error(err),
		)
	}
}

// Package fill runs one fill pass: it loads a document, writes every mapping
// of a table into it, flattens it and serializes the result.
package fill

import (
	"context"
	"fmt"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/pfs-cli/internal/audit"
	"github.com/sells-group/pfs-cli/internal/document"
	"github.com/sells-group/pfs-cli/internal/format"
	"github.com/sells-group/pfs-cli/internal/mapping"
	"github.com/sells-group/pfs-cli/internal/model"
	"github.com/sells-group/pfs-cli/internal/resolve"
)

// State is a step of a fill pass.
type State string

const (
	StateIdle                    State = "idle"
	StateLoadingDocument         State = "loading_document"
	StateValidatingFieldRegistry State = "validating_field_registry"
	StateFilling                 State = "filling"
	StateFlattening              State = "flattening"
	StateSerialized              State = "serialized"

	// Fatal states reached before any field is touched.
	StateDocumentHasNoForm   State = "document_has_no_form"
	StateDocumentHasNoFields State = "document_has_no_fields"
)

var (
	// ErrNoForm means the document exposes no field registry at all.
	ErrNoForm = eris.New("document has no form")
	// ErrNoFields means the registry exists but is empty.
	ErrNoFields = eris.New("document has no fillable fields")
)

// StructuralError aborts a pass before filling starts.
type StructuralError struct {
	State State
	Err   error
}

func (e *StructuralError) Error() string {
	return fmt.Sprintf("fill: %s: %v", e.State, e.Err)
}

func (e *StructuralError) Unwrap() error { return e.Err }

// Result is the outcome of a completed pass.
type Result struct {
	Document       []byte
	Outcomes       []model.FillOutcome
	Summary        audit.Summary
	Reconciliation audit.Reconciliation
	// Canary is set when the pass filled nothing and the canary ran.
	Canary *audit.Canary
	States []State
}

// Report builds the machine-readable report for r.
func (r *Result) Report(templateID, edition string) audit.Report {
	return audit.Report{
		TemplateID:     templateID,
		Edition:        edition,
		Status:         r.Summary.RunStatus(),
		Summary:        r.Summary,
		Reconciliation: r.Reconciliation,
		Canary:         r.Canary,
		Outcomes:       r.Outcomes,
	}
}

// Engine runs fill passes. An Engine holds no per-pass state, so one Engine
// may run many passes concurrently as long as each has its own source bytes.
type Engine struct {
	resolver  *resolve.Resolver
	formatter *format.Formatter
	codec     document.Codec
	canary    bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithCodec fixes the document codec. By default it is detected per pass.
func WithCodec(c document.Codec) Option {
	return func(e *Engine) { e.codec = c }
}

// WithFormatter replaces the default USD formatter.
func WithFormatter(f *format.Formatter) Option {
	return func(e *Engine) { e.formatter = f }
}

// WithCanary toggles the zero-fill canary. It is on by default.
func WithCanary(on bool) Option {
	return func(e *Engine) { e.canary = on }
}

// New returns an Engine.
func New(opts ...Option) *Engine {
	e := &Engine{
		resolver:  resolve.New(),
		formatter: format.New(""),
		canary:    true,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// pass tracks one run through the state machine.
type pass struct {
	states []State
}

func (p *pass) enter(s State) { p.states = append(p.states, s) }

// Fill runs one pass over src. Only structural problems and cancellation are
// returned as errors; every per-field problem is recorded in the outcomes.
// No document bytes are returned unless the pass reached the serialized
// state.
func (e *Engine) Fill(ctx context.Context, src []byte, data *model.FinancialData, table *mapping.Table) (*Result, error) {
	if table == nil {
		return nil, eris.New("fill: no mapping table")
	}
	p := &pass{states: []State{StateIdle}}
	log := zap.L().With(zap.String("edition", table.Edition.ID))

	p.enter(StateLoadingDocument)
	codec := e.codec
	if codec == nil {
		codec = document.DetectCodec(src)
	}
	form, err := codec.Decode(src)
	if err != nil {
		if eris.Is(err, document.ErrNoForm) {
			p.enter(StateDocumentHasNoForm)
			return nil, &StructuralError{State: StateDocumentHasNoForm, Err: ErrNoForm}
		}
		return nil, eris.Wrap(err, "fill: load document")
	}

	p.enter(StateValidatingFieldRegistry)
	if form.Len() == 0 {
		p.enter(StateDocumentHasNoFields)
		return nil, &StructuralError{State: StateDocumentHasNoFields, Err: ErrNoFields}
	}
	if err := ctx.Err(); err != nil {
		return nil, eris.Wrap(err, "fill: cancelled before filling")
	}

	p.enter(StateFilling)
	mappings := table.Mappings()
	outcomes := make([]model.FillOutcome, 0, len(mappings))
	for _, m := range mappings {
		if err := ctx.Err(); err != nil {
			return nil, eris.Wrap(err, "fill: cancelled while filling")
		}
		o := e.apply(form, m, data)
		if o.Status != model.StatusFilled {
			log.Debug("fill: field not filled",
				zap.String("field", o.FieldName),
				zap.String("status", string(o.Status)),
				zap.String("detail", o.Detail),
			)
		}
		outcomes = append(outcomes, o)
	}

	res := &Result{
		Outcomes:       outcomes,
		Summary:        audit.Summarize(outcomes),
		Reconciliation: audit.Reconcile(table.Names(), form.Names()),
	}
	if res.Summary.ZeroFill() && e.canary {
		c := audit.RunCanary(form)
		res.Canary = &c
	}

	p.enter(StateFlattening)
	form.Flatten()

	if err := ctx.Err(); err != nil {
		return nil, eris.Wrap(err, "fill: cancelled before serializing")
	}
	out, err := codec.Encode(form)
	if err != nil {
		return nil, eris.Wrap(err, "fill: serialize document")
	}
	p.enter(StateSerialized)
	p.enter(StateIdle)

	res.Document = out
	res.States = p.states

	fields := []zap.Field{
		zap.Int("total", res.Summary.Total),
		zap.Int("filled", res.Summary.Filled),
		zap.Int("blank", res.Summary.Blank),
		zap.Int("missing", res.Summary.Missing),
		zap.Int("failed", res.Summary.Failed),
	}
	switch {
	case res.Summary.ZeroFill():
		if res.Canary != nil {
			fields = append(fields, zap.String("canary_verdict", string(res.Canary.Verdict)))
		}
		log.Error("fill: pass filled zero fields, mapping and document likely disagree", fields...)
	case res.Summary.HasWarnings():
		log.Warn("fill: pass complete with warnings", fields...)
	default:
		log.Info("fill: pass complete", fields...)
	}
	return res, nil
}

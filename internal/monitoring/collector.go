package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/pfs-cli/internal/model"
	"github.com/sells-group/pfs-cli/internal/store"
)

// Metrics summarizes the most recent fill runs.
type Metrics struct {
	Total              int            `json:"total"`
	Complete           int            `json:"complete"`
	Warnings           int            `json:"warnings"`
	ZeroFilled         int            `json:"zero_filled"`
	Structural         int            `json:"structural"`
	ZeroFillRate       float64        `json:"zero_fill_rate"`
	ZeroFillByTemplate map[string]int `json:"zero_fill_by_template,omitempty"`
	CollectedAt        time.Time      `json:"collected_at"`
}

// RunLister is the part of the store the collector reads.
type RunLister interface {
	ListFillRuns(ctx context.Context, f store.RunFilter) ([]model.FillRun, error)
}

// Collector gathers Metrics from stored fill runs.
type Collector struct {
	runs RunLister
}

// NewCollector returns a Collector.
func NewCollector(runs RunLister) *Collector {
	return &Collector{runs: runs}
}

// Collect summarizes the last n runs.
func (c *Collector) Collect(ctx context.Context, n int) (*Metrics, error) {
	runs, err := c.runs.ListFillRuns(ctx, store.RunFilter{Limit: n})
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list fill runs")
	}

	m := &Metrics{
		Total:              len(runs),
		ZeroFillByTemplate: make(map[string]int),
		CollectedAt:        time.Now().UTC(),
	}
	for _, r := range runs {
		switch r.Status {
		case model.RunStatusComplete:
			m.Complete++
		case model.RunStatusWarnings:
			m.Warnings++
		case model.RunStatusZeroFilled:
			m.ZeroFilled++
			m.ZeroFillByTemplate[r.TemplateID]++
		case model.RunStatusStructural:
			m.Structural++
		}
	}
	if m.Total > 0 {
		m.ZeroFillRate = float64(m.ZeroFilled) / float64(m.Total)
	}
	return m, nil
}

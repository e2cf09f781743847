package monitoring

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/pfs-cli/internal/config"
)

const (
	defaultCheckInterval = 5 * time.Minute
	defaultLookbackRuns  = 100
)

// Checker evaluates recent fill runs on an interval and posts the alerts
// they raise.
type Checker struct {
	collector *Collector
	alerter   *Alerter
	interval  time.Duration
	lookback  int
}

// NewChecker returns a Checker. Zero settings fall back to a five minute
// interval over the last 100 runs.
func NewChecker(collector *Collector, alerter *Alerter, cfg config.MonitoringConfig) *Checker {
	c := &Checker{
		collector: collector,
		alerter:   alerter,
		interval:  time.Duration(cfg.CheckIntervalSecs) * time.Second,
		lookback:  cfg.LookbackRuns,
	}
	if c.interval <= 0 {
		c.interval = defaultCheckInterval
	}
	if c.lookback <= 0 {
		c.lookback = defaultLookbackRuns
	}
	return c
}

// Run blocks until ctx is cancelled.
func (c *Checker) Run(ctx context.Context) {
	log := zap.L().Named("monitoring")
	log.Info("monitoring: zero-fill checker started",
		zap.Duration("interval", c.interval),
		zap.Int("lookback_runs", c.lookback),
	)

	tick := time.NewTicker(c.interval)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Info("monitoring: zero-fill checker stopped")
			return
		case <-tick.C:
			c.Check(ctx)
		}
	}
}

// Check evaluates one window of runs and returns how many alerts were
// delivered.
func (c *Checker) Check(ctx context.Context) int {
	log := zap.L().Named("monitoring")

	m, err := c.collector.Collect(ctx, c.lookback)
	if err != nil {
		log.Error("monitoring: collect run metrics", zap.Error(err))
		return 0
	}

	alerts := c.alerter.Evaluate(m)
	if len(alerts) == 0 {
		log.Debug("monitoring: window clean",
			zap.Int("runs", m.Total),
			zap.Float64("zero_fill_rate", m.ZeroFillRate),
		)
		return 0
	}

	sent := c.alerter.SendAlerts(ctx, alerts)
	log.Info("monitoring: window raised alerts",
		zap.Int("runs", m.Total),
		zap.Int("raised", len(alerts)),
		zap.Int("delivered", sent),
	)
	return sent
}

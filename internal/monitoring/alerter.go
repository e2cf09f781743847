// Package monitoring raises webhook alerts when fill passes stop filling
// fields, which usually means a lender revised its form.
package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/pfs-cli/internal/config"
)

// AlertType identifies the kind of alert.
type AlertType string

const (
	// AlertZeroFill fires for a single pass that filled nothing.
	AlertZeroFill AlertType = "zero_fill"
	// AlertZeroFillRate fires when too many recent passes filled nothing.
	AlertZeroFillRate AlertType = "zero_fill_rate"
	// AlertStructural fires when recent passes hit documents without a form.
	AlertStructural AlertType = "structural_failures"
)

// Alert is a single webhook payload.
type Alert struct {
	Type      AlertType      `json:"type"`
	Severity  string         `json:"severity"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// RunInfo describes the pass an alert is about.
type RunInfo struct {
	RunID         string
	TemplateID    string
	Edition       string
	Total         int
	Missing       int
	CanaryVerdict string
}

// Alerter posts alerts to the configured webhook. Without a webhook every
// send is a no-op.
type Alerter struct {
	cfg    config.MonitoringConfig
	client *http.Client
}

// NewAlerter returns an Alerter.
func NewAlerter(cfg config.MonitoringConfig) *Alerter {
	return &Alerter{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// Enabled reports whether a webhook is configured.
func (a *Alerter) Enabled() bool { return a.cfg.WebhookURL != "" }

// ZeroFill alerts about one pass that filled zero fields.
func (a *Alerter) ZeroFill(ctx context.Context, run RunInfo) error {
	if !a.Enabled() {
		return nil
	}
	return a.send(ctx, Alert{
		Type:     AlertZeroFill,
		Severity: "high",
		Message: fmt.Sprintf("fill pass for template %q (%s) filled 0 of %d fields; canary verdict %q",
			run.TemplateID, run.Edition, run.Total, run.CanaryVerdict),
		Details: map[string]any{
			"run_id":         run.RunID,
			"template_id":    run.TemplateID,
			"edition":        run.Edition,
			"total":          run.Total,
			"missing":        run.Missing,
			"canary_verdict": run.CanaryVerdict,
		},
		Timestamp: time.Now().UTC(),
	})
}

// Evaluate turns recent-run metrics into alerts.
func (a *Alerter) Evaluate(m *Metrics) []Alert {
	var alerts []Alert
	now := time.Now().UTC()

	threshold := a.cfg.ZeroFillRateThreshold
	if m.Total >= 5 && threshold > 0 && m.ZeroFillRate > threshold {
		alerts = append(alerts, Alert{
			Type:     AlertZeroFillRate,
			Severity: "high",
			Message: fmt.Sprintf("%.1f%% of the last %d fill passes filled zero fields (threshold %.1f%%)",
				m.ZeroFillRate*100, m.Total, threshold*100),
			Details: map[string]any{
				"zero_filled": m.ZeroFilled,
				"total":       m.Total,
				"by_template": m.ZeroFillByTemplate,
			},
			Timestamp: now,
		})
	}

	if m.Structural > 0 {
		alerts = append(alerts, Alert{
			Type:     AlertStructural,
			Severity: "medium",
			Message:  fmt.Sprintf("%d of the last %d fill passes found no fillable form", m.Structural, m.Total),
			Details: map[string]any{
				"structural": m.Structural,
				"total":      m.Total,
			},
			Timestamp: now,
		})
	}
	return alerts
}

// SendAlerts delivers alerts and returns how many went out.
func (a *Alerter) SendAlerts(ctx context.Context, alerts []Alert) int {
	if !a.Enabled() {
		return 0
	}
	sent := 0
	for _, alert := range alerts {
		if err := a.send(ctx, alert); err != nil {
			zap.L().Error("monitoring: failed to send alert",
				zap.String("type", string(alert.Type)),
				zap.Error(err),
			)
			continue
		}
		sent++
	}
	return sent
}

func (a *Alerter) send(ctx context.Context, alert Alert) error {
	payload, err := json.Marshal(alert)
	if err != nil {
		return eris.Wrap(err, "monitoring: marshal alert")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.WebhookURL, bytes.NewReader(payload))
	if err != nil {
		return eris.Wrap(err, "monitoring: create webhook request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return eris.Wrap(err, "monitoring: webhook request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= 400 {
		return eris.Errorf("monitoring: webhook returned status %d", resp.StatusCode)
	}
	zap.L().Info("monitoring: alert sent",
		zap.String("type", string(alert.Type)),
		zap.String("severity", alert.Severity),
	)
	return nil
}

package monitoring

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/pfs-cli/internal/config"
	"github.com/sells-group/pfs-cli/internal/model"
	"github.com/sells-group/pfs-cli/internal/store"
)

type webhook struct {
	mu     sync.Mutex
	alerts []Alert
	status int
}

func (w *webhook) server(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		var a Alert
		require.NoError(t, json.NewDecoder(r.Body).Decode(&a))
		w.mu.Lock()
		w.alerts = append(w.alerts, a)
		status := w.status
		w.mu.Unlock()
		if status != 0 {
			rw.WriteHeader(status)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestAlerter_ZeroFill(t *testing.T) {
	t.Parallel()

	hook := &webhook{}
	srv := hook.server(t)
	a := NewAlerter(config.MonitoringConfig{WebhookURL: srv.URL})

	err := a.ZeroFill(context.Background(), RunInfo{
		RunID: "run-1", TemplateID: "sba-413", Edition: "pfs-2024", Total: 242, Missing: 242, CanaryVerdict: "writable",
	})
	require.NoError(t, err)
	require.Len(t, hook.alerts, 1)
	got := hook.alerts[0]
	assert.Equal(t, AlertZeroFill, got.Type)
	assert.Equal(t, "high", got.Severity)
	assert.Contains(t, got.Message, `"sba-413"`)
	assert.Contains(t, got.Message, "filled 0 of 242")
	assert.Equal(t, "writable", got.Details["canary_verdict"])
}

func TestAlerter_ZeroFill_NoWebhook(t *testing.T) {
	t.Parallel()

	a := NewAlerter(config.MonitoringConfig{})
	assert.False(t, a.Enabled())
	assert.NoError(t, a.ZeroFill(context.Background(), RunInfo{TemplateID: "x"}))
	assert.Zero(t, a.SendAlerts(context.Background(), []Alert{{Type: AlertZeroFill}}))
}

func TestAlerter_WebhookError(t *testing.T) {
	t.Parallel()

	hook := &webhook{status: http.StatusBadGateway}
	a := NewAlerter(config.MonitoringConfig{WebhookURL: hook.server(t).URL})

	err := a.ZeroFill(context.Background(), RunInfo{TemplateID: "x"})
	assert.ErrorContains(t, err, "status 502")
	assert.Zero(t, a.SendAlerts(context.Background(), []Alert{{Type: AlertZeroFillRate}}))
}

func TestAlerter_Evaluate(t *testing.T) {
	t.Parallel()

	a := NewAlerter(config.MonitoringConfig{ZeroFillRateThreshold: 0.2})

	tests := []struct {
		name  string
		m     Metrics
		types []AlertType
	}{
		{name: "healthy", m: Metrics{Total: 10, Complete: 10}},
		{name: "too few runs", m: Metrics{Total: 2, ZeroFilled: 2, ZeroFillRate: 1}},
		{name: "rate breached", m: Metrics{Total: 10, ZeroFilled: 3, ZeroFillRate: 0.3}, types: []AlertType{AlertZeroFillRate}},
		{name: "structural", m: Metrics{Total: 10, Structural: 1}, types: []AlertType{AlertStructural}},
		{
			name:  "both",
			m:     Metrics{Total: 10, ZeroFilled: 5, ZeroFillRate: 0.5, Structural: 2},
			types: []AlertType{AlertZeroFillRate, AlertStructural},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			alerts := a.Evaluate(&tt.m)
			var got []AlertType
			for _, al := range alerts {
				got = append(got, al.Type)
			}
			assert.Equal(t, tt.types, got)
		})
	}
}

type mockRunLister struct {
	mock.Mock
}

func (m *mockRunLister) ListFillRuns(ctx context.Context, f store.RunFilter) ([]model.FillRun, error) {
	args := m.Called(ctx, f)
	runs, _ := args.Get(0).([]model.FillRun)
	return runs, args.Error(1)
}

func TestCollector_Collect(t *testing.T) {
	t.Parallel()

	runs := new(mockRunLister)
	runs.On("ListFillRuns", mock.Anything, store.RunFilter{Limit: 25}).Return([]model.FillRun{
		{TemplateID: "sba-413", Status: model.RunStatusZeroFilled},
		{TemplateID: "sba-413", Status: model.RunStatusZeroFilled},
		{TemplateID: "bank", Status: model.RunStatusComplete},
		{TemplateID: "bank", Status: model.RunStatusWarnings},
	}, nil)

	m, err := NewCollector(runs).Collect(context.Background(), 25)
	require.NoError(t, err)
	runs.AssertExpectations(t)
	assert.Equal(t, 4, m.Total)
	assert.Equal(t, 2, m.ZeroFilled)
	assert.Equal(t, 1, m.Complete)
	assert.Equal(t, 1, m.Warnings)
	assert.InDelta(t, 0.5, m.ZeroFillRate, 0.0001)
	assert.Equal(t, map[string]int{"sba-413": 2}, m.ZeroFillByTemplate)
}

func TestCollector_Error(t *testing.T) {
	t.Parallel()

	runs := new(mockRunLister)
	runs.On("ListFillRuns", mock.Anything, mock.Anything).Return(nil, errors.New("db down"))

	_, err := NewCollector(runs).Collect(context.Background(), 10)
	assert.ErrorContains(t, err, "monitoring: list fill runs")
}

func TestChecker_Check(t *testing.T) {
	t.Parallel()

	hook := &webhook{}
	cfg := config.MonitoringConfig{WebhookURL: hook.server(t).URL, ZeroFillRateThreshold: 0.1}
	var zero []model.FillRun
	for i := 0; i < 6; i++ {
		zero = append(zero, model.FillRun{TemplateID: "sba-413", Status: model.RunStatusZeroFilled})
	}
	runs := new(mockRunLister)
	runs.On("ListFillRuns", mock.Anything, store.RunFilter{Limit: 100}).Return(zero, nil)

	c := NewChecker(NewCollector(runs), NewAlerter(cfg), cfg)
	assert.Equal(t, 1, c.Check(context.Background()))
	runs.AssertExpectations(t)
	require.Len(t, hook.alerts, 1)
	assert.Equal(t, AlertZeroFillRate, hook.alerts[0].Type)
}

func TestChecker_RunStopsOnCancel(t *testing.T) {
	t.Parallel()

	cfg := config.MonitoringConfig{CheckIntervalSecs: 3600}
	c := NewChecker(NewCollector(new(mockRunLister)), NewAlerter(cfg), cfg)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Run(ctx)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("checker did not stop")
	}
}

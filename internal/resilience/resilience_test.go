package resilience

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/pfs-cli/internal/config"
)

func fastRetry(attempts int) RetryConfig {
	return RetryConfig{MaxAttempts: attempts, InitialBackoff: time.Millisecond, MaxBackoff: 5 * time.Millisecond}
}

func TestDo(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		failures  int
		err       error
		attempts  int
		wantCalls int
		wantErr   bool
	}{
		{name: "first try", failures: 0, attempts: 3, wantCalls: 1},
		{name: "recovers", failures: 2, err: NewTransientError(errors.New("503"), 503), attempts: 3, wantCalls: 3},
		{name: "exhausts", failures: 5, err: NewTransientError(errors.New("503"), 503), attempts: 3, wantCalls: 3, wantErr: true},
		{name: "permanent error stops", failures: 5, err: errors.New("bad template"), attempts: 3, wantCalls: 1, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			var calls int
			err := Do(context.Background(), fastRetry(tt.attempts), func(context.Context) error {
				calls++
				if calls <= tt.failures {
					return tt.err
				}
				return nil
			})
			assert.Equal(t, tt.wantCalls, calls)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestDoVal_ReturnsValueAndHooks(t *testing.T) {
	t.Parallel()

	var retries []int
	cfg := fastRetry(4)
	cfg.OnRetry = func(attempt int, _ error) { retries = append(retries, attempt) }

	var calls int
	got, err := DoVal(context.Background(), cfg, func(context.Context) ([]byte, error) {
		calls++
		if calls < 3 {
			return nil, fmt.Errorf("read: %w", syscall.ECONNRESET)
		}
		return []byte("%PDF-"), nil
	})
	require.NoError(t, err)
	assert.Equal(t, []byte("%PDF-"), got)
	assert.Equal(t, []int{1, 2}, retries)
}

func TestDo_CancelledContextStops(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	var calls atomic.Int32
	err := Do(ctx, RetryConfig{MaxAttempts: 5, InitialBackoff: time.Hour}, func(context.Context) error {
		calls.Add(1)
		cancel()
		return NewTransientError(errors.New("timeout"), 0)
	})
	assert.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestDo_CustomRetryable(t *testing.T) {
	t.Parallel()

	cfg := fastRetry(3)
	cfg.Retryable = func(error) bool { return true }
	var calls int
	_ = Do(context.Background(), cfg, func(context.Context) error {
		calls++
		return errors.New("anything")
	})
	assert.Equal(t, 3, calls)
}

func TestBackoff(t *testing.T) {
	t.Parallel()

	cfg := RetryConfig{InitialBackoff: 100 * time.Millisecond, MaxBackoff: time.Second, Multiplier: 2}
	assert.Equal(t, 100*time.Millisecond, backoff(0, cfg))
	assert.Equal(t, 400*time.Millisecond, backoff(2, cfg))
	assert.Equal(t, time.Second, backoff(10, cfg))

	cfg.Jitter = 0.5
	for i := 0; i < 50; i++ {
		d := backoff(0, cfg)
		assert.GreaterOrEqual(t, d, 50*time.Millisecond)
		assert.LessOrEqual(t, d, 150*time.Millisecond)
	}
}

func TestIsTransient(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"explicit", NewTransientError(errors.New("x"), 429), true},
		{"wrapped explicit", fmt.Errorf("fetch: %w", NewTransientError(errors.New("x"), 0)), true},
		{"conn refused", fmt.Errorf("dial: %w", syscall.ECONNREFUSED), true},
		{"message", errors.New("read tcp: i/o timeout"), true},
		{"ftp data connection", errors.New("425 Can't open data connection"), true},
		{"permanent", errors.New("404 not found"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, IsTransient(tt.err))
		})
	}
}

func TestIsTransientHTTPStatus(t *testing.T) {
	t.Parallel()

	for _, code := range []int{408, 429, 500, 502, 503, 504} {
		assert.True(t, IsTransientHTTPStatus(code), code)
	}
	for _, code := range []int{200, 400, 401, 404} {
		assert.False(t, IsTransientHTTPStatus(code), code)
	}
}

type clock struct{ t time.Time }

func (c *clock) now() time.Time          { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestBreaker(threshold int) (*Breaker, *clock) {
	c := &clock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	b := NewBreaker(BreakerConfig{Name: "remote-store", FailureThreshold: threshold, ResetTimeout: time.Minute})
	b.now = c.now
	return b, c
}

func fail(context.Context) error { return errors.New("down") }
func ok(context.Context) error   { return nil }

func TestBreaker_Lifecycle(t *testing.T) {
	t.Parallel()

	b, c := newTestBreaker(3)
	ctx := context.Background()

	_ = b.Execute(ctx, fail)
	_ = b.Execute(ctx, fail)
	assert.Equal(t, StateClosed, b.State())
	assert.Equal(t, 2, b.Failures())

	_ = b.Execute(ctx, fail)
	assert.Equal(t, StateOpen, b.State())

	called := false
	err := b.Execute(ctx, func(context.Context) error { called = true; return nil })
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called)

	c.advance(time.Minute)
	assert.Equal(t, StateHalfOpen, b.State())

	// A failed probe reopens.
	_ = b.Execute(ctx, fail)
	assert.Equal(t, StateOpen, b.State())

	c.advance(time.Minute)
	require.NoError(t, b.Execute(ctx, ok))
	assert.Equal(t, StateClosed, b.State())
	assert.Equal(t, 0, b.Failures())
}

func TestBreaker_SuccessResetsCount(t *testing.T) {
	t.Parallel()

	b, _ := newTestBreaker(3)
	ctx := context.Background()
	_ = b.Execute(ctx, fail)
	_ = b.Execute(ctx, fail)
	require.NoError(t, b.Execute(ctx, ok))
	assert.Equal(t, 0, b.Failures())
}

func TestBreaker_CountsFilter(t *testing.T) {
	t.Parallel()

	b := NewBreaker(BreakerConfig{FailureThreshold: 1, Counts: IsTransient})
	_ = b.Execute(context.Background(), func(context.Context) error { return errors.New("constraint violation") })
	assert.Equal(t, StateClosed, b.State())

	_ = b.Execute(context.Background(), func(context.Context) error { return NewTransientError(errors.New("x"), 0) })
	assert.Equal(t, StateOpen, b.State())

	b.Reset()
	assert.Equal(t, StateClosed, b.State())
}

func TestGuard(t *testing.T) {
	t.Parallel()

	b, _ := newTestBreaker(1)
	v, err := Guard(context.Background(), b, func(context.Context) (int, error) { return 42, nil })
	require.NoError(t, err)
	assert.Equal(t, 42, v)

	_, _ = Guard(context.Background(), b, func(context.Context) (int, error) { return 0, errors.New("x") })
	v, err = Guard(context.Background(), b, func(context.Context) (int, error) { return 7, nil })
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Zero(t, v)
}

func TestBreakers(t *testing.T) {
	t.Parallel()

	bs := NewBreakers(BreakerConfig{FailureThreshold: 1})
	a := bs.Get("forms.example.com")
	assert.Same(t, a, bs.Get("forms.example.com"))
	assert.NotSame(t, a, bs.Get("ftp.example.com"))

	_ = a.Execute(context.Background(), fail)
	states := bs.States()
	assert.Equal(t, StateOpen, states["forms.example.com"])
	assert.Equal(t, StateClosed, states["ftp.example.com"])
}

func TestBreakerState_String(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "closed", StateClosed.String())
	assert.Equal(t, "open", StateOpen.String())
	assert.Equal(t, "half-open", StateHalfOpen.String())
	assert.Equal(t, "unknown", BreakerState(9).String())
}

func TestFromConfig(t *testing.T) {
	t.Parallel()

	r := RetryFromConfig(config.RetryConfig{MaxAttempts: 5, InitialBackoffMS: 10, MaxBackoffMS: 100})
	assert.Equal(t, 5, r.MaxAttempts)
	assert.Equal(t, 10*time.Millisecond, r.InitialBackoff)
	assert.Equal(t, 100*time.Millisecond, r.MaxBackoff)

	assert.Equal(t, DefaultRetryConfig().MaxAttempts, RetryFromConfig(config.RetryConfig{}).MaxAttempts)

	b := BreakerFromConfig(config.CircuitConfig{FailureThreshold: 2, ResetTimeoutSecs: 9})
	assert.Equal(t, 2, b.FailureThreshold)
	assert.Equal(t, 9*time.Second, b.ResetTimeout)
}

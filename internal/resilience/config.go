package resilience

import (
	"time"

	"github.com/sells-group/pfs-cli/internal/config"
)

// RetryFromConfig builds a RetryConfig from the retry section. Zero values
// keep the defaults.
func RetryFromConfig(c config.RetryConfig) RetryConfig {
	cfg := DefaultRetryConfig()
	if c.MaxAttempts > 0 {
		cfg.MaxAttempts = c.MaxAttempts
	}
	if c.InitialBackoffMS > 0 {
		cfg.InitialBackoff = time.Duration(c.InitialBackoffMS) * time.Millisecond
	}
	if c.MaxBackoffMS > 0 {
		cfg.MaxBackoff = time.Duration(c.MaxBackoffMS) * time.Millisecond
	}
	return cfg
}

// BreakerFromConfig builds a BreakerConfig from the circuit section.
func BreakerFromConfig(c config.CircuitConfig) BreakerConfig {
	cfg := DefaultBreakerConfig()
	if c.FailureThreshold > 0 {
		cfg.FailureThreshold = c.FailureThreshold
	}
	if c.ResetTimeoutSecs > 0 {
		cfg.ResetTimeout = time.Duration(c.ResetTimeoutSecs) * time.Second
	}
	return cfg
}

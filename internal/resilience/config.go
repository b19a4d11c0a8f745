package resilience

import (
	"strings"
	"time"
)

// PolicyFromConfig builds a retry policy from config values. Zero values
// keep the defaults.
func PolicyFromConfig(attempts, baseDelayMs, maxDelayMs int, strategy string) Policy {
	p := DefaultPolicy()
	if attempts > 0 {
		p.Attempts = attempts
	}
	if baseDelayMs > 0 {
		p.BaseDelay = time.Duration(baseDelayMs) * time.Millisecond
	}
	if maxDelayMs > 0 {
		p.MaxDelay = time.Duration(maxDelayMs) * time.Millisecond
	}
	switch Strategy(strings.ToLower(strategy)) {
	case StrategyExponential:
		p.Strategy = StrategyExponential
	case StrategyQuadratic:
		p.Strategy = StrategyQuadratic
	}
	return p
}

// BreakerFromConfig builds breaker settings from config values.
func BreakerFromConfig(threshold, cooldownSecs int) BreakerConfig {
	cfg := DefaultBreakerConfig()
	if threshold > 0 {
		cfg.Threshold = threshold
	}
	if cooldownSecs > 0 {
		cfg.Cooldown = time.Duration(cooldownSecs) * time.Second
	}
	return cfg
}

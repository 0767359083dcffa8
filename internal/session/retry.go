package session

import (
	"errors"
	"math"
	"time"

	"github.com/dandantas/grabber/internal/model"
)

// RetryConfig bounds the configure phase. One counter covers every retry
// trigger.
type RetryConfig struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}

// SetDefaults sets five attempts one second apart.
func (rc *RetryConfig) SetDefaults() {
	if rc.MaxAttempts == 0 {
		rc.MaxAttempts = 5
	}
	if rc.InitialDelay == 0 {
		rc.InitialDelay = time.Second
	}
	if rc.MaxDelay == 0 {
		rc.MaxDelay = 30 * time.Second
	}
	if rc.Multiplier == 0 {
		rc.Multiplier = 1.0
	}
}

// RetryStrategy decides whether and when to retry a configure attempt.
type RetryStrategy struct {
	config RetryConfig
}

// NewRetryStrategy creates a new retry strategy
func NewRetryStrategy(config RetryConfig) *RetryStrategy {
	config.SetDefaults()
	return &RetryStrategy{config: config}
}

// CalculateDelay returns min(initial * multiplier^(attempt-1), max).
func (rs *RetryStrategy) CalculateDelay(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}

	delay := float64(rs.config.InitialDelay) * math.Pow(rs.config.Multiplier, float64(attempt-1))
	if delay > float64(rs.config.MaxDelay) {
		delay = float64(rs.config.MaxDelay)
	}
	return time.Duration(delay)
}

// ShouldRetry reports whether attempt may be followed by another. Only
// script faults are retried.
func (rs *RetryStrategy) ShouldRetry(attempt int, err error) bool {
	if attempt >= rs.config.MaxAttempts {
		return false
	}
	return errors.Is(err, model.ErrScriptFault)
}

// GetMaxAttempts returns the maximum number of attempts
func (rs *RetryStrategy) GetMaxAttempts() int {
	return rs.config.MaxAttempts
}

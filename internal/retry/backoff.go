package retry

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"

	"go.uber.org/zap"
)

// Func is an operation that may be retried
type Func func(ctx context.Context) error

// Config holds retry configuration
type Config struct {
	MaxRetries int              // attempts after the first one
	BaseDelay  time.Duration    // delay before the first retry
	MaxDelay   time.Duration    // upper bound for any single delay
	Multiplier float64          // exponential backoff multiplier
	Jitter     bool             // add up to 10% random delay
	Retryable  func(error) bool // nil retries every error
}

// DefaultConfig returns the configuration used for administrative store writes
func DefaultConfig() Config {
	return Config{
		MaxRetries: 3,
		BaseDelay:  200 * time.Millisecond,
		MaxDelay:   5 * time.Second,
		Multiplier: 2.0,
		Jitter:     true,
	}
}

// Retrier runs a Func with exponential backoff
type Retrier struct {
	config Config
	logger *zap.Logger
}

// New creates a retrier
func New(config Config, l *zap.Logger) *Retrier {
	if config.Multiplier < 1 {
		config.Multiplier = 1
	}
	if l == nil {
		l = zap.NewNop()
	}
	return &Retrier{config: config, logger: l}
}

// Execute runs fn until it succeeds, returns a non-retryable error, or exhausts its attempts
func (r *Retrier) Execute(ctx context.Context, fn Func) error {
	var lastErr error

	for attempt := 0; attempt <= r.config.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := fn(ctx)
		if err == nil {
			if attempt > 0 {
				r.logger.Info("operation succeeded after retries", zap.Int("attempt", attempt+1))
			}
			return nil
		}
		lastErr = err

		if r.config.Retryable != nil && !r.config.Retryable(err) {
			return err
		}
		if attempt == r.config.MaxRetries {
			break
		}

		delay := r.delay(attempt)
		r.logger.Debug("operation failed, retrying",
			zap.Error(err),
			zap.Int("attempt", attempt+1),
			zap.Duration("delay", delay))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}

	r.logger.Error("operation failed after all retries",
		zap.Error(lastErr),
		zap.Int("total_attempts", r.config.MaxRetries+1))
	return fmt.Errorf("retry limit exceeded after %d attempts: %w", r.config.MaxRetries+1, lastErr)
}

func (r *Retrier) delay(attempt int) time.Duration {
	d := float64(r.config.BaseDelay) * math.Pow(r.config.Multiplier, float64(attempt))
	if r.config.MaxDelay > 0 && d > float64(r.config.MaxDelay) {
		d = float64(r.config.MaxDelay)
	}
	if r.config.Jitter {
		d += d * 0.1 * rand.Float64()
	}
	return time.Duration(d)
}

package recovery

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/halcyonlabs/admind/internal/capability"
	"github.com/halcyonlabs/admind/internal/planning"
	"github.com/halcyonlabs/admind/internal/session"
)

// RetryConfig configures the retry strategy.
type RetryConfig struct {
	// MaxAttempts is the maximum number of re-invocations (default: 3).
	MaxAttempts int

	// Delay is the fixed wait between attempts (default: 1s).
	Delay time.Duration
}

// ApplyDefaults sets default values for unset fields.
func (c *RetryConfig) ApplyDefaults() {
	if c.MaxAttempts == 0 {
		c.MaxAttempts = 3
	}
	if c.Delay == 0 {
		c.Delay = time.Second
	}
}

// Retry re-invokes the same step up to MaxAttempts times with a fixed
// delay between attempts, then gives up silently.
type Retry struct {
	invoker capability.ToolExecutor
	config  RetryConfig
	logger  *zap.Logger
}

// NewRetry creates the retry strategy.
func NewRetry(invoker capability.ToolExecutor, cfg RetryConfig, logger *zap.Logger) *Retry {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.ApplyDefaults()
	return &Retry{invoker: invoker, config: cfg, logger: logger}
}

// Name implements Strategy.
func (r *Retry) Name() string { return "retry" }

// Attempt implements Strategy.
func (r *Retry) Attempt(ctx context.Context, step planning.Step, stepErr error, sess *session.Session) (planning.StepResult, bool) {
	for attempt := 1; attempt <= r.config.MaxAttempts; attempt++ {
		if attempt > 1 {
			// Real wall-clock delay between attempts; a cancelled context
			// cuts the wait short.
			timer := time.NewTimer(r.config.Delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return planning.StepResult{}, false
			case <-timer.C:
			}
		}

		r.logger.Debug("retrying step",
			zap.String("session_id", sess.ID()),
			zap.String("step", step.Name),
			zap.Int("attempt", attempt),
		)

		if result, ok := invokeOnce(ctx, r.invoker, step, sess); ok {
			return result, true
		}
	}
	return planning.StepResult{}, false
}

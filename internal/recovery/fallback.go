package recovery

import (
	"context"

	"go.uber.org/zap"

	"github.com/halcyonlabs/admind/internal/capability"
	"github.com/halcyonlabs/admind/internal/planning"
	"github.com/halcyonlabs/admind/internal/session"
)

// DefaultFallbacks maps a tool to the tool it may fall back to with the
// same parameters.
func DefaultFallbacks() map[string]string {
	return map[string]string{
		// A full deprovisioning that cannot remove the mailbox can at
		// least disable the account.
		"remove_mailbox": "disable_account",
		// A direct permission grant can fall back to adding a delegate.
		"grant_mailbox_permission": "add_mailbox_delegate",
	}
}

// Fallback looks up a static tool-name substitution and retries once with
// the same parameters.
type Fallback struct {
	invoker   capability.ToolExecutor
	fallbacks map[string]string
	logger    *zap.Logger
}

// NewFallback creates the fallback strategy. A nil table uses
// DefaultFallbacks.
func NewFallback(invoker capability.ToolExecutor, fallbacks map[string]string, logger *zap.Logger) *Fallback {
	if logger == nil {
		logger = zap.NewNop()
	}
	if fallbacks == nil {
		fallbacks = DefaultFallbacks()
	}
	return &Fallback{invoker: invoker, fallbacks: fallbacks, logger: logger}
}

// Name implements Strategy.
func (f *Fallback) Name() string { return "fallback" }

// Attempt implements Strategy.
func (f *Fallback) Attempt(ctx context.Context, step planning.Step, stepErr error, sess *session.Session) (planning.StepResult, bool) {
	target, ok := f.fallbacks[step.Tool]
	if !ok {
		return planning.StepResult{}, false
	}

	f.logger.Info("falling back to alternate tool",
		zap.String("session_id", sess.ID()),
		zap.String("from", step.Tool),
		zap.String("to", target),
	)

	substituted := step.WithTool(target)
	result, ok := invokeOnce(ctx, f.invoker, substituted, sess)
	if ok {
		if result.Metadata == nil {
			result.Metadata = make(map[string]string)
		}
		result.Metadata["fallback_tool"] = target
	}
	return result, ok
}

package recovery

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/halcyonlabs/admind/internal/capability"
	"github.com/halcyonlabs/admind/internal/planning"
	"github.com/halcyonlabs/admind/internal/session"
)

// optionalParams are parameters safe to drop when the target object cannot
// be found: they narrow or decorate the operation rather than identify it.
var optionalParams = map[string]struct{}{
	"Group":       {},
	"Domain":      {},
	"DisplayName": {},
	"Notes":       {},
	"Scope":       {},
}

// accessDowngrades is the privilege ladder used when a permission error
// suggests the requested level is too high.
var accessDowngrades = map[string]string{
	"FullAccess": "SendAs",
	"SendAs":     "Reviewer",
}

// ContextAdjustment heuristically adjusts step parameters based on the
// error text and retries once:
//
//   - "not found" errors strip optional parameters
//   - "permission" errors downgrade AccessRights one level
type ContextAdjustment struct {
	invoker capability.ToolExecutor
	logger  *zap.Logger
}

// NewContextAdjustment creates the context adjustment strategy.
func NewContextAdjustment(invoker capability.ToolExecutor, logger *zap.Logger) *ContextAdjustment {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ContextAdjustment{invoker: invoker, logger: logger}
}

// Name implements Strategy.
func (a *ContextAdjustment) Name() string { return "context_adjustment" }

// Attempt implements Strategy.
func (a *ContextAdjustment) Attempt(ctx context.Context, step planning.Step, stepErr error, sess *session.Session) (planning.StepResult, bool) {
	if stepErr == nil {
		return planning.StepResult{}, false
	}

	adjusted, changed := adjustParameters(step.Parameters, stepErr.Error())
	if !changed {
		return planning.StepResult{}, false
	}

	a.logger.Info("retrying with adjusted parameters",
		zap.String("session_id", sess.ID()),
		zap.String("step", step.Name),
		zap.Any("parameters", adjusted),
	)

	return invokeOnce(ctx, a.invoker, step.WithParameters(adjusted), sess)
}

// adjustParameters applies the error-text heuristics and reports whether
// anything changed.
func adjustParameters(params map[string]string, errText string) (map[string]string, bool) {
	lower := strings.ToLower(errText)
	out := make(map[string]string, len(params))
	for k, v := range params {
		out[k] = v
	}
	changed := false

	if strings.Contains(lower, "not found") {
		for k := range out {
			if _, optional := optionalParams[k]; optional {
				delete(out, k)
				changed = true
			}
		}
	}

	if strings.Contains(lower, "permission") {
		if current, ok := out["AccessRights"]; ok {
			if downgraded, ok := accessDowngrades[current]; ok {
				out["AccessRights"] = downgraded
				changed = true
			}
		}
	}

	return out, changed
}

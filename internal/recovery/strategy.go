// Package recovery implements the self-healing strategy chain invoked when
// a tool invocation raises an exceptional error (not an ordinary Failed
// status). Strategies run in a fixed, documented priority order:
//
//  1. Retry: same step, bounded attempts with a fixed delay
//  2. Fallback: static tool-name substitution, one attempt
//  3. ContextAdjustment: heuristic parameter adjustment, one attempt
//  4. ToolSubstitution: alternative tool with parameter-name remapping
//
// The chain stops at the first strategy that succeeds. Behavior depends on
// this ordering; do not reorder without revisiting the orchestrator's abort
// policy.
package recovery

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/halcyonlabs/admind/internal/capability"
	"github.com/halcyonlabs/admind/internal/planning"
	"github.com/halcyonlabs/admind/internal/session"
)

// Strategy is one automated recovery behavior. Attempt returns the result
// of the recovered invocation and whether the strategy succeeded. A
// strategy that cannot apply to the step returns ok=false without side
// effects.
type Strategy interface {
	// Name identifies the strategy in logs and result metadata.
	Name() string

	// Attempt tries to recover the failed step.
	Attempt(ctx context.Context, step planning.Step, stepErr error, sess *session.Session) (planning.StepResult, bool)
}

// Chain runs strategies in priority order until one succeeds.
type Chain struct {
	strategies []Strategy
	logger     *zap.Logger
}

// NewChain creates a chain over the given strategies, tried in slice
// order.
func NewChain(logger *zap.Logger, strategies ...Strategy) *Chain {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Chain{strategies: strategies, logger: logger}
}

// DefaultChain builds the standard four-strategy chain around a tool
// executor.
func DefaultChain(invoker capability.ToolExecutor, cfg RetryConfig, logger *zap.Logger) *Chain {
	return NewChain(logger,
		NewRetry(invoker, cfg, logger),
		NewFallback(invoker, nil, logger),
		NewContextAdjustment(invoker, logger),
		NewToolSubstitution(invoker, nil, logger),
	)
}

// Run tries each strategy in order. It returns the recovered result and
// the name of the successful strategy, or ok=false when every strategy is
// exhausted.
func (c *Chain) Run(ctx context.Context, step planning.Step, stepErr error, sess *session.Session) (planning.StepResult, string, bool) {
	for _, s := range c.strategies {
		sess.AddEvent("recovery: attempting strategy %s for step %s", s.Name(), step.Name)
		c.logger.Info("attempting recovery strategy",
			zap.String("session_id", sess.ID()),
			zap.String("strategy", s.Name()),
			zap.String("step", step.Name),
			zap.Error(stepErr),
		)

		result, ok := s.Attempt(ctx, step, stepErr, sess)
		if ok {
			if result.Metadata == nil {
				result.Metadata = make(map[string]string)
			}
			result.Metadata["recovery_strategy"] = s.Name()
			sess.AddEvent("recovery: strategy %s recovered step %s", s.Name(), step.Name)
			return result, s.Name(), true
		}

		if ctx.Err() != nil {
			break
		}
	}

	c.logger.Warn("all recovery strategies exhausted",
		zap.String("session_id", sess.ID()),
		zap.String("step", step.Name),
		zap.Error(stepErr),
	)
	return planning.StepResult{}, "", false
}

// invokeOnce runs a single tool invocation for a recovery attempt and
// reports whether it completed successfully. An expected Failed result
// counts as an unsuccessful attempt, not an exception.
func invokeOnce(ctx context.Context, invoker capability.ToolExecutor, step planning.Step, sess *session.Session) (planning.StepResult, bool) {
	start := time.Now()
	result, err := invoker.Invoke(ctx, step.Tool, step.Parameters, sess.ContextSnapshot())
	if err != nil {
		return planning.StepResult{
			StepName: step.Name,
			Tool:     step.Tool,
			Status:   planning.StatusFailed,
			Error:    err.Error(),
			Duration: time.Since(start),
		}, false
	}
	result.StepName = step.Name
	if result.Tool == "" {
		result.Tool = step.Tool
	}
	if result.Duration == 0 {
		result.Duration = time.Since(start)
	}
	return result, result.Status == planning.StatusCompleted
}

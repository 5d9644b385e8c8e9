package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/halcyonlabs/admind/internal/capability"
	"github.com/halcyonlabs/admind/internal/confidence"
	"github.com/halcyonlabs/admind/internal/planning"
	"github.com/halcyonlabs/admind/internal/reasoning"
	"github.com/halcyonlabs/admind/internal/recovery"
	"github.com/halcyonlabs/admind/internal/session"
)

const instrumentationName = "github.com/halcyonlabs/admind/internal/orchestrator"

// ErrPreAuthorizationDenied aborts a plan when the security capability
// denies a step. Denials are hard stops, never retried or healed.
var ErrPreAuthorizationDenied = errors.New("pre-authorization denied")

// ErrCriticalStepFailed aborts a plan when a critical step fails after
// recovery is exhausted.
var ErrCriticalStepFailed = errors.New("critical step failed")

// ExecutorConfig configures the plan executor.
type ExecutorConfig struct {
	// ToolExecutionTarget is the confidence target for the per-step
	// ToolExecution gate (default: 0.7).
	ToolExecutionTarget float64

	// Retry configures the first recovery strategy.
	Retry recovery.RetryConfig
}

// ApplyDefaults sets default values for unset fields.
func (c *ExecutorConfig) ApplyDefaults() {
	if c.ToolExecutionTarget == 0 {
		c.ToolExecutionTarget = 0.7
	}
}

// Executor walks a plan step by step: pre-authorization, invocation,
// synchronous checkpointing, context merge, confidence registration, and
// adaptive re-planning. Steps run sequentially on purpose; later steps
// read context mutated by earlier ones.
type Executor struct {
	tools    capability.ToolExecutor
	security capability.Security
	engine   *reasoning.Engine
	gate     *confidence.Gate
	chain    *recovery.Chain
	config   ExecutorConfig
	logger   *zap.Logger

	tracer      trace.Tracer
	stepCounter metric.Int64Counter
}

// NewExecutor creates an executor. The recovery chain defaults to the
// standard four-strategy chain over the same tool executor.
func NewExecutor(tools capability.ToolExecutor, security capability.Security, engine *reasoning.Engine, gate *confidence.Gate, cfg ExecutorConfig, logger *zap.Logger) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.ApplyDefaults()

	e := &Executor{
		tools:    tools,
		security: security,
		engine:   engine,
		gate:     gate,
		chain:    recovery.DefaultChain(tools, cfg.Retry, logger),
		config:   cfg,
		logger:   logger,
		tracer:   otel.Tracer(instrumentationName),
	}

	var err error
	e.stepCounter, err = otel.Meter(instrumentationName).Int64Counter(
		"admind.executor.steps_total",
		metric.WithDescription("Total number of executed plan steps"),
		metric.WithUnit("{step}"),
	)
	if err != nil {
		logger.Warn("failed to create step counter", zap.Error(err))
	}

	return e
}

// Execute runs the plan against the session. The returned results cover
// only steps that were reached; when a critical step fails the remaining
// steps are not invoked and get no results. A non-nil error reports why
// the plan aborted early.
func (e *Executor) Execute(ctx context.Context, plan planning.Plan, sess *session.Session) ([]planning.StepResult, error) {
	ctx, span := e.tracer.Start(ctx, "Executor.Execute",
		trace.WithAttributes(
			attribute.String("intent", string(plan.Intent)),
			attribute.Int("steps", len(plan.Steps)),
		),
	)
	defer span.End()

	completed := make(map[string]bool, len(plan.Steps))

	for i := 0; i < len(plan.Steps); i++ {
		step := plan.Steps[i]

		if unmet := unmetDependency(step, completed); unmet != "" {
			result := planning.StepResult{
				StepName: step.Name,
				Tool:     step.Tool,
				Status:   planning.StatusSkipped,
				Error:    fmt.Sprintf("dependency %s not satisfied", unmet),
				Metadata: map[string]string{"skip_reason": "unmet_dependency"},
			}
			e.record(ctx, sess, step, result)
			sess.AddEvent("step %s skipped: dependency %s not satisfied", step.Name, unmet)
			continue
		}

		if plan.Requirements.SecurityReview && e.security != nil {
			if ok, reason := e.security.PreAuthorize(ctx, step, sess.ContextSnapshot(), sess); !ok {
				result := planning.StepResult{
					StepName: step.Name,
					Tool:     step.Tool,
					Status:   planning.StatusFailed,
					Error:    fmt.Sprintf("pre-authorization denied: %s", reason),
				}
				e.record(ctx, sess, step, result)
				sess.AddEvent("step %s denied by security review: %s", step.Name, reason)
				span.SetAttributes(attribute.String("abort", "security_denial"))
				return sess.Results(), fmt.Errorf("%w: step %s: %s", ErrPreAuthorizationDenied, step.Name, reason)
			}
		}

		result := e.invokeStep(ctx, step, sess)
		e.record(ctx, sess, step, result)

		if result.Status == planning.StatusCompleted {
			completed[step.Name] = true
			sess.MergeStepOutput(step.Name, result.Output)
		}

		e.gate.RegisterOutcome(labelToolExecution, result.Status == planning.StatusCompleted)
		metrics := e.gate.Evaluate(labelToolExecution, e.config.ToolExecutionTarget)
		sess.RecordStageConfidence(labelToolExecution, metrics)
		if !metrics.IsHighConfidence && e.engine != nil {
			// Informational only; the resolution never alters control flow.
			res := e.engine.Resolve(ctx, reasoning.LowConfidenceIssue{
				Stage:   labelToolExecution,
				Metrics: metrics,
			}, sess)
			if res.SupplementaryLookup {
				sess.AddSupplementary(res.Resolution)
			}
		}

		if e.engine != nil {
			plan = e.engine.EvaluateNextStep(ctx, plan, i, result, sess)
		}

		if result.Status == planning.StatusFailed && step.Critical {
			sess.AddEvent("critical step %s failed, aborting remaining %d steps", step.Name, len(plan.Steps)-i-1)
			span.SetAttributes(attribute.String("abort", "critical_step_failed"))
			return sess.Results(), fmt.Errorf("%w: %s: %s", ErrCriticalStepFailed, step.Name, result.Error)
		}
	}

	return sess.Results(), nil
}

// invokeStep runs one tool invocation. An exceptional error enters the
// recovery chain; an ordinary Failed result is returned as-is for the
// resolution engine to reason about.
func (e *Executor) invokeStep(ctx context.Context, step planning.Step, sess *session.Session) planning.StepResult {
	start := time.Now()
	result, err := e.tools.Invoke(ctx, step.Tool, step.Parameters, sess.ContextSnapshot())
	if err == nil {
		result.StepName = step.Name
		if result.Duration == 0 {
			result.Duration = time.Since(start)
		}
		return result
	}

	sess.AddEvent("step %s raised: %v", step.Name, err)
	e.logger.Warn("tool invocation raised",
		zap.String("session_id", sess.ID()),
		zap.String("step", step.Name),
		zap.String("tool", step.Tool),
		zap.Error(err),
	)

	if recovered, strategy, ok := e.chain.Run(ctx, step, err, sess); ok {
		recovered.StepName = step.Name
		e.logger.Info("step recovered",
			zap.String("session_id", sess.ID()),
			zap.String("step", step.Name),
			zap.String("strategy", strategy),
		)
		return recovered
	}

	return planning.StepResult{
		StepName: step.Name,
		Tool:     step.Tool,
		Status:   planning.StatusFailed,
		Error:    err.Error(),
		Duration: time.Since(start),
		Metadata: map[string]string{"recovery": "exhausted"},
	}
}

// record appends the result and takes the synchronous checkpoint. The
// checkpoint captures a value copy of the execution context so later
// steps cannot mutate what was snapshotted.
func (e *Executor) record(ctx context.Context, sess *session.Session, step planning.Step, result planning.StepResult) {
	sess.AppendResult(result)

	cp := session.Checkpoint{
		StepIndex: step.Index,
		Tool:      result.Tool,
		Context:   sess.ContextSnapshot(),
		Result:    result,
		CreatedAt: time.Now(),
	}
	if err := sess.AppendCheckpoint(cp); err != nil {
		e.logger.Error("checkpoint append rejected",
			zap.String("session_id", sess.ID()),
			zap.Int("step_index", step.Index),
			zap.Error(err),
		)
	}

	if e.stepCounter != nil {
		e.stepCounter.Add(ctx, 1, metric.WithAttributes(
			attribute.String("tool", result.Tool),
			attribute.String("status", string(result.Status)),
		))
	}
}

func unmetDependency(step planning.Step, completed map[string]bool) string {
	for _, dep := range step.DependsOn {
		if !completed[dep] {
			return dep
		}
	}
	return ""
}

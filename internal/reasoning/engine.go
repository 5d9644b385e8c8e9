// Package reasoning implements the resolution engine: given a structured
// issue and a session context snapshot, it attempts an automatic
// explanation or resolution and may propose a revised plan.
package reasoning

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/halcyonlabs/admind/internal/capability"
	"github.com/halcyonlabs/admind/internal/entity"
	"github.com/halcyonlabs/admind/internal/planning"
	"github.com/halcyonlabs/admind/internal/session"
)

const instrumentationName = "github.com/halcyonlabs/admind/internal/reasoning"

// Result is the outcome of a resolution attempt.
type Result struct {
	// Resolved is true when the engine considers the issue handled.
	Resolved bool `json:"resolved"`

	// Resolution is the human-readable explanation.
	Resolution string `json:"resolution"`

	// SuggestedPlan, when non-nil, is a revised plan the caller should
	// substitute for the current one.
	SuggestedPlan *planning.Plan `json:"suggested_plan,omitempty"`

	// SupplementaryLookup signals that the caller should broaden its
	// search for evidence before retrying.
	SupplementaryLookup bool `json:"supplementary_lookup,omitempty"`

	// Actions is the log of reasoning actions taken.
	Actions []string `json:"actions,omitempty"`
}

// Config configures the resolution engine.
type Config struct {
	// HistoryLimit is how many memory records to fetch for the context
	// snapshot (default: 5).
	HistoryLimit int

	// SuggestionLimit is how many suggestions plan optimization fetches
	// (default: 3).
	SuggestionLimit int
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.HistoryLimit == 0 {
		c.HistoryLimit = 5
	}
	if c.SuggestionLimit == 0 {
		c.SuggestionLimit = 3
	}
}

// Engine analyzes issues against session context and accumulated memory.
// It must never fail: every path returns a Result, and memory access
// problems degrade to an empty history.
type Engine struct {
	memory capability.Memory
	config Config
	logger *zap.Logger

	tracer         trace.Tracer
	meter          metric.Meter
	resolveCounter metric.Int64Counter
}

// NewEngine creates a resolution engine. memory may be nil, in which case
// context snapshots carry no history and memory writes are skipped.
func NewEngine(memory capability.Memory, cfg Config, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.ApplyDefaults()

	e := &Engine{
		memory: memory,
		config: cfg,
		logger: logger,
		tracer: otel.Tracer(instrumentationName),
		meter:  otel.Meter(instrumentationName),
	}

	var err error
	e.resolveCounter, err = e.meter.Int64Counter(
		"admind.reasoning.resolves_total",
		metric.WithDescription("Total number of resolution attempts"),
		metric.WithUnit("{resolve}"),
	)
	if err != nil {
		logger.Warn("failed to create resolve counter", zap.Error(err))
	}

	return e
}

// Resolve dispatches on the issue kind and attempts an automatic
// resolution. It never returns an error; unknown issue kinds resolve to
// "unknown issue type".
func (e *Engine) Resolve(ctx context.Context, issue Issue, sess *session.Session) Result {
	ctx, span := e.tracer.Start(ctx, "Engine.Resolve")
	defer span.End()

	history := e.fetchHistory(ctx, sess)
	snapshot := sess.ContextSnapshot()

	var res Result
	switch is := issue.(type) {
	case ValidationFailureIssue:
		res = e.resolveValidationFailure(is)
	case ToolErrorIssue:
		res = e.resolveToolError(is, snapshot)
	case LowConfidenceIssue:
		res = e.resolveLowConfidence(is)
	default:
		res = Result{Resolution: "unknown issue type"}
	}

	if len(history) > 0 {
		res.Actions = append(res.Actions, fmt.Sprintf("Context history consulted: %d records", len(history)))
	}

	span.SetAttributes(
		attribute.Bool("resolved", res.Resolved),
		attribute.String("resolution", res.Resolution),
	)
	if e.resolveCounter != nil {
		e.resolveCounter.Add(ctx, 1, metric.WithAttributes(attribute.Bool("resolved", res.Resolved)))
	}

	e.logger.Info("reasoning resolution produced",
		zap.String("session_id", sess.ID()),
		zap.Bool("resolved", res.Resolved),
		zap.String("resolution", res.Resolution),
	)

	// Best effort: a failed memory write must not fail the resolve.
	e.recordResolution(ctx, sess, res)

	return res
}

func (e *Engine) resolveValidationFailure(is ValidationFailureIssue) Result {
	res := Result{}
	errs := is.Result.Errors
	if len(errs) == 0 && len(is.Result.Warnings) > 0 {
		res.Resolved = true
		res.Resolution = "Validation warnings acknowledged"
	} else {
		res.Resolution = "Unable to auto-resolve validation errors"
	}
	res.Actions = append(res.Actions, "Validation errors: "+strings.Join(errs, "; "))
	return res
}

func (e *Engine) resolveToolError(is ToolErrorIssue, snapshot session.ExecutionContext) Result {
	res := Result{Resolution: "Tool execution error analyzed"}
	res.Actions = append(res.Actions, "Error: "+is.Err)

	if ident := ExtractIdentifier(is.Err); ident != "" {
		res.Actions = append(res.Actions, "Identifier: "+ident)
		// Cross-check against already-extracted entities to surface likely
		// misspellings.
		for _, ent := range snapshot.Entities.Entities {
			if ent.Type == entity.TypeUser || ent.Type == entity.TypeMailbox {
				if !strings.EqualFold(ent.Value, ident) && strings.EqualFold(baseIdentifier(ent.Value), baseIdentifier(ident)) {
					res.Actions = append(res.Actions,
						fmt.Sprintf("Possible identifier mismatch: %q vs extracted %q", ident, ent.Value))
				}
			}
		}
	}
	return res
}

func (e *Engine) resolveLowConfidence(is LowConfidenceIssue) Result {
	res := Result{
		Resolution:          fmt.Sprintf("Low confidence detected at %s", is.Stage),
		SupplementaryLookup: true,
	}
	res.Actions = append(res.Actions,
		fmt.Sprintf("LowerBound: %.4f", is.Metrics.LowerBound),
		"Reanalyzing context and suggesting improvements",
	)
	return res
}

// EvaluateAndOptimizePlan fetches contextual suggestions from memory and
// attaches them to the session and plan for audit visibility. It is
// annotate-only: the step sequence is returned unchanged.
func (e *Engine) EvaluateAndOptimizePlan(ctx context.Context, plan planning.Plan, entities entity.Collection, sess *session.Session) planning.Plan {
	ctx, span := e.tracer.Start(ctx, "Engine.EvaluateAndOptimizePlan")
	defer span.End()

	if e.memory == nil {
		return plan
	}

	query := string(plan.Intent)
	if a, ok := entities.First(entity.TypeAction); ok {
		query += " " + a.Value
	}

	suggestions, err := e.memory.GetSuggestions(ctx, query, sess.ID(), e.config.SuggestionLimit)
	if err != nil {
		e.logger.Warn("suggestion fetch failed, continuing without",
			zap.String("session_id", sess.ID()),
			zap.Error(err),
		)
		return plan
	}
	if len(suggestions) == 0 {
		return plan
	}

	sess.AttachSuggestions(suggestions)
	annotated := plan
	annotated.Annotations = append(append([]string(nil), plan.Annotations...), suggestions...)

	span.SetAttributes(attribute.Int("suggestions", len(suggestions)))
	return annotated
}

// EvaluateNextStep gives the engine a chance to re-plan after a step. It
// only acts when the last result is Failed, and substitutes the plan only
// when a resolution proposed one. It never fails: any internal problem
// leaves the original plan in place.
func (e *Engine) EvaluateNextStep(ctx context.Context, plan planning.Plan, currentIndex int, lastResult planning.StepResult, sess *session.Session) planning.Plan {
	if lastResult.Status != planning.StatusFailed {
		return plan
	}
	if currentIndex < 0 || currentIndex >= len(plan.Steps) {
		return plan
	}

	res := e.Resolve(ctx, ToolErrorIssue{
		Step: plan.Steps[currentIndex],
		Err:  lastResult.Error,
	}, sess)

	if res.SuggestedPlan == nil {
		return plan
	}

	sess.AddEvent("plan substituted after step %d: %s", currentIndex, res.Resolution)
	return *res.SuggestedPlan
}

// fetchHistory pulls recent conversation/history records from memory for
// the context snapshot. Failures degrade to an empty history.
func (e *Engine) fetchHistory(ctx context.Context, sess *session.Session) []string {
	if e.memory == nil {
		return nil
	}
	history, err := e.memory.GetSuggestions(ctx, sess.Request(), sess.ID(), e.config.HistoryLimit)
	if err != nil {
		e.logger.Debug("history fetch failed",
			zap.String("session_id", sess.ID()),
			zap.Error(err),
		)
		return nil
	}
	return history
}

// recordResolution writes a short reasoning record to memory for future
// retrieval. Best effort only.
func (e *Engine) recordResolution(ctx context.Context, sess *session.Session, res Result) {
	if e.memory == nil {
		return
	}
	content := fmt.Sprintf("Reasoning result: resolved=%t %s", res.Resolved, res.Resolution)
	if _, err := e.memory.StoreRecord(ctx, content, "reasoning", map[string]string{
		"resolved": fmt.Sprintf("%t", res.Resolved),
	}, sess.ID()); err != nil {
		e.logger.Warn("failed to record reasoning result",
			zap.String("session_id", sess.ID()),
			zap.Error(err),
		)
	}
}

var (
	emailPattern = regexp.MustCompile(`[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}`)
	tokenPattern = regexp.MustCompile(`\b[a-z0-9]+(?:_[a-z0-9]+)+\b`)
)

// ExtractIdentifier pulls the most specific identifier out of an error
// message: an email address wins over a snake_case token.
func ExtractIdentifier(text string) string {
	if m := emailPattern.FindString(text); m != "" {
		return m
	}
	return tokenPattern.FindString(text)
}

// baseIdentifier strips the domain from an email-style identifier.
func baseIdentifier(s string) string {
	if i := strings.IndexByte(s, '@'); i > 0 {
		return s[:i]
	}
	return s
}

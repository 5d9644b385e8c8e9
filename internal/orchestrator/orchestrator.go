package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/halcyonlabs/admind/internal/capability"
	"github.com/halcyonlabs/admind/internal/confidence"
	"github.com/halcyonlabs/admind/internal/entity"
	"github.com/halcyonlabs/admind/internal/planning"
	"github.com/halcyonlabs/admind/internal/reasoning"
	"github.com/halcyonlabs/admind/internal/session"
)

// Config configures the orchestrator.
type Config struct {
	// ExtractionTarget is the confidence target for the entity
	// extraction stage (default: 0.7).
	ExtractionTarget float64

	// WorkflowTarget is the confidence target for the end-of-run
	// workflow gate (default: 0.8).
	WorkflowTarget float64

	// DefaultDomain is appended to bare user identifiers during the
	// self-correction pass (default: "corp.example.com").
	DefaultDomain string

	// RequestTimeout bounds one full pipeline run (default: 2m).
	RequestTimeout time.Duration

	// SuggestionLimit is how many supplementary hints a low-confidence
	// stage fetches (default: 3).
	SuggestionLimit int

	// Executor configures the plan executor.
	Executor ExecutorConfig
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.ExtractionTarget == 0 {
		c.ExtractionTarget = 0.7
	}
	if c.WorkflowTarget == 0 {
		c.WorkflowTarget = 0.8
	}
	if c.DefaultDomain == "" {
		c.DefaultDomain = "corp.example.com"
	}
	if c.RequestTimeout == 0 {
		c.RequestTimeout = 2 * time.Minute
	}
	if c.SuggestionLimit == 0 {
		c.SuggestionLimit = 3
	}
	c.Executor.ApplyDefaults()
}

// Capabilities bundles the external collaborators one orchestrator
// consumes. Parser and Tools are required; the rest may be nil and
// degrade to permissive no-ops.
type Capabilities struct {
	Parser    capability.Parser
	Validator capability.Validator
	Security  capability.Security
	Tools     capability.ToolExecutor
	Memory    capability.Memory
}

// Orchestrator runs the full request pipeline. One Orchestrator serves
// many concurrent requests; all shared state (the confidence gate, the
// session registry) is internally synchronized.
type Orchestrator struct {
	caps     Capabilities
	config   Config
	gate     *confidence.Gate
	engine   *reasoning.Engine
	planner  *planning.Planner
	executor *Executor
	registry *session.Registry
	logger   *zap.Logger

	tracer         trace.Tracer
	requestCounter metric.Int64Counter
	durationHist   metric.Float64Histogram
}

// New creates an orchestrator around the given capabilities.
func New(caps Capabilities, cfg Config, logger *zap.Logger) (*Orchestrator, error) {
	if caps.Parser == nil {
		return nil, fmt.Errorf("parser capability is required")
	}
	if caps.Tools == nil {
		return nil, fmt.Errorf("tool executor capability is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.ApplyDefaults()

	gate := confidence.NewGate()
	engine := reasoning.NewEngine(caps.Memory, reasoning.Config{
		SuggestionLimit: cfg.SuggestionLimit,
	}, logger)

	o := &Orchestrator{
		caps:     caps,
		config:   cfg,
		gate:     gate,
		engine:   engine,
		planner:  planning.NewPlanner(caps.Security, logger),
		executor: NewExecutor(caps.Tools, caps.Security, engine, gate, cfg.Executor, logger),
		registry: session.NewRegistry(),
		logger:   logger,
		tracer:   otel.Tracer(instrumentationName),
	}

	meter := otel.Meter(instrumentationName)
	var err error
	o.requestCounter, err = meter.Int64Counter(
		"admind.orchestrator.requests_total",
		metric.WithDescription("Total number of orchestrated requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		logger.Warn("failed to create request counter", zap.Error(err))
	}
	o.durationHist, err = meter.Float64Histogram(
		"admind.orchestrator.request_duration_seconds",
		metric.WithDescription("End-to-end request duration"),
		metric.WithUnit("s"),
	)
	if err != nil {
		logger.Warn("failed to create duration histogram", zap.Error(err))
	}

	return o, nil
}

// Gate exposes the shared confidence gate, mainly for reporting surfaces.
func (o *Orchestrator) Gate() *confidence.Gate { return o.gate }

// Registry exposes the active-session registry.
func (o *Orchestrator) Registry() *session.Registry { return o.registry }

// ProcessRequest runs the whole pipeline synchronously and always
// returns a Result; pipeline failures end in a Failed result, never a
// panic or a lost request.
func (o *Orchestrator) ProcessRequest(ctx context.Context, req Request) Result {
	ctx, cancel := context.WithTimeout(ctx, o.config.RequestTimeout)
	defer cancel()
	ctx, span := o.tracer.Start(ctx, "Orchestrator.ProcessRequest")
	defer span.End()

	start := time.Now()
	sess := session.New(req.Initiator, req.Text)
	o.registry.Add(sess)
	span.SetAttributes(attribute.String("session_id", sess.ID()))

	res := Result{SessionID: sess.ID(), State: StateCreated}

	// Persistence and registry removal run regardless of how the
	// pipeline ends.
	defer func() {
		o.persist(ctx, sess)
		o.registry.Remove(sess.ID())

		res.ExecutionTime = time.Since(start)
		res.Events = sess.Events()
		res.Confidence = sess.ContextSnapshot().StageConfidence
		if o.requestCounter != nil {
			o.requestCounter.Add(ctx, 1, metric.WithAttributes(
				attribute.String("state", string(res.State)),
				attribute.Bool("success", res.Success),
			))
		}
		if o.durationHist != nil {
			o.durationHist.Record(ctx, res.ExecutionTime.Seconds())
		}
	}()

	fail := func(stage State, msg string) Result {
		sess.AddEvent("pipeline failed at %s: %s", stage, msg)
		span.SetStatus(codes.Error, msg)
		o.logger.Warn("pipeline failed",
			zap.String("session_id", sess.ID()),
			zap.String("stage", string(stage)),
			zap.String("reason", msg),
		)
		res.State = StateFailed
		res.Errors = append(res.Errors, msg)
		return res
	}

	advance := func(next State) {
		res.State = next
		sess.Annotate("state", string(next))
		sess.AddEvent("entering %s", next)
	}

	// Extraction.
	advance(StateExtracting)
	entities := o.extract(ctx, sess, req.Text)

	advance(StateConfidenceCheckExtract)
	entities = o.gateExtraction(ctx, sess, req.Text, entities)
	sess.SetEntities(entities)

	// Validation with one self-correction pass.
	advance(StateValidating)
	if ok, msg := o.validate(ctx, sess, &entities); !ok {
		return fail(StateValidating, msg)
	}
	// Self-correction may have rewritten identifiers.
	sess.SetEntities(entities)

	// Planning.
	advance(StatePlanning)
	plan, err := o.planner.CreatePlan(ctx, entities)
	if err != nil {
		return fail(StatePlanning, fmt.Sprintf("planning failed: %v", err))
	}
	plan = o.engine.EvaluateAndOptimizePlan(ctx, plan, entities, sess)
	res.Intent = plan.Intent
	sess.AddEvent("plan created: intent=%s steps=%d", plan.Intent, len(plan.Steps))

	// Execution.
	advance(StateExecuting)
	results, execErr := o.executor.Execute(ctx, plan, sess)
	res.Results = results
	for _, r := range results {
		if r.Status == planning.StatusFailed {
			res.Errors = append(res.Errors, fmt.Sprintf("step %s: %s", r.StepName, r.Error))
		}
	}

	// Workflow-level confidence: success means no step reported Failed.
	advance(StateConfidenceCheckWorkflow)
	noFailed := true
	for _, r := range results {
		if r.Status == planning.StatusFailed {
			noFailed = false
			break
		}
	}
	o.gate.RegisterOutcome(labelWorkflow, noFailed)
	sess.RecordStageConfidence(labelWorkflow, o.gate.Evaluate(labelWorkflow, o.config.WorkflowTarget))

	if execErr != nil {
		return fail(StateExecuting, execErr.Error())
	}

	advance(StatePersistingMemory)
	res.State = StateCompleted
	res.Success = true
	sess.AddEvent("pipeline completed with %d step results", len(results))
	return res
}

// extract runs the primary parser, degrading to the fallback parser when
// the primary raises.
func (o *Orchestrator) extract(ctx context.Context, sess *session.Session, text string) entity.Collection {
	entities, err := o.caps.Parser.ExtractEntities(ctx, text)
	if err != nil {
		sess.AddEvent("primary extraction failed, using fallback parser: %v", err)
		o.logger.Warn("primary extraction failed",
			zap.String("session_id", sess.ID()),
			zap.Error(err),
		)
		return o.caps.Parser.FallbackParse(ctx, text)
	}
	return entities
}

// gateExtraction registers extraction confidence and, when low, consults
// the resolution engine and merges fallback parser output. Duplicate
// entities (same identity) are not re-added.
func (o *Orchestrator) gateExtraction(ctx context.Context, sess *session.Session, text string, entities entity.Collection) entity.Collection {
	mean := entities.MeanConfidence()
	o.gate.RegisterOutcome(labelEntityExtraction, mean >= o.config.ExtractionTarget)
	metrics := o.gate.Evaluate(labelEntityExtraction, o.config.ExtractionTarget)
	sess.RecordStageConfidence(labelEntityExtraction, metrics)
	sess.AddEvent("extraction confidence: mean=%.3f lower=%.3f n=%d", mean, metrics.LowerBound, metrics.SampleSize)

	if mean >= o.config.ExtractionTarget && metrics.IsHighConfidence {
		return entities
	}

	resolution := o.engine.Resolve(ctx, reasoning.LowConfidenceIssue{
		Stage:   labelEntityExtraction,
		Metrics: metrics,
	}, sess)
	if resolution.SupplementaryLookup && o.caps.Memory != nil {
		hints, err := o.caps.Memory.GetSuggestions(ctx, text, sess.ID(), o.config.SuggestionLimit)
		if err != nil {
			o.logger.Warn("supplementary lookup failed",
				zap.String("session_id", sess.ID()),
				zap.Error(err),
			)
		} else if len(hints) > 0 {
			sess.AddSupplementary(hints...)
		}
	}

	merged := o.caps.Parser.FallbackParse(ctx, text)
	added := entities.Merge(merged)
	if added > 0 {
		sess.AddEvent("fallback parser merged %d additional entities", added)
	}
	return entities
}

// validate runs validation with at most one self-correction and
// re-validation; unresolved errors are terminal for the request.
func (o *Orchestrator) validate(ctx context.Context, sess *session.Session, entities *entity.Collection) (bool, string) {
	if o.caps.Validator == nil {
		return true, ""
	}

	result, err := o.caps.Validator.Validate(ctx, *entities, sess)
	if err != nil {
		return false, fmt.Sprintf("validation raised: %v", err)
	}
	if result.IsValid {
		return true, ""
	}

	sess.Annotate("state", string(StateSelfCorrecting))
	sess.AddEvent("validation failed (%d errors), attempting self-correction", len(result.Errors))
	o.selfCorrect(sess, entities)

	sess.Annotate("state", string(StateRevalidating))
	result, err = o.caps.Validator.Validate(ctx, *entities, sess)
	if err != nil {
		return false, fmt.Sprintf("re-validation raised: %v", err)
	}
	if result.IsValid {
		sess.AddEvent("self-correction resolved validation")
		return true, ""
	}

	resolution := o.engine.Resolve(ctx, reasoning.ValidationFailureIssue{Result: result}, sess)
	if resolution.Resolved {
		sess.AddEvent("validation resolved: %s", resolution.Resolution)
		return true, ""
	}
	return false, fmt.Sprintf("validation failed: %s", strings.Join(result.Errors, "; "))
}

// selfCorrect applies the one built-in normalization: bare user
// identifiers get the default domain suffix.
func (o *Orchestrator) selfCorrect(sess *session.Session, entities *entity.Collection) {
	corrected := 0
	for i, e := range entities.Entities {
		if e.Type != entity.TypeUser || strings.Contains(e.Value, "@") {
			continue
		}
		entities.Entities[i].Value = e.Value + "@" + o.config.DefaultDomain
		corrected++
	}
	if corrected > 0 {
		sess.AddEvent("self-correction appended default domain to %d user identifiers", corrected)
	}
}

// persist writes the session and its checkpoints through the memory
// capability. Best effort: failures are logged, never surfaced.
func (o *Orchestrator) persist(ctx context.Context, sess *session.Session) {
	if o.caps.Memory == nil {
		return
	}
	// The request context may already be done; persistence still runs.
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	if err := o.caps.Memory.PersistSession(pctx, sess, sess.Checkpoints()); err != nil {
		o.logger.Error("session persistence failed",
			zap.String("session_id", sess.ID()),
			zap.Error(err),
		)
	}
}

// Package tools provides the built-in tool registry: a ToolExecutor
// implementation hosting simulated administrative tools for account,
// mailbox, group, resource, and compliance operations.
//
// Domain failures (missing parameter, target not found, permission
// denied) are reported as a failed StepResult with a nil error, so the
// caller can reason about them. Only registry-level problems (unknown
// tool, handler panic-equivalent conditions) surface as Go errors and
// enter the recovery chain.
package tools

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/halcyonlabs/admind/internal/planning"
	"github.com/halcyonlabs/admind/internal/session"
)

const instrumentationName = "github.com/halcyonlabs/admind/internal/tools"

// Handler executes a single tool invocation. A non-empty failure string
// marks an expected domain failure; output is the success payload.
type Handler func(ctx context.Context, params map[string]string, execCtx session.ExecutionContext) (output any, failure string)

// Tool describes a registered tool.
type Tool struct {
	// Name is the unique tool name.
	Name string

	// Description is a one-line summary shown in listings.
	Description string

	// Required lists parameters that must be present and non-empty.
	Required []string

	// Handler runs the tool. Required parameters are validated before
	// the handler is called.
	Handler Handler
}

// Registry hosts tools and implements the ToolExecutor capability.
type Registry struct {
	mu     sync.RWMutex
	tools  map[string]Tool
	logger *zap.Logger

	tracer        trace.Tracer
	meter         metric.Meter
	invokeCounter metric.Int64Counter
}

// NewRegistry creates a registry pre-populated with the built-in
// administrative tools.
func NewRegistry(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}

	r := &Registry{
		tools:  make(map[string]Tool),
		logger: logger,
		tracer: otel.Tracer(instrumentationName),
		meter:  otel.Meter(instrumentationName),
	}

	var err error
	r.invokeCounter, err = r.meter.Int64Counter(
		"admind.tools.invocations_total",
		metric.WithDescription("Total number of tool invocations"),
		metric.WithUnit("{invocation}"),
	)
	if err != nil {
		logger.Warn("failed to create invocation counter", zap.Error(err))
	}

	for _, t := range builtinTools() {
		if regErr := r.Register(t); regErr != nil {
			logger.Warn("failed to register builtin tool",
				zap.String("tool", t.Name),
				zap.Error(regErr),
			)
		}
	}
	return r
}

// Register adds a tool. Registering an existing name replaces it.
func (r *Registry) Register(t Tool) error {
	if t.Name == "" {
		return fmt.Errorf("tool name is required")
	}
	if t.Handler == nil {
		return fmt.Errorf("tool %s: handler is required", t.Name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[t.Name] = t
	return nil
}

// Names returns the registered tool names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Has reports whether a tool is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.tools[name]
	return ok
}

// Invoke runs the named tool. An unknown tool is an exceptional error;
// everything a tool reports about its own domain comes back as a
// StepResult.
func (r *Registry) Invoke(ctx context.Context, toolName string, params map[string]string, execCtx session.ExecutionContext) (planning.StepResult, error) {
	ctx, span := r.tracer.Start(ctx, "Registry.Invoke",
		trace.WithAttributes(attribute.String("tool", toolName)),
	)
	defer span.End()

	r.mu.RLock()
	t, ok := r.tools[toolName]
	r.mu.RUnlock()
	if !ok {
		err := fmt.Errorf("unknown tool: %s", toolName)
		span.RecordError(err)
		return planning.StepResult{}, err
	}

	start := time.Now()
	result := planning.StepResult{
		Tool:   toolName,
		Status: planning.StatusCompleted,
	}

	if missing := missingParams(t.Required, params); len(missing) > 0 {
		result.Status = planning.StatusFailed
		result.Error = fmt.Sprintf("missing required parameters: %s", strings.Join(missing, ", "))
	} else {
		output, failure := t.Handler(ctx, params, execCtx)
		result.Output = output
		if failure != "" {
			result.Status = planning.StatusFailed
			result.Error = failure
		}
	}
	result.Duration = time.Since(start)

	span.SetAttributes(attribute.String("status", string(result.Status)))
	if r.invokeCounter != nil {
		r.invokeCounter.Add(ctx, 1, metric.WithAttributes(
			attribute.String("tool", toolName),
			attribute.String("status", string(result.Status)),
		))
	}
	r.logger.Debug("tool invoked",
		zap.String("tool", toolName),
		zap.String("status", string(result.Status)),
		zap.Duration("duration", result.Duration),
	)
	return result, nil
}

func missingParams(required []string, params map[string]string) []string {
	var missing []string
	for _, name := range required {
		if strings.TrimSpace(params[name]) == "" {
			missing = append(missing, name)
		}
	}
	return missing
}

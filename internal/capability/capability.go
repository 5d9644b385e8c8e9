// Package capability defines the contracts for the external collaborators
// the orchestration core consumes: parsing, validation, security,
// tool execution, and memory. Implementations live elsewhere (or out of
// process); the core depends only on these interfaces.
package capability

import (
	"context"

	"github.com/halcyonlabs/admind/internal/entity"
	"github.com/halcyonlabs/admind/internal/planning"
	"github.com/halcyonlabs/admind/internal/session"
)

// ValidationResult is the structured outcome of entity validation.
type ValidationResult struct {
	// IsValid is true when there are no hard errors.
	IsValid bool `json:"is_valid"`

	// Errors are hard validation failures.
	Errors []string `json:"errors,omitempty"`

	// Warnings are advisory findings that do not block execution.
	Warnings []string `json:"warnings,omitempty"`
}

// Parser extracts entities from free text.
type Parser interface {
	// ExtractEntities runs the primary extractor. Each returned entity
	// carries a confidence score in [0,1].
	ExtractEntities(ctx context.Context, text string) (entity.Collection, error)

	// FallbackParse runs the deterministic, lower-precision extractor.
	// It is always available and never fails.
	FallbackParse(ctx context.Context, text string) entity.Collection
}

// Validator checks extracted entities against field-level rules and
// naming/compliance conventions.
type Validator interface {
	Validate(ctx context.Context, entities entity.Collection, sess *session.Session) (ValidationResult, error)
}

// Security determines plan-level requirements and pre-authorizes
// individual steps. A PreAuthorize denial is a hard stop for the whole
// plan, never retried or healed.
type Security interface {
	DetermineRequirements(ctx context.Context, intent planning.Intent, entities entity.Collection) (planning.Requirements, error)

	// PreAuthorize reports whether the step may run. When ok is false,
	// reason explains the denial.
	PreAuthorize(ctx context.Context, step planning.Step, execCtx session.ExecutionContext, sess *session.Session) (ok bool, reason string)
}

// ToolExecutor invokes administrative tools.
//
// Expected domain failures (mailbox not found, permission already granted)
// must be returned as a StepResult with StatusFailed and error text, with a
// nil Go error. A non-nil error signals a truly exceptional condition and
// triggers the recovery strategy chain.
type ToolExecutor interface {
	Invoke(ctx context.Context, toolName string, params map[string]string, execCtx session.ExecutionContext) (planning.StepResult, error)
}

// Memory is the semantic memory capability consumed as a source of
// contextual hints and as the persistence sink for completed sessions.
// All calls are bounded by the implementation's own timeout; callers must
// degrade to "no suggestions" on failure rather than aborting the pipeline.
type Memory interface {
	// GetSuggestions returns up to max contextual hints for the query.
	GetSuggestions(ctx context.Context, query, sessionID string, max int) ([]string, error)

	// StoreRecord writes a memory record and returns its ID.
	StoreRecord(ctx context.Context, content, category string, metadata map[string]string, sessionID string) (string, error)

	// PersistSession persists the session's context, audit trail, and
	// checkpoints for later retrieval.
	PersistSession(ctx context.Context, sess *session.Session, checkpoints []session.Checkpoint) error
}

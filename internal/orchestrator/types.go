package orchestrator

import (
	"time"

	"github.com/halcyonlabs/admind/internal/confidence"
	"github.com/halcyonlabs/admind/internal/planning"
	"github.com/halcyonlabs/admind/internal/session"
)

// State is one stage of the request lifecycle. Stages run strictly in
// sequence; a branch may re-enter an earlier stage once (self-correction)
// but never loops.
type State string

const (
	StateCreated                  State = "created"
	StateExtracting               State = "extracting"
	StateConfidenceCheckExtract   State = "confidence_check_extraction"
	StateValidating               State = "validating"
	StateSelfCorrecting           State = "self_correcting"
	StateRevalidating             State = "revalidating"
	StatePlanning                 State = "planning"
	StateExecuting                State = "executing"
	StateConfidenceCheckWorkflow  State = "confidence_check_workflow"
	StatePersistingMemory         State = "persisting_memory"
	StateCompleted                State = "completed"
	StateFailed                   State = "failed"
)

// Confidence gate labels for the two measured stages.
const (
	labelEntityExtraction = "EntityExtraction"
	labelToolExecution    = "ToolExecution"
	labelWorkflow         = "Workflow"
)

// Request is one free-text administrative request. Immutable once
// created.
type Request struct {
	// Text is the free-text request body.
	Text string `json:"text"`

	// Initiator identifies who submitted the request.
	Initiator string `json:"initiator"`

	// SubmittedAt is when the request was received.
	SubmittedAt time.Time `json:"submitted_at"`

	// Metadata carries arbitrary caller annotations.
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Result is the outcome of one orchestrated request.
type Result struct {
	// SessionID identifies the session that processed the request.
	SessionID string `json:"session_id"`

	// Success is true when the pipeline reached Completed.
	Success bool `json:"success"`

	// State is the terminal state.
	State State `json:"state"`

	// Intent is the classified workflow intent, when planning ran.
	Intent planning.Intent `json:"intent,omitempty"`

	// Results are the per-step outcomes, in execution order.
	Results []planning.StepResult `json:"results,omitempty"`

	// Errors lists request-level failures (validation, denial, abort).
	Errors []string `json:"errors,omitempty"`

	// Confidence holds the per-stage confidence metrics recorded during
	// the run.
	Confidence map[string]confidence.Metrics `json:"confidence,omitempty"`

	// Events is the session audit trail.
	Events []session.Event `json:"events,omitempty"`

	// ExecutionTime is the wall-clock duration of the whole pipeline.
	ExecutionTime time.Duration `json:"execution_time"`
}

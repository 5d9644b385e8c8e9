package session

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/halcyonlabs/admind/internal/confidence"
	"github.com/halcyonlabs/admind/internal/entity"
	"github.com/halcyonlabs/admind/internal/planning"
)

// ExecutionContext is the shared state steps read and write during plan
// execution. Named fields replace the open-ended key/value bag; Annotations
// remains as a small escape hatch for genuinely dynamic notes.
type ExecutionContext struct {
	// Entities are the extracted entities driving the plan.
	Entities entity.Collection `json:"entities"`

	// StageConfidence records the confidence metrics computed per pipeline
	// stage (EntityExtraction, ToolExecution, Workflow).
	StageConfidence map[string]confidence.Metrics `json:"stage_confidence,omitempty"`

	// Suggestions are contextual hints fetched from the memory capability.
	Suggestions []string `json:"suggestions,omitempty"`

	// Supplementary holds extra evidence gathered after a low-confidence
	// signal.
	Supplementary []string `json:"supplementary,omitempty"`

	// StepOutputs maps completed step names to their opaque result
	// payloads, for use by later steps. Payloads are treated as immutable
	// once stored.
	StepOutputs map[string]any `json:"step_outputs,omitempty"`

	// Annotations carries dynamic string notes.
	Annotations map[string]string `json:"annotations,omitempty"`
}

// DeepCopy returns an independent copy of the context. Container fields are
// copied; step output payloads are shared by value since they are immutable
// after storage.
func (c ExecutionContext) DeepCopy() ExecutionContext {
	out := ExecutionContext{
		Entities: c.Entities.Clone(),
	}
	if c.StageConfidence != nil {
		out.StageConfidence = make(map[string]confidence.Metrics, len(c.StageConfidence))
		for k, v := range c.StageConfidence {
			out.StageConfidence[k] = v
		}
	}
	out.Suggestions = append([]string(nil), c.Suggestions...)
	out.Supplementary = append([]string(nil), c.Supplementary...)
	if c.StepOutputs != nil {
		out.StepOutputs = make(map[string]any, len(c.StepOutputs))
		for k, v := range c.StepOutputs {
			out.StepOutputs[k] = v
		}
	}
	if c.Annotations != nil {
		out.Annotations = make(map[string]string, len(c.Annotations))
		for k, v := range c.Annotations {
			out.Annotations[k] = v
		}
	}
	return out
}

// Checkpoint is an immutable snapshot taken after each executed step, used
// for recovery and audit. Checkpoints are strictly ordered by step index
// within a session and never deleted during a run.
type Checkpoint struct {
	// StepIndex is the index of the step this checkpoint follows.
	StepIndex int `json:"step_index"`

	// Tool is the tool the step invoked.
	Tool string `json:"tool"`

	// Context is a value copy of the execution context after the step.
	Context ExecutionContext `json:"context"`

	// Result is the step's result.
	Result planning.StepResult `json:"result"`

	// CreatedAt is when the checkpoint was taken.
	CreatedAt time.Time `json:"created_at"`
}

// Event is one human-readable audit trail entry.
type Event struct {
	At      time.Time `json:"at"`
	Message string    `json:"message"`
}

// Session tracks one request through the pipeline.
type Session struct {
	id        string
	initiator string
	request   string
	startedAt time.Time

	mu          sync.RWMutex
	execCtx     ExecutionContext
	events      []Event
	results     []planning.StepResult
	checkpoints []Checkpoint
}

// New creates a session for a request. The session ID is a fresh UUID and
// is never reused.
func New(initiator, request string) *Session {
	return &Session{
		id:        uuid.NewString(),
		initiator: initiator,
		request:   request,
		startedAt: time.Now(),
		execCtx: ExecutionContext{
			StepOutputs: make(map[string]any),
			Annotations: make(map[string]string),
		},
	}
}

// ID returns the globally unique session identifier.
func (s *Session) ID() string { return s.id }

// Initiator returns who submitted the request.
func (s *Session) Initiator() string { return s.initiator }

// Request returns the original free-text request.
func (s *Session) Request() string { return s.request }

// StartedAt returns when the session began.
func (s *Session) StartedAt() time.Time { return s.startedAt }

// AddEvent appends a formatted entry to the audit trail.
func (s *Session) AddEvent(format string, args ...any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, Event{
		At:      time.Now(),
		Message: fmt.Sprintf(format, args...),
	})
}

// Events returns a copy of the audit trail.
func (s *Session) Events() []Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Event(nil), s.events...)
}

// SetEntities replaces the extracted entity collection.
func (s *Session) SetEntities(entities entity.Collection) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.execCtx.Entities = entities.Clone()
}

// Entities returns a copy of the extracted entities.
func (s *Session) Entities() entity.Collection {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.execCtx.Entities.Clone()
}

// RecordStageConfidence stores the confidence metrics computed for a stage.
func (s *Session) RecordStageConfidence(stage string, m confidence.Metrics) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.execCtx.StageConfidence == nil {
		s.execCtx.StageConfidence = make(map[string]confidence.Metrics)
	}
	s.execCtx.StageConfidence[stage] = m
}

// AttachSuggestions appends memory suggestions to the context for audit
// visibility.
func (s *Session) AttachSuggestions(suggestions []string) {
	if len(suggestions) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.execCtx.Suggestions = append(s.execCtx.Suggestions, suggestions...)
}

// AddSupplementary appends supplementary evidence gathered after a
// low-confidence signal.
func (s *Session) AddSupplementary(info ...string) {
	if len(info) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.execCtx.Supplementary = append(s.execCtx.Supplementary, info...)
}

// Annotate sets a dynamic annotation. Keys are append-only in practice;
// writing an existing key is last-writer-wins.
func (s *Session) Annotate(key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.execCtx.Annotations == nil {
		s.execCtx.Annotations = make(map[string]string)
	}
	s.execCtx.Annotations[key] = value
}

// MergeStepOutput records a completed step's payload in the shared context
// for later steps to consume.
func (s *Session) MergeStepOutput(stepName string, output any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.execCtx.StepOutputs == nil {
		s.execCtx.StepOutputs = make(map[string]any)
	}
	s.execCtx.StepOutputs[stepName] = output
}

// ContextSnapshot returns a value copy of the current execution context.
func (s *Session) ContextSnapshot() ExecutionContext {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.execCtx.DeepCopy()
}

// AppendResult appends a step result to the session's ordered result list.
func (s *Session) AppendResult(r planning.StepResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results = append(s.results, r)
}

// Results returns a copy of the ordered step results.
func (s *Session) Results() []planning.StepResult {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]planning.StepResult(nil), s.results...)
}

// TruncateResults drops results from index n onward. Used by adaptive
// re-planning, which resets only the not-yet-executed portion of a pass.
func (s *Session) TruncateResults(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n >= 0 && n < len(s.results) {
		s.results = s.results[:n]
	}
}

// AppendCheckpoint appends a checkpoint. Checkpoints must arrive in
// strictly increasing step-index order within a session.
func (s *Session) AppendCheckpoint(cp Checkpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n := len(s.checkpoints); n > 0 && cp.StepIndex <= s.checkpoints[n-1].StepIndex {
		return fmt.Errorf("checkpoint step index %d not after previous %d",
			cp.StepIndex, s.checkpoints[n-1].StepIndex)
	}
	s.checkpoints = append(s.checkpoints, cp)
	return nil
}

// Checkpoints returns a copy of the checkpoint list.
func (s *Session) Checkpoints() []Checkpoint {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Checkpoint(nil), s.checkpoints...)
}

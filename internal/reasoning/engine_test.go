package reasoning

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/halcyonlabs/admind/internal/capability"
	"github.com/halcyonlabs/admind/internal/confidence"
	"github.com/halcyonlabs/admind/internal/entity"
	"github.com/halcyonlabs/admind/internal/planning"
	"github.com/halcyonlabs/admind/internal/session"
)

// MockMemory is a mock implementation of capability.Memory.
type MockMemory struct {
	mock.Mock
}

func (m *MockMemory) GetSuggestions(ctx context.Context, query, sessionID string, max int) ([]string, error) {
	args := m.Called(ctx, query, sessionID, max)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *MockMemory) StoreRecord(ctx context.Context, content, category string, metadata map[string]string, sessionID string) (string, error) {
	args := m.Called(ctx, content, category, metadata, sessionID)
	return args.String(0), args.Error(1)
}

func (m *MockMemory) PersistSession(ctx context.Context, sess *session.Session, checkpoints []session.Checkpoint) error {
	args := m.Called(ctx, sess, checkpoints)
	return args.Error(0)
}

func newTestEngine(memory capability.Memory) *Engine {
	return NewEngine(memory, Config{}, nil)
}

func TestEngine_Resolve_ValidationWarningsOnly(t *testing.T) {
	e := newTestEngine(nil)
	sess := session.New("helpdesk", "grant access")

	res := e.Resolve(context.Background(), ValidationFailureIssue{
		Result: capability.ValidationResult{
			IsValid:  false,
			Warnings: []string{"display name unusual"},
		},
	}, sess)

	assert.True(t, res.Resolved)
	assert.Equal(t, "Validation warnings acknowledged", res.Resolution)
}

func TestEngine_Resolve_ValidationHardError(t *testing.T) {
	e := newTestEngine(nil)
	sess := session.New("helpdesk", "grant access")

	res := e.Resolve(context.Background(), ValidationFailureIssue{
		Result: capability.ValidationResult{
			Errors:   []string{"user bob.smiht not found"},
			Warnings: []string{"display name unusual"},
		},
	}, sess)

	assert.False(t, res.Resolved, "hard errors are unresolved regardless of warnings")
	assert.Contains(t, res.Actions[0], "bob.smiht")
}

func TestEngine_Resolve_ToolError(t *testing.T) {
	e := newTestEngine(nil)
	sess := session.New("helpdesk", "grant access")

	res := e.Resolve(context.Background(), ToolErrorIssue{
		Step: planning.Step{Name: "grant_mailbox_permission", Tool: "grant_mailbox_permission"},
		Err:  "Error: mailbox shared_mailbox_01 not found",
	}, sess)

	assert.False(t, res.Resolved, "tool errors are informational; recovery belongs to the strategy chain")
	assert.Equal(t, "Tool execution error analyzed", res.Resolution)
	assert.Contains(t, res.Actions, "Error: Error: mailbox shared_mailbox_01 not found")
	assert.Contains(t, res.Actions, "Identifier: shared_mailbox_01")
}

func TestEngine_Resolve_LowConfidence(t *testing.T) {
	e := newTestEngine(nil)
	sess := session.New("helpdesk", "grant access")

	res := e.Resolve(context.Background(), LowConfidenceIssue{
		Stage: "EntityExtraction",
		Metrics: confidence.Metrics{
			ActionType: "EntityExtraction",
			LowerBound: 0.41,
			Mean:       0.6,
		},
	}, sess)

	assert.False(t, res.Resolved)
	assert.Contains(t, res.Resolution, "EntityExtraction")
	assert.True(t, res.SupplementaryLookup)
	assert.Contains(t, res.Actions, "LowerBound: 0.4100")
}

func TestEngine_Resolve_UnknownIssue(t *testing.T) {
	e := newTestEngine(nil)
	sess := session.New("helpdesk", "grant access")

	res := e.Resolve(context.Background(), nil, sess)

	assert.False(t, res.Resolved)
	assert.Equal(t, "unknown issue type", res.Resolution)
}

func TestEngine_Resolve_MemoryWriteFailureIsNotFatal(t *testing.T) {
	memory := &MockMemory{}
	memory.On("GetSuggestions", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return([]string{"prior run granted FullAccess"}, nil)
	memory.On("StoreRecord", mock.Anything, mock.Anything, "reasoning", mock.Anything, mock.Anything).
		Return("", errors.New("store unavailable"))

	e := newTestEngine(memory)
	sess := session.New("helpdesk", "grant access")

	res := e.Resolve(context.Background(), ToolErrorIssue{Err: "boom"}, sess)

	assert.Equal(t, "Tool execution error analyzed", res.Resolution)
	memory.AssertExpectations(t)
}

func TestEngine_EvaluateAndOptimizePlan_AnnotateOnly(t *testing.T) {
	memory := &MockMemory{}
	memory.On("GetSuggestions", mock.Anything, mock.Anything, mock.Anything, 3).
		Return([]string{"similar request succeeded with SendAs"}, nil)

	e := newTestEngine(memory)
	sess := session.New("helpdesk", "grant access")
	entities := entity.Collection{}
	entities.Add(entity.Entity{Type: entity.TypeAction, Value: "grant access"})

	plan := planning.Plan{
		Intent: planning.IntentPermissionManagement,
		Steps: []planning.Step{
			{Name: "grant_mailbox_permission", Tool: "grant_mailbox_permission", Index: 0},
		},
	}

	first := e.EvaluateAndOptimizePlan(context.Background(), plan, entities, sess)
	second := e.EvaluateAndOptimizePlan(context.Background(), first, entities, sess)

	// Step sequence must be stable across repeated optimization.
	assert.Equal(t, plan.StepNames(), first.StepNames())
	assert.Equal(t, plan.StepNames(), second.StepNames())
	assert.Equal(t, plan.Steps[0].Parameters, second.Steps[0].Parameters)

	// Annotations may accumulate; the session gains audit visibility.
	assert.NotEmpty(t, first.Annotations)
	assert.NotEmpty(t, sess.ContextSnapshot().Suggestions)
}

func TestEngine_EvaluateAndOptimizePlan_MemoryFailureLeavesPlanUntouched(t *testing.T) {
	memory := &MockMemory{}
	memory.On("GetSuggestions", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(nil, errors.New("timeout"))

	e := newTestEngine(memory)
	sess := session.New("helpdesk", "grant access")

	plan := planning.Plan{Steps: []planning.Step{{Name: "a", Tool: "a"}}}
	out := e.EvaluateAndOptimizePlan(context.Background(), plan, entity.Collection{}, sess)

	assert.Equal(t, plan.StepNames(), out.StepNames())
	assert.Empty(t, out.Annotations)
}

func TestEngine_EvaluateNextStep_OnlyActsOnFailure(t *testing.T) {
	e := newTestEngine(nil)
	sess := session.New("helpdesk", "offboard")
	plan := planning.Plan{Steps: []planning.Step{
		{Name: "remove_permissions", Tool: "remove_permissions", Index: 0},
		{Name: "remove_mailbox", Tool: "remove_mailbox", Index: 1},
	}}

	out := e.EvaluateNextStep(context.Background(), plan, 0,
		planning.StepResult{Status: planning.StatusCompleted}, sess)
	assert.Equal(t, plan.StepNames(), out.StepNames())

	// Failed without a suggested plan still returns the original plan.
	out = e.EvaluateNextStep(context.Background(), plan, 0,
		planning.StepResult{Status: planning.StatusFailed, Error: "boom"}, sess)
	assert.Equal(t, plan.StepNames(), out.StepNames())
}

func TestExtractIdentifier(t *testing.T) {
	assert.Equal(t, "alice.jones@example.com",
		ExtractIdentifier("Error: user alice.jones@example.com not found"))
	assert.Equal(t, "shared_mailbox_01",
		ExtractIdentifier("Validation failed for mailbox shared_mailbox_01"))
	assert.Equal(t, "", ExtractIdentifier("no identifier here"))
}

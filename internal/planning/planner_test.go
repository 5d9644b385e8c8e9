package planning

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/halcyonlabs/admind/internal/entity"
)

// MockRequirementsSource is a mock implementation of RequirementsSource.
type MockRequirementsSource struct {
	mock.Mock
}

func (m *MockRequirementsSource) DetermineRequirements(ctx context.Context, intent Intent, entities entity.Collection) (Requirements, error) {
	args := m.Called(ctx, intent, entities)
	return args.Get(0).(Requirements), args.Error(1)
}

func permissionEntities() entity.Collection {
	c := entity.Collection{}
	c.Add(entity.Entity{Type: entity.TypeAction, Value: "grant access", Confidence: 0.9})
	c.Add(entity.Entity{Type: entity.TypeUser, Value: "bob.smith@example.gov", Confidence: 0.9})
	c.Add(entity.Entity{Type: entity.TypeMailbox, Value: "shared_mailbox_01", Confidence: 0.8})
	c.Add(entity.Entity{Type: entity.TypeAccessRights, Value: "FullAccess", Confidence: 0.8})
	return c
}

func TestClassifyIntent(t *testing.T) {
	tests := []struct {
		name   string
		action string
		want   Intent
	}{
		{"provisioning", "create new account", IntentAccountProvisioning},
		{"deprovisioning", "offboard user", IntentAccountDeprovisioning},
		{"permissions", "grant full access", IntentPermissionManagement},
		{"group", "add to distribution group", IntentGroupManagement},
		{"resource", "book conference room calendar", IntentResourceManagement},
		{"compliance", "apply litigation hold", IntentCompliance},
		{"reporting", "mailbox usage report", IntentReporting},
		{"maintenance", "run health check", IntentMaintenance},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := entity.Collection{}
			c.Add(entity.Entity{Type: entity.TypeAction, Value: tt.action})
			assert.Equal(t, tt.want, ClassifyIntent(c))
		})
	}
}

func TestClassifyIntent_NoActionFallsBackToEntityMix(t *testing.T) {
	c := entity.Collection{}
	c.Add(entity.Entity{Type: entity.TypeAccessRights, Value: "SendAs"})
	assert.Equal(t, IntentPermissionManagement, ClassifyIntent(c))

	empty := entity.Collection{}
	assert.Equal(t, IntentUnknown, ClassifyIntent(empty))
}

func TestPlanner_CreatePlan_PermissionManagement(t *testing.T) {
	p := NewPlanner(nil, nil)

	plan, err := p.CreatePlan(context.Background(), permissionEntities())

	require.NoError(t, err)
	assert.Equal(t, IntentPermissionManagement, plan.Intent)
	require.Len(t, plan.Steps, 1)

	step := plan.Steps[0]
	assert.Equal(t, "grant_mailbox_permission", step.Tool)
	assert.True(t, step.Critical)
	assert.Equal(t, "shared_mailbox_01", step.Parameters["MailboxIdentity"])
	assert.Equal(t, "FullAccess", step.Parameters["AccessRights"])
	assert.Equal(t, 0, step.Index)
	assert.True(t, plan.Requirements.AuditTrail)
}

func TestPlanner_CreatePlan_DeprovisioningOrderAndDependencies(t *testing.T) {
	c := entity.Collection{}
	c.Add(entity.Entity{Type: entity.TypeAction, Value: "offboard"})
	c.Add(entity.Entity{Type: entity.TypeUser, Value: "alice.jones@example.gov"})

	p := NewPlanner(nil, nil)
	plan, err := p.CreatePlan(context.Background(), c)

	require.NoError(t, err)
	require.Equal(t, []string{"remove_permissions", "remove_mailbox", "disable_account"}, plan.StepNames())
	assert.True(t, plan.Steps[1].Critical)
	assert.Equal(t, []string{"remove_mailbox"}, plan.Steps[2].DependsOn)
	for i, s := range plan.Steps {
		assert.Equal(t, i, s.Index)
	}
}

func TestPlanner_CreatePlan_Deterministic(t *testing.T) {
	p := NewPlanner(nil, nil)
	entities := permissionEntities()

	first, err := p.CreatePlan(context.Background(), entities)
	require.NoError(t, err)
	second, err := p.CreatePlan(context.Background(), entities)
	require.NoError(t, err)

	assert.Equal(t, first.StepNames(), second.StepNames())
	assert.Equal(t, first.Steps[0].Parameters, second.Steps[0].Parameters)
}

func TestPlanner_CreatePlan_SecurityRequirements(t *testing.T) {
	sec := &MockRequirementsSource{}
	sec.On("DetermineRequirements", mock.Anything, IntentPermissionManagement, mock.Anything).
		Return(Requirements{SecurityReview: true, AuditTrail: true, Flags: []string{"elevated"}}, nil)

	p := NewPlanner(sec, nil)
	plan, err := p.CreatePlan(context.Background(), permissionEntities())

	require.NoError(t, err)
	assert.True(t, plan.Requirements.SecurityReview)
	assert.Equal(t, []string{"elevated"}, plan.Requirements.Flags)
	sec.AssertExpectations(t)
}

func TestPlanner_CreatePlan_UnknownIntent(t *testing.T) {
	p := NewPlanner(nil, nil)

	_, err := p.CreatePlan(context.Background(), entity.Collection{})

	assert.Error(t, err)
}

func TestStep_WithToolDoesNotMutateOriginal(t *testing.T) {
	orig := Step{
		Name:       "remove_mailbox",
		Tool:       "remove_mailbox",
		Parameters: map[string]string{"MailboxIdentity": "mb1"},
	}

	sub := orig.WithTool("disable_account")
	sub.Parameters["MailboxIdentity"] = "changed"

	assert.Equal(t, "remove_mailbox", orig.Tool)
	assert.Equal(t, "mb1", orig.Parameters["MailboxIdentity"])
	assert.Equal(t, "disable_account", sub.Tool)
}

// Package planning turns extracted entities and a classified intent into an
// ordered, dependency-respecting sequence of tool invocations.
package planning

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/halcyonlabs/admind/internal/entity"
)

// RequirementsSource determines the security and audit obligations for a
// plan. The security capability satisfies this interface.
type RequirementsSource interface {
	DetermineRequirements(ctx context.Context, intent Intent, entities entity.Collection) (Requirements, error)
}

// Planner builds plans from extracted entities via a deterministic rule
// table keyed by intent.
type Planner struct {
	security RequirementsSource
	logger   *zap.Logger
}

// NewPlanner creates a planner. security may be nil, in which case plans
// carry default requirements (audit on, review off).
func NewPlanner(security RequirementsSource, logger *zap.Logger) *Planner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Planner{security: security, logger: logger}
}

// CreatePlan classifies the intent from the entity collection, resolves the
// ordered step list for that intent, and attaches security/audit
// requirements. The step list for a given (intent, entities) pair is
// deterministic.
func (p *Planner) CreatePlan(ctx context.Context, entities entity.Collection) (Plan, error) {
	intent := ClassifyIntent(entities)

	steps, err := stepsForIntent(intent, entities)
	if err != nil {
		return Plan{}, err
	}
	for i := range steps {
		steps[i].Index = i
	}

	plan := Plan{
		Intent:    intent,
		Steps:     steps,
		CreatedAt: time.Now(),
		Requirements: Requirements{
			AuditTrail: true,
		},
	}

	if p.security != nil {
		req, err := p.security.DetermineRequirements(ctx, intent, entities)
		if err != nil {
			// Requirements determination failing must not lose the plan;
			// fall back to the strictest defaults.
			p.logger.Warn("requirements determination failed, using strict defaults",
				zap.String("intent", string(intent)),
				zap.Error(err),
			)
			req = Requirements{SecurityReview: true, AuditTrail: true}
		}
		plan.Requirements = req
	}

	p.logger.Debug("plan created",
		zap.String("intent", string(intent)),
		zap.Int("steps", len(plan.Steps)),
		zap.Strings("step_names", plan.StepNames()),
	)

	return plan, nil
}

// ClassifyIntent maps the extracted action and entity mix onto the fixed
// intent enumeration. Unrecognized requests classify as IntentUnknown.
func ClassifyIntent(entities entity.Collection) Intent {
	action := ""
	if a, ok := entities.First(entity.TypeAction); ok {
		action = strings.ToLower(a.Value)
	}

	switch {
	case containsAny(action, "provision", "create", "onboard", "new hire"):
		if entities.Len() > 0 && len(entities.ByType(entity.TypeGroup)) > 0 && len(entities.ByType(entity.TypeUser)) == 0 {
			return IntentGroupManagement
		}
		return IntentAccountProvisioning
	case containsAny(action, "deprovision", "offboard", "terminate", "remove account", "delete account"):
		return IntentAccountDeprovisioning
	case containsAny(action, "grant", "permission", "access", "delegate", "send as"):
		return IntentPermissionManagement
	case containsAny(action, "group", "membership", "add to", "remove from"):
		return IntentGroupManagement
	case containsAny(action, "resource", "room", "equipment", "calendar"):
		return IntentResourceManagement
	case containsAny(action, "hold", "litigation", "retention", "compliance", "ediscovery"):
		return IntentCompliance
	case containsAny(action, "report", "usage", "statistics"):
		return IntentReporting
	case containsAny(action, "maintenance", "health", "cleanup", "repair"):
		return IntentMaintenance
	}

	// No action verb: infer from the dominant entity type.
	switch {
	case len(entities.ByType(entity.TypeAccessRights)) > 0:
		return IntentPermissionManagement
	case len(entities.ByType(entity.TypeGroup)) > 0:
		return IntentGroupManagement
	case len(entities.ByType(entity.TypeResource)) > 0:
		return IntentResourceManagement
	}
	return IntentUnknown
}

// stepsForIntent is the deterministic intent → step rule table.
func stepsForIntent(intent Intent, entities entity.Collection) ([]Step, error) {
	user := firstValue(entities, entity.TypeUser)
	mailbox := firstValue(entities, entity.TypeMailbox)
	group := firstValue(entities, entity.TypeGroup)
	rights := firstValue(entities, entity.TypeAccessRights)
	resource := firstValue(entities, entity.TypeResource)

	if mailbox == "" {
		mailbox = user
	}
	if rights == "" {
		rights = "Reviewer"
	}

	switch intent {
	case IntentAccountProvisioning:
		steps := []Step{
			{Name: "create_account", Tool: "create_account", Critical: true,
				Parameters: map[string]string{"User": user}},
			{Name: "create_mailbox", Tool: "create_mailbox", Critical: true,
				DependsOn:  []string{"create_account"},
				Parameters: map[string]string{"Mailbox": mailbox, "User": user}},
		}
		if group != "" {
			steps = append(steps, Step{
				Name: "add_to_group", Tool: "add_to_group",
				DependsOn:  []string{"create_account"},
				Parameters: map[string]string{"User": user, "Group": group},
			})
		}
		return steps, nil

	case IntentAccountDeprovisioning:
		return []Step{
			{Name: "remove_permissions", Tool: "remove_permissions",
				Parameters: map[string]string{"User": user}},
			{Name: "remove_mailbox", Tool: "remove_mailbox", Critical: true,
				Parameters: map[string]string{"MailboxIdentity": mailbox}},
			{Name: "disable_account", Tool: "disable_account",
				DependsOn:  []string{"remove_mailbox"},
				Parameters: map[string]string{"User": user}},
		}, nil

	case IntentPermissionManagement:
		return []Step{
			{Name: "grant_mailbox_permission", Tool: "grant_mailbox_permission", Critical: true,
				Parameters: map[string]string{
					"MailboxIdentity": mailbox,
					"User":            user,
					"AccessRights":    rights,
				}},
		}, nil

	case IntentGroupManagement:
		tool := "add_to_group"
		if a, ok := entities.First(entity.TypeAction); ok &&
			containsAny(strings.ToLower(a.Value), "remove", "revoke") {
			tool = "remove_from_group"
		}
		return []Step{
			{Name: tool, Tool: tool, Critical: true,
				Parameters: map[string]string{"User": user, "Group": group}},
		}, nil

	case IntentResourceManagement:
		return []Step{
			{Name: "configure_resource_mailbox", Tool: "configure_resource_mailbox", Critical: true,
				Parameters: map[string]string{"Resource": resource, "User": user}},
		}, nil

	case IntentCompliance:
		return []Step{
			{Name: "apply_litigation_hold", Tool: "apply_litigation_hold", Critical: true,
				Parameters: map[string]string{"MailboxIdentity": mailbox}},
			{Name: "generate_compliance_report", Tool: "generate_report",
				DependsOn:  []string{"apply_litigation_hold"},
				Parameters: map[string]string{"Scope": "compliance", "MailboxIdentity": mailbox}},
		}, nil

	case IntentReporting:
		return []Step{
			{Name: "generate_report", Tool: "generate_report",
				Parameters: map[string]string{"Scope": "usage"}},
		}, nil

	case IntentMaintenance:
		return []Step{
			{Name: "run_maintenance_check", Tool: "run_maintenance_check",
				Parameters: map[string]string{}},
		}, nil
	}

	return nil, fmt.Errorf("no step rules for intent %q", intent)
}

func firstValue(entities entity.Collection, t entity.Type) string {
	if e, ok := entities.First(t); ok {
		return e.Value
	}
	return ""
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

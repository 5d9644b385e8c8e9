package planning

import (
	"time"
)

// Intent classifies what kind of administrative workflow a request asks for.
type Intent string

const (
	IntentAccountProvisioning   Intent = "account_provisioning"
	IntentAccountDeprovisioning Intent = "account_deprovisioning"
	IntentPermissionManagement  Intent = "permission_management"
	IntentGroupManagement       Intent = "group_management"
	IntentResourceManagement    Intent = "resource_management"
	IntentCompliance            Intent = "compliance"
	IntentReporting             Intent = "reporting"
	IntentMaintenance           Intent = "maintenance"
	IntentUnknown               Intent = "unknown"
)

// StepStatus is the execution status of a single step.
type StepStatus string

const (
	StatusPending   StepStatus = "pending"
	StatusRunning   StepStatus = "running"
	StatusCompleted StepStatus = "completed"
	StatusFailed    StepStatus = "failed"
	StatusSkipped   StepStatus = "skipped"
	StatusRetrying  StepStatus = "retrying"
)

// Step is one tool invocation within a plan. A step is immutable after
// creation; a recovery strategy that changes a step produces a new Step
// value, never mutates in place.
type Step struct {
	// Name uniquely identifies the step within its plan. Dependencies
	// reference steps by name.
	Name string `json:"name"`

	// Tool is the tool to invoke.
	Tool string `json:"tool"`

	// Parameters are the tool parameters for this step.
	Parameters map[string]string `json:"parameters,omitempty"`

	// Critical marks a step whose failure, after recovery is exhausted,
	// aborts the remainder of the plan.
	Critical bool `json:"critical"`

	// DependsOn names earlier steps whose output this step requires.
	DependsOn []string `json:"depends_on,omitempty"`

	// Index is the step's position within the plan.
	Index int `json:"index"`
}

// WithTool returns a copy of the step targeting a different tool.
func (s Step) WithTool(tool string) Step {
	out := s.clone()
	out.Tool = tool
	return out
}

// WithParameters returns a copy of the step with replacement parameters.
func (s Step) WithParameters(params map[string]string) Step {
	out := s.clone()
	out.Parameters = params
	return out
}

func (s Step) clone() Step {
	out := s
	out.Parameters = make(map[string]string, len(s.Parameters))
	for k, v := range s.Parameters {
		out.Parameters[k] = v
	}
	out.DependsOn = append([]string(nil), s.DependsOn...)
	return out
}

// StepResult records the outcome of one executed step.
type StepResult struct {
	// StepName is the name of the step this result belongs to.
	StepName string `json:"step_name"`

	// Tool is the tool that produced the result (after any substitution).
	Tool string `json:"tool"`

	// Status is the final step status.
	Status StepStatus `json:"status"`

	// Output is the opaque result payload from the tool.
	Output any `json:"output,omitempty"`

	// Error holds the failure text when Status is Failed or Skipped.
	Error string `json:"error,omitempty"`

	// Duration is how long the invocation took.
	Duration time.Duration `json:"duration"`

	// Metadata carries auxiliary result annotations (recovery strategy
	// applied, substituted tool name, skip reason).
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Requirements are the cross-cutting security and audit obligations the
// planner attaches to a plan.
type Requirements struct {
	// SecurityReview requires per-step pre-authorization.
	SecurityReview bool `json:"security_review"`

	// AuditTrail requires the session's audit trail to be persisted.
	AuditTrail bool `json:"audit_trail"`

	// Flags carries free-form policy flags from the security capability.
	Flags []string `json:"flags,omitempty"`
}

// Plan is an ordered, dependency-respecting sequence of tool invocations.
// Steps may be replaced wholesale between executions by adaptive
// re-planning, but the list is append-free during execution.
type Plan struct {
	// Intent is the classified workflow intent.
	Intent Intent `json:"intent"`

	// Steps is the ordered step list.
	Steps []Step `json:"steps"`

	// Requirements are cross-cutting security/audit obligations.
	Requirements Requirements `json:"requirements"`

	// Annotations are advisory notes attached by plan optimization. They
	// never change step order or content.
	Annotations []string `json:"annotations,omitempty"`

	// CreatedAt is when the plan was built.
	CreatedAt time.Time `json:"created_at"`
}

// StepNames returns the ordered step names, useful for comparing plans.
func (p Plan) StepNames() []string {
	names := make([]string, len(p.Steps))
	for i, s := range p.Steps {
		names[i] = s.Name
	}
	return names
}

package reasoning

import (
	"github.com/halcyonlabs/admind/internal/capability"
	"github.com/halcyonlabs/admind/internal/confidence"
	"github.com/halcyonlabs/admind/internal/planning"
)

// Issue is the sealed set of problems the resolution engine can be asked
// about. Exactly three kinds exist; dispatch is an exhaustive type switch
// rather than a stringly-typed tag.
type Issue interface {
	issueKind() string
}

// ValidationFailureIssue reports that entity validation failed.
type ValidationFailureIssue struct {
	Result capability.ValidationResult
}

func (ValidationFailureIssue) issueKind() string { return "validation_failure" }

// ToolErrorIssue reports that a tool invocation raised an exceptional
// error. It is informational: actual recovery is delegated to the recovery
// strategy chain.
type ToolErrorIssue struct {
	Step planning.Step
	Err  string
}

func (ToolErrorIssue) issueKind() string { return "tool_error" }

// LowConfidenceIssue reports that a stage's confidence lower bound fell
// short of its target.
type LowConfidenceIssue struct {
	Stage   string
	Metrics confidence.Metrics
}

func (LowConfidenceIssue) issueKind() string { return "low_confidence" }

package recovery

import (
	"context"

	"go.uber.org/zap"

	"github.com/halcyonlabs/admind/internal/capability"
	"github.com/halcyonlabs/admind/internal/planning"
	"github.com/halcyonlabs/admind/internal/session"
)

// Substitution describes an alternative tool and how to rename parameters
// for it.
type Substitution struct {
	// Tool is the replacement tool name.
	Tool string

	// ParamAliases maps original parameter names to the names the
	// replacement tool expects.
	ParamAliases map[string]string
}

// DefaultSubstitutions maps a tool to its known alternative.
func DefaultSubstitutions() map[string]Substitution {
	return map[string]Substitution{
		"grant_mailbox_permission": {
			Tool:         "set_mailbox_permission",
			ParamAliases: map[string]string{"MailboxIdentity": "Mailbox"},
		},
		"apply_litigation_hold": {
			Tool:         "set_retention_policy",
			ParamAliases: map[string]string{"MailboxIdentity": "Mailbox"},
		},
	}
}

// ToolSubstitution switches to an alternative tool, remapping known
// parameter-name aliases, and retries once.
type ToolSubstitution struct {
	invoker       capability.ToolExecutor
	substitutions map[string]Substitution
	logger        *zap.Logger
}

// NewToolSubstitution creates the substitution strategy. A nil table uses
// DefaultSubstitutions.
func NewToolSubstitution(invoker capability.ToolExecutor, substitutions map[string]Substitution, logger *zap.Logger) *ToolSubstitution {
	if logger == nil {
		logger = zap.NewNop()
	}
	if substitutions == nil {
		substitutions = DefaultSubstitutions()
	}
	return &ToolSubstitution{invoker: invoker, substitutions: substitutions, logger: logger}
}

// Name implements Strategy.
func (t *ToolSubstitution) Name() string { return "tool_substitution" }

// Attempt implements Strategy.
func (t *ToolSubstitution) Attempt(ctx context.Context, step planning.Step, stepErr error, sess *session.Session) (planning.StepResult, bool) {
	sub, ok := t.substitutions[step.Tool]
	if !ok {
		return planning.StepResult{}, false
	}

	remapped := make(map[string]string, len(step.Parameters))
	for k, v := range step.Parameters {
		if alias, ok := sub.ParamAliases[k]; ok {
			remapped[alias] = v
		} else {
			remapped[k] = v
		}
	}

	t.logger.Info("substituting tool",
		zap.String("session_id", sess.ID()),
		zap.String("from", step.Tool),
		zap.String("to", sub.Tool),
	)

	substituted := step.WithTool(sub.Tool).WithParameters(remapped)
	result, ok := invokeOnce(ctx, t.invoker, substituted, sess)
	if ok {
		if result.Metadata == nil {
			result.Metadata = make(map[string]string)
		}
		result.Metadata["substituted_tool"] = sub.Tool
	}
	return result, ok
}

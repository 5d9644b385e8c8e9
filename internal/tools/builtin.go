package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/halcyonlabs/admind/internal/session"
)

// Simulated failure triggers. Target values embedding these markers make
// the built-in tools report the matching domain failure, which keeps the
// healing paths exercisable end to end without a live directory.
const (
	markerNotFound = "missing"
	markerDenied   = "denied"
)

func builtinTools() []Tool {
	return []Tool{
		{
			Name:        "create_account",
			Description: "Provision a user account",
			Required:    []string{"User"},
			Handler:     simpleHandler("account_created", "User"),
		},
		{
			Name:        "create_mailbox",
			Description: "Create a mailbox for an existing account",
			Required:    []string{"Mailbox", "User"},
			Handler:     simpleHandler("mailbox_created", "Mailbox", "User"),
		},
		{
			Name:        "grant_mailbox_permission",
			Description: "Grant a user access rights on a mailbox",
			Required:    []string{"MailboxIdentity", "User", "AccessRights"},
			Handler:     grantPermissionHandler("MailboxIdentity"),
		},
		{
			Name:        "set_mailbox_permission",
			Description: "Set mailbox access rights via the policy API",
			Required:    []string{"Mailbox", "User", "AccessRights"},
			Handler:     grantPermissionHandler("Mailbox"),
		},
		{
			Name:        "add_mailbox_delegate",
			Description: "Add a delegate to a mailbox",
			Required:    []string{"MailboxIdentity", "User"},
			Handler:     simpleHandler("delegate_added", "MailboxIdentity", "User"),
		},
		{
			Name:        "add_to_group",
			Description: "Add a user to a group",
			Required:    []string{"User", "Group"},
			Handler:     simpleHandler("group_member_added", "User", "Group"),
		},
		{
			Name:        "remove_from_group",
			Description: "Remove a user from a group",
			Required:    []string{"User", "Group"},
			Handler:     simpleHandler("group_member_removed", "User", "Group"),
		},
		{
			Name:        "remove_permissions",
			Description: "Strip all permissions held by a user",
			Required:    []string{"User"},
			Handler:     simpleHandler("permissions_removed", "User"),
		},
		{
			Name:        "remove_mailbox",
			Description: "Remove a mailbox",
			Required:    []string{"MailboxIdentity"},
			Handler:     simpleHandler("mailbox_removed", "MailboxIdentity"),
		},
		{
			Name:        "disable_account",
			Description: "Disable a user account",
			Required:    []string{"User"},
			Handler:     simpleHandler("account_disabled", "User"),
		},
		{
			Name:        "configure_resource_mailbox",
			Description: "Configure a room or equipment mailbox",
			Required:    []string{"Resource"},
			Handler:     simpleHandler("resource_configured", "Resource"),
		},
		{
			Name:        "apply_litigation_hold",
			Description: "Place a mailbox under litigation hold",
			Required:    []string{"MailboxIdentity"},
			Handler:     simpleHandler("litigation_hold_applied", "MailboxIdentity"),
		},
		{
			Name:        "set_retention_policy",
			Description: "Apply a retention policy to a mailbox",
			Required:    []string{"Mailbox"},
			Handler:     simpleHandler("retention_policy_set", "Mailbox"),
		},
		{
			Name:        "generate_report",
			Description: "Generate an administrative report",
			Required:    []string{"Scope"},
			Handler: func(ctx context.Context, params map[string]string, execCtx session.ExecutionContext) (any, string) {
				return map[string]any{
					"action": "report_generated",
					"scope":  params["Scope"],
					"rows":   len(execCtx.StepOutputs),
				}, ""
			},
		},
		{
			Name:        "run_maintenance_check",
			Description: "Run the scheduled maintenance health check",
			Handler: func(ctx context.Context, params map[string]string, execCtx session.ExecutionContext) (any, string) {
				return map[string]any{"action": "maintenance_check", "healthy": true}, ""
			},
		},
	}
}

// simpleHandler returns a handler that checks the simulated failure
// markers on the named parameters and otherwise echoes them as output.
func simpleHandler(action string, params ...string) Handler {
	return func(ctx context.Context, p map[string]string, execCtx session.ExecutionContext) (any, string) {
		if failure := checkMarkers(p, params); failure != "" {
			return nil, failure
		}
		out := map[string]any{"action": action}
		for _, name := range params {
			out[strings.ToLower(name)] = p[name]
		}
		return out, ""
	}
}

// grantPermissionHandler validates access rights on top of the marker
// checks. mailboxParam names the parameter carrying the target mailbox.
func grantPermissionHandler(mailboxParam string) Handler {
	valid := map[string]bool{"FullAccess": true, "SendAs": true, "Reviewer": true}
	return func(ctx context.Context, p map[string]string, execCtx session.ExecutionContext) (any, string) {
		if failure := checkMarkers(p, []string{mailboxParam, "User"}); failure != "" {
			return nil, failure
		}
		rights := p["AccessRights"]
		if !valid[rights] {
			return nil, fmt.Sprintf("access rights %q not supported", rights)
		}
		return map[string]any{
			"action":  "permission_granted",
			"mailbox": p[mailboxParam],
			"user":    p["User"],
			"rights":  rights,
		}, ""
	}
}

func checkMarkers(p map[string]string, names []string) string {
	for _, name := range names {
		value := strings.ToLower(p[name])
		switch {
		case strings.Contains(value, markerNotFound):
			return fmt.Sprintf("%s %s not found", strings.ToLower(name), p[name])
		case strings.Contains(value, markerDenied):
			return fmt.Sprintf("permission denied for %s %s", strings.ToLower(name), p[name])
		}
	}
	return ""
}

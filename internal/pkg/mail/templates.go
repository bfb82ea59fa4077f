package mail

import (
	"fmt"
	"html"
)

// InvitationMail is the mail sent to an address that has no account yet.
func InvitationMail(workspaceName, inviterName, role, acceptURL string) (string, string) {
	subject := fmt.Sprintf("You have been invited to %s on LabelFox", workspaceName)
	body := fmt.Sprintf(
		`<p>%s invited you to join <strong>%s</strong> as %s.</p>`+
			`<p><a href="%s">Accept the invitation</a></p>`+
			`<p>The link expires in 7 days.</p>`,
		html.EscapeString(inviterName),
		html.EscapeString(workspaceName),
		html.EscapeString(role),
		html.EscapeString(acceptURL),
	)
	return subject, body
}

// AddedToWorkspaceMail notifies an existing user that they were added directly.
func AddedToWorkspaceMail(workspaceName, inviterName, role, workspaceURL string) (string, string) {
	subject := fmt.Sprintf("You were added to %s on LabelFox", workspaceName)
	body := fmt.Sprintf(
		`<p>%s added you to <strong>%s</strong> as %s.</p>`+
			`<p><a href="%s">Open the workspace</a></p>`,
		html.EscapeString(inviterName),
		html.EscapeString(workspaceName),
		html.EscapeString(role),
		html.EscapeString(workspaceURL),
	)
	return subject, body
}

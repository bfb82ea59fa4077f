package usercontext

// Shared Locals keys and gateway headers used across controllers and middlewares
const (
	KeyUserContext   = "USER_CONTEXT"
	KeyWorkspaceRole = "workspace_role"

	HeaderUserID    = "X-User-ID"
	HeaderUserEmail = "X-User-Email"
	HeaderUserName  = "X-User-Name"
)

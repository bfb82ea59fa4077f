package usercontext

import (
	"strings"

	"github.com/gofiber/fiber/v2"
)

// UserContext represents the caller identity forwarded by the gateway
type UserContext struct {
	UserID     string `json:"user_id"`
	Email      string `json:"email"`
	Name       string `json:"name"`
	IsLoggedIn bool   `json:"is_logged_in"`
}

// FromHeaders reads the gateway identity headers. The context is anonymous
// unless both id and email are present.
func FromHeaders(c *fiber.Ctx) UserContext {
	uc := UserContext{
		UserID: strings.TrimSpace(c.Get(HeaderUserID)),
		Email:  strings.ToLower(strings.TrimSpace(c.Get(HeaderUserEmail))),
		Name:   strings.TrimSpace(c.Get(HeaderUserName)),
	}
	uc.IsLoggedIn = uc.UserID != "" && uc.Email != ""
	return uc
}

// GetUserContext retrieves the user context from fiber context
// Returns a default anonymous context if none is set
func GetUserContext(c *fiber.Ctx) UserContext {
	if ctx, ok := c.Locals(KeyUserContext).(UserContext); ok {
		return ctx
	}
	return UserContext{IsLoggedIn: false}
}

func SetUserContext(c *fiber.Ctx, uc UserContext) {
	c.Locals(KeyUserContext, uc)
}

// IsLoggedIn checks if the current request carries a gateway identity
func IsLoggedIn(c *fiber.Ctx) bool {
	return GetUserContext(c).IsLoggedIn
}

// GetUserID returns the current user's ID, or empty string if anonymous
func GetUserID(c *fiber.Ctx) string {
	return GetUserContext(c).UserID
}

// GetWorkspaceRole returns the caller's role in the workspace of the route,
// set by the workspace role middleware.
func GetWorkspaceRole(c *fiber.Ctx) string {
	role, _ := c.Locals(KeyWorkspaceRole).(string)
	return role
}

package middleware

import (
	"context"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/LabelFox/internal/pkg/apperr"
	"github.com/ManuelReschke/LabelFox/internal/pkg/usercontext"
)

// RoleLookup resolves a user's role inside a workspace.
type RoleLookup interface {
	MemberRole(ctx context.Context, workspaceID, userID string) (string, error)
}

// RequireAPIAuth ensures a gateway identity and returns JSON 401 otherwise.
func RequireAPIAuth(c *fiber.Ctx) error {
	if !usercontext.IsLoggedIn(c) {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error":   "unauthorized",
			"message": "login required",
		})
	}
	return c.Next()
}

// RequireWorkspaceRole checks the caller's membership in the :workspaceId
// route parameter. An empty role list admits every member.
func RequireWorkspaceRole(members RoleLookup, roles ...string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID := usercontext.GetUserID(c)
		if userID == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error":   "unauthorized",
				"message": "login required",
			})
		}

		role, err := members.MemberRole(c.UserContext(), c.Params("workspaceId"), userID)
		if err != nil {
			return writeError(c, err)
		}
		if len(roles) > 0 && !hasRole(role, roles) {
			return writeError(c, apperr.Forbidden("middleware.RequireWorkspaceRole",
				"Requires role "+strings.ToLower(strings.Join(roles, " or "))))
		}
		c.Locals(usercontext.KeyWorkspaceRole, role)
		return c.Next()
	}
}

func hasRole(role string, allowed []string) bool {
	for _, r := range allowed {
		if strings.EqualFold(role, r) {
			return true
		}
	}
	return false
}

func writeError(c *fiber.Ctx, err error) error {
	status, code := apperr.HTTPStatus(err)
	return c.Status(status).JSON(fiber.Map{
		"error":   code,
		"message": apperr.MessageOf(err, "Internal server error"),
	})
}

package middleware

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/LabelFox/app/models"
	"github.com/ManuelReschke/LabelFox/internal/pkg/usercontext"
	"github.com/ManuelReschke/LabelFox/internal/pkg/workspace"
)

// UserStore records gateway identities locally.
type UserStore interface {
	EnsureUser(ctx context.Context, actor workspace.Actor) (*models.User, error)
}

// UserContextMiddleware sets up the user context for every request from the
// gateway identity headers. Requests without identity stay anonymous.
func UserContextMiddleware(users UserStore) fiber.Handler {
	return func(c *fiber.Ctx) error {
		uc := usercontext.FromHeaders(c)
		if !uc.IsLoggedIn {
			usercontext.SetUserContext(c, usercontext.UserContext{IsLoggedIn: false})
			return c.Next()
		}

		actor := workspace.Actor{ID: uc.UserID, Email: uc.Email, Name: uc.Name}
		if _, err := users.EnsureUser(c.UserContext(), actor); err != nil {
			log.Warnf("[Auth] Rejecting identity of user %s: %v", uc.UserID, err)
			return writeError(c, err)
		}
		usercontext.SetUserContext(c, uc)
		return c.Next()
	}
}

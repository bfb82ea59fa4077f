package middleware

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuelReschke/LabelFox/app/models"
	"github.com/ManuelReschke/LabelFox/internal/pkg/apperr"
	"github.com/ManuelReschke/LabelFox/internal/pkg/usercontext"
	"github.com/ManuelReschke/LabelFox/internal/pkg/workspace"
)

type fakeUsers struct {
	seen []workspace.Actor
	err  error
}

func (f *fakeUsers) EnsureUser(ctx context.Context, actor workspace.Actor) (*models.User, error) {
	f.seen = append(f.seen, actor)
	if f.err != nil {
		return nil, f.err
	}
	return &models.User{ID: actor.ID, Email: actor.Email, Name: actor.Name}, nil
}

type fakeRoles map[string]string

func (f fakeRoles) MemberRole(ctx context.Context, workspaceID, userID string) (string, error) {
	role, ok := f[workspaceID+"/"+userID]
	if !ok {
		return "", apperr.NotFound("test", "You are not a member of this workspace")
	}
	return role, nil
}

func newApp(users UserStore, roles RoleLookup, allowed ...string) *fiber.App {
	app := fiber.New()
	app.Use(UserContextMiddleware(users))
	app.Get("/me", RequireAPIAuth, func(c *fiber.Ctx) error {
		return c.JSON(usercontext.GetUserContext(c))
	})
	app.Get("/workspaces/:workspaceId", RequireWorkspaceRole(roles, allowed...), func(c *fiber.Ctx) error {
		return c.SendString(usercontext.GetWorkspaceRole(c))
	})
	return app
}

func request(path, userID string) *http.Request {
	req := httptest.NewRequest("GET", path, nil)
	if userID != "" {
		req.Header.Set(usercontext.HeaderUserID, userID)
		req.Header.Set(usercontext.HeaderUserEmail, userID+"@example.com")
	}
	return req
}

func TestUserContextMiddleware(t *testing.T) {
	users := &fakeUsers{}
	app := newApp(users, fakeRoles{})

	resp, err := app.Test(request("/me", "u1"))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	var uc usercontext.UserContext
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&uc))
	assert.Equal(t, "u1", uc.UserID)
	assert.True(t, uc.IsLoggedIn)
	require.Len(t, users.seen, 1)
	assert.Equal(t, "u1@example.com", users.seen[0].Email)

	resp, err = app.Test(request("/me", ""))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
	assert.Len(t, users.seen, 1)
}

func TestUserContextMiddlewareRejectsInvalidIdentity(t *testing.T) {
	users := &fakeUsers{err: apperr.Validation("test", "Invalid user identity")}
	app := newApp(users, fakeRoles{})

	resp, err := app.Test(request("/me", "u1"))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestRequireWorkspaceRole(t *testing.T) {
	roles := fakeRoles{"ws1/admin": models.RoleAdmin, "ws1/viewer": models.RoleViewer}
	app := newApp(&fakeUsers{}, roles, models.RoleAdmin, models.RoleReviewer)

	tests := []struct {
		user   string
		status int
	}{
		{"admin", fiber.StatusOK},
		{"viewer", fiber.StatusForbidden},
		{"stranger", fiber.StatusNotFound},
		{"", fiber.StatusUnauthorized},
	}
	for _, tt := range tests {
		resp, err := app.Test(request("/workspaces/ws1", tt.user))
		require.NoError(t, err)
		assert.Equal(t, tt.status, resp.StatusCode, "user %q", tt.user)
	}
}

func TestRequireWorkspaceRoleAnyMember(t *testing.T) {
	app := newApp(&fakeUsers{}, fakeRoles{"ws1/viewer": models.RoleViewer})

	resp, err := app.Test(request("/workspaces/ws1", "viewer"))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, models.RoleViewer, string(body))
}

func TestGatewayKeyMiddleware(t *testing.T) {
	app := fiber.New()
	app.Use(GatewayKeyMiddleware("secret"))
	app.Get("/", func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusNoContent) })

	req := httptest.NewRequest("GET", "/", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

	req = httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

	req = httptest.NewRequest("GET", "/", nil)
	req.Header.Set("X-API-Key", "secret")
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNoContent, resp.StatusCode)

	open := fiber.New()
	open.Use(GatewayKeyMiddleware(""))
	open.Get("/", func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusNoContent) })
	resp, err = open.Test(httptest.NewRequest("GET", "/", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNoContent, resp.StatusCode)
}

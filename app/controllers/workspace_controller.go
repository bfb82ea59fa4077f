package controllers

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/LabelFox/internal/pkg/usercontext"
)

type createWorkspaceRequest struct {
	Name string `json:"name"`
}

type inviteRequest struct {
	Email string `json:"email"`
	Role  string `json:"role"`
}

type acceptInviteRequest struct {
	Token string `json:"token"`
}

type changeRoleRequest struct {
	Role string `json:"role"`
}

func HandleCreateWorkspace(c *fiber.Ctx) error {
	var req createWorkspaceRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request")
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	ws, err := GetServices().Workspaces.CreateWorkspace(ctx, currentActor(c), req.Name)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(ws)
}

func HandleListWorkspaces(c *fiber.Ctx) error {
	ctx, cancel := requestContext(c)
	defer cancel()

	list, err := GetServices().Workspaces.ListUserWorkspaces(ctx, usercontext.GetUserID(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"workspaces": list})
}

func HandleGetWorkspace(c *fiber.Ctx) error {
	ctx, cancel := requestContext(c)
	defer cancel()

	ws, err := GetServices().Workspaces.GetWorkspace(ctx, c.Params("workspaceId"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"workspace": ws,
		"role":      strings.ToLower(usercontext.GetWorkspaceRole(c)),
	})
}

func HandleListMembers(c *fiber.Ctx) error {
	ctx, cancel := requestContext(c)
	defer cancel()

	members, err := GetServices().Workspaces.ListMembers(ctx, c.Params("workspaceId"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"members": members})
}

func HandleInviteMember(c *fiber.Ctx) error {
	var req inviteRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request")
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	result, err := GetServices().Workspaces.InviteMember(ctx, c.Params("workspaceId"), currentActor(c), req.Email, req.Role)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(result)
}

func HandleResendInvite(c *fiber.Ctx) error {
	ctx, cancel := requestContext(c)
	defer cancel()

	result, err := GetServices().Workspaces.ResendInvite(ctx, c.Params("workspaceId"), c.Params("inviteId"), currentActor(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(result)
}

func HandleCancelInvite(c *fiber.Ctx) error {
	ctx, cancel := requestContext(c)
	defer cancel()

	result, err := GetServices().Workspaces.CancelInvite(ctx, c.Params("workspaceId"), c.Params("inviteId"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(result)
}

// HandleValidateInvite checks an invitation link before the invitee accepts.
func HandleValidateInvite(c *fiber.Ctx) error {
	token := strings.TrimSpace(c.Query("token"))
	if token == "" {
		return badRequest(c, "token is required")
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	result, err := GetServices().Workspaces.ValidateInvite(ctx, c.Params("workspaceId"), c.Params("inviteId"), token)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(result)
}

func HandleAcceptInvite(c *fiber.Ctx) error {
	var req acceptInviteRequest
	if err := c.BodyParser(&req); err != nil || strings.TrimSpace(req.Token) == "" {
		return badRequest(c, "token is required")
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	membership, err := GetServices().Workspaces.AcceptInvite(ctx, c.Params("workspaceId"), c.Params("inviteId"), req.Token, currentActor(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"workspace_id": membership.WorkspaceID,
		"role":         strings.ToLower(membership.Role),
	})
}

func HandleRemoveMember(c *fiber.Ctx) error {
	ctx, cancel := requestContext(c)
	defer cancel()

	if err := GetServices().Workspaces.RemoveMember(ctx, c.Params("workspaceId"), c.Params("userId"), currentActor(c)); err != nil {
		return respondError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func HandleChangeRole(c *fiber.Ctx) error {
	var req changeRoleRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request")
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	if err := GetServices().Workspaces.ChangeRole(ctx, c.Params("workspaceId"), c.Params("userId"), req.Role, currentActor(c)); err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"user_id": c.Params("userId"), "role": strings.ToLower(req.Role)})
}

func HandleLeaveWorkspace(c *fiber.Ctx) error {
	ctx, cancel := requestContext(c)
	defer cancel()

	if err := GetServices().Workspaces.LeaveWorkspace(ctx, c.Params("workspaceId"), currentActor(c)); err != nil {
		return respondError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

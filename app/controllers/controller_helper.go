package controllers

import (
	"context"
	"mime/multipart"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	fiberlog "github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/LabelFox/internal/pkg/apperr"
	"github.com/ManuelReschke/LabelFox/internal/pkg/labels"
	"github.com/ManuelReschke/LabelFox/internal/pkg/objectstore"
	"github.com/ManuelReschke/LabelFox/internal/pkg/usercontext"
	"github.com/ManuelReschke/LabelFox/internal/pkg/workspace"
)

const requestTimeout = 30 * time.Second

// requestContext bounds a handler's service calls.
func requestContext(c *fiber.Ctx) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.UserContext(), requestTimeout)
}

// respondError writes the JSON error body for err.
func respondError(c *fiber.Ctx, err error) error {
	status, code := apperr.HTTPStatus(err)
	if status >= fiber.StatusInternalServerError {
		fiberlog.Errorf("[API] %s %s failed: %v", c.Method(), c.Path(), err)
	}
	return c.Status(status).JSON(fiber.Map{
		"error":   code,
		"message": apperr.MessageOf(err, "Internal server error"),
	})
}

func badRequest(c *fiber.Ctx, message string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"error":   "validation_error",
		"message": message,
	})
}

// currentActor returns the gateway identity as a workspace actor.
func currentActor(c *fiber.Ctx) workspace.Actor {
	uc := usercontext.GetUserContext(c)
	return workspace.Actor{ID: uc.UserID, Email: uc.Email, Name: uc.Name}
}

// readUpload opens the multipart file of the given form field.
func readUpload(c *fiber.Ctx, field string) (labels.Upload, func(), error) {
	fh, err := c.FormFile(field)
	if err != nil {
		return labels.Upload{}, nil, apperr.Validation("controllers.readUpload", "No file uploaded")
	}
	f, err := fh.Open()
	if err != nil {
		return labels.Upload{}, nil, err
	}
	return labels.Upload{
		Filename:    fh.Filename,
		ContentType: uploadContentType(fh),
		Size:        fh.Size,
		Body:        f,
	}, func() { _ = f.Close() }, nil
}

func uploadContentType(fh *multipart.FileHeader) string {
	ct := strings.TrimSpace(fh.Header.Get("Content-Type"))
	if i := strings.Index(ct, ";"); i >= 0 {
		ct = strings.TrimSpace(ct[:i])
	}
	ct = strings.ToLower(ct)
	if ct == "" || ct == "application/octet-stream" {
		return objectstore.ContentType(fh.Filename)
	}
	return ct
}

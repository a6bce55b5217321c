package handler

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v3"

	"github.com/devfolio/profile-api/internal/middleware"
	"github.com/devfolio/profile-api/internal/port"
	"github.com/devfolio/profile-api/internal/service"
)

// AnalysisHandler exposes the profile-analysis pipeline to end users:
// repo selection, triggering a run, and polling status.
type AnalysisHandler struct {
	analysis *service.AnalysisService
}

// NewAnalysisHandler creates a new analysis handler.
func NewAnalysisHandler(analysis *service.AnalysisService) *AnalysisHandler {
	return &AnalysisHandler{analysis: analysis}
}

// Register sets up analysis routes on a protected group.
func (h *AnalysisHandler) Register(api fiber.Router) {
	group := api.Group("/analysis")
	group.Post("/repos", h.SelectRepos)
	group.Post("/trigger", h.Trigger)
	group.Get("/status", h.Status)
}

// SelectRepos persists the user's repository selection.
func (h *AnalysisHandler) SelectRepos(c fiber.Ctx) error {
	uc := middleware.GetUserContext(c)
	if uc == nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized"})
	}

	var body struct {
		Repos []string `json:"repos"`
	}
	if err := c.Bind().JSON(&body); err != nil {
		return businessError(c, fiber.StatusBadRequest, "invalid body")
	}

	if err := h.analysis.SelectRepos(c.Context(), uc.UserID, body.Repos); err != nil {
		return mapAnalysisError(c, uc.UserID, err)
	}
	return c.JSON(fiber.Map{"success": true})
}

// Trigger starts a new analysis run for the user. The status read, the
// in-flight claim and the queue publish are all synchronous network calls, so
// the whole operation runs under one short deadline.
func (h *AnalysisHandler) Trigger(c fiber.Ctx) error {
	uc := middleware.GetUserContext(c)
	if uc == nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized"})
	}

	ctx, cancel := context.WithTimeout(c.Context(), 10*time.Second)
	defer cancel()

	if err := h.analysis.TriggerAnalysis(ctx, uc.UserID); err != nil {
		return mapAnalysisError(c, uc.UserID, err)
	}
	return c.JSON(fiber.Map{"success": true})
}

// Status returns the user's current analysis status, turn counter and quota.
func (h *AnalysisHandler) Status(c fiber.Ctx) error {
	uc := middleware.GetUserContext(c)
	if uc == nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized"})
	}

	rec, err := h.analysis.Status(c.Context(), uc.UserID)
	if err != nil {
		return mapAnalysisError(c, uc.UserID, err)
	}

	return c.JSON(fiber.Map{
		"status":        rec.Status,
		"analyses_used": rec.Turn,
		"analyses_max":  h.analysis.MaxAnalyses(),
	})
}

// mapAnalysisError translates service errors into the {success, errors}
// result shape. Precondition failures get specific messages; anything
// unexpected is logged in full and reported as an opaque server error.
func mapAnalysisError(c fiber.Ctx, userID string, err error) error {
	switch {
	case errors.Is(err, port.ErrNotConnected):
		return businessError(c, fiber.StatusBadRequest, "No github account is associated with the user")
	case errors.Is(err, port.ErrInvalidRepo):
		return businessError(c, fiber.StatusBadRequest, err.Error())
	case errors.Is(err, port.ErrQuotaExceeded):
		return businessError(c, fiber.StatusTooManyRequests, "You have used all of your available analyses")
	case errors.Is(err, port.ErrAlreadyRunning):
		return businessError(c, fiber.StatusConflict, "You already have an analysis running. Please wait")
	case errors.Is(err, port.ErrPublish):
		slog.Error("analysis publish failed", "user_id", userID, "error", err)
		return businessError(c, fiber.StatusBadGateway, "server error")
	default:
		slog.Error("analysis request failed", "user_id", userID, "error", err)
		return businessError(c, fiber.StatusInternalServerError, "server error")
	}
}

func businessError(c fiber.Ctx, status int, messages ...string) error {
	return c.Status(status).JSON(fiber.Map{
		"success": false,
		"errors":  messages,
	})
}

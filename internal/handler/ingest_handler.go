package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"

	"github.com/devfolio/profile-api/internal/port"
	"github.com/devfolio/profile-api/internal/service"
)

// IngestHandler receives completion callbacks from the external analysis
// worker. It sits behind the worker shared-secret middleware; on top of
// that, anything that smells like probing (bad user id, unknown user,
// missing profile) answers a generic 404. Only schema violations from an
// authenticated worker earn a 400.
type IngestHandler struct {
	ingest *service.IngestService
}

// NewIngestHandler creates a new worker ingest handler.
func NewIngestHandler(ingest *service.IngestService) *IngestHandler {
	return &IngestHandler{ingest: ingest}
}

// Register sets up the worker-facing routes.
func (h *IngestHandler) Register(internal fiber.Router) {
	internal.Post("/profile-analysis/github/:user_id", h.ProfileAnalysis)
	internal.Post("/repo-analysis/github/:user_id", h.RepoAnalysis)
	internal.Post("/tech-analysis/:user_id/repos", h.TechAnalysis)
}

// ProfileAnalysis ingests the full profile-analysis payload and resets the
// user's in-flight status.
func (h *IngestHandler) ProfileAnalysis(c fiber.Ctx) error {
	return h.handle(c, h.ingest.ReportAnalysisComplete)
}

// RepoAnalysis ingests one repository's durable analysis.
func (h *IngestHandler) RepoAnalysis(c fiber.Ctx) error {
	return h.handle(c, h.ingest.IngestRepoAnalysis)
}

// TechAnalysis ingests one repository's tech-stack stats.
func (h *IngestHandler) TechAnalysis(c fiber.Ctx) error {
	return h.handle(c, h.ingest.IngestTechAnalysis)
}

type ingestFunc func(ctx context.Context, userID string, raw json.RawMessage) error

func (h *IngestHandler) handle(c fiber.Ctx, ingest ingestFunc) error {
	userID := c.Params("user_id")
	if _, err := uuid.Parse(userID); err != nil {
		return notFound(c)
	}

	raw := json.RawMessage(c.Body())
	if len(raw) == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"success": false})
	}

	err := ingest(c.Context(), userID, raw)
	switch {
	case err == nil:
		return c.JSON(fiber.Map{"success": true})
	case errors.Is(err, port.ErrUserNotFound), errors.Is(err, port.ErrProfileNotFound):
		return notFound(c)
	case errors.Is(err, port.ErrInvalidPayload):
		slog.Error("worker payload rejected", "user_id", userID, "error", err)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"success": false})
	default:
		slog.Error("worker ingest failed", "user_id", userID, "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"success": false})
	}
}

func notFound(c fiber.Ctx) error {
	return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not found"})
}

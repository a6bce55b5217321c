package handler

import (
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/gofiber/fiber/v3"

	"github.com/devfolio/profile-api/internal/domain"
	"github.com/devfolio/profile-api/internal/middleware"
	"github.com/devfolio/profile-api/internal/port"
)

// ProfileHandler exposes the user's connected GitHub profile: metadata, the
// known/selected repo sets, the per-repo analysis view, and disconnect.
type ProfileHandler struct {
	profiles port.ProfileStore
	results  port.AnalysisResultStore
}

// NewProfileHandler creates a new profile handler.
func NewProfileHandler(profiles port.ProfileStore, results port.AnalysisResultStore) *ProfileHandler {
	return &ProfileHandler{profiles: profiles, results: results}
}

// Register sets up profile routes on a protected group.
func (h *ProfileHandler) Register(api fiber.Router) {
	group := api.Group("/profile")
	group.Get("/", h.Get)
	group.Get("/repos", h.Repos)
	group.Get("/repos/:repo", h.SingleRepo)
	group.Delete("/", h.Disconnect)
}

// Get returns the user's GitHub profile.
func (h *ProfileHandler) Get(c fiber.Ctx) error {
	uc := middleware.GetUserContext(c)
	if uc == nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized"})
	}

	profile, err := h.profiles.GetProfile(c.Context(), uc.UserID, domain.ProviderGitHub)
	if errors.Is(err, port.ErrProfileNotFound) {
		return businessError(c, fiber.StatusNotFound, "GitHub account is not associated.")
	}
	if err != nil {
		slog.Error("load profile failed", "user_id", uc.UserID, "error", err)
		return businessError(c, fiber.StatusInternalServerError, "server error")
	}

	return c.JSON(profile)
}

// selectedRepoView is the portfolio-facing shape of one selected repo.
type selectedRepoView struct {
	RepoName        string `json:"repo_name"`
	RepoFullName    string `json:"repo_full_name"`
	Description     string `json:"description"`
	ExternalURL     string `json:"external_url"`
	PrimaryLanguage string `json:"primary_language"`
	Visibility      string `json:"visibility"`
}

// Repos returns the known repo names and the user's current selection as
// enriched entries.
func (h *ProfileHandler) Repos(c fiber.Ctx) error {
	uc := middleware.GetUserContext(c)
	if uc == nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized"})
	}

	profile, err := h.profiles.GetProfile(c.Context(), uc.UserID, domain.ProviderGitHub)
	if errors.Is(err, port.ErrProfileNotFound) {
		return businessError(c, fiber.StatusNotFound, "GitHub account is not associated.")
	}
	if err != nil {
		slog.Error("load profile failed", "user_id", uc.UserID, "error", err)
		return businessError(c, fiber.StatusInternalServerError, "server error")
	}

	selected := make([]selectedRepoView, 0)
	known := []string{}
	if profile.Analysis != nil {
		known = profile.Analysis.KnownRepoNames()
		for _, fullName := range profile.Analysis.SelectedRepos {
			info := profile.Analysis.Repos[fullName]
			visibility := "public"
			if info.IsPrivate {
				visibility = "private"
			}
			_, repoName, _ := strings.Cut(fullName, "/")
			selected = append(selected, selectedRepoView{
				RepoName:        repoName,
				RepoFullName:    fullName,
				Description:     info.Description,
				ExternalURL:     fmt.Sprintf("https://github.com/%s", fullName),
				PrimaryLanguage: info.PrimaryLanguage,
				Visibility:      visibility,
			})
		}
	}

	return c.JSON(fiber.Map{
		"count":    len(selected),
		"repos":    known,
		"selected": selected,
	})
}

// SingleRepo returns the worker's cached analysis for one repository,
// merged with the user's tech stack for it. The path parameter is the repo
// full name ("owner/repo"), urlsafe-base64 encoded so the slash survives
// routing.
func (h *ProfileHandler) SingleRepo(c fiber.Ctx) error {
	uc := middleware.GetUserContext(c)
	if uc == nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized"})
	}

	decoded, err := base64.URLEncoding.DecodeString(c.Params("repo"))
	if err != nil {
		return businessError(c, fiber.StatusBadRequest, "invalid repository name encoding")
	}
	fullName := string(decoded)
	if !domain.ValidRepoFullName(fullName) {
		return businessError(c, fiber.StatusBadRequest, "invalid repository name")
	}

	ra, err := h.results.GetRepoAnalysis(c.Context(), domain.ProviderGitHub, fullName)
	if errors.Is(err, port.ErrRepoNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not found"})
	}
	if err != nil {
		slog.Error("load repo analysis failed", "user_id", uc.UserID, "repo", fullName, "error", err)
		return businessError(c, fiber.StatusInternalServerError, "server error")
	}

	view := make(map[string]any, len(ra.Analysis)+1)
	for k, v := range ra.Analysis {
		view[k] = v
	}

	// tech_stack is per user; the repo cache itself is shared.
	view["tech_stack"] = nil
	ta, err := h.results.GetTechAnalysis(c.Context(), uc.UserID)
	if err != nil {
		slog.Error("load tech analysis failed", "user_id", uc.UserID, "error", err)
		return businessError(c, fiber.StatusInternalServerError, "server error")
	}
	if stats, ok := ta.Repos[fullName]; ok {
		view["tech_stack"] = stats
	}

	return c.JSON(view)
}

// Disconnect removes the GitHub profile; the analysis blob on the row
// cascades away with it.
func (h *ProfileHandler) Disconnect(c fiber.Ctx) error {
	uc := middleware.GetUserContext(c)
	if uc == nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized"})
	}

	err := h.profiles.DeleteProfile(c.Context(), uc.UserID, domain.ProviderGitHub)
	if errors.Is(err, port.ErrProfileNotFound) {
		return businessError(c, fiber.StatusNotFound, "GitHub account is not associated.")
	}
	if err != nil {
		slog.Error("delete profile failed", "user_id", uc.UserID, "error", err)
		return businessError(c, fiber.StatusInternalServerError, "server error")
	}

	return c.JSON(fiber.Map{"success": true})
}

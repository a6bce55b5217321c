package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/go-playground/validator/v10"

	"github.com/devfolio/profile-api/internal/domain"
	"github.com/devfolio/profile-api/internal/port"
)

// IngestService accepts results from the external analysis worker and
// reconciles durable state: the profile analysis blob, the per-repo cache,
// the per-user tech analysis, and the Status Store flag.
type IngestService struct {
	profiles port.ProfileStore
	status   port.StatusStore
	results  port.AnalysisResultStore
	validate *validator.Validate
}

// NewIngestService creates a new worker-result ingestion service.
func NewIngestService(profiles port.ProfileStore, status port.StatusStore, results port.AnalysisResultStore) *IngestService {
	return &IngestService{
		profiles: profiles,
		status:   status,
		results:  results,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// ReportAnalysisComplete validates the worker's complete profile-analysis
// payload, stores it verbatim on the GitHub profile (full replace — the
// worker sends the whole picture, not a diff), then flips the Status Store
// back to idle and advances the turn counter.
//
// Identical re-delivery is safe: the replace writes the same bytes and the
// Status Store leaves turn alone when the record is already idle.
func (s *IngestService) ReportAnalysisComplete(ctx context.Context, userID string, raw json.RawMessage) error {
	if _, err := s.profiles.GetUserByID(ctx, userID); err != nil {
		return err
	}
	if _, err := s.profiles.GetProfile(ctx, userID, domain.ProviderGitHub); err != nil {
		return err
	}

	analysis, err := s.decodeProfileAnalysis(raw)
	if err != nil {
		return err
	}

	if err := s.profiles.ReplaceProfileAnalysis(ctx, userID, raw); err != nil {
		return fmt.Errorf("store profile analysis: %w", err)
	}

	turn, err := s.status.Complete(ctx, userID)
	if err != nil {
		return fmt.Errorf("complete status: %w", err)
	}

	slog.Info("profile analysis ingested",
		"user_id", userID, "repos", len(analysis.Repos), "turn", turn)
	return nil
}

func (s *IngestService) decodeProfileAnalysis(raw json.RawMessage) (*domain.ProfileAnalysis, error) {
	// Top-level keys are a closed set; repo objects themselves are open —
	// the worker may report fields this API never reads.
	var keys map[string]json.RawMessage
	if err := json.Unmarshal(raw, &keys); err != nil {
		return nil, fmt.Errorf("%w: %v", port.ErrInvalidPayload, err)
	}
	for key := range keys {
		switch key {
		case "user_profile", "repos", "selectedRepos":
		default:
			return nil, fmt.Errorf("%w: unexpected key %q", port.ErrInvalidPayload, key)
		}
	}
	for _, required := range []string{"user_profile", "repos"} {
		if _, ok := keys[required]; !ok {
			return nil, fmt.Errorf("%w: required key %q absent", port.ErrInvalidPayload, required)
		}
	}

	var analysis domain.ProfileAnalysis
	if err := json.Unmarshal(raw, &analysis); err != nil {
		return nil, fmt.Errorf("%w: %v", port.ErrInvalidPayload, err)
	}
	if analysis.Repos == nil || analysis.UserProfile == nil {
		return nil, fmt.Errorf("%w: user_profile and repos must be objects", port.ErrInvalidPayload)
	}

	for name := range analysis.Repos {
		if !domain.ValidRepoFullName(name) {
			return nil, fmt.Errorf("%w: malformed repo name %q", port.ErrInvalidPayload, name)
		}
	}
	for _, name := range analysis.SelectedRepos {
		if !domain.ValidRepoFullName(name) {
			return nil, fmt.Errorf("%w: malformed selected repo %q", port.ErrInvalidPayload, name)
		}
	}
	return &analysis, nil
}

// exactKeys checks that raw is a JSON object whose key set is exactly want.
func exactKeys(raw json.RawMessage, want ...string) error {
	var keys map[string]json.RawMessage
	if err := json.Unmarshal(raw, &keys); err != nil {
		return fmt.Errorf("%w: %v", port.ErrInvalidPayload, err)
	}
	for _, key := range want {
		if _, ok := keys[key]; !ok {
			return fmt.Errorf("%w: required key %q absent", port.ErrInvalidPayload, key)
		}
	}
	if len(keys) != len(want) {
		for key := range keys {
			known := false
			for _, w := range want {
				if key == w {
					known = true
					break
				}
			}
			if !known {
				return fmt.Errorf("%w: unexpected key %q", port.ErrInvalidPayload, key)
			}
		}
	}
	return nil
}

type repoAnalysisPayload struct {
	ID       int64          `json:"id" validate:"required"`
	Analysis map[string]any `json:"analysis" validate:"required"`
}

// IngestRepoAnalysis upserts the worker's durable per-repository analysis,
// keyed by the provider's repo id.
func (s *IngestService) IngestRepoAnalysis(ctx context.Context, userID string, raw json.RawMessage) error {
	if _, err := s.profiles.GetUserByID(ctx, userID); err != nil {
		return err
	}

	if err := exactKeys(raw, "id", "analysis"); err != nil {
		return err
	}
	var payload repoAnalysisPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return fmt.Errorf("%w: %v", port.ErrInvalidPayload, err)
	}
	if err := s.validate.Struct(&payload); err != nil {
		return fmt.Errorf("%w: %v", port.ErrInvalidPayload, err)
	}

	fullName, _ := payload.Analysis["full_name"].(string)
	if !domain.ValidRepoFullName(fullName) {
		return fmt.Errorf("%w: malformed full_name %q", port.ErrInvalidPayload, fullName)
	}

	err := s.results.UpsertRepoAnalysis(ctx, &domain.RepoAnalysis{
		Provider:       domain.ProviderGitHub,
		ProviderRepoID: payload.ID,
		FullName:       fullName,
		Analysis:       payload.Analysis,
	})
	if err != nil {
		return fmt.Errorf("store repo analysis: %w", err)
	}

	slog.Info("repo analysis ingested", "repo", fullName, "provider_repo_id", payload.ID)
	return nil
}

// validateTechPayloadShape enforces the payload's closed key sets: exactly
// {repo_full_name, libs, tech, tags} at the top level, and every stats unit
// exactly {insertions, deletions}. Empty sections are fine.
func validateTechPayloadShape(raw json.RawMessage) error {
	if err := exactKeys(raw, "repo_full_name", "libs", "tech", "tags"); err != nil {
		return err
	}

	var sections struct {
		Libs map[string]json.RawMessage `json:"libs"`
		Tech map[string]json.RawMessage `json:"tech"`
		Tags map[string]json.RawMessage `json:"tags"`
	}
	if err := json.Unmarshal(raw, &sections); err != nil {
		return fmt.Errorf("%w: %v", port.ErrInvalidPayload, err)
	}
	for _, section := range []map[string]json.RawMessage{sections.Libs, sections.Tech, sections.Tags} {
		for name, unit := range section {
			if err := exactKeys(unit, "insertions", "deletions"); err != nil {
				return fmt.Errorf("%w in %q", err, name)
			}
		}
	}
	return nil
}

type techAnalysisPayload struct {
	RepoFullName string                      `json:"repo_full_name" validate:"required"`
	Libs         map[string]domain.StatsUnit `json:"libs" validate:"dive"`
	Tech         map[string]domain.StatsUnit `json:"tech" validate:"dive"`
	Tags         map[string]domain.StatsUnit `json:"tags" validate:"dive"`
}

// IngestTechAnalysis merges one repository's tech-stack stats into the
// user's tech analysis and recomputes the aggregate. The aggregate is
// derived directly here rather than through a persistence hook, so every
// write path produces a consistent aggregate.
func (s *IngestService) IngestTechAnalysis(ctx context.Context, userID string, raw json.RawMessage) error {
	if _, err := s.profiles.GetUserByID(ctx, userID); err != nil {
		return err
	}

	if err := validateTechPayloadShape(raw); err != nil {
		return err
	}
	var payload techAnalysisPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return fmt.Errorf("%w: %v", port.ErrInvalidPayload, err)
	}
	if err := s.validate.Struct(&payload); err != nil {
		return fmt.Errorf("%w: %v", port.ErrInvalidPayload, err)
	}
	if !domain.ValidRepoFullName(payload.RepoFullName) {
		return fmt.Errorf("%w: malformed repo_full_name %q", port.ErrInvalidPayload, payload.RepoFullName)
	}
	if payload.Libs == nil || payload.Tech == nil || payload.Tags == nil {
		return fmt.Errorf("%w: libs, tech and tags must be objects", port.ErrInvalidPayload)
	}

	ta, err := s.results.GetTechAnalysis(ctx, userID)
	if err != nil {
		return fmt.Errorf("load tech analysis: %w", err)
	}

	ta.Repos[payload.RepoFullName] = domain.RepoTechStats{
		Libs: payload.Libs,
		Tech: payload.Tech,
		Tags: payload.Tags,
	}
	ta.Recompute()

	if err := s.results.SaveTechAnalysis(ctx, ta); err != nil {
		return fmt.Errorf("store tech analysis: %w", err)
	}

	slog.Info("tech analysis ingested", "user_id", userID, "repo", payload.RepoFullName)
	return nil
}

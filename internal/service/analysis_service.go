package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/devfolio/profile-api/internal/domain"
	"github.com/devfolio/profile-api/internal/port"
)

// AnalysisService orchestrates profile analysis runs: repo selection, quota
// and in-flight checks, job publishing and the audit trail.
type AnalysisService struct {
	profiles port.ProfileStore
	status   port.StatusStore
	queue    port.JobQueue
	audit    port.AuditStore

	maxAnalyses      int
	maxSelectedRepos int
	staleAfter       time.Duration
}

// NewAnalysisService creates a new analysis orchestrator.
func NewAnalysisService(
	profiles port.ProfileStore,
	status port.StatusStore,
	queue port.JobQueue,
	audit port.AuditStore,
	maxAnalyses, maxSelectedRepos int,
	staleAfter time.Duration,
) *AnalysisService {
	return &AnalysisService{
		profiles:         profiles,
		status:           status,
		queue:            queue,
		audit:            audit,
		maxAnalyses:      maxAnalyses,
		maxSelectedRepos: maxSelectedRepos,
		staleAfter:       staleAfter,
	}
}

// SelectRepos validates and persists the user's repository selection.
// Every name must look like "owner/repo" and must appear in the set of repos
// known to the user's GitHub profile. Selection does not trigger analysis.
func (s *AnalysisService) SelectRepos(ctx context.Context, userID string, repoNames []string) error {
	repoNames = domain.DedupeRepoNames(repoNames)

	if len(repoNames) == 0 {
		return fmt.Errorf("%w: select at least one repository", port.ErrInvalidRepo)
	}
	if len(repoNames) > s.maxSelectedRepos {
		return fmt.Errorf("%w: at most %d repositories may be selected", port.ErrInvalidRepo, s.maxSelectedRepos)
	}

	profile, err := s.githubProfile(ctx, userID)
	if err != nil {
		return err
	}

	for _, name := range repoNames {
		if !domain.ValidRepoFullName(name) {
			return fmt.Errorf("%w: malformed repository name %q", port.ErrInvalidRepo, name)
		}
		if profile.Analysis == nil || !profile.Analysis.HasRepo(name) {
			return fmt.Errorf("%w: unknown repository %q", port.ErrInvalidRepo, name)
		}
	}

	if err := s.profiles.UpdateSelectedRepos(ctx, userID, repoNames); err != nil {
		return fmt.Errorf("persist selection: %w", err)
	}

	slog.Info("repos selected", "user_id", userID, "count", len(repoNames))
	return nil
}

// TriggerAnalysis starts a new analysis run for the user, at most once.
//
// The in-flight guarantee rests on the Status Store's atomic idle ->
// in_progress transition, claimed before the job is published. A failed
// publish rolls the flag back so the user can retry.
func (s *AnalysisService) TriggerAnalysis(ctx context.Context, userID string) error {
	profile, err := s.githubProfile(ctx, userID)
	if err != nil {
		return err
	}
	if profile.AccessToken == "" {
		return port.ErrNotConnected
	}

	if err := validSelection(profile.Analysis); err != nil {
		return err
	}

	rec, err := s.status.GetStatus(ctx, userID)
	if err != nil {
		return fmt.Errorf("read status: %w", err)
	}
	if rec.Turn >= int64(s.maxAnalyses) {
		return fmt.Errorf("%w: %d of %d analyses used", port.ErrQuotaExceeded, rec.Turn, s.maxAnalyses)
	}
	if rec.InProgress() {
		return port.ErrAlreadyRunning
	}

	// Claim the in-flight slot before publishing. A concurrent trigger that
	// also saw idle loses the CAS here instead of double-publishing.
	started, err := s.status.TryStart(ctx, userID)
	if err != nil {
		return fmt.Errorf("claim in-flight slot: %w", err)
	}
	if !started {
		return port.ErrAlreadyRunning
	}

	msgID, err := s.queue.Publish(ctx, domain.AnalysisJobMessage{
		UserID:      userID,
		GitHubToken: profile.AccessToken,
		QueuedAt:    time.Now().UTC(),
	})
	if err != nil {
		// Roll the flag back so the user may retry; the job never made it out.
		if idleErr := s.status.ForceIdle(ctx, userID); idleErr != nil {
			slog.Error("rollback to idle failed after publish error",
				"user_id", userID, "error", idleErr)
		}
		if errors.Is(err, port.ErrPublish) {
			return err
		}
		return fmt.Errorf("%w: %v", port.ErrPublish, err)
	}

	slog.Info("analysis job published", "user_id", userID, "message_id", msgID)

	// The audit log is secondary bookkeeping: the job is already queued, so
	// a failed write must not fail the call. It does silently degrade the
	// durable quota record, hence the severity.
	if _, err := s.audit.AppendAuditEntry(ctx, userID); err != nil {
		slog.Error("unable to append analysis audit entry",
			"user_id", userID, "error", err, "severity", "critical")
	}

	return nil
}

// Status returns the user's current analysis status record.
func (s *AnalysisService) Status(ctx context.Context, userID string) (*domain.StatusRecord, error) {
	return s.status.GetStatus(ctx, userID)
}

// MaxAnalyses returns the configured per-user quota.
func (s *AnalysisService) MaxAnalyses() int {
	return s.maxAnalyses
}

// SweepStale resets status records stuck at in_progress. A record is stuck
// when the user's most recent audit entry is older than the configured TTL;
// the worker either crashed or its completion callback never arrived.
// Turn is not incremented: the run did not complete.
func (s *AnalysisService) SweepStale(ctx context.Context) error {
	cutoff := time.Now().UTC().Add(-s.staleAfter)
	entries, err := s.audit.LatestAuditBefore(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("list stale candidates: %w", err)
	}

	swept := 0
	for _, entry := range entries {
		if entry.UserID == nil {
			continue
		}
		rec, err := s.status.GetStatus(ctx, *entry.UserID)
		if errors.Is(err, port.ErrStatusNotFound) {
			continue
		}
		if err != nil {
			return fmt.Errorf("read status for sweep: %w", err)
		}
		if !rec.InProgress() {
			continue
		}
		if err := s.status.ForceIdle(ctx, *entry.UserID); err != nil {
			return fmt.Errorf("reset stale status: %w", err)
		}
		slog.Warn("reset stale analysis status",
			"user_id", *entry.UserID, "started_at", entry.StartedAt)
		swept++
	}

	if swept > 0 {
		slog.Info("stale status sweep complete", "reset", swept)
	}
	return nil
}

func (s *AnalysisService) githubProfile(ctx context.Context, userID string) (*domain.Profile, error) {
	profile, err := s.profiles.GetProfile(ctx, userID, domain.ProviderGitHub)
	if errors.Is(err, port.ErrProfileNotFound) {
		return nil, port.ErrNotConnected
	}
	if err != nil {
		return nil, fmt.Errorf("load github profile: %w", err)
	}
	return profile, nil
}

func validSelection(analysis *domain.ProfileAnalysis) error {
	if analysis == nil || len(analysis.SelectedRepos) == 0 {
		return fmt.Errorf("%w: no repositories selected", port.ErrInvalidRepo)
	}
	for _, name := range analysis.SelectedRepos {
		if !domain.ValidRepoFullName(name) {
			return fmt.Errorf("%w: malformed repository name %q", port.ErrInvalidRepo, name)
		}
	}
	return nil
}

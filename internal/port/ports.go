package port

import (
	"context"
	"encoding/json"
	"time"

	"github.com/devfolio/profile-api/internal/domain"
)

// StatusStore is the low-latency key-value store tracking per-user analysis
// in-flight state. Records are created at user-creation time; GetStatus on a
// user without a record fails with ErrStatusNotFound.
type StatusStore interface {
	// EnsureRecord creates the {idle, 0} record if it does not exist yet.
	EnsureRecord(ctx context.Context, userID string) error

	// GetStatus returns the user's current record.
	GetStatus(ctx context.Context, userID string) (*domain.StatusRecord, error)

	// TryStart atomically flips status idle -> in_progress. Returns false if
	// the status was not idle; this is the per-user mutual exclusion point.
	TryStart(ctx context.Context, userID string) (bool, error)

	// Complete flips in_progress -> idle and increments turn. Re-delivery is
	// safe: if status is already idle the turn counter is left untouched.
	// Returns the turn value after the call.
	Complete(ctx context.Context, userID string) (int64, error)

	// ForceIdle resets status to idle without touching turn. Used to roll
	// back a failed publish and by the stale sweeper.
	ForceIdle(ctx context.Context, userID string) error
}

// JobQueue is the durable transport carrying analysis-trigger messages to
// the external worker. Publish returns the transport message id; it does not
// retry — retry policy belongs to the caller.
type JobQueue interface {
	Publish(ctx context.Context, msg domain.AnalysisJobMessage) (string, error)
}

// ProfileStore covers the relational reads and writes the analysis pipeline
// needs around users and connected profiles.
type ProfileStore interface {
	GetUserByID(ctx context.Context, id string) (*domain.User, error)
	GetProfile(ctx context.Context, userID, provider string) (*domain.Profile, error)
	DeleteProfile(ctx context.Context, userID, provider string) error

	// UpdateSelectedRepos surgically replaces only the selectedRepos key of
	// the stored analysis blob, leaving the rest of the blob untouched.
	UpdateSelectedRepos(ctx context.Context, userID string, repos []string) error

	// ReplaceProfileAnalysis stores the worker payload verbatim (full
	// replace semantics).
	ReplaceProfileAnalysis(ctx context.Context, userID string, analysis json.RawMessage) error
}

// AuditStore is the append-only relational log of analysis attempts.
type AuditStore interface {
	AppendAuditEntry(ctx context.Context, userID string) (*domain.AuditEntry, error)
	CountAuditEntries(ctx context.Context, userID string) (int, error)

	// LatestAuditBefore returns, per user, the most recent attempt — limited
	// to users whose latest attempt started before the cutoff. Feeds the
	// stale-status sweep.
	LatestAuditBefore(ctx context.Context, cutoff time.Time) ([]domain.AuditEntry, error)
}

// AnalysisResultStore persists the durable per-repo and per-user analysis
// caches written back by the worker and read by the portfolio views.
type AnalysisResultStore interface {
	UpsertRepoAnalysis(ctx context.Context, ra *domain.RepoAnalysis) error

	// GetRepoAnalysis returns the cached analysis for one repository, or
	// ErrRepoNotFound when the worker has not reported it yet.
	GetRepoAnalysis(ctx context.Context, provider, fullName string) (*domain.RepoAnalysis, error)

	GetTechAnalysis(ctx context.Context, userID string) (*domain.TechAnalysis, error)
	SaveTechAnalysis(ctx context.Context, ta *domain.TechAnalysis) error
}

package domain

import "time"

// Analysis status values held in the Status Store.
const (
	StatusIdle       = "idle"
	StatusInProgress = "in_progress"
)

// StatusRecord is the per-user record in the low-latency Status Store.
// Turn counts completed analysis attempts and backs quota enforcement.
type StatusRecord struct {
	UserID string `json:"user_id"`
	Status string `json:"status"`
	Turn   int64  `json:"turn"`
}

// InProgress reports whether an analysis is currently running.
func (r *StatusRecord) InProgress() bool {
	return r.Status == StatusInProgress
}

// AnalysisJobMessage is the message published to the Job Queue for the
// external worker. The token is sensitive and must never be logged.
type AnalysisJobMessage struct {
	UserID      string
	GitHubToken string
	QueuedAt    time.Time
}

// AuditEntry is one append-only row recording a triggered analysis attempt.
// UserID is nullable so the row survives user deletion.
type AuditEntry struct {
	ID        string    `json:"id"         db:"id"`
	UserID    *string   `json:"user_id"    db:"user_id"`
	StartedAt time.Time `json:"started_at" db:"started_at"`
}

// RepoAnalysis is the durable cache of a single repository's analysis,
// keyed by (provider, provider_repo_id).
type RepoAnalysis struct {
	ID             string         `json:"id"               db:"id"`
	Provider       string         `json:"provider"         db:"provider"`
	ProviderRepoID int64          `json:"provider_repo_id" db:"provider_repo_id"`
	FullName       string         `json:"full_name"        db:"full_name"`
	Analysis       map[string]any `json:"analysis"         db:"analysis"`
	UpdatedAt      time.Time      `json:"updated_at"       db:"updated_at"`
}

// StatsUnit is one insertions/deletions bucket in a tech analysis.
type StatsUnit struct {
	Insertions int `json:"insertions" validate:"min=0"`
	Deletions  int `json:"deletions" validate:"min=0"`
}

// RepoTechStats is the per-repo breakdown of libraries, technologies and tags.
type RepoTechStats struct {
	Libs map[string]StatsUnit `json:"libs"`
	Tech map[string]StatsUnit `json:"tech"`
	Tags map[string]StatsUnit `json:"tags"`
}

// TechAnalysis aggregates per-repo tech stats for one user. Aggregated is
// recomputed from Repos on every mutation; it is derived state, never
// written directly.
type TechAnalysis struct {
	ID         string                   `json:"id"         db:"id"`
	UserID     string                   `json:"user_id"    db:"user_id"`
	Repos      map[string]RepoTechStats `json:"repos"      db:"repos"`
	Aggregated RepoTechStats            `json:"aggregated" db:"aggregated"`
	UpdatedAt  time.Time                `json:"updated_at" db:"updated_at"`
}

// Recompute rebuilds the aggregated stats from the per-repo entries.
func (t *TechAnalysis) Recompute() {
	agg := RepoTechStats{
		Libs: map[string]StatsUnit{},
		Tech: map[string]StatsUnit{},
		Tags: map[string]StatsUnit{},
	}
	for _, repo := range t.Repos {
		mergeStats(agg.Libs, repo.Libs)
		mergeStats(agg.Tech, repo.Tech)
		mergeStats(agg.Tags, repo.Tags)
	}
	t.Aggregated = agg
}

func mergeStats(dst, src map[string]StatsUnit) {
	for key, unit := range src {
		acc := dst[key]
		acc.Insertions += unit.Insertions
		acc.Deletions += unit.Deletions
		dst[key] = acc
	}
}

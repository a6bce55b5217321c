package domain

import (
	"regexp"
	"sort"
	"time"
)

// Provider constants for connected third-party accounts.
const (
	ProviderGitHub        = "github"
	ProviderGitLab        = "gitlab"
	ProviderBitbucket     = "bitbucket"
	ProviderStackOverflow = "stackoverflow"
)

// Profile is a user's linked third-party developer account.
// At most one profile exists per (user, provider) pair, and at most one
// globally per (provider, provider_uid) pair.
type Profile struct {
	ID          string           `json:"id"           db:"id"`
	UserID      string           `json:"user_id"      db:"user_id"`
	Provider    string           `json:"provider"     db:"provider"`
	ProviderUID string           `json:"provider_uid" db:"provider_uid"`
	Username    string           `json:"username"     db:"username"`
	AccessToken string           `json:"-"            db:"access_token"` // never serialized to JSON
	Analysis    *ProfileAnalysis `json:"profile_analysis,omitempty" db:"profile_analysis"`
	CreatedAt   time.Time        `json:"created_at"   db:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"   db:"updated_at"`
}

// ProfileAnalysis is the analysis blob the worker reports back: the user's
// GitHub metadata, every repo it saw, and which of those the user selected.
// The worker sends the complete picture, not a diff.
type ProfileAnalysis struct {
	UserProfile   map[string]any      `json:"user_profile"`
	Repos         map[string]RepoInfo `json:"repos"`
	SelectedRepos []string            `json:"selectedRepos,omitempty"`
}

// RepoInfo is the per-repository slice of the analysis blob. Only the fields
// the API reads are typed; the worker may send more, which survives in the
// stored JSON because the blob is persisted as received.
type RepoInfo struct {
	FullName        string `json:"full_name,omitempty"`
	Description     string `json:"description,omitempty"`
	PrimaryLanguage string `json:"primaryLanguage,omitempty"`
	IsPrivate       bool   `json:"isPrivate,omitempty"`
	Stars           int    `json:"stargazers_count,omitempty"`
}

// KnownRepoNames returns the sorted full names of every repo in the blob.
func (a *ProfileAnalysis) KnownRepoNames() []string {
	names := make([]string, 0, len(a.Repos))
	for name := range a.Repos {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// HasRepo reports whether the given full name appears in the known repos.
func (a *ProfileAnalysis) HasRepo(fullName string) bool {
	_, ok := a.Repos[fullName]
	return ok
}

var repoFullNamePattern = regexp.MustCompile(`^[\w\-.]+/[\w\-.]+$`)

// ValidRepoFullName reports whether name looks like "owner/repo".
func ValidRepoFullName(name string) bool {
	return repoFullNamePattern.MatchString(name)
}

// DedupeRepoNames returns names with duplicates removed, order preserved.
func DedupeRepoNames(names []string) []string {
	seen := make(map[string]struct{}, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}

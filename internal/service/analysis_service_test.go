package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devfolio/profile-api/internal/domain"
	"github.com/devfolio/profile-api/internal/port"
)

const testUserID = "5f8b5a6e-0000-4000-8000-000000000001"

func newTestEnv() (*AnalysisService, *fakeProfileStore, *fakeStatusStore, *fakeQueue, *fakeAuditStore) {
	profiles := newFakeProfileStore()
	status := newFakeStatusStore()
	queue := &fakeQueue{}
	audit := &fakeAuditStore{}

	svc := NewAnalysisService(profiles, status, queue, audit, 5, 5, 30*time.Minute)
	return svc, profiles, status, queue, audit
}

func connectGitHub(profiles *fakeProfileStore, status *fakeStatusStore, selected ...string) {
	profiles.users[testUserID] = &domain.User{ID: testUserID, Email: "u@example.com"}
	profiles.profiles[testUserID] = &domain.Profile{
		UserID:      testUserID,
		Provider:    domain.ProviderGitHub,
		ProviderUID: "12345",
		Username:    "octo",
		AccessToken: "gho_secret",
		Analysis: &domain.ProfileAnalysis{
			UserProfile: map[string]any{"login": "octo"},
			Repos: map[string]domain.RepoInfo{
				"a/b": {Description: "first"},
				"c/d": {Description: "second"},
			},
			SelectedRepos: selected,
		},
	}
	status.set(testUserID, domain.StatusIdle, 0)
}

func TestTriggerAnalysis_Success(t *testing.T) {
	svc, profiles, status, queue, audit := newTestEnv()
	connectGitHub(profiles, status, "a/b")

	err := svc.TriggerAnalysis(context.Background(), testUserID)
	require.NoError(t, err)

	require.Len(t, queue.published, 1)
	assert.Equal(t, testUserID, queue.published[0].UserID)
	assert.Equal(t, "gho_secret", queue.published[0].GitHubToken)

	rec, err := svc.Status(context.Background(), testUserID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusInProgress, rec.Status)

	require.Len(t, audit.entries, 1)
	assert.Equal(t, testUserID, *audit.entries[0].UserID)
}

func TestTriggerAnalysis_AlreadyRunning(t *testing.T) {
	svc, profiles, status, queue, _ := newTestEnv()
	connectGitHub(profiles, status, "a/b")
	status.set(testUserID, domain.StatusInProgress, 1)

	err := svc.TriggerAnalysis(context.Background(), testUserID)
	require.ErrorIs(t, err, port.ErrAlreadyRunning)
	assert.Empty(t, queue.published, "no second job may be published")
}

func TestTriggerAnalysis_ConcurrentLosesCAS(t *testing.T) {
	// The status read observes idle but the conditional write loses to a
	// concurrent trigger. No job may be published.
	svc, profiles, status, queue, _ := newTestEnv()
	connectGitHub(profiles, status, "a/b")
	status.denyStart = true

	err := svc.TriggerAnalysis(context.Background(), testUserID)
	require.ErrorIs(t, err, port.ErrAlreadyRunning)
	assert.Empty(t, queue.published)
}

func TestTriggerAnalysis_QuotaExceeded(t *testing.T) {
	svc, profiles, status, queue, _ := newTestEnv()
	connectGitHub(profiles, status, "a/b")

	for _, st := range []string{domain.StatusIdle, domain.StatusInProgress} {
		status.set(testUserID, st, 5)
		err := svc.TriggerAnalysis(context.Background(), testUserID)
		require.ErrorIs(t, err, port.ErrQuotaExceeded, "quota applies regardless of status %s", st)
	}
	assert.Empty(t, queue.published)
}

func TestTriggerAnalysis_NotConnected(t *testing.T) {
	svc, _, _, queue, _ := newTestEnv()

	err := svc.TriggerAnalysis(context.Background(), testUserID)
	require.ErrorIs(t, err, port.ErrNotConnected)
	assert.Empty(t, queue.published)
}

func TestTriggerAnalysis_EmptyToken(t *testing.T) {
	svc, profiles, status, _, _ := newTestEnv()
	connectGitHub(profiles, status, "a/b")
	profiles.profiles[testUserID].AccessToken = ""

	err := svc.TriggerAnalysis(context.Background(), testUserID)
	require.ErrorIs(t, err, port.ErrNotConnected)
}

func TestTriggerAnalysis_NoSelection(t *testing.T) {
	svc, profiles, status, _, _ := newTestEnv()
	connectGitHub(profiles, status) // nothing selected

	err := svc.TriggerAnalysis(context.Background(), testUserID)
	require.ErrorIs(t, err, port.ErrInvalidRepo)
}

func TestTriggerAnalysis_PublishFailureRollsBack(t *testing.T) {
	svc, profiles, status, queue, audit := newTestEnv()
	connectGitHub(profiles, status, "a/b")
	queue.err = errors.New("broker unreachable")

	err := svc.TriggerAnalysis(context.Background(), testUserID)
	require.ErrorIs(t, err, port.ErrPublish)

	// Status rolled back so the user can retry; no audit entry either.
	rec, err := svc.Status(context.Background(), testUserID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusIdle, rec.Status)
	assert.Empty(t, audit.entries)
}

func TestTriggerAnalysis_AuditFailureStillSucceeds(t *testing.T) {
	svc, profiles, status, queue, audit := newTestEnv()
	connectGitHub(profiles, status, "a/b")
	audit.appendErr = errors.New("db down")

	err := svc.TriggerAnalysis(context.Background(), testUserID)
	require.NoError(t, err, "the job was queued; audit is secondary bookkeeping")
	assert.Len(t, queue.published, 1)
}

func TestSelectRepos(t *testing.T) {
	tests := []struct {
		name    string
		repos   []string
		wantErr error
	}{
		{"valid subset", []string{"a/b"}, nil},
		{"whole known set", []string{"a/b", "c/d"}, nil},
		{"duplicates collapse", []string{"a/b", "a/b"}, nil},
		{"empty selection", []string{}, port.ErrInvalidRepo},
		{"unknown repo", []string{"x/y"}, port.ErrInvalidRepo},
		{"malformed name", []string{"not-a-repo"}, port.ErrInvalidRepo},
		{"over limit", []string{"a/b", "c/d", "e/f", "g/h", "i/j", "k/l"}, port.ErrInvalidRepo},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, profiles, status, _, _ := newTestEnv()
			connectGitHub(profiles, status)

			err := svc.SelectRepos(context.Background(), testUserID, tt.repos)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			selected := profiles.profiles[testUserID].Analysis.SelectedRepos
			assert.Equal(t, domain.DedupeRepoNames(tt.repos), selected)
		})
	}
}

func TestSelectRepos_NotConnected(t *testing.T) {
	svc, _, _, _, _ := newTestEnv()
	err := svc.SelectRepos(context.Background(), testUserID, []string{"a/b"})
	require.ErrorIs(t, err, port.ErrNotConnected)
}

func TestSweepStale(t *testing.T) {
	svc, profiles, status, _, audit := newTestEnv()
	connectGitHub(profiles, status, "a/b")

	uid := testUserID
	audit.entries = append(audit.entries, domain.AuditEntry{
		ID:        "audit-old",
		UserID:    &uid,
		StartedAt: time.Now().UTC().Add(-2 * time.Hour),
	})
	status.set(testUserID, domain.StatusInProgress, 2)

	require.NoError(t, svc.SweepStale(context.Background()))

	rec, err := svc.Status(context.Background(), testUserID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusIdle, rec.Status)
	assert.EqualValues(t, 2, rec.Turn, "a swept run did not complete; turn stays")
}

func TestSweepStale_RecentRunUntouched(t *testing.T) {
	svc, profiles, status, _, audit := newTestEnv()
	connectGitHub(profiles, status, "a/b")

	uid := testUserID
	audit.entries = append(audit.entries, domain.AuditEntry{
		ID:        "audit-fresh",
		UserID:    &uid,
		StartedAt: time.Now().UTC(),
	})
	status.set(testUserID, domain.StatusInProgress, 1)

	require.NoError(t, svc.SweepStale(context.Background()))

	rec, err := svc.Status(context.Background(), testUserID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusInProgress, rec.Status)
}

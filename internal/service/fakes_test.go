package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/devfolio/profile-api/internal/domain"
	"github.com/devfolio/profile-api/internal/port"
)

// In-memory fakes for the port interfaces. Each records enough of what
// happened for tests to assert on, and can be told to fail.

type fakeProfileStore struct {
	users    map[string]*domain.User
	profiles map[string]*domain.Profile // github profile per user id

	replaced  map[string]json.RawMessage
	selectErr error
}

func newFakeProfileStore() *fakeProfileStore {
	return &fakeProfileStore{
		users:    map[string]*domain.User{},
		profiles: map[string]*domain.Profile{},
		replaced: map[string]json.RawMessage{},
	}
}

func (f *fakeProfileStore) GetUserByID(_ context.Context, id string) (*domain.User, error) {
	u, ok := f.users[id]
	if !ok {
		return nil, port.ErrUserNotFound
	}
	return u, nil
}

func (f *fakeProfileStore) GetProfile(_ context.Context, userID, provider string) (*domain.Profile, error) {
	p, ok := f.profiles[userID]
	if !ok || p.Provider != provider {
		return nil, port.ErrProfileNotFound
	}
	return p, nil
}

func (f *fakeProfileStore) DeleteProfile(_ context.Context, userID, provider string) error {
	if _, ok := f.profiles[userID]; !ok {
		return port.ErrProfileNotFound
	}
	delete(f.profiles, userID)
	return nil
}

func (f *fakeProfileStore) UpdateSelectedRepos(_ context.Context, userID string, repos []string) error {
	if f.selectErr != nil {
		return f.selectErr
	}
	p, ok := f.profiles[userID]
	if !ok {
		return port.ErrProfileNotFound
	}
	if p.Analysis == nil {
		p.Analysis = &domain.ProfileAnalysis{}
	}
	p.Analysis.SelectedRepos = repos
	return nil
}

func (f *fakeProfileStore) ReplaceProfileAnalysis(_ context.Context, userID string, analysis json.RawMessage) error {
	p, ok := f.profiles[userID]
	if !ok {
		return port.ErrProfileNotFound
	}
	f.replaced[userID] = analysis
	var a domain.ProfileAnalysis
	if err := json.Unmarshal(analysis, &a); err != nil {
		return err
	}
	p.Analysis = &a
	return nil
}

type fakeStatusStore struct {
	recs map[string]*domain.StatusRecord

	denyStart bool // force the CAS to lose regardless of the record
	getErr    error
}

func newFakeStatusStore() *fakeStatusStore {
	return &fakeStatusStore{recs: map[string]*domain.StatusRecord{}}
}

func (f *fakeStatusStore) set(userID, status string, turn int64) {
	f.recs[userID] = &domain.StatusRecord{UserID: userID, Status: status, Turn: turn}
}

func (f *fakeStatusStore) EnsureRecord(_ context.Context, userID string) error {
	if _, ok := f.recs[userID]; !ok {
		f.set(userID, domain.StatusIdle, 0)
	}
	return nil
}

func (f *fakeStatusStore) GetStatus(_ context.Context, userID string) (*domain.StatusRecord, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	rec, ok := f.recs[userID]
	if !ok {
		return nil, port.ErrStatusNotFound
	}
	snapshot := *rec
	return &snapshot, nil
}

func (f *fakeStatusStore) TryStart(_ context.Context, userID string) (bool, error) {
	rec, ok := f.recs[userID]
	if !ok {
		return false, port.ErrStatusNotFound
	}
	if f.denyStart || rec.Status != domain.StatusIdle {
		return false, nil
	}
	rec.Status = domain.StatusInProgress
	return true, nil
}

func (f *fakeStatusStore) Complete(_ context.Context, userID string) (int64, error) {
	rec, ok := f.recs[userID]
	if !ok {
		return 0, port.ErrStatusNotFound
	}
	if rec.Status == domain.StatusInProgress {
		rec.Turn++
	}
	rec.Status = domain.StatusIdle
	return rec.Turn, nil
}

func (f *fakeStatusStore) ForceIdle(_ context.Context, userID string) error {
	rec, ok := f.recs[userID]
	if !ok {
		return port.ErrStatusNotFound
	}
	rec.Status = domain.StatusIdle
	return nil
}

type fakeQueue struct {
	published []domain.AnalysisJobMessage
	err       error
}

func (f *fakeQueue) Publish(_ context.Context, msg domain.AnalysisJobMessage) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.published = append(f.published, msg)
	return fmt.Sprintf("msg-%d", len(f.published)), nil
}

type fakeAuditStore struct {
	entries   []domain.AuditEntry
	appendErr error
}

func (f *fakeAuditStore) AppendAuditEntry(_ context.Context, userID string) (*domain.AuditEntry, error) {
	if f.appendErr != nil {
		return nil, f.appendErr
	}
	uid := userID
	entry := domain.AuditEntry{
		ID:        fmt.Sprintf("audit-%d", len(f.entries)+1),
		UserID:    &uid,
		StartedAt: time.Now().UTC(),
	}
	f.entries = append(f.entries, entry)
	return &entry, nil
}

func (f *fakeAuditStore) CountAuditEntries(_ context.Context, userID string) (int, error) {
	count := 0
	for _, e := range f.entries {
		if e.UserID != nil && *e.UserID == userID {
			count++
		}
	}
	return count, nil
}

func (f *fakeAuditStore) LatestAuditBefore(_ context.Context, cutoff time.Time) ([]domain.AuditEntry, error) {
	latest := map[string]domain.AuditEntry{}
	for _, e := range f.entries {
		if e.UserID == nil {
			continue
		}
		if cur, ok := latest[*e.UserID]; !ok || e.StartedAt.After(cur.StartedAt) {
			latest[*e.UserID] = e
		}
	}
	var out []domain.AuditEntry
	for _, e := range latest {
		if e.StartedAt.Before(cutoff) {
			out = append(out, e)
		}
	}
	return out, nil
}

type fakeResultStore struct {
	repoAnalyses map[int64]*domain.RepoAnalysis
	tech         map[string]*domain.TechAnalysis
}

func newFakeResultStore() *fakeResultStore {
	return &fakeResultStore{
		repoAnalyses: map[int64]*domain.RepoAnalysis{},
		tech:         map[string]*domain.TechAnalysis{},
	}
}

func (f *fakeResultStore) UpsertRepoAnalysis(_ context.Context, ra *domain.RepoAnalysis) error {
	f.repoAnalyses[ra.ProviderRepoID] = ra
	return nil
}

func (f *fakeResultStore) GetRepoAnalysis(_ context.Context, provider, fullName string) (*domain.RepoAnalysis, error) {
	for _, ra := range f.repoAnalyses {
		if ra.Provider == provider && ra.FullName == fullName {
			return ra, nil
		}
	}
	return nil, port.ErrRepoNotFound
}

func (f *fakeResultStore) GetTechAnalysis(_ context.Context, userID string) (*domain.TechAnalysis, error) {
	if ta, ok := f.tech[userID]; ok {
		return ta, nil
	}
	return &domain.TechAnalysis{
		UserID: userID,
		Repos:  map[string]domain.RepoTechStats{},
	}, nil
}

func (f *fakeResultStore) SaveTechAnalysis(_ context.Context, ta *domain.TechAnalysis) error {
	f.tech[ta.UserID] = ta
	return nil
}

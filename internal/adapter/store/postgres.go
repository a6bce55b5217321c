package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/devfolio/profile-api/internal/domain"
	"github.com/devfolio/profile-api/internal/port"
)

// PostgresStore handles all relational database operations.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore opens a connection and returns a store instance.
func NewPostgresStore(databaseURL string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(context.Background()); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &PostgresStore{db: db}, nil
}

// Close closes the database connection.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// DB returns the underlying *sql.DB for use in transactions.
func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

// --- Users ---

// UpsertUser inserts or updates a user by email.
func (s *PostgresStore) UpsertUser(ctx context.Context, u *domain.User) (*domain.User, error) {
	query := `
		INSERT INTO users (email, name, avatar_url, role)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (email) DO UPDATE SET
			name = EXCLUDED.name,
			avatar_url = EXCLUDED.avatar_url,
			updated_at = NOW()
		RETURNING id, email, name, avatar_url, role, created_at, updated_at`

	var user domain.User
	err := s.db.QueryRowContext(ctx, query, u.Email, u.Name, u.AvatarURL, "user").Scan(
		&user.ID, &user.Email, &user.Name, &user.AvatarURL,
		&user.Role, &user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("upsert user: %w", err)
	}
	return &user, nil
}

// GetUserByID retrieves a user by ID.
func (s *PostgresStore) GetUserByID(ctx context.Context, id string) (*domain.User, error) {
	query := `SELECT id, email, name, avatar_url, role, created_at, updated_at
	          FROM users WHERE id = $1`

	var user domain.User
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&user.ID, &user.Email, &user.Name, &user.AvatarURL,
		&user.Role, &user.CreatedAt, &user.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, port.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &user, nil
}

// --- Profiles ---

// UpsertProfile inserts or updates a connected provider profile, keyed by
// (provider, provider_uid). The access token is refreshed on every connect.
func (s *PostgresStore) UpsertProfile(ctx context.Context, p *domain.Profile) (*domain.Profile, error) {
	query := `
		INSERT INTO profiles (user_id, provider, provider_uid, username, access_token)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (provider, provider_uid) DO UPDATE SET
			username = EXCLUDED.username,
			access_token = EXCLUDED.access_token,
			updated_at = NOW()
		RETURNING id, user_id, provider, provider_uid, username, access_token,
		          profile_analysis, created_at, updated_at`

	row := s.db.QueryRowContext(ctx, query,
		p.UserID, p.Provider, p.ProviderUID, p.Username, p.AccessToken,
	)
	return scanProfile(row)
}

// GetProfile returns the profile a user connected for a provider.
func (s *PostgresStore) GetProfile(ctx context.Context, userID, provider string) (*domain.Profile, error) {
	query := `SELECT id, user_id, provider, provider_uid, username, access_token,
	                 profile_analysis, created_at, updated_at
	          FROM profiles WHERE user_id = $1 AND provider = $2`

	profile, err := scanProfile(s.db.QueryRowContext(ctx, query, userID, provider))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, port.ErrProfileNotFound
	}
	return profile, err
}

// DeleteProfile removes a connected profile; analysis state stored on the
// row goes with it.
func (s *PostgresStore) DeleteProfile(ctx context.Context, userID, provider string) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM profiles WHERE user_id = $1 AND provider = $2`, userID, provider)
	if err != nil {
		return fmt.Errorf("delete profile: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return port.ErrProfileNotFound
	}
	return nil
}

// UpdateSelectedRepos replaces only the selectedRepos key of the analysis
// blob. jsonb_set keeps the rest of the blob (repos, user_profile) intact.
func (s *PostgresStore) UpdateSelectedRepos(ctx context.Context, userID string, repos []string) error {
	selected, err := json.Marshal(repos)
	if err != nil {
		return fmt.Errorf("marshal selected repos: %w", err)
	}

	query := `UPDATE profiles
	          SET profile_analysis = jsonb_set(COALESCE(profile_analysis, '{}'::jsonb), '{selectedRepos}', $1::jsonb),
	              updated_at = NOW()
	          WHERE user_id = $2 AND provider = $3`

	res, err := s.db.ExecContext(ctx, query, string(selected), userID, domain.ProviderGitHub)
	if err != nil {
		return fmt.Errorf("update selected repos: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return port.ErrProfileNotFound
	}
	return nil
}

// ReplaceProfileAnalysis stores the worker payload verbatim (full replace).
func (s *PostgresStore) ReplaceProfileAnalysis(ctx context.Context, userID string, analysis json.RawMessage) error {
	query := `UPDATE profiles SET profile_analysis = $1::jsonb, updated_at = NOW()
	          WHERE user_id = $2 AND provider = $3`

	res, err := s.db.ExecContext(ctx, query, string(analysis), userID, domain.ProviderGitHub)
	if err != nil {
		return fmt.Errorf("replace profile analysis: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return port.ErrProfileNotFound
	}
	return nil
}

func scanProfile(row *sql.Row) (*domain.Profile, error) {
	var (
		p        domain.Profile
		analysis sql.Null[[]byte]
	)
	err := row.Scan(
		&p.ID, &p.UserID, &p.Provider, &p.ProviderUID, &p.Username,
		&p.AccessToken, &analysis, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan profile: %w", err)
	}
	if analysis.Valid && len(analysis.V) > 0 {
		var a domain.ProfileAnalysis
		if err := json.Unmarshal(analysis.V, &a); err != nil {
			return nil, fmt.Errorf("decode profile analysis: %w", err)
		}
		p.Analysis = &a
	}
	return &p, nil
}

// --- Analysis audit log ---

// AppendAuditEntry records one triggered analysis attempt. Rows are never
// updated or deleted.
func (s *PostgresStore) AppendAuditEntry(ctx context.Context, userID string) (*domain.AuditEntry, error) {
	query := `INSERT INTO analysis_audit (user_id, started_at)
	          VALUES ($1, NOW())
	          RETURNING id, user_id, started_at`

	var entry domain.AuditEntry
	err := s.db.QueryRowContext(ctx, query, userID).Scan(
		&entry.ID, &entry.UserID, &entry.StartedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("append audit entry: %w", err)
	}
	return &entry, nil
}

// CountAuditEntries returns how many analyses a user has triggered.
func (s *PostgresStore) CountAuditEntries(ctx context.Context, userID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM analysis_audit WHERE user_id = $1`, userID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count audit entries: %w", err)
	}
	return count, nil
}

// LatestAuditBefore returns each user's most recent attempt, limited to
// users whose latest attempt started before the cutoff.
func (s *PostgresStore) LatestAuditBefore(ctx context.Context, cutoff time.Time) ([]domain.AuditEntry, error) {
	query := `SELECT DISTINCT ON (user_id) id, user_id, started_at
	          FROM analysis_audit
	          WHERE user_id IS NOT NULL
	          ORDER BY user_id, started_at DESC`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("latest audit entries: %w", err)
	}
	defer rows.Close()

	var entries []domain.AuditEntry
	for rows.Next() {
		var e domain.AuditEntry
		if err := rows.Scan(&e.ID, &e.UserID, &e.StartedAt); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		if e.StartedAt.Before(cutoff) {
			entries = append(entries, e)
		}
	}
	return entries, rows.Err()
}

// --- Repo analysis cache ---

// UpsertRepoAnalysis stores the worker's per-repo analysis, keyed by
// (provider, provider_repo_id).
func (s *PostgresStore) UpsertRepoAnalysis(ctx context.Context, ra *domain.RepoAnalysis) error {
	analysis, err := json.Marshal(ra.Analysis)
	if err != nil {
		return fmt.Errorf("marshal repo analysis: %w", err)
	}

	query := `INSERT INTO repo_analyses (provider, provider_repo_id, full_name, analysis)
	          VALUES ($1, $2, $3, $4::jsonb)
	          ON CONFLICT (provider, provider_repo_id) DO UPDATE SET
	              full_name = EXCLUDED.full_name,
	              analysis = EXCLUDED.analysis,
	              updated_at = NOW()`

	if _, err := s.db.ExecContext(ctx, query, ra.Provider, ra.ProviderRepoID, ra.FullName, string(analysis)); err != nil {
		return fmt.Errorf("upsert repo analysis: %w", err)
	}
	return nil
}

// GetRepoAnalysis returns the cached analysis for one repository by its
// full name.
func (s *PostgresStore) GetRepoAnalysis(ctx context.Context, provider, fullName string) (*domain.RepoAnalysis, error) {
	query := `SELECT id, provider, provider_repo_id, full_name, analysis, updated_at
	          FROM repo_analyses WHERE provider = $1 AND full_name = $2`

	var (
		ra       domain.RepoAnalysis
		analysis []byte
	)
	err := s.db.QueryRowContext(ctx, query, provider, fullName).Scan(
		&ra.ID, &ra.Provider, &ra.ProviderRepoID, &ra.FullName, &analysis, &ra.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, port.ErrRepoNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get repo analysis: %w", err)
	}

	if err := json.Unmarshal(analysis, &ra.Analysis); err != nil {
		return nil, fmt.Errorf("decode repo analysis: %w", err)
	}
	return &ra, nil
}

// --- Tech analysis ---

// GetTechAnalysis returns the user's tech analysis, or an empty one if the
// user has no row yet.
func (s *PostgresStore) GetTechAnalysis(ctx context.Context, userID string) (*domain.TechAnalysis, error) {
	query := `SELECT id, user_id, repos, aggregated, updated_at
	          FROM tech_analyses WHERE user_id = $1`

	var (
		ta         domain.TechAnalysis
		repos      []byte
		aggregated []byte
	)
	err := s.db.QueryRowContext(ctx, query, userID).Scan(
		&ta.ID, &ta.UserID, &repos, &aggregated, &ta.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return &domain.TechAnalysis{
			UserID: userID,
			Repos:  map[string]domain.RepoTechStats{},
		}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get tech analysis: %w", err)
	}

	if err := json.Unmarshal(repos, &ta.Repos); err != nil {
		return nil, fmt.Errorf("decode tech analysis repos: %w", err)
	}
	if err := json.Unmarshal(aggregated, &ta.Aggregated); err != nil {
		return nil, fmt.Errorf("decode tech analysis aggregate: %w", err)
	}
	return &ta, nil
}

// SaveTechAnalysis upserts the user's tech analysis row.
func (s *PostgresStore) SaveTechAnalysis(ctx context.Context, ta *domain.TechAnalysis) error {
	repos, err := json.Marshal(ta.Repos)
	if err != nil {
		return fmt.Errorf("marshal tech analysis repos: %w", err)
	}
	aggregated, err := json.Marshal(ta.Aggregated)
	if err != nil {
		return fmt.Errorf("marshal tech analysis aggregate: %w", err)
	}

	query := `INSERT INTO tech_analyses (user_id, repos, aggregated)
	          VALUES ($1, $2::jsonb, $3::jsonb)
	          ON CONFLICT (user_id) DO UPDATE SET
	              repos = EXCLUDED.repos,
	              aggregated = EXCLUDED.aggregated,
	              updated_at = NOW()`

	if _, err := s.db.ExecContext(ctx, query, ta.UserID, string(repos), string(aggregated)); err != nil {
		return fmt.Errorf("save tech analysis: %w", err)
	}
	return nil
}

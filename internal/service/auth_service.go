package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/devfolio/profile-api/internal/adapter/store"
	"github.com/devfolio/profile-api/internal/domain"
	"github.com/devfolio/profile-api/internal/middleware"
	"github.com/devfolio/profile-api/internal/port"
	"github.com/devfolio/profile-api/pkg/config"
)

// AuthService handles the OAuth connect flow: exchanging the code, upserting
// the user and provider profile, and preparing the user's analysis state.
type AuthService struct {
	providers port.AuthProviderRegistry
	store     *store.PostgresStore
	status    port.StatusStore
	jwtCfg    middleware.JWTConfig
}

// NewAuthService creates a new authentication service.
func NewAuthService(providers port.AuthProviderRegistry, store *store.PostgresStore, status port.StatusStore, cfg *config.Config) *AuthService {
	return &AuthService{
		providers: providers,
		store:     store,
		status:    status,
		jwtCfg: middleware.JWTConfig{
			Secret:    cfg.JWTSecret,
			Issuer:    cfg.JWTIssuer,
			ExpiresIn: time.Duration(cfg.JWTExpiration) * time.Hour,
		},
	}
}

// GetAuthURL returns the OAuth2 authorization URL for the given provider.
func (s *AuthService) GetAuthURL(providerName, state string) (string, error) {
	provider, ok := s.providers[providerName]
	if !ok {
		return "", fmt.Errorf("unknown provider: %s", providerName)
	}
	return provider.AuthURL(state), nil
}

// HandleCallback processes the OAuth2 callback: exchanges the code, upserts
// the user and the connected profile, ensures the user's Status Store record
// exists, seeds the known-repos set, and returns a session JWT.
func (s *AuthService) HandleCallback(ctx context.Context, providerName, code string) (string, *domain.User, error) {
	provider, ok := s.providers[providerName]
	if !ok {
		return "", nil, fmt.Errorf("unknown provider: %s", providerName)
	}

	tokens, err := provider.ExchangeCode(ctx, code)
	if err != nil {
		return "", nil, fmt.Errorf("exchange code: %w", err)
	}

	account, err := provider.GetAccount(ctx, tokens.AccessToken)
	if err != nil {
		return "", nil, fmt.Errorf("get account: %w", err)
	}

	email := account.Email
	if email == "" {
		// GitHub hides private emails on /user; fall back to a stable synthetic.
		email = fmt.Sprintf("%s@users.%s.local", account.Username, providerName)
	}

	user, err := s.store.UpsertUser(ctx, &domain.User{
		Email:     email,
		Name:      account.Name,
		AvatarURL: account.AvatarURL,
	})
	if err != nil {
		return "", nil, fmt.Errorf("upsert user: %w", err)
	}

	profile, err := s.store.UpsertProfile(ctx, &domain.Profile{
		UserID:      user.ID,
		Provider:    provider.ProviderName(),
		ProviderUID: account.UID,
		Username:    account.Username,
		AccessToken: tokens.AccessToken,
	})
	if err != nil {
		return "", nil, fmt.Errorf("upsert profile: %w", err)
	}

	// The Status Store record is created with the user, never lazily by the
	// trigger path.
	if err := s.status.EnsureRecord(ctx, user.ID); err != nil {
		return "", nil, fmt.Errorf("ensure status record: %w", err)
	}

	// Seed the known-repos set so the user can select repos before the first
	// analysis ever runs. Non-fatal: the worker refreshes the blob anyway.
	if profile.Analysis == nil {
		if err := s.seedKnownRepos(ctx, provider, user.ID, account, tokens.AccessToken); err != nil {
			slog.Warn("seeding known repos failed", "user_id", user.ID, "error", err)
		}
	}

	jwt, err := middleware.GenerateJWT(user, s.jwtCfg)
	if err != nil {
		return "", nil, fmt.Errorf("generate jwt: %w", err)
	}

	slog.Info("user authenticated", "user_id", user.ID, "provider", providerName)
	return jwt, user, nil
}

func (s *AuthService) seedKnownRepos(ctx context.Context, provider port.AuthProvider, userID string, account *port.ProviderAccount, accessToken string) error {
	repos, err := provider.ListRepos(ctx, accessToken)
	if err != nil {
		return fmt.Errorf("list repos: %w", err)
	}

	blob, err := json.Marshal(domain.ProfileAnalysis{
		UserProfile: map[string]any{
			"login":     account.Username,
			"name":      account.Name,
			"avatarUrl": account.AvatarURL,
		},
		Repos: repos,
	})
	if err != nil {
		return fmt.Errorf("marshal seed analysis: %w", err)
	}

	if err := s.store.ReplaceProfileAnalysis(ctx, userID, blob); err != nil {
		return fmt.Errorf("store seed analysis: %w", err)
	}

	slog.Info("known repos seeded", "user_id", userID, "count", len(repos))
	return nil
}

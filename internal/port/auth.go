package port

import (
	"context"

	"github.com/devfolio/profile-api/internal/domain"
)

// AuthProvider abstracts the OAuth2 identity provider.
// Implementations handle token exchange, profile retrieval and repository
// listing for a specific provider (GitHub, GitLab, etc.).
type AuthProvider interface {
	// ProviderName returns the name of this provider (e.g. "github").
	ProviderName() string

	// AuthURL returns the full OAuth2 authorization URL for redirecting the user.
	AuthURL(state string) string

	// ExchangeCode exchanges an authorization code for an access/refresh token pair.
	ExchangeCode(ctx context.Context, code string) (*domain.TokenPair, error)

	// GetAccount fetches the authenticated account's identity from the provider.
	GetAccount(ctx context.Context, accessToken string) (*ProviderAccount, error)

	// ListRepos lists the repositories the token can see, as full names
	// mapped to their metadata.
	ListRepos(ctx context.Context, accessToken string) (map[string]domain.RepoInfo, error)
}

// ProviderAccount is the identity a provider reports for an access token.
type ProviderAccount struct {
	UID       string
	Username  string
	Email     string
	Name      string
	AvatarURL string
}

// AuthProviderRegistry holds multiple AuthProvider implementations keyed by name.
type AuthProviderRegistry map[string]AuthProvider

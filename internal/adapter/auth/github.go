package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/devfolio/profile-api/internal/domain"
	"github.com/devfolio/profile-api/internal/port"
)

const (
	githubAuthURL    = "https://github.com/login/oauth/authorize"
	githubTokenURL   = "https://github.com/login/oauth/access_token"
	githubProfileURL = "https://api.github.com/user"
	githubReposURL   = "https://api.github.com/user/repos"
)

// GitHubProvider implements port.AuthProvider for GitHub OAuth.
type GitHubProvider struct {
	clientID     string
	clientSecret string
	redirectURL  string
	httpClient   *http.Client
}

// NewGitHubProvider creates a new GitHub OAuth provider.
func NewGitHubProvider(clientID, clientSecret, redirectURL string) *GitHubProvider {
	return &GitHubProvider{
		clientID:     clientID,
		clientSecret: clientSecret,
		redirectURL:  redirectURL,
		httpClient:   &http.Client{},
	}
}

// ProviderName returns "github".
func (g *GitHubProvider) ProviderName() string {
	return domain.ProviderGitHub
}

// AuthURL returns the GitHub OAuth consent screen URL.
func (g *GitHubProvider) AuthURL(state string) string {
	params := url.Values{
		"client_id":    {g.clientID},
		"redirect_uri": {g.redirectURL},
		"scope":        {"user:email read:user repo"},
		"state":        {state},
	}
	return fmt.Sprintf("%s?%s", githubAuthURL, params.Encode())
}

// ExchangeCode exchanges an authorization code for tokens.
func (g *GitHubProvider) ExchangeCode(ctx context.Context, code string) (*domain.TokenPair, error) {
	data := url.Values{
		"client_id":     {g.clientID},
		"client_secret": {g.clientSecret},
		"code":          {code},
		"redirect_uri":  {g.redirectURL},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, githubTokenURL, strings.NewReader(data.Encode()))
	if err != nil {
		return nil, fmt.Errorf("github: create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("github: token exchange: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)

	var tokenResp struct {
		AccessToken string `json:"access_token"`
		TokenType   string `json:"token_type"`
		Scope       string `json:"scope"`
		Error       string `json:"error"`
		ErrorDesc   string `json:"error_description"`
	}
	if err := json.Unmarshal(body, &tokenResp); err != nil {
		return nil, fmt.Errorf("github: decode token response: %w", err)
	}

	if tokenResp.Error != "" {
		return nil, fmt.Errorf("github: %s: %s", tokenResp.Error, tokenResp.ErrorDesc)
	}

	return &domain.TokenPair{
		AccessToken: tokenResp.AccessToken,
		TokenType:   tokenResp.TokenType,
	}, nil
}

// GetAccount fetches the GitHub account identity using an access token.
func (g *GitHubProvider) GetAccount(ctx context.Context, accessToken string) (*port.ProviderAccount, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, githubProfileURL, nil)
	if err != nil {
		return nil, fmt.Errorf("github: create profile request: %w", err)
	}
	setGitHubHeaders(req, accessToken)

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("github: fetch profile: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("github: profile fetch failed (%d): %s", resp.StatusCode, string(body))
	}

	var profile struct {
		ID        int64  `json:"id"`
		Login     string `json:"login"`
		Name      string `json:"name"`
		Email     string `json:"email"`
		AvatarURL string `json:"avatar_url"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&profile); err != nil {
		return nil, fmt.Errorf("github: decode profile: %w", err)
	}

	name := profile.Name
	if name == "" {
		name = profile.Login
	}

	return &port.ProviderAccount{
		UID:       fmt.Sprintf("%d", profile.ID),
		Username:  profile.Login,
		Email:     profile.Email,
		Name:      name,
		AvatarURL: profile.AvatarURL,
	}, nil
}

// ListRepos lists the repositories the token can see, keyed by full name.
// Pages through the API (100 per page) until GitHub runs out.
func (g *GitHubProvider) ListRepos(ctx context.Context, accessToken string) (map[string]domain.RepoInfo, error) {
	repos := make(map[string]domain.RepoInfo)

	for page := 1; ; page++ {
		url := fmt.Sprintf("%s?visibility=all&sort=updated&per_page=100&page=%d", githubReposURL, page)
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, fmt.Errorf("github: create repos request: %w", err)
		}
		setGitHubHeaders(req, accessToken)

		resp, err := g.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("github: fetch repos: %w", err)
		}

		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(resp.Body)
			resp.Body.Close()
			return nil, fmt.Errorf("github: repos fetch failed (%d): %s", resp.StatusCode, string(body))
		}

		var batch []struct {
			FullName    string `json:"full_name"`
			Description string `json:"description"`
			Language    string `json:"language"`
			Private     bool   `json:"private"`
			Stars       int    `json:"stargazers_count"`
		}
		err = json.NewDecoder(resp.Body).Decode(&batch)
		resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("github: decode repos: %w", err)
		}

		for _, r := range batch {
			repos[r.FullName] = domain.RepoInfo{
				FullName:        r.FullName,
				Description:     r.Description,
				PrimaryLanguage: r.Language,
				IsPrivate:       r.Private,
				Stars:           r.Stars,
			}
		}

		if len(batch) < 100 {
			return repos, nil
		}
	}
}

func setGitHubHeaders(req *http.Request, accessToken string) {
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")
}

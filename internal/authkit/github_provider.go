package authkit

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"golang.org/x/oauth2/github"
)

const githubAPIBaseURL = "https://api.github.com"

// GitHubProvider signs users in with a GitHub OAuth app.
type GitHubProvider struct {
	client oauthClient
}

// NewGitHubProvider builds a provider that returns to redirectURL after consent.
func NewGitHubProvider(clientConfig OAuthClientConfig, redirectURL string, httpClient *http.Client) *GitHubProvider {
	return &GitHubProvider{
		client: newOAuthClient(clientConfig, github.Endpoint, redirectURL, []string{"user:email"}, githubAPIBaseURL, httpClient),
	}
}

func (provider *GitHubProvider) Provider() Provider {
	return ProviderGitHub
}

func (provider *GitHubProvider) AuthorizationURL(state string) string {
	return provider.client.authorizationURL(state)
}

// ExchangeCode resolves the numeric account id and the primary verified email.
// The profile email is ignored because GitHub omits it when the user keeps it private.
func (provider *GitHubProvider) ExchangeCode(ctx context.Context, code string) (ProviderIdentity, error) {
	authorized, err := provider.client.exchange(ctx, code)
	if err != nil {
		return ProviderIdentity{}, fmt.Errorf("oauth.github: %w", err)
	}
	var account struct {
		ID int64 `json:"id"`
	}
	if err := provider.client.getJSON(ctx, authorized, "/user", &account); err != nil {
		return ProviderIdentity{}, fmt.Errorf("oauth.github.user: %w", err)
	}
	if account.ID == 0 {
		return ProviderIdentity{}, fmt.Errorf("oauth.github.user: %w", errProviderMissingData)
	}
	var emails []struct {
		Email    string `json:"email"`
		Primary  bool   `json:"primary"`
		Verified bool   `json:"verified"`
	}
	if err := provider.client.getJSON(ctx, authorized, "/user/emails", &emails); err != nil {
		return ProviderIdentity{}, fmt.Errorf("oauth.github.emails: %w", err)
	}
	for _, entry := range emails {
		if entry.Primary && entry.Verified && entry.Email != "" {
			return ProviderIdentity{Email: entry.Email, ProviderUserID: strconv.FormatInt(account.ID, 10)}, nil
		}
	}
	return ProviderIdentity{}, fmt.Errorf("oauth.github.emails.no_primary_verified: %w", errProviderMissingData)
}

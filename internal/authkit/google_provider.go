package authkit

import (
	"context"
	"fmt"
	"net/http"

	"golang.org/x/oauth2/google"
)

const googleAPIBaseURL = "https://www.googleapis.com"

// GoogleProvider signs users in through Google's OAuth consent screen.
type GoogleProvider struct {
	client oauthClient
}

// NewGoogleProvider builds a provider that returns to redirectURL after consent.
func NewGoogleProvider(clientConfig OAuthClientConfig, redirectURL string, httpClient *http.Client) *GoogleProvider {
	return &GoogleProvider{
		client: newOAuthClient(clientConfig, google.Endpoint, redirectURL, []string{"openid", "email", "profile"}, googleAPIBaseURL, httpClient),
	}
}

func (provider *GoogleProvider) Provider() Provider {
	return ProviderGoogle
}

func (provider *GoogleProvider) AuthorizationURL(state string) string {
	return provider.client.authorizationURL(state)
}

func (provider *GoogleProvider) ExchangeCode(ctx context.Context, code string) (ProviderIdentity, error) {
	authorized, err := provider.client.exchange(ctx, code)
	if err != nil {
		return ProviderIdentity{}, fmt.Errorf("oauth.google: %w", err)
	}
	var profile struct {
		ID    string `json:"id"`
		Email string `json:"email"`
	}
	if err := provider.client.getJSON(ctx, authorized, "/oauth2/v2/userinfo", &profile); err != nil {
		return ProviderIdentity{}, fmt.Errorf("oauth.google.userinfo: %w", err)
	}
	if profile.ID == "" || profile.Email == "" {
		return ProviderIdentity{}, fmt.Errorf("oauth.google.userinfo: %w", errProviderMissingData)
	}
	return ProviderIdentity{Email: profile.Email, ProviderUserID: profile.ID}, nil
}

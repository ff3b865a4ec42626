package authkit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"golang.org/x/oauth2"
)

// Provider names an external identity provider.
type Provider string

const (
	ProviderGoogle Provider = "google"
	ProviderGitHub Provider = "github"
)

// ErrUnknownProvider indicates the provider name is not supported.
var ErrUnknownProvider = errors.New("oauth.unknown_provider")

var (
	errProviderStatus      = errors.New("oauth.provider.unexpected_status")
	errProviderMissingData = errors.New("oauth.provider.missing_identity")
)

// ParseProvider maps a path segment onto a supported provider.
func ParseProvider(value string) (Provider, error) {
	switch Provider(strings.ToLower(strings.TrimSpace(value))) {
	case ProviderGoogle:
		return ProviderGoogle, nil
	case ProviderGitHub:
		return ProviderGitHub, nil
	default:
		return "", fmt.Errorf("oauth.parse_provider.%s: %w", value, ErrUnknownProvider)
	}
}

// ProviderIdentity is what a provider vouches for after a successful code exchange.
type ProviderIdentity struct {
	Email          string
	ProviderUserID string
}

// IdentityProvider performs the authorization-code flow against one external provider.
type IdentityProvider interface {
	Provider() Provider
	AuthorizationURL(state string) string
	ExchangeCode(ctx context.Context, code string) (ProviderIdentity, error)
}

type oauthClient struct {
	config     *oauth2.Config
	httpClient *http.Client
	apiBaseURL string
	userAgent  string
}

func newOAuthClient(clientConfig OAuthClientConfig, endpoint oauth2.Endpoint, redirectURL string, scopes []string, defaultAPIBaseURL string, httpClient *http.Client) oauthClient {
	if clientConfig.AuthURL != "" {
		endpoint.AuthURL = clientConfig.AuthURL
	}
	if clientConfig.TokenURL != "" {
		endpoint.TokenURL = clientConfig.TokenURL
		endpoint.AuthStyle = oauth2.AuthStyleInParams
	}
	apiBaseURL := defaultAPIBaseURL
	if clientConfig.APIBaseURL != "" {
		apiBaseURL = strings.TrimRight(clientConfig.APIBaseURL, "/")
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return oauthClient{
		config: &oauth2.Config{
			ClientID:     clientConfig.ClientID,
			ClientSecret: clientConfig.ClientSecret,
			Endpoint:     endpoint,
			RedirectURL:  redirectURL,
			Scopes:       scopes,
		},
		httpClient: httpClient,
		apiBaseURL: apiBaseURL,
		userAgent:  "mumblefish",
	}
}

func (client oauthClient) authorizationURL(state string) string {
	return client.config.AuthCodeURL(state)
}

// exchange trades code for an access token and returns an HTTP client that carries it.
func (client oauthClient) exchange(ctx context.Context, code string) (*http.Client, error) {
	exchangeContext := context.WithValue(ctx, oauth2.HTTPClient, client.httpClient)
	token, err := client.config.Exchange(exchangeContext, code)
	if err != nil {
		return nil, fmt.Errorf("oauth.exchange: %w", err)
	}
	return client.config.Client(exchangeContext, token), nil
}

func (client oauthClient) getJSON(ctx context.Context, authorized *http.Client, path string, target any) error {
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, client.apiBaseURL+path, nil)
	if err != nil {
		return fmt.Errorf("oauth.api.request: %w", err)
	}
	request.Header.Set("Accept", "application/json")
	request.Header.Set("User-Agent", client.userAgent)

	response, err := authorized.Do(request)
	if err != nil {
		return fmt.Errorf("oauth.api.do: %w", err)
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, response.Body)
		return fmt.Errorf("oauth.api.%s.%d: %w", strings.Trim(strings.ReplaceAll(path, "/", "_"), "_"), response.StatusCode, errProviderStatus)
	}
	if err := json.NewDecoder(response.Body).Decode(target); err != nil {
		return fmt.Errorf("oauth.api.decode: %w", err)
	}
	return nil
}

// NewIdentityProviders builds the providers whose credentials are present in configuration.
func NewIdentityProviders(configuration ServerConfig, httpClient *http.Client) map[Provider]IdentityProvider {
	providers := make(map[Provider]IdentityProvider)
	if configuration.GoogleOAuth.Configured() {
		providers[ProviderGoogle] = NewGoogleProvider(configuration.GoogleOAuth, configuration.CallbackURL(ProviderGoogle), httpClient)
	}
	if configuration.GitHubOAuth.Configured() {
		providers[ProviderGitHub] = NewGitHubProvider(configuration.GitHubOAuth, configuration.CallbackURL(ProviderGitHub), httpClient)
	}
	return providers
}

package authkit

import "time"

// ServerConfig is built once at startup and shared read-only by every component.
type ServerConfig struct {
	TokenSigningKey    []byte
	TokenTTL           time.Duration
	OAuthStateTTL      time.Duration
	AllowedRedirects   []string
	DefaultRedirectURI string
	PublicBaseURL      string
	GoogleOAuth        OAuthClientConfig
	GitHubOAuth        OAuthClientConfig
}

// OAuthClientConfig holds the credentials registered with an external identity provider.
// Endpoint overrides are empty in production and point at fakes in tests.
type OAuthClientConfig struct {
	ClientID     string
	ClientSecret string
	AuthURL      string
	TokenURL     string
	APIBaseURL   string
}

// Configured reports whether both client credentials are present.
func (configuration OAuthClientConfig) Configured() bool {
	return configuration.ClientID != "" && configuration.ClientSecret != ""
}

// CallbackURL returns the provider callback address served by this backend.
func (configuration ServerConfig) CallbackURL(provider Provider) string {
	return configuration.PublicBaseURL + "/api/v1/auth/oauth/" + string(provider) + "/callback"
}

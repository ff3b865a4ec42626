package authkit

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
)

type fakeAccount struct {
	id       string
	email    string
	verified bool
}

// fakeIdentityServer plays both providers: it accepts any code listed in accounts and serves the matching profile.
type fakeIdentityServer struct {
	server   *httptest.Server
	mutex    sync.Mutex
	accounts map[string]fakeAccount
	tokens   map[string]fakeAccount
	exchange int
}

func newFakeIdentityServer(t *testing.T) *fakeIdentityServer {
	t.Helper()
	fake := &fakeIdentityServer{accounts: map[string]fakeAccount{}, tokens: map[string]fakeAccount{}}
	mux := http.NewServeMux()
	mux.HandleFunc("/token", fake.handleToken)
	mux.HandleFunc("/oauth2/v2/userinfo", fake.handleGoogleUserInfo)
	mux.HandleFunc("/user", fake.handleGitHubUser)
	mux.HandleFunc("/user/emails", fake.handleGitHubEmails)
	fake.server = httptest.NewServer(mux)
	t.Cleanup(fake.server.Close)
	return fake
}

func (fake *fakeIdentityServer) addCode(code string, account fakeAccount) {
	fake.mutex.Lock()
	defer fake.mutex.Unlock()
	fake.accounts[code] = account
}

func (fake *fakeIdentityServer) exchanges() int {
	fake.mutex.Lock()
	defer fake.mutex.Unlock()
	return fake.exchange
}

func (fake *fakeIdentityServer) clientConfig() OAuthClientConfig {
	return OAuthClientConfig{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		AuthURL:      fake.server.URL + "/authorize",
		TokenURL:     fake.server.URL + "/token",
		APIBaseURL:   fake.server.URL,
	}
}

func (fake *fakeIdentityServer) handleToken(writer http.ResponseWriter, request *http.Request) {
	if err := request.ParseForm(); err != nil {
		http.Error(writer, "bad form", http.StatusBadRequest)
		return
	}
	fake.mutex.Lock()
	fake.exchange++
	account, ok := fake.accounts[request.PostForm.Get("code")]
	if ok {
		delete(fake.accounts, request.PostForm.Get("code"))
		fake.tokens["access-"+account.id] = account
	}
	fake.mutex.Unlock()
	writer.Header().Set("Content-Type", "application/json")
	if !ok || request.PostForm.Get("client_secret") != "client-secret" {
		writer.WriteHeader(http.StatusBadRequest)
		_, _ = writer.Write([]byte(`{"error":"invalid_grant"}`))
		return
	}
	_ = json.NewEncoder(writer).Encode(map[string]string{"access_token": "access-" + account.id, "token_type": "bearer"})
}

func (fake *fakeIdentityServer) account(request *http.Request) (fakeAccount, bool) {
	fake.mutex.Lock()
	defer fake.mutex.Unlock()
	account, ok := fake.tokens[strings.TrimPrefix(request.Header.Get("Authorization"), "Bearer ")]
	return account, ok
}

func (fake *fakeIdentityServer) handleGoogleUserInfo(writer http.ResponseWriter, request *http.Request) {
	account, ok := fake.account(request)
	if !ok {
		writer.WriteHeader(http.StatusUnauthorized)
		return
	}
	writer.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(writer).Encode(map[string]any{"id": account.id, "email": account.email, "verified_email": account.verified})
}

func (fake *fakeIdentityServer) handleGitHubUser(writer http.ResponseWriter, request *http.Request) {
	account, ok := fake.account(request)
	if !ok {
		writer.WriteHeader(http.StatusUnauthorized)
		return
	}
	writer.Header().Set("Content-Type", "application/json")
	_, _ = writer.Write([]byte(`{"id":` + account.id + `,"login":"octo","email":null}`))
}

func (fake *fakeIdentityServer) handleGitHubEmails(writer http.ResponseWriter, request *http.Request) {
	account, ok := fake.account(request)
	if !ok {
		writer.WriteHeader(http.StatusUnauthorized)
		return
	}
	writer.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(writer).Encode([]map[string]any{
		{"email": "secondary@example.com", "primary": false, "verified": true},
		{"email": account.email, "primary": true, "verified": account.verified},
	})
}

func TestParseProvider(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		input    string
		expected Provider
		ok       bool
	}{
		{input: "google", expected: ProviderGoogle, ok: true},
		{input: "GitHub", expected: ProviderGitHub, ok: true},
		{input: "twitter", ok: false},
		{input: "", ok: false},
	}
	for _, testCase := range testCases {
		provider, err := ParseProvider(testCase.input)
		if testCase.ok && (err != nil || provider != testCase.expected) {
			t.Fatalf("ParseProvider(%q) = %q, %v", testCase.input, provider, err)
		}
		if !testCase.ok && !errors.Is(err, ErrUnknownProvider) {
			t.Fatalf("expected ErrUnknownProvider for %q, got %v", testCase.input, err)
		}
	}
}

func TestAuthorizationURLCarriesStateAndCallback(t *testing.T) {
	t.Parallel()

	fake := newFakeIdentityServer(t)
	configuration := testServerConfig()
	configuration.GoogleOAuth = fake.clientConfig()
	configuration.GitHubOAuth = fake.clientConfig()
	providers := NewIdentityProviders(configuration, fake.server.Client())
	if len(providers) != 2 {
		t.Fatalf("expected both providers configured, got %d", len(providers))
	}

	expectations := map[Provider]string{
		ProviderGoogle: "openid email profile",
		ProviderGitHub: "user:email",
	}
	for provider, scope := range expectations {
		parsed, err := url.Parse(providers[provider].AuthorizationURL("state-123"))
		if err != nil {
			t.Fatalf("invalid authorization url: %v", err)
		}
		query := parsed.Query()
		if query.Get("state") != "state-123" || query.Get("client_id") != "client-id" || query.Get("scope") != scope {
			t.Fatalf("unexpected %s authorization query %v", provider, query)
		}
		if query.Get("redirect_uri") != "https://api.example/api/v1/auth/oauth/"+string(provider)+"/callback" {
			t.Fatalf("unexpected %s redirect_uri %q", provider, query.Get("redirect_uri"))
		}
	}
}

func TestNewIdentityProvidersSkipsUnconfigured(t *testing.T) {
	t.Parallel()

	configuration := testServerConfig()
	configuration.GitHubOAuth = OAuthClientConfig{ClientID: "only-id"}
	if providers := NewIdentityProviders(configuration, nil); len(providers) != 0 {
		t.Fatalf("expected no providers, got %d", len(providers))
	}
}

func TestProviderExchangeCode(t *testing.T) {
	t.Parallel()

	fake := newFakeIdentityServer(t)
	fake.addCode("google-code", fakeAccount{id: "g-100", email: "g@example.com", verified: true})
	fake.addCode("github-code", fakeAccount{id: "4242", email: "gh@example.com", verified: true})
	fake.addCode("github-unverified", fakeAccount{id: "4343", email: "u@example.com", verified: false})

	google := NewGoogleProvider(fake.clientConfig(), "https://api.example/cb", fake.server.Client())
	github := NewGitHubProvider(fake.clientConfig(), "https://api.example/cb", fake.server.Client())
	ctx := context.Background()

	identity, err := google.ExchangeCode(ctx, "google-code")
	if err != nil {
		t.Fatalf("google exchange failed: %v", err)
	}
	if identity != (ProviderIdentity{Email: "g@example.com", ProviderUserID: "g-100"}) {
		t.Fatalf("unexpected google identity %+v", identity)
	}

	identity, err = github.ExchangeCode(ctx, "github-code")
	if err != nil {
		t.Fatalf("github exchange failed: %v", err)
	}
	if identity != (ProviderIdentity{Email: "gh@example.com", ProviderUserID: "4242"}) {
		t.Fatalf("unexpected github identity %+v", identity)
	}

	if _, err := github.ExchangeCode(ctx, "github-unverified"); !errors.Is(err, errProviderMissingData) {
		t.Fatalf("expected unverified primary email to be rejected, got %v", err)
	}
	if _, err := google.ExchangeCode(ctx, "unknown-code"); err == nil {
		t.Fatalf("expected unknown code to fail")
	}
}

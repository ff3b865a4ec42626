package authkit

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap/zaptest"
)

type envelopeResponse struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

func newAuthRouter(t *testing.T, fixture *resolverFixture) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	router := gin.New()
	MountAuthRoutes(router.Group("/api/v1"), fixture.resolver, zaptest.NewLogger(t))
	return router
}

func performJSON(t *testing.T, router http.Handler, method string, path string, body string) (*httptest.ResponseRecorder, envelopeResponse) {
	t.Helper()
	request := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	request.Header.Set("Content-Type", "application/json")
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, request)
	var envelope envelopeResponse
	if recorder.Header().Get("Content-Type") != "" && strings.Contains(recorder.Header().Get("Content-Type"), "json") {
		if err := json.Unmarshal(recorder.Body.Bytes(), &envelope); err != nil {
			t.Fatalf("invalid envelope %q: %v", recorder.Body.String(), err)
		}
	}
	return recorder, envelope
}

func TestAuthRoutesRegisterAndLogin(t *testing.T) {
	t.Parallel()

	fixture := newResolverFixture(t)
	router := newAuthRouter(t, fixture)

	recorder, envelope := performJSON(t, router, http.MethodPost, "/api/v1/auth/register", `{"email":"route@example.com","password":"password-123"}`)
	if recorder.Code != http.StatusOK || !envelope.Success {
		t.Fatalf("register failed: %d %s", recorder.Code, recorder.Body.String())
	}
	var registered AuthResult
	if err := json.Unmarshal(envelope.Data, &registered); err != nil {
		t.Fatalf("decode register data: %v", err)
	}
	if registered.Token == "" || registered.User.Email != "route@example.com" {
		t.Fatalf("unexpected register data %+v", registered)
	}

	recorder, envelope = performJSON(t, router, http.MethodPost, "/api/v1/auth/register", `{"email":"route@example.com","password":"password-123"}`)
	if recorder.Code != http.StatusConflict || envelope.Success || envelope.Error != "Email already registered" {
		t.Fatalf("expected conflict, got %d %s", recorder.Code, recorder.Body.String())
	}

	recorder, envelope = performJSON(t, router, http.MethodPost, "/api/v1/auth/login", `{"email":"route@example.com","password":"password-123"}`)
	if recorder.Code != http.StatusOK || !envelope.Success {
		t.Fatalf("login failed: %d %s", recorder.Code, recorder.Body.String())
	}

	recorder, envelope = performJSON(t, router, http.MethodPost, "/api/v1/auth/login", `{"email":"route@example.com","password":"nope-nope"}`)
	if recorder.Code != http.StatusUnauthorized || envelope.Error != "Invalid credentials" {
		t.Fatalf("expected 401, got %d %s", recorder.Code, recorder.Body.String())
	}
}

func TestAuthRoutesRejectMalformedBodies(t *testing.T) {
	t.Parallel()

	fixture := newResolverFixture(t)
	router := newAuthRouter(t, fixture)

	for _, path := range []string{"/api/v1/auth/register", "/api/v1/auth/login", "/api/v1/auth/google"} {
		recorder, envelope := performJSON(t, router, http.MethodPost, path, `{"email":`)
		if recorder.Code != http.StatusBadRequest || envelope.Error != "Invalid request body" {
			t.Fatalf("%s: expected 400 invalid body, got %d %s", path, recorder.Code, recorder.Body.String())
		}
	}

	recorder, envelope := performJSON(t, router, http.MethodPost, "/api/v1/auth/register", `{"email":"bad","password":"password-123"}`)
	if recorder.Code != http.StatusBadRequest || envelope.Error != "Invalid email format" {
		t.Fatalf("expected invalid email, got %d %s", recorder.Code, recorder.Body.String())
	}
}

func TestAuthRoutesGoogleIDToken(t *testing.T) {
	t.Parallel()

	fixture := newResolverFixture(t)
	router := newAuthRouter(t, fixture)

	recorder, envelope := performJSON(t, router, http.MethodPost, "/api/v1/auth/google", `{"google_id_token":"valid-id-token"}`)
	if recorder.Code != http.StatusOK || !envelope.Success {
		t.Fatalf("google sign-in failed: %d %s", recorder.Code, recorder.Body.String())
	}
	recorder, _ = performJSON(t, router, http.MethodPost, "/api/v1/auth/google", `{"google_id_token":"forged"}`)
	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for forged token, got %d", recorder.Code)
	}
}

func TestAuthRoutesOAuthRoundTrip(t *testing.T) {
	t.Parallel()

	fixture := newResolverFixture(t)
	router := newAuthRouter(t, fixture)
	fixture.fake.addCode("route-code", fakeAccount{id: "31337", email: "hub@example.com", verified: true})

	startRecorder, _ := performJSON(t, router, http.MethodGet, "/api/v1/auth/oauth/github?redirect_uri="+url.QueryEscape(testRedirectURI), "")
	if startRecorder.Code != http.StatusFound {
		t.Fatalf("expected redirect to provider, got %d %s", startRecorder.Code, startRecorder.Body.String())
	}
	location, err := url.Parse(startRecorder.Header().Get("Location"))
	if err != nil || !strings.HasPrefix(location.String(), fixture.fake.server.URL+"/authorize") {
		t.Fatalf("unexpected provider location %q", startRecorder.Header().Get("Location"))
	}
	state := location.Query().Get("state")

	callbackPath := "/api/v1/auth/oauth/github/callback?code=route-code&state=" + url.QueryEscape(state)
	callbackRecorder, _ := performJSON(t, router, http.MethodGet, callbackPath, "")
	if callbackRecorder.Code != http.StatusFound {
		t.Fatalf("expected redirect back to app, got %d %s", callbackRecorder.Code, callbackRecorder.Body.String())
	}
	target, _ := url.Parse(callbackRecorder.Header().Get("Location"))
	if !strings.HasPrefix(target.String(), testRedirectURI+"?") || target.Query().Get("token") == "" {
		t.Fatalf("unexpected app redirect %q", target.String())
	}

	replayRecorder, envelope := performJSON(t, router, http.MethodGet, callbackPath, "")
	if replayRecorder.Code != http.StatusUnauthorized || envelope.Error != "Invalid or expired state" {
		t.Fatalf("expected replay rejected, got %d %s", replayRecorder.Code, replayRecorder.Body.String())
	}

	missingRecorder, envelope := performJSON(t, router, http.MethodGet, "/api/v1/auth/oauth/github/callback?state=abc", "")
	if missingRecorder.Code != http.StatusBadRequest || envelope.Error != "Missing code or state" {
		t.Fatalf("expected missing code 400, got %d %s", missingRecorder.Code, missingRecorder.Body.String())
	}

	unknownRecorder, _ := performJSON(t, router, http.MethodGet, "/api/v1/auth/oauth/myspace", "")
	if unknownRecorder.Code != http.StatusBadRequest {
		t.Fatalf("expected unknown provider 400, got %d", unknownRecorder.Code)
	}

	disallowedRecorder, _ := performJSON(t, router, http.MethodGet, "/api/v1/auth/oauth/google?redirect_uri="+url.QueryEscape("https://evil.example"), "")
	if disallowedRecorder.Code != http.StatusBadRequest {
		t.Fatalf("expected disallowed redirect 400, got %d", disallowedRecorder.Code)
	}
}

package authkit

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"
)

const (
	// DefaultOAuthStateTTL bounds how long a user may take on the provider's consent screen.
	DefaultOAuthStateTTL = 10 * time.Minute

	oauthStateBytes = 32
)

// OAuthSessionBroker owns the lifecycle of pending OAuth sessions.
type OAuthSessionBroker struct {
	store           OAuthSessionStore
	allowed         map[string]struct{}
	defaultRedirect string
	ttl             time.Duration
	clock           Clock
	logger          *zap.Logger
	entropy         io.Reader
}

// NewOAuthSessionBroker binds the broker to store using the redirect allow-list from configuration.
func NewOAuthSessionBroker(store OAuthSessionStore, configuration ServerConfig, clock Clock, logger *zap.Logger) *OAuthSessionBroker {
	allowed := make(map[string]struct{}, len(configuration.AllowedRedirects))
	for _, redirectURI := range configuration.AllowedRedirects {
		allowed[redirectURI] = struct{}{}
	}
	ttl := configuration.OAuthStateTTL
	if ttl <= 0 {
		ttl = DefaultOAuthStateTTL
	}
	if clock == nil {
		clock = NewSystemClock()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OAuthSessionBroker{
		store:           store,
		allowed:         allowed,
		defaultRedirect: configuration.DefaultRedirectURI,
		ttl:             ttl,
		clock:           clock,
		logger:          logger,
		entropy:         rand.Reader,
	}
}

// Start records a new session for provider and returns its state value.
// An empty redirectURI selects the configured default. Nothing is stored when the URI is not allowed.
func (broker *OAuthSessionBroker) Start(ctx context.Context, provider Provider, redirectURI string) (string, error) {
	if redirectURI == "" {
		redirectURI = broker.defaultRedirect
	}
	if _, ok := broker.allowed[redirectURI]; !ok {
		return "", validationError("auth.oauth.redirect_not_allowed", "Invalid redirect_uri")
	}

	now := broker.clock.Now()
	if removed, sweepErr := broker.store.DeleteExpiredSessions(ctx, now); sweepErr != nil {
		broker.logger.Warn("expired oauth session sweep failed", zap.String("code", "auth.oauth.sweep_failed"), zap.Error(sweepErr))
	} else if removed > 0 {
		broker.logger.Debug("expired oauth sessions removed", zap.Int64("count", removed))
	}

	state, stateErr := broker.newState()
	if stateErr != nil {
		return "", internalError("auth.oauth.state_generation", stateErr)
	}
	session := OAuthSession{
		State:       state,
		Provider:    provider,
		RedirectURI: redirectURI,
		ExpiresAt:   now.Add(broker.ttl),
	}
	if err := broker.store.InsertSession(ctx, session); err != nil {
		return "", internalError("auth.oauth.session_insert", err)
	}
	return state, nil
}

// Complete consumes the session for state and returns its redirect URI.
// The row is gone before Complete returns, whether or not it had expired.
func (broker *OAuthSessionBroker) Complete(ctx context.Context, provider Provider, state string) (string, error) {
	if state == "" {
		return "", unauthorizedError("auth.oauth.invalid_state", messageInvalidState, nil)
	}
	session, err := broker.store.FindSession(ctx, state, provider)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return "", unauthorizedError("auth.oauth.invalid_state", messageInvalidState, err)
		}
		return "", internalError("auth.oauth.session_lookup", err)
	}
	// Only the caller whose delete removed the row may proceed.
	if deleteErr := broker.store.DeleteSession(ctx, state); deleteErr != nil {
		if errors.Is(deleteErr, ErrSessionNotFound) {
			return "", unauthorizedError("auth.oauth.invalid_state", messageInvalidState, deleteErr)
		}
		return "", internalError("auth.oauth.session_delete", deleteErr)
	}
	if broker.clock.Now().After(session.ExpiresAt) {
		return "", unauthorizedError("auth.oauth.expired_state", messageInvalidState, nil)
	}
	return session.RedirectURI, nil
}

func (broker *OAuthSessionBroker) newState() (string, error) {
	buffer := make([]byte, oauthStateBytes)
	if _, err := io.ReadFull(broker.entropy, buffer); err != nil {
		return "", fmt.Errorf("oauth.state.random: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buffer), nil
}

package authkit

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	minimumPasswordLength = 8
	dummyPasswordInput    = "mumblefish-timing-equalizer"
)

var errMissingResolverDependency = errors.New("identity_resolver.missing_dependency")

// AuthResult is returned by every successful sign-in.
type AuthResult struct {
	Token string   `json:"token"`
	User  UserInfo `json:"user"`
}

// IdentityResolverDependencies wires the collaborators of IdentityResolver.
// Providers holds only the configured identity providers. GoogleValidator may be nil when Google is disabled.
type IdentityResolverDependencies struct {
	Users           UserStore
	Broker          *OAuthSessionBroker
	Codec           *TokenCodec
	Hasher          PasswordHasher
	Providers       map[Provider]IdentityProvider
	GoogleValidator GoogleTokenValidator
	GoogleClientID  string
	Clock           Clock
	Metrics         MetricsRecorder
	Logger          *zap.Logger
}

// IdentityResolver implements registration, password login, OAuth login, and token introspection.
type IdentityResolver struct {
	users           UserStore
	broker          *OAuthSessionBroker
	codec           *TokenCodec
	hasher          PasswordHasher
	providers       map[Provider]IdentityProvider
	googleValidator GoogleTokenValidator
	googleClientID  string
	clock           Clock
	metrics         MetricsRecorder
	logger          *zap.Logger
	newUserID       func() string

	dummyHashOnce sync.Once
	dummyHash     string
}

// NewIdentityResolver validates dependencies and builds a resolver.
func NewIdentityResolver(dependencies IdentityResolverDependencies) (*IdentityResolver, error) {
	if dependencies.Users == nil {
		return nil, fmt.Errorf("identity_resolver.users: %w", errMissingResolverDependency)
	}
	if dependencies.Broker == nil {
		return nil, fmt.Errorf("identity_resolver.broker: %w", errMissingResolverDependency)
	}
	if dependencies.Codec == nil {
		return nil, fmt.Errorf("identity_resolver.codec: %w", errMissingResolverDependency)
	}
	hasher := dependencies.Hasher
	if hasher == nil {
		hasher = NewArgon2PasswordHasher()
	}
	clock := dependencies.Clock
	if clock == nil {
		clock = NewSystemClock()
	}
	logger := dependencies.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	providers := dependencies.Providers
	if providers == nil {
		providers = map[Provider]IdentityProvider{}
	}
	return &IdentityResolver{
		users:           dependencies.Users,
		broker:          dependencies.Broker,
		codec:           dependencies.Codec,
		hasher:          hasher,
		providers:       providers,
		googleValidator: dependencies.GoogleValidator,
		googleClientID:  dependencies.GoogleClientID,
		clock:           clock,
		metrics:         metricsOrDiscard(dependencies.Metrics),
		logger:          logger,
		newUserID:       uuid.NewString,
	}, nil
}

// ConfiguredProviders lists the OAuth providers available for sign-in.
func (resolver *IdentityResolver) ConfiguredProviders() []Provider {
	configured := make([]Provider, 0, len(resolver.providers))
	for _, provider := range []Provider{ProviderGoogle, ProviderGitHub} {
		if _, ok := resolver.providers[provider]; ok {
			configured = append(configured, provider)
		}
	}
	return configured
}

// GoogleIDTokenEnabled reports whether LoginWithGoogleIDToken can succeed.
func (resolver *IdentityResolver) GoogleIDTokenEnabled() bool {
	return resolver.googleValidator != nil && resolver.googleClientID != ""
}

// Register creates a password account and signs it in.
func (resolver *IdentityResolver) Register(ctx context.Context, email string, password string) (AuthResult, error) {
	result, err := resolver.register(ctx, email, password)
	resolver.count(err, MetricRegisterSuccess, MetricRegisterFailure)
	return result, err
}

func (resolver *IdentityResolver) register(ctx context.Context, email string, password string) (AuthResult, error) {
	if !strings.Contains(email, "@") {
		return AuthResult{}, validationError("auth.register.invalid_email", "Invalid email format")
	}
	if utf8.RuneCountInString(password) < minimumPasswordLength {
		return AuthResult{}, validationError("auth.register.password_too_short", "Password must be at least 8 characters")
	}

	_, findErr := resolver.users.FindByEmail(ctx, email)
	switch {
	case findErr == nil:
		return AuthResult{}, newFlowError(ErrConflict, "auth.register.duplicate_email", "Email already registered", nil)
	case !errors.Is(findErr, ErrUserNotFound):
		return AuthResult{}, internalError("auth.register.lookup", findErr)
	}

	passwordHash, hashErr := resolver.hasher.Hash(password)
	if hashErr != nil {
		return AuthResult{}, internalError("auth.register.hash", hashErr)
	}
	user := User{
		ID:           resolver.newUserID(),
		Email:        email,
		PasswordHash: passwordHash,
		CreatedAt:    resolver.clock.Now(),
	}
	if insertErr := resolver.users.InsertUser(ctx, user); insertErr != nil {
		if errors.Is(insertErr, ErrDuplicateEmail) {
			return AuthResult{}, newFlowError(ErrConflict, "auth.register.duplicate_email", "Email already registered", insertErr)
		}
		return AuthResult{}, internalError("auth.register.insert", insertErr)
	}
	return resolver.issue(user)
}

// Login verifies a password and signs the user in.
// Unknown emails, OAuth-only accounts, and wrong passwords fail identically.
func (resolver *IdentityResolver) Login(ctx context.Context, email string, password string) (AuthResult, error) {
	result, err := resolver.login(ctx, email, password)
	resolver.count(err, MetricLoginSuccess, MetricLoginFailure)
	return result, err
}

func (resolver *IdentityResolver) login(ctx context.Context, email string, password string) (AuthResult, error) {
	user, findErr := resolver.users.FindByEmail(ctx, email)
	if findErr != nil {
		if !errors.Is(findErr, ErrUserNotFound) {
			return AuthResult{}, internalError("auth.login.lookup", findErr)
		}
		resolver.hasher.Verify(password, resolver.timingHash())
		return AuthResult{}, unauthorizedError("auth.login.unknown_email", messageInvalidCredentials, nil)
	}
	if user.PasswordHash == "" {
		resolver.hasher.Verify(password, resolver.timingHash())
		return AuthResult{}, unauthorizedError("auth.login.no_password", messageInvalidCredentials, nil)
	}
	if !resolver.hasher.Verify(password, user.PasswordHash) {
		return AuthResult{}, unauthorizedError("auth.login.password_mismatch", messageInvalidCredentials, nil)
	}
	return resolver.issue(user)
}

func (resolver *IdentityResolver) timingHash() string {
	resolver.dummyHashOnce.Do(func() {
		hash, err := resolver.hasher.Hash(dummyPasswordInput)
		if err != nil {
			resolver.logger.Warn("timing hash unavailable", zap.Error(err))
			return
		}
		resolver.dummyHash = hash
	})
	return resolver.dummyHash
}

func (resolver *IdentityResolver) provider(providerName string) (IdentityProvider, error) {
	provider, parseErr := ParseProvider(providerName)
	if parseErr != nil {
		return nil, newFlowError(ErrValidation, "auth.oauth.unknown_provider", "Unknown OAuth provider", parseErr)
	}
	identityProvider, ok := resolver.providers[provider]
	if !ok {
		return nil, newFlowError(ErrConfig, "auth.oauth.provider_not_configured", messageNotConfigured, nil)
	}
	return identityProvider, nil
}

// StartOAuth opens a session and returns the provider authorization URL to redirect to.
func (resolver *IdentityResolver) StartOAuth(ctx context.Context, providerName string, redirectURI string) (string, error) {
	identityProvider, err := resolver.provider(providerName)
	if err != nil {
		return "", err
	}
	state, startErr := resolver.broker.Start(ctx, identityProvider.Provider(), redirectURI)
	if startErr != nil {
		return "", startErr
	}
	resolver.metrics.Increment(MetricOAuthStart)
	return identityProvider.AuthorizationURL(state), nil
}

// CompleteOAuth consumes state, exchanges code, and returns the stored redirect URI carrying a token.
func (resolver *IdentityResolver) CompleteOAuth(ctx context.Context, providerName string, code string, state string) (string, error) {
	target, err := resolver.completeOAuth(ctx, providerName, code, state)
	resolver.count(err, MetricOAuthSuccess, MetricOAuthFailure)
	return target, err
}

func (resolver *IdentityResolver) completeOAuth(ctx context.Context, providerName string, code string, state string) (string, error) {
	identityProvider, err := resolver.provider(providerName)
	if err != nil {
		return "", err
	}
	if code == "" || state == "" {
		return "", validationError("auth.oauth.missing_code_or_state", "Missing code or state")
	}
	redirectURI, completeErr := resolver.broker.Complete(ctx, identityProvider.Provider(), state)
	if completeErr != nil {
		return "", completeErr
	}
	identity, exchangeErr := identityProvider.ExchangeCode(ctx, code)
	if exchangeErr != nil {
		return "", upstreamError("auth.oauth.exchange."+string(identityProvider.Provider()), exchangeErr)
	}
	user, linkErr := resolver.linkOrCreate(ctx, identityProvider.Provider(), identity)
	if linkErr != nil {
		return "", linkErr
	}
	result, issueErr := resolver.issue(user)
	if issueErr != nil {
		return "", issueErr
	}
	return appendToken(redirectURI, result.Token)
}

// LoginWithGoogleIDToken signs in a user presenting a Google Sign-In ID token.
func (resolver *IdentityResolver) LoginWithGoogleIDToken(ctx context.Context, idToken string) (AuthResult, error) {
	result, err := resolver.loginWithGoogleIDToken(ctx, idToken)
	resolver.count(err, MetricGoogleIDTokenSuccess, MetricGoogleIDTokenFailure)
	return result, err
}

func (resolver *IdentityResolver) loginWithGoogleIDToken(ctx context.Context, idToken string) (AuthResult, error) {
	if !resolver.GoogleIDTokenEnabled() {
		return AuthResult{}, newFlowError(ErrConfig, "auth.google_id_token.not_configured", messageNotConfigured, nil)
	}
	if strings.TrimSpace(idToken) == "" {
		return AuthResult{}, validationError("auth.google_id_token.missing", "Missing google_id_token")
	}
	payload, validateErr := resolver.googleValidator.Validate(ctx, idToken, resolver.googleClientID)
	if validateErr != nil {
		return AuthResult{}, unauthorizedError("auth.google_id_token.invalid", "Invalid Google token", validateErr)
	}
	identity, identityErr := googleIdentityFromPayload(payload)
	if identityErr != nil {
		return AuthResult{}, unauthorizedError("auth.google_id_token.unverified", "Invalid Google token", identityErr)
	}
	user, linkErr := resolver.linkOrCreate(ctx, ProviderGoogle, identity)
	if linkErr != nil {
		return AuthResult{}, linkErr
	}
	return resolver.issue(user)
}

// GetIdentity returns the user a token was issued to.
func (resolver *IdentityResolver) GetIdentity(ctx context.Context, token string) (UserInfo, error) {
	info, err := resolver.getIdentity(ctx, token)
	resolver.count(err, MetricIdentitySuccess, MetricIdentityFailure)
	return info, err
}

func (resolver *IdentityResolver) getIdentity(ctx context.Context, token string) (UserInfo, error) {
	userID, verifyErr := resolver.codec.Verify(token)
	if verifyErr != nil {
		return UserInfo{}, unauthorizedError("auth.identity.invalid_token", messageInvalidToken, verifyErr)
	}
	user, findErr := resolver.users.FindByID(ctx, userID)
	if findErr != nil {
		if errors.Is(findErr, ErrUserNotFound) {
			return UserInfo{}, newFlowError(ErrNotFound, "auth.identity.user_not_found", "User not found", findErr)
		}
		return UserInfo{}, internalError("auth.identity.lookup", findErr)
	}
	return user.Info(), nil
}

// linkOrCreate attaches the provider identity to the matching user or creates a provider-only user.
func (resolver *IdentityResolver) linkOrCreate(ctx context.Context, provider Provider, identity ProviderIdentity) (User, error) {
	user, findErr := resolver.users.FindByEmailOrProviderID(ctx, identity.Email, provider, identity.ProviderUserID)
	if findErr == nil {
		return resolver.attach(ctx, user, provider, identity)
	}
	if !errors.Is(findErr, ErrUserNotFound) {
		return User{}, internalError("auth.link.lookup", findErr)
	}

	user = User{
		ID:        resolver.newUserID(),
		Email:     identity.Email,
		CreatedAt: resolver.clock.Now(),
	}
	switch provider {
	case ProviderGoogle:
		user.GoogleID = identity.ProviderUserID
	case ProviderGitHub:
		user.GitHubID = identity.ProviderUserID
	}
	insertErr := resolver.users.InsertUser(ctx, user)
	if insertErr == nil {
		resolver.logger.Info("user created from provider identity", zap.String("provider", string(provider)), zap.String("user_id", user.ID))
		return user, nil
	}
	if !errors.Is(insertErr, ErrDuplicateEmail) && !errors.Is(insertErr, ErrDuplicateProviderID) {
		return User{}, internalError("auth.link.insert", insertErr)
	}
	// A concurrent sign-in created the row between lookup and insert.
	existing, retryErr := resolver.users.FindByEmailOrProviderID(ctx, identity.Email, provider, identity.ProviderUserID)
	if retryErr != nil {
		return User{}, internalError("auth.link.retry_lookup", retryErr)
	}
	return resolver.attach(ctx, existing, provider, identity)
}

func (resolver *IdentityResolver) attach(ctx context.Context, user User, provider Provider, identity ProviderIdentity) (User, error) {
	if user.ProviderID(provider) == identity.ProviderUserID {
		return user, nil
	}
	if err := resolver.users.AttachProviderID(ctx, user.ID, provider, identity.ProviderUserID); err != nil {
		return User{}, internalError("auth.link.attach", err)
	}
	switch provider {
	case ProviderGoogle:
		user.GoogleID = identity.ProviderUserID
	case ProviderGitHub:
		user.GitHubID = identity.ProviderUserID
	}
	return user, nil
}

func (resolver *IdentityResolver) issue(user User) (AuthResult, error) {
	token, _, err := resolver.codec.Issue(user.ID)
	if err != nil {
		return AuthResult{}, internalError("auth.token.issue", err)
	}
	return AuthResult{Token: token, User: user.Info()}, nil
}

func (resolver *IdentityResolver) count(err error, success string, failure string) {
	if err != nil {
		resolver.metrics.Increment(failure)
		return
	}
	resolver.metrics.Increment(success)
}

func appendToken(redirectURI string, token string) (string, error) {
	parsed, err := url.Parse(redirectURI)
	if err != nil {
		return "", internalError("auth.oauth.redirect_parse", err)
	}
	query := parsed.Query()
	query.Set("token", token)
	parsed.RawQuery = query.Encode()
	return parsed.String(), nil
}

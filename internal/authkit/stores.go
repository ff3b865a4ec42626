package authkit

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrUserNotFound indicates no user matched the lookup.
	ErrUserNotFound = errors.New("user_store.not_found")
	// ErrDuplicateEmail indicates the email is already registered.
	ErrDuplicateEmail = errors.New("user_store.duplicate_email")
	// ErrDuplicateProviderID indicates the provider identity is linked to another user.
	ErrDuplicateProviderID = errors.New("user_store.duplicate_provider_id")
	// ErrSessionNotFound indicates no OAuth session matched the state and provider.
	ErrSessionNotFound = errors.New("oauth_session_store.not_found")
)

// User is a local identity with at least one authentication method.
type User struct {
	ID           string
	Email        string
	PasswordHash string
	GoogleID     string
	GitHubID     string
	CreatedAt    time.Time
}

// ProviderID returns the federated identifier the user holds for provider.
func (user User) ProviderID(provider Provider) string {
	switch provider {
	case ProviderGoogle:
		return user.GoogleID
	case ProviderGitHub:
		return user.GitHubID
	default:
		return ""
	}
}

// UserInfo is the public projection of a user.
type UserInfo struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// Info projects the user onto UserInfo.
func (user User) Info() UserInfo {
	return UserInfo{ID: user.ID, Email: user.Email}
}

// OAuthSession binds a one-time state value to a login attempt.
type OAuthSession struct {
	State       string
	Provider    Provider
	RedirectURI string
	ExpiresAt   time.Time
}

// UserStore persists and retrieves application users.
type UserStore interface {
	FindByEmail(ctx context.Context, email string) (User, error)
	FindByEmailOrProviderID(ctx context.Context, email string, provider Provider, providerUserID string) (User, error)
	InsertUser(ctx context.Context, user User) error
	AttachProviderID(ctx context.Context, userID string, provider Provider, providerUserID string) error
	FindByID(ctx context.Context, userID string) (User, error)
}

// OAuthSessionStore persists pending OAuth sessions.
type OAuthSessionStore interface {
	InsertSession(ctx context.Context, session OAuthSession) error
	FindSession(ctx context.Context, state string, provider Provider) (OAuthSession, error)
	// DeleteSession removes the row for state and reports ErrSessionNotFound when no row was removed.
	DeleteSession(ctx context.Context, state string) error
	DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error)
}

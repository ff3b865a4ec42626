package authkit

import (
	"context"
	"fmt"
	"sync"
)

// MemoryUserStore is an in-memory UserStore intended for tests and dev.
type MemoryUserStore struct {
	mutex   sync.Mutex
	byID    map[string]User
	byEmail map[string]string
}

// NewMemoryUserStore creates an empty store.
func NewMemoryUserStore() *MemoryUserStore {
	return &MemoryUserStore{
		byID:    make(map[string]User),
		byEmail: make(map[string]string),
	}
}

// FindByEmail returns the user registered under email.
func (store *MemoryUserStore) FindByEmail(ctx context.Context, email string) (User, error) {
	store.mutex.Lock()
	defer store.mutex.Unlock()

	userID, ok := store.byEmail[email]
	if !ok {
		return User{}, fmt.Errorf("user_store.find_by_email.memory: %w", ErrUserNotFound)
	}
	return store.byID[userID], nil
}

// FindByEmailOrProviderID prefers a provider identity match over an email match.
func (store *MemoryUserStore) FindByEmailOrProviderID(ctx context.Context, email string, provider Provider, providerUserID string) (User, error) {
	store.mutex.Lock()
	defer store.mutex.Unlock()

	if providerUserID != "" {
		for _, user := range store.byID {
			if user.ProviderID(provider) == providerUserID {
				return user, nil
			}
		}
	}
	if userID, ok := store.byEmail[email]; ok {
		return store.byID[userID], nil
	}
	return User{}, fmt.Errorf("user_store.find_by_email_or_provider.memory: %w", ErrUserNotFound)
}

// InsertUser adds user, enforcing email and provider uniqueness.
func (store *MemoryUserStore) InsertUser(ctx context.Context, user User) error {
	store.mutex.Lock()
	defer store.mutex.Unlock()

	if _, exists := store.byEmail[user.Email]; exists {
		return fmt.Errorf("user_store.insert.memory: %w", ErrDuplicateEmail)
	}
	for _, provider := range []Provider{ProviderGoogle, ProviderGitHub} {
		if providerUserID := user.ProviderID(provider); providerUserID != "" && store.providerOwnerLocked(provider, providerUserID) != "" {
			return fmt.Errorf("user_store.insert.memory: %w", ErrDuplicateProviderID)
		}
	}
	store.byID[user.ID] = user
	store.byEmail[user.Email] = user.ID
	return nil
}

// AttachProviderID links a provider identity to an existing user. Re-linking the same value is a no-op.
func (store *MemoryUserStore) AttachProviderID(ctx context.Context, userID string, provider Provider, providerUserID string) error {
	store.mutex.Lock()
	defer store.mutex.Unlock()

	user, ok := store.byID[userID]
	if !ok {
		return fmt.Errorf("user_store.attach_provider.memory: %w", ErrUserNotFound)
	}
	if owner := store.providerOwnerLocked(provider, providerUserID); owner != "" && owner != userID {
		return fmt.Errorf("user_store.attach_provider.memory: %w", ErrDuplicateProviderID)
	}
	switch provider {
	case ProviderGoogle:
		user.GoogleID = providerUserID
	case ProviderGitHub:
		user.GitHubID = providerUserID
	default:
		return fmt.Errorf("user_store.attach_provider.memory: %w", ErrUnknownProvider)
	}
	store.byID[userID] = user
	return nil
}

// FindByID returns the user with userID.
func (store *MemoryUserStore) FindByID(ctx context.Context, userID string) (User, error) {
	store.mutex.Lock()
	defer store.mutex.Unlock()

	user, ok := store.byID[userID]
	if !ok {
		return User{}, fmt.Errorf("user_store.find_by_id.memory: %w", ErrUserNotFound)
	}
	return user, nil
}

func (store *MemoryUserStore) providerOwnerLocked(provider Provider, providerUserID string) string {
	if providerUserID == "" {
		return ""
	}
	for userID, user := range store.byID {
		if user.ProviderID(provider) == providerUserID {
			return userID
		}
	}
	return ""
}

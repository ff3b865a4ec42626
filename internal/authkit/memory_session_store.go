package authkit

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MemoryOAuthSessionStore keeps pending OAuth sessions in process memory.
type MemoryOAuthSessionStore struct {
	mutex    sync.Mutex
	sessions map[string]OAuthSession
}

// NewMemoryOAuthSessionStore creates an empty store.
func NewMemoryOAuthSessionStore() *MemoryOAuthSessionStore {
	return &MemoryOAuthSessionStore{sessions: make(map[string]OAuthSession)}
}

func (store *MemoryOAuthSessionStore) InsertSession(ctx context.Context, session OAuthSession) error {
	store.mutex.Lock()
	defer store.mutex.Unlock()

	if _, exists := store.sessions[session.State]; exists {
		return fmt.Errorf("oauth_session_store.insert.memory: duplicate state")
	}
	store.sessions[session.State] = session
	return nil
}

func (store *MemoryOAuthSessionStore) FindSession(ctx context.Context, state string, provider Provider) (OAuthSession, error) {
	store.mutex.Lock()
	defer store.mutex.Unlock()

	session, ok := store.sessions[state]
	if !ok || session.Provider != provider {
		return OAuthSession{}, fmt.Errorf("oauth_session_store.find.memory: %w", ErrSessionNotFound)
	}
	return session, nil
}

func (store *MemoryOAuthSessionStore) DeleteSession(ctx context.Context, state string) error {
	store.mutex.Lock()
	defer store.mutex.Unlock()

	if _, ok := store.sessions[state]; !ok {
		return fmt.Errorf("oauth_session_store.delete.memory: %w", ErrSessionNotFound)
	}
	delete(store.sessions, state)
	return nil
}

func (store *MemoryOAuthSessionStore) DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error) {
	store.mutex.Lock()
	defer store.mutex.Unlock()

	var removed int64
	for state, session := range store.sessions {
		if session.ExpiresAt.Before(now) {
			delete(store.sessions, state)
			removed++
		}
	}
	return removed, nil
}

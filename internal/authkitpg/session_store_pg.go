package authkitpg

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tyemirov/mumblefish/internal/authkit"
)

// PostgresOAuthSessionStore persists pending OAuth sessions in PostgreSQL.
type PostgresOAuthSessionStore struct {
	pool *pgxpool.Pool
}

// NewPostgresOAuthSessionStore constructs a Postgres store. Call EnsureSchema first.
func NewPostgresOAuthSessionStore(pool *pgxpool.Pool) *PostgresOAuthSessionStore {
	return &PostgresOAuthSessionStore{pool: pool}
}

func (store *PostgresOAuthSessionStore) InsertSession(ctx context.Context, session authkit.OAuthSession) error {
	_, err := store.pool.Exec(ctx, `
INSERT INTO oauth_sessions (state, provider, redirect_uri, expires_unix)
VALUES ($1, $2, $3, $4)
`, session.State, string(session.Provider), session.RedirectURI, session.ExpiresAt.Unix())
	if err != nil {
		return fmt.Errorf("oauth_session_store.insert.postgres: %w", err)
	}
	return nil
}

func (store *PostgresOAuthSessionStore) FindSession(ctx context.Context, state string, provider authkit.Provider) (authkit.OAuthSession, error) {
	var redirectURI string
	var expiresUnix int64
	row := store.pool.QueryRow(ctx, `
SELECT redirect_uri, expires_unix
FROM oauth_sessions
WHERE state = $1 AND provider = $2
`, state, string(provider))
	if scanErr := row.Scan(&redirectURI, &expiresUnix); scanErr != nil {
		if errors.Is(scanErr, pgx.ErrNoRows) {
			return authkit.OAuthSession{}, fmt.Errorf("oauth_session_store.find.postgres: %w", authkit.ErrSessionNotFound)
		}
		return authkit.OAuthSession{}, fmt.Errorf("oauth_session_store.find.postgres: %w", scanErr)
	}
	return authkit.OAuthSession{
		State:       state,
		Provider:    provider,
		RedirectURI: redirectURI,
		ExpiresAt:   time.Unix(expiresUnix, 0).UTC(),
	}, nil
}

func (store *PostgresOAuthSessionStore) DeleteSession(ctx context.Context, state string) error {
	tag, err := store.pool.Exec(ctx, `DELETE FROM oauth_sessions WHERE state = $1`, state)
	if err != nil {
		return fmt.Errorf("oauth_session_store.delete.postgres: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("oauth_session_store.delete.postgres: %w", authkit.ErrSessionNotFound)
	}
	return nil
}

func (store *PostgresOAuthSessionStore) DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error) {
	tag, err := store.pool.Exec(ctx, `DELETE FROM oauth_sessions WHERE expires_unix < $1`, now.Unix())
	if err != nil {
		return 0, fmt.Errorf("oauth_session_store.sweep.postgres: %w", err)
	}
	return tag.RowsAffected(), nil
}

package main

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tyemirov/mumblefish/internal/authkit"
	"github.com/tyemirov/mumblefish/internal/authkitpg"
	"go.uber.org/zap"
)

var buildPostgresPool = func(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	return authkitpg.BuildPool(ctx, databaseURL)
}

type storeSet struct {
	users    authkit.UserStore
	sessions authkit.OAuthSessionStore
	closers  []func()
}

func (stores *storeSet) Close() {
	for index := len(stores.closers) - 1; index >= 0; index-- {
		stores.closers[index]()
	}
}

// openStores selects in-memory stores for an empty URL. Postgres keeps users in GORM and OAuth sessions in a pgx pool.
func openStores(ctx context.Context, databaseURL string, logger *zap.Logger) (*storeSet, error) {
	if databaseURL == "" {
		logger.Info("using in-memory stores")
		return &storeSet{
			users:    authkit.NewMemoryUserStore(),
			sessions: authkit.NewMemoryOAuthSessionStore(),
		}, nil
	}

	database, openErr := authkit.OpenDatabase(ctx, databaseURL)
	if openErr != nil {
		return nil, openErr
	}
	stores := &storeSet{closers: []func(){func() { _ = database.Close() }}}

	userStore, userErr := authkit.NewDatabaseUserStore(ctx, database)
	if userErr != nil {
		stores.Close()
		return nil, userErr
	}
	stores.users = userStore

	if authkit.IsPostgresURL(databaseURL) {
		pool, poolErr := buildPostgresPool(ctx, databaseURL)
		if poolErr != nil {
			stores.Close()
			return nil, fmt.Errorf("oauth_session_store.open.postgres: %w", poolErr)
		}
		stores.closers = append(stores.closers, pool.Close)
		if schemaErr := authkitpg.EnsureSchema(ctx, pool); schemaErr != nil {
			stores.Close()
			return nil, schemaErr
		}
		stores.sessions = authkitpg.NewPostgresOAuthSessionStore(pool)
	} else {
		sessionStore, sessionErr := authkit.NewDatabaseOAuthSessionStore(ctx, database)
		if sessionErr != nil {
			stores.Close()
			return nil, sessionErr
		}
		stores.sessions = sessionStore
	}

	logger.Info("using persistent stores", zap.String("driver", userStore.Driver()))
	return stores, nil
}

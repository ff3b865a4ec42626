package authkit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// DatabaseOAuthSessionStore persists pending OAuth sessions with GORM.
type DatabaseOAuthSessionStore struct {
	db          *gorm.DB
	driverLabel string
}

type oauthSessionRecord struct {
	State       string `gorm:"column:state;primaryKey"`
	Provider    string `gorm:"column:provider;not null"`
	RedirectURI string `gorm:"column:redirect_uri;not null"`
	ExpiresUnix int64  `gorm:"column:expires_unix;index;not null"`
}

func (oauthSessionRecord) TableName() string {
	return "oauth_sessions"
}

// NewDatabaseOAuthSessionStore migrates the oauth_sessions table and returns a store bound to it.
func NewDatabaseOAuthSessionStore(ctx context.Context, database *Database) (*DatabaseOAuthSessionStore, error) {
	if migrateErr := database.DB.WithContext(ctx).AutoMigrate(&oauthSessionRecord{}); migrateErr != nil {
		return nil, fmt.Errorf("oauth_session_store.migrate.%s: %w", database.DriverLabel, migrateErr)
	}
	return &DatabaseOAuthSessionStore{db: database.DB, driverLabel: database.DriverLabel}, nil
}

func (store *DatabaseOAuthSessionStore) InsertSession(ctx context.Context, session OAuthSession) error {
	record := oauthSessionRecord{
		State:       session.State,
		Provider:    string(session.Provider),
		RedirectURI: session.RedirectURI,
		ExpiresUnix: session.ExpiresAt.Unix(),
	}
	if err := store.db.WithContext(ctx).Create(&record).Error; err != nil {
		return fmt.Errorf("oauth_session_store.insert.%s: %w", store.driverLabel, err)
	}
	return nil
}

func (store *DatabaseOAuthSessionStore) FindSession(ctx context.Context, state string, provider Provider) (OAuthSession, error) {
	var record oauthSessionRecord
	err := store.db.WithContext(ctx).Where("state = ? AND provider = ?", state, string(provider)).Take(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return OAuthSession{}, fmt.Errorf("oauth_session_store.find.%s: %w", store.driverLabel, ErrSessionNotFound)
		}
		return OAuthSession{}, fmt.Errorf("oauth_session_store.find.%s: %w", store.driverLabel, err)
	}
	return OAuthSession{
		State:       record.State,
		Provider:    Provider(record.Provider),
		RedirectURI: record.RedirectURI,
		ExpiresAt:   time.Unix(record.ExpiresUnix, 0).UTC(),
	}, nil
}

func (store *DatabaseOAuthSessionStore) DeleteSession(ctx context.Context, state string) error {
	result := store.db.WithContext(ctx).Where("state = ?", state).Delete(&oauthSessionRecord{})
	if result.Error != nil {
		return fmt.Errorf("oauth_session_store.delete.%s: %w", store.driverLabel, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("oauth_session_store.delete.%s: %w", store.driverLabel, ErrSessionNotFound)
	}
	return nil
}

func (store *DatabaseOAuthSessionStore) DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error) {
	result := store.db.WithContext(ctx).Where("expires_unix < ?", now.Unix()).Delete(&oauthSessionRecord{})
	if result.Error != nil {
		return 0, fmt.Errorf("oauth_session_store.sweep.%s: %w", store.driverLabel, result.Error)
	}
	return result.RowsAffected, nil
}

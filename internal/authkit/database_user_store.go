package authkit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// DatabaseUserStore persists users with GORM.
type DatabaseUserStore struct {
	db          *gorm.DB
	driverLabel string
}

type userRecord struct {
	ID            string  `gorm:"column:id;primaryKey"`
	Email         string  `gorm:"column:email;uniqueIndex;not null"`
	PasswordHash  string  `gorm:"column:password_hash;not null;default:''"`
	GoogleID      *string `gorm:"column:google_id;uniqueIndex"`
	GitHubID      *string `gorm:"column:github_id;uniqueIndex"`
	CreatedAtUnix int64   `gorm:"column:created_at_unix;not null"`
}

func (userRecord) TableName() string {
	return "users"
}

func providerColumn(provider Provider) (string, error) {
	switch provider {
	case ProviderGoogle:
		return "google_id", nil
	case ProviderGitHub:
		return "github_id", nil
	default:
		return "", ErrUnknownProvider
	}
}

func optionalString(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}

func derefString(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}

func newUserRecord(user User) userRecord {
	return userRecord{
		ID:            user.ID,
		Email:         user.Email,
		PasswordHash:  user.PasswordHash,
		GoogleID:      optionalString(user.GoogleID),
		GitHubID:      optionalString(user.GitHubID),
		CreatedAtUnix: user.CreatedAt.Unix(),
	}
}

func (record userRecord) user() User {
	return User{
		ID:           record.ID,
		Email:        record.Email,
		PasswordHash: record.PasswordHash,
		GoogleID:     derefString(record.GoogleID),
		GitHubID:     derefString(record.GitHubID),
		CreatedAt:    time.Unix(record.CreatedAtUnix, 0).UTC(),
	}
}

// NewDatabaseUserStore migrates the users table on database and returns a store bound to it.
func NewDatabaseUserStore(ctx context.Context, database *Database) (*DatabaseUserStore, error) {
	if migrateErr := database.DB.WithContext(ctx).AutoMigrate(&userRecord{}); migrateErr != nil {
		return nil, fmt.Errorf("user_store.migrate.%s: %w", database.DriverLabel, migrateErr)
	}
	return &DatabaseUserStore{db: database.DB, driverLabel: database.DriverLabel}, nil
}

// Driver exposes the selected database driver label.
func (store *DatabaseUserStore) Driver() string {
	return store.driverLabel
}

func (store *DatabaseUserStore) take(ctx context.Context, operation string, query string, arguments ...any) (User, error) {
	var record userRecord
	err := store.db.WithContext(ctx).Where(query, arguments...).Take(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return User{}, fmt.Errorf("user_store.%s.%s: %w", operation, store.driverLabel, ErrUserNotFound)
		}
		return User{}, fmt.Errorf("user_store.%s.%s: %w", operation, store.driverLabel, err)
	}
	return record.user(), nil
}

func (store *DatabaseUserStore) FindByEmail(ctx context.Context, email string) (User, error) {
	return store.take(ctx, "find_by_email", "email = ?", email)
}

func (store *DatabaseUserStore) FindByID(ctx context.Context, userID string) (User, error) {
	return store.take(ctx, "find_by_id", "id = ?", userID)
}

// FindByEmailOrProviderID prefers a provider identity match over an email match.
func (store *DatabaseUserStore) FindByEmailOrProviderID(ctx context.Context, email string, provider Provider, providerUserID string) (User, error) {
	if providerUserID != "" {
		column, columnErr := providerColumn(provider)
		if columnErr != nil {
			return User{}, fmt.Errorf("user_store.find_by_email_or_provider.%s: %w", store.driverLabel, columnErr)
		}
		user, err := store.take(ctx, "find_by_email_or_provider", column+" = ?", providerUserID)
		if err == nil || !errors.Is(err, ErrUserNotFound) {
			return user, err
		}
	}
	return store.take(ctx, "find_by_email_or_provider", "email = ?", email)
}

func (store *DatabaseUserStore) InsertUser(ctx context.Context, user User) error {
	record := newUserRecord(user)
	if err := store.db.WithContext(ctx).Create(&record).Error; err != nil {
		if isUniqueViolation(err) {
			if _, findErr := store.FindByEmail(ctx, user.Email); findErr == nil {
				return fmt.Errorf("user_store.insert.%s: %w", store.driverLabel, ErrDuplicateEmail)
			}
			return fmt.Errorf("user_store.insert.%s: %w", store.driverLabel, ErrDuplicateProviderID)
		}
		return fmt.Errorf("user_store.insert.%s: %w", store.driverLabel, err)
	}
	return nil
}

// AttachProviderID sets the provider column for userID. Setting the value the row already holds succeeds.
func (store *DatabaseUserStore) AttachProviderID(ctx context.Context, userID string, provider Provider, providerUserID string) error {
	column, columnErr := providerColumn(provider)
	if columnErr != nil {
		return fmt.Errorf("user_store.attach_provider.%s: %w", store.driverLabel, columnErr)
	}
	result := store.db.WithContext(ctx).Model(&userRecord{}).Where("id = ?", userID).Update(column, providerUserID)
	if result.Error != nil {
		if isUniqueViolation(result.Error) {
			return fmt.Errorf("user_store.attach_provider.%s: %w", store.driverLabel, ErrDuplicateProviderID)
		}
		return fmt.Errorf("user_store.attach_provider.%s: %w", store.driverLabel, result.Error)
	}
	if result.RowsAffected == 0 {
		if _, err := store.FindByID(ctx, userID); err != nil {
			return fmt.Errorf("user_store.attach_provider.%s: %w", store.driverLabel, err)
		}
	}
	return nil
}

// Package sessionvalidator lets services that share the signing secret verify mumblefish bearer tokens.
package sessionvalidator

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/tyemirov/mumblefish/internal/authkit"
)

// Clock provides the current time.
type Clock interface {
	Now() time.Time
}

// Config configures the Validator.
type Config struct {
	SigningKey []byte
	Clock      Clock
}

// DefaultContextKey is used by GinMiddleware when no explicit key is provided.
const DefaultContextKey = "auth_user_id"

// Sentinel errors exposed by the validator.
var (
	ErrMissingSigningKey = errors.New("session.validator.missing_signing_key")
	ErrMissingToken      = errors.New("session.validator.missing_token")
	ErrInvalidToken      = errors.New("session.validator.invalid_token")
)

// Validator verifies bearer tokens issued by the mumblefish auth server.
type Validator struct {
	codec *authkit.TokenCodec
}

// New constructs a Validator after validating the supplied configuration.
func New(configuration Config) (*Validator, error) {
	if len(configuration.SigningKey) == 0 {
		return nil, fmt.Errorf("session.validator.new: %w", ErrMissingSigningKey)
	}
	var clock authkit.Clock
	if configuration.Clock != nil {
		clock = configuration.Clock
	}
	codec, err := authkit.NewTokenCodec(configuration.SigningKey, authkit.DefaultTokenTTL, clock)
	if err != nil {
		return nil, fmt.Errorf("session.validator.new: %w", err)
	}
	return &Validator{codec: codec}, nil
}

// ValidateToken returns the user id the token was issued to.
func (validator *Validator) ValidateToken(token string) (string, error) {
	if strings.TrimSpace(token) == "" {
		return "", fmt.Errorf("session.validator.validate_token: %w", ErrMissingToken)
	}
	userID, err := validator.codec.Verify(token)
	if err != nil {
		return "", fmt.Errorf("session.validator.validate_token: %w", ErrInvalidToken)
	}
	return userID, nil
}

// ValidateRequest reads the Authorization bearer header and validates it.
func (validator *Validator) ValidateRequest(request *http.Request) (string, error) {
	if request == nil {
		return "", fmt.Errorf("session.validator.validate_request: %w", ErrMissingToken)
	}
	token, ok := authkit.BearerToken(request)
	if !ok {
		return "", fmt.Errorf("session.validator.validate_request: %w", ErrMissingToken)
	}
	return validator.ValidateToken(token)
}

// GinMiddleware rejects requests without a valid bearer token and stores the user id under contextKey.
func (validator *Validator) GinMiddleware(contextKey string) gin.HandlerFunc {
	if strings.TrimSpace(contextKey) == "" {
		contextKey = DefaultContextKey
	}
	return func(contextGin *gin.Context) {
		userID, err := validator.ValidateRequest(contextGin.Request)
		if err != nil {
			contextGin.AbortWithStatusJSON(http.StatusUnauthorized, authkit.Envelope{Success: false, Error: "Invalid or expired token"})
			return
		}
		contextGin.Set(contextKey, userID)
		contextGin.Next()
	}
}

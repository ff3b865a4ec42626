package authkit

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultTokenTTL is the lifetime of issued bearer tokens.
const DefaultTokenTTL = 90 * 24 * time.Hour

var (
	// ErrTokenInvalid covers every verification failure: format, signature, encoding, and expiry.
	ErrTokenInvalid = errors.New("token.invalid")
	// ErrMissingSigningKey indicates the codec was constructed without a secret.
	ErrMissingSigningKey = errors.New("token.missing_signing_key")

	errEmptySubject = errors.New("subject must be non-empty")
)

// TokenCodec issues and verifies compact two-part bearer tokens: base64url(claims).base64url(hmac).
type TokenCodec struct {
	signingKey []byte
	ttl        time.Duration
	clock      Clock
}

// NewTokenCodec validates the key and returns a codec. A non-positive ttl selects DefaultTokenTTL.
func NewTokenCodec(signingKey []byte, ttl time.Duration, clock Clock) (*TokenCodec, error) {
	if len(signingKey) == 0 {
		return nil, newFlowError(ErrConfig, "config.missing_token_signing_key", messageNotConfigured, ErrMissingSigningKey)
	}
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	if clock == nil {
		clock = NewSystemClock()
	}
	return &TokenCodec{signingKey: signingKey, ttl: ttl, clock: clock}, nil
}

// Issue signs a token for userID and returns it with its expiry.
func (codec *TokenCodec) Issue(userID string) (string, time.Time, error) {
	if userID == "" {
		return "", time.Time{}, fmt.Errorf("token.issue: %w", errEmptySubject)
	}
	expiresAt := codec.clock.Now().Add(codec.ttl).Truncate(time.Second)
	claims := jwt.RegisteredClaims{
		Subject:   userID,
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	}
	payloadJSON, marshalErr := json.Marshal(claims)
	if marshalErr != nil {
		return "", time.Time{}, fmt.Errorf("token.issue.encode: %w", marshalErr)
	}
	payload := base64.RawURLEncoding.EncodeToString(payloadJSON)
	signature, signErr := jwt.SigningMethodHS256.Sign(payload, codec.signingKey)
	if signErr != nil {
		return "", time.Time{}, fmt.Errorf("token.issue.sign: %w", signErr)
	}
	return payload + "." + base64.RawURLEncoding.EncodeToString(signature), expiresAt, nil
}

// Verify returns the subject of a valid, unexpired token.
func (codec *TokenCodec) Verify(token string) (string, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 2 {
		return "", fmt.Errorf("token.verify.format: %w", ErrTokenInvalid)
	}
	signature, decodeSignatureErr := base64.RawURLEncoding.DecodeString(parts[1])
	if decodeSignatureErr != nil {
		return "", fmt.Errorf("token.verify.signature_encoding: %w", ErrTokenInvalid)
	}
	if verifyErr := jwt.SigningMethodHS256.Verify(parts[0], signature, codec.signingKey); verifyErr != nil {
		return "", fmt.Errorf("token.verify.signature: %w", ErrTokenInvalid)
	}
	payloadJSON, decodePayloadErr := base64.RawURLEncoding.DecodeString(parts[0])
	if decodePayloadErr != nil {
		return "", fmt.Errorf("token.verify.payload_encoding: %w", ErrTokenInvalid)
	}
	var claims jwt.RegisteredClaims
	if unmarshalErr := json.Unmarshal(payloadJSON, &claims); unmarshalErr != nil {
		return "", fmt.Errorf("token.verify.claims: %w", ErrTokenInvalid)
	}
	if claims.Subject == "" || claims.ExpiresAt == nil {
		return "", fmt.Errorf("token.verify.claims: %w", ErrTokenInvalid)
	}
	if codec.clock.Now().After(claims.ExpiresAt.Time) {
		return "", fmt.Errorf("token.verify.expired: %w", ErrTokenInvalid)
	}
	return claims.Subject, nil
}

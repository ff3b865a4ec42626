package authkit

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/api/idtoken"
)

var errGoogleIdentityUnverified = errors.New("google_id_token.unverified_identity")

// GoogleTokenValidator checks a Google ID token signature and audience.
type GoogleTokenValidator interface {
	Validate(ctx context.Context, idToken string, audience string) (*idtoken.Payload, error)
}

// NewGoogleTokenValidator returns the validator backed by Google's published signing keys.
func NewGoogleTokenValidator(ctx context.Context) (GoogleTokenValidator, error) {
	validator, err := idtoken.NewValidator(ctx)
	if err != nil {
		return nil, fmt.Errorf("google_id_token.validator: %w", err)
	}
	return validator, nil
}

// googleIdentityFromPayload extracts a verified identity from validated ID-token claims.
func googleIdentityFromPayload(payload *idtoken.Payload) (ProviderIdentity, error) {
	if payload == nil {
		return ProviderIdentity{}, fmt.Errorf("google_id_token.payload: %w", errGoogleIdentityUnverified)
	}
	issuer := payload.Issuer
	if issuer == "" {
		issuer, _ = payload.Claims["iss"].(string)
	}
	if issuer != "https://accounts.google.com" && issuer != "accounts.google.com" {
		return ProviderIdentity{}, fmt.Errorf("google_id_token.issuer: %w", errGoogleIdentityUnverified)
	}
	subject := payload.Subject
	if subject == "" {
		subject, _ = payload.Claims["sub"].(string)
	}
	email, _ := payload.Claims["email"].(string)
	emailVerified, _ := payload.Claims["email_verified"].(bool)
	if subject == "" || email == "" || !emailVerified {
		return ProviderIdentity{}, fmt.Errorf("google_id_token.claims: %w", errGoogleIdentityUnverified)
	}
	return ProviderIdentity{Email: email, ProviderUserID: subject}, nil
}

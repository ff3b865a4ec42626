package authkit

import (
	"fmt"

	"github.com/alexedwards/argon2id"
)

// PasswordHasher hashes and verifies local credentials.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(password string, encodedHash string) bool
}

// Argon2PasswordHasher produces PHC-encoded Argon2id hashes with a random salt per call.
type Argon2PasswordHasher struct {
	params *argon2id.Params
}

// DefaultArgon2Params mirror the parameters of hashes already stored by the service.
var DefaultArgon2Params = argon2id.Params{
	Memory:      19 * 1024,
	Iterations:  2,
	Parallelism: 1,
	SaltLength:  16,
	KeyLength:   32,
}

// NewArgon2PasswordHasher constructs a hasher with DefaultArgon2Params.
func NewArgon2PasswordHasher() *Argon2PasswordHasher {
	params := DefaultArgon2Params
	return &Argon2PasswordHasher{params: &params}
}

// Hash returns the encoded hash of password.
func (hasher *Argon2PasswordHasher) Hash(password string) (string, error) {
	encoded, err := argon2id.CreateHash(password, hasher.params)
	if err != nil {
		return "", fmt.Errorf("password.hash: %w", err)
	}
	return encoded, nil
}

// Verify reports whether password matches encodedHash. Malformed hashes never match.
func (hasher *Argon2PasswordHasher) Verify(password string, encodedHash string) bool {
	if encodedHash == "" {
		return false
	}
	match, err := argon2id.ComparePasswordAndHash(password, encodedHash)
	if err != nil {
		return false
	}
	return match
}

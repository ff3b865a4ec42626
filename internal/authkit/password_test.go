package authkit

import (
	"strings"
	"testing"
)

func TestArgon2PasswordHasherRoundTrip(t *testing.T) {
	t.Parallel()

	hasher := NewArgon2PasswordHasher()
	testCases := []struct {
		name     string
		password string
	}{
		{name: "ascii", password: "correcthorse"},
		{name: "special characters", password: "p@$$w0rd!#%&*()"},
		{name: "unicode", password: "пароль密码🔐"},
	}

	for _, testCase := range testCases {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()
			encoded, err := hasher.Hash(testCase.password)
			if err != nil {
				t.Fatalf("hash: %v", err)
			}
			if !strings.HasPrefix(encoded, "$argon2id$") {
				t.Fatalf("expected argon2id PHC string, got %q", encoded)
			}
			if !hasher.Verify(testCase.password, encoded) {
				t.Fatalf("expected password to verify")
			}
		})
	}
}

func TestArgon2PasswordHasherUsesFreshSalt(t *testing.T) {
	t.Parallel()

	hasher := NewArgon2PasswordHasher()
	first, err := hasher.Hash("samepassword")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	second, err := hasher.Hash("samepassword")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if first == second {
		t.Fatalf("expected distinct hashes for the same password")
	}
}

func TestArgon2PasswordHasherRejectsMismatchAndMalformed(t *testing.T) {
	t.Parallel()

	hasher := NewArgon2PasswordHasher()
	encoded, err := hasher.Hash("originalpassword")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if hasher.Verify("wrongpassword", encoded) {
		t.Fatalf("expected mismatch for a different password")
	}
	if hasher.Verify("", encoded) {
		t.Fatalf("expected mismatch for an empty password")
	}

	for _, malformed := range []string{"", "not-a-hash", "$argon2id$invalid", "$argon2i$v=19$m=16,t=2,p=1$c2FsdA$aGFzaA"} {
		if hasher.Verify("password", malformed) {
			t.Fatalf("expected malformed hash %q to be rejected", malformed)
		}
	}
}

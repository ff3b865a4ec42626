package authkit

import (
	"encoding/base64"
	"errors"
	"strings"
	"testing"
	"time"
)

type fixedClock struct {
	timestamp time.Time
}

func (clock fixedClock) Now() time.Time {
	return clock.timestamp
}

type controllableClock struct {
	current time.Time
}

func (clock *controllableClock) Now() time.Time {
	return clock.current
}

func (clock *controllableClock) Advance(duration time.Duration) {
	clock.current = clock.current.Add(duration)
}

func TestNewTokenCodecRequiresSigningKey(t *testing.T) {
	t.Parallel()

	_, err := NewTokenCodec(nil, time.Hour, nil)
	if !errors.Is(err, ErrMissingSigningKey) || !errors.Is(err, ErrConfig) {
		t.Fatalf("expected missing signing key config error, got %v", err)
	}
}

func TestTokenCodecIssueRejectsEmptySubject(t *testing.T) {
	t.Parallel()

	codec, err := NewTokenCodec([]byte("signing-key"), time.Minute, fixedClock{timestamp: time.Unix(1700000000, 0)})
	if err != nil {
		t.Fatalf("new codec: %v", err)
	}
	_, _, issueErr := codec.Issue("")
	if issueErr == nil {
		t.Fatalf("expected error when user ID is empty")
	}
	expected := "token.issue: subject must be non-empty"
	if issueErr.Error() != expected {
		t.Fatalf("expected error %q, got %q", expected, issueErr.Error())
	}
}

func TestTokenCodecPayloadCarriesSubjectAndExpiry(t *testing.T) {
	t.Parallel()

	reference := time.Unix(1700000000, 0).UTC()
	codec, err := NewTokenCodec([]byte("signing-key"), 0, fixedClock{timestamp: reference})
	if err != nil {
		t.Fatalf("new codec: %v", err)
	}
	token, expiresAt, issueErr := codec.Issue("user-123")
	if issueErr != nil {
		t.Fatalf("issue: %v", issueErr)
	}
	if !expiresAt.Equal(reference.Add(90 * 24 * time.Hour)) {
		t.Fatalf("expected 90 day expiry, got %v", expiresAt)
	}
	parts := strings.Split(token, ".")
	if len(parts) != 2 {
		t.Fatalf("expected two token parts, got %d", len(parts))
	}
	payload, decodeErr := base64.RawURLEncoding.DecodeString(parts[0])
	if decodeErr != nil {
		t.Fatalf("decode payload: %v", decodeErr)
	}
	expectedPayload := `{"sub":"user-123","exp":1707776000}`
	if string(payload) != expectedPayload {
		t.Fatalf("expected payload %s, got %s", expectedPayload, string(payload))
	}
}

func TestTokenCodecVerifyLifecycle(t *testing.T) {
	t.Parallel()

	clock := &controllableClock{current: time.Unix(1700000000, 0).UTC()}
	codec, err := NewTokenCodec([]byte("signing-key"), time.Hour, clock)
	if err != nil {
		t.Fatalf("new codec: %v", err)
	}
	token, _, issueErr := codec.Issue("user-123")
	if issueErr != nil {
		t.Fatalf("issue: %v", issueErr)
	}

	subject, verifyErr := codec.Verify(token)
	if verifyErr != nil {
		t.Fatalf("verify: %v", verifyErr)
	}
	if subject != "user-123" {
		t.Fatalf("expected user-123, got %s", subject)
	}

	clock.Advance(time.Hour)
	if _, err := codec.Verify(token); err != nil {
		t.Fatalf("expected token valid exactly at expiry, got %v", err)
	}

	clock.Advance(time.Second)
	if _, err := codec.Verify(token); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid after expiry, got %v", err)
	}
}

func TestTokenCodecRejectsTampering(t *testing.T) {
	t.Parallel()

	codec, err := NewTokenCodec([]byte("signing-key"), time.Hour, fixedClock{timestamp: time.Unix(1700000000, 0)})
	if err != nil {
		t.Fatalf("new codec: %v", err)
	}
	token, _, issueErr := codec.Issue("user-123")
	if issueErr != nil {
		t.Fatalf("issue: %v", issueErr)
	}
	parts := strings.Split(token, ".")

	flip := func(segment string) string {
		raw, decodeErr := base64.RawURLEncoding.DecodeString(segment)
		if decodeErr != nil {
			t.Fatalf("decode segment: %v", decodeErr)
		}
		raw[0] ^= 0x01
		return base64.RawURLEncoding.EncodeToString(raw)
	}

	otherCodec, otherErr := NewTokenCodec([]byte("other-key"), time.Hour, fixedClock{timestamp: time.Unix(1700000000, 0)})
	if otherErr != nil {
		t.Fatalf("new codec: %v", otherErr)
	}
	foreignToken, _, foreignErr := otherCodec.Issue("user-123")
	if foreignErr != nil {
		t.Fatalf("issue: %v", foreignErr)
	}

	testCases := []struct {
		name  string
		token string
	}{
		{name: "payload byte flipped", token: flip(parts[0]) + "." + parts[1]},
		{name: "signature byte flipped", token: parts[0] + "." + flip(parts[1])},
		{name: "foreign key", token: foreignToken},
		{name: "missing signature", token: parts[0]},
		{name: "three parts", token: token + ".extra"},
		{name: "bad signature encoding", token: parts[0] + ".!!!"},
		{name: "empty", token: ""},
	}
	for _, testCase := range testCases {
		if _, err := codec.Verify(testCase.token); !errors.Is(err, ErrTokenInvalid) {
			t.Fatalf("%s: expected ErrTokenInvalid, got %v", testCase.name, err)
		}
	}
}

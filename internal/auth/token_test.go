package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const testSecret = "test-secret-for-tokens"

func TestIssuerVerifier_RoundTrip(t *testing.T) {
	issuer := NewIssuer(testSecret, time.Hour)
	verifier := NewVerifier(testSecret)

	token, err := issuer.Issue("user-1")
	if err != nil {
		t.Fatalf("Issue returned error: %v", err)
	}

	id, err := verifier.Verify(token)
	if err != nil {
		t.Fatalf("Verify returned error: %v", err)
	}
	if id.UserID != "user-1" {
		t.Errorf("UserID = %q, want %q", id.UserID, "user-1")
	}
}

func TestVerify_Empty_ReturnsMissing(t *testing.T) {
	verifier := NewVerifier(testSecret)

	for _, raw := range []string{"", "   "} {
		if _, err := verifier.Verify(raw); !errors.Is(err, ErrTokenMissing) {
			t.Errorf("Verify(%q) error = %v, want ErrTokenMissing", raw, err)
		}
	}
}

func TestVerify_Expired_ReturnsExpired(t *testing.T) {
	issuer := NewIssuer(testSecret, time.Minute)
	issuer.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	verifier := NewVerifier(testSecret)

	token, err := issuer.Issue("user-1")
	if err != nil {
		t.Fatalf("Issue returned error: %v", err)
	}

	if _, err := verifier.Verify(token); !errors.Is(err, ErrTokenExpired) {
		t.Errorf("error = %v, want ErrTokenExpired", err)
	}
}

func TestVerify_WrongSecret_ReturnsInvalid(t *testing.T) {
	token, err := NewIssuer("other-secret", time.Hour).Issue("user-1")
	if err != nil {
		t.Fatalf("Issue returned error: %v", err)
	}

	if _, err := NewVerifier(testSecret).Verify(token); !errors.Is(err, ErrTokenInvalid) {
		t.Errorf("error = %v, want ErrTokenInvalid", err)
	}
}

func TestVerify_Malformed_ReturnsInvalid(t *testing.T) {
	if _, err := NewVerifier(testSecret).Verify("not.a.jwt"); !errors.Is(err, ErrTokenInvalid) {
		t.Errorf("error = %v, want ErrTokenInvalid", err)
	}
}

func TestVerify_MissingExpiry_ReturnsInvalid(t *testing.T) {
	claims := jwt.RegisteredClaims{Issuer: tokenIssuer, Subject: "user-1"}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("failed to sign: %v", err)
	}

	if _, err := NewVerifier(testSecret).Verify(token); !errors.Is(err, ErrTokenInvalid) {
		t.Errorf("error = %v, want ErrTokenInvalid", err)
	}
}

func TestVerify_OtherAlgorithm_ReturnsInvalid(t *testing.T) {
	claims := jwt.RegisteredClaims{
		Issuer:    tokenIssuer,
		Subject:   "user-1",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("failed to sign: %v", err)
	}

	if _, err := NewVerifier(testSecret).Verify(token); !errors.Is(err, ErrTokenInvalid) {
		t.Errorf("error = %v, want ErrTokenInvalid", err)
	}
}

func TestVerify_EmptySubject_ReturnsInvalid(t *testing.T) {
	token, err := NewIssuer(testSecret, time.Hour).Issue("")
	if err != nil {
		t.Fatalf("Issue returned error: %v", err)
	}

	if _, err := NewVerifier(testSecret).Verify(token); !errors.Is(err, ErrTokenInvalid) {
		t.Errorf("error = %v, want ErrTokenInvalid", err)
	}
}

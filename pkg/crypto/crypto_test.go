package crypto

import (
	"encoding/base64"
	"testing"
)

func TestPasswordHashing(t *testing.T) {
	hash, err := HashPassword("secret")
	if err != nil {
		t.Fatalf("hash error: %v", err)
	}

	if !VerifyPassword(hash, "secret") {
		t.Fatal("expected password verification to succeed")
	}

	if VerifyPassword(hash, "incorrect") {
		t.Fatal("expected password verification to fail")
	}
}

func TestBurnPasswordCheckAlwaysFails(t *testing.T) {
	if BurnPasswordCheck("learnhub-timing-equaliser") {
		t.Fatal("expected burn check to report false")
	}
}

func TestGenerateToken(t *testing.T) {
	token, err := GenerateToken(24)
	if err != nil {
		t.Fatalf("token error: %v", err)
	}

	decoded, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		t.Fatalf("expected url-safe token: %v", err)
	}
	if len(decoded) != 24 {
		t.Fatalf("expected 24 random bytes, got %d", len(decoded))
	}

	other, err := GenerateToken(24)
	if err != nil {
		t.Fatalf("token error: %v", err)
	}
	if other == token {
		t.Fatal("expected tokens to differ")
	}

	if _, err := GenerateToken(0); err == nil {
		t.Fatal("expected error for zero length")
	}
}

func TestConstantTimeEqual(t *testing.T) {
	if !ConstantTimeEqual("abc", "abc") {
		t.Fatal("expected equal strings to match")
	}
	if ConstantTimeEqual("abc", "abd") || ConstantTimeEqual("abc", "abcd") {
		t.Fatal("expected different strings not to match")
	}
}

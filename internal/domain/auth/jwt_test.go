package auth

import (
	"strings"
	"testing"
	"time"
)

func TestGenerateAndValidateToken(t *testing.T) {
	svc := NewJWTService(DefaultJWTConfig("test-secret"))

	token, expiresAt, err := svc.GenerateAccessToken("u-1", "tnt-1", "till@example.com", "cashier", []string{"o-1"})
	if err != nil {
		t.Fatalf("GenerateAccessToken: %v", err)
	}
	if !expiresAt.After(time.Now().Add(14 * time.Minute)) {
		t.Errorf("expiry %s shorter than configured TTL", expiresAt)
	}

	user, err := svc.ValidateToken(token)
	if err != nil {
		t.Fatalf("ValidateToken: %v", err)
	}
	if user.UserID != "u-1" || user.TenantID != "tnt-1" {
		t.Errorf("claims = %s/%s, want u-1/tnt-1", user.UserID, user.TenantID)
	}
	if user.Role != "cashier" {
		t.Errorf("role = %q", user.Role)
	}
	if len(user.OutletIDs) != 1 || user.OutletIDs[0] != "o-1" {
		t.Errorf("outlets = %v", user.OutletIDs)
	}
}

func TestValidateTokenWrongSecret(t *testing.T) {
	issuer := NewJWTService(DefaultJWTConfig("secret-a"))
	verifier := NewJWTService(DefaultJWTConfig("secret-b"))

	token, _, err := issuer.GenerateAccessToken("u-1", "tnt-1", "till@example.com", "cashier", nil)
	if err != nil {
		t.Fatalf("GenerateAccessToken: %v", err)
	}

	if _, err := verifier.ValidateToken(token); err == nil {
		t.Fatal("token signed with another secret accepted")
	}
}

func TestValidateExpiredToken(t *testing.T) {
	cfg := DefaultJWTConfig("test-secret")
	cfg.AccessTokenTTL = -time.Minute
	svc := NewJWTService(cfg)

	token, _, err := svc.GenerateAccessToken("u-1", "tnt-1", "till@example.com", "cashier", nil)
	if err != nil {
		t.Fatalf("GenerateAccessToken: %v", err)
	}

	if _, err := svc.ValidateToken(token); err == nil {
		t.Fatal("expired token accepted")
	}
}

func TestValidateTamperedToken(t *testing.T) {
	svc := NewJWTService(DefaultJWTConfig("test-secret"))

	token, _, err := svc.GenerateAccessToken("u-1", "tnt-1", "till@example.com", "cashier", nil)
	if err != nil {
		t.Fatalf("GenerateAccessToken: %v", err)
	}

	// Flip a character in the payload segment.
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		t.Fatalf("token segments = %d", len(parts))
	}
	payload := []byte(parts[1])
	if payload[0] == 'A' {
		payload[0] = 'B'
	} else {
		payload[0] = 'A'
	}
	tampered := parts[0] + "." + string(payload) + "." + parts[2]

	if _, err := svc.ValidateToken(tampered); err == nil {
		t.Fatal("tampered token accepted")
	}
}

func TestValidateGarbage(t *testing.T) {
	svc := NewJWTService(DefaultJWTConfig("test-secret"))

	for _, token := range []string{"", "abc", "a.b.c"} {
		if _, err := svc.ValidateToken(token); err == nil {
			t.Errorf("ValidateToken(%q) accepted", token)
		}
	}
}

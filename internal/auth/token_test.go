package auth

import (
	"testing"
	"time"

	"huddle/api/internal/rbac"
)

var testSecret = []byte("test-secret")

func TestTokenRoundTrip(t *testing.T) {
	token, err := IssueToken(testSecret, Identity{ID: "u1", Name: "Alex", Role: rbac.RoleOfficer}, time.Hour)
	if err != nil {
		t.Fatalf("IssueToken failed: %v", err)
	}

	identity, err := VerifyToken(testSecret, token)
	if err != nil {
		t.Fatalf("VerifyToken failed: %v", err)
	}
	if identity.ID != "u1" || identity.Name != "Alex" || identity.Role != rbac.RoleOfficer {
		t.Errorf("unexpected identity: %+v", identity)
	}
}

func TestTokenRoleIsNormalized(t *testing.T) {
	token, err := IssueToken(testSecret, Identity{ID: "u1", Name: "Alex", Role: "president"}, time.Hour)
	if err != nil {
		t.Fatalf("IssueToken failed: %v", err)
	}
	identity, err := VerifyToken(testSecret, token)
	if err != nil {
		t.Fatalf("VerifyToken failed: %v", err)
	}
	if identity.Role != rbac.RoleStudent {
		t.Errorf("unknown role should normalize to Student, got %q", identity.Role)
	}
}

func TestExpiredToken(t *testing.T) {
	token, err := IssueToken(testSecret, Identity{ID: "u1", Name: "Alex"}, -time.Minute)
	if err != nil {
		t.Fatalf("IssueToken failed: %v", err)
	}
	if _, err := VerifyToken(testSecret, token); err != ErrExpiredToken {
		t.Errorf("expected ErrExpiredToken, got %v", err)
	}
}

func TestTamperedToken(t *testing.T) {
	token, err := IssueToken(testSecret, Identity{ID: "u1", Name: "Alex"}, time.Hour)
	if err != nil {
		t.Fatalf("IssueToken failed: %v", err)
	}
	if _, err := VerifyToken([]byte("other-secret"), token); err != ErrInvalidToken {
		t.Errorf("expected ErrInvalidToken, got %v", err)
	}
	if _, err := VerifyToken(testSecret, "not.a.token"); err != ErrInvalidToken {
		t.Errorf("expected ErrInvalidToken for garbage, got %v", err)
	}
}

package main

import (
	"errors"
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func newTestAuth(t *testing.T) (*Auth, *DB) {
	t.Helper()
	db := openTestDB(t)
	a := NewAuth(db)
	a.cost = bcrypt.MinCost
	return a, db
}

func TestAuthRegisterLogin(t *testing.T) {
	a, _ := newTestAuth(t)

	id, token, err := a.Register("  alice ", "secret")
	if err != nil {
		t.Fatal(err)
	}
	uid, name, err := a.ValidateToken(token)
	if err != nil {
		t.Fatal(err)
	}
	if uid != id || name != "alice" {
		t.Errorf("token claims = %d %q", uid, name)
	}

	if _, _, err := a.Register("alice", "secret"); !errors.Is(err, ErrUsernameTaken) {
		t.Errorf("expected ErrUsernameTaken, got %v", err)
	}

	lid, _, err := a.Login("alice", "secret", "1.2.3.4")
	if err != nil || lid != id {
		t.Errorf("Login = %d, %v", lid, err)
	}
	if _, _, err := a.Login("alice", "wrong", "1.2.3.4"); !errors.Is(err, ErrBadCredentials) {
		t.Errorf("expected ErrBadCredentials, got %v", err)
	}
	if _, _, err := a.Login("nobody", "secret", "1.2.3.4"); !errors.Is(err, ErrBadCredentials) {
		t.Errorf("expected ErrBadCredentials, got %v", err)
	}
}

func TestAuthRegisterValidation(t *testing.T) {
	a, _ := newTestAuth(t)
	if _, _, err := a.Register("a", "secret"); err == nil {
		t.Error("short username should fail")
	}
	if _, _, err := a.Register("alice", "abc"); err == nil {
		t.Error("short password should fail")
	}
}

func TestAuthRateLimit(t *testing.T) {
	a, _ := newTestAuth(t)
	for i := 0; i < maxLoginAttempts; i++ {
		a.Login("x", "y", "9.9.9.9")
	}
	if _, _, err := a.Login("x", "y", "9.9.9.9"); !errors.Is(err, ErrRateLimited) {
		t.Errorf("expected ErrRateLimited, got %v", err)
	}
	// Other addresses are unaffected
	if _, _, err := a.Login("x", "y", "8.8.8.8"); !errors.Is(err, ErrBadCredentials) {
		t.Errorf("expected ErrBadCredentials, got %v", err)
	}
}

func TestAuthInvalidToken(t *testing.T) {
	a, _ := newTestAuth(t)
	if _, _, err := a.ValidateToken("garbage"); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("expected ErrInvalidToken, got %v", err)
	}

	other, _ := newTestAuth(t)
	_, token, _ := other.Register("bob", "secret")
	if _, _, err := a.ValidateToken(token); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("foreign token should be rejected, got %v", err)
	}
}

func TestAuthSecretPersists(t *testing.T) {
	a, db := newTestAuth(t)
	_, token, err := a.Register("alice", "secret")
	if err != nil {
		t.Fatal(err)
	}
	again := NewAuth(db)
	if _, _, err := again.ValidateToken(token); err != nil {
		t.Errorf("token should survive restart: %v", err)
	}
}

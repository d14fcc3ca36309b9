package assistant

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"cookwithme/internal/config"
	"cookwithme/internal/storage"
)

func TestRegisterUserHashesPassword(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()
	svc := NewService(db, "sqlite3", nil)

	user, err := svc.RegisterUser(context.Background(), "alice", "s3cret")
	if err != nil {
		t.Fatalf("RegisterUser: %v", err)
	}
	if user.ID <= 0 {
		t.Fatalf("expected positive user id")
	}

	var stored string
	if err := db.QueryRow(`SELECT password_hash FROM users WHERE id = ?`, user.ID).Scan(&stored); err != nil {
		t.Fatalf("query hash: %v", err)
	}
	if stored == "s3cret" {
		t.Fatalf("password stored in plaintext")
	}
	if bcrypt.CompareHashAndPassword([]byte(stored), []byte("s3cret")) != nil {
		t.Fatalf("stored hash does not verify")
	}
}

func TestRegisterUserRequiresBothFields(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()
	svc := NewService(db, "sqlite3", nil)

	for _, tc := range [][2]string{{"", "pw"}, {"dora", ""}, {"   ", "pw"}} {
		if _, err := svc.RegisterUser(context.Background(), tc[0], tc[1]); !errors.Is(err, ErrMissingCredentials) {
			t.Fatalf("RegisterUser(%q, %q): expected ErrMissingCredentials, got %v", tc[0], tc[1], err)
		}
	}
}

func TestRegisterUserDuplicateUsername(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()
	svc := NewService(db, "sqlite3", nil)

	if _, err := svc.RegisterUser(context.Background(), "bob", "pw1"); err != nil {
		t.Fatalf("first RegisterUser: %v", err)
	}
	_, err := svc.RegisterUser(context.Background(), "bob", "pw2")
	if !errors.Is(err, ErrUsernameTaken) {
		t.Fatalf("expected ErrUsernameTaken, got %v", err)
	}
}

func TestLogin(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()
	svc := NewService(db, "sqlite3", nil)

	if _, err := svc.RegisterUser(context.Background(), "carol", "correct-horse"); err != nil {
		t.Fatalf("RegisterUser: %v", err)
	}

	user, err := svc.Login(context.Background(), "carol", "correct-horse")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if user.Username != "carol" {
		t.Fatalf("unexpected user: %+v", user)
	}

	if _, err := svc.Login(context.Background(), "carol", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for wrong password, got %v", err)
	}
	if _, err := svc.Login(context.Background(), "nobody", "whatever"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for unknown user, got %v", err)
	}
}

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	cfg := &config.Config{
		Databases: map[string]config.DatabaseConfig{
			"sqlite3": {DSN: ":memory:"},
		},
	}
	db, err := storage.Open("sqlite3", cfg)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	db.SetMaxOpenConns(1)
	if err := storage.Migrate(db, "sqlite3"); err != nil {
		t.Fatalf("migrate db: %v", err)
	}
	return db
}

func newTestUser(t *testing.T, svc *Service, username string) int64 {
	t.Helper()
	user, err := svc.RegisterUser(context.Background(), username, "pass123")
	if err != nil {
		t.Fatalf("register %s: %v", username, err)
	}
	return user.ID
}

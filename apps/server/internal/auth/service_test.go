package auth

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func backends(t *testing.T) map[string]Service {
	t.Helper()
	lite, err := NewSQLiteService(filepath.Join(t.TempDir(), "auth.db"), time.Hour)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = lite.Close() })
	return map[string]Service{
		"memory": NewMemoryService(time.Hour),
		"sqlite": lite,
	}
}

func TestRegisterAndLogin(t *testing.T) {
	ctx := context.Background()
	for name, svc := range backends(t) {
		t.Run(name, func(t *testing.T) {
			player, token, err := svc.Register(ctx, "alice_01", "secret12")
			if err != nil {
				t.Fatalf("register failed: %v", err)
			}
			if player == 0 || token == "" {
				t.Fatalf("expected player id and token, got %d %q", player, token)
			}

			resolved, username, ok := svc.ResolveSession(ctx, token)
			if !ok {
				t.Fatalf("expected valid session")
			}
			if resolved != player || username != "alice_01" {
				t.Fatalf("resolved %d %q, want %d alice_01", resolved, username, player)
			}

			loginID, loginToken, err := svc.Login(ctx, "ALICE_01", "secret12")
			if err != nil {
				t.Fatalf("login failed: %v", err)
			}
			if loginID != player || loginToken == "" || loginToken == token {
				t.Fatalf("unexpected login result %d %q", loginID, loginToken)
			}
		})
	}
}

func TestRegisterRejections(t *testing.T) {
	ctx := context.Background()
	for name, svc := range backends(t) {
		t.Run(name, func(t *testing.T) {
			if _, _, err := svc.Register(ctx, "alice_01", "secret12"); err != nil {
				t.Fatalf("register failed: %v", err)
			}
			if _, _, err := svc.Register(ctx, "Alice_01", "secret12"); !errors.Is(err, ErrUsernameTaken) {
				t.Fatalf("expected ErrUsernameTaken, got %v", err)
			}
			if _, _, err := svc.Register(ctx, "a!", "secret12"); !errors.Is(err, ErrInvalidUsername) {
				t.Fatalf("expected ErrInvalidUsername, got %v", err)
			}
			if _, _, err := svc.Register(ctx, "bob_01", "123"); !errors.Is(err, ErrInvalidPassword) {
				t.Fatalf("expected ErrInvalidPassword, got %v", err)
			}
		})
	}
}

func TestLoginRejectsWrongPassword(t *testing.T) {
	ctx := context.Background()
	for name, svc := range backends(t) {
		t.Run(name, func(t *testing.T) {
			if _, _, err := svc.Register(ctx, "alice_01", "secret12"); err != nil {
				t.Fatalf("register failed: %v", err)
			}
			if _, _, err := svc.Login(ctx, "alice_01", "wrong-password"); !errors.Is(err, ErrInvalidCredentials) {
				t.Fatalf("expected ErrInvalidCredentials, got %v", err)
			}
			if _, _, err := svc.Login(ctx, "nobody", "secret12"); !errors.Is(err, ErrInvalidCredentials) {
				t.Fatalf("expected ErrInvalidCredentials for unknown user, got %v", err)
			}
		})
	}
}

func TestLogoutRevokesSession(t *testing.T) {
	ctx := context.Background()
	for name, svc := range backends(t) {
		t.Run(name, func(t *testing.T) {
			_, token, err := svc.Register(ctx, "alice_01", "secret12")
			if err != nil {
				t.Fatalf("register failed: %v", err)
			}
			svc.Logout(ctx, token)
			if _, _, ok := svc.ResolveSession(ctx, token); ok {
				t.Fatalf("session should be revoked")
			}
		})
	}
}

func TestMemorySessionExpires(t *testing.T) {
	ctx := context.Background()
	svc := NewMemoryService(time.Millisecond)
	_, token, err := svc.Register(ctx, "alice_01", "secret12")
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}
	time.Sleep(5 * time.Millisecond)
	if _, _, ok := svc.ResolveSession(ctx, token); ok {
		t.Fatalf("session should have expired")
	}
}

func TestNewService(t *testing.T) {
	if _, mode, err := NewService(Options{Mode: "memory"}); err != nil || mode != "memory" {
		t.Fatalf("memory mode: %q %v", mode, err)
	}
	svc, mode, err := NewService(Options{Mode: "sqlite", LocalPath: filepath.Join(t.TempDir(), "a.db")})
	if err != nil || mode != "sqlite" {
		t.Fatalf("sqlite mode: %q %v", mode, err)
	}
	_ = svc.Close()
	if _, _, err := NewService(Options{Mode: "ldap"}); err == nil {
		t.Fatalf("expected error for unknown mode")
	}
}

package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"pokerdice/match"
)

const (
	defaultSessionTTL = 30 * 24 * time.Hour
	tokenBytes        = 32
)

var (
	ErrInvalidUsername    = errors.New("invalid username")
	ErrInvalidPassword    = errors.New("invalid password")
	ErrUsernameTaken      = errors.New("username already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
)

var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9_][a-zA-Z0-9_.-]{2,31}$`)

// Service maps players to password logins and bearer sessions. A player's
// account id is the match.PlayerID they are seated with.
type Service interface {
	Register(ctx context.Context, username, password string) (match.PlayerID, string, error)
	Login(ctx context.Context, username, password string) (match.PlayerID, string, error)
	ResolveSession(ctx context.Context, token string) (player match.PlayerID, username string, ok bool)
	Logout(ctx context.Context, token string)
	Close() error
}

type Options struct {
	Mode       string
	LocalPath  string
	SessionTTL time.Duration
}

// NewService picks a backend. The returned string names the mode for logs.
func NewService(opts Options) (Service, string, error) {
	switch strings.ToLower(strings.TrimSpace(opts.Mode)) {
	case "memory", "mem":
		return NewMemoryService(opts.SessionTTL), "memory", nil
	case "local", "sqlite":
		svc, err := NewSQLiteService(opts.LocalPath, opts.SessionTTL)
		if err != nil {
			return nil, "", err
		}
		return svc, "sqlite", nil
	}
	return nil, "", fmt.Errorf("invalid auth mode %q (supported: memory, sqlite)", opts.Mode)
}

func normalizeUsername(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}

func validateUsername(username string) error {
	if !usernamePattern.MatchString(strings.TrimSpace(username)) {
		return ErrInvalidUsername
	}
	return nil
}

// bcrypt ignores bytes past 72.
func validatePassword(password string) error {
	if len(password) < 6 || len(password) > 72 {
		return ErrInvalidPassword
	}
	return nil
}

func mustToken() string {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		panic(err)
	}
	return base64.RawURLEncoding.EncodeToString(buf)
}

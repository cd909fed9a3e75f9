package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"pokerdice/match"
)

var (
	ErrNotFound = errors.New("match not found")
	// ErrStaleVersion means a newer version of the match is already stored.
	ErrStaleVersion = errors.New("stale match version")
)

// Repository persists match snapshots. Save never overwrites a newer version
// with an older one.
type Repository interface {
	Load(ctx context.Context, id string) (*match.MatchState, error)
	Save(ctx context.Context, st *match.MatchState) error
	// ListActive returns the ids of matches not yet FINISHED.
	ListActive(ctx context.Context) ([]string, error)
	Close() error
}

type Options struct {
	Mode          string
	DatabaseURL   string
	LocalPath     string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	// CacheSize > 0 wraps the backend in an LRU read cache.
	CacheSize int
}

func New(ctx context.Context, opts Options) (Repository, string, error) {
	var (
		repo Repository
		mode string
		err  error
	)
	switch strings.ToLower(strings.TrimSpace(opts.Mode)) {
	case "", "memory":
		repo, mode = NewMemory(), "memory"
	case "local", "sqlite":
		repo, err = NewSQLite(ctx, opts.LocalPath)
		mode = "sqlite"
	case "postgres":
		repo, err = NewPostgres(ctx, opts.DatabaseURL)
		mode = "postgres"
	case "redis":
		repo, err = NewRedis(ctx, opts.RedisAddr, opts.RedisPassword, opts.RedisDB)
		mode = "redis"
	default:
		return nil, "", fmt.Errorf("unknown store mode %q", opts.Mode)
	}
	if err != nil {
		return nil, "", err
	}
	if opts.CacheSize > 0 && mode != "memory" {
		cached, err := NewCached(repo, opts.CacheSize)
		if err != nil {
			_ = repo.Close()
			return nil, "", err
		}
		return cached, mode + "+lru", nil
	}
	return repo, mode, nil
}

package ledger

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"pokerdice/match"
)

const defaultEntriesLimit = 50

// KindGrant marks money added from outside any match.
const KindGrant match.MemoKind = "grant"

var (
	ErrNotFound      = errors.New("account not found")
	ErrInvalidAmount = errors.New("amount must be > 0")
)

// InsufficientBalanceError reports the first account that could not cover a
// debit. Nothing was debited from any account.
type InsufficientBalanceError struct {
	PlayerID match.PlayerID
	Balance  int64
	Needed   int64
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("player %d has %d, needs %d", e.PlayerID, e.Balance, e.Needed)
}

// InsufficientFunds lets the engine map this to match.ErrInsufficientFunds.
func (e *InsufficientBalanceError) InsufficientFunds() bool { return true }

// Service is the balance store behind settlement. Debit is atomic across
// every named player; every mutation is journaled as an Entry.
type Service interface {
	match.BalanceStore
	Balance(ctx context.Context, player match.PlayerID) (int64, error)
	Grant(ctx context.Context, player match.PlayerID, amount int64) error
	Entries(ctx context.Context, player match.PlayerID, limit int) ([]Entry, error)
	Close() error
}

type Entry struct {
	ID           int64          `json:"id"`
	PlayerID     match.PlayerID `json:"player_id"`
	Delta        int64          `json:"delta"`
	BalanceAfter int64          `json:"balance_after"`
	MatchID      string         `json:"match_id,omitempty"`
	Kind         match.MemoKind `json:"kind"`
	Round        int            `json:"round,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
}

type Options struct {
	Mode      string
	DSN       string
	LocalPath string
}

// NewService picks a backend. The returned string names the mode for logs.
func NewService(opts Options) (Service, string, error) {
	switch strings.ToLower(strings.TrimSpace(opts.Mode)) {
	case "", "memory":
		return NewMemoryService(), "memory", nil
	case "local", "sqlite":
		svc, err := NewSQLiteService(opts.LocalPath)
		if err != nil {
			return nil, "", err
		}
		return svc, "sqlite", nil
	case "postgres":
		svc, err := NewPostgresService(opts.DSN)
		if err != nil {
			return nil, "", err
		}
		return svc, "postgres", nil
	}
	return nil, "", fmt.Errorf("unknown ledger mode %q", opts.Mode)
}

func validateDebit(players []match.PlayerID, amount int64) ([]match.PlayerID, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}
	if len(players) == 0 {
		return nil, fmt.Errorf("no players to debit")
	}
	seen := make(map[match.PlayerID]bool, len(players))
	ordered := make([]match.PlayerID, 0, len(players))
	for _, p := range players {
		if seen[p] {
			return nil, fmt.Errorf("player %d listed twice", p)
		}
		seen[p] = true
		ordered = append(ordered, p)
	}
	// Lock rows in id order so concurrent debits over overlapping players
	// cannot deadlock.
	sortPlayers(ordered)
	return ordered, nil
}

func sortPlayers(ps []match.PlayerID) {
	sort.Slice(ps, func(i, j int) bool { return ps[i] < ps[j] })
}

func clampLimit(limit int) int {
	if limit <= 0 || limit > 500 {
		return defaultEntriesLimit
	}
	return limit
}

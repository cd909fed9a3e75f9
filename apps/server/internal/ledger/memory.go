package ledger

import (
	"context"
	"sync"
	"time"

	"pokerdice/match"
)

type MemoryService struct {
	mu       sync.Mutex
	balances map[match.PlayerID]int64
	entries  []Entry
}

func NewMemoryService() *MemoryService {
	return &MemoryService{balances: make(map[match.PlayerID]int64)}
}

func (s *MemoryService) Close() error { return nil }

func (s *MemoryService) Debit(_ context.Context, players []match.PlayerID, amount int64, memo match.Memo) error {
	ordered, err := validateDebit(players, amount)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, p := range ordered {
		if bal := s.balances[p]; bal < amount {
			return &InsufficientBalanceError{PlayerID: p, Balance: bal, Needed: amount}
		}
	}
	for _, p := range ordered {
		s.applyLocked(p, -amount, memo)
	}
	return nil
}

func (s *MemoryService) Credit(_ context.Context, player match.PlayerID, amount int64, memo match.Memo) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.applyLocked(player, amount, memo)
	return nil
}

func (s *MemoryService) Grant(ctx context.Context, player match.PlayerID, amount int64) error {
	return s.Credit(ctx, player, amount, match.Memo{Kind: KindGrant})
}

func (s *MemoryService) Balance(_ context.Context, player match.PlayerID) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	bal, ok := s.balances[player]
	if !ok {
		return 0, ErrNotFound
	}
	return bal, nil
}

// Entries returns the newest entries first.
func (s *MemoryService) Entries(_ context.Context, player match.PlayerID, limit int) ([]Entry, error) {
	limit = clampLimit(limit)
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Entry, 0, limit)
	for i := len(s.entries) - 1; i >= 0 && len(out) < limit; i-- {
		if s.entries[i].PlayerID == player {
			out = append(out, s.entries[i])
		}
	}
	return out, nil
}

func (s *MemoryService) applyLocked(p match.PlayerID, delta int64, memo match.Memo) {
	s.balances[p] += delta
	s.entries = append(s.entries, Entry{
		ID:           int64(len(s.entries) + 1),
		PlayerID:     p,
		Delta:        delta,
		BalanceAfter: s.balances[p],
		MatchID:      memo.MatchID,
		Kind:         memo.Kind,
		Round:        memo.Round,
		CreatedAt:    time.Now().UTC(),
	})
}

package ledger

import (
	"context"
	"errors"
	"sync"

	"pokerdice/match"
)

// WithStartingBalance opens unknown accounts with amount the first time they
// are debited, credited or queried.
func WithStartingBalance(next Service, amount int64) Service {
	return &seeded{Service: next, amount: amount}
}

type seeded struct {
	Service
	amount int64

	mu sync.Mutex
}

func (s *seeded) Debit(ctx context.Context, players []match.PlayerID, amount int64, memo match.Memo) error {
	if err := s.ensure(ctx, players...); err != nil {
		return err
	}
	return s.Service.Debit(ctx, players, amount, memo)
}

func (s *seeded) Credit(ctx context.Context, player match.PlayerID, amount int64, memo match.Memo) error {
	if err := s.ensure(ctx, player); err != nil {
		return err
	}
	return s.Service.Credit(ctx, player, amount, memo)
}

func (s *seeded) Balance(ctx context.Context, player match.PlayerID) (int64, error) {
	if err := s.ensure(ctx, player); err != nil {
		return 0, err
	}
	return s.Service.Balance(ctx, player)
}

func (s *seeded) ensure(ctx context.Context, players ...match.PlayerID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range players {
		if p == 0 {
			continue
		}
		_, err := s.Service.Balance(ctx, p)
		if errors.Is(err, ErrNotFound) {
			if err := s.Service.Grant(ctx, p, s.amount); err != nil {
				return err
			}
			continue
		}
		if err != nil {
			return err
		}
	}
	return nil
}

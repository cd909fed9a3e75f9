package match

import (
	"context"
	"errors"
	"fmt"
)

type MemoKind string

const (
	MemoEntry       MemoKind = "entry"
	MemoRoundReward MemoKind = "round_reward"
	MemoPayout      MemoKind = "payout"
	MemoRefund      MemoKind = "refund"
)

// Memo tags a balance mutation with the match event that caused it.
type Memo struct {
	MatchID string
	Kind    MemoKind
	Round   int
}

func (m Memo) String() string {
	if m.Round > 0 {
		return fmt.Sprintf("%s:%s:%d", m.MatchID, m.Kind, m.Round)
	}
	return fmt.Sprintf("%s:%s", m.MatchID, m.Kind)
}

// BalanceStore applies balance mutations. Debit is all-or-nothing across the
// named players.
type BalanceStore interface {
	Debit(ctx context.Context, players []PlayerID, amount int64, memo Memo) error
	Credit(ctx context.Context, player PlayerID, amount int64, memo Memo) error
}

// A BalanceStore error implementing this is reported as ErrInsufficientFunds.
type insufficientFunds interface {
	InsufficientFunds() bool
}

// Settlement is the only path from the engine to the balance store. Every
// method is guarded by a one-shot flag on the state it settles.
type Settlement struct {
	store       BalanceStore
	entryCost   int64
	roundReward int64
}

func NewSettlement(store BalanceStore, cfg Config) *Settlement {
	return &Settlement{store: store, entryCost: cfg.EntryCost, roundReward: cfg.RoundReward}
}

// Pot is what the game winner receives: every entry fee paid into the match.
func (s *Settlement) Pot(st *MatchState) int64 {
	return s.entryCost * int64(len(st.Players))
}

func (s *Settlement) ChargeEntry(ctx context.Context, st *MatchState) error {
	if st.EntryPaid {
		return nil
	}
	if s.entryCost > 0 {
		memo := Memo{MatchID: st.ID, Kind: MemoEntry}
		if err := s.store.Debit(ctx, st.Players, s.entryCost, memo); err != nil {
			return s.wrap(memo, err)
		}
	}
	st.EntryPaid = true
	return nil
}

func (s *Settlement) RewardRound(ctx context.Context, st *MatchState, r *RoundState, winner PlayerID) error {
	if r.RewardPaid {
		return nil
	}
	if s.roundReward > 0 {
		memo := Memo{MatchID: st.ID, Kind: MemoRoundReward, Round: r.Number}
		if err := s.store.Credit(ctx, winner, s.roundReward, memo); err != nil {
			return s.wrap(memo, err)
		}
	}
	r.RewardPaid = true
	return nil
}

func (s *Settlement) Payout(ctx context.Context, st *MatchState, winner PlayerID) error {
	if st.Settled {
		return nil
	}
	if pot := s.Pot(st); pot > 0 {
		memo := Memo{MatchID: st.ID, Kind: MemoPayout}
		if err := s.store.Credit(ctx, winner, pot, memo); err != nil {
			return s.wrap(memo, err)
		}
	}
	st.Settled = true
	return nil
}

// Refund returns the entry fee to every player of a match that never got to
// play, e.g. when it could not be persisted after the entry debit.
func (s *Settlement) Refund(ctx context.Context, st *MatchState) error {
	if !st.EntryPaid || s.entryCost <= 0 {
		return nil
	}
	var errs []error
	for _, p := range st.Players {
		memo := Memo{MatchID: st.ID, Kind: MemoRefund}
		if err := s.store.Credit(ctx, p, s.entryCost, memo); err != nil {
			errs = append(errs, s.wrap(memo, err))
		}
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	st.EntryPaid = false
	return nil
}

func (s *Settlement) wrap(memo Memo, err error) error {
	var nf insufficientFunds
	if errors.As(err, &nf) && nf.InsufficientFunds() {
		return fmt.Errorf("%w: %v", ErrInsufficientFunds, err)
	}
	return &SettlementError{Kind: memo.Kind, Round: memo.Round, Err: err}
}

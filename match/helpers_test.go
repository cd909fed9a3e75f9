package match

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"pokerdice/dice"
)

const (
	alice PlayerID = 1001
	bob   PlayerID = 1002
	carol PlayerID = 1003
)

type lowFundsError struct{ player PlayerID }

func (e lowFundsError) Error() string           { return "balance too low" }
func (e lowFundsError) InsufficientFunds() bool { return true }

type fakeBalances struct {
	mu         sync.Mutex
	bal        map[PlayerID]int64
	memos      []Memo
	failCredit error
}

func newFakeBalances(start int64, players ...PlayerID) *fakeBalances {
	f := &fakeBalances{bal: make(map[PlayerID]int64)}
	for _, p := range players {
		f.bal[p] = start
	}
	return f
}

func (f *fakeBalances) Debit(_ context.Context, players []PlayerID, amount int64, memo Memo) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range players {
		if f.bal[p] < amount {
			return lowFundsError{player: p}
		}
	}
	for _, p := range players {
		f.bal[p] -= amount
	}
	f.memos = append(f.memos, memo)
	return nil
}

func (f *fakeBalances) Credit(_ context.Context, p PlayerID, amount int64, memo Memo) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failCredit != nil {
		return f.failCredit
	}
	f.bal[p] += amount
	f.memos = append(f.memos, memo)
	return nil
}

func (f *fakeBalances) balance(p PlayerID) int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.bal[p]
}

func (f *fakeBalances) count(kind MemoKind) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, m := range f.memos {
		if m.Kind == kind {
			n++
		}
	}
	return n
}

var errLedgerDown = errors.New("ledger down")

func scriptedConfig(script ...dice.Face) Config {
	cfg := DefaultConfig()
	cfg.Seed = 7
	cfg.FaceScript = script
	return cfg
}

func mustNew(t *testing.T, cfg Config, balances BalanceStore, rounds int, players ...PlayerID) *Match {
	t.Helper()
	m, err := New(cfg, "m-test", players, rounds, balances)
	if err != nil {
		t.Fatalf("New err: %v", err)
	}
	m.SetClock(func() time.Time { return time.Unix(1700000000, 0).UTC() })
	return m
}

func mustStart(t *testing.T, m *Match) []Event {
	t.Helper()
	events, err := m.Start(context.Background())
	if err != nil {
		t.Fatalf("Start err: %v", err)
	}
	return events
}

func eventTypes(events []Event) []EventType {
	out := make([]EventType, 0, len(events))
	for _, ev := range events {
		out = append(out, ev.Type)
	}
	return out
}

// finishAll plays the current round out with no rolls.
func finishAll(t *testing.T, m *Match) []Event {
	t.Helper()
	var events []Event
	for {
		p, ok := m.CurrentPlayer()
		if !ok {
			return events
		}
		evs, err := m.FinishTurn(context.Background(), p)
		if err != nil {
			t.Fatalf("FinishTurn(%d) err: %v", p, err)
		}
		events = append(events, evs...)
		for _, ev := range evs {
			if ev.Type == EventRoundEnded {
				return events
			}
		}
	}
}

package match

import (
	"context"
	"fmt"
	"sync"
	"time"

	"pokerdice/dice"
)

// Match owns one MatchState. Every mutation runs under mu, so concurrent
// requests from different players are applied one at a time and only the
// current-turn player is ever accepted.
type Match struct {
	cfg    Config
	roller *dice.Roller
	settle *Settlement
	now    func() time.Time

	mu    sync.Mutex
	state *MatchState
}

// New validates seating and creates an ACTIVE match with no rounds yet.
// Nothing is charged until Start.
func New(cfg Config, id string, players []PlayerID, totalRounds int, balances BalanceStore) (*Match, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if balances == nil {
		return nil, fmt.Errorf("balance store is required")
	}
	if id == "" {
		return nil, fmt.Errorf("%w: empty match id", ErrInvalidRequest)
	}
	if len(players) < 2 {
		return nil, fmt.Errorf("%w: need at least 2 players, got %d", ErrInvalidRequest, len(players))
	}
	if totalRounds < 1 {
		return nil, fmt.Errorf("%w: totalRounds must be >= 1", ErrInvalidRequest)
	}
	seen := make(map[PlayerID]bool, len(players))
	for _, p := range players {
		if p == 0 {
			return nil, fmt.Errorf("%w: player id 0", ErrInvalidRequest)
		}
		if seen[p] {
			return nil, fmt.Errorf("%w: duplicate player %d", ErrInvalidRequest, p)
		}
		seen[p] = true
	}

	m := newMatch(cfg, balances)
	now := m.now()
	m.state = &MatchState{
		ID:          id,
		TotalRounds: totalRounds,
		Players:     append([]PlayerID(nil), players...),
		Status:      StatusActive,
		Departed:    make(map[PlayerID]bool),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	return m, nil
}

// Restore rebuilds a match from a persisted state, e.g. after a restart.
func Restore(cfg Config, st *MatchState, balances BalanceStore) (*Match, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if balances == nil {
		return nil, fmt.Errorf("balance store is required")
	}
	if err := validateState(st); err != nil {
		return nil, err
	}
	m := newMatch(cfg, balances)
	m.state = st.Clone()
	if m.state.Departed == nil {
		m.state.Departed = make(map[PlayerID]bool)
	}
	return m, nil
}

func newMatch(cfg Config, balances BalanceStore) *Match {
	return &Match{
		cfg:    cfg,
		roller: dice.NewRoller(cfg.Seed, cfg.FaceScript...),
		settle: NewSettlement(balances, cfg),
		now:    time.Now,
	}
}

// SetClock overrides the event clock. Tests only.
func (m *Match) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

func (m *Match) ID() string { return m.state.ID }

func (m *Match) Config() Config { return m.cfg }

// Start charges the entry fee to every player, all or nothing, and opens
// round 1. Calling it again after a partial failure resumes where it stopped.
func (m *Match) Start(ctx context.Context) ([]Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state.Status == StatusFinished {
		return nil, ErrMatchFinished
	}
	if len(m.state.Rounds) > 0 {
		return nil, nil
	}
	if err := m.settle.ChargeEntry(ctx, m.state); err != nil {
		return nil, err
	}
	m.touchLocked()
	return m.startNextRoundLocked()
}

func (m *Match) Roll(p PlayerID, held []int) ([]Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, err := m.actionRoundLocked(p)
	if err != nil {
		return nil, err
	}
	t, err := r.Roll(m.roller, p, held, m.cfg.MaxRolls)
	if err != nil {
		return nil, err
	}
	m.touchLocked()
	return []Event{m.turnEventLocked(EventDiceRolled, r.Number, t)}, nil
}

// Hold sets the held dice for the next roll.
func (m *Match) Hold(p PlayerID, held []int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, err := m.actionRoundLocked(p)
	if err != nil {
		return err
	}
	if _, err := r.Hold(p, held); err != nil {
		return err
	}
	m.touchLocked()
	return nil
}

// FinishTurn locks in the player's score. When it closes the round, the round
// is resolved and the match advanced in the same call; a settlement failure
// there is returned together with the events already produced.
func (m *Match) FinishTurn(ctx context.Context, p PlayerID) ([]Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, err := m.actionRoundLocked(p)
	if err != nil {
		return nil, err
	}
	t, err := r.FinishTurn(p)
	if err != nil {
		return nil, err
	}
	m.touchLocked()
	events := []Event{m.turnEventLocked(EventPlayerFinishedTurn, r.Number, t)}
	more, err := m.progressLocked(ctx)
	return append(events, more...), err
}

// Leave marks p as departed. An open turn is force-finished with the hand
// as-is, and p's turns in later rounds are closed as soon as they start.
func (m *Match) Leave(ctx context.Context, p PlayerID) ([]Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.state.Seated(p) {
		return nil, ErrNotFound
	}
	if m.state.Status == StatusFinished {
		return nil, ErrMatchFinished
	}
	if !m.state.Departed[p] {
		m.state.Departed[p] = true
		m.touchLocked()
	}
	return m.forceFinishLocked(ctx, p)
}

// ForceFinishCurrent closes the current player's turn as if they had left
// for this round only. Used by turn timeouts.
func (m *Match) ForceFinishCurrent(ctx context.Context) (PlayerID, []Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state.Status == StatusFinished {
		return 0, nil, ErrMatchFinished
	}
	r := m.state.CurrentRound()
	if r == nil {
		return 0, nil, ErrInvalidState("match not started")
	}
	p, ok := r.CurrentPlayer()
	if !ok {
		return 0, nil, ErrInvalidState("no current player")
	}
	events, err := m.forceFinishLocked(ctx, p)
	return p, events, err
}

func (m *Match) forceFinishLocked(ctx context.Context, p PlayerID) ([]Event, error) {
	var events []Event
	r := m.state.CurrentRound()
	if r != nil {
		if t, ok := r.ForceFinish(p); ok {
			m.touchLocked()
			events = append(events, m.turnEventLocked(EventPlayerFinishedTurn, r.Number, t))
		}
	}
	more, err := m.progressLocked(ctx)
	return append(events, more...), err
}

// Advance resolves a round that is waiting on settlement and moves the match
// forward. It is the retry path after a settlement failure.
func (m *Match) Advance(ctx context.Context) ([]Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state.Status == StatusFinished {
		return nil, ErrMatchFinished
	}
	r := m.state.CurrentRound()
	if r == nil {
		return nil, ErrInvalidState("match not started")
	}
	if r.Phase == PhaseInProgress {
		return nil, ErrInvalidState("round in progress")
	}
	return m.progressLocked(ctx)
}

// progressLocked drives RESOLVING -> COMPLETE -> next round or FINISHED for as
// long as no player input is needed.
func (m *Match) progressLocked(ctx context.Context) ([]Event, error) {
	var events []Event
	for m.state.Status == StatusActive {
		r := m.state.CurrentRound()
		if r == nil {
			return events, nil
		}
		if r.Phase == PhaseResolving {
			winner, err := r.ResolveWinner(func(w PlayerID) error {
				return m.settle.RewardRound(ctx, m.state, r, w)
			})
			if err != nil {
				return events, err
			}
			m.touchLocked()
			t := r.Turns[winner]
			events = append(events, m.emitLocked(Event{
				Type:     EventRoundEnded,
				Round:    r.Number,
				WinnerID: winner,
				Score:    t.Score,
				HandRank: t.Rank,
			}))
		}
		if r.Phase != PhaseComplete {
			return events, nil
		}
		if len(m.state.Rounds) < m.state.TotalRounds {
			more, err := m.startNextRoundLocked()
			events = append(events, more...)
			if err != nil {
				return events, err
			}
			continue
		}
		more, err := m.finishLocked(ctx)
		return append(events, more...), err
	}
	return events, nil
}

func (m *Match) startNextRoundLocked() ([]Event, error) {
	if m.state.Status == StatusFinished {
		return nil, ErrMatchFinished
	}
	if !m.state.EntryPaid {
		return nil, ErrInvalidState("entry not charged")
	}
	if cur := m.state.CurrentRound(); cur != nil && cur.Phase != PhaseComplete {
		return nil, ErrInvalidState("previous round not complete")
	}
	r := startRound(len(m.state.Rounds)+1, m.state.Players, m.roller)
	m.state.Rounds = append(m.state.Rounds, r)
	m.touchLocked()
	events := []Event{m.emitLocked(Event{
		Type:      EventRoundStarted,
		Round:     r.Number,
		TurnOrder: append([]PlayerID(nil), r.TurnOrder...),
	})}
	for _, p := range r.TurnOrder {
		if !m.state.Departed[p] {
			continue
		}
		if t, ok := r.ForceFinish(p); ok {
			events = append(events, m.turnEventLocked(EventPlayerFinishedTurn, r.Number, t))
		}
	}
	return events, nil
}

func (m *Match) finishLocked(ctx context.Context) ([]Event, error) {
	winner, err := ComputeGameWinner(m.state)
	if err != nil {
		return nil, err
	}
	if err := m.settle.Payout(ctx, m.state, winner.PlayerID); err != nil {
		return nil, err
	}
	m.state.WinnerID = winner.PlayerID
	m.state.Status = StatusFinished
	m.touchLocked()
	return []Event{m.emitLocked(Event{
		Type:        EventGameEnded,
		WinnerID:    winner.PlayerID,
		TotalPoints: winner.TotalPoints,
		RoundsWon:   winner.RoundsWon,
	})}, nil
}

// actionRoundLocked resolves the round a player action applies to.
func (m *Match) actionRoundLocked(p PlayerID) (*RoundState, error) {
	if m.state.Status == StatusFinished {
		return nil, ErrMatchFinished
	}
	if !m.state.Seated(p) {
		return nil, ErrNotFound
	}
	r := m.state.CurrentRound()
	if r == nil {
		return nil, ErrInvalidState("match not started")
	}
	return r, nil
}

func (m *Match) touchLocked() {
	m.state.Version++
	m.state.UpdatedAt = m.now()
}

// CurrentPlayer returns whose turn it is, if any.
func (m *Match) CurrentPlayer() (PlayerID, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r := m.state.CurrentRound()
	if r == nil || m.state.Status != StatusActive {
		return 0, false
	}
	return r.CurrentPlayer()
}

func (m *Match) Version() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.Version
}

func (m *Match) Finished() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.Status == StatusFinished
}

// Refund returns the entry fee of a match that was started but must be
// abandoned before anyone could play it.
func (m *Match) Refund(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.settle.Refund(ctx, m.state); err != nil {
		return err
	}
	m.touchLocked()
	return nil
}

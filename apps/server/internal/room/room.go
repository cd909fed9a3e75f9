package room

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"pokerdice/apps/server/internal/logger"
	"pokerdice/apps/server/internal/metrics"
	"pokerdice/apps/server/internal/store"
	"pokerdice/match"
)

// Room owns one live match. All mutations go through the events channel and
// are applied by a single goroutine, one at a time.
type Room struct {
	ID  string
	cfg Config

	mu       sync.RWMutex
	m        *match.Match
	repo     store.Repository
	pub      Publisher
	log      *zap.Logger
	closed   bool
	stopOnce sync.Once

	events chan Event
	done   chan struct{}

	// Turn timer, keyed by round so the same player starting the next round
	// gets a fresh deadline.
	turnRound    int
	turnPlayer   match.PlayerID
	turnDeadline time.Time

	retryAt          time.Time
	persistedVersion uint64
	finishedAt       time.Time

	gameEndHooks []GameEndHook
}

type Config struct {
	// TurnTimeout force-finishes a turn left open this long. 0 disables.
	TurnTimeout   time.Duration
	TickInterval  time.Duration
	RetryInterval time.Duration
}

const (
	defaultTickInterval  = 500 * time.Millisecond
	defaultRetryInterval = 2 * time.Second
	actionTimeout        = 5 * time.Second
)

func (c Config) withDefaults() Config {
	if c.TickInterval <= 0 {
		c.TickInterval = defaultTickInterval
	}
	if c.RetryInterval <= 0 {
		c.RetryInterval = defaultRetryInterval
	}
	return c
}

// Publisher receives every event batch in emission order.
type Publisher interface {
	Publish(matchID string, events []match.Event)
}

// EventType names the messages the room actor accepts.
type EventType int

const (
	EventRoll EventType = iota
	EventHold
	EventFinish
	EventLeave
	EventAdvance
	EventClose
)

func (t EventType) String() string {
	switch t {
	case EventRoll:
		return "roll"
	case EventHold:
		return "hold"
	case EventFinish:
		return "finish"
	case EventLeave:
		return "leave"
	case EventAdvance:
		return "advance"
	case EventClose:
		return "close"
	default:
		return fmt.Sprintf("event(%d)", int(t))
	}
}

// Event is a message to the room actor.
type Event struct {
	Type      EventType
	PlayerID  match.PlayerID
	Held      []int
	Timestamp time.Time
	Response  chan error
}

// GameEndInfo is passed to hooks once the final payout has been recorded.
type GameEndInfo struct {
	MatchID  string
	Event    match.Event
	Snapshot *match.MatchState
}

type GameEndHook func(info GameEndInfo)

var ErrRoomClosed = errors.New("room closed")

// New starts the actor for m. The caller must already have persisted m at its
// current version; later versions are saved by the room.
func New(m *match.Match, cfg Config, repo store.Repository, pub Publisher) *Room {
	snap := m.Snapshot()
	r := &Room{
		ID:               snap.ID,
		cfg:              cfg.withDefaults(),
		m:                m,
		repo:             repo,
		pub:              pub,
		log:              logger.With(zap.String("component", "room"), zap.String("match_id", snap.ID)),
		events:           make(chan Event, 64),
		done:             make(chan struct{}),
		persistedVersion: snap.Version,
	}
	r.syncTimersLocked(snap)
	metrics.MatchesActive.Inc()

	go r.run()

	r.log.Info("room started",
		zap.Int("players", len(snap.Players)),
		zap.Int("total_rounds", snap.TotalRounds),
		zap.Int("round", len(snap.Rounds)))
	return r
}

func (r *Room) run() {
	ticker := time.NewTicker(r.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case event := <-r.events:
			err := r.handleEvent(event)
			if event.Response != nil {
				event.Response <- err
			}
		case <-ticker.C:
			r.tick()
		case <-r.done:
			r.log.Debug("room actor stopped")
			return
		}
	}
}

func (r *Room) handleEvent(e Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed && e.Type != EventClose {
		return ErrRoomClosed
	}
	if e.Type == EventClose {
		r.stopLocked()
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), actionTimeout)
	defer cancel()

	started := time.Now()
	var (
		events []match.Event
		err    error
	)
	switch e.Type {
	case EventRoll:
		events, err = r.m.Roll(e.PlayerID, e.Held)
	case EventHold:
		err = r.m.Hold(e.PlayerID, e.Held)
	case EventFinish:
		events, err = r.m.FinishTurn(ctx, e.PlayerID)
	case EventLeave:
		events, err = r.m.Leave(ctx, e.PlayerID)
	case EventAdvance:
		events, err = r.m.Advance(ctx)
	default:
		return fmt.Errorf("unknown event type: %d", e.Type)
	}
	r.afterLocked(ctx, events, err)
	metrics.ObserveAction(e.Type.String(), started, err)
	if err != nil {
		r.log.Debug("action rejected",
			zap.Stringer("action", e.Type),
			zap.Uint64("player_id", uint64(e.PlayerID)),
			zap.Error(err))
	}
	return err
}

// afterLocked publishes, persists and rearms timers after any engine call,
// including failed ones that still produced events.
func (r *Room) afterLocked(ctx context.Context, events []match.Event, err error) {
	if len(events) > 0 {
		metrics.ObserveEvents(events)
		if r.pub != nil {
			r.pub.Publish(r.ID, events)
		}
	}
	if errors.Is(err, match.ErrSettlementFailed) {
		r.log.Warn("settlement failed, scheduling retry", zap.Error(err), zap.Duration("retry_in", r.cfg.RetryInterval))
	}

	snap := r.m.Snapshot()
	r.persistLocked(ctx, snap)
	r.syncTimersLocked(snap)

	for _, ev := range events {
		if ev.Type == match.EventGameEnded {
			r.dispatchGameEndHooks(ev, snap)
		}
	}
}

func (r *Room) persistLocked(ctx context.Context, snap *match.MatchState) {
	if r.repo == nil || snap.Version == r.persistedVersion {
		return
	}
	if err := r.repo.Save(ctx, snap); err != nil {
		if errors.Is(err, store.ErrStaleVersion) {
			// Someone else owns a newer copy. Stop trying to overwrite it.
			r.log.Error("stored snapshot is newer than room state", zap.Uint64("version", snap.Version))
			r.persistedVersion = snap.Version
			return
		}
		r.log.Warn("persist failed, will retry", zap.Uint64("version", snap.Version), zap.Error(err))
		return
	}
	r.persistedVersion = snap.Version
}

// syncTimersLocked derives the turn deadline and the settlement retry from
// the current state.
func (r *Room) syncTimersLocked(snap *match.MatchState) {
	if snap.Status == match.StatusFinished {
		r.clearTurnTimerLocked()
		r.retryAt = time.Time{}
		if r.finishedAt.IsZero() {
			r.finishedAt = time.Now()
		}
		return
	}
	cur := snap.CurrentRound()
	if cur == nil {
		r.clearTurnTimerLocked()
		return
	}

	if cur.Phase == match.PhaseInProgress {
		r.retryAt = time.Time{}
	} else if r.retryAt.IsZero() {
		r.retryAt = time.Now().Add(r.cfg.RetryInterval)
	}

	p, ok := cur.CurrentPlayer()
	if !ok {
		r.clearTurnTimerLocked()
		return
	}
	if p == r.turnPlayer && cur.Number == r.turnRound && !r.turnDeadline.IsZero() {
		return
	}
	r.turnRound = cur.Number
	r.turnPlayer = p
	if r.cfg.TurnTimeout > 0 {
		r.turnDeadline = time.Now().Add(r.cfg.TurnTimeout)
	}
}

func (r *Room) dispatchGameEndHooks(ev match.Event, snap *match.MatchState) {
	r.log.Info("match finished",
		zap.Uint64("winner_id", uint64(ev.WinnerID)),
		zap.Int("total_points", ev.TotalPoints),
		zap.Int("rounds_won", ev.RoundsWon))
	if len(r.gameEndHooks) == 0 {
		return
	}
	info := GameEndInfo{MatchID: r.ID, Event: ev, Snapshot: snap}
	hooks := append([]GameEndHook(nil), r.gameEndHooks...)
	for _, hook := range hooks {
		if hook == nil {
			continue
		}
		go func(cb GameEndHook) {
			defer func() {
				if rec := recover(); rec != nil {
					r.log.Error("game end hook panic", zap.Any("panic", rec))
				}
			}()
			cb(info)
		}(hook)
	}
}

func (r *Room) tick() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), actionTimeout)
	defer cancel()

	now := time.Now()
	if err := r.handleTimeoutLocked(ctx, now); err != nil {
		r.log.Warn("turn timeout handler failed", zap.Error(err))
	}
	if !r.retryAt.IsZero() && !now.Before(r.retryAt) {
		r.retryAt = time.Time{}
		started := time.Now()
		events, err := r.m.Advance(ctx)
		r.afterLocked(ctx, events, err)
		metrics.ObserveAction("retry", started, err)
	}
	// Saves that failed earlier.
	if v := r.m.Version(); v != r.persistedVersion {
		r.persistLocked(ctx, r.m.Snapshot())
	}
}

func (r *Room) handleTimeoutLocked(ctx context.Context, now time.Time) error {
	if r.turnDeadline.IsZero() || now.Before(r.turnDeadline) {
		return nil
	}
	player := r.turnPlayer
	r.clearTurnTimerLocked()

	cur, ok := r.m.CurrentPlayer()
	if !ok || cur != player {
		return nil
	}
	started := time.Now()
	forced, events, err := r.m.ForceFinishCurrent(ctx)
	r.log.Info("turn timed out", zap.Uint64("player_id", uint64(forced)), zap.Duration("timeout", r.cfg.TurnTimeout))
	r.afterLocked(ctx, events, err)
	metrics.ObserveAction("timeout", started, err)
	return err
}

func (r *Room) clearTurnTimerLocked() {
	r.turnRound = 0
	r.turnPlayer = 0
	r.turnDeadline = time.Time{}
}

// SubmitEvent hands e to the actor and waits for the result.
func (r *Room) SubmitEvent(ctx context.Context, e Event) error {
	e.Timestamp = time.Now()
	if e.Response == nil {
		e.Response = make(chan error, 1)
	}

	r.mu.RLock()
	closed := r.closed
	r.mu.RUnlock()
	if closed {
		return ErrRoomClosed
	}

	select {
	case r.events <- e:
	case <-r.done:
		return ErrRoomClosed
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-e.Response:
		return err
	case <-r.done:
		return ErrRoomClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Room) Roll(ctx context.Context, p match.PlayerID, held []int) error {
	return r.SubmitEvent(ctx, Event{Type: EventRoll, PlayerID: p, Held: held})
}

func (r *Room) Hold(ctx context.Context, p match.PlayerID, held []int) error {
	return r.SubmitEvent(ctx, Event{Type: EventHold, PlayerID: p, Held: held})
}

func (r *Room) Finish(ctx context.Context, p match.PlayerID) error {
	return r.SubmitEvent(ctx, Event{Type: EventFinish, PlayerID: p})
}

func (r *Room) Leave(ctx context.Context, p match.PlayerID) error {
	return r.SubmitEvent(ctx, Event{Type: EventLeave, PlayerID: p})
}

func (r *Room) Advance(ctx context.Context) error {
	return r.SubmitEvent(ctx, Event{Type: EventAdvance})
}

// Stop shuts down the actor. The match state stays in the repository.
func (r *Room) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stopLocked()
}

func (r *Room) stopLocked() {
	r.closed = true
	r.retryAt = time.Time{}
	r.clearTurnTimerLocked()
	r.stopOnce.Do(func() {
		close(r.done)
		metrics.MatchesActive.Dec()
		r.log.Info("room stopped")
	})
}

func (r *Room) IsClosed() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.closed
}

// IsIdleFor reports whether the match finished at least ttl ago.
func (r *Room) IsIdleFor(ttl time.Duration) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return true
	}
	if r.finishedAt.IsZero() {
		return false
	}
	return time.Since(r.finishedAt) >= ttl
}

// Snapshot returns a deep copy of the match state (thread-safe).
func (r *Room) Snapshot() *match.MatchState {
	return r.m.Snapshot()
}

func (r *Room) RoundScoreboard() *match.Scoreboard { return r.m.RoundScoreboard() }

func (r *Room) MatchScoreboard() *match.Scoreboard { return r.m.MatchScoreboard() }

// AddGameEndHook registers a callback run after the final payout.
func (r *Room) AddGameEndHook(hook GameEndHook) {
	if hook == nil {
		return
	}
	r.mu.Lock()
	r.gameEndHooks = append(r.gameEndHooks, hook)
	r.mu.Unlock()
}

package lobby

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"pokerdice/apps/server/internal/logger"
	"pokerdice/apps/server/internal/metrics"
	"pokerdice/apps/server/internal/room"
	"pokerdice/apps/server/internal/store"
	"pokerdice/match"
)

// Lobby creates matches and keeps one room per live match.
type Lobby struct {
	mu    sync.RWMutex
	rooms map[string]*room.Room

	cfg      Config
	balances match.BalanceStore
	repo     store.Repository
	pub      room.Publisher
	hooks    []room.GameEndHook
	log      *zap.Logger
	newID    func() string
}

type Config struct {
	Match match.Config
	Room  room.Config
	// MaxRounds caps TotalRounds on create. 0 means no cap.
	MaxRounds int
	// IdleTTL is how long a finished match keeps its room before Reap stops it.
	IdleTTL time.Duration
}

const defaultIdleTTL = 10 * time.Minute

// matchCloser is implemented by publishers that keep per-match subscribers.
type matchCloser interface {
	CloseMatch(matchID string)
}

func New(cfg Config, balances match.BalanceStore, repo store.Repository, pub room.Publisher) *Lobby {
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = defaultIdleTTL
	}
	return &Lobby{
		rooms:    make(map[string]*room.Room),
		cfg:      cfg,
		balances: balances,
		repo:     repo,
		pub:      pub,
		log:      logger.With(zap.String("component", "lobby")),
		newID:    uuid.NewString,
	}
}

// AddGameEndHook registers a hook on every room created afterwards.
func (l *Lobby) AddGameEndHook(hook room.GameEndHook) {
	if hook == nil {
		return
	}
	l.mu.Lock()
	l.hooks = append(l.hooks, hook)
	l.mu.Unlock()
}

// CreateMatch charges every player the entry cost, opens round 1 and starts a
// room. If the new match cannot be persisted the entry is refunded.
func (l *Lobby) CreateMatch(ctx context.Context, players []match.PlayerID, rounds int) (string, *match.MatchState, error) {
	if l.cfg.MaxRounds > 0 && rounds > l.cfg.MaxRounds {
		return "", nil, fmt.Errorf("%w: at most %d rounds", match.ErrInvalidRequest, l.cfg.MaxRounds)
	}
	id := l.newID()
	m, err := match.New(l.cfg.Match, id, players, rounds, l.balances)
	if err != nil {
		return "", nil, err
	}
	events, err := m.Start(ctx)
	if err != nil {
		return "", nil, err
	}
	snap := m.Snapshot()
	if err := l.repo.Save(ctx, snap); err != nil {
		if rerr := m.Refund(ctx); rerr != nil {
			l.log.Error("refund after failed save",
				zap.String("match_id", id), zap.Error(rerr), zap.NamedError("save_error", err))
		}
		return "", nil, fmt.Errorf("persist match %s: %w", id, err)
	}

	l.startRoom(m)
	metrics.MatchesCreated.Inc()
	metrics.ObserveEvents(events)
	if l.pub != nil {
		l.pub.Publish(id, events)
	}
	l.log.Info("match created",
		zap.String("match_id", id),
		zap.Int("players", len(players)),
		zap.Int("rounds", rounds))
	return id, snap, nil
}

func (l *Lobby) startRoom(m *match.Match) *room.Room {
	r := room.New(m, l.cfg.Room, l.repo, l.pub)

	l.mu.Lock()
	defer l.mu.Unlock()
	for _, hook := range l.hooks {
		r.AddGameEndHook(hook)
	}
	l.rooms[r.ID] = r
	return r
}

// Get returns the live room for a match.
func (l *Lobby) Get(id string) (*room.Room, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	r := l.rooms[id]
	if r == nil || r.IsClosed() {
		return nil, match.ErrNotFound
	}
	return r, nil
}

// Snapshot serves live rooms from memory and reaped ones from the repository.
func (l *Lobby) Snapshot(id string) (*match.MatchState, error) {
	if r, err := l.Get(id); err == nil {
		return r.Snapshot(), nil
	}
	st, err := l.repo.Load(context.Background(), id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, match.ErrNotFound
	}
	return st, err
}

func (l *Lobby) ListMatches() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	ids := make([]string, 0, len(l.rooms))
	for id := range l.rooms {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Recover restarts a room for every unfinished match in the repository. A
// match that fails to load is logged and skipped; the rest still come up.
func (l *Lobby) Recover(ctx context.Context) (int, error) {
	ids, err := l.repo.ListActive(ctx)
	if err != nil {
		return 0, err
	}
	var (
		recovered int
		errs      []error
	)
	for _, id := range ids {
		if _, err := l.Get(id); err == nil {
			continue
		}
		if err := l.recoverOne(ctx, id); err != nil {
			l.log.Error("recover match", zap.String("match_id", id), zap.Error(err))
			errs = append(errs, fmt.Errorf("match %s: %w", id, err))
			continue
		}
		recovered++
	}
	l.log.Info("recovery finished", zap.Int("active", len(ids)), zap.Int("recovered", recovered))
	return recovered, errors.Join(errs...)
}

func (l *Lobby) recoverOne(ctx context.Context, id string) error {
	st, err := l.repo.Load(ctx, id)
	if err != nil {
		return err
	}
	m, err := match.Restore(l.cfg.Match, st, l.balances)
	if err != nil {
		return err
	}
	if len(st.Rounds) == 0 {
		// Saved before the entry charge went through.
		if _, err := m.Start(ctx); err != nil {
			return err
		}
		if err := l.repo.Save(ctx, m.Snapshot()); err != nil {
			return err
		}
	}
	l.startRoom(m)
	return nil
}

// Reap stops rooms whose match finished more than IdleTTL ago and drops
// their subscribers.
func (l *Lobby) Reap() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	closer, _ := l.pub.(matchCloser)
	n := 0
	for id, r := range l.rooms {
		if !r.IsIdleFor(l.cfg.IdleTTL) {
			continue
		}
		r.Stop()
		delete(l.rooms, id)
		if closer != nil {
			closer.CloseMatch(id)
		}
		n++
	}
	if n > 0 {
		l.log.Info("reaped finished rooms", zap.Int("count", n), zap.Int("live", len(l.rooms)))
	}
	return n
}

// Run reaps idle rooms until ctx is done.
func (l *Lobby) Run(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			l.Reap()
		case <-ctx.Done():
			return
		}
	}
}

// Close stops every room. Match state stays in the repository.
func (l *Lobby) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	for id, r := range l.rooms {
		r.Stop()
		delete(l.rooms, id)
	}
}

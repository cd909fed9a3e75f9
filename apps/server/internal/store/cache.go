package store

import (
	"context"
	"errors"

	lru "github.com/hashicorp/golang-lru/v2"

	"pokerdice/match"
)

// Cached puts an LRU of recent snapshots in front of a slower repository.
// Entries are cloned on the way in and out.
type Cached struct {
	next  Repository
	cache *lru.Cache[string, *match.MatchState]
}

func NewCached(next Repository, size int) (*Cached, error) {
	cache, err := lru.New[string, *match.MatchState](size)
	if err != nil {
		return nil, err
	}
	return &Cached{next: next, cache: cache}, nil
}

func (c *Cached) Load(ctx context.Context, id string) (*match.MatchState, error) {
	if st, ok := c.cache.Get(id); ok {
		return st.Clone(), nil
	}
	st, err := c.next.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	c.cache.Add(id, st.Clone())
	return st, nil
}

func (c *Cached) Save(ctx context.Context, st *match.MatchState) error {
	if err := c.next.Save(ctx, st); err != nil {
		if errors.Is(err, ErrStaleVersion) {
			c.cache.Remove(st.ID)
		}
		return err
	}
	c.cache.Add(st.ID, st.Clone())
	return nil
}

func (c *Cached) ListActive(ctx context.Context) ([]string, error) {
	return c.next.ListActive(ctx)
}

func (c *Cached) Close() error {
	c.cache.Purge()
	return c.next.Close()
}

func (c *Cached) Len() int { return c.cache.Len() }

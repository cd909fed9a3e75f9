package store

import (
	"context"
	"errors"
	"sort"

	"github.com/redis/go-redis/v9"

	"pokerdice/apps/server/internal/codec"
	"pokerdice/match"
)

const (
	redisMatchPrefix = "pokerdice:match:"
	redisActiveSet   = "pokerdice:matches:active"
	redisSaveRetries = 5
)

type Redis struct {
	client *redis.Client
}

func NewRedis(ctx context.Context, addr, password string, db int) (*Redis, error) {
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return NewRedisWithClient(client), nil
}

func NewRedisWithClient(client *redis.Client) *Redis {
	return &Redis{client: client}
}

func (r *Redis) Load(ctx context.Context, id string) (*match.MatchState, error) {
	blob, err := r.client.Get(ctx, redisMatchPrefix+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return codec.DecodeMatch(blob)
}

// Save compares versions under WATCH so a slow writer cannot clobber a newer
// snapshot written by another process.
func (r *Redis) Save(ctx context.Context, st *match.MatchState) error {
	key := redisMatchPrefix + st.ID
	blob := codec.EncodeMatch(st)
	active := st.Status != match.StatusFinished

	txf := func(tx *redis.Tx) error {
		cur, err := tx.Get(ctx, key).Bytes()
		switch {
		case errors.Is(err, redis.Nil):
		case err != nil:
			return err
		default:
			prev, err := codec.DecodeMatch(cur)
			if err == nil && prev.Version > st.Version {
				return ErrStaleVersion
			}
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, blob, 0)
			if active {
				pipe.SAdd(ctx, redisActiveSet, st.ID)
			} else {
				pipe.SRem(ctx, redisActiveSet, st.ID)
			}
			return nil
		})
		return err
	}

	for i := 0; i < redisSaveRetries; i++ {
		err := r.client.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return redis.TxFailedErr
}

func (r *Redis) ListActive(ctx context.Context) ([]string, error) {
	ids, err := r.client.SMembers(ctx, redisActiveSet).Result()
	if err != nil {
		return nil, err
	}
	sort.Strings(ids)
	return ids, nil
}

func (r *Redis) Close() error {
	return r.client.Close()
}

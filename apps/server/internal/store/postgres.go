package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"pokerdice/apps/server/internal/codec"
	"pokerdice/match"
)

type Postgres struct {
	db *pgxpool.Pool
}

func NewPostgres(ctx context.Context, databaseURL string) (*Postgres, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, fmt.Errorf("empty database url")
	}
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	if _, err := pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS matches (
    id TEXT PRIMARY KEY,
    status SMALLINT NOT NULL,
    version BIGINT NOT NULL,
    snapshot BYTEA NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`); err != nil {
		pool.Close()
		return nil, err
	}
	if _, err := pool.Exec(ctx, `CREATE INDEX IF NOT EXISTS idx_matches_status ON matches(status)`); err != nil {
		pool.Close()
		return nil, err
	}
	return &Postgres{db: pool}, nil
}

func (r *Postgres) Load(ctx context.Context, id string) (*match.MatchState, error) {
	var blob []byte
	err := r.db.QueryRow(ctx, `SELECT snapshot FROM matches WHERE id = $1`, id).Scan(&blob)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return codec.DecodeMatch(blob)
}

func (r *Postgres) Save(ctx context.Context, st *match.MatchState) error {
	tag, err := r.db.Exec(ctx, `
INSERT INTO matches (id, status, version, snapshot, updated_at)
VALUES ($1, $2, $3, $4, NOW())
ON CONFLICT (id) DO UPDATE SET
    status = EXCLUDED.status,
    version = EXCLUDED.version,
    snapshot = EXCLUDED.snapshot,
    updated_at = NOW()
WHERE matches.version <= EXCLUDED.version`,
		st.ID, int16(st.Status), int64(st.Version), codec.EncodeMatch(st))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrStaleVersion
	}
	return nil
}

func (r *Postgres) ListActive(ctx context.Context) ([]string, error) {
	rows, err := r.db.Query(ctx, `SELECT id FROM matches WHERE status <> $1 ORDER BY id`, int16(match.StatusFinished))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *Postgres) Close() error {
	if r != nil && r.db != nil {
		r.db.Close()
	}
	return nil
}

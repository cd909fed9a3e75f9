package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"pokerdice/apps/server/internal/codec"
	"pokerdice/apps/server/internal/sqlitedb"
	"pokerdice/match"
)

type SQLite struct {
	db *sql.DB
}

func NewSQLite(ctx context.Context, dbPath string) (*SQLite, error) {
	db, err := sqlitedb.Open(dbPath)
	if err != nil {
		return nil, err
	}
	if _, err := db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS matches (
    id TEXT PRIMARY KEY,
    status INTEGER NOT NULL,
    version INTEGER NOT NULL,
    snapshot BLOB NOT NULL,
    updated_at_ms INTEGER NOT NULL
)`); err != nil {
		_ = db.Close()
		return nil, err
	}
	if _, err := db.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS idx_matches_status ON matches(status)`); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &SQLite{db: db}, nil
}

func (s *SQLite) Load(ctx context.Context, id string) (*match.MatchState, error) {
	var blob []byte
	err := s.db.QueryRowContext(ctx, `SELECT snapshot FROM matches WHERE id = ?`, id).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return codec.DecodeMatch(blob)
}

func (s *SQLite) Save(ctx context.Context, st *match.MatchState) error {
	res, err := s.db.ExecContext(ctx, `
INSERT INTO matches (id, status, version, snapshot, updated_at_ms)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT (id) DO UPDATE SET
    status = excluded.status,
    version = excluded.version,
    snapshot = excluded.snapshot,
    updated_at_ms = excluded.updated_at_ms
WHERE matches.version <= excluded.version`,
		st.ID, int(st.Status), int64(st.Version), codec.EncodeMatch(st), time.Now().UTC().UnixMilli())
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrStaleVersion
	}
	return nil
}

func (s *SQLite) ListActive(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM matches WHERE status <> ? ORDER BY id`, int(match.StatusFinished))
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

func (s *SQLite) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

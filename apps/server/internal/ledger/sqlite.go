package ledger

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"pokerdice/apps/server/internal/sqlitedb"
	"pokerdice/match"
)

type SQLiteService struct {
	db *sql.DB
}

func NewSQLiteService(dbPath string) (*SQLiteService, error) {
	db, err := sqlitedb.Open(dbPath)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := ensureSQLiteLedgerSchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &SQLiteService{db: db}, nil
}

func (s *SQLiteService) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteService) Debit(ctx context.Context, players []match.PlayerID, amount int64, memo match.Memo) error {
	ordered, err := validateDebit(players, amount)
	if err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, p := range ordered {
		var bal int64
		err := tx.QueryRowContext(ctx, `SELECT balance FROM ledger_accounts WHERE player_id = ?`, int64(p)).Scan(&bal)
		if errors.Is(err, sql.ErrNoRows) {
			return &InsufficientBalanceError{PlayerID: p, Balance: 0, Needed: amount}
		}
		if err != nil {
			return err
		}
		if bal < amount {
			return &InsufficientBalanceError{PlayerID: p, Balance: bal, Needed: amount}
		}
	}
	for _, p := range ordered {
		if err := sqliteApply(ctx, tx, p, -amount, memo); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *SQLiteService) Credit(ctx context.Context, player match.PlayerID, amount int64, memo match.Memo) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := sqliteApply(ctx, tx, player, amount, memo); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQLiteService) Grant(ctx context.Context, player match.PlayerID, amount int64) error {
	return s.Credit(ctx, player, amount, match.Memo{Kind: KindGrant})
}

func (s *SQLiteService) Balance(ctx context.Context, player match.PlayerID) (int64, error) {
	var bal int64
	err := s.db.QueryRowContext(ctx, `SELECT balance FROM ledger_accounts WHERE player_id = ?`, int64(player)).Scan(&bal)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNotFound
	}
	return bal, err
}

func (s *SQLiteService) Entries(ctx context.Context, player match.PlayerID, limit int) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, player_id, delta, balance_after, match_id, kind, round_no, created_at_ms
FROM ledger_entries
WHERE player_id = ?
ORDER BY id DESC
LIMIT ?`, int64(player), clampLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Entry{}
	for rows.Next() {
		var (
			e         Entry
			pid       int64
			kind      string
			createdMs int64
		)
		if err := rows.Scan(&e.ID, &pid, &e.Delta, &e.BalanceAfter, &e.MatchID, &kind, &e.Round, &createdMs); err != nil {
			return nil, err
		}
		e.PlayerID = match.PlayerID(pid)
		e.Kind = match.MemoKind(kind)
		e.CreatedAt = time.UnixMilli(createdMs).UTC()
		out = append(out, e)
	}
	return out, rows.Err()
}

func sqliteApply(ctx context.Context, tx *sql.Tx, p match.PlayerID, delta int64, memo match.Memo) error {
	nowMs := time.Now().UTC().UnixMilli()
	var after int64
	err := tx.QueryRowContext(ctx, `
INSERT INTO ledger_accounts (player_id, balance, updated_at_ms)
VALUES (?, ?, ?)
ON CONFLICT (player_id) DO UPDATE SET
    balance = ledger_accounts.balance + excluded.balance,
    updated_at_ms = excluded.updated_at_ms
RETURNING balance`, int64(p), delta, nowMs).Scan(&after)
	if err != nil {
		return err
	}
	if after < 0 {
		return &InsufficientBalanceError{PlayerID: p, Balance: after - delta, Needed: -delta}
	}
	_, err = tx.ExecContext(ctx, `
INSERT INTO ledger_entries (player_id, delta, balance_after, match_id, kind, round_no, created_at_ms)
VALUES (?, ?, ?, ?, ?, ?, ?)`, int64(p), delta, after, memo.MatchID, string(memo.Kind), memo.Round, nowMs)
	return err
}

func ensureSQLiteLedgerSchema(ctx context.Context, db *sql.DB) error {
	statements := []string{
		`
CREATE TABLE IF NOT EXISTS ledger_accounts (
    player_id INTEGER PRIMARY KEY,
    balance INTEGER NOT NULL DEFAULT 0,
    updated_at_ms INTEGER NOT NULL
)`,
		`
CREATE TABLE IF NOT EXISTS ledger_entries (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    player_id INTEGER NOT NULL,
    delta INTEGER NOT NULL,
    balance_after INTEGER NOT NULL,
    match_id TEXT NOT NULL DEFAULT '',
    kind TEXT NOT NULL,
    round_no INTEGER NOT NULL DEFAULT 0,
    created_at_ms INTEGER NOT NULL
)`,
		`CREATE INDEX IF NOT EXISTS idx_ledger_entries_player ON ledger_entries(player_id, id DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_ledger_entries_match ON ledger_entries(match_id, kind, round_no)`,
	}
	for _, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

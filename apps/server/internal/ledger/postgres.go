package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"pokerdice/match"
)

type PostgresService struct {
	db *sql.DB
}

func NewPostgresService(dsn string) (*PostgresService, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("empty ledger dsn")
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := ensurePostgresLedgerSchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &PostgresService{db: db}, nil
}

func (s *PostgresService) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Debit locks every named account row in id order, checks all balances, then
// applies all debits in the same transaction.
func (s *PostgresService) Debit(ctx context.Context, players []match.PlayerID, amount int64, memo match.Memo) error {
	ordered, err := validateDebit(players, amount)
	if err != nil {
		return err
	}
	ids := make([]int64, len(ordered))
	for i, p := range ordered {
		ids[i] = int64(p)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, `
SELECT player_id, balance
FROM ledger_accounts
WHERE player_id = ANY($1)
ORDER BY player_id
FOR UPDATE`, pq.Array(ids))
	if err != nil {
		return err
	}
	balances := make(map[match.PlayerID]int64, len(ids))
	for rows.Next() {
		var pid, bal int64
		if err := rows.Scan(&pid, &bal); err != nil {
			rows.Close()
			return err
		}
		balances[match.PlayerID(pid)] = bal
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	for _, p := range ordered {
		if bal := balances[p]; bal < amount {
			return &InsufficientBalanceError{PlayerID: p, Balance: bal, Needed: amount}
		}
	}
	for _, p := range ordered {
		if err := postgresApply(ctx, tx, p, -amount, memo); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *PostgresService) Credit(ctx context.Context, player match.PlayerID, amount int64, memo match.Memo) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := postgresApply(ctx, tx, player, amount, memo); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *PostgresService) Grant(ctx context.Context, player match.PlayerID, amount int64) error {
	return s.Credit(ctx, player, amount, match.Memo{Kind: KindGrant})
}

func (s *PostgresService) Balance(ctx context.Context, player match.PlayerID) (int64, error) {
	var bal int64
	err := s.db.QueryRowContext(ctx, `SELECT balance FROM ledger_accounts WHERE player_id = $1`, int64(player)).Scan(&bal)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNotFound
	}
	return bal, err
}

func (s *PostgresService) Entries(ctx context.Context, player match.PlayerID, limit int) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, player_id, delta, balance_after, match_id, kind, round_no, created_at
FROM ledger_entries
WHERE player_id = $1
ORDER BY id DESC
LIMIT $2`, int64(player), clampLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Entry{}
	for rows.Next() {
		var (
			e    Entry
			pid  int64
			kind string
		)
		if err := rows.Scan(&e.ID, &pid, &e.Delta, &e.BalanceAfter, &e.MatchID, &kind, &e.Round, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.PlayerID = match.PlayerID(pid)
		e.Kind = match.MemoKind(kind)
		out = append(out, e)
	}
	return out, rows.Err()
}

func postgresApply(ctx context.Context, tx *sql.Tx, p match.PlayerID, delta int64, memo match.Memo) error {
	var after int64
	err := tx.QueryRowContext(ctx, `
INSERT INTO ledger_accounts (player_id, balance, updated_at)
VALUES ($1, $2, NOW())
ON CONFLICT (player_id) DO UPDATE SET
    balance = ledger_accounts.balance + EXCLUDED.balance,
    updated_at = NOW()
RETURNING balance`, int64(p), delta).Scan(&after)
	if err != nil {
		var pqErr *pq.Error
		// check_violation on balance >= 0
		if errors.As(err, &pqErr) && pqErr.Code == "23514" {
			return &InsufficientBalanceError{PlayerID: p, Needed: -delta}
		}
		return err
	}
	_, err = tx.ExecContext(ctx, `
INSERT INTO ledger_entries (player_id, delta, balance_after, match_id, kind, round_no)
VALUES ($1, $2, $3, $4, $5, $6)`, int64(p), delta, after, memo.MatchID, string(memo.Kind), memo.Round)
	return err
}

func ensurePostgresLedgerSchema(ctx context.Context, db *sql.DB) error {
	statements := []string{
		`
CREATE TABLE IF NOT EXISTS ledger_accounts (
    player_id BIGINT PRIMARY KEY,
    balance BIGINT NOT NULL DEFAULT 0 CHECK (balance >= 0),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`,
		`
CREATE TABLE IF NOT EXISTS ledger_entries (
    id BIGSERIAL PRIMARY KEY,
    player_id BIGINT NOT NULL,
    delta BIGINT NOT NULL,
    balance_after BIGINT NOT NULL,
    match_id TEXT NOT NULL DEFAULT '',
    kind TEXT NOT NULL,
    round_no INTEGER NOT NULL DEFAULT 0,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
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

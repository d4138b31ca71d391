package wallet

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/nmelo/sentinel/internal/idgen"
)

// PostgresStore persists wallet state in PostgreSQL.
// Schema lives in migrations/ (wallet_balances, wallet_holds, wallet_entries).
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgreSQL-backed wallet store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) GetBalance(ctx context.Context, userID string) (*Balance, error) {
	var b Balance
	err := s.db.QueryRowContext(ctx, `
		SELECT user_id, available, held, updated_at
		FROM wallet_balances WHERE user_id = $1
	`, userID).Scan(&b.UserID, &b.Available, &b.Held, &b.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return &Balance{UserID: userID, UpdatedAt: time.Now()}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get balance: %w", err)
	}
	return &b, nil
}

// adjust applies available/held deltas atomically and appends a ledger entry.
func (s *PostgresStore) adjust(ctx context.Context, userID string, availDelta, heldDelta float64, typ, reference string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO wallet_balances (user_id, available, held, updated_at)
		VALUES ($1, 0, 0, NOW())
		ON CONFLICT (user_id) DO NOTHING
	`, userID)
	if err != nil {
		return fmt.Errorf("ensure balance row: %w", err)
	}

	// The guards reject over-draws atomically: a delta that would push
	// available or held negative matches zero rows.
	res, err := tx.ExecContext(ctx, `
		UPDATE wallet_balances
		SET available = available + $2, held = held + $3, updated_at = NOW()
		WHERE user_id = $1 AND available + $2 >= 0 AND held + $3 >= 0
	`, userID, availDelta, heldDelta)
	if err != nil {
		return fmt.Errorf("adjust balance: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrInsufficientFunds
	}

	amount := availDelta
	if amount < 0 {
		amount = -amount
	}
	if amount == 0 {
		amount = heldDelta
		if amount < 0 {
			amount = -amount
		}
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO wallet_entries (id, user_id, type, amount, reference, created_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
	`, idgen.WithPrefix("le_"), userID, typ, amount, reference)
	if err != nil {
		return fmt.Errorf("append entry: %w", err)
	}

	return tx.Commit()
}

func (s *PostgresStore) Credit(ctx context.Context, userID string, amount float64, reference string) error {
	return s.adjust(ctx, userID, amount, 0, "credit", reference)
}

func (s *PostgresStore) Debit(ctx context.Context, userID string, amount float64, reference string) error {
	return s.adjust(ctx, userID, -amount, 0, "debit", reference)
}

func (s *PostgresStore) MoveToHeld(ctx context.Context, userID string, amount float64, reference string) error {
	return s.adjust(ctx, userID, -amount, amount, "hold", reference)
}

func (s *PostgresStore) SettleHeld(ctx context.Context, userID string, amount float64, reference string) error {
	return s.adjust(ctx, userID, 0, -amount, "settle", reference)
}

func (s *PostgresStore) CreateHold(ctx context.Context, hold *Hold) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO wallet_holds (id, user_id, recipient_id, amount, reference, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, hold.ID, hold.UserID, nullable(hold.RecipientID), hold.Amount, hold.Reference, string(hold.Status), hold.CreatedAt)
	if err != nil {
		return fmt.Errorf("create hold: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetHold(ctx context.Context, id string) (*Hold, error) {
	return s.scanHold(s.db.QueryRowContext(ctx, `
		SELECT id, user_id, recipient_id, amount, reference, status, created_at, resolved_at
		FROM wallet_holds WHERE id = $1
	`, id))
}

func (s *PostgresStore) GetHoldByReference(ctx context.Context, reference string) (*Hold, error) {
	return s.scanHold(s.db.QueryRowContext(ctx, `
		SELECT id, user_id, recipient_id, amount, reference, status, created_at, resolved_at
		FROM wallet_holds WHERE reference = $1
	`, reference))
}

func (s *PostgresStore) scanHold(row *sql.Row) (*Hold, error) {
	var h Hold
	var recipient sql.NullString
	var resolvedAt sql.NullTime
	err := row.Scan(&h.ID, &h.UserID, &recipient, &h.Amount, &h.Reference, &h.Status, &h.CreatedAt, &resolvedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrHoldNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan hold: %w", err)
	}
	h.RecipientID = recipient.String
	if resolvedAt.Valid {
		h.ResolvedAt = &resolvedAt.Time
	}
	return &h, nil
}

func (s *PostgresStore) UpdateHold(ctx context.Context, hold *Hold) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE wallet_holds SET status = $2, resolved_at = $3 WHERE id = $1
	`, hold.ID, string(hold.Status), hold.ResolvedAt)
	if err != nil {
		return fmt.Errorf("update hold: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrHoldNotFound
	}
	return nil
}

func (s *PostgresStore) History(ctx context.Context, userID string, limit int) ([]*Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, type, amount, reference, created_at
		FROM wallet_entries
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var result []*Entry
	for rows.Next() {
		var e Entry
		var ref sql.NullString
		if err := rows.Scan(&e.ID, &e.UserID, &e.Type, &e.Amount, &ref, &e.CreatedAt); err != nil {
			continue
		}
		e.Reference = ref.String
		result = append(result, &e)
	}
	return result, rows.Err()
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

package appeals

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
)

// PostgresStore persists appeals in PostgreSQL. Schema lives in
// migrations/ (appeals, with a unique index on fraud_log_id).
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgreSQL-backed appeal store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const appealColumns = `
	id, fraud_log_id, user_id, reason, status,
	reviewed_by, review_notes, created_at, resolved_at`

func (s *PostgresStore) Create(ctx context.Context, appeal *Appeal) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO appeals (`+appealColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, appeal.ID, appeal.FraudLogID, appeal.UserID, appeal.Reason, string(appeal.Status),
		nullString(appeal.ReviewedBy), nullString(appeal.ReviewNotes),
		appeal.CreatedAt, appeal.ResolvedAt)
	if err != nil {
		// The unique index on fraud_log_id enforces one appeal per log.
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("insert appeal: %w", err)
	}
	return nil
}

// isUniqueViolation reports whether err is a Postgres unique_violation
// (SQLSTATE 23505), however it is wrapped.
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*Appeal, error) {
	return s.scan(s.db.QueryRowContext(ctx,
		`SELECT `+appealColumns+` FROM appeals WHERE id = $1`, id))
}

func (s *PostgresStore) GetByFraudLog(ctx context.Context, fraudLogID string) (*Appeal, error) {
	return s.scan(s.db.QueryRowContext(ctx,
		`SELECT `+appealColumns+` FROM appeals WHERE fraud_log_id = $1`, fraudLogID))
}

func (s *PostgresStore) scan(row *sql.Row) (*Appeal, error) {
	var a Appeal
	var reviewedBy, notes sql.NullString
	var resolvedAt sql.NullTime
	err := row.Scan(&a.ID, &a.FraudLogID, &a.UserID, &a.Reason, &a.Status,
		&reviewedBy, &notes, &a.CreatedAt, &resolvedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrAppealNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan appeal: %w", err)
	}
	a.ReviewedBy = reviewedBy.String
	a.ReviewNotes = notes.String
	if resolvedAt.Valid {
		a.ResolvedAt = &resolvedAt.Time
	}
	return &a, nil
}

func (s *PostgresStore) Update(ctx context.Context, appeal *Appeal) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE appeals SET status = $2, reviewed_by = $3, review_notes = $4, resolved_at = $5
		WHERE id = $1
	`, appeal.ID, string(appeal.Status), nullString(appeal.ReviewedBy),
		nullString(appeal.ReviewNotes), appeal.ResolvedAt)
	if err != nil {
		return fmt.Errorf("update appeal: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrAppealNotFound
	}
	return nil
}

func (s *PostgresStore) ListByStatus(ctx context.Context, status Status, limit int) ([]*Appeal, error) {
	return s.list(ctx, `
		SELECT `+appealColumns+` FROM appeals
		WHERE status = $1 ORDER BY created_at ASC LIMIT $2
	`, string(status), limit)
}

func (s *PostgresStore) ListByUser(ctx context.Context, userID string, limit int) ([]*Appeal, error) {
	return s.list(ctx, `
		SELECT `+appealColumns+` FROM appeals
		WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2
	`, userID, limit)
}

func (s *PostgresStore) list(ctx context.Context, query string, args ...any) ([]*Appeal, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list appeals: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var result []*Appeal
	for rows.Next() {
		var a Appeal
		var reviewedBy, notes sql.NullString
		var resolvedAt sql.NullTime
		if err := rows.Scan(&a.ID, &a.FraudLogID, &a.UserID, &a.Reason, &a.Status,
			&reviewedBy, &notes, &a.CreatedAt, &resolvedAt); err != nil {
			return nil, err
		}
		a.ReviewedBy = reviewedBy.String
		a.ReviewNotes = notes.String
		if resolvedAt.Valid {
			a.ResolvedAt = &resolvedAt.Time
		}
		result = append(result, &a)
	}
	return result, rows.Err()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

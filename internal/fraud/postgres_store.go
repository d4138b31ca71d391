package fraud

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// PostgresStore persists fraud logs in PostgreSQL. Schema lives in
// migrations/ (fraud_logs).
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgreSQL-backed fraud log store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const logColumns = `
	id, transaction_id, user_id, recipient_id, amount, type,
	base_score, severity_multiplier, count_multiplier, rules_score,
	final_score, risk_level, action, triggered, advisor,
	status, hold_id, release_source, resolved_by, resolved_at,
	ground_truth, ground_truth_by, ground_truth_at, appeal_status, created_at`

func (s *PostgresStore) Create(ctx context.Context, log *FraudLog) error {
	triggered, err := json.Marshal(log.Triggered)
	if err != nil {
		return fmt.Errorf("marshal triggers: %w", err)
	}
	var adv []byte
	if log.Advisor != nil {
		if adv, err = json.Marshal(log.Advisor); err != nil {
			return fmt.Errorf("marshal advisor summary: %w", err)
		}
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO fraud_logs (`+logColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13,
		        $14, $15, $16, $17, $18, $19, $20, $21, $22, $23, $24, $25)
	`,
		log.ID, nullString(log.TransactionID), log.UserID, nullString(log.RecipientID),
		log.Amount, log.Type,
		log.Assessment.BaseScore, log.Assessment.SeverityMultiplier,
		log.Assessment.CountMultiplier, log.Assessment.RulesScore,
		log.Assessment.FinalScore, string(log.Assessment.RiskLevel),
		string(log.Assessment.Action), triggered, nullBytes(adv),
		string(log.Status), nullString(log.HoldID), nullString(log.ReleaseSource),
		nullString(log.ResolvedBy), log.ResolvedAt,
		nullString(string(log.GroundTruth)), nullString(log.GroundTruthBy),
		log.GroundTruthAt, string(log.AppealStatus), log.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert fraud log: %w", err)
	}
	return nil
}

func (s *PostgresStore) Update(ctx context.Context, log *FraudLog) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE fraud_logs SET
			status = $2, hold_id = $3, release_source = $4,
			resolved_by = $5, resolved_at = $6,
			ground_truth = $7, ground_truth_by = $8, ground_truth_at = $9,
			appeal_status = $10
		WHERE id = $1
	`,
		log.ID, string(log.Status), nullString(log.HoldID), nullString(log.ReleaseSource),
		nullString(log.ResolvedBy), log.ResolvedAt,
		nullString(string(log.GroundTruth)), nullString(log.GroundTruthBy),
		log.GroundTruthAt, string(log.AppealStatus),
	)
	if err != nil {
		return fmt.Errorf("update fraud log: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrLogNotFound
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*FraudLog, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+logColumns+` FROM fraud_logs WHERE id = $1`, id)
	log, err := scanLog(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrLogNotFound
	}
	return log, err
}

func (s *PostgresStore) ListByUser(ctx context.Context, userID string, limit int) ([]*FraudLog, error) {
	return s.list(ctx, `
		SELECT `+logColumns+` FROM fraud_logs
		WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2
	`, userID, limit)
}

func (s *PostgresStore) ListByStatus(ctx context.Context, status Status, limit int) ([]*FraudLog, error) {
	return s.list(ctx, `
		SELECT `+logColumns+` FROM fraud_logs
		WHERE status = $1 ORDER BY created_at ASC LIMIT $2
	`, string(status), limit)
}

func (s *PostgresStore) ListPendingOlderThan(ctx context.Context, before time.Time, limit int) ([]*FraudLog, error) {
	return s.list(ctx, `
		SELECT `+logColumns+` FROM fraud_logs
		WHERE status = $1 AND created_at < $2
		ORDER BY created_at ASC LIMIT $3
	`, string(StatusPendingReview), before, limit)
}

func (s *PostgresStore) ListVerified(ctx context.Context) ([]*FraudLog, error) {
	return s.list(ctx, `
		SELECT `+logColumns+` FROM fraud_logs
		WHERE ground_truth IS NOT NULL ORDER BY created_at DESC
	`)
}

func (s *PostgresStore) ListRecent(ctx context.Context, limit int) ([]*FraudLog, error) {
	return s.list(ctx, `
		SELECT `+logColumns+` FROM fraud_logs
		ORDER BY created_at DESC LIMIT $1
	`, limit)
}

func (s *PostgresStore) list(ctx context.Context, query string, args ...any) ([]*FraudLog, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list fraud logs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var result []*FraudLog
	for rows.Next() {
		log, err := scanLog(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, log)
	}
	return result, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanLog(row scanner) (*FraudLog, error) {
	var log FraudLog
	var txID, recipient, holdID, source, resolvedBy, truth, truthBy, riskLevel, action sql.NullString
	var resolvedAt, truthAt sql.NullTime
	var triggered, adv []byte

	err := row.Scan(
		&log.ID, &txID, &log.UserID, &recipient, &log.Amount, &log.Type,
		&log.Assessment.BaseScore, &log.Assessment.SeverityMultiplier,
		&log.Assessment.CountMultiplier, &log.Assessment.RulesScore,
		&log.Assessment.FinalScore, &riskLevel, &action, &triggered, &adv,
		&log.Status, &holdID, &source, &resolvedBy, &resolvedAt,
		&truth, &truthBy, &truthAt, &log.AppealStatus, &log.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	log.TransactionID = txID.String
	log.RecipientID = recipient.String
	log.Assessment.RiskLevel = RiskLevel(riskLevel.String)
	log.Assessment.Action = Action(action.String)
	log.HoldID = holdID.String
	log.ReleaseSource = source.String
	log.ResolvedBy = resolvedBy.String
	log.GroundTruth = GroundTruth(truth.String)
	log.GroundTruthBy = truthBy.String
	if resolvedAt.Valid {
		log.ResolvedAt = &resolvedAt.Time
	}
	if truthAt.Valid {
		log.GroundTruthAt = &truthAt.Time
	}
	if len(triggered) > 0 {
		if err := json.Unmarshal(triggered, &log.Triggered); err != nil {
			return nil, fmt.Errorf("unmarshal triggers: %w", err)
		}
	}
	if len(adv) > 0 {
		log.Advisor = &AdvisorSummary{}
		if err := json.Unmarshal(adv, log.Advisor); err != nil {
			return nil, fmt.Errorf("unmarshal advisor summary: %w", err)
		}
	}
	return &log, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullBytes(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return b
}

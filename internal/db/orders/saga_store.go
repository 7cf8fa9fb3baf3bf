package ordersdb

import (
	"context"
	"database/sql"
	"time"

	"booksaga/internal/orders/saga"
)

// StepRecord is one journaled step outcome.
type StepRecord struct {
	SagaID    string
	Step      string
	Status    saga.StepStatus
	Detail    string
	CreatedAt time.Time
}

// SagaJournal persists saga step outcomes in Postgres.
type SagaJournal struct {
	db *sql.DB
}

// NewSagaJournal constructs a SagaJournal backed by Postgres.
func NewSagaJournal(db *sql.DB) *SagaJournal {
	return &SagaJournal{db: db}
}

// NewSagaJournalWithSchema initializes the schema then returns the journal.
func NewSagaJournalWithSchema(ctx context.Context, db *sql.DB) (*SagaJournal, error) {
	journal := NewSagaJournal(db)
	if err := journal.InitSchema(ctx); err != nil {
		return nil, err
	}
	return journal, nil
}

// InitSchema creates the saga_steps table if it does not exist.
func (s *SagaJournal) InitSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS saga_steps (
			id BIGSERIAL PRIMARY KEY,
			saga_id TEXT NOT NULL,
			step TEXT NOT NULL,
			status TEXT NOT NULL,
			detail TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS saga_steps_saga_id_idx ON saga_steps (saga_id, id)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}

	return nil
}

// AddStep appends a saga step row.
func (s *SagaJournal) AddStep(ctx context.Context, sagaID, step string, status saga.StepStatus, detail string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO saga_steps (saga_id, step, status, detail)
		VALUES ($1, $2, $3, $4)`,
		sagaID, step, string(status), detail,
	)
	return err
}

// Steps returns the journaled steps of a saga in insertion order.
func (s *SagaJournal) Steps(ctx context.Context, sagaID string) ([]StepRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT saga_id, step, status, COALESCE(detail, ''), created_at
		FROM saga_steps
		WHERE saga_id = $1
		ORDER BY id`,
		sagaID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []StepRecord
	for rows.Next() {
		var rec StepRecord
		var status string
		if err := rows.Scan(&rec.SagaID, &rec.Step, &status, &rec.Detail, &rec.CreatedAt); err != nil {
			return nil, err
		}
		rec.Status = saga.StepStatus(status)
		out = append(out, rec)
	}
	return out, rows.Err()
}

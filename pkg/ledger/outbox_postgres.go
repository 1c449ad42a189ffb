package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/solarcommand/outreach/pkg/contracts"

	_ "github.com/lib/pq"
)

// PostgresOutbox is a fleet-shared pending-attempt queue. Workers on
// different machines schedule into and drain from the same table; the
// idempotent INSERT makes double-scheduling harmless.
//
// The local SQLite ledger remains the source of truth for attempt state;
// the outbox only carries the work queue.
type PostgresOutbox struct {
	db *sql.DB
}

// OpenPostgresOutbox connects to the shared queue database.
func OpenPostgresOutbox(url string) (*PostgresOutbox, error) {
	db, err := sql.Open("postgres", url)
	if err != nil {
		return nil, fmt.Errorf("open outbox database: %w", err)
	}
	o := &PostgresOutbox{db: db}
	if err := o.migrate(); err != nil {
		return nil, err
	}
	return o, nil
}

// NewPostgresOutbox wraps an existing handle and runs migrations.
func NewPostgresOutbox(db *sql.DB) (*PostgresOutbox, error) {
	o := &PostgresOutbox{db: db}
	if err := o.migrate(); err != nil {
		return nil, err
	}
	return o, nil
}

func (o *PostgresOutbox) migrate() error {
	query := `
	CREATE TABLE IF NOT EXISTS attempt_outbox (
		attempt_id TEXT PRIMARY KEY,
		lead_id TEXT NOT NULL,
		channel TEXT NOT NULL,
		scheduled_at TIMESTAMPTZ NOT NULL,
		status TEXT NOT NULL DEFAULT 'PENDING',
		completed_at TIMESTAMPTZ
	);
	CREATE INDEX IF NOT EXISTS ix_outbox_pending ON attempt_outbox(status, scheduled_at);`
	_, err := o.db.ExecContext(context.Background(), query)
	if err != nil {
		return fmt.Errorf("outbox migration: %w", err)
	}
	return nil
}

// Schedule enqueues an attempt. The attempt id is the idempotency key:
// scheduling the same attempt twice is a no-op.
func (o *PostgresOutbox) Schedule(ctx context.Context, attempt *contracts.OutreachAttempt) error {
	_, err := o.db.ExecContext(ctx, `
		INSERT INTO attempt_outbox (attempt_id, lead_id, channel, scheduled_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (attempt_id) DO NOTHING`,
		attempt.ID, attempt.LeadID, string(attempt.Channel), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("schedule attempt %s: %w", attempt.ID, err)
	}
	return nil
}

// Pending returns queued attempt ids, oldest first.
func (o *PostgresOutbox) Pending(ctx context.Context, limit int) ([]string, error) {
	rows, err := o.db.QueryContext(ctx, `
		SELECT attempt_id FROM attempt_outbox
		WHERE status = 'PENDING'
		ORDER BY scheduled_at ASC
		LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Complete marks an attempt done once its terminal disposition is durably
// written to the ledger. Completing twice is harmless.
func (o *PostgresOutbox) Complete(ctx context.Context, attemptID string) error {
	_, err := o.db.ExecContext(ctx, `
		UPDATE attempt_outbox SET status = 'DONE', completed_at = $1
		WHERE attempt_id = $2 AND status = 'PENDING'`,
		time.Now().UTC(), attemptID)
	if err != nil {
		return fmt.Errorf("complete attempt %s: %w", attemptID, err)
	}
	return nil
}

// Close releases the database handle.
func (o *PostgresOutbox) Close() error { return o.db.Close() }

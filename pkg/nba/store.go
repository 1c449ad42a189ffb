package nba

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/solarcommand/outreach/pkg/contracts"

	_ "modernc.org/sqlite"
)

// ReasoningRun is the audit record of one external reasoning call:
// input fingerprint, model, cost, latency, and full output.
type ReasoningRun struct {
	ID            string    `json:"id"`
	LeadID        string    `json:"lead_id"`
	TaskType      string    `json:"task_type"`
	Model         string    `json:"model"`
	PromptVersion string    `json:"prompt_version"`
	InputHash     string    `json:"input_hash"`
	Output        string    `json:"output,omitempty"`
	TokensIn      int       `json:"tokens_in"`
	TokensOut     int       `json:"tokens_out"`
	CostUSD       float64   `json:"cost_usd"`
	LatencyMS     int       `json:"latency_ms"`
	Status        string    `json:"status"` // success | error
	Error         string    `json:"error,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// Store persists decisions and reasoning runs. Decisions are immutable:
// the only writes are inserts and the applied flag.
type Store struct {
	db *sql.DB
}

// NewStore wraps an opened database and runs migrations.
func NewStore(db *sql.DB) (*Store, error) {
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS nba_decision (
			id TEXT PRIMARY KEY,
			lead_id TEXT NOT NULL,
			recommended_action TEXT NOT NULL,
			recommended_channel TEXT NOT NULL DEFAULT '',
			schedule_time DATETIME,
			reason_codes TEXT NOT NULL DEFAULT '[]',
			confidence REAL NOT NULL DEFAULT 0,
			model TEXT NOT NULL DEFAULT '',
			applied INTEGER NOT NULL DEFAULT 0,
			applied_at DATETIME,
			expires_at DATETIME NOT NULL,
			created_at DATETIME NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS ix_nba_lead ON nba_decision(lead_id, created_at);`,
		`CREATE INDEX IF NOT EXISTS ix_nba_expires ON nba_decision(expires_at);`,
		`CREATE TABLE IF NOT EXISTS reasoning_run (
			id TEXT PRIMARY KEY,
			lead_id TEXT NOT NULL,
			task_type TEXT NOT NULL,
			model TEXT NOT NULL,
			prompt_version TEXT NOT NULL,
			input_hash TEXT NOT NULL,
			output TEXT NOT NULL DEFAULT '',
			tokens_in INTEGER NOT NULL DEFAULT 0,
			tokens_out INTEGER NOT NULL DEFAULT 0,
			cost_usd REAL NOT NULL DEFAULT 0,
			latency_ms INTEGER NOT NULL DEFAULT 0,
			status TEXT NOT NULL,
			error TEXT NOT NULL DEFAULT '',
			created_at DATETIME NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS ix_run_lead ON reasoning_run(lead_id, created_at);`,
	}
	for _, q := range stmts {
		if _, err := s.db.ExecContext(context.Background(), q); err != nil {
			return fmt.Errorf("nba migration: %w", err)
		}
	}
	return nil
}

// Insert persists a new decision. A missing ID is generated; the struct
// is returned for convenience.
func (s *Store) Insert(ctx context.Context, d *contracts.NBADecision) (*contracts.NBADecision, error) {
	if d.ID == "" {
		d.ID = uuid.New().String()
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now().UTC()
	}
	codes, _ := json.Marshal(d.ReasonCodes)

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO nba_decision (id, lead_id, recommended_action, recommended_channel,
			schedule_time, reason_codes, confidence, model, applied, expires_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, 0, ?, ?)`,
		d.ID, d.LeadID, string(d.Action), string(d.Channel),
		nullableTime(d.ScheduleTime), string(codes), d.Confidence, d.Model,
		d.ExpiresAt, d.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert decision: %w", err)
	}
	return d, nil
}

// Latest returns the newest unexpired decision for the lead, or nil when
// none exists. Expired decisions are never surfaced.
func (s *Store) Latest(ctx context.Context, leadID string, now time.Time) (*contracts.NBADecision, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, lead_id, recommended_action, recommended_channel, schedule_time,
			reason_codes, confidence, model, applied, applied_at, expires_at, created_at
		FROM nba_decision
		WHERE lead_id = ? AND expires_at > ?
		ORDER BY created_at DESC LIMIT 1`,
		leadID, now.UTC())

	d, err := scanDecision(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return d, err
}

// MarkApplied sets the applied flag. The decision body is never edited.
func (s *Store) MarkApplied(ctx context.Context, decisionID string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE nba_decision SET applied = 1, applied_at = ?
		WHERE id = ? AND applied = 0`,
		time.Now().UTC(), decisionID)
	if err != nil {
		return fmt.Errorf("mark decision applied: %w", err)
	}
	return nil
}

// RecordRun persists one reasoning call record.
func (s *Store) RecordRun(ctx context.Context, run *ReasoningRun) error {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO reasoning_run (id, lead_id, task_type, model, prompt_version, input_hash,
			output, tokens_in, tokens_out, cost_usd, latency_ms, status, error, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.LeadID, run.TaskType, run.Model, run.PromptVersion, run.InputHash,
		run.Output, run.TokensIn, run.TokensOut, run.CostUSD, run.LatencyMS,
		run.Status, run.Error, run.CreatedAt)
	if err != nil {
		return fmt.Errorf("record reasoning run: %w", err)
	}
	return nil
}

func scanDecision(row *sql.Row) (*contracts.NBADecision, error) {
	d := &contracts.NBADecision{}
	var action, channel, codes string
	var applied int
	var scheduleTime, appliedAt sql.NullTime
	err := row.Scan(&d.ID, &d.LeadID, &action, &channel, &scheduleTime,
		&codes, &d.Confidence, &d.Model, &applied, &appliedAt, &d.ExpiresAt, &d.CreatedAt)
	if err != nil {
		return nil, err
	}
	d.Action = contracts.NBAAction(action)
	d.Channel = contracts.Channel(channel)
	d.Applied = applied != 0
	if scheduleTime.Valid {
		t := scheduleTime.Time
		d.ScheduleTime = &t
	}
	if appliedAt.Valid {
		t := appliedAt.Time
		d.AppliedAt = &t
	}
	_ = json.Unmarshal([]byte(codes), &d.ReasonCodes)
	return d, nil
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

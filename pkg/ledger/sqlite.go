package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/solarcommand/outreach/pkg/contracts"

	_ "modernc.org/sqlite"
)

// SQLiteStore is the default Contact Ledger backend.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore wraps an opened database and runs migrations.
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

// OpenSQLite opens (or creates) the ledger database at path.
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open ledger database: %w", err)
	}
	return NewSQLiteStore(db)
}

// DB exposes the underlying handle so sibling stores (decisions, audit)
// can share one database file.
func (s *SQLiteStore) DB() *sql.DB { return s.db }

func (s *SQLiteStore) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS lead (
			id TEXT PRIMARY KEY,
			first_name TEXT NOT NULL DEFAULT '',
			last_name TEXT NOT NULL DEFAULT '',
			phone TEXT NOT NULL DEFAULT '',
			email TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL DEFAULT 'ingested',
			score INTEGER NOT NULL DEFAULT 0,
			call_attempts INTEGER NOT NULL DEFAULT 0,
			sms_sent INTEGER NOT NULL DEFAULT 0,
			email_sent INTEGER NOT NULL DEFAULT 0,
			last_contacted_at DATETIME,
			next_outreach_at DATETIME,
			next_outreach_channel TEXT NOT NULL DEFAULT '',
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS ix_lead_status ON lead(status);`,
		`CREATE TABLE IF NOT EXISTS consent_log (
			id TEXT PRIMARY KEY,
			lead_id TEXT NOT NULL REFERENCES lead(id),
			consent_type TEXT NOT NULL,
			status TEXT NOT NULL,
			channel TEXT NOT NULL,
			evidence_type TEXT NOT NULL DEFAULT '',
			evidence_url TEXT NOT NULL DEFAULT '',
			recorded_at DATETIME NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS ix_consent_lead ON consent_log(lead_id, recorded_at);`,
		`CREATE TABLE IF NOT EXISTS outreach_attempt (
			id TEXT PRIMARY KEY,
			lead_id TEXT NOT NULL REFERENCES lead(id),
			channel TEXT NOT NULL,
			disposition TEXT NOT NULL DEFAULT '',
			external_id TEXT NOT NULL DEFAULT '',
			duration_seconds INTEGER NOT NULL DEFAULT 0,
			message_body TEXT NOT NULL DEFAULT '',
			started_at DATETIME NOT NULL,
			ended_at DATETIME
		);`,
		`CREATE INDEX IF NOT EXISTS ix_attempt_lead ON outreach_attempt(lead_id);`,
		`CREATE INDEX IF NOT EXISTS ix_attempt_pending ON outreach_attempt(disposition, started_at);`,
	}
	for _, q := range stmts {
		if _, err := s.db.ExecContext(context.Background(), q); err != nil {
			return fmt.Errorf("ledger migration: %w", err)
		}
	}
	return nil
}

// ── Leads ──────────────────────────────────────────────────────────────

// CreateLead inserts a new lead. A missing ID is generated.
func (s *SQLiteStore) CreateLead(ctx context.Context, lead *contracts.Lead) error {
	if lead.ID == "" {
		lead.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	if lead.CreatedAt.IsZero() {
		lead.CreatedAt = now
	}
	lead.UpdatedAt = now
	if lead.Status == "" {
		lead.Status = contracts.StatusIngested
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO lead (id, first_name, last_name, phone, email, status, score,
			call_attempts, sms_sent, email_sent, last_contacted_at, next_outreach_at,
			next_outreach_channel, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		lead.ID, lead.FirstName, lead.LastName, lead.Phone, lead.Email,
		string(lead.Status), lead.Score, lead.CallAttempts, lead.SMSSent, lead.EmailSent,
		nullTime(lead.LastContactedAt), nullTime(lead.NextOutreachAt),
		string(lead.NextChannel), lead.CreatedAt, lead.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert lead: %w", err)
	}
	return nil
}

// GetLead fetches a lead by id.
func (s *SQLiteStore) GetLead(ctx context.Context, id string) (*contracts.Lead, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, first_name, last_name, phone, email, status, score,
			call_attempts, sms_sent, email_sent, last_contacted_at, next_outreach_at,
			next_outreach_channel, created_at, updated_at
		FROM lead WHERE id = ?`, id)
	return scanLead(row)
}

// SetStatus writes a lead status and returns the previous one. It refuses
// to downgrade a protected lead to a non-protected status, with one
// exception: a move to DNC always wins, since an opt-out is legally
// binding regardless of funnel position.
func (s *SQLiteStore) SetStatus(ctx context.Context, leadID string, status contracts.LeadStatus) (contracts.LeadStatus, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", err
	}
	defer func() { _ = tx.Rollback() }()

	var current string
	if err := tx.QueryRowContext(ctx, `SELECT status FROM lead WHERE id = ?`, leadID).Scan(&current); err != nil {
		if err == sql.ErrNoRows {
			return "", ErrLeadNotFound
		}
		return "", err
	}
	old := contracts.LeadStatus(current)

	if old.IsProtected() && !status.IsProtected() && status != contracts.StatusDNC {
		return old, fmt.Errorf("%w: %s -> %s", ErrProtectedStatus, old, status)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE lead SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), time.Now().UTC(), leadID); err != nil {
		return old, fmt.Errorf("update lead status: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return old, err
	}
	return old, nil
}

// MarkEnqueued records that an attempt was created for the lead: status
// moves to contacting and the scheduling hint is set.
func (s *SQLiteStore) MarkEnqueued(ctx context.Context, leadID string, ch contracts.Channel) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE lead SET status = ?, next_outreach_channel = ?, updated_at = ?
		WHERE id = ?`,
		string(contracts.StatusContacting), string(ch), time.Now().UTC(), leadID)
	if err != nil {
		return fmt.Errorf("mark lead enqueued: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrLeadNotFound
	}
	return nil
}

// LeadByPhone finds the lead owning a phone number. Inbound messages
// arrive keyed by phone, not lead id.
func (s *SQLiteStore) LeadByPhone(ctx context.Context, phone string) (*contracts.Lead, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, first_name, last_name, phone, email, status, score,
			call_attempts, sms_sent, email_sent, last_contacted_at, next_outreach_at,
			next_outreach_channel, created_at, updated_at
		FROM lead WHERE phone = ? ORDER BY created_at DESC LIMIT 1`, phone)
	return scanLead(row)
}

// LeadsByStatus lists leads in a given status, oldest update first.
func (s *SQLiteStore) LeadsByStatus(ctx context.Context, status contracts.LeadStatus, limit int) ([]*contracts.Lead, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, first_name, last_name, phone, email, status, score,
			call_attempts, sms_sent, email_sent, last_contacted_at, next_outreach_at,
			next_outreach_channel, created_at, updated_at
		FROM lead WHERE status = ? ORDER BY updated_at ASC LIMIT ?`,
		string(status), limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var leads []*contracts.Lead
	for rows.Next() {
		lead, err := scanLead(rows)
		if err != nil {
			return nil, err
		}
		leads = append(leads, lead)
	}
	return leads, rows.Err()
}

// ── Consent ────────────────────────────────────────────────────────────

// AppendConsent appends a consent record. Records are never updated.
func (s *SQLiteStore) AppendConsent(ctx context.Context, rec *contracts.ConsentRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.RecordedAt.IsZero() {
		rec.RecordedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO consent_log (id, lead_id, consent_type, status, channel, evidence_type, evidence_url, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.LeadID, string(rec.Type), string(rec.Status), string(rec.Channel),
		string(rec.Evidence), rec.EvidenceURL, rec.RecordedAt)
	if err != nil {
		return fmt.Errorf("append consent: %w", err)
	}
	return nil
}

// LatestConsent returns the newest consent record covering the channel
// (channel-specific or all_channels), or nil when none exists.
func (s *SQLiteStore) LatestConsent(ctx context.Context, leadID string, ch contracts.Channel) (*contracts.ConsentRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, lead_id, consent_type, status, channel, evidence_type, evidence_url, recorded_at
		FROM consent_log
		WHERE lead_id = ? AND (channel = ? OR consent_type = ?)
		ORDER BY recorded_at DESC LIMIT 1`,
		leadID, string(ch), string(contracts.ConsentTypeAllChannels))

	rec := &contracts.ConsentRecord{}
	var ctype, status, channel, evidence string
	err := row.Scan(&rec.ID, &rec.LeadID, &ctype, &status, &channel, &evidence, &rec.EvidenceURL, &rec.RecordedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest consent: %w", err)
	}
	rec.Type = contracts.ConsentType(ctype)
	rec.Status = contracts.ConsentStatus(status)
	rec.Channel = contracts.Channel(channel)
	rec.Evidence = contracts.EvidenceKind(evidence)
	return rec, nil
}

// ── Attempts ───────────────────────────────────────────────────────────

// CreateAttempt inserts a pending attempt for the lead.
func (s *SQLiteStore) CreateAttempt(ctx context.Context, leadID string, ch contracts.Channel) (*contracts.OutreachAttempt, error) {
	attempt := &contracts.OutreachAttempt{
		ID:        uuid.New().String(),
		LeadID:    leadID,
		Channel:   ch,
		StartedAt: time.Now().UTC(),
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO outreach_attempt (id, lead_id, channel, started_at)
		VALUES (?, ?, ?, ?)`,
		attempt.ID, leadID, string(ch), attempt.StartedAt)
	if err != nil {
		return nil, fmt.Errorf("insert attempt: %w", err)
	}
	return attempt, nil
}

// GetAttempt fetches an attempt by id.
func (s *SQLiteStore) GetAttempt(ctx context.Context, id string) (*contracts.OutreachAttempt, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, lead_id, channel, disposition, external_id, duration_seconds, message_body, started_at, ended_at
		FROM outreach_attempt WHERE id = ?`, id)
	a, err := scanAttempt(row)
	if err == sql.ErrNoRows {
		return nil, ErrAttemptNotFound
	}
	return a, err
}

// PendingAttempts returns attempts without a terminal disposition, oldest
// first. This is the dispatcher's drain scan.
func (s *SQLiteStore) PendingAttempts(ctx context.Context, limit int) ([]*contracts.OutreachAttempt, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, lead_id, channel, disposition, external_id, duration_seconds, message_body, started_at, ended_at
		FROM outreach_attempt WHERE disposition = '' ORDER BY started_at ASC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var attempts []*contracts.OutreachAttempt
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, err
		}
		attempts = append(attempts, a)
	}
	return attempts, rows.Err()
}

// AttemptsForLead lists a lead's attempts, newest first.
func (s *SQLiteStore) AttemptsForLead(ctx context.Context, leadID string) ([]*contracts.OutreachAttempt, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, lead_id, channel, disposition, external_id, duration_seconds, message_body, started_at, ended_at
		FROM outreach_attempt WHERE lead_id = ? ORDER BY started_at DESC`, leadID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var attempts []*contracts.OutreachAttempt
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, err
		}
		attempts = append(attempts, a)
	}
	return attempts, rows.Err()
}

// ApplyDisposition writes the terminal disposition for an attempt and, in
// the same transaction, increments the lead's channel counter and applies
// the disposition-to-status mapping under the protected-status guard.
//
// The write is idempotent: if the attempt already has a terminal
// disposition the call is a no-op (Applied=false) and never overwrites
// the existing value.
func (s *SQLiteStore) ApplyDisposition(ctx context.Context, attemptID string, d contracts.Disposition, result AttemptResult) (*DispositionOutcome, error) {
	if d == contracts.DispositionNone {
		return nil, fmt.Errorf("disposition must be terminal")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var leadID, channel, existing string
	err = tx.QueryRowContext(ctx,
		`SELECT lead_id, channel, disposition FROM outreach_attempt WHERE id = ?`,
		attemptID).Scan(&leadID, &channel, &existing)
	if err == sql.ErrNoRows {
		return nil, ErrAttemptNotFound
	}
	if err != nil {
		return nil, err
	}

	var currentStatus string
	if err := tx.QueryRowContext(ctx, `SELECT status FROM lead WHERE id = ?`, leadID).Scan(&currentStatus); err != nil {
		return nil, fmt.Errorf("load lead %s: %w", leadID, err)
	}
	old := contracts.LeadStatus(currentStatus)

	if existing != "" {
		// Null-disposition precondition failed: already terminal.
		return &DispositionOutcome{Applied: false, OldStatus: old, NewStatus: old}, nil
	}

	ended := result.EndedAt
	if ended.IsZero() {
		ended = time.Now().UTC()
	}

	// Guarded UPDATE: the precondition is re-checked inside the statement
	// so two racing drains cannot both write.
	res, err := tx.ExecContext(ctx, `
		UPDATE outreach_attempt
		SET disposition = ?, external_id = ?, duration_seconds = ?, message_body = ?, ended_at = ?
		WHERE id = ? AND disposition = ''`,
		string(d), result.ExternalID, result.DurationSeconds, result.MessageBody, ended, attemptID)
	if err != nil {
		return nil, fmt.Errorf("write disposition: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &DispositionOutcome{Applied: false, OldStatus: old, NewStatus: old}, nil
	}

	// Atomic counter increment, never read-modify-write.
	counterCol := map[contracts.Channel]string{
		contracts.ChannelVoice: "call_attempts",
		contracts.ChannelSMS:   "sms_sent",
		contracts.ChannelEmail: "email_sent",
	}[contracts.Channel(channel)]
	if counterCol == "" {
		return nil, fmt.Errorf("attempt %s has unknown channel %q", attemptID, channel)
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf(`
		UPDATE lead SET %s = %s + 1, last_contacted_at = ?, updated_at = ? WHERE id = ?`,
		counterCol, counterCol), ended, ended, leadID); err != nil {
		return nil, fmt.Errorf("increment %s: %w", counterCol, err)
	}

	outcome := &DispositionOutcome{Applied: true, OldStatus: old, NewStatus: old}
	next, guardHit := statusTransition(old, d)
	outcome.ProtectedGuardHit = guardHit
	if next != old {
		if _, err := tx.ExecContext(ctx,
			`UPDATE lead SET status = ?, updated_at = ? WHERE id = ?`,
			string(next), ended, leadID); err != nil {
			return nil, fmt.Errorf("apply status transition: %w", err)
		}
		outcome.NewStatus = next
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return outcome, nil
}

// ── scanning helpers ───────────────────────────────────────────────────

type rowScanner interface {
	Scan(dest ...any) error
}

func scanLead(row rowScanner) (*contracts.Lead, error) {
	lead := &contracts.Lead{}
	var status, nextChannel string
	var lastContacted, nextOutreach sql.NullTime
	err := row.Scan(&lead.ID, &lead.FirstName, &lead.LastName, &lead.Phone, &lead.Email,
		&status, &lead.Score, &lead.CallAttempts, &lead.SMSSent, &lead.EmailSent,
		&lastContacted, &nextOutreach, &nextChannel, &lead.CreatedAt, &lead.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrLeadNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan lead: %w", err)
	}
	lead.Status = contracts.LeadStatus(status)
	lead.NextChannel = contracts.Channel(nextChannel)
	if lastContacted.Valid {
		t := lastContacted.Time
		lead.LastContactedAt = &t
	}
	if nextOutreach.Valid {
		t := nextOutreach.Time
		lead.NextOutreachAt = &t
	}
	return lead, nil
}

func scanAttempt(row rowScanner) (*contracts.OutreachAttempt, error) {
	a := &contracts.OutreachAttempt{}
	var channel, disposition string
	var ended sql.NullTime
	err := row.Scan(&a.ID, &a.LeadID, &channel, &disposition, &a.ExternalID,
		&a.DurationSeconds, &a.MessageBody, &a.StartedAt, &ended)
	if err != nil {
		return nil, err
	}
	a.Channel = contracts.Channel(channel)
	a.Disposition = contracts.Disposition(disposition)
	if ended.Valid {
		t := ended.Time
		a.EndedAt = &t
	}
	return a, nil
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteSink persists trail entries to a database so the chain survives
// process restarts. Attach with trail.AddSink(sink.Write).
type SQLiteSink struct {
	db *sql.DB
}

// NewSQLiteSink wraps an opened database and runs migrations.
func NewSQLiteSink(db *sql.DB) (*SQLiteSink, error) {
	s := &SQLiteSink{db: db}
	if err := s.migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLiteSink) migrate() error {
	query := `
	CREATE TABLE IF NOT EXISTS audit_entry (
		entry_id TEXT PRIMARY KEY,
		sequence INTEGER NOT NULL,
		timestamp DATETIME NOT NULL,
		entry_type TEXT NOT NULL,
		actor TEXT NOT NULL,
		action TEXT NOT NULL,
		entity_type TEXT NOT NULL,
		entity_id TEXT NOT NULL,
		old_value TEXT NOT NULL DEFAULT '',
		new_value TEXT NOT NULL DEFAULT '',
		payload TEXT,
		payload_hash TEXT NOT NULL,
		previous_hash TEXT NOT NULL,
		entry_hash TEXT NOT NULL,
		metadata TEXT
	);`
	_, err := s.db.ExecContext(context.Background(), query)
	if err != nil {
		return fmt.Errorf("audit migration: %w", err)
	}
	return nil
}

// Write persists one entry. Insert failures are swallowed: the in-memory
// chain already accepted the entry and persistence is best-effort.
func (s *SQLiteSink) Write(entry *Entry) {
	metaJSON, _ := json.Marshal(entry.Metadata)
	_, _ = s.db.Exec(`
		INSERT INTO audit_entry (entry_id, sequence, timestamp, entry_type, actor, action,
			entity_type, entity_id, old_value, new_value, payload, payload_hash,
			previous_hash, entry_hash, metadata)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.EntryID, entry.Sequence, entry.Timestamp.UTC().Format(time.RFC3339Nano),
		string(entry.EntryType), entry.Actor, entry.Action, entry.EntityType, entry.EntityID,
		entry.OldValue, entry.NewValue, string(entry.Payload), entry.PayloadHash,
		entry.PreviousHash, entry.EntryHash, string(metaJSON))
}

// Load replays all persisted entries in sequence order, for rebuilding an
// in-memory trail after restart.
func (s *SQLiteSink) Load(ctx context.Context) ([]*Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT entry_id, sequence, timestamp, entry_type, actor, action,
			entity_type, entity_id, old_value, new_value, payload, payload_hash,
			previous_hash, entry_hash, metadata
		FROM audit_entry ORDER BY sequence ASC`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var entries []*Entry
	for rows.Next() {
		e := &Entry{}
		var ts, entryType, payload, metadata string
		if err := rows.Scan(&e.EntryID, &e.Sequence, &ts, &entryType, &e.Actor, &e.Action,
			&e.EntityType, &e.EntityID, &e.OldValue, &e.NewValue, &payload, &e.PayloadHash,
			&e.PreviousHash, &e.EntryHash, &metadata); err != nil {
			return nil, err
		}
		e.EntryType = EntryType(entryType)
		if t, err := time.Parse(time.RFC3339Nano, ts); err == nil {
			e.Timestamp = t
		}
		if payload != "" {
			e.Payload = json.RawMessage(payload)
		}
		if metadata != "" && metadata != "null" {
			_ = json.Unmarshal([]byte(metadata), &e.Metadata)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Package audit implements the append-only, hash-chained audit trail.
// Every compliance denial, status transition, consent event, and external
// reasoning call is one immutable record; the chain lets a regulator or
// customer verify that history was not rewritten.
package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrEntryNotFound is returned when an entry id is unknown.
	ErrEntryNotFound = errors.New("entry not found")
	// ErrChainBroken is returned when chain verification fails.
	ErrChainBroken = errors.New("hash chain is broken")
)

// EntryType categorizes audit entries.
type EntryType string

// Entry type constants.
const (
	EntryComplianceDenial EntryType = "compliance_denial"
	EntryStatusTransition EntryType = "status_transition"
	EntryConsent          EntryType = "consent"
	EntryAttempt          EntryType = "attempt"
	EntryReasoningCall    EntryType = "reasoning_call"
	EntryAnomaly          EntryType = "anomaly"
)

// Entry is a single immutable record in the trail.
type Entry struct {
	EntryID      string            `json:"entry_id"`
	Sequence     uint64            `json:"sequence"`
	Timestamp    time.Time         `json:"timestamp"`
	EntryType    EntryType         `json:"entry_type"`
	Actor        string            `json:"actor"`
	Action       string            `json:"action"`
	EntityType   string            `json:"entity_type"`
	EntityID     string            `json:"entity_id"`
	OldValue     string            `json:"old_value,omitempty"`
	NewValue     string            `json:"new_value,omitempty"`
	Payload      json.RawMessage   `json:"payload,omitempty"`
	PayloadHash  string            `json:"payload_hash"`
	PreviousHash string            `json:"previous_hash"`
	EntryHash    string            `json:"entry_hash"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// Sink receives entries as they are appended (persistence, export).
type Sink func(entry *Entry)

// Trail is the append-only audit log with hash chaining.
type Trail struct {
	mu        sync.RWMutex
	entries   []*Entry
	entryByID map[string]*Entry
	sequence  uint64
	chainHead string
	sinks     []Sink
	clock     func() time.Time
}

// NewTrail creates an empty trail.
func NewTrail() *Trail {
	return &Trail{
		entryByID: make(map[string]*Entry),
		chainHead: "genesis",
		clock:     time.Now,
	}
}

// WithClock overrides the clock for deterministic testing.
func (t *Trail) WithClock(clock func() time.Time) *Trail {
	t.clock = clock
	return t
}

// Append adds a new entry and returns it with hashes computed.
func (t *Trail) Append(e Entry) (*Entry, error) {
	if e.EntryType == "" {
		return nil, fmt.Errorf("entry type required")
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.sequence++
	entry := &e
	entry.EntryID = uuid.New().String()
	entry.Sequence = t.sequence
	entry.Timestamp = t.clock().UTC()
	entry.PayloadHash = computeHash(entry.Payload)
	entry.PreviousHash = t.chainHead

	hash, err := computeEntryHash(entry)
	if err != nil {
		t.sequence--
		return nil, fmt.Errorf("compute entry hash: %w", err)
	}
	entry.EntryHash = hash
	t.chainHead = hash

	t.entries = append(t.entries, entry)
	t.entryByID[entry.EntryID] = entry

	for _, sink := range t.sinks {
		sink(entry)
	}
	return entry, nil
}

// AddSink registers a sink for new entries.
func (t *Trail) AddSink(s Sink) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sinks = append(t.sinks, s)
}

// Get retrieves an entry by id.
func (t *Trail) Get(entryID string) (*Entry, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	entry, ok := t.entryByID[entryID]
	if !ok {
		return nil, ErrEntryNotFound
	}
	return entry, nil
}

// ChainHead returns the current chain head hash.
func (t *Trail) ChainHead() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.chainHead
}

// Size returns the number of entries.
func (t *Trail) Size() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}

// QueryFilter defines filtering criteria for queries.
type QueryFilter struct {
	EntryType  EntryType
	EntityType string
	EntityID   string
	Actor      string
	StartTime  *time.Time
	EndTime    *time.Time
	MaxResults int
}

func (f QueryFilter) matches(e *Entry) bool {
	if f.EntryType != "" && e.EntryType != f.EntryType {
		return false
	}
	if f.EntityType != "" && e.EntityType != f.EntityType {
		return false
	}
	if f.EntityID != "" && e.EntityID != f.EntityID {
		return false
	}
	if f.Actor != "" && e.Actor != f.Actor {
		return false
	}
	if f.StartTime != nil && e.Timestamp.Before(*f.StartTime) {
		return false
	}
	if f.EndTime != nil && e.Timestamp.After(*f.EndTime) {
		return false
	}
	return true
}

// Query returns entries matching the filter, in append order.
func (t *Trail) Query(filter QueryFilter) []*Entry {
	t.mu.RLock()
	defer t.mu.RUnlock()

	results := make([]*Entry, 0)
	for _, e := range t.entries {
		if filter.matches(e) {
			results = append(results, e)
			if filter.MaxResults > 0 && len(results) >= filter.MaxResults {
				break
			}
		}
	}
	return results
}

// VerifyChain verifies the integrity of the hash chain.
func (t *Trail) VerifyChain() error {
	t.mu.RLock()
	defer t.mu.RUnlock()

	expectedPrev := "genesis"
	for i, entry := range t.entries {
		if entry.PreviousHash != expectedPrev {
			return fmt.Errorf("%w: entry %d has previous_hash %s but expected %s",
				ErrChainBroken, i, entry.PreviousHash, expectedPrev)
		}
		computed, err := computeEntryHash(entry)
		if err != nil {
			return fmt.Errorf("%w: entry %d hash computation failed: %w", ErrChainBroken, i, err)
		}
		if computed != entry.EntryHash {
			return fmt.Errorf("%w: entry %d hash mismatch (computed %s, stored %s)",
				ErrChainBroken, i, computed, entry.EntryHash)
		}
		expectedPrev = entry.EntryHash
	}
	return nil
}

func computeHash(data []byte) string {
	hash := sha256.Sum256(data)
	return "sha256:" + hex.EncodeToString(hash[:])
}

func computeEntryHash(entry *Entry) (string, error) {
	hashable := struct {
		Sequence     uint64    `json:"sequence"`
		Timestamp    time.Time `json:"timestamp"`
		EntryType    EntryType `json:"entry_type"`
		Actor        string    `json:"actor"`
		Action       string    `json:"action"`
		EntityType   string    `json:"entity_type"`
		EntityID     string    `json:"entity_id"`
		OldValue     string    `json:"old_value"`
		NewValue     string    `json:"new_value"`
		PayloadHash  string    `json:"payload_hash"`
		PreviousHash string    `json:"previous_hash"`
	}{
		Sequence:     entry.Sequence,
		Timestamp:    entry.Timestamp,
		EntryType:    entry.EntryType,
		Actor:        entry.Actor,
		Action:       entry.Action,
		EntityType:   entry.EntityType,
		EntityID:     entry.EntityID,
		OldValue:     entry.OldValue,
		NewValue:     entry.NewValue,
		PayloadHash:  entry.PayloadHash,
		PreviousHash: entry.PreviousHash,
	}
	data, err := json.Marshal(hashable)
	if err != nil {
		return "", fmt.Errorf("marshal entry for hashing: %w", err)
	}
	return computeHash(data), nil
}

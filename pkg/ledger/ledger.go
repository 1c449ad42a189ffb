// Package ledger implements the Contact Ledger: the durable record of a
// lead's outreach history and counters.
//
// The ledger owns the Lead entity. Counters are incremented with single
// conditional UPDATE statements, never read-modify-write, and disposition
// writes are guarded by a null-disposition precondition so that re-applying
// a terminal disposition is a no-op.
package ledger

import (
	"errors"
	"time"

	"github.com/solarcommand/outreach/pkg/contracts"
)

var (
	// ErrLeadNotFound is returned when a lead id does not exist.
	ErrLeadNotFound = errors.New("lead not found")
	// ErrAttemptNotFound is returned when an attempt id does not exist.
	ErrAttemptNotFound = errors.New("attempt not found")
	// ErrProtectedStatus is returned when a status write would downgrade a
	// lead out of a protected status.
	ErrProtectedStatus = errors.New("protected status must not be downgraded")
)

// AttemptResult carries the provider outcome applied with a disposition.
type AttemptResult struct {
	ExternalID      string
	DurationSeconds int
	MessageBody     string
	EndedAt         time.Time
}

// DispositionOutcome reports what a disposition write actually did.
type DispositionOutcome struct {
	// Applied is false when the attempt already had a terminal
	// disposition; nothing was written.
	Applied bool
	// OldStatus and NewStatus describe the lead status transition, equal
	// when no transition happened.
	OldStatus contracts.LeadStatus
	NewStatus contracts.LeadStatus
	// ProtectedGuardHit is true when the disposition-to-status mapping
	// wanted a transition but the lead's protected status suppressed it.
	ProtectedGuardHit bool
}

// statusTransition applies the disposition-to-status mapping under the
// protected-status guard. It is the single place automated disposition
// handling may derive a new lead status.
func statusTransition(current contracts.LeadStatus, d contracts.Disposition) (next contracts.LeadStatus, guardHit bool) {
	mapped, ok := contracts.StatusForDisposition(d)
	if !ok {
		return current, false
	}
	if current.IsProtected() && !mapped.IsProtected() {
		return current, true
	}
	return mapped, false
}

package audit

import "time"

// Event is an append-only record of a security decision taken at the edge.
//
// Invariants:
// - Events are never updated or deleted.
// - Recording is best-effort; a failed append never changes the request outcome.
// - Reason may carry server-side detail (e.g. "mismatch") that is never sent to clients.
type Event struct {
	ID        string    `json:"id" db:"id"`
	Type      EventType `json:"type" db:"type"`
	RequestID string    `json:"request_id,omitempty" db:"request_id"`
	UserID    string    `json:"user_id,omitempty" db:"user_id"`
	IPAddress string    `json:"ip_address,omitempty" db:"ip_address"`
	Method    string    `json:"method,omitempty" db:"method"`
	Path      string    `json:"path,omitempty" db:"path"`
	Reason    string    `json:"reason,omitempty" db:"reason"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type EventType string

const (
	EventCSRFRejected          EventType = "csrf_rejected"
	EventRateLimited           EventType = "rate_limited"
	EventDependencyUnavailable EventType = "dependency_unavailable"
)

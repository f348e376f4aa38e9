package session

import "time"

const (
	ChangeTypeUpdate = "UPDATE"
	ChangeTypeInsert = "INSERT"
)

// ChangeEvent is published on the per-user change feed after a sessions row
// is written.
type ChangeEvent struct {
	Type            string     `json:"type"`
	Table           string     `json:"table"`
	UserID          string     `json:"user_id"`
	RecordID        string     `json:"record_id"`
	TokenHash       string     `json:"token_hash"`
	Status          Status     `json:"status"`
	InvalidatedAt   *time.Time `json:"invalidated_at,omitempty"`
	CommitTimestamp time.Time  `json:"commit_timestamp"`
}

// NewChangeEvent snapshots r as a feed event.
func NewChangeEvent(changeType string, r *Record, committedAt time.Time) ChangeEvent {
	return ChangeEvent{
		Type:            changeType,
		Table:           "sessions",
		UserID:          r.UserID,
		RecordID:        r.ID,
		TokenHash:       r.TokenHash,
		Status:          r.Status,
		InvalidatedAt:   r.InvalidatedAt,
		CommitTimestamp: committedAt,
	}
}

// InvalidatesToken reports whether the event ends the session holding token.
func (e ChangeEvent) InvalidatesToken(token string) bool {
	return e.Status == StatusInvalidated && token != "" && e.TokenHash == HashToken(token)
}

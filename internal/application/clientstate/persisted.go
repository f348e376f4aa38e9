package clientstate

import "context"

// Persisted is the only part of a client's state that outlives the process.
// Access and refresh tokens and the transient flags have no field here, so
// they cannot reach durable storage.
type Persisted struct {
	SessionToken string
	UserID       string
	UserEmail    string
	IsAdmin      bool
}

// Persister stores Persisted per client id.
type Persister interface {
	Save(ctx context.Context, clientID string, state Persisted) error
	Load(ctx context.Context, clientID string) (Persisted, bool, error)
	Delete(ctx context.Context, clientID string) error
}

package session

import (
	"context"
	"time"
)

// Repository persists records. Implementations publish a ChangeEvent for
// every row they invalidate, after the write commits.
type Repository interface {
	Create(ctx context.Context, record *Record) error
	GetByToken(ctx context.Context, token string) (*Record, error)
	ListActiveByUserID(ctx context.Context, userID string, now time.Time) ([]*Record, error)

	// InvalidateOthers invalidates every active record of userID except the
	// one holding exceptToken (which may be empty) and returns the count.
	InvalidateOthers(ctx context.Context, userID, exceptToken string, now time.Time) (int64, error)

	// IsValid is true only for an active, unexpired record holding token.
	IsValid(ctx context.Context, token string, now time.Time) (bool, error)

	UpdateActivity(ctx context.Context, token string, at time.Time) error
	Invalidate(ctx context.Context, token string, at time.Time) error
	InvalidateExpired(ctx context.Context, now time.Time) (int64, error)
}

// ChangeFeed delivers change events for one user's records.
type ChangeFeed interface {
	Publish(ctx context.Context, event ChangeEvent) error
	// Subscribe returns once the subscription is live. Events arrive on the
	// returned channel until ctx is cancelled or the Subscription is closed.
	Subscribe(ctx context.Context, userID string) (Subscription, error)
}

type Subscription interface {
	Events() <-chan ChangeEvent
	Close() error
}

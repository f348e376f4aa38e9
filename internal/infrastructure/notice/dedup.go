package notice

import (
	"context"
	"time"

	"github.com/skyguide-inc/skyguide/internal/domain/notice"
	"github.com/skyguide-inc/skyguide/internal/shared/logger"
)

// Deduplicator is a shared cooldown keyed by notice kind and user.
type Deduplicator interface {
	TryAcquire(ctx context.Context, kind, userID string, ttl time.Duration) (bool, error)
}

// DedupNotifier drops a notice when the same user got one of the same kind
// within the cooldown. Notices without a user id always pass. A cooldown
// store failure lets the notice through.
type DedupNotifier struct {
	next     notice.Notifier
	dedup    Deduplicator
	cooldown time.Duration
	logger   logger.Interface
}

func NewDedupNotifier(next notice.Notifier, dedup Deduplicator, cooldown time.Duration, log logger.Interface) *DedupNotifier {
	return &DedupNotifier{next: next, dedup: dedup, cooldown: cooldown, logger: log.Named("notice.dedup")}
}

func (d *DedupNotifier) Notify(ctx context.Context, target notice.Target, n notice.Notice) error {
	if target.UserID == "" {
		return d.next.Notify(ctx, target, n)
	}

	ok, err := d.dedup.TryAcquire(ctx, string(n.Kind), target.UserID, d.cooldown)
	if err != nil {
		d.logger.Warnw("alert cooldown check failed, sending anyway", "user_id", target.UserID, "kind", n.Kind, "error", err)
		return d.next.Notify(ctx, target, n)
	}
	if !ok {
		d.logger.Debugw("alert suppressed by cooldown", "user_id", target.UserID, "kind", n.Kind)
		return nil
	}
	return d.next.Notify(ctx, target, n)
}

package notice

import (
	"context"
	"errors"

	"github.com/skyguide-inc/skyguide/internal/domain/notice"
	"github.com/skyguide-inc/skyguide/internal/shared/logger"
)

// MultiNotifier delivers to every channel and reports the joined failures.
// One channel failing does not stop the others.
type MultiNotifier struct {
	notifiers []notice.Notifier
	logger    logger.Interface
}

func NewMultiNotifier(log logger.Interface, notifiers ...notice.Notifier) *MultiNotifier {
	return &MultiNotifier{notifiers: notifiers, logger: log.Named("notice.multi")}
}

func (m *MultiNotifier) Notify(ctx context.Context, target notice.Target, n notice.Notice) error {
	var errs []error
	for _, nt := range m.notifiers {
		if err := nt.Notify(ctx, target, n); err != nil {
			m.logger.Warnw("notice delivery failed",
				"client_id", target.ClientID,
				"kind", n.Kind,
				"error", err,
			)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

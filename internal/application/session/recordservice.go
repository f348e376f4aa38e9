package session

import (
	"context"
	"fmt"
	"time"

	"github.com/skyguide-inc/skyguide/internal/application/clientstate"
	"github.com/skyguide-inc/skyguide/internal/domain/notice"
	"github.com/skyguide-inc/skyguide/internal/domain/session"
	"github.com/skyguide-inc/skyguide/internal/shared/biztime"
	"github.com/skyguide-inc/skyguide/internal/shared/logger"
)

type CreateSessionCommand struct {
	ClientID string
	UserID   string
	Email    string
	// AccessToken and RefreshToken are the provider tokens mirrored into the
	// client's store.
	AccessToken  string
	RefreshToken string
	Request      session.RequestInfo
}

// RecordService is the only writer of session records.
type RecordService struct {
	repo      session.Repository
	collector DeviceCollector
	registry  *clientstate.Registry
	alerts    notice.Notifier
	ttl       time.Duration
	clock     biztime.Clock
	logger    logger.Interface
}

// NewRecordService wires the service. alerts receives the new-sign-in
// notice when a sign-in ends other sessions and may be nil.
func NewRecordService(
	repo session.Repository,
	collector DeviceCollector,
	registry *clientstate.Registry,
	alerts notice.Notifier,
	ttl time.Duration,
	log logger.Interface,
) *RecordService {
	return &RecordService{
		repo:      repo,
		collector: collector,
		registry:  registry,
		alerts:    alerts,
		ttl:       ttl,
		clock:     biztime.SystemClock(),
		logger:    log.Named("session.records"),
	}
}

// CreateSession makes the new login the user's only active session. Ending
// the previous sessions is best effort; only a failed insert is returned.
func (s *RecordService) CreateSession(ctx context.Context, cmd CreateSessionCommand) (*session.Record, error) {
	if cmd.ClientID == "" {
		return nil, fmt.Errorf("client ID is required")
	}

	ended, err := s.repo.InvalidateOthers(ctx, cmd.UserID, "", s.clock.Now())
	if err != nil {
		s.logger.Warnw("failed to invalidate previous sessions",
			"user_id", cmd.UserID,
			"error", err,
		)
	}

	token, err := session.GenerateToken()
	if err != nil {
		return nil, err
	}

	device := s.collector.Collect(ctx, cmd.Request)
	now := s.clock.Now()

	record, err := session.NewRecord(cmd.UserID, token, device, device.IP, s.ttl, now)
	if err != nil {
		return nil, fmt.Errorf("failed to build session record: %w", err)
	}
	if err := s.repo.Create(ctx, record); err != nil {
		s.logger.Errorw("failed to insert session record", "user_id", cmd.UserID, "error", err)
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	store := s.registry.Get(ctx, cmd.ClientID)
	store.SetSessionToken(token)
	store.SetUserID(cmd.UserID)
	if cmd.Email != "" {
		store.SetUserEmail(cmd.Email)
	}
	store.SetAuthTokens(cmd.AccessToken, cmd.RefreshToken)

	s.logger.Infow("session created",
		"user_id", cmd.UserID,
		"record_id", record.ID,
		"ended_sessions", ended,
		"platform", device.Platform,
	)

	if ended > 0 {
		s.alertNewSignIn(ctx, cmd, now)
	}
	return record, nil
}

func (s *RecordService) alertNewSignIn(ctx context.Context, cmd CreateSessionCommand, at time.Time) {
	if s.alerts == nil || cmd.Email == "" {
		return
	}
	target := notice.Target{UserID: cmd.UserID, Email: cmd.Email}
	if err := s.alerts.Notify(ctx, target, notice.New(notice.KindNewSignIn, "", at)); err != nil {
		s.logger.Warnw("failed to send new sign-in alert", "user_id", cmd.UserID, "error", err)
	}
}

// ValidateSession is fail-closed: any error reads as invalid.
func (s *RecordService) ValidateSession(ctx context.Context, token string) bool {
	if token == "" {
		return false
	}
	valid, err := s.repo.IsValid(ctx, token, s.clock.Now())
	if err != nil {
		s.logger.Warnw("session validation failed", "error", err)
		return false
	}
	return valid
}

// InvalidateOtherSessions ends every active session of userID except the
// one holding currentToken.
func (s *RecordService) InvalidateOtherSessions(ctx context.Context, userID, currentToken string) error {
	n, err := s.repo.InvalidateOthers(ctx, userID, currentToken, s.clock.Now())
	if err != nil {
		return fmt.Errorf("failed to invalidate other sessions: %w", err)
	}
	if n > 0 {
		s.logger.Infow("other sessions invalidated", "user_id", userID, "count", n)
	}
	return nil
}

// UpdateActivity is a heartbeat; it never extends expiry and never fails.
func (s *RecordService) UpdateActivity(ctx context.Context, token string) {
	if token == "" {
		return
	}
	if err := s.repo.UpdateActivity(ctx, token, s.clock.Now()); err != nil {
		s.logger.Warnw("failed to update session activity", "error", err)
	}
}

// EndSession invalidates the record behind token on explicit logout.
func (s *RecordService) EndSession(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	if err := s.repo.Invalidate(ctx, token, s.clock.Now()); err != nil {
		return fmt.Errorf("failed to end session: %w", err)
	}
	return nil
}

func (s *RecordService) ListActiveSessions(ctx context.Context, userID string) ([]*session.Record, error) {
	records, err := s.repo.ListActiveByUserID(ctx, userID, s.clock.Now())
	if err != nil {
		return nil, fmt.Errorf("failed to list active sessions: %w", err)
	}
	return records, nil
}

// SweepExpired invalidates every active record past its expiry.
func (s *RecordService) SweepExpired(ctx context.Context) (int, error) {
	n, err := s.repo.InvalidateExpired(ctx, s.clock.Now())
	if err != nil {
		return 0, fmt.Errorf("failed to sweep expired sessions: %w", err)
	}
	return int(n), nil
}

package repository

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/skyguide-inc/skyguide/internal/domain/session"
	"github.com/skyguide-inc/skyguide/internal/infrastructure/persistence/mappers"
	"github.com/skyguide-inc/skyguide/internal/infrastructure/persistence/models"
	"github.com/skyguide-inc/skyguide/internal/shared/constants"
	"github.com/skyguide-inc/skyguide/internal/shared/db"
	"github.com/skyguide-inc/skyguide/internal/shared/errors"
	"github.com/skyguide-inc/skyguide/internal/shared/logger"
)

// ChangePublisher receives an event for every sessions row this repository
// changes, after the change commits.
type ChangePublisher interface {
	Publish(ctx context.Context, event session.ChangeEvent) error
}

type SessionRepository struct {
	db        *gorm.DB
	mapper    mappers.SessionMapper
	publisher ChangePublisher
	logger    logger.Interface
}

// NewSessionRepository wires the repository. publisher may be nil, in which
// case monitors only learn of invalidation on their next validation tick.
func NewSessionRepository(db *gorm.DB, publisher ChangePublisher, log logger.Interface) *SessionRepository {
	return &SessionRepository{
		db:        db,
		mapper:    mappers.NewSessionMapper(),
		publisher: publisher,
		logger:    log.Named("session.repository"),
	}
}

var _ session.Repository = (*SessionRepository)(nil)

func (r *SessionRepository) Create(ctx context.Context, record *session.Record) error {
	model, err := r.mapper.ToModel(record)
	if err != nil {
		return err
	}
	if err := db.GetTxFromContext(ctx, r.db).Create(model).Error; err != nil {
		if errors.IsDuplicateError(err) {
			return errors.NewConflictError("session token already in use")
		}
		return fmt.Errorf("failed to create session: %w", err)
	}

	r.publish(ctx, []*session.Record{record}, session.ChangeTypeInsert)
	return nil
}

func (r *SessionRepository) GetByToken(ctx context.Context, token string) (*session.Record, error) {
	var model models.SessionModel
	err := db.GetTxFromContext(ctx, r.db).
		Where("token_hash = ?", session.HashToken(token)).
		First(&model).Error
	if err != nil {
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.NewNotFoundError("session not found")
		}
		return nil, fmt.Errorf("failed to get session by token: %w", err)
	}
	return r.mapper.ToDomain(&model)
}

func (r *SessionRepository) ListActiveByUserID(ctx context.Context, userID string, now time.Time) ([]*session.Record, error) {
	var rows []models.SessionModel
	err := db.GetTxFromContext(ctx, r.db).
		Scopes(db.ForUser(userID), db.ActiveAt(now)).
		Order("created_at DESC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list active sessions: %w", err)
	}
	return r.toDomainList(rows)
}

// InvalidateOthers selects the rows it is about to invalidate so that each
// one can be announced on the change feed once the update commits.
func (r *SessionRepository) InvalidateOthers(ctx context.Context, userID, exceptToken string, now time.Time) (int64, error) {
	var changed []*session.Record

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		query := tx.Model(&models.SessionModel{}).
			Scopes(db.ForUser(userID)).
			Where("status = ?", string(session.StatusActive))
		if exceptToken != "" {
			query = query.Where("token_hash <> ?", session.HashToken(exceptToken))
		}

		var rows []models.SessionModel
		if err := query.Find(&rows).Error; err != nil {
			return fmt.Errorf("failed to select sessions to invalidate: %w", err)
		}
		if len(rows) == 0 {
			return nil
		}

		records, err := r.invalidateRows(tx, rows, now)
		if err != nil {
			return fmt.Errorf("failed to invalidate sessions: %w", err)
		}
		changed = records
		return nil
	})
	if err != nil {
		return 0, err
	}

	r.publish(ctx, changed, session.ChangeTypeUpdate)
	return int64(len(changed)), nil
}

// IsValid reports whether token is active and unexpired at now. A record that
// a newer active record of the same user has superseded is not valid.
func (r *SessionRepository) IsValid(ctx context.Context, token string, now time.Time) (bool, error) {
	if token == "" {
		return false, nil
	}
	var count int64
	err := db.GetTxFromContext(ctx, r.db).
		Model(&models.SessionModel{}).
		Scopes(db.ActiveAt(now)).
		Where("token_hash = ?", session.HashToken(token)).
		Where("NOT EXISTS (SELECT 1 FROM "+constants.TableSessions+" newer"+
			" WHERE newer.user_id = "+constants.TableSessions+".user_id"+
			" AND newer.status = ? AND newer.expires_at > ?"+
			" AND newer.created_at > "+constants.TableSessions+".created_at)",
			string(session.StatusActive), now).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to check session validity: %w", err)
	}
	return count > 0, nil
}

// UpdateActivity only touches active rows; an unknown or ended token is NotFound.
func (r *SessionRepository) UpdateActivity(ctx context.Context, token string, at time.Time) error {
	result := db.GetTxFromContext(ctx, r.db).
		Model(&models.SessionModel{}).
		Where("token_hash = ? AND status = ?", session.HashToken(token), string(session.StatusActive)).
		Update("last_activity", at)
	if result.Error != nil {
		return fmt.Errorf("failed to update session activity: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return errors.NewNotFoundError("session not found")
	}
	return nil
}

// Invalidate ends the session holding token. Ending an already ended session
// is not an error.
func (r *SessionRepository) Invalidate(ctx context.Context, token string, at time.Time) error {
	record, err := r.GetByToken(ctx, token)
	if err != nil {
		return err
	}
	if record.Status == session.StatusInvalidated {
		return nil
	}

	result := db.GetTxFromContext(ctx, r.db).
		Model(&models.SessionModel{}).
		Where("id = ? AND status = ?", record.ID, string(session.StatusActive)).
		Updates(map[string]any{
			"status":         string(session.StatusInvalidated),
			"invalidated_at": at,
		})
	if result.Error != nil {
		return fmt.Errorf("failed to invalidate session: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return nil
	}

	record.Invalidate(at)
	r.publish(ctx, []*session.Record{record}, session.ChangeTypeUpdate)
	return nil
}

// InvalidateExpired ends active rows whose expires_at has passed.
func (r *SessionRepository) InvalidateExpired(ctx context.Context, now time.Time) (int64, error) {
	var changed []*session.Record

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var rows []models.SessionModel
		if err := tx.Where("status = ? AND expires_at <= ?", string(session.StatusActive), now).
			Find(&rows).Error; err != nil {
			return fmt.Errorf("failed to select expired sessions: %w", err)
		}
		if len(rows) == 0 {
			return nil
		}

		records, err := r.invalidateRows(tx, rows, now)
		if err != nil {
			return fmt.Errorf("failed to invalidate expired sessions: %w", err)
		}
		changed = records
		return nil
	})
	if err != nil {
		return 0, err
	}

	r.publish(ctx, changed, session.ChangeTypeUpdate)
	return int64(len(changed)), nil
}

// invalidateRows ends each selected row that is still active and returns only
// the rows this call actually changed. A row ended concurrently after the
// select is skipped so it is neither re-stamped nor announced twice.
func (r *SessionRepository) invalidateRows(tx *gorm.DB, rows []models.SessionModel, now time.Time) ([]*session.Record, error) {
	changed := make([]*session.Record, 0, len(rows))
	for i := range rows {
		result := tx.Model(&models.SessionModel{}).
			Where("id = ? AND status = ?", rows[i].ID, string(session.StatusActive)).
			Updates(map[string]any{
				"status":         string(session.StatusInvalidated),
				"invalidated_at": now,
			})
		if result.Error != nil {
			return nil, result.Error
		}
		if result.RowsAffected == 0 {
			continue
		}
		rec, err := r.mapper.ToDomain(&rows[i])
		if err != nil {
			return nil, err
		}
		rec.Invalidate(now)
		changed = append(changed, rec)
	}
	return changed, nil
}

func (r *SessionRepository) toDomainList(rows []models.SessionModel) ([]*session.Record, error) {
	records := make([]*session.Record, 0, len(rows))
	for i := range rows {
		rec, err := r.mapper.ToDomain(&rows[i])
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}

// publish is best effort: a lost event delays detection until the next
// validation tick but never loses the invalidation itself.
func (r *SessionRepository) publish(ctx context.Context, records []*session.Record, changeType string) {
	if r.publisher == nil || len(records) == 0 {
		return
	}
	committedAt := time.Now().UTC()
	for _, rec := range records {
		if err := r.publisher.Publish(ctx, session.NewChangeEvent(changeType, rec, committedAt)); err != nil {
			r.logger.Warnw("failed to publish session change",
				"record_id", rec.ID,
				"user_id", rec.UserID,
				"error", err,
			)
		}
	}
}

package mappers

import (
	"encoding/json"
	"fmt"

	"gorm.io/datatypes"

	"github.com/skyguide-inc/skyguide/internal/domain/session"
	"github.com/skyguide-inc/skyguide/internal/infrastructure/persistence/models"
)

// SessionMapper converts between session records and rows.
type SessionMapper interface {
	ToModel(entity *session.Record) (*models.SessionModel, error)
	ToDomain(model *models.SessionModel) (*session.Record, error)
}

type sessionMapper struct{}

func NewSessionMapper() SessionMapper {
	return sessionMapper{}
}

func (sessionMapper) ToModel(entity *session.Record) (*models.SessionModel, error) {
	if entity == nil {
		return nil, nil
	}
	device, err := json.Marshal(entity.DeviceInfo)
	if err != nil {
		return nil, fmt.Errorf("failed to encode device info: %w", err)
	}
	return &models.SessionModel{
		ID:            entity.ID,
		UserID:        entity.UserID,
		TokenHash:     entity.TokenHash,
		DeviceInfo:    datatypes.JSON(device),
		IPAddress:     entity.IPAddress,
		Status:        string(entity.Status),
		LastActivity:  entity.LastActivity,
		ExpiresAt:     entity.ExpiresAt,
		InvalidatedAt: entity.InvalidatedAt,
		CreatedAt:     entity.CreatedAt,
	}, nil
}

func (sessionMapper) ToDomain(model *models.SessionModel) (*session.Record, error) {
	if model == nil {
		return nil, nil
	}
	var device session.DeviceInfo
	if len(model.DeviceInfo) > 0 {
		if err := json.Unmarshal(model.DeviceInfo, &device); err != nil {
			return nil, fmt.Errorf("failed to decode device info for session %s: %w", model.ID, err)
		}
	}
	return &session.Record{
		ID:            model.ID,
		UserID:        model.UserID,
		TokenHash:     model.TokenHash,
		DeviceInfo:    device,
		IPAddress:     model.IPAddress,
		Status:        session.Status(model.Status),
		LastActivity:  model.LastActivity.UTC(),
		ExpiresAt:     model.ExpiresAt.UTC(),
		InvalidatedAt: model.InvalidatedAt,
		CreatedAt:     model.CreatedAt.UTC(),
	}, nil
}

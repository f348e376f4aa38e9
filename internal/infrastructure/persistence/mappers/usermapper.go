package mappers

import (
	"github.com/skyguide-inc/skyguide/internal/domain/user"
	"github.com/skyguide-inc/skyguide/internal/infrastructure/persistence/models"
)

type UserMapper struct{}

func NewUserMapper() UserMapper {
	return UserMapper{}
}

func (UserMapper) ToModel(u *user.User) *models.UserModel {
	return &models.UserModel{
		ID:              u.ID,
		Email:           u.Email,
		PasswordHash:    optionalString(u.PasswordHash),
		Provider:        u.Provider,
		ProviderSubject: optionalString(u.ProviderSubject),
		CreatedAt:       u.CreatedAt,
		UpdatedAt:       u.UpdatedAt,
	}
}

func (UserMapper) ToDomain(m *models.UserModel) *user.User {
	return &user.User{
		ID:              m.ID,
		Email:           m.Email,
		PasswordHash:    derefString(m.PasswordHash),
		Provider:        m.Provider,
		ProviderSubject: derefString(m.ProviderSubject),
		CreatedAt:       m.CreatedAt.UTC(),
		UpdatedAt:       m.UpdatedAt.UTC(),
	}
}

func (UserMapper) ProfileToModel(p *user.Profile) *models.ProfileModel {
	return &models.ProfileModel{
		UserID:             p.UserID,
		Email:              p.Email,
		FullName:           p.FullName,
		IsAdmin:            p.IsAdmin,
		SubscriptionStatus: string(p.SubscriptionStatus),
	}
}

func (UserMapper) ProfileToDomain(m *models.ProfileModel) *user.Profile {
	return &user.Profile{
		UserID:             m.UserID,
		Email:              m.Email,
		FullName:           m.FullName,
		IsAdmin:            m.IsAdmin,
		SubscriptionStatus: user.SubscriptionStatus(m.SubscriptionStatus),
	}
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

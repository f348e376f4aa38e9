package repository

import (
	"context"
	stderrors "errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/skyguide-inc/skyguide/internal/domain/user"
	"github.com/skyguide-inc/skyguide/internal/infrastructure/persistence/mappers"
	"github.com/skyguide-inc/skyguide/internal/infrastructure/persistence/models"
	"github.com/skyguide-inc/skyguide/internal/shared/db"
	"github.com/skyguide-inc/skyguide/internal/shared/errors"
	"github.com/skyguide-inc/skyguide/internal/shared/logger"
)

type UserRepository struct {
	db     *gorm.DB
	mapper mappers.UserMapper
	logger logger.Interface
}

func NewUserRepository(db *gorm.DB, log logger.Interface) *UserRepository {
	return &UserRepository{
		db:     db,
		mapper: mappers.NewUserMapper(),
		logger: log.Named("user.repository"),
	}
}

var _ user.Repository = (*UserRepository)(nil)

func (r *UserRepository) Create(ctx context.Context, u *user.User) error {
	if err := db.GetTxFromContext(ctx, r.db).Create(r.mapper.ToModel(u)).Error; err != nil {
		if errors.IsDuplicateError(err) {
			return errors.NewConflictError("email already registered")
		}
		return fmt.Errorf("failed to create user: %w", err)
	}
	r.logger.Infow("user created", "user_id", u.ID, "provider", u.Provider)
	return nil
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (*user.User, error) {
	return r.first(ctx, "id = ?", id)
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*user.User, error) {
	normalized, err := user.NormalizeEmail(email)
	if err != nil {
		return nil, errors.NewNotFoundError("user not found")
	}
	return r.first(ctx, "email = ?", normalized)
}

func (r *UserRepository) GetByProviderSubject(ctx context.Context, provider, subject string) (*user.User, error) {
	return r.first(ctx, "provider = ? AND provider_subject = ?", provider, subject)
}

func (r *UserRepository) Update(ctx context.Context, u *user.User) error {
	result := db.GetTxFromContext(ctx, r.db).
		Model(&models.UserModel{}).
		Where("id = ?", u.ID).
		Updates(map[string]any{
			"email":            u.Email,
			"password_hash":    nullable(u.PasswordHash),
			"provider":         u.Provider,
			"provider_subject": nullable(u.ProviderSubject),
			"updated_at":       u.UpdatedAt,
		})
	if result.Error != nil {
		return fmt.Errorf("failed to update user: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return errors.NewNotFoundError("user not found")
	}
	return nil
}

func (r *UserRepository) first(ctx context.Context, query string, args ...any) (*user.User, error) {
	var model models.UserModel
	if err := db.GetTxFromContext(ctx, r.db).Where(query, args...).First(&model).Error; err != nil {
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.NewNotFoundError("user not found")
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return r.mapper.ToDomain(&model), nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

type ProfileRepository struct {
	db     *gorm.DB
	mapper mappers.UserMapper
}

func NewProfileRepository(db *gorm.DB) *ProfileRepository {
	return &ProfileRepository{db: db, mapper: mappers.NewUserMapper()}
}

var _ user.ProfileRepository = (*ProfileRepository)(nil)

func (r *ProfileRepository) Create(ctx context.Context, p *user.Profile) error {
	if err := p.Validate(); err != nil {
		return errors.NewValidationError("invalid profile", err.Error())
	}
	if err := db.GetTxFromContext(ctx, r.db).Create(r.mapper.ProfileToModel(p)).Error; err != nil {
		return fmt.Errorf("failed to create profile: %w", err)
	}
	return nil
}

// GetByUserID validates the row on the way out; a malformed profile is a
// fetch failure, never a partially-typed value.
func (r *ProfileRepository) GetByUserID(ctx context.Context, userID string) (*user.Profile, error) {
	var model models.ProfileModel
	if err := db.GetTxFromContext(ctx, r.db).Where("user_id = ?", userID).First(&model).Error; err != nil {
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.NewNotFoundError("profile not found")
		}
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}

	profile := r.mapper.ProfileToDomain(&model)
	if err := profile.Validate(); err != nil {
		return nil, err
	}
	return profile, nil
}

func (r *ProfileRepository) Update(ctx context.Context, p *user.Profile) error {
	if err := p.Validate(); err != nil {
		return errors.NewValidationError("invalid profile", err.Error())
	}
	result := db.GetTxFromContext(ctx, r.db).
		Model(&models.ProfileModel{}).
		Where("user_id = ?", p.UserID).
		Updates(map[string]any{
			"email":               p.Email,
			"full_name":           p.FullName,
			"is_admin":            p.IsAdmin,
			"subscription_status": string(p.SubscriptionStatus),
		})
	if result.Error != nil {
		return fmt.Errorf("failed to update profile: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return errors.NewNotFoundError("profile not found")
	}
	return nil
}

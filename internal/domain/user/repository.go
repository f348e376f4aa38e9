package user

import "context"

type Repository interface {
	Create(ctx context.Context, user *User) error
	GetByID(ctx context.Context, id string) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	GetByProviderSubject(ctx context.Context, provider, subject string) (*User, error)
	Update(ctx context.Context, user *User) error
}

// ProfileRepository returns only profiles that pass Validate.
type ProfileRepository interface {
	Create(ctx context.Context, profile *Profile) error
	GetByUserID(ctx context.Context, userID string) (*Profile, error)
	Update(ctx context.Context, profile *Profile) error
}

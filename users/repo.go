package users

import "context"

// Repo is the resource owner store. Lookups report
// internal/errors.ErrNotFound for unknown users.
type Repo interface {
	Upsert(ctx context.Context, user *User) error
	Delete(ctx context.Context, id string) error
	GetByID(ctx context.Context, id string) (*User, error)
	GetByLogin(ctx context.Context, login string) (*User, error)
	GetByPhoneNumber(ctx context.Context, phoneNumber string) (*User, error)
}

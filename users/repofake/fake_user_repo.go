package fakeuserrepo

import (
	"context"
	"sync"

	"github.com/google/uuid"
	apperrors "github.com/jrsteele09/go-uma-server/internal/errors"
	"github.com/jrsteele09/go-uma-server/users"
)

var _ users.Repo = (*FakeUserRepo)(nil)

type FakeUserRepo struct {
	users  map[string]*users.User
	logins map[string]string // login to user id
	phones map[string]string // phone number to user id
	lock   sync.RWMutex
}

func NewFakeUserRepo() *FakeUserRepo {
	return &FakeUserRepo{
		users:  make(map[string]*users.User),
		logins: make(map[string]string),
		phones: make(map[string]string),
	}
}

func (ur *FakeUserRepo) Upsert(ctx context.Context, user *users.User) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	ur.lock.Lock()
	defer ur.lock.Unlock()

	if user.ID == "" {
		user.ID = uuid.New().String()
	}
	if existing, ok := ur.users[user.ID]; ok {
		delete(ur.logins, existing.Login)
		delete(ur.phones, existing.PhoneNumber)
	}

	u := *user
	u.Roles = append([]users.RoleType(nil), user.Roles...)
	ur.users[u.ID] = &u
	if u.Login != "" {
		ur.logins[u.Login] = u.ID
	}
	if u.PhoneNumber != "" {
		ur.phones[u.PhoneNumber] = u.ID
	}
	return nil
}

func (ur *FakeUserRepo) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	ur.lock.Lock()
	defer ur.lock.Unlock()

	u, ok := ur.users[id]
	if !ok {
		return apperrors.ErrNotFound
	}
	delete(ur.logins, u.Login)
	delete(ur.phones, u.PhoneNumber)
	delete(ur.users, id)
	return nil
}

func (ur *FakeUserRepo) GetByID(ctx context.Context, id string) (*users.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ur.lock.RLock()
	defer ur.lock.RUnlock()
	return ur.copyOf(id)
}

func (ur *FakeUserRepo) GetByLogin(ctx context.Context, login string) (*users.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ur.lock.RLock()
	defer ur.lock.RUnlock()
	return ur.copyOf(ur.logins[login])
}

func (ur *FakeUserRepo) GetByPhoneNumber(ctx context.Context, phoneNumber string) (*users.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ur.lock.RLock()
	defer ur.lock.RUnlock()
	return ur.copyOf(ur.phones[phoneNumber])
}

func (ur *FakeUserRepo) copyOf(id string) (*users.User, error) {
	u, ok := ur.users[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	c := *u
	c.Roles = append([]users.RoleType(nil), u.Roles...)
	return &c, nil
}

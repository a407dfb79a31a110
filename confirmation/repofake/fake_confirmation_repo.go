package confirmationfakerepo

import (
	"context"
	"sync"

	"github.com/jrsteele09/go-uma-server/confirmation"
	apperrors "github.com/jrsteele09/go-uma-server/internal/errors"
)

var _ confirmation.Repo = (*FakeConfirmationRepo)(nil)

type FakeConfirmationRepo struct {
	codes map[string]confirmation.ConfirmationCode
	lock  sync.RWMutex
}

func NewFakeConfirmationRepo() *FakeConfirmationRepo {
	return &FakeConfirmationRepo{
		codes: make(map[string]confirmation.ConfirmationCode),
	}
}

func (r *FakeConfirmationRepo) Get(ctx context.Context, value string) (*confirmation.ConfirmationCode, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.lock.RLock()
	defer r.lock.RUnlock()

	c, ok := r.codes[value]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return &c, nil
}

func (r *FakeConfirmationRepo) Add(ctx context.Context, code *confirmation.ConfirmationCode) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.lock.Lock()
	defer r.lock.Unlock()

	if _, ok := r.codes[code.Value]; ok {
		return apperrors.ErrAlreadyExists
	}
	r.codes[code.Value] = *code
	return nil
}

func (r *FakeConfirmationRepo) Remove(ctx context.Context, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.lock.Lock()
	defer r.lock.Unlock()

	if _, ok := r.codes[value]; !ok {
		return apperrors.ErrNotFound
	}
	delete(r.codes, value)
	return nil
}

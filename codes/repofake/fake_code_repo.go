package codesfakerepo

import (
	"context"
	"sync"

	"github.com/jrsteele09/go-uma-server/codes"
	apperrors "github.com/jrsteele09/go-uma-server/internal/errors"
)

var _ codes.Repo = (*FakeCodeRepo)(nil)

type FakeCodeRepo struct {
	codes map[string]*codes.AuthorizationCode
	lock  sync.RWMutex
}

func NewFakeCodeRepo() *FakeCodeRepo {
	return &FakeCodeRepo{
		codes: make(map[string]*codes.AuthorizationCode),
	}
}

func (r *FakeCodeRepo) Get(ctx context.Context, code string) (*codes.AuthorizationCode, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.lock.RLock()
	defer r.lock.RUnlock()

	c, ok := r.codes[code]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	cp := *c
	cp.Scopes = append([]string(nil), c.Scopes...)
	return &cp, nil
}

func (r *FakeCodeRepo) Add(ctx context.Context, code *codes.AuthorizationCode) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.lock.Lock()
	defer r.lock.Unlock()

	if _, ok := r.codes[code.Code]; ok {
		return apperrors.ErrAlreadyExists
	}
	cp := *code
	r.codes[code.Code] = &cp
	return nil
}

func (r *FakeCodeRepo) Remove(ctx context.Context, code string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.lock.Lock()
	defer r.lock.Unlock()

	if _, ok := r.codes[code]; !ok {
		return apperrors.ErrNotFound
	}
	delete(r.codes, code)
	return nil
}

package tokenfakerepo

import (
	"context"
	"sync"

	apperrors "github.com/jrsteele09/go-uma-server/internal/errors"
	"github.com/jrsteele09/go-uma-server/token"
)

var _ token.Repo = (*FakeTokenRepo)(nil)

// FakeTokenRepo keeps access and refresh halves in separate indexes so that
// removing one leaves the other reachable.
type FakeTokenRepo struct {
	access  map[string]*token.GrantedToken
	refresh map[string]*token.GrantedToken
	order   []*token.GrantedToken
	lock    sync.RWMutex
}

func NewFakeTokenRepo() *FakeTokenRepo {
	return &FakeTokenRepo{
		access:  make(map[string]*token.GrantedToken),
		refresh: make(map[string]*token.GrantedToken),
	}
}

func (tr *FakeTokenRepo) GetToken(ctx context.Context, scope, clientID string, idTokenPayload, userInfoPayload token.ClaimSet) (*token.GrantedToken, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	tr.lock.RLock()
	defer tr.lock.RUnlock()

	for i := len(tr.order) - 1; i >= 0; i-- {
		t := tr.order[i]
		if _, ok := tr.access[t.AccessToken]; !ok {
			continue
		}
		if t.Scope != scope || t.ClientID != clientID {
			continue
		}
		if !token.MatchesPayload(t.IDTokenPayload, idTokenPayload) || !token.MatchesPayload(t.UserInfoPayload, userInfoPayload) {
			continue
		}
		return copyToken(t), nil
	}
	return nil, apperrors.ErrNotFound
}

func (tr *FakeTokenRepo) GetAccessToken(ctx context.Context, accessToken string) (*token.GrantedToken, error) {
	return tr.get(ctx, tr.access, accessToken)
}

func (tr *FakeTokenRepo) GetRefreshToken(ctx context.Context, refreshToken string) (*token.GrantedToken, error) {
	return tr.get(ctx, tr.refresh, refreshToken)
}

func (tr *FakeTokenRepo) get(ctx context.Context, index map[string]*token.GrantedToken, value string) (*token.GrantedToken, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	tr.lock.RLock()
	defer tr.lock.RUnlock()

	t, ok := index[value]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return copyToken(t), nil
}

func (tr *FakeTokenRepo) AddToken(ctx context.Context, t *token.GrantedToken) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	tr.lock.Lock()
	defer tr.lock.Unlock()

	if _, ok := tr.access[t.AccessToken]; ok {
		return apperrors.ErrAlreadyExists
	}
	stored := copyToken(t)
	tr.access[stored.AccessToken] = stored
	if stored.RefreshToken != "" {
		tr.refresh[stored.RefreshToken] = stored
	}
	tr.order = append(tr.order, stored)
	return nil
}

func (tr *FakeTokenRepo) RemoveAccessToken(ctx context.Context, accessToken string) error {
	return tr.remove(ctx, tr.access, accessToken)
}

func (tr *FakeTokenRepo) RemoveRefreshToken(ctx context.Context, refreshToken string) error {
	return tr.remove(ctx, tr.refresh, refreshToken)
}

func (tr *FakeTokenRepo) remove(ctx context.Context, index map[string]*token.GrantedToken, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	tr.lock.Lock()
	defer tr.lock.Unlock()

	if _, ok := index[value]; !ok {
		return apperrors.ErrNotFound
	}
	delete(index, value)
	tr.compact()
	return nil
}

// compact drops tokens that are no longer reachable by either half.
func (tr *FakeTokenRepo) compact() {
	kept := tr.order[:0]
	for _, t := range tr.order {
		_, hasAccess := tr.access[t.AccessToken]
		_, hasRefresh := tr.refresh[t.RefreshToken]
		if hasAccess || hasRefresh {
			kept = append(kept, t)
		}
	}
	for i := len(kept); i < len(tr.order); i++ {
		tr.order[i] = nil
	}
	tr.order = kept
}

func copyToken(t *token.GrantedToken) *token.GrantedToken {
	c := *t
	c.IDTokenPayload = append(token.ClaimSet(nil), t.IDTokenPayload...)
	c.UserInfoPayload = append(token.ClaimSet(nil), t.UserInfoPayload...)
	return &c
}

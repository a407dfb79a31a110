package umafakerepo

import (
	"context"
	"encoding/json"
	"slices"
	"sync"

	apperrors "github.com/jrsteele09/go-uma-server/internal/errors"
	"github.com/jrsteele09/go-uma-server/uma"
)

var (
	_ uma.TicketRepo      = (*FakeTicketRepo)(nil)
	_ uma.ResourceSetRepo = (*FakeResourceSetRepo)(nil)
	_ uma.PolicyRepo      = (*FakePolicyRepo)(nil)
	_ uma.ConsentRepo     = (*FakeConsentRepo)(nil)
)

// clone deep copies through JSON so callers never share nested slices with
// the store.
func clone[T any](v *T) *T {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	var out T
	if err := json.Unmarshal(data, &out); err != nil {
		panic(err)
	}
	return &out
}

type FakeTicketRepo struct {
	tickets map[string]*uma.Ticket
	lock    sync.RWMutex
}

func NewFakeTicketRepo() *FakeTicketRepo {
	return &FakeTicketRepo{tickets: make(map[string]*uma.Ticket)}
}

func (r *FakeTicketRepo) Get(ctx context.Context, id string) (*uma.Ticket, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.lock.RLock()
	defer r.lock.RUnlock()

	t, ok := r.tickets[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return clone(t), nil
}

func (r *FakeTicketRepo) Add(ctx context.Context, ticket *uma.Ticket) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.lock.Lock()
	defer r.lock.Unlock()

	if _, ok := r.tickets[ticket.ID]; ok {
		return apperrors.ErrAlreadyExists
	}
	r.tickets[ticket.ID] = clone(ticket)
	return nil
}

func (r *FakeTicketRepo) Remove(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.lock.Lock()
	defer r.lock.Unlock()

	if _, ok := r.tickets[id]; !ok {
		return apperrors.ErrNotFound
	}
	delete(r.tickets, id)
	return nil
}

func (r *FakeTicketRepo) ApproveAccess(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.lock.Lock()
	defer r.lock.Unlock()

	t, ok := r.tickets[id]
	if !ok {
		return apperrors.ErrNotFound
	}
	t.IsAuthorizedByRo = true
	return nil
}

type FakeResourceSetRepo struct {
	resourceSets map[string]*uma.ResourceSet
	lock         sync.RWMutex
}

func NewFakeResourceSetRepo() *FakeResourceSetRepo {
	return &FakeResourceSetRepo{resourceSets: make(map[string]*uma.ResourceSet)}
}

func (r *FakeResourceSetRepo) Get(ctx context.Context, id string) (*uma.ResourceSet, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.lock.RLock()
	defer r.lock.RUnlock()

	rs, ok := r.resourceSets[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return clone(rs), nil
}

// GetByIDs returns the resource sets that exist, skipping unknown ids.
func (r *FakeResourceSetRepo) GetByIDs(ctx context.Context, ids []string) ([]*uma.ResourceSet, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.lock.RLock()
	defer r.lock.RUnlock()

	out := make([]*uma.ResourceSet, 0, len(ids))
	for _, id := range ids {
		if rs, ok := r.resourceSets[id]; ok {
			out = append(out, clone(rs))
		}
	}
	return out, nil
}

func (r *FakeResourceSetRepo) Upsert(ctx context.Context, resourceSet *uma.ResourceSet) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.lock.Lock()
	defer r.lock.Unlock()
	r.resourceSets[resourceSet.ID] = clone(resourceSet)
	return nil
}

type FakePolicyRepo struct {
	policies map[string]*uma.Policy
	lock     sync.RWMutex
}

func NewFakePolicyRepo() *FakePolicyRepo {
	return &FakePolicyRepo{policies: make(map[string]*uma.Policy)}
}

func (r *FakePolicyRepo) Get(ctx context.Context, id string) (*uma.Policy, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.lock.RLock()
	defer r.lock.RUnlock()

	p, ok := r.policies[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return clone(p), nil
}

func (r *FakePolicyRepo) GetByResourceSet(ctx context.Context, resourceSetID string) ([]*uma.Policy, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.lock.RLock()
	defer r.lock.RUnlock()

	out := make([]*uma.Policy, 0)
	for _, p := range r.policies {
		if slices.Contains(p.ResourceSetIDs, resourceSetID) {
			out = append(out, clone(p))
		}
	}
	slices.SortFunc(out, func(a, b *uma.Policy) int {
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		}
		return 0
	})
	return out, nil
}

func (r *FakePolicyRepo) Upsert(ctx context.Context, policy *uma.Policy) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.lock.Lock()
	defer r.lock.Unlock()
	r.policies[policy.ID] = clone(policy)
	return nil
}

type consentKey struct {
	resourceOwner, clientID, resourceSetID string
}

type FakeConsentRepo struct {
	consents map[consentKey]*uma.Consent
	lock     sync.RWMutex
}

func NewFakeConsentRepo() *FakeConsentRepo {
	return &FakeConsentRepo{consents: make(map[consentKey]*uma.Consent)}
}

func (r *FakeConsentRepo) Get(ctx context.Context, resourceOwner, clientID, resourceSetID string) (*uma.Consent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.lock.RLock()
	defer r.lock.RUnlock()

	c, ok := r.consents[consentKey{resourceOwner, clientID, resourceSetID}]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return clone(c), nil
}

func (r *FakeConsentRepo) Upsert(ctx context.Context, consent *uma.Consent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.lock.Lock()
	defer r.lock.Unlock()
	r.consents[consentKey{consent.ResourceOwner, consent.ClientID, consent.ResourceSetID}] = clone(consent)
	return nil
}

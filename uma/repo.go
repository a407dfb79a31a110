package uma

import "context"

// TicketRepo stores permission tickets. Remove reports
// internal/errors.ErrNotFound when the ticket is absent.
type TicketRepo interface {
	Get(ctx context.Context, id string) (*Ticket, error)
	Add(ctx context.Context, ticket *Ticket) error
	Remove(ctx context.Context, id string) error
	// ApproveAccess marks the ticket as authorized by its resource owner.
	ApproveAccess(ctx context.Context, id string) error
}

type ResourceSetRepo interface {
	Get(ctx context.Context, id string) (*ResourceSet, error)
	GetByIDs(ctx context.Context, ids []string) ([]*ResourceSet, error)
	Upsert(ctx context.Context, resourceSet *ResourceSet) error
}

type PolicyRepo interface {
	Get(ctx context.Context, id string) (*Policy, error)
	GetByResourceSet(ctx context.Context, resourceSetID string) ([]*Policy, error)
	Upsert(ctx context.Context, policy *Policy) error
}

type ConsentRepo interface {
	// Get returns the consent of resourceOwner for clientID on resourceSetID.
	Get(ctx context.Context, resourceOwner, clientID, resourceSetID string) (*Consent, error)
	Upsert(ctx context.Context, consent *Consent) error
}

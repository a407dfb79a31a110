package uma

import (
	"context"
	"slices"
	"time"

	"github.com/google/uuid"
	apperrors "github.com/jrsteele09/go-uma-server/internal/errors"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

const defaultTicketExpiry = time.Hour

// PermissionRequest is one entry of a resource server's permission request.
type PermissionRequest struct {
	ResourceSetID string   `json:"resource_set_id"`
	Scopes        []string `json:"scopes"`
}

// PermissionService issues tickets for permission requests and records
// resource owner approval.
type PermissionService struct {
	tickets      TicketRepo
	resourceSets ResourceSetRepo
	expiry       time.Duration
	nowFunc      func() time.Time
	logger       zerolog.Logger
}

type PermissionServiceOption func(*PermissionService)

func WithTicketExpiry(d time.Duration) PermissionServiceOption {
	return func(s *PermissionService) {
		s.expiry = d
	}
}

func WithNowFunc(now func() time.Time) PermissionServiceOption {
	return func(s *PermissionService) {
		s.nowFunc = now
	}
}

func WithPermissionLogger(logger zerolog.Logger) PermissionServiceOption {
	return func(s *PermissionService) {
		s.logger = logger
	}
}

func NewPermissionService(tickets TicketRepo, resourceSets ResourceSetRepo, options ...PermissionServiceOption) *PermissionService {
	s := &PermissionService{
		tickets:      tickets,
		resourceSets: resourceSets,
		expiry:       defaultTicketExpiry,
		nowFunc:      time.Now,
		logger:       zerolog.Nop(),
	}
	for _, opt := range options {
		opt(s)
	}
	return s
}

// AddPermissions validates the requests against the registered resource
// sets and stores a ticket with one line per request. All resource sets
// must belong to the same owner.
func (s *PermissionService) AddPermissions(ctx context.Context, requests []PermissionRequest) (*Ticket, error) {
	if len(requests) == 0 {
		return nil, apperrors.MissingParameter("resource_set_id")
	}

	ids := make([]string, 0, len(requests))
	for _, req := range requests {
		if req.ResourceSetID == "" {
			return nil, apperrors.MissingParameter("resource_set_id")
		}
		if len(req.Scopes) == 0 {
			return nil, apperrors.MissingParameter("scopes")
		}
		ids = append(ids, req.ResourceSetID)
	}

	resourceSets, err := s.resourceSets.GetByIDs(ctx, ids)
	if err != nil {
		return nil, errors.Wrap(err, "[PermissionService.AddPermissions] GetByIDs")
	}
	byID := make(map[string]*ResourceSet, len(resourceSets))
	for _, rs := range resourceSets {
		byID[rs.ID] = rs
	}

	owner := ""
	lines := make([]TicketLine, 0, len(requests))
	for _, req := range requests {
		rs, ok := byID[req.ResourceSetID]
		if !ok {
			return nil, apperrors.InvalidResourceSetID("resource set %s doesn't exist", req.ResourceSetID)
		}
		var undeclared []string
		for _, scope := range req.Scopes {
			if !slices.Contains(rs.Scopes, scope) {
				undeclared = append(undeclared, scope)
			}
		}
		if len(undeclared) > 0 {
			return nil, apperrors.InvalidScope("the scopes %s are not declared by the resource set", undeclared)
		}
		if owner == "" {
			owner = rs.Owner
		} else if owner != rs.Owner {
			return nil, apperrors.InvalidRequest("the resource sets belong to different owners")
		}

		lines = append(lines, TicketLine{
			ID:            uuid.New().String(),
			ResourceSetID: rs.ID,
			Scopes:        append([]string(nil), req.Scopes...),
		})
	}

	ticket := &Ticket{
		ID:             uuid.New().String(),
		ResourceOwner:  owner,
		CreateDateTime: s.nowFunc().UTC(),
		ExpiresIn:      int(s.expiry / time.Second),
		Lines:          lines,
	}
	if err := s.tickets.Add(ctx, ticket); err != nil {
		return nil, errors.Wrap(err, "[PermissionService.AddPermissions] tickets.Add")
	}
	s.logger.Debug().Str("ticket_id", ticket.ID).Int("lines", len(lines)).Msg("permission ticket issued")
	return ticket, nil
}

// ApproveAccess records the resource owner's approval of a pending ticket.
func (s *PermissionService) ApproveAccess(ctx context.Context, resourceOwner, ticketID string) error {
	ticket, err := s.tickets.Get(ctx, ticketID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return apperrors.InvalidRequest("the ticket %s doesn't exist", ticketID)
		}
		return errors.Wrap(err, "[PermissionService.ApproveAccess] tickets.Get")
	}
	if ticket.ResourceOwner != resourceOwner {
		return apperrors.NotAuthorized("the ticket %s is not owned by the caller", ticketID)
	}
	if ticket.IsExpired(s.nowFunc()) {
		return apperrors.InvalidRequest("the ticket %s has expired", ticketID)
	}
	if err := s.tickets.ApproveAccess(ctx, ticketID); err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return apperrors.InvalidRequest("the ticket %s doesn't exist", ticketID)
		}
		return errors.Wrap(err, "[PermissionService.ApproveAccess] tickets.ApproveAccess")
	}
	return nil
}

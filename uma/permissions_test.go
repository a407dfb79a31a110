package uma_test

import (
	"context"
	"testing"
	"time"

	apperrors "github.com/jrsteele09/go-uma-server/internal/errors"
	"github.com/jrsteele09/go-uma-server/uma"
	umafakerepo "github.com/jrsteele09/go-uma-server/uma/repofake"
	"github.com/stretchr/testify/require"
)

func setupPermissionService(t *testing.T, now *time.Time) (*uma.PermissionService, *umafakerepo.FakeTicketRepo) {
	t.Helper()
	ctx := context.Background()

	resourceSets := umafakerepo.NewFakeResourceSetRepo()
	require.NoError(t, resourceSets.Upsert(ctx, &uma.ResourceSet{ID: "photos", Owner: "alice", Scopes: []string{"read", "write"}}))
	require.NoError(t, resourceSets.Upsert(ctx, &uma.ResourceSet{ID: "albums", Owner: "alice", Scopes: []string{"read"}}))
	require.NoError(t, resourceSets.Upsert(ctx, &uma.ResourceSet{ID: "notes", Owner: "bob", Scopes: []string{"read"}}))

	tickets := umafakerepo.NewFakeTicketRepo()
	service := uma.NewPermissionService(tickets, resourceSets,
		uma.WithTicketExpiry(10*time.Minute),
		uma.WithNowFunc(func() time.Time { return *now }),
	)
	return service, tickets
}

func TestAddPermissions(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	service, tickets := setupPermissionService(t, &now)
	ctx := context.Background()

	ticket, err := service.AddPermissions(ctx, []uma.PermissionRequest{
		{ResourceSetID: "photos", Scopes: []string{"read"}},
		{ResourceSetID: "albums", Scopes: []string{"read"}},
	})
	require.NoError(t, err)
	require.Equal(t, "alice", ticket.ResourceOwner)
	require.Equal(t, 600, ticket.ExpiresIn)
	require.Len(t, ticket.Lines, 2)

	stored, err := tickets.Get(ctx, ticket.ID)
	require.NoError(t, err)
	require.Equal(t, ticket.Lines, stored.Lines)

	tests := map[string]struct {
		requests []uma.PermissionRequest
		code     string
		detail   string
	}{
		"empty request": {
			code: apperrors.CodeInvalidRequest, detail: "missing parameter: resource_set_id",
		},
		"missing scopes": {
			requests: []uma.PermissionRequest{{ResourceSetID: "photos"}},
			code:     apperrors.CodeInvalidRequest, detail: "missing parameter: scopes",
		},
		"unknown resource set": {
			requests: []uma.PermissionRequest{{ResourceSetID: "ghost", Scopes: []string{"read"}}},
			code:     apperrors.CodeInvalidResourceSetID, detail: "resource set ghost doesn't exist",
		},
		"undeclared scope": {
			requests: []uma.PermissionRequest{{ResourceSetID: "albums", Scopes: []string{"read", "delete"}}},
			code:     apperrors.CodeInvalidScope, detail: "the scopes delete are not declared by the resource set",
		},
		"different owners": {
			requests: []uma.PermissionRequest{
				{ResourceSetID: "photos", Scopes: []string{"read"}},
				{ResourceSetID: "notes", Scopes: []string{"read"}},
			},
			code: apperrors.CodeInvalidRequest, detail: "the resource sets belong to different owners",
		},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := service.AddPermissions(ctx, tt.requests)
			pe, ok := apperrors.AsProtocolError(err)
			require.True(t, ok)
			require.Equal(t, tt.code, pe.Code)
			require.Equal(t, tt.detail, pe.Detail)
		})
	}
}

func TestApproveAccess(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	service, tickets := setupPermissionService(t, &now)
	ctx := context.Background()

	ticket, err := service.AddPermissions(ctx, []uma.PermissionRequest{{ResourceSetID: "photos", Scopes: []string{"read"}}})
	require.NoError(t, err)

	err = service.ApproveAccess(ctx, "bob", ticket.ID)
	require.True(t, apperrors.HasCode(err, apperrors.CodeInvalidGrant))

	require.NoError(t, service.ApproveAccess(ctx, "alice", ticket.ID))
	stored, err := tickets.Get(ctx, ticket.ID)
	require.NoError(t, err)
	require.True(t, stored.IsAuthorizedByRo)

	now = now.Add(10 * time.Minute)
	err = service.ApproveAccess(ctx, "alice", ticket.ID)
	require.True(t, apperrors.HasCode(err, apperrors.CodeInvalidRequest))

	err = service.ApproveAccess(ctx, "alice", "ghost")
	require.True(t, apperrors.HasCode(err, apperrors.CodeInvalidRequest))
}

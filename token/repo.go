package token

import "context"

// Repo is the granted token store. Removal reports internal/errors.ErrNotFound
// when the value is absent, which makes it the single point where a
// concurrent consumer wins or loses.
type Repo interface {
	// GetToken returns the most recently created token still reachable by
	// its access token that matches scope, client and payloads.
	GetToken(ctx context.Context, scope, clientID string, idTokenPayload, userInfoPayload ClaimSet) (*GrantedToken, error)
	GetAccessToken(ctx context.Context, accessToken string) (*GrantedToken, error)
	GetRefreshToken(ctx context.Context, refreshToken string) (*GrantedToken, error)
	AddToken(ctx context.Context, token *GrantedToken) error
	RemoveAccessToken(ctx context.Context, accessToken string) error
	RemoveRefreshToken(ctx context.Context, refreshToken string) error
}

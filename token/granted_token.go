package token

import "time"

// GrantedToken is an issued access/refresh token pair. The access and
// refresh halves are stored, looked up and revoked independently.
type GrantedToken struct {
	AccessToken           string    `json:"access_token"`
	RefreshToken          string    `json:"refresh_token,omitempty"`
	IDToken               string    `json:"id_token,omitempty"`
	IDTokenPayload        ClaimSet  `json:"id_token_payload,omitempty"`
	UserInfoPayload       ClaimSet  `json:"user_info_payload,omitempty"`
	Scope                 string    `json:"scope"`
	ClientID              string    `json:"client_id"`
	CreateDateTime        time.Time `json:"create_date_time"`
	ExpiresIn             int       `json:"expires_in"`
	RefreshTokenExpiresIn int       `json:"refresh_token_expires_in,omitempty"`
	TokenType             string    `json:"token_type"`
}

// ExpiresAt is the instant the access token stops being valid.
func (g *GrantedToken) ExpiresAt() time.Time {
	return g.CreateDateTime.Add(time.Duration(g.ExpiresIn) * time.Second)
}

// IsExpired is inclusive: a token is already expired at ExpiresAt.
func (g *GrantedToken) IsExpired(now time.Time) bool {
	return !now.Before(g.ExpiresAt())
}

func (g *GrantedToken) RefreshTokenExpiresAt() time.Time {
	lifetime := g.RefreshTokenExpiresIn
	if lifetime <= 0 {
		lifetime = g.ExpiresIn
	}
	return g.CreateDateTime.Add(time.Duration(lifetime) * time.Second)
}

func (g *GrantedToken) IsRefreshTokenExpired(now time.Time) bool {
	return !now.Before(g.RefreshTokenExpiresAt())
}

// Subject is the resource owner the token was issued for, if any.
func (g *GrantedToken) Subject() string {
	return g.IDTokenPayload.String("sub")
}

// MatchesPayload reports whether the stored payload holds every claim of
// the comparison payload. An empty comparison only matches an empty payload.
func MatchesPayload(stored, comparison ClaimSet) bool {
	if len(comparison) == 0 {
		return len(stored) == 0
	}
	return stored.Contains(comparison)
}

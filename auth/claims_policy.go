package auth

import (
	"slices"

	"github.com/jrsteele09/go-uma-server/token"
)

// scopeClaims maps a scope to the resource owner claims it releases. The
// "sub" claim is always released.
var scopeClaims = map[string][]string{
	"openid":  {"sub"},
	"profile": {"name", "given_name", "family_name", "preferred_username"},
	"email":   {"email", "email_verified"},
	"phone":   {"phone_number"},
	"role":    {"role"},
}

// filterClaims keeps the claims released by the granted scopes, preserving
// the order of claims.
func filterClaims(claims token.ClaimSet, scopes []string) token.ClaimSet {
	allowed := []string{"sub"}
	for _, scope := range scopes {
		allowed = append(allowed, scopeClaims[scope]...)
	}

	filtered := make(token.ClaimSet, 0, len(claims))
	for _, c := range claims {
		if slices.Contains(allowed, c.Type) {
			filtered = append(filtered, c)
		}
	}
	return filtered
}

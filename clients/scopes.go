package clients

import (
	"strings"

	apperrors "github.com/jrsteele09/go-uma-server/internal/errors"
)

// SplitScopes splits a space separated scope parameter.
func SplitScopes(scope string) []string {
	return strings.Fields(scope)
}

// ValidateScopes checks that every requested scope is allowed for this client.
// Duplicated and unknown scopes are rejected, naming the offending scopes.
func (c *Client) ValidateScopes(requestedScopes string) ([]string, error) {
	scopes := SplitScopes(requestedScopes)
	if len(scopes) == 0 {
		return nil, apperrors.MissingParameter("scope")
	}

	counts := make(map[string]int, len(scopes))
	var duplicates []string
	for _, scope := range scopes {
		counts[scope]++
		if counts[scope] == 2 {
			duplicates = append(duplicates, scope)
		}
	}
	if len(duplicates) > 0 {
		return nil, apperrors.InvalidScope("duplicate scopes : %s", duplicates)
	}

	var invalid []string
	for _, scope := range scopes {
		if !c.HasScope(scope) {
			invalid = append(invalid, scope)
		}
	}
	if len(invalid) > 0 {
		return nil, apperrors.InvalidScope("the scopes %s are not allowed or invalid", invalid)
	}
	return scopes, nil
}

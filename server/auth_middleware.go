package server

import (
	"context"
	"net/http"
	"slices"
	"strings"

	apperrors "github.com/jrsteele09/go-uma-server/internal/errors"
	"github.com/jrsteele09/go-uma-server/token"
	"github.com/pkg/errors"
)

// ContextKey is a custom type for context keys to avoid collisions
type ContextKey string

// ContextKeyGrantedToken stores the validated bearer token of the request.
const ContextKeyGrantedToken ContextKey = "granted_token"

// ScopeUMAProtection marks an access token as a protection API token (PAT).
const ScopeUMAProtection = "uma_protection"

// RequireAuth is middleware that validates a Bearer access token issued by
// this server. When scope is set the token must have been granted it.
func (s *Server) RequireAuth(scope string) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			accessToken, ok := bearerToken(r)
			if !ok {
				writeJSONError(w, r, apperrors.InvalidToken("missing bearer token"))
				return
			}

			granted, err := s.services.Tokens.GetByAccessToken(r.Context(), accessToken)
			if err != nil {
				if errors.Is(err, apperrors.ErrNotFound) {
					writeJSONError(w, r, apperrors.InvalidToken("the token doesn't exist"))
					return
				}
				writeJSONError(w, r, errors.Wrap(err, "[Server.RequireAuth] GetByAccessToken"))
				return
			}
			if status := s.services.Tokens.Validate(granted); status != token.Valid {
				writeJSONError(w, r, apperrors.InvalidToken("the token is %s", status))
				return
			}
			if scope != "" && !slices.Contains(strings.Fields(granted.Scope), scope) {
				writeJSONError(w, r, apperrors.InvalidToken("the token has not been granted the scope %s", scope))
				return
			}

			ctx := context.WithValue(r.Context(), ContextKeyGrantedToken, granted)
			next(w, r.WithContext(ctx))
		}
	}
}

func grantedTokenFromContext(ctx context.Context) *token.GrantedToken {
	granted, _ := ctx.Value(ContextKeyGrantedToken).(*token.GrantedToken)
	return granted
}

func bearerToken(r *http.Request) (string, bool) {
	parts := strings.SplitN(r.Header.Get("Authorization"), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

package server

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"

	apperrors "github.com/jrsteele09/go-uma-server/internal/errors"
	"github.com/jrsteele09/go-uma-server/uma"
)

const maxPermissionBody = 1 << 20

// Permission registers the permissions a resource server wants on behalf of
// a requesting party and answers with a ticket. The body is either a single
// permission request or an array of them.
func (s *Server) Permission() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		requests, err := decodePermissionRequests(http.MaxBytesReader(w, r.Body, maxPermissionBody))
		if err != nil {
			writeJSONError(w, r, err)
			return
		}

		ticket, err := s.services.Permissions.AddPermissions(r.Context(), requests)
		if err != nil {
			writeJSONError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]string{"ticket": ticket.ID})
	}
}

func decodePermissionRequests(body io.Reader) ([]uma.PermissionRequest, error) {
	raw, err := io.ReadAll(body)
	if err != nil {
		return nil, apperrors.InvalidRequest("the request body cannot be read")
	}
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil, apperrors.InvalidRequest("the request body is empty")
	}

	var requests []uma.PermissionRequest
	if raw[0] == '[' {
		err = json.Unmarshal(raw, &requests)
	} else {
		var single uma.PermissionRequest
		err = json.Unmarshal(raw, &single)
		requests = []uma.PermissionRequest{single}
	}
	if err != nil {
		return nil, apperrors.InvalidRequest("the request body is not a valid permission request")
	}
	return requests, nil
}

// ApproveTicket records that the resource owner behind the bearer token
// approves a pending ticket.
func (s *Server) ApproveTicket() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		granted := grantedTokenFromContext(r.Context())
		owner := granted.Subject()
		if owner == "" {
			writeJSONError(w, r, apperrors.NotAuthorized("the token has not been issued for a resource owner"))
			return
		}

		if err := s.services.Permissions.ApproveAccess(r.Context(), owner, r.PathValue("ticket")); err != nil {
			writeJSONError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

package server

import (
	"encoding/json"
	"net/http"

	apperrors "github.com/jrsteele09/go-uma-server/internal/errors"
	"github.com/jrsteele09/go-uma-server/oauth2"
	"github.com/jrsteele09/go-uma-server/token/keys"
	"github.com/rs/zerolog/log"
)

const contentTypeJSON = "application/json"

// WellKnownOpenIDConfig serves the OpenID Connect discovery document.
func (s *Server) WellKnownOpenIDConfig() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		discovery := map[string]any{
			"issuer":                                s.issuer(),
			"token_endpoint":                        s.endpoint(RouteOAuth2Token),
			"jwks_uri":                              s.endpoint(RouteWellKnownJWKS),
			"revocation_endpoint":                   s.endpoint(RouteOAuth2Revoke),
			"introspection_endpoint":                s.endpoint(RouteOAuth2Introspect),
			"response_types_supported":              []oauth2.ResponseType{oauth2.CodeResponseType, oauth2.TokenResponseType},
			"grant_types_supported":                 supportedGrantTypes,
			"subject_types_supported":               []string{"public"},
			"id_token_signing_alg_values_supported": s.signingAlgorithms(),
			"token_endpoint_auth_methods_supported": supportedAuthMethods,
			"code_challenge_methods_supported":      []oauth2.CodeMethodType{oauth2.CodeMethodTypeS256, oauth2.CodeMethodTypePlain},
			"scopes_supported":                      []string{"openid", "profile", "email", "phone", "role", ScopeUMAProtection},
			"claims_supported": []string{
				"sub", "iss", "aud", "exp", "iat", "name", "given_name", "family_name",
				"preferred_username", "email", "email_verified", "phone_number", "role", "amr",
			},
		}
		writeJSON(w, http.StatusOK, discovery)
	}
}

// WellKnownUMA2Config serves the UMA 2.0 authorization server metadata.
func (s *Server) WellKnownUMA2Config() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		discovery := map[string]any{
			"issuer":                                s.issuer(),
			"token_endpoint":                        s.endpoint(RouteOAuth2Token),
			"jwks_uri":                              s.endpoint(RouteWellKnownJWKS),
			"revocation_endpoint":                   s.endpoint(RouteOAuth2Revoke),
			"introspection_endpoint":                s.endpoint(RouteOAuth2Introspect),
			"permission_endpoint":                   s.endpoint(RouteUMAPermission),
			"grant_types_supported":                 supportedGrantTypes,
			"token_endpoint_auth_methods_supported": supportedAuthMethods,
			"uma_profiles_supported":                []string{},
		}
		if url := s.config.GetClaimsInteractionURL(); url != "" {
			discovery["claims_interaction_endpoint"] = url
		}
		writeJSON(w, http.StatusOK, discovery)
	}
}

var (
	supportedGrantTypes = []oauth2.GrantType{
		oauth2.AuthorizationCodeGrant,
		oauth2.ClientCredentialsGrant,
		oauth2.PasswordGrant,
		oauth2.RefreshTokenGrant,
		oauth2.UmaTicketGrant,
	}
	supportedAuthMethods = []oauth2.AuthMethod{
		oauth2.ClientSecretBasic,
		oauth2.ClientSecretPost,
		oauth2.ClientSecretJWT,
		oauth2.PrivateKeyJWT,
		oauth2.TLSClientAuth,
	}
)

func (s *Server) signingAlgorithms() []string {
	var algs []string
	seen := map[string]bool{}
	for _, key := range s.services.Keys.GetPublicKeys().Keys {
		if key.Use == keys.UseSig && !seen[key.Algorithm] {
			seen[key.Algorithm] = true
			algs = append(algs, key.Algorithm)
		}
	}
	return algs
}

// JWKS returns the public key set relying parties verify tokens with.
func (s *Server) JWKS() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "public, max-age=300")
		writeJSON(w, http.StatusOK, s.services.Keys.GetPublicKeys())
	}
}

// Token handles token requests for every supported grant type.
func (s *Server) Token() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			writeJSONError(w, r, apperrors.InvalidRequest("the request body cannot be parsed"))
			return
		}

		tokenResponse, err := s.services.Auth.Token(r.Context(), tokenRequestFromForm(r), s.issuer())
		if err != nil {
			writeJSONError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, tokenResponse)
	}
}

// Introspect describes a token to an authenticated client.
func (s *Server) Introspect() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			writeJSONError(w, r, apperrors.InvalidRequest("the request body cannot be parsed"))
			return
		}

		introspection, err := s.services.Auth.Introspect(r.Context(), tokenActionRequestFromForm(r), s.issuer())
		if err != nil {
			writeJSONError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, introspection)
	}
}

// Revoke revokes one half of a token pair owned by the calling client.
func (s *Server) Revoke() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			writeJSONError(w, r, apperrors.InvalidRequest("the request body cannot be parsed"))
			return
		}

		if err := s.services.Auth.Revoke(r.Context(), tokenActionRequestFromForm(r), s.issuer()); err != nil {
			writeJSONError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusOK)
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Err(err).Msg("failed to encode response")
	}
}

// writeJSONError renders protocol errors as {title, detail, status} plus
// their extensions. Anything else is a fault and is reported as a 500.
func writeJSONError(w http.ResponseWriter, r *http.Request, err error) {
	pe, ok := apperrors.AsProtocolError(err)
	if !ok {
		log.Err(err).Str("method", r.Method).Str("path", r.URL.Path).Msg("request failed")
		writeInternalError(w)
		return
	}
	log.Debug().Str("path", r.URL.Path).Str("error", pe.Code).Str("detail", pe.Detail).Msg("request rejected")

	body := make(map[string]any, len(pe.Extensions)+3)
	for name, value := range pe.Extensions {
		body[name] = value
	}
	body["title"] = pe.Code
	body["detail"] = pe.Detail
	body["status"] = pe.Status
	writeJSON(w, pe.Status, body)
}

func writeInternalError(w http.ResponseWriter) {
	writeJSON(w, http.StatusInternalServerError, oauth2.ErrorResponse{
		Title:  apperrors.CodeInternalError,
		Detail: "internal server error",
		Status: http.StatusInternalServerError,
	})
}

package server

import "github.com/jrsteele09/go-uma-server/oauth2"

// Route path constants
// All application routes are defined here to ensure consistency and prevent typos
const (
	// Discovery
	RouteWellKnownOpenIDConfig = "/.well-known/openid-configuration"
	RouteWellKnownUMA2Config   = "/.well-known/uma2-configuration"
	RouteWellKnownJWKS         = "/.well-known/jwks.json"

	// OAuth2 token endpoints
	RouteOAuth2Token      = oauth2.TokenEndpointPath
	RouteOAuth2Introspect = "/oauth2/introspect"
	RouteOAuth2Revoke     = "/oauth2/revoke"

	// UMA protection API
	RouteUMAPermission    = "/uma/permission"
	RouteUMATicketApprove = "/uma/tickets/{ticket}/approve"
)

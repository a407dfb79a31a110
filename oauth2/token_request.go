package oauth2

import (
	"crypto/x509"
	"strings"
)

// ClientCredentials holds every way a client may have presented itself.
// Which of them are consulted depends on the client's configured auth method.
type ClientCredentials struct {
	BasicClientID       string // From the Authorization: Basic header
	BasicClientSecret   string
	ClientID            string // From the request body
	ClientSecret        string
	ClientAssertion     string
	ClientAssertionType string
	Certificate         *x509.Certificate // Verified TLS peer certificate
}

// TokenRequest is a form-decoded request to the token endpoint.
type TokenRequest struct {
	GrantType        GrantType
	Code             string
	RedirectURI      string
	CodeVerifier     string
	Username         string
	Password         string
	Scope            string
	RefreshToken     string
	Ticket           string
	ClaimToken       string
	ClaimTokenFormat string
	AmrValues        string
	Credentials      ClientCredentials
}

// Parameter names as they appear on the wire.
const (
	ParamGrantType    = "grant_type"
	ParamCode         = "code"
	ParamRedirectURI  = "redirect_uri"
	ParamCodeVerifier = "code_verifier"
	ParamUsername     = "username"
	ParamPassword     = "password"
	ParamScope        = "scope"
	ParamRefreshToken = "refresh_token"
	ParamTicket       = "ticket"
	ParamToken        = "token"
)

// Param returns the value of a named request parameter.
func (r TokenRequest) Param(name string) string {
	switch name {
	case ParamGrantType:
		return string(r.GrantType)
	case ParamCode:
		return r.Code
	case ParamRedirectURI:
		return r.RedirectURI
	case ParamCodeVerifier:
		return r.CodeVerifier
	case ParamUsername:
		return r.Username
	case ParamPassword:
		return r.Password
	case ParamScope:
		return r.Scope
	case ParamRefreshToken:
		return r.RefreshToken
	case ParamTicket:
		return r.Ticket
	default:
		return ""
	}
}

// Amr returns the requested authentication method references in preference order.
func (r TokenRequest) Amr() []string {
	return strings.Fields(r.AmrValues)
}

// TokenActionRequest is the body of a revocation or introspection request.
type TokenActionRequest struct {
	Token         string
	TokenTypeHint TokenTypeHint
	Credentials   ClientCredentials
}

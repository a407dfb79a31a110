package auth

import (
	apperrors "github.com/jrsteele09/go-uma-server/internal/errors"
	"github.com/jrsteele09/go-uma-server/oauth2"
)

// requiredParameters lists, per grant, the parameters that must be present,
// in the order they are checked.
var requiredParameters = map[oauth2.GrantType][]string{
	oauth2.AuthorizationCodeGrant: {oauth2.ParamCode, oauth2.ParamRedirectURI},
	oauth2.ClientCredentialsGrant: {oauth2.ParamScope},
	oauth2.PasswordGrant:          {oauth2.ParamUsername, oauth2.ParamPassword, oauth2.ParamScope},
	oauth2.RefreshTokenGrant:      {oauth2.ParamRefreshToken},
	oauth2.UmaTicketGrant:         {oauth2.ParamTicket},
}

// validateRequiredParameters fails on the first missing parameter of the
// request's grant.
func validateRequiredParameters(req oauth2.TokenRequest) error {
	for _, name := range requiredParameters[req.GrantType] {
		if req.Param(name) == "" {
			return apperrors.MissingParameter(name)
		}
	}
	return nil
}

// RequiredParameters returns the required parameters of a grant in check order.
func RequiredParameters(grantType oauth2.GrantType) []string {
	return append([]string(nil), requiredParameters[grantType]...)
}

package auth

import (
	"context"
	"slices"
	"strings"

	"github.com/jrsteele09/go-uma-server/clients"
	"github.com/jrsteele09/go-uma-server/codes"
	apperrors "github.com/jrsteele09/go-uma-server/internal/errors"
	"github.com/jrsteele09/go-uma-server/oauth2"
	"github.com/jrsteele09/go-uma-server/token"
	"github.com/jrsteele09/go-uma-server/uma"
	"github.com/pkg/errors"
)

func (as *AuthorizationService) authorizationCode(ctx context.Context, client *clients.Client, req oauth2.TokenRequest, issuer string) (*token.GrantedToken, error) {
	code, err := as.repos.Codes.Get(ctx, req.Code)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, apperrors.InvalidGrant("the authorization code is not correct")
		}
		return nil, errors.Wrap(err, "[AuthorizationService.authorizationCode] Codes.Get")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// The code is spent by whoever removes it first, whatever the outcome of
	// the checks below.
	if err := as.repos.Codes.Remove(ctx, req.Code); err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, apperrors.InvalidGrant("the authorization code is not correct")
		}
		return nil, errors.Wrap(err, "[AuthorizationService.authorizationCode] Codes.Remove")
	}

	if code.ClientID != client.ID {
		return nil, apperrors.InvalidGrant("the authorization code has not been issued for the client %s", client.ID)
	}
	if code.RedirectURI != req.RedirectURI {
		return nil, apperrors.InvalidGrant("the redirect_uri %s is not the one used to obtain the code", req.RedirectURI)
	}
	if code.IsExpired(as.nowTime()) {
		return nil, apperrors.InvalidGrant("the authorization code is expired")
	}
	if err := as.checkPKCE(client, code, req.CodeVerifier); err != nil {
		return nil, err
	}

	return as.issue(context.WithoutCancel(ctx), client, code.Scopes, issuer, code.IDTokenPayload, code.UserInfoPayload, nil, false)
}

func (as *AuthorizationService) checkPKCE(client *clients.Client, code *codes.AuthorizationCode, verifier string) error {
	required := as.requirePKCE || client.RequirePKCE
	if code.CodeChallenge == "" {
		if required {
			return apperrors.InvalidGrant("the authorization code was issued without a code challenge")
		}
		return nil
	}
	if verifier == "" {
		return apperrors.MissingParameter(oauth2.ParamCodeVerifier)
	}
	if !codes.VerifyCodeVerifier(code, verifier) {
		return apperrors.InvalidGrant("the code verifier is not correct")
	}
	return nil
}

func checkTokenResponseType(client *clients.Client) error {
	if !client.HasResponseType(oauth2.TokenResponseType) {
		return apperrors.InvalidClient("the client %s doesn't support the response type %s", client.ID, oauth2.TokenResponseType)
	}
	return nil
}

func (as *AuthorizationService) clientCredentials(ctx context.Context, client *clients.Client, req oauth2.TokenRequest, issuer string) (*token.GrantedToken, error) {
	if err := checkTokenResponseType(client); err != nil {
		return nil, err
	}
	scopes, err := client.ValidateScopes(req.Scope)
	if err != nil {
		return nil, err
	}
	return as.issue(ctx, client, scopes, issuer, nil, nil, nil, true)
}

func (as *AuthorizationService) password(ctx context.Context, client *clients.Client, req oauth2.TokenRequest, issuer string) (*token.GrantedToken, error) {
	if err := checkTokenResponseType(client); err != nil {
		return nil, err
	}
	scopes, err := client.ValidateScopes(req.Scope)
	if err != nil {
		return nil, err
	}

	user, amr, err := as.services.ResourceOwners.Authenticate(ctx, req.Amr(), req.Username, req.Password)
	if err != nil {
		return nil, err
	}

	released := filterClaims(user.Claims(), scopes)
	idTokenPayload := released.With("amr", []string{amr})
	return as.issue(ctx, client, scopes, issuer, idTokenPayload, released, nil, true)
}

func (as *AuthorizationService) refreshToken(ctx context.Context, client *clients.Client, req oauth2.TokenRequest, issuer string) (*token.GrantedToken, error) {
	tokens := as.services.Tokens

	previous, err := tokens.GetByRefreshToken(ctx, req.RefreshToken)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, apperrors.InvalidGrant("the refresh token is not valid")
		}
		return nil, errors.Wrap(err, "[AuthorizationService.refreshToken] GetByRefreshToken")
	}
	if previous.ClientID != client.ID {
		return nil, apperrors.InvalidGrant("the refresh token can be used only by the same issuer")
	}
	if previous.IsRefreshTokenExpired(as.nowTime()) {
		return nil, apperrors.InvalidGrant("the refresh token is expired")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if err := tokens.Revoke(ctx, req.RefreshToken, oauth2.RefreshTokenHint); err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, apperrors.InvalidGrant("the refresh token is not valid")
		}
		return nil, errors.Wrap(err, "[AuthorizationService.refreshToken] Revoke")
	}

	return as.issue(context.WithoutCancel(ctx), client, strings.Fields(previous.Scope), issuer,
		previous.IDTokenPayload, previous.UserInfoPayload, nil, false)
}

func (as *AuthorizationService) umaTicket(ctx context.Context, client *clients.Client, req oauth2.TokenRequest, issuer string) (*token.GrantedToken, error) {
	ticket, err := as.repos.Tickets.Get(ctx, req.Ticket)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, apperrors.InvalidGrant("the ticket %s doesn't exist", req.Ticket)
		}
		return nil, errors.Wrap(err, "[AuthorizationService.umaTicket] Tickets.Get")
	}
	if ticket.IsExpired(as.nowTime()) {
		return nil, apperrors.InvalidGrant("the ticket %s is expired", req.Ticket)
	}

	result, err := as.services.Uma.Evaluate(ctx, ticket, client, uma.ClaimToken{
		Value:  req.ClaimToken,
		Format: req.ClaimTokenFormat,
	})
	if err != nil {
		return nil, errors.Wrap(err, "[AuthorizationService.umaTicket] Evaluate")
	}

	switch result.Kind {
	case uma.NeedInfo:
		return nil, apperrors.NeedInfo(ticket.ID, result.RequiredClaims, as.claimsInteractionURL)
	case uma.NotAuthorized:
		return nil, apperrors.NotAuthorized("the client %s is not authorized to access the requested resources", client.ID)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := as.repos.Tickets.Remove(ctx, ticket.ID); err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, apperrors.InvalidGrant("the ticket %s doesn't exist", req.Ticket)
		}
		return nil, errors.Wrap(err, "[AuthorizationService.umaTicket] Tickets.Remove")
	}

	scopes, claims := rptClaims(ticket, result)
	return as.issue(context.WithoutCancel(ctx), client, scopes, issuer, nil, nil, claims, false)
}

type permission struct {
	ResourceSetID string   `json:"resource_set_id"`
	Scopes        []string `json:"scopes"`
}

// rptClaims describes the granted lines in the RPT. Requester claims are
// nested so they can never override registered claims such as exp.
func rptClaims(ticket *uma.Ticket, result *uma.Result) ([]string, token.ClaimSet) {
	var scopes []string
	permissions := make([]permission, 0, len(ticket.Lines))
	for _, line := range ticket.Lines {
		permissions = append(permissions, permission{ResourceSetID: line.ResourceSetID, Scopes: line.Scopes})
		for _, s := range line.Scopes {
			if !slices.Contains(scopes, s) {
				scopes = append(scopes, s)
			}
		}
	}

	claims := token.ClaimSet{
		{Type: "ticket", Value: ticket.ID},
		{Type: "permissions", Value: permissions},
	}
	if len(result.Claims) > 0 {
		claims = append(claims, token.Claim{Type: "requester_claims", Value: result.Claims})
	}
	return scopes, claims
}

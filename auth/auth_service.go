package auth

import (
	"context"
	"strings"
	"time"

	"github.com/jrsteele09/go-uma-server/clients"
	"github.com/jrsteele09/go-uma-server/codes"
	apperrors "github.com/jrsteele09/go-uma-server/internal/errors"
	"github.com/jrsteele09/go-uma-server/oauth2"
	"github.com/jrsteele09/go-uma-server/token"
	"github.com/jrsteele09/go-uma-server/uma"
	"github.com/jrsteele09/go-uma-server/users"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// grantHandler issues a token for an authenticated client whose grant type
// and required parameters have already been checked.
type grantHandler func(ctx context.Context, client *clients.Client, req oauth2.TokenRequest, issuer string) (*token.GrantedToken, error)

// Repos holds the stores the grant handlers consume directly.
type Repos struct {
	Clients clients.Repo   // Repository for OAuth2 client data
	Codes   codes.Repo     // Authorization codes awaiting redemption
	Tickets uma.TicketRepo // UMA permission tickets
}

// Services holds the components the grant handlers delegate to.
type Services struct {
	ClientAuthenticator *clients.Authenticator
	Tokens              *token.Manager
	ResourceOwners      *users.Authenticators
	Uma                 *uma.Engine
}

// AuthorizationService issues, revokes and introspects tokens.
type AuthorizationService struct {
	repos                Repos
	services             Services
	handlers             map[oauth2.GrantType]grantHandler
	requirePKCE          bool
	claimsInteractionURL string
	nowTime              func() time.Time // nowTime function (injectable for testing)
	logger               zerolog.Logger
}

// AuthorizationServiceOption defines a function type to modify the AuthorizationService instance.
type AuthorizationServiceOption func(*AuthorizationService)

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) AuthorizationServiceOption {
	return func(as *AuthorizationService) {
		as.nowTime = nowFunc
	}
}

func WithLogger(logger zerolog.Logger) AuthorizationServiceOption {
	return func(as *AuthorizationService) {
		as.logger = logger
	}
}

// WithRequirePKCE makes a code verifier mandatory for every authorization code.
func WithRequirePKCE(required bool) AuthorizationServiceOption {
	return func(as *AuthorizationService) {
		as.requirePKCE = required
	}
}

// WithClaimsInteractionURL sets the redirect_user hint of need_info errors.
func WithClaimsInteractionURL(url string) AuthorizationServiceOption {
	return func(as *AuthorizationService) {
		as.claimsInteractionURL = url
	}
}

// NewAuthorizationService initializes a new AuthorizationService with required dependencies.
func NewAuthorizationService(repos Repos, services Services, options ...AuthorizationServiceOption) (*AuthorizationService, error) {
	if repos.Clients == nil {
		return nil, errors.New("[NewAuthorizationService] Clients repo is required")
	}
	if repos.Codes == nil {
		return nil, errors.New("[NewAuthorizationService] Codes repo is required")
	}
	if repos.Tickets == nil {
		return nil, errors.New("[NewAuthorizationService] Tickets repo is required")
	}
	if services.ClientAuthenticator == nil {
		return nil, errors.New("[NewAuthorizationService] ClientAuthenticator is required")
	}
	if services.Tokens == nil {
		return nil, errors.New("[NewAuthorizationService] Tokens is required")
	}
	if services.ResourceOwners == nil {
		return nil, errors.New("[NewAuthorizationService] ResourceOwners is required")
	}
	if services.Uma == nil {
		return nil, errors.New("[NewAuthorizationService] Uma engine is required")
	}

	as := &AuthorizationService{
		repos:    repos,
		services: services,
		nowTime:  time.Now,
		logger:   zerolog.Nop(),
	}
	for _, opt := range options {
		opt(as)
	}

	as.handlers = map[oauth2.GrantType]grantHandler{
		oauth2.AuthorizationCodeGrant: as.authorizationCode,
		oauth2.ClientCredentialsGrant: as.clientCredentials,
		oauth2.PasswordGrant:          as.password,
		oauth2.RefreshTokenGrant:      as.refreshToken,
		oauth2.UmaTicketGrant:         as.umaTicket,
	}
	return as, nil
}

// Token handles the OAuth 2.0 token request. Request errors are returned as
// *internal/errors.Error; anything else is a server fault.
func (as *AuthorizationService) Token(ctx context.Context, req oauth2.TokenRequest, issuer string) (*oauth2.TokenResponse, error) {
	if req.GrantType == "" {
		return nil, apperrors.MissingParameter(oauth2.ParamGrantType)
	}
	handler, ok := as.handlers[req.GrantType]
	if !ok {
		return nil, apperrors.UnsupportedGrantType(string(req.GrantType))
	}
	if err := validateRequiredParameters(req); err != nil {
		return nil, err
	}

	client, err := as.services.ClientAuthenticator.Authenticate(ctx, req.Credentials, issuer)
	if err != nil {
		return nil, err
	}
	if !client.HasGrantType(req.GrantType) {
		return nil, apperrors.InvalidGrant("the client %s doesn't support the grant type %s", client.ID, req.GrantType)
	}

	granted, err := handler(ctx, client, req, issuer)
	if err != nil {
		return nil, err
	}

	as.logger.Debug().
		Str("client_id", client.ID).
		Str("grant_type", string(req.GrantType)).
		Str("scope", granted.Scope).
		Msg("token issued")
	return as.tokenResponse(granted), nil
}

func (as *AuthorizationService) tokenResponse(g *token.GrantedToken) *oauth2.TokenResponse {
	expiresIn := int(g.ExpiresAt().Sub(as.nowTime()) / time.Second)
	if expiresIn < 0 {
		expiresIn = 0
	}
	return &oauth2.TokenResponse{
		AccessToken:  g.AccessToken,
		TokenType:    g.TokenType,
		ExpiresIn:    expiresIn,
		RefreshToken: g.RefreshToken,
		IDToken:      g.IDToken,
		Scope:        g.Scope,
	}
}

// issue returns a live token for an identical earlier request when reuse is
// set, otherwise it mints and stores a new one.
func (as *AuthorizationService) issue(
	ctx context.Context,
	client *clients.Client,
	scopes []string,
	issuer string,
	idTokenPayload, userInfoPayload, additionalClaims token.ClaimSet,
	reuse bool,
) (*token.GrantedToken, error) {
	if reuse {
		existing, err := as.services.Tokens.GetValid(ctx, strings.Join(scopes, " "), client.ID, idTokenPayload, userInfoPayload)
		if err != nil {
			return nil, errors.Wrap(err, "[AuthorizationService.issue] GetValid")
		}
		if existing != nil {
			return existing, nil
		}
	}

	granted, err := as.services.Tokens.Generate(client, scopes, issuer, idTokenPayload, userInfoPayload, additionalClaims)
	if err != nil {
		return nil, errors.Wrap(err, "[AuthorizationService.issue] Generate")
	}
	if err := as.services.Tokens.Store(ctx, granted); err != nil {
		return nil, errors.Wrap(err, "[AuthorizationService.issue] Store")
	}
	return granted, nil
}

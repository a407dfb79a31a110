package auth

import (
	"context"

	"github.com/golang-jwt/jwt/v5"
	apperrors "github.com/jrsteele09/go-uma-server/internal/errors"
	"github.com/jrsteele09/go-uma-server/oauth2"
	"github.com/jrsteele09/go-uma-server/token"
	"github.com/pkg/errors"
)

// lookup finds the token pair holding value, searching the hinted half first.
// The returned hint is the half that matched.
func (as *AuthorizationService) lookup(ctx context.Context, value string, hint oauth2.TokenTypeHint) (*token.GrantedToken, oauth2.TokenTypeHint, error) {
	order := []oauth2.TokenTypeHint{oauth2.AccessTokenHint, oauth2.RefreshTokenHint}
	if hint == oauth2.RefreshTokenHint {
		order = []oauth2.TokenTypeHint{oauth2.RefreshTokenHint, oauth2.AccessTokenHint}
	}

	for _, half := range order {
		var (
			t   *token.GrantedToken
			err error
		)
		if half == oauth2.AccessTokenHint {
			t, err = as.services.Tokens.GetByAccessToken(ctx, value)
		} else {
			t, err = as.services.Tokens.GetByRefreshToken(ctx, value)
		}
		if err == nil {
			return t, half, nil
		}
		if !errors.Is(err, apperrors.ErrNotFound) {
			return nil, "", err
		}
	}
	return nil, "", apperrors.ErrNotFound
}

// Revoke removes the presented half of a token pair. Only the client the
// token was issued to may revoke it.
func (as *AuthorizationService) Revoke(ctx context.Context, req oauth2.TokenActionRequest, issuer string) error {
	if req.Token == "" {
		return apperrors.MissingParameter(oauth2.ParamToken)
	}
	client, err := as.services.ClientAuthenticator.Authenticate(ctx, req.Credentials, issuer)
	if err != nil {
		return err
	}

	granted, half, err := as.lookup(ctx, req.Token, req.TokenTypeHint)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return apperrors.InvalidToken("the token doesn't exist")
		}
		return errors.Wrap(err, "[AuthorizationService.Revoke] lookup")
	}
	if granted.ClientID != client.ID {
		return apperrors.InvalidToken("the token has not been issued for the client %s", client.ID)
	}

	if err := as.services.Tokens.Revoke(ctx, req.Token, half); err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return apperrors.InvalidToken("the token doesn't exist")
		}
		return errors.Wrap(err, "[AuthorizationService.Revoke] Revoke")
	}

	as.logger.Debug().Str("client_id", client.ID).Str("token_type", string(half)).Msg("token revoked")
	return nil
}

// Introspect describes a token to an authenticated client. Unknown, expired
// and tampered tokens all come back as inactive with nothing else set.
func (as *AuthorizationService) Introspect(ctx context.Context, req oauth2.TokenActionRequest, issuer string) (*oauth2.IntrospectionResponse, error) {
	if req.Token == "" {
		return nil, apperrors.MissingParameter(oauth2.ParamToken)
	}
	if _, err := as.services.ClientAuthenticator.Authenticate(ctx, req.Credentials, issuer); err != nil {
		return nil, err
	}

	inactive := &oauth2.IntrospectionResponse{Active: false}
	granted, half, err := as.lookup(ctx, req.Token, req.TokenTypeHint)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return inactive, nil
		}
		return nil, errors.Wrap(err, "[AuthorizationService.Introspect] lookup")
	}

	expiresAt := granted.ExpiresAt()
	if half == oauth2.RefreshTokenHint {
		if granted.IsRefreshTokenExpired(as.nowTime()) {
			return inactive, nil
		}
		expiresAt = granted.RefreshTokenExpiresAt()
	} else if status := as.services.Tokens.Validate(granted); status != token.Valid {
		as.logger.Debug().Str("client_id", granted.ClientID).Stringer("status", status).Msg("introspected token is not valid")
		return inactive, nil
	}

	resp := &oauth2.IntrospectionResponse{
		Active:    true,
		Scope:     granted.Scope,
		ClientID:  granted.ClientID,
		TokenType: granted.TokenType,
		Exp:       expiresAt.Unix(),
		Iat:       granted.CreateDateTime.Unix(),
		Sub:       granted.ClientID,
		Aud:       granted.ClientID,
		Username:  granted.UserInfoPayload.String("preferred_username"),
	}
	if sub := granted.Subject(); sub != "" {
		resp.Sub = sub
	}

	// Only tokens this server stored reach here, so the registered claims are
	// read without a second signature check.
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(granted.AccessToken, claims); err == nil {
		resp.Iss, _ = claims.GetIssuer()
		resp.Jti, _ = claims["jti"].(string)
	}
	return resp, nil
}

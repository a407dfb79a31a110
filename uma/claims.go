package uma

import (
	"context"
	"sync"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/golang-jwt/jwt/v5"
	apperrors "github.com/jrsteele09/go-uma-server/internal/errors"
	"github.com/jrsteele09/go-uma-server/oauth2"
	"github.com/jrsteele09/go-uma-server/token"
	"github.com/pkg/errors"
)

// ClaimVerifier turns a claim token into verified claims. An empty issuer
// means the token was issued by this server.
type ClaimVerifier interface {
	Verify(ctx context.Context, claimToken ClaimToken, issuer string) (token.ClaimSet, error)
}

// TokenVerifier verifies ID tokens issued by this server with its own keys
// and ID tokens of external OpenID providers with the provider's JWKS.
type TokenVerifier struct {
	keyFunc   jwt.Keyfunc
	nowFunc   func() time.Time
	providers map[string]*oidc.IDTokenVerifier
	lock      sync.Mutex
}

type TokenVerifierOption func(*TokenVerifier)

func WithVerifierNowFunc(now func() time.Time) TokenVerifierOption {
	return func(v *TokenVerifier) {
		v.nowFunc = now
	}
}

func NewTokenVerifier(keyFunc jwt.Keyfunc, options ...TokenVerifierOption) *TokenVerifier {
	v := &TokenVerifier{
		keyFunc:   keyFunc,
		nowFunc:   time.Now,
		providers: make(map[string]*oidc.IDTokenVerifier),
	}
	for _, opt := range options {
		opt(v)
	}
	return v
}

func (v *TokenVerifier) Verify(ctx context.Context, claimToken ClaimToken, issuer string) (token.ClaimSet, error) {
	if claimToken.Format != "" && claimToken.Format != oauth2.ClaimTokenFormatIDToken {
		return nil, apperrors.InvalidRequest("the claim token format %s is not supported", claimToken.Format)
	}
	if issuer == "" {
		return v.verifyLocal(claimToken.Value)
	}
	return v.verifyExternal(ctx, claimToken.Value, issuer)
}

func (v *TokenVerifier) verifyLocal(raw string) (token.ClaimSet, error) {
	claims := jwt.MapClaims{}
	if _, err := jwt.ParseWithClaims(raw, claims, v.keyFunc, jwt.WithTimeFunc(v.nowFunc)); err != nil {
		return nil, errors.Wrap(err, "claim token")
	}
	return token.ClaimSetFromMap(claims), nil
}

func (v *TokenVerifier) verifyExternal(ctx context.Context, raw, issuer string) (token.ClaimSet, error) {
	verifier, err := v.provider(ctx, issuer)
	if err != nil {
		return nil, err
	}
	idToken, err := verifier.Verify(ctx, raw)
	if err != nil {
		return nil, errors.Wrap(err, "claim token")
	}

	claims := map[string]any{}
	if err := idToken.Claims(&claims); err != nil {
		return nil, errors.Wrap(err, "claim token claims")
	}
	return token.ClaimSetFromMap(claims), nil
}

// provider discovers an issuer once and caches its verifier, which in turn
// caches the remote key set.
func (v *TokenVerifier) provider(ctx context.Context, issuer string) (*oidc.IDTokenVerifier, error) {
	v.lock.Lock()
	defer v.lock.Unlock()

	if verifier, ok := v.providers[issuer]; ok {
		return verifier, nil
	}
	provider, err := oidc.NewProvider(context.WithoutCancel(ctx), issuer)
	if err != nil {
		return nil, errors.Wrapf(err, "[TokenVerifier.provider] discover %s", issuer)
	}
	verifier := provider.Verifier(&oidc.Config{
		SkipClientIDCheck: true,
		Now:               v.nowFunc,
	})
	v.providers[issuer] = verifier
	return verifier, nil
}

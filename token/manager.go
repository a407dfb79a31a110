package token

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"strings"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jrsteele09/go-uma-server/clients"
	apperrors "github.com/jrsteele09/go-uma-server/internal/errors"
	"github.com/jrsteele09/go-uma-server/oauth2"
	"github.com/jrsteele09/go-uma-server/token/keys"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

const (
	refreshTokenLength    = 32 // 256 bits
	defaultIDTokenContent = "A128CBC-HS256"
	openIDScope           = "openid"
)

// Status is the outcome of validating a granted token.
type Status int

const (
	Valid Status = iota
	Expired
	SignatureInvalid
	NotFound
)

func (s Status) String() string {
	switch s {
	case Valid:
		return "valid"
	case Expired:
		return "expired"
	case SignatureInvalid:
		return "signature_invalid"
	default:
		return "not_found"
	}
}

// KeyResolver is the part of the server key store the manager signs,
// verifies and encrypts with.
type KeyResolver interface {
	GetSigningKey(alg string) (jose.JSONWebKey, error)
	GetDefaultSigningKey() (jose.JSONWebKey, error)
	VerificationKey(t *jwt.Token) (any, error)
	Encrypt(payload []byte, alg, enc, contentType string) (string, error)
}

var _ KeyResolver = (*keys.Resolver)(nil)

// Manager mints, stores, looks up, validates and revokes granted tokens.
type Manager struct {
	repo    Repo
	keys    KeyResolver
	nowFunc func() time.Time
	logger  zerolog.Logger
}

type ManagerOption func(*Manager)

func WithNowFunc(now func() time.Time) ManagerOption {
	return func(m *Manager) {
		m.nowFunc = now
	}
}

func WithLogger(logger zerolog.Logger) ManagerOption {
	return func(m *Manager) {
		m.logger = logger
	}
}

func New(repo Repo, keyResolver KeyResolver, options ...ManagerOption) *Manager {
	m := &Manager{
		repo:    repo,
		keys:    keyResolver,
		nowFunc: time.Now,
		logger:  zerolog.Nop(),
	}

	for _, opt := range options {
		opt(m)
	}
	return m
}

// Generate builds and signs a token pair for client. The access token claims
// are the base claims, overridden by the client's claims, overridden by
// additionalClaims. An ID token is signed when idTokenPayload is present and
// "openid" was granted. Nothing is stored.
func (m *Manager) Generate(
	client *clients.Client,
	scopes []string,
	issuer string,
	idTokenPayload, userInfoPayload, additionalClaims ClaimSet,
) (*GrantedToken, error) {
	now := m.nowFunc().UTC()
	expiresIn := client.ExpiresIn()

	subject := client.ID
	if sub := idTokenPayload.String("sub"); sub != "" {
		subject = sub
	}
	scope := strings.Join(scopes, " ")

	base := ClaimSet{
		{Type: "iss", Value: issuer},
		{Type: "sub", Value: subject},
		{Type: "aud", Value: client.ID},
		{Type: "client_id", Value: client.ID},
		{Type: "scope", Value: scope},
		{Type: "iat", Value: now.Unix()},
		{Type: "exp", Value: now.Add(time.Duration(expiresIn) * time.Second).Unix()},
		{Type: "jti", Value: uuid.New().String()},
	}
	claims := base.Merge(ClaimSetFromMap(client.Claims)).Merge(additionalClaims)

	key, err := m.signingKey(client.IDTokenSignedResponseAlg)
	if err != nil {
		return nil, errors.Wrap(err, "[Manager.Generate] signingKey")
	}
	accessToken, err := sign(claims.Map(), key)
	if err != nil {
		return nil, errors.Wrap(err, "[Manager.Generate] sign access token")
	}

	refreshToken, err := newRefreshToken()
	if err != nil {
		return nil, errors.Wrap(err, "[Manager.Generate] newRefreshToken")
	}

	if len(idTokenPayload) > 0 && idTokenPayload.String("iss") == "" {
		idTokenPayload = idTokenPayload.With("iss", issuer)
	}

	granted := &GrantedToken{
		AccessToken:           accessToken,
		RefreshToken:          refreshToken,
		IDTokenPayload:        idTokenPayload,
		UserInfoPayload:       userInfoPayload,
		Scope:                 scope,
		ClientID:              client.ID,
		CreateDateTime:        now,
		ExpiresIn:             expiresIn,
		RefreshTokenExpiresIn: client.RefreshTokenExpiresIn(),
		TokenType:             oauth2.BearerTokenType,
	}

	if len(idTokenPayload) > 0 && containsScope(scopes, openIDScope) {
		idToken, err := m.idToken(client, key, idTokenPayload, now, expiresIn)
		if err != nil {
			return nil, errors.Wrap(err, "[Manager.Generate] idToken")
		}
		granted.IDToken = idToken
	}
	return granted, nil
}

func (m *Manager) idToken(client *clients.Client, key jose.JSONWebKey, payload ClaimSet, now time.Time, expiresIn int) (string, error) {
	stamp := ClaimSet{
		{Type: "aud", Value: client.ID},
		{Type: "iat", Value: now.Unix()},
		{Type: "exp", Value: now.Add(time.Duration(expiresIn) * time.Second).Unix()},
	}
	claims := stamp.Merge(payload)

	signed, err := sign(claims.Map(), key)
	if err != nil {
		return "", err
	}
	if client.IDTokenEncryptedResponseAlg == "" {
		return signed, nil
	}

	enc := client.IDTokenEncryptedResponseEnc
	if enc == "" {
		enc = defaultIDTokenContent
	}
	return m.keys.Encrypt([]byte(signed), client.IDTokenEncryptedResponseAlg, enc, "JWT")
}

// signingKey prefers the client's algorithm and falls back to the server default.
func (m *Manager) signingKey(alg string) (jose.JSONWebKey, error) {
	if alg != "" {
		key, err := m.keys.GetSigningKey(alg)
		if err == nil {
			return key, nil
		}
		if !errors.Is(err, keys.ErrKeyNotFound) {
			return jose.JSONWebKey{}, err
		}
		m.logger.Debug().Str("alg", alg).Msg("no signing key for client algorithm, using default")
	}
	return m.keys.GetDefaultSigningKey()
}

func sign(claims jwt.MapClaims, key jose.JSONWebKey) (string, error) {
	method := jwt.GetSigningMethod(key.Algorithm)
	if method == nil {
		return "", errors.Errorf("unsupported signing algorithm %s", key.Algorithm)
	}
	t := jwt.NewWithClaims(method, claims)
	t.Header["kid"] = key.KeyID

	signed, err := t.SignedString(key.Key)
	if err != nil {
		return "", errors.Wrap(err, "failed to sign token")
	}
	return signed, nil
}

func newRefreshToken() (string, error) {
	tokenBytes := make([]byte, refreshTokenLength)
	if _, err := rand.Read(tokenBytes); err != nil {
		return "", err
	}
	return hex.EncodeToString(tokenBytes), nil
}

func containsScope(scopes []string, scope string) bool {
	for _, s := range scopes {
		if s == scope {
			return true
		}
	}
	return false
}

// Store persists a generated token.
func (m *Manager) Store(ctx context.Context, t *GrantedToken) error {
	if err := m.repo.AddToken(ctx, t); err != nil {
		return errors.Wrap(err, "[Manager.Store] AddToken")
	}
	return nil
}

// Validate checks expiry first, then the signature against the current
// public keys with the token's client as audience. The issuer is not checked.
func (m *Manager) Validate(t *GrantedToken) Status {
	if t == nil {
		return NotFound
	}
	if t.IsExpired(m.nowFunc()) {
		return Expired
	}

	_, err := jwt.Parse(t.AccessToken, m.keys.VerificationKey,
		jwt.WithAudience(t.ClientID),
		jwt.WithTimeFunc(m.nowFunc),
	)
	if err != nil {
		m.logger.Debug().Err(err).Str("client_id", t.ClientID).Msg("access token signature rejected")
		return SignatureInvalid
	}
	return Valid
}

// GetValid returns a live token for an identical request so that it can be
// reused. Invalid matches are evicted and nil is returned. A reused token
// whose refresh half is gone is returned without a refresh token.
func (m *Manager) GetValid(ctx context.Context, scope, clientID string, idTokenPayload, userInfoPayload ClaimSet) (*GrantedToken, error) {
	t, err := m.repo.GetToken(ctx, scope, clientID, idTokenPayload, userInfoPayload)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "[Manager.GetValid] GetToken")
	}

	if status := m.Validate(t); status != Valid {
		m.evict(ctx, t)
		return nil, nil
	}

	if t.RefreshToken != "" {
		live, err := m.liveRefreshToken(ctx, t)
		if err != nil {
			return nil, errors.Wrap(err, "[Manager.GetValid] GetRefreshToken")
		}
		if !live {
			t.RefreshToken = ""
			t.RefreshTokenExpiresIn = 0
		}
	}
	return t, nil
}

func (m *Manager) liveRefreshToken(ctx context.Context, t *GrantedToken) (bool, error) {
	if t.IsRefreshTokenExpired(m.nowFunc()) {
		return false, nil
	}
	if _, err := m.repo.GetRefreshToken(ctx, t.RefreshToken); err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// evict drops the access half of an invalid token. The refresh half has its
// own lifetime and is only dropped once that has passed too.
func (m *Manager) evict(ctx context.Context, t *GrantedToken) {
	if err := m.repo.RemoveAccessToken(ctx, t.AccessToken); err != nil && !errors.Is(err, apperrors.ErrNotFound) {
		m.logger.Error().Err(err).Str("client_id", t.ClientID).Msg("failed to evict access token")
	}
	if t.RefreshToken == "" || !t.IsRefreshTokenExpired(m.nowFunc()) {
		return
	}
	if err := m.repo.RemoveRefreshToken(ctx, t.RefreshToken); err != nil && !errors.Is(err, apperrors.ErrNotFound) {
		m.logger.Error().Err(err).Str("client_id", t.ClientID).Msg("failed to evict refresh token")
	}
}

func (m *Manager) GetByAccessToken(ctx context.Context, accessToken string) (*GrantedToken, error) {
	return m.repo.GetAccessToken(ctx, accessToken)
}

func (m *Manager) GetByRefreshToken(ctx context.Context, refreshToken string) (*GrantedToken, error) {
	return m.repo.GetRefreshToken(ctx, refreshToken)
}

// Revoke removes one half of a token pair. Without a hint the access token
// store is tried first. The other half is left untouched.
func (m *Manager) Revoke(ctx context.Context, value string, hint oauth2.TokenTypeHint) error {
	switch hint {
	case oauth2.AccessTokenHint:
		return m.repo.RemoveAccessToken(ctx, value)
	case oauth2.RefreshTokenHint:
		return m.repo.RemoveRefreshToken(ctx, value)
	default:
		err := m.repo.RemoveAccessToken(ctx, value)
		if errors.Is(err, apperrors.ErrNotFound) {
			return m.repo.RemoveRefreshToken(ctx, value)
		}
		return err
	}
}

// Now is the manager's clock.
func (m *Manager) Now() time.Time {
	return m.nowFunc()
}

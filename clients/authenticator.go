package clients

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	apperrors "github.com/jrsteele09/go-uma-server/internal/errors"
	"github.com/jrsteele09/go-uma-server/oauth2"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jws"
	jwxjwt "github.com/lestrrat-go/jwx/v2/jwt"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

var hmacMethods = []string{"HS256", "HS384", "HS512"}

// Decrypter opens compact JWEs addressed to the server.
type Decrypter interface {
	Decrypt(compact string) ([]byte, error)
}

type authenticateFunc func(client *Client, creds oauth2.ClientCredentials, issuer string) error

// Authenticator validates a client's identity with the method the client
// registered for the token endpoint.
type Authenticator struct {
	repo      Repo
	decrypter Decrypter
	nowFunc   func() time.Time
	logger    zerolog.Logger
	methods   map[oauth2.AuthMethod]authenticateFunc
}

type AuthenticatorOption func(*Authenticator)

// WithDecrypter enables encrypted (JWE) client assertions.
func WithDecrypter(d Decrypter) AuthenticatorOption {
	return func(a *Authenticator) {
		a.decrypter = d
	}
}

func WithNowFunc(now func() time.Time) AuthenticatorOption {
	return func(a *Authenticator) {
		a.nowFunc = now
	}
}

func WithLogger(logger zerolog.Logger) AuthenticatorOption {
	return func(a *Authenticator) {
		a.logger = logger
	}
}

func NewAuthenticator(repo Repo, options ...AuthenticatorOption) *Authenticator {
	a := &Authenticator{
		repo:    repo,
		nowFunc: time.Now,
		logger:  zerolog.Nop(),
	}
	for _, opt := range options {
		opt(a)
	}

	a.methods = map[oauth2.AuthMethod]authenticateFunc{
		oauth2.ClientSecretBasic: a.secretBasic,
		oauth2.ClientSecretPost:  a.secretPost,
		oauth2.ClientSecretJWT:   a.secretJWT,
		oauth2.PrivateKeyJWT:     a.privateKeyJWT,
		oauth2.TLSClientAuth:     a.tlsClientAuth,
	}
	return a
}

// Authenticate returns the client identified by creds, or an invalid_client
// error. Only store faults are returned as plain errors.
func (a *Authenticator) Authenticate(ctx context.Context, creds oauth2.ClientCredentials, issuer string) (*Client, error) {
	assertion, err := a.openAssertion(creds.ClientAssertion)
	if err != nil {
		return nil, err
	}
	creds.ClientAssertion = assertion

	clientID := resolveClientID(creds)
	if clientID == "" {
		return nil, apperrors.InvalidClient("the client doesn't exist")
	}

	client, err := a.repo.Get(ctx, clientID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, apperrors.InvalidClient("the client doesn't exist")
		}
		return nil, errors.Wrap(err, "[Authenticator.Authenticate] Get")
	}

	authenticate, ok := a.methods[client.TokenEndPointAuthMethod]
	if !ok {
		return nil, apperrors.InvalidClient("the client %s uses an unsupported authentication method", client.ID)
	}
	if err := authenticate(client, creds, issuer); err != nil {
		a.logger.Debug().
			Str("client_id", client.ID).
			Str("method", string(client.TokenEndPointAuthMethod)).
			Msg("client authentication failed")
		return nil, err
	}
	return client, nil
}

// openAssertion decrypts a five part (JWE) assertion down to the inner JWS.
func (a *Authenticator) openAssertion(assertion string) (string, error) {
	if strings.Count(assertion, ".") != 4 {
		return assertion, nil
	}
	if a.decrypter == nil {
		return "", apperrors.InvalidClient("encrypted client assertions are not supported")
	}
	plaintext, err := a.decrypter.Decrypt(assertion)
	if err != nil {
		a.logger.Debug().Err(err).Msg("client assertion could not be decrypted")
		return "", apperrors.InvalidClient("the client assertion cannot be decrypted")
	}
	return string(plaintext), nil
}

// resolveClientID picks the client id from the Basic header, the body, or the
// issuer of the client assertion, in that order.
func resolveClientID(creds oauth2.ClientCredentials) string {
	if creds.BasicClientID != "" {
		return creds.BasicClientID
	}
	if creds.ClientID != "" {
		return creds.ClientID
	}
	if creds.ClientAssertion == "" {
		return ""
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(creds.ClientAssertion, claims); err != nil {
		return ""
	}
	iss, _ := claims.GetIssuer()
	return iss
}

func (a *Authenticator) secretBasic(client *Client, creds oauth2.ClientCredentials, _ string) error {
	if creds.BasicClientSecret == "" || !matchesSharedSecret(client, creds.BasicClientSecret) {
		return apperrors.InvalidClient("the client cannot be authenticated with secret basic")
	}
	return nil
}

func (a *Authenticator) secretPost(client *Client, creds oauth2.ClientCredentials, _ string) error {
	if creds.ClientSecret == "" || !matchesSharedSecret(client, creds.ClientSecret) {
		return apperrors.InvalidClient("the client cannot be authenticated with secret post")
	}
	return nil
}

func matchesSharedSecret(client *Client, presented string) bool {
	matched := false
	for _, secret := range client.SecretsOfType(SharedSecret) {
		if subtle.ConstantTimeCompare([]byte(secret), []byte(presented)) == 1 {
			matched = true
		}
	}
	return matched
}

func checkAssertionPresent(creds oauth2.ClientCredentials, method oauth2.AuthMethod) error {
	if creds.ClientAssertion == "" {
		return apperrors.InvalidClient("the client cannot be authenticated with %s", method)
	}
	if creds.ClientAssertionType != oauth2.ClientAssertionTypeJWTBearer {
		return apperrors.InvalidClient("the client assertion type %q is not supported", creds.ClientAssertionType)
	}
	return nil
}

func (a *Authenticator) secretJWT(client *Client, creds oauth2.ClientCredentials, issuer string) error {
	if err := checkAssertionPresent(creds, oauth2.ClientSecretJWT); err != nil {
		return err
	}

	for _, secret := range client.SecretsOfType(SharedSecret) {
		claims := jwt.RegisteredClaims{}
		_, err := jwt.ParseWithClaims(creds.ClientAssertion, &claims,
			func(*jwt.Token) (any, error) { return []byte(secret), nil },
			jwt.WithValidMethods(hmacMethods),
			jwt.WithTimeFunc(a.nowFunc),
			jwt.WithExpirationRequired(),
			jwt.WithIssuer(client.ID),
			jwt.WithSubject(client.ID),
		)
		if err != nil {
			continue
		}
		if !audienceMatches(claims.Audience, issuer) {
			return apperrors.InvalidClient("the audience of the client assertion is not correct")
		}
		return nil
	}
	return apperrors.InvalidClient("the client assertion is not valid for the client %s", client.ID)
}

func (a *Authenticator) privateKeyJWT(client *Client, creds oauth2.ClientCredentials, issuer string) error {
	if err := checkAssertionPresent(creds, oauth2.PrivateKeyJWT); err != nil {
		return err
	}

	set, err := jwk.Parse(client.JSONWebKeys)
	if err != nil {
		a.logger.Warn().Err(err).Str("client_id", client.ID).Msg("client jwks cannot be parsed")
		return apperrors.InvalidClient("the client %s has no usable public keys", client.ID)
	}

	tok, err := jwxjwt.Parse([]byte(creds.ClientAssertion),
		jwxjwt.WithKeySet(set, jws.WithInferAlgorithmFromKey(true), jws.WithRequireKid(false)),
		jwxjwt.WithValidate(true),
		jwxjwt.WithClock(jwxjwt.ClockFunc(a.nowFunc)),
		jwxjwt.WithIssuer(client.ID),
		jwxjwt.WithSubject(client.ID),
		jwxjwt.WithRequiredClaim(jwxjwt.ExpirationKey),
	)
	if err != nil {
		return apperrors.InvalidClient("the client assertion is not valid for the client %s", client.ID)
	}
	if !audienceMatches(tok.Audience(), issuer) {
		return apperrors.InvalidClient("the audience of the client assertion is not correct")
	}
	return nil
}

func (a *Authenticator) tlsClientAuth(client *Client, creds oauth2.ClientCredentials, _ string) error {
	if creds.Certificate == nil {
		return apperrors.InvalidClient("the client certificate is missing")
	}

	sum := sha256.Sum256(creds.Certificate.Raw)
	thumbprint := hex.EncodeToString(sum[:])

	thumbprintMatched := false
	for _, secret := range client.SecretsOfType(X509Thumbprint) {
		if subtle.ConstantTimeCompare([]byte(strings.ToLower(secret)), []byte(thumbprint)) == 1 {
			thumbprintMatched = true
		}
	}
	if !thumbprintMatched {
		return apperrors.InvalidClient("the certificate thumbprint is not correct")
	}

	names := client.SecretsOfType(X509Name)
	if len(names) == 0 {
		return nil
	}
	subject := creds.Certificate.Subject.String()
	for _, name := range names {
		if name == subject {
			return nil
		}
	}
	return apperrors.InvalidClient("the certificate subject is not correct")
}

// audienceMatches accepts the issuer or its token endpoint.
func audienceMatches(audience []string, issuer string) bool {
	issuer = strings.TrimSuffix(issuer, "/")
	tokenEndpoint := issuer + oauth2.TokenEndpointPath
	for _, aud := range audience {
		aud = strings.TrimSuffix(aud, "/")
		if aud == issuer || aud == tokenEndpoint {
			return true
		}
	}
	return false
}

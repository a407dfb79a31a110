package codes

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"time"

	"github.com/jrsteele09/go-uma-server/oauth2"
	"github.com/jrsteele09/go-uma-server/token"
	xoauth2 "golang.org/x/oauth2"
)

const codeGenerationLength = 32

// AuthorizationCode is the single-use code handed to a client by the
// authorization endpoint and redeemed at the token endpoint.
type AuthorizationCode struct {
	Code                string                `json:"code"`
	ClientID            string                `json:"client_id"`
	RedirectURI         string                `json:"redirect_uri"`
	Scopes              []string              `json:"scopes"`
	CodeChallenge       string                `json:"code_challenge,omitempty"`
	CodeChallengeMethod oauth2.CodeMethodType `json:"code_challenge_method,omitempty"`
	CreateDateTime      time.Time             `json:"create_date_time"`
	ExpiresIn           int                   `json:"expires_in"`
	IDTokenPayload      token.ClaimSet        `json:"id_token_payload,omitempty"`
	UserInfoPayload     token.ClaimSet        `json:"user_info_payload,omitempty"`
}

func (c *AuthorizationCode) ExpiresAt() time.Time {
	return c.CreateDateTime.Add(time.Duration(c.ExpiresIn) * time.Second)
}

// IsExpired is inclusive of the expiry instant.
func (c *AuthorizationCode) IsExpired(now time.Time) bool {
	return !now.Before(c.ExpiresAt())
}

// Repo is the authorization code store. Remove reports
// internal/errors.ErrNotFound when the code is absent; of two concurrent
// redemptions only one Remove succeeds.
type Repo interface {
	Get(ctx context.Context, code string) (*AuthorizationCode, error)
	Add(ctx context.Context, code *AuthorizationCode) error
	Remove(ctx context.Context, code string) error
}

// NewCode returns a random url-safe code value.
func NewCode() (string, error) {
	bytes := make([]byte, codeGenerationLength)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(bytes), nil
}

// VerifyCodeVerifier checks a PKCE verifier against the stored challenge.
// A code issued without a challenge accepts any verifier.
func VerifyCodeVerifier(code *AuthorizationCode, verifier string) bool {
	if code.CodeChallenge == "" {
		return true
	}
	if verifier == "" {
		return false
	}

	var computed string
	switch code.CodeChallengeMethod {
	case oauth2.CodeMethodTypeS256:
		computed = xoauth2.S256ChallengeFromVerifier(verifier)
	case oauth2.CodeMethodTypePlain, "":
		computed = verifier
	default:
		return false
	}
	return subtle.ConstantTimeCompare([]byte(computed), []byte(code.CodeChallenge)) == 1
}

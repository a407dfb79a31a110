package clients

import (
	"encoding/json"
	"time"

	apperrors "github.com/jrsteele09/go-uma-server/internal/errors"
	"github.com/jrsteele09/go-uma-server/oauth2"
)

type SecretType string

const (
	SharedSecret   SecretType = "SharedSecret"   // Compared against client_secret or used as an HMAC key
	X509Thumbprint SecretType = "X509Thumbprint" // SHA-256 hex thumbprint of a client certificate
	X509Name       SecretType = "X509Name"       // Subject distinguished name of a client certificate
)

type Secret struct {
	Type  SecretType `json:"type"`
	Value string     `json:"value"`
}

const defaultTokenLifetime = time.Hour

type Client struct {
	ID                      string                `json:"client_id"`
	Name                    string                `json:"client_name,omitempty"`
	Secrets                 []Secret              `json:"secrets,omitempty"`
	TokenEndPointAuthMethod oauth2.AuthMethod     `json:"token_endpoint_auth_method"`
	GrantTypes              []oauth2.GrantType    `json:"grant_types"`
	ResponseTypes           []oauth2.ResponseType `json:"response_types"`
	Scopes                  []string              `json:"scopes"` // Allowed scopes for this client
	RedirectURIs            []string              `json:"redirect_uris,omitempty"`
	JSONWebKeys             json.RawMessage       `json:"jwks,omitempty"` // Public keys for private_key_jwt
	RequirePKCE             bool                  `json:"require_pkce,omitempty"`

	TokenLifetime        time.Duration `json:"token_lifetime,omitempty"`
	RefreshTokenLifetime time.Duration `json:"refresh_token_lifetime,omitempty"`

	IDTokenSignedResponseAlg    string `json:"id_token_signed_response_alg,omitempty"`
	IDTokenEncryptedResponseAlg string `json:"id_token_encrypted_response_alg,omitempty"`
	IDTokenEncryptedResponseEnc string `json:"id_token_encrypted_response_enc,omitempty"`

	// Claims are added to every access token issued to the client.
	Claims map[string]any `json:"claims,omitempty"`
}

// Validate checks the registration invariants of a client.
func (c *Client) Validate() error {
	if c.ID == "" {
		return apperrors.InvalidClientMetadata("the client_id is required")
	}
	switch c.TokenEndPointAuthMethod {
	case oauth2.ClientSecretBasic, oauth2.ClientSecretPost, oauth2.ClientSecretJWT, oauth2.TLSClientAuth:
		if len(c.Secrets) == 0 {
			return apperrors.InvalidClientMetadata("the client %s must have at least one secret", c.ID)
		}
	case oauth2.PrivateKeyJWT:
		if len(c.JSONWebKeys) == 0 {
			return apperrors.InvalidClientMetadata("the client %s must register a jwks for private_key_jwt", c.ID)
		}
	default:
		return apperrors.InvalidClientMetadata("the token endpoint auth method %s is not supported", c.TokenEndPointAuthMethod)
	}
	return nil
}

func (c *Client) HasGrantType(grantType oauth2.GrantType) bool {
	for _, g := range c.GrantTypes {
		if g == grantType {
			return true
		}
	}
	return false
}

func (c *Client) HasResponseType(responseType oauth2.ResponseType) bool {
	for _, r := range c.ResponseTypes {
		if r == responseType {
			return true
		}
	}
	return false
}

// HasScope checks if the client has permission for a specific scope
func (c *Client) HasScope(scope string) bool {
	for _, s := range c.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}

// SecretsOfType returns the secret values of one type, in registration order.
func (c *Client) SecretsOfType(secretType SecretType) []string {
	var values []string
	for _, s := range c.Secrets {
		if s.Type == secretType {
			values = append(values, s.Value)
		}
	}
	return values
}

// ExpiresIn is the access token lifetime in seconds.
func (c *Client) ExpiresIn() int {
	if c.TokenLifetime <= 0 {
		return int(defaultTokenLifetime.Seconds())
	}
	return int(c.TokenLifetime.Seconds())
}

// RefreshTokenExpiresIn is the refresh token lifetime in seconds, falling
// back to the access token lifetime.
func (c *Client) RefreshTokenExpiresIn() int {
	if c.RefreshTokenLifetime <= 0 {
		return c.ExpiresIn()
	}
	return int(c.RefreshTokenLifetime.Seconds())
}

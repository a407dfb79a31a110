package oauth2

// ResponseType represents the OAuth 2.0 response type.
// Determines what is returned from the authorization endpoint.
type ResponseType string

const (
	// CodeResponseType indicates the authorization code flow.
	// Returns an authorization code that must be exchanged for tokens at the token endpoint.
	CodeResponseType ResponseType = "code"

	// TokenResponseType indicates an access token may be returned directly.
	// A client must declare it to use the client credentials grant.
	TokenResponseType ResponseType = "token"

	// IDTokenResponseType indicates an OpenID Connect ID token may be returned.
	IDTokenResponseType ResponseType = "id_token"
)

// CodeMethodType represents the PKCE (Proof Key for Code Exchange) challenge method.
// Used to prevent authorization code interception attacks (especially for public clients).
type CodeMethodType string

const (
	// CodeMethodTypeS256 indicates SHA-256 hashing is used for the code challenge.
	// Client sends: code_challenge = BASE64URL(SHA256(code_verifier))
	// Server validates: SHA256(provided code_verifier) == stored code_challenge
	CodeMethodTypeS256 CodeMethodType = "S256"

	// CodeMethodTypePlain means no hashing, code_verifier sent directly.
	// Server validates: provided code_verifier == stored code_challenge
	CodeMethodTypePlain CodeMethodType = "plain"
)

// GrantType represents the OAuth 2.0 grant type used at the token endpoint.
// Determines what credentials are required to obtain tokens.
type GrantType string

const (
	// AuthorizationCodeGrant exchanges an authorization code for tokens.
	// Token request includes: code, redirect_uri, code_verifier (if PKCE)
	AuthorizationCodeGrant GrantType = "authorization_code"

	// ClientCredentialsGrant allows machine-to-machine authentication.
	// Token request includes: scope
	ClientCredentialsGrant GrantType = "client_credentials"

	// PasswordGrant exchanges resource owner credentials for tokens.
	// Token request includes: username, password, scope
	PasswordGrant GrantType = "password"

	// RefreshTokenGrant exchanges a refresh token for new tokens.
	// Token request includes: refresh_token
	RefreshTokenGrant GrantType = "refresh_token"

	// UmaTicketGrant exchanges a UMA permission ticket for a requesting party token.
	// Token request includes: ticket, claim_token, claim_token_format
	UmaTicketGrant GrantType = "urn:ietf:params:oauth:grant-type:uma-ticket"
)

// AuthMethod is how a client authenticates at the token endpoint.
type AuthMethod string

const (
	// ClientSecretBasic sends client_id and client_secret in the Authorization header.
	ClientSecretBasic AuthMethod = "client_secret_basic"

	// ClientSecretPost sends client_id and client_secret in the request body.
	ClientSecretPost AuthMethod = "client_secret_post"

	// ClientSecretJWT sends a JWT assertion signed with the client's shared secret.
	ClientSecretJWT AuthMethod = "client_secret_jwt"

	// PrivateKeyJWT sends a JWT assertion signed with one of the client's private keys.
	PrivateKeyJWT AuthMethod = "private_key_jwt"

	// TLSClientAuth authenticates with a mutual-TLS client certificate.
	TLSClientAuth AuthMethod = "tls_client_auth"
)

// ClientAssertionTypeJWTBearer is the only client_assertion_type accepted.
const ClientAssertionTypeJWTBearer = "urn:ietf:params:oauth:client-assertion-type:jwt-bearer"

// TokenEndpointPath is the token endpoint relative to the issuer. Client
// assertions are addressed to the issuer or to this endpoint.
const TokenEndpointPath = "/oauth2/token"

// TokenTypeHint tells revocation and introspection which store to search first.
type TokenTypeHint string

const (
	AccessTokenHint  TokenTypeHint = "access_token"
	RefreshTokenHint TokenTypeHint = "refresh_token"
)

// BearerTokenType is the only token type issued.
const BearerTokenType = "Bearer"

// ClaimTokenFormatIDToken marks a UMA claim_token as an OpenID Connect ID token.
const ClaimTokenFormatIDToken = "http://openid.net/specs/openid-connect-core-1_0.html#IDToken"

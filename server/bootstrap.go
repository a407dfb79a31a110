package server

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"net/url"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/google/uuid"
	"github.com/jrsteele09/go-uma-server/clients"
	apperrors "github.com/jrsteele09/go-uma-server/internal/errors"
	"github.com/jrsteele09/go-uma-server/oauth2"
	"github.com/jrsteele09/go-uma-server/token/keys"
	"github.com/jrsteele09/go-uma-server/uma"
	"github.com/jrsteele09/go-uma-server/users"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const (
	SeedClientID         = "client"
	SeedClientName       = "Bootstrap Client"
	SeedAdminLogin       = "administrator"
	SeedResourceSetID    = "administrator-profile"
	SeedPolicyID         = "administrator-profile-read"
	generatedSecretBytes = 18
)

// SeededCredentials holds the secrets generated on first start. They are
// shown once and never stored in clear.
type SeededCredentials struct {
	ClientID      string
	ClientSecret  string
	AdminLogin    string
	AdminPassword string
}

func (c SeededCredentials) IsEmpty() bool {
	return c.ClientSecret == "" && c.AdminPassword == ""
}

// InitialiseSystem installs the server keys and, when enabled, the bootstrap
// client, resource owner and resource set. Existing entries are left alone.
func (s *Server) InitialiseSystem(ctx context.Context) error {
	if err := s.initialiseKeys(); err != nil {
		return errors.Wrap(err, "[Server InitialiseSystem] failed to install keys")
	}
	if !s.config.GetSeedDefaults() {
		return nil
	}

	clientSecret, err := s.createSeedClient(ctx)
	if err != nil {
		return errors.Wrap(err, "[Server InitialiseSystem] failed to bootstrap client")
	}

	admin, adminPassword, err := s.createSeedAdmin(ctx)
	if err != nil {
		return errors.Wrap(err, "[Server InitialiseSystem] failed to bootstrap resource owner")
	}

	if err := s.createSeedResourceSet(ctx, admin); err != nil {
		return errors.Wrap(err, "[Server InitialiseSystem] failed to bootstrap resource set")
	}

	s.seeded = SeededCredentials{
		ClientID:      SeedClientID,
		ClientSecret:  clientSecret,
		AdminLogin:    SeedAdminLogin,
		AdminPassword: adminPassword,
	}
	return nil
}

// SeededCredentials returns what InitialiseSystem generated. Values supplied
// through configuration are not repeated.
func (s *Server) SeededCredentials() SeededCredentials {
	return s.seeded
}

// initialiseKeys installs an RS256 signing key and an RSA-OAEP-256 encryption
// key unless a signing key is already present.
func (s *Server) initialiseKeys() error {
	if _, err := s.services.Keys.GetDefaultSigningKey(); err == nil {
		return nil
	} else if !errors.Is(err, keys.ErrKeyNotFound) {
		return err
	}

	var signing jose.JSONWebKey
	var err error
	if pemData := s.config.GetSigningKeyPEM(); pemData != "" {
		signing, err = keys.LoadRSAKeyFromPEM("", keys.UseSig, string(jose.RS256), pemData)
	} else {
		signing, err = keys.GenerateRSAKey(uuid.New().String(), keys.UseSig, string(jose.RS256), 2048)
	}
	if err != nil {
		return errors.Wrap(err, "signing key")
	}

	encryption, err := keys.GenerateRSAKey(uuid.New().String(), keys.UseEnc, string(jose.RSA_OAEP_256), 2048)
	if err != nil {
		return errors.Wrap(err, "encryption key")
	}

	if err := s.services.Keys.Rotate(jose.JSONWebKeySet{Keys: []jose.JSONWebKey{signing, encryption}}); err != nil {
		return err
	}
	log.Info().Str("signing_kid", signing.KeyID).Str("encryption_kid", encryption.KeyID).Msg("🔐 server keys installed")
	return nil
}

// createSeedClient returns the generated secret, or "" when the client
// already existed or its secret came from configuration.
func (s *Server) createSeedClient(ctx context.Context) (string, error) {
	if _, err := s.repos.Clients.Get(ctx, SeedClientID); err == nil {
		log.Info().Str("client_id", SeedClientID).Msg("bootstrap client already exists")
		return "", nil
	} else if !errors.Is(err, apperrors.ErrNotFound) {
		return "", err
	}

	secret, generated := s.config.GetSeedClientSecret(), ""
	if secret == "" {
		var err error
		if secret, err = generateSecret(); err != nil {
			return "", err
		}
		generated = secret
	}

	client := &clients.Client{
		ID:                      SeedClientID,
		Name:                    SeedClientName,
		Secrets:                 []clients.Secret{{Type: clients.SharedSecret, Value: secret}},
		TokenEndPointAuthMethod: oauth2.ClientSecretBasic,
		GrantTypes: []oauth2.GrantType{
			oauth2.ClientCredentialsGrant,
			oauth2.PasswordGrant,
			oauth2.RefreshTokenGrant,
			oauth2.UmaTicketGrant,
		},
		ResponseTypes:        []oauth2.ResponseType{oauth2.TokenResponseType},
		Scopes:               []string{"openid", "profile", "email", "role", ScopeUMAProtection},
		TokenLifetime:        s.config.GetDefaultAccessTokenExpiry(),
		RefreshTokenLifetime: s.config.GetDefaultRefreshTokenExpiry(),
	}
	if err := client.Validate(); err != nil {
		return "", err
	}
	if err := s.repos.Clients.Upsert(ctx, client); err != nil {
		return "", err
	}

	log.Info().Str("client_id", SeedClientID).Msg("✅ created bootstrap client")
	return generated, nil
}

func (s *Server) createSeedAdmin(ctx context.Context) (*users.User, string, error) {
	existing, err := s.repos.Users.GetByLogin(ctx, SeedAdminLogin)
	if err == nil {
		log.Info().Str("login", SeedAdminLogin).Msg("bootstrap resource owner already exists")
		return existing, "", nil
	}
	if !errors.Is(err, apperrors.ErrNotFound) {
		return nil, "", err
	}

	password, generated := s.config.GetSeedAdminPassword(), ""
	if password == "" {
		if password, err = generateSecret(); err != nil {
			return nil, "", err
		}
		generated = password
	}
	hash, err := users.HashPassword(password)
	if err != nil {
		return nil, "", errors.Wrap(err, "HashPassword")
	}

	admin := &users.User{
		ID:           uuid.New().String(),
		Login:        SeedAdminLogin,
		PasswordHash: hash,
		Email:        generateEmailFromBaseURL(SeedAdminLogin, s.config.GetBaseURL()),
		FirstName:    "System",
		LastName:     "Administrator",
		DateJoined:   time.Now().UTC(),
		Roles:        []users.RoleType{users.RoleAdministrator},
		Verified:     true,
	}
	if err := s.repos.Users.Upsert(ctx, admin); err != nil {
		return nil, "", err
	}

	log.Info().Str("login", SeedAdminLogin).Msg("✅ created bootstrap resource owner")
	return admin, generated, nil
}

// createSeedResourceSet registers the administrator's profile with a policy
// letting the bootstrap client read it without consent.
func (s *Server) createSeedResourceSet(ctx context.Context, admin *users.User) error {
	if _, err := s.repos.ResourceSets.Get(ctx, SeedResourceSetID); err == nil {
		return nil
	} else if !errors.Is(err, apperrors.ErrNotFound) {
		return err
	}

	resourceSet := &uma.ResourceSet{
		ID:     SeedResourceSetID,
		Name:   "Administrator profile",
		Type:   "profile",
		Scopes: []string{"read", "write"},
		Owner:  admin.ID,
	}
	if err := s.repos.ResourceSets.Upsert(ctx, resourceSet); err != nil {
		return err
	}

	policy := &uma.Policy{
		ID:             SeedPolicyID,
		ResourceSetIDs: []string{SeedResourceSetID},
		Rules: []uma.PolicyRule{{
			ID:               "bootstrap-client-read",
			ClientIDsAllowed: []string{SeedClientID},
			Scopes:           []string{"read"},
		}},
	}
	if err := s.repos.Policies.Upsert(ctx, policy); err != nil {
		return err
	}

	log.Info().Str("resource_set_id", SeedResourceSetID).Msg("✅ created bootstrap resource set")
	return nil
}

func generateSecret() (string, error) {
	b := make([]byte, generatedSecretBytes)
	if _, err := rand.Read(b); err != nil {
		return "", errors.Wrap(err, "failed to generate secret")
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// generateEmailFromBaseURL builds login@host, falling back to localhost.
func generateEmailFromBaseURL(login, baseURL string) string {
	host := "localhost"
	if u, err := url.Parse(baseURL); err == nil && u.Hostname() != "" {
		host = u.Hostname()
	}
	return fmt.Sprintf("%s@%s", login, host)
}

package server_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/jrsteele09/go-uma-server/auth"
	"github.com/jrsteele09/go-uma-server/clients"
	fakeclientrepo "github.com/jrsteele09/go-uma-server/clients/fakerepo"
	codesfakerepo "github.com/jrsteele09/go-uma-server/codes/repofake"
	"github.com/jrsteele09/go-uma-server/internal/config"
	"github.com/jrsteele09/go-uma-server/server"
	"github.com/jrsteele09/go-uma-server/token"
	"github.com/jrsteele09/go-uma-server/token/keys"
	tokenfakerepo "github.com/jrsteele09/go-uma-server/token/repofake"
	"github.com/jrsteele09/go-uma-server/uma"
	umafakerepo "github.com/jrsteele09/go-uma-server/uma/repofake"
	"github.com/jrsteele09/go-uma-server/users"
	fakeuserrepo "github.com/jrsteele09/go-uma-server/users/repofake"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

const (
	testClientSecret  = "client-secret"
	testAdminPassword = "Adm1nistrator"
)

type testFixture struct {
	server  *server.Server
	ts      *httptest.Server
	clients *fakeclientrepo.FakeClientRepo
}

func setupTestFixture(t *testing.T) *testFixture {
	t.Helper()
	t.Setenv("ENV", "TEST")
	t.Setenv("SEED_CLIENT_SECRET", testClientSecret)
	t.Setenv("SEED_ADMIN_PASSWORD", testAdminPassword)

	f := &testFixture{clients: fakeclientrepo.NewFakeClientRepo()}
	f.server = newServer(t, f.clients)

	f.ts = httptest.NewServer(f.server)
	t.Cleanup(f.ts.Close)
	t.Setenv("BASE_URL", f.ts.URL)
	return f
}

func newServer(t *testing.T, clientRepo clients.Repo) *server.Server {
	t.Helper()
	resolver, err := keys.NewResolver()
	require.NoError(t, err)

	userRepo := fakeuserrepo.NewFakeUserRepo()
	resourceSets := umafakerepo.NewFakeResourceSetRepo()
	policies := umafakerepo.NewFakePolicyRepo()
	tickets := umafakerepo.NewFakeTicketRepo()
	tokens := token.New(tokenfakerepo.NewFakeTokenRepo(), resolver)

	scripts, err := uma.NewScriptEvaluator()
	require.NoError(t, err)
	engine := uma.NewEngine(resourceSets, policies, umafakerepo.NewFakeConsentRepo(),
		uma.NewTokenVerifier(resolver.VerificationKey), uma.WithScriptEvaluator(scripts))

	authService, err := auth.NewAuthorizationService(
		auth.Repos{Clients: clientRepo, Codes: codesfakerepo.NewFakeCodeRepo(), Tickets: tickets},
		auth.Services{
			ClientAuthenticator: clients.NewAuthenticator(clientRepo, clients.WithDecrypter(resolver)),
			Tokens:              tokens,
			ResourceOwners:      users.NewAuthenticators(users.NewPasswordAuthenticator(userRepo)),
			Uma:                 engine,
		},
	)
	require.NoError(t, err)

	s, err := server.New(context.Background(), config.New(),
		server.Repos{Clients: clientRepo, Users: userRepo, ResourceSets: resourceSets, Policies: policies},
		server.Services{
			Auth:        authService,
			Permissions: uma.NewPermissionService(tickets, resourceSets),
			Tokens:      tokens,
			Keys:        resolver,
		},
	)
	require.NoError(t, err)
	return s
}

func (f *testFixture) oauthConfig(scopes ...string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     server.SeedClientID,
		ClientSecret: testClientSecret,
		Scopes:       scopes,
		Endpoint: oauth2.Endpoint{
			TokenURL:  f.ts.URL + server.RouteOAuth2Token,
			AuthStyle: oauth2.AuthStyleInHeader,
		},
	}
}

func (f *testFixture) protectionToken(t *testing.T) string {
	t.Helper()
	cc := clientcredentials.Config{
		ClientID:     server.SeedClientID,
		ClientSecret: testClientSecret,
		TokenURL:     f.ts.URL + server.RouteOAuth2Token,
		Scopes:       []string{server.ScopeUMAProtection},
		AuthStyle:    oauth2.AuthStyleInHeader,
	}
	tok, err := cc.Token(context.Background())
	require.NoError(t, err)
	return tok.AccessToken
}

func (f *testFixture) adminToken(t *testing.T, scopes ...string) *oauth2.Token {
	t.Helper()
	tok, err := f.oauthConfig(scopes...).PasswordCredentialsToken(context.Background(), server.SeedAdminLogin, testAdminPassword)
	require.NoError(t, err)
	return tok
}

// postForm sends a form authenticated as the bootstrap client.
func (f *testFixture) postForm(t *testing.T, route string, form url.Values) (*http.Response, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, f.ts.URL+route, strings.NewReader(form.Encode()))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(server.SeedClientID, testClientSecret)
	return do(t, req)
}

func (f *testFixture) postJSON(t *testing.T, route, bearer, body string) (*http.Response, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, f.ts.URL+route, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	return do(t, req)
}

func do(t *testing.T, req *http.Request) (*http.Response, map[string]any) {
	t.Helper()
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var body map[string]any
	if resp.ContentLength != 0 && strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	}
	return resp, body
}

func (f *testFixture) requestTicket(t *testing.T, pat string) string {
	t.Helper()
	resp, body := f.postJSON(t, server.RouteUMAPermission, pat,
		`{"resource_set_id":"`+server.SeedResourceSetID+`","scopes":["read"]}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	ticket, _ := body["ticket"].(string)
	require.NotEmpty(t, ticket)
	return ticket
}

func TestOpenIDDiscoveryAndIDTokenVerification(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()

	provider, err := oidc.NewProvider(ctx, f.ts.URL)
	require.NoError(t, err)
	require.Equal(t, f.ts.URL+server.RouteOAuth2Token, provider.Endpoint().TokenURL)

	tok := f.adminToken(t, "openid", "profile")
	require.Equal(t, "Bearer", tok.TokenType)
	require.NotEmpty(t, tok.RefreshToken)

	rawIDToken, ok := tok.Extra("id_token").(string)
	require.True(t, ok)

	idToken, err := provider.Verifier(&oidc.Config{ClientID: server.SeedClientID}).Verify(ctx, rawIDToken)
	require.NoError(t, err)
	require.NotEmpty(t, idToken.Subject)

	var claims struct {
		PreferredUsername string   `json:"preferred_username"`
		Name              string   `json:"name"`
		Amr               []string `json:"amr"`
	}
	require.NoError(t, idToken.Claims(&claims))
	require.Equal(t, server.SeedAdminLogin, claims.PreferredUsername)
	require.Equal(t, "System Administrator", claims.Name)
	require.Equal(t, []string{users.AmrPassword}, claims.Amr)
}

func TestUMA2Discovery(t *testing.T) {
	f := setupTestFixture(t)

	resp, err := http.Get(f.ts.URL + server.RouteWellKnownUMA2Config)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var doc map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&doc))
	require.Equal(t, f.ts.URL, doc["issuer"])
	require.Equal(t, f.ts.URL+server.RouteUMAPermission, doc["permission_endpoint"])
	require.Contains(t, doc["grant_types_supported"], "urn:ietf:params:oauth:grant-type:uma-ticket")
}

func TestJWKSPublishesOnlyPublicKeys(t *testing.T) {
	f := setupTestFixture(t)

	resp, err := http.Get(f.ts.URL + server.RouteWellKnownJWKS)
	require.NoError(t, err)
	defer resp.Body.Close()

	var set struct {
		Keys []map[string]any `json:"keys"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&set))
	require.Len(t, set.Keys, 2)
	for _, key := range set.Keys {
		require.Equal(t, "RSA", key["kty"])
		require.NotContains(t, key, "d")
	}
}

func TestTokenEndpointErrors(t *testing.T) {
	f := setupTestFixture(t)

	t.Run("missing grant type", func(t *testing.T) {
		resp, body := f.postForm(t, server.RouteOAuth2Token, url.Values{})
		require.Equal(t, http.StatusBadRequest, resp.StatusCode)
		require.Equal(t, "invalid_request", body["title"])
		require.Equal(t, "missing parameter: grant_type", body["detail"])
		require.EqualValues(t, http.StatusBadRequest, body["status"])
	})

	t.Run("wrong client secret", func(t *testing.T) {
		cfg := f.oauthConfig("profile")
		cfg.ClientSecret = "wrong"
		_, err := cfg.PasswordCredentialsToken(context.Background(), server.SeedAdminLogin, testAdminPassword)
		var retrieveErr *oauth2.RetrieveError
		require.ErrorAs(t, err, &retrieveErr)
		require.Equal(t, http.StatusBadRequest, retrieveErr.Response.StatusCode)
	})

	t.Run("responses are not cacheable", func(t *testing.T) {
		resp, _ := f.postForm(t, server.RouteOAuth2Token, url.Values{
			"grant_type": {"client_credentials"},
			"scope":      {"profile"},
		})
		require.Equal(t, http.StatusOK, resp.StatusCode)
		require.Equal(t, "no-store", resp.Header.Get("Cache-Control"))
	})
}

func TestUMATicketFlow(t *testing.T) {
	f := setupTestFixture(t)
	pat := f.protectionToken(t)
	ticket := f.requestTicket(t, pat)

	resp, body := f.postForm(t, server.RouteOAuth2Token, url.Values{
		"grant_type": {"urn:ietf:params:oauth:grant-type:uma-ticket"},
		"ticket":     {ticket},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	rpt, _ := body["access_token"].(string)
	require.NotEmpty(t, rpt)

	resp, body = f.postForm(t, server.RouteOAuth2Introspect, url.Values{"token": {rpt}})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, true, body["active"])
	require.Equal(t, "read", body["scope"])

	// A ticket is redeemed once.
	resp, body = f.postForm(t, server.RouteOAuth2Token, url.Values{
		"grant_type": {"urn:ietf:params:oauth:grant-type:uma-ticket"},
		"ticket":     {ticket},
	})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Equal(t, "invalid_grant", body["title"])
}

func TestPermissionEndpoint(t *testing.T) {
	f := setupTestFixture(t)
	pat := f.protectionToken(t)

	t.Run("bearer token is required", func(t *testing.T) {
		resp, body := f.postJSON(t, server.RouteUMAPermission, "", `{}`)
		require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		require.Equal(t, "invalid_token", body["title"])
	})

	t.Run("token without uma_protection", func(t *testing.T) {
		tok := f.adminToken(t, "profile")
		resp, body := f.postJSON(t, server.RouteUMAPermission, tok.AccessToken,
			`{"resource_set_id":"`+server.SeedResourceSetID+`","scopes":["read"]}`)
		require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		require.Equal(t, "invalid_token", body["title"])
	})

	t.Run("array body", func(t *testing.T) {
		resp, body := f.postJSON(t, server.RouteUMAPermission, pat,
			`[{"resource_set_id":"`+server.SeedResourceSetID+`","scopes":["read"]},{"resource_set_id":"`+server.SeedResourceSetID+`","scopes":["write"]}]`)
		require.Equal(t, http.StatusCreated, resp.StatusCode)
		require.NotEmpty(t, body["ticket"])
	})

	t.Run("unknown resource set", func(t *testing.T) {
		resp, body := f.postJSON(t, server.RouteUMAPermission, pat, `{"resource_set_id":"missing","scopes":["read"]}`)
		require.Equal(t, http.StatusBadRequest, resp.StatusCode)
		require.Equal(t, "invalid_resource_set_id", body["title"])
	})

	t.Run("malformed body", func(t *testing.T) {
		resp, body := f.postJSON(t, server.RouteUMAPermission, pat, `{"resource_set_id":`)
		require.Equal(t, http.StatusBadRequest, resp.StatusCode)
		require.Equal(t, "invalid_request", body["title"])
	})
}

func TestApproveTicket(t *testing.T) {
	f := setupTestFixture(t)
	pat := f.protectionToken(t)
	ticket := f.requestTicket(t, pat)
	route := strings.Replace(server.RouteUMATicketApprove, "{ticket}", ticket, 1)

	t.Run("a client token cannot approve", func(t *testing.T) {
		resp, body := f.postJSON(t, route, pat, "")
		require.Equal(t, http.StatusForbidden, resp.StatusCode)
		require.Equal(t, "invalid_grant", body["title"])
	})

	t.Run("the resource owner approves", func(t *testing.T) {
		tok := f.adminToken(t, "profile")
		resp, _ := f.postJSON(t, route, tok.AccessToken, "")
		require.Equal(t, http.StatusNoContent, resp.StatusCode)
	})
}

func TestRevokeThenIntrospect(t *testing.T) {
	f := setupTestFixture(t)
	tok := f.adminToken(t, "profile")

	resp, _ := f.postForm(t, server.RouteOAuth2Revoke, url.Values{"token": {tok.AccessToken}})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body := f.postForm(t, server.RouteOAuth2Introspect, url.Values{"token": {tok.AccessToken}})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, map[string]any{"active": false}, body)

	resp, body = f.postForm(t, server.RouteOAuth2Revoke, url.Values{"token": {tok.AccessToken}})
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	require.Equal(t, "invalid_token", body["title"])
}

func TestCORSPreflight(t *testing.T) {
	f := setupTestFixture(t)
	t.Setenv("ALLOWED_ORIGINS", "https://app.example.com")

	req, err := http.NewRequest(http.MethodOptions, f.ts.URL+server.RouteOAuth2Token, nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "https://app.example.com")
	resp, _ := do(t, req)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	require.Equal(t, "https://app.example.com", resp.Header.Get("Access-Control-Allow-Origin"))
	require.Contains(t, resp.Header.Get("Access-Control-Allow-Methods"), "POST")

	req.Header.Set("Origin", "https://evil.example.com")
	resp, _ = do(t, req)
	require.Empty(t, resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestBootstrapGeneratesCredentialsOnce(t *testing.T) {
	t.Setenv("ENV", "TEST")
	t.Setenv("SEED_CLIENT_SECRET", "")
	t.Setenv("SEED_ADMIN_PASSWORD", "")
	clientRepo := fakeclientrepo.NewFakeClientRepo()

	s := newServer(t, clientRepo)
	seeded := s.SeededCredentials()
	require.Equal(t, server.SeedClientID, seeded.ClientID)
	require.NotEmpty(t, seeded.ClientSecret)
	require.NotEmpty(t, seeded.AdminPassword)

	stored, err := clientRepo.Get(context.Background(), server.SeedClientID)
	require.NoError(t, err)
	require.Equal(t, []string{seeded.ClientSecret}, stored.SecretsOfType(clients.SharedSecret))

	// A second start against the same client store keeps the existing client.
	again := newServer(t, clientRepo)
	require.Empty(t, again.SeededCredentials().ClientSecret)
}

func TestSeedingCanBeDisabled(t *testing.T) {
	t.Setenv("SEED_DEFAULTS", "false")
	clientRepo := fakeclientrepo.NewFakeClientRepo()

	s := newServer(t, clientRepo)
	require.True(t, s.SeededCredentials().IsEmpty())

	_, err := clientRepo.Get(context.Background(), server.SeedClientID)
	require.Error(t, err)
}

package uma_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/golang-jwt/jwt/v5"
	"github.com/jrsteele09/go-uma-server/clients"
	"github.com/jrsteele09/go-uma-server/oauth2"
	"github.com/jrsteele09/go-uma-server/token/keys"
	"github.com/jrsteele09/go-uma-server/uma"
	umafakerepo "github.com/jrsteele09/go-uma-server/uma/repofake"
	"github.com/stretchr/testify/require"
)

type testFixture struct {
	now          time.Time
	resolver     *keys.Resolver
	resourceSets *umafakerepo.FakeResourceSetRepo
	policies     *umafakerepo.FakePolicyRepo
	consents     *umafakerepo.FakeConsentRepo
	engine       *uma.Engine
	client       *clients.Client
}

func setupTestFixture(t *testing.T) *testFixture {
	t.Helper()
	ctx := context.Background()

	sig, err := keys.GenerateRSAKey("sig-1", keys.UseSig, "RS256", 2048)
	require.NoError(t, err)
	resolver, err := keys.NewResolver(sig)
	require.NoError(t, err)

	scripts, err := uma.NewScriptEvaluator()
	require.NoError(t, err)

	f := &testFixture{
		now:          time.Now().UTC(),
		resolver:     resolver,
		resourceSets: umafakerepo.NewFakeResourceSetRepo(),
		policies:     umafakerepo.NewFakePolicyRepo(),
		consents:     umafakerepo.NewFakeConsentRepo(),
		client:       &clients.Client{ID: "requester"},
	}
	for _, id := range []string{"photos", "albums"} {
		require.NoError(t, f.resourceSets.Upsert(ctx, &uma.ResourceSet{
			ID: id, Name: id, Owner: "alice", Scopes: []string{"read", "write"},
		}))
	}

	verifier := uma.NewTokenVerifier(resolver.VerificationKey)
	f.engine = uma.NewEngine(f.resourceSets, f.policies, f.consents, verifier, uma.WithScriptEvaluator(scripts))
	return f
}

func (f *testFixture) addRule(t *testing.T, resourceSetID string, rule uma.PolicyRule) {
	t.Helper()
	require.NoError(t, f.policies.Upsert(context.Background(), &uma.Policy{
		ID:             resourceSetID + "-" + rule.ID,
		ResourceSetIDs: []string{resourceSetID},
		Rules:          []uma.PolicyRule{rule},
	}))
}

func (f *testFixture) claimToken(t *testing.T, claims jwt.MapClaims) uma.ClaimToken {
	t.Helper()
	key, err := f.resolver.GetDefaultSigningKey()
	require.NoError(t, err)

	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	tok.Header["kid"] = key.KeyID
	signed, err := tok.SignedString(key.Key)
	require.NoError(t, err)
	return uma.ClaimToken{Value: signed, Format: oauth2.ClaimTokenFormatIDToken}
}

func ticket(lines ...uma.TicketLine) *uma.Ticket {
	return &uma.Ticket{ID: "ticket", ResourceOwner: "alice", Lines: lines, ExpiresIn: 3600}
}

func readPhotos() uma.TicketLine {
	return uma.TicketLine{ID: "l1", ResourceSetID: "photos", Scopes: []string{"read"}}
}

func TestRequiredClaims(t *testing.T) {
	f := setupTestFixture(t)
	f.addRule(t, "photos", uma.PolicyRule{
		ID:     "sub-alice",
		Scopes: []string{"read"},
		Claims: []uma.ClaimRequirement{{Type: "sub", Value: "alice"}},
	})
	ctx := context.Background()

	t.Run("mismatched claim is not authorized", func(t *testing.T) {
		res, err := f.engine.Evaluate(ctx, ticket(readPhotos()), f.client, f.claimToken(t, jwt.MapClaims{"sub": "bob"}))
		require.NoError(t, err)
		require.Equal(t, uma.NotAuthorized, res.Kind)
	})

	t.Run("matching claim is authorized", func(t *testing.T) {
		res, err := f.engine.Evaluate(ctx, ticket(readPhotos()), f.client, f.claimToken(t, jwt.MapClaims{"sub": "alice"}))
		require.NoError(t, err)
		require.Equal(t, uma.Authorized, res.Kind)
		require.Equal(t, "alice", res.Claims.String("sub"))
	})

	t.Run("absent claim token needs info", func(t *testing.T) {
		res, err := f.engine.Evaluate(ctx, ticket(readPhotos()), f.client, uma.ClaimToken{})
		require.NoError(t, err)
		require.Equal(t, uma.NeedInfo, res.Kind)
		require.Len(t, res.RequiredClaims, 1)
		require.Equal(t, "sub", res.RequiredClaims[0].Name)
		require.Equal(t, []string{oauth2.ClaimTokenFormatIDToken}, res.RequiredClaims[0].ClaimTokenFormat)
	})

	t.Run("forged claim token is not authorized", func(t *testing.T) {
		ct := f.claimToken(t, jwt.MapClaims{"sub": "alice"})
		ct.Value += "x"
		res, err := f.engine.Evaluate(ctx, ticket(readPhotos()), f.client, ct)
		require.NoError(t, err)
		require.Equal(t, uma.NotAuthorized, res.Kind)
	})

	t.Run("list claims match by membership", func(t *testing.T) {
		f.addRule(t, "albums", uma.PolicyRule{ID: "role", Claims: []uma.ClaimRequirement{{Type: "role", Value: "editor"}}})
		line := uma.TicketLine{ID: "l2", ResourceSetID: "albums", Scopes: []string{"write"}}
		res, err := f.engine.Evaluate(ctx, ticket(line), f.client, f.claimToken(t, jwt.MapClaims{"role": []string{"viewer", "editor"}}))
		require.NoError(t, err)
		require.Equal(t, uma.Authorized, res.Kind)
	})
}

func TestRuleConditions(t *testing.T) {
	ctx := context.Background()

	t.Run("client must be allowed", func(t *testing.T) {
		f := setupTestFixture(t)
		f.addRule(t, "photos", uma.PolicyRule{ID: "r", ClientIDsAllowed: []string{"other"}})
		res, err := f.engine.Evaluate(ctx, ticket(readPhotos()), f.client, uma.ClaimToken{})
		require.NoError(t, err)
		require.Equal(t, uma.NotAuthorized, res.Kind)
	})

	t.Run("rule scopes must be requested", func(t *testing.T) {
		f := setupTestFixture(t)
		f.addRule(t, "photos", uma.PolicyRule{ID: "r", Scopes: []string{"read", "write"}})
		res, err := f.engine.Evaluate(ctx, ticket(readPhotos()), f.client, uma.ClaimToken{})
		require.NoError(t, err)
		require.Equal(t, uma.NotAuthorized, res.Kind)
	})

	t.Run("any satisfied rule authorizes the line", func(t *testing.T) {
		f := setupTestFixture(t)
		f.addRule(t, "photos", uma.PolicyRule{ID: "a", ClientIDsAllowed: []string{"other"}})
		f.addRule(t, "photos", uma.PolicyRule{ID: "b", ClientIDsAllowed: []string{"requester"}, Scopes: []string{"read"}})
		res, err := f.engine.Evaluate(ctx, ticket(readPhotos()), f.client, uma.ClaimToken{})
		require.NoError(t, err)
		require.Equal(t, uma.Authorized, res.Kind)
	})

	t.Run("resource set without policies is never granted", func(t *testing.T) {
		f := setupTestFixture(t)
		tk := ticket(readPhotos())
		res, err := f.engine.Evaluate(ctx, tk, f.client, uma.ClaimToken{})
		require.NoError(t, err)
		require.Equal(t, uma.NotAuthorized, res.Kind)

		tk.IsAuthorizedByRo = true
		res, err = f.engine.Evaluate(ctx, tk, f.client, uma.ClaimToken{})
		require.NoError(t, err)
		require.Equal(t, uma.NotAuthorized, res.Kind, "owner approval does not stand in for a policy")
	})

	t.Run("unknown resource set", func(t *testing.T) {
		f := setupTestFixture(t)
		res, err := f.engine.Evaluate(ctx, ticket(uma.TicketLine{ResourceSetID: "ghost", Scopes: []string{"read"}}), f.client, uma.ClaimToken{})
		require.NoError(t, err)
		require.Equal(t, uma.NotAuthorized, res.Kind)
	})
}

func TestConsent(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()
	f.addRule(t, "photos", uma.PolicyRule{ID: "consent", IsResourceOwnerConsentNeeded: true})

	res, err := f.engine.Evaluate(ctx, ticket(readPhotos()), f.client, uma.ClaimToken{})
	require.NoError(t, err)
	require.Equal(t, uma.NotAuthorized, res.Kind)

	require.NoError(t, f.consents.Upsert(ctx, &uma.Consent{
		ResourceOwner: "alice", ClientID: "requester", ResourceSetID: "photos", Scopes: []string{"read"},
	}))
	res, err = f.engine.Evaluate(ctx, ticket(readPhotos()), f.client, uma.ClaimToken{})
	require.NoError(t, err)
	require.Equal(t, uma.Authorized, res.Kind)

	approved := ticket(uma.TicketLine{ResourceSetID: "photos", Scopes: []string{"write"}})
	res, err = f.engine.Evaluate(ctx, approved, f.client, uma.ClaimToken{})
	require.NoError(t, err)
	require.Equal(t, uma.NotAuthorized, res.Kind, "consent does not cover write")

	approved.IsAuthorizedByRo = true
	res, err = f.engine.Evaluate(ctx, approved, f.client, uma.ClaimToken{})
	require.NoError(t, err)
	require.Equal(t, uma.Authorized, res.Kind)
}

func TestScriptRule(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()
	f.addRule(t, "photos", uma.PolicyRule{ID: "script", Script: `client_id == "requester" && "read" in scopes && claims.sub == "alice"`})

	res, err := f.engine.Evaluate(ctx, ticket(readPhotos()), f.client, f.claimToken(t, jwt.MapClaims{"sub": "alice"}))
	require.NoError(t, err)
	require.Equal(t, uma.Authorized, res.Kind)

	res, err = f.engine.Evaluate(ctx, ticket(readPhotos()), f.client, f.claimToken(t, jwt.MapClaims{"sub": "bob"}))
	require.NoError(t, err)
	require.Equal(t, uma.NotAuthorized, res.Kind)

	f.addRule(t, "albums", uma.PolicyRule{ID: "broken", Script: `client_id +`})
	res, err = f.engine.Evaluate(ctx, ticket(uma.TicketLine{ResourceSetID: "albums", Scopes: []string{"read"}}), f.client, uma.ClaimToken{})
	require.NoError(t, err)
	require.Equal(t, uma.NotAuthorized, res.Kind)
}

func TestTicketCombinesLines(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()
	f.addRule(t, "photos", uma.PolicyRule{ID: "open"})
	f.addRule(t, "albums", uma.PolicyRule{ID: "email", Claims: []uma.ClaimRequirement{{Type: "email", Value: "bob@example.com"}}})

	albums := uma.TicketLine{ID: "l2", ResourceSetID: "albums", Scopes: []string{"read"}}

	res, err := f.engine.Evaluate(ctx, ticket(readPhotos()), f.client, uma.ClaimToken{})
	require.NoError(t, err)
	require.Equal(t, uma.Authorized, res.Kind)

	res, err = f.engine.Evaluate(ctx, ticket(readPhotos(), albums), f.client, uma.ClaimToken{})
	require.NoError(t, err)
	require.Equal(t, uma.NeedInfo, res.Kind)
	require.Equal(t, "email", res.RequiredClaims[0].Name)

	res, err = f.engine.Evaluate(ctx, ticket(readPhotos(), albums), f.client, f.claimToken(t, jwt.MapClaims{"email": "eve@example.com"}))
	require.NoError(t, err)
	require.Equal(t, uma.NotAuthorized, res.Kind)

	res, err = f.engine.Evaluate(ctx, ticket(readPhotos(), albums), f.client, f.claimToken(t, jwt.MapClaims{"email": "bob@example.com"}))
	require.NoError(t, err)
	require.Equal(t, uma.Authorized, res.Kind)

	denied := uma.TicketLine{ID: "l3", ResourceSetID: "ghost", Scopes: []string{"read"}}
	res, err = f.engine.Evaluate(ctx, ticket(readPhotos(), albums, denied), f.client, uma.ClaimToken{})
	require.NoError(t, err)
	require.Equal(t, uma.NotAuthorized, res.Kind, "a denied line outweighs missing claims")
}

func TestEvaluateHonoursCancellation(t *testing.T) {
	f := setupTestFixture(t)
	f.addRule(t, "photos", uma.PolicyRule{ID: "open"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := f.engine.Evaluate(ctx, ticket(readPhotos()), f.client, uma.ClaimToken{})
	require.ErrorIs(t, err, context.Canceled)
}

func TestExternalOpenIDProvider(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()

	providerKey, err := keys.GenerateRSAKey("ext-1", keys.UseSig, "RS256", 2048)
	require.NoError(t, err)

	var issuer string
	mux := http.NewServeMux()
	mux.HandleFunc("GET /.well-known/openid-configuration", func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"issuer":                                issuer,
			"jwks_uri":                              issuer + "/jwks",
			"authorization_endpoint":                issuer + "/authorize",
			"token_endpoint":                        issuer + "/token",
			"id_token_signing_alg_values_supported": []string{"RS256"},
		})
	})
	mux.HandleFunc("GET /jwks", func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(jose.JSONWebKeySet{Keys: []jose.JSONWebKey{providerKey.Public()}})
	})
	server := httptest.NewServer(mux)
	defer server.Close()
	issuer = server.URL

	f.addRule(t, "photos", uma.PolicyRule{
		ID:             "external",
		Claims:         []uma.ClaimRequirement{{Type: "sub", Value: "alice"}},
		OpenIDProvider: issuer,
	})

	sign := func(key jose.JSONWebKey, sub string) uma.ClaimToken {
		tok := jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.MapClaims{
			"iss": issuer,
			"sub": sub,
			"aud": "someone",
			"iat": time.Now().Unix(),
			"exp": time.Now().Add(time.Hour).Unix(),
		})
		tok.Header["kid"] = key.KeyID
		signed, err := tok.SignedString(key.Key)
		require.NoError(t, err)
		return uma.ClaimToken{Value: signed, Format: oauth2.ClaimTokenFormatIDToken}
	}

	res, err := f.engine.Evaluate(ctx, ticket(readPhotos()), f.client, sign(providerKey, "alice"))
	require.NoError(t, err)
	require.Equal(t, uma.Authorized, res.Kind)

	ownKey, err := f.resolver.GetDefaultSigningKey()
	require.NoError(t, err)
	res, err = f.engine.Evaluate(ctx, ticket(readPhotos()), f.client, sign(ownKey, "alice"))
	require.NoError(t, err)
	require.Equal(t, uma.NotAuthorized, res.Kind, "external claims are verified with the provider's keys only")
}

func TestUnsupportedClaimTokenFormat(t *testing.T) {
	f := setupTestFixture(t)
	f.addRule(t, "photos", uma.PolicyRule{ID: "r", Claims: []uma.ClaimRequirement{{Type: "sub", Value: "alice"}}})

	_, err := f.engine.Evaluate(context.Background(), ticket(readPhotos()), f.client,
		uma.ClaimToken{Value: "x", Format: "urn:example:saml"})
	require.Error(t, err)
}

package uma

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/jrsteele09/go-uma-server/clients"
	apperrors "github.com/jrsteele09/go-uma-server/internal/errors"
	"github.com/jrsteele09/go-uma-server/internal/utils"
	"github.com/jrsteele09/go-uma-server/oauth2"
	"github.com/jrsteele09/go-uma-server/token"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

const maxConcurrentLines = 8

// Engine decides whether a requesting party may receive an RPT for the
// lines of a ticket.
type Engine struct {
	resourceSets ResourceSetRepo
	policies     PolicyRepo
	consents     ConsentRepo
	verifier     ClaimVerifier
	scripts      *ScriptEvaluator
	logger       zerolog.Logger
}

type EngineOption func(*Engine)

func WithLogger(logger zerolog.Logger) EngineOption {
	return func(e *Engine) {
		e.logger = logger
	}
}

func WithScriptEvaluator(scripts *ScriptEvaluator) EngineOption {
	return func(e *Engine) {
		e.scripts = scripts
	}
}

func NewEngine(resourceSets ResourceSetRepo, policies PolicyRepo, consents ConsentRepo, verifier ClaimVerifier, options ...EngineOption) *Engine {
	e := &Engine{
		resourceSets: resourceSets,
		policies:     policies,
		consents:     consents,
		verifier:     verifier,
		logger:       zerolog.Nop(),
	}
	for _, opt := range options {
		opt(e)
	}
	return e
}

// Evaluate checks every line of ticket. The ticket is Authorized only when
// all lines are; a single NotAuthorized line decides the result, otherwise
// missing claims of all lines are reported together as NeedInfo. Only store
// faults are returned as errors.
func (e *Engine) Evaluate(ctx context.Context, ticket *Ticket, client *clients.Client, claimToken ClaimToken) (*Result, error) {
	if len(ticket.Lines) == 0 {
		return &Result{Kind: NotAuthorized}, nil
	}

	claims := newClaimResolver(e.verifier, ticket.Claims, claimToken)
	results := make([]*Result, len(ticket.Lines))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentLines)
	for i := range ticket.Lines {
		g.Go(func() error {
			r, err := e.evaluateLine(gctx, ticket, ticket.Lines[i], client, claims)
			if err != nil {
				return err
			}
			results[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return combine(results), nil
}

func combine(results []*Result) *Result {
	combined := &Result{Kind: Authorized}
	for _, r := range results {
		switch r.Kind {
		case NotAuthorized:
			return &Result{Kind: NotAuthorized}
		case NeedInfo:
			combined.Kind = NeedInfo
			combined.RequiredClaims = mergeRequiredClaims(combined.RequiredClaims, r.RequiredClaims)
		case Authorized:
			combined.Claims = combined.Claims.Merge(r.Claims)
		}
	}
	if combined.Kind == NeedInfo {
		combined.Claims = nil
	}
	return combined
}

func (e *Engine) evaluateLine(ctx context.Context, ticket *Ticket, line TicketLine, client *clients.Client, claims *claimResolver) (*Result, error) {
	resourceSet, err := e.resourceSets.Get(ctx, line.ResourceSetID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			e.logger.Debug().Str("resource_set_id", line.ResourceSetID).Msg("ticket references an unknown resource set")
			return &Result{Kind: NotAuthorized}, nil
		}
		return nil, errors.Wrap(err, "[Engine.evaluateLine] resourceSets.Get")
	}

	policies, err := e.policies.GetByResourceSet(ctx, resourceSet.ID)
	if err != nil {
		return nil, errors.Wrap(err, "[Engine.evaluateLine] policies.GetByResourceSet")
	}
	if len(policies) == 0 {
		e.logger.Debug().Str("resource_set_id", resourceSet.ID).Msg("resource set has no policies")
		return &Result{Kind: NotAuthorized}, nil
	}

	var missing []RequiredClaim
	needInfo := false
	for _, policy := range policies {
		for _, rule := range policy.Rules {
			r, err := e.evaluateRule(ctx, ticket, line, resourceSet, rule, client, claims)
			if err != nil {
				return nil, err
			}
			switch r.Kind {
			case Authorized:
				return r, nil
			case NeedInfo:
				needInfo = true
				missing = mergeRequiredClaims(missing, r.RequiredClaims)
			}
		}
	}
	if needInfo {
		return &Result{Kind: NeedInfo, RequiredClaims: missing}, nil
	}
	return &Result{Kind: NotAuthorized}, nil
}

// evaluateRule requires the client, scopes, claims, script and consent
// conditions of rule to hold together.
func (e *Engine) evaluateRule(
	ctx context.Context,
	ticket *Ticket,
	line TicketLine,
	resourceSet *ResourceSet,
	rule PolicyRule,
	client *clients.Client,
	claims *claimResolver,
) (*Result, error) {
	log := e.logger.With().Str("rule_id", rule.ID).Str("resource_set_id", resourceSet.ID).Logger()

	if len(rule.ClientIDsAllowed) > 0 && !slices.Contains(rule.ClientIDsAllowed, client.ID) {
		log.Debug().Str("client_id", client.ID).Msg("client not allowed by rule")
		return &Result{Kind: NotAuthorized}, nil
	}
	if !utils.ContainsAll(line.Scopes, rule.Scopes) {
		log.Debug().Strs("scopes", line.Scopes).Msg("rule scopes not requested")
		return &Result{Kind: NotAuthorized}, nil
	}

	var requester token.ClaimSet
	if len(rule.Claims) > 0 || rule.Script != "" {
		var err error
		requester, err = claims.resolve(ctx, rule.OpenIDProvider)
		if err != nil {
			if _, ok := apperrors.AsProtocolError(err); ok {
				return nil, err
			}
			log.Debug().Err(err).Msg("claim token rejected")
			return &Result{Kind: NotAuthorized}, nil
		}
	}

	if len(rule.Claims) > 0 {
		var missing []RequiredClaim
		for _, required := range rule.Claims {
			value, ok := requester.Get(required.Type)
			if !ok {
				missing = append(missing, requiredClaim(required, rule.OpenIDProvider))
				continue
			}
			if !claimMatches(value, required.Value) {
				log.Debug().Str("claim", required.Type).Msg("claim value does not match")
				return &Result{Kind: NotAuthorized}, nil
			}
		}
		if len(missing) > 0 {
			return &Result{Kind: NeedInfo, RequiredClaims: missing}, nil
		}
	}

	if rule.Script != "" {
		ok, err := e.runScript(rule.Script, ScriptInput{
			ClientID:      client.ID,
			Scopes:        line.Scopes,
			Claims:        requester.Map(),
			ResourceSetID: resourceSet.ID,
			ResourceOwner: ticket.ResourceOwner,
		})
		if err != nil {
			log.Error().Err(err).Msg("rule script failed")
			return &Result{Kind: NotAuthorized}, nil
		}
		if !ok {
			return &Result{Kind: NotAuthorized}, nil
		}
	}

	if rule.IsResourceOwnerConsentNeeded && !ticket.IsAuthorizedByRo {
		consented, err := e.hasConsent(ctx, ticket.ResourceOwner, client.ID, line)
		if err != nil {
			return nil, err
		}
		if !consented {
			log.Debug().Msg("resource owner consent missing")
			return &Result{Kind: NotAuthorized}, nil
		}
	}

	return &Result{Kind: Authorized, Claims: requester}, nil
}

func (e *Engine) runScript(script string, input ScriptInput) (bool, error) {
	if e.scripts == nil {
		return false, errors.New("no script evaluator configured")
	}
	return e.scripts.Evaluate(script, input)
}

func (e *Engine) hasConsent(ctx context.Context, resourceOwner, clientID string, line TicketLine) (bool, error) {
	if e.consents == nil {
		return false, nil
	}
	consent, err := e.consents.Get(ctx, resourceOwner, clientID, line.ResourceSetID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return false, nil
		}
		return false, errors.Wrap(err, "[Engine.hasConsent] consents.Get")
	}
	return utils.ContainsAll(consent.Scopes, line.Scopes), nil
}

// claimMatches compares a presented claim with a required value. Lists
// match when they contain the value.
func claimMatches(presented any, required string) bool {
	switch v := presented.(type) {
	case string:
		return v == required
	case []any, []string:
		return slices.Contains(utils.ToStringSlice(v), required)
	default:
		return fmt.Sprint(v) == required
	}
}

func requiredClaim(required ClaimRequirement, issuer string) RequiredClaim {
	rc := RequiredClaim{
		Name:             required.Type,
		FriendlyName:     required.Type,
		ClaimTokenFormat: []string{oauth2.ClaimTokenFormatIDToken},
	}
	if issuer != "" {
		rc.Issuer = []string{issuer}
	}
	return rc
}

func mergeRequiredClaims(into, more []RequiredClaim) []RequiredClaim {
	for _, rc := range more {
		duplicate := slices.ContainsFunc(into, func(existing RequiredClaim) bool {
			return existing.Name == rc.Name && slices.Equal(existing.Issuer, rc.Issuer)
		})
		if !duplicate {
			into = append(into, rc)
		}
	}
	return into
}

// claimResolver verifies the claim token at most once per issuer for one
// evaluation, shared by lines running concurrently.
type claimResolver struct {
	verifier ClaimVerifier
	base     token.ClaimSet
	token    ClaimToken
	lock     sync.Mutex
	resolved map[string]resolvedClaims
}

type resolvedClaims struct {
	claims token.ClaimSet
	err    error
}

func newClaimResolver(verifier ClaimVerifier, base token.ClaimSet, claimToken ClaimToken) *claimResolver {
	return &claimResolver{
		verifier: verifier,
		base:     base,
		token:    claimToken,
		resolved: make(map[string]resolvedClaims),
	}
}

// resolve returns the ticket's claims overridden by the verified claim token
// claims. Without a claim token only the ticket's claims are known.
func (c *claimResolver) resolve(ctx context.Context, issuer string) (token.ClaimSet, error) {
	if c.token.Value == "" || c.verifier == nil {
		return c.base, nil
	}

	c.lock.Lock()
	defer c.lock.Unlock()
	if r, ok := c.resolved[issuer]; ok {
		return r.claims, r.err
	}

	verified, err := c.verifier.Verify(ctx, c.token, issuer)
	r := resolvedClaims{err: err}
	if err == nil {
		r.claims = c.base.Merge(verified)
	}
	c.resolved[issuer] = r
	return r.claims, r.err
}

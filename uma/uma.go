package uma

import (
	"time"

	"github.com/jrsteele09/go-uma-server/token"
)

// Ticket is a permission ticket issued to a resource server on behalf of a
// resource owner and later redeemed by a requesting party for an RPT.
type Ticket struct {
	ID               string         `json:"id"`
	ResourceOwner    string         `json:"resource_owner"`
	CreateDateTime   time.Time      `json:"create_date_time"`
	ExpiresIn        int            `json:"expires_in"`
	Lines            []TicketLine   `json:"lines"`
	IsAuthorizedByRo bool           `json:"is_authorized_by_ro"`
	Claims           token.ClaimSet `json:"claims,omitempty"`
}

func (t *Ticket) ExpiresAt() time.Time {
	return t.CreateDateTime.Add(time.Duration(t.ExpiresIn) * time.Second)
}

// IsExpired is inclusive of the expiry instant.
func (t *Ticket) IsExpired(now time.Time) bool {
	return !now.Before(t.ExpiresAt())
}

// TicketLine is one requested resource set and the scopes wanted on it.
type TicketLine struct {
	ID            string   `json:"id"`
	ResourceSetID string   `json:"resource_set_id"`
	Scopes        []string `json:"scopes"`
}

// ResourceSet is a protected resource registered by its owner.
type ResourceSet struct {
	ID     string   `json:"id"`
	Name   string   `json:"name"`
	Type   string   `json:"type,omitempty"`
	Scopes []string `json:"scopes"`
	Owner  string   `json:"owner"`
}

// Policy attaches rules to one or more resource sets. A resource set is
// accessible when any rule of any of its policies is satisfied.
type Policy struct {
	ID             string       `json:"id"`
	ResourceSetIDs []string     `json:"resource_set_ids"`
	Rules          []PolicyRule `json:"rules"`
}

// PolicyRule is satisfied only when every condition it carries holds.
type PolicyRule struct {
	ID                           string             `json:"id"`
	ClientIDsAllowed             []string           `json:"client_ids_allowed,omitempty"` // empty means any client
	Scopes                       []string           `json:"scopes,omitempty"`
	Claims                       []ClaimRequirement `json:"claims,omitempty"`
	IsResourceOwnerConsentNeeded bool               `json:"is_resource_owner_consent_needed"`
	Script                       string             `json:"script,omitempty"` // CEL predicate
	OpenIDProvider               string             `json:"openid_provider,omitempty"`
}

// ClaimRequirement is a claim the requesting party must present. A claim
// holding a list matches when the list contains Value.
type ClaimRequirement struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// Consent records that a resource owner allowed a client some scopes on a
// resource set.
type Consent struct {
	ResourceOwner string   `json:"resource_owner"`
	ClientID      string   `json:"client_id"`
	ResourceSetID string   `json:"resource_set_id"`
	Scopes        []string `json:"scopes"`
}

// ClaimToken is the claim_token / claim_token_format pair of an uma-ticket
// grant request.
type ClaimToken struct {
	Value  string
	Format string
}

// RequiredClaim names a claim the requesting party has to supply.
type RequiredClaim struct {
	Name             string   `json:"name"`
	FriendlyName     string   `json:"friendly_name,omitempty"`
	ClaimTokenFormat []string `json:"claim_token_format"`
	Issuer           []string `json:"issuer,omitempty"`
}

type ResultKind int

const (
	Authorized ResultKind = iota
	NeedInfo
	NotAuthorized
)

func (k ResultKind) String() string {
	switch k {
	case Authorized:
		return "authorized"
	case NeedInfo:
		return "need_info"
	default:
		return "not_authorized"
	}
}

// Result is the outcome of evaluating a ticket.
type Result struct {
	Kind           ResultKind
	Claims         token.ClaimSet  // requester claims the decision relied on
	RequiredClaims []RequiredClaim // set when Kind is NeedInfo
}

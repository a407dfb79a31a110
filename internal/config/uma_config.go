package config

import "time"

type UmaConfig interface {
	GetTicketExpiry() time.Duration
	GetClaimsInteractionURL() string
}

type Uma struct{}

var _ UmaConfig = Uma{}

func (Uma) GetTicketExpiry() time.Duration {
	return GetEnvDuration("TICKET_LIFETIME", 1*time.Hour)
}

// GetClaimsInteractionURL is where a requesting party is sent to supply
// missing claims. Empty means no redirect hint is returned.
func (Uma) GetClaimsInteractionURL() string {
	return GetEnv("CLAIMS_INTERACTION_URL", "")
}

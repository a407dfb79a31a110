package main

import (
	"github.com/jrsteele09/go-uma-server/auth"
	"github.com/jrsteele09/go-uma-server/clients"
	"github.com/jrsteele09/go-uma-server/confirmation"
	"github.com/jrsteele09/go-uma-server/internal/config"
	"github.com/jrsteele09/go-uma-server/server"
	"github.com/jrsteele09/go-uma-server/token"
	"github.com/jrsteele09/go-uma-server/token/keys"
	"github.com/jrsteele09/go-uma-server/uma"
	"github.com/jrsteele09/go-uma-server/users"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// buildServices wires the protocol components over the selected stores. The
// key resolver starts empty; server.New installs the keys.
func buildServices(c config.Config, st *stores) (server.Repos, server.Services, error) {
	resolver, err := keys.NewResolver()
	if err != nil {
		return server.Repos{}, server.Services{}, errors.Wrap(err, "[buildServices] keys.NewResolver")
	}

	scripts, err := uma.NewScriptEvaluator()
	if err != nil {
		return server.Repos{}, server.Services{}, errors.Wrap(err, "[buildServices] uma.NewScriptEvaluator")
	}

	tokens := token.New(st.tokens, resolver, token.WithLogger(log.Logger.With().Str("component", "tokens").Logger()))

	confirmations := confirmation.NewService(st.confirmations,
		confirmation.WithExpiresIn(c.GetConfirmationCodeExpiry()),
		confirmation.WithLogger(log.Logger.With().Str("component", "confirmation").Logger()),
	)
	resourceOwners := users.NewAuthenticators(
		users.NewPasswordAuthenticator(st.users),
		users.NewSMSAuthenticator(st.users, confirmations),
	)

	engine := uma.NewEngine(st.resourceSets, st.policies, st.consents,
		uma.NewTokenVerifier(resolver.VerificationKey),
		uma.WithScriptEvaluator(scripts),
		uma.WithLogger(log.Logger.With().Str("component", "uma").Logger()),
	)

	authService, err := auth.NewAuthorizationService(
		auth.Repos{
			Clients: st.clients,
			Codes:   st.codes,
			Tickets: st.tickets,
		},
		auth.Services{
			ClientAuthenticator: clients.NewAuthenticator(st.clients,
				clients.WithDecrypter(resolver),
				clients.WithLogger(log.Logger.With().Str("component", "clients").Logger()),
			),
			Tokens:         tokens,
			ResourceOwners: resourceOwners,
			Uma:            engine,
		},
		auth.WithRequirePKCE(c.GetRequirePKCE()),
		auth.WithClaimsInteractionURL(c.GetClaimsInteractionURL()),
		auth.WithLogger(log.Logger.With().Str("component", "auth").Logger()),
	)
	if err != nil {
		return server.Repos{}, server.Services{}, errors.Wrap(err, "[buildServices] auth.NewAuthorizationService")
	}

	permissions := uma.NewPermissionService(st.tickets, st.resourceSets,
		uma.WithTicketExpiry(c.GetTicketExpiry()),
		uma.WithPermissionLogger(log.Logger.With().Str("component", "permissions").Logger()),
	)

	repos := server.Repos{
		Clients:      st.clients,
		Users:        st.users,
		ResourceSets: st.resourceSets,
		Policies:     st.policies,
	}
	services := server.Services{
		Auth:        authService,
		Permissions: permissions,
		Tokens:      tokens,
		Keys:        resolver,
	}
	return repos, services, nil
}

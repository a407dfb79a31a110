package main

import (
	"context"

	"github.com/jrsteele09/go-uma-server/clients"
	fakeclientrepo "github.com/jrsteele09/go-uma-server/clients/fakerepo"
	"github.com/jrsteele09/go-uma-server/codes"
	codesfakerepo "github.com/jrsteele09/go-uma-server/codes/repofake"
	"github.com/jrsteele09/go-uma-server/confirmation"
	confirmationfakerepo "github.com/jrsteele09/go-uma-server/confirmation/repofake"
	"github.com/jrsteele09/go-uma-server/internal/config"
	"github.com/jrsteele09/go-uma-server/storage/redisstore"
	"github.com/jrsteele09/go-uma-server/storage/sqlstore"
	"github.com/jrsteele09/go-uma-server/token"
	tokenfakerepo "github.com/jrsteele09/go-uma-server/token/repofake"
	"github.com/jrsteele09/go-uma-server/uma"
	umafakerepo "github.com/jrsteele09/go-uma-server/uma/repofake"
	"github.com/jrsteele09/go-uma-server/users"
	fakeuserrepo "github.com/jrsteele09/go-uma-server/users/repofake"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// stores is the persistence selected by configuration. Everything starts in
// memory; Redis takes over the short lived, single use records and a SQL
// database takes over clients and granted tokens.
type stores struct {
	clients       clients.Repo
	tokens        token.Repo
	codes         codes.Repo
	tickets       uma.TicketRepo
	confirmations confirmation.Repo
	users         users.Repo
	resourceSets  uma.ResourceSetRepo
	policies      uma.PolicyRepo
	consents      uma.ConsentRepo

	closers []func() error
}

func openStores(ctx context.Context, c config.Config) (*stores, error) {
	st := &stores{
		clients:       fakeclientrepo.NewFakeClientRepo(),
		tokens:        tokenfakerepo.NewFakeTokenRepo(),
		codes:         codesfakerepo.NewFakeCodeRepo(),
		tickets:       umafakerepo.NewFakeTicketRepo(),
		confirmations: confirmationfakerepo.NewFakeConfirmationRepo(),
		users:         fakeuserrepo.NewFakeUserRepo(),
		resourceSets:  umafakerepo.NewFakeResourceSetRepo(),
		policies:      umafakerepo.NewFakePolicyRepo(),
		consents:      umafakerepo.NewFakeConsentRepo(),
	}

	if redisURL := c.GetRedisURL(); redisURL != "" {
		rs, err := redisstore.NewRedisStorage(ctx, redisstore.RedisConfig{
			URL:       redisURL,
			KeyPrefix: "uma:",
		})
		if err != nil {
			st.Close()
			return nil, err
		}
		st.codes = rs
		st.tickets = rs.Tickets()
		st.confirmations = rs.Confirmations()
		st.closers = append(st.closers, rs.Close)
		log.Info().Msg("codes, tickets and confirmation codes are stored in redis")
	}

	switch driver := c.GetDatabaseDriver(); driver {
	case config.StorageMemory, "":
	case config.StorageSQLite, config.StorageMySQL:
		db, err := sqlstore.Open(ctx, driver, c.GetDatabaseDSN(), c.GetDatabase())
		if err != nil {
			st.Close()
			return nil, err
		}
		st.clients = db.Clients()
		st.tokens = db.Tokens()
		st.closers = append(st.closers, db.Close)
		log.Info().Str("driver", driver).Msg("clients and granted tokens are stored in the database")
	default:
		st.Close()
		return nil, errors.Errorf("[openStores] unsupported DATABASE_DRIVER %q", driver)
	}
	return st, nil
}

func (s *stores) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			log.Warn().Err(err).Msg("failed to close store")
		}
	}
}

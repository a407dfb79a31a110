package server

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/jrsteele09/go-uma-server/auth"
	"github.com/jrsteele09/go-uma-server/clients"
	"github.com/jrsteele09/go-uma-server/internal/config"
	"github.com/jrsteele09/go-uma-server/token"
	"github.com/jrsteele09/go-uma-server/token/keys"
	"github.com/jrsteele09/go-uma-server/uma"
	"github.com/jrsteele09/go-uma-server/users"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Services are the protocol components the handlers call into.
type Services struct {
	Auth        *auth.AuthorizationService
	Permissions *uma.PermissionService
	Tokens      *token.Manager
	Keys        *keys.Resolver
}

// Repos are the stores written by the bootstrap step.
type Repos struct {
	Clients      clients.Repo
	Users        users.Repo
	ResourceSets uma.ResourceSetRepo
	Policies     uma.PolicyRepo
}

type Server struct {
	env      string // Environment (e.g., "DEV", "PROD")
	mux      *http.ServeMux
	routes   []string
	config   config.Config
	services Services
	repos    Repos
	seeded   SeededCredentials
}

func New(ctx context.Context, config config.Config, repos Repos, services Services) (*Server, error) {
	if services.Auth == nil || services.Permissions == nil || services.Tokens == nil || services.Keys == nil {
		return nil, errors.New("[Server New] every service is required")
	}
	if repos.Clients == nil || repos.Users == nil || repos.ResourceSets == nil || repos.Policies == nil {
		return nil, errors.New("[Server New] every repo is required")
	}

	s := &Server{
		env:      config.GetEnv(),
		mux:      http.NewServeMux(),
		config:   config,
		services: services,
		repos:    repos,
	}

	if err := s.InitialiseSystem(ctx); err != nil {
		return nil, errors.Wrap(err, "[Server New] failed to initialise the system")
	}

	s.initRoutes()
	s.logRoutes()

	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) RegisterRouteHandler(pattern string, handler http.Handler) {
	s.routes = append(s.routes, pattern)
	s.mux.Handle(pattern, handler)
}

func (s *Server) RegisterRouteFunc(pattern string, handler func(http.ResponseWriter, *http.Request)) {
	s.routes = append(s.routes, pattern)
	s.mux.HandleFunc(pattern, handler)
}

// issuer is the iss of every token and the audience client assertions are
// checked against.
func (s *Server) issuer() string {
	return s.config.GetBaseURL()
}

func (s *Server) endpoint(route string) string {
	return s.issuer() + route
}

func (s *Server) logRoutes() {
	if s.env != "DEV" {
		return // Skip logging in non-development environments
	}
	for _, route := range s.routes {
		parts := strings.SplitN(route, " ", 2)

		if len(parts) > 1 {
			logRoute(parts[0], parts[1])
		} else {
			logRoute("", parts[0])
		}
	}
}

func logRoute(method, path string) {
	log.Info().Msgf("[%-19s] %s", colouredMethod(method), path)
}

func colouredMethod(method string) string {
	paddedMethod := fmt.Sprintf(" %-7s", method)
	if color, ok := methodColors[method]; ok {
		return color + paddedMethod + ResetColor
	}
	return Gray + paddedMethod + ResetColor
}

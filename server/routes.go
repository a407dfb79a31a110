package server

func (s *Server) initRoutes() {
	// Discovery
	s.RegisterRouteHandler("GET "+RouteWellKnownOpenIDConfig, ChainMiddleware(s.WellKnownOpenIDConfig(), s.APIMiddleware()...))
	s.RegisterRouteHandler("GET "+RouteWellKnownUMA2Config, ChainMiddleware(s.WellKnownUMA2Config(), s.APIMiddleware()...))
	s.RegisterRouteHandler("GET "+RouteWellKnownJWKS, ChainMiddleware(s.JWKS(), s.APIMiddleware()...))

	// Token endpoints authenticate the client themselves
	s.RegisterRouteHandler("POST "+RouteOAuth2Token, ChainMiddleware(s.Token(), s.APIMiddleware(s.NoStoreMiddleware)...))
	s.RegisterRouteHandler("POST "+RouteOAuth2Introspect, ChainMiddleware(s.Introspect(), s.APIMiddleware(s.NoStoreMiddleware)...))
	s.RegisterRouteHandler("POST "+RouteOAuth2Revoke, ChainMiddleware(s.Revoke(), s.APIMiddleware()...))

	// UMA protection API (bearer access token required)
	s.RegisterRouteHandler("POST "+RouteUMAPermission, ChainMiddleware(s.Permission(), s.APIMiddleware(s.RequireAuth(ScopeUMAProtection))...))
	s.RegisterRouteHandler("POST "+RouteUMATicketApprove, ChainMiddleware(s.ApproveTicket(), s.APIMiddleware(s.RequireAuth(""))...))

	s.RegisterRouteHandler("OPTIONS /", ChainMiddleware(s.Preflight(), s.RecoverMiddleware, s.LoggingMiddleware))
}

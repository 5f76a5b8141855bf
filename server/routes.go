package server

import (
	"github.com/jrsteele09/go-token-issuer/token"
)

func (s *Server) initRoutes() {
	s.RegisterRouteHandler("GET "+RouteHealth, ChainMiddleware(s.Health(), s.RecoverMiddleware))

	// ACCOUNTS
	s.RegisterRouteHandler("POST "+RouteAccounts, ChainMiddleware(s.Register(), s.APIMiddleware()...))
	s.RegisterRouteHandler("PUT "+RouteAccountSecret, ChainMiddleware(s.ChangeSecret(), s.APIMiddleware()...))
	s.RegisterRouteHandler("DELETE "+RouteAccount, ChainMiddleware(s.DeleteAccount(), s.APIMiddleware()...))

	// TOKENS
	s.RegisterRouteHandler("POST "+RouteToken, ChainMiddleware(s.SignIn(), s.APIMiddleware()...))
	s.RegisterRouteHandler("POST "+RouteTokenRefresh, ChainMiddleware(s.Refresh(), s.APIMiddleware()...))
	s.RegisterRouteHandler("POST "+RouteTokenValidate, ChainMiddleware(s.Validate(), s.APIMiddleware()...))
	s.RegisterRouteHandler("POST "+RouteTokenRevoke, ChainMiddleware(s.Revoke(), s.APIMiddleware()...))
	s.RegisterRouteHandler("GET "+RouteTokenLabel, ChainMiddleware(s.TokenLabel(), s.APIMiddleware()...))

	// Protected routes (require a bearer token of at least the given kind)
	s.RegisterRouteHandler("GET "+RouteMe, ChainMiddleware(s.Me(), s.APIMiddleware(s.RequireToken(token.ReadOnly))...))
	s.RegisterRouteHandler("POST "+RouteMeSignOut, ChainMiddleware(s.SignOut(), s.APIMiddleware(s.RequireToken(token.FullAccess))...))

	// CORS preflight for every API route
	s.RegisterRouteHandler("OPTIONS /v1/", ChainMiddleware(s.Preflight(), s.APIMiddleware()...))
}

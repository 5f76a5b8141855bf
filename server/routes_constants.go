package server

// Route path constants
const (
	// Account Routes
	RouteAccounts      = "/v1/accounts"
	RouteAccount       = "/v1/accounts/{identity}"
	RouteAccountSecret = "/v1/accounts/{identity}/secret"

	// Token Routes
	RouteToken         = "/v1/token"
	RouteTokenRefresh  = "/v1/token/refresh"
	RouteTokenValidate = "/v1/token/validate"
	RouteTokenRevoke   = "/v1/token/revoke"
	RouteTokenLabel    = "/v1/token-kinds/{kind}/label"

	// Bearer Routes
	RouteMe        = "/v1/me"
	RouteMeSignOut = "/v1/me/sign-out"

	RouteHealth = "/healthz"
)

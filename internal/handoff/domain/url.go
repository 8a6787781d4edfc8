package domain

// Endpoint paths and query parameter names for the handoff hops. The token
// rides ordinary HTTP redirects, so these are the only wire surface the
// protocol owns.
const (
	LoadPath   = "/handoff/load"
	RedeemPath = "/handoff/redeem"

	ParamHash   = "h"
	ParamTenant = "t"
	ParamToken  = "token"
	ParamReturn = "return"
	ParamLogout = "loggedout"
)

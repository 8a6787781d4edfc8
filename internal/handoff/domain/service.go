package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
)

// Service moves authentication state between a tenant's native host and its
// mapped domains via single-use tokens. It holds no state of its own; every
// operation runs over the ledger, the mapping store and the site provider.
type Service interface {
	// BeginLogin runs on the mapped host for an anonymous visitor. It mints
	// a loader token and returns the native host's load URL carrying the
	// token and the original page to return to.
	BeginLogin(ctx context.Context, tenantID snowflake.ID, returnURL string) (string, error)

	// CompleteLogin runs on the native host. It consumes the loader token,
	// mints a second token bound to the authenticated subject, and returns
	// the mapped host's redemption URL. Callers must not invoke it without
	// an active session.
	CompleteLogin(ctx context.Context, req CompleteLoginRequest) (string, error)

	// Redeem consumes a token on the receiving origin. On success the caller
	// establishes or clears the local session according to the intent.
	Redeem(ctx context.Context, req RedeemRequest) (*Redemption, error)

	// BeginLogout mirrors login with a logout intent and an anonymous
	// subject. It returns the counterpart origin's redemption URL, or ""
	// when the tenant has no counterpart origin to notify.
	BeginLogout(ctx context.Context, tenantID snowflake.ID, observedHost string) (string, error)
}

type CompleteLoginRequest struct {
	Token     string
	Hash      string
	TenantID  snowflake.ID
	Subject   string
	ReturnURL string
}

type RedeemRequest struct {
	Token    string
	Hash     string
	TenantID snowflake.ID
}

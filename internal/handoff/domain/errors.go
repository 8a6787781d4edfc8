package domain

import "errors"

// Redemption failures are distinguishable internally for diagnostics, but
// callers must surface a single generic message so failures do not aid
// token guessing.
var (
	ErrUnknownKey     = errors.New("unknown_key")
	ErrExpiredKey     = errors.New("expired_key")
	ErrTenantMismatch = errors.New("tenant_mismatch")
	ErrHandoffFailed  = errors.New("handoff_failed")
)

// IsRedemptionFailure reports whether err is one of the fail-closed
// redemption outcomes.
func IsRedemptionFailure(err error) bool {
	return errors.Is(err, ErrUnknownKey) ||
		errors.Is(err, ErrExpiredKey) ||
		errors.Is(err, ErrTenantMismatch) ||
		errors.Is(err, ErrHandoffFailed)
}

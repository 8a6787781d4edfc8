package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
)

// Ledger stores issued handoff tokens and enforces exactly-once redemption.
type Ledger interface {
	// Issue mints a high-entropy single-use key and persists its record.
	// The returned raw key is never stored.
	Issue(ctx context.Context, subject string, tenantID snowflake.ID, intent Intent) (string, error)
	// Redeem atomically consumes the token: of N concurrent attempts for the
	// same key, exactly one succeeds and the rest observe ErrUnknownKey.
	// Tenant and TTL checks run after consumption, so a failed check still
	// burns the token.
	Redeem(ctx context.Context, rawToken string, tenantID snowflake.ID) (*HandoffToken, error)
	// PurgeOlderThan deletes all records older than age regardless of
	// consumption state and returns the number removed.
	PurgeOlderThan(ctx context.Context, age time.Duration) (int64, error)
}

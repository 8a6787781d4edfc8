// Package domain contains core types for the cross-domain handoff service.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Intent is the purpose a handoff token carries across origins.
type Intent string

const (
	IntentLogin  Intent = "login"
	IntentLogout Intent = "logout"
)

func (i Intent) Valid() bool {
	return i == IntentLogin || i == IntentLogout
}

// SubjectAnonymous marks tokens that carry no user identity: loader tokens
// minted before the native host has confirmed a session, and logout tokens,
// which transmit only the fact of logout.
const SubjectAnonymous = "anonymous"

// TokenTTL bounds the replay window of an unconsumed token; PurgeGrace is
// the age past which redeemed-or-abandoned tokens are swept. Both constants
// live here and nowhere else.
const (
	TokenTTL   = 300 * time.Second
	PurgeGrace = 120 * time.Second
)

// HandoffToken is the durable record of an issued token. Only the SHA-256
// of the bearer key is stored; the raw key exists solely in the handoff URL.
type HandoffToken struct {
	ID        snowflake.ID `gorm:"primaryKey"`
	TokenHash string       `gorm:"column:token_hash;type:text;not null;uniqueIndex:ux_handoff_tokens_hash"`
	Subject   string       `gorm:"type:text;not null"`
	TenantID  snowflake.ID `gorm:"column:tenant_id;not null;index"`
	Intent    Intent       `gorm:"type:text;not null"`
	IssuedAt  time.Time    `gorm:"column:issued_at;not null;index"`
}

// TableName sets the database table name.
func (HandoffToken) TableName() string { return "handoff_tokens" }

// Redemption is the outcome of a successful token redemption.
type Redemption struct {
	Intent  Intent
	Subject string
}

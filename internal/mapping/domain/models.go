// Package domain contains core types for the domain-mapping service.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// DomainMapping associates a tenant with a custom hostname. The domain value
// is stored normalized (lowercase, ASCII, no scheme/path/port) and is unique
// across all tenants. At most one mapping per tenant carries IsPrimary.
type DomainMapping struct {
	ID        snowflake.ID      `gorm:"primaryKey" json:"id"`
	TenantID  snowflake.ID      `gorm:"column:tenant_id;not null;index" json:"tenant_id"`
	Domain    string            `gorm:"type:text;not null;uniqueIndex:ux_domain_mappings_domain" json:"domain"`
	IsPrimary bool              `gorm:"column:is_primary;not null;default:false" json:"is_primary"`
	Metadata  datatypes.JSONMap `gorm:"type:jsonb;not null;default:'{}'" json:"metadata"`
	CreatedAt time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (DomainMapping) TableName() string { return "domain_mappings" }

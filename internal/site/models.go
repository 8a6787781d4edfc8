// Package site exposes per-tenant platform addressing: the native base URL a
// tenant is served from when no custom domain applies, and installation-wide
// settings such as the handoff hash.
package site

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Site stores the platform-assigned base URL for a tenant.
type Site struct {
	TenantID  snowflake.ID `gorm:"primaryKey;column:tenant_id" json:"tenant_id"`
	NativeURL string       `gorm:"column:native_url;type:text;not null" json:"native_url"`
	CreatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (Site) TableName() string { return "sites" }

// PlatformSetting is a key/value row for installation-wide settings.
type PlatformSetting struct {
	Key       string    `gorm:"primaryKey;column:key;type:text" json:"key"`
	Value     string    `gorm:"column:value;type:text;not null" json:"value"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (PlatformSetting) TableName() string { return "platform_settings" }

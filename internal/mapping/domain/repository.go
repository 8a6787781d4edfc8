package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, mapping *DomainMapping) error
	FindByID(ctx context.Context, id snowflake.ID) (*DomainMapping, error)
	FindByDomain(ctx context.Context, domain string) (*DomainMapping, error)
	FindPrimary(ctx context.Context, tenantID snowflake.ID) (*DomainMapping, error)
	ListByTenant(ctx context.Context, tenantID snowflake.ID) ([]DomainMapping, error)
	ClearPrimary(ctx context.Context, tenantID snowflake.ID) error
	UpdateFields(ctx context.Context, id snowflake.ID, fields map[string]any) error
	Delete(ctx context.Context, id snowflake.ID) error
}

package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

type Service interface {
	AddMapping(ctx context.Context, req AddMappingRequest) (*DomainMapping, error)
	UpdateMapping(ctx context.Context, req UpdateMappingRequest) (*DomainMapping, error)
	DeleteMapping(ctx context.Context, req DeleteMappingRequest) error
	// ResolveTenantForDomain is the hot-path point lookup. A miss is a normal
	// outcome, reported through the boolean rather than an error.
	ResolveTenantForDomain(ctx context.Context, domain string) (snowflake.ID, bool, error)
	GetPrimaryDomain(ctx context.Context, tenantID snowflake.ID) (string, bool, error)
	ListMappings(ctx context.Context, tenantID snowflake.ID) ([]DomainMapping, error)
}

type AddMappingRequest struct {
	TenantID    snowflake.ID
	Domain      string
	MakePrimary bool
}

type UpdateMappingRequest struct {
	MappingID   snowflake.ID
	TenantID    snowflake.ID
	NewDomain   *string
	MakePrimary *bool
}

type DeleteMappingRequest struct {
	MappingID snowflake.ID
	TenantID  snowflake.ID
	// Force permits deleting the primary mapping, accepting fallback to the
	// tenant's native host.
	Force bool
}

var (
	ErrInvalidDomain       = errors.New("invalid_domain")
	ErrInvalidTenant       = errors.New("invalid_tenant")
	ErrDomainTaken         = errors.New("domain_taken")
	ErrMappingNotFound     = errors.New("mapping_not_found")
	ErrForbidden           = errors.New("forbidden")
	ErrCannotDeletePrimary = errors.New("cannot_delete_primary")
	// ErrPrimaryConflict is the loser of a concurrent primary swap; the
	// caller may retry.
	ErrPrimaryConflict = errors.New("primary_conflict")
)

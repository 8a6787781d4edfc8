package cache

import (
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
)

const (
	defaultDomainTTL  = time.Minute
	defaultPrimaryTTL = time.Minute
)

// MappingResolverCache stores hot-path lookups for request-time host
// resolution. Entries are invalidated explicitly whenever a mapping mutates,
// so the TTL only bounds staleness across process restarts and races.
type MappingResolverCache interface {
	GetTenant(domain string) (snowflake.ID, bool)
	SetTenant(domain string, tenantID snowflake.ID)
	GetPrimaryDomain(tenantID snowflake.ID) (string, bool)
	SetPrimaryDomain(tenantID snowflake.ID, domain string)
	InvalidateDomain(domain string)
	InvalidateTenant(tenantID snowflake.ID)
}

type mappingResolverCache struct {
	tenants    Cache[string, snowflake.ID]
	primaries  Cache[snowflake.ID, string]
	domainTTL  time.Duration
	primaryTTL time.Duration
}

// NewMappingResolverCache returns an in-memory cache tuned for host resolution.
func NewMappingResolverCache() MappingResolverCache {
	return &mappingResolverCache{
		tenants:    NewTTLCache[string, snowflake.ID](),
		primaries:  NewTTLCache[snowflake.ID, string](),
		domainTTL:  defaultDomainTTL,
		primaryTTL: defaultPrimaryTTL,
	}
}

func (c *mappingResolverCache) GetTenant(domain string) (snowflake.ID, bool) {
	return c.tenants.Get(normalizeKey(domain))
}

func (c *mappingResolverCache) SetTenant(domain string, tenantID snowflake.ID) {
	if tenantID == 0 {
		return
	}
	c.tenants.Set(normalizeKey(domain), tenantID, c.domainTTL)
}

func (c *mappingResolverCache) GetPrimaryDomain(tenantID snowflake.ID) (string, bool) {
	return c.primaries.Get(tenantID)
}

func (c *mappingResolverCache) SetPrimaryDomain(tenantID snowflake.ID, domain string) {
	if domain == "" {
		return
	}
	c.primaries.Set(tenantID, domain, c.primaryTTL)
}

func (c *mappingResolverCache) InvalidateDomain(domain string) {
	c.tenants.Delete(normalizeKey(domain))
}

func (c *mappingResolverCache) InvalidateTenant(tenantID snowflake.ID) {
	c.primaries.Delete(tenantID)
}

func normalizeKey(domain string) string {
	return strings.ToLower(strings.TrimSpace(domain))
}

package service

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/domainlink/internal/cache"
	"github.com/smallbiznis/domainlink/internal/mapping/domain"
	"github.com/smallbiznis/domainlink/internal/mapping/repository"
	pkgdb "github.com/smallbiznis/domainlink/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newTestService(t *testing.T) (domain.Service, *gorm.DB) {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(&domain.DomainMapping{}))
	require.NoError(t, db.Exec(
		"CREATE UNIQUE INDEX IF NOT EXISTS ux_domain_mappings_one_primary ON domain_mappings (tenant_id) WHERE is_primary",
	).Error)

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	svc := NewService(db, repository.NewRepository(db), node, cache.NewMappingResolverCache(), zap.NewNop())
	return svc, db
}

func TestAddMappingNormalizesDomain(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	mapping, err := svc.AddMapping(ctx, domain.AddMappingRequest{
		TenantID: snowflake.ID(1),
		Domain:   "  HTTPS://Shop.Example.COM:443/checkout  ",
	})
	require.NoError(t, err)
	assert.Equal(t, "shop.example.com", mapping.Domain)
}

func TestAddMappingRejectsInvalidDomain(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	for _, raw := range []string{"", "localhost", "not a domain", "just-one-label"} {
		_, err := svc.AddMapping(ctx, domain.AddMappingRequest{
			TenantID: snowflake.ID(1),
			Domain:   raw,
		})
		assert.ErrorIs(t, err, domain.ErrInvalidDomain, "domain %q", raw)
	}
}

func TestAddMappingGlobalUniqueness(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.AddMapping(ctx, domain.AddMappingRequest{
		TenantID: snowflake.ID(1),
		Domain:   "shop.example.com",
	})
	require.NoError(t, err)

	// Same domain, another tenant. Mapping a domain claims it globally.
	_, err = svc.AddMapping(ctx, domain.AddMappingRequest{
		TenantID: snowflake.ID(2),
		Domain:   "shop.example.com",
	})
	assert.ErrorIs(t, err, domain.ErrDomainTaken)

	// Equivalent spellings collide too.
	_, err = svc.AddMapping(ctx, domain.AddMappingRequest{
		TenantID: snowflake.ID(2),
		Domain:   "SHOP.EXAMPLE.COM.",
	})
	assert.ErrorIs(t, err, domain.ErrDomainTaken)
}

func TestMakePrimarySwapsAtomically(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()
	tenantID := snowflake.ID(1)

	first, err := svc.AddMapping(ctx, domain.AddMappingRequest{
		TenantID:    tenantID,
		Domain:      "a.example.com",
		MakePrimary: true,
	})
	require.NoError(t, err)

	second, err := svc.AddMapping(ctx, domain.AddMappingRequest{
		TenantID:    tenantID,
		Domain:      "b.example.com",
		MakePrimary: true,
	})
	require.NoError(t, err)
	assert.True(t, second.IsPrimary)

	var primaries []domain.DomainMapping
	require.NoError(t, db.Find(&primaries, "tenant_id = ? AND is_primary = ?", tenantID, true).Error)
	require.Len(t, primaries, 1)
	assert.Equal(t, second.ID, primaries[0].ID)

	var demoted domain.DomainMapping
	require.NoError(t, db.First(&demoted, "id = ?", first.ID).Error)
	assert.False(t, demoted.IsPrimary)
}

func TestConcurrentPrimarySwapsLeaveOnePrimary(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()
	tenantID := snowflake.ID(1)

	const workers = 6
	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.AddMapping(ctx, domain.AddMappingRequest{
				TenantID:    tenantID,
				Domain:      fmt.Sprintf("w%d.example.com", i),
				MakePrimary: true,
			})
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		require.NoError(t, err, "worker %d", i)
	}

	var count int64
	require.NoError(t, db.Model(&domain.DomainMapping{}).
		Where("tenant_id = ? AND is_primary = ?", tenantID, true).
		Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestSecondPrimaryRejectedByDatabase(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()
	tenantID := snowflake.ID(1)

	_, err := svc.AddMapping(ctx, domain.AddMappingRequest{
		TenantID:    tenantID,
		Domain:      "a.example.com",
		MakePrimary: true,
	})
	require.NoError(t, err)

	// A write that sneaks past the clear-then-set swap still cannot commit
	// a second primary; the partial unique index rejects it.
	err = db.Create(&domain.DomainMapping{
		ID:        snowflake.ID(999),
		TenantID:  tenantID,
		Domain:    "b.example.com",
		IsPrimary: true,
	}).Error
	require.Error(t, err)
	assert.True(t, pkgdb.IsDuplicateKeyErr(err))
}

func TestDuplicateClassification(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	impl := svc.(*service)

	taken, err := svc.AddMapping(ctx, domain.AddMappingRequest{
		TenantID: snowflake.ID(1),
		Domain:   "shop.example.com",
	})
	require.NoError(t, err)

	// Another mapping holds the domain, so the domain index fired.
	assert.ErrorIs(t,
		impl.classifyDuplicate(ctx, "shop.example.com", snowflake.ID(999), true),
		domain.ErrDomainTaken)

	// Nobody holds the domain, so only the one-primary index could have
	// fired: the write lost a concurrent swap.
	assert.ErrorIs(t,
		impl.classifyDuplicate(ctx, "free.example.com", snowflake.ID(999), true),
		domain.ErrPrimaryConflict)

	// The row's own domain does not count as taken.
	assert.ErrorIs(t,
		impl.classifyDuplicate(ctx, "shop.example.com", taken.ID, true),
		domain.ErrPrimaryConflict)

	// Without a primary bit in the write the domain index is the only
	// candidate.
	assert.ErrorIs(t,
		impl.classifyDuplicate(ctx, "free.example.com", snowflake.ID(999), false),
		domain.ErrDomainTaken)
}

func TestUpdateMappingNotFound(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	makePrimary := true
	_, err := svc.UpdateMapping(ctx, domain.UpdateMappingRequest{
		MappingID:   snowflake.ID(12345),
		TenantID:    snowflake.ID(1),
		MakePrimary: &makePrimary,
	})
	assert.ErrorIs(t, err, domain.ErrMappingNotFound)
}

func TestUpdateMappingOwnershipCheck(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	mapping, err := svc.AddMapping(ctx, domain.AddMappingRequest{
		TenantID: snowflake.ID(1),
		Domain:   "shop.example.com",
	})
	require.NoError(t, err)

	makePrimary := true
	_, err = svc.UpdateMapping(ctx, domain.UpdateMappingRequest{
		MappingID:   mapping.ID,
		TenantID:    snowflake.ID(2),
		MakePrimary: &makePrimary,
	})
	assert.ErrorIs(t, err, domain.ErrForbidden)
}

func TestUpdateMappingRename(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	tenantID := snowflake.ID(1)

	mapping, err := svc.AddMapping(ctx, domain.AddMappingRequest{
		TenantID: tenantID,
		Domain:   "old.example.com",
	})
	require.NoError(t, err)

	newDomain := "New.Example.COM"
	updated, err := svc.UpdateMapping(ctx, domain.UpdateMappingRequest{
		MappingID: mapping.ID,
		TenantID:  tenantID,
		NewDomain: &newDomain,
	})
	require.NoError(t, err)
	assert.Equal(t, "new.example.com", updated.Domain)

	// The old name no longer resolves; the new one does.
	_, ok, err := svc.ResolveTenantForDomain(ctx, "old.example.com")
	require.NoError(t, err)
	assert.False(t, ok)

	resolved, ok, err := svc.ResolveTenantForDomain(ctx, "new.example.com")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, tenantID, resolved)
}

func TestDeletePrimaryRequiresForce(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	tenantID := snowflake.ID(1)

	mapping, err := svc.AddMapping(ctx, domain.AddMappingRequest{
		TenantID:    tenantID,
		Domain:      "shop.example.com",
		MakePrimary: true,
	})
	require.NoError(t, err)

	err = svc.DeleteMapping(ctx, domain.DeleteMappingRequest{
		MappingID: mapping.ID,
		TenantID:  tenantID,
	})
	assert.ErrorIs(t, err, domain.ErrCannotDeletePrimary)

	err = svc.DeleteMapping(ctx, domain.DeleteMappingRequest{
		MappingID: mapping.ID,
		TenantID:  tenantID,
		Force:     true,
	})
	require.NoError(t, err)

	_, ok, err := svc.ResolveTenantForDomain(ctx, "shop.example.com")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestResolveTenantForDomain(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	tenantID := snowflake.ID(7)

	_, err := svc.AddMapping(ctx, domain.AddMappingRequest{
		TenantID: tenantID,
		Domain:   "shop.example.com",
	})
	require.NoError(t, err)

	resolved, ok, err := svc.ResolveTenantForDomain(ctx, "SHOP.example.com:8443")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, tenantID, resolved)

	// A miss is a normal outcome, not an error.
	_, ok, err = svc.ResolveTenantForDomain(ctx, "unmapped.example.com")
	require.NoError(t, err)
	assert.False(t, ok)

	// Malformed hosts resolve to nothing.
	_, ok, err = svc.ResolveTenantForDomain(ctx, "not a host")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestGetPrimaryDomain(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	tenantID := snowflake.ID(7)

	// No mappings yet.
	_, ok, err := svc.GetPrimaryDomain(ctx, tenantID)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = svc.AddMapping(ctx, domain.AddMappingRequest{
		TenantID: tenantID,
		Domain:   "secondary.example.com",
	})
	require.NoError(t, err)

	// Mapped but none marked primary.
	_, ok, err = svc.GetPrimaryDomain(ctx, tenantID)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = svc.AddMapping(ctx, domain.AddMappingRequest{
		TenantID:    tenantID,
		Domain:      "primary.example.com",
		MakePrimary: true,
	})
	require.NoError(t, err)

	name, ok, err := svc.GetPrimaryDomain(ctx, tenantID)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "primary.example.com", name)
}

func TestListMappingsOrdersPrimaryFirst(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	tenantID := snowflake.ID(7)

	for _, name := range []string{"c.example.com", "a.example.com"} {
		_, err := svc.AddMapping(ctx, domain.AddMappingRequest{TenantID: tenantID, Domain: name})
		require.NoError(t, err)
	}
	_, err := svc.AddMapping(ctx, domain.AddMappingRequest{
		TenantID:    tenantID,
		Domain:      "b.example.com",
		MakePrimary: true,
	})
	require.NoError(t, err)

	mappings, err := svc.ListMappings(ctx, tenantID)
	require.NoError(t, err)
	require.Len(t, mappings, 3)
	assert.Equal(t, "b.example.com", mappings[0].Domain)
	assert.True(t, mappings[0].IsPrimary)
	assert.Equal(t, "a.example.com", mappings[1].Domain)
	assert.Equal(t, "c.example.com", mappings[2].Domain)
}

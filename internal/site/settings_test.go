package site

import (
	"context"
	"fmt"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(&Site{}, &PlatformSetting{}))
	return db
}

func TestHandoffHashLazyCreate(t *testing.T) {
	settings := NewSettings(openTestDB(t))
	ctx := context.Background()

	first, err := settings.HandoffHash(ctx)
	require.NoError(t, err)
	assert.Len(t, first, 32)

	// Subsequent reads return the stored value.
	second, err := settings.HandoffHash(ctx)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestRotateHandoffHash(t *testing.T) {
	settings := NewSettings(openTestDB(t))
	ctx := context.Background()

	before, err := settings.HandoffHash(ctx)
	require.NoError(t, err)

	rotated, err := settings.RotateHandoffHash(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, before, rotated)

	after, err := settings.HandoffHash(ctx)
	require.NoError(t, err)
	assert.Equal(t, rotated, after)
}

func TestProviderNativeBaseURL(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, db.Create(&Site{TenantID: 42, NativeURL: "https://tenant42.platform.example/"}).Error)

	provider := NewProvider(db)
	ctx := context.Background()

	base, err := provider.NativeBaseURL(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, "https://tenant42.platform.example", base.String())

	host, err := provider.NativeHost(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, "tenant42.platform.example", host)

	_, err = provider.NativeBaseURL(ctx, 99)
	assert.ErrorIs(t, err, ErrSiteNotFound)
}

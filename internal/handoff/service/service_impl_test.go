package service

import (
	"context"
	"fmt"
	"net/url"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/domainlink/internal/clock"
	"github.com/smallbiznis/domainlink/internal/handoff/domain"
	"github.com/smallbiznis/domainlink/internal/handoff/ledger"
	mappingdomain "github.com/smallbiznis/domainlink/internal/mapping/domain"
	"github.com/smallbiznis/domainlink/internal/site"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	tenantID    = snowflake.ID(42)
	mappedHost  = "shop.example.com"
	nativeHost  = "tenant42.platform.example"
	installHash = "c0ffee00c0ffee00c0ffee00c0ffee00"
)

type stubMappings struct {
	mappingdomain.Service
}

func (s *stubMappings) ResolveTenantForDomain(_ context.Context, name string) (snowflake.ID, bool, error) {
	if name == mappedHost {
		return tenantID, true, nil
	}
	return 0, false, nil
}

func (s *stubMappings) GetPrimaryDomain(_ context.Context, id snowflake.ID) (string, bool, error) {
	if id == tenantID {
		return mappedHost, true, nil
	}
	return "", false, nil
}

type stubSites struct{}

func (stubSites) NativeBaseURL(_ context.Context, id snowflake.ID) (*url.URL, error) {
	if id != tenantID {
		return nil, site.ErrSiteNotFound
	}
	return url.Parse("https://" + nativeHost)
}

func (stubSites) NativeHost(ctx context.Context, id snowflake.ID) (string, error) {
	base, err := stubSites{}.NativeBaseURL(ctx, id)
	if err != nil {
		return "", err
	}
	return base.Hostname(), nil
}

type stubSettings struct{}

func (stubSettings) HandoffHash(context.Context) (string, error)       { return installHash, nil }
func (stubSettings) RotateHandoffHash(context.Context) (string, error) { return installHash, nil }

func newTestService(t *testing.T) (domain.Service, *clock.FakeClock) {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(&domain.HandoffToken{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	clk := clock.NewFakeClock(time.Now())
	lgr := ledger.NewLedger(db, node, clk, zap.NewNop())
	svc := NewService(lgr, &stubMappings{}, stubSites{}, stubSettings{}, nil, zap.NewNop())
	return svc, clk
}

func parseHandoffURL(t *testing.T, raw string) (*url.URL, url.Values) {
	t.Helper()
	parsed, err := url.Parse(raw)
	require.NoError(t, err)
	return parsed, parsed.Query()
}

func TestBeginLoginBuildsLoadURL(t *testing.T) {
	svc, _ := newTestService(t)

	target, err := svc.BeginLogin(context.Background(), tenantID, "https://"+mappedHost+"/account")
	require.NoError(t, err)

	parsed, query := parseHandoffURL(t, target)
	assert.Equal(t, nativeHost, parsed.Host)
	assert.Equal(t, domain.LoadPath, parsed.Path)
	assert.Equal(t, installHash, query.Get(domain.ParamHash))
	assert.Equal(t, tenantID.String(), query.Get(domain.ParamTenant))
	assert.NotEmpty(t, query.Get(domain.ParamToken))
	assert.Equal(t, "https://"+mappedHost+"/account", query.Get(domain.ParamReturn))
}

func TestBeginLoginRejectsForeignReturnURL(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	for _, ret := range []string{
		"https://evil.example.net/steal",
		"javascript:alert(1)",
		"/relative/only",
		"",
	} {
		_, err := svc.BeginLogin(ctx, tenantID, ret)
		assert.ErrorIs(t, err, domain.ErrHandoffFailed, "return %q", ret)
	}
}

func TestLoginHopChain(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	returnURL := "https://" + mappedHost + "/account"

	loadTarget, err := svc.BeginLogin(ctx, tenantID, returnURL)
	require.NoError(t, err)
	_, loadQuery := parseHandoffURL(t, loadTarget)

	redeemTarget, err := svc.CompleteLogin(ctx, domain.CompleteLoginRequest{
		Token:     loadQuery.Get(domain.ParamToken),
		Hash:      loadQuery.Get(domain.ParamHash),
		TenantID:  tenantID,
		Subject:   "user-7",
		ReturnURL: loadQuery.Get(domain.ParamReturn),
	})
	require.NoError(t, err)

	parsed, redeemQuery := parseHandoffURL(t, redeemTarget)
	assert.Equal(t, mappedHost, parsed.Host)
	assert.Equal(t, domain.RedeemPath, parsed.Path)
	// The second token is a fresh mint, not the loader token.
	assert.NotEqual(t, loadQuery.Get(domain.ParamToken), redeemQuery.Get(domain.ParamToken))

	redemption, err := svc.Redeem(ctx, domain.RedeemRequest{
		Token:    redeemQuery.Get(domain.ParamToken),
		Hash:     redeemQuery.Get(domain.ParamHash),
		TenantID: tenantID,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.IntentLogin, redemption.Intent)
	assert.Equal(t, "user-7", redemption.Subject)
}

func TestCompleteLoginNativeReturnRedeemsOnMappedHost(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	returnURL := "https://" + nativeHost + "/dashboard"

	loadTarget, err := svc.BeginLogin(ctx, tenantID, returnURL)
	require.NoError(t, err)
	_, loadQuery := parseHandoffURL(t, loadTarget)

	redeemTarget, err := svc.CompleteLogin(ctx, domain.CompleteLoginRequest{
		Token:     loadQuery.Get(domain.ParamToken),
		Hash:      loadQuery.Get(domain.ParamHash),
		TenantID:  tenantID,
		Subject:   "user-7",
		ReturnURL: loadQuery.Get(domain.ParamReturn),
	})
	require.NoError(t, err)

	// A native-host return target must not pull redemption onto the native
	// host itself; the primary mapped domain is the redeeming side.
	parsed, _ := parseHandoffURL(t, redeemTarget)
	assert.Equal(t, mappedHost, parsed.Host)
	assert.Equal(t, domain.RedeemPath, parsed.Path)
}

func TestCompleteLoginRequiresSubject(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	loadTarget, err := svc.BeginLogin(ctx, tenantID, "https://"+mappedHost+"/")
	require.NoError(t, err)
	_, query := parseHandoffURL(t, loadTarget)

	for _, subject := range []string{"", "  ", domain.SubjectAnonymous} {
		_, err := svc.CompleteLogin(ctx, domain.CompleteLoginRequest{
			Token:     query.Get(domain.ParamToken),
			Hash:      query.Get(domain.ParamHash),
			TenantID:  tenantID,
			Subject:   subject,
			ReturnURL: query.Get(domain.ParamReturn),
		})
		assert.ErrorIs(t, err, domain.ErrHandoffFailed, "subject %q", subject)
	}
}

func TestCompleteLoginConsumesLoaderToken(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	returnURL := "https://" + mappedHost + "/"

	loadTarget, err := svc.BeginLogin(ctx, tenantID, returnURL)
	require.NoError(t, err)
	_, query := parseHandoffURL(t, loadTarget)

	req := domain.CompleteLoginRequest{
		Token:     query.Get(domain.ParamToken),
		Hash:      query.Get(domain.ParamHash),
		TenantID:  tenantID,
		Subject:   "user-7",
		ReturnURL: returnURL,
	}
	_, err = svc.CompleteLogin(ctx, req)
	require.NoError(t, err)

	// Replaying the loader token fails; it was burned on first use.
	_, err = svc.CompleteLogin(ctx, req)
	assert.ErrorIs(t, err, domain.ErrUnknownKey)
}

func TestRedeemRejectsWrongHash(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	loadTarget, err := svc.BeginLogin(ctx, tenantID, "https://"+mappedHost+"/")
	require.NoError(t, err)
	_, query := parseHandoffURL(t, loadTarget)

	_, err = svc.Redeem(ctx, domain.RedeemRequest{
		Token:    query.Get(domain.ParamToken),
		Hash:     "deadbeef",
		TenantID: tenantID,
	})
	assert.ErrorIs(t, err, domain.ErrUnknownKey)
}

func TestRedeemExpiredToken(t *testing.T) {
	svc, clk := newTestService(t)
	ctx := context.Background()

	loadTarget, err := svc.BeginLogin(ctx, tenantID, "https://"+mappedHost+"/")
	require.NoError(t, err)
	_, query := parseHandoffURL(t, loadTarget)

	clk.Advance(domain.TokenTTL + time.Second)
	_, err = svc.Redeem(ctx, domain.RedeemRequest{
		Token:    query.Get(domain.ParamToken),
		Hash:     query.Get(domain.ParamHash),
		TenantID: tenantID,
	})
	assert.ErrorIs(t, err, domain.ErrExpiredKey)
}

func TestBeginLogoutFromNativeHost(t *testing.T) {
	svc, _ := newTestService(t)

	target, err := svc.BeginLogout(context.Background(), tenantID, nativeHost)
	require.NoError(t, err)

	parsed, query := parseHandoffURL(t, target)
	assert.Equal(t, mappedHost, parsed.Host)
	assert.Equal(t, domain.RedeemPath, parsed.Path)
	assert.NotEmpty(t, query.Get(domain.ParamToken))
	assert.Empty(t, query.Get(domain.ParamReturn))
}

func TestBeginLogoutFromMappedHost(t *testing.T) {
	svc, _ := newTestService(t)

	target, err := svc.BeginLogout(context.Background(), tenantID, mappedHost)
	require.NoError(t, err)

	parsed, _ := parseHandoffURL(t, target)
	assert.Equal(t, nativeHost, parsed.Host)
	assert.Equal(t, domain.RedeemPath, parsed.Path)
}

func TestLogoutRoundTripCarriesAnonymousSubject(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	target, err := svc.BeginLogout(ctx, tenantID, nativeHost)
	require.NoError(t, err)
	_, query := parseHandoffURL(t, target)

	redemption, err := svc.Redeem(ctx, domain.RedeemRequest{
		Token:    query.Get(domain.ParamToken),
		Hash:     query.Get(domain.ParamHash),
		TenantID: tenantID,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.IntentLogout, redemption.Intent)
	assert.Equal(t, domain.SubjectAnonymous, redemption.Subject)
}

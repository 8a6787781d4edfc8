package service

import (
	"context"
	"crypto/subtle"
	"net/url"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/domainlink/internal/handoff/domain"
	mappingdomain "github.com/smallbiznis/domainlink/internal/mapping/domain"
	obsmetrics "github.com/smallbiznis/domainlink/internal/observability/metrics"
	"github.com/smallbiznis/domainlink/internal/site"
	"go.uber.org/zap"
)

type service struct {
	ledger   domain.Ledger
	mappings mappingdomain.Service
	sites    site.Provider
	settings site.Settings
	metrics  *obsmetrics.Metrics
	log      *zap.Logger
}

func NewService(ledger domain.Ledger, mappings mappingdomain.Service, sites site.Provider, settings site.Settings, metrics *obsmetrics.Metrics, log *zap.Logger) domain.Service {
	return &service{
		ledger:   ledger,
		mappings: mappings,
		sites:    sites,
		settings: settings,
		metrics:  metrics,
		log:      log.Named("handoff.service"),
	}
}

func (s *service) BeginLogin(ctx context.Context, tenantID snowflake.ID, returnURL string) (string, error) {
	if tenantID == 0 {
		return "", domain.ErrHandoffFailed
	}
	ret, err := s.parseReturnURL(ctx, tenantID, returnURL)
	if err != nil {
		return "", err
	}

	hash, err := s.settings.HandoffHash(ctx)
	if err != nil {
		return "", err
	}
	native, err := s.sites.NativeBaseURL(ctx, tenantID)
	if err != nil {
		return "", err
	}

	token, err := s.ledger.Issue(ctx, domain.SubjectAnonymous, tenantID, domain.IntentLogin)
	if err != nil {
		return "", err
	}

	return handoffURL(native.Scheme, native.Host, domain.LoadPath, url.Values{
		domain.ParamHash:   {hash},
		domain.ParamTenant: {tenantID.String()},
		domain.ParamToken:  {token},
		domain.ParamReturn: {ret.String()},
	}), nil
}

func (s *service) CompleteLogin(ctx context.Context, req domain.CompleteLoginRequest) (string, error) {
	if strings.TrimSpace(req.Subject) == "" || req.Subject == domain.SubjectAnonymous {
		return "", domain.ErrHandoffFailed
	}
	if err := s.verifyHash(ctx, req.Hash); err != nil {
		return "", err
	}

	loader, err := s.ledger.Redeem(ctx, req.Token, req.TenantID)
	if err != nil {
		return "", err
	}
	if loader.Intent != domain.IntentLogin {
		return "", domain.ErrHandoffFailed
	}

	ret, err := s.parseReturnURL(ctx, req.TenantID, req.ReturnURL)
	if err != nil {
		return "", err
	}

	hash, err := s.settings.HandoffHash(ctx)
	if err != nil {
		return "", err
	}
	// Redemption has to land on the mapped side. Normally that is the
	// return target itself; when the return target is the native host, the
	// primary mapped domain stands in.
	redeemHost := ret.Host
	if mapped, ok, err := s.mappings.ResolveTenantForDomain(ctx, ret.Hostname()); err != nil {
		return "", err
	} else if !ok || mapped != req.TenantID {
		primary, ok, err := s.mappings.GetPrimaryDomain(ctx, req.TenantID)
		if err != nil {
			return "", err
		}
		if !ok {
			return "", domain.ErrHandoffFailed
		}
		redeemHost = primary
	}

	token, err := s.ledger.Issue(ctx, req.Subject, req.TenantID, domain.IntentLogin)
	if err != nil {
		return "", err
	}

	return handoffURL(ret.Scheme, redeemHost, domain.RedeemPath, url.Values{
		domain.ParamHash:   {hash},
		domain.ParamTenant: {req.TenantID.String()},
		domain.ParamToken:  {token},
		domain.ParamReturn: {ret.String()},
	}), nil
}

func (s *service) Redeem(ctx context.Context, req domain.RedeemRequest) (*domain.Redemption, error) {
	if err := s.verifyHash(ctx, req.Hash); err != nil {
		return nil, err
	}

	token, err := s.ledger.Redeem(ctx, req.Token, req.TenantID)
	if err != nil {
		if domain.IsRedemptionFailure(err) {
			s.log.Info("handoff redemption failed",
				zap.String("tenant_id", req.TenantID.String()),
				zap.String("reason", err.Error()),
			)
		}
		return nil, err
	}

	// Housekeeping: anything older than the grace window is either redeemed
	// or abandoned, so sweep it while we are here.
	if purged, err := s.ledger.PurgeOlderThan(ctx, domain.PurgeGrace); err != nil {
		s.log.Warn("handoff token purge failed", zap.Error(err))
	} else if purged > 0 {
		s.metrics.RecordTokensPurged(ctx, purged)
		s.log.Debug("purged stale handoff tokens", zap.Int64("count", purged))
	}

	return &domain.Redemption{Intent: token.Intent, Subject: token.Subject}, nil
}

func (s *service) BeginLogout(ctx context.Context, tenantID snowflake.ID, observedHost string) (string, error) {
	if tenantID == 0 {
		return "", domain.ErrHandoffFailed
	}

	native, err := s.sites.NativeBaseURL(ctx, tenantID)
	if err != nil {
		return "", err
	}
	nativeHost := strings.ToLower(native.Hostname())
	observed := normalizeHost(observedHost)

	var scheme, counterpart string
	if observed == nativeHost {
		primary, ok, err := s.mappings.GetPrimaryDomain(ctx, tenantID)
		if err != nil {
			return "", err
		}
		if !ok {
			// No mapped counterpart to notify.
			return "", nil
		}
		scheme, counterpart = native.Scheme, primary
	} else {
		scheme, counterpart = native.Scheme, native.Host
	}

	hash, err := s.settings.HandoffHash(ctx)
	if err != nil {
		return "", err
	}
	token, err := s.ledger.Issue(ctx, domain.SubjectAnonymous, tenantID, domain.IntentLogout)
	if err != nil {
		return "", err
	}

	return handoffURL(scheme, counterpart, domain.RedeemPath, url.Values{
		domain.ParamHash:   {hash},
		domain.ParamTenant: {tenantID.String()},
		domain.ParamToken:  {token},
	}), nil
}

func (s *service) verifyHash(ctx context.Context, presented string) error {
	expected, err := s.settings.HandoffHash(ctx)
	if err != nil {
		return err
	}
	// A wrong installation hash is indistinguishable from a bad token.
	if subtle.ConstantTimeCompare([]byte(expected), []byte(presented)) != 1 {
		return domain.ErrUnknownKey
	}
	return nil
}

// parseReturnURL accepts only return targets on a host belonging to the
// tenant (a mapped domain or the native host); anything else would let a
// crafted handoff URL relay tokens to a foreign origin.
func (s *service) parseReturnURL(ctx context.Context, tenantID snowflake.ID, raw string) (*url.URL, error) {
	parsed, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || parsed.Host == "" || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return nil, domain.ErrHandoffFailed
	}

	host := strings.ToLower(parsed.Hostname())
	if mappedTenant, ok, err := s.mappings.ResolveTenantForDomain(ctx, host); err != nil {
		return nil, err
	} else if ok && mappedTenant == tenantID {
		return parsed, nil
	}

	nativeHost, err := s.sites.NativeHost(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if host == nativeHost {
		return parsed, nil
	}
	return nil, domain.ErrHandoffFailed
}

func handoffURL(scheme, host, path string, query url.Values) string {
	u := url.URL{
		Scheme:   scheme,
		Host:     host,
		Path:     path,
		RawQuery: query.Encode(),
	}
	return u.String()
}

func normalizeHost(raw string) string {
	host := strings.ToLower(strings.TrimSpace(raw))
	if i := strings.IndexByte(host, ':'); i >= 0 {
		host = host[:i]
	}
	return host
}

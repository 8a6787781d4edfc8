// Package resolver decides, per inbound request, which host a tenant's
// traffic should be served from and whether a redirect is required.
package resolver

import (
	"context"
	"errors"
	"net/url"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/domainlink/internal/config"
	mappingdomain "github.com/smallbiznis/domainlink/internal/mapping/domain"
	"github.com/smallbiznis/domainlink/internal/site"
	"go.uber.org/zap"
)

// Action is the outcome kind of a resolution.
type Action string

const (
	ActionServeLocal Action = "serve_local"
	ActionRedirect   Action = "redirect"
)

// Request carries the per-request inputs resolution depends on. The outer
// routing layer produces these; the resolver never reads ambient state.
type Request struct {
	Host     string
	Path     string
	RawQuery string
	TenantID snowflake.ID

	// IsPreview and IsCustomizer mark requests that must render under the
	// original host, so redirects are suppressed.
	IsPreview    bool
	IsCustomizer bool
	// IsHandoffRedemption marks the handoff redemption flow; suppressing
	// redirects here prevents redirect loops during the token hop.
	IsHandoffRedemption bool
}

// Decision is the resolution outcome. For ActionRedirect, Location is an
// absolute URL preserving the request path and query.
type Decision struct {
	Action   Action
	Location string
	Status   int
}

var ErrNoTenant = errors.New("no_tenant_context")

type Resolver struct {
	mappings mappingdomain.Service
	sites    site.Provider
	policy   *config.RoutingPolicyHolder
	log      *zap.Logger
}

func New(mappings mappingdomain.Service, sites site.Provider, policy *config.RoutingPolicyHolder, log *zap.Logger) *Resolver {
	return &Resolver{
		mappings: mappings,
		sites:    sites,
		policy:   policy,
		log:      log.Named("resolver"),
	}
}

// Resolve is a pure function of the request, mapping state and policy flags.
// An unmapped host is a normal outcome (serve natively), never an error.
func (r *Resolver) Resolve(ctx context.Context, req Request) (Decision, error) {
	if req.TenantID == 0 {
		return Decision{}, ErrNoTenant
	}
	if req.IsPreview || req.IsCustomizer || req.IsHandoffRedemption {
		return Decision{Action: ActionServeLocal}, nil
	}

	host := normalizeHost(req.Host)
	policy := r.policy.Get()

	if policy.NoPrimaryDomain {
		return r.resolveAnyMapped(ctx, req, host, policy)
	}

	canonical, scheme, err := r.canonicalHost(ctx, req.TenantID)
	if err != nil {
		return Decision{}, err
	}
	if host == canonical {
		return Decision{Action: ActionServeLocal}, nil
	}
	return redirectDecision(scheme, canonical, req, policy), nil
}

// ResolveAdmin returns the tenant's native base URL unconditionally.
// Back-office traffic never follows mapped domains.
func (r *Resolver) ResolveAdmin(ctx context.Context, tenantID snowflake.ID) (*url.URL, error) {
	if tenantID == 0 {
		return nil, ErrNoTenant
	}
	return r.sites.NativeBaseURL(ctx, tenantID)
}

// resolveAnyMapped implements the no-primary-domain policy: any of the
// tenant's mapped domains (or the native host) is acceptable as-is.
func (r *Resolver) resolveAnyMapped(ctx context.Context, req Request, host string, policy config.RoutingPolicy) (Decision, error) {
	tenantID, ok, err := r.mappings.ResolveTenantForDomain(ctx, host)
	if err != nil {
		return Decision{}, err
	}
	if ok && tenantID == req.TenantID {
		return Decision{Action: ActionServeLocal}, nil
	}

	native, err := r.sites.NativeBaseURL(ctx, req.TenantID)
	if err != nil {
		return Decision{}, err
	}
	nativeHost := strings.ToLower(native.Hostname())
	if host == nativeHost {
		return Decision{Action: ActionServeLocal}, nil
	}
	return redirectDecision(native.Scheme, nativeHost, req, policy), nil
}

func (r *Resolver) canonicalHost(ctx context.Context, tenantID snowflake.ID) (host, scheme string, err error) {
	primary, ok, err := r.mappings.GetPrimaryDomain(ctx, tenantID)
	if err != nil {
		return "", "", err
	}

	native, err := r.sites.NativeBaseURL(ctx, tenantID)
	if err != nil {
		if ok && errors.Is(err, site.ErrSiteNotFound) {
			// A mapped tenant without a native site record can still be
			// served from its primary domain.
			return primary, "https", nil
		}
		return "", "", err
	}

	if ok {
		return primary, native.Scheme, nil
	}
	return strings.ToLower(native.Hostname()), native.Scheme, nil
}

func redirectDecision(scheme, host string, req Request, policy config.RoutingPolicy) Decision {
	status := 302
	if policy.PermanentRedirect {
		status = 301
	}
	target := url.URL{
		Scheme:   scheme,
		Host:     host,
		Path:     req.Path,
		RawQuery: req.RawQuery,
	}
	return Decision{
		Action:   ActionRedirect,
		Location: target.String(),
		Status:   status,
	}
}

func normalizeHost(raw string) string {
	host := strings.ToLower(strings.TrimSpace(raw))
	if i := strings.IndexByte(host, ':'); i >= 0 {
		host = host[:i]
	}
	return strings.TrimSuffix(host, ".")
}

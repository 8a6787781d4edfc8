package server

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	handoffdomain "github.com/smallbiznis/domainlink/internal/handoff/domain"
	"github.com/smallbiznis/domainlink/internal/resolver"
	"github.com/smallbiznis/domainlink/pkg/tenantctx"
	"go.uber.org/zap"
)

const (
	HeaderRequestID = "X-Request-ID"
	HeaderTenant    = "X-Tenant-ID"

	// Query markers for flows that must render under the requested host.
	paramPreview    = "preview"
	paramCustomizer = "customizer"
)

func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := strings.TrimSpace(c.GetHeader(HeaderRequestID))
		if id == "" {
			id = uuid.NewString()
		}
		c.Header(HeaderRequestID, id)
		c.Set("request_id", id)
		c.Next()
	}
}

// TenantContext resolves the acting tenant for the request: a mapped host
// identifies its tenant directly, otherwise the tenant header is trusted.
// Requests with no resolvable tenant pass through; downstream handlers that
// need one reject them.
func (s *Server) TenantContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		host := c.Request.Host

		tenantID, ok, err := s.mappingSvc.ResolveTenantForDomain(c.Request.Context(), host)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		if !ok {
			if header := strings.TrimSpace(c.GetHeader(HeaderTenant)); header != "" {
				parsed, perr := parseTenantID(header)
				if perr != nil {
					AbortWithError(c, ErrInvalidRequest)
					return
				}
				tenantID = parsed
				ok = true
			}
		}

		if ok {
			ctx := tenantctx.WithTenantID(c.Request.Context(), tenantID)
			c.Request = c.Request.WithContext(ctx)
		}
		c.Next()
	}
}

// CanonicalHost enforces the tenant's canonical origin on front-of-site
// traffic, emitting a redirect when the request arrived on the wrong host.
func (s *Server) CanonicalHost() gin.HandlerFunc {
	return func(c *gin.Context) {
		tenantID, ok := tenantctx.TenantIDFromContext(c.Request.Context())
		if !ok {
			c.Next()
			return
		}

		query := c.Request.URL.Query()
		req := resolver.Request{
			Host:                c.Request.Host,
			Path:                c.Request.URL.Path,
			RawQuery:            c.Request.URL.RawQuery,
			TenantID:            tenantID,
			IsPreview:           query.Get(paramPreview) != "",
			IsCustomizer:        query.Get(paramCustomizer) != "",
			IsHandoffRedemption: c.Request.URL.Path == handoffdomain.RedeemPath,
		}

		decision, err := s.resolver.Resolve(c.Request.Context(), req)
		if err != nil {
			// Resolution trouble must not take the page down; serve locally.
			s.log.Warn("canonical host resolution failed",
				zap.String("host", req.Host),
				zap.Error(err),
			)
			c.Next()
			return
		}

		s.metrics.RecordResolution(c.Request.Context(), string(decision.Action))
		if decision.Action == resolver.ActionRedirect {
			c.Redirect(decision.Status, decision.Location)
			c.Abort()
			return
		}
		c.Next()
	}
}

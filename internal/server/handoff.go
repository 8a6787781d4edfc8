package server

import (
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
	handoffdomain "github.com/smallbiznis/domainlink/internal/handoff/domain"
	"github.com/smallbiznis/domainlink/pkg/tenantctx"
	"go.uber.org/zap"
)

const (
	redeemRateLimit = 5.0
	redeemBurst     = 10
)

// StartHandoffLogin runs on a mapped host. It mints a loader token and
// bounces the visitor to the native host's load endpoint.
func (s *Server) StartHandoffLogin(c *gin.Context) {
	tenantID, ok := tenantctx.TenantIDFromContext(c.Request.Context())
	if !ok {
		AbortWithError(c, handoffdomain.ErrHandoffFailed)
		return
	}

	returnURL := c.Query(handoffdomain.ParamReturn)
	if returnURL == "" {
		returnURL = localURL(c, "/")
	}

	target, err := s.handoffSvc.BeginLogin(c.Request.Context(), tenantID, returnURL)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	s.metrics.RecordHandoffIssued(c.Request.Context(), string(handoffdomain.IntentLogin))
	c.Redirect(302, target)
}

// LoadHandoff runs on the native host. Authenticated visitors get a
// subject-bound token and bounce back; with no active session there is
// nothing to hand off, so the visitor returns where they came from with the
// token material stripped.
func (s *Server) LoadHandoff(c *gin.Context) {
	subject, ok := s.sessions.Subject(c)
	if !ok {
		c.Redirect(302, anonymousReturn(c))
		return
	}

	tenantID, err := parseTenantID(c.Query(handoffdomain.ParamTenant))
	if err != nil {
		AbortWithError(c, handoffdomain.ErrHandoffFailed)
		return
	}

	target, err := s.handoffSvc.CompleteLogin(c.Request.Context(), handoffdomain.CompleteLoginRequest{
		Token:     c.Query(handoffdomain.ParamToken),
		Hash:      c.Query(handoffdomain.ParamHash),
		TenantID:  tenantID,
		Subject:   subject,
		ReturnURL: c.Query(handoffdomain.ParamReturn),
	})
	if err != nil {
		s.metrics.RecordHandoffFailed(c.Request.Context(), failureReason(err))
		AbortWithError(c, err)
		return
	}

	s.metrics.RecordHandoffIssued(c.Request.Context(), string(handoffdomain.IntentLogin))
	c.Redirect(302, target)
}

// RedeemHandoff consumes a token on the receiving origin, applies the
// session change it carries, and lands on a clean URL with no token
// material left in the address bar.
func (s *Server) RedeemHandoff(c *gin.Context) {
	if !s.allowRedemption(c) {
		AbortWithError(c, ErrRateLimited)
		return
	}

	tenantID, err := parseTenantID(c.Query(handoffdomain.ParamTenant))
	if err != nil {
		AbortWithError(c, handoffdomain.ErrHandoffFailed)
		return
	}

	redemption, err := s.handoffSvc.Redeem(c.Request.Context(), handoffdomain.RedeemRequest{
		Token:    c.Query(handoffdomain.ParamToken),
		Hash:     c.Query(handoffdomain.ParamHash),
		TenantID: tenantID,
	})
	if err != nil {
		s.metrics.RecordHandoffFailed(c.Request.Context(), failureReason(err))
		AbortWithError(c, err)
		return
	}
	s.metrics.RecordHandoffRedeemed(c.Request.Context(), string(redemption.Intent))

	switch redemption.Intent {
	case handoffdomain.IntentLogin:
		s.sessions.Establish(c, redemption.Subject)
		c.Redirect(302, s.redeemLanding(c))
	case handoffdomain.IntentLogout:
		s.sessions.Clear(c)
		landing := url.URL{
			Path:     "/",
			RawQuery: url.Values{handoffdomain.ParamLogout: {"1"}}.Encode(),
		}
		c.Redirect(302, landing.String())
	default:
		AbortWithError(c, handoffdomain.ErrHandoffFailed)
	}
}

// Logout clears the local session, then notifies the counterpart origin so
// both sides of the mapping end up logged out.
func (s *Server) Logout(c *gin.Context) {
	s.sessions.Clear(c)

	tenantID, ok := tenantctx.TenantIDFromContext(c.Request.Context())
	if !ok {
		c.Redirect(302, "/")
		return
	}

	target, err := s.handoffSvc.BeginLogout(c.Request.Context(), tenantID, c.Request.Host)
	if err != nil {
		s.log.Warn("logout handoff failed", zap.Error(err))
		c.Redirect(302, "/")
		return
	}
	if target == "" {
		c.Redirect(302, "/")
		return
	}

	s.metrics.RecordHandoffIssued(c.Request.Context(), string(handoffdomain.IntentLogout))
	c.Redirect(302, target)
}

func (s *Server) allowRedemption(c *gin.Context) bool {
	allowed, err := s.redeemLimiter.Allow(
		c.Request.Context(),
		"handoff:redeem:"+c.ClientIP(),
		redeemRateLimit,
		redeemBurst,
	)
	if err != nil {
		// Redis trouble must not take logins down; fail open.
		s.log.Warn("redemption rate limit check failed", zap.Error(err))
		return true
	}
	return allowed
}

// anonymousReturn picks where an aborted load hop lands. The return target
// carries no token parameters, so redirecting to it leaks nothing.
func anonymousReturn(c *gin.Context) string {
	parsed, err := url.Parse(c.Query(handoffdomain.ParamReturn))
	if err != nil || parsed.Host == "" || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return "/"
	}
	return parsed.String()
}

// redeemLanding picks the post-redemption landing URL. Only same-host
// targets are honored; everything else falls back to the site root.
func (s *Server) redeemLanding(c *gin.Context) string {
	raw := c.Query(handoffdomain.ParamReturn)
	parsed, err := url.Parse(raw)
	if err != nil || parsed.Host == "" {
		return "/"
	}
	if !strings.EqualFold(parsed.Hostname(), hostOnly(c.Request.Host)) {
		return "/"
	}
	landing := url.URL{Path: parsed.Path, RawQuery: parsed.RawQuery}
	if landing.Path == "" {
		landing.Path = "/"
	}
	return landing.String()
}

func localURL(c *gin.Context, pathAndQuery string) string {
	scheme := "https"
	if c.Request.TLS == nil {
		scheme = "http"
	}
	return scheme + "://" + c.Request.Host + pathAndQuery
}

func hostOnly(raw string) string {
	if i := strings.IndexByte(raw, ':'); i >= 0 {
		return raw[:i]
	}
	return raw
}

func failureReason(err error) string {
	if err == nil {
		return ""
	}
	if handoffdomain.IsRedemptionFailure(err) {
		return err.Error()
	}
	return "internal_error"
}

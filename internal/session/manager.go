// Package session implements the session-provider boundary over a cookie.
// Session storage itself is the platform's concern; the handoff flow only
// needs to read, establish and clear the local session on each origin.
package session

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/domainlink/internal/config"
)

const DefaultCookieName = "_sid"

const sessionTTL = 7 * 24 * time.Hour

// Manager manages the per-origin auth session cookie.
type Manager struct {
	cookieName string
	secure     bool
}

func NewManager(cfg config.Config) *Manager {
	name := strings.TrimSpace(cfg.SessionCookie)
	if name == "" {
		name = DefaultCookieName
	}
	return &Manager{
		cookieName: name,
		secure:     cfg.AuthCookieSecure,
	}
}

func (m *Manager) CookieName() string {
	return m.cookieName
}

// Subject returns the authenticated subject bound to this origin, if any.
func (m *Manager) Subject(c *gin.Context) (string, bool) {
	value, err := c.Cookie(m.cookieName)
	if err != nil {
		return "", false
	}
	if strings.TrimSpace(value) == "" {
		return "", false
	}
	return value, true
}

// Establish binds a session for the subject on this origin.
func (m *Manager) Establish(c *gin.Context, subject string) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(m.cookieName, subject, int(sessionTTL.Seconds()), "/", "", m.secure, true)
}

// Clear drops the local session.
func (m *Manager) Clear(c *gin.Context) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(m.cookieName, "", -1, "/", "", m.secure, true)
}

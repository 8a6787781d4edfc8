package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// RotateHandoffHash replaces the installation's handoff hash. In-flight
// handoff URLs minted under the old hash stop redeeming; sessions are
// untouched.
func (s *Server) RotateHandoffHash(c *gin.Context) {
	hash, err := s.settings.RotateHandoffHash(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	s.log.Info("handoff hash rotated")
	c.JSON(http.StatusOK, gin.H{"handoff_hash": hash})
}

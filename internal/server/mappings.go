package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	mappingdomain "github.com/smallbiznis/domainlink/internal/mapping/domain"
)

type domainMappingResponse struct {
	ID        string    `json:"id"`
	TenantID  string    `json:"tenant_id"`
	Domain    string    `json:"domain"`
	IsPrimary bool      `json:"is_primary"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func toDomainMappingResponse(m mappingdomain.DomainMapping) domainMappingResponse {
	return domainMappingResponse{
		ID:        m.ID.String(),
		TenantID:  m.TenantID.String(),
		Domain:    m.Domain,
		IsPrimary: m.IsPrimary,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
}

func parseTenantID(raw string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(raw))
	if err != nil {
		return 0, mappingdomain.ErrInvalidTenant
	}
	return id, nil
}

func (s *Server) ListDomainMappings(c *gin.Context) {
	tenantID, err := parseTenantID(c.Param("tenant_id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	mappings, err := s.mappingSvc.ListMappings(c.Request.Context(), tenantID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	out := make([]domainMappingResponse, 0, len(mappings))
	for _, m := range mappings {
		out = append(out, toDomainMappingResponse(m))
	}
	c.JSON(http.StatusOK, gin.H{"domains": out})
}

type createDomainMappingRequest struct {
	Domain      string `json:"domain" binding:"required"`
	MakePrimary bool   `json:"make_primary"`
}

func (s *Server) CreateDomainMapping(c *gin.Context) {
	tenantID, err := parseTenantID(c.Param("tenant_id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req createDomainMappingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	mapping, err := s.mappingSvc.AddMapping(c.Request.Context(), mappingdomain.AddMappingRequest{
		TenantID:    tenantID,
		Domain:      req.Domain,
		MakePrimary: req.MakePrimary,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toDomainMappingResponse(*mapping))
}

type updateDomainMappingRequest struct {
	Domain      *string `json:"domain"`
	MakePrimary *bool   `json:"make_primary"`
}

func (s *Server) UpdateDomainMapping(c *gin.Context) {
	tenantID, err := parseTenantID(c.Param("tenant_id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	mappingID, err := snowflake.ParseString(c.Param("id"))
	if err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	var req updateDomainMappingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	mapping, err := s.mappingSvc.UpdateMapping(c.Request.Context(), mappingdomain.UpdateMappingRequest{
		MappingID:   mappingID,
		TenantID:    tenantID,
		NewDomain:   req.Domain,
		MakePrimary: req.MakePrimary,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, toDomainMappingResponse(*mapping))
}

func (s *Server) DeleteDomainMapping(c *gin.Context) {
	tenantID, err := parseTenantID(c.Param("tenant_id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	mappingID, err := snowflake.ParseString(c.Param("id"))
	if err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	force := c.Query("force") == "true"
	err = s.mappingSvc.DeleteMapping(c.Request.Context(), mappingdomain.DeleteMappingRequest{
		MappingID: mappingID,
		TenantID:  tenantID,
		Force:     force,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ResolveHost is the operational point lookup: which tenant, if any, owns
// the given host.
func (s *Server) ResolveHost(c *gin.Context) {
	host := strings.TrimSpace(c.Query("host"))
	if host == "" {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	tenantID, ok, err := s.mappingSvc.ResolveTenantForDomain(c.Request.Context(), host)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if !ok {
		c.JSON(http.StatusOK, gin.H{"mapped": false})
		return
	}
	c.JSON(http.StatusOK, gin.H{"mapped": true, "tenant_id": tenantID.String()})
}

// AdminURL returns the tenant's back-office base URL. Admin traffic always
// lands on the native host regardless of domain mappings.
func (s *Server) AdminURL(c *gin.Context) {
	tenantID, err := parseTenantID(c.Param("tenant_id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	base, err := s.resolver.ResolveAdmin(c.Request.Context(), tenantID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"admin_url": base.String()})
}

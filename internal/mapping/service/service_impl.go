package service

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/domainlink/internal/cache"
	"github.com/smallbiznis/domainlink/internal/mapping/domain"
	"github.com/smallbiznis/domainlink/pkg/db"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type service struct {
	db    *gorm.DB
	repo  domain.Repository
	genID *snowflake.Node
	cache cache.MappingResolverCache
	log   *zap.Logger
}

func NewService(conn *gorm.DB, repo domain.Repository, genID *snowflake.Node, resolverCache cache.MappingResolverCache, log *zap.Logger) domain.Service {
	return &service{
		db:    conn,
		repo:  repo,
		genID: genID,
		cache: resolverCache,
		log:   log.Named("mapping.service"),
	}
}

func (s *service) AddMapping(ctx context.Context, req domain.AddMappingRequest) (*domain.DomainMapping, error) {
	if req.TenantID == 0 {
		return nil, domain.ErrInvalidTenant
	}
	name, err := NormalizeDomain(req.Domain)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	mapping := &domain.DomainMapping{
		ID:        s.genID.Generate(),
		TenantID:  req.TenantID,
		Domain:    name,
		IsPrimary: req.MakePrimary,
		CreatedAt: now,
		UpdatedAt: now,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if req.MakePrimary {
			if err := repo.ClearPrimary(ctx, req.TenantID); err != nil {
				return err
			}
		}
		return repo.Create(ctx, mapping)
	})
	if err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, s.classifyDuplicate(ctx, name, mapping.ID, req.MakePrimary)
		}
		return nil, err
	}

	s.invalidate(name, req.TenantID)
	s.log.Info("mapping added",
		zap.String("domain", name),
		zap.String("tenant_id", req.TenantID.String()),
		zap.Bool("is_primary", mapping.IsPrimary),
	)
	return mapping, nil
}

func (s *service) UpdateMapping(ctx context.Context, req domain.UpdateMappingRequest) (*domain.DomainMapping, error) {
	if req.TenantID == 0 {
		return nil, domain.ErrInvalidTenant
	}

	var newName *string
	if req.NewDomain != nil {
		name, err := NormalizeDomain(*req.NewDomain)
		if err != nil {
			return nil, err
		}
		newName = &name
	}

	var mapping *domain.DomainMapping
	var oldDomain string

	// The ownership check has to see the same row the update mutates, so
	// the read lives inside the transaction.
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		found, err := repo.FindByID(ctx, req.MappingID)
		if err != nil {
			return err
		}
		if found.TenantID != req.TenantID {
			return domain.ErrForbidden
		}
		oldDomain = found.Domain

		fields := map[string]any{"updated_at": time.Now().UTC()}
		if newName != nil {
			fields["domain"] = *newName
			found.Domain = *newName
		}
		if req.MakePrimary != nil {
			fields["is_primary"] = *req.MakePrimary
			found.IsPrimary = *req.MakePrimary
		}

		if req.MakePrimary != nil && *req.MakePrimary {
			if err := repo.ClearPrimary(ctx, req.TenantID); err != nil {
				return err
			}
		}
		if err := repo.UpdateFields(ctx, req.MappingID, fields); err != nil {
			return err
		}
		mapping = found
		return nil
	})
	if err != nil {
		if db.IsDuplicateKeyErr(err) {
			name := oldDomain
			if newName != nil {
				name = *newName
			}
			makePrimary := req.MakePrimary != nil && *req.MakePrimary
			return nil, s.classifyDuplicate(ctx, name, req.MappingID, makePrimary)
		}
		return nil, err
	}

	s.invalidate(oldDomain, req.TenantID)
	s.invalidate(mapping.Domain, req.TenantID)
	return mapping, nil
}

func (s *service) DeleteMapping(ctx context.Context, req domain.DeleteMappingRequest) error {
	var mapping *domain.DomainMapping
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		found, err := repo.FindByID(ctx, req.MappingID)
		if err != nil {
			return err
		}
		if req.TenantID != 0 && found.TenantID != req.TenantID {
			return domain.ErrForbidden
		}
		if found.IsPrimary && !req.Force {
			return domain.ErrCannotDeletePrimary
		}
		mapping = found
		return repo.Delete(ctx, req.MappingID)
	})
	if err != nil {
		return err
	}

	s.invalidate(mapping.Domain, mapping.TenantID)
	s.log.Info("mapping deleted",
		zap.String("domain", mapping.Domain),
		zap.String("tenant_id", mapping.TenantID.String()),
	)
	return nil
}

func (s *service) ResolveTenantForDomain(ctx context.Context, name string) (snowflake.ID, bool, error) {
	normalized, err := NormalizeDomain(name)
	if err != nil {
		// Malformed host headers resolve to nothing rather than failing.
		return 0, false, nil
	}

	if tenantID, ok := s.cache.GetTenant(normalized); ok {
		return tenantID, true, nil
	}

	mapping, err := s.repo.FindByDomain(ctx, normalized)
	if err != nil {
		if errors.Is(err, domain.ErrMappingNotFound) {
			return 0, false, nil
		}
		return 0, false, err
	}

	s.cache.SetTenant(normalized, mapping.TenantID)
	return mapping.TenantID, true, nil
}

func (s *service) GetPrimaryDomain(ctx context.Context, tenantID snowflake.ID) (string, bool, error) {
	if tenantID == 0 {
		return "", false, domain.ErrInvalidTenant
	}

	if name, ok := s.cache.GetPrimaryDomain(tenantID); ok {
		return name, true, nil
	}

	mapping, err := s.repo.FindPrimary(ctx, tenantID)
	if err != nil {
		if errors.Is(err, domain.ErrMappingNotFound) {
			return "", false, nil
		}
		return "", false, err
	}

	s.cache.SetPrimaryDomain(tenantID, mapping.Domain)
	return mapping.Domain, true, nil
}

func (s *service) ListMappings(ctx context.Context, tenantID snowflake.ID) ([]domain.DomainMapping, error) {
	if tenantID == 0 {
		return nil, domain.ErrInvalidTenant
	}
	return s.repo.ListByTenant(ctx, tenantID)
}

// classifyDuplicate decides which unique index rejected a write. The
// translated driver error does not name the constraint, so when the write
// tried to set a primary we re-check the domain index: if nobody else holds
// the domain, the partial one-primary index fired and the caller lost a
// concurrent swap.
func (s *service) classifyDuplicate(ctx context.Context, name string, id snowflake.ID, makePrimary bool) error {
	if !makePrimary {
		return domain.ErrDomainTaken
	}
	existing, err := s.repo.FindByDomain(ctx, name)
	if err == nil && existing.ID != id {
		return domain.ErrDomainTaken
	}
	if err != nil && !errors.Is(err, domain.ErrMappingNotFound) {
		return domain.ErrDomainTaken
	}
	return domain.ErrPrimaryConflict
}

func (s *service) invalidate(name string, tenantID snowflake.ID) {
	s.cache.InvalidateDomain(name)
	s.cache.InvalidateTenant(tenantID)
}

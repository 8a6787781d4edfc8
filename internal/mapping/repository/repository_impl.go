package repository

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/domainlink/internal/mapping/domain"
	"gorm.io/gorm"
)

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) domain.Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) domain.Repository {
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, mapping *domain.DomainMapping) error {
	return r.db.WithContext(ctx).Create(mapping).Error
}

func (r *repository) FindByID(ctx context.Context, id snowflake.ID) (*domain.DomainMapping, error) {
	var mapping domain.DomainMapping
	err := r.db.WithContext(ctx).First(&mapping, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrMappingNotFound
		}
		return nil, err
	}
	return &mapping, nil
}

func (r *repository) FindByDomain(ctx context.Context, name string) (*domain.DomainMapping, error) {
	var mapping domain.DomainMapping
	err := r.db.WithContext(ctx).First(&mapping, "domain = ?", name).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrMappingNotFound
		}
		return nil, err
	}
	return &mapping, nil
}

func (r *repository) FindPrimary(ctx context.Context, tenantID snowflake.ID) (*domain.DomainMapping, error) {
	var mapping domain.DomainMapping
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND is_primary", tenantID).
		First(&mapping).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrMappingNotFound
		}
		return nil, err
	}
	return &mapping, nil
}

func (r *repository) ListByTenant(ctx context.Context, tenantID snowflake.ID) ([]domain.DomainMapping, error) {
	var mappings []domain.DomainMapping
	err := r.db.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		Order("is_primary DESC, domain ASC").
		Find(&mappings).Error
	if err != nil {
		return nil, err
	}
	return mappings, nil
}

func (r *repository) ClearPrimary(ctx context.Context, tenantID snowflake.ID) error {
	return r.db.WithContext(ctx).
		Model(&domain.DomainMapping{}).
		Where("tenant_id = ? AND is_primary", tenantID).
		Update("is_primary", false).Error
}

func (r *repository) UpdateFields(ctx context.Context, id snowflake.ID, fields map[string]any) error {
	res := r.db.WithContext(ctx).
		Model(&domain.DomainMapping{}).
		Where("id = ?", id).
		Updates(fields)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrMappingNotFound
	}
	return nil
}

func (r *repository) Delete(ctx context.Context, id snowflake.ID) error {
	res := r.db.WithContext(ctx).Delete(&domain.DomainMapping{}, "id = ?", id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrMappingNotFound
	}
	return nil
}

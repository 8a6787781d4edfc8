package site

import (
	"context"
	"errors"
	"net/url"
	"strings"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

var (
	ErrSiteNotFound  = errors.New("site_not_found")
	ErrInvalidOrigin = errors.New("invalid_origin")
)

// Provider resolves a tenant's native (non-mapped) base URL.
type Provider interface {
	NativeBaseURL(ctx context.Context, tenantID snowflake.ID) (*url.URL, error)
	NativeHost(ctx context.Context, tenantID snowflake.ID) (string, error)
}

type provider struct {
	db *gorm.DB
}

func NewProvider(db *gorm.DB) Provider {
	return &provider{db: db}
}

func (p *provider) NativeBaseURL(ctx context.Context, tenantID snowflake.ID) (*url.URL, error) {
	var s Site
	err := p.db.WithContext(ctx).First(&s, "tenant_id = ?", tenantID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSiteNotFound
		}
		return nil, err
	}

	parsed, err := url.Parse(strings.TrimRight(s.NativeURL, "/"))
	if err != nil || parsed.Host == "" {
		return nil, ErrInvalidOrigin
	}
	return parsed, nil
}

func (p *provider) NativeHost(ctx context.Context, tenantID snowflake.ID) (string, error) {
	base, err := p.NativeBaseURL(ctx, tenantID)
	if err != nil {
		return "", err
	}
	return strings.ToLower(base.Hostname()), nil
}

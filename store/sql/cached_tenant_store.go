package sqlstore

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/goliatone/go-intake/core"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
)

const tenantCacheKeyPrefix = "go-intake::tenant::v1"

// CachedTenantStore serves tenant lookups on the ingest path from a
// read-through cache and evicts entries on writes.
type CachedTenantStore struct {
	base  core.TenantStore
	cache repositorycache.CacheService
}

func NewCachedTenantStore(base core.TenantStore, cacheService repositorycache.CacheService) (*CachedTenantStore, error) {
	if base == nil {
		return nil, fmt.Errorf("sqlstore: base tenant store is required")
	}
	if cacheService == nil {
		return nil, fmt.Errorf("sqlstore: tenant cache service is required")
	}
	return &CachedTenantStore{base: base, cache: cacheService}, nil
}

// TenantCacheKey returns go-intake::tenant::v1::<field>::<value> with the
// value URL-path escaped.
func TenantCacheKey(field string, value string) (string, error) {
	field = strings.TrimSpace(field)
	value = strings.TrimSpace(value)
	if field == "" || value == "" {
		return "", fmt.Errorf("sqlstore: tenant cache key requires field and value")
	}
	return strings.Join([]string{tenantCacheKeyPrefix, field, url.PathEscape(value)}, "::"), nil
}

func (s *CachedTenantStore) Create(ctx context.Context, in core.CreateTenantInput) (core.Tenant, error) {
	if s == nil || s.base == nil {
		return core.Tenant{}, notConfigured("cached tenant")
	}
	return s.base.Create(ctx, in)
}

func (s *CachedTenantStore) Get(ctx context.Context, id string) (core.Tenant, error) {
	return s.lookup(ctx, "id", id, s.base.Get)
}

func (s *CachedTenantStore) GetByAPIKey(ctx context.Context, apiKey string) (core.Tenant, error) {
	return s.lookup(ctx, "api_key", apiKey, s.base.GetByAPIKey)
}

func (s *CachedTenantStore) lookup(
	ctx context.Context,
	field string,
	value string,
	fetch func(ctx context.Context, value string) (core.Tenant, error),
) (core.Tenant, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return core.Tenant{}, notConfigured("cached tenant")
	}
	cacheKey, err := TenantCacheKey(field, value)
	if err != nil {
		return fetch(ctx, value)
	}
	tenant, err := repositorycache.GetOrFetch(ctx, s.cache, cacheKey, func(ctx context.Context) (core.Tenant, error) {
		return fetch(ctx, strings.TrimSpace(value))
	})
	if err != nil {
		return core.Tenant{}, err
	}
	return cloneTenant(tenant), nil
}

func (s *CachedTenantStore) List(ctx context.Context, filter core.TenantFilter) (core.Page[core.Tenant], error) {
	if s == nil || s.base == nil {
		return core.Page[core.Tenant]{}, notConfigured("cached tenant")
	}
	return s.base.List(ctx, filter)
}

func (s *CachedTenantStore) Update(ctx context.Context, id string, in core.UpdateTenantInput) (core.Tenant, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return core.Tenant{}, notConfigured("cached tenant")
	}
	updated, err := s.base.Update(ctx, id, in)
	if err != nil {
		return core.Tenant{}, err
	}
	if err := s.evict(ctx, updated); err != nil {
		return core.Tenant{}, err
	}
	return updated, nil
}

func (s *CachedTenantStore) evict(ctx context.Context, tenant core.Tenant) error {
	for field, value := range map[string]string{"id": tenant.ID, "api_key": tenant.APIKey} {
		cacheKey, err := TenantCacheKey(field, value)
		if err != nil {
			continue
		}
		if err := s.cache.Delete(ctx, cacheKey); err != nil {
			return err
		}
	}
	return nil
}

func cloneTenant(tenant core.Tenant) core.Tenant {
	cloned := tenant
	cloned.ActiveFlows = append([]string(nil), tenant.ActiveFlows...)
	cloned.Metadata = copyAnyMap(tenant.Metadata)
	return cloned
}

var _ core.TenantStore = (*CachedTenantStore)(nil)

package sqlstore

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/goliatone/go-intake/core"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
)

type stubTenantStore struct {
	mu          sync.Mutex
	tenants     map[string]core.Tenant
	getCalls    int
	apiKeyCalls int
}

func newStubTenantStore(tenants ...core.Tenant) *stubTenantStore {
	store := &stubTenantStore{tenants: map[string]core.Tenant{}}
	for _, tenant := range tenants {
		store.tenants[tenant.ID] = tenant
	}
	return store
}

func (s *stubTenantStore) Create(_ context.Context, in core.CreateTenantInput) (core.Tenant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tenant := core.Tenant{ID: in.ID, Name: in.Name, APIKey: in.APIKey, Status: core.TenantStatusActive}
	s.tenants[tenant.ID] = tenant
	return tenant, nil
}

func (s *stubTenantStore) Get(_ context.Context, id string) (core.Tenant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.getCalls++
	tenant, ok := s.tenants[id]
	if !ok {
		return core.Tenant{}, notFound("tenant", id)
	}
	return tenant, nil
}

func (s *stubTenantStore) GetByAPIKey(_ context.Context, apiKey string) (core.Tenant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.apiKeyCalls++
	for _, tenant := range s.tenants {
		if tenant.APIKey == apiKey {
			return tenant, nil
		}
	}
	return core.Tenant{}, notFound("tenant", apiKey)
}

func (s *stubTenantStore) List(context.Context, core.TenantFilter) (core.Page[core.Tenant], error) {
	return core.Page[core.Tenant]{}, nil
}

func (s *stubTenantStore) Update(_ context.Context, id string, in core.UpdateTenantInput) (core.Tenant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tenant, ok := s.tenants[id]
	if !ok {
		return core.Tenant{}, notFound("tenant", id)
	}
	if in.Status != nil {
		tenant.Status = *in.Status
	}
	if in.Name != nil {
		tenant.Name = *in.Name
	}
	s.tenants[id] = tenant
	return tenant, nil
}

func TestCachedTenantStore_ReadThroughAndEvict(t *testing.T) {
	ctx := context.Background()
	base := newStubTenantStore(core.Tenant{
		ID:          "tenant_1",
		Name:        "Acme",
		APIKey:      "key_1",
		Status:      core.TenantStatusActive,
		ActiveFlows: []string{core.DefaultFlowID},
	})
	store, err := NewCachedTenantStore(base, newTestTenantCacheService(t))
	if err != nil {
		t.Fatalf("new cached tenant store: %v", err)
	}

	for i := 0; i < 3; i++ {
		tenant, err := store.GetByAPIKey(ctx, "key_1")
		if err != nil || tenant.ID != "tenant_1" {
			t.Fatalf("lookup %d: %+v %v", i, tenant, err)
		}
		tenant.ActiveFlows[0] = "mutated"
	}
	if base.apiKeyCalls != 1 {
		t.Fatalf("expected one base lookup, got %d", base.apiKeyCalls)
	}
	cached, _ := store.GetByAPIKey(ctx, "key_1")
	if cached.ActiveFlows[0] != core.DefaultFlowID {
		t.Fatalf("callers must not mutate cached tenants, got %v", cached.ActiveFlows)
	}

	if _, err := store.Get(ctx, "tenant_1"); err != nil {
		t.Fatalf("get by id: %v", err)
	}
	suspended := core.TenantStatusSuspended
	if _, err := store.Update(ctx, "tenant_1", core.UpdateTenantInput{Status: &suspended}); err != nil {
		t.Fatalf("update: %v", err)
	}

	byKey, err := store.GetByAPIKey(ctx, "key_1")
	if err != nil || byKey.Status != suspended {
		t.Fatalf("expected evicted api key entry, got %+v %v", byKey, err)
	}
	byID, err := store.Get(ctx, "tenant_1")
	if err != nil || byID.Status != suspended {
		t.Fatalf("expected evicted id entry, got %+v %v", byID, err)
	}
	if base.apiKeyCalls != 2 || base.getCalls != 2 {
		t.Fatalf("expected refetch after update, got api_key=%d id=%d", base.apiKeyCalls, base.getCalls)
	}
}

func TestCachedTenantStore_PropagatesNotFound(t *testing.T) {
	store, err := NewCachedTenantStore(newStubTenantStore(), newTestTenantCacheService(t))
	if err != nil {
		t.Fatalf("new cached tenant store: %v", err)
	}
	if _, err := store.GetByAPIKey(context.Background(), "missing"); !core.IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := store.Get(context.Background(), " "); !core.IsNotFound(err) {
		t.Fatalf("expected blank id to fall through to base store, got %v", err)
	}
}

func TestTenantCacheKey(t *testing.T) {
	key, err := TenantCacheKey("api_key", "ik_a/b")
	if err != nil {
		t.Fatalf("cache key: %v", err)
	}
	if key != "go-intake::tenant::v1::api_key::ik_a%2Fb" {
		t.Fatalf("unexpected key %q", key)
	}
	if _, err := TenantCacheKey("id", " "); err == nil || !strings.Contains(err.Error(), "requires") {
		t.Fatalf("expected blank value to fail, got %v", err)
	}
	if _, err := NewCachedTenantStore(nil, nil); err == nil {
		t.Fatalf("expected missing base store to fail")
	}
}

func newTestTenantCacheService(t *testing.T) repositorycache.CacheService {
	t.Helper()
	config := repositorycache.DefaultConfig()
	config.TTL = time.Minute
	service, err := repositorycache.NewCacheService(config)
	if err != nil {
		t.Fatalf("new cache service: %v", err)
	}
	return service
}

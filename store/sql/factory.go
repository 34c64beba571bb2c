package sqlstore

import (
	"fmt"

	"github.com/goliatone/go-intake/core"
	persistence "github.com/goliatone/go-persistence-bun"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
	"github.com/uptrace/bun"
)

type RepositoryFactory struct {
	db          *bun.DB
	tenantCache repositorycache.CacheService
	initialized bool

	sqlTenants  *TenantStore
	tenantStore core.TenantStore
	rawStore    *RawEventStore
	normalized  *NormalizedEventStore
	reconcile   *ReconciliationStore
	quoteStore  *QuoteStore
	actionStore *ActionStore
	auditStore  *AuditStore
	errorStore  *ErrorStore
	statsStore  *StatsStore
}

type FactoryOption func(*RepositoryFactory)

// WithTenantCache puts tenant lookups behind a go-repository-cache service.
func WithTenantCache(cacheService repositorycache.CacheService) FactoryOption {
	return func(f *RepositoryFactory) {
		f.tenantCache = cacheService
	}
}

func NewRepositoryFactory(opts ...FactoryOption) *RepositoryFactory {
	factory := &RepositoryFactory{}
	for _, opt := range opts {
		if opt != nil {
			opt(factory)
		}
	}
	return factory
}

func NewRepositoryFactoryFromPersistence(client *persistence.Client, opts ...FactoryOption) (*RepositoryFactory, error) {
	factory := NewRepositoryFactory(opts...)
	if _, err := factory.BuildStores(client); err != nil {
		return nil, err
	}
	return factory, nil
}

func NewRepositoryFactoryFromDB(db *bun.DB, opts ...FactoryOption) (*RepositoryFactory, error) {
	factory := NewRepositoryFactory(opts...)
	if _, err := factory.BuildStores(db); err != nil {
		return nil, err
	}
	return factory, nil
}

func (f *RepositoryFactory) BuildStores(persistenceClient any) (core.StoreProvider, error) {
	if f == nil {
		return nil, fmt.Errorf("sqlstore: repository factory is nil")
	}
	if f.db == nil {
		db, err := resolveBunDB(persistenceClient)
		if err != nil {
			return nil, err
		}
		f.db = db
	}
	if f.initialized {
		return f, nil
	}
	if err := f.initStores(); err != nil {
		return nil, err
	}
	f.initialized = true
	return f, nil
}

func (f *RepositoryFactory) DB() *bun.DB {
	if f == nil {
		return nil
	}
	return f.db
}

func (f *RepositoryFactory) TenantStore() core.TenantStore {
	if f == nil {
		return nil
	}
	return f.tenantStore
}

func (f *RepositoryFactory) RawEventStore() core.RawEventStore {
	if f == nil {
		return nil
	}
	return f.rawStore
}

func (f *RepositoryFactory) NormalizedEventStore() core.NormalizedEventStore {
	if f == nil {
		return nil
	}
	return f.normalized
}

func (f *RepositoryFactory) ReconciliationStore() core.ReconciliationStore {
	if f == nil {
		return nil
	}
	return f.reconcile
}

func (f *RepositoryFactory) QuoteStore() core.QuoteStore {
	if f == nil {
		return nil
	}
	return f.quoteStore
}

func (f *RepositoryFactory) ActionStore() core.ActionStore {
	if f == nil {
		return nil
	}
	return f.actionStore
}

func (f *RepositoryFactory) AuditStore() core.AuditStore {
	if f == nil {
		return nil
	}
	return f.auditStore
}

func (f *RepositoryFactory) ErrorStore() core.ErrorStore {
	if f == nil {
		return nil
	}
	return f.errorStore
}

func (f *RepositoryFactory) StatsReader() core.StatsReader {
	if f == nil {
		return nil
	}
	return f.statsStore
}

func (f *RepositoryFactory) initStores() error {
	var err error
	if f.sqlTenants, err = NewTenantStore(f.db); err != nil {
		return err
	}
	f.tenantStore = f.sqlTenants
	if f.tenantCache != nil {
		cached, cacheErr := NewCachedTenantStore(f.sqlTenants, f.tenantCache)
		if cacheErr != nil {
			return cacheErr
		}
		f.tenantStore = cached
	}
	if f.rawStore, err = NewRawEventStore(f.db); err != nil {
		return err
	}
	if f.normalized, err = NewNormalizedEventStore(f.db); err != nil {
		return err
	}
	if f.reconcile, err = NewReconciliationStore(f.db); err != nil {
		return err
	}
	if f.quoteStore, err = NewQuoteStore(f.db); err != nil {
		return err
	}
	if f.actionStore, err = NewActionStore(f.db); err != nil {
		return err
	}
	if f.auditStore, err = NewAuditStore(f.db); err != nil {
		return err
	}
	if f.errorStore, err = NewErrorStore(f.db); err != nil {
		return err
	}
	if f.statsStore, err = NewStatsStore(f.db); err != nil {
		return err
	}
	return nil
}

func resolveBunDB(candidate any) (*bun.DB, error) {
	switch typed := candidate.(type) {
	case nil:
		return nil, fmt.Errorf("sqlstore: persistence client is required")
	case *bun.DB:
		return typed, nil
	case interface{ DB() *bun.DB }:
		db := typed.DB()
		if db == nil {
			return nil, fmt.Errorf("sqlstore: persistence client returned nil bun db")
		}
		return db, nil
	default:
		return nil, fmt.Errorf("sqlstore: unsupported persistence client type %T", candidate)
	}
}

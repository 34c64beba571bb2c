package sqlstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-intake/core"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
)

type TenantStore struct {
	db   *bun.DB
	repo repository.Repository[*tenantRecord]
}

func NewTenantStore(db *bun.DB) (*TenantStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*tenantRecord](db, tenantHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid tenant repository wiring: %w", err)
		}
	}
	return &TenantStore{db: db, repo: repo}, nil
}

func (s *TenantStore) Create(ctx context.Context, in core.CreateTenantInput) (core.Tenant, error) {
	if s == nil || s.db == nil {
		return core.Tenant{}, notConfigured("tenant")
	}
	record := newTenantRecord(in, time.Now().UTC())
	if record.ID == "" || record.APIKey == "" {
		return core.Tenant{}, fmt.Errorf("sqlstore: tenant id and api key are required")
	}
	if _, err := s.db.NewInsert().Model(record).Exec(ctx); err != nil {
		if isUniqueConstraintError(err) {
			return core.Tenant{}, core.ConflictError("tenant id or api key already exists", map[string]any{
				"tenant_id": record.ID,
			})
		}
		return core.Tenant{}, err
	}
	return record.toDomain(), nil
}

func (s *TenantStore) Get(ctx context.Context, id string) (core.Tenant, error) {
	return s.findOne(ctx, "id", strings.TrimSpace(id))
}

func (s *TenantStore) GetByAPIKey(ctx context.Context, apiKey string) (core.Tenant, error) {
	return s.findOne(ctx, "api_key", strings.TrimSpace(apiKey))
}

func (s *TenantStore) findOne(ctx context.Context, column string, value string) (core.Tenant, error) {
	if s == nil || s.db == nil {
		return core.Tenant{}, notConfigured("tenant")
	}
	if value == "" {
		return core.Tenant{}, notFound("tenant", value)
	}
	record, err := findTenant(ctx, s.db, column, value)
	if err != nil {
		return core.Tenant{}, err
	}
	return record.toDomain(), nil
}

func (s *TenantStore) List(ctx context.Context, filter core.TenantFilter) (core.Page[core.Tenant], error) {
	if s == nil || s.repo == nil {
		return core.Page[core.Tenant]{}, notConfigured("tenant")
	}
	page, perPage, offset := core.NormalizePaging(filter.Page, filter.PerPage)
	selectors := []repository.SelectCriteria{
		repository.OrderBy("id ASC"),
		repository.SelectPaginate(perPage, offset),
	}
	if status := strings.TrimSpace(string(filter.Status)); status != "" {
		selectors = append(selectors, repository.SelectBy("status", "=", status))
	}
	records, total, err := s.repo.List(ctx, selectors...)
	if err != nil {
		return core.Page[core.Tenant]{}, err
	}
	items := make([]core.Tenant, 0, len(records))
	for _, record := range records {
		items = append(items, record.toDomain())
	}
	return buildPage(items, page, perPage, offset, total), nil
}

func (s *TenantStore) Update(ctx context.Context, id string, in core.UpdateTenantInput) (core.Tenant, error) {
	if s == nil || s.db == nil {
		return core.Tenant{}, notConfigured("tenant")
	}
	id = strings.TrimSpace(id)
	var updated core.Tenant
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		record, err := findTenant(ctx, tx, "id", id)
		if err != nil {
			return err
		}
		if in.Name != nil {
			record.Name = strings.TrimSpace(*in.Name)
		}
		if in.ActiveFlows != nil {
			record.ActiveFlows = copyStrings(in.ActiveFlows)
		}
		if in.Status != nil {
			record.Status = string(*in.Status)
		}
		if in.Metadata != nil {
			record.Metadata = copyAnyMap(in.Metadata)
		}
		record.UpdatedAt = time.Now().UTC()
		if _, err := tx.NewUpdate().Model(record).WherePK().Exec(ctx); err != nil {
			return err
		}
		updated = record.toDomain()
		return nil
	})
	if err != nil {
		return core.Tenant{}, err
	}
	return updated, nil
}

func findTenant(ctx context.Context, db bun.IDB, column string, value string) (*tenantRecord, error) {
	record := &tenantRecord{}
	err := db.NewSelect().
		Model(record).
		Where("?TableAlias.? = ?", bun.Ident(column), value).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, notFound("tenant", value)
		}
		return nil, err
	}
	return record, nil
}

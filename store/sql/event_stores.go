package sqlstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-intake/core"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type RawEventStore struct {
	db   *bun.DB
	repo repository.Repository[*rawEventRecord]
}

func NewRawEventStore(db *bun.DB) (*RawEventStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*rawEventRecord](db, rawEventHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid raw event repository wiring: %w", err)
		}
	}
	return &RawEventStore{db: db, repo: repo}, nil
}

func (s *RawEventStore) Ingest(ctx context.Context, in core.RawEventInput) (core.RawEvent, bool, error) {
	if s == nil || s.db == nil {
		return core.RawEvent{}, false, notConfigured("raw event")
	}
	tenantID := strings.TrimSpace(in.TenantID)
	dedupKey := strings.TrimSpace(in.DedupKey)
	if tenantID == "" || dedupKey == "" {
		return core.RawEvent{}, false, fmt.Errorf("sqlstore: raw event requires tenant_id and dedup_key")
	}
	now := time.Now().UTC()
	record := &rawEventRecord{
		ID:        uuid.NewString(),
		TenantID:  tenantID,
		Source:    strings.TrimSpace(in.Source),
		DedupKey:  dedupKey,
		Payload:   append([]byte(nil), in.Payload...),
		RequestID: in.RequestID,
		CreatedAt: now,
		UpdatedAt: now,
	}

	res, err := s.db.NewInsert().
		Model(record).
		On("CONFLICT (tenant_id, dedup_key) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return core.RawEvent{}, false, err
	}
	if affected, _ := res.RowsAffected(); affected > 0 {
		return record.toDomain(), false, nil
	}

	existing := &rawEventRecord{}
	err = s.db.NewSelect().
		Model(existing).
		Where("?TableAlias.tenant_id = ?", tenantID).
		Where("?TableAlias.dedup_key = ?", dedupKey).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return core.RawEvent{}, false, err
	}
	return existing.toDomain(), true, nil
}

func (s *RawEventStore) Get(ctx context.Context, id string) (core.RawEvent, error) {
	if s == nil || s.db == nil {
		return core.RawEvent{}, notConfigured("raw event")
	}
	id = strings.TrimSpace(id)
	record := &rawEventRecord{}
	if err := s.db.NewSelect().Model(record).Where("?TableAlias.id = ?", id).Limit(1).Scan(ctx); err != nil {
		if isNoRows(err) {
			return core.RawEvent{}, notFound("raw event", id)
		}
		return core.RawEvent{}, err
	}
	return record.toDomain(), nil
}

func (s *RawEventStore) MarkProcessed(ctx context.Context, id string) (bool, error) {
	if s == nil || s.db == nil {
		return false, notConfigured("raw event")
	}
	res, err := s.db.NewUpdate().
		Model((*rawEventRecord)(nil)).
		Set("processed = ?", true).
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", strings.TrimSpace(id)).
		Where("processed = ?", false).
		Exec(ctx)
	if err != nil {
		return false, err
	}
	affected, _ := res.RowsAffected()
	return affected == 1, nil
}

func (s *RawEventStore) Release(ctx context.Context, id string) (bool, error) {
	if s == nil || s.db == nil {
		return false, notConfigured("raw event")
	}
	res, err := s.db.NewUpdate().
		Model((*rawEventRecord)(nil)).
		Set("processed = ?", false).
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", strings.TrimSpace(id)).
		Where("processed = ?", true).
		Exec(ctx)
	if err != nil {
		return false, err
	}
	affected, _ := res.RowsAffected()
	return affected == 1, nil
}

func (s *RawEventStore) ListUnprocessed(ctx context.Context, createdBefore time.Time, limit int) ([]core.RawEvent, error) {
	if s == nil || s.repo == nil {
		return nil, notConfigured("raw event")
	}
	if limit <= 0 {
		limit = core.DefaultPerPage
	}
	records, _, err := s.repo.List(ctx,
		selectProcessed(false),
		repository.SelectByTimetz("created_at", "<=", createdBefore.UTC()),
		repository.OrderBy("created_at ASC"),
		repository.SelectPaginate(limit, 0),
	)
	if err != nil {
		return nil, err
	}
	events := make([]core.RawEvent, 0, len(records))
	for _, record := range records {
		events = append(events, record.toDomain())
	}
	return events, nil
}

func (s *RawEventStore) List(ctx context.Context, filter core.EventFilter) (core.Page[core.RawEvent], error) {
	if s == nil || s.repo == nil {
		return core.Page[core.RawEvent]{}, notConfigured("raw event")
	}
	page, perPage, offset := core.NormalizePaging(filter.Page, filter.PerPage)
	selectors := eventSelectors(filter)
	if source := strings.TrimSpace(filter.Source); source != "" {
		selectors = append(selectors, repository.SelectBy("source", "=", source))
	}
	if filter.Processed != nil {
		selectors = append(selectors, selectProcessed(*filter.Processed))
	}
	selectors = append(selectors, repository.SelectPaginate(perPage, offset))

	records, total, err := s.repo.List(ctx, selectors...)
	if err != nil {
		return core.Page[core.RawEvent]{}, err
	}
	items := make([]core.RawEvent, 0, len(records))
	for _, record := range records {
		items = append(items, record.toDomain())
	}
	return buildPage(items, page, perPage, offset, total), nil
}

type NormalizedEventStore struct {
	db   *bun.DB
	repo repository.Repository[*normalizedEventRecord]
}

func NewNormalizedEventStore(db *bun.DB) (*NormalizedEventStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*normalizedEventRecord](db, normalizedEventHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid normalized event repository wiring: %w", err)
		}
	}
	return &NormalizedEventStore{db: db, repo: repo}, nil
}

func (s *NormalizedEventStore) Create(ctx context.Context, event core.NormalizedEvent) (core.NormalizedEvent, error) {
	if s == nil || s.repo == nil {
		return core.NormalizedEvent{}, notConfigured("normalized event")
	}
	record := newNormalizedEventRecord(event, time.Now().UTC())
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.TenantID == "" || record.RawEventID == "" {
		return core.NormalizedEvent{}, fmt.Errorf("sqlstore: normalized event requires tenant_id and raw_event_id")
	}
	created, err := s.repo.Create(ctx, record)
	if err != nil {
		if isUniqueConstraintError(err) {
			return core.NormalizedEvent{}, core.ConflictError("raw event already normalized", map[string]any{
				"raw_event_id": record.RawEventID,
			})
		}
		return core.NormalizedEvent{}, err
	}
	return created.toDomain(), nil
}

func (s *NormalizedEventStore) Get(ctx context.Context, id string) (core.NormalizedEvent, error) {
	if s == nil || s.db == nil {
		return core.NormalizedEvent{}, notConfigured("normalized event")
	}
	id = strings.TrimSpace(id)
	record := &normalizedEventRecord{}
	if err := s.db.NewSelect().Model(record).Where("?TableAlias.id = ?", id).Limit(1).Scan(ctx); err != nil {
		if isNoRows(err) {
			return core.NormalizedEvent{}, notFound("normalized event", id)
		}
		return core.NormalizedEvent{}, err
	}
	return record.toDomain(), nil
}

func (s *NormalizedEventStore) GetByRawEvent(ctx context.Context, rawEventID string) (core.NormalizedEvent, error) {
	if s == nil || s.db == nil {
		return core.NormalizedEvent{}, notConfigured("normalized event")
	}
	rawEventID = strings.TrimSpace(rawEventID)
	record := &normalizedEventRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.raw_event_id = ?", rawEventID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return core.NormalizedEvent{}, notFound("normalized event for raw event", rawEventID)
		}
		return core.NormalizedEvent{}, err
	}
	return record.toDomain(), nil
}

func (s *NormalizedEventStore) List(ctx context.Context, filter core.EventFilter) (core.Page[core.NormalizedEvent], error) {
	if s == nil || s.repo == nil {
		return core.Page[core.NormalizedEvent]{}, notConfigured("normalized event")
	}
	page, perPage, offset := core.NormalizePaging(filter.Page, filter.PerPage)
	selectors := eventSelectors(filter)
	if eventType := strings.TrimSpace(string(filter.EventType)); eventType != "" {
		selectors = append(selectors, repository.SelectBy("event_type", "=", eventType))
	}
	selectors = append(selectors, repository.SelectPaginate(perPage, offset))

	records, total, err := s.repo.List(ctx, selectors...)
	if err != nil {
		return core.Page[core.NormalizedEvent]{}, err
	}
	items := make([]core.NormalizedEvent, 0, len(records))
	for _, record := range records {
		items = append(items, record.toDomain())
	}
	return buildPage(items, page, perPage, offset, total), nil
}

func eventSelectors(filter core.EventFilter) []repository.SelectCriteria {
	selectors := []repository.SelectCriteria{
		repository.OrderBy("created_at DESC"),
	}
	if tenantID := strings.TrimSpace(filter.TenantID); tenantID != "" {
		selectors = append(selectors, repository.SelectBy("tenant_id", "=", tenantID))
	}
	if filter.From != nil {
		selectors = append(selectors, repository.SelectByTimetz("created_at", ">=", filter.From.UTC()))
	}
	if filter.To != nil {
		selectors = append(selectors, repository.SelectByTimetz("created_at", "<=", filter.To.UTC()))
	}
	return selectors
}

func selectProcessed(processed bool) repository.SelectCriteria {
	return repository.SelectRawProcessor(func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.Where("?TableAlias.processed = ?", processed)
	})
}

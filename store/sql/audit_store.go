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

type AuditStore struct {
	db   *bun.DB
	repo repository.Repository[*auditRecord]
}

func NewAuditStore(db *bun.DB) (*AuditStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*auditRecord](db, auditHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid audit repository wiring: %w", err)
		}
	}
	return &AuditStore{db: db, repo: repo}, nil
}

func (s *AuditStore) Append(ctx context.Context, record core.AuditRecord) error {
	if s == nil || s.repo == nil {
		return notConfigured("audit")
	}
	row := newAuditRecord(record, time.Now().UTC())
	if row.ID == "" {
		row.ID = uuid.NewString()
	}
	if row.Action == "" {
		return fmt.Errorf("sqlstore: audit action is required")
	}
	if row.Outcome == "" {
		row.Outcome = core.OutcomeSuccess
	}
	_, err := s.repo.Create(ctx, row)
	return err
}

// List returns newest records first, except when filtering by dedup key
// where the trail for one event reads oldest first.
func (s *AuditStore) List(ctx context.Context, filter core.AuditFilter) (core.Page[core.AuditRecord], error) {
	if s == nil || s.repo == nil {
		return core.Page[core.AuditRecord]{}, notConfigured("audit")
	}
	page, perPage, offset := core.NormalizePaging(filter.Page, filter.PerPage)
	order := "created_at DESC"
	if strings.TrimSpace(filter.DedupKey) != "" {
		order = "created_at ASC"
	}
	selectors := []repository.SelectCriteria{
		repository.OrderBy(order),
		repository.SelectPaginate(perPage, offset),
	}
	for column, value := range map[string]string{
		"tenant_id": filter.TenantID,
		"action":    filter.Action,
		"component": filter.Component,
		"outcome":   filter.Outcome,
		"dedup_key": filter.DedupKey,
	} {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			selectors = append(selectors, repository.SelectBy(column, "=", trimmed))
		}
	}
	selectors = append(selectors, timeRangeSelectors(filter.From, filter.To)...)

	records, total, err := s.repo.List(ctx, selectors...)
	if err != nil {
		return core.Page[core.AuditRecord]{}, err
	}
	items := make([]core.AuditRecord, 0, len(records))
	for _, record := range records {
		items = append(items, record.toDomain())
	}
	return buildPage(items, page, perPage, offset, total), nil
}

func (s *AuditStore) Prune(ctx context.Context, createdBefore time.Time) (int, error) {
	if s == nil || s.db == nil {
		return 0, notConfigured("audit")
	}
	return pruneBefore(ctx, s.db, (*auditRecord)(nil), createdBefore)
}

type ErrorStore struct {
	db   *bun.DB
	repo repository.Repository[*errorRecord]
}

func NewErrorStore(db *bun.DB) (*ErrorStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*errorRecord](db, errorHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid error record repository wiring: %w", err)
		}
	}
	return &ErrorStore{db: db, repo: repo}, nil
}

func (s *ErrorStore) Append(ctx context.Context, record core.ErrorRecord) error {
	if s == nil || s.repo == nil {
		return notConfigured("error record")
	}
	row := newErrorRecord(record, time.Now().UTC())
	if row.ID == "" {
		row.ID = uuid.NewString()
	}
	if row.Component == "" {
		row.Component = "unknown"
	}
	_, err := s.repo.Create(ctx, row)
	return err
}

func (s *ErrorStore) List(ctx context.Context, filter core.ErrorFilter) (core.Page[core.ErrorRecord], error) {
	if s == nil || s.repo == nil {
		return core.Page[core.ErrorRecord]{}, notConfigured("error record")
	}
	page, perPage, offset := core.NormalizePaging(filter.Page, filter.PerPage)
	selectors := []repository.SelectCriteria{
		repository.OrderBy("created_at DESC"),
		repository.SelectPaginate(perPage, offset),
	}
	for column, value := range map[string]string{
		"tenant_id": filter.TenantID,
		"component": filter.Component,
		"severity":  string(filter.Severity),
		"text_code": filter.TextCode,
	} {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			selectors = append(selectors, repository.SelectBy(column, "=", trimmed))
		}
	}
	selectors = append(selectors, timeRangeSelectors(filter.From, filter.To)...)

	records, total, err := s.repo.List(ctx, selectors...)
	if err != nil {
		return core.Page[core.ErrorRecord]{}, err
	}
	items := make([]core.ErrorRecord, 0, len(records))
	for _, record := range records {
		items = append(items, record.toDomain())
	}
	return buildPage(items, page, perPage, offset, total), nil
}

func (s *ErrorStore) Prune(ctx context.Context, createdBefore time.Time) (int, error) {
	if s == nil || s.db == nil {
		return 0, notConfigured("error record")
	}
	return pruneBefore(ctx, s.db, (*errorRecord)(nil), createdBefore)
}

func timeRangeSelectors(from *time.Time, to *time.Time) []repository.SelectCriteria {
	var selectors []repository.SelectCriteria
	if from != nil {
		selectors = append(selectors, repository.SelectByTimetz("created_at", ">=", from.UTC()))
	}
	if to != nil {
		selectors = append(selectors, repository.SelectByTimetz("created_at", "<=", to.UTC()))
	}
	return selectors
}

func pruneBefore(ctx context.Context, db *bun.DB, model any, createdBefore time.Time) (int, error) {
	if createdBefore.IsZero() {
		return 0, nil
	}
	res, err := db.NewDelete().
		Model(model).
		Where("created_at < ?", createdBefore.UTC()).
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	affected, _ := res.RowsAffected()
	return int(affected), nil
}

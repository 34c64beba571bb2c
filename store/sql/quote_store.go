package sqlstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-intake/core"
	"github.com/uptrace/bun"
)

type QuoteStore struct {
	db *bun.DB
}

func NewQuoteStore(db *bun.DB) (*QuoteStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	return &QuoteStore{db: db}, nil
}

func (s *QuoteStore) Get(ctx context.Context, tenantID string, id string) (core.Quote, error) {
	if s == nil || s.db == nil {
		return core.Quote{}, notConfigured("quote")
	}
	record, err := findQuote(ctx, s.db, tenantID, id)
	if err != nil {
		return core.Quote{}, err
	}
	return record.toDomain(), nil
}

// UpdateStatus moves a quote from one status to another and bumps its
// version. It reports false when the stored status no longer matches from.
func (s *QuoteStore) UpdateStatus(
	ctx context.Context,
	tenantID string,
	id string,
	from core.QuoteStatus,
	to core.QuoteStatus,
) (bool, error) {
	if s == nil || s.db == nil {
		return false, notConfigured("quote")
	}
	res, err := s.db.NewUpdate().
		Model((*quoteRecord)(nil)).
		Set("status = ?", string(to)).
		Set("version = version + 1").
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", strings.TrimSpace(id)).
		Where("tenant_id = ?", strings.TrimSpace(tenantID)).
		Where("status = ?", string(from)).
		Exec(ctx)
	if err != nil {
		return false, err
	}
	affected, _ := res.RowsAffected()
	return affected == 1, nil
}

func (s *QuoteStore) ListStaleOpen(ctx context.Context, createdBefore time.Time, limit int) ([]core.Quote, error) {
	if s == nil || s.db == nil {
		return nil, notConfigured("quote")
	}
	if limit <= 0 {
		limit = core.DefaultPerPage
	}
	var records []quoteRecord
	err := s.db.NewSelect().
		Model(&records).
		Where("?TableAlias.status = ?", string(core.QuoteStatusOpen)).
		Where("?TableAlias.reminded_at IS NULL").
		Where("?TableAlias.created_at < ?", createdBefore.UTC()).
		OrderExpr("?TableAlias.created_at ASC").
		Limit(limit).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	quotes := make([]core.Quote, 0, len(records))
	for i := range records {
		quotes = append(quotes, records[i].toDomain())
	}
	return quotes, nil
}

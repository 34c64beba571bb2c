package sqlstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-intake/core"
	"github.com/uptrace/bun"
)

// ReconciliationStore runs customer, quote and action writes in one bun
// transaction.
type ReconciliationStore struct {
	db *bun.DB
}

func NewReconciliationStore(db *bun.DB) (*ReconciliationStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	return &ReconciliationStore{db: db}, nil
}

func (s *ReconciliationStore) RunInTx(ctx context.Context, fn func(ctx context.Context, tx core.ReconciliationTx) error) error {
	if s == nil || s.db == nil {
		return notConfigured("reconciliation")
	}
	if fn == nil {
		return fmt.Errorf("sqlstore: reconciliation callback is required")
	}
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		return fn(ctx, reconciliationTx{tx: tx})
	})
}

type reconciliationTx struct {
	tx bun.Tx
}

func (t reconciliationTx) FindCustomer(ctx context.Context, tenantID string, key core.CustomerKey) (core.Customer, bool, error) {
	var column string
	switch key.Field {
	case core.CustomerKeyPhone:
		column = "phone_key"
	case core.CustomerKeyEmail:
		column = "email_key"
	default:
		return core.Customer{}, false, fmt.Errorf("sqlstore: unsupported customer key %q", key.Field)
	}
	value := strings.TrimSpace(key.Value)
	if value == "" {
		return core.Customer{}, false, nil
	}
	record := &customerRecord{}
	err := t.tx.NewSelect().
		Model(record).
		Where("?TableAlias.tenant_id = ?", strings.TrimSpace(tenantID)).
		Where("?TableAlias.? = ?", bun.Ident(column), value).
		OrderExpr("?TableAlias.created_at ASC").
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return core.Customer{}, false, nil
		}
		return core.Customer{}, false, err
	}
	return record.toDomain(), true, nil
}

func (t reconciliationTx) GetCustomer(ctx context.Context, tenantID string, id string) (core.Customer, error) {
	record := &customerRecord{}
	err := t.tx.NewSelect().
		Model(record).
		Where("?TableAlias.tenant_id = ?", strings.TrimSpace(tenantID)).
		Where("?TableAlias.id = ?", strings.TrimSpace(id)).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return core.Customer{}, notFound("customer", id)
		}
		return core.Customer{}, err
	}
	return record.toDomain(), nil
}

func (t reconciliationTx) InsertCustomer(ctx context.Context, customer core.Customer) (bool, error) {
	record := newCustomerRecord(customer, time.Now().UTC())
	if record.ID == "" || record.TenantID == "" || record.DedupKey == "" {
		return false, fmt.Errorf("sqlstore: customer requires id, tenant_id and dedup_key")
	}
	res, err := t.tx.NewInsert().
		Model(record).
		On("CONFLICT (tenant_id, dedup_key) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return false, err
	}
	affected, _ := res.RowsAffected()
	return affected == 1, nil
}

func (t reconciliationTx) UpdateCustomer(ctx context.Context, customer core.Customer) error {
	record := newCustomerRecord(customer, time.Now().UTC())
	res, err := t.tx.NewUpdate().
		Model(record).
		Column("name", "email", "phone", "address", "notes", "phone_key", "email_key", "updated_at").
		Where("id = ?", record.ID).
		Where("tenant_id = ?", record.TenantID).
		Exec(ctx)
	if err != nil {
		return err
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return notFound("customer", record.ID)
	}
	return nil
}

func (t reconciliationTx) FindLatestOpenQuote(ctx context.Context, tenantID string, customerID string) (core.Quote, bool, error) {
	record := &quoteRecord{}
	err := t.tx.NewSelect().
		Model(record).
		Where("?TableAlias.tenant_id = ?", strings.TrimSpace(tenantID)).
		Where("?TableAlias.customer_id = ?", strings.TrimSpace(customerID)).
		Where("?TableAlias.status = ?", string(core.QuoteStatusOpen)).
		OrderExpr("?TableAlias.created_at DESC").
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return core.Quote{}, false, nil
		}
		return core.Quote{}, false, err
	}
	return record.toDomain(), true, nil
}

func (t reconciliationTx) GetQuote(ctx context.Context, tenantID string, id string) (core.Quote, error) {
	record, err := findQuote(ctx, t.tx, tenantID, id)
	if err != nil {
		return core.Quote{}, err
	}
	return record.toDomain(), nil
}

func (t reconciliationTx) InsertQuote(ctx context.Context, quote core.Quote) error {
	record := newQuoteRecord(quote, time.Now().UTC())
	if record.ID == "" || record.TenantID == "" || record.CustomerID == "" {
		return fmt.Errorf("sqlstore: quote requires id, tenant_id and customer_id")
	}
	_, err := t.tx.NewInsert().Model(record).Exec(ctx)
	return err
}

func (t reconciliationTx) UpdateQuoteData(ctx context.Context, quote core.Quote, expectedVersion int) (bool, error) {
	record := newQuoteRecord(quote, time.Now().UTC())
	res, err := t.tx.NewUpdate().
		Model((*quoteRecord)(nil)).
		Set("subject = ?", record.Subject).
		Set("data = ?", record.Data).
		Set("normalized_event_id = ?", record.NormalizedEventID).
		Set("version = ?", record.Version).
		Set("updated_at = ?", record.UpdatedAt).
		Where("id = ?", record.ID).
		Where("tenant_id = ?", record.TenantID).
		Where("version = ?", expectedVersion).
		Where("status = ?", string(core.QuoteStatusOpen)).
		Exec(ctx)
	if err != nil {
		return false, err
	}
	affected, _ := res.RowsAffected()
	return affected == 1, nil
}

func (t reconciliationTx) MarkQuoteReminded(ctx context.Context, tenantID string, quoteID string, at time.Time) (bool, error) {
	res, err := t.tx.NewUpdate().
		Model((*quoteRecord)(nil)).
		Set("reminded_at = ?", at.UTC()).
		Set("updated_at = ?", at.UTC()).
		Where("id = ?", strings.TrimSpace(quoteID)).
		Where("tenant_id = ?", strings.TrimSpace(tenantID)).
		Where("status = ?", string(core.QuoteStatusOpen)).
		Where("reminded_at IS NULL").
		Exec(ctx)
	if err != nil {
		return false, err
	}
	affected, _ := res.RowsAffected()
	return affected == 1, nil
}

func (t reconciliationTx) EnqueueAction(ctx context.Context, action core.Action) error {
	record := newActionRecord(action, time.Now().UTC())
	if record.ID == "" || record.TenantID == "" || record.Kind == "" {
		return fmt.Errorf("sqlstore: action requires id, tenant_id and kind")
	}
	_, err := t.tx.NewInsert().Model(record).Exec(ctx)
	return err
}

func findQuote(ctx context.Context, db bun.IDB, tenantID string, id string) (*quoteRecord, error) {
	record := &quoteRecord{}
	err := db.NewSelect().
		Model(record).
		Where("?TableAlias.tenant_id = ?", strings.TrimSpace(tenantID)).
		Where("?TableAlias.id = ?", strings.TrimSpace(id)).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, notFound("quote", id)
		}
		return nil, err
	}
	return record, nil
}

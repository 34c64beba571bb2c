package sqlstore

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/goliatone/go-intake/core"
	"github.com/google/uuid"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
)

type ActionStore struct {
	db   *bun.DB
	repo repository.Repository[*actionRecord]
}

func NewActionStore(db *bun.DB) (*ActionStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*actionRecord](db, actionHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid action repository wiring: %w", err)
		}
	}
	return &ActionStore{db: db, repo: repo}, nil
}

func (s *ActionStore) ClaimBatch(ctx context.Context, limit int, now time.Time, staleBefore time.Time) ([]core.Action, error) {
	if s == nil || s.db == nil {
		return nil, notConfigured("action")
	}
	if limit <= 0 {
		limit = 1
	}
	now = now.UTC()
	staleBefore = staleBefore.UTC()
	token := uuid.NewString()
	var records []actionRecord
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		query := `
WITH claimed AS (
	SELECT id
	FROM intake_actions
	WHERE (
		status IN (?, ?)
		AND (next_attempt_at IS NULL OR next_attempt_at <= ?)
	) OR (
		status = ?
		AND updated_at < ?
	)
	ORDER BY created_at ASC
	LIMIT ?
)
UPDATE intake_actions
SET status = ?, claim_token = ?, updated_at = ?
WHERE id IN (SELECT id FROM claimed)
  AND (
	(status IN (?, ?) AND (next_attempt_at IS NULL OR next_attempt_at <= ?))
	OR (status = ? AND updated_at < ?)
  )
RETURNING
	id,
	tenant_id,
	normalized_event_id,
	quote_id,
	kind,
	payload,
	status,
	retry_count,
	max_retries,
	next_attempt_at,
	last_error,
	claim_token,
	created_at,
	updated_at
`
		return tx.NewRaw(
			query,
			string(core.ActionStatusPending),
			string(core.ActionStatusRetrying),
			now,
			string(core.ActionStatusSending),
			staleBefore,
			limit,
			string(core.ActionStatusSending),
			token,
			now,
			string(core.ActionStatusPending),
			string(core.ActionStatusRetrying),
			now,
			string(core.ActionStatusSending),
			staleBefore,
		).Scan(ctx, &records)
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(records, func(i, j int) bool {
		return records[i].CreatedAt.Before(records[j].CreatedAt)
	})
	actions := make([]core.Action, 0, len(records))
	for i := range records {
		actions = append(actions, records[i].toDomain())
	}
	return actions, nil
}

func (s *ActionStore) Ack(ctx context.Context, id string, claimToken string, at time.Time) (bool, error) {
	if s == nil || s.db == nil {
		return false, notConfigured("action")
	}
	if err := requireClaim(id, claimToken); err != nil {
		return false, err
	}
	res, err := s.db.NewUpdate().
		Model((*actionRecord)(nil)).
		Set("status = ?", string(core.ActionStatusSent)).
		Set("last_error = ?", "").
		Set("next_attempt_at = NULL").
		Set("claim_token = ?", "").
		Set("updated_at = ?", at.UTC()).
		Where("id = ?", strings.TrimSpace(id)).
		Where("status = ?", string(core.ActionStatusSending)).
		Where("claim_token = ?", claimToken).
		Exec(ctx)
	if err != nil {
		return false, err
	}
	affected, _ := res.RowsAffected()
	return affected == 1, nil
}

func (s *ActionStore) Retry(ctx context.Context, attempt core.ActionAttempt) (bool, error) {
	if s == nil || s.db == nil {
		return false, notConfigured("action")
	}
	if err := requireClaim(attempt.ID, attempt.ClaimToken); err != nil {
		return false, err
	}
	status := core.ActionStatusFailed
	var next *time.Time
	if !attempt.NextAttemptAt.IsZero() {
		status = core.ActionStatusRetrying
		value := attempt.NextAttemptAt.UTC()
		next = &value
	}
	lastError := ""
	if attempt.Cause != nil {
		lastError = strings.TrimSpace(attempt.Cause.Error())
	}
	at := attempt.At
	if at.IsZero() {
		at = time.Now()
	}
	update := s.db.NewUpdate().
		Model((*actionRecord)(nil)).
		Set("status = ?", string(status)).
		Set("next_attempt_at = ?", next).
		Set("last_error = ?", lastError).
		Set("claim_token = ?", "").
		Set("updated_at = ?", at.UTC())
	if !attempt.Deferred {
		update = update.Set("retry_count = retry_count + 1")
	}
	res, err := update.
		Where("id = ?", strings.TrimSpace(attempt.ID)).
		Where("status = ?", string(core.ActionStatusSending)).
		Where("claim_token = ?", attempt.ClaimToken).
		Exec(ctx)
	if err != nil {
		return false, err
	}
	affected, _ := res.RowsAffected()
	return affected == 1, nil
}

func requireClaim(id string, claimToken string) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("sqlstore: action id is required")
	}
	if strings.TrimSpace(claimToken) == "" {
		return fmt.Errorf("sqlstore: claim token is required for action %s", id)
	}
	return nil
}

// Requeue resets a failed action to pending with a fresh retry budget.
func (s *ActionStore) Requeue(ctx context.Context, tenantID string, id string) (bool, error) {
	if s == nil || s.db == nil {
		return false, notConfigured("action")
	}
	res, err := s.db.NewUpdate().
		Model((*actionRecord)(nil)).
		Set("status = ?", string(core.ActionStatusPending)).
		Set("retry_count = 0").
		Set("next_attempt_at = NULL").
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", strings.TrimSpace(id)).
		Where("tenant_id = ?", strings.TrimSpace(tenantID)).
		Where("status = ?", string(core.ActionStatusFailed)).
		Exec(ctx)
	if err != nil {
		return false, err
	}
	affected, _ := res.RowsAffected()
	return affected == 1, nil
}

func (s *ActionStore) Get(ctx context.Context, id string) (core.Action, error) {
	if s == nil || s.db == nil {
		return core.Action{}, notConfigured("action")
	}
	id = strings.TrimSpace(id)
	record := &actionRecord{}
	if err := s.db.NewSelect().Model(record).Where("?TableAlias.id = ?", id).Limit(1).Scan(ctx); err != nil {
		if isNoRows(err) {
			return core.Action{}, notFound("action", id)
		}
		return core.Action{}, err
	}
	return record.toDomain(), nil
}

func (s *ActionStore) List(ctx context.Context, filter core.ActionFilter) (core.Page[core.Action], error) {
	if s == nil || s.repo == nil {
		return core.Page[core.Action]{}, notConfigured("action")
	}
	page, perPage, offset := core.NormalizePaging(filter.Page, filter.PerPage)
	selectors := []repository.SelectCriteria{
		repository.OrderBy("created_at DESC"),
		repository.SelectPaginate(perPage, offset),
	}
	if tenantID := strings.TrimSpace(filter.TenantID); tenantID != "" {
		selectors = append(selectors, repository.SelectBy("tenant_id", "=", tenantID))
	}
	if status := strings.TrimSpace(string(filter.Status)); status != "" {
		selectors = append(selectors, repository.SelectBy("status", "=", status))
	}
	if kind := strings.TrimSpace(string(filter.Kind)); kind != "" {
		selectors = append(selectors, repository.SelectBy("kind", "=", kind))
	}
	if quoteID := strings.TrimSpace(filter.QuoteID); quoteID != "" {
		selectors = append(selectors, repository.SelectBy("quote_id", "=", quoteID))
	}

	records, total, err := s.repo.List(ctx, selectors...)
	if err != nil {
		return core.Page[core.Action]{}, err
	}
	items := make([]core.Action, 0, len(records))
	for _, record := range records {
		items = append(items, record.toDomain())
	}
	return buildPage(items, page, perPage, offset, total), nil
}

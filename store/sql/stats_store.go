package sqlstore

import (
	"context"
	"fmt"
	"time"

	"github.com/goliatone/go-intake/core"
	"github.com/uptrace/bun"
)

// StatsStore answers the counters behind the daily health report.
type StatsStore struct {
	db *bun.DB
}

func NewStatsStore(db *bun.DB) (*StatsStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	return &StatsStore{db: db}, nil
}

func (s *StatsStore) HealthCounts(ctx context.Context, since time.Time) (core.HealthCounts, error) {
	if s == nil || s.db == nil {
		return core.HealthCounts{}, notConfigured("stats")
	}
	since = since.UTC()
	var counts core.HealthCounts
	queries := []struct {
		target *int
		query  *bun.SelectQuery
	}{
		{&counts.RawEvents, s.db.NewSelect().Model((*rawEventRecord)(nil)).
			Where("?TableAlias.created_at >= ?", since)},
		{&counts.UnprocessedRaw, s.db.NewSelect().Model((*rawEventRecord)(nil)).
			Where("?TableAlias.processed = ?", false)},
		{&counts.NormalizedEvents, s.db.NewSelect().Model((*normalizedEventRecord)(nil)).
			Where("?TableAlias.created_at >= ?", since)},
		{&counts.UnknownEvents, s.db.NewSelect().Model((*normalizedEventRecord)(nil)).
			Where("?TableAlias.created_at >= ?", since).
			Where("?TableAlias.event_type = ?", string(core.EventTypeUnknown))},
		{&counts.ActionsSent, s.db.NewSelect().Model((*actionRecord)(nil)).
			Where("?TableAlias.updated_at >= ?", since).
			Where("?TableAlias.status = ?", string(core.ActionStatusSent))},
		{&counts.ActionsRetrying, s.db.NewSelect().Model((*actionRecord)(nil)).
			Where("?TableAlias.status = ?", string(core.ActionStatusRetrying))},
		{&counts.ActionsFailed, s.db.NewSelect().Model((*actionRecord)(nil)).
			Where("?TableAlias.updated_at >= ?", since).
			Where("?TableAlias.status = ?", string(core.ActionStatusFailed))},
		{&counts.ErrorRecords, s.db.NewSelect().Model((*errorRecord)(nil)).
			Where("?TableAlias.created_at >= ?", since)},
	}
	for _, q := range queries {
		count, err := q.query.Count(ctx)
		if err != nil {
			return core.HealthCounts{}, err
		}
		*q.target = count
	}
	return counts, nil
}

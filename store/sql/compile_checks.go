package sqlstore

import "github.com/goliatone/go-intake/core"

var (
	_ core.TenantStore            = (*TenantStore)(nil)
	_ core.RawEventStore          = (*RawEventStore)(nil)
	_ core.NormalizedEventStore   = (*NormalizedEventStore)(nil)
	_ core.ReconciliationStore    = (*ReconciliationStore)(nil)
	_ core.ReconciliationTx       = reconciliationTx{}
	_ core.QuoteStore             = (*QuoteStore)(nil)
	_ core.ActionStore            = (*ActionStore)(nil)
	_ core.AuditStore             = (*AuditStore)(nil)
	_ core.ErrorStore             = (*ErrorStore)(nil)
	_ core.StatsReader            = (*StatsStore)(nil)
	_ core.StoreProvider          = (*RepositoryFactory)(nil)
	_ core.RepositoryStoreFactory = (*RepositoryFactory)(nil)
)

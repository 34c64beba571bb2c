// Package core holds the intake domain: tenants, raw and normalized events,
// customers, quotes, actions, and the audit trail, together with the
// pipeline that moves an inbound payload from ingestion to delivered side
// effects. Storage, transports and queues plug in through the interfaces in
// contracts.go; core never imports them.
package core

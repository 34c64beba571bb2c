package sqlstore

import (
	"strings"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
)

// idHandlers builds repository handlers for records keyed by a string "id"
// column holding a UUID.
func idHandlers[T any](newRecord func() T, getID func(T) string, setID func(T, string)) repository.ModelHandlers[T] {
	return repository.ModelHandlers[T]{
		NewRecord: newRecord,
		GetID: func(record T) uuid.UUID {
			return parseUUID(getID(record))
		},
		SetID: func(record T, id uuid.UUID) {
			setID(record, id.String())
		},
		GetIdentifier: func() string {
			return "id"
		},
		GetIdentifierValue: func(record T) string {
			return strings.TrimSpace(getID(record))
		},
	}
}

func tenantHandlers() repository.ModelHandlers[*tenantRecord] {
	return idHandlers(
		func() *tenantRecord { return &tenantRecord{} },
		func(r *tenantRecord) string {
			if r == nil {
				return ""
			}
			return r.ID
		},
		func(r *tenantRecord, id string) {
			if r != nil {
				r.ID = id
			}
		},
	)
}

func rawEventHandlers() repository.ModelHandlers[*rawEventRecord] {
	return idHandlers(
		func() *rawEventRecord { return &rawEventRecord{} },
		func(r *rawEventRecord) string {
			if r == nil {
				return ""
			}
			return r.ID
		},
		func(r *rawEventRecord, id string) {
			if r != nil {
				r.ID = id
			}
		},
	)
}

func normalizedEventHandlers() repository.ModelHandlers[*normalizedEventRecord] {
	return idHandlers(
		func() *normalizedEventRecord { return &normalizedEventRecord{} },
		func(r *normalizedEventRecord) string {
			if r == nil {
				return ""
			}
			return r.ID
		},
		func(r *normalizedEventRecord, id string) {
			if r != nil {
				r.ID = id
			}
		},
	)
}

func actionHandlers() repository.ModelHandlers[*actionRecord] {
	return idHandlers(
		func() *actionRecord { return &actionRecord{} },
		func(r *actionRecord) string {
			if r == nil {
				return ""
			}
			return r.ID
		},
		func(r *actionRecord, id string) {
			if r != nil {
				r.ID = id
			}
		},
	)
}

func auditHandlers() repository.ModelHandlers[*auditRecord] {
	return idHandlers(
		func() *auditRecord { return &auditRecord{} },
		func(r *auditRecord) string {
			if r == nil {
				return ""
			}
			return r.ID
		},
		func(r *auditRecord, id string) {
			if r != nil {
				r.ID = id
			}
		},
	)
}

func errorHandlers() repository.ModelHandlers[*errorRecord] {
	return idHandlers(
		func() *errorRecord { return &errorRecord{} },
		func(r *errorRecord) string {
			if r == nil {
				return ""
			}
			return r.ID
		},
		func(r *errorRecord, id string) {
			if r != nil {
				r.ID = id
			}
		},
	)
}

func parseUUID(value string) uuid.UUID {
	parsed, err := uuid.Parse(strings.TrimSpace(value))
	if err != nil {
		return uuid.Nil
	}
	return parsed
}

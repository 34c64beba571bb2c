package sqlstore

import (
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-intake/core"
)

func notConfigured(store string) error {
	return fmt.Errorf("sqlstore: %s store is not configured", store)
}

func buildPage[T any](items []T, page int, perPage int, offset int, total int) core.Page[T] {
	hasNext := offset+len(items) < total
	next := ""
	if hasNext {
		next = strconv.Itoa(offset + len(items))
	}
	return core.Page[T]{
		Items:      items,
		Page:       page,
		PerPage:    perPage,
		Total:      total,
		HasNext:    hasNext,
		NextCursor: next,
	}
}

func notFound(entity string, id string) error {
	return core.NotFoundError(entity+" not found", map[string]any{"id": id})
}

func isNoRows(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, sql.ErrNoRows) {
		return true
	}
	var rich *goerrors.Error
	return goerrors.As(err, &rich) && rich.Category == goerrors.CategoryNotFound
}

func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	text := strings.ToLower(err.Error())
	return strings.Contains(text, "unique") || strings.Contains(text, "duplicate")
}

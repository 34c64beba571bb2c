package httpapi

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-intake/core"
)

type validatable interface {
	Validate() error
}

type errorBody struct {
	Error errorView `json:"error"`
}

type fieldView struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

type errorView struct {
	Code      int            `json:"code"`
	TextCode  string         `json:"text_code"`
	Category  string         `json:"category"`
	Message   string         `json:"message"`
	RequestID string         `json:"request_id,omitempty"`
	Fields    []fieldView    `json:"fields,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// abortWithError renders err through the intake error envelope.
func abortWithError(c *gin.Context, err error) {
	mapped := core.MapError(err)
	status := mapped.Code
	if status < http.StatusBadRequest || status > 599 {
		status = http.StatusInternalServerError
	}
	view := errorView{
		Code:      status,
		TextCode:  mapped.TextCode,
		Category:  string(mapped.Category),
		Message:   mapped.Message,
		RequestID: requestID(c),
	}
	for _, field := range mapped.AllValidationErrors() {
		view.Fields = append(view.Fields, fieldView{Field: field.Field, Message: field.Message})
	}
	if status < http.StatusInternalServerError {
		view.Metadata = core.RedactSensitiveMap(mapped.Metadata)
	} else if mapped.TextCode == core.ErrorInternal {
		view.Message = "An unexpected error occurred"
	}
	c.AbortWithStatusJSON(status, errorBody{Error: view})
}

// execute validates msg and runs cmd, collecting the typed result it stores.
func execute[T validatable, R any](c *gin.Context, cmd gocmd.Commander[T], msg T) (R, bool) {
	var zero R
	if err := msg.Validate(); err != nil {
		abortWithError(c, err)
		return zero, false
	}
	collector := gocmd.NewResult[R]()
	ctx := gocmd.ContextWithResult(c.Request.Context(), collector)
	if err := cmd.Execute(ctx, msg); err != nil {
		abortWithError(c, err)
		return zero, false
	}
	out, _ := collector.Load()
	return out, true
}

func ask[T validatable, R any](c *gin.Context, qry gocmd.Querier[T, R], msg T) (R, bool) {
	var zero R
	if err := msg.Validate(); err != nil {
		abortWithError(c, err)
		return zero, false
	}
	out, err := qry.Query(c.Request.Context(), msg)
	if err != nil {
		abortWithError(c, err)
		return zero, false
	}
	return out, true
}

type listParams struct {
	Page    int
	PerPage int
	From    *time.Time
	To      *time.Time
}

// parseListParams reads page, per_page, from and to query values.
func parseListParams(c *gin.Context) (listParams, error) {
	var params listParams
	var err error
	if params.Page, err = intQuery(c, "page"); err != nil {
		return listParams{}, err
	}
	if params.PerPage, err = intQuery(c, "per_page"); err != nil {
		return listParams{}, err
	}
	if params.From, err = timeQuery(c, "from"); err != nil {
		return listParams{}, err
	}
	if params.To, err = timeQuery(c, "to"); err != nil {
		return listParams{}, err
	}
	return params, nil
}

func intQuery(c *gin.Context, key string) (int, error) {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return 0, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, core.ValidationError(key, "must be an integer")
	}
	return value, nil
}

func timeQuery(c *gin.Context, key string) (*time.Time, error) {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return nil, nil
	}
	value, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, core.ValidationError(key, "must be an RFC3339 timestamp")
	}
	value = value.UTC()
	return &value, nil
}

func boolQuery(c *gin.Context, key string) (*bool, error) {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return nil, nil
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		return nil, core.ValidationError(key, "must be a boolean")
	}
	return &value, nil
}

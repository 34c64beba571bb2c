package httpapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	intakecommand "github.com/goliatone/go-intake/command"
	"github.com/goliatone/go-intake/core"
	intakequery "github.com/goliatone/go-intake/query"
)

func (h *handlers) registerAdminRoutes(admin *gin.RouterGroup) {
	tenants := admin.Group("/tenants")
	tenants.POST("", h.createTenant)
	tenants.GET("", h.listTenants)
	tenants.GET("/:tenant_id", h.getTenant)
	tenants.PATCH("/:tenant_id", h.updateTenant)
	tenants.DELETE("/:tenant_id", h.disableTenant)
	tenants.POST("/:tenant_id/quotes/:quote_id/transition", h.transitionQuote)
	tenants.POST("/:tenant_id/actions/:action_id/requeue", h.requeueAction)

	admin.GET("/audit", h.listAudit)
	admin.GET("/audit/trail", h.auditTrailFor)
	admin.GET("/errors", h.listErrors)
	admin.GET("/raw-events", h.listRawEvents)
	admin.GET("/normalized-events", h.listNormalizedEvents)
	admin.GET("/actions", h.listActions)
	admin.POST("/jobs/:job_id/run", h.runJobNow)
}

type createTenantRequest struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	APIKey      string         `json:"api_key"`
	ActiveFlows []string       `json:"active_flows"`
	Status      string         `json:"status"`
	Metadata    map[string]any `json:"metadata"`
}

type updateTenantRequest struct {
	Name        *string        `json:"name"`
	ActiveFlows []string       `json:"active_flows"`
	Status      *string        `json:"status"`
	Metadata    map[string]any `json:"metadata"`
}

type transitionRequest struct {
	Status string `json:"status"`
}

func (h *handlers) createTenant(c *gin.Context) {
	var req createTenantRequest
	if !bindJSON(c, &req) {
		return
	}
	tenant, ok := execute[intakecommand.CreateTenantMessage, core.Tenant](c, h.createTenantCmd, intakecommand.CreateTenantMessage{
		Input: core.CreateTenantInput{
			ID:          strings.TrimSpace(req.ID),
			Name:        req.Name,
			APIKey:      strings.TrimSpace(req.APIKey),
			ActiveFlows: req.ActiveFlows,
			Status:      core.TenantStatus(strings.TrimSpace(req.Status)),
			Metadata:    req.Metadata,
		},
	})
	if !ok {
		return
	}
	c.JSON(http.StatusCreated, tenantViewOf(tenant, true))
}

func (h *handlers) listTenants(c *gin.Context) {
	params, err := parseListParams(c)
	if err != nil {
		abortWithError(c, err)
		return
	}
	page, ok := ask[intakequery.ListTenantsMessage, core.Page[core.Tenant]](c, h.listTenantsQry, intakequery.ListTenantsMessage{
		Filter: core.TenantFilter{
			Status:  core.TenantStatus(strings.TrimSpace(c.Query("status"))),
			Page:    params.Page,
			PerPage: params.PerPage,
		},
	})
	if !ok {
		return
	}
	c.JSON(http.StatusOK, toPageView(page, func(t core.Tenant) tenantView { return tenantViewOf(t, false) }))
}

func (h *handlers) getTenant(c *gin.Context) {
	tenant, ok := ask[intakequery.GetTenantMessage, core.Tenant](c, h.getTenantQry, intakequery.GetTenantMessage{
		TenantID: c.Param("tenant_id"),
	})
	if !ok {
		return
	}
	c.JSON(http.StatusOK, tenantViewOf(tenant, false))
}

func (h *handlers) updateTenant(c *gin.Context) {
	var req updateTenantRequest
	if !bindJSON(c, &req) {
		return
	}
	input := core.UpdateTenantInput{
		Name:        req.Name,
		ActiveFlows: req.ActiveFlows,
		Metadata:    req.Metadata,
	}
	if req.Status != nil {
		status := core.TenantStatus(strings.TrimSpace(*req.Status))
		input.Status = &status
	}
	tenant, ok := execute[intakecommand.UpdateTenantMessage, core.Tenant](c, h.updateTenantCmd, intakecommand.UpdateTenantMessage{
		TenantID: c.Param("tenant_id"),
		Input:    input,
	})
	if !ok {
		return
	}
	c.JSON(http.StatusOK, tenantViewOf(tenant, false))
}

func (h *handlers) disableTenant(c *gin.Context) {
	tenant, ok := execute[intakecommand.DisableTenantMessage, core.Tenant](c, h.disableTenantCmd, intakecommand.DisableTenantMessage{
		TenantID: c.Param("tenant_id"),
	})
	if !ok {
		return
	}
	c.JSON(http.StatusOK, tenantViewOf(tenant, false))
}

func (h *handlers) transitionQuote(c *gin.Context) {
	var req transitionRequest
	if !bindJSON(c, &req) {
		return
	}
	quote, ok := execute[intakecommand.TransitionQuoteMessage, core.Quote](c, h.transitionCmd, intakecommand.TransitionQuoteMessage{
		TenantID: c.Param("tenant_id"),
		QuoteID:  c.Param("quote_id"),
		Status:   core.QuoteStatus(strings.ToLower(strings.TrimSpace(req.Status))),
	})
	if !ok {
		return
	}
	c.JSON(http.StatusOK, quoteViewOf(quote))
}

func (h *handlers) requeueAction(c *gin.Context) {
	action, ok := execute[intakecommand.RequeueActionMessage, core.Action](c, h.requeueCmd, intakecommand.RequeueActionMessage{
		TenantID: c.Param("tenant_id"),
		ActionID: c.Param("action_id"),
	})
	if !ok {
		return
	}
	c.JSON(http.StatusOK, actionViewOf(action))
}

func (h *handlers) listAudit(c *gin.Context) {
	params, err := parseListParams(c)
	if err != nil {
		abortWithError(c, err)
		return
	}
	page, ok := ask[intakequery.ListAuditRecordsMessage, core.Page[core.AuditRecord]](c, h.auditsQry, intakequery.ListAuditRecordsMessage{
		Filter: core.AuditFilter{
			TenantID:  strings.TrimSpace(c.Query("tenant_id")),
			Action:    strings.TrimSpace(c.Query("action")),
			Component: strings.TrimSpace(c.Query("component")),
			Outcome:   strings.TrimSpace(c.Query("outcome")),
			DedupKey:  strings.TrimSpace(c.Query("dedup_key")),
			From:      params.From,
			To:        params.To,
			Page:      params.Page,
			PerPage:   params.PerPage,
		},
	})
	if !ok {
		return
	}
	c.JSON(http.StatusOK, toPageView(page, auditViewOf))
}

func (h *handlers) auditTrailFor(c *gin.Context) {
	params, err := parseListParams(c)
	if err != nil {
		abortWithError(c, err)
		return
	}
	page, ok := ask[intakequery.AuditTrailMessage, core.Page[core.AuditRecord]](c, h.auditTrailQry, intakequery.AuditTrailMessage{
		TenantID: strings.TrimSpace(c.Query("tenant_id")),
		DedupKey: strings.TrimSpace(c.Query("dedup_key")),
		Page:     params.Page,
		PerPage:  params.PerPage,
	})
	if !ok {
		return
	}
	c.JSON(http.StatusOK, toPageView(page, auditViewOf))
}

func (h *handlers) listErrors(c *gin.Context) {
	params, err := parseListParams(c)
	if err != nil {
		abortWithError(c, err)
		return
	}
	page, ok := ask[intakequery.ListErrorRecordsMessage, core.Page[core.ErrorRecord]](c, h.errorsQry, intakequery.ListErrorRecordsMessage{
		Filter: core.ErrorFilter{
			TenantID:  strings.TrimSpace(c.Query("tenant_id")),
			Component: strings.TrimSpace(c.Query("component")),
			Severity:  core.ErrorSeverity(strings.TrimSpace(c.Query("severity"))),
			TextCode:  strings.TrimSpace(c.Query("text_code")),
			From:      params.From,
			To:        params.To,
			Page:      params.Page,
			PerPage:   params.PerPage,
		},
	})
	if !ok {
		return
	}
	c.JSON(http.StatusOK, toPageView(page, errorRecordViewOf))
}

func (h *handlers) listRawEvents(c *gin.Context) {
	filter, ok := eventFilterFrom(c)
	if !ok {
		return
	}
	page, ok := ask[intakequery.ListRawEventsMessage, core.Page[core.RawEvent]](c, h.rawEventsQry, intakequery.ListRawEventsMessage{Filter: filter})
	if !ok {
		return
	}
	c.JSON(http.StatusOK, toPageView(page, rawEventViewOf))
}

func (h *handlers) listNormalizedEvents(c *gin.Context) {
	filter, ok := eventFilterFrom(c)
	if !ok {
		return
	}
	page, ok := ask[intakequery.ListNormalizedEventsMessage, core.Page[core.NormalizedEvent]](c, h.normalizedQry, intakequery.ListNormalizedEventsMessage{Filter: filter})
	if !ok {
		return
	}
	c.JSON(http.StatusOK, toPageView(page, normalizedEventViewOf))
}

func (h *handlers) listActions(c *gin.Context) {
	params, err := parseListParams(c)
	if err != nil {
		abortWithError(c, err)
		return
	}
	page, ok := ask[intakequery.ListActionsMessage, core.Page[core.Action]](c, h.actionsQry, intakequery.ListActionsMessage{
		Filter: core.ActionFilter{
			TenantID: strings.TrimSpace(c.Query("tenant_id")),
			Status:   core.ActionStatus(strings.TrimSpace(c.Query("status"))),
			Kind:     core.ActionKind(strings.TrimSpace(c.Query("kind"))),
			QuoteID:  strings.TrimSpace(c.Query("quote_id")),
			Page:     params.Page,
			PerPage:  params.PerPage,
		},
	})
	if !ok {
		return
	}
	c.JSON(http.StatusOK, toPageView(page, actionViewOf))
}

type jobRunView struct {
	JobID string    `json:"job_id"`
	At    time.Time `json:"at"`
}

// runJobNow executes a scheduled job synchronously, outside its cadence.
func (h *handlers) runJobNow(c *gin.Context) {
	msg := intakecommand.RunScheduledJobMessage{JobID: strings.TrimSpace(c.Param("job_id"))}
	at, err := timeQuery(c, "at")
	if err != nil {
		abortWithError(c, err)
		return
	}
	msg.At = h.clock().UTC()
	if at != nil {
		msg.At = *at
	}
	if _, ok := execute[intakecommand.RunScheduledJobMessage, struct{}](c, h.runJobCmd, msg); !ok {
		return
	}
	h.logger.Info("scheduled job run on demand", "job_id", msg.JobID, "at", msg.At, "request_id", requestID(c))
	c.JSON(http.StatusOK, jobRunView{JobID: msg.JobID, At: msg.At})
}

func eventFilterFrom(c *gin.Context) (core.EventFilter, bool) {
	params, err := parseListParams(c)
	if err != nil {
		abortWithError(c, err)
		return core.EventFilter{}, false
	}
	processed, err := boolQuery(c, "processed")
	if err != nil {
		abortWithError(c, err)
		return core.EventFilter{}, false
	}
	return core.EventFilter{
		TenantID:  strings.TrimSpace(c.Query("tenant_id")),
		Source:    strings.ToLower(strings.TrimSpace(c.Query("source"))),
		EventType: core.EventType(strings.TrimSpace(c.Query("event_type"))),
		Processed: processed,
		From:      params.From,
		To:        params.To,
		Page:      params.Page,
		PerPage:   params.PerPage,
	}, true
}

func bindJSON(c *gin.Context, target any) bool {
	if err := c.ShouldBindJSON(target); err != nil {
		abortWithError(c, core.ValidationError("body", "invalid JSON payload"))
		return false
	}
	return true
}

// Package httpapi exposes event ingestion and the admin surface over HTTP.
package httpapi

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	intakecommand "github.com/goliatone/go-intake/command"
	"github.com/goliatone/go-intake/core"
	intakequery "github.com/goliatone/go-intake/query"
	glog "github.com/goliatone/go-logger/glog"
)

const (
	HeaderAPIKey         = "X-API-Key"
	HeaderAdminToken     = "X-Admin-Token"
	HeaderRequestID      = "X-Request-Id"
	HeaderIdempotencyKey = "Idempotency-Key"
	HeaderSource         = "X-Intake-Source"

	defaultMaxBodyBytes int64 = 1 << 20
)

type Options struct {
	// AdminToken guards /v1/admin. An empty token disables the admin routes.
	AdminToken   string
	MaxBodyBytes int64
	// Ready reports dependency health for /ready.
	Ready  func(ctx context.Context) error
	Logger glog.Logger
	Clock  func() time.Time
}

type handlers struct {
	logger  glog.Logger
	maxBody int64
	clock   func() time.Time

	submitCmd        *intakecommand.SubmitEventCommand
	createTenantCmd  *intakecommand.CreateTenantCommand
	updateTenantCmd  *intakecommand.UpdateTenantCommand
	disableTenantCmd *intakecommand.DisableTenantCommand
	transitionCmd    *intakecommand.TransitionQuoteCommand
	requeueCmd       *intakecommand.RequeueActionCommand
	runJobCmd        *intakecommand.RunScheduledJobCommand

	getTenantQry   *intakequery.GetTenantQuery
	listTenantsQry *intakequery.ListTenantsQuery
	auditTrailQry  *intakequery.AuditTrailQuery
	auditsQry      *intakequery.ListAuditRecordsQuery
	errorsQry      *intakequery.ListErrorRecordsQuery
	rawEventsQry   *intakequery.ListRawEventsQuery
	normalizedQry  *intakequery.ListNormalizedEventsQuery
	actionsQry     *intakequery.ListActionsQuery
}

// NewRouter wires the public health routes, tenant ingestion and the admin API.
func NewRouter(svc *core.Service, opts Options) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	_, logger := glog.Resolve("intake.httpapi", nil, opts.Logger)
	logger = glog.Ensure(logger)
	maxBody := opts.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = defaultMaxBodyBytes
	}
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}

	h := &handlers{
		logger:  logger,
		maxBody: maxBody,
		clock:   clock,

		submitCmd:        intakecommand.NewSubmitEventCommand(svc),
		createTenantCmd:  intakecommand.NewCreateTenantCommand(svc),
		updateTenantCmd:  intakecommand.NewUpdateTenantCommand(svc),
		disableTenantCmd: intakecommand.NewDisableTenantCommand(svc),
		transitionCmd:    intakecommand.NewTransitionQuoteCommand(svc),
		requeueCmd:       intakecommand.NewRequeueActionCommand(svc),
		runJobCmd:        intakecommand.NewRunScheduledJobCommand(svc, clock),

		getTenantQry:   intakequery.NewGetTenantQuery(svc),
		listTenantsQry: intakequery.NewListTenantsQuery(svc),
		auditTrailQry:  intakequery.NewAuditTrailQuery(svc),
		auditsQry:      intakequery.NewListAuditRecordsQuery(svc),
		errorsQry:      intakequery.NewListErrorRecordsQuery(svc),
		rawEventsQry:   intakequery.NewListRawEventsQuery(svc),
		normalizedQry:  intakequery.NewListNormalizedEventsQuery(svc),
		actionsQry:     intakequery.NewListActionsQuery(svc),
	}

	r := gin.New()
	r.Use(gin.Recovery(), requestIDMiddleware(), accessLogMiddleware(logger))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/ready", func(c *gin.Context) {
		if opts.Ready != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
			defer cancel()
			if err := opts.Ready(ctx); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready", "error": err.Error()})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})

	v1 := r.Group("/v1")
	ingest := v1.Group("")
	ingest.Use(tenantAuthMiddleware(svc))
	ingest.POST("/events", h.postEvent)

	if token := strings.TrimSpace(opts.AdminToken); token != "" {
		admin := v1.Group("/admin")
		admin.Use(adminAuthMiddleware(token))
		h.registerAdminRoutes(admin)
	}
	return r
}

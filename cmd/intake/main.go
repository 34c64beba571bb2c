// Command intake runs the multi-tenant intake service: HTTP ingestion, the
// processing pool, the action scheduler and the periodic maintenance jobs.
package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/goliatone/go-command"
	"github.com/goliatone/go-intake/adapters/gocommand"
	"github.com/goliatone/go-intake/adapters/gologger"
	"github.com/goliatone/go-intake/adapters/kafka"
	"github.com/goliatone/go-intake/adapters/otelmetrics"
	"github.com/goliatone/go-intake/adapters/slack"
	"github.com/goliatone/go-intake/config"
	"github.com/goliatone/go-intake/core"
	"github.com/goliatone/go-intake/httpapi"
	intakemigrations "github.com/goliatone/go-intake/migrations"
	"github.com/goliatone/go-intake/ratelimit"
	sqlstore "github.com/goliatone/go-intake/store/sql"
	"github.com/goliatone/go-intake/transport"
	glog "github.com/goliatone/go-logger/glog"
	persistence "github.com/goliatone/go-persistence-bun"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/schema"
)

func main() {
	configPath := flag.String("config", envOr("INTAKE_CONFIG", "intake.yaml"), "path to the YAML configuration file")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *configPath); err != nil {
		fmt.Fprintf(os.Stderr, "intake: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, configPath string) error {
	app, err := config.Load(ctx, configPath)
	if err != nil {
		return err
	}

	provider := gologger.NewRoot(os.Stdout, app.Log.Level, app.Log.Format)
	loggers := gologger.Components(provider, nil, "main", "httpapi")
	logger := loggers["main"]

	client, err := openDatabase(ctx, app.Database)
	if err != nil {
		return err
	}
	defer func() { _ = client.Close() }()

	options, closers, err := buildOptions(app, provider, client)
	defer func() {
		for _, closeFn := range closers {
			if closeErr := closeFn(); closeErr != nil {
				logger.Warn("close dependency failed", "error", closeErr)
			}
		}
	}()
	if err != nil {
		return err
	}

	svc, err := core.NewService(app.Intake, options...)
	if err != nil {
		return fmt.Errorf("build service: %w", err)
	}

	bus := gocommand.NewBus(command.NewRegistry())
	subs, err := gocommand.RegisterIntake(bus, svc, nil)
	if err != nil {
		return fmt.Errorf("register command bus: %w", err)
	}
	defer subs.Unsubscribe()
	if err := bus.Initialize(); err != nil {
		return fmt.Errorf("initialize command bus: %w", err)
	}

	if err := svc.Start(ctx); err != nil {
		return fmt.Errorf("start service: %w", err)
	}

	router := httpapi.NewRouter(svc, httpapi.Options{
		AdminToken:   app.HTTP.AdminToken,
		MaxBodyBytes: app.HTTP.MaxBodyBytes,
		Logger:       loggers["httpapi"],
		Ready: func(ctx context.Context) error {
			return client.DB().PingContext(ctx)
		},
	})
	server := &http.Server{
		Addr:              app.HTTP.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       app.HTTP.ReadTimeout,
		WriteTimeout:      app.HTTP.WriteTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("http server listening", "addr", app.HTTP.Addr, "environment", app.Intake.Environment)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown requested")
	case err := <-serveErr:
		if err != nil {
			logger.Error("http server failed", "error", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), app.HTTP.ShutdownTimeout)
	defer cancel()
	var shutdownErr error
	if err := server.Shutdown(shutdownCtx); err != nil {
		shutdownErr = errors.Join(shutdownErr, fmt.Errorf("http shutdown: %w", err))
	}
	if err := svc.Stop(shutdownCtx); err != nil {
		shutdownErr = errors.Join(shutdownErr, fmt.Errorf("service stop: %w", err))
	}
	if shutdownErr != nil {
		return shutdownErr
	}
	logger.Info("shutdown complete")
	return nil
}

// buildOptions wires storage, collaborators and telemetry into service
// options. The returned closers run even when an error is returned.
func buildOptions(app config.App, provider glog.LoggerProvider, client *persistence.Client) ([]core.Option, []func() error, error) {
	var closers []func() error
	httpClient := &http.Client{Timeout: 30 * time.Second}

	var factoryOpts []sqlstore.FactoryOption
	if app.Cache.TenantTTL > 0 {
		cacheConfig := repositorycache.DefaultConfig()
		cacheConfig.TTL = app.Cache.TenantTTL
		cacheService, err := repositorycache.NewCacheService(cacheConfig)
		if err != nil {
			return nil, closers, fmt.Errorf("tenant cache: %w", err)
		}
		factoryOpts = append(factoryOpts, sqlstore.WithTenantCache(cacheService))
	}

	options := []core.Option{
		core.WithLoggerProvider(provider),
		core.WithRepositoryFactory(sqlstore.NewRepositoryFactory(factoryOpts...), client),
	}

	if endpoint := strings.TrimSpace(app.Classifier.Endpoint); endpoint != "" {
		classifier := transport.NewHTTPClassifier(endpoint, httpClient)
		classifier.Timeout = app.Classifier.Timeout
		classifier.Headers = app.Classifier.Headers
		options = append(options, core.WithClassifier(classifier))
	}

	var webhookOpts []transport.WebhookOption
	if app.RateLimit.Enabled {
		policy := ratelimit.NewAdaptivePolicy(ratelimit.NewMemoryStateStore())
		if app.RateLimit.InitialBackoff > 0 {
			policy.InitialBackoff = app.RateLimit.InitialBackoff
		}
		if app.RateLimit.MaxBackoff > 0 {
			policy.MaxBackoff = app.RateLimit.MaxBackoff
		}
		webhookOpts = append(webhookOpts, transport.WithThrottle(policy))
	}
	senderRegistry := transport.NewDefaultRegistry(httpClient, webhookOpts...)
	if app.Kafka.Enabled() {
		writer, err := kafka.NewWriter(app.Kafka.Config)
		if err != nil {
			return nil, closers, fmt.Errorf("kafka writer: %w", err)
		}
		closers = append(closers, writer.Close)
		if err := senderRegistry.Register(kafka.SenderType, kafka.SenderFactory(writer, app.Kafka.ActionTopicPrefix)); err != nil {
			return nil, closers, err
		}
		if app.Kafka.PublishAudit {
			publisher, err := kafka.NewAuditPublisher(writer, app.Kafka.AuditTopic)
			if err != nil {
				return nil, closers, fmt.Errorf("kafka audit publisher: %w", err)
			}
			options = append(options, core.WithAuditSink(publisher))
		}
	}

	senders, err := senderRegistry.BuildSenders(withUnsupportedDefaults(app.Senders))
	if err != nil {
		return nil, closers, fmt.Errorf("action senders: %w", err)
	}
	for kind, sender := range senders {
		options = append(options, core.WithSender(kind, sender))
	}

	if app.Slack.Enabled() {
		alerts, err := slack.NewAlertSender(app.Slack, &http.Client{Timeout: app.Intake.Alerts.Timeout})
		if err != nil {
			return nil, closers, fmt.Errorf("slack alerts: %w", err)
		}
		options = append(options, core.WithAlertSender(alerts))
	}

	if app.Metrics.Enabled {
		options = append(options, core.WithMetricsRecorder(otelmetrics.NewRecorder(nil)))
	}
	return options, closers, nil
}

// withUnsupportedDefaults fills every action kind without a configured
// sender so its actions fail visibly instead of panicking the dispatcher.
func withUnsupportedDefaults(specs map[string]transport.SenderSpec) map[string]transport.SenderSpec {
	out := make(map[string]transport.SenderSpec, len(specs)+2)
	for kind, spec := range specs {
		out[kind] = spec
	}
	for _, kind := range []core.ActionKind{core.ActionKindNotifyCustomer, core.ActionKindUpdateDocument} {
		if _, ok := out[string(kind)]; ok {
			continue
		}
		out[string(kind)] = transport.SenderSpec{
			Type:   transport.SenderUnsupported,
			Config: map[string]any{"reason": "no sender configured for " + string(kind)},
		}
	}
	return out
}

type databaseConfig struct {
	config.DatabaseConfig
}

func (c databaseConfig) GetDebug() bool                { return c.Debug }
func (c databaseConfig) GetDriver() string             { return driverName(c.Driver) }
func (c databaseConfig) GetServer() string             { return c.DSN }
func (c databaseConfig) GetPingTimeout() time.Duration { return 5 * time.Second }
func (c databaseConfig) GetOtelIdentifier() string     { return "go-intake" }

func driverName(driver string) string {
	if strings.EqualFold(strings.TrimSpace(driver), config.DriverPostgres) {
		return "postgres"
	}
	return "sqlite3"
}

// openDatabase opens the configured database and applies the embedded
// migrations of the matching dialect when auto_migrate is set.
func openDatabase(ctx context.Context, cfg config.DatabaseConfig) (*persistence.Client, error) {
	driver := driverName(cfg.Driver)
	sqlDB, err := sql.Open(driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}

	var dialect schema.Dialect = sqlitedialect.New()
	migrationDialect := intakemigrations.DialectSQLite
	if driver == "postgres" {
		dialect = pgdialect.New()
		migrationDialect = intakemigrations.DialectPostgres
	}

	client, err := persistence.New(databaseConfig{cfg}, sqlDB, dialect)
	if err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("persistence client: %w", err)
	}
	if !cfg.AutoMigrate {
		return client, nil
	}
	_, err = intakemigrations.Register(ctx, func(_ context.Context, name string, _ string, fsys fs.FS) error {
		if name == migrationDialect {
			client.RegisterSQLMigrations(fsys)
		}
		return nil
	}, intakemigrations.WithDialects(migrationDialect))
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("register migrations: %w", err)
	}
	if err := client.Migrate(ctx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return client, nil
}

func envOr(key string, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}

package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/goliatone/go-config/cfgx"
	"github.com/goliatone/go-intake/core"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

const EnvPrefix = "INTAKE"

// FileLoader reads a YAML document into a raw map. A missing file yields an
// empty map unless Required is set.
type FileLoader struct {
	Path     string
	Required bool
}

func (l FileLoader) LoadRaw(context.Context) (map[string]any, error) {
	path := strings.TrimSpace(l.Path)
	if path == "" {
		return map[string]any{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && !l.Required {
			return map[string]any{}, nil
		}
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	raw := map[string]any{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return raw, nil
}

// SectionLoader serves one top-level section of another loader's map, so
// the intake section can feed core.CfgxConfigProvider directly.
type SectionLoader struct {
	Source interface {
		LoadRaw(ctx context.Context) (map[string]any, error)
	}
	Section string
}

func (l SectionLoader) LoadRaw(ctx context.Context) (map[string]any, error) {
	if l.Source == nil {
		return map[string]any{}, nil
	}
	raw, err := l.Source.LoadRaw(ctx)
	if err != nil {
		return nil, err
	}
	section, ok := raw[l.Section].(map[string]any)
	if !ok {
		return map[string]any{}, nil
	}
	return section, nil
}

// coreEnv lists the pipeline settings that can be overridden from the
// environment without a config file.
type coreEnv struct {
	ServiceName       string        `envconfig:"SERVICE_NAME"`
	Environment       string        `envconfig:"ENVIRONMENT"`
	DefaultFlowID     string        `envconfig:"DEFAULT_FLOW_ID"`
	ClassifierTimeout time.Duration `envconfig:"CLASSIFIER_TIMEOUT"`
	MaxRetries        int           `envconfig:"ACTIONS_MAX_RETRIES"`
	PipelineWorkers   int           `envconfig:"PIPELINE_WORKERS"`
	AlertMinSeverity  string        `envconfig:"ALERTS_MIN_SEVERITY"`
}

// Load builds App from defaults, the YAML file at path and the environment,
// in that order of precedence.
func Load(ctx context.Context, path string) (App, error) {
	raw, err := FileLoader{Path: path}.LoadRaw(ctx)
	if err != nil {
		return App{}, err
	}
	app, err := cfgx.Build[App](raw, cfgx.WithDefaults(Defaults()))
	if err != nil {
		return App{}, fmt.Errorf("config: decode: %w", err)
	}
	if err := ApplyEnv(&app); err != nil {
		return App{}, err
	}
	if err := app.Validate(); err != nil {
		return App{}, err
	}
	return app, nil
}

// ApplyEnv overlays INTAKE_* variables section by section.
func ApplyEnv(app *App) error {
	if app == nil {
		return nil
	}
	sections := []struct {
		prefix string
		target any
	}{
		{EnvPrefix + "_LOG", &app.Log},
		{EnvPrefix + "_HTTP", &app.HTTP},
		{EnvPrefix + "_DATABASE", &app.Database},
		{EnvPrefix + "_CACHE", &app.Cache},
		{EnvPrefix + "_CLASSIFIER", &app.Classifier},
		{EnvPrefix + "_SLACK", &app.Slack},
		{EnvPrefix + "_KAFKA", &app.Kafka},
		{EnvPrefix + "_RATE_LIMIT", &app.RateLimit},
		{EnvPrefix + "_METRICS", &app.Metrics},
	}
	for _, section := range sections {
		if err := envconfig.Process(section.prefix, section.target); err != nil {
			return fmt.Errorf("config: env %s: %w", section.prefix, err)
		}
	}

	var env coreEnv
	if err := envconfig.Process(EnvPrefix, &env); err != nil {
		return fmt.Errorf("config: env %s: %w", EnvPrefix, err)
	}
	if env.ServiceName != "" {
		app.Intake.ServiceName = env.ServiceName
	}
	if env.Environment != "" {
		app.Intake.Environment = env.Environment
	}
	if env.DefaultFlowID != "" {
		app.Intake.DefaultFlowID = env.DefaultFlowID
	}
	if env.ClassifierTimeout > 0 {
		app.Intake.ClassifierTimeout = env.ClassifierTimeout
	}
	if env.MaxRetries > 0 {
		app.Intake.Actions.MaxRetries = env.MaxRetries
	}
	if env.PipelineWorkers > 0 {
		app.Intake.Pipeline.Workers = env.PipelineWorkers
	}
	if env.AlertMinSeverity != "" {
		app.Intake.Alerts.MinSeverity = core.ErrorSeverity(strings.ToLower(env.AlertMinSeverity))
	}
	return nil
}

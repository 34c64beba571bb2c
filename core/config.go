package core

import (
	"fmt"
	"strings"
	"time"
)

const DefaultFlowID = "quote_intake"

type DedupPriority string

const (
	DedupPhoneFirst DedupPriority = "phone_first"
	DedupEmailFirst DedupPriority = "email_first"
)

type ReconcileConfig struct {
	DedupPriority DedupPriority `koanf:"dedup_priority" mapstructure:"dedup_priority"`
}

type BackoffConfig struct {
	Initial    time.Duration   `koanf:"initial" mapstructure:"initial"`
	Max        time.Duration   `koanf:"max" mapstructure:"max"`
	Multiplier float64         `koanf:"multiplier" mapstructure:"multiplier"`
	Jitter     float64         `koanf:"jitter" mapstructure:"jitter"`
	Schedule   []time.Duration `koanf:"schedule" mapstructure:"schedule"`
}

type ActionsConfig struct {
	MaxRetries   int           `koanf:"max_retries" mapstructure:"max_retries"`
	BatchSize    int           `koanf:"batch_size" mapstructure:"batch_size"`
	SendTimeout  time.Duration `koanf:"send_timeout" mapstructure:"send_timeout"`
	SendingLease time.Duration `koanf:"sending_lease" mapstructure:"sending_lease"`
	Backoff      BackoffConfig `koanf:"backoff" mapstructure:"backoff"`
}

type PipelineConfig struct {
	Workers       int           `koanf:"workers" mapstructure:"workers"`
	QueueSize     int           `koanf:"queue_size" mapstructure:"queue_size"`
	SweepInterval time.Duration `koanf:"sweep_interval" mapstructure:"sweep_interval"`
	SweepGrace    time.Duration `koanf:"sweep_grace" mapstructure:"sweep_grace"`
	SweepLimit    int           `koanf:"sweep_limit" mapstructure:"sweep_limit"`
}

type WorkersConfig struct {
	DrainInterval    time.Duration `koanf:"drain_interval" mapstructure:"drain_interval"`
	DrainJitter      time.Duration `koanf:"drain_jitter" mapstructure:"drain_jitter"`
	ReminderInterval time.Duration `koanf:"reminder_interval" mapstructure:"reminder_interval"`
	ReminderAge      time.Duration `koanf:"reminder_age" mapstructure:"reminder_age"`
	ReminderLimit    int           `koanf:"reminder_limit" mapstructure:"reminder_limit"`
	HealthReportCron string        `koanf:"health_report_cron" mapstructure:"health_report_cron"`
	RetentionTTL     time.Duration `koanf:"retention_ttl" mapstructure:"retention_ttl"`
}

type AlertsConfig struct {
	MinSeverity ErrorSeverity `koanf:"min_severity" mapstructure:"min_severity"`
	Timeout     time.Duration `koanf:"timeout" mapstructure:"timeout"`
}

type Config struct {
	ServiceName       string          `koanf:"service_name" mapstructure:"service_name"`
	Environment       string          `koanf:"environment" mapstructure:"environment"`
	DefaultFlowID     string          `koanf:"default_flow_id" mapstructure:"default_flow_id"`
	ClassifierTimeout time.Duration   `koanf:"classifier_timeout" mapstructure:"classifier_timeout"`
	Reconcile         ReconcileConfig `koanf:"reconcile" mapstructure:"reconcile"`
	Actions           ActionsConfig   `koanf:"actions" mapstructure:"actions"`
	Pipeline          PipelineConfig  `koanf:"pipeline" mapstructure:"pipeline"`
	Workers           WorkersConfig   `koanf:"workers" mapstructure:"workers"`
	Alerts            AlertsConfig    `koanf:"alerts" mapstructure:"alerts"`
}

func DefaultConfig() Config {
	return Config{
		ServiceName:       "intake",
		Environment:       "development",
		DefaultFlowID:     DefaultFlowID,
		ClassifierTimeout: 10 * time.Second,
		Reconcile: ReconcileConfig{
			DedupPriority: DedupPhoneFirst,
		},
		Actions: ActionsConfig{
			MaxRetries:   3,
			BatchSize:    50,
			SendTimeout:  15 * time.Second,
			SendingLease: 15 * time.Minute,
			Backoff: BackoffConfig{
				Initial:    30 * time.Second,
				Max:        30 * time.Minute,
				Multiplier: 2,
				Jitter:     0.2,
			},
		},
		Pipeline: PipelineConfig{
			Workers:       4,
			QueueSize:     256,
			SweepInterval: time.Minute,
			SweepGrace:    2 * time.Minute,
			SweepLimit:    100,
		},
		Workers: WorkersConfig{
			DrainInterval:    30 * time.Second,
			DrainJitter:      5 * time.Second,
			ReminderInterval: 6 * time.Hour,
			ReminderAge:      7 * 24 * time.Hour,
			ReminderLimit:    100,
			HealthReportCron: "0 7 * * *",
			RetentionTTL:     90 * 24 * time.Hour,
		},
		Alerts: AlertsConfig{
			MinSeverity: SeverityError,
			Timeout:     5 * time.Second,
		},
	}
}

// validateLease rejects a sending lease that a single drain could outlive:
// one drain sends up to batch_size actions sequentially, each bounded by
// send_timeout.
func (c ActionsConfig) validateLease() error {
	if c.SendingLease <= 0 || c.SendTimeout <= 0 || c.BatchSize <= 0 {
		return nil
	}
	if worst := time.Duration(c.BatchSize) * c.SendTimeout; c.SendingLease <= worst {
		return fmt.Errorf(
			"core: actions.sending_lease %s must exceed batch_size*send_timeout (%s)",
			c.SendingLease, worst,
		)
	}
	return nil
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.ServiceName) == "" {
		return fmt.Errorf("core: service_name is required")
	}
	if strings.TrimSpace(c.DefaultFlowID) == "" {
		return fmt.Errorf("core: default_flow_id is required")
	}
	switch c.Reconcile.DedupPriority {
	case DedupPhoneFirst, DedupEmailFirst:
	default:
		return fmt.Errorf("core: invalid reconcile.dedup_priority %q", c.Reconcile.DedupPriority)
	}
	if c.Actions.MaxRetries < 1 {
		return fmt.Errorf("core: actions.max_retries must be >= 1")
	}
	if c.Actions.BatchSize < 1 {
		return fmt.Errorf("core: actions.batch_size must be >= 1")
	}
	if err := c.Actions.validateLease(); err != nil {
		return err
	}
	if c.Actions.Backoff.Jitter < 0 || c.Actions.Backoff.Jitter > 1 {
		return fmt.Errorf("core: actions.backoff.jitter must be within [0,1]")
	}
	if c.Actions.Backoff.Multiplier != 0 && c.Actions.Backoff.Multiplier < 1 {
		return fmt.Errorf("core: actions.backoff.multiplier must be >= 1")
	}
	if c.Pipeline.Workers < 0 || c.Pipeline.QueueSize < 0 {
		return fmt.Errorf("core: pipeline workers and queue_size must be >= 0")
	}
	if min := c.Alerts.MinSeverity; min != "" && min.rank() == 0 {
		return fmt.Errorf("core: invalid alerts.min_severity %q", min)
	}
	return nil
}

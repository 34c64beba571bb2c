package core

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestGoOptionsResolver_RuntimeWins(t *testing.T) {
	defaults := DefaultConfig()
	loaded := Config{ServiceName: "from-config", Environment: "staging", Actions: ActionsConfig{MaxRetries: 5}}
	runtime := Config{ServiceName: "from-runtime", Pipeline: PipelineConfig{Workers: 8}}

	resolved, err := GoOptionsResolver{}.Resolve(defaults, loaded, runtime)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if resolved.ServiceName != "from-runtime" {
		t.Fatalf("expected runtime service name, got %q", resolved.ServiceName)
	}
	if resolved.Environment != "staging" {
		t.Fatalf("expected config environment, got %q", resolved.Environment)
	}
	if resolved.Actions.MaxRetries != 5 {
		t.Fatalf("expected max retries from config layer, got %d", resolved.Actions.MaxRetries)
	}
	if resolved.Pipeline.Workers != 8 {
		t.Fatalf("expected runtime worker count, got %d", resolved.Pipeline.Workers)
	}
	if resolved.Actions.BatchSize != defaults.Actions.BatchSize {
		t.Fatalf("expected default batch size, got %d", resolved.Actions.BatchSize)
	}
	if resolved.Workers.ReminderAge != defaults.Workers.ReminderAge {
		t.Fatalf("expected default reminder age, got %s", resolved.Workers.ReminderAge)
	}
}

func TestGoOptionsResolver_RejectsInvalid(t *testing.T) {
	_, err := GoOptionsResolver{}.Resolve(DefaultConfig(), Config{}, Config{
		Reconcile: ReconcileConfig{DedupPriority: "name_first"},
	})
	if err == nil {
		t.Fatalf("expected invalid dedup priority to fail")
	}
}

func TestConfigValidate_SendingLeaseOutlivesDrain(t *testing.T) {
	cases := []struct {
		name    string
		actions func(*ActionsConfig)
		wantErr bool
	}{
		{name: "defaults", actions: func(*ActionsConfig) {}},
		{name: "lease equals worst drain", actions: func(a *ActionsConfig) {
			a.BatchSize, a.SendTimeout, a.SendingLease = 10, time.Minute, 10*time.Minute
		}, wantErr: true},
		{name: "lease shorter than drain", actions: func(a *ActionsConfig) {
			a.SendingLease = time.Minute
		}, wantErr: true},
		{name: "lease longer than drain", actions: func(a *ActionsConfig) {
			a.BatchSize, a.SendTimeout, a.SendingLease = 10, time.Minute, 11*time.Minute
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.actions(&cfg.Actions)
			err := cfg.Validate()
			if (err != nil) != tc.wantErr {
				t.Fatalf("expected error=%v, got %v", tc.wantErr, err)
			}
		})
	}

	if _, err := NewActionDispatcher(ActionDispatcherConfig{
		Store:        newMemoryStores().ActionStore(),
		BatchSize:    50,
		SendTimeout:  time.Minute,
		SendingLease: 5 * time.Minute,
	}); err == nil {
		t.Fatalf("expected dispatcher to reject a lease shorter than one drain")
	}
}

func TestCfgxConfigProvider_LoadsRawValues(t *testing.T) {
	provider := NewCfgxConfigProvider(StaticConfigLoader(map[string]any{
		"service_name": "intake-test",
		"reconcile": map[string]any{
			"dedup_priority": "email_first",
		},
	}))
	cfg, err := provider.Load(context.Background(), DefaultConfig())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ServiceName != "intake-test" {
		t.Fatalf("expected loaded service name, got %q", cfg.ServiceName)
	}
	if cfg.Reconcile.DedupPriority != DedupEmailFirst {
		t.Fatalf("expected email_first, got %q", cfg.Reconcile.DedupPriority)
	}
	if cfg.ClassifierTimeout != 10*time.Second {
		t.Fatalf("expected default classifier timeout, got %s", cfg.ClassifierTimeout)
	}
}

type failingConfigProvider struct{}

func (failingConfigProvider) Load(context.Context, Config) (Config, error) {
	return Config{}, errors.New("config source unavailable")
}

func TestNewService_ConfigAndStoreErrors(t *testing.T) {
	if _, err := NewService(Config{}, WithConfigProvider(failingConfigProvider{}), WithStoreProvider(newMemoryStores())); err == nil {
		t.Fatalf("expected config provider failure to surface")
	}
	if _, err := NewService(Config{}); err == nil {
		t.Fatalf("expected missing store provider to fail")
	}
}

func TestConfigToMap_SparseLayer(t *testing.T) {
	layer := ConfigToMap(Config{ServiceName: "x"}, false)
	if len(layer) != 1 || layer["service_name"] != "x" {
		t.Fatalf("expected only service_name in sparse layer, got %+v", layer)
	}
	full := ConfigToMap(DefaultConfig(), true)
	actions, ok := full["actions"].(map[string]any)
	if !ok || actions["max_retries"] != 3 {
		t.Fatalf("expected actions section with defaults, got %+v", full["actions"])
	}
}

type stubRepositoryFactory struct {
	stores   StoreProvider
	err      error
	received any
}

func (f *stubRepositoryFactory) BuildStores(persistenceClient any) (StoreProvider, error) {
	f.received = persistenceClient
	return f.stores, f.err
}

func TestNewService_WithRepositoryFactory(t *testing.T) {
	stores := newMemoryStores()
	factory := &stubRepositoryFactory{stores: stores}
	svc, err := NewService(Config{}, WithRepositoryFactory(factory, "persistence-client"))
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	if factory.received != "persistence-client" {
		t.Fatalf("expected persistence client passed through, got %v", factory.received)
	}
	if svc.Dependencies().Stores != stores {
		t.Fatalf("expected factory stores to be used")
	}

	explicit := newMemoryStores()
	unused := &stubRepositoryFactory{stores: stores}
	svc, err = NewService(Config{}, WithStoreProvider(explicit), WithRepositoryFactory(unused, nil))
	if err != nil {
		t.Fatalf("new service with explicit stores: %v", err)
	}
	if svc.Dependencies().Stores != explicit || unused.received != nil {
		t.Fatalf("expected explicit store provider to win over the factory")
	}

	failing := &stubRepositoryFactory{err: errors.New("unsupported persistence client")}
	if _, err := NewService(Config{}, WithRepositoryFactory(failing, 42)); err == nil {
		t.Fatalf("expected factory error to surface")
	}
}

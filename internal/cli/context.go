package cli

import (
	"fmt"
	"strings"

	"github.com/ucmodeler/modelstore/internal/lease"
	"github.com/ucmodeler/modelstore/internal/registry"
	"github.com/ucmodeler/modelstore/internal/store"
	"github.com/ucmodeler/modelstore/internal/transfer"
	"github.com/ucmodeler/modelstore/pkg/config"
	"github.com/ucmodeler/modelstore/pkg/logging"
	"github.com/ucmodeler/modelstore/pkg/metrics"
	"github.com/ucmodeler/modelstore/pkg/model"
	"github.com/ucmodeler/modelstore/pkg/webhook"
)

// loadConfig reads the config file and overlays flags and environment.
func (o *options) loadConfig() (*config.Config, error) {
	cfg, err := config.Load(o.v.GetString("config"))
	if err != nil {
		return nil, err
	}
	if o.v.IsSet("dir") {
		cfg.ModelsDir = o.v.GetString("dir")
	}
	if o.v.IsSet("log-level") {
		cfg.Logging.Level = o.v.GetString("log-level")
	}
	if o.v.IsSet("model-version") {
		cfg.ModelVersion = o.v.GetString("model-version")
	}
	if o.v.IsSet("auth-enabled") {
		cfg.Auth.SetEnabled(o.v.GetBool("auth-enabled"))
	}
	if o.v.IsSet("public-key-uri") {
		cfg.Auth.PublicKeyURI = o.v.GetString("public-key-uri")
	}
	if o.v.IsSet("listen") {
		cfg.Listen = o.v.GetString("listen")
	}
	if lvl, err := logging.ParseLevel(cfg.Logging.Level); err == nil {
		cfg.Logging.Level = string(lvl)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// requester returns the lease token this invocation acts under.
func (o *options) requester(cfg *config.Config) model.Lease {
	user := o.v.GetString("user")
	if user == "" {
		user = cfg.Auth.DefaultUser
	}
	return model.NewLease(user, o.v.GetString("session"))
}

// app is the wired service graph for one models directory.
type app struct {
	cfg      *config.Config
	store    *store.Store
	leases   *lease.Manager
	registry *registry.Registry
	transfer *transfer.Transfer
	metrics  *metrics.Registry
	hooks    *webhook.Client
}

func (o *options) open() (*app, error) {
	cfg, err := o.loadConfig()
	if err != nil {
		return nil, err
	}
	lvl, _ := logging.ParseLevel(cfg.Logging.Level)
	logging.Global().SetLevel(lvl)

	window, err := cfg.Window()
	if err != nil {
		return nil, err
	}
	s, err := store.Open(cfg.ModelsDir)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, store: s}
	if cfg.Metrics.Enabled {
		a.metrics = metrics.NewRegistry()
	}
	leaseOpts := []lease.Option{
		lease.WithWindow(window),
		lease.WithModelVersion(cfg.ModelVersion),
		lease.WithMetrics(a.metrics),
	}
	var notifier lease.Notifier
	if cfg.Webhooks.Enabled && len(cfg.Webhooks.Hooks) > 0 {
		a.hooks = webhook.NewClient(&cfg.Webhooks)
		notifier = a.hooks
		leaseOpts = append(leaseOpts, lease.WithNotifier(notifier))
	}

	a.leases = lease.NewManager(s, leaseOpts...)
	a.registry = registry.New(a.leases, a.metrics)
	a.transfer = transfer.New(a.leases, a.metrics, notifier)
	return a, nil
}

// Close flushes pending webhook deliveries.
func (a *app) Close() error {
	if a.hooks == nil {
		return nil
	}
	return a.hooks.Close()
}

// sessionOf returns the session part of a "session/tab" identifier.
func sessionOf(sessionTab string) string {
	session, _, _ := strings.Cut(sessionTab, model.LeaseSeparator)
	return session
}

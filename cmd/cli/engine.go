package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/anstrom/lanscope/internal/api"
	"github.com/anstrom/lanscope/internal/config"
	"github.com/anstrom/lanscope/internal/logging"
	"github.com/anstrom/lanscope/internal/metrics"
	"github.com/anstrom/lanscope/internal/monitor"
	"github.com/anstrom/lanscope/internal/probe"
	"github.com/anstrom/lanscope/internal/profiles"
	"github.com/anstrom/lanscope/internal/resolver"
	"github.com/anstrom/lanscope/internal/scanning"
)

const metricsUpdateInterval = 15 * time.Second

// engine holds the wired components shared by the commands.
type engine struct {
	cfg          *config.Config
	logger       *logging.Logger
	metrics      metrics.Recorder
	prometheus   *metrics.PrometheusMetrics
	profiles     *profiles.Manager
	resolver     *resolver.Resolver
	orchestrator *scanning.Orchestrator
}

// newEngine wires metrics, profiles and the resolver from cfg.
func newEngine(cfg *config.Config) (*engine, error) {
	e := &engine{
		cfg:     cfg,
		logger:  logging.Default(),
		metrics: metrics.Nop{},
	}
	if cfg.IsMetricsEnabled() {
		e.prometheus = metrics.GetGlobalMetrics()
		e.metrics = e.prometheus
	}

	pm, err := loadProfiles(cfg)
	if err != nil {
		return nil, err
	}
	e.profiles = pm

	e.resolver = resolver.NewFromConfig(cfg, e.metrics, e.logger)
	return e, nil
}

// startOrchestrator detects the probe provider and builds the orchestrator.
// listeners receive its events.
func (e *engine) startOrchestrator(listeners ...scanning.Listener) error {
	cfg := e.cfg
	rl := cfg.Scanning.RateLimit
	perSecond := 0
	if rl.Enabled {
		perSecond = rl.PerSecond
	}

	provider, err := probe.Detect(probe.DetectOptions{
		Mode:            cfg.Scanning.Provider,
		LivenessPorts:   cfg.Scanning.LivenessPorts,
		PortConcurrency: int64(cfg.Scanning.ConcurrencyLimit),
		Limiter:         probe.NewLimiter(perSecond, rl.BurstSize),
		Metrics:         e.metrics,
	})
	if err != nil {
		return err
	}

	opts := []scanning.Option{
		scanning.WithResolver(e.resolver),
		scanning.WithResultCache(scanning.NewMemoryResultCache(cfg.Cache.RangeTTL, cfg.Cache.RangeCapacity)),
		scanning.WithMetrics(e.metrics),
		scanning.WithLogger(e.logger),
		scanning.WithBatchPause(cfg.Scanning.BatchPause),
	}
	for _, l := range listeners {
		opts = append(opts, scanning.WithListener(l))
	}
	e.orchestrator, err = scanning.NewOrchestrator(provider, opts...)
	return err
}

// loadProfiles registers the custom profiles from the config file in name order.
func loadProfiles(cfg *config.Config) (*profiles.Manager, error) {
	pm := profiles.NewManager()

	names := make([]string, 0, len(cfg.Scanning.Profiles))
	for name := range cfg.Scanning.Profiles {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		ports, err := profiles.ParsePorts(cfg.Scanning.Profiles[name])
		if err != nil {
			return nil, fmt.Errorf("profile %s: %w", name, err)
		}
		if err := pm.Create(&profiles.Profile{ID: name, Ports: ports}); err != nil {
			return nil, fmt.Errorf("profile %s: %w", name, err)
		}
	}
	return pm, nil
}

// serveHTTP starts the read-only HTTP surface when metrics are enabled.
// It stops when ctx is done.
func (e *engine) serveHTTP(ctx context.Context, mon *monitor.Monitor) {
	if !e.cfg.IsMetricsEnabled() || e.orchestrator == nil {
		return
	}

	opts := []api.Option{
		api.WithPrometheus(e.prometheus),
		api.WithIdentityCache(e.resolver),
		api.WithLogger(e.logger),
	}
	if mon != nil {
		opts = append(opts, api.WithMonitor(mon))
	}
	server := api.New(e.cfg.Metrics.ListenAddr, e.orchestrator, opts...)

	go e.prometheus.StartPeriodicUpdates(ctx, metricsUpdateInterval)
	go func() {
		if err := server.Start(ctx); err != nil {
			e.logger.Error("HTTP server failed", "error", err)
		}
	}()
}

// interruptContext returns a context cancelled on SIGINT or SIGTERM. With
// onSignal set, the first signal only calls onSignal and a second signal
// cancels the context.
func interruptContext(parent context.Context, onSignal func()) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	sigs := make(chan os.Signal, 2)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)

	go func() {
		defer signal.Stop(sigs)
		if onSignal != nil {
			select {
			case <-sigs:
				onSignal()
			case <-ctx.Done():
				return
			}
		}
		select {
		case <-sigs:
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}

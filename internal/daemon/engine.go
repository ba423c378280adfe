package daemon

import (
	"context"
	"fmt"

	"github.com/anstrom/reconnode/internal/config"
	"github.com/anstrom/reconnode/internal/discovery"
	"github.com/anstrom/reconnode/internal/history"
	"github.com/anstrom/reconnode/internal/logging"
	"github.com/anstrom/reconnode/internal/metrics"
	"github.com/anstrom/reconnode/internal/probe"
	"github.com/anstrom/reconnode/internal/publish"
	"github.com/anstrom/reconnode/internal/resolver"
	"github.com/anstrom/reconnode/internal/results"
	"github.com/anstrom/reconnode/internal/scanning"
	"github.com/anstrom/reconnode/internal/services"
)

// Engine bundles an orchestrator with the collaborators it owns.
type Engine struct {
	Orchestrator *scanning.Orchestrator
	Sweeper      *discovery.NmapSweeper
	Publisher    publish.Publisher
	History      *history.PostgresRecorder
	Metrics      *metrics.PrometheusMetrics
	Services     *services.Scanner
}

// BuildEngine connects the collaborators selected by cfg and creates the
// orchestrator. A failing optional backend (publish, history) is logged and
// left out rather than failing the build.
func BuildEngine(ctx context.Context, cfg *config.Config, logger *logging.Logger) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	e := &Engine{Metrics: metrics.NewPrometheusMetrics()}
	prober := probe.NewTCPProber()

	deps := scanning.Deps{
		Prober:      prober,
		Resolver:    resolver.New(cfg.Resolver),
		Metrics:     e.Metrics,
		Logger:      logger,
		TopicPrefix: cfg.Publish.TopicPrefix,
	}

	if cfg.Discovery.Enabled {
		e.Sweeper = discovery.NewNmapSweeper(cfg.Discovery)
		deps.Discovery = e.Sweeper
		deps.Hardware = e.Sweeper
		deps.Liveness = discovery.NewLiveness(cfg.Discovery, e.Sweeper, prober)
	} else {
		deps.Liveness = discovery.NewLiveness(cfg.Discovery, nil, prober)
	}

	pub, err := publish.New(ctx, cfg.Publish)
	if err != nil {
		logger.Warn("Publisher unavailable, continuing without events",
			"backend", cfg.Publish.Backend, "error", err)
		pub = publish.Nop{}
	}
	e.Publisher = pub
	deps.Publisher = pub

	if cfg.History.Enabled {
		rec, err := history.Open(ctx, cfg.History)
		if err != nil {
			logger.ErrorStore("Scan history unavailable, continuing without it", err,
				"host", cfg.History.Host, "database", cfg.History.Database)
		} else {
			e.History = rec
			deps.History = rec
		}
	}

	if cfg.Services.Enabled {
		e.Services = services.NewScanner(services.Config{
			MDNSAddr:      cfg.Services.MDNSAddr,
			BrowseTimeout: cfg.Services.BrowseTimeout,
			SMBTimeout:    cfg.Services.SMBTimeout,
		}, logger)
	}

	e.Orchestrator = scanning.New(cfg.Scan, deps)
	return e, nil
}

// HistoryBackend returns the recorder as the API's history option, or nil.
func (e *Engine) HistoryBackend() interface {
	Recent(ctx context.Context, limit int) ([]history.CycleRecord, error)
	Migrations(ctx context.Context) ([]history.MigrationStatus, error)
	Ping(ctx context.Context) error
} {
	if e.History == nil {
		return nil
	}
	return e.History
}

// ServicesBackend returns the service scanner as the API's services option,
// or nil.
func (e *Engine) ServicesBackend() interface {
	Run(ctx context.Context, prefix string, endpoints []results.Endpoint) (services.Report, error)
	Last() services.Report
} {
	if e.Services == nil {
		return nil
	}
	return e.Services
}

// Close releases the orchestrator and every backend. A running cycle is
// abandoned.
func (e *Engine) Close() error {
	var firstErr error
	keep := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	if e.Orchestrator != nil {
		keep(e.Orchestrator.Close())
	}
	if e.Publisher != nil {
		keep(e.Publisher.Close())
	}
	if e.History != nil {
		keep(e.History.Close())
	}
	return firstErr
}

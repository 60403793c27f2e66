package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"nurseos/internal/alerts"
	"nurseos/internal/audit"
	"nurseos/internal/config"
	"nurseos/internal/features"
	"nurseos/internal/fhir"
	"nurseos/internal/metrics"
	"nurseos/internal/scales"
	"nurseos/internal/server"
	"nurseos/internal/state"
	"nurseos/internal/state/redis"
	"nurseos/internal/state/sqlite"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type App struct {
	cfg    *config.Config
	log    *zap.Logger
	store  *state.Adapter
	audit  *audit.Writer
	prom   *metrics.Prometheus
	server *server.Server
}

// Prefixes derives the storage prefixes of every module from the configured
// root prefix.
type Prefixes struct {
	Handover string
	BCMA     string
	Escalas  string
}

func PrefixesFor(cfg config.StateConfig) Prefixes {
	root := cfg.KeyPrefix
	if root == "" {
		root = "nurseos"
	}
	return Prefixes{
		Handover: root + "/handover/draft",
		BCMA:     root + "/bcma/draft",
		Escalas:  root + "/escalas",
	}
}

func New(cfg *config.Config, log *zap.Logger) (*App, error) {
	var prom *metrics.Prometheus
	m := metrics.NewNoop()
	if cfg.Metrics.EnabledValue() {
		prom = metrics.NewPrometheus()
		m = prom.Metrics
	}

	primary, err := OpenStore(context.Background(), cfg.State, log)
	if err != nil {
		log.Warn("persistent store unavailable, drafts kept in memory only", zap.String("driver", cfg.State.Driver), zap.Error(err))
		primary = nil
	}
	store := state.NewAdapter(primary, log.Named("store"), m)

	auditWriter, err := audit.New(cfg.Audit, log.Named("audit"), m)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	registry, err := scales.Load(cfg.Scales.Dir, log.Named("scales"))
	if err != nil {
		_ = store.Close()
		_ = auditWriter.Close()
		return nil, err
	}

	prefixes := PrefixesFor(cfg.State)
	flags := features.NewFlags(cfg)
	upstream := fhir.New(cfg.Upstream.BaseURL, cfg.Upstream.Timeout, log.Named("fhir"))
	deps := server.Deps{
		Store:       store,
		Upstream:    upstream,
		Alerts:      alerts.NewTelegram(cfg.Telegram, log.Named("alerts")),
		Scales:      registry,
		Flags:       flags,
		BCMA:        features.NewBCMA(flags, store, prefixes.BCMA, auditRecorder(auditWriter), m, log.Named("bcma")),
		Escalas:     features.NewEscalas(flags, registry, store, prefixes.Escalas, auditRecorder(auditWriter), m, log.Named("escalas")),
		DraftPrefix: prefixes.Handover,
		Log:         log.Named("http"),
		Metrics:     m,
	}
	if auditWriter != nil {
		deps.Audit = auditWriter
	}
	return &App{
		cfg:    cfg,
		log:    log,
		store:  store,
		audit:  auditWriter,
		prom:   prom,
		server: server.New(deps),
	}, nil
}

// auditRecorder keeps a disabled writer from becoming a non-nil interface.
func auditRecorder(w *audit.Writer) audit.Recorder {
	if w == nil {
		return nil
	}
	return w
}

// OpenStore opens the configured persistent backend. The memory driver has
// no primary and returns nil.
func OpenStore(ctx context.Context, cfg config.StateConfig, log *zap.Logger) (state.Store, error) {
	switch cfg.Driver {
	case config.DriverMemory:
		return nil, nil
	case config.DriverRedis:
		ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		store, err := redis.New(ctx, cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		log.Info("state backend ready", zap.String("driver", cfg.Driver))
		return store, nil
	case config.DriverSQLite, "":
		if err := os.MkdirAll(filepath.Dir(cfg.SQLitePath), 0o755); err != nil {
			return nil, err
		}
		store, err := sqlite.New(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		log.Info("state backend ready", zap.String("driver", config.DriverSQLite), zap.String("path", cfg.SQLitePath))
		return store, nil
	}
	return nil, fmt.Errorf("unknown state driver %q", cfg.Driver)
}

func (a *App) Run(ctx context.Context) error {
	defer func() { _ = a.store.Close() }()
	defer func() { _ = a.audit.Close() }()

	a.audit.Start(ctx)
	if !a.store.Persistent() {
		a.log.Warn("running without a persistent store; drafts are lost on restart")
	}

	g, ctx := errgroup.WithContext(ctx)
	api := &http.Server{
		Addr:              a.cfg.HTTP.Address,
		Handler:           a.server.Handler(),
		ReadHeaderTimeout: a.cfg.HTTP.ReadHeaderTimeout,
	}
	g.Go(func() error { return a.serve(ctx, api, "api") })
	if a.prom != nil {
		mux := http.NewServeMux()
		mux.Handle(a.cfg.Metrics.Path, a.prom.Handler())
		metricsSrv := &http.Server{
			Addr:              a.cfg.Metrics.Address,
			Handler:           mux,
			ReadHeaderTimeout: a.cfg.HTTP.ReadHeaderTimeout,
		}
		g.Go(func() error { return a.serve(ctx, metricsSrv, "metrics") })
	}
	return g.Wait()
}

// serve runs srv until ctx ends, then shuts it down gracefully.
func (a *App) serve(ctx context.Context, srv *http.Server, name string) error {
	errCh := make(chan error, 1)
	go func() {
		a.log.Info("http listener started", zap.String("server", name), zap.String("address", srv.Addr))
		errCh <- srv.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("%s server: %w", name, err)
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.log.Warn("http shutdown failed", zap.String("server", name), zap.Error(err))
	}
	return ctx.Err()
}

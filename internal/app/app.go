package app

import (
	"context"
	"log"
	"net/http"

	"crime_pipeline/internal/backfill"
	"crime_pipeline/internal/config"
	"crime_pipeline/internal/events"
	"crime_pipeline/internal/httpapi"
	"crime_pipeline/internal/jobs"
	"crime_pipeline/internal/pipeline"
	"crime_pipeline/internal/store"
	"crime_pipeline/internal/watch"
)

// App wires the pipeline components together.
type App struct {
	cfg     config.Config
	store   *store.Store
	runner  *jobs.Runner
	watcher *watch.Watcher
	bus     *events.Bus
	mux     *http.ServeMux
}

func New(cfg config.Config) (*App, error) {
	st, err := store.Open(cfg.DBPath)
	if err != nil {
		return nil, err
	}
	bus := events.NewBus()
	registry := pipeline.BuildRegistry(cfg, st)
	runner := jobs.NewRunner(cfg, st, registry, bus)
	watcher := watch.New(cfg, runner)

	mux := http.NewServeMux()
	router := httpapi.NewRouter(cfg, st, runner)
	router.Rebuild = func(ctx context.Context) {
		if _, err := pipeline.FullBuild(ctx, cfg, st, runner); err != nil {
			log.Printf("rebuild failed: %v", err)
		}
	}
	router.Backfill = func(ctx context.Context, limit int) {
		repo := &backfill.ArchiveRepo{BronzeDir: cfg.BronzeDir, SilverDir: cfg.SilverDir, Runner: runner}
		backfill.Run(context.WithoutCancel(ctx), repo, limit)
	}
	router.Register(mux)

	return &App{cfg: cfg, store: st, runner: runner, watcher: watcher, bus: bus, mux: mux}, nil
}

// Run starts workers, watcher, and HTTP server.
func (a *App) Run(ctx context.Context) error {
	a.runner.Start(ctx)
	if err := a.watcher.Start(ctx); err != nil {
		return err
	}
	srv := &http.Server{Addr: a.cfg.HTTPPort, Handler: a.mux}
	go func() {
		<-ctx.Done()
		_ = srv.Shutdown(context.Background())
	}()
	log.Printf("http listening on %s", a.cfg.HTTPPort)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// FullBuild runs the whole pipeline inline, for the one-shot CLI.
func (a *App) FullBuild(ctx context.Context) (pipeline.BuildResult, error) {
	return pipeline.FullBuild(ctx, a.cfg, a.store, a.runner)
}

// EnqueueStage exposes pipeline stages for tests and the control plane.
func (a *App) EnqueueStage(ctx context.Context, subject string, stage jobs.Stage, params map[string]any) (*store.Job, error) {
	return a.runner.Enqueue(ctx, subject, stage, params)
}

func (a *App) Runner() *jobs.Runner { return a.runner }
func (a *App) Store() *store.Store  { return a.store }
func (a *App) Mux() *http.ServeMux  { return a.mux }
func (a *App) Bus() *events.Bus     { return a.bus }

func (a *App) Close() error { return a.store.Close() }

package watch

import (
	"context"
	"log"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"

	"crime_pipeline/internal/config"
	"crime_pipeline/internal/jobs"
	"crime_pipeline/internal/silver"
)

// Watcher monitors the raw archive directory and enqueues enrichment for
// every new dated archive that lands there.
type Watcher struct {
	cfg    config.Config
	runner *jobs.Runner
}

func New(cfg config.Config, runner *jobs.Runner) *Watcher {
	return &Watcher{cfg: cfg, runner: runner}
}

func (w *Watcher) Start(ctx context.Context) error {
	if !w.cfg.EnableWatcher {
		log.Println("watcher disabled")
		return nil
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case evt := <-watcher.Events:
				if evt.Op&(fsnotify.Create|fsnotify.Rename) != 0 {
					w.maybeEnqueue(ctx, evt.Name)
				}
			case err := <-watcher.Errors:
				log.Printf("watcher error: %v", err)
			}
		}
	}()
	return watcher.Add(w.cfg.BronzeDir)
}

func (w *Watcher) maybeEnqueue(ctx context.Context, path string) {
	if strings.ToLower(filepath.Ext(path)) != ".zip" {
		return
	}
	d, ok := silver.DateFromFilename(path, silver.BronzePrefix)
	if !ok {
		log.Printf("ignoring archive with undated name: %s", filepath.Base(path))
		return
	}
	subject := d.Format("2006-01-02")
	if _, err := w.runner.Enqueue(ctx, subject, jobs.StageSilver, map[string]any{}); err != nil {
		log.Printf("enqueue %s: %v", subject, err)
	}
}

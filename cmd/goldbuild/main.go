// Command goldbuild runs the whole pipeline once and exits: every raw daily
// archive is enriched, every reporting period materialized and aggregated,
// and the combined gold table written.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"crime_pipeline/internal/app"
	"crime_pipeline/internal/config"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	cfg.EnableWatcher = false

	application, err := app.New(cfg)
	if err != nil {
		log.Fatalf("init: %v", err)
	}
	defer application.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	res, err := application.FullBuild(ctx)
	for _, msg := range res.Errors {
		log.Printf("unit failed: %s", msg)
	}
	if err != nil {
		log.Printf("build failed: %v", err)
		os.Exit(1)
	}
	log.Printf("build succeeded run=%s batches=%d/%d periods=%d/%d gold=%s",
		res.RunID,
		res.Batches-res.BatchFailures, res.Batches,
		res.Periods-res.PeriodFailures, res.Periods,
		res.GoldPath)
}

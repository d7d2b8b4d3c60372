package pipeline

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"crime_pipeline/internal/config"
	"crime_pipeline/internal/jobs"
	"crime_pipeline/internal/period"
	"crime_pipeline/internal/silver"
	"crime_pipeline/internal/store"
)

// BuildResult summarizes one end-to-end build.
type BuildResult struct {
	RunID          string   `json:"run_id"`
	Batches        int      `json:"batches"`
	BatchFailures  int      `json:"batch_failures"`
	Periods        int      `json:"periods"`
	PeriodFailures int      `json:"period_failures"`
	GoldPath       string   `json:"gold_path"`
	Errors         []string `json:"errors,omitempty"`
}

// FullBuild runs the whole pipeline: every raw daily archive through
// enrichment, every reporting period through materialization and
// aggregation, then the single combine into the gold table. Batch and
// period failures are isolated and reported; only the combine itself is
// fatal for the build.
func FullBuild(ctx context.Context, cfg config.Config, st *store.Store, runner *jobs.Runner) (BuildResult, error) {
	res := BuildResult{RunID: uuid.NewString(), GoldPath: cfg.GoldPath()}
	if err := st.CreateRun(ctx, res.RunID, "full_build", config.Now()); err != nil {
		return res, err
	}
	log.Printf("build start run=%s bronze=%s", res.RunID, cfg.BronzeDir)

	var mu sync.Mutex
	fail := func(unit string, err error) {
		mu.Lock()
		res.Errors = append(res.Errors, unit+": "+err.Error())
		mu.Unlock()
	}

	dates, err := bronzeDates(cfg.BronzeDir)
	if err != nil {
		return res, finishRun(ctx, st, &res, err)
	}
	res.Batches = len(dates)

	runParallel(ctx, cfg.WorkerCount, len(dates), func(i int) {
		subject := dates[i].Format(dayLayout)
		if err := runner.RunSync(ctx, subject, jobs.StageSilver, map[string]any{}); err != nil {
			mu.Lock()
			res.BatchFailures++
			mu.Unlock()
			fail("silver "+subject, err)
		}
	})

	minDate, maxDate, ok := silverRange(cfg.SilverDir)
	if !ok {
		return res, finishRun(ctx, st, &res, fmt.Errorf("no silver archives under %s", cfg.SilverDir))
	}

	// The first anchor comes a full rolling year after the earliest
	// enriched date, so every retained R12 window is covered by data.
	periods := period.Generate(period.FirstAnchor(minDate), maxDate)
	if len(periods) == 0 {
		return res, finishRun(ctx, st, &res, fmt.Errorf("observed window %s..%s holds less than a rolling year; no report periods",
			minDate.Format(dayLayout), maxDate.Format(dayLayout)))
	}
	res.Periods = len(periods)
	log.Printf("build run=%s periods=%d window=%s..%s",
		res.RunID, len(periods), minDate.Format(dayLayout), maxDate.Format(dayLayout))

	runParallel(ctx, cfg.WorkerCount, len(periods), func(i int) {
		p := periods[i]
		params := periodParams(p)
		if err := runner.RunSync(ctx, p.Key(), jobs.StageMaterialize, params); err != nil {
			mu.Lock()
			res.PeriodFailures++
			mu.Unlock()
			fail("materialize "+p.Key(), err)
			return
		}
		if err := runner.RunSync(ctx, p.Key(), jobs.StageAggregate, params); err != nil {
			mu.Lock()
			res.PeriodFailures++
			mu.Unlock()
			fail("aggregate "+p.Key(), err)
		}
	})

	if res.PeriodFailures == res.Periods {
		return res, finishRun(ctx, st, &res, fmt.Errorf("every period failed"))
	}

	// Barrier: the combine starts only after every period job above has
	// returned, so it sees a settled set of aggregates.
	if err := runner.RunSync(ctx, "gold", jobs.StageCombine, map[string]any{}); err != nil {
		fail("combine", err)
		return res, finishRun(ctx, st, &res, err)
	}

	return res, finishRun(ctx, st, &res, nil)
}

func finishRun(ctx context.Context, st *store.Store, res *BuildResult, fatal error) error {
	status := "succeeded"
	if fatal != nil {
		status = "failed"
	}
	detail := fmt.Sprintf("batches=%d batch_failures=%d periods=%d period_failures=%d",
		res.Batches, res.BatchFailures, res.Periods, res.PeriodFailures)
	if fatal != nil {
		detail += " error=" + fatal.Error()
	}
	_ = st.FinishRun(ctx, res.RunID, status, &detail, config.Now())
	log.Printf("build finish run=%s status=%s %s", res.RunID, status, detail)
	return fatal
}

// runParallel fans n units over at most workers goroutines and waits for
// all of them.
func runParallel(ctx context.Context, workers, n int, fn func(i int)) {
	if workers < 1 {
		workers = 1
	}
	sem := make(chan struct{}, workers)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		select {
		case <-ctx.Done():
			wg.Wait()
			return
		case sem <- struct{}{}:
		}
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			defer func() { <-sem }()
			fn(i)
		}(i)
	}
	wg.Wait()
}

// bronzeDates lists the batch dates of raw archives present, sorted by the
// glob's lexical order (dates sort correctly in it).
func bronzeDates(bronzeDir string) ([]time.Time, error) {
	paths, err := filepath.Glob(filepath.Join(bronzeDir, silver.BronzePrefix+"*.zip"))
	if err != nil {
		return nil, err
	}
	var dates []time.Time
	for _, p := range paths {
		d, ok := silver.DateFromFilename(p, silver.BronzePrefix)
		if !ok {
			log.Printf("skipping archive with undated name: %s", filepath.Base(p))
			continue
		}
		dates = append(dates, d)
	}
	if len(dates) == 0 {
		return nil, fmt.Errorf("no dated raw archives under %s", bronzeDir)
	}
	return dates, nil
}

func silverRange(silverDir string) (time.Time, time.Time, bool) {
	paths, err := filepath.Glob(filepath.Join(silverDir, silver.SilverPrefix+"*.zip"))
	if err != nil {
		return time.Time{}, time.Time{}, false
	}
	var min, max time.Time
	found := false
	for _, p := range paths {
		d, ok := silver.DateFromFilename(p, silver.SilverPrefix)
		if !ok {
			continue
		}
		if !found {
			min, max, found = d, d, true
			continue
		}
		if d.Before(min) {
			min = d
		}
		if d.After(max) {
			max = d
		}
	}
	return min, max, found
}

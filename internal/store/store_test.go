package store

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func openTest(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestUpsertBatchUpdatesInPlace(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	if err := s.UpsertBatch(ctx, "2024-03-15", "crime_data_2024-03-15.zip", "queued", 0, nil, now); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := s.UpsertBatch(ctx, "2024-03-15", "crime_data_2024-03-15.zip", "enriched", 120, nil, now.Add(time.Minute)); err != nil {
		t.Fatalf("update: %v", err)
	}

	batches, err := s.ListBatches(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(batches) != 1 {
		t.Fatalf("batches = %d", len(batches))
	}
	if batches[0].Status != "enriched" || batches[0].Rows != 120 {
		t.Fatalf("batch = %+v", batches[0])
	}
}

func TestUpsertPeriodTracksFailure(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	msg := "no silver archives"
	rec := &PeriodRecord{Key: "r12_2023_04_2024_03", ReportType: "R12", ReportDate: 202403, Status: "failed", LastError: &msg}
	if err := s.UpsertPeriod(ctx, rec, now); err != nil {
		t.Fatal(err)
	}
	rec.Status, rec.LastError, rec.Rows = "aggregated", nil, 500
	if err := s.UpsertPeriod(ctx, rec, now.Add(time.Minute)); err != nil {
		t.Fatal(err)
	}

	periods, err := s.ListPeriods(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(periods) != 1 {
		t.Fatalf("periods = %d", len(periods))
	}
	if periods[0].Status != "aggregated" || periods[0].LastError != nil {
		t.Fatalf("period = %+v", periods[0])
	}
}

func TestInsertJobIdempotentConflict(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	j := &Job{Subject: "2024-03-15", Stage: "SILVER", Status: "queued", IdempotencyKey: "abc", CreatedAt: now, UpdatedAt: now}
	first, err := s.InsertJobIdempotent(ctx, j)
	if err != nil {
		t.Fatalf("first insert: %v", err)
	}
	dup := &Job{Subject: "2024-03-15", Stage: "SILVER", Status: "queued", IdempotencyKey: "abc", CreatedAt: now, UpdatedAt: now}
	second, err := s.InsertJobIdempotent(ctx, dup)
	if err != ErrConflict {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("conflict should return existing job")
	}
}

func TestJobLifecycleAndLogs(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	j, err := s.RecordJob(ctx, &Job{Subject: "r12_2023_04_2024_03", Stage: "AGGREGATE", Status: "queued", IdempotencyKey: "k1", CreatedAt: now, UpdatedAt: now})
	if err != nil {
		t.Fatal(err)
	}
	if err := s.MarkJobStarted(ctx, j.ID, now); err != nil {
		t.Fatal(err)
	}
	if err := s.AppendJobLog(ctx, j.ID, "aggregating", now); err != nil {
		t.Fatal(err)
	}
	if err := s.MarkJobFinished(ctx, j.ID, "succeeded", now.Add(time.Second)); err != nil {
		t.Fatal(err)
	}

	jobs, err := s.ListJobs(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(jobs) != 1 || jobs[0].Status != "succeeded" {
		t.Fatalf("jobs = %+v", jobs)
	}
	if jobs[0].FinishedAt == nil {
		t.Fatalf("finished_at not recorded")
	}
	lines, err := s.JobLogs(ctx, j.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(lines) != 1 || lines[0] != "aggregating" {
		t.Fatalf("logs = %v", lines)
	}
}

func TestRunLifecycle(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	if err := s.CreateRun(ctx, "run-1", "full_build", now); err != nil {
		t.Fatal(err)
	}
	detail := "batches=3"
	if err := s.FinishRun(ctx, "run-1", "succeeded", &detail, now.Add(time.Minute)); err != nil {
		t.Fatal(err)
	}
	run, err := s.LatestRun(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if run == nil || run.Status != "succeeded" || run.FinishedAt == nil {
		t.Fatalf("run = %+v", run)
	}
}

func TestConcurrentWritersDoNotContend(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	const workers = 8
	errs := make(chan error, workers*2)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			date := time.Date(2024, 3, 1+w, 0, 0, 0, 0, time.UTC).Format("2006-01-02")
			errs <- s.UpsertBatch(ctx, date, "crime_data_"+date+".zip", "enriched", 10, nil, now)
			errs <- s.UpsertPeriod(ctx, &PeriodRecord{
				Key: "r12_2023_04_2024_03_" + date, ReportType: "R12", ReportDate: 202403, Status: "aggregated",
			}, now)
		}(w)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("concurrent write: %v", err)
		}
	}

	batches, err := s.ListBatches(ctx, 50)
	if err != nil {
		t.Fatal(err)
	}
	if len(batches) != workers {
		t.Fatalf("batches = %d", len(batches))
	}
}

func TestHealth(t *testing.T) {
	s := openTest(t)
	if err := s.Health(context.Background()); err != nil {
		t.Fatalf("health: %v", err)
	}
}

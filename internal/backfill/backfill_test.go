package backfill

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"crime_pipeline/internal/silver"
)

func day(s string) time.Time {
	d, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestSelectPendingSkipsEnriched(t *testing.T) {
	records := []Record{
		{BatchDate: day("2024-03-15"), Status: StatusDone},
		{BatchDate: day("2024-03-16"), Status: ""},
		{BatchDate: day("2024-03-17"), Status: StatusError},
	}
	selected, summary := SelectPending(records, 0)
	if len(selected) != 2 {
		t.Fatalf("selected = %d", len(selected))
	}
	if summary.AlreadyProcessed != 1 || summary.Unprocessed != 2 || summary.SelectedForBackfill != 2 {
		t.Fatalf("summary = %+v", summary)
	}
}

func TestSelectPendingOrdersNewestFirst(t *testing.T) {
	records := []Record{
		{BatchDate: day("2024-03-15")},
		{BatchDate: day("2024-03-17")},
		{BatchDate: day("2024-03-16")},
	}
	selected, _ := SelectPending(records, 0)
	if !selected[0].BatchDate.Equal(day("2024-03-17")) || !selected[2].BatchDate.Equal(day("2024-03-15")) {
		t.Fatalf("order = %v", selected)
	}
}

func TestSelectPendingHonorsLimit(t *testing.T) {
	records := []Record{
		{BatchDate: day("2024-03-15")},
		{BatchDate: day("2024-03-16")},
		{BatchDate: day("2024-03-17")},
	}
	selected, summary := SelectPending(records, 2)
	if len(selected) != 2 {
		t.Fatalf("selected = %d", len(selected))
	}
	if summary.SelectedForBackfill != 2 || summary.Unprocessed != 3 {
		t.Fatalf("summary = %+v", summary)
	}
	// Newest batches win the limited slots.
	if !selected[0].BatchDate.Equal(day("2024-03-17")) {
		t.Fatalf("first = %v", selected[0].BatchDate)
	}
}

type stubRepo struct {
	records  []Record
	queued   []Record
	dropFrom int
	done     chan Summary
}

func (s *stubRepo) ListCandidates(ctx context.Context) ([]Record, error) {
	return s.records, nil
}

func (s *stubRepo) QueueRecord(ctx context.Context, rec Record) EnqueueResult {
	s.queued = append(s.queued, rec)
	if s.dropFrom > 0 && len(s.queued) > s.dropFrom {
		return EnqueueResult{DroppedFull: true}
	}
	return EnqueueResult{Enqueued: true}
}

func (s *stubRepo) OnBackfillComplete(summary Summary) {
	s.done <- summary
}

func TestRunQueuesPendingRecords(t *testing.T) {
	repo := &stubRepo{
		records: []Record{
			{BatchDate: day("2024-03-15"), Status: StatusDone},
			{BatchDate: day("2024-03-16")},
			{BatchDate: day("2024-03-17")},
		},
		done: make(chan Summary, 1),
	}
	Run(context.Background(), repo, 0)

	summary := <-repo.done
	if summary.EnqueueSucceeded != 2 || summary.AlreadyProcessed != 1 {
		t.Fatalf("summary = %+v", summary)
	}
	if len(repo.queued) != 2 {
		t.Fatalf("queued = %d", len(repo.queued))
	}
}

func TestRunCountsDroppedFull(t *testing.T) {
	repo := &stubRepo{
		records: []Record{
			{BatchDate: day("2024-03-15")},
			{BatchDate: day("2024-03-16")},
			{BatchDate: day("2024-03-17")},
		},
		dropFrom: 1,
		done:     make(chan Summary, 1),
	}
	Run(context.Background(), repo, 0)

	summary := <-repo.done
	if summary.EnqueueSucceeded != 1 || summary.EnqueueDroppedFull != 2 {
		t.Fatalf("summary = %+v", summary)
	}
}

func TestArchiveRepoListCandidates(t *testing.T) {
	bronze := t.TempDir()
	silverDir := t.TempDir()

	for _, d := range []string{"2024-03-15", "2024-03-16"} {
		path := filepath.Join(bronze, silver.BronzePrefix+d+".zip")
		if err := os.WriteFile(path, []byte("zip"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	// The first day already has an enriched archive.
	enriched := silver.Path(silverDir, silver.SilverPrefix, day("2024-03-15"))
	if err := os.WriteFile(enriched, []byte("zip"), 0o644); err != nil {
		t.Fatal(err)
	}
	// Stray files never become candidates.
	if err := os.WriteFile(filepath.Join(bronze, "notes.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	repo := &ArchiveRepo{BronzeDir: bronze, SilverDir: silverDir}
	records, err := repo.ListCandidates(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 2 {
		t.Fatalf("records = %+v", records)
	}
	byDate := map[string]Record{}
	for _, r := range records {
		byDate[r.BatchDate.Format("2006-01-02")] = r
	}
	if byDate["2024-03-15"].Status != StatusDone {
		t.Fatalf("enriched batch should be done: %+v", byDate["2024-03-15"])
	}
	if byDate["2024-03-16"].Status == StatusDone {
		t.Fatalf("unenriched batch marked done")
	}
}

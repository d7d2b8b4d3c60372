package backfill

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"crime_pipeline/internal/jobs"
	"crime_pipeline/internal/silver"
)

// ArchiveRepo backs the backfill with the archive directories themselves:
// a raw archive counts as processed when its enriched counterpart exists.
type ArchiveRepo struct {
	BronzeDir  string
	SilverDir  string
	Runner     *jobs.Runner
	OnComplete func(Summary)
}

func (a *ArchiveRepo) ListCandidates(ctx context.Context) ([]Record, error) {
	paths, err := filepath.Glob(filepath.Join(a.BronzeDir, silver.BronzePrefix+"*.zip"))
	if err != nil {
		return nil, err
	}
	var records []Record
	for _, p := range paths {
		d, ok := silver.DateFromFilename(p, silver.BronzePrefix)
		if !ok {
			continue
		}
		rec := Record{BatchDate: d, Filename: filepath.Base(p)}
		if info, err := os.Stat(p); err == nil {
			rec.SizeBytes = info.Size()
			rec.UpdatedAt = info.ModTime()
		}
		if _, err := os.Stat(silver.Path(a.SilverDir, silver.SilverPrefix, d)); err == nil {
			rec.Status = StatusDone
		}
		records = append(records, rec)
	}
	return records, nil
}

func (a *ArchiveRepo) QueueRecord(ctx context.Context, rec Record) EnqueueResult {
	_, err := a.Runner.Enqueue(ctx, rec.BatchDate.Format("2006-01-02"), jobs.StageSilver, map[string]any{})
	if err != nil {
		if strings.Contains(err.Error(), "queue full") {
			return EnqueueResult{DroppedFull: true}
		}
		return EnqueueResult{}
	}
	return EnqueueResult{Enqueued: true}
}

func (a *ArchiveRepo) OnBackfillComplete(summary Summary) {
	if a.OnComplete != nil {
		a.OnComplete(summary)
	}
}

// Package silver turns dated raw archives into enriched daily archives and
// materializes period-scoped batches from them.
package silver

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"crime_pipeline/internal/enrich"
	"crime_pipeline/internal/period"
	"crime_pipeline/internal/table"
)

const (
	BronzePrefix = "crime_data_"
	SilverPrefix = "silver_"
	dayLayout    = "2006-01-02"
)

// DateFromFilename parses the batch date out of a dated archive name such
// as crime_data_2024-03-15.zip or silver_2024-03-15.zip.
func DateFromFilename(name, prefix string) (time.Time, bool) {
	base := strings.TrimSuffix(filepath.Base(name), ".zip")
	if !strings.HasPrefix(base, prefix) {
		return time.Time{}, false
	}
	d, err := time.Parse(dayLayout, strings.TrimPrefix(base, prefix))
	if err != nil {
		return time.Time{}, false
	}
	return d, true
}

// Path returns the archive path for a dated batch under dir.
func Path(dir, prefix string, d time.Time) string {
	return filepath.Join(dir, prefix+d.Format(dayLayout)+".zip")
}

// BuildDaily enriches one raw daily archive into a silver archive. The
// silver date comes from the earliest parsable event date in the batch,
// falling back to the archive's filename date.
func BuildDaily(bronzePath, silverDir string, enricher *enrich.Enricher) (time.Time, int, error) {
	raw, err := table.ReadZip(bronzePath, nil)
	if err != nil {
		return time.Time{}, 0, err
	}
	enriched, err := enricher.Enrich(raw)
	if err != nil {
		return time.Time{}, 0, fmt.Errorf("enrich %s: %w", filepath.Base(bronzePath), err)
	}

	day, ok := minEventDate(enriched)
	if !ok {
		day, ok = DateFromFilename(bronzePath, BronzePrefix)
		if !ok {
			return time.Time{}, 0, fmt.Errorf("no batch date derivable for %s", filepath.Base(bronzePath))
		}
	}

	out := Path(silverDir, SilverPrefix, day)
	member := SilverPrefix + day.Format(dayLayout) + ".csv"
	if err := table.WriteZip(out, member, enriched); err != nil {
		return time.Time{}, 0, err
	}
	return day, enriched.NumRows(), nil
}

func minEventDate(t *table.Table) (time.Time, bool) {
	var min time.Time
	found := false
	for r := 0; r < t.NumRows(); r++ {
		s, ok := t.Value(r, "date").Str()
		if !ok {
			continue
		}
		ts, err := time.Parse(enrich.DateLayout, strings.TrimSpace(s))
		if err != nil {
			continue
		}
		day := time.Date(ts.Year(), ts.Month(), ts.Day(), 0, 0, 0, 0, time.UTC)
		if !found || day.Before(min) {
			min = day
			found = true
		}
	}
	return min, found
}

// MaterializeResult reports what a period materialization produced. Missing
// daily archives are a completeness concern, not a failure: the batch is
// built from whatever is available.
type MaterializeResult struct {
	Rows        int
	DaysRead    int
	MissingDays []string
	OutPath     string
}

// Materialize selects every enriched record whose event date falls inside
// the period, stamps the rows with period identity, and persists one
// period-scoped archive. It fails only when no daily archive in the window
// exists at all.
func Materialize(p period.Period, silverDir, periodDir string) (MaterializeResult, error) {
	res := MaterializeResult{}
	schema := enrich.Schema()
	combined := table.New(enrich.CanonicalColumns...)

	for day := p.Start; !day.After(p.End); day = day.AddDate(0, 0, 1) {
		path := Path(silverDir, SilverPrefix, day)
		if _, err := os.Stat(path); err != nil {
			res.MissingDays = append(res.MissingDays, day.Format(dayLayout))
			continue
		}
		t, err := table.ReadZip(path, schema)
		if err != nil {
			return res, fmt.Errorf("read %s: %w", filepath.Base(path), err)
		}
		appendInWindow(combined, t, p)
		res.DaysRead++
	}
	if res.DaysRead == 0 {
		return res, fmt.Errorf("no silver archives available for %s window %s..%s",
			p.Type, p.Start.Format(dayLayout), p.End.Format(dayLayout))
	}
	if len(res.MissingDays) > 0 {
		log.Printf("materialize period=%s missing_days=%d first_missing=%s",
			p.Key(), len(res.MissingDays), res.MissingDays[0])
	}

	stamp(combined, p)
	res.Rows = combined.NumRows()
	res.OutPath = filepath.Join(periodDir, SilverPrefix+p.Key()+".zip")
	member := SilverPrefix + p.Key() + ".csv"
	if err := table.WriteZip(res.OutPath, member, combined); err != nil {
		return res, err
	}
	return res, nil
}

// appendInWindow copies rows whose event date lies in the period window.
// Daily archives normally fall wholly inside, but boundary archives whose
// batch date came from the filename can straddle the edge.
func appendInWindow(dst, src *table.Table, p period.Period) {
	for r := 0; r < src.NumRows(); r++ {
		s, ok := src.Value(r, "date").Str()
		if !ok {
			continue
		}
		ts, err := time.Parse(enrich.DateLayout, strings.TrimSpace(s))
		if err != nil || !p.Contains(ts) {
			continue
		}
		i := dst.AppendEmptyRow()
		for _, c := range dst.Columns() {
			dst.Set(i, c, src.Value(r, c))
		}
	}
}

func stamp(t *table.Table, p period.Period) {
	t.AddColumn("report_type")
	t.AddColumn("report_date")
	t.AddColumn("start_date")
	t.AddColumn("end_date")
	for r := 0; r < t.NumRows(); r++ {
		t.Set(r, "report_type", table.String(string(p.Type)))
		t.Set(r, "report_date", table.Int(int64(p.YYYYMM)))
		t.Set(r, "start_date", table.String(p.Start.Format(dayLayout)))
		t.Set(r, "end_date", table.String(p.End.Format(dayLayout)))
	}
}

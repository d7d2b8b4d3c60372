package pipeline

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"crime_pipeline/internal/aggregate"
	"crime_pipeline/internal/config"
	"crime_pipeline/internal/enrich"
	"crime_pipeline/internal/gold"
	"crime_pipeline/internal/jobs"
	"crime_pipeline/internal/metrics"
	"crime_pipeline/internal/period"
	"crime_pipeline/internal/silver"
	"crime_pipeline/internal/store"
	"crime_pipeline/internal/table"
)

const (
	dayLayout  = "2006-01-02"
	GoldPrefix = "gold_"
)

// BuildRegistry wires deterministic stage functions. SILVER and
// MATERIALIZE/AGGREGATE subjects are a batch date and a period key; COMBINE
// takes no subject and operates on whatever period aggregates exist.
func BuildRegistry(cfg config.Config, st *store.Store) jobs.Registry {
	return jobs.Registry{
		jobs.StageSilver:      silverStage(cfg, st),
		jobs.StageMaterialize: materializeStage(cfg, st),
		jobs.StageAggregate:   aggregateStage(cfg, st),
		jobs.StageCombine:     combineStage(cfg, st),
	}
}

func silverStage(cfg config.Config, st *store.Store) jobs.StageFunc {
	enricher := enrich.New(enrich.DefaultLookups())
	return func(ctx context.Context, exec jobs.ExecutionContext, subject string, params map[string]any) error {
		d, err := time.Parse(dayLayout, subject)
		if err != nil {
			return fmt.Errorf("silver subject %q is not a batch date: %w", subject, err)
		}
		src := silver.Path(cfg.BronzeDir, silver.BronzePrefix, d)
		day, rows, err := silver.BuildDaily(src, cfg.SilverDir, enricher)
		if err != nil {
			msg := err.Error()
			_ = st.UpsertBatch(ctx, subject, filepath.Base(src), "failed", 0, &msg, config.Now())
			return err
		}
		if err := st.UpsertBatch(ctx, day.Format(dayLayout), filepath.Base(src), "enriched", rows, nil, config.Now()); err != nil {
			return err
		}
		metrics.IncBatches()
		exec.Logf(paramsInt64(params, "job_id"), fmt.Sprintf("enriched %d rows for %s", rows, day.Format(dayLayout)))
		return nil
	}
}

func materializeStage(cfg config.Config, st *store.Store) jobs.StageFunc {
	return func(ctx context.Context, exec jobs.ExecutionContext, subject string, params map[string]any) error {
		p, err := periodFromParams(params)
		if err != nil {
			return err
		}
		res, err := silver.Materialize(p, cfg.SilverDir, cfg.PeriodDir)
		rec := &store.PeriodRecord{
			Key:         p.Key(),
			ReportType:  string(p.Type),
			ReportDate:  p.YYYYMM,
			Rows:        res.Rows,
			MissingDays: len(res.MissingDays),
		}
		if err != nil {
			msg := err.Error()
			rec.Status, rec.LastError = "failed", &msg
			_ = st.UpsertPeriod(ctx, rec, config.Now())
			return err
		}
		rec.Status = "materialized"
		if err := st.UpsertPeriod(ctx, rec, config.Now()); err != nil {
			return err
		}
		exec.Logf(paramsInt64(params, "job_id"),
			fmt.Sprintf("materialized %s rows=%d days=%d missing=%d", p.Key(), res.Rows, res.DaysRead, len(res.MissingDays)))
		return nil
	}
}

func aggregateStage(cfg config.Config, st *store.Store) jobs.StageFunc {
	return func(ctx context.Context, exec jobs.ExecutionContext, subject string, params map[string]any) error {
		p, err := periodFromParams(params)
		if err != nil {
			return err
		}
		src := filepath.Join(cfg.PeriodDir, silver.SilverPrefix+p.Key()+".zip")
		batch, err := table.ReadZip(src, enrich.Schema())
		if err != nil {
			return failPeriod(ctx, st, p, err)
		}
		wide, err := aggregate.Aggregate(batch, p)
		if err != nil {
			return failPeriod(ctx, st, p, err)
		}
		out := filepath.Join(cfg.GoldDir, GoldPrefix+p.Key()+".zip")
		if err := table.WriteZip(out, GoldPrefix+p.Key()+".csv", wide); err != nil {
			return failPeriod(ctx, st, p, err)
		}
		rec := &store.PeriodRecord{
			Key:        p.Key(),
			ReportType: string(p.Type),
			ReportDate: p.YYYYMM,
			Status:     "aggregated",
			Rows:       batch.NumRows(),
		}
		if err := st.UpsertPeriod(ctx, rec, config.Now()); err != nil {
			return err
		}
		metrics.IncPeriods()
		exec.Logf(paramsInt64(params, "job_id"),
			fmt.Sprintf("aggregated %s cases=%d columns=%d", p.Key(), batch.NumRows(), wide.NumCols()))
		return nil
	}
}

// combineStage reads every period aggregate present, reconciles them into
// one table, joins prior counterparts, and writes the final report table.
// Any reconciliation failure aborts the whole combine; no partial gold
// table is ever written.
func combineStage(cfg config.Config, st *store.Store) jobs.StageFunc {
	return func(ctx context.Context, exec jobs.ExecutionContext, subject string, params map[string]any) error {
		paths, err := filepath.Glob(filepath.Join(cfg.GoldDir, GoldPrefix+"*.zip"))
		if err != nil {
			return err
		}
		if len(paths) == 0 {
			return fmt.Errorf("no period aggregates under %s", cfg.GoldDir)
		}
		sortCombineOrder(paths)

		parts := make([]*table.Table, 0, len(paths))
		for _, path := range paths {
			t, err := aggregate.ReadWide(path)
			if err != nil {
				return fmt.Errorf("read aggregate %s: %w", filepath.Base(path), err)
			}
			parts = append(parts, t)
		}
		combined, err := gold.Combine(parts)
		if err != nil {
			return err
		}
		final, err := gold.AttachPrior(combined)
		if err != nil {
			return err
		}
		if err := gold.WriteGold(cfg.GoldPath(), final); err != nil {
			return err
		}
		metrics.IncGoldWrites()
		exec.Logf(paramsInt64(params, "job_id"),
			fmt.Sprintf("gold table written rows=%d columns=%d path=%s", final.NumRows(), final.NumCols(), cfg.GoldPath()))
		return nil
	}
}

// sortCombineOrder fixes the schema's first-seen column order: report
// periods before their prior counterparts, then lexical by key.
func sortCombineOrder(paths []string) {
	sort.Slice(paths, func(i, j int) bool {
		pi, pj := isPriorPath(paths[i]), isPriorPath(paths[j])
		if pi != pj {
			return !pi
		}
		return paths[i] < paths[j]
	})
}

func isPriorPath(path string) bool {
	return strings.HasPrefix(filepath.Base(path), GoldPrefix+"prior_")
}

func failPeriod(ctx context.Context, st *store.Store, p period.Period, err error) error {
	msg := err.Error()
	_ = st.UpsertPeriod(ctx, &store.PeriodRecord{
		Key:        p.Key(),
		ReportType: string(p.Type),
		ReportDate: p.YYYYMM,
		Status:     "failed",
		LastError:  &msg,
	}, config.Now())
	return err
}

func periodParams(p period.Period) map[string]any {
	return map[string]any{
		"report_type": string(p.Type),
		"yyyymm":      p.YYYYMM,
		"start":       p.Start.Format(dayLayout),
		"end":         p.End.Format(dayLayout),
	}
}

func periodFromParams(params map[string]any) (period.Period, error) {
	typ, _ := params["report_type"].(string)
	if typ == "" {
		return period.Period{}, fmt.Errorf("period params missing report_type")
	}
	start, err := time.Parse(dayLayout, stringParam(params, "start"))
	if err != nil {
		return period.Period{}, fmt.Errorf("period params bad start: %w", err)
	}
	end, err := time.Parse(dayLayout, stringParam(params, "end"))
	if err != nil {
		return period.Period{}, fmt.Errorf("period params bad end: %w", err)
	}
	yyyymm := int(paramsInt64(params, "yyyymm"))
	if yyyymm == 0 {
		return period.Period{}, fmt.Errorf("period params missing yyyymm")
	}
	return period.New(period.Type(typ), yyyymm, start, end), nil
}

func stringParam(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}

func paramsInt64(m map[string]any, key string) int64 {
	if v, ok := m[key]; ok {
		switch t := v.(type) {
		case float64:
			return int64(t)
		case int64:
			return t
		case int:
			return int64(t)
		}
	}
	return 0
}

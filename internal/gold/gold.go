// Package gold combines per-period aggregates into the final report table.
// Combination is all-or-nothing: any period aggregate that cannot be
// reconciled into the shared schema aborts the whole combine.
package gold

import (
	"fmt"

	"crime_pipeline/internal/period"
	"crime_pipeline/internal/table"
)

// Combine unions per-period aggregate rows into one table. Column order is
// first-seen across the inputs. After the union every column is reconciled
// to a single kind: int and float mix widens to float, anything mixing with
// strings is a hard error naming the column. Missing numeric cells fill
// with zero (an absent pivot combination means zero incidents); missing
// string cells stay null.
func Combine(parts []*table.Table) (*table.Table, error) {
	out := table.New()
	for _, p := range parts {
		out.AppendTable(p)
	}
	if err := reconcile(out); err != nil {
		return nil, err
	}
	return out, nil
}

func numericKind(k table.Kind) bool {
	return k == table.KindInt || k == table.KindFloat
}

func reconcile(t *table.Table) error {
	for _, col := range t.Columns() {
		kind := table.KindNull
		for r := 0; r < t.NumRows(); r++ {
			k := t.Value(r, col).Kind()
			switch {
			case k == table.KindNull || k == kind:
			case kind == table.KindNull:
				kind = k
			case numericKind(kind) && numericKind(k):
				kind = table.KindFloat
			default:
				return fmt.Errorf("column %s mixes %s and %s values across periods", col, kind, k)
			}
		}
		for r := 0; r < t.NumRows(); r++ {
			v := t.Value(r, col)
			switch {
			case v.IsNull() && kind == table.KindInt:
				t.Set(r, col, table.Int(0))
			case v.IsNull() && kind == table.KindFloat:
				t.Set(r, col, table.Float(0))
			case kind == table.KindFloat && v.Kind() == table.KindInt:
				f, _ := v.Float()
				t.Set(r, col, table.Float(f))
			}
		}
	}
	return nil
}

// AttachPrior splits the combined table into report rows and their internal
// prior counterparts, then left-joins each report row to the prior row that
// shares its anchor. Prior columns arrive prefixed prior_; report rows with
// no surviving prior keep nulls there. Prior rows do not appear in the
// output on their own.
func AttachPrior(combined *table.Table) (*table.Table, error) {
	type anchor struct {
		typ    period.Type
		yyyymm int64
	}
	priorAt := make(map[anchor]int)
	var currentRows []int

	for r := 0; r < combined.NumRows(); r++ {
		typ, ok := combined.Value(r, "report_type").Str()
		if !ok {
			return nil, fmt.Errorf("combined row %d has no report_type", r)
		}
		yyyymm, ok := combined.Value(r, "report_date").Int()
		if !ok {
			return nil, fmt.Errorf("combined row %d has no report_date", r)
		}
		pt := period.Type(typ)
		if !pt.IsPrior() {
			currentRows = append(currentRows, r)
			continue
		}
		key := anchor{pt.Current(), yyyymm}
		if _, dup := priorAt[key]; dup {
			return nil, fmt.Errorf("duplicate prior aggregate for %s %d", key.typ, key.yyyymm)
		}
		priorAt[key] = r
	}

	var valueCols []string
	for _, c := range combined.Columns() {
		if c != "report_type" && c != "report_date" {
			valueCols = append(valueCols, c)
		}
	}

	out := table.New(combined.Columns()...)
	for _, c := range valueCols {
		out.AddColumn("prior_" + c)
	}
	for _, r := range currentRows {
		i := out.AppendEmptyRow()
		for _, c := range combined.Columns() {
			out.Set(i, c, combined.Value(r, c))
		}
		typ, _ := combined.Value(r, "report_type").Str()
		yyyymm, _ := combined.Value(r, "report_date").Int()
		pr, ok := priorAt[anchor{period.Type(typ), yyyymm}]
		if !ok {
			continue
		}
		for _, c := range valueCols {
			out.Set(i, "prior_"+c, combined.Value(pr, c))
		}
	}
	return out, nil
}

// WriteGold persists the final report table atomically.
func WriteGold(path string, t *table.Table) error {
	return table.WriteCSVFile(path, t)
}

package aggregate

import (
	"strings"

	"crime_pipeline/internal/table"
)

// WideKind infers the persisted kind of an aggregate column from its name.
// Pivot columns are counts, so everything outside the fixed scalar set is
// an int.
func WideKind(col string) table.Kind {
	switch col {
	case "report_type", "start_date", "end_date":
		return table.KindString
	case "max_crime_risk_score":
		return table.KindFloat
	}
	if strings.HasPrefix(col, "avg_") {
		return table.KindFloat
	}
	return table.KindInt
}

// ReadWide loads a persisted period aggregate, restoring the cell kinds a
// schemaless CSV read flattens to strings.
func ReadWide(path string) (*table.Table, error) {
	raw, err := table.ReadZip(path, nil)
	if err != nil {
		return nil, err
	}
	cols := raw.Columns()
	out := table.New(cols...)
	for r := 0; r < raw.NumRows(); r++ {
		i := out.AppendEmptyRow()
		for _, c := range cols {
			out.Set(i, c, table.Decode(raw.Value(r, c).Encode(), WideKind(c)))
		}
	}
	return out, nil
}

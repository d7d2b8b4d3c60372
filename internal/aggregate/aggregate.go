// Package aggregate reduces a period-scoped batch to one wide summary row:
// scalar metrics plus per-dimension pivot columns. Pivots are held as
// category->count maps and only materialize as named columns at the table
// boundary, so the algorithm never depends on a fixed column list.
package aggregate

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"crime_pipeline/internal/period"
	"crime_pipeline/internal/table"
)

var whitespacePattern = regexp.MustCompile(`\s+`)

// dimension describes one pivot: the source column, the output column
// prefix, and the key-normalization rule applied before grouping. Key
// format is part of the downstream contract; geographic joins depend on it.
type dimension struct {
	column    string
	prefix    string
	normalize func(string) (string, bool)
}

func lowerSnake(s string) (string, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return "", false
	}
	return whitespacePattern.ReplaceAllString(s, "_"), true
}

func upperTrim(s string) (string, bool) {
	s = strings.ToUpper(strings.TrimSpace(s))
	return s, s != ""
}

func padded(width int) func(string) (string, bool) {
	return func(s string) (string, bool) {
		n, err := strconv.Atoi(strings.TrimSpace(s))
		if err != nil {
			return "", false
		}
		key := strconv.Itoa(n)
		for len(key) < width {
			key = "0" + key
		}
		return key, true
	}
}

var dimensions = []dimension{
	{column: "primary_type", prefix: "crime_", normalize: lowerSnake},
	{column: "fbi_code", prefix: "fbi_", normalize: upperTrim},
	{column: "beat", prefix: "beat_", normalize: padded(4)},
	{column: "ward", prefix: "ward_", normalize: padded(3)},
	{column: "district", prefix: "district_", normalize: padded(3)},
	{column: "community_area", prefix: "community_area_", normalize: padded(3)},
}

// Aggregate computes the one-row period aggregate for a stamped period
// batch. Unique-count metrics use distinct-value cardinality; sum-count
// metrics count true flags; means and maxes ignore nulls and yield null
// when every input is null.
func Aggregate(t *table.Table, p period.Period) (*table.Table, error) {
	out := table.New("report_type", "report_date", "start_date", "end_date")
	row := out.AppendEmptyRow()
	out.Set(row, "report_type", table.String(string(p.Type)))
	out.Set(row, "report_date", table.Int(int64(p.YYYYMM)))
	out.Set(row, "start_date", table.String(p.Start.Format("2006-01-02")))
	out.Set(row, "end_date", table.String(p.End.Format("2006-01-02")))

	out.Set(row, "total_cases", table.Int(int64(t.NumRows())))
	out.Set(row, "unique_case_numbers", uniqueCount(t, "case_number"))
	out.Set(row, "unique_crime_types", uniqueCount(t, "primary_type"))
	out.Set(row, "unique_fbi_codes", uniqueCount(t, "fbi_code"))
	out.Set(row, "unique_iucr_codes", uniqueCount(t, "iucr"))

	out.Set(row, "total_arrests", trueCount(t, "arrest"))
	out.Set(row, "total_domestic_cases", trueCount(t, "domestic"))
	out.Set(row, "total_weekend_cases", trueCount(t, "is_weekend"))
	out.Set(row, "total_nighttime_cases", trueCount(t, "is_nighttime"))
	out.Set(row, "total_daytime_cases", trueCount(t, "is_daytime"))
	out.Set(row, "total_violent_cases", trueCount(t, "is_violent"))
	out.Set(row, "total_property_cases", trueCount(t, "is_property"))
	out.Set(row, "total_drug_cases", trueCount(t, "is_drug_related"))
	out.Set(row, "total_public_order_cases", trueCount(t, "is_public_order"))
	out.Set(row, "total_weapon_cases", trueCount(t, "is_weapon_related"))
	out.Set(row, "total_high_risk_cases", trueCount(t, "high_risk_situation"))

	out.Set(row, "avg_crime_risk_score", mean(t, "crime_risk_score"))
	out.Set(row, "max_crime_risk_score", maxVal(t, "crime_risk_score"))
	out.Set(row, "avg_severity_level", mean(t, "crime_severity_level"))
	out.Set(row, "avg_distance_from_downtown_km", mean(t, "distance_from_downtown_km"))

	out.Set(row, "unique_beats", uniqueCount(t, "beat"))
	out.Set(row, "unique_wards", uniqueCount(t, "ward"))
	out.Set(row, "unique_districts", uniqueCount(t, "district"))
	out.Set(row, "unique_community_areas", uniqueCount(t, "community_area"))

	for _, dim := range dimensions {
		if !t.HasColumn(dim.column) {
			continue
		}
		counts, err := pivot(t, dim)
		if err != nil {
			return nil, err
		}
		keys := make([]string, 0, len(counts))
		for k := range counts {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			out.Set(row, dim.prefix+k, table.Int(counts[k]))
		}
	}
	return out, nil
}

// pivot groups records by normalized dimension value and counts distinct
// incident identifiers per category. Null and unnormalizable categories
// are excluded from the partition.
func pivot(t *table.Table, dim dimension) (map[string]int64, error) {
	seen := make(map[string]map[int64]bool)
	for r := 0; r < t.NumRows(); r++ {
		s, ok := t.Value(r, dim.column).Str()
		if !ok {
			continue
		}
		key, ok := dim.normalize(s)
		if !ok {
			continue
		}
		id, ok := t.Value(r, "id").Int()
		if !ok {
			return nil, fmt.Errorf("pivot %s: record %d has no numeric id", dim.column, r)
		}
		if seen[key] == nil {
			seen[key] = make(map[int64]bool)
		}
		seen[key][id] = true
	}
	counts := make(map[string]int64, len(seen))
	for k, ids := range seen {
		counts[k] = int64(len(ids))
	}
	return counts, nil
}

func uniqueCount(t *table.Table, col string) table.Value {
	if !t.HasColumn(col) {
		return table.Int(0)
	}
	seen := make(map[string]bool)
	for r := 0; r < t.NumRows(); r++ {
		v := t.Value(r, col)
		if v.IsNull() {
			continue
		}
		seen[v.Encode()] = true
	}
	return table.Int(int64(len(seen)))
}

func trueCount(t *table.Table, col string) table.Value {
	var n int64
	for r := 0; r < t.NumRows(); r++ {
		if b, ok := t.Value(r, col).Bool(); ok && b {
			n++
		}
	}
	return table.Int(n)
}

func mean(t *table.Table, col string) table.Value {
	var sum float64
	var n int
	for r := 0; r < t.NumRows(); r++ {
		if f, ok := t.Value(r, col).Float(); ok {
			sum += f
			n++
		}
	}
	if n == 0 {
		return table.Null()
	}
	return table.Float(sum / float64(n))
}

func maxVal(t *table.Table, col string) table.Value {
	var max float64
	found := false
	for r := 0; r < t.NumRows(); r++ {
		if f, ok := t.Value(r, col).Float(); ok {
			if !found || f > max {
				max = f
				found = true
			}
		}
	}
	if !found {
		return table.Null()
	}
	return table.Float(max)
}

package enrich

import (
	"errors"
	"testing"

	"crime_pipeline/internal/table"
)

func rawRow(overrides map[string]string) *table.Table {
	t := table.New("ID", "Case Number", "Date", "Primary Type", "FBI Code",
		"Latitude", "Longitude", "Beat", "District", "Ward", "Community Area",
		"Arrest", "Domestic")
	cells := map[string]string{
		"ID":             "1001",
		"Case Number":    "HZ1001",
		"Date":           "2024-03-15T22:00:00.000",
		"Primary Type":   "THEFT",
		"FBI Code":       "06",
		"Latitude":       "41.9000",
		"Longitude":      "-87.7000",
		"Beat":           "111",
		"District":       "5",
		"Ward":           "12",
		"Community Area": "8",
		"Arrest":         "false",
		"Domestic":       "false",
	}
	for k, v := range overrides {
		cells[k] = v
	}
	r := t.AppendEmptyRow()
	for k, v := range cells {
		if v == "" {
			t.Set(r, k, table.Null())
			continue
		}
		t.Set(r, k, table.String(v))
	}
	// Renaming happens in the enricher; keep raw headers mixed-case here.
	return t
}

func enrichOne(t *testing.T, overrides map[string]string) *table.Table {
	t.Helper()
	out, err := New(DefaultLookups()).Enrich(rawRow(overrides))
	if err != nil {
		t.Fatalf("enrich: %v", err)
	}
	return out
}

func TestEnrichTheftEveningScenario(t *testing.T) {
	out := enrichOne(t, nil)

	// 2024-03-15 is a Friday.
	checks := []struct {
		col  string
		want string
	}{
		{"primary_type", "theft"},
		{"date", "2024-03-15T22:00:00.000"},
		{"year", "2024"},
		{"quarter", "1"},
		{"month", "3"},
		{"hour", "22"},
		{"day_of_week_num", "4"},
		{"is_weekend", "false"},
		{"is_nighttime", "true"},
		{"is_daytime", "false"},
		{"is_late_night", "false"},
		{"part_of_day", "Evening"},
		{"season", "Spring"},
		{"is_property", "true"},
		{"is_violent", "false"},
		{"is_property_combined", "true"},
		{"fbi_category", "Theft"},
		{"crime_severity_level", "0"},
		{"crime_severity_label", "Unknown"},
		{"crime_risk_score", "2"},
		{"high_risk_situation", "false"},
		{"crime_category", "Property Crime"},
	}
	for _, c := range checks {
		if got := out.Value(0, c.col).Encode(); got != c.want {
			t.Fatalf("%s = %q, want %q", c.col, got, c.want)
		}
	}
	if cols := out.Columns(); len(cols) != len(CanonicalColumns) {
		t.Fatalf("column count %d, want %d", len(cols), len(CanonicalColumns))
	}
}

func TestEnrichRiskScoreComposition(t *testing.T) {
	cases := []struct {
		primary string
		fbi     string
		want    string
	}{
		{"BATTERY", "04B", "3"},
		{"NARCOTICS", "18", "1"},
		{"THEFT", "06", "2"},
		{"ARSON", "01A", "5"}, // property type + violent FBI code
		{"GAMBLING", "19", "0"},
	}
	for _, c := range cases {
		out := enrichOne(t, map[string]string{"Primary Type": c.primary, "FBI Code": c.fbi})
		if got := out.Value(0, "crime_risk_score").Encode(); got != c.want {
			t.Fatalf("%s/%s risk = %s, want %s", c.primary, c.fbi, got, c.want)
		}
	}
}

func TestEnrichOriginSentinelClearedAfterFlags(t *testing.T) {
	out := enrichOne(t, map[string]string{"Latitude": "0", "Longitude": "0"})

	if f, _ := out.Value(0, "is_missing_lat").Bool(); f {
		t.Fatalf("sentinel must not read as missing")
	}
	if f, _ := out.Value(0, "is_bad_location").Bool(); f {
		t.Fatalf("sentinel must not read as bad location")
	}
	for _, col := range []string{"latitude", "longitude", "lat_bin", "lon_bin", "text_lat_bin", "text_lon_bin", "geo_grid", "distance_from_downtown_km", "crime_density_bin"} {
		if !out.Value(0, col).IsNull() {
			t.Fatalf("%s should be null for origin sentinel, got %v", col, out.Value(0, col))
		}
	}
}

func TestEnrichMissingCoordinatesFlagged(t *testing.T) {
	out := enrichOne(t, map[string]string{"Latitude": "", "Longitude": ""})
	if f, _ := out.Value(0, "is_missing_lat").Bool(); !f {
		t.Fatalf("missing latitude should flag")
	}
	if f, _ := out.Value(0, "is_bad_location").Bool(); !f {
		t.Fatalf("missing coordinates should read as bad location")
	}
}

func TestEnrichSpatialBins(t *testing.T) {
	out := enrichOne(t, map[string]string{"Latitude": "41.87811", "Longitude": "-87.62979"})
	if got := out.Value(0, "lat_bin").Encode(); got != "41.8781" {
		t.Fatalf("lat_bin = %s", got)
	}
	if got, _ := out.Value(0, "geo_grid").Str(); got != "41.8781_-87.6298" {
		t.Fatalf("geo_grid = %q", got)
	}
	if got, _ := out.Value(0, "text_lat_bin").Str(); got != "41.8781" {
		t.Fatalf("text_lat_bin = %q", got)
	}
	if got, _ := out.Value(0, "text_lon_bin").Str(); got != "-87.6298" {
		t.Fatalf("text_lon_bin = %q", got)
	}
	if got, _ := out.Value(0, "crime_density_bin").Int(); got != 1 {
		t.Fatalf("crime_density_bin = %d", got)
	}
	if d, _ := out.Value(0, "distance_from_downtown_km").Float(); d > 0.02 {
		t.Fatalf("distance near center = %f", d)
	}
}

func TestEnrichUnparsableDateNullsTemporal(t *testing.T) {
	out := enrichOne(t, map[string]string{"Date": "not a date"})
	for _, col := range []string{"date", "year", "hour", "is_weekend", "part_of_day"} {
		if !out.Value(0, col).IsNull() {
			t.Fatalf("%s should be null, got %v", col, out.Value(0, col))
		}
	}
	// Categorical enrichment still applies.
	if got, _ := out.Value(0, "crime_category").Str(); got != "Property Crime" {
		t.Fatalf("crime_category = %q", got)
	}
}

func TestEnrichMissingRequiredColumnFailsBatch(t *testing.T) {
	raw := table.New("ID", "Date")
	r := raw.AppendEmptyRow()
	raw.Set(r, "ID", table.String("1"))
	raw.Set(r, "Date", table.String("2024-03-15T22:00:00.000"))

	_, err := New(DefaultLookups()).Enrich(raw)
	var missing *MissingColumnError
	if !errors.As(err, &missing) {
		t.Fatalf("expected MissingColumnError, got %v", err)
	}
	if len(missing.Columns) == 0 {
		t.Fatalf("error should name the missing columns")
	}
}

func TestEnrichHolidayObservance(t *testing.T) {
	// 2027-07-05 is the observed Independence Day (the 4th is a Sunday).
	out := enrichOne(t, map[string]string{"Date": "2027-07-05T10:00:00.000"})
	if f, _ := out.Value(0, "is_holiday").Bool(); !f {
		t.Fatalf("observed holiday should flag")
	}
	out = enrichOne(t, map[string]string{"Date": "2027-07-06T10:00:00.000"})
	if f, _ := out.Value(0, "is_holiday").Bool(); f {
		t.Fatalf("ordinary day should not flag")
	}
}

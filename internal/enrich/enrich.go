// Package enrich derives the engineered feature columns for incident
// batches: calendar parts, day-part flags, spatial bins and density, crime
// classification flags, and the composite risk fields.
package enrich

import (
	"math"
	"strconv"
	"strings"
	"time"

	"crime_pipeline/internal/normalize"
	"crime_pipeline/internal/table"
)

// DateLayout is the single source timestamp format. Go's parser accepts a
// trailing fractional-second field, which covers the feed's ".000" suffix.
const DateLayout = "2006-01-02T15:04:05"

// Fixed city-center reference point for the distance approximation.
const (
	CenterLat = 41.8781
	CenterLon = -87.6298
)

// BinPrecision is the spatial rounding used for bins, grid keys, and the
// density count: 4 decimal degrees, roughly 11 meters. Historical variants
// disagreed between 4 and 2 decimals; this pipeline uses one precision
// everywhere.
const BinPrecision = 4

var requiredColumns = []string{
	"latitude", "longitude", "beat", "district", "ward",
	"community_area", "primary_type", "fbi_code", "id", "date",
}

// CanonicalColumns is the silver schema: every enriched archive carries
// exactly these columns in this order, so heterogeneous raw batches
// harmonize before any period work happens.
var CanonicalColumns = []string{
	"id", "case_number", "date", "block", "iucr", "primary_type", "description",
	"location_description", "arrest", "domestic", "beat", "district", "ward",
	"community_area", "fbi_code", "year", "updated_on", "latitude", "longitude",
	"ward_out_of_range", "community_area_out_of_range",
	"quarter", "month", "day", "hour", "day_of_week_num", "week_of_year",
	"is_weekend", "is_weekday", "is_daytime", "is_nighttime", "is_am", "is_pm",
	"is_business_hours", "is_off_business_hours", "is_school_hours", "is_late_night",
	"part_of_day", "season", "is_holiday",
	"is_missing_lat", "is_missing_lon", "lat_out_of_range", "lon_out_of_range",
	"is_bad_location", "lat_bin", "lon_bin", "geo_grid",
	"distance_from_downtown_km", "crime_density_bin",
	"is_violent", "is_property", "is_drug_related", "is_public_order",
	"is_weapon_related", "fbi_category", "crime_severity_level",
	"crime_severity_label", "is_violent_fbi", "is_property_fbi",
	"is_violent_combined", "is_property_combined", "crime_risk_score",
	"high_risk_situation", "crime_category", "text_lat_bin", "text_lon_bin",
}

// Schema decodes silver CSV archives back into typed cells.
func Schema() table.Schema {
	s := table.Schema{
		"id":                            table.KindInt,
		"arrest":                        table.KindBool,
		"domestic":                      table.KindBool,
		"latitude":                      table.KindFloat,
		"longitude":                     table.KindFloat,
		"year":                          table.KindInt,
		"quarter":                       table.KindInt,
		"month":                         table.KindInt,
		"day":                           table.KindInt,
		"hour":                          table.KindInt,
		"day_of_week_num":               table.KindInt,
		"week_of_year":                  table.KindInt,
		"lat_bin":                       table.KindFloat,
		"lon_bin":                       table.KindFloat,
		"distance_from_downtown_km":     table.KindFloat,
		"crime_density_bin":             table.KindInt,
		"crime_severity_level":          table.KindInt,
		"crime_risk_score":              table.KindInt,
	}
	for _, c := range CanonicalColumns {
		if _, ok := s[c]; ok {
			continue
		}
		if strings.HasPrefix(c, "is_") || strings.HasSuffix(c, "_out_of_range") || c == "high_risk_situation" {
			s[c] = table.KindBool
		}
	}
	return s
}

// Enricher derives feature columns using injected lookup tables.
type Enricher struct {
	lookups Lookups
}

func New(lookups Lookups) *Enricher {
	return &Enricher{lookups: lookups}
}

// Enrich normalizes a raw batch and attaches all derived columns, returning
// the batch in canonical column order. A missing required column fails the
// whole batch with a MissingColumnError; per-record parse problems recover
// to null, never an error.
func (e *Enricher) Enrich(t *table.Table) (*table.Table, error) {
	lowerHeader(t)
	if missing := missingColumns(t); len(missing) > 0 {
		return nil, &MissingColumnError{Columns: missing}
	}

	normalize.Batch(t)

	n := t.NumRows()
	dates := make([]*time.Time, n)
	years := make(map[int]bool)
	for r := 0; r < n; r++ {
		if ts, ok := parseDate(t.Value(r, "date")); ok {
			dates[r] = &ts
			years[ts.Year()] = true
		}
		t.Set(r, "arrest", parseBoolish(t.Value(r, "arrest")))
		t.Set(r, "domestic", parseBoolish(t.Value(r, "domestic")))
	}
	holidays := buildHolidayCalendar(years)

	for r := 0; r < n; r++ {
		e.setTemporal(t, r, dates[r], holidays)
	}
	e.setSpatial(t, n)
	for r := 0; r < n; r++ {
		e.setCategorical(t, r)
	}

	for r := 0; r < n; r++ {
		if d := dates[r]; d != nil {
			t.Set(r, "date", table.String(d.Format(DateLayout)+".000"))
		} else {
			t.Set(r, "date", table.Null())
		}
	}
	return t.Select(CanonicalColumns), nil
}

// lowerHeader canonicalizes column names: lowercase, spaces to underscores.
// Export headers and API field names then land on the same schema.
func lowerHeader(t *table.Table) {
	for _, c := range t.Columns() {
		canon := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(c)), " ", "_")
		t.RenameColumn(c, canon)
	}
}

func missingColumns(t *table.Table) []string {
	var missing []string
	for _, c := range requiredColumns {
		if !t.HasColumn(c) {
			missing = append(missing, c)
		}
	}
	return missing
}

func parseDate(v table.Value) (time.Time, bool) {
	s, ok := v.Str()
	if !ok {
		return time.Time{}, false
	}
	ts, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, false
	}
	return ts, true
}

var truthy = map[string]bool{"true": true, "t": true, "1": true, "yes": true, "y": true}

func parseBoolish(v table.Value) table.Value {
	if b, ok := v.Bool(); ok {
		return table.Bool(b)
	}
	s, ok := v.Str()
	if !ok {
		return table.Bool(false)
	}
	return table.Bool(truthy[strings.ToLower(strings.TrimSpace(s))])
}

func (e *Enricher) setTemporal(t *table.Table, r int, d *time.Time, holidays holidayCalendar) {
	if d == nil {
		for _, c := range []string{
			"year", "quarter", "month", "day", "hour", "day_of_week_num",
			"week_of_year", "is_weekend", "is_weekday", "is_daytime",
			"is_nighttime", "is_am", "is_pm", "is_business_hours",
			"is_off_business_hours", "is_school_hours", "is_late_night",
			"part_of_day", "season", "is_holiday",
		} {
			t.Set(r, c, table.Null())
		}
		return
	}

	hour := d.Hour()
	month := int(d.Month())
	// Monday=0 .. Sunday=6.
	dow := (int(d.Weekday()) + 6) % 7
	_, week := d.ISOWeek()
	weekend := dow >= 5

	t.Set(r, "year", table.Int(int64(d.Year())))
	t.Set(r, "quarter", table.Int(int64((month-1)/3+1)))
	t.Set(r, "month", table.Int(int64(month)))
	t.Set(r, "day", table.Int(int64(d.Day())))
	t.Set(r, "hour", table.Int(int64(hour)))
	t.Set(r, "day_of_week_num", table.Int(int64(dow)))
	t.Set(r, "week_of_year", table.Int(int64(week)))
	t.Set(r, "is_weekend", table.Bool(weekend))
	t.Set(r, "is_weekday", table.Bool(!weekend))
	t.Set(r, "is_daytime", table.Bool(hour >= 6 && hour <= 18))
	t.Set(r, "is_nighttime", table.Bool(hour < 6 || hour > 18))
	t.Set(r, "is_am", table.Bool(hour <= 11))
	t.Set(r, "is_pm", table.Bool(hour > 11))
	t.Set(r, "is_business_hours", table.Bool(hour >= 9 && hour <= 17))
	t.Set(r, "is_off_business_hours", table.Bool(hour < 9 || hour > 17))
	t.Set(r, "is_school_hours", table.Bool(hour >= 8 && hour <= 15 && !weekend))
	t.Set(r, "is_late_night", table.Bool(hour <= 5))
	t.Set(r, "part_of_day", table.String(partOfDay(hour)))
	t.Set(r, "season", table.String(season(month)))
	t.Set(r, "is_holiday", table.Bool(holidays.contains(*d)))
}

func partOfDay(hour int) string {
	switch {
	case hour < 6:
		return "Night"
	case hour < 12:
		return "Morning"
	case hour < 18:
		return "Afternoon"
	default:
		return "Evening"
	}
}

func season(month int) string {
	switch {
	case month == 12 || month <= 2:
		return "Winter"
	case month <= 5:
		return "Spring"
	case month <= 8:
		return "Summer"
	default:
		return "Fall"
	}
}

func (e *Enricher) setSpatial(t *table.Table, n int) {
	type coord struct {
		ok       bool
		lat, lon float64
	}
	coords := make([]coord, n)
	for r := 0; r < n; r++ {
		lat, latOK := floatOf(t.Value(r, "latitude"))
		lon, lonOK := floatOf(t.Value(r, "longitude"))

		t.Set(r, "is_missing_lat", table.Bool(!latOK))
		t.Set(r, "is_missing_lon", table.Bool(!lonOK))
		latOOR := latOK && (lat < -90 || lat > 90)
		lonOOR := lonOK && (lon < -180 || lon > 180)
		t.Set(r, "lat_out_of_range", table.Bool(latOOR))
		t.Set(r, "lon_out_of_range", table.Bool(lonOOR))
		t.Set(r, "is_bad_location", table.Bool(!latOK || !lonOK || latOOR || lonOOR))

		// (0,0) is the feed's sentinel for unknown location; clear it
		// before binning so it cannot form a false cluster at the origin.
		if latOK && lonOK && lat == 0 && lon == 0 {
			latOK, lonOK = false, false
		}
		if latOK && lonOK && !latOOR && !lonOOR {
			coords[r] = coord{ok: true, lat: lat, lon: lon}
			t.Set(r, "latitude", table.Float(lat))
			t.Set(r, "longitude", table.Float(lon))
		} else {
			t.Set(r, "latitude", table.Null())
			t.Set(r, "longitude", table.Null())
		}
	}

	density := make(map[string]int64)
	grids := make([]string, n)
	for r := 0; r < n; r++ {
		if !coords[r].ok {
			continue
		}
		grid := gridKey(coords[r].lat, coords[r].lon)
		grids[r] = grid
		density[grid]++
	}

	for r := 0; r < n; r++ {
		if !coords[r].ok {
			for _, c := range []string{"lat_bin", "lon_bin", "text_lat_bin", "text_lon_bin", "geo_grid", "distance_from_downtown_km", "crime_density_bin"} {
				t.Set(r, c, table.Null())
			}
			continue
		}
		lat, lon := coords[r].lat, coords[r].lon
		latBin, lonBin := roundTo(lat, BinPrecision), roundTo(lon, BinPrecision)
		t.Set(r, "lat_bin", table.Float(latBin))
		t.Set(r, "lon_bin", table.Float(lonBin))
		t.Set(r, "text_lat_bin", table.String(strconv.FormatFloat(latBin, 'f', BinPrecision, 64)))
		t.Set(r, "text_lon_bin", table.String(strconv.FormatFloat(lonBin, 'f', BinPrecision, 64)))
		t.Set(r, "geo_grid", table.String(grids[r]))
		t.Set(r, "distance_from_downtown_km", table.Float(distanceFromCenter(lat, lon)))
		t.Set(r, "crime_density_bin", table.Int(density[grids[r]]))
	}
}

func floatOf(v table.Value) (float64, bool) {
	if f, ok := v.Float(); ok {
		return f, true
	}
	s, ok := v.Str()
	if !ok {
		return 0, false
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

func roundTo(f float64, decimals int) float64 {
	scale := math.Pow10(decimals)
	return math.Round(f*scale) / scale
}

func gridKey(lat, lon float64) string {
	return strconv.FormatFloat(roundTo(lat, BinPrecision), 'f', BinPrecision, 64) +
		"_" + strconv.FormatFloat(roundTo(lon, BinPrecision), 'f', BinPrecision, 64)
}

// distanceFromCenter is the historical planar approximation in km, not a
// geodesic: 111 km per degree latitude, 85 km per degree longitude at the
// city's latitude.
func distanceFromCenter(lat, lon float64) float64 {
	dy := 111 * (lat - CenterLat)
	dx := 85 * (lon - CenterLon)
	return math.Sqrt(dy*dy + dx*dx)
}

func (e *Enricher) setCategorical(t *table.Table, r int) {
	primary, _ := t.Value(r, "primary_type").Str()
	fbi, _ := t.Value(r, "fbi_code").Str()

	violent := e.lookups.ViolentTypes[primary]
	property := e.lookups.PropertyTypes[primary]
	drug := e.lookups.DrugTypes[primary]
	publicOrder := e.lookups.PublicOrderTypes[primary]
	weapon := e.lookups.WeaponTypes[primary]
	t.Set(r, "is_violent", table.Bool(violent))
	t.Set(r, "is_property", table.Bool(property))
	t.Set(r, "is_drug_related", table.Bool(drug))
	t.Set(r, "is_public_order", table.Bool(publicOrder))
	t.Set(r, "is_weapon_related", table.Bool(weapon))

	category, ok := e.lookups.FBICategories[fbi]
	if !ok {
		category = "Unknown"
	}
	severity := e.lookups.SeverityByCategory[category]
	label, ok := e.lookups.SeverityLabels[severity]
	if !ok {
		label = "Unknown"
	}
	t.Set(r, "fbi_category", table.String(category))
	t.Set(r, "crime_severity_level", table.Int(int64(severity)))
	t.Set(r, "crime_severity_label", table.String(label))

	violentFBI := e.lookups.ViolentFBICodes[fbi]
	propertyFBI := e.lookups.PropertyFBICodes[fbi]
	t.Set(r, "is_violent_fbi", table.Bool(violentFBI))
	t.Set(r, "is_property_fbi", table.Bool(propertyFBI))

	violentCombined := violent || violentFBI
	propertyCombined := property || propertyFBI
	t.Set(r, "is_violent_combined", table.Bool(violentCombined))
	t.Set(r, "is_property_combined", table.Bool(propertyCombined))

	risk := 3*b2i(violentCombined) + 2*b2i(propertyCombined) + b2i(drug)
	t.Set(r, "crime_risk_score", table.Int(risk))

	nighttime, _ := t.Value(r, "is_nighttime").Bool()
	weekend, _ := t.Value(r, "is_weekend").Bool()
	t.Set(r, "high_risk_situation", table.Bool((violentCombined && nighttime) || (weapon && weekend)))

	// Priority order is significant: violent > property > drug > weapon >
	// public order > other.
	switch {
	case violentCombined:
		t.Set(r, "crime_category", table.String("Violent Crime"))
	case propertyCombined:
		t.Set(r, "crime_category", table.String("Property Crime"))
	case drug:
		t.Set(r, "crime_category", table.String("Drug Crime"))
	case weapon:
		t.Set(r, "crime_category", table.String("Weapons Crime"))
	case publicOrder:
		t.Set(r, "crime_category", table.String("Public Order Crime"))
	default:
		t.Set(r, "crime_category", table.String("Other"))
	}
}

func b2i(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

// Package normalize canonicalizes raw incident fields before enrichment.
// Re-running it over its own output is a fixed point: canonical values are
// left untouched and _raw companions are only added the first time a field
// is cleaned.
package normalize

import (
	"regexp"
	"strconv"
	"strings"

	"crime_pipeline/internal/table"
)

var (
	nonAlnumPattern     = regexp.MustCompile(`[^0-9A-Za-z]`)
	nonDigitPattern     = regexp.MustCompile(`[^0-9]`)
	digitRunPattern     = regexp.MustCompile(`(\d+)`)
	punctuationPattern  = regexp.MustCompile(`[^0-9A-Za-z\s_]`)
	whitespacePattern   = regexp.MustCompile(`\s+`)
)

// Ward and community-area codes have known valid ranges in the feed.
const (
	wardMin          = 1
	wardMax          = 50
	communityAreaMin = 1
	communityAreaMax = 100
)

var blockReplacements = []struct{ pattern *regexp.Regexp; repl string }{
	{regexp.MustCompile(`XX`), "00"},
	{regexp.MustCompile(`\bST\b`), "STREET"},
	{regexp.MustCompile(`\bAVE\b`), "AVENUE"},
	{regexp.MustCompile(`\bBLVD\b`), "BOULEVARD"},
	{regexp.MustCompile(`\bDR\b`), "DRIVE"},
	{regexp.MustCompile(`\bLN\b`), "LANE"},
	{regexp.MustCompile(`\bCT\b`), "COURT"},
	{regexp.MustCompile(`\bPL\b`), "PLACE"},
	{regexp.MustCompile(`\bN\b`), "NORTH"},
	{regexp.MustCompile(`\bS\b`), "SOUTH"},
	{regexp.MustCompile(`\bE\b`), "EAST"},
	{regexp.MustCompile(`\bW\b`), "WEST"},
}

var locationReplacements = []struct{ pattern *regexp.Regexp; repl string }{
	{regexp.MustCompile(`(?i)\bAPT\b`), "APARTMENT"},
	{regexp.MustCompile(`(?i)\bRESIDENCE\b`), "HOME"},
}

// Batch cleans the raw geography, code, and free-text fields in place and
// attaches validation flag columns. It only touches columns present in the
// batch; the enricher decides which columns are required.
func Batch(t *table.Table) *table.Table {
	preserveRaw(t, "beat")
	applyString(t, "beat", func(s string) table.Value { return padCode(s, 4) })

	preserveRaw(t, "district")
	applyString(t, "district", func(s string) table.Value { return padDigits(s, 3) })

	preserveRaw(t, "community_area")
	applyString(t, "community_area", func(s string) table.Value { return padDigits(s, 3) })

	preserveRaw(t, "ward")
	applyString(t, "ward", func(s string) table.Value {
		m := digitRunPattern.FindString(s)
		if m == "" {
			return table.Null()
		}
		n, err := strconv.Atoi(m)
		if err != nil {
			return table.Null()
		}
		return table.String(zfill(strconv.Itoa(n), 3))
	})

	preserveRaw(t, "primary_type")
	applyString(t, "primary_type", func(s string) table.Value {
		s = punctuationPattern.ReplaceAllString(strings.TrimSpace(s), "")
		s = whitespacePattern.ReplaceAllString(s, "_")
		return table.String(strings.ToLower(s))
	})

	preserveRaw(t, "iucr")
	applyString(t, "iucr", func(s string) table.Value {
		s = nonAlnumPattern.ReplaceAllString(strings.TrimSpace(s), "")
		if s == "" {
			return table.Null()
		}
		return table.String(zfill(s, 4))
	})

	preserveRaw(t, "description")
	applyString(t, "description", func(s string) table.Value {
		s = punctuationPattern.ReplaceAllString(strings.TrimSpace(s), "")
		s = whitespacePattern.ReplaceAllString(s, " ")
		return table.String(strings.ToLower(s))
	})

	preserveRaw(t, "fbi_code")
	applyString(t, "fbi_code", func(s string) table.Value {
		s = nonAlnumPattern.ReplaceAllString(strings.TrimSpace(s), "")
		if s == "" {
			return table.Null()
		}
		return table.String(strings.ToUpper(s))
	})

	preserveRaw(t, "case_number")
	applyString(t, "case_number", func(s string) table.Value {
		return table.String(nonAlnumPattern.ReplaceAllString(strings.TrimSpace(s), ""))
	})

	preserveRaw(t, "block")
	applyString(t, "block", func(s string) table.Value {
		s = strings.ToUpper(strings.TrimSpace(s))
		for _, r := range blockReplacements {
			s = r.pattern.ReplaceAllString(s, r.repl)
		}
		return table.String(whitespacePattern.ReplaceAllString(s, " "))
	})

	preserveRaw(t, "location_description")
	applyString(t, "location_description", func(s string) table.Value {
		s = strings.TrimSpace(s)
		for _, r := range locationReplacements {
			s = r.pattern.ReplaceAllString(s, r.repl)
		}
		return table.String(strings.ToLower(whitespacePattern.ReplaceAllString(s, " ")))
	})

	flagRange(t, "ward", "ward_out_of_range", wardMin, wardMax)
	flagRange(t, "community_area", "community_area_out_of_range", communityAreaMin, communityAreaMax)
	return t
}

// preserveRaw copies the original column under a _raw suffix the first time
// the field is cleaned. On already-normalized data the _raw column exists,
// so nothing is duplicated.
func preserveRaw(t *table.Table, col string) {
	rawCol := col + "_raw"
	if !t.HasColumn(col) || t.HasColumn(rawCol) {
		return
	}
	t.AddColumn(rawCol)
	for r := 0; r < t.NumRows(); r++ {
		t.Set(r, rawCol, t.Value(r, col))
	}
}

func applyString(t *table.Table, col string, fn func(string) table.Value) {
	if !t.HasColumn(col) {
		return
	}
	for r := 0; r < t.NumRows(); r++ {
		v := t.Value(r, col)
		if v.IsNull() {
			continue
		}
		s, ok := v.Str()
		if !ok {
			s = v.Encode()
		}
		t.Set(r, col, fn(s))
	}
}

// padCode strips non-alphanumerics, parses the remainder as an integer when
// possible, and re-renders zero-padded text. Unparsable values become null.
func padCode(s string, width int) table.Value {
	s = nonAlnumPattern.ReplaceAllString(s, "")
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return table.Null()
	}
	return table.String(zfill(strconv.FormatInt(n, 10), width))
}

func padDigits(s string, width int) table.Value {
	s = nonDigitPattern.ReplaceAllString(s, "")
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return table.Null()
	}
	return table.String(zfill(strconv.FormatInt(n, 10), width))
}

func zfill(s string, width int) string {
	for len(s) < width {
		s = "0" + s
	}
	return s
}

// flagRange attaches a boolean companion column: true when the cleaned code
// is missing, unparsable, or outside [min, max]. Records are never dropped
// here; downstream consumers decide whether to exclude them.
func flagRange(t *table.Table, col, flagCol string, min, max int) {
	if !t.HasColumn(col) {
		if !t.HasColumn(flagCol) {
			t.AddColumn(flagCol)
			for r := 0; r < t.NumRows(); r++ {
				t.Set(r, flagCol, table.Bool(false))
			}
		}
		return
	}
	t.AddColumn(flagCol)
	for r := 0; r < t.NumRows(); r++ {
		s, ok := t.Value(r, col).Str()
		if !ok {
			t.Set(r, flagCol, table.Bool(true))
			continue
		}
		n, err := strconv.Atoi(s)
		if err != nil {
			t.Set(r, flagCol, table.Bool(true))
			continue
		}
		t.Set(r, flagCol, table.Bool(n < min || n > max))
	}
}

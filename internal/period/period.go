// Package period enumerates reporting windows over the observed date range.
// Generation is a pure function: identical inputs produce identical,
// order-stable output.
package period

import (
	"fmt"
	"strings"
	"time"
)

// Type tags a reporting window. Prior types exist only to feed the
// prior-period join; they are never surfaced as standalone report periods.
type Type string

const (
	R12      Type = "R12"
	YTD      Type = "YTD"
	PriorR12 Type = "Prior R12"
	PriorYTD Type = "Prior YTD"
)

// IsPrior reports whether the type is an internal prior counterpart.
func (t Type) IsPrior() bool { return t == PriorR12 || t == PriorYTD }

// Current strips the prior tag: Prior R12 -> R12, Prior YTD -> YTD.
func (t Type) Current() Type {
	return Type(strings.TrimPrefix(string(t), "Prior "))
}

// MinValidStart guards against spurious periods from corrupt or placeholder
// years in the feed: any window starting earlier is discarded entirely.
var MinValidStart = time.Date(2001, 1, 1, 0, 0, 0, 0, time.UTC)

// rolling window length in days
const r12Days = 365

// Period is one reporting window anchored at a month end.
type Period struct {
	Type       Type
	ReportDate time.Time // month-end anchor
	YYYYMM     int
	Start      time.Time
	End        time.Time
}

// New rebuilds a period from its stored identity.
func New(t Type, yyyymm int, start, end time.Time) Period {
	return Period{
		Type:       t,
		ReportDate: monthEnd(yyyymm/100, time.Month(yyyymm%100)),
		YYYYMM:     yyyymm,
		Start:      start,
		End:        end,
	}
}

// Key is the period's stable file identity, e.g. "r12_2024_01_2024_12".
func (p Period) Key() string {
	typ := strings.ReplaceAll(strings.ToLower(string(p.Type)), " ", "_")
	return fmt.Sprintf("%s_%s_%s", typ, p.Start.Format("2006_01"), p.End.Format("2006_01"))
}

// Contains reports whether an event date falls inside the window,
// inclusive on both ends.
func (p Period) Contains(d time.Time) bool {
	day := time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC)
	return !day.Before(p.Start) && !day.After(p.End)
}

func monthEnd(year int, month time.Month) time.Time {
	return time.Date(year, month+1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, -1)
}

// FirstAnchor returns the earliest date eligible to anchor reports over data
// beginning at minDate: one rolling year later, so the first R12 window is
// fully covered by observed data.
func FirstAnchor(minDate time.Time) time.Time {
	return minDate.AddDate(0, 0, r12Days)
}

// Generate walks month boundaries from minDate to maxDate inclusive and
// emits, per month-end anchor, the retained R12 and YTD windows plus their
// internal prior counterparts. Windows starting before MinValidStart are
// dropped, priors included; a current period whose prior was dropped simply
// has no prior match later.
func Generate(minDate, maxDate time.Time) []Period {
	var out []Period
	if maxDate.Before(minDate) {
		return out
	}

	year, month := minDate.Year(), minDate.Month()
	for {
		anchor := monthEnd(year, month)
		if anchor.After(monthEnd(maxDate.Year(), maxDate.Month())) {
			break
		}
		yyyymm := year*100 + int(month)

		r12Start := anchor.AddDate(0, 0, -r12Days)
		priorR12End := r12Start.AddDate(0, 0, -1)
		ytdStart := time.Date(year, 1, 1, 0, 0, 0, 0, time.UTC)
		priorYTDStart := time.Date(year-1, 1, 1, 0, 0, 0, 0, time.UTC)
		priorYTDEnd := monthEnd(year-1, month)

		candidates := []Period{
			{Type: R12, ReportDate: anchor, YYYYMM: yyyymm, Start: r12Start, End: anchor},
			{Type: YTD, ReportDate: anchor, YYYYMM: yyyymm, Start: ytdStart, End: anchor},
			{Type: PriorR12, ReportDate: anchor, YYYYMM: yyyymm, Start: priorR12End.AddDate(0, 0, -r12Days), End: priorR12End},
			{Type: PriorYTD, ReportDate: anchor, YYYYMM: yyyymm, Start: priorYTDStart, End: priorYTDEnd},
		}
		for _, p := range candidates {
			if p.Start.Before(MinValidStart) {
				continue
			}
			out = append(out, p)
		}

		if month == time.December {
			year, month = year+1, time.January
		} else {
			month++
		}
	}
	return out
}

// Retained filters out the internal prior counterparts.
func Retained(periods []Period) []Period {
	var out []Period
	for _, p := range periods {
		if !p.Type.IsPrior() {
			out = append(out, p)
		}
	}
	return out
}

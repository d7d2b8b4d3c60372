package period

import (
	"reflect"
	"testing"
	"time"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func find(periods []Period, typ Type, yyyymm int) (Period, bool) {
	for _, p := range periods {
		if p.Type == typ && p.YYYYMM == yyyymm {
			return p, true
		}
	}
	return Period{}, false
}

func TestGenerateAnchorsAtMonthEnd(t *testing.T) {
	periods := Generate(day(2025, time.June, 10), day(2025, time.June, 20))

	r12, ok := find(periods, R12, 202506)
	if !ok {
		t.Fatalf("missing R12 202506")
	}
	if !r12.ReportDate.Equal(day(2025, time.June, 30)) {
		t.Fatalf("anchor = %s", r12.ReportDate)
	}
	if !r12.End.Equal(day(2025, time.June, 30)) {
		t.Fatalf("r12 end = %s", r12.End)
	}
	if !r12.Start.Equal(day(2024, time.June, 30)) {
		t.Fatalf("r12 start = %s", r12.Start)
	}
}

func TestGeneratePriorYTDWindow(t *testing.T) {
	periods := Generate(day(2025, time.June, 1), day(2025, time.June, 30))

	ytd, ok := find(periods, YTD, 202506)
	if !ok {
		t.Fatalf("missing YTD 202506")
	}
	if !ytd.Start.Equal(day(2025, time.January, 1)) || !ytd.End.Equal(day(2025, time.June, 30)) {
		t.Fatalf("ytd window = %s..%s", ytd.Start, ytd.End)
	}

	prior, ok := find(periods, PriorYTD, 202506)
	if !ok {
		t.Fatalf("missing Prior YTD 202506")
	}
	if !prior.Start.Equal(day(2024, time.January, 1)) || !prior.End.Equal(day(2024, time.June, 30)) {
		t.Fatalf("prior ytd window = %s..%s", prior.Start, prior.End)
	}
}

func TestGeneratePriorYTDFebruaryEndDoesNotOverflow(t *testing.T) {
	// Anchored at Feb 2025, the prior YTD must end on Feb 29 2024, not
	// spill into March.
	periods := Generate(day(2025, time.February, 5), day(2025, time.February, 5))
	prior, ok := find(periods, PriorYTD, 202502)
	if !ok {
		t.Fatalf("missing Prior YTD 202502")
	}
	if !prior.End.Equal(day(2024, time.February, 29)) {
		t.Fatalf("prior ytd end = %s", prior.End)
	}
}

func TestGenerateIsDeterministic(t *testing.T) {
	a := Generate(day(2024, time.November, 3), day(2025, time.February, 10))
	b := Generate(day(2024, time.November, 3), day(2025, time.February, 10))
	if !reflect.DeepEqual(a, b) {
		t.Fatalf("generation not stable")
	}
	if len(a) != 4*4 {
		t.Fatalf("expected 16 periods for 4 anchors, got %d", len(a))
	}
}

func TestGenerateDropsWindowsBeforeMinValidStart(t *testing.T) {
	periods := Generate(day(2001, time.June, 1), day(2001, time.June, 30))
	if _, ok := find(periods, YTD, 200106); !ok {
		t.Fatalf("YTD 200106 starts at 2001-01-01 and must survive")
	}
	if _, ok := find(periods, R12, 200106); ok {
		t.Fatalf("R12 200106 reaches back before 2001 and must be dropped")
	}
	for _, p := range periods {
		if p.Start.Before(MinValidStart) {
			t.Fatalf("window %s starts before floor", p.Key())
		}
	}
}

func TestKeyAndTagHelpers(t *testing.T) {
	periods := Generate(day(2025, time.June, 1), day(2025, time.June, 30))
	prior, _ := find(periods, PriorR12, 202506)
	if got := prior.Key(); got != "prior_r12_2023_06_2024_06" {
		t.Fatalf("key = %q", got)
	}
	if !prior.Type.IsPrior() {
		t.Fatalf("prior type must report prior")
	}
	if prior.Type.Current() != R12 {
		t.Fatalf("current of %q = %q", prior.Type, prior.Type.Current())
	}

	retained := Retained(periods)
	for _, p := range retained {
		if p.Type.IsPrior() {
			t.Fatalf("retained set contains prior %s", p.Key())
		}
	}
	if len(retained) != 2 {
		t.Fatalf("retained = %d", len(retained))
	}
}

func TestContainsIsInclusive(t *testing.T) {
	p := Period{Start: day(2025, time.January, 1), End: day(2025, time.June, 30)}
	if !p.Contains(time.Date(2025, time.June, 30, 23, 59, 0, 0, time.UTC)) {
		t.Fatalf("end day should be inside")
	}
	if !p.Contains(day(2025, time.January, 1)) {
		t.Fatalf("start day should be inside")
	}
	if p.Contains(day(2025, time.July, 1)) {
		t.Fatalf("day after end should be outside")
	}
}

func TestFirstAnchorCoversFirstR12(t *testing.T) {
	min := day(2024, time.March, 15)
	if got := FirstAnchor(min); !got.Equal(day(2025, time.March, 15)) {
		t.Fatalf("first anchor = %s", got)
	}

	periods := Generate(FirstAnchor(min), day(2025, time.March, 20))
	if len(periods) != 4 {
		t.Fatalf("periods = %d", len(periods))
	}
	for _, p := range periods {
		if p.Type == R12 && p.Start.Before(min) {
			t.Fatalf("R12 window %s starts before observed data", p.Key())
		}
	}
}

func TestGenerateEmptyWhenWindowTooShort(t *testing.T) {
	min := day(2024, time.March, 15)
	if got := Generate(FirstAnchor(min), day(2024, time.March, 16)); len(got) != 0 {
		t.Fatalf("expected no periods for a sub-year window, got %d", len(got))
	}
}

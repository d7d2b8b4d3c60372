package enrich

import "time"

// holidayCalendar is the set of observed US public holidays, built per the
// distinct years present in a batch. Membership is day-precision.
type holidayCalendar map[string]bool

func dateKey(t time.Time) string { return t.Format("2006-01-02") }

func buildHolidayCalendar(years map[int]bool) holidayCalendar {
	cal := make(holidayCalendar)
	for year := range years {
		for _, d := range holidaysForYear(year) {
			cal[dateKey(d)] = true
			// Federal observation shifts Saturday holidays to Friday and
			// Sunday holidays to Monday; both the actual and observed
			// dates count as holidays.
			switch d.Weekday() {
			case time.Saturday:
				cal[dateKey(d.AddDate(0, 0, -1))] = true
			case time.Sunday:
				cal[dateKey(d.AddDate(0, 0, 1))] = true
			}
		}
	}
	return cal
}

func (c holidayCalendar) contains(t time.Time) bool {
	return c[dateKey(t)]
}

func holidaysForYear(year int) []time.Time {
	days := []time.Time{
		date(year, time.January, 1),                       // New Year's Day
		nthWeekday(year, time.January, time.Monday, 3),    // Martin Luther King Jr. Day
		nthWeekday(year, time.February, time.Monday, 3),   // Washington's Birthday
		lastWeekday(year, time.May, time.Monday),          // Memorial Day
		date(year, time.July, 4),                          // Independence Day
		nthWeekday(year, time.September, time.Monday, 1),  // Labor Day
		nthWeekday(year, time.October, time.Monday, 2),    // Columbus Day
		date(year, time.November, 11),                     // Veterans Day
		nthWeekday(year, time.November, time.Thursday, 4), // Thanksgiving
		date(year, time.December, 25),                     // Christmas Day
	}
	if year >= 2021 {
		days = append(days, date(year, time.June, 19)) // Juneteenth
	}
	return days
}

func date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

func nthWeekday(year int, month time.Month, weekday time.Weekday, n int) time.Time {
	d := date(year, month, 1)
	for d.Weekday() != weekday {
		d = d.AddDate(0, 0, 1)
	}
	return d.AddDate(0, 0, 7*(n-1))
}

func lastWeekday(year int, month time.Month, weekday time.Weekday) time.Time {
	d := date(year, month+1, 1).AddDate(0, 0, -1)
	for d.Weekday() != weekday {
		d = d.AddDate(0, 0, -1)
	}
	return d
}

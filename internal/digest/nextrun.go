package digest

import "time"

// NextRun computes the first instant strictly after `after` at which the
// schedule should fire. All computation is UTC.
//
// Monthly schedules clamp the configured day to the last day of short
// months: a day-31 schedule fires on Feb 28 (or 29), Apr 30, and so on.
func (s EmailSchedule) NextRun(after time.Time) time.Time {
	after = after.UTC()
	switch s.Frequency {
	case FreqHourly:
		next := time.Date(after.Year(), after.Month(), after.Day(), after.Hour(), s.Minute, 0, 0, time.UTC)
		if !next.After(after) {
			next = next.Add(time.Hour)
		}
		return next

	case FreqDaily, FreqOnce:
		next := time.Date(after.Year(), after.Month(), after.Day(), s.Hour, s.Minute, 0, 0, time.UTC)
		if !next.After(after) {
			next = next.AddDate(0, 0, 1)
		}
		return next

	case FreqWeekly:
		next := time.Date(after.Year(), after.Month(), after.Day(), s.Hour, s.Minute, 0, 0, time.UTC)
		days := (s.Weekday - int(next.Weekday()) + 7) % 7
		next = next.AddDate(0, 0, days)
		if !next.After(after) {
			next = next.AddDate(0, 0, 7)
		}
		return next

	case FreqMonthly:
		next := monthlyOn(after.Year(), after.Month(), s.DayOfMonth, s.Hour, s.Minute)
		if !next.After(after) {
			y, m := after.Year(), after.Month()+1
			if m > time.December {
				y, m = y+1, time.January
			}
			next = monthlyOn(y, m, s.DayOfMonth, s.Hour, s.Minute)
		}
		return next
	}
	// Unknown frequency: never due.
	return time.Time{}
}

// monthlyOn builds the send instant for a month, clamping day to the
// month's length.
func monthlyOn(year int, month time.Month, day, hour, minute int) time.Time {
	if day < 1 {
		day = 1
	}
	last := daysIn(year, month)
	if day > last {
		day = last
	}
	return time.Date(year, month, day, hour, minute, 0, 0, time.UTC)
}

func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

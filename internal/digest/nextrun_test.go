package digest

import (
	"testing"
	"time"
)

func at(y int, m time.Month, d, hh, mm int) time.Time {
	return time.Date(y, m, d, hh, mm, 0, 0, time.UTC)
}

func TestNextRun(t *testing.T) {
	tests := []struct {
		name  string
		s     EmailSchedule
		after time.Time
		want  time.Time
	}{
		{
			name:  "hourly next minute mark",
			s:     EmailSchedule{Frequency: FreqHourly, Minute: 30},
			after: at(2026, 8, 20, 10, 15),
			want:  at(2026, 8, 20, 10, 30),
		},
		{
			name:  "hourly rolls to next hour",
			s:     EmailSchedule{Frequency: FreqHourly, Minute: 30},
			after: at(2026, 8, 20, 10, 45),
			want:  at(2026, 8, 20, 11, 30),
		},
		{
			name:  "daily later today",
			s:     EmailSchedule{Frequency: FreqDaily, Hour: 18, Minute: 0},
			after: at(2026, 8, 20, 10, 0),
			want:  at(2026, 8, 20, 18, 0),
		},
		{
			name:  "daily rolls to tomorrow",
			s:     EmailSchedule{Frequency: FreqDaily, Hour: 8, Minute: 0},
			after: at(2026, 8, 20, 10, 0),
			want:  at(2026, 8, 21, 8, 0),
		},
		{
			name:  "daily at exact send time rolls forward",
			s:     EmailSchedule{Frequency: FreqDaily, Hour: 10, Minute: 0},
			after: at(2026, 8, 20, 10, 0),
			want:  at(2026, 8, 21, 10, 0),
		},
		{
			// Aug 20 2026 is a Thursday (weekday 4).
			name:  "weekly later this week",
			s:     EmailSchedule{Frequency: FreqWeekly, Weekday: 5, Hour: 9, Minute: 0},
			after: at(2026, 8, 20, 10, 0),
			want:  at(2026, 8, 21, 9, 0),
		},
		{
			name:  "weekly same day time passed rolls a week",
			s:     EmailSchedule{Frequency: FreqWeekly, Weekday: 4, Hour: 9, Minute: 0},
			after: at(2026, 8, 20, 10, 0),
			want:  at(2026, 8, 27, 9, 0),
		},
		{
			name:  "monthly later this month",
			s:     EmailSchedule{Frequency: FreqMonthly, DayOfMonth: 25, Hour: 9, Minute: 0},
			after: at(2026, 8, 20, 10, 0),
			want:  at(2026, 8, 25, 9, 0),
		},
		{
			name:  "monthly rolls to next month",
			s:     EmailSchedule{Frequency: FreqMonthly, DayOfMonth: 5, Hour: 9, Minute: 0},
			after: at(2026, 8, 20, 10, 0),
			want:  at(2026, 9, 5, 9, 0),
		},
		{
			name:  "monthly day 31 clamps to september 30",
			s:     EmailSchedule{Frequency: FreqMonthly, DayOfMonth: 31, Hour: 9, Minute: 0},
			after: at(2026, 8, 31, 10, 0),
			want:  at(2026, 9, 30, 9, 0),
		},
		{
			name:  "monthly day 31 clamps to february 28",
			s:     EmailSchedule{Frequency: FreqMonthly, DayOfMonth: 31, Hour: 9, Minute: 0},
			after: at(2026, 1, 31, 10, 0),
			want:  at(2026, 2, 28, 9, 0),
		},
		{
			name:  "monthly day 31 in leap february",
			s:     EmailSchedule{Frequency: FreqMonthly, DayOfMonth: 31, Hour: 9, Minute: 0},
			after: at(2028, 1, 31, 10, 0),
			want:  at(2028, 2, 29, 9, 0),
		},
		{
			name:  "monthly december rolls to january",
			s:     EmailSchedule{Frequency: FreqMonthly, DayOfMonth: 5, Hour: 9, Minute: 0},
			after: at(2026, 12, 10, 0, 0),
			want:  at(2027, 1, 5, 9, 0),
		},
		{
			name:  "once behaves like daily for the first fire",
			s:     EmailSchedule{Frequency: FreqOnce, Hour: 18, Minute: 0},
			after: at(2026, 8, 20, 10, 0),
			want:  at(2026, 8, 20, 18, 0),
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := tc.s.NextRun(tc.after)
			if !got.Equal(tc.want) {
				t.Fatalf("NextRun(%v) = %v, want %v", tc.after, got, tc.want)
			}
			if !got.After(tc.after) {
				t.Fatalf("NextRun must be strictly after input: %v <= %v", got, tc.after)
			}
		})
	}
}

func TestNextRunAlwaysAdvances(t *testing.T) {
	// Repeated application must never get stuck.
	s := EmailSchedule{Frequency: FreqMonthly, DayOfMonth: 31, Hour: 9, Minute: 0}
	cur := at(2026, 1, 1, 0, 0)
	for i := 0; i < 24; i++ {
		next := s.NextRun(cur)
		if !next.After(cur) {
			t.Fatalf("iteration %d: %v did not advance past %v", i, next, cur)
		}
		cur = next
	}
	if cur.Year() != 2027 || cur.Month() != time.December {
		t.Fatalf("24 monthly runs from Jan 2026 should land in Dec 2027, got %v", cur)
	}
}

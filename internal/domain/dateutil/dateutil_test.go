package dateutil

import (
	"testing"
	"time"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 12, 30, 0, 0, time.UTC)
}

func TestAddMonths(t *testing.T) {
	cases := []struct {
		name   string
		in     time.Time
		months int
		want   time.Time
	}{
		{"plain month", date(2025, time.March, 15), 1, date(2025, time.April, 15)},
		{"jan 31 clamps to feb 28", date(2025, time.January, 31), 1, date(2025, time.February, 28)},
		{"jan 31 clamps to feb 29 leap", date(2024, time.January, 31), 1, date(2024, time.February, 29)},
		{"mar 31 clamps to apr 30", date(2025, time.March, 31), 1, date(2025, time.April, 30)},
		{"year rollover", date(2025, time.November, 15), 3, date(2026, time.February, 15)},
		{"twelve months", date(2025, time.June, 30), 12, date(2026, time.June, 30)},
		{"may 31 plus 1 is jun 30", date(2025, time.May, 31), 1, date(2025, time.June, 30)},
		{"zero months", date(2025, time.July, 4), 0, date(2025, time.July, 4)},
		{"negative month", date(2025, time.March, 31), -1, date(2025, time.February, 28)},
		{"negative across year", date(2025, time.January, 15), -2, date(2024, time.November, 15)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := AddMonths(tc.in, tc.months)
			if !got.Equal(tc.want) {
				t.Fatalf("AddMonths(%v, %d) = %v, want %v", tc.in, tc.months, got, tc.want)
			}
		})
	}
}

func TestAddMonthsPreservesClock(t *testing.T) {
	in := time.Date(2025, time.January, 31, 23, 59, 58, 7, time.UTC)
	got := AddMonths(in, 1)
	if got.Hour() != 23 || got.Minute() != 59 || got.Second() != 58 || got.Nanosecond() != 7 {
		t.Fatalf("clock not preserved: %v", got)
	}
}

func TestAddMonthsNotNormalized(t *testing.T) {
	// The stdlib AddDate would roll Jan 31 + 1 month into March; the clamp
	// must keep it inside February.
	got := AddMonths(date(2025, time.January, 31), 1)
	if got.Month() != time.February {
		t.Fatalf("expected February, got %v", got.Month())
	}
}

// Package dateutil implements calendar-month arithmetic for access periods.
package dateutil

import "time"

// AddMonths adds calendar months to t, clamping the day of month to the
// target month's length: Jan 31 + 1 month = Feb 28 (29 in leap years).
// time.AddDate cannot be used here because it normalizes overflow instead
// (Jan 31 + 1 month = Mar 2/3). Location is preserved.
func AddMonths(t time.Time, months int) time.Time {
	year := t.Year()
	month := int(t.Month()) + months
	day := t.Day()

	year += (month - 1) / 12
	month = (month-1)%12 + 1
	if month < 1 { // negative month offsets
		month += 12
		year--
	}

	if last := daysIn(year, time.Month(month)); day > last {
		day = last
	}
	return time.Date(year, time.Month(month), day,
		t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}

func daysIn(year int, month time.Month) int {
	// day 0 of the next month is the last day of this one
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

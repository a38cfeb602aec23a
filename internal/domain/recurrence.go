package domain

import "time"

// CalendarDate drops the clock part of t and pins it to UTC midnight.
func CalendarDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// NextRecurringDate is nil unless the transaction recurs on a known interval.
func NextRecurringDate(isRecurring bool, date time.Time, interval RecurringInterval) *time.Time {
	if !isRecurring || interval == IntervalNone {
		return nil
	}
	next := Advance(date, interval)
	return &next
}

// Advance moves date forward by one interval. Month and year steps clamp to the
// last day of the target month, so Jan 31 + 1 month is Feb 28/29.
func Advance(date time.Time, interval RecurringInterval) time.Time {
	date = CalendarDate(date)
	switch interval {
	case IntervalDaily:
		return date.AddDate(0, 0, 1)
	case IntervalWeekly:
		return date.AddDate(0, 0, 7)
	case IntervalMonthly:
		return addMonths(date, 1)
	case IntervalYearly:
		return addMonths(date, 12)
	}
	return date
}

func addMonths(date time.Time, months int) time.Time {
	y, m, d := date.Date()
	first := time.Date(y, m+time.Month(months), 1, 0, 0, 0, 0, time.UTC)
	if last := daysIn(first.Year(), first.Month()); d > last {
		d = last
	}
	return time.Date(first.Year(), first.Month(), d, 0, 0, 0, 0, time.UTC)
}

func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

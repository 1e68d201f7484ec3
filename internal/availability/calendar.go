package availability

import (
	"time"

	"hallbook/internal/models"
)

// MonthRange returns the first and last date of a month.
func MonthRange(year int, month time.Month) (time.Time, time.Time, error) {
	if month < time.January || month > time.December {
		return time.Time{}, time.Time{}, newError(ErrInvalidMonth, "month %d is out of range 1-12", int(month))
	}
	if year < 1 || year > 9999 {
		return time.Time{}, time.Time{}, newError(ErrInvalidMonth, "year %d is out of range", year)
	}
	first := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	return first, first.AddDate(0, 1, -1), nil
}

// CalendarSummary counts, for every date of the month, the bookings
// matching filter that occupy it.
func (s *Snapshot) CalendarSummary(filter HallFilter, year int, month time.Month) ([]models.CalendarDay, error) {
	first, last, err := MonthRange(year, month)
	if err != nil {
		return nil, err
	}

	days := make([]models.CalendarDay, 0, last.Day())
	for d := first; !d.After(last); d = d.AddDate(0, 0, 1) {
		n := len(s.OccupantsOn(filter, d))
		days = append(days, models.CalendarDay{
			Date:         DateKey(d),
			Free:         n == 0,
			BookingCount: n,
		})
	}
	return days, nil
}

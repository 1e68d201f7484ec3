package availability

import (
	"errors"
	"sort"
	"strings"
	"time"

	"hallbook/internal/models"
)

// Shape is the normalized form of a booking request: exactly one of
// TimeWise, DayWise or SlotLabel.
type Shape interface {
	isShape()
}

// TimeWise occupies one window on a single date.
type TimeWise struct {
	Date   time.Time
	Window Window
}

// DayWise occupies every date in [StartDate, EndDate]. Dates listed in
// Overrides are occupied only for that window, the rest for the full day.
type DayWise struct {
	StartDate time.Time
	EndDate   time.Time
	Overrides map[string]Window
}

// SlotLabel is a legacy free-form slot; it takes part in no occupancy checks.
type SlotLabel struct {
	Text string
}

func (TimeWise) isShape()  {}
func (DayWise) isShape()   {}
func (SlotLabel) isShape() {}

// Days is the inclusive length of the range.
func (d DayWise) Days() int {
	return int(d.EndDate.Sub(d.StartDate).Hours()/24) + 1
}

// Covers reports whether date falls inside the range.
func (d DayWise) Covers(date time.Time) bool {
	day := truncateDay(date)
	return !day.Before(d.StartDate) && !day.After(d.EndDate)
}

// WindowOn returns the occupied window on a date inside the range.
func (d DayWise) WindowOn(date time.Time) Window {
	if w, ok := d.Overrides[DateKey(date)]; ok {
		return w
	}
	return FullDayWindow()
}

// ParseShape classifies and validates the scheduling fields of b. A
// positive maxDays bounds the length of day-wise ranges; stored records
// are parsed with maxDays 0.
func ParseShape(b *models.Booking, maxDays int) (Shape, error) {
	date := strings.TrimSpace(b.Date)
	startTime := strings.TrimSpace(b.StartTime)
	endTime := strings.TrimSpace(b.EndTime)
	startDate := strings.TrimSpace(b.StartDate)
	endDate := strings.TrimSpace(b.EndDate)

	timeWise := date != "" && startTime != "" && endTime != ""
	dayWise := startDate != "" && endDate != ""

	if len(b.DaySlots) > 0 && !dayWise {
		return nil, newError(ErrInvalidShape, "daySlots requires startDate and endDate")
	}
	if timeWise && dayWise {
		return nil, newError(ErrInvalidShape, "provide either date with startTime/endTime or startDate/endDate, not both")
	}
	if !timeWise && !dayWise && strings.TrimSpace(b.Slot) == "" {
		return nil, newError(ErrInvalidShape, "provide date with startTime/endTime, startDate/endDate, or a slot")
	}

	parsed := make(map[string]time.Time, 3)
	for _, f := range []struct{ name, value string }{
		{"date", date},
		{"startDate", startDate},
		{"endDate", endDate},
	} {
		if f.value == "" {
			continue
		}
		d, err := ParseDate(f.value)
		if err != nil {
			return nil, newError(ErrInvalidDateFormat, "%s %q", f.name, f.value)
		}
		parsed[f.name] = d
	}

	switch {
	case timeWise:
		w, err := NewWindow(startTime, endTime)
		if err != nil {
			return nil, windowError(err, "", startTime, endTime)
		}
		return TimeWise{Date: parsed["date"], Window: w}, nil

	case dayWise:
		sd, ed := parsed["startDate"], parsed["endDate"]
		if ed.Before(sd) {
			return nil, newError(ErrReversedTime, "endDate %s is before startDate %s", endDate, startDate)
		}
		shape := DayWise{StartDate: sd, EndDate: ed, Overrides: make(map[string]Window, len(b.DaySlots))}
		if maxDays > 0 && shape.Days() > maxDays {
			return nil, newError(ErrRangeTooLong, "maximum booking duration is %d days", maxDays)
		}

		keys := make([]string, 0, len(b.DaySlots))
		for k := range b.DaySlots {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			d, err := ParseDate(k)
			if err != nil {
				return nil, newError(ErrInvalidShape, "daySlots key %q is not a YYYY-MM-DD date", k)
			}
			if !shape.Covers(d) {
				return nil, newError(ErrInvalidShape, "daySlots date %s is outside %s..%s", k, startDate, endDate)
			}
			slot := b.DaySlots[k]
			w, err := NewWindow(slot.StartTime, slot.EndTime)
			if err != nil {
				return nil, windowError(err, DateKey(d), slot.StartTime, slot.EndTime)
			}
			shape.Overrides[DateKey(d)] = w
		}
		return shape, nil

	default:
		return SlotLabel{Text: strings.TrimSpace(b.Slot)}, nil
	}
}

func windowError(err error, date, start, end string) *Error {
	kind := ErrMalformedTime
	if errors.Is(err, ErrReversedTime) {
		kind = ErrReversedTime
	}
	e := newError(kind, "%s-%s", start, end)
	e.Date = date
	return e
}

// Canonicalize rewrites the scheduling fields of b in the form they are
// stored and queried by: YYYY-MM-DD dates, HH:mm times and daySlot keys.
// shape must come from parsing b.
func Canonicalize(b *models.Booking, shape Shape) {
	switch sh := shape.(type) {
	case TimeWise:
		b.Date = DateKey(sh.Date)
		b.StartTime = sh.Window.StartClock()
		b.EndTime = sh.Window.EndClock()
	case DayWise:
		b.StartDate = DateKey(sh.StartDate)
		b.EndDate = DateKey(sh.EndDate)
		if len(sh.Overrides) == 0 {
			b.DaySlots = nil
			return
		}
		slots := make(map[string]models.DaySlot, len(sh.Overrides))
		for day, w := range sh.Overrides {
			slots[day] = models.DaySlot{StartTime: w.StartClock(), EndTime: w.EndClock()}
		}
		b.DaySlots = slots
	case SlotLabel:
		b.Slot = sh.Text
	}
}

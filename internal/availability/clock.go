package availability

import (
	"fmt"
	"strings"
	"time"

	"hallbook/internal/models"
)

const minutesPerDay = 24 * 60

// Window is a half-open [Start, End) interval in minutes since midnight.
// A FullDay window overlaps every other window on the same date.
type Window struct {
	Start   int
	End     int
	FullDay bool
}

// FullDayWindow covers the whole date.
func FullDayWindow() Window {
	return Window{Start: 0, End: minutesPerDay, FullDay: true}
}

// NewWindow parses a start/end pair of "HH:mm" clock times.
func NewWindow(start, end string) (Window, error) {
	s, err := ToMinutes(start)
	if err != nil {
		return Window{}, err
	}
	e, err := ToMinutes(end)
	if err != nil {
		return Window{}, err
	}
	if e <= s {
		return Window{}, fmt.Errorf("%w: %s-%s", ErrReversedTime, start, end)
	}
	return Window{Start: s, End: e}, nil
}

// StartClock formats the window start as "HH:mm"; empty for full-day windows.
func (w Window) StartClock() string {
	if w.FullDay {
		return ""
	}
	return clock(w.Start)
}

// EndClock formats the window end as "HH:mm"; empty for full-day windows.
func (w Window) EndClock() string {
	if w.FullDay {
		return ""
	}
	return clock(w.End)
}

func clock(minutes int) string {
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}

// ToMinutes parses "HH:mm" (24h) into minutes since midnight.
func ToMinutes(hhmm string) (int, error) {
	s := strings.TrimSpace(hhmm)
	if len(s) != 5 || s[2] != ':' || !digits(s[:2]) || !digits(s[3:]) {
		return 0, fmt.Errorf("%w: %q", ErrMalformedTime, hhmm)
	}
	h := int(s[0]-'0')*10 + int(s[1]-'0')
	m := int(s[3]-'0')*10 + int(s[4]-'0')
	if h > 23 || m > 59 {
		return 0, fmt.Errorf("%w: %q", ErrMalformedTime, hhmm)
	}
	return h*60 + m, nil
}

func digits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// Overlaps reports whether two windows on the same date intersect.
// Touching endpoints do not overlap.
func Overlaps(a, b Window) bool {
	if a.FullDay || b.FullDay {
		return true
	}
	return a.Start < b.End && b.Start < a.End
}

// IsOrdered reports whether end is strictly after start. Unparseable input is never ordered.
func IsOrdered(start, end string) bool {
	s, err := ToMinutes(start)
	if err != nil {
		return false
	}
	e, err := ToMinutes(end)
	if err != nil {
		return false
	}
	return e > s
}

// ParseDate parses a "YYYY-MM-DD" calendar date at UTC midnight.
func ParseDate(s string) (time.Time, error) {
	d, err := time.Parse(models.DateLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDateFormat, s)
	}
	return d, nil
}

// DateKey formats d as "YYYY-MM-DD".
func DateKey(d time.Time) string {
	return d.Format(models.DateLayout)
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

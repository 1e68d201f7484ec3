package availability

import (
	"errors"
	"fmt"
	"strings"
)

// Validation and conflict failures. All of them are user-correctable.
var (
	ErrHallRequired      = errors.New("hall name is required")
	ErrInvalidShape      = errors.New("invalid booking payload")
	ErrInvalidDateFormat = errors.New("dates must be in YYYY-MM-DD format")
	ErrMalformedTime     = errors.New("times must be in HH:mm format")
	ErrReversedTime      = errors.New("end must be after start")
	ErrRangeTooLong      = errors.New("booking range is too long")
	ErrFullDayBooked     = errors.New("this day is already booked for the full day")
	ErrRangeBlocked      = errors.New("some days in this range are already booked")
	ErrSlotTaken         = errors.New("time slot overlaps another booking")
	ErrInvalidMonth      = errors.New("invalid calendar month")
)

var reasons = map[error]string{
	ErrHallRequired:      "hall_required",
	ErrInvalidShape:      "invalid_shape",
	ErrInvalidDateFormat: "invalid_date_format",
	ErrMalformedTime:     "malformed_time",
	ErrReversedTime:      "reversed_time",
	ErrRangeTooLong:      "range_too_long",
	ErrFullDayBooked:     "full_day_booked",
	ErrRangeBlocked:      "range_blocked",
	ErrSlotTaken:         "slot_taken",
	ErrInvalidMonth:      "invalid_month",
}

// Error is a classified rejection. Kind is one of the sentinels above.
type Error struct {
	Kind       error
	Date       string
	ConflictID int64
	Detail     string
}

func (e *Error) Error() string {
	var sb strings.Builder
	sb.WriteString(e.Kind.Error())
	if e.Detail != "" {
		sb.WriteString(": ")
		sb.WriteString(e.Detail)
	}
	if e.Date != "" {
		sb.WriteString(" (")
		sb.WriteString(e.Date)
		sb.WriteString(")")
	}
	return sb.String()
}

func (e *Error) Unwrap() error {
	return e.Kind
}

// Reason returns the stable snake_case label of the rejection kind.
func (e *Error) Reason() string {
	return reasons[e.Kind]
}

func newError(kind error, format string, args ...any) *Error {
	return &Error{Kind: kind, Detail: fmt.Sprintf(format, args...)}
}

// ReasonOf returns the rejection label of err, or "" if err is not an *Error.
func ReasonOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Reason()
	}
	return ""
}

// IsRejection reports whether err is a validation or conflict failure.
func IsRejection(err error) bool {
	var e *Error
	return errors.As(err, &e)
}

// IsConflict reports whether err was caused by another booking.
func IsConflict(err error) bool {
	return errors.Is(err, ErrFullDayBooked) || errors.Is(err, ErrRangeBlocked) || errors.Is(err, ErrSlotTaken)
}

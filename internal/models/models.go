package models

import "time"

// CalendarDay is one day of a month calendar.
type CalendarDay struct {
	Date         string `json:"date"`
	Free         bool   `json:"free"`
	BookingCount int    `json:"bookingCount"`
}

// Occupancy describes how a booking occupies a single date.
type Occupancy struct {
	Booking   *Booking `json:"booking"`
	FullDay   bool     `json:"fullDay"`
	StartTime string   `json:"startTime,omitempty"`
	EndTime   string   `json:"endTime,omitempty"`
}

// StatusSummary counts bookings per status.
type StatusSummary map[string]int64

// AuditEntry is a persisted record of an action on a booking.
type AuditEntry struct {
	ID        int64     `json:"id"`
	BookingID int64     `json:"booking_id"`
	Action    string    `json:"action"`
	Actor     string    `json:"actor"`
	Details   string    `json:"details"`
	CreatedAt time.Time `json:"created_at"`
}

// CalendarKey identifies a cached month summary. An empty Hall means all halls.
type CalendarKey struct {
	Hall  string
	Year  int
	Month int
}

// Notification is a message to the person who requested a booking.
type Notification struct {
	BookingID int64  `json:"booking_id"`
	Event     string `json:"event"`
	To        string `json:"to"`
	Subject   string `json:"subject"`
	Body      string `json:"body"`
}

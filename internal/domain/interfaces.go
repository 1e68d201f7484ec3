package domain

import (
	"context"
	"time"

	"hallbook/internal/models"
)

type BookingRepository interface {
	GetBooking(ctx context.Context, id int64) (*models.Booking, error)
	CreateBookingWithLock(ctx context.Context, booking *models.Booking, check func(existing []*models.Booking) error) error
	UpdateBookingWithLock(ctx context.Context, booking *models.Booking, check func(existing []*models.Booking) error) error
	UpdateBookingStatusWithVersion(ctx context.Context, id int64, version int64, status string) error
	RequestCancellationWithVersion(ctx context.Context, id int64, version int64, reason, remarks string) error
	DeleteBooking(ctx context.Context, id int64) error
	ListBookings(ctx context.Context, status string) ([]*models.Booking, error)
	SearchBookings(ctx context.Context, filter models.BookingFilter) ([]*models.Booking, error)
	CountBookingsByStatus(ctx context.Context) (models.StatusSummary, error)
	GetBookingsByDateRange(ctx context.Context, hall string, start, end time.Time) ([]*models.Booking, error)
	GetHallBookings(ctx context.Context, hall string) ([]*models.Booking, error)
}

type HallRepository interface {
	SyncHalls(ctx context.Context, halls []models.Hall) error
	ListHalls(ctx context.Context) ([]models.Hall, error)
	GetHallByName(ctx context.Context, name string) (*models.Hall, error)
}

// CalendarCache stores month summaries. Hall "" is the all-halls summary.
type CalendarCache interface {
	GetCalendar(ctx context.Context, key models.CalendarKey) ([]models.CalendarDay, bool, error)
	SetCalendar(ctx context.Context, key models.CalendarKey, days []models.CalendarDay) error
	InvalidateHall(ctx context.Context, hall string) error
}

type EventPublisher interface {
	PublishJSON(eventType string, payload interface{}) error
}

// Notifier delivers a message about a booking to its requester.
type Notifier interface {
	Notify(ctx context.Context, n models.Notification) error
}

package worker

import (
	"context"
	"fmt"
	"strings"

	"hallbook/internal/events"
	"hallbook/internal/models"

	"github.com/rs/zerolog"
)

// LogNotifier writes notifications to the log instead of sending them.
type LogNotifier struct {
	logger *zerolog.Logger
}

func NewLogNotifier(logger *zerolog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(_ context.Context, msg models.Notification) error {
	n.logger.Info().
		Int64("booking_id", msg.BookingID).
		Str("event", msg.Event).
		Str("to", msg.To).
		Str("subject", msg.Subject).
		Msg(msg.Body)
	return nil
}

var notifySubjects = map[string]string{
	events.EventBookingCreated:         "received",
	events.EventBookingApproved:        "approved",
	events.EventBookingRejected:        "rejected",
	events.EventBookingCancelled:       "cancelled",
	events.EventBookingCancelRequested: "cancellation requested",
}

// buildNotification returns false for events the requester is not told about.
func buildNotification(eventType string, p events.BookingEventPayload) (models.Notification, bool) {
	verb, ok := notifySubjects[eventType]
	if !ok || strings.TrimSpace(p.Email) == "" {
		return models.Notification{}, false
	}

	var when string
	switch {
	case p.Date != "":
		when = fmt.Sprintf("%s %s-%s", p.Date, p.StartTime, p.EndTime)
	case p.StartDate != "":
		when = fmt.Sprintf("%s to %s", p.StartDate, p.EndDate)
	default:
		when = "an undated slot"
	}

	var body strings.Builder
	name := p.BookingName
	if name == "" {
		name = "Hello"
	}
	fmt.Fprintf(&body, "%s, your booking of %s for %s is now %s.", name, p.Hall, when, p.Status)
	if p.Comment != "" {
		fmt.Fprintf(&body, " Note: %s", p.Comment)
	}

	return models.Notification{
		BookingID: p.BookingID,
		Event:     eventType,
		To:        p.Email,
		Subject:   fmt.Sprintf("Hall booking #%d %s", p.BookingID, verb),
		Body:      body.String(),
	}, true
}

package availability

import (
	"strings"
	"time"

	"github.com/rs/zerolog"

	"hallbook/internal/models"
)

// Engine validates booking requests and checks them against a Snapshot.
// It holds no state between calls.
type Engine struct {
	maxDays int
	logger  *zerolog.Logger
}

func NewEngine(maxBookingDays int, logger *zerolog.Logger) *Engine {
	if maxBookingDays <= 0 {
		maxBookingDays = models.DefaultMaxBookingDays
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Engine{maxDays: maxBookingDays, logger: logger}
}

func (e *Engine) MaxBookingDays() int {
	return e.maxDays
}

// Validate runs the structural checks that need no stored data.
func (e *Engine) Validate(req *models.Booking) (Shape, error) {
	if req == nil || strings.TrimSpace(req.Hall) == "" {
		return nil, &Error{Kind: ErrHallRequired}
	}
	return ParseShape(req, e.maxDays)
}

// ValidateAndCheck validates req and rejects it if it collides with any
// booking of the same hall in snap. The booking with ID excludeID is
// ignored, so an edited booking never conflicts with itself; 0 excludes nothing.
func (e *Engine) ValidateAndCheck(req *models.Booking, snap *Snapshot, excludeID int64) (Shape, error) {
	shape, err := e.Validate(req)
	if err != nil {
		return nil, err
	}

	hall := ForHall(req.Hall)
	switch sh := shape.(type) {
	case TimeWise:
		err = e.checkTimeWise(snap, hall, sh, excludeID)
	case DayWise:
		err = e.checkDayWise(snap, hall, sh, excludeID)
	}
	if err != nil {
		return nil, err
	}
	return shape, nil
}

func (e *Engine) checkTimeWise(snap *Snapshot, hall HallFilter, sh TimeWise, excludeID int64) error {
	for _, o := range occupants(snap, hall, sh.Date, excludeID) {
		if o.Window.FullDay {
			return e.conflict(ErrFullDayBooked, sh.Date, o)
		}
		if Overlaps(sh.Window, o.Window) {
			return e.conflict(ErrSlotTaken, sh.Date, o)
		}
	}
	return nil
}

func (e *Engine) checkDayWise(snap *Snapshot, hall HallFilter, sh DayWise, excludeID int64) error {
	for d := sh.StartDate; !d.After(sh.EndDate); d = d.AddDate(0, 0, 1) {
		want, partial := sh.Overrides[DateKey(d)]
		for _, o := range occupants(snap, hall, d, excludeID) {
			// частичный день можно поставить только рядом с частичными бронями
			if !partial || o.Window.FullDay {
				return e.conflict(ErrRangeBlocked, d, o)
			}
			if Overlaps(want, o.Window) {
				return e.conflict(ErrSlotTaken, d, o)
			}
		}
	}
	return nil
}

func occupants(snap *Snapshot, hall HallFilter, date time.Time, excludeID int64) []Occupant {
	all := snap.OccupantsOn(hall, date)
	if excludeID == 0 {
		return all
	}
	out := all[:0:0]
	for _, o := range all {
		if o.Booking.ID != excludeID {
			out = append(out, o)
		}
	}
	return out
}

func (e *Engine) conflict(kind error, date time.Time, o Occupant) *Error {
	err := &Error{Kind: kind, Date: DateKey(date), ConflictID: o.Booking.ID}
	e.logger.Debug().
		Str("reason", err.Reason()).
		Str("date", err.Date).
		Int64("conflict_id", o.Booking.ID).
		Msg("booking rejected")
	return err
}

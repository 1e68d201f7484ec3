package availability

import (
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"hallbook/internal/models"
)

// HallFilter selects bookings of one hall (case-insensitive) or of all halls.
type HallFilter struct {
	name string
	all  bool
}

func ForHall(name string) HallFilter {
	return HallFilter{name: strings.TrimSpace(name)}
}

func AllHalls() HallFilter {
	return HallFilter{all: true}
}

// FilterFromQuery treats a blank hall name as "all halls".
func FilterFromQuery(hall string) HallFilter {
	if strings.TrimSpace(hall) == "" {
		return AllHalls()
	}
	return ForHall(hall)
}

func (f HallFilter) All() bool    { return f.all }
func (f HallFilter) Name() string { return f.name }

func (f HallFilter) Matches(b *models.Booking) bool {
	return f.all || b.SameHall(f.name)
}

// Occupant is a booking together with the window it holds on one date.
type Occupant struct {
	Booking *models.Booking
	Window  Window
}

type entry struct {
	booking *models.Booking
	shape   Shape
}

// Snapshot is a read-only view of the stored bookings a decision is made against.
type Snapshot struct {
	entries []entry
}

// NewSnapshot parses stored bookings. Records whose scheduling fields do
// not parse are logged and left out; slot-label bookings occupy nothing.
// Bookings sharing a non-zero ID are kept once.
func NewSnapshot(bookings []*models.Booking, logger *zerolog.Logger) *Snapshot {
	s := &Snapshot{entries: make([]entry, 0, len(bookings))}
	seen := make(map[int64]struct{}, len(bookings))

	for _, b := range bookings {
		if b == nil {
			continue
		}
		if b.ID != 0 {
			if _, dup := seen[b.ID]; dup {
				continue
			}
			seen[b.ID] = struct{}{}
		}
		shape, err := ParseShape(b, 0)
		if err != nil {
			if logger != nil {
				logger.Warn().Err(err).Int64("booking_id", b.ID).Str("hall", b.Hall).Msg("skipping unreadable stored booking")
			}
			continue
		}
		if _, ok := shape.(SlotLabel); ok {
			continue
		}
		s.entries = append(s.entries, entry{booking: b, shape: shape})
	}

	sort.SliceStable(s.entries, func(i, j int) bool {
		return s.entries[i].booking.ID < s.entries[j].booking.ID
	})
	return s
}

// Len is the number of bookings taking part in occupancy checks.
func (s *Snapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.entries)
}

// OccupantsOn returns the bookings matching filter that occupy date,
// ordered by ascending booking ID.
func (s *Snapshot) OccupantsOn(filter HallFilter, date time.Time) []Occupant {
	if s == nil {
		return nil
	}
	day := truncateDay(date)

	var out []Occupant
	for _, e := range s.entries {
		if !filter.Matches(e.booking) {
			continue
		}
		switch sh := e.shape.(type) {
		case TimeWise:
			if sh.Date.Equal(day) {
				out = append(out, Occupant{Booking: e.booking, Window: sh.Window})
			}
		case DayWise:
			if sh.Covers(day) {
				out = append(out, Occupant{Booking: e.booking, Window: sh.WindowOn(day)})
			}
		}
	}
	return out
}

// Occupancy converts occupants into their API form.
func Occupancy(occupants []Occupant) []models.Occupancy {
	out := make([]models.Occupancy, 0, len(occupants))
	for _, o := range occupants {
		out = append(out, models.Occupancy{
			Booking:   o.Booking,
			FullDay:   o.Window.FullDay,
			StartTime: o.Window.StartClock(),
			EndTime:   o.Window.EndClock(),
		})
	}
	return out
}

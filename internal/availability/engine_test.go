package availability

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hallbook/internal/models"
)

func timeWise(id int64, hall, date, start, end string) *models.Booking {
	return &models.Booking{ID: id, Hall: hall, Date: date, StartTime: start, EndTime: end, Status: models.StatusApproved}
}

func dayWise(id int64, hall, from, to string, slots map[string]models.DaySlot) *models.Booking {
	return &models.Booking{ID: id, Hall: hall, StartDate: from, EndDate: to, DaySlots: slots, Status: models.StatusApproved}
}

func newTestEngine() *Engine {
	logger := zerolog.Nop()
	return NewEngine(7, &logger)
}

func snapshotOf(bookings ...*models.Booking) *Snapshot {
	logger := zerolog.Nop()
	return NewSnapshot(bookings, &logger)
}

func TestEngine_HallRequired(t *testing.T) {
	e := newTestEngine()
	_, err := e.ValidateAndCheck(timeWise(0, "  ", "2025-03-10", "10:00", "11:00"), nil, 0)
	requireKind(t, err, ErrHallRequired)

	// hall is checked before the shape
	_, err = e.ValidateAndCheck(&models.Booking{}, nil, 0)
	requireKind(t, err, ErrHallRequired)
}

func TestEngine_EmptyHallAccepts(t *testing.T) {
	e := newTestEngine()
	snap := snapshotOf(timeWise(1, "H2", "2025-03-10", "10:00", "12:00"))

	for _, req := range []*models.Booking{
		timeWise(0, "H1", "2025-03-10", "00:00", "23:59"),
		timeWise(0, "H1", "2025-03-10", "10:00", "12:00"),
		dayWise(0, "H1", "2025-03-08", "2025-03-14", nil),
	} {
		_, err := e.ValidateAndCheck(req, snap, 0)
		assert.NoError(t, err)
	}
}

func TestEngine_ScenarioA_TimeWiseOverlap(t *testing.T) {
	e := newTestEngine()
	snap := snapshotOf(timeWise(1, "H1", "2025-03-10", "10:00", "12:00"))

	_, err := e.ValidateAndCheck(timeWise(0, "H1", "2025-03-10", "11:00", "13:00"), snap, 0)
	conflict := requireKind(t, err, ErrSlotTaken)
	assert.Equal(t, int64(1), conflict.ConflictID)
	assert.Equal(t, "2025-03-10", conflict.Date)

	_, err = e.ValidateAndCheck(timeWise(0, "H1", "2025-03-10", "12:00", "13:00"), snap, 0)
	assert.NoError(t, err)

	// hall names compare case-insensitively
	_, err = e.ValidateAndCheck(timeWise(0, "h1", "2025-03-10", "09:00", "10:30"), snap, 0)
	requireKind(t, err, ErrSlotTaken)
}

func TestEngine_ScenarioB_FullDayBlocksTimeWise(t *testing.T) {
	e := newTestEngine()
	snap := snapshotOf(dayWise(1, "H1", "2025-04-01", "2025-04-03", nil))

	_, err := e.ValidateAndCheck(timeWise(0, "H1", "2025-04-02", "09:00", "10:00"), snap, 0)
	requireKind(t, err, ErrFullDayBooked)

	_, err = e.ValidateAndCheck(timeWise(0, "H1", "2025-04-04", "09:00", "10:00"), snap, 0)
	assert.NoError(t, err)
}

func TestEngine_ScenarioC_PartialOverride(t *testing.T) {
	e := newTestEngine()
	snap := snapshotOf(dayWise(1, "H1", "2025-05-01", "2025-05-05", map[string]models.DaySlot{
		"2025-05-03": {StartTime: "09:00", EndTime: "11:00"},
	}))

	_, err := e.ValidateAndCheck(timeWise(0, "H1", "2025-05-03", "13:00", "14:00"), snap, 0)
	assert.NoError(t, err)

	_, err = e.ValidateAndCheck(timeWise(0, "H1", "2025-05-03", "10:00", "12:00"), snap, 0)
	requireKind(t, err, ErrSlotTaken)

	_, err = e.ValidateAndCheck(timeWise(0, "H1", "2025-05-01", "13:00", "14:00"), snap, 0)
	requireKind(t, err, ErrFullDayBooked)
}

func TestEngine_ScenarioD_RangeTooLongBeforeOccupancy(t *testing.T) {
	e := newTestEngine()
	// every day of the request is occupied; the length check must win anyway
	snap := snapshotOf(dayWise(1, "H1", "2025-06-01", "2025-06-07", nil), dayWise(2, "H1", "2025-06-08", "2025-06-09", nil))

	_, err := e.ValidateAndCheck(dayWise(0, "H1", "2025-06-01", "2025-06-09", nil), snap, 0)
	requireKind(t, err, ErrRangeTooLong)
}

func TestEngine_DayWiseFullRangeBlocked(t *testing.T) {
	e := newTestEngine()
	snap := snapshotOf(timeWise(1, "H1", "2025-07-03", "18:00", "19:00"))

	_, err := e.ValidateAndCheck(dayWise(0, "H1", "2025-07-01", "2025-07-05", nil), snap, 0)
	conflict := requireKind(t, err, ErrRangeBlocked)
	assert.Equal(t, "2025-07-03", conflict.Date)
	assert.Equal(t, int64(1), conflict.ConflictID)

	_, err = e.ValidateAndCheck(dayWise(0, "H1", "2025-07-04", "2025-07-05", nil), snap, 0)
	assert.NoError(t, err)
}

func TestEngine_DayWiseOverrides(t *testing.T) {
	e := newTestEngine()
	snap := snapshotOf(
		timeWise(1, "H1", "2025-07-03", "09:00", "11:00"),
		dayWise(2, "H1", "2025-07-10", "2025-07-10", nil),
	)

	// override on 07-03 avoids the morning booking
	req := dayWise(0, "H1", "2025-07-02", "2025-07-04", map[string]models.DaySlot{
		"2025-07-03": {StartTime: "11:00", EndTime: "17:00"},
	})
	_, err := e.ValidateAndCheck(req, snap, 0)
	assert.NoError(t, err)

	req.DaySlots["2025-07-03"] = models.DaySlot{StartTime: "10:00", EndTime: "17:00"}
	_, err = e.ValidateAndCheck(req, snap, 0)
	requireKind(t, err, ErrSlotTaken)

	// a partial override never fits next to a full-day occupant
	req = dayWise(0, "H1", "2025-07-10", "2025-07-11", map[string]models.DaySlot{
		"2025-07-10": {StartTime: "20:00", EndTime: "21:00"},
	})
	_, err = e.ValidateAndCheck(req, snap, 0)
	requireKind(t, err, ErrRangeBlocked)
}

func TestEngine_OverrideAgainstPartialDayWise(t *testing.T) {
	e := newTestEngine()
	snap := snapshotOf(dayWise(1, "H1", "2025-08-01", "2025-08-02", map[string]models.DaySlot{
		"2025-08-01": {StartTime: "09:00", EndTime: "12:00"},
		"2025-08-02": {StartTime: "09:00", EndTime: "12:00"},
	}))

	req := dayWise(0, "H1", "2025-08-01", "2025-08-02", map[string]models.DaySlot{
		"2025-08-01": {StartTime: "12:00", EndTime: "15:00"},
		"2025-08-02": {StartTime: "13:00", EndTime: "15:00"},
	})
	_, err := e.ValidateAndCheck(req, snap, 0)
	assert.NoError(t, err)
}

func TestEngine_SequentialOverlapAcceptsOnlyOne(t *testing.T) {
	e := newTestEngine()
	var stored []*models.Booking

	requests := []*models.Booking{
		timeWise(1, "H1", "2025-09-01", "10:00", "11:00"),
		timeWise(2, "H1", "2025-09-01", "10:30", "11:30"),
		timeWise(3, "H1", "2025-09-01", "09:00", "10:01"),
		timeWise(4, "H1", "2025-09-01", "11:00", "12:00"),
	}
	accepted := 0
	for _, req := range requests {
		_, err := e.ValidateAndCheck(req, snapshotOf(stored...), 0)
		if err == nil {
			stored = append(stored, req)
			accepted++
			continue
		}
		assert.ErrorIs(t, err, ErrSlotTaken)
	}
	assert.Equal(t, 2, accepted)
	assert.Equal(t, int64(4), stored[1].ID)
}

func TestEngine_SelfExclusion(t *testing.T) {
	e := newTestEngine()
	existing := dayWise(5, "H1", "2025-10-01", "2025-10-03", nil)
	other := timeWise(6, "H1", "2025-10-05", "10:00", "11:00")
	snap := snapshotOf(existing, other)

	// editing to identical values
	_, err := e.ValidateAndCheck(existing.Clone(), snap, existing.ID)
	assert.NoError(t, err)

	// without exclusion it collides with itself
	_, err = e.ValidateAndCheck(existing.Clone(), snap, 0)
	requireKind(t, err, ErrRangeBlocked)

	// exclusion does not hide other bookings
	moved := existing.Clone()
	moved.EndDate = "2025-10-05"
	_, err = e.ValidateAndCheck(moved, snap, existing.ID)
	conflict := requireKind(t, err, ErrRangeBlocked)
	assert.Equal(t, int64(6), conflict.ConflictID)
}

func TestEngine_SlotLabelSkipsOccupancy(t *testing.T) {
	e := newTestEngine()
	snap := snapshotOf(dayWise(1, "H1", "2025-04-01", "2025-04-03", nil))

	shape, err := e.ValidateAndCheck(&models.Booking{Hall: "H1", Slot: "Full Day"}, snap, 0)
	require.NoError(t, err)
	assert.IsType(t, SlotLabel{}, shape)
}

func TestEngine_CorruptRecordDoesNotBlock(t *testing.T) {
	e := newTestEngine()
	snap := snapshotOf(
		&models.Booking{ID: 1, Hall: "H1", Date: "2025-03-10", StartTime: "ten", EndTime: "12:00"},
		&models.Booking{ID: 2, Hall: "H1", StartDate: "2025-03-09", EndDate: "garbage"},
	)
	assert.Equal(t, 0, snap.Len())

	_, err := e.ValidateAndCheck(timeWise(0, "H1", "2025-03-10", "10:00", "12:00"), snap, 0)
	assert.NoError(t, err)
}

func TestEngine_DefaultMaxDays(t *testing.T) {
	assert.Equal(t, models.DefaultMaxBookingDays, NewEngine(0, nil).MaxBookingDays())
	assert.Equal(t, 3, NewEngine(3, nil).MaxBookingDays())

	_, err := NewEngine(3, nil).ValidateAndCheck(dayWise(0, "H1", "2025-06-01", "2025-06-04", nil), nil, 0)
	requireKind(t, err, ErrRangeTooLong)
}

func TestErrorClassification(t *testing.T) {
	e := newTestEngine()
	snap := snapshotOf(timeWise(1, "H1", "2025-03-10", "10:00", "12:00"))
	_, err := e.ValidateAndCheck(timeWise(0, "H1", "2025-03-10", "11:00", "13:00"), snap, 0)

	assert.True(t, IsRejection(err))
	assert.True(t, IsConflict(err))
	assert.Equal(t, "slot_taken", ReasonOf(err))
	assert.Contains(t, err.Error(), "2025-03-10")

	_, err = e.Validate(timeWise(0, "H1", "2025-03-10", "13:00", "11:00"))
	assert.True(t, IsRejection(err))
	assert.False(t, IsConflict(err))
	assert.Empty(t, ReasonOf(assert.AnError))
}

package availability

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hallbook/internal/models"
)

func TestSnapshot_OccupantsOn(t *testing.T) {
	snap := snapshotOf(
		dayWise(3, "H1", "2025-05-01", "2025-05-05", map[string]models.DaySlot{
			"2025-05-03": {StartTime: "09:00", EndTime: "11:00"},
		}),
		timeWise(1, "H1", "2025-05-03", "13:00", "14:00"),
		timeWise(2, "H2", "2025-05-03", "13:00", "14:00"),
		&models.Booking{ID: 4, Hall: "H1", Slot: "Morning"},
	)

	day, err := ParseDate("2025-05-03")
	require.NoError(t, err)

	got := snap.OccupantsOn(ForHall("h1"), day)
	require.Len(t, got, 2)
	assert.Equal(t, int64(1), got[0].Booking.ID)
	assert.Equal(t, int64(3), got[1].Booking.ID)
	assert.False(t, got[1].Window.FullDay)
	assert.Equal(t, 540, got[1].Window.Start)

	all := snap.OccupantsOn(AllHalls(), day)
	assert.Len(t, all, 3)

	first, _ := ParseDate("2025-05-01")
	got = snap.OccupantsOn(ForHall("H1"), first)
	require.Len(t, got, 1)
	assert.True(t, got[0].Window.FullDay)

	outside, _ := ParseDate("2025-05-06")
	assert.Empty(t, snap.OccupantsOn(ForHall("H1"), outside))
}

func TestSnapshot_Idempotent(t *testing.T) {
	snap := snapshotOf(
		timeWise(2, "H1", "2025-05-03", "13:00", "14:00"),
		dayWise(1, "H1", "2025-05-01", "2025-05-05", nil),
	)
	day, _ := ParseDate("2025-05-03")

	assert.Equal(t, snap.OccupantsOn(ForHall("H1"), day), snap.OccupantsOn(ForHall("H1"), day))
}

func TestSnapshot_DeduplicatesByID(t *testing.T) {
	b := timeWise(7, "H1", "2025-05-03", "13:00", "14:00")
	snap := snapshotOf(b, b.Clone(), nil)
	assert.Equal(t, 1, snap.Len())

	var empty *Snapshot
	assert.Equal(t, 0, empty.Len())
	day, _ := ParseDate("2025-05-03")
	assert.Empty(t, empty.OccupantsOn(AllHalls(), day))
}

func TestFilterFromQuery(t *testing.T) {
	assert.True(t, FilterFromQuery(" ").All())
	f := FilterFromQuery(" Main Hall ")
	assert.False(t, f.All())
	assert.Equal(t, "Main Hall", f.Name())
}

func TestOccupancy(t *testing.T) {
	snap := snapshotOf(
		timeWise(1, "H1", "2025-05-03", "13:00", "14:00"),
		dayWise(2, "H1", "2025-05-03", "2025-05-03", nil),
	)
	day, _ := ParseDate("2025-05-03")

	out := Occupancy(snap.OccupantsOn(ForHall("H1"), day))
	require.Len(t, out, 2)
	assert.Equal(t, "13:00", out[0].StartTime)
	assert.Equal(t, "14:00", out[0].EndTime)
	assert.False(t, out[0].FullDay)
	assert.True(t, out[1].FullDay)
	assert.Empty(t, out[1].StartTime)
}

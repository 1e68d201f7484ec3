package export

import (
	"bytes"
	"path/filepath"
	"testing"
	"time"

	"hallbook/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func day(s string) time.Time {
	d, _ := time.Parse(models.DateLayout, s)
	return d
}

func sampleReport() Report {
	return Report{
		From:  day("2030-05-01"),
		To:    day("2030-05-03"),
		Halls: []models.Hall{{Name: "Main Hall"}, {Name: "Annex"}},
		Bookings: []*models.Booking{
			{ID: 2, Hall: "Main Hall", BookingName: "Seminar", Status: models.StatusApproved, Date: "2030-05-02", StartTime: "09:00", EndTime: "11:00"},
			{ID: 1, Hall: "annex", BookingName: "Workshop", Status: models.StatusPending, StartDate: "2030-05-01", EndDate: "2030-05-02"},
			{ID: 3, Hall: "Library", Status: models.StatusPending, Date: "2030-05-03", StartTime: "14:00", EndTime: "15:00"},
		},
	}
}

func TestBuild_Grid(t *testing.T) {
	e := NewExporter(t.TempDir(), nil)
	f, err := e.Build(sampleReport())
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{gridSheet, listSheet}, f.GetSheetList())

	rows, err := f.GetRows(gridSheet)
	require.NoError(t, err)
	require.Len(t, rows, 5)

	assert.Equal(t, "Period: 01.05.2030 - 03.05.2030", rows[0][0])
	assert.Equal(t, []string{"", "01.05", "02.05", "03.05"}, rows[1])

	assert.Equal(t, []string{"Main Hall", "Free", "09:00-11:00 Seminar (APPROVED)", "Free"}, rows[2])
	assert.Equal(t, []string{"Annex", "full day Workshop (PENDING)", "full day Workshop (PENDING)", "Free"}, rows[3])
	// Hall missing from the registry is appended.
	assert.Equal(t, []string{"Library", "Free", "Free", "14:00-15:00 #3 (PENDING)"}, rows[4])
}

func TestBuild_List(t *testing.T) {
	e := NewExporter(t.TempDir(), nil)
	f, err := e.Build(sampleReport())
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(listSheet)
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, "ID", rows[0][0])
	assert.Equal(t, "1", rows[1][0])
	assert.Equal(t, "2", rows[2][0])
	assert.Equal(t, "3", rows[3][0])
	assert.Equal(t, "Seminar", rows[2][3])
}

func TestBuild_InvalidRange(t *testing.T) {
	e := NewExporter(t.TempDir(), nil)

	_, err := e.Build(Report{From: day("2030-05-03"), To: day("2030-05-01")})
	assert.ErrorIs(t, err, ErrInvalidRange)

	_, err = e.Build(Report{From: day("2030-01-01"), To: day("2030-12-31")})
	assert.ErrorIs(t, err, ErrRangeTooLong)
}

func TestSaveAndWrite(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "exports")
	e := NewExporter(dir, nil)

	path, err := e.Save(sampleReport())
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "bookings_2030-05-01_to_2030-05-03.xlsx"), path)
	assert.FileExists(t, path)

	var buf bytes.Buffer
	require.NoError(t, e.Write(&buf, sampleReport()))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows(listSheet)
	require.NoError(t, err)
	assert.Len(t, rows, 4)
}

package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"hallbook/internal/availability"
	"hallbook/internal/config"
	"hallbook/internal/database"
	"hallbook/internal/export"
	"hallbook/internal/models"
	"hallbook/internal/service"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func newTestDB(t *testing.T) *database.DB {
	t.Helper()
	logger := zerolog.New(io.Discard)
	db, err := database.NewDB(":memory:", &logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, db.SyncHalls(t.Context(), []models.Hall{
		{Name: "Main Hall", Capacity: 200},
		{Name: "Annex", Capacity: 40},
	}))
	return db
}

func newTestHTTPServer(t *testing.T, cfg config.APIConfig) *httptest.Server {
	t.Helper()
	logger := zerolog.New(io.Discard)
	db := newTestDB(t)

	bookings, err := service.NewBookingService(db, db, nil, nil, nil,
		export.NewExporter(t.TempDir(), &logger), config.BookingConfig{MaxBookingDays: 7}, &logger)
	require.NoError(t, err)
	halls := service.NewHallService(db, &logger)

	srv := NewHTTPServer(cfg, bookings, halls, db.Health, &logger)
	ts := httptest.NewServer(srv.server.Handler)
	t.Cleanup(ts.Close)
	return ts
}

func openConfig() config.APIConfig {
	return config.APIConfig{Enabled: true, HTTP: config.APIHTTPConfig{Enabled: true}}
}

func doJSON(t *testing.T, method, url string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, url, reader)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 && resp.Header.Get("Content-Type") == "application/json" {
		require.NoError(t, json.Unmarshal(raw, &out))
	}
	return resp, out
}

func timeWiseBody(hall, date, start, end string) map[string]any {
	return map[string]any{
		"hallName":    hall,
		"bookingName": "Seminar",
		"email":       "alice@example.edu",
		"date":        date,
		"startTime":   start,
		"endTime":     end,
	}
}

func createBooking(t *testing.T, baseURL string, body map[string]any) int64 {
	t.Helper()
	resp, out := doJSON(t, http.MethodPost, baseURL+"/api/v1/bookings", body)
	require.Equal(t, http.StatusCreated, resp.StatusCode, "body: %v", out)
	return int64(out["id"].(float64))
}

func TestHealthz(t *testing.T) {
	ts := newTestHTTPServer(t, openConfig())

	resp, out := doJSON(t, http.MethodGet, ts.URL+"/healthz", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", out["status"])
	assert.NotEmpty(t, resp.Header.Get(requestIDHeader))
}

func TestBookingLifecycle(t *testing.T) {
	ts := newTestHTTPServer(t, openConfig())
	base := ts.URL + "/api/v1/bookings"

	id := createBooking(t, ts.URL, timeWiseBody("main hall", "2099-03-10", "10:00", "12:00"))

	resp, out := doJSON(t, http.MethodGet, fmt.Sprintf("%s/%d", base, id), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Main Hall", out["hallName"])
	assert.Equal(t, models.StatusPending, out["status"])

	// overlapping request is a conflict
	resp, out = doJSON(t, http.MethodPost, base, timeWiseBody("Main Hall", "2099-03-10", "11:00", "13:00"))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "slot_taken", out["reason"])
	assert.Equal(t, float64(id), out["conflictId"])

	resp, out = doJSON(t, http.MethodPut, fmt.Sprintf("%s/%d", base, id), map[string]any{"endTime": "12:30", "version": 1})
	require.Equal(t, http.StatusOK, resp.StatusCode, "body: %v", out)
	assert.Equal(t, "12:30", out["endTime"])
	assert.Equal(t, float64(2), out["version"])

	resp, _ = doJSON(t, http.MethodPut, fmt.Sprintf("%s/%d", base, id), map[string]any{"endTime": "13:00", "version": 1})
	assert.Equal(t, http.StatusConflict, resp.StatusCode, "stale version")

	resp, out = doJSON(t, http.MethodPost, fmt.Sprintf("%s/%d/approve", base, id), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, models.StatusApproved, out["status"])

	resp, out = doJSON(t, http.MethodPost, fmt.Sprintf("%s/%d/cancel-request", base, id), map[string]any{
		"cancellationReason": "speaker ill",
		"remarks":            "please refund",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, models.StatusCancelRequested, out["status"])
	assert.Equal(t, "please refund", out["remarks"])

	resp, out = doJSON(t, http.MethodPost, fmt.Sprintf("%s/%d/cancel", base, id), map[string]any{"comment": "confirmed"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, models.StatusCancelled, out["status"])

	resp, out = doJSON(t, http.MethodGet, base+"?status=cancelled", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, out["bookings"], 1)

	resp, out = doJSON(t, http.MethodGet, base+"/summary", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, map[string]any{models.StatusCancelled: float64(1)}, out["summary"])

	resp, _ = doJSON(t, http.MethodDelete, fmt.Sprintf("%s/%d", base, id), nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, _ = doJSON(t, http.MethodGet, fmt.Sprintf("%s/%d", base, id), nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCreateBooking_Errors(t *testing.T) {
	ts := newTestHTTPServer(t, openConfig())
	base := ts.URL + "/api/v1/bookings"

	tests := []struct {
		name   string
		body   any
		status int
		reason string
	}{
		{"UnknownHall", timeWiseBody("Roof", "2099-03-10", "10:00", "12:00"), http.StatusNotFound, ""},
		{"ReversedTime", timeWiseBody("Annex", "2099-03-10", "12:00", "10:00"), http.StatusBadRequest, "reversed_time"},
		{"BadDate", timeWiseBody("Annex", "10.03.2099", "10:00", "12:00"), http.StatusBadRequest, "invalid_date_format"},
		{"PastDate", timeWiseBody("Annex", "2001-03-10", "10:00", "12:00"), http.StatusBadRequest, ""},
		{"RangeTooLong", map[string]any{"hallName": "Annex", "startDate": "2099-04-01", "endDate": "2099-04-09"}, http.StatusBadRequest, "range_too_long"},
		{"UnknownField", map[string]any{"hallName": "Annex", "color": "red"}, http.StatusBadRequest, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, out := doJSON(t, http.MethodPost, base, tt.body)
			assert.Equal(t, tt.status, resp.StatusCode, "body: %v", out)
			if tt.reason != "" {
				assert.Equal(t, tt.reason, out["reason"])
			}
			assert.NotEmpty(t, out["error"])
		})
	}

	resp, _ := doJSON(t, http.MethodGet, base+"/abc", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = doJSON(t, http.MethodPatch, base+"/1", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestCheckBooking(t *testing.T) {
	ts := newTestHTTPServer(t, openConfig())
	id := createBooking(t, ts.URL, map[string]any{"hallName": "Annex", "startDate": "2099-04-01", "endDate": "2099-04-03"})

	body := timeWiseBody("Annex", "2099-04-02", "09:00", "10:00")
	resp, out := doJSON(t, http.MethodPost, ts.URL+"/api/v1/bookings/check", body)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, false, out["admissible"])
	assert.Equal(t, "full_day_booked", out["reason"])
	assert.Equal(t, "2099-04-02", out["date"])

	body["excludeId"] = id
	resp, out = doJSON(t, http.MethodPost, ts.URL+"/api/v1/bookings/check", body)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, out["admissible"])

	resp, _ = doJSON(t, http.MethodPost, ts.URL+"/api/v1/bookings/check", timeWiseBody("Roof", "2099-04-02", "09:00", "10:00"))
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestDayAndCalendar(t *testing.T) {
	ts := newTestHTTPServer(t, openConfig())
	createBooking(t, ts.URL, map[string]any{
		"hallName":  "Main Hall",
		"startDate": "2099-05-01",
		"endDate":   "2099-05-05",
		"daySlots":  map[string]any{"2099-05-03": map[string]string{"startTime": "09:00", "endTime": "11:00"}},
	})
	createBooking(t, ts.URL, timeWiseBody("Annex", "2099-05-03", "13:00", "14:00"))

	resp, out := doJSON(t, http.MethodGet, ts.URL+"/api/v1/day/2099-05-03?hall=main+hall", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	occupants := out["occupants"].([]any)
	require.Len(t, occupants, 1)
	first := occupants[0].(map[string]any)
	assert.Equal(t, false, first["fullDay"])
	assert.Equal(t, "09:00", first["startTime"])

	resp, out = doJSON(t, http.MethodGet, ts.URL+"/api/v1/day/2099-05-03", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, out["occupants"], 2)

	resp, _ = doJSON(t, http.MethodGet, ts.URL+"/api/v1/day/05-03-2099", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, out = doJSON(t, http.MethodGet, ts.URL+"/api/v1/calendar?year=2099&month=5&hall=Main%20Hall", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	days := out["days"].([]any)
	require.Len(t, days, 31)
	assert.Equal(t, float64(1), days[0].(map[string]any)["bookingCount"])
	assert.Equal(t, true, days[5].(map[string]any)["free"])

	resp, out = doJSON(t, http.MethodGet, ts.URL+"/api/v1/calendar?year=2099&month=13", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "invalid_month", out["reason"])

	resp, _ = doJSON(t, http.MethodGet, ts.URL+"/api/v1/calendar?year=abc&month=1", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestBookingQueries(t *testing.T) {
	ts := newTestHTTPServer(t, openConfig())
	base := ts.URL + "/api/v1/bookings"

	physics := timeWiseBody("Main Hall", "2099-05-03", "09:00", "10:00")
	physics["department"] = "Physics"
	physics["slot"] = "Morning Lecture"
	physicsID := createBooking(t, ts.URL, physics)

	chemistry := timeWiseBody("Annex", "2099-05-03", "09:00", "10:00")
	chemistry["department"] = "Chemistry"
	chemistryID := createBooking(t, ts.URL, chemistry)

	later := timeWiseBody("Main Hall", "2099-05-04", "09:00", "10:00")
	later["department"] = "Physics"
	laterID := createBooking(t, ts.URL, later)

	ids := func(out map[string]any) []int64 {
		var got []int64
		for _, b := range out["bookings"].([]any) {
			got = append(got, int64(b.(map[string]any)["id"].(float64)))
		}
		return got
	}

	resp, out := doJSON(t, http.MethodGet, base+"/history?department=physics&email=alice@example.edu", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []int64{physicsID, laterID}, ids(out))

	resp, _ = doJSON(t, http.MethodGet, base+"/history?department=physics", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, out = doJSON(t, http.MethodGet, base+"/search?hall=main+hall&date=2099-05-03&slot=lecture", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []int64{physicsID}, ids(out))

	resp, out = doJSON(t, http.MethodGet, base+"/search?department=biology", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, out["bookings"])

	resp, out = doJSON(t, http.MethodGet, base+"/date/2099-05-03", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []int64{physicsID, chemistryID}, ids(out))

	resp, out = doJSON(t, http.MethodGet, ts.URL+"/api/v1/halls/Annex/date/2099-05-03", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []int64{chemistryID}, ids(out))

	resp, out = doJSON(t, http.MethodGet, base+"/date/03-05-2099", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "invalid_date_format", out["reason"])
}

func TestHalls(t *testing.T) {
	ts := newTestHTTPServer(t, openConfig())

	resp, out := doJSON(t, http.MethodGet, ts.URL+"/api/v1/halls", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, out["halls"], 2)
}

func TestExport(t *testing.T) {
	ts := newTestHTTPServer(t, openConfig())
	createBooking(t, ts.URL, timeWiseBody("Annex", "2099-06-02", "13:00", "14:00"))

	resp, err := http.Get(ts.URL + "/api/v1/bookings/export?from=2099-06-01&to=2099-06-07")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Disposition"), "bookings_2099-06-01_to_2099-06-07.xlsx")

	f, err := excelize.OpenReader(resp.Body)
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows("Bookings")
	require.NoError(t, err)
	assert.Len(t, rows, 2)

	bad, _ := doJSON(t, http.MethodGet, ts.URL+"/api/v1/bookings/export?from=2099-06-07&to=2099-06-01", nil)
	assert.Equal(t, http.StatusBadRequest, bad.StatusCode)

	bad, _ = doJSON(t, http.MethodGet, ts.URL+"/api/v1/bookings/export?from=june", nil)
	assert.Equal(t, http.StatusBadRequest, bad.StatusCode)
}

func TestStatusForError(t *testing.T) {
	assert.Equal(t, http.StatusNotFound, statusForError(fmt.Errorf("wrap: %w", database.ErrBookingNotFound)))
	assert.Equal(t, http.StatusConflict, statusForError(database.ErrConcurrentModification))
	assert.Equal(t, http.StatusBadRequest, statusForError(&availability.Error{Kind: availability.ErrSlotTaken, ConflictID: 7}))
	assert.Equal(t, http.StatusBadRequest, statusForError(fmt.Errorf("wrap: %w", &availability.Error{Kind: availability.ErrFullDayBooked})))
	assert.Equal(t, http.StatusBadRequest, statusForError(&availability.Error{Kind: availability.ErrRangeBlocked}))
	assert.Equal(t, http.StatusBadRequest, statusForError(service.ErrInvalidContact))
	assert.Equal(t, http.StatusBadRequest, statusForError(export.ErrRangeTooLong))
	assert.Equal(t, http.StatusInternalServerError, statusForError(io.ErrUnexpectedEOF))
}

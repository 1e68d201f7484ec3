package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"hallbook/internal/availability"
	"hallbook/internal/export"
	"hallbook/internal/models"
)

var errBadInput = errors.New("bad input")

const maxBodyBytes = 1 << 20

func decodeBody(r *http.Request, dst any, optional bool) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if optional && errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("%w: invalid JSON body: %v", errBadInput, err)
	}
	return nil
}

func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: invalid booking id %q", errBadInput, r.PathValue("id"))
	}
	return id, nil
}

func (s *HTTPServer) handleCreateBooking(w http.ResponseWriter, r *http.Request) {
	var booking models.Booking
	if err := decodeBody(r, &booking, false); err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	// id and version are assigned by storage
	booking.ID, booking.Version = 0, 0

	if err := s.bookings.CreateBooking(r.Context(), &booking); err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, booking)
}

func (s *HTTPServer) handleListBookings(w http.ResponseWriter, r *http.Request) {
	bookings, err := s.bookings.ListBookings(r.Context(), r.URL.Query().Get("status"))
	s.writeBookings(w, r, bookings, err)
}

func (s *HTTPServer) handleHistory(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	bookings, err := s.bookings.BookingHistory(r.Context(), q.Get("department"), q.Get("email"))
	s.writeBookings(w, r, bookings, err)
}

func (s *HTTPServer) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	bookings, err := s.bookings.SearchBookings(r.Context(), models.BookingFilter{
		Status:     q.Get("status"),
		Department: q.Get("department"),
		Email:      q.Get("email"),
		Hall:       q.Get("hall"),
		Date:       q.Get("date"),
		Slot:       q.Get("slot"),
	})
	s.writeBookings(w, r, bookings, err)
}

// handleBookingsOnDate serves both the all-halls and the per-hall route;
// the latter carries {hall}.
func (s *HTTPServer) handleBookingsOnDate(w http.ResponseWriter, r *http.Request) {
	bookings, err := s.bookings.SearchBookings(r.Context(), models.BookingFilter{
		Hall: r.PathValue("hall"),
		Date: r.PathValue("date"),
	})
	s.writeBookings(w, r, bookings, err)
}

func (s *HTTPServer) writeBookings(w http.ResponseWriter, r *http.Request, bookings []*models.Booking, err error) {
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	if bookings == nil {
		bookings = []*models.Booking{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"bookings": bookings})
}

func (s *HTTPServer) handleSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := s.bookings.StatusSummary(r.Context())
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"summary": summary})
}

type checkRequest struct {
	models.Booking
	ExcludeID int64 `json:"excludeId"`
}

type checkResponse struct {
	Admissible bool   `json:"admissible"`
	Reason     string `json:"reason,omitempty"`
	Message    string `json:"message,omitempty"`
	Date       string `json:"date,omitempty"`
	ConflictID int64  `json:"conflictId,omitempty"`
}

// handleCheckBooking answers 200 for both outcomes of the engine; only
// failures outside the engine are errors.
func (s *HTTPServer) handleCheckBooking(w http.ResponseWriter, r *http.Request) {
	var req checkRequest
	if err := decodeBody(r, &req, false); err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	err := s.bookings.CheckBooking(r.Context(), &req.Booking, req.ExcludeID)
	var rejection *availability.Error
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, checkResponse{Admissible: true})
	case errors.As(err, &rejection):
		writeJSON(w, http.StatusOK, checkResponse{
			Reason:     rejection.Reason(),
			Message:    rejection.Error(),
			Date:       rejection.Date,
			ConflictID: rejection.ConflictID,
		})
	default:
		s.writeDomainError(w, r, err)
	}
}

func (s *HTTPServer) handleExport(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	from, err := availability.ParseDate(q.Get("from"))
	if err != nil {
		s.writeDomainError(w, r, fmt.Errorf("%w: from: %v", errBadInput, err))
		return
	}
	to, err := availability.ParseDate(q.Get("to"))
	if err != nil {
		s.writeDomainError(w, r, fmt.Errorf("%w: to: %v", errBadInput, err))
		return
	}

	var buf bytes.Buffer
	if err := s.bookings.WriteExport(r.Context(), &buf, from, to); err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", export.FileName(from, to)))
	w.WriteHeader(http.StatusOK)
	if _, err := buf.WriteTo(w); err != nil {
		s.logger.Error().Err(err).Str("request_id", requestID(r.Context())).Msg("write export")
	}
}

func (s *HTTPServer) handleGetBooking(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	booking, err := s.bookings.GetBooking(r.Context(), id)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, booking)
}

type updateRequest struct {
	models.BookingPatch
	Version int64 `json:"version"`
}

func (s *HTTPServer) handleUpdateBooking(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	var req updateRequest
	if err := decodeBody(r, &req, false); err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	booking, err := s.bookings.UpdateBooking(r.Context(), id, req.Version, req.BookingPatch, actor(r))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, booking)
}

func (s *HTTPServer) handleDeleteBooking(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	if err := s.bookings.DeleteBooking(r.Context(), id, actor(r)); err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type transitionRequest struct {
	Version int64  `json:"version"`
	Comment string `json:"comment"`
}

func (s *HTTPServer) transition(w http.ResponseWriter, r *http.Request, apply func(id int64, req transitionRequest) (*models.Booking, error)) {
	id, err := pathID(r)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	var req transitionRequest
	if err := decodeBody(r, &req, true); err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	booking, err := apply(id, req)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, booking)
}

func (s *HTTPServer) handleApprove(w http.ResponseWriter, r *http.Request) {
	s.transition(w, r, func(id int64, req transitionRequest) (*models.Booking, error) {
		return s.bookings.ApproveBooking(r.Context(), id, req.Version, actor(r))
	})
}

func (s *HTTPServer) handleReject(w http.ResponseWriter, r *http.Request) {
	s.transition(w, r, func(id int64, req transitionRequest) (*models.Booking, error) {
		return s.bookings.RejectBooking(r.Context(), id, req.Version, actor(r), req.Comment)
	})
}

func (s *HTTPServer) handleCancel(w http.ResponseWriter, r *http.Request) {
	s.transition(w, r, func(id int64, req transitionRequest) (*models.Booking, error) {
		return s.bookings.CancelBooking(r.Context(), id, req.Version, actor(r), req.Comment)
	})
}

type cancelRequest struct {
	Version            int64  `json:"version"`
	CancellationReason string `json:"cancellationReason"`
	Remarks            string `json:"remarks"`
}

func (s *HTTPServer) handleCancelRequest(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	var req cancelRequest
	if err := decodeBody(r, &req, true); err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	booking, err := s.bookings.RequestCancellation(r.Context(), id, req.Version, req.CancellationReason, req.Remarks, actor(r))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, booking)
}

func (s *HTTPServer) handleDay(w http.ResponseWriter, r *http.Request) {
	date := r.PathValue("date")
	hall := strings.TrimSpace(r.URL.Query().Get("hall"))

	occupants, err := s.bookings.DayOccupants(r.Context(), hall, date)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	if occupants == nil {
		occupants = []models.Occupancy{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"date": date, "hall": hall, "occupants": occupants})
}

func (s *HTTPServer) handleCalendar(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	now := time.Now().UTC()

	year, month := now.Year(), int(now.Month())
	var err error
	if v := q.Get("year"); v != "" {
		if year, err = strconv.Atoi(v); err != nil {
			s.writeDomainError(w, r, fmt.Errorf("%w: invalid year %q", errBadInput, v))
			return
		}
	}
	if v := q.Get("month"); v != "" {
		if month, err = strconv.Atoi(v); err != nil {
			s.writeDomainError(w, r, fmt.Errorf("%w: invalid month %q", errBadInput, v))
			return
		}
	}
	hall := strings.TrimSpace(q.Get("hall"))

	days, err := s.bookings.CalendarSummary(r.Context(), hall, year, month)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"hall": hall, "year": year, "month": month, "days": days})
}

func (s *HTTPServer) handleHalls(w http.ResponseWriter, r *http.Request) {
	halls, err := s.halls.ListHalls(r.Context())
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	if halls == nil {
		halls = []models.Hall{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"halls": halls})
}

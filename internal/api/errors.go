package api

import (
	"errors"
	"net/http"

	"hallbook/internal/availability"
	"hallbook/internal/database"
	"hallbook/internal/export"
	"hallbook/internal/service"
)

type errorResponse struct {
	Error      string `json:"error"`
	Reason     string `json:"reason,omitempty"`
	Date       string `json:"date,omitempty"`
	ConflictID int64  `json:"conflictId,omitempty"`
}

var badRequest = []error{
	service.ErrPastDate,
	service.ErrInvalidContact,
	service.ErrInvalidStatus,
	service.ErrInvalidCreatedBy,
	service.ErrInvalidRequest,
	export.ErrInvalidRange,
	export.ErrRangeTooLong,
	errBadInput,
}

// statusForError maps domain errors to HTTP status codes. Booking conflicts
// are client errors like any other rejection; 409 is kept for stale versions.
func statusForError(err error) int {
	switch {
	case availability.IsRejection(err):
		return http.StatusBadRequest
	case errors.Is(err, database.ErrBookingNotFound), errors.Is(err, database.ErrHallNotFound):
		return http.StatusNotFound
	case errors.Is(err, database.ErrConcurrentModification):
		return http.StatusConflict
	}
	for _, target := range badRequest {
		if errors.Is(err, target) {
			return http.StatusBadRequest
		}
	}
	return http.StatusInternalServerError
}

func (s *HTTPServer) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	code := statusForError(err)
	if code == http.StatusInternalServerError {
		s.logger.Error().Err(err).Str("request_id", requestID(r.Context())).Str("path", r.URL.Path).Msg("request failed")
		writeError(w, code, "internal error")
		return
	}

	resp := errorResponse{Error: err.Error()}
	var rejection *availability.Error
	if errors.As(err, &rejection) {
		resp.Reason = rejection.Reason()
		resp.Date = rejection.Date
		resp.ConflictID = rejection.ConflictID
	}
	writeJSON(w, code, resp)
}

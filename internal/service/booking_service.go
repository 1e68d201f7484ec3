package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"
	"sync/atomic"
	"time"

	"hallbook/internal/availability"
	"hallbook/internal/config"
	"hallbook/internal/database"
	"hallbook/internal/domain"
	"hallbook/internal/events"
	"hallbook/internal/export"
	"hallbook/internal/metrics"
	"hallbook/internal/models"

	"github.com/rs/zerolog"
)

// BookingService applies the booking policy around the availability engine:
// it loads the hall's bookings, lets the engine decide, persists under the
// storage write lock and publishes events after commit.
type BookingService struct {
	repo     domain.BookingRepository
	halls    domain.HallRepository
	engine   *availability.Engine
	cache    domain.CalendarCache
	eventBus domain.EventPublisher
	exporter *export.Exporter

	allowPast bool
	email     *regexp.Regexp
	phone     *regexp.Regexp
	loc       *time.Location
	now       func() time.Time
	logger    *zerolog.Logger

	// bumped on every invalidation; a summary computed across a bump is stale
	calendarGen atomic.Uint64
}

func NewBookingService(
	repo domain.BookingRepository,
	halls domain.HallRepository,
	engine *availability.Engine,
	cache domain.CalendarCache,
	eventBus domain.EventPublisher,
	exporter *export.Exporter,
	cfg config.BookingConfig,
	logger *zerolog.Logger,
) (*BookingService, error) {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	if engine == nil {
		engine = availability.NewEngine(cfg.MaxBookingDays, logger)
	}

	s := &BookingService{
		repo:      repo,
		halls:     halls,
		engine:    engine,
		cache:     cache,
		eventBus:  eventBus,
		exporter:  exporter,
		allowPast: cfg.AllowPastDates,
		loc:       cfg.Location(),
		now:       time.Now,
		logger:    logger,
	}

	var err error
	if cfg.EmailPattern != "" {
		if s.email, err = regexp.Compile(cfg.EmailPattern); err != nil {
			return nil, fmt.Errorf("email pattern: %w", err)
		}
	}
	if cfg.PhonePattern != "" {
		if s.phone, err = regexp.Compile(cfg.PhonePattern); err != nil {
			return nil, fmt.Errorf("phone pattern: %w", err)
		}
	}
	return s, nil
}

// CreateBooking validates and stores a new booking. The conflict check runs
// inside the storage transaction, so two racing requests for the same slot
// cannot both succeed.
func (s *BookingService) CreateBooking(ctx context.Context, booking *models.Booking) error {
	if err := s.prepare(ctx, booking, true); err != nil {
		s.observe(err)
		return err
	}
	if booking.AppliedAt.IsZero() {
		booking.AppliedAt = s.now().UTC()
	}

	err := s.repo.CreateBookingWithLock(ctx, booking, s.checker(booking, 0))
	s.observe(err)
	if err != nil {
		return err
	}

	s.logger.Info().Int64("booking_id", booking.ID).Str("hall", booking.Hall).Str("status", booking.Status).Msg("booking created")
	s.publishEvent(events.EventBookingCreated, booking, booking.CreatedBy, "", booking.Hall)
	return nil
}

// UpdateBooking applies patch to the stored booking and re-runs the full
// check with the booking itself excluded. version 0 skips the client-side
// version check; the storage write is still optimistic.
func (s *BookingService) UpdateBooking(ctx context.Context, id, version int64, patch models.BookingPatch, actor string) (*models.Booking, error) {
	current, err := s.repo.GetBooking(ctx, id)
	if err != nil {
		return nil, err
	}
	if version != 0 && version != current.Version {
		return nil, database.ErrConcurrentModification
	}
	updated := current.Clone()
	patch.Apply(updated)

	if err := s.prepare(ctx, updated, scheduleChanged(current, updated)); err != nil {
		s.observe(err)
		return nil, err
	}

	err = s.repo.UpdateBookingWithLock(ctx, updated, s.checker(updated, id))
	s.observe(err)
	if err != nil {
		return nil, err
	}

	s.logger.Info().Int64("booking_id", id).Int64("version", updated.Version).Msg("booking updated")
	s.publishEvent(events.EventBookingUpdated, updated, actor, "", current.Hall, updated.Hall)
	return updated, nil
}

func (s *BookingService) ApproveBooking(ctx context.Context, id, version int64, actor string) (*models.Booking, error) {
	return s.transition(ctx, id, version, models.StatusApproved, events.EventBookingApproved, actor, "")
}

func (s *BookingService) RejectBooking(ctx context.Context, id, version int64, actor, comment string) (*models.Booking, error) {
	return s.transition(ctx, id, version, models.StatusRejected, events.EventBookingRejected, actor, comment)
}

// CancelBooking marks the booking CANCELLED. The slot stays occupied until
// the booking is deleted.
func (s *BookingService) CancelBooking(ctx context.Context, id, version int64, actor, comment string) (*models.Booking, error) {
	return s.transition(ctx, id, version, models.StatusCancelled, events.EventBookingCancelled, actor, comment)
}

func (s *BookingService) transition(ctx context.Context, id, version int64, status, eventType, actor, comment string) (*models.Booking, error) {
	if version == 0 {
		current, err := s.repo.GetBooking(ctx, id)
		if err != nil {
			return nil, err
		}
		version = current.Version
	}

	if err := s.repo.UpdateBookingStatusWithVersion(ctx, id, version, status); err != nil {
		return nil, err
	}

	booking, err := s.repo.GetBooking(ctx, id)
	if err != nil {
		return nil, err
	}
	s.logger.Info().Int64("booking_id", id).Str("status", status).Str("actor", actor).Msg("booking status changed")
	s.publishEvent(eventType, booking, actor, comment, booking.Hall)
	return booking, nil
}

// RequestCancellation moves the booking to CANCEL_REQUESTED. A non-blank
// remark is appended to the existing remarks.
func (s *BookingService) RequestCancellation(ctx context.Context, id, version int64, reason, remarks, actor string) (*models.Booking, error) {
	current, err := s.repo.GetBooking(ctx, id)
	if err != nil {
		return nil, err
	}
	if version == 0 {
		version = current.Version
	}

	if strings.TrimSpace(reason) == "" {
		reason = current.CancellationReason
	}
	merged := current.Remarks
	if remarks = strings.TrimSpace(remarks); remarks != "" {
		if strings.TrimSpace(merged) != "" {
			merged += models.RemarksSeparator
		}
		merged += remarks
	}

	if err := s.repo.RequestCancellationWithVersion(ctx, id, version, reason, merged); err != nil {
		return nil, err
	}

	booking, err := s.repo.GetBooking(ctx, id)
	if err != nil {
		return nil, err
	}
	s.publishEvent(events.EventBookingCancelRequested, booking, actor, reason, booking.Hall)
	return booking, nil
}

// DeleteBooking removes the booking and frees its slot.
func (s *BookingService) DeleteBooking(ctx context.Context, id int64, actor string) error {
	booking, err := s.repo.GetBooking(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.DeleteBooking(ctx, id); err != nil {
		return err
	}

	s.logger.Info().Int64("booking_id", id).Str("actor", actor).Msg("booking deleted")
	s.publishEvent(events.EventBookingDeleted, booking, actor, "", booking.Hall)
	return nil
}

func (s *BookingService) GetBooking(ctx context.Context, id int64) (*models.Booking, error) {
	return s.repo.GetBooking(ctx, id)
}

// ListBookings returns every booking, or those with status (any case).
func (s *BookingService) ListBookings(ctx context.Context, status string) ([]*models.Booking, error) {
	status = strings.ToUpper(strings.TrimSpace(status))
	if status != "" && !models.ValidStatus(status) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}
	return s.repo.ListBookings(ctx, status)
}

// SearchBookings lists bookings matching every non-empty field of f. A date
// must be YYYY-MM-DD and matches time-wise bookings on exactly that day.
func (s *BookingService) SearchBookings(ctx context.Context, f models.BookingFilter) ([]*models.Booking, error) {
	f.Status = strings.ToUpper(strings.TrimSpace(f.Status))
	if f.Status != "" && !models.ValidStatus(f.Status) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, f.Status)
	}
	if strings.TrimSpace(f.Date) != "" {
		day, err := availability.ParseDate(f.Date)
		if err != nil {
			return nil, &availability.Error{Kind: availability.ErrInvalidDateFormat, Detail: f.Date}
		}
		f.Date = availability.DateKey(day)
	}
	return s.repo.SearchBookings(ctx, f)
}

// BookingHistory lists what one requester of a department has booked.
func (s *BookingService) BookingHistory(ctx context.Context, department, email string) ([]*models.Booking, error) {
	if strings.TrimSpace(department) == "" || strings.TrimSpace(email) == "" {
		return nil, fmt.Errorf("%w: department and email are required", ErrInvalidRequest)
	}
	return s.repo.SearchBookings(ctx, models.BookingFilter{Department: department, Email: email})
}

func (s *BookingService) StatusSummary(ctx context.Context) (models.StatusSummary, error) {
	return s.repo.CountBookingsByStatus(ctx)
}

// CheckBooking answers whether req would be accepted right now without
// storing anything. excludeID names the booking being edited, if any; as
// in UpdateBooking the past-date rule then applies only to a moved schedule.
func (s *BookingService) CheckBooking(ctx context.Context, req *models.Booking, excludeID int64) error {
	candidate := req.Clone()
	checkDates := true
	if excludeID != 0 {
		stored, err := s.repo.GetBooking(ctx, excludeID)
		if err != nil {
			return err
		}
		checkDates = scheduleChanged(stored, candidate)
	}

	err := s.prepare(ctx, candidate, checkDates)
	if err == nil {
		var existing []*models.Booking
		existing, err = s.repo.GetHallBookings(ctx, candidate.Hall)
		if err != nil {
			return err
		}
		err = s.checker(candidate, excludeID)(existing)
	}
	s.observe(err)
	return err
}

// DayOccupants lists who occupies date. An empty hall means every hall.
func (s *BookingService) DayOccupants(ctx context.Context, hall, date string) ([]models.Occupancy, error) {
	day, err := availability.ParseDate(date)
	if err != nil {
		return nil, &availability.Error{Kind: availability.ErrInvalidDateFormat, Detail: date}
	}

	filter := availability.FilterFromQuery(hall)
	bookings, err := s.repo.GetBookingsByDateRange(ctx, filter.Name(), day, day)
	if err != nil {
		return nil, err
	}

	snap := availability.NewSnapshot(bookings, s.logger)
	return availability.Occupancy(snap.OccupantsOn(filter, day)), nil
}

// CalendarSummary returns one entry per day of the month. Results are
// cached per hall and month; cache failures only cost a recomputation.
func (s *BookingService) CalendarSummary(ctx context.Context, hall string, year, month int) ([]models.CalendarDay, error) {
	first, last, err := availability.MonthRange(year, time.Month(month))
	if err != nil {
		return nil, err
	}

	filter := availability.FilterFromQuery(hall)
	key := models.CalendarKey{Hall: filter.Name(), Year: year, Month: month}

	if s.cache != nil {
		days, ok, err := s.cache.GetCalendar(ctx, key)
		switch {
		case err != nil:
			metrics.IncCache("error")
			s.logger.Warn().Err(err).Str("hall", key.Hall).Int("year", year).Int("month", month).Msg("calendar cache read failed")
		case ok:
			metrics.IncCache("hit")
			return days, nil
		default:
			metrics.IncCache("miss")
		}
	}

	gen := s.calendarGen.Load()
	bookings, err := s.repo.GetBookingsByDateRange(ctx, filter.Name(), first, last)
	if err != nil {
		return nil, err
	}
	days, err := availability.NewSnapshot(bookings, s.logger).CalendarSummary(filter, year, time.Month(month))
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		s.storeCalendar(ctx, key, days, gen)
	}
	return days, nil
}

// storeCalendar caches days unless an invalidation ran since gen was read.
// One landing between the check and the write is undone by dropping the
// entry again.
func (s *BookingService) storeCalendar(ctx context.Context, key models.CalendarKey, days []models.CalendarDay, gen uint64) {
	if s.calendarGen.Load() != gen {
		s.logger.Debug().Str("hall", key.Hall).Msg("calendar changed while computing, not caching")
		return
	}
	if err := s.cache.SetCalendar(ctx, key, days); err != nil {
		s.logger.Warn().Err(err).Str("hall", key.Hall).Msg("calendar cache write failed")
		return
	}
	if s.calendarGen.Load() != gen {
		if err := s.cache.InvalidateHall(ctx, key.Hall); err != nil {
			s.logger.Warn().Err(err).Str("hall", key.Hall).Msg("stale calendar entry not dropped")
		}
	}
}

// InvalidateCalendar drops cached summaries that include hall.
func (s *BookingService) InvalidateCalendar(ctx context.Context, hall string) error {
	s.calendarGen.Add(1)
	if s.cache == nil {
		return nil
	}
	return s.cache.InvalidateHall(ctx, hall)
}

// ExportReport collects bookings touching [from, to] for the xlsx export.
func (s *BookingService) ExportReport(ctx context.Context, from, to time.Time) (export.Report, error) {
	if to.Before(from) {
		return export.Report{}, fmt.Errorf("%w: %s", export.ErrInvalidRange, "to is before from")
	}
	bookings, err := s.repo.GetBookingsByDateRange(ctx, "", from, to)
	if err != nil {
		return export.Report{}, err
	}
	halls, err := s.halls.ListHalls(ctx)
	if err != nil {
		return export.Report{}, err
	}
	return export.Report{From: from, To: to, Halls: halls, Bookings: bookings}, nil
}

// WriteExport streams the xlsx report into w.
func (s *BookingService) WriteExport(ctx context.Context, w io.Writer, from, to time.Time) error {
	if s.exporter == nil {
		return errors.New("export is not configured")
	}
	report, err := s.ExportReport(ctx, from, to)
	if err != nil {
		return err
	}
	return s.exporter.Write(w, report)
}

// SaveExport writes the xlsx report into the export directory.
func (s *BookingService) SaveExport(ctx context.Context, from, to time.Time) (string, error) {
	if s.exporter == nil {
		return "", errors.New("export is not configured")
	}
	report, err := s.ExportReport(ctx, from, to)
	if err != nil {
		return "", err
	}
	return s.exporter.Save(report)
}

// prepare normalizes b and runs every check that does not need the hall's
// bookings. checkDates enables the past-date rule.
func (s *BookingService) prepare(ctx context.Context, b *models.Booking, checkDates bool) error {
	b.Status = strings.ToUpper(strings.TrimSpace(b.Status))
	if b.Status == "" {
		b.Status = models.StatusPending
	}
	if !models.ValidStatus(b.Status) {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, b.Status)
	}

	b.CreatedBy = strings.TrimSpace(b.CreatedBy)
	if !validCreatedBy(b.CreatedBy) {
		return ErrInvalidCreatedBy
	}
	if b.CreatedBy != "" {
		b.CreatedBy = models.CreatedByAdmin
	} else if b.Status == models.StatusApproved {
		b.CreatedBy = models.CreatedByAdmin
	}

	shape, err := s.engine.Validate(b)
	if err != nil {
		return err
	}
	// range queries compare the stored strings, so they must be canonical
	availability.Canonicalize(b, shape)

	hall, err := s.halls.GetHallByName(ctx, b.Hall)
	if err != nil {
		return err
	}
	b.Hall = hall.Name

	if err := s.validateContact(b); err != nil {
		return err
	}
	if checkDates && !s.allowPast {
		if err := s.rejectPast(shape); err != nil {
			return err
		}
	}
	return nil
}

func (s *BookingService) checker(b *models.Booking, excludeID int64) func(existing []*models.Booking) error {
	return func(existing []*models.Booking) error {
		snap := availability.NewSnapshot(existing, s.logger)
		_, err := s.engine.ValidateAndCheck(b, snap, excludeID)
		return err
	}
}

func (s *BookingService) validateContact(b *models.Booking) error {
	if s.email != nil && !s.email.MatchString(strings.TrimSpace(b.Email)) {
		return fmt.Errorf("%w: email %q", ErrInvalidContact, b.Email)
	}
	if s.phone != nil && !s.phone.MatchString(strings.TrimSpace(b.Phone)) {
		return fmt.Errorf("%w: phone %q", ErrInvalidContact, b.Phone)
	}
	return nil
}

func (s *BookingService) rejectPast(shape availability.Shape) error {
	now := s.now().In(s.loc)
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	switch sh := shape.(type) {
	case availability.TimeWise:
		if sh.Date.Before(today) {
			return fmt.Errorf("%w: %s", ErrPastDate, availability.DateKey(sh.Date))
		}
	case availability.DayWise:
		if sh.StartDate.Before(today) {
			return fmt.Errorf("%w: start date %s", ErrPastDate, availability.DateKey(sh.StartDate))
		}
	}
	return nil
}

// observe records the engine decision. Storage and policy errors are not decisions.
func (s *BookingService) observe(err error) {
	if err == nil || availability.IsRejection(err) {
		metrics.ObserveDecision(availability.ReasonOf(err))
	}
}

func (s *BookingService) publishEvent(eventType string, b *models.Booking, changedBy, comment string, halls ...string) {
	if s.eventBus == nil {
		return
	}

	payload := events.BookingEventPayload{
		BookingID:   b.ID,
		Hall:        b.Hall,
		Halls:       distinctHalls(halls),
		BookingName: b.BookingName,
		Email:       b.Email,
		Status:      b.Status,
		Date:        b.Date,
		StartTime:   b.StartTime,
		EndTime:     b.EndTime,
		StartDate:   b.StartDate,
		EndDate:     b.EndDate,
		Comment:     comment,
		ChangedBy:   changedBy,
	}

	if err := s.eventBus.PublishJSON(eventType, payload); err != nil {
		s.logger.Error().Err(err).Str("event_type", eventType).Int64("booking_id", b.ID).Msg("publish event error")
	}
}

func validCreatedBy(v string) bool {
	v = strings.TrimSpace(v)
	return v == "" || strings.EqualFold(v, models.CreatedByAdmin)
}

func scheduleChanged(a, b *models.Booking) bool {
	a, b = canonicalSchedule(a), canonicalSchedule(b)
	if a.Date != b.Date || a.StartTime != b.StartTime || a.EndTime != b.EndTime ||
		a.StartDate != b.StartDate || a.EndDate != b.EndDate || len(a.DaySlots) != len(b.DaySlots) {
		return true
	}
	for k, v := range a.DaySlots {
		if w, ok := b.DaySlots[k]; !ok || w != v {
			return true
		}
	}
	return false
}

// canonicalSchedule returns a copy of b with parseable scheduling fields in
// stored form; unparseable ones are compared as given.
func canonicalSchedule(b *models.Booking) *models.Booking {
	c := b.Clone()
	if shape, err := availability.ParseShape(c, 0); err == nil {
		availability.Canonicalize(c, shape)
	}
	return c
}

func distinctHalls(halls []string) []string {
	var out []string
	for _, h := range halls {
		h = strings.TrimSpace(h)
		if h == "" {
			continue
		}
		dup := false
		for _, o := range out {
			if strings.EqualFold(o, h) {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, h)
		}
	}
	return out
}

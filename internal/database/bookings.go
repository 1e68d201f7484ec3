package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"hallbook/internal/models"
)

// CheckFunc inspects the bookings of the target hall inside the write
// transaction and returns a non-nil error to abort the write.
type CheckFunc = func(existing []*models.Booking) error

const bookingColumns = `id, hall_name, slot, booking_name, email, department, phone, slot_title,
	remarks, status, created_by, cancellation_reason, date, start_time, end_time,
	start_date, end_date, day_slots, applied_at, created_at, updated_at, version`

var errCorruptDaySlots = errors.New("corrupt day_slots")

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBooking(s rowScanner) (*models.Booking, error) {
	var (
		b         models.Booking
		daySlots  string
		appliedAt sql.NullTime
	)
	err := s.Scan(
		&b.ID, &b.Hall, &b.Slot, &b.BookingName, &b.Email, &b.Department, &b.Phone, &b.SlotTitle,
		&b.Remarks, &b.Status, &b.CreatedBy, &b.CancellationReason, &b.Date, &b.StartTime, &b.EndTime,
		&b.StartDate, &b.EndDate, &daySlots, &appliedAt, &b.CreatedAt, &b.UpdatedAt, &b.Version,
	)
	if err != nil {
		return nil, err
	}
	if appliedAt.Valid {
		b.AppliedAt = appliedAt.Time
	}
	if daySlots != "" {
		if err := json.Unmarshal([]byte(daySlots), &b.DaySlots); err != nil {
			return &b, fmt.Errorf("%w for booking %d: %v", errCorruptDaySlots, b.ID, err)
		}
	}
	return &b, nil
}

func encodeDaySlots(slots map[string]models.DaySlot) (string, error) {
	if len(slots) == 0 {
		return "", nil
	}
	raw, err := json.Marshal(slots)
	if err != nil {
		return "", fmt.Errorf("encode day slots: %w", err)
	}
	return string(raw), nil
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}

// queryBookings scans every row; rows with undecodable day slots are logged and skipped.
func (db *DB) queryBookings(ctx context.Context, q queryer, query string, args ...any) ([]*models.Booking, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bookings []*models.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if errors.Is(err, errCorruptDaySlots) {
			db.logger.Warn().Err(err).Int64("booking_id", b.ID).Msg("skipping booking with unreadable day slots")
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to scan booking: %w", err)
		}
		bookings = append(bookings, b)
	}
	return bookings, rows.Err()
}

func (db *DB) hallBookings(ctx context.Context, q queryer, hall string) ([]*models.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE hall_name = ? COLLATE NOCASE ORDER BY id`
	return db.queryBookings(ctx, q, query, strings.TrimSpace(hall))
}

// CreateBooking inserts a booking without any availability check.
func (db *DB) CreateBooking(ctx context.Context, booking *models.Booking) error {
	db.writeMu.Lock()
	defer db.writeMu.Unlock()

	return db.insertBooking(ctx, db.DB, booking)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (db *DB) insertBooking(ctx context.Context, ex execer, booking *models.Booking) error {
	daySlots, err := encodeDaySlots(booking.DaySlots)
	if err != nil {
		return err
	}

	query := `INSERT INTO bookings (
				hall_name, slot, booking_name, email, department, phone, slot_title,
				remarks, status, created_by, cancellation_reason, date, start_time, end_time,
				start_date, end_date, day_slots, applied_at, created_at, updated_at, version
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	now := time.Now()
	result, err := ex.ExecContext(ctx, query,
		booking.Hall, booking.Slot, booking.BookingName, booking.Email, booking.Department,
		booking.Phone, booking.SlotTitle, booking.Remarks, booking.Status, booking.CreatedBy,
		booking.CancellationReason, booking.Date, booking.StartTime, booking.EndTime,
		booking.StartDate, booking.EndDate, daySlots, nullTime(booking.AppliedAt),
		now, now, 1,
	)
	if err != nil {
		return fmt.Errorf("failed to create booking: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	booking.ID = id
	booking.CreatedAt = now
	booking.UpdatedAt = now
	booking.Version = 1
	return nil
}

// CreateBookingWithLock runs check against the hall's current bookings and
// inserts the booking in the same transaction.
func (db *DB) CreateBookingWithLock(ctx context.Context, booking *models.Booking, check CheckFunc) error {
	db.writeMu.Lock()
	defer db.writeMu.Unlock()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// 1. Check availability inside transaction
	if check != nil {
		existing, err := db.hallBookings(ctx, tx, booking.Hall)
		if err != nil {
			return fmt.Errorf("failed to load hall bookings in tx: %w", err)
		}
		if err := check(existing); err != nil {
			return err
		}
	}

	// 2. Create booking
	if err := db.insertBooking(ctx, tx, booking); err != nil {
		return err
	}

	return tx.Commit()
}

// UpdateBookingWithLock re-runs check against the target hall and writes
// every field of booking if its version still matches. On success the
// version is incremented in place.
func (db *DB) UpdateBookingWithLock(ctx context.Context, booking *models.Booking, check CheckFunc) error {
	db.writeMu.Lock()
	defer db.writeMu.Unlock()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if check != nil {
		existing, err := db.hallBookings(ctx, tx, booking.Hall)
		if err != nil {
			return fmt.Errorf("failed to load hall bookings in tx: %w", err)
		}
		if err := check(existing); err != nil {
			return err
		}
	}

	daySlots, err := encodeDaySlots(booking.DaySlots)
	if err != nil {
		return err
	}

	query := `UPDATE bookings SET
				hall_name = ?, slot = ?, booking_name = ?, email = ?, department = ?, phone = ?,
				slot_title = ?, remarks = ?, status = ?, created_by = ?, cancellation_reason = ?,
				date = ?, start_time = ?, end_time = ?, start_date = ?, end_date = ?, day_slots = ?,
				applied_at = ?, version = version + 1, updated_at = ?
			WHERE id = ? AND version = ?`
	now := time.Now()
	result, err := tx.ExecContext(ctx, query,
		booking.Hall, booking.Slot, booking.BookingName, booking.Email, booking.Department,
		booking.Phone, booking.SlotTitle, booking.Remarks, booking.Status, booking.CreatedBy,
		booking.CancellationReason, booking.Date, booking.StartTime, booking.EndTime,
		booking.StartDate, booking.EndDate, daySlots, nullTime(booking.AppliedAt), now,
		booking.ID, booking.Version,
	)
	if err != nil {
		return fmt.Errorf("failed to update booking: %w", err)
	}
	if err := versionConflict(ctx, tx, result, booking.ID); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit booking update: %w", err)
	}
	booking.Version++
	booking.UpdatedAt = now
	return nil
}

type rowQueryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// versionConflict tells a missing booking apart from a stale version.
func versionConflict(ctx context.Context, q rowQueryer, result sql.Result, id int64) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if rows > 0 {
		return nil
	}
	var exists int
	if err := q.QueryRowContext(ctx, `SELECT COUNT(*) FROM bookings WHERE id = ?`, id).Scan(&exists); err != nil {
		return fmt.Errorf("failed to check booking existence: %w", err)
	}
	if exists == 0 {
		return ErrBookingNotFound
	}
	return ErrConcurrentModification
}

func (db *DB) GetBooking(ctx context.Context, id int64) (*models.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE id = ?`
	b, err := scanBooking(db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrBookingNotFound
	}
	if errors.Is(err, errCorruptDaySlots) {
		// запись читается, но без разбивки по дням
		db.logger.Warn().Err(err).Int64("booking_id", id).Msg("booking has unreadable day slots")
		b.DaySlots = nil
		return b, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get booking: %w", err)
	}
	return b, nil
}

// UpdateBookingStatusWithVersion sets the status if the version matches.
func (db *DB) UpdateBookingStatusWithVersion(ctx context.Context, id, fromVersion int64, status string) error {
	db.writeMu.Lock()
	defer db.writeMu.Unlock()

	query := `UPDATE bookings SET status = ?, version = version + 1, updated_at = ? WHERE id = ? AND version = ?`
	result, err := db.ExecContext(ctx, query, status, time.Now(), id, fromVersion)
	if err != nil {
		return fmt.Errorf("failed to update booking status: %w", err)
	}
	return versionConflict(ctx, db.DB, result, id)
}

// RequestCancellationWithVersion marks the booking CANCEL_REQUESTED and
// stores the reason and the updated remarks.
func (db *DB) RequestCancellationWithVersion(ctx context.Context, id, fromVersion int64, reason, remarks string) error {
	db.writeMu.Lock()
	defer db.writeMu.Unlock()

	query := `UPDATE bookings SET status = ?, cancellation_reason = ?, remarks = ?, version = version + 1, updated_at = ?
			WHERE id = ? AND version = ?`
	result, err := db.ExecContext(ctx, query, models.StatusCancelRequested, reason, remarks, time.Now(), id, fromVersion)
	if err != nil {
		return fmt.Errorf("failed to request cancellation: %w", err)
	}
	return versionConflict(ctx, db.DB, result, id)
}

func (db *DB) DeleteBooking(ctx context.Context, id int64) error {
	db.writeMu.Lock()
	defer db.writeMu.Unlock()

	result, err := db.ExecContext(ctx, `DELETE FROM bookings WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete booking: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if rows == 0 {
		return ErrBookingNotFound
	}
	return nil
}

// ListBookings returns all bookings, or only those with the given status
// (case-insensitive), ordered by id.
func (db *DB) ListBookings(ctx context.Context, status string) ([]*models.Booking, error) {
	return db.SearchBookings(ctx, models.BookingFilter{Status: status})
}

// SearchBookings returns the bookings matching every non-empty field of f,
// ordered by id.
func (db *DB) SearchBookings(ctx context.Context, f models.BookingFilter) ([]*models.Booking, error) {
	var (
		where []string
		args  []any
	)
	add := func(value, clause string) {
		if value = strings.TrimSpace(value); value != "" {
			where = append(where, clause)
			args = append(args, value)
		}
	}
	add(f.Status, `UPPER(status) = UPPER(?)`)
	add(f.Department, `LOWER(TRIM(department)) = LOWER(?)`)
	add(f.Email, `LOWER(TRIM(email)) = LOWER(?)`)
	add(f.Hall, `LOWER(TRIM(hall_name)) = LOWER(?)`)
	add(f.Date, `date = ?`)
	add(f.Slot, `INSTR(LOWER(slot), LOWER(?)) > 0`)

	query := `SELECT ` + bookingColumns + ` FROM bookings`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, ` AND `)
	}
	query += ` ORDER BY id`

	bookings, err := db.queryBookings(ctx, db.DB, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list bookings: %w", err)
	}
	return bookings, nil
}

// CountBookingsByStatus groups bookings by status; a blank status counts as UNKNOWN.
func (db *DB) CountBookingsByStatus(ctx context.Context) (models.StatusSummary, error) {
	query := `SELECT CASE WHEN TRIM(status) = '' THEN 'UNKNOWN' ELSE UPPER(status) END AS s, COUNT(*)
			FROM bookings GROUP BY s`
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to count bookings: %w", err)
	}
	defer rows.Close()

	summary := make(models.StatusSummary)
	for rows.Next() {
		var status string
		var count int64
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("failed to scan status count: %w", err)
		}
		summary[status] = count
	}
	return summary, rows.Err()
}

// GetBookingsByDateRange returns bookings that touch [startDate, endDate]:
// time-wise bookings dated inside it and day-wise bookings overlapping it.
// An empty hall selects every hall.
func (db *DB) GetBookingsByDateRange(ctx context.Context, hall string, startDate, endDate time.Time) ([]*models.Booking, error) {
	from := startDate.Format(models.DateLayout)
	to := endDate.Format(models.DateLayout)

	query := `SELECT ` + bookingColumns + ` FROM bookings
			WHERE ((date != '' AND date >= ? AND date <= ?)
				OR (start_date != '' AND start_date <= ? AND end_date >= ?))`
	args := []any{from, to, to, from}
	if hall = strings.TrimSpace(hall); hall != "" {
		query += ` AND hall_name = ? COLLATE NOCASE`
		args = append(args, hall)
	}
	query += ` ORDER BY id`

	bookings, err := db.queryBookings(ctx, db.DB, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get bookings by date range: %w", err)
	}
	return bookings, nil
}

// GetHallBookings returns every booking of a hall.
func (db *DB) GetHallBookings(ctx context.Context, hall string) ([]*models.Booking, error) {
	bookings, err := db.hallBookings(ctx, db.DB, hall)
	if err != nil {
		return nil, fmt.Errorf("failed to get hall bookings: %w", err)
	}
	return bookings, nil
}

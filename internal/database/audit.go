package database

import (
	"context"
	"fmt"
	"time"

	"hallbook/internal/models"
)

func (db *DB) CreateAuditEntry(ctx context.Context, entry *models.AuditEntry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	result, err := db.ExecContext(ctx,
		`INSERT INTO audit_log (booking_id, action, actor, details, created_at) VALUES (?, ?, ?, ?, ?)`,
		entry.BookingID, entry.Action, entry.Actor, entry.Details, entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create audit entry: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	entry.ID = id
	return nil
}

// GetAuditTrail returns the entries of one booking, oldest first.
func (db *DB) GetAuditTrail(ctx context.Context, bookingID int64) ([]models.AuditEntry, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT id, booking_id, action, actor, details, created_at FROM audit_log WHERE booking_id = ? ORDER BY id`,
		bookingID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get audit trail: %w", err)
	}
	defer rows.Close()

	var entries []models.AuditEntry
	for rows.Next() {
		var e models.AuditEntry
		if err := rows.Scan(&e.ID, &e.BookingID, &e.Action, &e.Actor, &e.Details, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

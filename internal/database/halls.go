package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"hallbook/internal/models"
)

func hallKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// SyncHalls upserts the configured halls by name and refreshes the cache.
// Halls missing from the list are kept, since bookings may still reference them.
func (db *DB) SyncHalls(ctx context.Context, halls []models.Hall) error {
	db.writeMu.Lock()
	defer db.writeMu.Unlock()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	query := `INSERT INTO halls (name, capacity, created_at, updated_at) VALUES (?, ?, ?, ?)
			ON CONFLICT(name) DO UPDATE SET capacity = excluded.capacity, updated_at = excluded.updated_at`
	now := time.Now()
	for _, hall := range halls {
		if _, err := tx.ExecContext(ctx, query, strings.TrimSpace(hall.Name), hall.Capacity, now, now); err != nil {
			return fmt.Errorf("failed to sync hall %s: %w", hall.Name, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit halls: %w", err)
	}

	return db.reloadHalls(ctx)
}

func (db *DB) reloadHalls(ctx context.Context) error {
	halls, err := db.ListHalls(ctx)
	if err != nil {
		return err
	}
	cache := make(map[string]models.Hall, len(halls))
	for _, h := range halls {
		cache[hallKey(h.Name)] = h
	}

	db.mu.Lock()
	db.hallsCache = cache
	db.mu.Unlock()
	return nil
}

func (db *DB) ListHalls(ctx context.Context) ([]models.Hall, error) {
	rows, err := db.QueryContext(ctx, `SELECT id, name, capacity, created_at, updated_at FROM halls ORDER BY name COLLATE NOCASE`)
	if err != nil {
		return nil, fmt.Errorf("failed to list halls: %w", err)
	}
	defer rows.Close()

	var halls []models.Hall
	for rows.Next() {
		var h models.Hall
		if err := rows.Scan(&h.ID, &h.Name, &h.Capacity, &h.CreatedAt, &h.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan hall: %w", err)
		}
		halls = append(halls, h)
	}
	return halls, rows.Err()
}

// GetHallByName looks a hall up case-insensitively, cache first.
func (db *DB) GetHallByName(ctx context.Context, name string) (*models.Hall, error) {
	db.mu.RLock()
	hall, ok := db.hallsCache[hallKey(name)]
	db.mu.RUnlock()
	if ok {
		return &hall, nil
	}

	var h models.Hall
	query := `SELECT id, name, capacity, created_at, updated_at FROM halls WHERE name = ? COLLATE NOCASE`
	err := db.QueryRowContext(ctx, query, strings.TrimSpace(name)).Scan(&h.ID, &h.Name, &h.Capacity, &h.CreatedAt, &h.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrHallNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get hall by name: %w", err)
	}

	db.mu.Lock()
	db.hallsCache[hallKey(h.Name)] = h
	db.mu.Unlock()
	return &h, nil
}

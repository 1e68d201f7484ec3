package database

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"hallbook/internal/availability"
	"hallbook/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConcurrentBooking(t *testing.T) {
	logger := zerolog.Nop()
	dbPath := filepath.Join(t.TempDir(), "concurrency.db")
	db, err := NewDB(dbPath, &logger)
	require.NoError(t, err)
	defer db.Close()

	ctx := context.Background()
	engine := availability.NewEngine(7, &logger)

	const numGoroutines = 10
	var wg sync.WaitGroup
	wg.Add(numGoroutines)

	results := make(chan error, numGoroutines)

	for i := 0; i < numGoroutines; i++ {
		go func(offset int) {
			defer wg.Done()
			// every request overlaps 10:00-10:30
			booking := &models.Booking{
				Hall:      "Main Hall",
				Date:      "2025-09-01",
				StartTime: "10:00",
				EndTime:   []string{"10:30", "11:00", "12:00"}[offset%3],
				Status:    models.StatusPending,
			}
			results <- db.CreateBookingWithLock(ctx, booking, func(existing []*models.Booking) error {
				_, err := engine.ValidateAndCheck(booking, availability.NewSnapshot(existing, &logger), 0)
				return err
			})
		}(i)
	}

	wg.Wait()
	close(results)

	successCount := 0
	for err := range results {
		if err == nil {
			successCount++
			continue
		}
		assert.ErrorIs(t, err, availability.ErrSlotTaken)
	}

	assert.Equal(t, 1, successCount, "Only one overlapping booking should succeed")

	bookings, err := db.GetHallBookings(ctx, "Main Hall")
	require.NoError(t, err)
	assert.Len(t, bookings, 1)
}

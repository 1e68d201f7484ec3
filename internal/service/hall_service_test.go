package service

import (
	"context"
	"testing"

	"hallbook/internal/database"
	"hallbook/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHallService(t *testing.T) {
	ctx := context.Background()
	logger := zerolog.Nop()
	db, err := database.NewDB(":memory:", &logger)
	require.NoError(t, err)
	defer db.Close()

	svc := NewHallService(db, &logger)

	require.NoError(t, svc.SyncHalls(ctx, []models.Hall{{Name: "Main Hall", Capacity: 100}, {Name: "Annex"}}))

	halls, err := svc.ListHalls(ctx)
	require.NoError(t, err)
	assert.Len(t, halls, 2)

	hall, err := svc.GetHall(ctx, "MAIN hall")
	require.NoError(t, err)
	assert.Equal(t, "Main Hall", hall.Name)
	assert.Equal(t, 100, hall.Capacity)

	_, err = svc.GetHall(ctx, "Roof")
	assert.ErrorIs(t, err, database.ErrHallNotFound)

	err = svc.SyncHalls(ctx, []models.Hall{{Name: "A"}, {Name: "a"}})
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

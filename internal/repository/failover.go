package repository

import (
	"context"
	"sync/atomic"
	"time"

	"hallbook/internal/domain"
	"hallbook/internal/models"

	"github.com/rs/zerolog"
)

const recoveryInterval = time.Minute

// FailoverCalendarCache uses primary (Redis) until it fails, then serves
// from fallback (memory) and retries primary once per recoveryInterval.
type FailoverCalendarCache struct {
	primary   domain.CalendarCache
	fallback  domain.CalendarCache
	logger    *zerolog.Logger
	isDown    atomic.Bool
	lastCheck atomic.Int64
	now       func() time.Time
}

func NewFailoverCalendarCache(primary, fallback domain.CalendarCache, logger *zerolog.Logger) *FailoverCalendarCache {
	return &FailoverCalendarCache{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
		now:      time.Now,
	}
}

func (r *FailoverCalendarCache) markDown(err error) {
	if !r.isDown.Swap(true) {
		r.logger.Error().Err(err).Msg("Primary calendar cache failed, falling back to memory")
	}
	r.lastCheck.Store(r.now().UnixNano())
}

// usePrimary reports whether the next call should go to primary.
func (r *FailoverCalendarCache) usePrimary() bool {
	if !r.isDown.Load() {
		return true
	}
	// Try to recover after 1 minute
	return r.now().Sub(time.Unix(0, r.lastCheck.Load())) > recoveryInterval
}

func (r *FailoverCalendarCache) recovered() {
	if r.isDown.Swap(false) {
		r.logger.Info().Msg("Primary calendar cache recovered")
	}
}

func (r *FailoverCalendarCache) GetCalendar(ctx context.Context, key models.CalendarKey) ([]models.CalendarDay, bool, error) {
	if r.usePrimary() {
		days, ok, err := r.primary.GetCalendar(ctx, key)
		if err == nil {
			r.recovered()
			return days, ok, nil
		}
		r.markDown(err)
	}
	return r.fallback.GetCalendar(ctx, key)
}

func (r *FailoverCalendarCache) SetCalendar(ctx context.Context, key models.CalendarKey, days []models.CalendarDay) error {
	if r.usePrimary() {
		err := r.primary.SetCalendar(ctx, key, days)
		if err == nil {
			r.recovered()
			return nil
		}
		r.markDown(err)
	}
	return r.fallback.SetCalendar(ctx, key, days)
}

// InvalidateHall always clears both caches so neither serves stale months
// after a switch-over.
func (r *FailoverCalendarCache) InvalidateHall(ctx context.Context, hall string) error {
	if err := r.fallback.InvalidateHall(ctx, hall); err != nil {
		return err
	}
	if err := r.primary.InvalidateHall(ctx, hall); err != nil {
		r.markDown(err)
	}
	return nil
}

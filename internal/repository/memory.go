package repository

import (
	"context"
	"strings"
	"sync"
	"time"

	"hallbook/internal/models"
)

type memoryEntry struct {
	days      []models.CalendarDay
	expiresAt time.Time
}

// MemoryCalendarCache is the in-process fallback cache.
type MemoryCalendarCache struct {
	entries sync.Map
	ttl     time.Duration
	now     func() time.Time
}

func NewMemoryCalendarCache(ttl time.Duration) *MemoryCalendarCache {
	return &MemoryCalendarCache{
		ttl: ttl,
		now: time.Now,
	}
}

func (r *MemoryCalendarCache) GetCalendar(_ context.Context, key models.CalendarKey) ([]models.CalendarDay, bool, error) {
	k := calendarKey(key)
	val, ok := r.entries.Load(k)
	if !ok {
		return nil, false, nil
	}
	entry := val.(memoryEntry)
	if r.ttl > 0 && r.now().After(entry.expiresAt) {
		r.entries.Delete(k)
		return nil, false, nil
	}
	return append([]models.CalendarDay(nil), entry.days...), true, nil
}

func (r *MemoryCalendarCache) SetCalendar(_ context.Context, key models.CalendarKey, days []models.CalendarDay) error {
	r.entries.Store(calendarKey(key), memoryEntry{
		days:      append([]models.CalendarDay(nil), days...),
		expiresAt: r.now().Add(r.ttl),
	})
	return nil
}

func (r *MemoryCalendarCache) InvalidateHall(_ context.Context, hall string) error {
	prefixes := invalidationPatterns(hall)
	for i := range prefixes {
		prefixes[i] = strings.TrimSuffix(prefixes[i], "*")
	}
	r.entries.Range(func(k, _ any) bool {
		key := k.(string)
		for _, p := range prefixes {
			if strings.HasPrefix(key, p) {
				r.entries.Delete(key)
				break
			}
		}
		return true
	})
	return nil
}

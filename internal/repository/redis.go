package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"hallbook/internal/config"
	"hallbook/internal/models"

	"github.com/redis/go-redis/v9"
)

// RedisCalendarCache keeps month summaries in Redis with a TTL.
type RedisCalendarCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisClient создает новый клиент Redis на основе конфигурации
func NewRedisClient(cfg config.RedisConfig) *redis.Client {
	options := &redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	}

	return redis.NewClient(options)
}

func NewRedisCalendarCache(client *redis.Client, ttl time.Duration) *RedisCalendarCache {
	return &RedisCalendarCache{
		client: client,
		ttl:    ttl,
	}
}

func (r *RedisCalendarCache) GetCalendar(ctx context.Context, key models.CalendarKey) ([]models.CalendarDay, bool, error) {
	if r.client == nil {
		return nil, false, errors.New("redis client is nil")
	}
	val, err := r.client.Get(ctx, calendarKey(key)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get calendar from redis: %w", err)
	}

	var days []models.CalendarDay
	if err := json.Unmarshal([]byte(val), &days); err != nil {
		return nil, false, fmt.Errorf("failed to unmarshal calendar: %w", err)
	}
	return days, true, nil
}

func (r *RedisCalendarCache) SetCalendar(ctx context.Context, key models.CalendarKey, days []models.CalendarDay) error {
	if r.client == nil {
		return errors.New("redis client is nil")
	}
	data, err := json.Marshal(days)
	if err != nil {
		return fmt.Errorf("failed to marshal calendar: %w", err)
	}
	if err := r.client.Set(ctx, calendarKey(key), data, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set calendar in redis: %w", err)
	}
	return nil
}

// InvalidateHall drops every cached month of the hall and of the all-halls view.
func (r *RedisCalendarCache) InvalidateHall(ctx context.Context, hall string) error {
	if r.client == nil {
		return errors.New("redis client is nil")
	}
	for _, pattern := range invalidationPatterns(hall) {
		iter := r.client.Scan(ctx, 0, pattern, 100).Iterator()
		var keys []string
		for iter.Next(ctx) {
			keys = append(keys, iter.Val())
		}
		if err := iter.Err(); err != nil {
			return fmt.Errorf("failed to scan calendar keys: %w", err)
		}
		if len(keys) == 0 {
			continue
		}
		if err := r.client.Del(ctx, keys...).Err(); err != nil {
			return fmt.Errorf("failed to delete calendar keys: %w", err)
		}
	}
	return nil
}

// Ping проверяет соединение с Redis
func Ping(ctx context.Context, client *redis.Client) error {
	if _, err := client.Ping(ctx).Result(); err != nil {
		return fmt.Errorf("failed to ping Redis: %w", err)
	}
	return nil
}

// Close закрывает соединение с Redis
func Close(client *redis.Client) error {
	if client != nil {
		return client.Close()
	}
	return nil
}

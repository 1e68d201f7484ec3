package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"hallbook/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	t.Setenv("HALLBOOK_TEST_DB", "halls.db")

	yamlContent := `
database:
  path: "${HALLBOOK_TEST_DB}"
booking:
  max_booking_days: 5
  phone_pattern: "^[6-9][0-9]{9}$"
  calendar_cache_ttl: 30s
notifications:
  poll_interval: 2s
halls:
  - name: "Main Auditorium"
    capacity: 300
  - name: "Seminar Hall 2"
`
	require.NoError(t, os.WriteFile(configPath, []byte(yamlContent), 0o644))

	// .env отсутствует: это не ошибка
	cfg, err := Load(configPath)
	require.NoError(t, err)

	assert.Equal(t, "halls.db", cfg.Database.Path)
	assert.Equal(t, 5, cfg.Booking.MaxBookingDays)
	assert.Equal(t, 30*time.Second, cfg.Booking.CalendarCacheTTL)
	assert.Equal(t, 2*time.Second, cfg.Notifications.PollInterval)
	require.Len(t, cfg.Halls, 2)
	assert.Equal(t, 300, cfg.Halls[0].Capacity)
	assert.Equal(t, "hallbook", cfg.App.Name)
}

func TestLoadConfig_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("booking:\n  email_pattern: \"([\"\ndatabase:\n  path: x.db\n"), 0o644))
	_, err = Load(path)
	assert.ErrorContains(t, err, "email_pattern")
}

func TestValidateConfig(t *testing.T) {
	valid := func() Config {
		return Config{
			Database: DatabaseConfig{Path: "path"},
			Booking:  BookingConfig{MaxBookingDays: 7},
			Halls:    []models.Hall{{Name: "H1"}},
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{name: "valid config", mutate: func(c *Config) {}},
		{name: "missing database path", mutate: func(c *Config) { c.Database.Path = "" }, wantErr: true},
		{name: "zero max days", mutate: func(c *Config) { c.Booking.MaxBookingDays = 0 }, wantErr: true},
		{name: "bad phone pattern", mutate: func(c *Config) { c.Booking.PhonePattern = "[0-9" }, wantErr: true},
		{name: "bad timezone", mutate: func(c *Config) { c.Booking.Timezone = "Mars/Base" }, wantErr: true},
		{name: "tls without cert", mutate: func(c *Config) { c.API.GRPC.TLS.Enabled = true }, wantErr: true},
		{name: "duplicate hall", mutate: func(c *Config) { c.Halls = append(c.Halls, models.Hall{Name: " h1 "}) }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := &Config{}
	cfg.applyDefaults()

	assert.Equal(t, 8081, cfg.API.GRPC.Port)
	assert.Equal(t, 8080, cfg.API.HTTP.Port)
	assert.Equal(t, "x-api-key", cfg.API.Auth.HeaderAPIKey)
	assert.Equal(t, models.DefaultMaxBookingDays, cfg.Booking.MaxBookingDays)
	assert.Equal(t, 5*time.Minute, cfg.Booking.CalendarCacheTTL)
	assert.Equal(t, 5, cfg.Notifications.MaxRetries)
	assert.Equal(t, "hallbook:notifications", cfg.Notifications.QueueKey)
}

func TestValidateHalls(t *testing.T) {
	tests := []struct {
		name    string
		halls   []models.Hall
		wantErr bool
	}{
		{name: "valid halls", halls: []models.Hall{{Name: "A"}, {Name: "B", Capacity: 40}}},
		{name: "empty list", halls: nil},
		{name: "blank name", halls: []models.Hall{{Name: "  "}}, wantErr: true},
		{name: "case-insensitive duplicate", halls: []models.Hall{{Name: "Hall A"}, {Name: "hall a"}}, wantErr: true},
		{name: "negative capacity", halls: []models.Hall{{Name: "A", Capacity: -1}}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateHalls(tt.halls)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateHalls() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLocation(t *testing.T) {
	assert.Equal(t, time.Local, BookingConfig{}.Location())
	assert.Equal(t, "UTC", BookingConfig{Timezone: "UTC"}.Location().String())
}

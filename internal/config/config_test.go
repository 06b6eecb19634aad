package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultsAndEnv(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("PS_REDIS_PASSWORD", "s3cret")

	body := `
database:
  path: ` + filepath.Join(dir, "db", "ps.db") + `
redis:
  address: localhost:6379
  password: ${PS_REDIS_PASSWORD}
scheduling:
  buffer_minutes: 10
pricing:
  hourly_rate_cents: 2000
  free_hours:
    basic: 2
    premium: 4.5
  default_tier: basic
  members:
    42: premium
admins: [7, 9]
`
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "s3cret", cfg.Redis.Password)
	assert.Equal(t, filepath.Join(dir, "venue.yaml"), cfg.VenueConfigPath)
	assert.DirExists(t, filepath.Join(dir, "db"))

	assert.Equal(t, 15*time.Minute, cfg.SlotStep())
	assert.Equal(t, 10*time.Minute, cfg.Buffer())
	assert.Equal(t, time.Hour, cfg.MinDuration())
	assert.Equal(t, 8*time.Hour, cfg.MaxDuration())
	assert.Equal(t, 180*time.Minute, cfg.DefaultEventDuration())
	assert.Equal(t, 90, cfg.SeriesMaxAdvanceDays())
	assert.Equal(t, int64(2000), cfg.HourlyRateCents())
	assert.Equal(t, []int64{7, 9}, cfg.Admins)

	tiers := cfg.FreeHoursByTier()
	assert.Equal(t, "2", tiers["basic"].String())
	assert.Equal(t, "4.5", tiers["premium"].String())
	assert.Equal(t, "basic", cfg.Pricing.DefaultTier)
	assert.Equal(t, "premium", cfg.Pricing.Members[42])
}

func TestLoad_RejectsNegativeRate(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := "database:\n  path: " + filepath.Join(dir, "ps.db") + "\npricing:\n  hourly_rate_cents: -1\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	_, err := Load(path)
	assert.Error(t, err)
}

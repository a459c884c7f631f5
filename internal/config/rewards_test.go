package config

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRewardsConfig(t *testing.T) {
	cfg, err := parseRewardsConfig(rawRewardsConfig{DailyGoalKm: "15.5", Timezone: "Europe/Berlin"})
	require.NoError(t, err)
	assert.True(t, cfg.DailyGoalKm.Equal(decimal.RequireFromString("15.50")))
	assert.Equal(t, "Europe/Berlin", cfg.Timezone.String())
}

func TestParseRewardsConfigDefaultsTimezone(t *testing.T) {
	cfg, err := parseRewardsConfig(rawRewardsConfig{DailyGoalKm: "20"})
	require.NoError(t, err)
	assert.Equal(t, time.UTC, cfg.Timezone)
}

func TestParseRewardsConfigRejectsInvalidGoal(t *testing.T) {
	for _, goal := range []string{"", "abc", "0", "-1"} {
		_, err := parseRewardsConfig(rawRewardsConfig{DailyGoalKm: goal})
		assert.Error(t, err, goal)
	}
}

func TestStaticHolderReturnsDefaults(t *testing.T) {
	holder := NewStaticRewardsConfigHolder(DefaultRewardsConfig())
	assert.Equal(t, "20.00", holder.Get().DailyGoalKm.StringFixed(2))
}

func TestGetenvDurationFallsBackOnInvalid(t *testing.T) {
	t.Setenv("OUTBOX_POLL_INTERVAL", "soon")
	assert.Equal(t, 5*time.Second, getenvDuration("OUTBOX_POLL_INTERVAL", 5*time.Second))

	t.Setenv("OUTBOX_POLL_INTERVAL", "250ms")
	assert.Equal(t, 250*time.Millisecond, getenvDuration("OUTBOX_POLL_INTERVAL", 5*time.Second))
}

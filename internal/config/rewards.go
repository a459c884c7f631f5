package config

import (
	"errors"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// RewardsConfig drives the daily distance badge.
type RewardsConfig struct {
	DailyGoalKm decimal.Decimal
	Timezone    *time.Location
}

type rawRewardsConfig struct {
	DailyGoalKm string `mapstructure:"dailyGoalKm"`
	Timezone    string `mapstructure:"timezone"`
}

func DefaultRewardsConfig() RewardsConfig {
	return RewardsConfig{
		DailyGoalKm: decimal.RequireFromString("20.00"),
		Timezone:    time.UTC,
	}
}

type RewardsConfigHolder struct {
	current atomic.Value // holds RewardsConfig
}

// NewStaticRewardsConfigHolder returns a holder that never reloads.
func NewStaticRewardsConfigHolder(cfg RewardsConfig) *RewardsConfigHolder {
	holder := &RewardsConfigHolder{}
	holder.current.Store(cfg)
	return holder
}

func NewRewardsConfigHolder(log *zap.Logger) (*RewardsConfigHolder, error) {
	log = log.Named("config.rewards")
	v := viper.New()

	v.SetConfigName("rewards")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/journeys/config")
	v.AddConfigPath("/etc/journeys")
	v.AddConfigPath(".")

	v.SetEnvPrefix("JOURNEYS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultRewardsConfig()
	v.SetDefault("rewards.dailyGoalKm", defaults.DailyGoalKm.StringFixed(2))
	v.SetDefault("rewards.timezone", defaults.Timezone.String())

	watch := true
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		watch = false
	}

	cfg, err := decodeRewardsConfig(v)
	if err != nil {
		return nil, err
	}

	holder := &RewardsConfigHolder{}
	holder.current.Store(cfg)

	if watch {
		v.WatchConfig()
		v.OnConfigChange(func(e fsnotify.Event) {
			updated, err := decodeRewardsConfig(v)
			if err != nil {
				log.Warn("invalid rewards config ignored", zap.String("file", e.Name), zap.Error(err))
				return
			}
			holder.current.Store(updated)
			log.Info("rewards config reloaded",
				zap.String("file", e.Name),
				zap.String("daily_goal_km", updated.DailyGoalKm.StringFixed(2)),
			)
		})
	}

	return holder, nil
}

func (h *RewardsConfigHolder) Get() RewardsConfig {
	return h.current.Load().(RewardsConfig)
}

func decodeRewardsConfig(v *viper.Viper) (RewardsConfig, error) {
	var raw rawRewardsConfig
	if err := v.UnmarshalKey("rewards", &raw); err != nil {
		return RewardsConfig{}, err
	}
	return parseRewardsConfig(raw)
}

func parseRewardsConfig(raw rawRewardsConfig) (RewardsConfig, error) {
	goal, err := decimal.NewFromString(strings.TrimSpace(raw.DailyGoalKm))
	if err != nil {
		return RewardsConfig{}, errors.New("rewards.dailyGoalKm must be a decimal")
	}
	if !goal.IsPositive() {
		return RewardsConfig{}, errors.New("rewards.dailyGoalKm must be positive")
	}

	tz := strings.TrimSpace(raw.Timezone)
	if tz == "" {
		tz = "UTC"
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return RewardsConfig{}, err
	}

	return RewardsConfig{DailyGoalKm: goal.Round(2), Timezone: loc}, nil
}

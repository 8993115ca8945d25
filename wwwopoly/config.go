package wwwopoly

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/wwwopoly/wwwopoly/wwwopoly/database"
)

func LoadConfig(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config: %w", err)
	}
	defer file.Close()

	var cfg Config
	if err = toml.NewDecoder(file).Decode(&cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return &cfg, nil
}

type Config struct {
	Log     LogConfig         `toml:"log"`
	DB      database.DBConfig `toml:"db"`
	Economy EconomyConfig     `toml:"economy"`
	Jobs    JobsConfig        `toml:"jobs"`
}

type LogConfig struct {
	Level slog.Level `toml:"level"`
}

// EconomyConfig carries the tunables the reconciler and pricing rules read.
// Zero values are replaced with the defaults the original game shipped with.
type EconomyConfig struct {
	InflationThreshold   int64   `toml:"inflation_threshold"`
	DeflationThreshold   int64   `toml:"deflation_threshold"`
	InflationRate        float64 `toml:"inflation_rate"`
	DeflationRate        float64 `toml:"deflation_rate"`
	MaintenanceFeeFactor int64   `toml:"maintenance_fee_factor"`
	MaintenanceMinLevel  int     `toml:"maintenance_min_level"`
	BaseClaimCost        int64   `toml:"base_claim_cost"`
	ListingFeeRate       float64 `toml:"listing_fee_rate"`
	MaxTradePrice        int64   `toml:"max_trade_price"`
	ReferralBonus        int64   `toml:"referral_bonus"`
	MilestoneReward      int64   `toml:"milestone_reward"`
	LinkRewardPoints     int64   `toml:"link_reward_points"`
}

type JobsConfig struct {
	HourlyInterval  time.Duration `toml:"hourly_interval"`
	DailyInterval   time.Duration `toml:"daily_interval"`
	SweepBatchSize  int           `toml:"sweep_batch_size"`
	SweepWorkers    int           `toml:"sweep_workers"`
	ShutdownTimeout time.Duration `toml:"shutdown_timeout"`
}

func (c *Config) applyDefaults() {
	if c.Economy.InflationThreshold == 0 {
		c.Economy.InflationThreshold = 1_000_000
	}
	if c.Economy.DeflationThreshold == 0 {
		c.Economy.DeflationThreshold = 500_000
	}
	if c.Economy.InflationRate == 0 {
		c.Economy.InflationRate = 1.2
	}
	if c.Economy.DeflationRate == 0 {
		c.Economy.DeflationRate = 0.8
	}
	if c.Economy.MaintenanceFeeFactor == 0 {
		c.Economy.MaintenanceFeeFactor = 1
	}
	if c.Economy.MaintenanceMinLevel == 0 {
		c.Economy.MaintenanceMinLevel = 5
	}
	if c.Economy.BaseClaimCost == 0 {
		c.Economy.BaseClaimCost = 10
	}
	if c.Economy.ListingFeeRate == 0 {
		c.Economy.ListingFeeRate = 0.05
	}
	if c.Economy.MaxTradePrice == 0 {
		c.Economy.MaxTradePrice = 100
	}
	if c.Economy.ReferralBonus == 0 {
		c.Economy.ReferralBonus = 100
	}
	if c.Economy.MilestoneReward == 0 {
		c.Economy.MilestoneReward = 10
	}
	if c.Economy.LinkRewardPoints == 0 {
		c.Economy.LinkRewardPoints = 10
	}
	if c.Jobs.HourlyInterval == 0 {
		c.Jobs.HourlyInterval = time.Hour
	}
	if c.Jobs.DailyInterval == 0 {
		c.Jobs.DailyInterval = 15 * time.Minute
	}
	if c.Jobs.SweepBatchSize == 0 {
		c.Jobs.SweepBatchSize = 50
	}
	if c.Jobs.SweepWorkers == 0 {
		c.Jobs.SweepWorkers = 5
	}
	if c.Jobs.ShutdownTimeout == 0 {
		c.Jobs.ShutdownTimeout = 30 * time.Second
	}
}

package wwwopoly

import (
	"github.com/wwwopoly/wwwopoly/wwwopoly/database"
	"github.com/wwwopoly/wwwopoly/wwwopoly/database/repositories"
	"github.com/wwwopoly/wwwopoly/wwwopoly/economy"
	"github.com/wwwopoly/wwwopoly/wwwopoly/notifier"
	"github.com/wwwopoly/wwwopoly/wwwopoly/scheduler"
	"github.com/wwwopoly/wwwopoly/wwwopoly/tournament"
)

func New(cfg Config, version string, commit string) *Engine {
	return &Engine{
		Cfg:     cfg,
		Version: version,
		Commit:  commit,
	}
}

// Engine bundles the wired-up services of a running game instance.
type Engine struct {
	Cfg     Config
	Version string
	Commit  string

	DB *database.DB

	AccountRepository    repositories.AccountRepository
	LinkRepository       repositories.LinkRepository
	ListingRepository    repositories.ListingRepository
	LedgerRepository     repositories.LedgerRepository
	EconomyRepository    repositories.EconomyRepository
	EventRepository      repositories.EventRepository
	TournamentRepository repositories.TournamentRepository

	Notifier    notifier.Notifier
	Pricing     *economy.Pricing
	Economy     *economy.Service
	Reconciler  *economy.Reconciler
	Tournaments *tournament.Service
	Scheduler   *scheduler.Scheduler
}

// EconomySettings flattens the config sections into the economy
// package's tunables.
func (c *Config) EconomySettings() economy.Config {
	return economy.Config{
		InflationThreshold:   c.Economy.InflationThreshold,
		DeflationThreshold:   c.Economy.DeflationThreshold,
		InflationRate:        c.Economy.InflationRate,
		DeflationRate:        c.Economy.DeflationRate,
		MaintenanceFeeFactor: c.Economy.MaintenanceFeeFactor,
		MaintenanceMinLevel:  c.Economy.MaintenanceMinLevel,
		BaseClaimCost:        c.Economy.BaseClaimCost,
		ListingFeeRate:       c.Economy.ListingFeeRate,
		MaxTradePrice:        c.Economy.MaxTradePrice,
		ReferralBonus:        c.Economy.ReferralBonus,
		MilestoneReward:      c.Economy.MilestoneReward,
		LinkRewardPoints:     c.Economy.LinkRewardPoints,
		SweepBatchSize:       c.Jobs.SweepBatchSize,
		SweepWorkers:         c.Jobs.SweepWorkers,
	}
}

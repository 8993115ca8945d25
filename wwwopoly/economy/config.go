package economy

// Config carries the tunables for pricing, player operations and the
// reconciler jobs. The embedding application fills it from its own
// configuration.
type Config struct {
	// Regime thresholds over total credits in circulation.
	InflationThreshold int64
	DeflationThreshold int64
	// Upgrade cost multipliers applied while the matching regime holds.
	InflationRate float64
	DeflationRate float64

	// Weekly maintenance: fee per high-level link and the level that
	// makes a link count as high-level.
	MaintenanceFeeFactor int64
	MaintenanceMinLevel  int

	BaseClaimCost    int64
	ListingFeeRate   float64
	MaxTradePrice    int64
	ReferralBonus    int64
	MilestoneReward  int64
	LinkRewardPoints int64

	// Maintenance sweep sizing: how many accounts one batch holds and
	// how many workers charge a batch concurrently.
	SweepBatchSize int
	SweepWorkers   int
}

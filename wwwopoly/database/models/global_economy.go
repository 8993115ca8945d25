package models

import (
	"time"

	"github.com/uptrace/bun"
)

type EconomyRegime string

const (
	RegimeStable       EconomyRegime = "Stable"
	RegimeInflationary EconomyRegime = "Inflationary"
	RegimeDeflationary EconomyRegime = "Deflationary"
)

// GlobalEconomySingletonID is the primary key of the only global_economy row.
const GlobalEconomySingletonID = 1

// GlobalEconomy is a singleton record. Aggregate counters are maintained with
// relative updates; the per-job day/week guards make the reconciler jobs
// idempotent within their period.
type GlobalEconomy struct {
	bun.BaseModel `bun:"table:global_economy,alias:ge"`

	ID int64 `bun:"id,pk"`

	Regime        EconomyRegime `bun:"regime,notnull,default:'Stable'"`
	InflationRate float64       `bun:"inflation_rate,notnull,default:1"`
	DeflationRate float64       `bun:"deflation_rate,notnull,default:1"`

	MaintenanceFeeMultiplier int64   `bun:"maintenance_fee_multiplier,notnull,default:1"`
	TollMultiplier           float64 `bun:"toll_multiplier,notnull,default:1"`

	// Today's featured category and its toll multiplier
	DailyCategory   string  `bun:"daily_category"`
	DailyMultiplier float64 `bun:"daily_multiplier,notnull,default:1"`
	IsSurge         bool    `bun:"is_surge,notnull,default:false"`

	GlobalFund int64 `bun:"global_fund,notnull,default:0"`

	// Milestone flags, set exactly once, never cleared
	Reward100K bool `bun:"reward_100k,notnull,default:false"`
	Reward1M   bool `bun:"reward_1m,notnull,default:false"`

	// Aggregates recomputed by the reconciler
	TotalCreditsInCirculation int64   `bun:"total_credits_in_circulation,notnull,default:0"`
	TotalTrades               int64   `bun:"total_trades,notnull,default:0"`
	TotalLinksClaimed         int64   `bun:"total_links_claimed,notnull,default:0"`
	AverageTollRate           float64 `bun:"average_toll_rate,notnull,default:1"`

	LastEventTrigger time.Time `bun:"last_event_trigger"`

	// Period guards: the UTC day (YYYY-MM-DD) or ISO week (YYYY-WW) a job
	// last completed for.
	RegimeDay   string `bun:"regime_day"`
	CategoryDay string `bun:"category_day"`
	ResetDay    string `bun:"reset_day"`
	SweepWeek   string `bun:"sweep_week"`

	UpdatedAt time.Time `bun:"updated_at,notnull"`
}

func NewGlobalEconomy() *GlobalEconomy {
	return &GlobalEconomy{
		ID:                       GlobalEconomySingletonID,
		Regime:                   RegimeStable,
		InflationRate:            1,
		DeflationRate:            1,
		MaintenanceFeeMultiplier: 1,
		TollMultiplier:           1,
		DailyMultiplier:          1,
		AverageTollRate:          1,
		UpdatedAt:                time.Now().UTC(),
	}
}

package models

import (
	"time"

	"github.com/uptrace/bun"
)

// Tournament metrics rank one of the weekly account counters.
const (
	MetricSitesVisited   = "sites_visited"
	MetricTollsCollected = "tolls_collected"
	MetricTradesMade     = "trades_made"
)

type Tournament struct {
	bun.BaseModel `bun:"table:tournaments,alias:t"`

	ID        int64     `bun:"id,pk"`
	Metric    string    `bun:"metric,notnull"`
	StartDate time.Time `bun:"start_date,notnull"`
	EndDate   time.Time `bun:"end_date,notnull"`

	TopPlayers []TournamentEntry `bun:"top_players,type:jsonb"`

	RewardsDistributed bool `bun:"rewards_distributed,notnull,default:false"`

	CreatedAt time.Time `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt time.Time `bun:"updated_at,notnull"`
}

type TournamentEntry struct {
	AccountID     int64     `json:"account_id"`
	Score         int64     `json:"score"`
	FirstScoredAt time.Time `json:"first_scored_at"`
}

func (t *Tournament) ActiveAt(now time.Time) bool {
	return !t.RewardsDistributed && now.Before(t.EndDate)
}

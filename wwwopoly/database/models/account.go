package models

import (
	"time"

	"github.com/uptrace/bun"
)

type Account struct {
	bun.BaseModel `bun:"table:accounts,alias:a"`

	ID       int64  `bun:"id,pk"`
	Username string `bun:"username,notnull,unique"`

	// Currencies
	Credits int64 `bun:"credits,notnull,default:0"`
	Points  int64 `bun:"points,notnull,default:0"`

	// Cumulative counters
	SitesOwned   int64 `bun:"sites_owned,notnull,default:0"`
	SitesVisited int64 `bun:"sites_visited,notnull,default:0"`
	TradesCount  int64 `bun:"trades_count,notnull,default:0"`
	CreditsSpent int64 `bun:"credits_spent,notnull,default:0"`
	UpgradesMade int64 `bun:"upgrades_made,notnull,default:0"`
	TollsEarned  int64 `bun:"tolls_earned,notnull,default:0"`

	// Rolling windows, reset by the reconciler
	DailyStats  DailyStats  `bun:"daily_stats,type:jsonb"`
	WeeklyStats WeeklyStats `bun:"weekly_stats,type:jsonb"`

	// Unlocked achievements, append-only
	Achievements []AchievementUnlock `bun:"achievements,type:jsonb"`

	// Daily missions already rewarded today, cleared by the daily reset
	MissionsDone []string `bun:"daily_missions,type:jsonb"`

	// Seller reputation (running average over ratings)
	Reputation   float64 `bun:"reputation,notnull,default:0"`
	RatingsCount int64   `bun:"ratings_count,notnull,default:0"`

	// Referral graph
	ReferralCode string `bun:"referral_code"`
	ReferredBy   int64  `bun:"referred_by"`

	CreatedAt time.Time `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt time.Time `bun:"updated_at,notnull"`
}

type DailyStats struct {
	Visits       int64 `json:"visits"`
	TollsEarned  int64 `json:"tolls_earned"`
	LinksCreated int64 `json:"links_created"`
	TradesMade   int64 `json:"trades_made"`
}

type WeeklyStats struct {
	SitesVisited   int64 `json:"sites_visited"`
	TollsCollected int64 `json:"tolls_collected"`
	TradesMade     int64 `json:"trades_made"`
}

type AchievementUnlock struct {
	ID         string    `json:"id"`
	UnlockedAt time.Time `json:"unlocked_at"`
}

// HasAchievement reports whether the unlock list already contains id.
func (a *Account) HasAchievement(id string) bool {
	for _, unlock := range a.Achievements {
		if unlock.ID == id {
			return true
		}
	}
	return false
}

// HasMissionDone reports whether the mission was already rewarded today.
func (a *Account) HasMissionDone(id string) bool {
	for _, done := range a.MissionsDone {
		if done == id {
			return true
		}
	}
	return false
}

// Package achievements holds the fixed achievement catalogue and the
// evaluation logic that decides which achievements an account has newly
// earned. Definitions are pure predicates over account counters, so
// evaluation never touches the database.
package achievements

import (
	"fmt"
	"time"

	"github.com/wwwopoly/wwwopoly/wwwopoly/database/models"
)

// Definition describes a single achievement and the counter threshold
// that unlocks it.
type Definition struct {
	ID          string
	Title       string
	Description string
	Condition   func(*models.Account) bool
}

var catalogue = buildCatalogue()

func buildCatalogue() []Definition {
	defs := []Definition{
		{
			ID:          "first_link_claimed",
			Title:       "First Link Claimed",
			Description: "Claim your first link.",
			Condition:   func(a *models.Account) bool { return a.SitesOwned >= 1 },
		},
		{
			ID:          "ten_sites_owned",
			Title:       "Landlord",
			Description: "Own 10 sites.",
			Condition:   func(a *models.Account) bool { return a.SitesOwned >= 10 },
		},
		{
			ID:          "first_trade_made",
			Title:       "Trader",
			Description: "Complete your first trade.",
			Condition:   func(a *models.Account) bool { return a.TradesCount >= 1 },
		},
		{
			ID:          "five_sites_visited",
			Title:       "Explorer",
			Description: "Visit 5 different sites.",
			Condition:   func(a *models.Account) bool { return a.SitesVisited >= 5 },
		},
		{
			ID:          "first_upgrade",
			Title:       "Builder",
			Description: "Upgrade a site for the first time.",
			Condition:   func(a *models.Account) bool { return a.UpgradesMade >= 1 },
		},
	}

	sitesOwned := func(a *models.Account) int64 { return a.SitesOwned }
	tradesMade := func(a *models.Account) int64 { return a.TradesCount }
	upgradesMade := func(a *models.Account) int64 { return a.UpgradesMade }

	// Sites owned: every 100 up to 1000, then every 500 up to 2500.
	defs = append(defs, tierSeries("sites_owned", "Property Owner", "Own %d sites.", 100, 1000, 100, sitesOwned)...)
	defs = append(defs, tierSeries("sites_owned", "Real Estate Mogul", "Own %d sites.", 1500, 2500, 500, sitesOwned)...)

	// Trades made: same shape as sites owned.
	defs = append(defs, tierSeries("trades_made", "Trader", "Complete %d trades.", 100, 1000, 100, tradesMade)...)
	defs = append(defs, tierSeries("trades_made", "Master Trader", "Complete %d trades.", 1500, 2500, 500, tradesMade)...)

	// Credits spent milestones.
	for _, tier := range []struct {
		threshold int64
		title     string
		desc      string
	}{
		{10_000, "Spendthrift", "Spend 10,000 credits."},
		{100_000, "Big Spender", "Spend 100,000 credits."},
		{1_000_000, "Business Spender", "Spend 1 million credits."},
		{1_000_000_000, "Fortune 100", "Spend 1 billion credits."},
	} {
		threshold := tier.threshold
		defs = append(defs, Definition{
			ID:          fmt.Sprintf("credits_spent_%d", threshold),
			Title:       tier.title,
			Description: tier.desc,
			Condition:   func(a *models.Account) bool { return a.CreditsSpent >= threshold },
		})
	}

	// Upgrade milestones: every 100 up to 1000.
	defs = append(defs, tierSeries("upgrades", "Builder Level", "Perform %d upgrades.", 100, 1000, 100, upgradesMade)...)

	return defs
}

func tierSeries(idPrefix, titlePrefix, descFormat string, from, to, step int64, counter func(*models.Account) int64) []Definition {
	var defs []Definition
	for threshold := from; threshold <= to; threshold += step {
		threshold := threshold
		defs = append(defs, Definition{
			ID:          fmt.Sprintf("%s_%d", idPrefix, threshold),
			Title:       fmt.Sprintf("%s %d", titlePrefix, threshold),
			Description: fmt.Sprintf(descFormat, threshold),
			Condition:   func(a *models.Account) bool { return counter(a) >= threshold },
		})
	}
	return defs
}

// All returns the full catalogue in evaluation order.
func All() []Definition {
	return catalogue
}

// Lookup returns the definition for id, if the catalogue contains it.
func Lookup(id string) (Definition, bool) {
	for _, def := range catalogue {
		if def.ID == id {
			return def, true
		}
	}
	return Definition{}, false
}

// Evaluate returns the unlocks the account has newly earned: every
// catalogue entry whose condition now holds and which the account does
// not already have. Already-unlocked achievements are never returned
// again, so callers can append the result directly.
func Evaluate(account *models.Account, now time.Time) []models.AchievementUnlock {
	var unlocked []models.AchievementUnlock
	for _, def := range catalogue {
		if account.HasAchievement(def.ID) {
			continue
		}
		if !def.Condition(account) {
			continue
		}
		unlocked = append(unlocked, models.AchievementUnlock{
			ID:         def.ID,
			UnlockedAt: now,
		})
	}
	return unlocked
}

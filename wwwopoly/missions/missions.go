// Package missions holds the daily mission catalogue. Missions are pure
// predicates over an account's daily counters; each one pays its reward
// once per day and the daily reset opens them all again.
package missions

import "github.com/wwwopoly/wwwopoly/wwwopoly/database/models"

// Reward is what a completed mission pays out.
type Reward struct {
	Credits int64
	Points  int64
}

// Definition describes a single daily mission: the counter it watches,
// the target the counter has to reach and the reward paid on completion.
type Definition struct {
	ID          string
	Title       string
	Description string
	Target      int64
	Reward      Reward
	Progress    func(*models.Account) int64
}

var catalogue = []Definition{
	{
		ID:          "create_5_links",
		Title:       "Site Builder",
		Description: "Create 5 new links today.",
		Target:      5,
		Reward:      Reward{Points: 5},
		Progress:    func(a *models.Account) int64 { return a.DailyStats.LinksCreated },
	},
	{
		ID:          "visit_10_links",
		Title:       "Daily Explorer",
		Description: "Visit 10 links today.",
		Target:      10,
		Reward:      Reward{Credits: 5},
		Progress:    func(a *models.Account) int64 { return a.DailyStats.Visits },
	},
	{
		ID:          "trade_a_link",
		Title:       "Deal of the Day",
		Description: "Complete a trade today.",
		Target:      1,
		Reward:      Reward{Credits: 5},
		Progress:    func(a *models.Account) int64 { return a.DailyStats.TradesMade },
	},
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

// Evaluate returns the missions the account has newly completed: every
// catalogue entry whose counter reached its target and which was not
// rewarded today yet.
func Evaluate(account *models.Account) []Definition {
	var completed []Definition
	for _, def := range catalogue {
		if account.HasMissionDone(def.ID) {
			continue
		}
		if def.Progress(account) < def.Target {
			continue
		}
		completed = append(completed, def)
	}
	return completed
}

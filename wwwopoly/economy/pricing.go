package economy

import (
	"context"
	"fmt"
	"math"
	"time"

	lru "github.com/hashicorp/golang-lru"

	"github.com/wwwopoly/wwwopoly/wwwopoly/database/models"
	"github.com/wwwopoly/wwwopoly/wwwopoly/database/repositories"
)

// Claim cost scaling by how many links have ever been claimed.
const (
	claimScarcityThreshold  = 5000
	claimAbundanceThreshold = 1000
	claimScarcityFactor     = 1.5
	claimAbundanceFactor    = 0.75
)

// ClaimCost prices claiming an unowned link given the global count of
// links already claimed. Scarce boards get more expensive, young boards
// cheaper. The result is always a whole number of points, rounded up.
func ClaimCost(base, totalClaimed int64) int64 {
	cost := float64(base)
	switch {
	case totalClaimed > claimScarcityThreshold:
		cost *= claimScarcityFactor
	case totalClaimed < claimAbundanceThreshold:
		cost *= claimAbundanceFactor
	}
	return int64(math.Ceil(cost))
}

// UpgradeCost prices raising a link from its current level by one. The
// regime multiplier applies on top of the level cost.
func UpgradeCost(level int, state *models.GlobalEconomy) int64 {
	cost := float64(level) * 2
	switch state.Regime {
	case models.RegimeInflationary:
		cost *= state.InflationRate
	case models.RegimeDeflationary:
		cost *= state.DeflationRate
	}
	return int64(math.Ceil(cost))
}

// TollForLevel is the base toll a link charges at the given level.
func TollForLevel(level int) int64 {
	return int64(level)
}

// EffectiveToll is the toll a visit actually pays: the link's base toll
// scaled by today's featured-category multiplier and every active
// industry event touching the link's category. Rounding up happens once,
// after all multipliers.
func EffectiveToll(link *models.Link, state *models.GlobalEconomy, events []*models.IndustryEvent) int64 {
	toll := float64(link.Toll) * state.TollMultiplier
	if state.DailyCategory != "" && state.DailyCategory == link.Category {
		toll *= state.DailyMultiplier
	}
	for _, event := range events {
		if event.Category == link.Category {
			toll *= event.EffectMultiplier
		}
	}
	return int64(math.Ceil(toll))
}

// Cache keys for the hot pricing reads.
const (
	cacheKeyState  = "economy_state"
	cacheKeyEvents = "active_events"
)

type cachedEntry struct {
	value   any
	expires time.Time
}

// Pricing answers price questions for operations, keeping the economy
// singleton and the active-event list in a small LRU so every visit does
// not re-read two extra rowsets.
type Pricing struct {
	economy repositories.EconomyRepository
	events  repositories.EventRepository
	cache   *lru.Cache
	ttl     time.Duration
}

func NewPricing(economy repositories.EconomyRepository, events repositories.EventRepository) (*Pricing, error) {
	cache, err := lru.New(8)
	if err != nil {
		return nil, fmt.Errorf("failed to create pricing cache: %w", err)
	}
	return &Pricing{
		economy: economy,
		events:  events,
		cache:   cache,
		ttl:     30 * time.Second,
	}, nil
}

// State returns the economy singleton, served from cache while fresh.
func (p *Pricing) State(ctx context.Context) (*models.GlobalEconomy, error) {
	if state, ok := p.cached(cacheKeyState); ok {
		return state.(*models.GlobalEconomy), nil
	}
	state, err := p.economy.Get(ctx)
	if err != nil {
		return nil, err
	}
	p.store(cacheKeyState, state)
	return state, nil
}

// ActiveEvents returns the currently active industry events, served from
// cache while fresh.
func (p *Pricing) ActiveEvents(ctx context.Context) ([]*models.IndustryEvent, error) {
	if events, ok := p.cached(cacheKeyEvents); ok {
		return events.([]*models.IndustryEvent), nil
	}
	events, err := p.events.GetActive(ctx)
	if err != nil {
		return nil, err
	}
	p.store(cacheKeyEvents, events)
	return events, nil
}

// VisitToll resolves the effective toll for visiting link right now.
func (p *Pricing) VisitToll(ctx context.Context, link *models.Link) (int64, error) {
	state, err := p.State(ctx)
	if err != nil {
		return 0, err
	}
	events, err := p.ActiveEvents(ctx)
	if err != nil {
		return 0, err
	}
	return EffectiveToll(link, state, events), nil
}

// Invalidate drops the cached snapshots. The reconciler calls this after
// rewriting regime or category state.
func (p *Pricing) Invalidate() {
	p.cache.Remove(cacheKeyState)
	p.cache.Remove(cacheKeyEvents)
}

func (p *Pricing) cached(key string) (any, bool) {
	raw, ok := p.cache.Get(key)
	if !ok {
		return nil, false
	}
	entry := raw.(cachedEntry)
	if time.Now().After(entry.expires) {
		p.cache.Remove(key)
		return nil, false
	}
	return entry.value, true
}

func (p *Pricing) store(key string, value any) {
	p.cache.Add(key, cachedEntry{value: value, expires: time.Now().Add(p.ttl)})
}

package economy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/wwwopoly/wwwopoly/wwwopoly/database/models"
	"github.com/wwwopoly/wwwopoly/wwwopoly/database/repositories"
	"github.com/wwwopoly/wwwopoly/wwwopoly/notifier"
)

// Categories the daily draw and random industry events pick from.
var linkCategories = []string{
	"tech", "news", "shopping", "social", "entertainment",
	"finance", "education", "travel", "health", "gaming",
}

// Featured-category multiplier bounds: surges raise tolls, reductions
// lower them.
const (
	surgeMin     = 1.25
	surgeMax     = 2.0
	reductionMin = 0.25
	reductionMax = 1.0
)

// Industry event multipliers and lifetime.
const (
	eventBoostMultiplier   = 1.25
	eventPenaltyMultiplier = 0.85
	eventDuration          = 24 * time.Hour
)

// Reconciler runs the scheduled jobs that keep the shared economy state
// coherent: regime recomputation, the daily category draw, random
// industry events, counter resets, event expiry and the weekly
// maintenance sweep. Every periodic job is guarded by a period column
// on the economy singleton: the guard is checked up front and claimed
// only after the job's work succeeds, so a repeated run within the
// same period is a no-op while a failed run is retried by the next
// scheduled one.
type Reconciler struct {
	cfg      Config
	accounts repositories.AccountRepository
	links    repositories.LinkRepository
	economy  repositories.EconomyRepository
	events   repositories.EventRepository
	ledger   repositories.LedgerRepository
	pricing  *Pricing
	notifier notifier.Notifier
	log      *slog.Logger

	rand *rand.Rand
}

func NewReconciler(
	cfg Config,
	accounts repositories.AccountRepository,
	links repositories.LinkRepository,
	economy repositories.EconomyRepository,
	events repositories.EventRepository,
	ledger repositories.LedgerRepository,
	pricing *Pricing,
	n notifier.Notifier,
	log *slog.Logger,
) *Reconciler {
	return &Reconciler{
		cfg:      cfg,
		accounts: accounts,
		links:    links,
		economy:  economy,
		events:   events,
		ledger:   ledger,
		pricing:  pricing,
		notifier: n,
		log:      log,
		rand:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// DayKey is the period key for daily jobs.
func DayKey(now time.Time) string {
	return now.UTC().Format("2006-01-02")
}

// WeekKey is the period key for weekly jobs (ISO week).
func WeekKey(now time.Time) string {
	year, week := now.UTC().ISOWeek()
	return fmt.Sprintf("%d-%02d", year, week)
}

// periodDone reports whether the guard already carries the period key.
func periodDone(state *models.GlobalEconomy, guard repositories.PeriodGuard, key string) bool {
	switch guard {
	case repositories.GuardRegimeDay:
		return state.RegimeDay == key
	case repositories.GuardCategoryDay:
		return state.CategoryDay == key
	case repositories.GuardResetDay:
		return state.ResetDay == key
	case repositories.GuardSweepWeek:
		return state.SweepWeek == key
	}
	return false
}

// RunDaily executes every daily job once per UTC day. Safe to call as
// often as the scheduler likes.
func (r *Reconciler) RunDaily(ctx context.Context, now time.Time) error {
	if err := r.recomputeRegime(ctx, now); err != nil {
		return err
	}
	if err := r.drawDailyCategory(ctx, now); err != nil {
		return err
	}
	if err := r.resetCounters(ctx, now); err != nil {
		return err
	}
	return nil
}

// RunHourly expires industry events whose window has closed.
func (r *Reconciler) RunHourly(ctx context.Context, now time.Time) error {
	expired, err := r.events.DeactivateExpired(ctx, now)
	if err != nil {
		return fmt.Errorf("failed to expire industry events: %w", err)
	}
	if expired > 0 {
		r.pricing.Invalidate()
		r.log.InfoContext(ctx, "industry events expired",
			slog.String("type", "job"),
			slog.Int64("count", expired),
		)
	}
	return nil
}

// recomputeRegime aggregates circulation and flips the economy regime
// against the configured thresholds. Runs once per day.
func (r *Reconciler) recomputeRegime(ctx context.Context, now time.Time) error {
	state, err := r.economy.Get(ctx)
	if err != nil {
		return err
	}
	if periodDone(state, repositories.GuardRegimeDay, DayKey(now)) {
		return nil
	}

	totalCredits, err := r.accounts.TotalCredits(ctx)
	if err != nil {
		return fmt.Errorf("failed to aggregate circulation: %w", err)
	}
	averageToll, err := r.links.AverageToll(ctx)
	if err != nil {
		return fmt.Errorf("failed to aggregate tolls: %w", err)
	}

	regime := models.RegimeStable
	inflationRate, deflationRate := 1.0, 1.0
	switch {
	case totalCredits > r.cfg.InflationThreshold:
		regime = models.RegimeInflationary
		inflationRate = r.cfg.InflationRate
	case totalCredits < r.cfg.DeflationThreshold:
		regime = models.RegimeDeflationary
		deflationRate = r.cfg.DeflationRate
	}

	if err := r.economy.SetRegime(ctx, regime, inflationRate, deflationRate, totalCredits, averageToll); err != nil {
		return err
	}
	if _, err := r.economy.ClaimPeriod(ctx, repositories.GuardRegimeDay, DayKey(now)); err != nil {
		return err
	}
	r.pricing.Invalidate()

	r.log.InfoContext(ctx, "economy regime recomputed",
		slog.String("type", "job"),
		slog.String("regime", string(regime)),
		slog.Int64("total_credits", totalCredits),
		slog.Float64("average_toll", averageToll),
	)
	return nil
}

// drawDailyCategory features a random category for the day with either a
// traffic surge or a reduction, and spawns a random industry event.
// Runs once per day.
func (r *Reconciler) drawDailyCategory(ctx context.Context, now time.Time) error {
	state, err := r.economy.Get(ctx)
	if err != nil {
		return err
	}
	if periodDone(state, repositories.GuardCategoryDay, DayKey(now)) {
		return nil
	}

	category := linkCategories[r.rand.Intn(len(linkCategories))]
	isSurge := r.rand.Intn(2) == 0
	var multiplier float64
	if isSurge {
		multiplier = surgeMin + r.rand.Float64()*(surgeMax-surgeMin)
	} else {
		multiplier = reductionMin + r.rand.Float64()*(reductionMax-reductionMin)
	}

	if err := r.economy.SetDailyCategory(ctx, category, multiplier, isSurge); err != nil {
		return err
	}

	kind := "reduction"
	if isSurge {
		kind = "surge"
	}
	r.log.InfoContext(ctx, "daily category drawn",
		slog.String("type", "job"),
		slog.String("category", category),
		slog.String("kind", kind),
		slog.Float64("multiplier", multiplier),
	)
	r.notifier.Broadcast(ctx, "daily_category",
		fmt.Sprintf("Today's featured category is %s (traffic %s).", category, kind))

	if err := r.spawnIndustryEvent(ctx, now); err != nil {
		return err
	}
	if _, err := r.economy.ClaimPeriod(ctx, repositories.GuardCategoryDay, DayKey(now)); err != nil {
		return err
	}

	r.pricing.Invalidate()
	return nil
}

// spawnIndustryEvent creates a random 24h boost or penalty on a random
// category.
func (r *Reconciler) spawnIndustryEvent(ctx context.Context, now time.Time) error {
	category := linkCategories[r.rand.Intn(len(linkCategories))]
	effect := models.EffectBoost
	multiplier := eventBoostMultiplier
	description := fmt.Sprintf("A wave of interest boosts %s sites!", category)
	if r.rand.Intn(2) == 1 {
		effect = models.EffectPenalty
		multiplier = eventPenaltyMultiplier
		description = fmt.Sprintf("A downturn hits %s sites.", category)
	}

	event := &models.IndustryEvent{
		Category:         category,
		EffectType:       effect,
		EffectMultiplier: multiplier,
		StartDate:        now,
		EndDate:          now.Add(eventDuration),
		IsActive:         true,
		Description:      description,
	}
	if err := r.events.Create(ctx, event); err != nil {
		return fmt.Errorf("failed to create industry event: %w", err)
	}
	if err := r.economy.SetLastEventTrigger(ctx, now); err != nil {
		return err
	}

	r.log.InfoContext(ctx, "industry event triggered",
		slog.String("type", "job"),
		slog.String("category", category),
		slog.String("effect", string(effect)),
	)
	r.notifier.Broadcast(ctx, "industry_event", description)
	return nil
}

// resetCounters zeroes the daily stats and link visit counters once per
// day, and the weekly stats on Mondays.
func (r *Reconciler) resetCounters(ctx context.Context, now time.Time) error {
	state, err := r.economy.Get(ctx)
	if err != nil {
		return err
	}
	if periodDone(state, repositories.GuardResetDay, DayKey(now)) {
		return nil
	}

	if err := r.accounts.ResetDailyStats(ctx); err != nil {
		return err
	}
	if err := r.links.ResetDailyVisits(ctx); err != nil {
		return err
	}
	if now.UTC().Weekday() == time.Monday {
		if err := r.accounts.ResetWeeklyStats(ctx); err != nil {
			return err
		}
	}
	if _, err := r.economy.ClaimPeriod(ctx, repositories.GuardResetDay, DayKey(now)); err != nil {
		return err
	}

	r.log.InfoContext(ctx, "counters reset",
		slog.String("type", "job"),
		slog.Bool("weekly", now.UTC().Weekday() == time.Monday),
	)
	return nil
}

// RunMaintenanceSweep charges every account its weekly upkeep for
// high-level links. Accounts that cannot cover the fee are skipped and
// notified; the fee is never partially charged and a skipped account
// keeps its links. Runs once per ISO week. The week guard is claimed
// only after the sweep completes, so a run that fails before charging
// anyone is retried by the next scheduled run.
func (r *Reconciler) RunMaintenanceSweep(ctx context.Context, now time.Time) error {
	state, err := r.economy.Get(ctx)
	if err != nil {
		return err
	}
	if periodDone(state, repositories.GuardSweepWeek, WeekKey(now)) {
		return nil
	}

	accounts, err := r.accounts.GetAll(ctx)
	if err != nil {
		return fmt.Errorf("failed to list accounts for sweep: %w", err)
	}

	workers := int64(r.cfg.SweepWorkers)
	if workers < 1 {
		workers = 1
	}
	batch := r.cfg.SweepBatchSize
	if batch < 1 {
		batch = len(accounts)
	}

	var charged, skipped int64
	results := make([]int, len(accounts)) // 0 none, 1 charged, 2 skipped

	for start := 0; start < len(accounts); start += batch {
		end := start + batch
		if end > len(accounts) {
			end = len(accounts)
		}

		sem := semaphore.NewWeighted(workers)
		g, gctx := errgroup.WithContext(ctx)
		for i, account := range accounts[start:end] {
			if err := sem.Acquire(gctx, 1); err != nil {
				break
			}
			i, account := start+i, account
			g.Go(func() error {
				defer sem.Release(1)
				outcome, err := r.sweepAccount(gctx, account, state)
				if err != nil {
					r.log.ErrorContext(gctx, "maintenance sweep account failed",
						slog.String("type", "job"),
						slog.Int64("account_id", account.ID),
						slog.Any("error", err),
					)
					return nil
				}
				results[i] = outcome
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}
	}

	for _, outcome := range results {
		switch outcome {
		case 1:
			charged++
		case 2:
			skipped++
		}
	}

	if _, err := r.economy.ClaimPeriod(ctx, repositories.GuardSweepWeek, WeekKey(now)); err != nil {
		return err
	}

	r.log.InfoContext(ctx, "maintenance sweep finished",
		slog.String("type", "job"),
		slog.Int64("charged", charged),
		slog.Int64("skipped", skipped),
	)
	return nil
}

// sweepAccount charges one account. Returns 0 when nothing was owed,
// 1 when the fee was charged, 2 when the account could not afford it.
func (r *Reconciler) sweepAccount(ctx context.Context, account *models.Account, state *models.GlobalEconomy) (int, error) {
	count, err := r.links.CountHighLevelByOwner(ctx, account.ID, r.cfg.MaintenanceMinLevel)
	if err != nil {
		return 0, err
	}
	if count == 0 {
		return 0, nil
	}

	fee := int64(count) * state.MaintenanceFeeMultiplier * r.cfg.MaintenanceFeeFactor
	if fee <= 0 {
		return 0, nil
	}

	err = r.ledger.ApplyMaintenanceFee(ctx, account.ID, fee)
	if errors.Is(err, repositories.ErrInsufficientFunds) {
		r.notifier.Notify(ctx, account.ID, "maintenance_unpaid",
			fmt.Sprintf("You could not cover this week's %d credit maintenance fee.", fee))
		return 2, nil
	}
	if err != nil {
		return 0, err
	}

	r.notifier.Notify(ctx, account.ID, "maintenance_charged",
		fmt.Sprintf("Weekly maintenance: %d credits for %d high-level links.", fee, count))
	return 1, nil
}

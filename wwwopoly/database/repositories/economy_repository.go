package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"github.com/wwwopoly/wwwopoly/wwwopoly/database/models"
)

// PeriodGuard names a per-job guard column on the global economy row.
type PeriodGuard string

const (
	GuardRegimeDay   PeriodGuard = "regime_day"
	GuardCategoryDay PeriodGuard = "category_day"
	GuardResetDay    PeriodGuard = "reset_day"
	GuardSweepWeek   PeriodGuard = "sweep_week"
)

type EconomyRepository interface {
	Get(ctx context.Context) (*models.GlobalEconomy, error)
	// ClaimPeriod marks the guard column with the given period key and
	// reports whether this caller won the claim. A job that loses the
	// claim already ran for the period and must no-op.
	ClaimPeriod(ctx context.Context, guard PeriodGuard, period string) (bool, error)
	SetRegime(ctx context.Context, regime models.EconomyRegime, inflationRate, deflationRate float64, totalCredits int64, averageToll float64) error
	SetDailyCategory(ctx context.Context, category string, multiplier float64, isSurge bool) error
	SetLastEventTrigger(ctx context.Context, at time.Time) error
}

type economyRepository struct {
	db *bun.DB
}

func NewEconomyRepository(db *bun.DB) EconomyRepository {
	return &economyRepository{db: db}
}

func (r *economyRepository) Get(ctx context.Context) (*models.GlobalEconomy, error) {
	state := new(models.GlobalEconomy)
	err := r.db.NewSelect().
		Model(state).
		Where("id = ?", models.GlobalEconomySingletonID).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get global economy: %w", err)
	}
	return state, nil
}

func (r *economyRepository) ClaimPeriod(ctx context.Context, guard PeriodGuard, period string) (bool, error) {
	column := string(guard)
	res, err := r.db.NewUpdate().
		Model((*models.GlobalEconomy)(nil)).
		Set(column+" = ?", period).
		Set("updated_at = ?", time.Now()).
		Where("id = ?", models.GlobalEconomySingletonID).
		Where(column+" IS DISTINCT FROM ?", period).
		Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to claim period %s=%s: %w", column, period, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return affected == 1, nil
}

func (r *economyRepository) SetRegime(ctx context.Context, regime models.EconomyRegime, inflationRate, deflationRate float64, totalCredits int64, averageToll float64) error {
	_, err := r.db.NewUpdate().
		Model((*models.GlobalEconomy)(nil)).
		Set("regime = ?", regime).
		Set("inflation_rate = ?", inflationRate).
		Set("deflation_rate = ?", deflationRate).
		Set("total_credits_in_circulation = ?", totalCredits).
		Set("average_toll_rate = ?", averageToll).
		Set("updated_at = ?", time.Now()).
		Where("id = ?", models.GlobalEconomySingletonID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to set regime: %w", err)
	}
	return nil
}

func (r *economyRepository) SetDailyCategory(ctx context.Context, category string, multiplier float64, isSurge bool) error {
	_, err := r.db.NewUpdate().
		Model((*models.GlobalEconomy)(nil)).
		Set("daily_category = ?", category).
		Set("daily_multiplier = ?", multiplier).
		Set("is_surge = ?", isSurge).
		Set("updated_at = ?", time.Now()).
		Where("id = ?", models.GlobalEconomySingletonID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to set daily category: %w", err)
	}
	return nil
}

func (r *economyRepository) SetLastEventTrigger(ctx context.Context, at time.Time) error {
	_, err := r.db.NewUpdate().
		Model((*models.GlobalEconomy)(nil)).
		Set("last_event_trigger = ?", at).
		Set("updated_at = ?", time.Now()).
		Where("id = ?", models.GlobalEconomySingletonID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to set last event trigger: %w", err)
	}
	return nil
}

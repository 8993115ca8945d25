package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/uptrace/bun"

	"github.com/wwwopoly/wwwopoly/wwwopoly/database/models"
)

// LeaderboardMetrics are the account columns the leaderboard may rank by.
var LeaderboardMetrics = map[string]string{
	"credits":       "credits",
	"points":        "points",
	"sites_owned":   "sites_owned",
	"sites_visited": "sites_visited",
	"trades_count":  "trades_count",
	"credits_spent": "credits_spent",
	"tolls_earned":  "tolls_earned",
}

type AccountRepository interface {
	Create(ctx context.Context, account *models.Account) error
	GetByID(ctx context.Context, id int64) (*models.Account, error)
	GetByUsername(ctx context.Context, username string) (*models.Account, error)
	GetByReferralCode(ctx context.Context, code string) (*models.Account, error)
	GetAll(ctx context.Context) ([]*models.Account, error)
	Update(ctx context.Context, account *models.Account) error
	TopByMetric(ctx context.Context, metric string, limit int) ([]*models.Account, error)
	GetReferrals(ctx context.Context, referrerID int64) ([]*models.Account, error)

	AdjustCredits(ctx context.Context, id int64, delta int64) error
	AppendAchievements(ctx context.Context, id int64, unlocks []models.AchievementUnlock) error
	// CompleteMission pays a daily mission reward exactly once per day:
	// it records the mission id and credits the reward in one conditional
	// update, and reports whether this call was the one that paid.
	CompleteMission(ctx context.Context, id int64, missionID string, credits, points int64) (bool, error)
	EnsureReferralCode(ctx context.Context, id int64) (string, error)
	GrantCreditsToAll(ctx context.Context, amount int64) (int64, error)
	ResetDailyStats(ctx context.Context) error
	ResetWeeklyStats(ctx context.Context) error

	TotalCredits(ctx context.Context) (int64, error)
}

type accountRepository struct {
	db *bun.DB
}

func NewAccountRepository(db *bun.DB) AccountRepository {
	return &accountRepository{db: db}
}

func (r *accountRepository) Create(ctx context.Context, account *models.Account) error {
	if account.ID == 0 {
		account.ID = int64(snowflake.New(time.Now()))
	}
	account.CreatedAt = time.Now()
	account.UpdatedAt = time.Now()
	_, err := r.db.NewInsert().Model(account).Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to create account: %w", err)
	}
	return nil
}

func (r *accountRepository) GetByID(ctx context.Context, id int64) (*models.Account, error) {
	account := new(models.Account)
	err := r.db.NewSelect().
		Model(account).
		Where("id = ?", id).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return account, nil
}

func (r *accountRepository) GetByUsername(ctx context.Context, username string) (*models.Account, error) {
	account := new(models.Account)
	err := r.db.NewSelect().
		Model(account).
		Where("username = ?", username).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get account by username: %w", err)
	}
	return account, nil
}

func (r *accountRepository) GetByReferralCode(ctx context.Context, code string) (*models.Account, error) {
	account := new(models.Account)
	err := r.db.NewSelect().
		Model(account).
		Where("referral_code = ?", code).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get account by referral code: %w", err)
	}
	return account, nil
}

func (r *accountRepository) GetAll(ctx context.Context) ([]*models.Account, error) {
	var accounts []*models.Account
	err := r.db.NewSelect().
		Model(&accounts).
		Order("id ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get accounts: %w", err)
	}
	return accounts, nil
}

func (r *accountRepository) Update(ctx context.Context, account *models.Account) error {
	account.UpdatedAt = time.Now()
	_, err := r.db.NewUpdate().
		Model(account).
		WherePK().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to update account: %w", err)
	}
	return nil
}

func (r *accountRepository) TopByMetric(ctx context.Context, metric string, limit int) ([]*models.Account, error) {
	column, ok := LeaderboardMetrics[metric]
	if !ok {
		return nil, ErrInvalidRange
	}

	var accounts []*models.Account
	err := r.db.NewSelect().
		Model(&accounts).
		OrderExpr("? DESC", bun.Ident(column)).
		Limit(limit).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get leaderboard for %s: %w", metric, err)
	}
	return accounts, nil
}

func (r *accountRepository) GetReferrals(ctx context.Context, referrerID int64) ([]*models.Account, error) {
	var accounts []*models.Account
	err := r.db.NewSelect().
		Model(&accounts).
		Where("referred_by = ?", referrerID).
		Order("created_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get referrals: %w", err)
	}
	return accounts, nil
}

// AdjustCredits applies a relative delta. Negative deltas are guarded so the
// balance can never go below zero.
func (r *accountRepository) AdjustCredits(ctx context.Context, id int64, delta int64) error {
	q := r.db.NewUpdate().
		Model((*models.Account)(nil)).
		Set("credits = credits + ?", delta).
		Set("updated_at = ?", time.Now()).
		Where("id = ?", id)
	if delta < 0 {
		q = q.Where("credits >= ?", -delta)
	}

	res, err := q.Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to adjust credits: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if affected == 0 {
		if delta < 0 {
			return ErrInsufficientFunds
		}
		return ErrNotFound
	}
	return nil
}

// AppendAchievements adds the whole batch of unlocks in a single update.
func (r *accountRepository) AppendAchievements(ctx context.Context, id int64, unlocks []models.AchievementUnlock) error {
	if len(unlocks) == 0 {
		return nil
	}

	res, err := r.db.NewUpdate().
		Model((*models.Account)(nil)).
		Set("achievements = COALESCE(achievements, '[]'::jsonb) || ?", unlocks).
		Set("updated_at = ?", time.Now()).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to append achievements: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// CompleteMission is the mission-reward CAS: the jsonb containment check
// keeps the append and the payout atomic, so two concurrent evaluations
// of the same mission pay at most once.
func (r *accountRepository) CompleteMission(ctx context.Context, id int64, missionID string, credits, points int64) (bool, error) {
	res, err := r.db.NewUpdate().
		Model((*models.Account)(nil)).
		Set("daily_missions = COALESCE(daily_missions, '[]'::jsonb) || ?", []string{missionID}).
		Set("credits = credits + ?", credits).
		Set("points = points + ?", points).
		Set("updated_at = ?", time.Now()).
		Where("id = ?", id).
		Where("NOT (COALESCE(daily_missions, '[]'::jsonb) @> ?)", []string{missionID}).
		Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to complete mission %s: %w", missionID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return affected == 1, nil
}

// EnsureReferralCode generates and stores a referral code when the account
// does not have one yet, and returns the current code either way.
func (r *accountRepository) EnsureReferralCode(ctx context.Context, id int64) (string, error) {
	account, err := r.GetByID(ctx, id)
	if err != nil {
		return "", err
	}
	if account.ReferralCode != "" {
		return account.ReferralCode, nil
	}

	code := strings.ToUpper(fmt.Sprintf("%s-%s", account.Username, snowflake.New(time.Now())))
	_, err = r.db.NewUpdate().
		Model((*models.Account)(nil)).
		Set("referral_code = ?", code).
		Set("updated_at = ?", time.Now()).
		Where("id = ? AND (referral_code IS NULL OR referral_code = '')", id).
		Exec(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to store referral code: %w", err)
	}

	// Re-read in case a concurrent call won the write.
	account, err = r.GetByID(ctx, id)
	if err != nil {
		return "", err
	}
	return account.ReferralCode, nil
}

func (r *accountRepository) GrantCreditsToAll(ctx context.Context, amount int64) (int64, error) {
	res, err := r.db.NewUpdate().
		Model((*models.Account)(nil)).
		Set("credits = credits + ?", amount).
		Set("updated_at = ?", time.Now()).
		Where("TRUE").
		Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to grant credits: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read rows affected: %w", err)
	}

	slog.Info("Granted credits to all accounts",
		slog.String("type", "db"),
		slog.Int64("amount", amount),
		slog.Int64("accounts", affected))
	return affected, nil
}

func (r *accountRepository) ResetDailyStats(ctx context.Context) error {
	_, err := r.db.NewUpdate().
		Model((*models.Account)(nil)).
		Set("daily_stats = ?", models.DailyStats{}).
		Set("daily_missions = '[]'::jsonb").
		Set("updated_at = ?", time.Now()).
		Where("TRUE").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to reset daily stats: %w", err)
	}
	return nil
}

func (r *accountRepository) ResetWeeklyStats(ctx context.Context) error {
	_, err := r.db.NewUpdate().
		Model((*models.Account)(nil)).
		Set("weekly_stats = ?", models.WeeklyStats{}).
		Set("updated_at = ?", time.Now()).
		Where("TRUE").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to reset weekly stats: %w", err)
	}
	return nil
}

func (r *accountRepository) TotalCredits(ctx context.Context) (int64, error) {
	var total int64
	err := r.db.NewSelect().
		Model((*models.Account)(nil)).
		ColumnExpr("COALESCE(SUM(credits), 0)").
		Scan(ctx, &total)
	if err != nil {
		return 0, fmt.Errorf("failed to sum credits: %w", err)
	}
	return total, nil
}

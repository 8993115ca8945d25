package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/uptrace/bun"

	"github.com/wwwopoly/wwwopoly/wwwopoly/database/models"
)

// TournamentPayout pairs a winner with the credits it is owed.
type TournamentPayout struct {
	AccountID int64
	Amount    int64
}

type TournamentRepository interface {
	Create(ctx context.Context, tournament *models.Tournament) error
	GetCurrent(ctx context.Context, now time.Time) (*models.Tournament, error)
	GetEndedUnrewarded(ctx context.Context, now time.Time) (*models.Tournament, error)
	UpsertScore(ctx context.Context, tournamentID, accountID int64, now time.Time) error
	// DistributeRewards flips rewards_distributed and credits the winners
	// in one transaction; a tournament already rewarded returns
	// ErrAlreadyProcessed with no payout.
	DistributeRewards(ctx context.Context, tournamentID int64, payouts []TournamentPayout) error
}

type tournamentRepository struct {
	db *bun.DB
}

func NewTournamentRepository(db *bun.DB) TournamentRepository {
	return &tournamentRepository{db: db}
}

func (r *tournamentRepository) Create(ctx context.Context, tournament *models.Tournament) error {
	if tournament.ID == 0 {
		tournament.ID = int64(snowflake.New(time.Now()))
	}
	tournament.CreatedAt = time.Now()
	tournament.UpdatedAt = time.Now()
	_, err := r.db.NewInsert().Model(tournament).Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to create tournament: %w", err)
	}
	return nil
}

func (r *tournamentRepository) GetCurrent(ctx context.Context, now time.Time) (*models.Tournament, error) {
	tournament := new(models.Tournament)
	err := r.db.NewSelect().
		Model(tournament).
		Where("end_date >= ?", now).
		Where("rewards_distributed = FALSE").
		Order("end_date ASC").
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get current tournament: %w", err)
	}
	return tournament, nil
}

func (r *tournamentRepository) GetEndedUnrewarded(ctx context.Context, now time.Time) (*models.Tournament, error) {
	tournament := new(models.Tournament)
	err := r.db.NewSelect().
		Model(tournament).
		Where("end_date <= ?", now).
		Where("rewards_distributed = FALSE").
		Order("end_date ASC").
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get ended tournament: %w", err)
	}
	return tournament, nil
}

// UpsertScore increments the account's entry in top_players, inserting it on
// first score. The row lock serializes concurrent scorers.
func (r *tournamentRepository) UpsertScore(ctx context.Context, tournamentID, accountID int64, now time.Time) error {
	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	tournament := new(models.Tournament)
	err = tx.NewSelect().
		Model(tournament).
		Where("id = ?", tournamentID).
		For("UPDATE").
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to lock tournament: %w", err)
	}

	if !tournament.ActiveAt(now) {
		return ErrAlreadyProcessed
	}

	found := false
	for i := range tournament.TopPlayers {
		if tournament.TopPlayers[i].AccountID == accountID {
			tournament.TopPlayers[i].Score++
			found = true
			break
		}
	}
	if !found {
		tournament.TopPlayers = append(tournament.TopPlayers, models.TournamentEntry{
			AccountID:     accountID,
			Score:         1,
			FirstScoredAt: now,
		})
	}

	tournament.UpdatedAt = time.Now()
	_, err = tx.NewUpdate().
		Model(tournament).
		WherePK().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to update tournament scores: %w", err)
	}

	return tx.Commit()
}

func (r *tournamentRepository) DistributeRewards(ctx context.Context, tournamentID int64, payouts []TournamentPayout) error {
	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.NewUpdate().
		Model((*models.Tournament)(nil)).
		Set("rewards_distributed = TRUE").
		Set("updated_at = ?", time.Now()).
		Where("id = ?", tournamentID).
		Where("rewards_distributed = FALSE").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to mark rewards distributed: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if affected == 0 {
		return ErrAlreadyProcessed
	}

	for _, payout := range payouts {
		_, err := tx.NewUpdate().
			Model((*models.Account)(nil)).
			Set("credits = credits + ?", payout.Amount).
			Set("updated_at = ?", time.Now()).
			Where("id = ?", payout.AccountID).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to pay tournament reward to %d: %w", payout.AccountID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit tournament rewards: %w", err)
	}

	slog.Info("Tournament rewards distributed",
		slog.String("type", "job"),
		slog.Int64("tournament_id", tournamentID),
		slog.Int("winners", len(payouts)))
	return nil
}

package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/uptrace/bun"

	"github.com/wwwopoly/wwwopoly/wwwopoly/database/models"
)

type EventRepository interface {
	Create(ctx context.Context, event *models.IndustryEvent) error
	GetByID(ctx context.Context, id int64) (*models.IndustryEvent, error)
	GetAll(ctx context.Context) ([]*models.IndustryEvent, error)
	GetActive(ctx context.Context) ([]*models.IndustryEvent, error)
	GetActiveByCategory(ctx context.Context, category string) ([]*models.IndustryEvent, error)
	SetActive(ctx context.Context, id int64, active bool) error
	DeactivateExpired(ctx context.Context, now time.Time) (int64, error)
}

type eventRepository struct {
	db *bun.DB
}

func NewEventRepository(db *bun.DB) EventRepository {
	return &eventRepository{db: db}
}

func (r *eventRepository) Create(ctx context.Context, event *models.IndustryEvent) error {
	if event.ID == 0 {
		event.ID = int64(snowflake.New(time.Now()))
	}
	event.CreatedAt = time.Now()
	event.UpdatedAt = time.Now()
	_, err := r.db.NewInsert().Model(event).Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to create industry event: %w", err)
	}
	return nil
}

func (r *eventRepository) GetByID(ctx context.Context, id int64) (*models.IndustryEvent, error) {
	event := new(models.IndustryEvent)
	err := r.db.NewSelect().
		Model(event).
		Where("id = ?", id).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get industry event: %w", err)
	}
	return event, nil
}

func (r *eventRepository) GetAll(ctx context.Context) ([]*models.IndustryEvent, error) {
	var events []*models.IndustryEvent
	err := r.db.NewSelect().
		Model(&events).
		Order("start_date DESC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get industry events: %w", err)
	}
	return events, nil
}

func (r *eventRepository) GetActive(ctx context.Context) ([]*models.IndustryEvent, error) {
	var events []*models.IndustryEvent
	err := r.db.NewSelect().
		Model(&events).
		Where("is_active = TRUE").
		Order("start_date DESC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get active events: %w", err)
	}
	return events, nil
}

func (r *eventRepository) GetActiveByCategory(ctx context.Context, category string) ([]*models.IndustryEvent, error) {
	var events []*models.IndustryEvent
	err := r.db.NewSelect().
		Model(&events).
		Where("is_active = TRUE").
		Where("category = ?", category).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get active events for %s: %w", category, err)
	}
	return events, nil
}

func (r *eventRepository) SetActive(ctx context.Context, id int64, active bool) error {
	res, err := r.db.NewUpdate().
		Model((*models.IndustryEvent)(nil)).
		Set("is_active = ?", active).
		Set("updated_at = ?", time.Now()).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to set event active state: %w", err)
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

// DeactivateExpired flips every overdue active event exactly once. Running
// it more often than hourly is harmless.
func (r *eventRepository) DeactivateExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.NewUpdate().
		Model((*models.IndustryEvent)(nil)).
		Set("is_active = FALSE").
		Set("updated_at = ?", time.Now()).
		Where("is_active = TRUE").
		Where("end_date < ?", now).
		Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to deactivate expired events: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return affected, nil
}

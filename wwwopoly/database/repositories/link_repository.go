package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/sahilm/fuzzy"
	"github.com/uptrace/bun"

	"github.com/wwwopoly/wwwopoly/wwwopoly/database/models"
)

type LinkRepository interface {
	Create(ctx context.Context, link *models.Link) error
	GetByID(ctx context.Context, id int64) (*models.Link, error)
	GetRandom(ctx context.Context) (*models.Link, error)
	GetByOwner(ctx context.Context, ownerID int64) ([]*models.Link, error)
	GetAll(ctx context.Context) ([]*models.Link, error)
	Search(ctx context.Context, query string, limit int) ([]*models.Link, error)
	Count(ctx context.Context) (int64, error)
	CountHighLevelByOwner(ctx context.Context, ownerID int64, minLevel int) (int, error)
	ResetDailyVisits(ctx context.Context) error
	AverageToll(ctx context.Context) (float64, error)
}

type linkRepository struct {
	db *bun.DB
}

func NewLinkRepository(db *bun.DB) LinkRepository {
	return &linkRepository{db: db}
}

func (r *linkRepository) Create(ctx context.Context, link *models.Link) error {
	if link.ID == 0 {
		link.ID = int64(snowflake.New(time.Now()))
	}
	link.CreatedAt = time.Now()
	link.UpdatedAt = time.Now()
	_, err := r.db.NewInsert().Model(link).Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to create link: %w", err)
	}
	return nil
}

func (r *linkRepository) GetByID(ctx context.Context, id int64) (*models.Link, error) {
	link := new(models.Link)
	err := r.db.NewSelect().
		Model(link).
		Where("id = ?", id).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get link: %w", err)
	}
	return link, nil
}

func (r *linkRepository) GetRandom(ctx context.Context) (*models.Link, error) {
	link := new(models.Link)
	err := r.db.NewSelect().
		Model(link).
		OrderExpr("RANDOM()").
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get random link: %w", err)
	}
	return link, nil
}

func (r *linkRepository) GetByOwner(ctx context.Context, ownerID int64) ([]*models.Link, error) {
	var links []*models.Link
	err := r.db.NewSelect().
		Model(&links).
		Where("owner_id = ?", ownerID).
		Order("created_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get links by owner: %w", err)
	}
	return links, nil
}

func (r *linkRepository) GetAll(ctx context.Context) ([]*models.Link, error) {
	var links []*models.Link
	err := r.db.NewSelect().
		Model(&links).
		Order("id ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get links: %w", err)
	}
	return links, nil
}

// Search ranks links by fuzzy match of the query against their URLs.
func (r *linkRepository) Search(ctx context.Context, query string, limit int) ([]*models.Link, error) {
	links, err := r.GetAll(ctx)
	if err != nil {
		return nil, err
	}

	urls := make([]string, len(links))
	for i, link := range links {
		urls[i] = link.URL
	}

	matches := fuzzy.Find(query, urls)
	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}

	results := make([]*models.Link, len(matches))
	for i, match := range matches {
		results[i] = links[match.Index]
	}
	return results, nil
}

func (r *linkRepository) Count(ctx context.Context) (int64, error) {
	count, err := r.db.NewSelect().
		Model((*models.Link)(nil)).
		Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to count links: %w", err)
	}
	return int64(count), nil
}

func (r *linkRepository) CountHighLevelByOwner(ctx context.Context, ownerID int64, minLevel int) (int, error) {
	count, err := r.db.NewSelect().
		Model((*models.Link)(nil)).
		Where("owner_id = ?", ownerID).
		Where("level >= ?", minLevel).
		Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to count high level links: %w", err)
	}
	return count, nil
}

func (r *linkRepository) ResetDailyVisits(ctx context.Context) error {
	_, err := r.db.NewUpdate().
		Model((*models.Link)(nil)).
		Set("daily_visits = 0").
		Set("updated_at = ?", time.Now()).
		Where("daily_visits > 0").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to reset daily visits: %w", err)
	}
	return nil
}

func (r *linkRepository) AverageToll(ctx context.Context) (float64, error) {
	var avg float64
	err := r.db.NewSelect().
		Model((*models.Link)(nil)).
		ColumnExpr("COALESCE(AVG(toll), 1)").
		Scan(ctx, &avg)
	if err != nil {
		return 0, fmt.Errorf("failed to average tolls: %w", err)
	}
	return avg, nil
}

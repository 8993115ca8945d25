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

type ListingRepository interface {
	Create(ctx context.Context, listing *models.Listing) error
	GetByID(ctx context.Context, id int64) (*models.Listing, error)
	GetOpen(ctx context.Context, minPrice, maxPrice int64) ([]*models.Listing, error)
	// ExecutePurchase transfers the listed link and the price between buyer
	// and seller, marks the listing sold and records the trade, all in one
	// transaction.
	ExecutePurchase(ctx context.Context, listingID, buyerID int64) (*models.TradeRecord, error)
	// ApplyRating folds a 1-5 rating into the seller's running reputation
	// average; a second rating of the same record is rejected.
	ApplyRating(ctx context.Context, recordID, buyerID int64, rating int) error
}

type listingRepository struct {
	db *bun.DB
}

func NewListingRepository(db *bun.DB) ListingRepository {
	return &listingRepository{db: db}
}

func (r *listingRepository) Create(ctx context.Context, listing *models.Listing) error {
	if listing.ID == 0 {
		listing.ID = int64(snowflake.New(time.Now()))
	}
	listing.CreatedAt = time.Now()
	listing.UpdatedAt = time.Now()
	_, err := r.db.NewInsert().Model(listing).Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to create listing: %w", err)
	}
	return nil
}

func (r *listingRepository) GetByID(ctx context.Context, id int64) (*models.Listing, error) {
	listing := new(models.Listing)
	err := r.db.NewSelect().
		Model(listing).
		Where("id = ?", id).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get listing: %w", err)
	}
	return listing, nil
}

func (r *listingRepository) GetOpen(ctx context.Context, minPrice, maxPrice int64) ([]*models.Listing, error) {
	var listings []*models.Listing
	q := r.db.NewSelect().
		Model(&listings).
		Where("is_sold = FALSE")
	if minPrice > 0 {
		q = q.Where("price >= ?", minPrice)
	}
	if maxPrice > 0 {
		q = q.Where("price <= ?", maxPrice)
	}

	err := q.Order("created_at DESC").Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get open listings: %w", err)
	}
	return listings, nil
}

func (r *listingRepository) ExecutePurchase(ctx context.Context, listingID, buyerID int64) (*models.TradeRecord, error) {
	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	listing := new(models.Listing)
	err = tx.NewSelect().
		Model(listing).
		Where("id = ?", listingID).
		For("UPDATE").
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to lock listing: %w", err)
	}
	if listing.IsSold {
		return nil, ErrAlreadyProcessed
	}
	if listing.SellerID == buyerID {
		return nil, ErrInvalidRange
	}

	buyer, seller, err := lockAccountPair(ctx, tx, buyerID, listing.SellerID)
	if err != nil {
		return nil, err
	}
	if buyer.Credits < listing.Price {
		return nil, ErrInsufficientFunds
	}

	if err := reassignOwnerTx(ctx, tx, listing.LinkID, buyerID, listing.SellerID); err != nil {
		return nil, err
	}

	buyer.Credits -= listing.Price
	buyer.CreditsSpent += listing.Price
	buyer.SitesOwned++
	buyer.TradesCount++
	buyer.DailyStats.TradesMade++
	buyer.WeeklyStats.TradesMade++

	seller.Credits += listing.Price
	seller.SitesOwned--
	seller.TradesCount++
	seller.DailyStats.TradesMade++
	seller.WeeklyStats.TradesMade++

	if err := updateAccount(ctx, tx, buyer); err != nil {
		return nil, err
	}
	if err := updateAccount(ctx, tx, seller); err != nil {
		return nil, err
	}

	listing.IsSold = true
	listing.UpdatedAt = time.Now()
	_, err = tx.NewUpdate().
		Model(listing).
		WherePK().
		Exec(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to mark listing sold: %w", err)
	}

	record := &models.TradeRecord{
		ID:        int64(snowflake.New(time.Now())),
		BuyerID:   buyerID,
		SellerID:  listing.SellerID,
		ListingID: listing.ID,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	if _, err := tx.NewInsert().Model(record).Exec(ctx); err != nil {
		return nil, fmt.Errorf("failed to record trade: %w", err)
	}

	if err := bumpGlobalCounter(ctx, tx, "total_trades", 1); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit purchase: %w", err)
	}
	return record, nil
}

func (r *listingRepository) ApplyRating(ctx context.Context, recordID, buyerID int64, rating int) error {
	if rating < 1 || rating > 5 {
		return ErrInvalidRange
	}

	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	record := new(models.TradeRecord)
	err = tx.NewSelect().
		Model(record).
		Where("id = ?", recordID).
		For("UPDATE").
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to lock trade record: %w", err)
	}
	if record.BuyerID != buyerID {
		return ErrNotOwner
	}
	if record.Rated {
		return ErrAlreadyProcessed
	}

	seller, err := lockAccount(ctx, tx, record.SellerID)
	if err != nil {
		return err
	}

	total := seller.Reputation*float64(seller.RatingsCount) + float64(rating)
	seller.RatingsCount++
	seller.Reputation = total / float64(seller.RatingsCount)
	if err := updateAccount(ctx, tx, seller); err != nil {
		return err
	}

	record.Rated = true
	record.UpdatedAt = time.Now()
	_, err = tx.NewUpdate().
		Model(record).
		WherePK().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to mark trade record rated: %w", err)
	}

	return tx.Commit()
}

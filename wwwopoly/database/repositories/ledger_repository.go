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

// Global fund milestones, in credits.
const (
	FundMilestone100K int64 = 100_000
	FundMilestone1M   int64 = 1_000_000
)

// LedgerRepository bundles every multi-record mutation into a single
// transaction: either all of an operation's writes commit or none do.
type LedgerRepository interface {
	Transfer(ctx context.Context, fromID, toID, amount int64) error
	ExecuteClaim(ctx context.Context, accountID, linkID, cost int64) error
	ExecuteVisit(ctx context.Context, visitorID, ownerID, linkID, toll int64) error
	ExecuteTrade(ctx context.Context, linkID, currentOwnerID, newOwnerID, price int64) error
	ExecuteUpgrade(ctx context.Context, ownerID, linkID int64, expectedLevel int, cost, newToll int64) error
	ExecuteAddAndClaim(ctx context.Context, accountID int64, link *models.Link, pointsReward int64) error
	ExecuteCreateListing(ctx context.Context, listing *models.Listing, fee int64) error
	ExecuteContribution(ctx context.Context, accountID, amount int64) ([]string, error)
	ApplyMaintenanceFee(ctx context.Context, accountID, fee int64) error
}

type ledgerRepository struct {
	db *bun.DB
}

func NewLedgerRepository(db *bun.DB) LedgerRepository {
	return &ledgerRepository{db: db}
}

func (r *ledgerRepository) begin(ctx context.Context) (bun.Tx, error) {
	return r.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
}

// lockAccount loads an account row FOR UPDATE inside tx.
func lockAccount(ctx context.Context, tx bun.Tx, id int64) (*models.Account, error) {
	account := new(models.Account)
	err := tx.NewSelect().
		Model(account).
		Where("id = ?", id).
		For("UPDATE").
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to lock account %d: %w", id, err)
	}
	return account, nil
}

// lockAccountPair locks two accounts in ascending id order so concurrent
// operations touching the same pair cannot deadlock.
func lockAccountPair(ctx context.Context, tx bun.Tx, firstID, secondID int64) (*models.Account, *models.Account, error) {
	a, b := firstID, secondID
	if b < a {
		a, b = b, a
	}

	lockedA, err := lockAccount(ctx, tx, a)
	if err != nil {
		return nil, nil, err
	}
	lockedB, err := lockAccount(ctx, tx, b)
	if err != nil {
		return nil, nil, err
	}

	if lockedA.ID == firstID {
		return lockedA, lockedB, nil
	}
	return lockedB, lockedA, nil
}

func lockLink(ctx context.Context, tx bun.Tx, id int64) (*models.Link, error) {
	link := new(models.Link)
	err := tx.NewSelect().
		Model(link).
		Where("id = ?", id).
		For("UPDATE").
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to lock link %d: %w", id, err)
	}
	return link, nil
}

func updateAccount(ctx context.Context, tx bun.Tx, account *models.Account) error {
	account.UpdatedAt = time.Now()
	_, err := tx.NewUpdate().
		Model(account).
		WherePK().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to update account %d: %w", account.ID, err)
	}
	return nil
}

func updateLink(ctx context.Context, tx bun.Tx, link *models.Link) error {
	link.UpdatedAt = time.Now()
	_, err := tx.NewUpdate().
		Model(link).
		WherePK().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to update link %d: %w", link.ID, err)
	}
	return nil
}

// reassignOwnerTx is the in-transaction CAS on the link owner column.
func reassignOwnerTx(ctx context.Context, tx bun.Tx, linkID, newOwnerID, expectedOwnerID int64) error {
	q := tx.NewUpdate().
		Model((*models.Link)(nil)).
		Set("owner_id = ?", newOwnerID).
		Set("updated_at = ?", time.Now()).
		Where("id = ?", linkID)
	if expectedOwnerID == 0 {
		q = q.Where("owner_id IS NULL OR owner_id = 0")
	} else {
		q = q.Where("owner_id = ?", expectedOwnerID)
	}

	res, err := q.Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to reassign link owner: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if affected == 0 {
		return ErrOwnershipConflict
	}
	return nil
}

func (r *ledgerRepository) Transfer(ctx context.Context, fromID, toID, amount int64) error {
	if amount < 0 {
		return ErrInvalidRange
	}

	tx, err := r.begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	from, to, err := lockAccountPair(ctx, tx, fromID, toID)
	if err != nil {
		return err
	}
	if from.Credits < amount {
		return ErrInsufficientFunds
	}

	from.Credits -= amount
	to.Credits += amount

	if err := updateAccount(ctx, tx, from); err != nil {
		return err
	}
	if err := updateAccount(ctx, tx, to); err != nil {
		return err
	}
	return tx.Commit()
}

func (r *ledgerRepository) ExecuteClaim(ctx context.Context, accountID, linkID, cost int64) error {
	tx, err := r.begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	account, err := lockAccount(ctx, tx, accountID)
	if err != nil {
		return err
	}
	link, err := lockLink(ctx, tx, linkID)
	if err != nil {
		return err
	}

	if link.Owned() {
		return ErrAlreadyOwned
	}
	if account.Points < cost {
		return ErrInsufficientFunds
	}

	if err := reassignOwnerTx(ctx, tx, linkID, accountID, 0); err != nil {
		return err
	}

	account.Points -= cost
	account.SitesOwned++
	if err := updateAccount(ctx, tx, account); err != nil {
		return err
	}

	if err := bumpGlobalCounter(ctx, tx, "total_links_claimed", 1); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit claim: %w", err)
	}

	slog.Info("Link claimed",
		slog.String("type", "op"),
		slog.Int64("account_id", accountID),
		slog.Int64("link_id", linkID),
		slog.Int64("cost", cost))
	return nil
}

func (r *ledgerRepository) ExecuteVisit(ctx context.Context, visitorID, ownerID, linkID, toll int64) error {
	tx, err := r.begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	visitor, owner, err := lockAccountPair(ctx, tx, visitorID, ownerID)
	if err != nil {
		return err
	}
	link, err := lockLink(ctx, tx, linkID)
	if err != nil {
		return err
	}

	if link.OwnerID != ownerID {
		return ErrNotOwned
	}
	if visitor.Credits < toll {
		return ErrInsufficientFunds
	}

	visitor.Credits -= toll
	visitor.CreditsSpent += toll
	visitor.SitesVisited++
	visitor.DailyStats.Visits++
	visitor.WeeklyStats.SitesVisited++

	owner.Credits += toll
	owner.TollsEarned += toll
	owner.DailyStats.TollsEarned += toll
	owner.WeeklyStats.TollsCollected += toll

	link.DailyVisits++

	if err := updateAccount(ctx, tx, visitor); err != nil {
		return err
	}
	if err := updateAccount(ctx, tx, owner); err != nil {
		return err
	}
	if err := updateLink(ctx, tx, link); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit visit: %w", err)
	}
	return nil
}

func (r *ledgerRepository) ExecuteTrade(ctx context.Context, linkID, currentOwnerID, newOwnerID, price int64) error {
	tx, err := r.begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	seller, buyer, err := lockAccountPair(ctx, tx, currentOwnerID, newOwnerID)
	if err != nil {
		return err
	}
	link, err := lockLink(ctx, tx, linkID)
	if err != nil {
		return err
	}

	if link.OwnerID != currentOwnerID {
		return ErrNotOwner
	}
	if buyer.Credits < price {
		return ErrInsufficientFunds
	}

	if err := reassignOwnerTx(ctx, tx, linkID, newOwnerID, currentOwnerID); err != nil {
		return err
	}

	buyer.Credits -= price
	buyer.CreditsSpent += price
	buyer.SitesOwned++
	buyer.TradesCount++
	buyer.DailyStats.TradesMade++
	buyer.WeeklyStats.TradesMade++

	seller.Credits += price
	seller.SitesOwned--
	seller.TradesCount++
	seller.DailyStats.TradesMade++
	seller.WeeklyStats.TradesMade++

	if err := updateAccount(ctx, tx, buyer); err != nil {
		return err
	}
	if err := updateAccount(ctx, tx, seller); err != nil {
		return err
	}

	if err := bumpGlobalCounter(ctx, tx, "total_trades", 1); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit trade: %w", err)
	}

	slog.Info("Link traded",
		slog.String("type", "op"),
		slog.Int64("link_id", linkID),
		slog.Int64("seller_id", currentOwnerID),
		slog.Int64("buyer_id", newOwnerID),
		slog.Int64("price", price))
	return nil
}

func (r *ledgerRepository) ExecuteUpgrade(ctx context.Context, ownerID, linkID int64, expectedLevel int, cost, newToll int64) error {
	tx, err := r.begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	account, err := lockAccount(ctx, tx, ownerID)
	if err != nil {
		return err
	}
	link, err := lockLink(ctx, tx, linkID)
	if err != nil {
		return err
	}

	if link.OwnerID != ownerID {
		return ErrNotOwner
	}
	// The cost was priced against expectedLevel; a concurrent upgrade
	// invalidates it and the caller must re-read and retry.
	if link.Level != expectedLevel {
		return ErrOwnershipConflict
	}
	if account.Credits < cost {
		return ErrInsufficientFunds
	}

	account.Credits -= cost
	account.CreditsSpent += cost
	account.UpgradesMade++

	link.Level++
	link.Toll = newToll

	if err := updateAccount(ctx, tx, account); err != nil {
		return err
	}
	if err := updateLink(ctx, tx, link); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit upgrade: %w", err)
	}
	return nil
}

func (r *ledgerRepository) ExecuteAddAndClaim(ctx context.Context, accountID int64, link *models.Link, pointsReward int64) error {
	tx, err := r.begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	account, err := lockAccount(ctx, tx, accountID)
	if err != nil {
		return err
	}

	link.OwnerID = accountID
	link.CreatedAt = time.Now()
	link.UpdatedAt = time.Now()
	if _, err := tx.NewInsert().Model(link).Exec(ctx); err != nil {
		return fmt.Errorf("failed to insert link: %w", err)
	}

	account.Points += pointsReward
	account.SitesOwned++
	account.DailyStats.LinksCreated++
	if err := updateAccount(ctx, tx, account); err != nil {
		return err
	}

	if err := bumpGlobalCounter(ctx, tx, "total_links_claimed", 1); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit add-and-claim: %w", err)
	}
	return nil
}

// ExecuteCreateListing debits the listing fee and inserts the listing in one
// transaction, so a failed insert never leaves the fee paid.
func (r *ledgerRepository) ExecuteCreateListing(ctx context.Context, listing *models.Listing, fee int64) error {
	tx, err := r.begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	seller, err := lockAccount(ctx, tx, listing.SellerID)
	if err != nil {
		return err
	}
	if seller.Credits < fee {
		return ErrInsufficientFunds
	}

	if fee > 0 {
		seller.Credits -= fee
		seller.CreditsSpent += fee
		if err := updateAccount(ctx, tx, seller); err != nil {
			return err
		}
	}

	if listing.ID == 0 {
		listing.ID = int64(snowflake.New(time.Now()))
	}
	listing.CreatedAt = time.Now()
	listing.UpdatedAt = time.Now()
	if _, err := tx.NewInsert().Model(listing).Exec(ctx); err != nil {
		return fmt.Errorf("failed to insert listing: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit listing: %w", err)
	}
	return nil
}

// ExecuteContribution debits the account, grows the global fund and claims
// any milestone flag crossed by this contribution. Flag claiming happens in
// the same transaction, so each milestone pays out exactly once even when
// contributions race.
func (r *ledgerRepository) ExecuteContribution(ctx context.Context, accountID, amount int64) ([]string, error) {
	if amount <= 0 {
		return nil, ErrInvalidRange
	}

	tx, err := r.begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	account, err := lockAccount(ctx, tx, accountID)
	if err != nil {
		return nil, err
	}
	if account.Credits < amount {
		return nil, ErrInsufficientFunds
	}

	account.Credits -= amount
	if err := updateAccount(ctx, tx, account); err != nil {
		return nil, err
	}

	var fund int64
	err = tx.NewUpdate().
		Model((*models.GlobalEconomy)(nil)).
		Set("global_fund = global_fund + ?", amount).
		Set("updated_at = ?", time.Now()).
		Where("id = ?", models.GlobalEconomySingletonID).
		Returning("global_fund").
		Scan(ctx, &fund)
	if err != nil {
		return nil, fmt.Errorf("failed to grow global fund: %w", err)
	}

	var crossed []string
	milestones := []struct {
		name      string
		column    string
		threshold int64
	}{
		{"100k", "reward_100k", FundMilestone100K},
		{"1m", "reward_1m", FundMilestone1M},
	}
	for _, m := range milestones {
		if fund < m.threshold {
			continue
		}
		res, err := tx.NewUpdate().
			Model((*models.GlobalEconomy)(nil)).
			Set(m.column+" = TRUE").
			Set("updated_at = ?", time.Now()).
			Where("id = ?", models.GlobalEconomySingletonID).
			Where(m.column+" = FALSE").
			Exec(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to claim milestone %s: %w", m.name, err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return nil, fmt.Errorf("failed to read rows affected: %w", err)
		}
		if affected == 1 {
			crossed = append(crossed, m.name)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit contribution: %w", err)
	}
	return crossed, nil
}

// ApplyMaintenanceFee debits the fee only when the balance covers it; a
// short balance returns ErrInsufficientFunds without mutating anything.
func (r *ledgerRepository) ApplyMaintenanceFee(ctx context.Context, accountID, fee int64) error {
	if fee <= 0 {
		return nil
	}

	res, err := r.db.NewUpdate().
		Model((*models.Account)(nil)).
		Set("credits = credits - ?", fee).
		Set("updated_at = ?", time.Now()).
		Where("id = ?", accountID).
		Where("credits >= ?", fee).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to apply maintenance fee: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if affected == 0 {
		return ErrInsufficientFunds
	}
	return nil
}

func bumpGlobalCounter(ctx context.Context, tx bun.Tx, column string, delta int64) error {
	_, err := tx.NewUpdate().
		Model((*models.GlobalEconomy)(nil)).
		Set(column+" = "+column+" + ?", delta).
		Set("updated_at = ?", time.Now()).
		Where("id = ?", models.GlobalEconomySingletonID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to bump %s: %w", column, err)
	}
	return nil
}

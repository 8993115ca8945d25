// Package economy implements the game's money paths: claiming, visiting,
// trading and upgrading links, the marketplace, the global fund and the
// scheduled reconciliation jobs that keep the shared economy state
// coherent.
package economy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/wwwopoly/wwwopoly/wwwopoly/achievements"
	"github.com/wwwopoly/wwwopoly/wwwopoly/database/models"
	"github.com/wwwopoly/wwwopoly/wwwopoly/database/repositories"
	"github.com/wwwopoly/wwwopoly/wwwopoly/missions"
	"github.com/wwwopoly/wwwopoly/wwwopoly/notifier"
)

// ScoreRecorder feeds tournament scoring from completed operations.
// Implemented by tournament.Service.
type ScoreRecorder interface {
	RecordScore(ctx context.Context, metric string, accountID int64, now time.Time) error
}

// Service executes player operations. Every mutation goes through a
// single ledger transaction; achievements, tournament scores and
// notifications happen after the commit and never roll it back.
type Service struct {
	cfg      Config
	accounts repositories.AccountRepository
	links    repositories.LinkRepository
	listings repositories.ListingRepository
	ledger   repositories.LedgerRepository
	pricing  *Pricing
	scores   ScoreRecorder
	notifier notifier.Notifier
	log      *slog.Logger
}

func NewService(
	cfg Config,
	accounts repositories.AccountRepository,
	links repositories.LinkRepository,
	listings repositories.ListingRepository,
	ledger repositories.LedgerRepository,
	pricing *Pricing,
	scores ScoreRecorder,
	n notifier.Notifier,
	log *slog.Logger,
) *Service {
	return &Service{
		cfg:      cfg,
		accounts: accounts,
		links:    links,
		listings: listings,
		ledger:   ledger,
		pricing:  pricing,
		scores:   scores,
		notifier: n,
		log:      log,
	}
}

// RegisterAccount creates an account, honoring an optional referral code:
// the referrer earns the configured bonus when the code resolves.
func (s *Service) RegisterAccount(ctx context.Context, username, referralCode string) (*models.Account, error) {
	account := &models.Account{Username: username}

	if referralCode != "" {
		referrer, err := s.accounts.GetByReferralCode(ctx, referralCode)
		if err != nil {
			if !errors.Is(err, ErrNotFound) {
				return nil, err
			}
		} else {
			account.ReferredBy = referrer.ID
		}
	}

	if err := s.accounts.Create(ctx, account); err != nil {
		return nil, err
	}
	if _, err := s.accounts.EnsureReferralCode(ctx, account.ID); err != nil {
		return nil, err
	}

	if account.ReferredBy != 0 {
		if err := s.accounts.AdjustCredits(ctx, account.ReferredBy, s.cfg.ReferralBonus); err != nil {
			s.log.ErrorContext(ctx, "failed to pay referral bonus",
				slog.String("type", "op"),
				slog.Int64("referrer_id", account.ReferredBy),
				slog.Any("error", err),
			)
		} else {
			s.notifier.Notify(ctx, account.ReferredBy, "referral_bonus",
				fmt.Sprintf("%s joined with your code: +%d credits", username, s.cfg.ReferralBonus))
		}
	}

	s.log.InfoContext(ctx, "account registered",
		slog.String("type", "op"),
		slog.Int64("account_id", account.ID),
		slog.String("username", username),
	)
	return account, nil
}

// Claim takes ownership of an unowned link, spending points priced by
// board scarcity.
func (s *Service) Claim(ctx context.Context, accountID, linkID int64) error {
	link, err := s.links.GetByID(ctx, linkID)
	if err != nil {
		return err
	}
	if link.Owned() {
		return ErrAlreadyOwned
	}

	state, err := s.pricing.State(ctx)
	if err != nil {
		return err
	}
	cost := ClaimCost(s.cfg.BaseClaimCost, state.TotalLinksClaimed)

	if err := s.ledger.ExecuteClaim(ctx, accountID, linkID, cost); err != nil {
		return err
	}

	s.log.InfoContext(ctx, "link claimed",
		slog.String("type", "op"),
		slog.Int64("account_id", accountID),
		slog.Int64("link_id", linkID),
		slog.Int64("cost", cost),
	)
	s.afterMutation(ctx, accountID, "")
	return nil
}

// Visit pays the link's effective toll from the visitor to the owner.
// Unowned links cannot be visited; visiting your own link is rejected.
func (s *Service) Visit(ctx context.Context, visitorID, linkID int64) (int64, error) {
	link, err := s.links.GetByID(ctx, linkID)
	if err != nil {
		return 0, err
	}
	if !link.Owned() {
		return 0, ErrNotOwned
	}
	if link.OwnerID == visitorID {
		return 0, ErrSelfVisit
	}

	toll, err := s.pricing.VisitToll(ctx, link)
	if err != nil {
		return 0, err
	}

	if err := s.ledger.ExecuteVisit(ctx, visitorID, link.OwnerID, linkID, toll); err != nil {
		return 0, err
	}

	s.log.InfoContext(ctx, "toll paid",
		slog.String("type", "op"),
		slog.Int64("visitor_id", visitorID),
		slog.Int64("owner_id", link.OwnerID),
		slog.Int64("link_id", linkID),
		slog.Int64("toll", toll),
	)
	s.afterMutation(ctx, visitorID, models.MetricSitesVisited)
	s.afterMutation(ctx, link.OwnerID, models.MetricTollsCollected)
	return toll, nil
}

// TransferCredits gifts credits from one account to another. The amount
// must be positive and covered by the sender's balance; the transfer
// conserves credits.
func (s *Service) TransferCredits(ctx context.Context, fromID, toID, amount int64) error {
	if amount <= 0 {
		return ErrInvalidRange
	}
	if fromID == toID {
		return ErrInvalidRange
	}

	if err := s.ledger.Transfer(ctx, fromID, toID, amount); err != nil {
		return err
	}

	s.log.InfoContext(ctx, "credits transferred",
		slog.String("type", "op"),
		slog.Int64("from_id", fromID),
		slog.Int64("to_id", toID),
		slog.Int64("amount", amount),
	)
	s.notifier.Notify(ctx, toID, "credits_received",
		fmt.Sprintf("You received %d credits.", amount))
	return nil
}

// Trade sells a link directly from its current owner to a buyer at an
// agreed price. The price is bounded; the transfer conserves credits.
func (s *Service) Trade(ctx context.Context, currentOwnerID, newOwnerID, linkID, price int64) error {
	if price < 0 || price > s.cfg.MaxTradePrice {
		return ErrInvalidRange
	}
	if currentOwnerID == newOwnerID {
		return ErrInvalidRange
	}

	if err := s.ledger.ExecuteTrade(ctx, linkID, currentOwnerID, newOwnerID, price); err != nil {
		return err
	}

	s.log.InfoContext(ctx, "link traded",
		slog.String("type", "op"),
		slog.Int64("link_id", linkID),
		slog.Int64("seller_id", currentOwnerID),
		slog.Int64("buyer_id", newOwnerID),
		slog.Int64("price", price),
	)
	s.afterMutation(ctx, currentOwnerID, models.MetricTradesMade)
	s.afterMutation(ctx, newOwnerID, models.MetricTradesMade)
	return nil
}

// Upgrade raises a link one level, repricing its toll. Cost scales with
// the current level and the economy regime.
func (s *Service) Upgrade(ctx context.Context, ownerID, linkID int64) (int64, error) {
	link, err := s.links.GetByID(ctx, linkID)
	if err != nil {
		return 0, err
	}
	if link.OwnerID != ownerID {
		return 0, ErrNotOwner
	}

	state, err := s.pricing.State(ctx)
	if err != nil {
		return 0, err
	}
	cost := UpgradeCost(link.Level, state)
	newToll := TollForLevel(link.Level + 1)

	if err := s.ledger.ExecuteUpgrade(ctx, ownerID, linkID, link.Level, cost, newToll); err != nil {
		return 0, err
	}

	s.log.InfoContext(ctx, "link upgraded",
		slog.String("type", "op"),
		slog.Int64("account_id", ownerID),
		slog.Int64("link_id", linkID),
		slog.Int("new_level", link.Level+1),
		slog.Int64("cost", cost),
	)
	s.afterMutation(ctx, ownerID, "")
	return cost, nil
}

// AddAndClaim registers a brand-new link already owned by the caller and
// rewards the contribution with points.
func (s *Service) AddAndClaim(ctx context.Context, accountID int64, url, category string) (*models.Link, error) {
	link := &models.Link{
		URL:      url,
		Category: category,
		OwnerID:  accountID,
		Level:    1,
		Toll:     TollForLevel(1),
	}

	if err := s.ledger.ExecuteAddAndClaim(ctx, accountID, link, s.cfg.LinkRewardPoints); err != nil {
		return nil, err
	}

	s.log.InfoContext(ctx, "link added",
		slog.String("type", "op"),
		slog.Int64("account_id", accountID),
		slog.Int64("link_id", link.ID),
		slog.String("url", url),
	)
	s.afterMutation(ctx, accountID, "")
	return link, nil
}

// ContributeToFund moves credits from the account into the global fund
// and notifies everyone when a fund milestone is crossed. The milestone
// payout itself runs in the reconciler.
func (s *Service) ContributeToFund(ctx context.Context, accountID, amount int64) error {
	if amount <= 0 {
		return ErrInvalidRange
	}

	crossed, err := s.ledger.ExecuteContribution(ctx, accountID, amount)
	if err != nil {
		return err
	}

	s.log.InfoContext(ctx, "fund contribution",
		slog.String("type", "op"),
		slog.Int64("account_id", accountID),
		slog.Int64("amount", amount),
	)
	for _, milestone := range crossed {
		granted, err := s.accounts.GrantCreditsToAll(ctx, s.cfg.MilestoneReward)
		if err != nil {
			s.log.ErrorContext(ctx, "failed to pay fund milestone reward",
				slog.String("type", "op"),
				slog.String("milestone", milestone),
				slog.Any("error", err),
			)
			continue
		}
		s.log.InfoContext(ctx, "fund milestone paid",
			slog.String("type", "op"),
			slog.String("milestone", milestone),
			slog.Int64("accounts", granted),
		)
		s.notifier.Broadcast(ctx, "fund_milestone",
			fmt.Sprintf("The global fund crossed %s! Everyone receives %d credits.", milestone, s.cfg.MilestoneReward))
	}
	s.afterMutation(ctx, accountID, "")
	return nil
}

// CreateListing puts one of the caller's links on the marketplace. The
// seller pays a listing fee proportional to the asking price.
func (s *Service) CreateListing(ctx context.Context, sellerID, linkID, price int64) (*models.Listing, error) {
	if price <= 0 || price > s.cfg.MaxTradePrice {
		return nil, ErrInvalidRange
	}

	link, err := s.links.GetByID(ctx, linkID)
	if err != nil {
		return nil, err
	}
	if link.OwnerID != sellerID {
		return nil, ErrNotOwner
	}

	fee := int64(math.Ceil(float64(price) * s.cfg.ListingFeeRate))
	listing := &models.Listing{
		LinkID:   linkID,
		SellerID: sellerID,
		Price:    price,
	}
	if err := s.ledger.ExecuteCreateListing(ctx, listing, fee); err != nil {
		return nil, err
	}

	s.log.InfoContext(ctx, "listing created",
		slog.String("type", "op"),
		slog.Int64("listing_id", listing.ID),
		slog.Int64("seller_id", sellerID),
		slog.Int64("price", price),
		slog.Int64("fee", fee),
	)
	return listing, nil
}

// BrowseListings returns open listings, optionally bounded by price.
func (s *Service) BrowseListings(ctx context.Context, minPrice, maxPrice int64) ([]*models.Listing, error) {
	return s.listings.GetOpen(ctx, minPrice, maxPrice)
}

// PurchaseListing buys a marketplace listing for its asking price.
func (s *Service) PurchaseListing(ctx context.Context, listingID, buyerID int64) (*models.TradeRecord, error) {
	record, err := s.listings.ExecutePurchase(ctx, listingID, buyerID)
	if err != nil {
		return nil, err
	}

	s.log.InfoContext(ctx, "listing purchased",
		slog.String("type", "op"),
		slog.Int64("listing_id", listingID),
		slog.Int64("buyer_id", buyerID),
		slog.Int64("seller_id", record.SellerID),
	)
	s.afterMutation(ctx, buyerID, models.MetricTradesMade)
	s.afterMutation(ctx, record.SellerID, models.MetricTradesMade)
	s.notifier.Notify(ctx, record.SellerID, "listing_sold", "Your marketplace listing sold.")
	return record, nil
}

// RateSeller lets the buyer of a completed purchase rate the seller once,
// on a 1-5 scale.
func (s *Service) RateSeller(ctx context.Context, recordID, buyerID int64, rating int) error {
	if err := s.listings.ApplyRating(ctx, recordID, buyerID, rating); err != nil {
		return err
	}
	s.log.InfoContext(ctx, "seller rated",
		slog.String("type", "op"),
		slog.Int64("trade_record_id", recordID),
		slog.Int("rating", rating),
	)
	return nil
}

// Leaderboard returns the top accounts for one of the tracked metrics.
func (s *Service) Leaderboard(ctx context.Context, metric string, limit int) ([]*models.Account, error) {
	return s.accounts.TopByMetric(ctx, metric, limit)
}

// SearchLinks fuzzy-matches link URLs.
func (s *Service) SearchLinks(ctx context.Context, query string, limit int) ([]*models.Link, error) {
	return s.links.Search(ctx, query, limit)
}

// RandomLink picks a random link to visit.
func (s *Service) RandomLink(ctx context.Context) (*models.Link, error) {
	return s.links.GetRandom(ctx)
}

// afterMutation runs the post-commit hooks for accountID: achievement
// evaluation, daily mission rewards and, when metric is set, tournament
// scoring. Failures here are logged and swallowed; the committed
// operation stands.
func (s *Service) afterMutation(ctx context.Context, accountID int64, metric string) {
	now := time.Now().UTC()

	account, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		s.log.ErrorContext(ctx, "post-op reload failed",
			slog.String("type", "op"),
			slog.Int64("account_id", accountID),
			slog.Any("error", err),
		)
		return
	}

	if unlocks := achievements.Evaluate(account, now); len(unlocks) > 0 {
		if err := s.accounts.AppendAchievements(ctx, accountID, unlocks); err != nil {
			s.log.ErrorContext(ctx, "failed to persist achievements",
				slog.String("type", "op"),
				slog.Int64("account_id", accountID),
				slog.Any("error", err),
			)
		} else {
			for _, unlock := range unlocks {
				def, _ := achievements.Lookup(unlock.ID)
				s.notifier.Notify(ctx, accountID, "achievement_unlocked",
					fmt.Sprintf("Achievement unlocked: %s", def.Title))
			}
		}
	}

	for _, mission := range missions.Evaluate(account) {
		paid, err := s.accounts.CompleteMission(ctx, accountID, mission.ID, mission.Reward.Credits, mission.Reward.Points)
		if err != nil {
			s.log.ErrorContext(ctx, "failed to pay mission reward",
				slog.String("type", "op"),
				slog.Int64("account_id", accountID),
				slog.String("mission", mission.ID),
				slog.Any("error", err),
			)
			continue
		}
		if paid {
			s.notifier.Notify(ctx, accountID, "mission_completed",
				fmt.Sprintf("Daily mission complete: %s", mission.Title))
		}
	}

	if metric != "" && s.scores != nil {
		if err := s.scores.RecordScore(ctx, metric, accountID, now); err != nil {
			s.log.ErrorContext(ctx, "failed to record tournament score",
				slog.String("type", "op"),
				slog.Int64("account_id", accountID),
				slog.String("metric", metric),
				slog.Any("error", err),
			)
		}
	}
}

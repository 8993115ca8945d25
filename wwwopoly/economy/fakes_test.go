package economy

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/wwwopoly/wwwopoly/wwwopoly/database/models"
	"github.com/wwwopoly/wwwopoly/wwwopoly/database/repositories"
)

// In-memory repository fakes mirroring the ledger semantics: guards are
// checked before any mutation, and a failed operation leaves every store
// untouched.

type fakeAccounts struct {
	accounts  map[int64]*models.Account
	nextID    int64
	getAllErr error
}

func newFakeAccounts(accounts ...*models.Account) *fakeAccounts {
	f := &fakeAccounts{accounts: make(map[int64]*models.Account), nextID: 1000}
	for _, a := range accounts {
		f.accounts[a.ID] = a
	}
	return f
}

func (f *fakeAccounts) Create(_ context.Context, account *models.Account) error {
	if account.ID == 0 {
		f.nextID++
		account.ID = f.nextID
	}
	f.accounts[account.ID] = account
	return nil
}

func (f *fakeAccounts) GetByID(_ context.Context, id int64) (*models.Account, error) {
	account, ok := f.accounts[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	return account, nil
}

func (f *fakeAccounts) GetByUsername(_ context.Context, username string) (*models.Account, error) {
	for _, a := range f.accounts {
		if a.Username == username {
			return a, nil
		}
	}
	return nil, repositories.ErrNotFound
}

func (f *fakeAccounts) GetByReferralCode(_ context.Context, code string) (*models.Account, error) {
	for _, a := range f.accounts {
		if a.ReferralCode != "" && a.ReferralCode == code {
			return a, nil
		}
	}
	return nil, repositories.ErrNotFound
}

func (f *fakeAccounts) GetAll(_ context.Context) ([]*models.Account, error) {
	if f.getAllErr != nil {
		return nil, f.getAllErr
	}
	out := make([]*models.Account, 0, len(f.accounts))
	for _, a := range f.accounts {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeAccounts) Update(_ context.Context, account *models.Account) error {
	if _, ok := f.accounts[account.ID]; !ok {
		return repositories.ErrNotFound
	}
	f.accounts[account.ID] = account
	return nil
}

func (f *fakeAccounts) TopByMetric(_ context.Context, metric string, limit int) ([]*models.Account, error) {
	key, ok := map[string]func(*models.Account) int64{
		"credits":       func(a *models.Account) int64 { return a.Credits },
		"points":        func(a *models.Account) int64 { return a.Points },
		"sites_owned":   func(a *models.Account) int64 { return a.SitesOwned },
		"trades_count":  func(a *models.Account) int64 { return a.TradesCount },
		"credits_spent": func(a *models.Account) int64 { return a.CreditsSpent },
		"tolls_earned":  func(a *models.Account) int64 { return a.TollsEarned },
	}[metric]
	if !ok {
		return nil, repositories.ErrInvalidRange
	}
	all, _ := f.GetAll(context.Background())
	sort.SliceStable(all, func(i, j int) bool { return key(all[i]) > key(all[j]) })
	if limit < len(all) {
		all = all[:limit]
	}
	return all, nil
}

func (f *fakeAccounts) GetReferrals(_ context.Context, referrerID int64) ([]*models.Account, error) {
	var out []*models.Account
	for _, a := range f.accounts {
		if a.ReferredBy == referrerID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakeAccounts) AdjustCredits(_ context.Context, id int64, delta int64) error {
	account, ok := f.accounts[id]
	if !ok {
		return repositories.ErrNotFound
	}
	if account.Credits+delta < 0 {
		return repositories.ErrInsufficientFunds
	}
	account.Credits += delta
	return nil
}

func (f *fakeAccounts) AppendAchievements(_ context.Context, id int64, unlocks []models.AchievementUnlock) error {
	account, ok := f.accounts[id]
	if !ok {
		return repositories.ErrNotFound
	}
	account.Achievements = append(account.Achievements, unlocks...)
	return nil
}

func (f *fakeAccounts) CompleteMission(_ context.Context, id int64, missionID string, credits, points int64) (bool, error) {
	account, ok := f.accounts[id]
	if !ok {
		return false, repositories.ErrNotFound
	}
	if account.HasMissionDone(missionID) {
		return false, nil
	}
	account.MissionsDone = append(account.MissionsDone, missionID)
	account.Credits += credits
	account.Points += points
	return true, nil
}

func (f *fakeAccounts) EnsureReferralCode(_ context.Context, id int64) (string, error) {
	account, ok := f.accounts[id]
	if !ok {
		return "", repositories.ErrNotFound
	}
	if account.ReferralCode == "" {
		account.ReferralCode = fmt.Sprintf("%s-%d", strings.ToUpper(account.Username), id)
	}
	return account.ReferralCode, nil
}

func (f *fakeAccounts) GrantCreditsToAll(_ context.Context, amount int64) (int64, error) {
	for _, a := range f.accounts {
		a.Credits += amount
	}
	return int64(len(f.accounts)), nil
}

func (f *fakeAccounts) ResetDailyStats(_ context.Context) error {
	for _, a := range f.accounts {
		a.DailyStats = models.DailyStats{}
		a.MissionsDone = nil
	}
	return nil
}

func (f *fakeAccounts) ResetWeeklyStats(_ context.Context) error {
	for _, a := range f.accounts {
		a.WeeklyStats = models.WeeklyStats{}
	}
	return nil
}

func (f *fakeAccounts) TotalCredits(_ context.Context) (int64, error) {
	var total int64
	for _, a := range f.accounts {
		total += a.Credits
	}
	return total, nil
}

type fakeLinks struct {
	links  map[int64]*models.Link
	nextID int64
}

func newFakeLinks(links ...*models.Link) *fakeLinks {
	f := &fakeLinks{links: make(map[int64]*models.Link), nextID: 5000}
	for _, l := range links {
		f.links[l.ID] = l
	}
	return f
}

func (f *fakeLinks) Create(_ context.Context, link *models.Link) error {
	if link.ID == 0 {
		f.nextID++
		link.ID = f.nextID
	}
	f.links[link.ID] = link
	return nil
}

func (f *fakeLinks) GetByID(_ context.Context, id int64) (*models.Link, error) {
	link, ok := f.links[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	return link, nil
}

func (f *fakeLinks) GetRandom(_ context.Context) (*models.Link, error) {
	for _, l := range f.links {
		return l, nil
	}
	return nil, repositories.ErrNotFound
}

func (f *fakeLinks) GetByOwner(_ context.Context, ownerID int64) ([]*models.Link, error) {
	var out []*models.Link
	for _, l := range f.links {
		if l.OwnerID == ownerID {
			out = append(out, l)
		}
	}
	return out, nil
}

func (f *fakeLinks) GetAll(_ context.Context) ([]*models.Link, error) {
	out := make([]*models.Link, 0, len(f.links))
	for _, l := range f.links {
		out = append(out, l)
	}
	return out, nil
}

func (f *fakeLinks) Search(_ context.Context, query string, limit int) ([]*models.Link, error) {
	var out []*models.Link
	for _, l := range f.links {
		if strings.Contains(l.URL, query) {
			out = append(out, l)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (f *fakeLinks) Count(_ context.Context) (int64, error) {
	return int64(len(f.links)), nil
}

func (f *fakeLinks) CountHighLevelByOwner(_ context.Context, ownerID int64, minLevel int) (int, error) {
	count := 0
	for _, l := range f.links {
		if l.OwnerID == ownerID && l.Level >= minLevel {
			count++
		}
	}
	return count, nil
}

func (f *fakeLinks) ResetDailyVisits(_ context.Context) error {
	for _, l := range f.links {
		l.DailyVisits = 0
	}
	return nil
}

func (f *fakeLinks) AverageToll(_ context.Context) (float64, error) {
	if len(f.links) == 0 {
		return 1, nil
	}
	var total int64
	for _, l := range f.links {
		total += l.Toll
	}
	return float64(total) / float64(len(f.links)), nil
}

type fakeEconomy struct {
	state  *models.GlobalEconomy
	guards map[repositories.PeriodGuard]string
}

func newFakeEconomy(state *models.GlobalEconomy) *fakeEconomy {
	if state == nil {
		state = models.NewGlobalEconomy()
	}
	return &fakeEconomy{state: state, guards: make(map[repositories.PeriodGuard]string)}
}

func (f *fakeEconomy) Get(_ context.Context) (*models.GlobalEconomy, error) {
	return f.state, nil
}

func (f *fakeEconomy) ClaimPeriod(_ context.Context, guard repositories.PeriodGuard, period string) (bool, error) {
	if f.guards[guard] == period {
		return false, nil
	}
	f.guards[guard] = period
	switch guard {
	case repositories.GuardRegimeDay:
		f.state.RegimeDay = period
	case repositories.GuardCategoryDay:
		f.state.CategoryDay = period
	case repositories.GuardResetDay:
		f.state.ResetDay = period
	case repositories.GuardSweepWeek:
		f.state.SweepWeek = period
	}
	return true, nil
}

func (f *fakeEconomy) SetRegime(_ context.Context, regime models.EconomyRegime, inflationRate, deflationRate float64, totalCredits int64, averageToll float64) error {
	f.state.Regime = regime
	f.state.InflationRate = inflationRate
	f.state.DeflationRate = deflationRate
	f.state.TotalCreditsInCirculation = totalCredits
	f.state.AverageTollRate = averageToll
	return nil
}

func (f *fakeEconomy) SetDailyCategory(_ context.Context, category string, multiplier float64, isSurge bool) error {
	f.state.DailyCategory = category
	f.state.DailyMultiplier = multiplier
	f.state.IsSurge = isSurge
	return nil
}

func (f *fakeEconomy) SetLastEventTrigger(_ context.Context, at time.Time) error {
	f.state.LastEventTrigger = at
	return nil
}

type fakeEvents struct {
	events map[int64]*models.IndustryEvent
	nextID int64
}

func newFakeEvents(events ...*models.IndustryEvent) *fakeEvents {
	f := &fakeEvents{events: make(map[int64]*models.IndustryEvent), nextID: 9000}
	for _, e := range events {
		f.events[e.ID] = e
	}
	return f
}

func (f *fakeEvents) Create(_ context.Context, event *models.IndustryEvent) error {
	if event.ID == 0 {
		f.nextID++
		event.ID = f.nextID
	}
	f.events[event.ID] = event
	return nil
}

func (f *fakeEvents) GetByID(_ context.Context, id int64) (*models.IndustryEvent, error) {
	event, ok := f.events[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	return event, nil
}

func (f *fakeEvents) GetAll(_ context.Context) ([]*models.IndustryEvent, error) {
	out := make([]*models.IndustryEvent, 0, len(f.events))
	for _, e := range f.events {
		out = append(out, e)
	}
	return out, nil
}

func (f *fakeEvents) GetActive(_ context.Context) ([]*models.IndustryEvent, error) {
	var out []*models.IndustryEvent
	for _, e := range f.events {
		if e.IsActive {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeEvents) GetActiveByCategory(_ context.Context, category string) ([]*models.IndustryEvent, error) {
	var out []*models.IndustryEvent
	for _, e := range f.events {
		if e.IsActive && e.Category == category {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeEvents) SetActive(_ context.Context, id int64, active bool) error {
	event, ok := f.events[id]
	if !ok {
		return repositories.ErrNotFound
	}
	event.IsActive = active
	return nil
}

func (f *fakeEvents) DeactivateExpired(_ context.Context, now time.Time) (int64, error) {
	var count int64
	for _, e := range f.events {
		if e.IsActive && e.EndDate.Before(now) {
			e.IsActive = false
			count++
		}
	}
	return count, nil
}

// fakeLedger reimplements the composite operations over the fake stores
// with the same guard order as the real transactions.
type fakeLedger struct {
	accounts *fakeAccounts
	links    *fakeLinks
	economy  *fakeEconomy
	listings *fakeListings
}

func (f *fakeLedger) Transfer(_ context.Context, fromID, toID, amount int64) error {
	from, ok := f.accounts.accounts[fromID]
	if !ok {
		return repositories.ErrNotFound
	}
	to, ok := f.accounts.accounts[toID]
	if !ok {
		return repositories.ErrNotFound
	}
	if from.Credits < amount {
		return repositories.ErrInsufficientFunds
	}
	from.Credits -= amount
	to.Credits += amount
	return nil
}

func (f *fakeLedger) ExecuteClaim(_ context.Context, accountID, linkID, cost int64) error {
	account, ok := f.accounts.accounts[accountID]
	if !ok {
		return repositories.ErrNotFound
	}
	link, ok := f.links.links[linkID]
	if !ok {
		return repositories.ErrNotFound
	}
	if account.Points < cost {
		return repositories.ErrInsufficientFunds
	}
	if link.OwnerID != 0 {
		return repositories.ErrAlreadyOwned
	}
	account.Points -= cost
	account.SitesOwned++
	link.OwnerID = accountID
	f.economy.state.TotalLinksClaimed++
	return nil
}

func (f *fakeLedger) ExecuteVisit(_ context.Context, visitorID, ownerID, linkID, toll int64) error {
	visitor, ok := f.accounts.accounts[visitorID]
	if !ok {
		return repositories.ErrNotFound
	}
	owner, ok := f.accounts.accounts[ownerID]
	if !ok {
		return repositories.ErrNotFound
	}
	link, ok := f.links.links[linkID]
	if !ok {
		return repositories.ErrNotFound
	}
	if link.OwnerID != ownerID {
		return repositories.ErrNotOwned
	}
	if visitor.Credits < toll {
		return repositories.ErrInsufficientFunds
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
	return nil
}

func (f *fakeLedger) ExecuteTrade(_ context.Context, linkID, currentOwnerID, newOwnerID, price int64) error {
	link, ok := f.links.links[linkID]
	if !ok {
		return repositories.ErrNotFound
	}
	if link.OwnerID != currentOwnerID {
		return repositories.ErrNotOwner
	}
	seller, ok := f.accounts.accounts[currentOwnerID]
	if !ok {
		return repositories.ErrNotFound
	}
	buyer, ok := f.accounts.accounts[newOwnerID]
	if !ok {
		return repositories.ErrNotFound
	}
	if buyer.Credits < price {
		return repositories.ErrInsufficientFunds
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
	link.OwnerID = newOwnerID
	f.economy.state.TotalTrades++
	return nil
}

func (f *fakeLedger) ExecuteUpgrade(_ context.Context, ownerID, linkID int64, expectedLevel int, cost, newToll int64) error {
	link, ok := f.links.links[linkID]
	if !ok {
		return repositories.ErrNotFound
	}
	if link.OwnerID != ownerID || link.Level != expectedLevel {
		return repositories.ErrOwnershipConflict
	}
	owner, ok := f.accounts.accounts[ownerID]
	if !ok {
		return repositories.ErrNotFound
	}
	if owner.Credits < cost {
		return repositories.ErrInsufficientFunds
	}
	owner.Credits -= cost
	owner.CreditsSpent += cost
	owner.UpgradesMade++
	link.Level++
	link.Toll = newToll
	return nil
}

func (f *fakeLedger) ExecuteAddAndClaim(ctx context.Context, accountID int64, link *models.Link, pointsReward int64) error {
	account, ok := f.accounts.accounts[accountID]
	if !ok {
		return repositories.ErrNotFound
	}
	if err := f.links.Create(ctx, link); err != nil {
		return err
	}
	account.Points += pointsReward
	account.SitesOwned++
	account.DailyStats.LinksCreated++
	return nil
}

func (f *fakeLedger) ExecuteCreateListing(ctx context.Context, listing *models.Listing, fee int64) error {
	seller, ok := f.accounts.accounts[listing.SellerID]
	if !ok {
		return repositories.ErrNotFound
	}
	if seller.Credits < fee {
		return repositories.ErrInsufficientFunds
	}
	if err := f.listings.Create(ctx, listing); err != nil {
		return err
	}
	seller.Credits -= fee
	seller.CreditsSpent += fee
	return nil
}

func (f *fakeLedger) ExecuteContribution(_ context.Context, accountID, amount int64) ([]string, error) {
	account, ok := f.accounts.accounts[accountID]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	if account.Credits < amount {
		return nil, repositories.ErrInsufficientFunds
	}
	account.Credits -= amount
	f.economy.state.GlobalFund += amount

	var crossed []string
	if f.economy.state.GlobalFund >= repositories.FundMilestone100K && !f.economy.state.Reward100K {
		f.economy.state.Reward100K = true
		crossed = append(crossed, "100k")
	}
	if f.economy.state.GlobalFund >= repositories.FundMilestone1M && !f.economy.state.Reward1M {
		f.economy.state.Reward1M = true
		crossed = append(crossed, "1m")
	}
	return crossed, nil
}

func (f *fakeLedger) ApplyMaintenanceFee(_ context.Context, accountID, fee int64) error {
	account, ok := f.accounts.accounts[accountID]
	if !ok {
		return repositories.ErrNotFound
	}
	if account.Credits < fee {
		return repositories.ErrInsufficientFunds
	}
	account.Credits -= fee
	account.CreditsSpent += fee
	return nil
}

type fakeListings struct {
	listings  map[int64]*models.Listing
	records   map[int64]*models.TradeRecord
	accounts  *fakeAccounts
	links     *fakeLinks
	nextID    int64
	createErr error
}

func newFakeListings(accounts *fakeAccounts, links *fakeLinks) *fakeListings {
	return &fakeListings{
		listings: make(map[int64]*models.Listing),
		records:  make(map[int64]*models.TradeRecord),
		accounts: accounts,
		links:    links,
		nextID:   7000,
	}
}

func (f *fakeListings) Create(_ context.Context, listing *models.Listing) error {
	if f.createErr != nil {
		return f.createErr
	}
	if listing.ID == 0 {
		f.nextID++
		listing.ID = f.nextID
	}
	f.listings[listing.ID] = listing
	return nil
}

func (f *fakeListings) GetByID(_ context.Context, id int64) (*models.Listing, error) {
	listing, ok := f.listings[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	return listing, nil
}

func (f *fakeListings) GetOpen(_ context.Context, minPrice, maxPrice int64) ([]*models.Listing, error) {
	var out []*models.Listing
	for _, l := range f.listings {
		if l.IsSold {
			continue
		}
		if minPrice > 0 && l.Price < minPrice {
			continue
		}
		if maxPrice > 0 && l.Price > maxPrice {
			continue
		}
		out = append(out, l)
	}
	return out, nil
}

func (f *fakeListings) ExecutePurchase(_ context.Context, listingID, buyerID int64) (*models.TradeRecord, error) {
	listing, ok := f.listings[listingID]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	if listing.IsSold {
		return nil, repositories.ErrAlreadyProcessed
	}
	if listing.SellerID == buyerID {
		return nil, repositories.ErrInvalidRange
	}
	buyer, ok := f.accounts.accounts[buyerID]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	seller, ok := f.accounts.accounts[listing.SellerID]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	if buyer.Credits < listing.Price {
		return nil, repositories.ErrInsufficientFunds
	}
	link, ok := f.links.links[listing.LinkID]
	if !ok || link.OwnerID != listing.SellerID {
		return nil, repositories.ErrOwnershipConflict
	}

	link.OwnerID = buyerID
	buyer.Credits -= listing.Price
	buyer.SitesOwned++
	buyer.TradesCount++
	seller.Credits += listing.Price
	seller.SitesOwned--
	seller.TradesCount++
	listing.IsSold = true

	f.nextID++
	record := &models.TradeRecord{
		ID:        f.nextID,
		BuyerID:   buyerID,
		SellerID:  listing.SellerID,
		ListingID: listing.ID,
	}
	f.records[record.ID] = record
	return record, nil
}

func (f *fakeListings) ApplyRating(_ context.Context, recordID, buyerID int64, rating int) error {
	if rating < 1 || rating > 5 {
		return repositories.ErrInvalidRange
	}
	record, ok := f.records[recordID]
	if !ok {
		return repositories.ErrNotFound
	}
	if record.BuyerID != buyerID {
		return repositories.ErrNotOwner
	}
	if record.Rated {
		return repositories.ErrAlreadyProcessed
	}
	seller := f.accounts.accounts[record.SellerID]
	total := seller.Reputation*float64(seller.RatingsCount) + float64(rating)
	seller.RatingsCount++
	seller.Reputation = total / float64(seller.RatingsCount)
	record.Rated = true
	return nil
}

type notification struct {
	accountID int64
	event     string
}

// fakeNotifier is mutex-guarded: the maintenance sweep notifies from
// concurrent workers.
type fakeNotifier struct {
	mu         sync.Mutex
	sent       []notification
	broadcasts []string
}

func (f *fakeNotifier) Notify(_ context.Context, accountID int64, event string, _ string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, notification{accountID: accountID, event: event})
}

func (f *fakeNotifier) Broadcast(_ context.Context, event string, _ string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.broadcasts = append(f.broadcasts, event)
}

func (f *fakeNotifier) count(event string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, s := range f.sent {
		if s.event == event {
			n++
		}
	}
	return n
}

type scoredEvent struct {
	metric    string
	accountID int64
}

type fakeScores struct {
	recorded []scoredEvent
}

func (f *fakeScores) RecordScore(_ context.Context, metric string, accountID int64, _ time.Time) error {
	f.recorded = append(f.recorded, scoredEvent{metric: metric, accountID: accountID})
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

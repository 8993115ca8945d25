package economy

import (
	"context"
	"errors"
	"testing"

	"github.com/wwwopoly/wwwopoly/wwwopoly/database/models"
)

func testEconomyConfig() Config {
	return Config{
		InflationThreshold:   1_000_000,
		DeflationThreshold:   500_000,
		InflationRate:        1.2,
		DeflationRate:        0.8,
		MaintenanceFeeFactor: 1,
		MaintenanceMinLevel:  5,
		BaseClaimCost:        10,
		ListingFeeRate:       0.05,
		MaxTradePrice:        100,
		ReferralBonus:        100,
		MilestoneReward:      10,
		LinkRewardPoints:     10,
		SweepBatchSize:       2,
		SweepWorkers:         2,
	}
}

type testWorld struct {
	accounts *fakeAccounts
	links    *fakeLinks
	economy  *fakeEconomy
	events   *fakeEvents
	listings *fakeListings
	notifier *fakeNotifier
	scores   *fakeScores
	svc      *Service
}

func newTestWorld(t *testing.T, state *models.GlobalEconomy, accounts []*models.Account, links []*models.Link) *testWorld {
	t.Helper()

	w := &testWorld{
		accounts: newFakeAccounts(accounts...),
		links:    newFakeLinks(links...),
		economy:  newFakeEconomy(state),
		events:   newFakeEvents(),
		notifier: &fakeNotifier{},
		scores:   &fakeScores{},
	}
	w.listings = newFakeListings(w.accounts, w.links)

	pricing, err := NewPricing(w.economy, w.events)
	if err != nil {
		t.Fatalf("NewPricing() error = %v", err)
	}
	ledger := &fakeLedger{accounts: w.accounts, links: w.links, economy: w.economy, listings: w.listings}
	w.svc = NewService(testEconomyConfig(), w.accounts, w.links, w.listings, ledger,
		pricing, w.scores, w.notifier, discardLogger())
	return w
}

func TestClaim(t *testing.T) {
	state := models.NewGlobalEconomy()
	state.TotalLinksClaimed = 2000 // base cost band

	w := newTestWorld(t, state,
		[]*models.Account{{ID: 1, Username: "alice", Points: 20}},
		[]*models.Link{{ID: 10, URL: "example.com", Toll: 1, Level: 1}},
	)

	if err := w.svc.Claim(context.Background(), 1, 10); err != nil {
		t.Fatalf("Claim() error = %v", err)
	}

	alice := w.accounts.accounts[1]
	if alice.Points != 10 {
		t.Errorf("points = %d, want 10", alice.Points)
	}
	if alice.SitesOwned != 1 {
		t.Errorf("sites owned = %d, want 1", alice.SitesOwned)
	}
	if w.links.links[10].OwnerID != 1 {
		t.Errorf("owner = %d, want 1", w.links.links[10].OwnerID)
	}
	if state.TotalLinksClaimed != 2001 {
		t.Errorf("total links claimed = %d, want 2001", state.TotalLinksClaimed)
	}
	if !alice.HasAchievement("first_link_claimed") {
		t.Error("first_link_claimed not unlocked")
	}
}

func TestClaimAlreadyOwned(t *testing.T) {
	w := newTestWorld(t, nil,
		[]*models.Account{{ID: 1, Username: "alice", Points: 20}},
		[]*models.Link{{ID: 10, URL: "example.com", OwnerID: 2, Toll: 1, Level: 1}},
	)

	if err := w.svc.Claim(context.Background(), 1, 10); !errors.Is(err, ErrAlreadyOwned) {
		t.Fatalf("Claim() error = %v, want ErrAlreadyOwned", err)
	}
	if w.accounts.accounts[1].Points != 20 {
		t.Error("points changed on rejected claim")
	}
}

func TestClaimInsufficientPoints(t *testing.T) {
	w := newTestWorld(t, nil,
		[]*models.Account{{ID: 1, Username: "alice", Points: 3}},
		[]*models.Link{{ID: 10, URL: "example.com", Toll: 1, Level: 1}},
	)

	if err := w.svc.Claim(context.Background(), 1, 10); !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("Claim() error = %v, want ErrInsufficientFunds", err)
	}
	if w.links.links[10].OwnerID != 0 {
		t.Error("ownership changed on rejected claim")
	}
}

func TestVisit(t *testing.T) {
	state := models.NewGlobalEconomy()
	state.DailyCategory = "tech"
	state.DailyMultiplier = 1.5
	state.IsSurge = true

	w := newTestWorld(t, state,
		[]*models.Account{
			{ID: 1, Username: "alice", Credits: 50},
			{ID: 2, Username: "bob", Credits: 0},
		},
		[]*models.Link{{ID: 10, URL: "example.com", OwnerID: 2, Toll: 4, Level: 4, Category: "tech"}},
	)

	toll, err := w.svc.Visit(context.Background(), 1, 10)
	if err != nil {
		t.Fatalf("Visit() error = %v", err)
	}
	if toll != 6 { // 4 * 1.5 surge
		t.Errorf("toll = %d, want 6", toll)
	}

	alice, bob := w.accounts.accounts[1], w.accounts.accounts[2]
	if alice.Credits != 44 || bob.Credits != 6 {
		t.Errorf("balances = %d/%d, want 44/6", alice.Credits, bob.Credits)
	}
	if alice.Credits+bob.Credits != 50 {
		t.Error("visit did not conserve credits")
	}
	if alice.SitesVisited != 1 || bob.TollsEarned != 6 {
		t.Errorf("counters: visited=%d earned=%d", alice.SitesVisited, bob.TollsEarned)
	}
	if w.links.links[10].DailyVisits != 1 {
		t.Error("daily visits not bumped")
	}

	// Both sides score their tournament metrics.
	if len(w.scores.recorded) != 2 {
		t.Fatalf("scores recorded = %v", w.scores.recorded)
	}
	if w.scores.recorded[0] != (scoredEvent{metric: models.MetricSitesVisited, accountID: 1}) {
		t.Errorf("visitor score = %v", w.scores.recorded[0])
	}
	if w.scores.recorded[1] != (scoredEvent{metric: models.MetricTollsCollected, accountID: 2}) {
		t.Errorf("owner score = %v", w.scores.recorded[1])
	}
}

func TestVisitOwnLink(t *testing.T) {
	w := newTestWorld(t, nil,
		[]*models.Account{{ID: 1, Username: "alice", Credits: 50}},
		[]*models.Link{{ID: 10, URL: "example.com", OwnerID: 1, Toll: 1, Level: 1}},
	)

	if _, err := w.svc.Visit(context.Background(), 1, 10); !errors.Is(err, ErrSelfVisit) {
		t.Fatalf("Visit() error = %v, want ErrSelfVisit", err)
	}
	if w.accounts.accounts[1].Credits != 50 {
		t.Error("credits changed on self-visit")
	}
}

func TestVisitUnownedLinkRejected(t *testing.T) {
	w := newTestWorld(t, nil,
		[]*models.Account{{ID: 1, Username: "alice", Credits: 50}},
		[]*models.Link{{ID: 10, URL: "example.com", Toll: 3, Level: 3}},
	)

	if _, err := w.svc.Visit(context.Background(), 1, 10); !errors.Is(err, ErrNotOwned) {
		t.Fatalf("Visit() error = %v, want ErrNotOwned", err)
	}
	if w.accounts.accounts[1].Credits != 50 {
		t.Error("credits changed visiting unowned link")
	}
	if w.accounts.accounts[1].SitesVisited != 0 {
		t.Error("visit counted against unowned link")
	}
}

func TestVisitInsufficientFunds(t *testing.T) {
	w := newTestWorld(t, nil,
		[]*models.Account{
			{ID: 1, Username: "alice", Credits: 2},
			{ID: 2, Username: "bob", Credits: 7},
		},
		[]*models.Link{{ID: 10, URL: "example.com", OwnerID: 2, Toll: 5, Level: 5}},
	)

	if _, err := w.svc.Visit(context.Background(), 1, 10); !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("Visit() error = %v, want ErrInsufficientFunds", err)
	}
	if w.accounts.accounts[1].Credits != 2 || w.accounts.accounts[2].Credits != 7 {
		t.Error("balances changed on rejected visit")
	}
}

func TestTrade(t *testing.T) {
	w := newTestWorld(t, nil,
		[]*models.Account{
			{ID: 1, Username: "alice", Credits: 30, SitesOwned: 1},
			{ID: 2, Username: "bob", Credits: 70},
		},
		[]*models.Link{{ID: 10, URL: "example.com", OwnerID: 1, Toll: 1, Level: 1}},
	)

	if err := w.svc.Trade(context.Background(), 1, 2, 10, 40); err != nil {
		t.Fatalf("Trade() error = %v", err)
	}

	alice, bob := w.accounts.accounts[1], w.accounts.accounts[2]
	if alice.Credits != 70 || bob.Credits != 30 {
		t.Errorf("balances = %d/%d, want 70/30", alice.Credits, bob.Credits)
	}
	if alice.Credits+bob.Credits != 100 {
		t.Error("trade did not conserve credits")
	}
	if w.links.links[10].OwnerID != 2 {
		t.Error("ownership not transferred")
	}
	if alice.SitesOwned != 0 || bob.SitesOwned != 1 {
		t.Errorf("sites owned = %d/%d, want 0/1", alice.SitesOwned, bob.SitesOwned)
	}
	if !alice.HasAchievement("first_trade_made") || !bob.HasAchievement("first_trade_made") {
		t.Error("trade achievements not unlocked")
	}
}

func TestTradeValidation(t *testing.T) {
	w := newTestWorld(t, nil,
		[]*models.Account{
			{ID: 1, Username: "alice", Credits: 30},
			{ID: 2, Username: "bob", Credits: 200},
		},
		[]*models.Link{{ID: 10, URL: "example.com", OwnerID: 1, Toll: 1, Level: 1}},
	)

	tests := []struct {
		name                     string
		seller, buyer, link, price int64
		want                     error
	}{
		{"negative price", 1, 2, 10, -1, ErrInvalidRange},
		{"price above cap", 1, 2, 10, 101, ErrInvalidRange},
		{"self trade", 1, 1, 10, 10, ErrInvalidRange},
		{"not the owner", 2, 1, 10, 10, ErrNotOwner},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := w.svc.Trade(context.Background(), tt.seller, tt.buyer, tt.link, tt.price); !errors.Is(err, tt.want) {
				t.Errorf("Trade() error = %v, want %v", err, tt.want)
			}
		})
	}
	if w.links.links[10].OwnerID != 1 {
		t.Error("ownership changed by rejected trades")
	}
}

func TestUpgrade(t *testing.T) {
	state := models.NewGlobalEconomy()
	state.Regime = models.RegimeInflationary
	state.InflationRate = 1.2

	w := newTestWorld(t, state,
		[]*models.Account{{ID: 1, Username: "alice", Credits: 20}},
		[]*models.Link{{ID: 10, URL: "example.com", OwnerID: 1, Toll: 5, Level: 5}},
	)

	cost, err := w.svc.Upgrade(context.Background(), 1, 10)
	if err != nil {
		t.Fatalf("Upgrade() error = %v", err)
	}
	if cost != 12 { // 5*2*1.2
		t.Errorf("cost = %d, want 12", cost)
	}

	link := w.links.links[10]
	if link.Level != 6 || link.Toll != 6 {
		t.Errorf("link = level %d toll %d, want 6/6", link.Level, link.Toll)
	}
	alice := w.accounts.accounts[1]
	if alice.Credits != 8 || alice.UpgradesMade != 1 {
		t.Errorf("credits=%d upgrades=%d, want 8/1", alice.Credits, alice.UpgradesMade)
	}
}

func TestUpgradeNotOwner(t *testing.T) {
	w := newTestWorld(t, nil,
		[]*models.Account{{ID: 1, Username: "alice", Credits: 20}},
		[]*models.Link{{ID: 10, URL: "example.com", OwnerID: 2, Toll: 1, Level: 1}},
	)

	if _, err := w.svc.Upgrade(context.Background(), 1, 10); !errors.Is(err, ErrNotOwner) {
		t.Fatalf("Upgrade() error = %v, want ErrNotOwner", err)
	}
}

func TestAddAndClaim(t *testing.T) {
	w := newTestWorld(t, nil,
		[]*models.Account{{ID: 1, Username: "alice"}},
		nil,
	)

	link, err := w.svc.AddAndClaim(context.Background(), 1, "mysite.example", "tech")
	if err != nil {
		t.Fatalf("AddAndClaim() error = %v", err)
	}
	if link.OwnerID != 1 || link.Level != 1 || link.Toll != 1 {
		t.Errorf("link = %+v", link)
	}
	alice := w.accounts.accounts[1]
	if alice.Points != 10 {
		t.Errorf("points = %d, want 10", alice.Points)
	}
	if alice.SitesOwned != 1 {
		t.Errorf("sites owned = %d, want 1", alice.SitesOwned)
	}
}

func TestContributeToFundMilestone(t *testing.T) {
	state := models.NewGlobalEconomy()
	state.GlobalFund = 99_990

	w := newTestWorld(t, state,
		[]*models.Account{
			{ID: 1, Username: "alice", Credits: 500},
			{ID: 2, Username: "bob", Credits: 0},
		},
		nil,
	)

	if err := w.svc.ContributeToFund(context.Background(), 1, 20); err != nil {
		t.Fatalf("ContributeToFund() error = %v", err)
	}

	if state.GlobalFund != 100_010 {
		t.Errorf("fund = %d, want 100010", state.GlobalFund)
	}
	if !state.Reward100K {
		t.Error("100k milestone flag not set")
	}
	// Everyone got the milestone reward; alice paid 20 and got 10 back.
	if w.accounts.accounts[1].Credits != 490 {
		t.Errorf("alice credits = %d, want 490", w.accounts.accounts[1].Credits)
	}
	if w.accounts.accounts[2].Credits != 10 {
		t.Errorf("bob credits = %d, want 10", w.accounts.accounts[2].Credits)
	}
	if len(w.notifier.broadcasts) != 1 || w.notifier.broadcasts[0] != "fund_milestone" {
		t.Errorf("broadcasts = %v", w.notifier.broadcasts)
	}

	// A second contribution does not re-trigger the milestone.
	if err := w.svc.ContributeToFund(context.Background(), 1, 20); err != nil {
		t.Fatalf("second ContributeToFund() error = %v", err)
	}
	if len(w.notifier.broadcasts) != 1 {
		t.Errorf("milestone re-triggered: %v", w.notifier.broadcasts)
	}
}

func TestRegisterAccountWithReferral(t *testing.T) {
	w := newTestWorld(t, nil,
		[]*models.Account{{ID: 1, Username: "alice", Credits: 0, ReferralCode: "ALICE-1"}},
		nil,
	)

	account, err := w.svc.RegisterAccount(context.Background(), "bob", "ALICE-1")
	if err != nil {
		t.Fatalf("RegisterAccount() error = %v", err)
	}
	if account.ReferredBy != 1 {
		t.Errorf("referred_by = %d, want 1", account.ReferredBy)
	}
	if account.ReferralCode == "" {
		t.Error("new account has no referral code")
	}
	if w.accounts.accounts[1].Credits != 100 {
		t.Errorf("referrer credits = %d, want 100", w.accounts.accounts[1].Credits)
	}
	if w.notifier.count("referral_bonus") != 1 {
		t.Error("referrer not notified")
	}
}

func TestRegisterAccountUnknownCode(t *testing.T) {
	w := newTestWorld(t, nil, nil, nil)

	account, err := w.svc.RegisterAccount(context.Background(), "bob", "NOPE")
	if err != nil {
		t.Fatalf("RegisterAccount() error = %v", err)
	}
	if account.ReferredBy != 0 {
		t.Errorf("referred_by = %d, want 0", account.ReferredBy)
	}
}

func TestCreateListing(t *testing.T) {
	w := newTestWorld(t, nil,
		[]*models.Account{{ID: 1, Username: "alice", Credits: 50}},
		[]*models.Link{{ID: 10, URL: "example.com", OwnerID: 1, Toll: 1, Level: 1}},
	)

	listing, err := w.svc.CreateListing(context.Background(), 1, 10, 60)
	if err != nil {
		t.Fatalf("CreateListing() error = %v", err)
	}
	if listing.Price != 60 {
		t.Errorf("price = %d", listing.Price)
	}
	// 5% of 60 = 3 credit fee.
	if w.accounts.accounts[1].Credits != 47 {
		t.Errorf("credits = %d, want 47", w.accounts.accounts[1].Credits)
	}
}

func TestCreateListingRejections(t *testing.T) {
	w := newTestWorld(t, nil,
		[]*models.Account{{ID: 1, Username: "alice", Credits: 50}},
		[]*models.Link{{ID: 10, URL: "example.com", OwnerID: 2, Toll: 1, Level: 1}},
	)

	if _, err := w.svc.CreateListing(context.Background(), 1, 10, 101); !errors.Is(err, ErrInvalidRange) {
		t.Errorf("over-cap price error = %v, want ErrInvalidRange", err)
	}
	if _, err := w.svc.CreateListing(context.Background(), 1, 10, 50); !errors.Is(err, ErrNotOwner) {
		t.Errorf("not-owner error = %v, want ErrNotOwner", err)
	}
}

func TestCreateListingKeepsFeeWithListing(t *testing.T) {
	w := newTestWorld(t, nil,
		[]*models.Account{{ID: 1, Username: "alice", Credits: 50}},
		[]*models.Link{{ID: 10, URL: "example.com", OwnerID: 1, Toll: 1, Level: 1}},
	)
	w.listings.createErr = errors.New("insert failed")

	if _, err := w.svc.CreateListing(context.Background(), 1, 10, 60); err == nil {
		t.Fatal("CreateListing() succeeded with failing store")
	}
	// The fee and the listing commit together: no listing, no fee.
	if w.accounts.accounts[1].Credits != 50 {
		t.Errorf("credits = %d, want 50", w.accounts.accounts[1].Credits)
	}
	if len(w.listings.listings) != 0 {
		t.Errorf("listings = %d, want 0", len(w.listings.listings))
	}
}

func TestCreateListingFeeUnaffordable(t *testing.T) {
	w := newTestWorld(t, nil,
		[]*models.Account{{ID: 1, Username: "alice", Credits: 2}},
		[]*models.Link{{ID: 10, URL: "example.com", OwnerID: 1, Toll: 1, Level: 1}},
	)

	if _, err := w.svc.CreateListing(context.Background(), 1, 10, 60); !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("CreateListing() error = %v, want ErrInsufficientFunds", err)
	}
	if len(w.listings.listings) != 0 {
		t.Error("listing created without the fee covered")
	}
}

func TestTransferCredits(t *testing.T) {
	w := newTestWorld(t, nil,
		[]*models.Account{
			{ID: 1, Username: "alice", Credits: 80},
			{ID: 2, Username: "bob", Credits: 20},
		},
		nil,
	)

	if err := w.svc.TransferCredits(context.Background(), 1, 2, 30); err != nil {
		t.Fatalf("TransferCredits() error = %v", err)
	}
	alice, bob := w.accounts.accounts[1], w.accounts.accounts[2]
	if alice.Credits != 50 || bob.Credits != 50 {
		t.Errorf("balances = %d/%d, want 50/50", alice.Credits, bob.Credits)
	}
	if alice.Credits+bob.Credits != 100 {
		t.Error("transfer did not conserve credits")
	}
	if w.notifier.count("credits_received") != 1 {
		t.Error("recipient not notified")
	}
}

func TestTransferCreditsValidation(t *testing.T) {
	w := newTestWorld(t, nil,
		[]*models.Account{
			{ID: 1, Username: "alice", Credits: 10},
			{ID: 2, Username: "bob", Credits: 0},
		},
		nil,
	)

	tests := []struct {
		name             string
		from, to, amount int64
		want             error
	}{
		{"zero amount", 1, 2, 0, ErrInvalidRange},
		{"negative amount", 1, 2, -5, ErrInvalidRange},
		{"self transfer", 1, 1, 5, ErrInvalidRange},
		{"short balance", 1, 2, 11, ErrInsufficientFunds},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := w.svc.TransferCredits(context.Background(), tt.from, tt.to, tt.amount); !errors.Is(err, tt.want) {
				t.Errorf("TransferCredits() error = %v, want %v", err, tt.want)
			}
		})
	}
	if w.accounts.accounts[1].Credits != 10 || w.accounts.accounts[2].Credits != 0 {
		t.Error("balances changed by rejected transfers")
	}
}

func TestVisitCompletesDailyMission(t *testing.T) {
	alice := &models.Account{ID: 1, Username: "alice", Credits: 50}
	alice.DailyStats.Visits = 9

	w := newTestWorld(t, nil,
		[]*models.Account{alice, {ID: 2, Username: "bob"}},
		[]*models.Link{{ID: 10, URL: "example.com", OwnerID: 2, Toll: 1, Level: 1}},
	)

	if _, err := w.svc.Visit(context.Background(), 1, 10); err != nil {
		t.Fatalf("Visit() error = %v", err)
	}
	// Tenth visit of the day: toll paid, then the 5 credit mission reward.
	if alice.Credits != 54 {
		t.Errorf("credits = %d, want 54", alice.Credits)
	}
	if !alice.HasMissionDone("visit_10_links") {
		t.Error("mission not recorded")
	}
	if w.notifier.count("mission_completed") != 1 {
		t.Errorf("mission notifications = %d, want 1", w.notifier.count("mission_completed"))
	}

	// The next visit does not pay the mission again.
	if _, err := w.svc.Visit(context.Background(), 1, 10); err != nil {
		t.Fatalf("second Visit() error = %v", err)
	}
	if alice.Credits != 53 {
		t.Errorf("credits after second visit = %d, want 53", alice.Credits)
	}
	if w.notifier.count("mission_completed") != 1 {
		t.Error("mission rewarded twice")
	}
}

func TestPurchaseAndRate(t *testing.T) {
	w := newTestWorld(t, nil,
		[]*models.Account{
			{ID: 1, Username: "alice", Credits: 50, SitesOwned: 1},
			{ID: 2, Username: "bob", Credits: 80},
		},
		[]*models.Link{{ID: 10, URL: "example.com", OwnerID: 1, Toll: 1, Level: 1}},
	)

	listing, err := w.svc.CreateListing(context.Background(), 1, 10, 40)
	if err != nil {
		t.Fatalf("CreateListing() error = %v", err)
	}

	record, err := w.svc.PurchaseListing(context.Background(), listing.ID, 2)
	if err != nil {
		t.Fatalf("PurchaseListing() error = %v", err)
	}
	if w.links.links[10].OwnerID != 2 {
		t.Error("link not transferred")
	}
	if w.accounts.accounts[2].Credits != 40 {
		t.Errorf("buyer credits = %d, want 40", w.accounts.accounts[2].Credits)
	}

	if err := w.svc.RateSeller(context.Background(), record.ID, 2, 4); err != nil {
		t.Fatalf("RateSeller() error = %v", err)
	}
	if got := w.accounts.accounts[1].Reputation; got != 4 {
		t.Errorf("reputation = %v, want 4", got)
	}

	if err := w.svc.RateSeller(context.Background(), record.ID, 2, 5); !errors.Is(err, ErrAlreadyProcessed) {
		t.Errorf("second rating error = %v, want ErrAlreadyProcessed", err)
	}
	if err := w.svc.RateSeller(context.Background(), record.ID, 1, 9); !errors.Is(err, ErrInvalidRange) {
		t.Errorf("out-of-range rating error = %v, want ErrInvalidRange", err)
	}
}

func TestLeaderboard(t *testing.T) {
	w := newTestWorld(t, nil,
		[]*models.Account{
			{ID: 1, Username: "alice", Credits: 10},
			{ID: 2, Username: "bob", Credits: 30},
			{ID: 3, Username: "carol", Credits: 20},
		},
		nil,
	)

	top, err := w.svc.Leaderboard(context.Background(), "credits", 2)
	if err != nil {
		t.Fatalf("Leaderboard() error = %v", err)
	}
	if len(top) != 2 || top[0].ID != 2 || top[1].ID != 3 {
		t.Errorf("leaderboard = %v", top)
	}

	if _, err := w.svc.Leaderboard(context.Background(), "bogus", 2); !errors.Is(err, ErrInvalidRange) {
		t.Errorf("bogus metric error = %v, want ErrInvalidRange", err)
	}
}

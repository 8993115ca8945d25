// Package migration imports a legacy MongoDB deployment of the game
// (the original Node app) into Postgres. Mongo ObjectIDs are replaced
// by snowflake ids; an id map built while importing accounts keeps link
// ownership and tournament entries pointing at the right rows.
package migration

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/uptrace/bun"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/wwwopoly/wwwopoly/wwwopoly/database/models"
)

type Migrator struct {
	pgDB    *bun.DB
	mongoDB *mongo.Database

	batchSize int
	log       *slog.Logger

	// legacy ObjectID hex -> new snowflake id
	accountIDs map[string]int64

	stats Stats
}

// Stats counts what a run imported and skipped, per collection.
type Stats struct {
	Imported map[string]int
	Skipped  map[string]int
	Started  time.Time
	Finished time.Time
}

func NewMigrator(pgDB *bun.DB, client *mongo.Client, dbName string, log *slog.Logger) *Migrator {
	return &Migrator{
		pgDB:       pgDB,
		mongoDB:    client.Database(dbName),
		batchSize:  500,
		log:        log,
		accountIDs: make(map[string]int64),
		stats: Stats{
			Imported: make(map[string]int),
			Skipped:  make(map[string]int),
		},
	}
}

func (m *Migrator) SetBatchSize(size int) {
	if size > 0 {
		m.batchSize = size
	}
}

func (m *Migrator) Stats() Stats {
	return m.stats
}

// MigrateAll runs every import step in dependency order: accounts
// before links and tournaments so owner references resolve.
func (m *Migrator) MigrateAll(ctx context.Context) error {
	m.stats.Started = time.Now()

	steps := []struct {
		name string
		fn   func(context.Context) error
	}{
		{"users", m.MigrateAccounts},
		{"links", m.MigrateLinks},
		{"globaleconomies", m.MigrateGlobalEconomy},
		{"industryevents", m.MigrateIndustryEvents},
		{"tournaments", m.MigrateTournaments},
	}

	for _, step := range steps {
		m.log.InfoContext(ctx, "migration step starting",
			slog.String("type", "job"),
			slog.String("step", step.name),
		)
		if err := step.fn(ctx); err != nil {
			return fmt.Errorf("migration failed at step %s: %w", step.name, err)
		}
		m.log.InfoContext(ctx, "migration step completed",
			slog.String("type", "job"),
			slog.String("step", step.name),
			slog.Int("imported", m.stats.Imported[step.name]),
			slog.Int("skipped", m.stats.Skipped[step.name]),
		)
	}

	m.stats.Finished = time.Now()
	m.log.InfoContext(ctx, "migration completed",
		slog.String("type", "job"),
		slog.Duration("took", m.stats.Finished.Sub(m.stats.Started)),
	)
	return nil
}

// Legacy document shapes, matching the Node app's Mongoose schemas.

type mongoAchievement struct {
	AchievementID string    `bson:"achievementId"`
	UnlockedAt    time.Time `bson:"unlockedAt"`
}

type mongoUser struct {
	ID           primitive.ObjectID `bson:"_id"`
	Username     string             `bson:"username"`
	Credits      int64              `bson:"credits"`
	Points       int64              `bson:"points"`
	TradesCount  int64              `bson:"tradesCount"`
	SitesOwned   int64              `bson:"sitesOwned"`
	SitesVisited int64              `bson:"sitesVisited"`
	CreditsSpent int64              `bson:"creditsSpent"`
	UpgradesMade int64              `bson:"upgradesMade"`
	Achievements []mongoAchievement `bson:"achievements"`
	CreatedAt    time.Time          `bson:"createdAt"`
}

type mongoLink struct {
	ID          primitive.ObjectID  `bson:"_id"`
	URL         string              `bson:"url"`
	Owner       *primitive.ObjectID `bson:"owner"`
	Toll        int64               `bson:"toll"`
	Level       int                 `bson:"level"`
	Category    string              `bson:"category"`
	DailyVisits int64               `bson:"dailyVisits"`
	CreatedAt   time.Time           `bson:"createdAt"`
}

type mongoGlobalEconomy struct {
	TotalCreditsInCirculation int64     `bson:"totalCreditsInCirculation"`
	TotalTrades               int64     `bson:"totalTrades"`
	TotalLinksClaimed         int64     `bson:"totalLinksClaimed"`
	AverageTollRate           float64   `bson:"averageTollRate"`
	GlobalFund                int64     `bson:"globalFund"`
	LastEventTrigger          time.Time `bson:"lastEventTrigger"`
}

type mongoIndustryEvent struct {
	Category         string    `bson:"category"`
	EffectType       string    `bson:"effectType"`
	EffectMultiplier float64   `bson:"effectMultiplier"`
	StartDate        time.Time `bson:"startDate"`
	EndDate          time.Time `bson:"endDate"`
	IsActive         bool      `bson:"isActive"`
	Description      string    `bson:"description"`
}

type mongoTournamentEntry struct {
	UserID primitive.ObjectID `bson:"userId"`
	Score  int64              `bson:"score"`
}

type mongoTournament struct {
	Metric             string                 `bson:"metric"`
	StartDate          time.Time              `bson:"startDate"`
	EndDate            time.Time              `bson:"endDate"`
	TopPlayers         []mongoTournamentEntry `bson:"topPlayers"`
	RewardsDistributed bool                   `bson:"rewardsDistributed"`
}

func (m *Migrator) MigrateAccounts(ctx context.Context) error {
	cur, err := m.mongoDB.Collection("users").Find(ctx, bson.D{})
	if err != nil {
		return fmt.Errorf("failed to query users: %w", err)
	}
	defer cur.Close(ctx)

	var batch []*models.Account
	for cur.Next(ctx) {
		var doc mongoUser
		if err := cur.Decode(&doc); err != nil {
			m.stats.Skipped["users"]++
			continue
		}
		if doc.Username == "" {
			m.stats.Skipped["users"]++
			continue
		}

		id := int64(snowflake.New(time.Now()))
		m.accountIDs[doc.ID.Hex()] = id

		account := &models.Account{
			ID:           id,
			Username:     doc.Username,
			Credits:      doc.Credits,
			Points:       doc.Points,
			SitesOwned:   doc.SitesOwned,
			SitesVisited: doc.SitesVisited,
			TradesCount:  doc.TradesCount,
			CreditsSpent: doc.CreditsSpent,
			UpgradesMade: doc.UpgradesMade,
			CreatedAt:    doc.CreatedAt,
			UpdatedAt:    time.Now(),
		}
		for _, unlock := range doc.Achievements {
			account.Achievements = append(account.Achievements, models.AchievementUnlock{
				ID:         unlock.AchievementID,
				UnlockedAt: unlock.UnlockedAt,
			})
		}

		batch = append(batch, account)
		if len(batch) >= m.batchSize {
			if err := m.flushAccounts(ctx, batch); err != nil {
				return err
			}
			batch = batch[:0]
		}
	}
	if err := cur.Err(); err != nil {
		return err
	}
	if len(batch) > 0 {
		return m.flushAccounts(ctx, batch)
	}
	return nil
}

func (m *Migrator) flushAccounts(ctx context.Context, accounts []*models.Account) error {
	_, err := m.pgDB.NewInsert().
		Model(&accounts).
		On("CONFLICT (username) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to insert accounts: %w", err)
	}
	m.stats.Imported["users"] += len(accounts)
	return nil
}

func (m *Migrator) MigrateLinks(ctx context.Context) error {
	cur, err := m.mongoDB.Collection("links").Find(ctx, bson.D{})
	if err != nil {
		return fmt.Errorf("failed to query links: %w", err)
	}
	defer cur.Close(ctx)

	var batch []*models.Link
	for cur.Next(ctx) {
		var doc mongoLink
		if err := cur.Decode(&doc); err != nil {
			m.stats.Skipped["links"]++
			continue
		}
		if doc.URL == "" {
			m.stats.Skipped["links"]++
			continue
		}

		link := &models.Link{
			ID:          int64(snowflake.New(time.Now())),
			URL:         doc.URL,
			Toll:        doc.Toll,
			Level:       doc.Level,
			Category:    doc.Category,
			DailyVisits: doc.DailyVisits,
			CreatedAt:   doc.CreatedAt,
			UpdatedAt:   time.Now(),
		}
		if link.Level < 1 {
			link.Level = 1
		}
		if link.Toll < 1 {
			link.Toll = int64(link.Level)
		}
		if doc.Owner != nil {
			ownerID, ok := m.accountIDs[doc.Owner.Hex()]
			if !ok {
				// Owner never imported: treat as unowned instead of
				// pointing at a dangling account.
				m.log.WarnContext(ctx, "link owner not found, importing unowned",
					slog.String("url", doc.URL),
					slog.String("legacy_owner", doc.Owner.Hex()),
				)
			} else {
				link.OwnerID = ownerID
			}
		}

		batch = append(batch, link)
		if len(batch) >= m.batchSize {
			if err := m.flushLinks(ctx, batch); err != nil {
				return err
			}
			batch = batch[:0]
		}
	}
	if err := cur.Err(); err != nil {
		return err
	}
	if len(batch) > 0 {
		return m.flushLinks(ctx, batch)
	}
	return nil
}

func (m *Migrator) flushLinks(ctx context.Context, links []*models.Link) error {
	_, err := m.pgDB.NewInsert().
		Model(&links).
		On("CONFLICT (url) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to insert links: %w", err)
	}
	m.stats.Imported["links"] += len(links)
	return nil
}

// MigrateGlobalEconomy folds the legacy aggregate document into the
// Postgres singleton row.
func (m *Migrator) MigrateGlobalEconomy(ctx context.Context) error {
	var doc mongoGlobalEconomy
	err := m.mongoDB.Collection("globaleconomies").FindOne(ctx, bson.D{}).Decode(&doc)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			m.stats.Skipped["globaleconomies"]++
			return nil
		}
		return fmt.Errorf("failed to query global economy: %w", err)
	}

	_, err = m.pgDB.NewUpdate().
		Model((*models.GlobalEconomy)(nil)).
		Set("total_credits_in_circulation = ?", doc.TotalCreditsInCirculation).
		Set("total_trades = ?", doc.TotalTrades).
		Set("total_links_claimed = ?", doc.TotalLinksClaimed).
		Set("average_toll_rate = ?", doc.AverageTollRate).
		Set("global_fund = ?", doc.GlobalFund).
		Set("last_event_trigger = ?", doc.LastEventTrigger).
		Set("updated_at = ?", time.Now()).
		Where("id = ?", models.GlobalEconomySingletonID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to update global economy: %w", err)
	}
	m.stats.Imported["globaleconomies"]++
	return nil
}

func (m *Migrator) MigrateIndustryEvents(ctx context.Context) error {
	cur, err := m.mongoDB.Collection("industryevents").Find(ctx, bson.D{})
	if err != nil {
		return fmt.Errorf("failed to query industry events: %w", err)
	}
	defer cur.Close(ctx)

	var batch []*models.IndustryEvent
	for cur.Next(ctx) {
		var doc mongoIndustryEvent
		if err := cur.Decode(&doc); err != nil {
			m.stats.Skipped["industryevents"]++
			continue
		}

		effect := models.EffectBoost
		if doc.EffectMultiplier < 1 {
			effect = models.EffectPenalty
		}
		batch = append(batch, &models.IndustryEvent{
			ID:               int64(snowflake.New(time.Now())),
			Category:         doc.Category,
			EffectType:       effect,
			EffectMultiplier: doc.EffectMultiplier,
			StartDate:        doc.StartDate,
			EndDate:          doc.EndDate,
			IsActive:         doc.IsActive && doc.EndDate.After(time.Now()),
			Description:      doc.Description,
			CreatedAt:        doc.StartDate,
			UpdatedAt:        time.Now(),
		})
	}
	if err := cur.Err(); err != nil {
		return err
	}
	if len(batch) == 0 {
		return nil
	}

	_, err = m.pgDB.NewInsert().Model(&batch).Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to insert industry events: %w", err)
	}
	m.stats.Imported["industryevents"] += len(batch)
	return nil
}

func (m *Migrator) MigrateTournaments(ctx context.Context) error {
	cur, err := m.mongoDB.Collection("tournaments").Find(ctx, bson.D{})
	if err != nil {
		return fmt.Errorf("failed to query tournaments: %w", err)
	}
	defer cur.Close(ctx)

	var batch []*models.Tournament
	for cur.Next(ctx) {
		var doc mongoTournament
		if err := cur.Decode(&doc); err != nil {
			m.stats.Skipped["tournaments"]++
			continue
		}

		tournament := &models.Tournament{
			ID:                 int64(snowflake.New(time.Now())),
			Metric:             normalizeMetric(doc.Metric),
			StartDate:          doc.StartDate,
			EndDate:            doc.EndDate,
			RewardsDistributed: doc.RewardsDistributed,
			CreatedAt:          doc.StartDate,
			UpdatedAt:          time.Now(),
		}
		for _, entry := range doc.TopPlayers {
			accountID, ok := m.accountIDs[entry.UserID.Hex()]
			if !ok {
				continue
			}
			tournament.TopPlayers = append(tournament.TopPlayers, models.TournamentEntry{
				AccountID:     accountID,
				Score:         entry.Score,
				FirstScoredAt: doc.StartDate,
			})
		}

		batch = append(batch, tournament)
	}
	if err := cur.Err(); err != nil {
		return err
	}
	if len(batch) == 0 {
		return nil
	}

	_, err = m.pgDB.NewInsert().Model(&batch).Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to insert tournaments: %w", err)
	}
	m.stats.Imported["tournaments"] += len(batch)
	return nil
}

// normalizeMetric maps the legacy camelCase metric names onto the
// snake_case ones the tournament service tracks.
func normalizeMetric(legacy string) string {
	switch legacy {
	case "sitesVisited":
		return models.MetricSitesVisited
	case "tollsCollected":
		return models.MetricTollsCollected
	case "tradesMade", "tradesCount":
		return models.MetricTradesMade
	default:
		return legacy
	}
}

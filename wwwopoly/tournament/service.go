// Package tournament runs the weekly tournament lifecycle: starting a
// tournament over one of the tracked metrics, feeding it scores from
// economy operations, and paying out the podium when it ends.
package tournament

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sort"
	"time"

	"github.com/wwwopoly/wwwopoly/wwwopoly/database/models"
	"github.com/wwwopoly/wwwopoly/wwwopoly/database/repositories"
	"github.com/wwwopoly/wwwopoly/wwwopoly/notifier"
)

// DefaultDuration is how long a tournament accepts scores.
const DefaultDuration = 7 * 24 * time.Hour

// Podium rewards, first place first.
var podiumRewards = []int64{300, 200, 100}

var ErrTournamentRunning = errors.New("a tournament is already running")
var ErrUnknownMetric = errors.New("unknown tournament metric")

var metrics = []string{
	models.MetricSitesVisited,
	models.MetricTollsCollected,
	models.MetricTradesMade,
}

type Service struct {
	tournaments repositories.TournamentRepository
	notifier    notifier.Notifier
	log         *slog.Logger
}

func NewService(tournaments repositories.TournamentRepository, n notifier.Notifier, log *slog.Logger) *Service {
	return &Service{
		tournaments: tournaments,
		notifier:    n,
		log:         log,
	}
}

// StartNew opens a tournament over metric that runs for DefaultDuration
// starting at now. Only one tournament accepts scores at a time.
func (s *Service) StartNew(ctx context.Context, metric string, now time.Time) (*models.Tournament, error) {
	if !validMetric(metric) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownMetric, metric)
	}

	current, err := s.tournaments.GetCurrent(ctx, now)
	if err != nil && !errors.Is(err, repositories.ErrNotFound) {
		return nil, fmt.Errorf("failed to check current tournament: %w", err)
	}
	if current != nil {
		return nil, ErrTournamentRunning
	}

	tournament := &models.Tournament{
		Metric:    metric,
		StartDate: now,
		EndDate:   now.Add(DefaultDuration),
	}
	if err := s.tournaments.Create(ctx, tournament); err != nil {
		return nil, err
	}

	s.log.InfoContext(ctx, "tournament started",
		slog.String("type", "op"),
		slog.Int64("tournament_id", tournament.ID),
		slog.String("metric", metric),
		slog.Time("ends", tournament.EndDate),
	)
	s.notifier.Broadcast(ctx, "tournament_started",
		fmt.Sprintf("A new tournament is on: most %s over the next week wins!", metric))

	return tournament, nil
}

// RecordScore credits one point to accountID in the current tournament,
// if one is running and tracks metric. Scoring is best-effort from the
// caller's perspective: a missing or ended tournament is not an error.
func (s *Service) RecordScore(ctx context.Context, metric string, accountID int64, now time.Time) error {
	current, err := s.tournaments.GetCurrent(ctx, now)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("failed to load current tournament: %w", err)
	}
	if current.Metric != metric {
		return nil
	}

	err = s.tournaments.UpsertScore(ctx, current.ID, accountID, now)
	if errors.Is(err, repositories.ErrAlreadyProcessed) {
		// Ended between the read and the write.
		return nil
	}
	return err
}

// EndAndReward settles any tournament whose end date has passed: ranks
// the entries, pays the podium and notifies the winners. Rewards are
// paid at most once per tournament.
func (s *Service) EndAndReward(ctx context.Context, now time.Time) error {
	ended, err := s.tournaments.GetEndedUnrewarded(ctx, now)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("failed to find ended tournament: %w", err)
	}

	winners := Rank(ended.TopPlayers)
	payouts := make([]repositories.TournamentPayout, 0, len(podiumRewards))
	for i, entry := range winners {
		if i >= len(podiumRewards) {
			break
		}
		payouts = append(payouts, repositories.TournamentPayout{
			AccountID: entry.AccountID,
			Amount:    podiumRewards[i],
		})
	}

	err = s.tournaments.DistributeRewards(ctx, ended.ID, payouts)
	if errors.Is(err, repositories.ErrAlreadyProcessed) {
		return nil
	}
	if err != nil {
		return err
	}

	s.log.InfoContext(ctx, "tournament settled",
		slog.String("type", "job"),
		slog.Int64("tournament_id", ended.ID),
		slog.String("metric", ended.Metric),
		slog.Int("winners", len(payouts)),
	)
	for i, payout := range payouts {
		s.notifier.Notify(ctx, payout.AccountID, "tournament_reward",
			fmt.Sprintf("You placed #%d in the %s tournament and won %d credits!", i+1, ended.Metric, payout.Amount))
	}
	return nil
}

// EnsureRunning starts a tournament over a randomly drawn metric if
// none is currently accepting scores.
func (s *Service) EnsureRunning(ctx context.Context, now time.Time) error {
	_, err := s.StartNew(ctx, metrics[rand.Intn(len(metrics))], now)
	if errors.Is(err, ErrTournamentRunning) {
		return nil
	}
	return err
}

// Rank orders entries for payout: highest score first, ties broken by
// who reached the board first, then by account id.
func Rank(entries []models.TournamentEntry) []models.TournamentEntry {
	ranked := make([]models.TournamentEntry, len(entries))
	copy(ranked, entries)
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		if !ranked[i].FirstScoredAt.Equal(ranked[j].FirstScoredAt) {
			return ranked[i].FirstScoredAt.Before(ranked[j].FirstScoredAt)
		}
		return ranked[i].AccountID < ranked[j].AccountID
	})
	return ranked
}

func validMetric(metric string) bool {
	for _, m := range metrics {
		if m == metric {
			return true
		}
	}
	return false
}

package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/wwwopoly/wwwopoly/wwwopoly"
	"github.com/wwwopoly/wwwopoly/wwwopoly/database"
	"github.com/wwwopoly/wwwopoly/wwwopoly/database/repositories"
	"github.com/wwwopoly/wwwopoly/wwwopoly/economy"
	"github.com/wwwopoly/wwwopoly/wwwopoly/logger"
	"github.com/wwwopoly/wwwopoly/wwwopoly/notifier"
	"github.com/wwwopoly/wwwopoly/wwwopoly/scheduler"
	"github.com/wwwopoly/wwwopoly/wwwopoly/tournament"
)

var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	path := flag.String("config", "config.toml", "path to config")
	flag.Parse()

	cfg, err := wwwopoly.LoadConfig(*path)
	if err != nil {
		slog.SetDefault(slog.New(logger.NewHandler(slog.LevelInfo)))
		slog.Error("Failed to load configuration", slog.Any("error", err))
		os.Exit(-1)
	}
	slog.SetDefault(slog.New(logger.NewHandler(cfg.Log.Level)))

	slog.Info("Starting WWWOpoly economy engine",
		slog.String("version", version),
		slog.String("commit", commit))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	slog.Info("Initializing database connection...")
	dbStartTime := time.Now()

	db, err := database.New(ctx, cfg.DB)
	if err != nil {
		slog.Error("Database connection failed",
			slog.String("error", err.Error()),
			slog.Duration("attempted_for", time.Since(dbStartTime)))
		os.Exit(-1)
	}
	defer db.Close()

	slog.Info("Database connected successfully",
		slog.String("database", cfg.DB.Database),
		slog.Duration("took", time.Since(dbStartTime)))

	if err := db.InitializeSchema(ctx); err != nil {
		slog.Error("Failed to initialize database schema",
			slog.String("error", err.Error()))
		os.Exit(-1)
	}
	slog.Info("Database schema initialized successfully")

	engine := wwwopoly.New(*cfg, version, commit)
	engine.DB = db

	// Repositories
	bunDB := db.BunDB()
	engine.AccountRepository = repositories.NewAccountRepository(bunDB)
	engine.LinkRepository = repositories.NewLinkRepository(bunDB)
	engine.ListingRepository = repositories.NewListingRepository(bunDB)
	engine.LedgerRepository = repositories.NewLedgerRepository(bunDB)
	engine.EconomyRepository = repositories.NewEconomyRepository(bunDB)
	engine.EventRepository = repositories.NewEventRepository(bunDB)
	engine.TournamentRepository = repositories.NewTournamentRepository(bunDB)

	// Services
	engine.Notifier = notifier.NewLogNotifier(slog.Default())

	engine.Pricing, err = economy.NewPricing(engine.EconomyRepository, engine.EventRepository)
	if err != nil {
		slog.Error("Failed to initialize pricing", slog.Any("error", err))
		os.Exit(-1)
	}

	engine.Tournaments = tournament.NewService(engine.TournamentRepository, engine.Notifier, slog.Default())

	ecoCfg := cfg.EconomySettings()
	engine.Economy = economy.NewService(ecoCfg, engine.AccountRepository, engine.LinkRepository,
		engine.ListingRepository, engine.LedgerRepository, engine.Pricing,
		engine.Tournaments, engine.Notifier, slog.Default())

	engine.Reconciler = economy.NewReconciler(ecoCfg, engine.AccountRepository, engine.LinkRepository,
		engine.EconomyRepository, engine.EventRepository, engine.LedgerRepository,
		engine.Pricing, engine.Notifier, slog.Default())

	// Scheduled jobs
	sched := scheduler.New(slog.Default())
	engine.Scheduler = sched
	sched.Every("economy-daily", cfg.Jobs.DailyInterval, engine.Reconciler.RunDaily)
	sched.Every("event-expiry", cfg.Jobs.HourlyInterval, engine.Reconciler.RunHourly)
	sched.Every("maintenance-sweep", cfg.Jobs.DailyInterval, engine.Reconciler.RunMaintenanceSweep)
	sched.Every("tournament-settle", cfg.Jobs.HourlyInterval, func(ctx context.Context, now time.Time) error {
		if err := engine.Tournaments.EndAndReward(ctx, now); err != nil {
			return err
		}
		return engine.Tournaments.EnsureRunning(ctx, now)
	})

	slog.Info("Economy engine is now running. Press CTRL-C to exit.",
		slog.String("type", "sys"))

	s := make(chan os.Signal, 1)
	signal.Notify(s, syscall.SIGINT, syscall.SIGTERM, os.Interrupt)
	<-s

	slog.Info("Shutting down...", slog.String("type", "sys"))
	if err := sched.Shutdown(cfg.Jobs.ShutdownTimeout); err != nil {
		slog.Warn("Scheduler did not drain in time", slog.Any("error", err))
	}
}

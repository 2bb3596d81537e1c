package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"github.com/clubsphere/movement-score/internal/app"
	"github.com/clubsphere/movement-score/internal/config"
	"github.com/clubsphere/movement-score/internal/db"
	"github.com/clubsphere/movement-score/internal/jobs"
	"github.com/clubsphere/movement-score/internal/logging"
	"github.com/clubsphere/movement-score/internal/observability"
	"github.com/clubsphere/movement-score/internal/reconcile"
	"github.com/clubsphere/movement-score/internal/score"
	"github.com/clubsphere/movement-score/internal/sources"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file, using process environment")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	lg, err := logging.Init(cfg.LogLevel, cfg.Env)
	if err != nil {
		log.Fatalf("logging: %v", err)
	}
	defer lg.Closer()

	flushSentry, err := observability.InitSentry(cfg.SentryDSN, cfg.Env, "movementd")
	if err != nil {
		lg.Base.Warn("sentry init failed", zap.Error(err))
	}
	defer flushSentry()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	database, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		lg.Base.Fatal("db connect failed", zap.Error(err))
	}
	defer func() { _ = database.Close() }()

	if err := db.Migrate(database); err != nil {
		lg.Base.Fatal("migrations failed", zap.Error(err))
	}
	if err := db.SeedCatalog(ctx, database); err != nil {
		lg.Base.Fatal("catalog seed failed", zap.Error(err))
	}

	engine := score.NewEngine(database, lg.Base, cfg.OverallCeiling)
	facts := &sources.SQLFacts{DB: database}

	rec := &reconcile.Reconciler{
		DB:          database,
		Log:         lg.Base,
		Activities:  facts,
		Evidences:   facts,
		Memberships: facts,
		Attendance:  &sources.Attendance{DB: database, Engine: engine, Log: lg.Base},
		Evidence:    &sources.Evidence{DB: database, Engine: engine, Log: lg.Base},
		Roles:       &sources.Roles{DB: database, Engine: engine, Log: lg.Base, Loc: cfg.Location},
		Clubs:       &sources.ClubCompletion{DB: database, Engine: engine, Log: lg.Base, Loc: cfg.Location},
	}

	app.StartHTTP(ctx, cfg.HTTPAddr, database)

	runner := jobs.New(ctx, lg.Base)
	runner.Every(cfg.ReconcileInterval, "reconcile", rec.Run)

	lg.Base.Info("movementd started",
		zap.String("http", cfg.HTTPAddr),
		zap.Duration("reconcile_interval", cfg.ReconcileInterval),
		zap.Int("overall_ceiling", cfg.OverallCeiling))

	<-ctx.Done()
	lg.Base.Info("shutting down")
}

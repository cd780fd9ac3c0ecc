package main

import (
	"context"
	"database/sql"
	"os/signal"
	"syscall"
	"time"

	"github.com/mvieira/go-cart-api/internal/config"
	"github.com/mvieira/go-cart-api/internal/database"
	"github.com/mvieira/go-cart-api/internal/logger"
	"github.com/mvieira/go-cart-api/internal/store"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// The sweeper runs apart from the API process. Two cron entries drive the
// cart lifecycle: one flags carts abandoned after the inactivity window, the
// other deletes abandoned carts past the retention window. Both jobs are
// idempotent, so a failed run is simply retried on the next schedule.
func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	log, err := logger.New(cfg.LogMode)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	db, err := database.NewConnection(&cfg.Database)
	if err != nil {
		log.Fatalw("connect to database", "error", err)
	}
	defer db.Close()

	c := cron.New()

	_, err = c.AddFunc(cfg.Sweeper.MarkSchedule, func() {
		markAbandoned(db, log, cfg.Sweeper)
	})
	if err != nil {
		log.Fatalw("schedule mark job", "error", err)
	}

	_, err = c.AddFunc(cfg.Sweeper.RemoveSchedule, func() {
		removeAbandoned(db, log, cfg.Sweeper)
	})
	if err != nil {
		log.Fatalw("schedule remove job", "error", err)
	}

	c.Start()
	log.Infow("sweeper started",
		"mark_schedule", cfg.Sweeper.MarkSchedule,
		"remove_schedule", cfg.Sweeper.RemoveSchedule,
		"abandon_after", cfg.Sweeper.AbandonAfter,
		"remove_after", cfg.Sweeper.RemoveAfter,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	log.Infow("sweeper stopping")
	<-c.Stop().Done()
}

func markAbandoned(db *sql.DB, log *zap.SugaredLogger, cfg config.SweeperConfig) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	cutoff := time.Now().Add(-cfg.AbandonAfter)
	marked, err := store.MarkAbandonedCarts(ctx, db, cutoff, cfg.BatchSize)
	if err != nil {
		log.Errorw("mark abandoned carts", "error", err, "marked", marked)
		return
	}
	if marked > 0 {
		log.Infow("marked abandoned carts", "count", marked)
	}
}

func removeAbandoned(db *sql.DB, log *zap.SugaredLogger, cfg config.SweeperConfig) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	cutoff := time.Now().Add(-cfg.RemoveAfter)
	removed, err := store.RemoveAbandonedCarts(ctx, db, cutoff, cfg.BatchSize)
	if err != nil {
		log.Errorw("remove abandoned carts", "error", err, "removed", removed)
		return
	}
	if removed > 0 {
		log.Infow("removed abandoned carts", "count", removed)
	}
}

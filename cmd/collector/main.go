package main

import (
	"context"
	"time"

	"ratecollector/config"
	"ratecollector/internal/pipeline"
	"ratecollector/logger"
	"ratecollector/pkg/sjc"
	"ratecollector/pkg/storage/postgres"
	"ratecollector/pkg/vcb"

	"go.uber.org/zap"
)

func main() {
	// viper config
	cfg := config.Load()

	// zap logger
	log, err := logger.New(cfg.Log)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer log.Sync()

	// Connect, create the database if needed and migrate. No store means no
	// run at all; this is the one fatal failure mode.
	store, err := postgres.InitializeAndMigrate(cfg.Postgres, cfg.Log.Environment, true, log)
	if err != nil {
		log.Fatal("failed to initialize store", zap.Error(err))
	}
	defer store.Close()

	fxFeed := vcb.NewClient(cfg.VCB.BaseURL, cfg.VCB.Timeout, log)
	goldFeed := sjc.NewClient(cfg.SJC.BaseURL, cfg.SJC.BranchID, cfg.SJC.Timeout, log)

	p := pipeline.New(fxFeed, goldFeed, store, log)

	runOnce(p, log)

	// Zero interval means a single pass (cron-friendly); otherwise keep
	// collecting on the configured cadence.
	if cfg.Schedule.Interval <= 0 {
		return
	}

	ticker := time.NewTicker(cfg.Schedule.Interval)
	defer ticker.Stop()

	for range ticker.C {
		runOnce(p, log)
	}
}

func runOnce(p *pipeline.Pipeline, log *zap.Logger) {
	started := time.Now()
	sum := p.Run(context.Background())
	log.Info("collection run finished",
		zap.Duration("took", time.Since(started)),
		zap.Int("fx_persisted", sum.FXPersisted),
		zap.Int("fx_skipped", sum.FXSkipped),
		zap.Bool("fx_batch_failed", sum.FXBatchFailed),
		zap.Int("gold_persisted", sum.GoldPersisted),
		zap.Int("gold_skipped", sum.GoldSkipped),
		zap.Bool("gold_batch_failed", sum.GoldBatchFailed))
}

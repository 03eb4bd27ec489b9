// Package main runs the background worker: session archive uploads to S3 and the reconciler
// that completes recording sessions orphaned by a server restart.
package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/medibridge/telehealth/config"
	"github.com/medibridge/telehealth/internal/presence"
	"github.com/medibridge/telehealth/internal/sessions"
	"github.com/medibridge/telehealth/internal/sessions/sqlite"
	"github.com/medibridge/telehealth/internal/worker"
	"github.com/medibridge/telehealth/pkg/database"
	"github.com/medibridge/telehealth/pkg/queue"
	"github.com/medibridge/telehealth/pkg/redis"
	"github.com/medibridge/telehealth/pkg/storage"
)

func main() {
	cfg, cfgErr := config.Load()
	level := "info"
	if cfgErr == nil {
		level = cfg.Server.LogLevel
	}
	logger := newLogger(level)
	defer logger.Sync()
	if cfgErr != nil {
		logger.Fatal("load config", zap.Error(cfgErr))
	}

	ctx := context.Background()

	var sessionStore sessions.Store
	switch cfg.Sessions.Store {
	case config.SessionStorePostgres:
		pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), cfg.Database.MaxConns, logger)
		if err != nil {
			logger.Fatal("database", zap.Error(err))
		}
		defer pool.Close()
		sessionStore = sessions.NewRepository(pool)
	case config.SessionStoreSQLite:
		store, err := sqlite.Open(ctx, cfg.Sessions.SQLitePath)
		if err != nil {
			logger.Fatal("sqlite", zap.Error(err))
		}
		defer store.Close()
		sessionStore = store
	default:
		logger.Fatal("worker needs a durable session store", zap.String("store", cfg.Sessions.Store))
	}
	tracker := sessions.NewTracker(sessionStore, logger)

	rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()
	jobQueue := queue.NewQueue(rdb.Client, logger)
	tracker.SetArchiver(jobQueue)

	workerCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var wg sync.WaitGroup

	if cfg.AWS.Region != "" {
		s3Client, err := storage.NewS3(ctx, storage.S3Config{
			Region:               cfg.AWS.Region,
			AccessKeyID:          cfg.AWS.AccessKeyID,
			SecretAccessKey:      cfg.AWS.SecretAccessKey,
			ArchiveBucket:        cfg.AWS.ArchiveBucket,
			PresignExpireMinutes: cfg.AWS.PresignExpireMinutes,
		}, logger)
		if err != nil {
			logger.Fatal("s3", zap.Error(err))
		}
		processor := worker.NewArchiveProcessor(tracker, s3Client, jobQueue, logger)
		wg.Add(1)
		go func() {
			defer wg.Done()
			processor.Run(workerCtx)
		}()
		logger.Info("archive worker started", zap.String("bucket", s3Client.ArchiveBucket()))
	} else {
		logger.Warn("AWS_REGION not set; archive jobs stay queued")
	}

	reconciler := worker.NewReconciler(tracker, presence.NewMirror(rdb.Client, logger),
		cfg.Reconcile.Interval, cfg.Reconcile.StaleAfter, logger)
	wg.Add(1)
	go func() {
		defer wg.Done()
		reconciler.Run(workerCtx)
	}()
	logger.Info("reconciler started", zap.Duration("interval", cfg.Reconcile.Interval), zap.Duration("stale_after", cfg.Reconcile.StaleAfter))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	cancel()
	wg.Wait()
	logger.Info("worker stopped")
}

func newLogger(level string) *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	if lvl, err := zapcore.ParseLevel(level); err == nil {
		config.Level = zap.NewAtomicLevelAt(lvl)
	}
	logger, _ := config.Build()
	return logger
}

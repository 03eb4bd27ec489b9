// Package main runs the telemedicine signaling server: REST API, WebSocket relay and
// graceful shutdown.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/medibridge/telehealth/config"
	"github.com/medibridge/telehealth/internal/attendance"
	"github.com/medibridge/telehealth/internal/auth"
	"github.com/medibridge/telehealth/internal/consultations"
	"github.com/medibridge/telehealth/internal/middleware"
	"github.com/medibridge/telehealth/internal/presence"
	"github.com/medibridge/telehealth/internal/sessions"
	"github.com/medibridge/telehealth/internal/sessions/sqlite"
	"github.com/medibridge/telehealth/internal/signaling"
	"github.com/medibridge/telehealth/internal/worker"
	"github.com/medibridge/telehealth/pkg/database"
	"github.com/medibridge/telehealth/pkg/queue"
	"github.com/medibridge/telehealth/pkg/redis"
	"github.com/medibridge/telehealth/pkg/response"
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

	// Recording session store
	var (
		pool         *pgxpool.Pool
		sessionStore sessions.Store
	)
	switch cfg.Sessions.Store {
	case config.SessionStorePostgres:
		var err error
		pool, err = database.NewPostgresPool(ctx, cfg.Database.DSN(), cfg.Database.MaxConns, logger)
		if err != nil {
			logger.Fatal("database", zap.Error(err))
		}
		defer pool.Close()
		if err := database.Migrate(ctx, pool); err != nil {
			logger.Fatal("migrate", zap.Error(err))
		}
		sessionStore = sessions.NewRepository(pool)
	case config.SessionStoreSQLite:
		store, err := sqlite.Open(ctx, cfg.Sessions.SQLitePath)
		if err != nil {
			logger.Fatal("sqlite", zap.Error(err))
		}
		defer store.Close()
		sessionStore = store
	default:
		logger.Warn("using in-memory session store; recording sessions are lost on restart")
		sessionStore = sessions.NewMemoryStore()
	}
	logger.Info("session store ready", zap.String("store", cfg.Sessions.Store))

	tracker := sessions.NewTracker(sessionStore, logger)
	tracker.SetFinalizeTimeout(cfg.Sessions.FinalizeTimeout)

	bgCtx, bgCancel := context.WithCancel(context.Background())
	defer bgCancel()

	// Redis: archive queue and presence mirror
	var (
		jobQueue *queue.Queue
		mirror   *presence.Mirror
	)
	if cfg.Redis.Addr != "" {
		rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
		if err != nil {
			logger.Fatal("redis", zap.Error(err))
		}
		defer rdb.Close()
		jobQueue = queue.NewQueue(rdb.Client, logger)
		tracker.SetArchiver(jobQueue)
		mirror = presence.NewMirror(rdb.Client, logger)
		if err := mirror.Reset(ctx); err != nil {
			logger.Warn("presence reset failed", zap.Error(err))
		}
		go mirror.Run(bgCtx)
	} else {
		logger.Info("redis not configured; session archive and presence mirror disabled")
	}

	var s3Client *storage.S3
	if cfg.AWS.Region != "" {
		var err error
		s3Client, err = storage.NewS3(ctx, storage.S3Config{
			Region:               cfg.AWS.Region,
			AccessKeyID:          cfg.AWS.AccessKeyID,
			SecretAccessKey:      cfg.AWS.SecretAccessKey,
			ArchiveBucket:        cfg.AWS.ArchiveBucket,
			PresignExpireMinutes: cfg.AWS.PresignExpireMinutes,
		}, logger)
		if err != nil {
			logger.Warn("s3 disabled", zap.Error(err))
			s3Client = nil
		}
	}

	// Attendance audit (PostgreSQL only)
	var (
		attendanceRecorder *attendance.Recorder
		attendanceHandler  *attendance.Handler
	)
	if pool != nil {
		attendanceRepo := attendance.NewRepository(pool)
		attendanceRecorder = attendance.NewRecorder(attendanceRepo, logger)
		attendanceHandler = attendance.NewHandler(attendanceRepo, logger)
		go attendanceRecorder.Run(bgCtx)
	}

	// Signaling core
	rooms := signaling.NewMemoryRoomStore()
	relay := signaling.NewRelay(rooms, logger)
	relay.SetParticipantHandlers(
		func(roomID string, p *signaling.Participant) {
			if mirror != nil {
				mirror.Joined(roomID, p.ID)
			}
			if attendanceRecorder != nil {
				attendanceRecorder.Joined(roomID, p.ID, p.Name, p.Role())
			}
		},
		func(roomID, participantID string) {
			if mirror != nil {
				mirror.Left(roomID, participantID)
			}
			if attendanceRecorder != nil {
				attendanceRecorder.Left(roomID, participantID)
			}
		},
	)
	relay.SetRoomClosedHandler(func(roomID string) {
		tracker.FinalizeAsync(roomID)
		if mirror != nil {
			mirror.Closed(roomID)
		}
	})

	hubCtx, hubCancel := context.WithCancel(context.Background())
	defer hubCancel()
	hub := signaling.NewHub(relay, logger)
	go hub.Run(hubCtx)

	gateway := signaling.NewGateway(hub, signaling.GatewayConfig{
		SendBuffer:   cfg.Signaling.SendBuffer,
		ReadLimit:    cfg.Signaling.ReadLimit,
		PingInterval: cfg.Signaling.PingInterval,
		CheckOrigin:  middleware.OriginChecker(cfg.Server.CORSAllowedOrigins),
	}, logger)

	// REST handlers
	consultationService := consultations.NewService(rooms, tracker, logger)
	if mirror != nil {
		consultationService.SetRoomCreatedHandler(mirror.Opened)
	}
	consultationHandler := consultations.NewHandler(
		consultationService,
		consultations.ICEConfig{
			URLs:           cfg.WebRTC.ICEUrls,
			TURNUsername:   cfg.WebRTC.TURNUsername,
			TURNCredential: cfg.WebRTC.TURNCredential,
		},
		logger,
	)
	var signer sessions.ArchiveSigner
	if s3Client != nil {
		signer = s3Client
	}
	sessionHandler := sessions.NewHandler(tracker, signer, logger)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.Server.CORSAllowedOrigins))
	router.Use(middleware.Logger(logger))

	router.GET("/health", func(c *gin.Context) { response.OK(c, gin.H{"status": "ok"}) })

	// WebSocket (never authenticated; join carries the caller's identity)
	router.GET(cfg.Signaling.Path, gateway.ServeWs)

	api := router.Group("/api")
	createGuard := []gin.HandlerFunc{}
	if cfg.JWT.Enabled {
		api.Use(middleware.JWT(auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.ExpireHours)))
		createGuard = append(createGuard, middleware.RequireRole(auth.RoleDoctor, auth.RoleAdmin))
		logger.Info("REST authentication enabled")
	}
	{
		api.POST("/rooms", append(createGuard, consultationHandler.CreateRoom)...)
		api.GET("/rooms", consultationHandler.ListRooms)
		api.GET("/rooms/:id", consultationHandler.GetRoom)
		if attendanceHandler != nil {
			api.GET("/rooms/:id/attendance", attendanceHandler.GetAttendance)
		}
		api.GET("/ice-servers", consultationHandler.ICEServers)

		api.GET("/recording-sessions/:id", sessionHandler.Get)
		api.PATCH("/recording-sessions/:id", sessionHandler.Update)
		api.GET("/recording-sessions/:id/archive-url", sessionHandler.ArchiveURL)
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	// Background archive worker (session snapshots to S3)
	if s3Client != nil && jobQueue != nil {
		processor := worker.NewArchiveProcessor(tracker, s3Client, jobQueue, logger)
		go processor.Run(bgCtx)
		logger.Info("archive worker started", zap.String("bucket", s3Client.ArchiveBucket()))
	}

	go func() {
		logger.Info("server listening", zap.String("port", cfg.Server.Port), zap.String("signaling_path", cfg.Signaling.Path))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	hubCancel()
	<-hub.Done()
	tracker.Wait()
	bgCancel()
	logger.Info("server stopped")
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

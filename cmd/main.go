package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/weiawesome/wes-io-live/overlay-service/internal/archive"
	"github.com/weiawesome/wes-io-live/overlay-service/internal/config"
	"github.com/weiawesome/wes-io-live/overlay-service/internal/domain"
	"github.com/weiawesome/wes-io-live/overlay-service/internal/handler"
	"github.com/weiawesome/wes-io-live/overlay-service/internal/hub"
	"github.com/weiawesome/wes-io-live/overlay-service/internal/overlay"
	"github.com/weiawesome/wes-io-live/overlay-service/internal/repository"
	"github.com/weiawesome/wes-io-live/overlay-service/internal/service"
	pkgconfig "github.com/weiawesome/wes-io-live/overlay-service/pkg/config"
	"github.com/weiawesome/wes-io-live/overlay-service/pkg/database"
	pkglog "github.com/weiawesome/wes-io-live/overlay-service/pkg/log"
	"github.com/weiawesome/wes-io-live/overlay-service/pkg/pubsub"
)

func main() {
	// Load configuration
	cfg, v, err := config.Load()
	if err != nil {
		l := pkglog.L()
		l.Fatal().Err(err).Msg("failed to load config")
	}

	// Transport manager owns the instance id stamped on every envelope
	manager := pubsub.NewManager(pubsub.NewDialer(cfg.PubSub()), cfg.Manager())

	// Initialize structured logger
	pkglog.Init(pkglog.Config{
		Level:       cfg.Log.Level,
		Pretty:      cfg.Log.Pretty || cfg.Log.Level == "debug",
		ServiceName: "overlay-service",
		InstanceID:  manager.InstanceID(),
	})
	logger := pkglog.L()

	if pkgconfig.Watch(v, func(e fsnotify.Event) {
		level := v.GetString("log.level")
		pkglog.SetLevel(level)
		logger.Info().Str("file", e.Name).Str("level", level).Msg("config reloaded")
	}) {
		logger.Info().Str("file", v.ConfigFileUsed()).Msg("watching config file")
	}

	// Durable snapshot store
	var (
		db      *gorm.DB
		durable overlay.DurableStore
	)
	if cfg.DurableEnabled() {
		db, err = database.New(cfg.DB())
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to database")
		}
		if err := database.AutoMigrate(db, &domain.OverlaySnapshotModel{}); err != nil {
			logger.Fatal().Err(err).Msg("failed to auto-migrate")
		}
		durable = repository.NewGormSnapshotRepository(db)
		logger.Info().Str("driver", cfg.Database.Driver).Msg("durable snapshot store ready")
	} else {
		logger.Warn().Msg("durable snapshot store disabled")
	}

	// Optional event archive
	var (
		archiver archive.EventArchiver
		hubOpts  []hub.Option
	)
	if cfg.Kafka.Enabled {
		a, err := archive.NewConfluentArchiver(cfg.Archive())
		if err != nil {
			logger.Warn().Err(err).Msg("event archive disabled")
		} else {
			archiver = a
			hubOpts = append(hubOpts, hub.WithArchiver(a))
			logger.Info().Str("brokers", cfg.Kafka.Brokers).Str("topic", cfg.Kafka.Topic).Msg("event archive enabled")
		}
	}

	// Core: event bus and overlay state store
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	eventHub := hub.New(manager, hubOpts...)
	store := overlay.NewStore(manager, durable, cfg.Store())
	eventHub.Start(ctx)
	store.Start(ctx)

	overlaySvc := service.NewOverlayService(store, eventHub)
	sweeper := service.NewAvatarSweeper(overlaySvc, cfg.Overlay.SweepInterval)
	go sweeper.Run(ctx)

	// Initialize HTTP handler
	httpHandler := handler.NewHandler(eventHub, overlaySvc, manager, handler.Options{
		HeartbeatInterval: cfg.SSE.HeartbeatInterval,
		WriteTimeout:      cfg.SSE.WriteTimeout,
	})

	// Setup Gin router
	if cfg.Log.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(pkglog.GinMiddleware(logger))
	httpHandler.RegisterRoutes(r)

	// SSE streams end when ctx is cancelled, which lets Shutdown drain them.
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	go func() {
		logger.Info().
			Str("addr", addr).
			Bool("transport", manager.Available()).
			Bool("durable", durable != nil).
			Msg("overlay-service starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down overlay-service")

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server forced to shutdown")
	}

	<-sweeper.Done()
	<-eventHub.Done()
	<-store.Done()

	if err := store.FlushAll(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to flush overlay state")
	}

	manager.Close()
	if archiver != nil {
		archiver.Close()
	}
	if db != nil {
		if err := database.Close(db); err != nil {
			logger.Warn().Err(err).Msg("failed to close database")
		}
	}

	logger.Info().Msg("overlay-service stopped")
}

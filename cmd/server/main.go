package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"ggnhomes/server/config"
	"ggnhomes/server/internal/api"
	"ggnhomes/server/internal/autocomplete"
	"ggnhomes/server/internal/database"
	"ggnhomes/server/internal/discovery"
	"ggnhomes/server/internal/engagement"
	"ggnhomes/server/internal/geocoding"
	"ggnhomes/server/internal/history"
	"ggnhomes/server/internal/processor"
	"ggnhomes/server/internal/queue"
	"ggnhomes/server/internal/recommend"
	"ggnhomes/server/internal/scheduler"
)

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetOutput(os.Stdout)

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.WithError(err).Fatal("Failed to load configuration")
	}
	if level, err := logrus.ParseLevel(cfg.Server.LogLevel); err == nil {
		logger.SetLevel(level)
	}

	logger.WithFields(logrus.Fields{
		"driver": cfg.Database.Driver,
		"dsn":    cfg.Database.DSN,
	}).Info("Opening database")

	// Initialize database
	db, err := database.NewDatabase(cfg.Database.Driver, cfg.Database.DSN, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize database")
	}
	defer db.Close()

	// Run database migrations
	logger.Info("Running database migrations...")
	if err := db.RunMigrations(); err != nil {
		logger.WithError(err).Fatal("Failed to run database migrations")
	}

	seedAreas, err := config.LoadAreaSeed(cfg.Autocomplete.SeedFile)
	if err != nil {
		logger.WithError(err).Warn("Failed to load area seed file, continuing with built-in areas")
	}

	geocoder := geocoding.NewGeocoder(logger, geocoding.Options{
		BaseURL:           cfg.Geocoding.BaseURL,
		UserAgent:         cfg.Geocoding.UserAgent,
		Timeout:           cfg.Geocoding.Timeout,
		RequestsPerSecond: cfg.Geocoding.RequestsPerSecond,
		ReuseRadiusMeters: cfg.Geocoding.ReuseRadiusMeters,
		CacheDir:          cfg.Geocoding.CacheDir,
		MaxCacheEntries:   cfg.Geocoding.MaxCacheEntries,
	})

	gdb := db.GetDB()
	discoveryService := discovery.NewService(gdb, cfg.Database.QueryTimeout, logger)
	tracker := engagement.NewTracker(gdb, cfg.Database.QueryTimeout, logger)
	historyStore := history.NewStore(gdb, cfg.Discovery.HistoryLimit, logger)
	assembler := recommend.NewAssembler(discoveryService, historyStore, recommend.Options{
		GenericFeedCap:  cfg.Discovery.GenericFeedCap,
		PersonalFeedCap: cfg.Discovery.PersonalFeedCap,
		HistoryLimit:    cfg.Discovery.HistoryLimit,
		DefaultArea:     cfg.Discovery.DefaultArea,
	}, logger)

	// Engagement events are applied by background processors
	eventQueue := queue.NewEventQueue(cfg.Engagement.QueueSize, logger)
	eventProcessor := processor.NewEventProcessor(tracker, eventQueue, cfg, logger)
	eventProcessor.Start()

	index := autocomplete.NewIndex(nil, cfg.Autocomplete.MaxSuggestions, logger)
	indexScheduler := scheduler.NewScheduler(db, index, cfg.Autocomplete.RefreshInterval, seedAreas, logger)
	indexScheduler.Start()

	handler := api.NewHandler(api.Dependencies{
		DB:            db,
		Geocoder:      geocoder,
		Discovery:     discoveryService,
		Tracker:       tracker,
		Events:        eventProcessor,
		History:       historyStore,
		Assembler:     assembler,
		Index:         index,
		Refresher:     indexScheduler,
		LocateTimeout: cfg.Geocoding.Timeout,
	}, logger)

	router := api.NewRouter(cfg.Server.AllowedOrigins, logger)
	api.SetupRoutes(router, handler)

	server := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Infof("Starting server on port %s", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("Server failed to start")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.WithError(err).Error("Server forced to shutdown")
	}

	indexScheduler.Stop()
	eventProcessor.Stop()
	logger.Info("Server exited")
}

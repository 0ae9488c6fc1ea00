package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/l0lsec/XRayViewer/internal/cache"
	"github.com/l0lsec/XRayViewer/internal/config"
	"github.com/l0lsec/XRayViewer/internal/database"
	"github.com/l0lsec/XRayViewer/internal/grouping"
	"github.com/l0lsec/XRayViewer/internal/handlers"
	"github.com/l0lsec/XRayViewer/internal/imaging"
	"github.com/l0lsec/XRayViewer/internal/middleware"
	"github.com/l0lsec/XRayViewer/internal/repository"
	"github.com/l0lsec/XRayViewer/internal/services"
	"github.com/l0lsec/XRayViewer/pkg/logger"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	// Initialize logger
	logger.Init(cfg.Log.Level, cfg.Log.Format)
	log.Info().Msg("Starting XRayViewer storage backend")

	// The storage client opens lazily on first use; failures surface
	// per operation instead of killing startup.
	client := database.NewClient(database.Config{
		Driver:   cfg.Database.Driver,
		Path:     cfg.Database.Path,
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		DBName:   cfg.Database.DBName,
		SSLMode:  cfg.Database.SSLMode,
		LogLevel: cfg.Database.LogLevel,
	})
	defer client.Close()

	// Initialize cache
	var cacheImpl cache.Cache
	if cfg.Cache.Enabled && cfg.Cache.Type == "redis" {
		addr := fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port)
		cacheImpl, err = cache.NewRedisCache(addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to Redis")
		}
		log.Info().Msg("Redis cache initialized")
	} else {
		cacheImpl = cache.NewMemoryCache()
		log.Info().Msg("Memory cache initialized")
	}

	// Initialize repositories
	studyRepo := repository.NewStudyRepository(client)
	imageRepo := repository.NewImageRepository(client)
	prefRepo := repository.NewPreferenceRepository(client)
	thumbRepo := repository.NewThumbnailRepository(client)

	// Imaging loader and grouping engine
	loader := imaging.NewDICOMLoader()
	engine := grouping.NewEngine(loader)

	// Initialize services
	libraryService := services.NewLibraryService(studyRepo, imageRepo, prefRepo, loader, cacheImpl, client, services.LibraryConfig{
		QuotaBytes:    cfg.Storage.QuotaBytes,
		WarnThreshold: cfg.Storage.WarnThreshold,
	})
	prefService := services.NewPreferenceService(prefRepo, studyRepo, imageRepo, thumbRepo, cfg.Storage.RecentFilesLimit)
	thumbService := services.NewThumbnailService(thumbRepo, cacheImpl, cfg.Thumbnail.JPEGQuality)

	// Sweep image rows orphaned by an interrupted delete. Best effort:
	// a storage engine that is down now will be retried per request.
	sweepCtx, cancelSweep := context.WithTimeout(context.Background(), 30*time.Second)
	if err := libraryService.SweepOrphans(sweepCtx); err != nil {
		log.Warn().Err(err).Msg("Orphan sweep skipped")
	}
	cancelSweep()

	// Initialize handlers
	healthHandler := handlers.NewHealthHandler(client)
	viewerHandler := handlers.NewViewerHandler(loader, engine)
	libraryHandler := handlers.NewLibraryHandler(libraryService)
	prefHandler := handlers.NewPreferenceHandler(prefService)
	thumbHandler := handlers.NewThumbnailHandler(thumbService, cfg.Thumbnail.MaxSize)

	// Setup router
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Recovery)
	r.Use(middleware.Logging)
	r.Use(chimiddleware.Compress(5))

	// CORS
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORS.AllowedOrigins,
		AllowedMethods:   cfg.CORS.AllowedMethods,
		AllowedHeaders:   cfg.CORS.AllowedHeaders,
		ExposedHeaders:   []string{"Content-Length", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// Health endpoints
	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)

	// Metrics endpoint
	if cfg.Metrics.Enabled {
		r.Handle("/metrics", promhttp.Handler())
	}

	r.Route("/api/v1", func(r chi.Router) {
		// File-open flow: group without persisting
		r.Post("/viewer/open", viewerHandler.OpenFiles)

		// Study library
		r.Get("/studies", libraryHandler.ListStudies)
		r.Post("/studies", libraryHandler.SaveStudy)
		r.Get("/studies/{studyID}", libraryHandler.LoadStudy)
		r.Delete("/studies/{studyID}", libraryHandler.DeleteStudy)
		r.Get("/studies/{studyID}/thumbnails", thumbHandler.GetStudyThumbnails)
		r.Get("/library/stats", libraryHandler.Stats)
		r.Delete("/library", libraryHandler.ClearLibrary)

		// Preferences and recent files
		r.Get("/preferences", prefHandler.GetPreferences)
		r.Put("/preferences", prefHandler.SavePreferences)
		r.Put("/preferences/{key}", prefHandler.SetPreference)
		r.Get("/recent-files", prefHandler.GetRecentFiles)
		r.Post("/recent-files", prefHandler.AddRecentFile)
		r.Delete("/recent-files", prefHandler.ClearRecentFiles)

		// Thumbnails
		r.Put("/thumbnails/{imageID}", thumbHandler.SaveThumbnail)
		r.Post("/thumbnails/{imageID}/generate", thumbHandler.GenerateThumbnail)
		r.Delete("/thumbnails", thumbHandler.ClearThumbnails)

		// Full reset across every store
		r.Delete("/storage", prefHandler.ClearAllStorage)
	})

	// Create server
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start server in a goroutine
	go func() {
		log.Info().Str("addr", addr).Msg("Server starting")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server failed to start")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	// Graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server stopped")
}

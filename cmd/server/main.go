package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/musicvault/musicvault/internal/auth"
	"github.com/musicvault/musicvault/internal/cache"
	"github.com/musicvault/musicvault/internal/config"
	"github.com/musicvault/musicvault/internal/constants"
	"github.com/musicvault/musicvault/internal/dao"
	"github.com/musicvault/musicvault/internal/filesystem"
	"github.com/musicvault/musicvault/internal/handlers"
	"github.com/musicvault/musicvault/internal/httpclient"
	"github.com/musicvault/musicvault/internal/logger"
	"github.com/musicvault/musicvault/internal/metastore"
	"github.com/musicvault/musicvault/internal/player"
	"github.com/musicvault/musicvault/internal/reconciler"
	"github.com/musicvault/musicvault/internal/remote"
	"github.com/musicvault/musicvault/internal/worker"
)

func main() {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Default().Error("configuration error", "error", err)
		os.Exit(1)
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
	})

	if err := filesystem.EnsureDir(cfg.MusicDir); err != nil {
		log.Error("failed to create music directory", "dir", cfg.MusicDir, "error", err)
		os.Exit(1)
	}

	db, err := metastore.Open(cfg.DBPath)
	if err != nil {
		log.Error("failed to open metadata store", "path", cfg.DBPath, "error", err)
		os.Exit(1)
	}
	defer db.Close()

	users, err := dao.NewUsers(db)
	if err != nil {
		log.Error("failed to init users table", "error", err)
		os.Exit(1)
	}
	library, err := dao.NewLibrary(db)
	if err != nil {
		log.Error("failed to init library table", "error", err)
		os.Exit(1)
	}
	intents, err := reconciler.NewIntents(db)
	if err != nil {
		log.Error("failed to init intents table", "error", err)
		os.Exit(1)
	}

	client := httpclient.New(nil, 100*time.Millisecond)
	records := remote.NewRecordsClient(cfg.RecordsURL, client)
	blobs := remote.NewBlobsClient(cfg.BlobsURL, client)
	urls := cache.NewURLCache(constants.DefaultURLCacheSize, constants.DefaultURLCacheTTL)

	rec := reconciler.New(cfg.MusicDir, records, blobs, client, intents, library, urls, log)
	authService := auth.NewService(users, log)
	play := player.New(cfg.MusicDir, log)

	w := worker.New(rec, cfg.Concurrency, log)
	w.Start()
	defer w.Stop()

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	h := handlers.NewHandler(authService, rec, play, library, db, log)
	h.RegisterRoutes(r)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: r,
	}

	go func() {
		log.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error("forced shutdown", "error", err)
	}
	log.Info("server exiting")
}

package main

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/gorilla/sessions"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"snaplink/internal/config"
	"snaplink/internal/metrics"
	"snaplink/internal/registry"
	"snaplink/internal/server"
	"snaplink/internal/store"
	"snaplink/internal/ws"
)

func main() {
	setupLogging()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}

	// Image store selection; the local backend also persists registry
	// metadata and rehydrates it at startup.
	var (
		imageStore store.ImageStore
		local      *store.Local
		reg        *registry.Registry
	)
	switch cfg.StorageBackend {
	case "local":
		local, err = store.NewLocal(cfg.UploadDir)
		if err != nil {
			log.Fatal().Err(err).Msg("init local store")
		}
		imageStore = local

		records, err := registry.Import(cfg.UploadDir)
		if err != nil {
			log.Fatal().Err(err).Msg("rehydrate sessions")
		}
		reg = registry.NewFrom(records)
		log.Info().Int("sessions", reg.Len()).Str("dir", cfg.UploadDir).Msg("rehydrated registry")

	case "s3":
		imageStore, err = store.NewS3(context.Background(), store.S3Options{
			AccountID:       cfg.AccountID,
			AccessKeyID:     cfg.AccessKeyID,
			AccessKeySecret: cfg.AccessKeySecret,
			Bucket:          cfg.BucketName,
			PublicURL:       cfg.PublicURL,
			Timeout:         cfg.UploadTimeout,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("init s3 store")
		}
		reg = registry.New()

	case "cloudinary":
		imageStore = store.NewCloudinary(store.CloudinaryOptions{
			CloudName: cfg.CloudinaryCloudName,
			APIKey:    cfg.CloudinaryAPIKey,
			APISecret: cfg.CloudinaryAPISecret,
			Timeout:   cfg.UploadTimeout,
		})
		reg = registry.New()
	}

	// Admin cookie session store
	sessionStore := sessions.NewCookieStore([]byte(cfg.SessionSecret))
	sessionStore.MaxAge(86400)
	sessionStore.Options.Path = "/"
	sessionStore.Options.HttpOnly = true

	hub := ws.NewHub()
	go hub.Run()

	router := server.New(server.Deps{
		Config:   cfg,
		Registry: reg,
		Store:    imageStore,
		Local:    local,
		Sessions: sessionStore,
		Hub:      hub,
		Metrics:  metrics.New(),
	})

	addr := ":" + cfg.Port
	log.Info().Str("addr", addr).Str("backend", cfg.StorageBackend).Msg("starting server")
	if err := http.ListenAndServe(addr, router); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
}

func setupLogging() {
	zerolog.TimeFieldFormat = time.RFC3339
	cw := zerolog.NewConsoleWriter(func(w *zerolog.ConsoleWriter) {
		w.Out = os.Stdout
		w.TimeFormat = time.RFC3339
	})
	log.Logger = zerolog.New(cw).With().Timestamp().Logger()
}

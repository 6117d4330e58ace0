package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"fieldnotes/api/internal/app"
	"fieldnotes/api/internal/archive"
	"fieldnotes/api/internal/blobstore"
	"fieldnotes/api/internal/catalog"
	"fieldnotes/api/internal/comments"
	"fieldnotes/api/internal/config"
	"fieldnotes/api/internal/identity"
	"fieldnotes/api/internal/pgdb"
	"fieldnotes/api/internal/search"
)

func main() {
	cfg := config.Load()
	ctx := context.Background()

	db, err := pgdb.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("database connection failed: %v", err)
	}
	defer db.Close()

	if err := pgdb.ApplyMigrations(ctx, db, cfg.MigrationsDir); err != nil {
		log.Fatalf("migrations failed: %v", err)
	}

	directory := identity.NewPostgresDirectory(db)
	cat := catalog.NewPostgresCatalog(db)

	var gateway comments.Gateway
	switch cfg.BlobBackend {
	case "minio":
		log.Printf("Using MinIO for comment blob storage")
		store, err := blobstore.NewObjectStore(ctx, blobstore.ObjectStoreConfig{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			Bucket:    cfg.MinioBucket,
			UseSSL:    cfg.MinioUseSSL,
		}, cfg.ContextKey)
		if err != nil {
			log.Fatalf("minio connection failed: %v", err)
		}
		gateway = store
	default:
		log.Printf("Using Redis for comment blob storage")
		store, err := blobstore.NewRedisStore(cfg.RedisURL, cfg.ContextKey)
		if err != nil {
			log.Fatalf("redis connection failed: %v", err)
		}
		defer store.Close()
		gateway = store
	}

	var meiliClient *search.Meili
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meiliClient = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey)
		defer meiliClient.Close()
	}

	var archiveService *archive.Service
	if strings.TrimSpace(cfg.ArchiveDir) != "" {
		if err := os.MkdirAll(cfg.ArchiveDir, 0o755); err != nil {
			log.Fatalf("failed to create archive dir: %v", err)
		}
		archiveService = archive.New(cfg.ArchiveDir)
	}

	service := app.NewService(cfg, db, directory, cat, gateway, meiliClient, archiveService)

	httpServer := app.NewHTTPServer(service, cfg.CORSOrigin)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Printf("Fieldnotes API listening on %s", cfg.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}

package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/cors"

	"github.com/pvsentinel/narrativecore/internal/auth"
	"github.com/pvsentinel/narrativecore/internal/config"
	"github.com/pvsentinel/narrativecore/internal/db"
	"github.com/pvsentinel/narrativecore/internal/domain"
	"github.com/pvsentinel/narrativecore/internal/export"
	"github.com/pvsentinel/narrativecore/internal/ingestion"
	"github.com/pvsentinel/narrativecore/internal/middleware"
	"github.com/pvsentinel/narrativecore/internal/repository"
	"github.com/pvsentinel/narrativecore/internal/review"
	"github.com/pvsentinel/narrativecore/internal/terms"
	"github.com/pvsentinel/narrativecore/internal/versions"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load(".")
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	versionRepo, changeRepo, cleanup, err := buildRepositories(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to set up storage: %v", err)
	}
	defer cleanup()

	registry, err := terms.NewRegistry(cfg.Terms.File)
	if err != nil {
		log.Fatalf("Failed to load clinical terms: %v", err)
	}

	versionService := versions.NewService(
		versionRepo,
		changeRepo,
		terms.NewClassifier(registry, cfg.Review.MinorLengthThreshold),
		review.NewGate(),
	)
	ingestService := ingestion.NewService(versionService)
	exportService := export.NewService(versionService)

	mux := http.NewServeMux()
	versions.NewHTTPHandler(versionService).Register(mux)
	export.NewHTTPHandler(exportService).Register(mux)
	mux.Handle("POST /ingest/draft", ingestion.NewHTTPHandler(ingestService))
	mux.HandleFunc("POST /terms/reload", func(w http.ResponseWriter, r *http.Request) {
		if _, err := auth.RequireCapability(r.Context(), func(c domain.Capabilities) bool { return c.CanReloadTerms }); err != nil {
			http.Error(w, err.Error(), http.StatusForbidden)
			return
		}
		if err := registry.Reload(); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   cfg.Server.AllowedOrigins,
		AllowCredentials: true,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
	})

	handler := corsHandler.Handler(
		middleware.LoggingMiddleware(
			auth.Middleware(mux),
		),
	)

	server := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Starting narrative version server on %s (storage: %s)", cfg.Server.Addr, cfg.Storage.Driver)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exited")
}

func buildRepositories(ctx context.Context, cfg config.Config) (repository.VersionRepository, repository.ChangeRepository, func(), error) {
	switch cfg.Storage.Driver {
	case "postgres":
		if err := db.RunMigrations(cfg.Database); err != nil {
			return nil, nil, nil, err
		}
		conn, err := db.NewConnection(ctx, cfg.Database)
		if err != nil {
			return nil, nil, nil, err
		}
		return repository.NewPostgresVersionRepository(conn.Pool),
			repository.NewPostgresChangeRepository(conn.Pool),
			conn.Close, nil
	case "sqlite":
		handle, err := repository.OpenSQLite(cfg.Storage.SQLitePath)
		if err != nil {
			return nil, nil, nil, err
		}
		return repository.NewSQLiteVersionRepository(handle),
			repository.NewSQLiteChangeRepository(handle),
			func() { _ = handle.Close() }, nil
	default:
		return repository.NewMemoryVersionRepository(),
			repository.NewMemoryChangeRepository(),
			func() {}, nil
	}
}

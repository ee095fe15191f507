package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/cors"

	"github.com/rpattn/trackchanges/internal/api"
	"github.com/rpattn/trackchanges/internal/config"
	"github.com/rpattn/trackchanges/internal/db"
	"github.com/rpattn/trackchanges/internal/diff"
	"github.com/rpattn/trackchanges/internal/export"
	"github.com/rpattn/trackchanges/internal/history"
	"github.com/rpattn/trackchanges/internal/middleware"
	"github.com/rpattn/trackchanges/internal/repository"
	"github.com/rpattn/trackchanges/internal/revert"
	"github.com/rpattn/trackchanges/internal/temporal"
)

func main() {
	// Create context
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Load configuration
	dbConfig, err := config.LoadDBConfig(".")
	if err != nil {
		log.Fatalf("Failed to load database config: %v", err)
	}
	serverConfig, err := config.LoadServerConfig(".")
	if err != nil {
		log.Fatalf("Failed to load server config: %v", err)
	}

	// Setup database connection
	conn, err := db.NewConnection(ctx, dbConfig)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer conn.Close()

	// Run migrations
	if err := db.RunMigrations(ctx, conn.Pool, serverConfig.MigrationsPath); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	// Register tracked entity types
	tracker := history.NewTracker()
	schemas, err := config.LoadSchemas(serverConfig.SchemasPath)
	if err != nil {
		log.Fatalf("Failed to load schemas: %v", err)
	}
	for _, schema := range schemas {
		tracker.Register(schema)
		log.Printf("[SCHEMA] tracking %s (%d fields)", schema.Name, len(schema.Fields))
	}

	// Wire the history stack
	store := repository.NewPostgresStore(conn.Pool)
	resolver := temporal.NewResolver(tracker)
	service := history.NewService(store, tracker, resolver)
	engine := revert.NewEngine(service)
	differ := diff.NewDiffer(tracker)
	exporter := export.NewService(service)

	// Setup CORS
	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   []string{"http://localhost:3000"},
		AllowCredentials: true,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
	})

	historyHandler := middleware.LoggingMiddleware(
		api.NewHTTPHandler(service, engine, differ, exporter),
	)
	http.Handle("/history/", corsHandler.Handler(historyHandler))

	// Create HTTP server
	addr := fmt.Sprintf(":%d", serverConfig.Port)
	server := &http.Server{
		Addr:         addr,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		log.Printf("Starting history server on %s", addr)
		log.Printf("History endpoint available at http://localhost%s/history/", addr)

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exited")
}

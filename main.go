// api/main.go
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coder/quartz"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"clickstream/api/analytics"
	"clickstream/api/config"
	"clickstream/api/database"
	"clickstream/api/handlers"
	"clickstream/api/metrics"
	"clickstream/api/middleware"
	"clickstream/api/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	if cfg.ReleaseMode {
		gin.SetMode(gin.ReleaseMode)
	}

	eventStore, sessionStore, closeStores, err := openStores(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize storage: %v", err)
	}
	defer closeStores()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	// --- Initialize Handlers ---
	service := analytics.NewService(eventStore, sessionStore, quartz.NewReal(), m)
	eventsHandlers := handlers.NewEventsHandlers(service, cfg.RequestTimeout)
	sessionsHandlers := handlers.NewSessionsHandlers(service, cfg.RequestTimeout)

	r := gin.Default()

	r.Use(middleware.CORSMiddleware(cfg.FrontendOrigin))
	r.Use(middleware.RequestMetrics(m))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))

	api := r.Group("/api/v1")
	{
		eventsGroup := api.Group("/events")
		{
			eventsGroup.POST("", eventsHandlers.CreateEvents)
			eventsGroup.GET("/heatmap", eventsHandlers.GetHeatmap)
		}

		sessionsGroup := api.Group("/sessions")
		{
			sessionsGroup.GET("", sessionsHandlers.ListSessions)
			sessionsGroup.GET("/:sessionId/events", sessionsHandlers.GetSessionEvents)
			sessionsGroup.GET("/:sessionId/journey", sessionsHandlers.GetSessionJourney)
		}
	}

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: r,
	}

	go func() {
		log.Printf("Go API server starting on http://localhost:%s (storage: %s)", cfg.Port, cfg.StorageBackend)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Go API server failed to start: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exiting.")
}

// openStores connects the configured backend. The postgres backend keeps
// events in ClickHouse and the session ledger in PostgreSQL.
func openStores(cfg *config.Config) (store.EventStore, store.SessionStore, func(), error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if cfg.StorageBackend == config.BackendSQLite {
		client, err := database.NewSQLiteDB(cfg.SQLitePath)
		if err != nil {
			return nil, nil, nil, err
		}
		if err := client.EnsureSQLiteSchema(ctx); err != nil {
			client.Close()
			return nil, nil, nil, err
		}
		s := store.NewSQLiteStore(client.DB)
		return s, s, client.Close, nil
	}

	// --- Initialize PostgreSQL Database (for the session ledger) ---
	dbClient, err := database.NewPostgresDB(cfg.DatabaseURL)
	if err != nil {
		return nil, nil, nil, err
	}

	// --- Initialize ClickHouse Database (for events) ---
	chClient, err := database.NewClickHouseDB(cfg.ClickHouse)
	if err != nil {
		dbClient.Close()
		return nil, nil, nil, err
	}

	closeAll := func() {
		chClient.Close()
		dbClient.Close()
	}

	if cfg.AutoSchema {
		if err := dbClient.EnsurePostgresSchema(ctx); err != nil {
			closeAll()
			return nil, nil, nil, err
		}
		if err := chClient.EnsureSchema(ctx); err != nil {
			closeAll()
			return nil, nil, nil, err
		}
	}

	return store.NewClickHouseEventStore(chClient), store.NewPostgresSessionStore(dbClient.DB), closeAll, nil
}

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

	"mol-collab/internal/api"
	"mol-collab/internal/auth"
	"mol-collab/internal/bus"
	"mol-collab/internal/cache"
	"mol-collab/internal/collab"
	"mol-collab/internal/config"
	"mol-collab/internal/db"
	"mol-collab/internal/recording"
	"mol-collab/internal/repository"
	"mol-collab/internal/services"
	"mol-collab/internal/telemetry"

	"github.com/redis/go-redis/v9"
)

/*
LEARNING: GRACEFUL SHUTDOWN PATTERN WITH OBSERVABILITY

This main function demonstrates:
1. Service initialization and dependency injection
2. Optional subsystems (archive, presence, bus) wired only when configured
3. Distributed tracing with Jaeger
4. Graceful shutdown handling (listening for SIGINT/SIGTERM)
5. Proper resource cleanup order: server first, then rooms, then workers
*/

func main() {
	log.Println("🚀 Starting molecular collaboration server...")

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("❌ Failed to load config: %v", err)
	}

	// Initialize Jaeger tracing
	// Learning: Do this FIRST so all operations are traced
	jaegerShutdown, err := telemetry.InitJaeger("mol-collab", cfg.JaegerEndpoint)
	if err != nil {
		log.Printf("⚠️  Failed to initialize Jaeger: %v (continuing without tracing)", err)
		jaegerShutdown = func(ctx context.Context) error { return nil }
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := jaegerShutdown(ctx); err != nil {
			log.Printf("⚠️  Failed to shutdown Jaeger: %v", err)
		}
	}()

	// Durable archive: Postgres-backed, entirely optional. Without it the
	// server keeps recordings in memory for the life of the process.
	var archive api.RecordingArchive
	var archiveQ api.ArchiveQueue
	var archiver *services.ArchiverImpl
	stopSweep := func() {}
	deps := collab.Deps{SnapshotEvery: cfg.SnapshotEvery}

	if cfg.ArchiveEnabled {
		database, err := db.NewGorm(cfg)
		if err != nil {
			log.Fatalf("❌ Failed to connect to database: %v", err)
		}
		defer database.Close()

		recRepo := repository.NewRecordingRepository(database.DB)

		// Learning: This creates the worker pool but doesn't start it yet
		archiver = services.NewArchiver(recRepo, cfg.ArchiveWorkers, cfg.ArchiveQueueSize)
		archiver.Start()

		archive = recRepo
		archiveQ = archiver
		deps.Archiver = archiver

		if cfg.ArchiveRetentionDays > 0 {
			sweepCtx, cancel := context.WithCancel(context.Background())
			stopSweep = cancel
			go runRetentionSweep(sweepCtx, recRepo, cfg.ArchiveRetentionDays)
		}
	} else {
		log.Println("⚠️  Archive disabled: recordings are memory-only")
	}

	// Presence mirror: lets other services answer "who is in room X"
	// straight from Redis.
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		pingCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		err := rdb.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			log.Printf("⚠️  Redis unreachable: %v (continuing without presence mirror)", err)
		} else {
			deps.Presence = cache.NewRedisPresence(rdb)
			log.Printf("✓ Presence mirror connected: %s", cfg.RedisAddr)
		}
	}

	// Lifecycle bus: room created/closed, recording started/stopped.
	var publisher *bus.KafkaPublisher
	if len(cfg.KafkaBrokers) > 0 {
		publisher, err = bus.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
		if err != nil {
			log.Printf("⚠️  Kafka unreachable: %v (continuing without lifecycle events)", err)
		} else {
			deps.Publisher = publisher
			log.Printf("✓ Lifecycle bus connected: %v → %s", cfg.KafkaBrokers, cfg.KafkaTopic)
		}
	}

	// Handshake token validation
	var validator collab.TokenValidator
	if cfg.InsecureAuth {
		log.Println("⚠️  INSECURE_AUTH enabled: handshake user ids are trusted as-is")
		validator = auth.InsecureValidator{}
	} else {
		validator = auth.NewJWTValidator(cfg.JWTSecret)
	}

	// In-memory recording store, shared by rooms and the HTTP API
	recStore := recording.NewStore()
	deps.Recordings = recStore

	// Room registry: one actor goroutine per live room
	registry := collab.NewRegistry(deps)

	// WebSocket handshake entry point
	wsHandler := collab.NewHandler(registry, validator)

	// Initialize handlers with dependency injection
	handler := api.NewHandler(registry, recStore, archive, archiveQ, wsHandler)

	// Setup routes
	router := api.SetupRoutes(handler)

	// Configure HTTP server
	addr := fmt.Sprintf("%s:%s", cfg.ServerHost, cfg.ServerPort)
	server := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start HTTP server in a goroutine
	// Learning: This allows us to handle shutdown signals concurrently
	go func() {
		log.Printf("🌐 Server listening on http://%s", addr)
		log.Printf("📚 API Endpoints:")
		log.Printf("   GET    /ws                               - Join a room (WebSocket)")
		log.Printf("   GET    /api/rooms                        - List live rooms")
		log.Printf("   POST   /api/rooms/:id/recording/start    - Start recording")
		log.Printf("   POST   /api/rooms/:id/recording/stop     - Stop recording")
		log.Printf("   GET    /api/recordings?room_id=...       - List recordings")
		log.Printf("   GET    /api/recordings/:id               - Get recording metadata")
		log.Printf("   GET    /api/recordings/:id/export        - Download binary container")
		log.Println()

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("❌ Server error: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	// Learning: This is the graceful shutdown pattern
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("\n🛑 Shutting down server...")

	// Shutdown HTTP server with timeout
	// Learning: Give the server 30 seconds to finish existing requests
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Printf("⚠️  Server forced to shutdown: %v", err)
	}

	// Close rooms first so in-flight recordings are finalized and handed
	// to the archiver before its queue drains.
	registry.Shutdown()

	stopSweep()
	if archiver != nil {
		archiver.Shutdown()
	}
	if publisher != nil {
		publisher.Close()
	}

	log.Println("✓ Server shutdown complete")
}

// runRetentionSweep deletes archived recordings older than the retention
// window, once at startup and then hourly.
func runRetentionSweep(ctx context.Context, repo *repository.RecordingRepositoryImpl, days int) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	for {
		cutoff := time.Now().AddDate(0, 0, -days)
		deleted, err := repo.DeleteOlderThan(ctx, cutoff)
		if err != nil {
			if ctx.Err() == nil {
				log.Printf("⚠️  Retention sweep failed: %v", err)
			}
		} else if deleted > 0 {
			log.Printf("🔄 Retention sweep removed %d recording(s) older than %d days", deleted, days)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

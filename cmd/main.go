// DutchRentScope history-service
//
// Versioned store for re-scraped housing listings. Converts the scraper's
// raw observations into a deduplicated listing dimension, an append-only
// snapshot history and a current-state pointer, and maintains the recrawl
// queue the scraper consults for its next pass.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Blickwinkle262/DutchRentScope/internal/api"
	"github.com/Blickwinkle262/DutchRentScope/internal/config"
	"github.com/Blickwinkle262/DutchRentScope/internal/db"
	"github.com/Blickwinkle262/DutchRentScope/internal/ingest"
	"github.com/Blickwinkle262/DutchRentScope/internal/recrawl"
	"github.com/Blickwinkle262/DutchRentScope/internal/scheduler"
	"github.com/Blickwinkle262/DutchRentScope/internal/store"
)

const version = "1.0.0"

func main() {
	// ── Config ──────────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("[history-service] Config error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ── PostgreSQL ───────────────────────────────────────────────────────────
	log.Println("[history-service] Connecting to PostgreSQL…")
	pool, err := db.NewPostgresPool(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("[history-service] PostgreSQL: %v", err)
	}
	defer pool.Close()

	st := store.New(pool)
	if err := st.EnsureSchema(ctx); err != nil {
		log.Fatalf("[history-service] Schema: %v", err)
	}
	log.Println("[history-service] PostgreSQL connected, schema ensured ✓")

	// ── Redis ────────────────────────────────────────────────────────────────
	log.Println("[history-service] Connecting to Redis…")
	rdb, err := db.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		log.Fatalf("[history-service] Redis: %v", err)
	}
	defer rdb.Close()
	log.Println("[history-service] Redis connected ✓")

	// ── Core wiring ──────────────────────────────────────────────────────────
	queue := recrawl.NewQueue(pool)
	cache := ingest.NewCache(rdb, time.Duration(cfg.FingerprintCacheTTLH)*time.Hour)
	pipeline := ingest.NewPipeline(st, st, queue, cache, recrawl.DefaultPolicy())

	sched := scheduler.New(st, rdb, cfg.SweepIntervalHours)
	if err := sched.Start(ctx); err != nil {
		log.Fatalf("[history-service] Scheduler: %v", err)
	}
	defer sched.Stop()

	// ── HTTP server ──────────────────────────────────────────────────────────
	mux := http.NewServeMux()
	mux.HandleFunc("/health", healthHandler)

	h := api.NewHandler(pipeline, st, queue)
	h.RegisterRoutes(mux)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		log.Printf("[history-service] v%s listening on :%s", version, cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("[history-service] HTTP server error: %v", err)
		}
	}()

	// ── Graceful shutdown ────────────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("[history-service] Shutting down…")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("[history-service] Shutdown error: %v", err)
	}
	log.Println("[history-service] Stopped.")
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{
		"status":  "ok",
		"service": "history-service",
		"version": version,
	})
}

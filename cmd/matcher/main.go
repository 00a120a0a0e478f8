package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/peerprep/matching-service/internal/history"
	"github.com/peerprep/matching-service/internal/matching"
	"github.com/peerprep/matching-service/internal/messaging"
	"github.com/peerprep/matching-service/internal/metrics"
	"github.com/peerprep/matching-service/internal/session"
)

func main() {
	log.Println("Starting matching service...")

	cfg := matching.DefaultConfig()
	if v := os.Getenv("MATCH_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.MatchTimeout = d
		}
	}

	// Redis setup (presence registry).
	redisAddr := "localhost:6379"
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		redisAddr = v
	}

	rdb := redis.NewClient(&redis.Options{Addr: redisAddr})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := rdb.Ping(ctx).Err(); err != nil {
		cancel()
		log.Fatalf("failed to connect to Redis: %v", err)
	}
	cancel()
	presence := session.NewStoreWithClient(rdb, "matcher")

	// PostgreSQL match history (optional).
	var hist *history.Store
	if dsn := os.Getenv("DATABASE_URL"); dsn != "" {
		var err error
		hist, err = history.Open(dsn)
		if err != nil {
			log.Fatalf("failed to open match history store: %v", err)
		}
	} else {
		log.Println("DATABASE_URL not set, match history disabled")
	}

	// NATS setup. Connection retries are bounded; exhausting them is fatal
	// because matching cannot run without the intake channel.
	natsConfig := messaging.DefaultNATSConfig()
	if v := os.Getenv("NATS_URL"); v != "" {
		natsConfig.URL = v
	}
	natsConfig.Name = "matcher"

	natsClient, err := messaging.NewNATSClient(natsConfig)
	if err != nil {
		log.Fatalf("failed to connect to NATS: %v", err)
	}

	// Start the scheduling engine.
	notifier := matching.NewEventPublisher(natsClient, presence, hist)
	svc := matching.NewService(cfg, natsClient, notifier)
	if err := svc.Start(); err != nil {
		log.Fatalf("failed to start matching service: %v", err)
	}

	// Metrics endpoint.
	metricsAddr := ":9100"
	if v := os.Getenv("METRICS_ADDR"); v != "" {
		metricsAddr = v
	}
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		if err := http.ListenAndServe(metricsAddr, mux); err != nil {
			log.Printf("metrics server error: %v", err)
		}
	}()

	log.Printf("Matching service running")
	log.Printf("  match_timeout: %s", cfg.MatchTimeout)
	log.Printf("  redis_addr:    %s", redisAddr)
	log.Printf("  nats_url:      %s", natsConfig.URL)
	log.Printf("  metrics_addr:  %s", metricsAddr)

	// Graceful shutdown.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Printf("received signal %v, shutting down...", sig)

	svc.Stop()
	natsClient.Close()
	if hist != nil {
		hist.Close()
	}
	rdb.Close()
}

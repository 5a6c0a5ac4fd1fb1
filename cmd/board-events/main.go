package main

import (
	"context"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"board-api/storage"
)

func main() {
	if dbg, err := strconv.ParseBool(os.Getenv("DEBUG")); err == nil && dbg {
		log.SetLevel(log.DebugLevel)
	}
	log.Info("board events worker starting")

	cfg := storage.Config{
		ConnectionString: os.Getenv("STORAGE_CONNECTION_STRING"),
		EventsQueue:      os.Getenv("BOARD_EVENTS_QUEUE"),
	}
	if cfg.ConnectionString == "" || cfg.EventsQueue == "" {
		log.Fatal("missing storage config")
	}
	redisConn := os.Getenv("REDIS_CONNECTION_STRING")
	if redisConn == "" {
		log.Fatal("missing redis config")
	}
	rc := redis.NewClient(storage.RedisOptions(redisConn))
	defer rc.Close()

	idle := time.Second
	if v := os.Getenv("POLL_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			log.Fatalf("invalid POLL_INTERVAL: %q", v)
		}
		idle = d
	}

	w, err := storage.NewEventWorker(cfg, rc, idle)
	if err != nil {
		log.Fatalf("queue client: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	w.Run(ctx)
	log.Info("board events worker stopped")
}

package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"rollcall/internal/config"
	"rollcall/internal/queue"
	"rollcall/internal/store"
)

// Worker consumes mark messages and maintains per-session roll-up counters in
// Redis. The counters feed the lecturer session summary; the ledger rows in
// Postgres stay authoritative.
func main() {
	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("shutdown signal received")
		cancel()
	}()

	redisClient := store.NewRedis(cfg.RedisAddr)

	var q queue.Queue
	if cfg.QueueBackend == "memory" {
		q = queue.NewInMemory(64)
	} else {
		q = queue.NewRedisQueue(redisClient.Client, "rollcall:marks")
	}

	messages, err := q.Consume(ctx)
	if err != nil {
		log.Fatalf("queue consume init failed: %v", err)
	}

	log.Println("worker started, waiting for messages...")
	for msg := range messages {
		if msg.SessionID == "" {
			continue
		}
		key := store.MarkCountKey(msg.SessionID)
		if err := redisClient.Client.Incr(ctx, key).Err(); err != nil {
			log.Printf("roll-up incr failed for session %s: %v", msg.SessionID, err)
			continue
		}
		_ = redisClient.Client.Expire(ctx, key, cfg.MarkCountTTL).Err()
		log.Printf("session %s: counted record %s", msg.SessionID, msg.RecordID)
	}

	log.Println("worker stopped")
}

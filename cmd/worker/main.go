package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"

	"rollcall/internal/app"
	"rollcall/internal/config"
	"rollcall/internal/queue"
	"rollcall/internal/store"
)

// Worker consumes notification jobs and sends the mails they describe.
func main() {
	cfg := config.Load()
	if app.InProcessQueue(cfg) {
		log.Fatal("QUEUE_BACKEND=memory jobs are consumed inside the API process; use redis or amqp for a separate worker")
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("shutdown signal received")
		cancel()
	}()

	db, err := app.OpenDB(ctx, cfg)
	if err != nil {
		log.Fatalf("db connect failed: %v", err)
	}
	defer db.Close()

	var rdb *store.Redis
	if cfg.QueueBackend == "redis" {
		if rdb, err = store.NewRedis(ctx, cfg.RedisAddr); err != nil {
			log.Fatalf("redis connect failed: %v", err)
		}
		defer rdb.Close()
	}
	var rdbClient *redis.Client
	if rdb != nil {
		rdbClient = rdb.Client
	}
	q, err := queue.FromConfig(cfg.QueueBackend, cfg.QueueName, cfg.AMQPURL, rdbClient)
	if err != nil {
		log.Fatalf("queue init failed: %v", err)
	}
	defer q.Close()

	w := app.NewNotifier(cfg, db)
	log.Printf("consuming %s queue %q", cfg.QueueBackend, cfg.QueueName)
	if err := w.Run(ctx, q); err != nil && ctx.Err() == nil {
		log.Fatalf("worker failed: %v", err)
	}
	log.Println("worker stopped")
}

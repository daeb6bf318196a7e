package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"

	"lmsportal/internal/config"
	"lmsportal/internal/digest"
	"lmsportal/internal/lmsapi"
	"lmsportal/internal/logsvc"
	"lmsportal/internal/queue"
	"lmsportal/internal/store"
)

// Worker consumes digest jobs from the queue and asks the LMS API to send the email.
func main() {
	cfg := config.Load()
	logger := logsvc.New(cfg.RollbarToken, cfg.Env)
	defer logger.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Printf("shutdown signal received")
		cancel()
	}()

	if cfg.QueueBackend == "memory" {
		log.Fatalf("worker needs a shared queue; QUEUE_BACKEND=memory only works inside the portal")
	}

	redisClient := store.NewRedis(cfg.RedisAddr)
	defer redisClient.Close()
	if !redisClient.Healthy(ctx) {
		logger.Printf("WARNING: redis at %s not reachable, will keep retrying", cfg.RedisAddr)
	}

	q := queue.NewRedisQueue(redisClient.Client, queue.DefaultKey)
	w := digest.NewWorker(lmsapi.New(cfg.APIBaseURL, cfg.APITimeout), logger)

	logger.Printf("worker started, waiting for digest jobs on %s...", queue.DefaultKey)
	if err := w.Run(ctx, q); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("worker failed: %v", err)
	}
	logger.Printf("worker stopped")
}

package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"lmsportal/internal/chat"
	"lmsportal/internal/config"
	"lmsportal/internal/digest"
	"lmsportal/internal/lmsapi"
	"lmsportal/internal/logsvc"
	"lmsportal/internal/portal"
	"lmsportal/internal/queue"
	"lmsportal/internal/session"
	"lmsportal/internal/store"
)

func main() {
	cfg := config.Load()

	if cfg.Production() {
		gin.SetMode(gin.ReleaseMode)
	}

	logger := logsvc.New(cfg.RollbarToken, cfg.Env)
	defer logger.Close()

	if err := runHTTP(cfg, logger); err != nil {
		log.Fatalf("http server failed: %v", err)
	}
}

func runHTTP(cfg config.App, logger *logsvc.Logger) error {
	redisClient := store.NewRedis(cfg.RedisAddr)
	defer redisClient.Close()

	var sessions session.Factory
	if cfg.SessionBackend == "memory" {
		sessions = session.MemoryFactory()
	} else {
		sessions = session.RedisFactory(redisClient.Client, cfg.SessionTTL)
	}

	db, err := store.NewDB(cfg.DatabaseURL)
	if err != nil {
		logger.Printf("warning: db not reachable: %v", err)
	}
	defer func() {
		if db != nil {
			_ = db.Close()
		}
	}()

	// Without a database the digest window only holds for this process.
	var ledger digest.Ledger
	if err == nil {
		ledger = digest.NewRepository(db.Client)
	} else {
		ledger = digest.NewMemoryLedger()
	}

	api := lmsapi.New(cfg.APIBaseURL, cfg.APITimeout)

	var (
		dispatcher digest.Dispatcher
		direct     *digest.Direct
	)
	if cfg.DigestDelivery == "queue" {
		var q queue.Queue
		if cfg.QueueBackend == "memory" {
			q = queue.NewInMemory(64)
			// nothing else can read an in-process queue
			go func() {
				if err := digest.NewWorker(api, logger).Run(context.Background(), q); err != nil {
					logger.Errorf("digest worker stopped: %w", err)
				}
			}()
		} else {
			q = queue.NewRedisQueue(redisClient.Client, queue.DefaultKey)
		}
		dispatcher = digest.NewQueued(q)
	} else {
		direct = digest.NewDirect(api, logger)
		dispatcher = direct
	}

	socketURL := cfg.SocketURL
	var relay *chat.Hub
	if cfg.ChatRelay {
		relay = chat.NewHub(nil)
		socketURL = "ws://127.0.0.1:" + cfg.HTTPPort + "/chat/relay"
		logger.Printf("chat relay enabled at %s", socketURL)
	}

	health := map[string]func(ctx context.Context) bool{}
	if cfg.SessionBackend != "memory" || (cfg.DigestDelivery == "queue" && cfg.QueueBackend != "memory") {
		health["redis"] = redisClient.Healthy
	}
	if db != nil {
		health["db"] = db.Healthy
	}

	srv := portal.New(portal.Options{
		API:             api,
		Sessions:        sessions,
		Notifier:        digest.NewTrigger(ledger, dispatcher, cfg.DigestWindow, logger),
		Ledger:          ledger,
		Log:             logger,
		SocketURL:       socketURL,
		Relay:           relay,
		CORSOrigins:     cfg.CORSOrigins,
		RateLimitPerMin: cfg.RateLimitPerMin,
		SecureCookies:   cfg.Production(),
		Health:          health,
		ViewTTL:         cfg.SessionTTL,
	})

	httpSrv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      srv.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Printf("Starting portal on :%s (api %s)", cfg.HTTPPort, cfg.APIBaseURL)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Printf("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Printf("Server forced shutdown: %v", err)
	}
	if direct != nil {
		direct.Wait()
	}

	logger.Printf("Server exited")
	return nil
}

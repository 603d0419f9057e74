package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"

	"github.com/safar/arun-store/internal/api"
	"github.com/safar/arun-store/internal/auth"
	"github.com/safar/arun-store/internal/cache"
	"github.com/safar/arun-store/internal/checkout"
	"github.com/safar/arun-store/internal/config"
	"github.com/safar/arun-store/internal/database"
	"github.com/safar/arun-store/internal/events"
	"github.com/safar/arun-store/internal/logging"
	"github.com/safar/arun-store/internal/pricing"
	"github.com/safar/arun-store/internal/quotes"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	log, err := logging.New(cfg.Log)
	if err != nil {
		panic(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.NewConnection(ctx, &cfg.Database)
	if err != nil {
		log.Fatalf("Connect to database: %v", err)
	}
	defer db.Close()

	log.Info("Connected to database successfully")

	var idempotency api.IdempotencyStore
	if cfg.Redis.Addr != "" {
		rdb, err := cache.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password)
		if err != nil {
			log.Fatalf("Connect to redis: %v", err)
		}
		defer rdb.Close()
		idempotency = cache.NewRedisIdempotencyStore(rdb, cfg.Redis.IdempotencyTTL)
	} else {
		log.Warn("REDIS_ADDR not set, checkout requests will not be deduplicated")
	}

	var publisher events.Publisher = events.NewLogPublisher(log)
	if cfg.RabbitMQ.URL != "" {
		pub, conn, err := events.Dial(cfg.RabbitMQ.URL, cfg.RabbitMQ.Exchange)
		if err != nil {
			log.Fatalf("Connect to rabbitmq: %v", err)
		}
		defer conn.Close()
		publisher = pub
	}

	orders := checkout.New(db,
		pricing.Config{
			TaxRate:               cfg.Pricing.TaxRate,
			ShippingFee:           cfg.Pricing.ShippingFee,
			FreeShippingThreshold: cfg.Pricing.FreeShippingThreshold,
		},
		checkout.Options{
			NumberPrefix:     cfg.Orders.NumberPrefix,
			MaxRetries:       cfg.Orders.NumberMaxRetries,
			DeliveryLeadTime: cfg.Orders.DeliveryLeadTime,
			LockTimeout:      cfg.Orders.LockTimeout,
		},
		publisher, log)
	quoteSvc := quotes.New(db, cfg.Orders.QuoteNumberPrefix, cfg.Orders.NumberMaxRetries, publisher, log)

	if cfg.Log.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	h := api.NewHandler(db, orders, quoteSvc, idempotency, log)
	router := api.NewRouter(h, auth.NewTokenManager(cfg.Auth), log)

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.Infof("Server starting on port %s", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server error: %v", err)
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("Graceful shutdown failed")
	}
}

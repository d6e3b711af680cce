package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"

	"ms-checkout/internal/auth"
	"ms-checkout/internal/checkout"
	checkout_api "ms-checkout/internal/checkout/api"
	checkout_db "ms-checkout/internal/checkout/db"
	checkout_redis "ms-checkout/internal/checkout/redis"
	"ms-checkout/internal/config"
	"ms-checkout/internal/database/migrations"
	"ms-checkout/internal/inventory"
	"ms-checkout/internal/kafka"
	"ms-checkout/internal/logger"
	"ms-checkout/internal/notify"
	ticket_db "ms-checkout/internal/tickets/db"

	"ms-checkout/internal/tickets"
)

func verifyConnections(ctx context.Context, cfg *config.Config, log *logger.Logger) (*bun.DB, *redis.Client) {
	var sqldb *sql.DB
	var err error
	maxRetries := 5

	for i := 0; i < maxRetries; i++ {
		log.Info("DATABASE", fmt.Sprintf("Attempting to connect to PostgreSQL (attempt %d/%d)", i+1, maxRetries))
		sqldb, err = sql.Open("postgres", cfg.Database.DSN)
		if err != nil {
			log.Error("DATABASE", fmt.Sprintf("Failed to open PostgreSQL: %v", err))
			time.Sleep(2 * time.Second)
			continue
		}

		err = sqldb.Ping()
		if err == nil {
			break
		}

		log.Error("DATABASE", fmt.Sprintf("Failed to connect to PostgreSQL: %v", err))
		if i < maxRetries-1 {
			time.Sleep(2 * time.Second)
		}
	}

	if err != nil {
		log.Fatal("DATABASE", fmt.Sprintf("Failed to connect to PostgreSQL after %d attempts: %v", maxRetries, err))
	}

	sqldb.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	sqldb.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	sqldb.SetConnMaxLifetime(cfg.Database.MaxLifetime)

	log.Info("DATABASE", "✅ PostgreSQL connection successful")

	bunDB := bun.NewDB(sqldb, pgdialect.New())

	redisClient := redis.NewClient(&redis.Options{
		Addr: cfg.Redis.Addr,
	})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Fatal("DATABASE", fmt.Sprintf("Redis connection error: %v", err))
	}
	log.Info("DATABASE", fmt.Sprintf("✅ Redis connection successful to %s", cfg.Redis.Addr))

	return bunDB, redisClient
}

func main() {
	log := logger.NewLogger("checkout-service")
	defer log.Close()

	log.Info("APP", "Starting Checkout Service initialization")

	if err := godotenv.Load(); err != nil {
		log.Warn("CONFIG", ".env file not found, using environment variables")
	} else {
		log.Info("CONFIG", "Loaded environment variables from .env file")
	}

	cfg := config.Load()
	log.Debug("CONFIG", fmt.Sprintf("Session TTL %s, reaper interval %s, currency %s",
		cfg.Checkout.SessionTTL, cfg.Checkout.ReaperInterval, cfg.Checkout.Currency))
	ctx := context.Background()

	log.Info("APP", "Verifying database connections")
	bunDB, redisClient := verifyConnections(ctx, cfg, log)
	defer bunDB.Close()
	defer redisClient.Close()

	if cfg.Database.AutoMigrate {
		runner := migrations.NewRunner(bunDB, migrations.MigrateOptions{
			MigrationsDir: cfg.Database.MigrationsDir,
			AutoMigrate:   true,
		})
		if err := runner.RunMigrations(); err != nil {
			log.Fatal("DATABASE", fmt.Sprintf("Migrations failed: %v", err))
		}
		log.Info("DATABASE", "✅ Migrations applied")
	}

	var producer checkout.KafkaPublisher
	var producerCloser interface{ Close() error }
	if cfg.Kafka.Enabled {
		log.Info("KAFKA", fmt.Sprintf("Using Kafka brokers: %v", cfg.Kafka.Brokers))
		kafkaProducer := kafka.NewProducer(cfg.Kafka.Brokers)
		producer = kafkaProducer
		producerCloser = kafkaProducer

		requiredTopics := []string{
			cfg.Kafka.Topics.OrderCompleted,
			cfg.Kafka.Topics.Notifications,
		}
		if err := kafka.EnsureTopicsExist(cfg.Kafka.Brokers, requiredTopics); err != nil {
			log.Warn("KAFKA", fmt.Sprintf("Topic creation might have failed: %v", err))
		} else {
			log.Info("KAFKA", "Required topics ensured successfully")
		}
	} else {
		log.Warn("KAFKA", "Kafka disabled, order events will not be published")
		producer = kafka.NoopProducer{}
		producerCloser = kafka.NoopProducer{}
	}
	defer producerCloser.Close()

	if cfg.Tickets.SigningSecret == "" {
		log.Fatal("CONFIG", "TICKET_SIGNING_SECRET not set")
	}

	dbLayer := &checkout_db.DB{Bun: bunDB}
	ledger := &inventory.Ledger{DB: bunDB}
	sessions := checkout_redis.NewSessionStore(redisClient)
	issuer := tickets.NewIssuer(&ticket_db.DB{Bun: bunDB}, cfg.Tickets.SigningSecret,
		cfg.Tickets.CodePrefix, cfg.Tickets.CodeLength, cfg.Tickets.PayloadTTL)
	notifier := notify.NewDispatcher(producer, cfg.Kafka.Topics.Notifications)

	log.Info("APP", "Initializing Checkout Service")
	service := checkout.NewService(dbLayer, ledger, sessions, issuer, producer, notifier, log,
		cfg.Checkout.Currency, cfg.Checkout.SessionTTL)
	service.OrderTopic = cfg.Kafka.Topics.OrderCompleted
	handler := checkout_api.NewHandler(service)

	reaperCtx, stopReaper := context.WithCancel(ctx)
	defer stopReaper()
	reaper := checkout.NewReaper(sessions, ledger, log, cfg.Checkout.ReaperInterval)
	go reaper.Start(reaperCtx)

	log.Info("HTTP", "Setting up router and middleware")
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Route("/api/v1/checkout", func(r chi.Router) {
		if auth.Enabled() {
			r.Use(auth.Middleware())
		}
		r.Post("/start", handler.StartCheckout)
		r.Post("/complete", handler.CompleteCheckout)
	})

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	server := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info("HTTP", fmt.Sprintf("🚀 Checkout Service running on %s", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("HTTP", fmt.Sprintf("HTTP server error: %v", err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("APP", "Shutdown signal received. Cleaning up...")

	stopReaper()

	ctxShutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(ctxShutdown); err != nil {
		log.Fatal("HTTP", fmt.Sprintf("Server forced to shutdown: %v", err))
	}

	log.Info("APP", "✅ Server exited gracefully")
}

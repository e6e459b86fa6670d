package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/vasiliy-maslov/checkout-service/internal/auth"
	"github.com/vasiliy-maslov/checkout-service/internal/cart"
	"github.com/vasiliy-maslov/checkout-service/internal/catalog"
	"github.com/vasiliy-maslov/checkout-service/internal/checkout"
	"github.com/vasiliy-maslov/checkout-service/internal/config"
	"github.com/vasiliy-maslov/checkout-service/internal/db"
	"github.com/vasiliy-maslov/checkout-service/internal/events"
	"github.com/vasiliy-maslov/checkout-service/internal/metrics"
	"github.com/vasiliy-maslov/checkout-service/internal/order"
	"github.com/vasiliy-maslov/checkout-service/internal/ordernumber"
	"github.com/vasiliy-maslov/checkout-service/internal/transport"
)

func main() {
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}
	setupLogger(cfg.App)

	log.Info().Msg("Checkout service starting...")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pg, err := db.New(ctx, cfg.Postgres)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer pg.Close()

	if err := pg.Migrate(); err != nil {
		log.Fatal().Err(err).Msg("Failed to apply migrations")
	}

	var countCache cart.CountCache
	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer client.Close()
		if err := client.Ping(ctx).Err(); err != nil {
			log.Warn().Err(err).Str("addr", cfg.Redis.Addr).Msg("Redis unreachable, cart counts will hit the database")
		}
		countCache = cart.NewRedisCountCache(client, cfg.Redis.CountTTL)
	}

	txManager := db.NewTxManager(pg.Pool)
	products := catalog.NewRepository(pg.Pool)
	cartRepo := cart.NewRepository(pg.Pool)
	orderRepo := order.NewRepository(pg.Pool)
	outbox := events.NewRepository(pg.Pool)
	recorder := events.NewRecorder(outbox, cfg.Kafka.Topic)
	numbers := ordernumber.NewGenerator(cfg.OrderNumber.Prefix, cfg.OrderNumber.Attempts, orderRepo)

	cartSvc := cart.NewService(txManager, cartRepo, products, countCache)
	orderSvc := order.NewService(txManager, orderRepo, products, recorder)
	engine := checkout.NewEngine(txManager, cartRepo, products, orderRepo, numbers, recorder, countCache)

	relayDone := make(chan struct{})
	if len(cfg.Kafka.Brokers) > 0 {
		publisher := events.NewKafkaPublisher(cfg.Kafka.Brokers)
		relay := events.NewRelay(outbox, publisher, cfg.Kafka.PollInterval, cfg.Kafka.BatchSize)
		go func() {
			defer close(relayDone)
			relay.Run(ctx)
			if err := publisher.Close(); err != nil {
				log.Error().Err(err).Msg("Failed to close Kafka writer")
			}
		}()
		log.Info().Strs("brokers", cfg.Kafka.Brokers).Str("topic", cfg.Kafka.Topic).Msg("Outbox relay started")
	} else {
		close(relayDone)
		log.Info().Msg("No Kafka brokers configured, outbox events are recorded only")
	}

	router := transport.NewRouter(transport.Deps{
		Carts:    cartSvc,
		Orders:   orderSvc,
		Checkout: engine,
		Verifier: auth.NewJWTVerifier(cfg.Auth.JWTSecret),
		AdminIDs: cfg.Auth.AdminUserIDs,
		DB:       pg.Pool,
		Metrics:  metrics.NewServerMetrics(prometheus.DefaultRegisterer, cfg.App.Name),
		Gatherer: prometheus.DefaultGatherer,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.App.Port,
		Handler:      router,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Info().Str("port", cfg.App.Port).Msg("Starting HTTP server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Shutdown failed")
	}
	<-relayDone
	log.Info().Msg("Server stopped")
}

func setupLogger(app config.AppConfig) {
	level, err := zerolog.ParseLevel(strings.ToLower(app.LogLevel))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if app.Env == "development" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
	log.Logger = log.With().Str("service", app.Name).Logger()
}

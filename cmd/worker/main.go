package main

import (
	"context"
	"database/sql"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/yrcho/time-sale/internal/adapter/queue"
	"github.com/yrcho/time-sale/internal/adapter/storage"
	"github.com/yrcho/time-sale/internal/config"
	"github.com/yrcho/time-sale/internal/core/service"
	"github.com/yrcho/time-sale/internal/metrics"
)

func main() {
	logger := zerolog.New(os.Stdout).With().Timestamp().Str("service", "time-sale-worker").Logger()

	cfg, err := config.Load("")
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := sql.Open("mysql", cfg.MySQL.DSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open mysql")
	}
	db.SetMaxOpenConns(cfg.MySQL.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MySQL.MaxIdleConns)
	db.SetConnMaxLifetime(5 * time.Minute)
	if err := db.PingContext(ctx); err != nil {
		logger.Fatal().Err(err).Msg("failed to ping mysql")
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		PoolSize: cfg.Redis.PoolSize,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Fatal().Err(err).Msg("failed to connect redis")
	}

	redisAdapter := storage.NewRedisAdapter(rdb)
	mysqlAdapter := storage.NewMySQLAdapter(db)
	rec := metrics.NewRecorder(prometheus.DefaultRegisterer)

	fulfillment := service.NewFulfillmentService(
		mysqlAdapter, redisAdapter, redisAdapter, rec, logger, cfg.Result.TTL.Std())

	consumers := make([]*queue.Consumer, 0, cfg.Worker.Count)
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < cfg.Worker.Count; i++ {
		consumer := queue.NewConsumer(
			cfg.Kafka.Brokers, cfg.Kafka.Topic, cfg.Kafka.GroupID, fulfillment.Process,
			logger.With().Int("consumer", i).Logger())
		consumers = append(consumers, consumer)
		g.Go(func() error {
			return consumer.Start(gctx)
		})
	}
	logger.Info().Int("count", cfg.Worker.Count).Msg("fulfillment consumers started")

	<-ctx.Done()
	logger.Info().Msg("shutting down")

	for _, consumer := range consumers {
		consumer.Close()
	}
	if err := g.Wait(); err != nil {
		logger.Error().Err(err).Msg("consumer group stopped with error")
	}

	rdb.Close()
	db.Close()
	logger.Info().Msg("connections closed")
}

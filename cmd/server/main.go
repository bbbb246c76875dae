package main

import (
	"context"
	"database/sql"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/go-zookeeper/zk"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"

	"github.com/yrcho/time-sale/internal/adapter/handler"
	"github.com/yrcho/time-sale/internal/adapter/lock"
	"github.com/yrcho/time-sale/internal/adapter/queue"
	"github.com/yrcho/time-sale/internal/adapter/storage"
	"github.com/yrcho/time-sale/internal/config"
	"github.com/yrcho/time-sale/internal/core/service"
	"github.com/yrcho/time-sale/internal/metrics"
	"github.com/yrcho/time-sale/internal/port"
)

func main() {
	logger := zerolog.New(os.Stdout).With().Timestamp().Str("service", "time-sale-api").Logger()

	cfg, err := config.Load("")
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// MySQL
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
	logger.Info().Msg("connected to mysql")

	// Redis
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		PoolSize: cfg.Redis.PoolSize,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Fatal().Err(err).Msg("failed to connect redis")
	}
	logger.Info().Msg("connected to redis")

	// Adapters
	redisAdapter := storage.NewRedisAdapter(rdb)
	mysqlAdapter := storage.NewMySQLAdapter(db)

	var locks port.LockService
	var zkConn *zk.Conn
	switch cfg.Lock.Provider {
	case "zookeeper":
		conn, _, err := zk.Connect(cfg.Lock.ZookeeperServers, cfg.Lock.LeaseTimeout.Std())
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect zookeeper")
		}
		zkConn = conn
		locks = lock.NewZKLockService(conn)
		logger.Info().Msg("using zookeeper locks")
	default:
		locks = lock.NewRedisLockService(rdb)
		logger.Info().Msg("using redis locks")
	}

	producer := queue.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic)
	rec := metrics.NewRecorder(prometheus.DefaultRegisterer)

	// Services
	salesService := service.NewTimeSaleService(mysqlAdapter, redisAdapter, logger)
	admissionService := service.NewAdmissionService(service.AdmissionConfig{
		LockWait:  cfg.Lock.WaitTimeout.Std(),
		LockLease: cfg.Lock.LeaseTimeout.Std(),
		ResultTTL: cfg.Result.TTL.Std(),
	}, salesService, redisAdapter, redisAdapter, locks, producer, rec, logger)
	statusService := service.NewStatusService(redisAdapter, logger)

	// HTTP server
	httpHandler := handler.NewHTTPHandler(salesService, admissionService, statusService, logger)
	mux := http.NewServeMux()
	httpHandler.Register(mux)
	mux.Handle("/metrics", promhttp.Handler())

	httpServer := &http.Server{
		Addr:    cfg.Server.HTTPAddr,
		Handler: mux,
	}
	go func() {
		logger.Info().Str("addr", cfg.Server.HTTPAddr).Msg("http server listening")
		if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("http server error")
		}
	}()

	// gRPC health server, for liveness probes
	grpcServer := grpc.NewServer()
	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)

	lis, err := net.Listen("tcp", cfg.Server.GRPCAddr)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to listen for grpc")
	}
	go func() {
		logger.Info().Str("addr", cfg.Server.GRPCAddr).Msg("grpc server listening")
		if err := grpcServer.Serve(lis); err != nil {
			logger.Error().Err(err).Msg("grpc server error")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down")
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_NOT_SERVING)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	httpServer.Shutdown(shutdownCtx)
	logger.Info().Msg("http server stopped")

	grpcServer.GracefulStop()
	logger.Info().Msg("grpc server stopped")

	producer.Close()
	if zkConn != nil {
		zkConn.Close()
	}
	rdb.Close()
	db.Close()
	logger.Info().Msg("connections closed")
}

package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/yrcho/time-sale/internal/adapter/lock"
	"github.com/yrcho/time-sale/internal/adapter/storage"
	"github.com/yrcho/time-sale/internal/config"
	"github.com/yrcho/time-sale/internal/core/domain"
	"github.com/yrcho/time-sale/internal/core/service"
	"github.com/yrcho/time-sale/internal/metrics"
)

const (
	initialStock  = 20
	totalRequests = 50
)

// memoryQueue stands in for Kafka so the stress run exercises the full
// admission path without a broker. Accepted requests are counted and dropped.
type memoryQueue struct {
	accepted atomic.Int64
}

func (q *memoryQueue) Enqueue(ctx context.Context, req *domain.PurchaseRequest) error {
	q.accepted.Add(1)
	return nil
}

func main() {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger().Level(zerolog.WarnLevel)

	cfg, err := config.Load("")
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}

	ctx := context.Background()

	rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Fatal().Err(err).Msg("failed to connect redis")
	}
	defer rdb.Close()

	db, err := sql.Open("mysql", cfg.MySQL.DSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open mysql")
	}
	defer db.Close()
	if err := db.PingContext(ctx); err != nil {
		logger.Fatal().Err(err).Msg("failed to ping mysql")
	}

	redisAdapter := storage.NewRedisAdapter(rdb)
	mysqlAdapter := storage.NewMySQLAdapter(db)
	locks := lock.NewRedisLockService(rdb)
	queue := &memoryQueue{}
	rec := metrics.Nop()

	sales := service.NewTimeSaleService(mysqlAdapter, redisAdapter, logger)
	admission := service.NewAdmissionService(service.AdmissionConfig{},
		sales, redisAdapter, redisAdapter, locks, queue, rec, logger)

	sale, err := sales.CreateTimeSale(ctx, service.CreateTimeSaleInput{
		ProductID:     "stress-product",
		Quantity:      initialStock,
		DiscountPrice: 1000,
		StartAt:       time.Now().Add(-time.Minute),
		EndAt:         time.Now().Add(time.Hour),
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create time sale")
	}

	var successCount atomic.Int32
	var soldOutCount atomic.Int32
	var otherCount atomic.Int32
	var wg sync.WaitGroup

	start := time.Now()
	for i := 0; i < totalRequests; i++ {
		wg.Add(1)
		go func(userID int) {
			defer wg.Done()
			_, err := admission.Purchase(ctx, sale.ID, fmt.Sprintf("user-%d", userID), 1)
			switch {
			case err == nil:
				successCount.Add(1)
			case errors.Is(err, domain.ErrSoldOut):
				soldOutCount.Add(1)
			default:
				otherCount.Add(1)
			}
		}(i)
	}
	wg.Wait()
	elapsed := time.Since(start)

	remaining, _ := rdb.Get(ctx, "stock:"+sale.ID).Int()

	fmt.Printf("requests:   %d\n", totalRequests)
	fmt.Printf("accepted:   %d\n", successCount.Load())
	fmt.Printf("sold out:   %d\n", soldOutCount.Load())
	fmt.Printf("errors:     %d\n", otherCount.Load())
	fmt.Printf("enqueued:   %d\n", queue.accepted.Load())
	fmt.Printf("remaining:  %d\n", remaining)
	fmt.Printf("elapsed:    %s\n", elapsed)

	if successCount.Load() != initialStock {
		fmt.Printf("WARNING: expected %d accepted requests\n", initialStock)
	}
	if remaining != 0 {
		fmt.Printf("WARNING: expected counter to reach 0\n")
	}
}

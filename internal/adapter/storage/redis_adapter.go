package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/yrcho/time-sale/internal/core/domain"
)

const (
	stockKeyPrefix   = "stock:"
	saleKeyPrefix    = "time-sale:"
	resultKeyPrefix  = "purchase-result:"
	waitingKeyPrefix = "time-sale-waiting:"
)

// reserveStockScript decrements first and compensates when the counter went
// negative, so concurrent reservations across processes cannot interleave a
// read-modify-write. A missing counter reads as sold out.
var reserveStockScript = redis.NewScript(`
local key = KEYS[1]
local quantity = tonumber(ARGV[1])

local remaining = redis.call('DECRBY', key, quantity)
if remaining < 0 then
	redis.call('INCRBY', key, quantity)
	return 0
end

return 1
`)

type RedisAdapter struct {
	client *redis.Client
}

func NewRedisAdapter(client *redis.Client) *RedisAdapter {
	return &RedisAdapter{client: client}
}

func (r *RedisAdapter) TryReserve(ctx context.Context, saleID string, quantity int64) (bool, error) {
	key := stockKeyPrefix + saleID

	result, err := reserveStockScript.Run(ctx, r.client, []string{key}, quantity).Int()
	if err != nil {
		return false, fmt.Errorf("reserve stock %s: %w", saleID, err)
	}

	return result == 1, nil
}

func (r *RedisAdapter) RestoreStock(ctx context.Context, saleID string, quantity int64) error {
	key := stockKeyPrefix + saleID
	return r.client.IncrBy(ctx, key, quantity).Err()
}

func (r *RedisAdapter) SetStock(ctx context.Context, saleID string, quantity int64) error {
	key := stockKeyPrefix + saleID
	return r.client.Set(ctx, key, quantity, 0).Err()
}

func (r *RedisAdapter) GetTimeSale(ctx context.Context, saleID string) (*domain.TimeSale, error) {
	raw, err := r.client.Get(ctx, saleKeyPrefix+saleID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get time sale snapshot %s: %w", saleID, err)
	}

	var sale domain.TimeSale
	if err := json.Unmarshal(raw, &sale); err != nil {
		return nil, fmt.Errorf("decode time sale snapshot %s: %w", saleID, err)
	}
	return &sale, nil
}

func (r *RedisAdapter) SaveTimeSale(ctx context.Context, sale *domain.TimeSale) error {
	raw, err := json.Marshal(sale)
	if err != nil {
		return fmt.Errorf("encode time sale snapshot %s: %w", sale.ID, err)
	}
	return r.client.Set(ctx, saleKeyPrefix+sale.ID, raw, 0).Err()
}

func (r *RedisAdapter) SetResult(ctx context.Context, requestID string, status domain.ResultStatus, ttl time.Duration) error {
	return r.client.Set(ctx, resultKeyPrefix+requestID, string(status), ttl).Err()
}

func (r *RedisAdapter) GetResult(ctx context.Context, requestID string) (domain.ResultStatus, error) {
	value, err := r.client.Get(ctx, resultKeyPrefix+requestID).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get purchase result %s: %w", requestID, err)
	}
	return domain.ResultStatus(value), nil
}

func (r *RedisAdapter) AddWaiting(ctx context.Context, saleID, requestID string, enqueuedAt time.Time) error {
	return r.client.ZAdd(ctx, waitingKeyPrefix+saleID, redis.Z{
		Score:  float64(enqueuedAt.UnixNano()),
		Member: requestID,
	}).Err()
}

func (r *RedisAdapter) RemoveWaiting(ctx context.Context, saleID, requestID string) error {
	return r.client.ZRem(ctx, waitingKeyPrefix+saleID, requestID).Err()
}

func (r *RedisAdapter) QueuePosition(ctx context.Context, saleID, requestID string) (int64, error) {
	rank, err := r.client.ZRank(ctx, waitingKeyPrefix+saleID, requestID).Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("queue position %s: %w", requestID, err)
	}
	return rank + 1, nil
}

func (r *RedisAdapter) TotalWaiting(ctx context.Context, saleID string) (int64, error) {
	total, err := r.client.ZCard(ctx, waitingKeyPrefix+saleID).Result()
	if err != nil {
		return 0, fmt.Errorf("total waiting %s: %w", saleID, err)
	}
	return total, nil
}

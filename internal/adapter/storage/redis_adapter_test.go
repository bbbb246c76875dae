package storage

import (
	"context"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/yrcho/time-sale/internal/core/domain"
)

func getRedisClient(t *testing.T) *redis.Client {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}

	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(context.Background()).Err(); err != nil {
		t.Skipf("Redis not available: %v", err)
	}
	return client
}

func TestTryReserve_Success(t *testing.T) {
	client := getRedisClient(t)
	defer client.Close()

	ctx := context.Background()
	adapter := NewRedisAdapter(client)

	// Setup
	client.Del(ctx, "stock:test-sale")
	adapter.SetStock(ctx, "test-sale", 10)

	// Test
	ok, err := adapter.TryReserve(ctx, "test-sale", 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Error("expected success")
	}

	// Verify
	stock, _ := client.Get(ctx, "stock:test-sale").Int()
	if stock != 7 {
		t.Errorf("expected stock 7, got %d", stock)
	}
}

func TestTryReserve_InsufficientStock(t *testing.T) {
	client := getRedisClient(t)
	defer client.Close()

	ctx := context.Background()
	adapter := NewRedisAdapter(client)

	// Setup
	client.Del(ctx, "stock:test-sale")
	adapter.SetStock(ctx, "test-sale", 5)

	// Test - try to reserve more than available
	ok, err := adapter.TryReserve(ctx, "test-sale", 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Error("expected failure due to insufficient stock")
	}

	// Verify stock unchanged
	stock, _ := client.Get(ctx, "stock:test-sale").Int()
	if stock != 5 {
		t.Errorf("expected stock 5, got %d", stock)
	}
}

func TestTryReserve_KeyNotExists(t *testing.T) {
	client := getRedisClient(t)
	defer client.Close()

	ctx := context.Background()
	adapter := NewRedisAdapter(client)

	// Setup - ensure key doesn't exist
	client.Del(ctx, "stock:nonexistent")

	// Test
	ok, err := adapter.TryReserve(ctx, "nonexistent", 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Error("expected failure for nonexistent key")
	}
}

func TestTryReserve_Concurrent(t *testing.T) {
	client := getRedisClient(t)
	defer client.Close()

	ctx := context.Background()
	adapter := NewRedisAdapter(client)

	initialStock := 20
	totalRequests := 50

	// Setup
	client.Del(ctx, "stock:concurrent-test")
	adapter.SetStock(ctx, "concurrent-test", int64(initialStock))

	var successCount atomic.Int32
	var wg sync.WaitGroup

	for i := 0; i < totalRequests; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := adapter.TryReserve(ctx, "concurrent-test", 1)
			if err != nil {
				t.Errorf("unexpected error: %v", err)
				return
			}
			if ok {
				successCount.Add(1)
			}
		}()
	}

	wg.Wait()

	if successCount.Load() != int32(initialStock) {
		t.Errorf("expected %d successes, got %d", initialStock, successCount.Load())
	}

	stock, _ := client.Get(ctx, "stock:concurrent-test").Int()
	if stock != 0 {
		t.Errorf("expected stock 0, got %d", stock)
	}
}

func TestRestoreStock(t *testing.T) {
	client := getRedisClient(t)
	defer client.Close()

	ctx := context.Background()
	adapter := NewRedisAdapter(client)

	// Setup
	client.Del(ctx, "stock:test-sale")
	adapter.SetStock(ctx, "test-sale", 5)

	// Test
	err := adapter.RestoreStock(ctx, "test-sale", 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Verify
	stock, _ := client.Get(ctx, "stock:test-sale").Int()
	if stock != 8 {
		t.Errorf("expected stock 8, got %d", stock)
	}
}

func TestTimeSaleSnapshot_Roundtrip(t *testing.T) {
	client := getRedisClient(t)
	defer client.Close()

	ctx := context.Background()
	adapter := NewRedisAdapter(client)

	client.Del(ctx, "time-sale:test-sale")

	now := time.Now().Truncate(time.Second)
	sale := &domain.TimeSale{
		ID:                "test-sale",
		ProductID:         "test-product",
		Quantity:          100,
		RemainingQuantity: 42,
		DiscountPrice:     5000,
		StartAt:           now,
		EndAt:             now.Add(time.Hour),
		Status:            domain.TimeSaleStatusActive,
		Version:           3,
	}
	if err := adapter.SaveTimeSale(ctx, sale); err != nil {
		t.Fatalf("SaveTimeSale failed: %v", err)
	}

	got, err := adapter.GetTimeSale(ctx, "test-sale")
	if err != nil {
		t.Fatalf("GetTimeSale failed: %v", err)
	}
	if got == nil {
		t.Fatal("expected snapshot, got nil")
	}
	if got.RemainingQuantity != 42 || got.Status != domain.TimeSaleStatusActive || got.Version != 3 {
		t.Errorf("snapshot mismatch: %+v", got)
	}
}

func TestGetTimeSale_Missing(t *testing.T) {
	client := getRedisClient(t)
	defer client.Close()

	ctx := context.Background()
	adapter := NewRedisAdapter(client)

	client.Del(ctx, "time-sale:nonexistent")

	got, err := adapter.GetTimeSale(ctx, "nonexistent")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil for missing snapshot, got %+v", got)
	}
}

func TestPurchaseResult_Lifecycle(t *testing.T) {
	client := getRedisClient(t)
	defer client.Close()

	ctx := context.Background()
	adapter := NewRedisAdapter(client)

	client.Del(ctx, "purchase-result:test-req")

	// Unknown request reads as empty
	status, err := adapter.GetResult(ctx, "test-req")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if status != "" {
		t.Errorf("expected empty status, got %q", status)
	}

	if err := adapter.SetResult(ctx, "test-req", domain.ResultPending, time.Minute); err != nil {
		t.Fatalf("SetResult failed: %v", err)
	}
	status, _ = adapter.GetResult(ctx, "test-req")
	if status != domain.ResultPending {
		t.Errorf("expected PENDING, got %q", status)
	}

	if err := adapter.SetResult(ctx, "test-req", domain.ResultSuccess, time.Minute); err != nil {
		t.Fatalf("SetResult failed: %v", err)
	}
	status, _ = adapter.GetResult(ctx, "test-req")
	if status != domain.ResultSuccess {
		t.Errorf("expected SUCCESS, got %q", status)
	}

	// Verify the TTL stuck
	ttl, _ := client.TTL(ctx, "purchase-result:test-req").Result()
	if ttl <= 0 {
		t.Errorf("expected positive TTL, got %v", ttl)
	}
}

func TestWaitingSet(t *testing.T) {
	client := getRedisClient(t)
	defer client.Close()

	ctx := context.Background()
	adapter := NewRedisAdapter(client)

	client.Del(ctx, "time-sale-waiting:test-sale")

	base := time.Now()
	adapter.AddWaiting(ctx, "test-sale", "req-1", base)
	adapter.AddWaiting(ctx, "test-sale", "req-2", base.Add(time.Millisecond))
	adapter.AddWaiting(ctx, "test-sale", "req-3", base.Add(2*time.Millisecond))

	pos, err := adapter.QueuePosition(ctx, "test-sale", "req-2")
	if err != nil {
		t.Fatalf("QueuePosition failed: %v", err)
	}
	if pos != 2 {
		t.Errorf("expected position 2, got %d", pos)
	}

	total, err := adapter.TotalWaiting(ctx, "test-sale")
	if err != nil {
		t.Fatalf("TotalWaiting failed: %v", err)
	}
	if total != 3 {
		t.Errorf("expected 3 waiting, got %d", total)
	}

	// Fulfilling req-1 moves everyone up
	if err := adapter.RemoveWaiting(ctx, "test-sale", "req-1"); err != nil {
		t.Fatalf("RemoveWaiting failed: %v", err)
	}
	pos, _ = adapter.QueuePosition(ctx, "test-sale", "req-2")
	if pos != 1 {
		t.Errorf("expected position 1 after removal, got %d", pos)
	}

	// Unknown member reports 0
	pos, err = adapter.QueuePosition(ctx, "test-sale", "missing")
	if err != nil {
		t.Fatalf("QueuePosition failed: %v", err)
	}
	if pos != 0 {
		t.Errorf("expected position 0 for unknown member, got %d", pos)
	}
}

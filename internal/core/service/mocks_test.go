package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/yrcho/time-sale/internal/core/domain"
	"github.com/yrcho/time-sale/internal/port"
)

// Mock CacheRepository
type mockCacheRepo struct {
	mu    sync.Mutex
	stock map[string]int64
	sales map[string]domain.TimeSale

	reserveErr  error
	setStockErr error
}

func newMockCacheRepo() *mockCacheRepo {
	return &mockCacheRepo{
		stock: make(map[string]int64),
		sales: make(map[string]domain.TimeSale),
	}
}

func (m *mockCacheRepo) TryReserve(ctx context.Context, saleID string, quantity int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.reserveErr != nil {
		return false, m.reserveErr
	}
	current, ok := m.stock[saleID]
	if !ok || current < quantity {
		return false, nil
	}
	m.stock[saleID] = current - quantity
	return true, nil
}

func (m *mockCacheRepo) RestoreStock(ctx context.Context, saleID string, quantity int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stock[saleID] += quantity
	return nil
}

func (m *mockCacheRepo) SetStock(ctx context.Context, saleID string, quantity int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.setStockErr != nil {
		return m.setStockErr
	}
	m.stock[saleID] = quantity
	return nil
}

func (m *mockCacheRepo) GetTimeSale(ctx context.Context, saleID string) (*domain.TimeSale, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sale, ok := m.sales[saleID]
	if !ok {
		return nil, nil
	}
	copied := sale
	return &copied, nil
}

func (m *mockCacheRepo) SaveTimeSale(ctx context.Context, sale *domain.TimeSale) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sales[sale.ID] = *sale
	return nil
}

func (m *mockCacheRepo) stockOf(saleID string) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stock[saleID]
}

// Mock ResultRepository
type mockResultRepo struct {
	mu      sync.Mutex
	results map[string]domain.ResultStatus
	waiting map[string][]string

	setErr error
}

func newMockResultRepo() *mockResultRepo {
	return &mockResultRepo{
		results: make(map[string]domain.ResultStatus),
		waiting: make(map[string][]string),
	}
}

func (m *mockResultRepo) SetResult(ctx context.Context, requestID string, status domain.ResultStatus, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.setErr != nil {
		return m.setErr
	}
	m.results[requestID] = status
	return nil
}

func (m *mockResultRepo) GetResult(ctx context.Context, requestID string) (domain.ResultStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.results[requestID], nil
}

func (m *mockResultRepo) AddWaiting(ctx context.Context, saleID, requestID string, enqueuedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.waiting[saleID] = append(m.waiting[saleID], requestID)
	return nil
}

func (m *mockResultRepo) RemoveWaiting(ctx context.Context, saleID, requestID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	entries := m.waiting[saleID]
	for i, id := range entries {
		if id == requestID {
			m.waiting[saleID] = append(entries[:i:i], entries[i+1:]...)
			break
		}
	}
	return nil
}

func (m *mockResultRepo) QueuePosition(ctx context.Context, saleID, requestID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, id := range m.waiting[saleID] {
		if id == requestID {
			return int64(i + 1), nil
		}
	}
	return 0, nil
}

func (m *mockResultRepo) TotalWaiting(ctx context.Context, saleID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.waiting[saleID])), nil
}

func (m *mockResultRepo) statusOf(requestID string) domain.ResultStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.results[requestID]
}

// Mock DatabaseRepository
type mockDatabaseRepo struct {
	mu     sync.Mutex
	sales  map[string]domain.TimeSale
	orders map[string]domain.Order // by request id

	createSaleErr error
	orderErr      error
	hasOrderErr   error
}

func newMockDatabaseRepo() *mockDatabaseRepo {
	return &mockDatabaseRepo{
		sales:  make(map[string]domain.TimeSale),
		orders: make(map[string]domain.Order),
	}
}

func (m *mockDatabaseRepo) CreateTimeSale(ctx context.Context, sale *domain.TimeSale) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createSaleErr != nil {
		return m.createSaleErr
	}
	m.sales[sale.ID] = *sale
	return nil
}

func (m *mockDatabaseRepo) GetTimeSale(ctx context.Context, saleID string) (*domain.TimeSale, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sale, ok := m.sales[saleID]
	if !ok {
		return nil, domain.ErrSaleNotFound
	}
	copied := sale
	return &copied, nil
}

func (m *mockDatabaseRepo) ListOngoing(ctx context.Context, now time.Time, limit, offset int) ([]domain.TimeSale, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var sales []domain.TimeSale
	for _, sale := range m.sales {
		if sale.Status == domain.TimeSaleStatusActive && sale.InWindow(now) {
			sales = append(sales, sale)
		}
	}
	return sales, nil
}

func (m *mockDatabaseRepo) ReserveAndDecrement(ctx context.Context, saleID string, quantity int64) (*domain.TimeSale, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reserveAndDecrementLocked(saleID, quantity)
}

func (m *mockDatabaseRepo) reserveAndDecrementLocked(saleID string, quantity int64) (*domain.TimeSale, error) {
	sale, ok := m.sales[saleID]
	if !ok {
		return nil, domain.ErrSaleNotFound
	}
	if err := sale.ValidatePurchase(quantity, time.Now()); err != nil {
		return nil, err
	}
	sale.RemainingQuantity -= quantity
	sale.Version++
	if sale.RemainingQuantity == 0 {
		sale.Status = domain.TimeSaleStatusDepleted
	}
	m.sales[saleID] = sale
	copied := sale
	return &copied, nil
}

func (m *mockDatabaseRepo) CreateOrder(ctx context.Context, order *domain.Order) (*domain.TimeSale, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.orderErr != nil {
		return nil, m.orderErr
	}
	if _, exists := m.orders[order.RequestID]; exists {
		return nil, domain.ErrDuplicateRequest
	}
	sale, err := m.reserveAndDecrementLocked(order.TimeSaleID, order.Quantity)
	if err != nil {
		return nil, err
	}
	order.DiscountPrice = sale.DiscountPrice
	m.orders[order.RequestID] = *order
	return sale, nil
}

func (m *mockDatabaseRepo) HasOrderForRequest(ctx context.Context, requestID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.hasOrderErr != nil {
		return false, m.hasOrderErr
	}
	_, ok := m.orders[requestID]
	return ok, nil
}

func (m *mockDatabaseRepo) orderCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.orders)
}

// Mock LockService
type mockLockService struct {
	timeout  bool
	acquires atomic64
	releases atomic64
}

type atomic64 struct {
	mu sync.Mutex
	n  int64
}

func (a *atomic64) add() {
	a.mu.Lock()
	a.n++
	a.mu.Unlock()
}

func (a *atomic64) load() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.n
}

func (m *mockLockService) TryAcquire(ctx context.Context, key string, wait, lease time.Duration) (port.Lock, error) {
	if m.timeout {
		return nil, port.ErrLockTimeout
	}
	m.acquires.add()
	return &mockLock{service: m}, nil
}

type mockLock struct {
	service *mockLockService
}

func (l *mockLock) Release(ctx context.Context) error {
	l.service.releases.add()
	return nil
}

// Mock MessageQueue
type mockMessageQueue struct {
	mu       sync.Mutex
	messages []domain.PurchaseRequest
	err      error
}

func (m *mockMessageQueue) Enqueue(ctx context.Context, req *domain.PurchaseRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.messages = append(m.messages, *req)
	return nil
}

func (m *mockMessageQueue) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.messages)
}

var errMockFailure = errors.New("mock failure")

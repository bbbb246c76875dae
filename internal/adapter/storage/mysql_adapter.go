package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/yrcho/time-sale/internal/core/domain"
)

const mysqlDuplicateEntry = 1062

// MySQLAdapter is the durable record store. Decrements run under an exclusive
// row lock (SELECT ... FOR UPDATE) so no two decrements of the same sale can
// interleave, with a conditional UPDATE guard as a last line against negative
// remaining quantity.
type MySQLAdapter struct {
	db *sql.DB
}

func NewMySQLAdapter(db *sql.DB) *MySQLAdapter {
	return &MySQLAdapter{db: db}
}

func (m *MySQLAdapter) CreateTimeSale(ctx context.Context, sale *domain.TimeSale) error {
	_, err := m.db.ExecContext(ctx, `
		INSERT INTO time_sales
			(id, product_id, quantity, remaining_quantity, discount_price,
			 start_at, end_at, status, version, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sale.ID, sale.ProductID, sale.Quantity, sale.RemainingQuantity, sale.DiscountPrice,
		sale.StartAt, sale.EndAt, sale.Status, sale.Version, sale.CreatedAt, sale.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert time sale: %w", err)
	}
	return nil
}

func (m *MySQLAdapter) GetTimeSale(ctx context.Context, saleID string) (*domain.TimeSale, error) {
	row := m.db.QueryRowContext(ctx, `
		SELECT id, product_id, quantity, remaining_quantity, discount_price,
		       start_at, end_at, status, version, created_at, updated_at
		FROM time_sales WHERE id = ?`, saleID)
	return scanTimeSale(row)
}

func (m *MySQLAdapter) ListOngoing(ctx context.Context, now time.Time, limit, offset int) ([]domain.TimeSale, error) {
	rows, err := m.db.QueryContext(ctx, `
		SELECT id, product_id, quantity, remaining_quantity, discount_price,
		       start_at, end_at, status, version, created_at, updated_at
		FROM time_sales
		WHERE start_at <= ? AND end_at > ? AND status = ?
		ORDER BY start_at
		LIMIT ? OFFSET ?`,
		now, now, domain.TimeSaleStatusActive, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("query ongoing time sales: %w", err)
	}
	defer rows.Close()

	var sales []domain.TimeSale
	for rows.Next() {
		sale, err := scanTimeSale(rows)
		if err != nil {
			return nil, err
		}
		sales = append(sales, *sale)
	}
	return sales, rows.Err()
}

func (m *MySQLAdapter) ReserveAndDecrement(ctx context.Context, saleID string, quantity int64) (*domain.TimeSale, error) {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	sale, err := m.reserveAndDecrementTx(ctx, tx, saleID, quantity)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit decrement: %w", err)
	}
	return sale, nil
}

func (m *MySQLAdapter) CreateOrder(ctx context.Context, order *domain.Order) (*domain.TimeSale, error) {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	sale, err := m.reserveAndDecrementTx(ctx, tx, order.TimeSaleID, order.Quantity)
	if err != nil {
		return nil, err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO time_sale_orders
			(id, request_id, time_sale_id, user_id, quantity, discount_price, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		order.ID, order.RequestID, order.TimeSaleID, order.UserID,
		order.Quantity, sale.DiscountPrice, order.Status, order.CreatedAt,
	)
	if err != nil {
		var mysqlErr *mysql.MySQLError
		if errors.As(err, &mysqlErr) && mysqlErr.Number == mysqlDuplicateEntry {
			// the transaction rolls back, so the decrement above never lands
			return nil, domain.ErrDuplicateRequest
		}
		return nil, fmt.Errorf("insert order: %w", err)
	}
	order.DiscountPrice = sale.DiscountPrice

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit order: %w", err)
	}
	return sale, nil
}

func (m *MySQLAdapter) HasOrderForRequest(ctx context.Context, requestID string) (bool, error) {
	var one int
	err := m.db.QueryRowContext(ctx,
		`SELECT 1 FROM time_sale_orders WHERE request_id = ?`, requestID,
	).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("query order by request: %w", err)
	}
	return true, nil
}

// reserveAndDecrementTx locks the sale row, validates the purchase and writes
// the decremented quantity. The row lock is held until the surrounding
// transaction commits.
func (m *MySQLAdapter) reserveAndDecrementTx(ctx context.Context, tx *sql.Tx, saleID string, quantity int64) (*domain.TimeSale, error) {
	row := tx.QueryRowContext(ctx, `
		SELECT id, product_id, quantity, remaining_quantity, discount_price,
		       start_at, end_at, status, version, created_at, updated_at
		FROM time_sales WHERE id = ? FOR UPDATE`, saleID)
	sale, err := scanTimeSale(row)
	if err != nil {
		return nil, err
	}

	if err := sale.ValidatePurchase(quantity, time.Now()); err != nil {
		return nil, err
	}

	sale.RemainingQuantity -= quantity
	sale.Version++
	sale.UpdatedAt = time.Now()
	if sale.RemainingQuantity == 0 {
		sale.Status = domain.TimeSaleStatusDepleted
	}

	result, err := tx.ExecContext(ctx, `
		UPDATE time_sales
		SET remaining_quantity = ?, status = ?, version = version + 1, updated_at = ?
		WHERE id = ? AND remaining_quantity >= ?`,
		sale.RemainingQuantity, sale.Status, sale.UpdatedAt, saleID, quantity,
	)
	if err != nil {
		return nil, fmt.Errorf("update remaining quantity: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return nil, domain.ErrSoldOut
	}

	return sale, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTimeSale(row rowScanner) (*domain.TimeSale, error) {
	var sale domain.TimeSale
	err := row.Scan(
		&sale.ID, &sale.ProductID, &sale.Quantity, &sale.RemainingQuantity, &sale.DiscountPrice,
		&sale.StartAt, &sale.EndAt, &sale.Status, &sale.Version, &sale.CreatedAt, &sale.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrSaleNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan time sale: %w", err)
	}
	return &sale, nil
}

package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shukshop/storefront/internal/domain/order"
	"github.com/shukshop/storefront/internal/domain/pricing"
)

const (
	orderColumns = `id, transaction_id, items, coupon_code, discount_amount,
		shipping_method, shipping_cost, final_total,
		customer_name, customer_email, customer_phone, status, created_at`

	createOrderSQL = `INSERT INTO orders (` + orderColumns + `)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6, $7, $8, $9, $10, $11, $12, $13)`

	getOrderSQL = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

	listOrdersSQL = `SELECT ` + orderColumns + ` FROM orders ORDER BY created_at DESC`

	updateOrderStatusSQL = `UPDATE orders SET status = $2 WHERE id = $1`
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository persists order snapshots in PostgreSQL. Line items are
// stored denormalized as a JSONB document alongside the totals.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// Create inserts a new order snapshot.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	itemsJSON, err := json.Marshal(o.Items)
	if err != nil {
		return fmt.Errorf("marshaling order items: %w", err)
	}

	_, err = r.pool.Exec(ctx, createOrderSQL,
		o.ID, o.TransactionID, itemsJSON, o.CouponCode, o.DiscountAmount,
		string(o.ShippingMethod), o.ShippingCost, o.FinalTotal,
		o.Customer.Name, o.Customer.Email, o.Customer.Phone,
		string(o.Status), o.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("creating order %q: %w", o.ID, err)
	}
	return nil
}

// GetByID loads a single order snapshot. Returns order.ErrNotFound for an
// unknown id.
func (r *OrderRepository) GetByID(ctx context.Context, id string) (*order.Order, error) {
	rows, _ := r.pool.Query(ctx, getOrderSQL, id)
	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("getting order %q: %w", id, err)
	}
	return &o, nil
}

// List returns all orders, newest first.
func (r *OrderRepository) List(ctx context.Context) ([]order.Order, error) {
	rows, _ := r.pool.Query(ctx, listOrdersSQL)
	orders, err := pgx.CollectRows(rows, scanOrder)
	if err != nil {
		return nil, fmt.Errorf("listing orders: %w", err)
	}
	return orders, nil
}

// UpdateStatus moves an order through fulfillment. Returns order.ErrNotFound
// when the order does not exist.
func (r *OrderRepository) UpdateStatus(ctx context.Context, id string, status order.Status) error {
	tag, err := r.pool.Exec(ctx, updateOrderStatusSQL, id, string(status))
	if err != nil {
		return fmt.Errorf("updating order %q status: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return order.ErrNotFound
	}
	return nil
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var (
		o              order.Order
		itemsJSON      []byte
		couponCode     *string
		shippingMethod string
		status         string
	)
	err := row.Scan(
		&o.ID, &o.TransactionID, &itemsJSON, &couponCode, &o.DiscountAmount,
		&shippingMethod, &o.ShippingCost, &o.FinalTotal,
		&o.Customer.Name, &o.Customer.Email, &o.Customer.Phone,
		&status, &o.CreatedAt,
	)
	if err != nil {
		return order.Order{}, err
	}

	if err := json.Unmarshal(itemsJSON, &o.Items); err != nil {
		return order.Order{}, fmt.Errorf("unmarshaling order items: %w", err)
	}
	if couponCode != nil {
		o.CouponCode = *couponCode
	}
	o.ShippingMethod = pricing.ShippingMethod(shippingMethod)
	o.Status = order.Status(status)
	return o, nil
}

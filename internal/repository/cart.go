package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shukshop/storefront/internal/domain/cart"
)

const (
	getCartSQL = `SELECT session_id, items, updated_at FROM carts WHERE session_id = $1`

	// Whole-document upsert: last write wins across concurrent sessions.
	putCartSQL = `INSERT INTO carts (session_id, items, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (session_id) DO UPDATE SET items = EXCLUDED.items, updated_at = now()`

	deleteCartSQL = `DELETE FROM carts WHERE session_id = $1`
)

var _ cart.Repository = (*CartRepository)(nil)

// CartRepository persists cart documents in PostgreSQL, one JSONB row per
// shopper session.
type CartRepository struct {
	pool *pgxpool.Pool
}

// NewCartRepository returns a CartRepository that uses the given pool.
func NewCartRepository(pool *pgxpool.Pool) *CartRepository {
	return &CartRepository{pool: pool}
}

// Get loads the cart document for a session. Returns cart.ErrNotFound for
// an unknown session.
func (r *CartRepository) Get(ctx context.Context, sessionID string) (*cart.Cart, error) {
	var (
		c         cart.Cart
		itemsJSON []byte
		updatedAt time.Time
	)
	err := r.pool.QueryRow(ctx, getCartSQL, sessionID).Scan(&c.SessionID, &itemsJSON, &updatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, cart.ErrNotFound
		}
		return nil, fmt.Errorf("getting cart %q: %w", sessionID, err)
	}

	if err := json.Unmarshal(itemsJSON, &c.Items); err != nil {
		return nil, fmt.Errorf("unmarshaling cart items for %q: %w", sessionID, err)
	}
	c.UpdatedAt = updatedAt
	return &c, nil
}

// Put stores the whole cart document for its session.
func (r *CartRepository) Put(ctx context.Context, c *cart.Cart) error {
	items := c.Items
	if items == nil {
		items = []cart.Item{}
	}
	itemsJSON, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("marshaling cart items: %w", err)
	}

	if _, err := r.pool.Exec(ctx, putCartSQL, c.SessionID, itemsJSON); err != nil {
		return fmt.Errorf("storing cart %q: %w", c.SessionID, err)
	}
	return nil
}

// Delete removes a session's cart document. Returns cart.ErrNotFound when
// no row matched.
func (r *CartRepository) Delete(ctx context.Context, sessionID string) error {
	tag, err := r.pool.Exec(ctx, deleteCartSQL, sessionID)
	if err != nil {
		return fmt.Errorf("deleting cart %q: %w", sessionID, err)
	}
	if tag.RowsAffected() == 0 {
		return cart.ErrNotFound
	}
	return nil
}

package cart

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/shukshop/storefront/internal/domain/product"
)

// Service applies cart mutations as load-mutate-store round-trips against
// the repository. A failed store surfaces the error and commits nothing;
// the next load re-reads the last durable state.
type Service struct {
	carts    Repository
	products product.Repository
}

// NewService creates a cart Service.
func NewService(carts Repository, products product.Repository) *Service {
	return &Service{carts: carts, products: products}
}

// Get returns the session's cart, or an empty cart for a fresh session.
func (s *Service) Get(ctx context.Context, sessionID string) (*Cart, error) {
	c, err := s.carts.Get(ctx, sessionID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return &Cart{SessionID: sessionID}, nil
		}
		return nil, errors.Wrap(err, "load cart")
	}
	return c, nil
}

// Add resolves the product from the catalog, snapshots its name and price
// into the cart line, and persists the cart. Unknown or unavailable
// products return product.ErrNotFound.
func (s *Service) Add(ctx context.Context, sessionID, productID string) (*Cart, error) {
	p, err := s.products.GetByID(ctx, productID)
	if err != nil {
		return nil, err
	}
	if !p.IsAvailable {
		return nil, product.ErrNotFound
	}

	c, err := s.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	c.Add(p.ID, p.Name, p.Price)

	if err := s.carts.Put(ctx, c); err != nil {
		return nil, errors.Wrap(err, "store cart")
	}
	return c, nil
}

// Decrement lowers a line's quantity, removing it at zero, and persists.
func (s *Service) Decrement(ctx context.Context, sessionID, productID string) (*Cart, error) {
	c, err := s.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	c.Decrement(productID)

	if err := s.carts.Put(ctx, c); err != nil {
		return nil, errors.Wrap(err, "store cart")
	}
	return c, nil
}

// Remove deletes a line regardless of quantity and persists.
func (s *Service) Remove(ctx context.Context, sessionID, productID string) (*Cart, error) {
	c, err := s.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	c.Remove(productID)

	if err := s.carts.Put(ctx, c); err != nil {
		return nil, errors.Wrap(err, "store cart")
	}
	return c, nil
}

// Clear deletes the session's cart document.
func (s *Service) Clear(ctx context.Context, sessionID string) error {
	if err := s.carts.Delete(ctx, sessionID); err != nil && !errors.Is(err, ErrNotFound) {
		return errors.Wrap(err, "clear cart")
	}
	return nil
}

// Subtotal loads the cart and returns its subtotal.
func (s *Service) Subtotal(ctx context.Context, sessionID string) (decimal.Decimal, error) {
	c, err := s.Get(ctx, sessionID)
	if err != nil {
		return decimal.Zero, err
	}
	return c.Subtotal(), nil
}

package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shukshop/storefront/internal/domain/product"
)

const (
	listCategoriesSQL = `SELECT id, name FROM categories ORDER BY name`
	insertCategorySQL = `INSERT INTO categories (id, name) VALUES ($1, $2)`
	updateCategorySQL = `UPDATE categories SET name = $2 WHERE id = $1`
	deleteCategorySQL = `DELETE FROM categories WHERE id = $1`
)

var _ product.CategoryRepository = (*CategoryRepository)(nil)

// CategoryRepository implements product.CategoryRepository backed by
// PostgreSQL.
type CategoryRepository struct {
	pool *pgxpool.Pool
}

// NewCategoryRepository returns a CategoryRepository that uses the given pool.
func NewCategoryRepository(pool *pgxpool.Pool) *CategoryRepository {
	return &CategoryRepository{pool: pool}
}

// ListCategories returns all categories ordered by name.
func (r *CategoryRepository) ListCategories(ctx context.Context) ([]product.Category, error) {
	rows, err := r.pool.Query(ctx, listCategoriesSQL)
	if err != nil {
		return nil, fmt.Errorf("listing categories: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (product.Category, error) {
		var c product.Category
		err := row.Scan(&c.ID, &c.Name)
		return c, err
	})
}

// CreateCategory inserts a new category.
func (r *CategoryRepository) CreateCategory(ctx context.Context, c *product.Category) error {
	_, err := r.pool.Exec(ctx, insertCategorySQL, c.ID, c.Name)
	if err != nil {
		return fmt.Errorf("creating category %q: %w", c.Name, err)
	}
	return nil
}

// UpdateCategory renames a category. Returns product.ErrCategoryNotFound
// when no row matches.
func (r *CategoryRepository) UpdateCategory(ctx context.Context, c *product.Category) error {
	tag, err := r.pool.Exec(ctx, updateCategorySQL, c.ID, c.Name)
	if err != nil {
		return fmt.Errorf("updating category %q: %w", c.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return product.ErrCategoryNotFound
	}
	return nil
}

// DeleteCategory removes a category. Products in it keep existing with a
// null category (schema ON DELETE SET NULL).
func (r *CategoryRepository) DeleteCategory(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, deleteCategorySQL, id)
	if err != nil {
		return fmt.Errorf("deleting category %q: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return product.ErrCategoryNotFound
	}
	return nil
}

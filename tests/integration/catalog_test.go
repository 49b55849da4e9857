//go:build integration

package integration

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListProducts(t *testing.T) {
	resp := doGet(t, "/api/products")
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	products := decodeJSON[[]productResponse](t, resp)
	require.Len(t, products, 6)

	byID := make(map[string]productResponse, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}

	oil, ok := byID["olive-oil-1l"]
	require.True(t, ok, "seeded olive oil missing")
	assert.Equal(t, "pantry", oil.CategoryID)
	assert.InDelta(t, 64.90, oil.Price, 0.001)
	assert.True(t, oil.IsAvailable)

	baharat, ok := byID["baharat-100g"]
	require.True(t, ok, "seeded baharat missing")
	assert.False(t, baharat.IsAvailable)
}

func TestListProductsByCategory(t *testing.T) {
	resp := doGet(t, "/api/products?category=spices")
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)

	products := decodeJSON[[]productResponse](t, resp)
	require.NotEmpty(t, products)
	for _, p := range products {
		assert.Equal(t, "spices", p.CategoryID)
	}
}

func TestSearchProducts(t *testing.T) {
	resp := doGet(t, "/api/products?q=tahini")
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)

	products := decodeJSON[[]productResponse](t, resp)
	require.Len(t, products, 1)
	assert.Equal(t, "tahini-500g", products[0].ID)
}

func TestGetProduct(t *testing.T) {
	resp := doGet(t, "/api/products/silan-350g")
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)

	p := decodeJSON[productResponse](t, resp)
	assert.Equal(t, "silan-350g", p.ID)
	assert.InDelta(t, 22.00, p.Price, 0.001)
}

func TestGetProductNotFound(t *testing.T) {
	resp := doGet(t, "/api/products/no-such-product")
	defer resp.Body.Close()

	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	msg := decodeJSON[errorResponse](t, resp)
	assert.Equal(t, http.StatusNotFound, msg.Code)
}

func TestListCategories(t *testing.T) {
	resp := doGet(t, "/api/categories")
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)

	categories := decodeJSON[[]categoryResponse](t, resp)
	require.Len(t, categories, 3)

	ids := make([]string, 0, len(categories))
	for _, c := range categories {
		ids = append(ids, c.ID)
	}
	assert.ElementsMatch(t, []string{"pantry", "sweets", "spices"}, ids)
}

//go:build integration

package integration

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestIDGenerated(t *testing.T) {
	resp := doGet(t, "/api/products")
	defer resp.Body.Close()

	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))
}

func TestRequestIDEchoed(t *testing.T) {
	resp := do(t, http.MethodGet, "/api/products", nil, func(r *http.Request) {
		r.Header.Set("X-Request-ID", "req-integration-42")
	})
	defer resp.Body.Close()

	assert.Equal(t, "req-integration-42", resp.Header.Get("X-Request-ID"))
}

func TestCORSPreflight(t *testing.T) {
	resp := do(t, http.MethodOptions, "/api/products", nil, func(r *http.Request) {
		r.Header.Set("Origin", "https://shop.example.com")
		r.Header.Set("Access-Control-Request-Method", http.MethodPost)
	})
	defer resp.Body.Close()

	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
	assert.Contains(t, resp.Header.Get("Access-Control-Allow-Methods"), "POST")
}

func TestCORSSimpleRequest(t *testing.T) {
	resp := do(t, http.MethodGet, "/api/products", nil, func(r *http.Request) {
		r.Header.Set("Origin", "https://shop.example.com")
	})
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
	assert.Contains(t, resp.Header.Get("Access-Control-Expose-Headers"), "X-Session-ID")
}

func TestRateLimitHeaders(t *testing.T) {
	resp := doGet(t, "/api/products")
	defer resp.Body.Close()

	assert.NotEmpty(t, resp.Header.Get("X-RateLimit-Limit"))
	assert.NotEmpty(t, resp.Header.Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, resp.Header.Get("X-RateLimit-Reset"))
}

// Consecutive add-to-cart calls from the same session should hit the
// per-action cooldown.
func TestAddToCartCooldown(t *testing.T) {
	body := map[string]any{"product_id": "olive-oil-1l"}

	first := do(t, http.MethodPost, "/api/cart/items", body, withSession("cooldown-sess"))
	first.Body.Close()
	require.Equal(t, http.StatusOK, first.StatusCode)

	second := do(t, http.MethodPost, "/api/cart/items", body, withSession("cooldown-sess"))
	defer second.Body.Close()

	require.Equal(t, http.StatusTooManyRequests, second.StatusCode)
	assert.NotEmpty(t, second.Header.Get("Retry-After"))

	msg := decodeJSON[errorResponse](t, second)
	assert.Equal(t, http.StatusTooManyRequests, msg.Code)
}

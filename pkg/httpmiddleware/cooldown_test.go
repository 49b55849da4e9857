package httpmiddleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sessionKeyFunc(r *http.Request) string {
	return r.Header.Get("X-Session-ID")
}

func TestCooldown_BlocksRapidRepeat(t *testing.T) {
	cl := NewCooldownLimiter(sessionKeyFunc)
	handler := cl.Limit("checkout", time.Minute)(okHandler())

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.Header.Set("X-Session-ID", "sess-1")

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))

	var body map[string]any
	err := json.NewDecoder(w.Body).Decode(&body)
	require.NoError(t, err)
	assert.Equal(t, float64(429), body["code"])
}

func TestCooldown_AllowsAfterWindow(t *testing.T) {
	cl := NewCooldownLimiter(sessionKeyFunc)
	handler := cl.Limit("add_to_cart", 10*time.Millisecond)(okHandler())

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.Header.Set("X-Session-ID", "sess-1")

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	time.Sleep(20 * time.Millisecond)

	w = httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestCooldown_IndependentSessions(t *testing.T) {
	cl := NewCooldownLimiter(sessionKeyFunc)
	handler := cl.Limit("checkout", time.Minute)(okHandler())

	for _, sess := range []string{"sess-a", "sess-b"} {
		req := httptest.NewRequest(http.MethodPost, "/", nil)
		req.Header.Set("X-Session-ID", sess)
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code, "first request for %s", sess)
	}
}

func TestCooldown_IndependentActions(t *testing.T) {
	cl := NewCooldownLimiter(sessionKeyFunc)
	addHandler := cl.Limit("add_to_cart", time.Minute)(okHandler())
	checkoutHandler := cl.Limit("checkout", time.Minute)(okHandler())

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.Header.Set("X-Session-ID", "sess-1")

	w := httptest.NewRecorder()
	addHandler.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	// A different action for the same session is not throttled.
	w = httptest.NewRecorder()
	checkoutHandler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

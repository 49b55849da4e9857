//go:build integration

package integration

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLiveness(t *testing.T) {
	resp := doGet(t, "/livez")
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)

	report := decodeJSON[healthResponse](t, resp)
	assert.Equal(t, "ok", report.Status)
}

func TestReadiness(t *testing.T) {
	resp := doGet(t, "/readyz")
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)

	report := decodeJSON[healthResponse](t, resp)
	assert.Equal(t, "ok", report.Status)
	assert.Empty(t, report.Checks)
}

package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
}

func TestAPIKey(t *testing.T) {
	t.Run("empty key disables the gate", func(t *testing.T) {
		h := APIKey("")(okHandler())
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/metrics", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("missing key rejected", func(t *testing.T) {
		h := APIKey("secret")(okHandler())
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/metrics", nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Contains(t, rec.Body.String(), "api key")
	})

	t.Run("wrong key rejected", func(t *testing.T) {
		h := APIKey("secret")(okHandler())
		req := httptest.NewRequest(http.MethodGet, "/api/metrics", nil)
		req.Header.Set("X-API-Key", "nope")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("X-API-Key accepted", func(t *testing.T) {
		h := APIKey("secret")(okHandler())
		req := httptest.NewRequest(http.MethodGet, "/api/metrics", nil)
		req.Header.Set("X-API-Key", "secret")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("bearer token accepted", func(t *testing.T) {
		h := APIKey("secret")(okHandler())
		req := httptest.NewRequest(http.MethodGet, "/api/metrics", nil)
		req.Header.Set("Authorization", "Bearer secret")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
	})
}

func TestCORS(t *testing.T) {
	t.Run("allowed origin gets headers", func(t *testing.T) {
		h := CORS([]string{"http://localhost:3000"})(okHandler())
		req := httptest.NewRequest(http.MethodGet, "/api/metrics", nil)
		req.Header.Set("Origin", "http://localhost:3000")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))
		assert.Equal(t, "GET, OPTIONS", rec.Header().Get("Access-Control-Allow-Methods"))
	})

	t.Run("unknown origin gets no allow header", func(t *testing.T) {
		h := CORS([]string{"http://localhost:3000"})(okHandler())
		req := httptest.NewRequest(http.MethodGet, "/api/metrics", nil)
		req.Header.Set("Origin", "http://evil.example")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
		assert.Equal(t, "Origin", rec.Header().Get("Vary"))
	})

	t.Run("preflight short-circuits", func(t *testing.T) {
		called := false
		inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true })
		h := CORS(nil)(inner)
		req := httptest.NewRequest(http.MethodOptions, "/api/metrics", nil)
		req.Header.Set("Origin", "http://anywhere.example")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.False(t, called, "preflight must not reach the handler")
	})

	t.Run("wildcard allows any origin", func(t *testing.T) {
		h := CORS([]string{"*"})(okHandler())
		req := httptest.NewRequest(http.MethodGet, "/api/metrics", nil)
		req.Header.Set("Origin", "http://anywhere.example")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		assert.Equal(t, "http://anywhere.example", rec.Header().Get("Access-Control-Allow-Origin"))
	})
}

func TestStatusRecorder(t *testing.T) {
	t.Run("captures explicit status and size", func(t *testing.T) {
		rec := httptest.NewRecorder()
		sr := &statusRecorder{ResponseWriter: rec, status: http.StatusOK}
		sr.WriteHeader(http.StatusNotFound)
		n, err := sr.Write([]byte("missing"))
		require.NoError(t, err)

		assert.Equal(t, http.StatusNotFound, sr.status)
		assert.Equal(t, 7, n)
		assert.Equal(t, 7, sr.bytes)
	})

	t.Run("implicit 200 on bare write", func(t *testing.T) {
		rec := httptest.NewRecorder()
		sr := &statusRecorder{ResponseWriter: rec, status: http.StatusOK}
		_, err := sr.Write([]byte("ok"))
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, sr.status)
	})
}

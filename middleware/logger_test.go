package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loggedRouter(buf *bytes.Buffer) http.Handler {
	l := zerolog.New(buf).Level(zerolog.InfoLevel)
	r := chi.NewRouter()
	r.Use(RequestID)
	r.Use(RequestLogger(l))
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {})
	r.Get("/product-composite/{productId}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	return r
}

func TestRequestLogger_Fields(t *testing.T) {
	var buf bytes.Buffer
	req := httptest.NewRequest(http.MethodGet, "/product-composite/7", nil)
	req.Header.Set(HeaderXRequestID, "req-7")
	req.Header.Set(HeaderXGroup, "canary")
	loggedRouter(&buf).ServeHTTP(httptest.NewRecorder(), req)

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "error", line["level"])
	assert.Equal(t, "/product-composite/{productId}", line["route"])
	assert.Equal(t, "7", line["product_id"])
	assert.Equal(t, "canary", line["group"])
	assert.Equal(t, "req-7", line["request_id"])
	assert.Equal(t, float64(http.StatusServiceUnavailable), line["status"])
}

func TestRequestLogger_HealthPathsAtDebug(t *testing.T) {
	var buf bytes.Buffer
	loggedRouter(&buf).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Empty(t, buf.String())
}

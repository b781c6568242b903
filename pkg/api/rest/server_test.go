package rest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lynxdb/lynx/pkg/api/rest/middleware"
	"github.com/lynxdb/lynx/pkg/config"
	"github.com/lynxdb/lynx/pkg/core"
	"github.com/lynxdb/lynx/pkg/lynx"
	"github.com/lynxdb/lynx/pkg/observability"
)

func testServer(t *testing.T, cfg Config) (*Server, lynx.VectorDatabase) {
	t.Helper()
	dbCfg := config.Default(4)
	dbCfg.IndexType = core.IndexFlat
	db, err := lynx.New(dbCfg)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewServer(cfg, db, nil, nil, nil), db
}

func doJSON(t *testing.T, h http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestInsertSearchDeleteFlow(t *testing.T) {
	srv, _ := testServer(t, Config{})
	h := srv.Handler()

	rec := doJSON(t, h, http.MethodPost, "/v1/vectors", vectorPayload{
		ID: 1, Vector: []float32{1, 0, 0, 0}, Metadata: "first",
	})
	assert.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, h, http.MethodPost, "/v1/vectors", vectorPayload{
		ID: 2, Vector: []float32{0, 1, 0, 0},
	})
	assert.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, h, http.MethodPost, "/v1/search", searchRequest{
		Vector: []float32{1, 0, 0, 0}, K: 1,
	})
	require.Equal(t, http.StatusOK, rec.Code)
	var sr searchResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sr))
	require.Len(t, sr.Items, 1)
	assert.Equal(t, uint64(1), sr.Items[0].ID)

	rec = doJSON(t, h, http.MethodGet, "/v1/vectors/1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var vp vectorPayload
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &vp))
	assert.Equal(t, "first", vp.Metadata)

	rec = doJSON(t, h, http.MethodDelete, "/v1/vectors/1", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = doJSON(t, h, http.MethodGet, "/v1/vectors/1", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestErrorStatusMapping(t *testing.T) {
	srv, db := testServer(t, Config{})
	h := srv.Handler()
	require.NoError(t, db.Insert(core.VectorRecord{ID: 5, Vector: []float32{1, 2, 3, 4}}))

	// Duplicate insert -> 400 (InvalidParameter).
	rec := doJSON(t, h, http.MethodPost, "/v1/vectors", vectorPayload{ID: 5, Vector: []float32{1, 2, 3, 4}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Wrong dimension -> 400.
	rec = doJSON(t, h, http.MethodPost, "/v1/vectors", vectorPayload{ID: 6, Vector: []float32{1}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Missing id -> 404.
	rec = doJSON(t, h, http.MethodDelete, "/v1/vectors/999", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// Bad id text -> 400.
	rec = doJSON(t, h, http.MethodGet, "/v1/vectors/banana", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// k <= 0 -> 400.
	rec = doJSON(t, h, http.MethodPost, "/v1/search", searchRequest{Vector: []float32{1, 2, 3, 4}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestBatchEndpoint(t *testing.T) {
	srv, db := testServer(t, Config{})
	h := srv.Handler()

	batch := []vectorPayload{
		{ID: 1, Vector: []float32{1, 0, 0, 0}},
		{ID: 2, Vector: []float32{0, 1, 0, 0}},
		{ID: 3, Vector: []float32{0, 0, 1, 0}},
	}
	rec := doJSON(t, h, http.MethodPost, "/v1/vectors/batch", batch)
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, 3, db.Size())

	// Atomicity surfaces as a 400 with nothing applied.
	bad := []vectorPayload{
		{ID: 4, Vector: []float32{1, 1, 1, 1}},
		{ID: 5, Vector: []float32{1, 1}},
	}
	rec = doJSON(t, h, http.MethodPost, "/v1/vectors/batch", bad)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, 3, db.Size())
}

func TestHealthAndStats(t *testing.T) {
	srv, db := testServer(t, Config{})
	h := srv.Handler()
	db.Insert(core.VectorRecord{ID: 1, Vector: []float32{1, 0, 0, 0}})

	rec := doJSON(t, h, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, h, http.MethodGet, "/v1/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var stats map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.EqualValues(t, 1, stats["vector_count"])
	assert.EqualValues(t, 4, stats["dimension"])
}

func TestAuthMiddleware(t *testing.T) {
	const secret = "test-secret"
	srv, _ := testServer(t, Config{
		Auth: middleware.AuthConfig{Enabled: true, JWTSecret: secret},
	})
	h := srv.Handler()

	// No token -> 401.
	rec := doJSON(t, h, http.MethodGet, "/v1/stats", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// Health stays public.
	rec = doJSON(t, h, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	// Valid token -> 200.
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, middleware.Claims{
		UserID: "tester",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/v1/stats", nil)
	req.Header.Set("Authorization", "Bearer "+signed)
	out := httptest.NewRecorder()
	h.ServeHTTP(out, req)
	assert.Equal(t, http.StatusOK, out.Code)

	// Token signed with the wrong key -> 401.
	badToken := jwt.NewWithClaims(jwt.SigningMethodHS256, middleware.Claims{UserID: "evil"})
	badSigned, _ := badToken.SignedString([]byte("other-secret"))
	req = httptest.NewRequest(http.MethodGet, "/v1/stats", nil)
	req.Header.Set("Authorization", "Bearer "+badSigned)
	out = httptest.NewRecorder()
	h.ServeHTTP(out, req)
	assert.Equal(t, http.StatusUnauthorized, out.Code)
}

func TestRateLimitMiddleware(t *testing.T) {
	srv, _ := testServer(t, Config{
		RateLimit: middleware.RateLimitConfig{Enabled: true, RequestsPerSec: 1, Burst: 2},
	})
	h := srv.Handler()

	var saw429 bool
	for i := 0; i < 5; i++ {
		rec := doJSON(t, h, http.MethodGet, "/healthz", nil)
		if rec.Code == http.StatusTooManyRequests {
			saw429 = true
		}
	}
	assert.True(t, saw429, "burst of 5 against burst=2 should trip the limiter")
}

func TestRequestMetricsRecorded(t *testing.T) {
	dbCfg := config.Default(4)
	dbCfg.IndexType = core.IndexFlat
	db, err := lynx.New(dbCfg)
	require.NoError(t, err)
	defer db.Close()

	metrics := observability.NewMetrics(prometheus.NewRegistry())
	srv := NewServer(Config{}, db, nil, metrics, nil)
	h := srv.Handler()

	rec := doJSON(t, h, http.MethodPost, "/v1/vectors", vectorPayload{ID: 1, Vector: []float32{1, 0, 0, 0}})
	require.Equal(t, http.StatusCreated, rec.Code)
	rec = doJSON(t, h, http.MethodGet, "/v1/vectors/999", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.RequestsTotal.WithLabelValues("POST", "201")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.RequestsTotal.WithLabelValues("GET", "404")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.VectorsInserted))
	// One duration series per observed method.
	assert.Equal(t, 2, testutil.CollectAndCount(metrics.RequestDuration))
}

func TestMethodNotAllowed(t *testing.T) {
	srv, _ := testServer(t, Config{})
	h := srv.Handler()

	for _, tc := range []struct{ method, path string }{
		{http.MethodGet, "/v1/search"},
		{http.MethodDelete, "/v1/vectors"},
		{http.MethodPost, "/v1/stats"},
	} {
		rec := doJSON(t, h, tc.method, tc.path, nil)
		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code,
			fmt.Sprintf("%s %s", tc.method, tc.path))
	}
}

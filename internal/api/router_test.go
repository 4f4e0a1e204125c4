package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maptitesalle/mylittlegymcoach/internal/content"
	"github.com/maptitesalle/mylittlegymcoach/internal/database"
	"github.com/maptitesalle/mylittlegymcoach/internal/generation"
	"github.com/maptitesalle/mylittlegymcoach/internal/logger"
	"github.com/maptitesalle/mylittlegymcoach/internal/metrics"
	"github.com/maptitesalle/mylittlegymcoach/internal/planner"
)

const testSecret = "test-secret"

// stubSubmitter returns a canned result and records the last request.
type stubSubmitter struct {
	mu     sync.Mutex
	last   generation.Request
	result generation.Result
	err    error
}

func (s *stubSubmitter) Submit(_ context.Context, req generation.Request) (generation.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.last = req
	return s.result, s.err
}

type testServer struct {
	router    *gin.Engine
	submitter *stubSubmitter
	records   *content.Repository
	plans     *planner.PlanRepository
}

func newTestServer(t *testing.T, secret string) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := database.NewDB(filepath.Join(t.TempDir(), "api.db"), logger.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	reg := prometheus.NewRegistry()
	ts := &testServer{
		submitter: &stubSubmitter{},
		records:   content.NewRepository(db),
		plans:     planner.NewPlanRepository(db),
	}
	ts.router = NewRouter(RouterConfig{
		Coordinator: ts.submitter,
		Records:     ts.records,
		Plans:       ts.plans,
		Collector:   metrics.NewCollector(reg),
		Gatherer:    reg,
		JWTSecret:   secret,
		Logger:      logger.NewNop(),
	})
	return ts
}

func (ts *testServer) do(t *testing.T, method, path string, body any, token string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func signToken(t *testing.T, subject string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   subject,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	signed, err := token.SignedString([]byte(testSecret))
	require.NoError(t, err)
	return signed
}

func TestCORSPreflight(t *testing.T) {
	ts := newTestServer(t, "")

	req := httptest.NewRequest(http.MethodOptions, "/functions/v1/generate-content", nil)
	req.Header.Set("Origin", "https://app.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	req.Header.Set("Access-Control-Request-Headers", "authorization, x-client-info, apikey, content-type")
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, strings.ToLower(rec.Header().Get("Access-Control-Allow-Headers")), "x-client-info")
	assert.Zero(t, ts.submitter.last.Prompt, "preflight never reaches the handler")
}

func TestGenerate(t *testing.T) {
	ts := newTestServer(t, "")
	body := map[string]any{"prompt": "P", "type": "nutrition", "requestId": "r1", "userId": "u1", "previousRecipes": []string{"Taboulé"}}

	t.Run("Processing", func(t *testing.T) {
		ts.submitter.result = generation.Result{Status: content.StatusProcessing, RequestID: "r1"}
		ts.submitter.err = nil

		rec := ts.do(t, http.MethodPost, "/functions/v1/generate-content", body, "")
		require.Equal(t, http.StatusOK, rec.Code)
		out := decode(t, rec)
		assert.Equal(t, "processing", out["status"])
		assert.Equal(t, "r1", out["requestId"])
		assert.NotEmpty(t, out["message"])

		assert.Equal(t, content.TypeNutrition, ts.submitter.last.ContentType)
		assert.Equal(t, "u1", ts.submitter.last.UserID)
		assert.Equal(t, []string{"Taboulé"}, ts.submitter.last.PreviousRecipes)
	})

	t.Run("SyncOrCachedContent", func(t *testing.T) {
		ts.submitter.result = generation.Result{Content: "# Jour 1", Cached: true, Status: content.StatusCompleted}
		rec := ts.do(t, http.MethodPost, "/api/generate", body, "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, map[string]any{"content": "# Jour 1"}, decode(t, rec))
	})

	t.Run("AlreadyFailed", func(t *testing.T) {
		ts.submitter.result = generation.Result{Status: content.StatusError, RequestID: "r1", Error: "boom"}
		rec := ts.do(t, http.MethodPost, "/api/generate", body, "")
		require.Equal(t, http.StatusInternalServerError, rec.Code)
		out := decode(t, rec)
		assert.Equal(t, "error", out["status"])
		assert.Equal(t, "boom", out["error"])
	})

	t.Run("ErrorMapping", func(t *testing.T) {
		cases := []struct {
			err  error
			code int
		}{
			{generation.ErrInvalidInput, http.StatusBadRequest},
			{generation.ErrConfiguration, http.StatusInternalServerError},
			{generation.ErrForeignRequest, http.StatusForbidden},
		}
		for _, tc := range cases {
			ts.submitter.err = tc.err
			rec := ts.do(t, http.MethodPost, "/api/generate", body, "")
			assert.Equal(t, tc.code, rec.Code, tc.err.Error())
			assert.Equal(t, tc.err.Error(), decode(t, rec)["error"])
		}
		ts.submitter.err = nil
	})

	t.Run("MalformedBody", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/generate", strings.NewReader("{"))
		rec := httptest.NewRecorder()
		ts.router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestAuth(t *testing.T) {
	ts := newTestServer(t, testSecret)
	ts.submitter.result = generation.Result{Status: content.StatusProcessing, RequestID: "r1"}
	body := map[string]any{"prompt": "P", "type": "nutrition", "requestId": "r1"}

	t.Run("MissingToken", func(t *testing.T) {
		rec := ts.do(t, http.MethodPost, "/api/generate", body, "")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("BadSignature", func(t *testing.T) {
		rec := ts.do(t, http.MethodPost, "/api/generate", body, signToken(t, "u1")+"x")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("SubjectIsTheCaller", func(t *testing.T) {
		rec := ts.do(t, http.MethodPost, "/api/generate", body, signToken(t, "u1"))
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "u1", ts.submitter.last.UserID)
	})

	t.Run("ClaimedUserMismatch", func(t *testing.T) {
		other := map[string]any{"prompt": "P", "type": "nutrition", "requestId": "r1", "userId": "u2"}
		rec := ts.do(t, http.MethodPost, "/api/generate", other, signToken(t, "u1"))
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("ForeignContent", func(t *testing.T) {
		_, err := ts.records.UpsertProcessing(context.Background(), "r-u2", content.TypeNutrition, "u2")
		require.NoError(t, err)

		rec := ts.do(t, http.MethodGet, "/api/content/r-u2", nil, signToken(t, "u1"))
		assert.Equal(t, http.StatusForbidden, rec.Code)

		rec = ts.do(t, http.MethodGet, "/api/content/r-u2", nil, signToken(t, "u2"))
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("HealthIsPublic", func(t *testing.T) {
		rec := ts.do(t, http.MethodGet, "/health", nil, "")
		assert.Equal(t, http.StatusOK, rec.Code)
	})
}

func TestContentAndPlans(t *testing.T) {
	ctx := context.Background()
	ts := newTestServer(t, "")

	t.Run("ContentLookup", func(t *testing.T) {
		rec := ts.do(t, http.MethodGet, "/api/content/missing", nil, "")
		assert.Equal(t, http.StatusNotFound, rec.Code)

		_, err := ts.records.UpsertProcessing(ctx, "r1", content.TypeFlexibility, "u1")
		require.NoError(t, err)
		require.NoError(t, ts.records.CompleteWithContent(ctx, "r1", "Étirements"))

		rec = ts.do(t, http.MethodGet, "/api/content/r1", nil, "")
		require.Equal(t, http.StatusOK, rec.Code)
		out := decode(t, rec)
		assert.Equal(t, "completed", out["status"])
		assert.Equal(t, "Étirements", out["content"])
		assert.Equal(t, "u1", out["userId"])
	})

	t.Run("MissingUser", func(t *testing.T) {
		rec := ts.do(t, http.MethodGet, "/api/plans/latest", nil, "")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("SaveAndRead", func(t *testing.T) {
		text := "# Jour 1\n## Déjeuner : Bowl de quinoa\n### Ingrédients\n- 80 g de quinoa\n"
		rec := ts.do(t, http.MethodPut, "/api/plans", map[string]any{"userId": "u1", "requestId": "r1", "content": text}, "")
		require.Equal(t, http.StatusOK, rec.Code)

		var saved planner.NutritionPlan
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &saved))
		require.Len(t, saved.Recipes, 1)
		assert.Equal(t, "Bowl de quinoa", saved.Recipes[0].Title)
		assert.Equal(t, []string{"80 g de quinoa"}, saved.Ingredients)

		rec = ts.do(t, http.MethodGet, "/api/plans/r1?userId=u1", nil, "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, text, decode(t, rec)["content"])

		rec = ts.do(t, http.MethodGet, "/api/plans/r1?userId=u2", nil, "")
		assert.Equal(t, http.StatusNotFound, rec.Code)

		rec = ts.do(t, http.MethodGet, "/api/plans/latest?userId=u1", nil, "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "r1", decode(t, rec)["requestId"])

		rec = ts.do(t, http.MethodGet, "/api/plans?userId=u1&limit=5", nil, "")
		require.Equal(t, http.StatusOK, rec.Code)
		var list []planner.NutritionPlan
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
		assert.Len(t, list, 1)
	})

	t.Run("SaveRequiresContent", func(t *testing.T) {
		rec := ts.do(t, http.MethodPut, "/api/plans", map[string]any{"userId": "u1"}, "")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("BadLimit", func(t *testing.T) {
		rec := ts.do(t, http.MethodGet, "/api/plans?userId=u1&limit=zero", nil, "")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer(t, "")
	ts.do(t, http.MethodGet, "/health", nil, "")

	rec := ts.do(t, http.MethodGet, "/metrics", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `coach_http_requests_total{method="GET",route="/health",status="200"} 1`)
}

package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maptitesalle/mylittlegymcoach/internal/content"
	"github.com/maptitesalle/mylittlegymcoach/internal/planner"
)

func TestHTTPBackend(t *testing.T) {
	ctx := context.Background()

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/generate", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		var req GenerateRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		if req.RequestID == "failed" {
			w.WriteHeader(http.StatusInternalServerError)
			json.NewEncoder(w).Encode(map[string]string{"status": "error", "requestId": "failed", "error": "boom"})
			return
		}
		if req.RequestID == "" {
			w.WriteHeader(http.StatusInternalServerError)
			json.NewEncoder(w).Encode(map[string]string{"error": "Missing API key"})
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"status": "processing", "requestId": req.RequestID, "message": "started"})
	})
	mux.HandleFunc("GET /api/content/{id}", func(w http.ResponseWriter, r *http.Request) {
		switch r.PathValue("id") {
		case "missing":
			w.WriteHeader(http.StatusNotFound)
			json.NewEncoder(w).Encode(map[string]string{"error": "not found"})
		case "foreign":
			w.WriteHeader(http.StatusForbidden)
			json.NewEncoder(w).Encode(map[string]string{"error": "forbidden"})
		default:
			json.NewEncoder(w).Encode(content.Record{RequestID: r.PathValue("id"), Status: content.StatusProcessing, UserID: "u1"})
		}
	})
	mux.HandleFunc("GET /api/plans/latest", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "u1", r.URL.Query().Get("userId"))
		w.WriteHeader(http.StatusNotFound)
	})
	mux.HandleFunc("GET /api/plans/{requestId}", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(planner.NutritionPlan{ID: 3, UserID: r.URL.Query().Get("userId"), RequestID: r.PathValue("requestId"), Content: "# Jour 1"})
	})
	mux.HandleFunc("PUT /api/plans", func(w http.ResponseWriter, r *http.Request) {
		var body savePlanBody
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		json.NewEncoder(w).Encode(planner.NutritionPlan{ID: 4, UserID: body.UserID, RequestID: body.RequestID, Content: body.Content})
	})
	mux.HandleFunc("GET /api/plans", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	server := httptest.NewServer(mux)
	defer server.Close()
	backend := NewHTTPBackend(server.URL, "tok")

	t.Run("GenerateProcessing", func(t *testing.T) {
		resp, err := backend.Generate(ctx, GenerateRequest{Prompt: "p", Type: content.TypeNutrition, RequestID: "r1"})
		require.NoError(t, err)
		assert.Equal(t, content.StatusProcessing, resp.Status)
		assert.Equal(t, "r1", resp.RequestID)
	})

	t.Run("GenerateAlreadyFailed", func(t *testing.T) {
		resp, err := backend.Generate(ctx, GenerateRequest{Prompt: "p", Type: content.TypeNutrition, RequestID: "failed"})
		require.NoError(t, err)
		assert.Equal(t, content.StatusError, resp.Status)
		assert.Equal(t, "boom", resp.Error)
	})

	t.Run("GenerateServerError", func(t *testing.T) {
		_, err := backend.Generate(ctx, GenerateRequest{Prompt: "p", Type: content.TypeNutrition})
		var apiErr *APIError
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, http.StatusInternalServerError, apiErr.StatusCode)
		assert.Equal(t, "Missing API key", apiErr.Message)
	})

	t.Run("GetContent", func(t *testing.T) {
		rec, err := backend.GetContent(ctx, "r1")
		require.NoError(t, err)
		assert.Equal(t, content.StatusProcessing, rec.Status)

		rec, err = backend.GetContent(ctx, "missing")
		require.NoError(t, err)
		assert.Nil(t, rec)

		_, err = backend.GetContent(ctx, "foreign")
		assert.ErrorIs(t, err, ErrForeignRecord)
	})

	t.Run("Plans", func(t *testing.T) {
		plan, err := backend.GetLatestPlan(ctx, "u1")
		require.NoError(t, err)
		assert.Nil(t, plan)

		plan, err = backend.GetPlan(ctx, "u1", "r1")
		require.NoError(t, err)
		assert.Equal(t, "r1", plan.RequestID)
		assert.Equal(t, "u1", plan.UserID)

		saved, err := backend.SavePlan(ctx, planner.PlanInput{UserID: "u1", RequestID: "r1", Content: "# Jour 1"})
		require.NoError(t, err)
		assert.Equal(t, int64(4), saved.ID)
	})

	t.Run("Unauthorized", func(t *testing.T) {
		_, err := backend.ListPlans(ctx, "u1", 5)
		assert.ErrorIs(t, err, ErrUnauthenticated)
	})
}

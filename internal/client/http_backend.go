package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/maptitesalle/mylittlegymcoach/internal/content"
	"github.com/maptitesalle/mylittlegymcoach/internal/planner"
)

// APIError is a non-success answer of the coach API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("coach api error: status=%d message=%s", e.StatusCode, e.Message)
}

// HTTPBackend is the Backend talking to the coach server.
type HTTPBackend struct {
	baseURL     string
	accessToken string
	httpClient  *http.Client
}

// NewHTTPBackend creates a backend for the API at baseURL. accessToken is
// sent as a bearer token when set.
func NewHTTPBackend(baseURL, accessToken string) *HTTPBackend {
	return &HTTPBackend{
		baseURL:     baseURL,
		accessToken: accessToken,
		httpClient:  &http.Client{Timeout: 30 * time.Second},
	}
}

// Generate implements Backend.
func (b *HTTPBackend) Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error) {
	var resp GenerateResponse
	_, err := b.do(ctx, http.MethodPost, "/api/generate", req, &resp)
	if err != nil {
		var apiErr *APIError
		// An already failed request id comes back as a 500 carrying its status.
		if errors.As(err, &apiErr) && resp.Status == content.StatusError {
			return &resp, nil
		}
		return nil, err
	}
	return &resp, nil
}

// GetContent implements Backend.
func (b *HTTPBackend) GetContent(ctx context.Context, requestID string) (*content.Record, error) {
	var rec content.Record
	status, err := b.do(ctx, http.MethodGet, "/api/content/"+url.PathEscape(requestID), nil, &rec)
	switch {
	case status == http.StatusNotFound:
		return nil, nil
	case status == http.StatusForbidden:
		return nil, ErrForeignRecord
	case err != nil:
		return nil, err
	}
	return &rec, nil
}

// GetPlan implements Backend.
func (b *HTTPBackend) GetPlan(ctx context.Context, userID, requestID string) (*planner.NutritionPlan, error) {
	return b.getPlan(ctx, "/api/plans/"+url.PathEscape(requestID)+"?userId="+url.QueryEscape(userID))
}

// GetLatestPlan implements Backend.
func (b *HTTPBackend) GetLatestPlan(ctx context.Context, userID string) (*planner.NutritionPlan, error) {
	return b.getPlan(ctx, "/api/plans/latest?userId="+url.QueryEscape(userID))
}

func (b *HTTPBackend) getPlan(ctx context.Context, path string) (*planner.NutritionPlan, error) {
	var plan planner.NutritionPlan
	status, err := b.do(ctx, http.MethodGet, path, nil, &plan)
	if status == http.StatusNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &plan, nil
}

// ListPlans returns the user's most recent plans.
func (b *HTTPBackend) ListPlans(ctx context.Context, userID string, limit int) ([]planner.NutritionPlan, error) {
	var plans []planner.NutritionPlan
	path := fmt.Sprintf("/api/plans?userId=%s&limit=%d", url.QueryEscape(userID), limit)
	if _, err := b.do(ctx, http.MethodGet, path, nil, &plans); err != nil {
		return nil, err
	}
	return plans, nil
}

type savePlanBody struct {
	UserID    string `json:"userId"`
	RequestID string `json:"requestId,omitempty"`
	Content   string `json:"content"`
}

// SavePlan implements Backend. The server derives recipes and ingredients
// from the content again.
func (b *HTTPBackend) SavePlan(ctx context.Context, in planner.PlanInput) (*planner.NutritionPlan, error) {
	var plan planner.NutritionPlan
	body := savePlanBody{UserID: in.UserID, RequestID: in.RequestID, Content: in.Content}
	if _, err := b.do(ctx, http.MethodPut, "/api/plans", body, &plan); err != nil {
		return nil, err
	}
	return &plan, nil
}

// do sends the request and decodes the JSON answer into out, also on error
// statuses. It returns the HTTP status code when one was received.
func (b *HTTPBackend) do(ctx context.Context, method, path string, in, out any) (int, error) {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return 0, fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, b.baseURL+path, body)
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if b.accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+b.accessToken)
	}

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode == http.StatusUnauthorized {
		return resp.StatusCode, ErrUnauthenticated
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var e struct {
			Error string `json:"error"`
		}
		_ = json.Unmarshal(data, &e)
		_ = json.Unmarshal(data, out)
		if e.Error == "" {
			e.Error = string(data)
		}
		return resp.StatusCode, &APIError{StatusCode: resp.StatusCode, Message: e.Error}
	}

	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return resp.StatusCode, fmt.Errorf("failed to unmarshal response: %w", err)
		}
	}
	return resp.StatusCode, nil
}

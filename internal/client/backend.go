package client

import (
	"context"
	"errors"

	"github.com/maptitesalle/mylittlegymcoach/internal/content"
	"github.com/maptitesalle/mylittlegymcoach/internal/planner"
)

var (
	// ErrUnauthenticated is returned when an operation needs a user id and
	// none is known.
	ErrUnauthenticated = errors.New("no authenticated user")
	// ErrForeignRecord is returned by a Backend when the requested record
	// belongs to another user.
	ErrForeignRecord = errors.New("record belongs to another user")
)

// GenerateRequest is the body of a generation call.
type GenerateRequest struct {
	Prompt          string       `json:"prompt"`
	Type            content.Type `json:"type"`
	PreviousRecipes []string     `json:"previousRecipes,omitempty"`
	RequestID       string       `json:"requestId,omitempty"`
	UserID          string       `json:"userId,omitempty"`
}

// GenerateResponse is what the generation endpoint answers. Content is set
// for the synchronous and cached paths, Status for the async one.
type GenerateResponse struct {
	Status    content.Status `json:"status,omitempty"`
	Message   string         `json:"message,omitempty"`
	RequestID string         `json:"requestId,omitempty"`
	Content   string         `json:"content,omitempty"`
	Error     string         `json:"error,omitempty"`
}

// Backend is the server surface the controller talks to.
type Backend interface {
	Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error)
	// GetContent returns nil when the record does not exist.
	GetContent(ctx context.Context, requestID string) (*content.Record, error)
	// GetPlan and GetLatestPlan return nil when no plan matches.
	GetPlan(ctx context.Context, userID, requestID string) (*planner.NutritionPlan, error)
	GetLatestPlan(ctx context.Context, userID string) (*planner.NutritionPlan, error)
	SavePlan(ctx context.Context, in planner.PlanInput) (*planner.NutritionPlan, error)
}

// Pointer persists the id of the last request the client started.
type Pointer interface {
	Get() (string, error)
	Set(requestID string) error
	Clear() error
}

// Listener receives controller events. Calls are made synchronously, from
// the poll goroutine while polling, so a Listener must not call back into
// Start, Resume or Close.
type Listener interface {
	StateChanged(state State)
	PlanReady(plan *planner.NutritionPlan)
	Failed(err error)
}

type nopListener struct{}

func (nopListener) StateChanged(State)                {}
func (nopListener) PlanReady(*planner.NutritionPlan) {}
func (nopListener) Failed(error)                     {}

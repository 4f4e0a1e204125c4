package generation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/maptitesalle/mylittlegymcoach/internal/content"
	"github.com/maptitesalle/mylittlegymcoach/internal/llm"
	"github.com/maptitesalle/mylittlegymcoach/internal/logger"
	"github.com/maptitesalle/mylittlegymcoach/internal/planner"
	"github.com/maptitesalle/mylittlegymcoach/internal/shared"
)

const (
	defaultTimeout = 3 * time.Minute
	writeTimeout   = 15 * time.Second

	shutdownMessage = "generation aborted: server is shutting down"
)

// ContentStore is the generation record access used by the coordinator.
type ContentStore interface {
	UpsertProcessing(ctx context.Context, requestID string, contentType content.Type, userID string) (bool, error)
	GetByRequestID(ctx context.Context, requestID string) (*content.Record, error)
	CompleteWithContent(ctx context.Context, requestID, text string) error
	CompleteWithError(ctx context.Context, requestID, message string) error
}

// PlanStore persists completed nutrition plans.
type PlanStore interface {
	UpsertPlan(ctx context.Context, in planner.PlanInput) (*planner.NutritionPlan, error)
}

// Request is a generation request as received from a client.
type Request struct {
	Prompt          string
	ContentType     content.Type
	PreviousRecipes []string
	RequestID       string
	UserID          string
}

// Result is what Submit hands back to the caller.
// Status is empty for the synchronous path.
type Result struct {
	Status    content.Status
	RequestID string
	Content   string
	Error     string
	Cached    bool
}

// Deps groups the collaborators of a Coordinator.
type Deps struct {
	Contents   ContentStore
	Plans      PlanStore
	Generator  llm.TextGenerator // nil when no credential is configured
	Supervisor *Supervisor
	Metrics    MetricsRecorder
	Notifier   Notifier
	Logger     *logger.Logger
	Timeout    time.Duration
}

// Coordinator accepts generation requests, deduplicates them by request id
// and runs the generation in the background.
type Coordinator struct {
	contents   ContentStore
	plans      PlanStore
	generator  llm.TextGenerator
	supervisor *Supervisor
	metrics    MetricsRecorder
	notifier   Notifier
	log        *logger.Logger
	timeout    time.Duration
}

// NewCoordinator creates a Coordinator.
func NewCoordinator(d Deps) *Coordinator {
	c := &Coordinator{
		contents:   d.Contents,
		plans:      d.Plans,
		generator:  d.Generator,
		supervisor: d.Supervisor,
		metrics:    d.Metrics,
		notifier:   d.Notifier,
		log:        d.Logger.With("component", "RequestCoordinator"),
		timeout:    d.Timeout,
	}
	if c.metrics == nil {
		c.metrics = nopRecorder{}
	}
	if c.notifier == nil {
		c.notifier = nopNotifier{}
	}
	if c.timeout <= 0 {
		c.timeout = defaultTimeout
	}
	return c
}

// Submit validates req and either generates synchronously (no request id)
// or records the request and launches it in the background.
func (c *Coordinator) Submit(ctx context.Context, req Request) (Result, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return Result{}, fmt.Errorf("%w: prompt is required", ErrInvalidInput)
	}
	if !req.ContentType.Valid() {
		return Result{}, fmt.Errorf("%w: unknown content type %q", ErrInvalidInput, req.ContentType)
	}
	if c.generator == nil {
		return Result{}, ErrConfiguration
	}

	llmReq := BuildLLMRequest(req.ContentType, req.Prompt, req.PreviousRecipes)

	if req.RequestID == "" {
		text, err := c.generate(ctx, req.ContentType, llmReq)
		if err != nil {
			return Result{}, err
		}
		return Result{Content: text}, nil
	}

	log := c.log.With("request_id", req.RequestID, "content_type", req.ContentType)

	existing, err := c.contents.GetByRequestID(ctx, req.RequestID)
	if err != nil {
		return Result{}, err
	}
	if existing != nil {
		if existing.UserID != "" && req.UserID != "" && existing.UserID != req.UserID {
			return Result{}, ErrForeignRequest
		}
		log.Debug("Request already known", "status", existing.Status)
		return resultFromRecord(existing), nil
	}

	created, err := c.contents.UpsertProcessing(ctx, req.RequestID, req.ContentType, req.UserID)
	if err != nil {
		return Result{}, err
	}
	processing := Result{Status: content.StatusProcessing, RequestID: req.RequestID}
	if !created {
		// A concurrent duplicate created the row and owns the generation.
		log.Debug("Duplicate submission collapsed onto existing record")
		return processing, nil
	}

	err = c.supervisor.Go(req.RequestID, func(taskCtx context.Context) {
		c.run(taskCtx, req, llmReq)
	})
	if errors.Is(err, ErrSupervisorClosed) {
		c.fail(req.RequestID, req.ContentType, shutdownMessage)
		return Result{Status: content.StatusError, RequestID: req.RequestID, Error: shutdownMessage}, nil
	}
	if err != nil {
		return Result{}, err
	}

	log.Info("Generation accepted")
	return processing, nil
}

func resultFromRecord(rec *content.Record) Result {
	res := Result{Status: rec.Status, RequestID: rec.RequestID}
	switch rec.Status {
	case content.StatusCompleted:
		res.Content = rec.Content
		res.Cached = true
	case content.StatusError:
		res.Error = rec.Content
	}
	return res
}

// run is the detached part of an async request. It always ends with a
// terminal write unless the record was already swept.
func (c *Coordinator) run(ctx context.Context, req Request, llmReq llm.Request) {
	log := c.log.With("request_id", req.RequestID, "content_type", req.ContentType)

	defer func() {
		if r := recover(); r != nil {
			log.Error("Generation panic", "panic", r)
			c.fail(req.RequestID, req.ContentType, "internal error during generation")
		}
	}()

	genCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	text, err := c.generate(genCtx, req.ContentType, llmReq)
	if err != nil {
		log.Warn("Generation failed", "error", err)
		c.fail(req.RequestID, req.ContentType, err.Error())
		return
	}

	writeCtx, cancelWrite := context.WithTimeout(context.WithoutCancel(ctx), writeTimeout)
	defer cancelWrite()

	if err := c.contents.CompleteWithContent(writeCtx, req.RequestID, text); err != nil {
		if errors.Is(err, content.ErrNotProcessing) {
			log.Warn("Record left processing before completion, result dropped")
			return
		}
		log.Error("Failed to store generated content", "error", err)
		return
	}

	if req.ContentType == content.TypeNutrition && req.UserID != "" {
		in := planner.InputFromContent(req.UserID, req.RequestID, text)
		if _, err := c.plans.UpsertPlan(writeCtx, in); err != nil {
			// The completed record remains the source; clients save the plan on resume.
			log.Error("Failed to save nutrition plan", "user_id", req.UserID, "error", err)
		}
	}

	log.Info("Generation completed", "length", len(text))
}

// generate calls the provider, records metrics and post-processes the text.
func (c *Coordinator) generate(ctx context.Context, t content.Type, llmReq llm.Request) (string, error) {
	start := time.Now()
	resp, err := c.generator.GenerateContent(ctx, llmReq)

	meta := shared.GenerationMeta{
		AgentName: "generator:" + string(t),
		Status:    string(content.StatusCompleted),
		Usage:     resp.Usage,
		Latency:   time.Since(start),
	}
	if err != nil {
		meta.Status = string(content.StatusError)
	}
	c.metrics.RecordGeneration(context.WithoutCancel(ctx), meta)

	if err != nil {
		return "", err
	}
	return PostProcess(t, resp.Content), nil
}

func (c *Coordinator) fail(requestID string, t content.Type, message string) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	if err := c.contents.CompleteWithError(ctx, requestID, message); err != nil {
		if !errors.Is(err, content.ErrNotProcessing) {
			c.log.Error("Failed to store generation error", "request_id", requestID, "error", err)
		}
		return
	}
	c.notifier.GenerationFailed(requestID, t, message)
}

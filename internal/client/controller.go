package client

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/maptitesalle/mylittlegymcoach/internal/content"
	"github.com/maptitesalle/mylittlegymcoach/internal/logger"
	"github.com/maptitesalle/mylittlegymcoach/internal/planner"
	"github.com/maptitesalle/mylittlegymcoach/internal/profile"
)

// State is the controller's position in the generation lifecycle.
type State string

const (
	StateIdle       State = "idle"
	StateGenerating State = "generating"
	StateResuming   State = "resuming"
	StateCompleted  State = "completed"
	StateFailed     State = "failed"
)

// DefaultPollInterval is used when Options.PollInterval is zero.
const DefaultPollInterval = 5 * time.Second

// Options configures a Controller.
type Options struct {
	UserID       string
	PollInterval time.Duration
	Listener     Listener
	Logger       *logger.Logger
}

// StartOptions are the inputs of a new generation.
type StartOptions struct {
	Profile    profile.Profile
	Regenerate bool
}

// Controller drives one user's nutrition plan generation: it starts
// requests, persists the request pointer, resumes after a restart and polls
// until the server reports a terminal state.
type Controller struct {
	backend  Backend
	pointer  Pointer
	listener Listener
	log      *logger.Logger
	userID   string
	interval time.Duration
	newID    func() string

	mu        sync.Mutex
	state     State
	requestID string
	plan      *planner.NutritionPlan
	avoided   []string
	seen      map[string]bool
	poller    *Poller
}

// NewController creates an idle Controller.
func NewController(backend Backend, pointer Pointer, opts Options) *Controller {
	c := &Controller{
		backend:  backend,
		pointer:  pointer,
		listener: opts.Listener,
		log:      opts.Logger,
		userID:   opts.UserID,
		interval: opts.PollInterval,
		newID:    uuid.NewString,
		state:    StateIdle,
		seen:     make(map[string]bool),
	}
	if c.listener == nil {
		c.listener = nopListener{}
	}
	if c.log == nil {
		c.log = logger.NewNop()
	}
	c.log = c.log.With("component", "PollingController")
	if c.interval <= 0 {
		c.interval = DefaultPollInterval
	}
	return c
}

// State returns the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Plan returns the last adopted plan, if any.
func (c *Controller) Plan() *planner.NutritionPlan {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.plan
}

// RequestID returns the request currently tracked.
func (c *Controller) RequestID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.requestID
}

// AvoidedRecipes returns the titles sent on regeneration. The set only grows.
func (c *Controller) AvoidedRecipes() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.avoided...)
}

// Start launches a new generation. It returns the poller tracking it when
// the server answered asynchronously, nil otherwise.
func (c *Controller) Start(ctx context.Context, opts StartOptions) (*Poller, error) {
	if c.userID == "" {
		return nil, ErrUnauthenticated
	}
	prompt, err := profile.BuildNutritionPrompt(opts.Profile)
	if err != nil {
		return nil, err
	}

	var previous []string
	if opts.Regenerate {
		previous = c.rememberCurrentRecipes()
	}

	requestID := c.newID()
	if err := c.pointer.Set(requestID); err != nil {
		return nil, fmt.Errorf("failed to persist request pointer: %w", err)
	}

	// Switch ownership first so a tick still running for the previous
	// request drops its result.
	c.track(requestID)
	c.stopPoller()
	c.setState(StateGenerating)

	log := c.log.With("request_id", requestID)
	log.Info("Starting generation", "regenerate", opts.Regenerate, "avoided", len(previous))

	resp, err := c.backend.Generate(ctx, GenerateRequest{
		Prompt:          prompt,
		Type:            content.TypeNutrition,
		PreviousRecipes: previous,
		RequestID:       requestID,
		UserID:          c.userID,
	})
	if err != nil {
		c.fail(requestID, err)
		return nil, err
	}

	switch {
	case resp.Status == content.StatusError:
		err := generationError(resp.Error)
		c.fail(requestID, err)
		return nil, err
	case resp.Status == content.StatusProcessing:
		return c.poll(ctx, requestID), nil
	default:
		// Synchronous or cached answer.
		c.completeWithContent(ctx, requestID, resp.Content)
		return nil, nil
	}
}

// Resume picks up the request recorded by a previous run. Without a
// pointer it loads the user's latest plan instead.
func (c *Controller) Resume(ctx context.Context) (*Poller, error) {
	if c.userID == "" {
		return nil, ErrUnauthenticated
	}

	requestID, err := c.pointer.Get()
	if err != nil {
		return nil, fmt.Errorf("failed to read request pointer: %w", err)
	}

	if requestID == "" {
		plan, err := c.backend.GetLatestPlan(ctx, c.userID)
		if err != nil {
			return nil, fmt.Errorf("failed to load latest plan: %w", err)
		}
		if plan != nil {
			c.adopt(plan)
		}
		return nil, nil
	}

	c.track(requestID)
	c.stopPoller()
	c.setState(StateResuming)

	terminal, err := c.check(ctx, requestID)
	if errors.Is(err, ErrUnauthenticated) {
		c.abandon(requestID, err)
		return nil, err
	}
	if err != nil {
		c.log.Warn("Resume check failed, will retry while polling", "request_id", requestID, "error", err)
	}
	if terminal {
		return nil, nil
	}
	return c.poll(ctx, requestID), nil
}

// Close stops any running poller and waits for its last tick, so no
// listener call happens after Close returns.
func (c *Controller) Close() {
	c.stopPoller()
}

func (c *Controller) poll(ctx context.Context, requestID string) *Poller {
	p := startPoller(ctx, c.interval, func(ctx context.Context) bool {
		terminal, err := c.check(ctx, requestID)
		if errors.Is(err, ErrUnauthenticated) {
			c.abandon(requestID, err)
			return true
		}
		if err != nil {
			// A failed read is not a failed generation.
			c.log.Warn("Poll tick failed", "request_id", requestID, "error", err)
			return false
		}
		return terminal
	})

	c.mu.Lock()
	c.poller = p
	c.mu.Unlock()
	return p
}

// stopPoller cancels the current poller and waits for it to exit. It must
// not be called from a Listener callback.
func (c *Controller) stopPoller() {
	c.mu.Lock()
	p := c.poller
	c.poller = nil
	c.mu.Unlock()
	if p != nil {
		p.Stop()
		<-p.Done()
	}
}

// track makes requestID the tracked request.
func (c *Controller) track(requestID string) {
	c.mu.Lock()
	c.requestID = requestID
	c.mu.Unlock()
}

func (c *Controller) owns(requestID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.requestID == requestID
}

// check looks the request up in the plan store, then in the content store.
// It reports whether tracking is over, which is also the case once another
// request has replaced requestID.
func (c *Controller) check(ctx context.Context, requestID string) (bool, error) {
	plan, err := c.backend.GetPlan(ctx, c.userID, requestID)
	if err != nil {
		return false, err
	}
	if plan != nil {
		if c.settle(requestID) {
			c.adopt(plan)
		}
		return true, nil
	}

	rec, err := c.backend.GetContent(ctx, requestID)
	if !c.owns(requestID) {
		return true, nil
	}
	if errors.Is(err, ErrForeignRecord) {
		c.discard(requestID, "foreign record")
		return true, nil
	}
	if err != nil {
		return false, err
	}

	switch {
	case rec == nil:
		c.discard(requestID, "unknown request")
		return true, nil
	case rec.UserID != "" && rec.UserID != c.userID:
		c.discard(requestID, "foreign record")
		return true, nil
	case rec.Status == content.StatusCompleted:
		c.completeWithContent(ctx, requestID, rec.Content)
		return true, nil
	case rec.Status == content.StatusError:
		c.fail(requestID, generationError(rec.Content))
		return true, nil
	}
	return false, nil
}

// completeWithContent stores the plan for the user and adopts it.
func (c *Controller) completeWithContent(ctx context.Context, requestID, text string) {
	if !c.owns(requestID) {
		return
	}
	in := planner.InputFromContent(c.userID, requestID, text)
	plan, err := c.backend.SavePlan(ctx, in)
	if err != nil || plan == nil {
		c.log.Warn("Failed to save plan, keeping local copy", "request_id", requestID, "error", err)
		plan = &planner.NutritionPlan{
			UserID:      in.UserID,
			RequestID:   in.RequestID,
			Content:     in.Content,
			Recipes:     in.Recipes,
			Ingredients: in.Ingredients,
			CreatedAt:   time.Now().UTC(),
		}
	}
	if c.settle(requestID) {
		c.adopt(plan)
	}
}

func (c *Controller) adopt(plan *planner.NutritionPlan) {
	c.mu.Lock()
	c.plan = plan
	c.mu.Unlock()
	c.setState(StateCompleted)
	c.listener.PlanReady(plan)
}

func (c *Controller) fail(requestID string, err error) {
	if !c.settle(requestID) {
		return
	}
	c.log.Warn("Generation failed", "request_id", requestID, "error", err)
	c.setState(StateFailed)
	c.listener.Failed(err)
}

// abandon stops tracking requestID without clearing the pointer: the
// generation may still finish and be resumed once the user signs in again.
func (c *Controller) abandon(requestID string, err error) {
	c.mu.Lock()
	owned := c.requestID == requestID
	if owned {
		c.requestID = ""
	}
	c.mu.Unlock()
	if !owned {
		return
	}
	c.log.Warn("Polling stopped, pointer kept for resume", "request_id", requestID, "error", err)
	c.setState(StateFailed)
	c.listener.Failed(err)
}

// discard drops an invalid pointer without reporting a failure.
func (c *Controller) discard(requestID, reason string) {
	if !c.settle(requestID) {
		return
	}
	c.log.Info("Discarding request pointer", "request_id", requestID, "reason", reason)
	c.setState(StateIdle)
}

// settle ends the tracking of requestID once it reached a terminal state.
// It reports false, and changes nothing, when requestID is no longer the
// tracked request. The durable pointer is cleared only while it still
// designates requestID.
func (c *Controller) settle(requestID string) bool {
	c.mu.Lock()
	if c.requestID != requestID {
		c.mu.Unlock()
		return false
	}
	c.requestID = ""
	c.mu.Unlock()

	current, err := c.pointer.Get()
	if err == nil && current != "" && current != requestID {
		return true
	}
	if err := c.pointer.Clear(); err != nil {
		c.log.Warn("Failed to clear request pointer", "error", err)
	}
	return true
}

func (c *Controller) setState(s State) {
	c.mu.Lock()
	changed := c.state != s
	c.state = s
	c.mu.Unlock()
	if changed {
		c.listener.StateChanged(s)
	}
}

// rememberCurrentRecipes merges the current plan's titles into the avoided
// set and returns the whole set.
func (c *Controller) rememberCurrentRecipes() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.plan != nil {
		for _, title := range planner.RecipeTitles(c.plan.Content) {
			if !c.seen[title] {
				c.seen[title] = true
				c.avoided = append(c.avoided, title)
			}
		}
	}
	return append([]string(nil), c.avoided...)
}

func generationError(message string) error {
	if message == "" {
		message = "generation failed"
	}
	return errors.New(message)
}

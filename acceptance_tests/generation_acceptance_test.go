package acceptance_tests

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maptitesalle/mylittlegymcoach/internal/api"
	"github.com/maptitesalle/mylittlegymcoach/internal/client"
	"github.com/maptitesalle/mylittlegymcoach/internal/content"
	"github.com/maptitesalle/mylittlegymcoach/internal/database"
	"github.com/maptitesalle/mylittlegymcoach/internal/generation"
	"github.com/maptitesalle/mylittlegymcoach/internal/llm"
	"github.com/maptitesalle/mylittlegymcoach/internal/logger"
	"github.com/maptitesalle/mylittlegymcoach/internal/planner"
	"github.com/maptitesalle/mylittlegymcoach/internal/profile"
	"github.com/maptitesalle/mylittlegymcoach/internal/shared"
	"github.com/maptitesalle/mylittlegymcoach/internal/storage"
)

// --- Mock LLM Client ---
// Every call waits for release, then answers a plan whose day markers have
// drifted (preamble, missing "# Jour 3", trailing generic day).
type mockLLMClient struct {
	mu      sync.Mutex
	calls   int
	release chan struct{}
	once    sync.Once
}

func (m *mockLLMClient) Release() {
	m.once.Do(func() { close(m.release) })
}

func (m *mockLLMClient) GenerateContent(ctx context.Context, req llm.Request) (llm.ContentResponse, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()

	select {
	case <-m.release:
	case <-ctx.Done():
		return llm.ContentResponse{}, ctx.Err()
	}

	var b strings.Builder
	b.WriteString("Voici votre plan nutritionnel personnalisé :\n\n")
	for _, day := range []int{1, 2, 4, 5, 6, 7, 8} {
		fmt.Fprintf(&b, "# Jour %d\n## Déjeuner : Salade composée %d\n### Ingrédients\n- 100 g de pois chiches\n\n", day, day)
	}
	return llm.ContentResponse{
		Content: b.String(),
		Usage:   shared.TokenUsage{PromptTokens: 500, CompletionTokens: 3000, Model: "mock"},
	}, nil
}

func (m *mockLLMClient) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

type stack struct {
	server     *httptest.Server
	contents   *content.Repository
	plans      *planner.PlanRepository
	llm        *mockLLMClient
	supervisor *generation.Supervisor
}

func newStack(t *testing.T) *stack {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := database.NewDB(filepath.Join(t.TempDir(), "coach.db"), logger.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	s := &stack{
		contents:   content.NewRepository(db),
		plans:      planner.NewPlanRepository(db),
		llm:        &mockLLMClient{release: make(chan struct{})},
		supervisor: generation.NewSupervisor(2, logger.NewNop()),
	}
	coordinator := generation.NewCoordinator(generation.Deps{
		Contents:   s.contents,
		Plans:      s.plans,
		Generator:  s.llm,
		Supervisor: s.supervisor,
		Logger:     logger.NewNop(),
		Timeout:    10 * time.Second,
	})

	s.server = httptest.NewServer(api.NewRouter(api.RouterConfig{
		Coordinator: coordinator,
		Records:     s.contents,
		Plans:       s.plans,
		Tasks:       s.supervisor,
		Logger:      logger.NewNop(),
	}))
	t.Cleanup(func() {
		s.server.Close()
		s.llm.Release()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.supervisor.Shutdown(ctx)
	})
	return s
}

func (s *stack) newController(t *testing.T, stateDir, userID string) *client.Controller {
	t.Helper()
	pointer, err := storage.NewPointerStore(stateDir)
	require.NoError(t, err)
	ctrl := client.NewController(client.NewHTTPBackend(s.server.URL, ""), pointer, client.Options{
		UserID:       userID,
		PollInterval: 10 * time.Millisecond,
	})
	t.Cleanup(ctrl.Close)
	return ctrl
}

func fat(v float64) *float64 { return &v }

func userProfile() profile.Profile {
	return profile.Profile{
		Age:            41,
		Gender:         "female",
		HeightCM:       165,
		Metabolic:      profile.Metabolic{WeightKG: 64, FatPercentage: fat(27)},
		ActivityFactor: 1.375,
		Goals:          profile.Goals{WeightLoss: true},
		Diet:           profile.Diet{DairyFree: true},
	}
}

func waitPoller(t *testing.T, p *client.Poller) {
	t.Helper()
	require.NotNil(t, p)
	select {
	case <-p.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("poller did not reach a terminal state")
	}
}

func TestGenerateAndPollToCompletion(t *testing.T) {
	ctx := context.Background()
	s := newStack(t)
	ctrl := s.newController(t, t.TempDir(), "u1")

	poller, err := ctrl.Start(ctx, client.StartOptions{Profile: userProfile()})
	require.NoError(t, err)
	requestID := ctrl.RequestID()

	rec, err := s.contents.GetByRequestID(ctx, requestID)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, content.StatusProcessing, rec.Status)
	assert.Equal(t, "u1", rec.UserID)

	s.llm.Release()
	waitPoller(t, poller)

	require.Equal(t, client.StateCompleted, ctrl.State())
	final := ctrl.Plan().Content

	assert.True(t, strings.HasPrefix(final, "# Jour 1"))
	for day := 1; day <= 7; day++ {
		assert.Equal(t, 1, strings.Count(final, fmt.Sprintf("# Jour %d\n", day)), "day %d", day)
	}
	assert.NotContains(t, final, "# Jour 8")

	rec, err = s.contents.GetByRequestID(ctx, requestID)
	require.NoError(t, err)
	assert.Equal(t, content.StatusCompleted, rec.Status)
	assert.Equal(t, final, rec.Content)

	plan, err := s.plans.GetByUserAndRequest(ctx, "u1", requestID)
	require.NoError(t, err)
	require.NotNil(t, plan)
	assert.Equal(t, final, plan.Content)

	history, err := s.plans.ListRecentByUserID(ctx, "u1", 10)
	require.NoError(t, err)
	assert.Len(t, history, 1, "the worker and the client save the same plan row")
}

func TestResumeAfterReload(t *testing.T) {
	ctx := context.Background()
	s := newStack(t)
	stateDir := t.TempDir()

	first := s.newController(t, stateDir, "u1")
	poller, err := first.Start(ctx, client.StartOptions{Profile: userProfile()})
	require.NoError(t, err)
	requestID := first.RequestID()

	// The process goes away while the server keeps generating.
	first.Close()
	<-poller.Done()

	reloaded := s.newController(t, stateDir, "u1")
	resumed, err := reloaded.Resume(ctx)
	require.NoError(t, err)
	require.NotNil(t, resumed)
	assert.Equal(t, requestID, reloaded.RequestID())

	s.llm.Release()
	waitPoller(t, resumed)

	require.Equal(t, client.StateCompleted, reloaded.State())
	rec, err := s.contents.GetByRequestID(ctx, requestID)
	require.NoError(t, err)
	assert.Equal(t, rec.Content, reloaded.Plan().Content)
	assert.Equal(t, 1, s.llm.Calls())

	// Nothing left to resume: the latest plan is shown instead.
	again := s.newController(t, stateDir, "u1")
	p, err := again.Resume(ctx)
	require.NoError(t, err)
	assert.Nil(t, p)
	assert.Equal(t, rec.Content, again.Plan().Content)
}

func TestForeignPointerIsDropped(t *testing.T) {
	ctx := context.Background()
	s := newStack(t)
	stateDir := t.TempDir()

	owner := s.newController(t, stateDir, "u2")
	poller, err := owner.Start(ctx, client.StartOptions{Profile: userProfile()})
	require.NoError(t, err)
	owner.Close()
	<-poller.Done()

	// Another user on the same machine.
	intruder := s.newController(t, stateDir, "u1")
	p, err := intruder.Resume(ctx)
	require.NoError(t, err)
	assert.Nil(t, p)
	assert.Equal(t, client.StateIdle, intruder.State())
	assert.Nil(t, intruder.Plan())

	pointer, err := storage.NewPointerStore(stateDir)
	require.NoError(t, err)
	id, err := pointer.Get()
	require.NoError(t, err)
	assert.Empty(t, id)
}

func TestIdempotentSubmission(t *testing.T) {
	ctx := context.Background()
	s := newStack(t)

	submit := func() map[string]any {
		body, _ := json.Marshal(map[string]any{"prompt": "P", "type": "nutrition", "requestId": "r1", "userId": "u1"})
		resp, err := http.Post(s.server.URL+"/functions/v1/generate-content", "application/json", bytes.NewReader(body))
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)
		var out map[string]any
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
		return out
	}

	first := submit()
	assert.Equal(t, "processing", first["status"])
	assert.Equal(t, "r1", first["requestId"])

	second := submit()
	assert.Equal(t, "processing", second["status"])

	s.llm.Release()
	require.Eventually(t, func() bool {
		rec, err := s.contents.GetByRequestID(ctx, "r1")
		return err == nil && rec != nil && rec.Status == content.StatusCompleted
	}, 5*time.Second, 10*time.Millisecond)

	third := submit()
	rec, err := s.contents.GetByRequestID(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, rec.Content, third["content"])

	assert.Equal(t, 1, s.llm.Calls())
	require.Eventually(t, func() bool {
		plans, err := s.plans.ListRecentByUserID(ctx, "u1", 10)
		return err == nil && len(plans) == 1
	}, 5*time.Second, 10*time.Millisecond)
}

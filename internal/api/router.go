package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/maptitesalle/mylittlegymcoach/internal/content"
	"github.com/maptitesalle/mylittlegymcoach/internal/generation"
	"github.com/maptitesalle/mylittlegymcoach/internal/logger"
	"github.com/maptitesalle/mylittlegymcoach/internal/metrics"
	"github.com/maptitesalle/mylittlegymcoach/internal/planner"
)

// Submitter accepts generation requests.
type Submitter interface {
	Submit(ctx context.Context, req generation.Request) (generation.Result, error)
}

// RecordReader reads generation records.
type RecordReader interface {
	GetByRequestID(ctx context.Context, requestID string) (*content.Record, error)
}

// PlanStore reads and writes stored nutrition plans.
type PlanStore interface {
	GetByUserAndRequest(ctx context.Context, userID, requestID string) (*planner.NutritionPlan, error)
	GetLatestByUser(ctx context.Context, userID string) (*planner.NutritionPlan, error)
	ListRecentByUserID(ctx context.Context, userID string, limit int) ([]planner.NutritionPlan, error)
	UpsertPlan(ctx context.Context, in planner.PlanInput) (*planner.NutritionPlan, error)
}

// TaskStats reports the background generation load.
type TaskStats interface {
	Running() int
	Pending() int
}

// RouterConfig wires the HTTP surface.
type RouterConfig struct {
	Coordinator Submitter
	Records     RecordReader
	Plans       PlanStore
	Tasks       TaskStats
	Collector   *metrics.Collector
	Gatherer    prometheus.Gatherer
	// Webhook receives Telegram updates; nil disables the route.
	Webhook http.HandlerFunc
	// JWTSecret enables bearer authentication when set.
	JWTSecret string
	DataPath  string
	Logger    *logger.Logger
}

// NewRouter builds the gin engine serving the coach API.
func NewRouter(cfg RouterConfig) *gin.Engine {
	log := cfg.Logger
	if log == nil {
		log = logger.NewNop()
	}
	log = log.With("component", "HTTP")

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestID())
	r.Use(RequestLogger(log))
	r.Use(CORS())
	if cfg.Collector != nil {
		r.Use(Metrics(cfg.Collector))
	}

	h := &handler{
		coordinator: cfg.Coordinator,
		records:     cfg.Records,
		plans:       cfg.Plans,
		tasks:       cfg.Tasks,
		dataPath:    cfg.DataPath,
		log:         log,
	}

	r.GET("/health", h.health)
	if cfg.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{})))
	}
	if cfg.Webhook != nil {
		r.POST("/telegram/webhook", gin.WrapF(cfg.Webhook))
	}

	auth := Auth(cfg.JWTSecret)

	r.POST("/functions/v1/generate-content", auth, h.generate)

	api := r.Group("/api", auth)
	{
		api.POST("/generate", h.generate)
		api.GET("/content/:requestId", h.getContent)
		api.GET("/plans", h.listPlans)
		api.GET("/plans/latest", h.latestPlan)
		api.GET("/plans/:requestId", h.getPlan)
		api.PUT("/plans", h.savePlan)
	}

	return r
}

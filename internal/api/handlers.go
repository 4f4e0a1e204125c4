package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/maptitesalle/mylittlegymcoach/internal/content"
	"github.com/maptitesalle/mylittlegymcoach/internal/generation"
	"github.com/maptitesalle/mylittlegymcoach/internal/logger"
	"github.com/maptitesalle/mylittlegymcoach/internal/metrics"
	"github.com/maptitesalle/mylittlegymcoach/internal/planner"
)

const (
	defaultPlanLimit = 10
	maxPlanLimit     = 50

	processingMessage = "Generation started in background"
)

var (
	errMissingUser = errors.New("user id is required")
	errNotFound    = errors.New("not found")
)

type handler struct {
	coordinator Submitter
	records     RecordReader
	plans       PlanStore
	tasks       TaskStats
	dataPath    string
	log         *logger.Logger
}

type generateBody struct {
	Prompt          string   `json:"prompt"`
	Type            string   `json:"type"`
	PreviousRecipes []string `json:"previousRecipes"`
	RequestID       string   `json:"requestId"`
	UserID          string   `json:"userId"`
}

type savePlanBody struct {
	UserID    string `json:"userId"`
	RequestID string `json:"requestId"`
	Content   string `json:"content" binding:"required"`
}

func (h *handler) generate(c *gin.Context) {
	var body generateBody
	if err := c.ShouldBindJSON(&body); err != nil {
		respondError(c, http.StatusBadRequest, err)
		return
	}

	userID, err := caller(c, body.UserID)
	if err != nil {
		respondError(c, statusFor(err), err)
		return
	}

	res, err := h.coordinator.Submit(c.Request.Context(), generation.Request{
		Prompt:          body.Prompt,
		ContentType:     content.Type(strings.ToLower(strings.TrimSpace(body.Type))),
		PreviousRecipes: body.PreviousRecipes,
		RequestID:       strings.TrimSpace(body.RequestID),
		UserID:          userID,
	})
	if err != nil {
		if statusFor(err) == http.StatusInternalServerError {
			h.log.Error("Generation request failed", "request_id", body.RequestID, "error", err)
		}
		respondError(c, statusFor(err), err)
		return
	}

	switch res.Status {
	case content.StatusProcessing:
		c.JSON(http.StatusOK, gin.H{"status": res.Status, "message": processingMessage, "requestId": res.RequestID})
	case content.StatusError:
		c.JSON(http.StatusInternalServerError, gin.H{"status": res.Status, "requestId": res.RequestID, "error": res.Error})
	default:
		c.JSON(http.StatusOK, gin.H{"content": res.Content})
	}
}

func (h *handler) getContent(c *gin.Context) {
	rec, err := h.records.GetByRequestID(c.Request.Context(), c.Param("requestId"))
	if err != nil {
		respondError(c, http.StatusInternalServerError, err)
		return
	}
	if rec == nil {
		respondError(c, http.StatusNotFound, errNotFound)
		return
	}
	if authUser := c.GetString(ctxUserID); authUser != "" && rec.UserID != "" && rec.UserID != authUser {
		respondError(c, http.StatusForbidden, generation.ErrForeignRequest)
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (h *handler) getPlan(c *gin.Context) {
	userID, err := requiredCaller(c, c.Query("userId"))
	if err != nil {
		respondError(c, statusFor(err), err)
		return
	}
	plan, err := h.plans.GetByUserAndRequest(c.Request.Context(), userID, c.Param("requestId"))
	h.respondPlan(c, plan, err)
}

func (h *handler) latestPlan(c *gin.Context) {
	userID, err := requiredCaller(c, c.Query("userId"))
	if err != nil {
		respondError(c, statusFor(err), err)
		return
	}
	plan, err := h.plans.GetLatestByUser(c.Request.Context(), userID)
	h.respondPlan(c, plan, err)
}

func (h *handler) respondPlan(c *gin.Context, plan *planner.NutritionPlan, err error) {
	if err != nil {
		respondError(c, http.StatusInternalServerError, err)
		return
	}
	if plan == nil {
		respondError(c, http.StatusNotFound, errNotFound)
		return
	}
	c.JSON(http.StatusOK, plan)
}

func (h *handler) listPlans(c *gin.Context) {
	userID, err := requiredCaller(c, c.Query("userId"))
	if err != nil {
		respondError(c, statusFor(err), err)
		return
	}

	limit := defaultPlanLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			respondError(c, http.StatusBadRequest, errors.New("limit must be a positive integer"))
			return
		}
		limit = min(n, maxPlanLimit)
	}

	plans, err := h.plans.ListRecentByUserID(c.Request.Context(), userID, limit)
	if err != nil {
		respondError(c, http.StatusInternalServerError, err)
		return
	}
	if plans == nil {
		plans = []planner.NutritionPlan{}
	}
	c.JSON(http.StatusOK, plans)
}

func (h *handler) savePlan(c *gin.Context) {
	var body savePlanBody
	if err := c.ShouldBindJSON(&body); err != nil {
		respondError(c, http.StatusBadRequest, err)
		return
	}
	userID, err := requiredCaller(c, body.UserID)
	if err != nil {
		respondError(c, statusFor(err), err)
		return
	}

	plan, err := h.plans.UpsertPlan(c.Request.Context(), planner.InputFromContent(userID, body.RequestID, body.Content))
	if err != nil {
		respondError(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, plan)
}

func (h *handler) health(c *gin.Context) {
	resp := gin.H{"status": "ok"}
	if h.tasks != nil {
		resp["running"] = h.tasks.Running()
		resp["pending"] = h.tasks.Pending()
	}
	resp["system"] = metrics.GetSysHealth(h.dataPath)
	c.JSON(http.StatusOK, resp)
}

// caller resolves the acting user. With authentication the token subject
// wins and a different claimed id is rejected.
func caller(c *gin.Context, claimed string) (string, error) {
	authUser := c.GetString(ctxUserID)
	if authUser == "" {
		return claimed, nil
	}
	if claimed != "" && claimed != authUser {
		return "", generation.ErrForeignRequest
	}
	return authUser, nil
}

func requiredCaller(c *gin.Context, claimed string) (string, error) {
	userID, err := caller(c, claimed)
	if err == nil && userID == "" {
		err = errMissingUser
	}
	return userID, err
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, generation.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, errMissingUser):
		return http.StatusUnauthorized
	case errors.Is(err, generation.ErrForeignRequest):
		return http.StatusForbidden
	}
	return http.StatusInternalServerError
}

func respondError(c *gin.Context, status int, err error) {
	c.JSON(status, gin.H{"error": err.Error()})
}

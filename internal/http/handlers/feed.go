package handlers

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/waveline/waveline-backend/internal/clients/events"
	"github.com/waveline/waveline-backend/internal/feed"
	"github.com/waveline/waveline-backend/internal/http/response"
	"github.com/waveline/waveline-backend/internal/platform/logger"
	"github.com/waveline/waveline-backend/internal/services"
)

type FeedHandler struct {
	log          *logger.Logger
	users        services.UserService
	orchestrator feed.Orchestrator
	publisher    events.Publisher
}

func NewFeedHandler(log *logger.Logger, users services.UserService, orchestrator feed.Orchestrator, publisher events.Publisher) *FeedHandler {
	return &FeedHandler{
		log:          log.With("handler", "FeedHandler"),
		users:        users,
		orchestrator: orchestrator,
		publisher:    publisher,
	}
}

// Get serves GET /api/feed?user_id=. Unknown users are rejected before
// the pipeline runs; served posts are recorded as impressions
// fire-and-forget so the next request skips them.
func (h *FeedHandler) Get(c *gin.Context) {
	userID, err := uuid.Parse(c.Query("user_id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_user_id", fmt.Errorf("user_id query parameter required"))
		return
	}
	if _, err := h.users.Get(c.Request.Context(), userID); err != nil {
		response.RespondFromError(c, err)
		return
	}

	built, err := h.orchestrator.Build(c.Request.Context(), userID)
	if err != nil {
		response.RespondError(c, http.StatusInternalServerError, "feed_failed", err)
		return
	}

	if h.publisher != nil && len(built.Items) > 0 {
		postIDs := make([]uuid.UUID, len(built.Items))
		for i, item := range built.Items {
			postIDs[i] = item.PostID
		}
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := h.publisher.PublishImpressions(ctx, userID, postIDs); err != nil {
				h.log.Warn("failed to publish impressions", "user_id", userID, "error", err)
			}
		}()
	}

	response.RespondOK(c, built)
}

type impressionsRequest struct {
	UserID  uuid.UUID   `json:"user_id" binding:"required"`
	PostIDs []uuid.UUID `json:"post_ids" binding:"required"`
}

// RecordImpressions lets clients report views that happened outside a
// feed response (profile pages, deep links).
func (h *FeedHandler) RecordImpressions(c *gin.Context) {
	var req impressionsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	if h.publisher == nil {
		response.RespondError(c, http.StatusServiceUnavailable, "events_unavailable", fmt.Errorf("event bus not configured"))
		return
	}
	if err := h.publisher.PublishImpressions(c.Request.Context(), req.UserID, req.PostIDs); err != nil {
		response.RespondError(c, http.StatusInternalServerError, "publish_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"recorded": len(req.PostIDs)})
}

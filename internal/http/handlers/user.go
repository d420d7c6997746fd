package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/waveline/waveline-backend/internal/http/response"
	"github.com/waveline/waveline-backend/internal/platform/logger"
	"github.com/waveline/waveline-backend/internal/services"
)

type UserHandler struct {
	log   *logger.Logger
	users services.UserService
}

func NewUserHandler(log *logger.Logger, users services.UserService) *UserHandler {
	return &UserHandler{log: log.With("handler", "UserHandler"), users: users}
}

type registerRequest struct {
	Username    string `json:"username" binding:"required"`
	DisplayName string `json:"display_name"`
}

func (h *UserHandler) Register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	user, err := h.users.Register(c.Request.Context(), req.Username, req.DisplayName)
	if err != nil {
		response.RespondFromError(c, err)
		return
	}
	response.RespondCreated(c, user)
}

func (h *UserHandler) Get(c *gin.Context) {
	userID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_user_id", fmt.Errorf("invalid user id"))
		return
	}
	user, err := h.users.Get(c.Request.Context(), userID)
	if err != nil {
		response.RespondFromError(c, err)
		return
	}
	response.RespondOK(c, user)
}

type followRequest struct {
	FollowerID uuid.UUID `json:"follower_id" binding:"required"`
	FolloweeID uuid.UUID `json:"followee_id" binding:"required"`
}

func (h *UserHandler) Follow(c *gin.Context) {
	var req followRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	if err := h.users.Follow(c.Request.Context(), req.FollowerID, req.FolloweeID); err != nil {
		response.RespondFromError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"status": "following"})
}

func (h *UserHandler) Unfollow(c *gin.Context) {
	var req followRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	if err := h.users.Unfollow(c.Request.Context(), req.FollowerID, req.FolloweeID); err != nil {
		response.RespondFromError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"status": "not_following"})
}

func (h *UserHandler) Followers(c *gin.Context) {
	userID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_user_id", fmt.Errorf("invalid user id"))
		return
	}
	followers, err := h.users.Followers(c.Request.Context(), userID, 100)
	if err != nil {
		response.RespondFromError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"followers": followers})
}

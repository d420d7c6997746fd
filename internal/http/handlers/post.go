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

type PostHandler struct {
	log   *logger.Logger
	posts services.PostService
}

func NewPostHandler(log *logger.Logger, posts services.PostService) *PostHandler {
	return &PostHandler{log: log.With("handler", "PostHandler"), posts: posts}
}

type createPostRequest struct {
	UserID      uuid.UUID `json:"user_id" binding:"required"`
	Content     string    `json:"content"`
	MediaBase64 string    `json:"media_base64"`
	MediaType   string    `json:"media_type"`
}

func (h *PostHandler) Create(c *gin.Context) {
	var req createPostRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	view, err := h.posts.Create(c.Request.Context(), services.CreatePostInput{
		AuthorID:    req.UserID,
		Content:     req.Content,
		MediaBase64: req.MediaBase64,
		MediaType:   req.MediaType,
	})
	if err != nil {
		response.RespondFromError(c, err)
		return
	}
	response.RespondCreated(c, view)
}

func (h *PostHandler) Get(c *gin.Context) {
	postID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_post_id", fmt.Errorf("invalid post id"))
		return
	}
	view, err := h.posts.Get(c.Request.Context(), postID)
	if err != nil {
		response.RespondFromError(c, err)
		return
	}
	response.RespondOK(c, view)
}

type likeRequest struct {
	UserID uuid.UUID `json:"user_id" binding:"required"`
}

func (h *PostHandler) Like(c *gin.Context) {
	postID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_post_id", fmt.Errorf("invalid post id"))
		return
	}
	var req likeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	if err := h.posts.Like(c.Request.Context(), req.UserID, postID); err != nil {
		response.RespondFromError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"status": "liked"})
}

package app

import (
	"github.com/gin-gonic/gin"

	"github.com/waveline/waveline-backend/internal/server"
)

func wireRouter(handlerset Handlers) *gin.Engine {
	return server.NewRouter(server.RouterConfig{
		UserHandler: handlerset.User,
		PostHandler: handlerset.Post,
		FeedHandler: handlerset.Feed,
	})
}

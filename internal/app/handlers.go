package app

import (
	"github.com/waveline/waveline-backend/internal/http/handlers"
	"github.com/waveline/waveline-backend/internal/platform/logger"
)

type Handlers struct {
	User *handlers.UserHandler
	Post *handlers.PostHandler
	Feed *handlers.FeedHandler
}

func wireHandlers(log *logger.Logger, clients Clients, serviceset Services) Handlers {
	log.Info("Wiring handlers...")
	return Handlers{
		User: handlers.NewUserHandler(log, serviceset.User),
		Post: handlers.NewPostHandler(log, serviceset.Post),
		Feed: handlers.NewFeedHandler(log, serviceset.User, serviceset.Orchestrator, clients.Publisher()),
	}
}

package app

import (
	"gorm.io/gorm"

	"github.com/waveline/waveline-backend/internal/data/repos"
	"github.com/waveline/waveline-backend/internal/platform/logger"
)

type Repos struct {
	User   repos.UserRepo
	Follow repos.FollowRepo
	Post   repos.PostRepo
	Like   repos.LikeRepo
}

func wireRepos(db *gorm.DB, log *logger.Logger) Repos {
	log.Info("Wiring repos...")
	return Repos{
		User:   repos.NewUserRepo(db, log),
		Follow: repos.NewFollowRepo(db, log),
		Post:   repos.NewPostRepo(db, log),
		Like:   repos.NewLikeRepo(db, log),
	}
}

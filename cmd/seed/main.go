package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/waveline/waveline-backend/internal/app"
	"github.com/waveline/waveline-backend/internal/platform/envutil"
	"github.com/waveline/waveline-backend/internal/services"
)

type fixture struct {
	Users []struct {
		Username    string `yaml:"username"`
		DisplayName string `yaml:"display_name"`
	} `yaml:"users"`
	Follows []struct {
		Follower string `yaml:"follower"`
		Followee string `yaml:"followee"`
	} `yaml:"follows"`
	Posts []struct {
		Author  string `yaml:"author"`
		Content string `yaml:"content"`
	} `yaml:"posts"`
	Likes []struct {
		User      string `yaml:"user"`
		PostIndex int    `yaml:"post_index"`
	} `yaml:"likes"`
}

func main() {
	a, err := app.New()
	if err != nil {
		fmt.Printf("failed to initialize app: %v\n", err)
		os.Exit(1)
	}
	defer a.Close()
	log := a.Log

	path := envutil.Str("SEED_FILE", "deploy/seed.yaml")
	raw, err := os.ReadFile(path)
	if err != nil {
		log.Fatal("read seed file failed", "path", path, "error", err)
	}
	var fx fixture
	if err := yaml.Unmarshal(raw, &fx); err != nil {
		log.Fatal("parse seed file failed", "path", path, "error", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	userIDs := make(map[string]uuid.UUID, len(fx.Users))
	for _, u := range fx.Users {
		created, err := a.Services.User.Register(ctx, u.Username, u.DisplayName)
		if err != nil {
			log.Warn("skipping user", "username", u.Username, "error", err)
			continue
		}
		userIDs[u.Username] = created.ID
		log.Info("seeded user", "username", u.Username, "id", created.ID)
	}

	for _, f := range fx.Follows {
		follower, ok1 := userIDs[f.Follower]
		followee, ok2 := userIDs[f.Followee]
		if !ok1 || !ok2 {
			log.Warn("skipping follow, unknown user", "follower", f.Follower, "followee", f.Followee)
			continue
		}
		if err := a.Services.User.Follow(ctx, follower, followee); err != nil {
			log.Warn("skipping follow", "follower", f.Follower, "followee", f.Followee, "error", err)
		}
	}

	postIDs := make([]uuid.UUID, 0, len(fx.Posts))
	for _, p := range fx.Posts {
		author, ok := userIDs[p.Author]
		if !ok {
			log.Warn("skipping post, unknown author", "author", p.Author)
			continue
		}
		view, err := a.Services.Post.Create(ctx, services.CreatePostInput{
			AuthorID: author,
			Content:  p.Content,
		})
		if err != nil {
			log.Warn("skipping post", "author", p.Author, "error", err)
			continue
		}
		postIDs = append(postIDs, view.PostID)
	}
	log.Info("seeded posts", "count", len(postIDs))

	for _, l := range fx.Likes {
		user, ok := userIDs[l.User]
		if !ok || l.PostIndex < 0 || l.PostIndex >= len(postIDs) {
			log.Warn("skipping like", "user", l.User, "post_index", l.PostIndex)
			continue
		}
		if err := a.Services.Post.Like(ctx, user, postIDs[l.PostIndex]); err != nil {
			log.Warn("skipping like", "user", l.User, "post_index", l.PostIndex, "error", err)
		}
	}

	log.Info("seed complete", "users", len(userIDs), "posts", len(postIDs))
}

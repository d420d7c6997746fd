package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// User is a registered account. InterestVector holds the serialised
// averaged interest embedding; the embedding worker rewrites it as the
// user engages with content, so readers must tolerate it being stale
// or empty.
type User struct {
	ID             uuid.UUID      `gorm:"type:uuid;primaryKey" json:"user_id"`
	Username       string         `gorm:"size:100;uniqueIndex;not null" json:"username"`
	DisplayName    string         `gorm:"size:255" json:"display_name,omitempty"`
	FollowerCount  int            `gorm:"not null;default:0" json:"follower_count"`
	AvgEngagement  float64        `gorm:"not null;default:0" json:"avg_engagement_rate"`
	InterestVector datatypes.JSON `json:"-"`
	CreatedAt      time.Time      `json:"created_at"`
}

// Follow is a directed edge: FollowerID follows FolloweeID.
// The composite primary key enforces pair uniqueness; self-follows are
// rejected at the service layer.
type Follow struct {
	FollowerID uuid.UUID `gorm:"type:uuid;primaryKey" json:"follower_id"`
	FolloweeID uuid.UUID `gorm:"type:uuid;primaryKey;index:idx_follows_followee" json:"followee_id"`
	CreatedAt  time.Time `json:"created_at"`
}

// Post metadata. Media bytes live in object storage under MediaKey; the
// embedding is computed asynchronously and indexed in the vector store,
// so a fresh post has no discovery presence until that completes.
type Post struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"post_id"`
	AuthorID  uuid.UUID `gorm:"type:uuid;not null;index:idx_posts_author" json:"user_id"`
	Content   string    `gorm:"type:text" json:"content"`
	MediaKey  string    `gorm:"size:500" json:"-"`
	MediaType string    `gorm:"size:20" json:"media_type,omitempty"`
	LikeCount int       `gorm:"not null;default:0" json:"like_count"`
	CreatedAt time.Time `gorm:"index:idx_posts_created" json:"created_at"`
}

type Like struct {
	UserID    uuid.UUID `gorm:"type:uuid;primaryKey" json:"user_id"`
	PostID    uuid.UUID `gorm:"type:uuid;primaryKey" json:"post_id"`
	CreatedAt time.Time `json:"created_at"`
}

package models

import "time"

// Post is a content item authored by one user.
type Post struct {
	ID      uint   `gorm:"primaryKey" json:"id"`
	UserID  uint   `gorm:"not null;index:idx_posts_author_created,priority:1" json:"user_id"`
	Content string `gorm:"type:text;not null" json:"content"`
	// CommentIDs is not persisted; filled in oldest-first order on reads.
	CommentIDs []uint `gorm:"-" json:"comment_ids,omitempty"`
	// LikesCount is not persisted; computed at query time
	LikesCount int `gorm:"->;-:migration" json:"likes_count"`
	// CommentsCount is not persisted; computed at query time
	CommentsCount int `gorm:"->;-:migration" json:"comments_count"`
	// Liked indicates whether the requesting user liked this post (computed)
	Liked     bool      `gorm:"->;-:migration" json:"liked"`
	CreatedAt time.Time `gorm:"index:idx_posts_author_created,priority:2" json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName specifies the table name for GORM
func (Post) TableName() string {
	return "posts"
}

// Comment belongs to exactly one post.
type Comment struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	UserID     uint      `gorm:"not null;index" json:"user_id"`
	PostID     uint      `gorm:"not null;index" json:"post_id"`
	Content    string    `gorm:"type:text;not null" json:"content"`
	LikesCount int       `gorm:"->;-:migration" json:"likes_count"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// TableName specifies the table name for GORM
func (Comment) TableName() string {
	return "comments"
}

// Like targets exactly one post or one comment.
type Like struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    uint      `gorm:"not null;uniqueIndex:idx_likes_user_post,priority:1;uniqueIndex:idx_likes_user_comment,priority:1" json:"user_id"`
	PostID    *uint     `gorm:"uniqueIndex:idx_likes_user_post,priority:2" json:"post_id,omitempty"`
	CommentID *uint     `gorm:"uniqueIndex:idx_likes_user_comment,priority:2" json:"comment_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName specifies the table name for GORM
func (Like) TableName() string {
	return "likes"
}

// LikeTarget identifies the post or comment a like points at.
type LikeTarget struct {
	PostID    *uint
	CommentID *uint
}

// Validate enforces that exactly one target is set.
func (t LikeTarget) Validate() error {
	if (t.PostID == nil) == (t.CommentID == nil) {
		return NewValidationError("A like must target exactly one post or comment")
	}
	return nil
}

// LikeToggleResult reports the state after a like toggle.
type LikeToggleResult struct {
	Liked      bool  `json:"liked"`
	LikesCount int64 `json:"likes_count"`
}

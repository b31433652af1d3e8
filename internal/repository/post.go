package repository

import (
	"context"
	"errors"

	"odinbook/internal/models"

	"gorm.io/gorm"
)

// PostRepository defines the interface for post data operations
type PostRepository interface {
	Create(ctx context.Context, post *models.Post) error
	GetByID(ctx context.Context, id uint, viewerID uint) (*models.Post, error)
	UpdateContent(ctx context.Context, id uint, content string) error
	Delete(ctx context.Context, id uint) error
	ListByAuthors(ctx context.Context, authorIDs []uint, viewerID uint) ([]models.Post, error)
}

// postRepository implements PostRepository
type postRepository struct {
	db      *gorm.DB
	retrier Retrier
}

// NewPostRepository creates a new post repository
func NewPostRepository(db *gorm.DB, retrier Retrier) PostRepository {
	return &postRepository{db: db, retrier: retrier}
}

func (r *postRepository) Create(ctx context.Context, post *models.Post) error {
	return internalErr(r.db.WithContext(ctx).Create(post).Error)
}

func (r *postRepository) GetByID(ctx context.Context, id uint, viewerID uint) (*models.Post, error) {
	return withRetry(ctx, r.retrier, "post.get", func() (*models.Post, error) {
		var post models.Post
		err := withPostDetails(r.db.WithContext(ctx), viewerID).First(&post, id).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, models.NewNotFoundError("Post", id)
			}
			return nil, internalErr(err)
		}

		post.CommentIDs = []uint{}
		err = r.db.WithContext(ctx).
			Model(&models.Comment{}).
			Where("post_id = ?", id).
			Order("id ASC").
			Pluck("id", &post.CommentIDs).Error
		if err != nil {
			return nil, internalErr(err)
		}
		return &post, nil
	})
}

func (r *postRepository) UpdateContent(ctx context.Context, id uint, content string) error {
	res := r.db.WithContext(ctx).Model(&models.Post{}).Where("id = ?", id).Update("content", content)
	if res.Error != nil {
		return internalErr(res.Error)
	}
	if res.RowsAffected == 0 {
		return models.NewNotFoundError("Post", id)
	}
	return nil
}

// Delete removes the post with its comments and every like on either.
func (r *postRepository) Delete(ctx context.Context, id uint) error {
	return withRetryErr(ctx, r.retrier, "post.delete", func() error {
		return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			commentIDs := tx.Model(&models.Comment{}).Select("id").Where("post_id = ?", id)
			if err := tx.Where("comment_id IN (?)", commentIDs).Delete(&models.Like{}).Error; err != nil {
				return internalErr(err)
			}
			if err := tx.Where("post_id = ?", id).Delete(&models.Like{}).Error; err != nil {
				return internalErr(err)
			}
			if err := tx.Where("post_id = ?", id).Delete(&models.Comment{}).Error; err != nil {
				return internalErr(err)
			}
			res := tx.Delete(&models.Post{}, id)
			if res.Error != nil {
				return internalErr(res.Error)
			}
			if res.RowsAffected == 0 {
				return models.NewNotFoundError("Post", id)
			}
			return nil
		})
	})
}

func (r *postRepository) ListByAuthors(ctx context.Context, authorIDs []uint, viewerID uint) ([]models.Post, error) {
	posts := []models.Post{}
	if len(authorIDs) == 0 {
		return posts, nil
	}
	return withRetry(ctx, r.retrier, "post.list_by_authors", func() ([]models.Post, error) {
		posts := []models.Post{}
		err := withPostDetails(r.db.WithContext(ctx), viewerID).
			Where("posts.user_id IN ?", authorIDs).
			Order("posts.created_at DESC").
			Order("posts.id DESC").
			Find(&posts).Error
		if err != nil {
			return nil, internalErr(err)
		}
		return posts, nil
	})
}

// withPostDetails adds subqueries to fetch counts and liked status in a single query.
func withPostDetails(db *gorm.DB, viewerID uint) *gorm.DB {
	selectQuery := "posts.*, " +
		"(SELECT COUNT(*) FROM comments WHERE comments.post_id = posts.id) AS comments_count, " +
		"(SELECT COUNT(*) FROM likes WHERE likes.post_id = posts.id) AS likes_count"

	if viewerID != 0 {
		return db.Select(selectQuery+", EXISTS(SELECT 1 FROM likes WHERE likes.post_id = posts.id AND likes.user_id = ?) AS liked", viewerID)
	}
	return db.Select(selectQuery + ", false AS liked")
}

package repository

import (
	"context"
	"errors"

	"odinbook/internal/models"

	"gorm.io/gorm"
)

// CommentRepository defines persistence operations for comments.
type CommentRepository interface {
	Create(ctx context.Context, comment *models.Comment) error
	GetByID(ctx context.Context, id uint) (*models.Comment, error)
	ListByPost(ctx context.Context, postID uint) ([]models.Comment, error)
	Delete(ctx context.Context, id uint) error
}

type commentRepository struct {
	db      *gorm.DB
	retrier Retrier
}

// NewCommentRepository returns a new CommentRepository implementation.
func NewCommentRepository(db *gorm.DB, retrier Retrier) CommentRepository {
	return &commentRepository{db: db, retrier: retrier}
}

// Create stores the comment after checking that its post still exists.
func (r *commentRepository) Create(ctx context.Context, comment *models.Comment) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.Post{}).Where("id = ?", comment.PostID).Count(&count).Error; err != nil {
			return internalErr(err)
		}
		if count == 0 {
			return models.NewNotFoundError("Post", comment.PostID)
		}
		return internalErr(tx.Create(comment).Error)
	})
}

func (r *commentRepository) GetByID(ctx context.Context, id uint) (*models.Comment, error) {
	var comment models.Comment
	if err := withCommentDetails(r.db.WithContext(ctx)).First(&comment, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.NewNotFoundError("Comment", id)
		}
		return nil, internalErr(err)
	}
	return &comment, nil
}

func (r *commentRepository) ListByPost(ctx context.Context, postID uint) ([]models.Comment, error) {
	return withRetry(ctx, r.retrier, "comment.list", func() ([]models.Comment, error) {
		comments := []models.Comment{}
		err := withCommentDetails(r.db.WithContext(ctx)).
			Where("post_id = ?", postID).
			Order("id ASC").
			Find(&comments).Error
		if err != nil {
			return nil, internalErr(err)
		}
		return comments, nil
	})
}

func (r *commentRepository) Delete(ctx context.Context, id uint) error {
	return withRetryErr(ctx, r.retrier, "comment.delete", func() error {
		return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := tx.Where("comment_id = ?", id).Delete(&models.Like{}).Error; err != nil {
				return internalErr(err)
			}
			res := tx.Delete(&models.Comment{}, id)
			if res.Error != nil {
				return internalErr(res.Error)
			}
			if res.RowsAffected == 0 {
				return models.NewNotFoundError("Comment", id)
			}
			return nil
		})
	})
}

func withCommentDetails(db *gorm.DB) *gorm.DB {
	return db.Select("comments.*, (SELECT COUNT(*) FROM likes WHERE likes.comment_id = comments.id) AS likes_count")
}

package repository

import (
	"context"
	"errors"

	"odinbook/internal/models"

	"gorm.io/gorm"
)

// LikeRepository toggles and counts likes on posts and comments.
type LikeRepository interface {
	Toggle(ctx context.Context, userID uint, target models.LikeTarget) (*models.LikeToggleResult, error)
	Count(ctx context.Context, target models.LikeTarget) (int64, error)
	Exists(ctx context.Context, userID uint, target models.LikeTarget) (bool, error)
}

type likeRepository struct {
	db      *gorm.DB
	retrier Retrier
}

// NewLikeRepository returns a new LikeRepository implementation.
func NewLikeRepository(db *gorm.DB, retrier Retrier) LikeRepository {
	return &likeRepository{db: db, retrier: retrier}
}

func targetScope(target models.LikeTarget) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if target.PostID != nil {
			return db.Where("post_id = ?", *target.PostID)
		}
		return db.Where("comment_id = ?", *target.CommentID)
	}
}

// Toggle deletes the caller's like on target if present and creates it
// otherwise. A concurrent toggle losing the insert race is retried, which
// turns it into the delete half of the pair.
func (r *likeRepository) Toggle(ctx context.Context, userID uint, target models.LikeTarget) (*models.LikeToggleResult, error) {
	if err := target.Validate(); err != nil {
		return nil, err
	}
	return withRetry(ctx, r.retrier, "like.toggle", func() (*models.LikeToggleResult, error) {
		result := &models.LikeToggleResult{}
		err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := requireLikeTarget(tx, target); err != nil {
				return err
			}

			var existing models.Like
			err := tx.Scopes(targetScope(target)).Where("user_id = ?", userID).First(&existing).Error
			switch {
			case err == nil:
				if err := tx.Delete(&existing).Error; err != nil {
					return internalErr(err)
				}
			case errors.Is(err, gorm.ErrRecordNotFound):
				like := models.Like{UserID: userID, PostID: target.PostID, CommentID: target.CommentID}
				if err := tx.Create(&like).Error; err != nil {
					if isUniqueViolation(err) {
						return models.NewTransientError(err)
					}
					return internalErr(err)
				}
				result.Liked = true
			default:
				return internalErr(err)
			}

			return internalErr(tx.Model(&models.Like{}).Scopes(targetScope(target)).Count(&result.LikesCount).Error)
		})
		if err != nil {
			return nil, err
		}
		return result, nil
	})
}

func (r *likeRepository) Count(ctx context.Context, target models.LikeTarget) (int64, error) {
	if err := target.Validate(); err != nil {
		return 0, err
	}
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Like{}).Scopes(targetScope(target)).Count(&count).Error
	return count, internalErr(err)
}

func (r *likeRepository) Exists(ctx context.Context, userID uint, target models.LikeTarget) (bool, error) {
	if err := target.Validate(); err != nil {
		return false, err
	}
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Like{}).
		Scopes(targetScope(target)).
		Where("user_id = ?", userID).
		Count(&count).Error
	return count > 0, internalErr(err)
}

func requireLikeTarget(tx *gorm.DB, target models.LikeTarget) error {
	var count int64
	if target.PostID != nil {
		if err := tx.Model(&models.Post{}).Where("id = ?", *target.PostID).Count(&count).Error; err != nil {
			return internalErr(err)
		}
		if count == 0 {
			return models.NewNotFoundError("Post", *target.PostID)
		}
		return nil
	}
	if err := tx.Model(&models.Comment{}).Where("id = ?", *target.CommentID).Count(&count).Error; err != nil {
		return internalErr(err)
	}
	if count == 0 {
		return models.NewNotFoundError("Comment", *target.CommentID)
	}
	return nil
}

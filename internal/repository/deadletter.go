package repository

import (
	"context"
	"errors"
	"time"

	"odinbook/internal/models"

	"gorm.io/gorm"
)

// DeadLetterRepository stores events that the router gave up on.
type DeadLetterRepository interface {
	Save(ctx context.Context, dl *models.DeadLetter) error
	List(ctx context.Context, limit int, includeReplayed bool) ([]models.DeadLetter, error)
	GetByID(ctx context.Context, id uint) (*models.DeadLetter, error)
	MarkReplayed(ctx context.Context, id uint, at time.Time) error
}

type deadLetterRepository struct {
	db *gorm.DB
}

// NewDeadLetterRepository returns the dead_letters backed repository.
func NewDeadLetterRepository(db *gorm.DB) DeadLetterRepository {
	return &deadLetterRepository{db: db}
}

func (r *deadLetterRepository) Save(ctx context.Context, dl *models.DeadLetter) error {
	return internalErr(r.db.WithContext(ctx).Create(dl).Error)
}

func (r *deadLetterRepository) List(ctx context.Context, limit int, includeReplayed bool) ([]models.DeadLetter, error) {
	letters := []models.DeadLetter{}
	q := r.db.WithContext(ctx).Order("id ASC")
	if !includeReplayed {
		q = q.Where("replayed_at IS NULL")
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&letters).Error; err != nil {
		return nil, internalErr(err)
	}
	return letters, nil
}

func (r *deadLetterRepository) GetByID(ctx context.Context, id uint) (*models.DeadLetter, error) {
	var dl models.DeadLetter
	if err := r.db.WithContext(ctx).First(&dl, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.NewNotFoundError("DeadLetter", id)
		}
		return nil, internalErr(err)
	}
	return &dl, nil
}

func (r *deadLetterRepository) MarkReplayed(ctx context.Context, id uint, at time.Time) error {
	res := r.db.WithContext(ctx).Model(&models.DeadLetter{}).Where("id = ?", id).Update("replayed_at", at)
	if res.Error != nil {
		return internalErr(res.Error)
	}
	if res.RowsAffected == 0 {
		return models.NewNotFoundError("DeadLetter", id)
	}
	return nil
}

package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"odinbook/internal/events"
	"odinbook/internal/models"
	"odinbook/internal/observability"
	"odinbook/internal/repository"

	"github.com/go-playground/validator/v10"
)

// ContentLimits bounds post and comment bodies, in characters.
type ContentLimits struct {
	PostMaxLength    int
	CommentMaxLength int
}

// ContentService handles posts, comments and likes and emits the content
// events right after each successful write.
type ContentService struct {
	posts    repository.PostRepository
	comments repository.CommentRepository
	likes    repository.LikeRepository
	events   EventPublisher
	limits   ContentLimits
	validate *validator.Validate
	logger   *slog.Logger
}

// NewContentService returns a new ContentService.
func NewContentService(
	posts repository.PostRepository,
	comments repository.CommentRepository,
	likes repository.LikeRepository,
	publisher EventPublisher,
	limits ContentLimits,
	logger *slog.Logger,
) *ContentService {
	if logger == nil {
		logger = observability.Logger
	}
	if limits.PostMaxLength <= 0 {
		limits.PostMaxLength = 1000
	}
	if limits.CommentMaxLength <= 0 {
		limits.CommentMaxLength = 500
	}
	return &ContentService{
		posts:    posts,
		comments: comments,
		likes:    likes,
		events:   publisher,
		limits:   limits,
		validate: validator.New(),
		logger:   logger,
	}
}

func (s *ContentService) validContent(kind, content string, maxLen int) (string, error) {
	content = strings.TrimSpace(content)
	if err := s.validate.Var(content, fmt.Sprintf("required,max=%d", maxLen)); err != nil {
		if content == "" {
			return "", models.NewValidationError(kind + " content is required")
		}
		return "", models.NewValidationError(fmt.Sprintf("%s content too long (max %d characters)", kind, maxLen))
	}
	return content, nil
}

// CreatePost stores a post by userID and emits PostCreated.
func (s *ContentService) CreatePost(ctx context.Context, userID uint, content string) (*models.Post, error) {
	content, err := s.validContent("Post", content, s.limits.PostMaxLength)
	if err != nil {
		return nil, err
	}

	post := &models.Post{UserID: userID, Content: content}
	if err := s.posts.Create(ctx, post); err != nil {
		return nil, err
	}
	publish(ctx, s.events, s.logger, events.NewPostCreatedEvent(post))
	return post, nil
}

// GetPost returns a post with counts and whether viewerID liked it.
func (s *ContentService) GetPost(ctx context.Context, postID, viewerID uint) (*models.Post, error) {
	return s.posts.GetByID(ctx, postID, viewerID)
}

// PostAuthor returns the author id of postID.
func (s *ContentService) PostAuthor(ctx context.Context, postID uint) (uint, error) {
	post, err := s.posts.GetByID(ctx, postID, 0)
	if err != nil {
		return 0, err
	}
	return post.UserID, nil
}

func (s *ContentService) ownPost(ctx context.Context, userID, postID uint, action string) (*models.Post, error) {
	post, err := s.posts.GetByID(ctx, postID, userID)
	if err != nil {
		return nil, err
	}
	if post.UserID != userID {
		return nil, models.NewUnauthorizedError("You can only " + action + " your own posts")
	}
	return post, nil
}

// UpdatePost replaces the content of one of userID's posts.
func (s *ContentService) UpdatePost(ctx context.Context, userID, postID uint, content string) (*models.Post, error) {
	content, err := s.validContent("Post", content, s.limits.PostMaxLength)
	if err != nil {
		return nil, err
	}
	if _, err := s.ownPost(ctx, userID, postID, "edit"); err != nil {
		return nil, err
	}
	if err := s.posts.UpdateContent(ctx, postID, content); err != nil {
		return nil, err
	}
	publish(ctx, s.events, s.logger, events.NewPostEvent(events.PostUpdated, userID, postID))
	return s.posts.GetByID(ctx, postID, userID)
}

// DeletePost removes one of userID's posts with its comments and likes.
// Notifications pointing at the post are removed by the PostDeleted handler.
func (s *ContentService) DeletePost(ctx context.Context, userID, postID uint) error {
	if _, err := s.ownPost(ctx, userID, postID, "delete"); err != nil {
		return err
	}
	if err := s.posts.Delete(ctx, postID); err != nil {
		return err
	}
	publish(ctx, s.events, s.logger, events.NewPostEvent(events.PostDeleted, userID, postID))
	return nil
}

// ListByAuthors returns the posts of the given authors, newest first.
func (s *ContentService) ListByAuthors(ctx context.Context, authorIDs []uint, viewerID uint) ([]models.Post, error) {
	return s.posts.ListByAuthors(ctx, authorIDs, viewerID)
}

// CreateComment adds a comment by userID to postID and emits CommentCreated.
func (s *ContentService) CreateComment(ctx context.Context, userID, postID uint, content string) (*models.Comment, error) {
	content, err := s.validContent("Comment", content, s.limits.CommentMaxLength)
	if err != nil {
		return nil, err
	}

	comment := &models.Comment{UserID: userID, PostID: postID, Content: content}
	if err := s.comments.Create(ctx, comment); err != nil {
		return nil, err
	}
	publish(ctx, s.events, s.logger, events.NewCommentEvent(events.CommentCreated, userID, postID, comment.ID))
	return comment, nil
}

// ListComments returns the comments of postID, oldest first.
func (s *ContentService) ListComments(ctx context.Context, postID uint) ([]models.Comment, error) {
	if _, err := s.posts.GetByID(ctx, postID, 0); err != nil {
		return nil, err
	}
	return s.comments.ListByPost(ctx, postID)
}

// DeleteComment removes one of userID's comments and its likes.
func (s *ContentService) DeleteComment(ctx context.Context, userID, commentID uint) error {
	comment, err := s.comments.GetByID(ctx, commentID)
	if err != nil {
		return err
	}
	if comment.UserID != userID {
		return models.NewUnauthorizedError("You can only delete your own comments")
	}
	if err := s.comments.Delete(ctx, commentID); err != nil {
		return err
	}
	publish(ctx, s.events, s.logger, events.NewCommentEvent(events.CommentDeleted, userID, comment.PostID, commentID))
	return nil
}

// TogglePostLike likes postID for userID, or removes the like if present.
func (s *ContentService) TogglePostLike(ctx context.Context, userID, postID uint) (*models.LikeToggleResult, error) {
	return s.likes.Toggle(ctx, userID, models.LikeTarget{PostID: &postID})
}

// ToggleCommentLike likes commentID for userID, or removes the like if present.
func (s *ContentService) ToggleCommentLike(ctx context.Context, userID, commentID uint) (*models.LikeToggleResult, error) {
	return s.likes.Toggle(ctx, userID, models.LikeTarget{CommentID: &commentID})
}

// LikeCount returns the number of likes on target.
func (s *ContentService) LikeCount(ctx context.Context, target models.LikeTarget) (int64, error) {
	if err := target.Validate(); err != nil {
		return 0, err
	}
	return s.likes.Count(ctx, target)
}

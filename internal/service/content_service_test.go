package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"odinbook/internal/events"
	"odinbook/internal/models"
	"odinbook/internal/observability"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// postRepoStub is a stub for repository.PostRepository.
type postRepoStub struct {
	createFn        func(context.Context, *models.Post) error
	getByIDFn       func(context.Context, uint, uint) (*models.Post, error)
	updateContentFn func(context.Context, uint, string) error
	deleteFn        func(context.Context, uint) error
	listByAuthorsFn func(context.Context, []uint, uint) ([]models.Post, error)
}

func (s *postRepoStub) Create(ctx context.Context, post *models.Post) error {
	return s.createFn(ctx, post)
}
func (s *postRepoStub) GetByID(ctx context.Context, id, viewerID uint) (*models.Post, error) {
	return s.getByIDFn(ctx, id, viewerID)
}
func (s *postRepoStub) UpdateContent(ctx context.Context, id uint, content string) error {
	return s.updateContentFn(ctx, id, content)
}
func (s *postRepoStub) Delete(ctx context.Context, id uint) error {
	return s.deleteFn(ctx, id)
}
func (s *postRepoStub) ListByAuthors(ctx context.Context, ids []uint, viewerID uint) ([]models.Post, error) {
	return s.listByAuthorsFn(ctx, ids, viewerID)
}

func noopPostRepo() *postRepoStub {
	return &postRepoStub{
		createFn: func(_ context.Context, p *models.Post) error {
			p.ID = 1
			return nil
		},
		getByIDFn: func(_ context.Context, id, _ uint) (*models.Post, error) {
			return &models.Post{ID: id, UserID: 1}, nil
		},
		updateContentFn: func(_ context.Context, _ uint, _ string) error { return nil },
		deleteFn:        func(_ context.Context, _ uint) error { return nil },
		listByAuthorsFn: func(_ context.Context, _ []uint, _ uint) ([]models.Post, error) { return nil, nil },
	}
}

type recordingPublisher struct {
	published []events.Event
	err       error
}

func (p *recordingPublisher) Publish(_ context.Context, e events.Event) error {
	if p.err != nil {
		return p.err
	}
	p.published = append(p.published, e)
	return nil
}

func newStubContentService(posts *postRepoStub, publisher EventPublisher) *ContentService {
	return NewContentService(posts, nil, nil, publisher,
		ContentLimits{PostMaxLength: 10, CommentMaxLength: 5}, observability.DiscardLogger())
}

func TestContentService_CreatePostValidation(t *testing.T) {
	publisher := &recordingPublisher{}
	svc := newStubContentService(noopPostRepo(), publisher)
	ctx := context.Background()

	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{name: "empty", content: "", wantErr: "required"},
		{name: "whitespace", content: "   \n", wantErr: "required"},
		{name: "too long", content: strings.Repeat("a", 11), wantErr: "too long"},
		{name: "multibyte within limit", content: strings.Repeat("é", 10)},
		{name: "trimmed within limit", content: "  0123456789  "},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.CreatePost(ctx, 1, tt.content)
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, models.IsCode(err, models.CodeValidation))
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
	assert.Len(t, publisher.published, 2)
}

func TestContentService_CreatePostEmitsEvent(t *testing.T) {
	created := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	posts := noopPostRepo()
	posts.createFn = func(_ context.Context, p *models.Post) error {
		p.ID = 1
		p.CreatedAt = created
		return nil
	}
	publisher := &recordingPublisher{}
	svc := newStubContentService(posts, publisher)

	post, err := svc.CreatePost(context.Background(), 7, "hi")
	require.NoError(t, err)

	require.Len(t, publisher.published, 1)
	e := publisher.published[0]
	assert.Equal(t, events.PostCreated, e.Type)
	assert.Equal(t, uint(7), e.ActorID)
	assert.Equal(t, post.ID, e.PostID)
	assert.NotEmpty(t, e.ID)
	assert.True(t, created.Equal(e.OccurredAt), "occurs when the post was stored")
}

func TestContentService_CreatePostStorageErrorEmitsNothing(t *testing.T) {
	posts := noopPostRepo()
	posts.createFn = func(context.Context, *models.Post) error {
		return models.NewTransientError(errors.New("locked"))
	}
	publisher := &recordingPublisher{}
	svc := newStubContentService(posts, publisher)

	_, err := svc.CreatePost(context.Background(), 1, "hi")
	assert.True(t, models.IsTransient(err))
	assert.Empty(t, publisher.published)
}

func TestContentService_PublishFailureDoesNotFailWrite(t *testing.T) {
	publisher := &recordingPublisher{err: errors.New("router closed")}
	svc := newStubContentService(noopPostRepo(), publisher)

	_, err := svc.CreatePost(context.Background(), 1, "hi")
	assert.NoError(t, err)
}

func TestContentService_UpdateAndDeleteRequireAuthor(t *testing.T) {
	posts := noopPostRepo()
	var updated, deleted bool
	posts.updateContentFn = func(context.Context, uint, string) error {
		updated = true
		return nil
	}
	posts.deleteFn = func(context.Context, uint) error {
		deleted = true
		return nil
	}
	publisher := &recordingPublisher{}
	svc := newStubContentService(posts, publisher)
	ctx := context.Background()

	_, err := svc.UpdatePost(ctx, 2, 5, "edit")
	assert.True(t, models.IsCode(err, models.CodeUnauthorized))
	err = svc.DeletePost(ctx, 2, 5)
	assert.True(t, models.IsCode(err, models.CodeUnauthorized))
	assert.False(t, updated)
	assert.False(t, deleted)
	assert.Empty(t, publisher.published)

	_, err = svc.UpdatePost(ctx, 1, 5, "edit")
	require.NoError(t, err)
	require.NoError(t, svc.DeletePost(ctx, 1, 5))
	assert.True(t, updated)
	assert.True(t, deleted)
	require.Len(t, publisher.published, 2)
	assert.Equal(t, events.PostUpdated, publisher.published[0].Type)
	assert.Equal(t, events.PostDeleted, publisher.published[1].Type)
	assert.Equal(t, uint(5), publisher.published[1].PostID)
}

func TestContentService_PostAuthor(t *testing.T) {
	posts := noopPostRepo()
	posts.getByIDFn = func(_ context.Context, id, _ uint) (*models.Post, error) {
		if id == 404 {
			return nil, models.NewNotFoundError("Post", id)
		}
		return &models.Post{ID: id, UserID: 9}, nil
	}
	svc := newStubContentService(posts, nil)

	author, err := svc.PostAuthor(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, uint(9), author)

	_, err = svc.PostAuthor(context.Background(), 404)
	assert.True(t, models.IsCode(err, models.CodeNotFound))
}

func TestContentService_CommentsAndLikes(t *testing.T) {
	env := newTestEnv(t, false, withLimits(ContentLimits{PostMaxLength: 100, CommentMaxLength: 8}))
	ctx := context.Background()
	ids := env.createUsers(t, 2)
	a, b := ids[0], ids[1]
	content := env.core.Content

	post, err := content.CreatePost(ctx, a, "post")
	require.NoError(t, err)

	_, err = content.CreateComment(ctx, b, post.ID, "far too long")
	assert.True(t, models.IsCode(err, models.CodeValidation))
	_, err = content.CreateComment(ctx, b, 9999, "orphan")
	assert.True(t, models.IsCode(err, models.CodeNotFound))

	first, err := content.CreateComment(ctx, b, post.ID, "one")
	require.NoError(t, err)
	second, err := content.CreateComment(ctx, a, post.ID, "two")
	require.NoError(t, err)

	list, err := content.ListComments(ctx, post.ID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, first.ID, list[0].ID)
	assert.Equal(t, second.ID, list[1].ID)

	_, err = content.ListComments(ctx, 9999)
	assert.True(t, models.IsCode(err, models.CodeNotFound))

	// Like parity: an even number of toggles leaves no like behind.
	for i := 1; i <= 4; i++ {
		res, err := content.TogglePostLike(ctx, b, post.ID)
		require.NoError(t, err)
		assert.Equal(t, i%2 == 1, res.Liked)
	}
	count, err := content.LikeCount(ctx, models.LikeTarget{PostID: &post.ID})
	require.NoError(t, err)
	assert.Zero(t, count)

	res, err := content.ToggleCommentLike(ctx, a, first.ID)
	require.NoError(t, err)
	assert.True(t, res.Liked)
	assert.Equal(t, int64(1), res.LikesCount)

	_, err = content.LikeCount(ctx, models.LikeTarget{})
	assert.True(t, models.IsCode(err, models.CodeValidation))

	err = content.DeleteComment(ctx, a, first.ID)
	assert.True(t, models.IsCode(err, models.CodeUnauthorized))
	require.NoError(t, content.DeleteComment(ctx, b, first.ID))

	count, err = content.LikeCount(ctx, models.LikeTarget{CommentID: &first.ID})
	require.NoError(t, err)
	assert.Zero(t, count)

	list, err = content.ListComments(ctx, post.ID)
	require.NoError(t, err)
	assert.Len(t, list, 1)
	env.settle(t)
}

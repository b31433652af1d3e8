package repository

import (
	"context"
	"testing"

	"odinbook/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostRepository_CreateGetUpdate(t *testing.T) {
	db := newTestDB(t)
	posts := NewPostRepository(db, testRetrier)
	comments := NewCommentRepository(db, testRetrier)
	likes := NewLikeRepository(db, testRetrier)
	ctx := context.Background()
	users := createUsers(t, db, 2)

	post := &models.Post{UserID: users[0], Content: "hello"}
	require.NoError(t, posts.Create(ctx, post))

	c1 := &models.Comment{UserID: users[1], PostID: post.ID, Content: "first"}
	c2 := &models.Comment{UserID: users[0], PostID: post.ID, Content: "second"}
	require.NoError(t, comments.Create(ctx, c1))
	require.NoError(t, comments.Create(ctx, c2))
	_, err := likes.Toggle(ctx, users[1], models.LikeTarget{PostID: &post.ID})
	require.NoError(t, err)

	got, err := posts.GetByID(ctx, post.ID, users[1])
	require.NoError(t, err)
	assert.Equal(t, "hello", got.Content)
	assert.Equal(t, []uint{c1.ID, c2.ID}, got.CommentIDs)
	assert.Equal(t, 2, got.CommentsCount)
	assert.Equal(t, 1, got.LikesCount)
	assert.True(t, got.Liked)

	got, err = posts.GetByID(ctx, post.ID, users[0])
	require.NoError(t, err)
	assert.False(t, got.Liked)

	require.NoError(t, posts.UpdateContent(ctx, post.ID, "edited"))
	got, err = posts.GetByID(ctx, post.ID, 0)
	require.NoError(t, err)
	assert.Equal(t, "edited", got.Content)

	_, err = posts.GetByID(ctx, 9999, 0)
	assert.True(t, models.IsCode(err, models.CodeNotFound))
	err = comments.Create(ctx, &models.Comment{UserID: users[0], PostID: 9999, Content: "orphan"})
	assert.True(t, models.IsCode(err, models.CodeNotFound))
}

func TestLikeRepository_ToggleParity(t *testing.T) {
	db := newTestDB(t)
	posts := NewPostRepository(db, testRetrier)
	comments := NewCommentRepository(db, testRetrier)
	likes := NewLikeRepository(db, testRetrier)
	ctx := context.Background()
	users := createUsers(t, db, 1)

	post := &models.Post{UserID: users[0], Content: "like me"}
	require.NoError(t, posts.Create(ctx, post))
	comment := &models.Comment{UserID: users[0], PostID: post.ID, Content: "me too"}
	require.NoError(t, comments.Create(ctx, comment))

	for _, target := range []models.LikeTarget{{PostID: &post.ID}, {CommentID: &comment.ID}} {
		for n := 1; n <= 5; n++ {
			res, err := likes.Toggle(ctx, users[0], target)
			require.NoError(t, err)
			assert.Equal(t, n%2 == 1, res.Liked)

			var rows int64
			require.NoError(t, db.Model(&models.Like{}).Scopes(targetScope(target)).Count(&rows).Error)
			assert.LessOrEqual(t, rows, int64(1))
			assert.Equal(t, res.LikesCount, rows)

			exists, err := likes.Exists(ctx, users[0], target)
			require.NoError(t, err)
			assert.Equal(t, n%2 == 1, exists)
		}
	}

	_, err := likes.Toggle(ctx, users[0], models.LikeTarget{})
	assert.True(t, models.IsCode(err, models.CodeValidation))
	_, err = likes.Toggle(ctx, users[0], models.LikeTarget{PostID: &post.ID, CommentID: &comment.ID})
	assert.True(t, models.IsCode(err, models.CodeValidation))
	_, err = likes.Toggle(ctx, users[0], models.LikeTarget{PostID: uintPtr(9999)})
	assert.True(t, models.IsCode(err, models.CodeNotFound))
}

func TestPostRepository_DeleteCascades(t *testing.T) {
	db := newTestDB(t)
	posts := NewPostRepository(db, testRetrier)
	comments := NewCommentRepository(db, testRetrier)
	likes := NewLikeRepository(db, testRetrier)
	ctx := context.Background()
	users := createUsers(t, db, 2)

	post := &models.Post{UserID: users[0], Content: "doomed"}
	require.NoError(t, posts.Create(ctx, post))
	keep := &models.Post{UserID: users[0], Content: "survivor"}
	require.NoError(t, posts.Create(ctx, keep))
	comment := &models.Comment{UserID: users[1], PostID: post.ID, Content: "bye"}
	require.NoError(t, comments.Create(ctx, comment))
	_, err := likes.Toggle(ctx, users[1], models.LikeTarget{PostID: &post.ID})
	require.NoError(t, err)
	_, err = likes.Toggle(ctx, users[0], models.LikeTarget{CommentID: &comment.ID})
	require.NoError(t, err)
	_, err = likes.Toggle(ctx, users[1], models.LikeTarget{PostID: &keep.ID})
	require.NoError(t, err)

	require.NoError(t, posts.Delete(ctx, post.ID))

	var likeRows, commentRows int64
	require.NoError(t, db.Model(&models.Like{}).Count(&likeRows).Error)
	require.NoError(t, db.Model(&models.Comment{}).Count(&commentRows).Error)
	assert.Equal(t, int64(1), likeRows, "only the surviving post's like remains")
	assert.Equal(t, int64(0), commentRows)

	err = posts.Delete(ctx, post.ID)
	assert.True(t, models.IsCode(err, models.CodeNotFound))
}

func TestPostRepository_ListByAuthorsOrdering(t *testing.T) {
	db := newTestDB(t)
	posts := NewPostRepository(db, testRetrier)
	ctx := context.Background()
	users := createUsers(t, db, 3)

	var created []uint
	for _, author := range []uint{users[0], users[1], users[2], users[0]} {
		p := &models.Post{UserID: author, Content: "p"}
		require.NoError(t, posts.Create(ctx, p))
		created = append(created, p.ID)
	}

	got, err := posts.ListByAuthors(ctx, []uint{users[0], users[1]}, 0)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, []uint{created[3], created[1], created[0]}, []uint{got[0].ID, got[1].ID, got[2].ID})

	empty, err := posts.ListByAuthors(ctx, nil, 0)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestCommentRepository_DeleteRemovesLikes(t *testing.T) {
	db := newTestDB(t)
	posts := NewPostRepository(db, testRetrier)
	comments := NewCommentRepository(db, testRetrier)
	likes := NewLikeRepository(db, testRetrier)
	ctx := context.Background()
	users := createUsers(t, db, 1)

	post := &models.Post{UserID: users[0], Content: "post"}
	require.NoError(t, posts.Create(ctx, post))
	comment := &models.Comment{UserID: users[0], PostID: post.ID, Content: "c"}
	require.NoError(t, comments.Create(ctx, comment))
	_, err := likes.Toggle(ctx, users[0], models.LikeTarget{CommentID: &comment.ID})
	require.NoError(t, err)

	got, err := comments.GetByID(ctx, comment.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.LikesCount)

	require.NoError(t, comments.Delete(ctx, comment.ID))
	count, err := likes.Count(ctx, models.LikeTarget{CommentID: &comment.ID})
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)

	list, err := comments.ListByPost(ctx, post.ID)
	require.NoError(t, err)
	assert.Empty(t, list)
}

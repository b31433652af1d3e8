package repository

import (
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"odinbook/internal/database"
	"odinbook/internal/models"
	"odinbook/internal/observability"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

var testRetrier = Retrier{MaxRetries: 2, Initial: time.Millisecond}

var errInjected = errors.New("injected write failure")

func setupMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	gormDB, err := gorm.Open(postgres.New(postgres.Config{Conn: db}), &gorm.Config{})
	require.NoError(t, err)
	return gormDB, mock
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

func createUsers(t *testing.T, db *gorm.DB, n int) []uint {
	t.Helper()
	ids := make([]uint, 0, n)
	for i := 0; i < n; i++ {
		u := models.User{
			Username: fmt.Sprintf("%s_user_%d", t.Name(), i),
			Email:    fmt.Sprintf("%s_%d@example.com", t.Name(), i),
		}
		require.NoError(t, db.Create(&u).Error)
		ids = append(ids, u.ID)
	}
	return ids
}

func newTestRelationshipStore(db *gorm.DB) RelationshipStore {
	return NewRelationshipStore(db, testRetrier, observability.DiscardLogger())
}

// failNthWrite makes the nth create, update or delete on table fail.
func failNthWrite(t *testing.T, db *gorm.DB, table string, n int32) {
	t.Helper()
	var writes int32
	hook := func(tx *gorm.DB) {
		if tx.Statement.Table != table {
			return
		}
		if atomic.AddInt32(&writes, 1) == n {
			_ = tx.AddError(errInjected)
		}
	}
	require.NoError(t, db.Callback().Create().Before("gorm:create").Register("test:fail_create", hook))
	require.NoError(t, db.Callback().Update().Before("gorm:update").Register("test:fail_update", hook))
	require.NoError(t, db.Callback().Delete().Before("gorm:delete").Register("test:fail_delete", hook))
}

func uintPtr(v uint) *uint { return &v }

func createPost(t *testing.T, db *gorm.DB, authorID uint) uint {
	t.Helper()
	post := models.Post{UserID: authorID, Content: "post"}
	require.NoError(t, db.Create(&post).Error)
	return post.ID
}

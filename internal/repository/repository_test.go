package repository

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	apperrors "github.com/flamegen/pkg/errors"
)

func setupTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, Migrate(db))
	return db
}

func TestGormGraphRepository_Save(t *testing.T) {
	db := setupTestDB(t)
	repo := NewGormGraphRepository(db)
	ctx := context.Background()

	record := &FlameGraphRecord{
		UUID:        "test-uuid-1",
		Title:       "CPU Profile",
		Kind:        KindSingle,
		TotalBefore: 1000,
		MaxDepth:    12,
		StorageKey:  "test-uuid-1.svg",
	}
	require.NoError(t, repo.Save(ctx, record))
	assert.NotZero(t, record.ID)
	assert.False(t, record.CreatedAt.IsZero())
}

func TestGormGraphRepository_GetByUUID(t *testing.T) {
	db := setupTestDB(t)
	repo := NewGormGraphRepository(db)
	ctx := context.Background()

	t.Run("GetByUUID_NotFound", func(t *testing.T) {
		record, err := repo.GetByUUID(ctx, "nonexistent")
		assert.Nil(t, record)
		assert.ErrorIs(t, err, ErrNotFound)
		assert.Contains(t, err.Error(), "nonexistent")
	})

	t.Run("GetByUUID_Success", func(t *testing.T) {
		saved := &FlameGraphRecord{
			UUID:        "test-uuid-2",
			Title:       "Before vs After",
			Kind:        KindDiff,
			TotalBefore: 500,
			TotalAfter:  480,
			MaxDepth:    7,
			StorageKey:  "test-uuid-2.svg",
		}
		require.NoError(t, repo.Save(ctx, saved))

		record, err := repo.GetByUUID(ctx, "test-uuid-2")
		require.NoError(t, err)
		assert.Equal(t, saved.ID, record.ID)
		assert.Equal(t, KindDiff, record.Kind)
		assert.Equal(t, int64(480), record.TotalAfter)
	})
}

func TestGormGraphRepository_List(t *testing.T) {
	db := setupTestDB(t)
	repo := NewGormGraphRepository(db)
	ctx := context.Background()

	t.Run("List_Empty", func(t *testing.T) {
		records, err := repo.List(ctx, 10)
		require.NoError(t, err)
		assert.Empty(t, records)
	})

	t.Run("List_NewestFirst", func(t *testing.T) {
		for _, uuid := range []string{"g-1", "g-2", "g-3"} {
			require.NoError(t, repo.Save(ctx, &FlameGraphRecord{
				UUID:       uuid,
				Kind:       KindSingle,
				StorageKey: uuid + ".svg",
			}))
		}

		records, err := repo.List(ctx, 10)
		require.NoError(t, err)
		require.Len(t, records, 3)
		assert.Equal(t, "g-3", records[0].UUID)
		assert.Equal(t, "g-1", records[2].UUID)
	})

	t.Run("List_Limit", func(t *testing.T) {
		records, err := repo.List(ctx, 2)
		require.NoError(t, err)
		assert.Len(t, records, 2)
	})

	t.Run("List_DefaultLimit", func(t *testing.T) {
		records, err := repo.List(ctx, 0)
		require.NoError(t, err)
		assert.Len(t, records, 3)
	})
}

// setupMockDB wires GORM over a sqlmock connection for error-path tests.
func setupMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	db, err := gorm.Open(mysql.New(mysql.Config{
		Conn:                      sqlDB,
		SkipInitializeWithVersion: true,
	}), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	return db, mock
}

func TestGormGraphRepository_DatabaseErrors(t *testing.T) {
	ctx := context.Background()

	t.Run("Save_Error", func(t *testing.T) {
		db, mock := setupMockDB(t)
		repo := NewGormGraphRepository(db)

		mock.ExpectBegin()
		mock.ExpectExec("INSERT INTO `flame_graphs`").
			WillReturnError(errors.New("connection refused"))
		mock.ExpectRollback()

		err := repo.Save(ctx, &FlameGraphRecord{UUID: "g-err", Kind: KindSingle})
		assert.True(t, apperrors.IsDatabaseError(err))
	})

	t.Run("List_Error", func(t *testing.T) {
		db, mock := setupMockDB(t)
		repo := NewGormGraphRepository(db)

		mock.ExpectQuery("SELECT \\* FROM `flame_graphs`").
			WillReturnError(errors.New("connection refused"))

		records, err := repo.List(ctx, 10)
		assert.Nil(t, records)
		assert.True(t, apperrors.IsDatabaseError(err))
	})
}

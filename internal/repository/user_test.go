package repository

import (
	"context"
	"errors"
	"net/http"
	"regexp"
	"testing"

	"tribune/internal/cache"
	"tribune/internal/models"
	"tribune/internal/testutil"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUserRepository_GetByID(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewUserRepository(db)
	ctx := context.Background()

	tests := []struct {
		name          string
		userID        uint
		mockBehavior  func()
		expectedUser  *models.User
		expectedCode  string
		expectedError bool
	}{
		{
			name:   "Success",
			userID: 1,
			mockBehavior: func() {
				rows := sqlmock.NewRows([]string{"id", "username", "email"}).
					AddRow(1, "testuser", "test@example.com")
				mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "users" WHERE "users"."id" = $1 ORDER BY "users"."id" LIMIT $2`)).
					WithArgs(1, 1).
					WillReturnRows(rows)
			},
			expectedUser: &models.User{ID: 1, Username: "testuser", Email: "test@example.com"},
		},
		{
			name:   "Not Found",
			userID: 99,
			mockBehavior: func() {
				mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "users" WHERE "users"."id" = $1 ORDER BY "users"."id" LIMIT $2`)).
					WithArgs(99, 1).
					WillReturnRows(sqlmock.NewRows([]string{"id"}))
			},
			expectedError: true,
			expectedCode:  models.CodeNotFound,
		},
		{
			name:   "Database Error",
			userID: 2,
			mockBehavior: func() {
				mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "users" WHERE "users"."id" = $1`)).
					WithArgs(2, 1).
					WillReturnError(errors.New("connection timeout"))
			},
			expectedError: true,
			expectedCode:  models.CodeInternal,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.mockBehavior()
			user, err := repo.GetByID(ctx, tt.userID)

			if tt.expectedError {
				require.Error(t, err)
				var appErr *models.AppError
				require.ErrorAs(t, err, &appErr)
				assert.Equal(t, tt.expectedCode, appErr.Code)
				assert.Nil(t, user)
			} else if assert.NotNil(t, user) {
				assert.Equal(t, tt.expectedUser.Username, user.Username)
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestUserRepository_GetByIDUsesCache(t *testing.T) {
	mr := miniredis.RunT(t)
	cache.SetClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { cache.SetClient(nil) })

	db, mock := setupMockDB(t)
	repo := NewUserRepository(db)
	ctx := context.Background()

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "users" WHERE "users"."id" = $1`)).
		WithArgs(7, 1).
		WillReturnRows(sqlmock.NewRows([]string{"id", "username"}).AddRow(7, "cached"))

	for i := 0; i < 3; i++ {
		user, err := repo.GetByID(ctx, 7)
		require.NoError(t, err)
		assert.Equal(t, "cached", user.Username)
	}
	assert.NoError(t, mock.ExpectationsWereMet())
	assert.True(t, mr.Exists(cache.UserKey(7)))
}

func TestUserRepository_CreateAndLookup(t *testing.T) {
	db := testutil.NewSQLiteDB(t)
	repo := NewUserRepository(db)
	ctx := context.Background()

	u := &models.User{Username: "ada", Email: "  Ada@Example.com ", Password: "hash"}
	require.NoError(t, repo.Create(ctx, u))
	assert.NotZero(t, u.ID)
	assert.Equal(t, "ada@example.com", u.Email)

	byEmail, err := repo.GetByEmail(ctx, "ADA@example.com")
	require.NoError(t, err)
	require.NotNil(t, byEmail)
	assert.Equal(t, u.ID, byEmail.ID)

	byName, err := repo.GetByUsername(ctx, "ada")
	require.NoError(t, err)
	require.NotNil(t, byName)

	missing, err := repo.GetByEmail(ctx, "nobody@example.com")
	require.NoError(t, err)
	assert.Nil(t, missing)

	err = repo.Create(ctx, &models.User{Username: "ada", Email: "other@example.com", Password: "hash"})
	assert.Equal(t, http.StatusConflict, models.StatusFor(err))
}

func TestUserRepository_SetAdmin(t *testing.T) {
	db := testutil.NewSQLiteDB(t)
	repo := NewUserRepository(db)
	ctx := context.Background()
	u := testutil.CreateUser(t, db, false)

	require.NoError(t, repo.SetAdmin(ctx, u.ID, true))
	got, err := repo.GetByID(ctx, u.ID)
	require.NoError(t, err)
	assert.True(t, got.IsAdmin)

	err = repo.SetAdmin(ctx, 9999, true)
	var appErr *models.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, models.CodeNotFound, appErr.Code)

	users, err := repo.List(ctx, 10, 0)
	require.NoError(t, err)
	assert.Len(t, users, 1)
}

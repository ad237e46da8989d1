package repository

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vimrace/race-server/internal/database"
	"github.com/vimrace/race-server/internal/model"
)

func setupTestDB(t *testing.T) *database.DB {
	t.Helper()

	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	db, err := database.Connect(url)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, db.Migrate(ctx))

	_, err = db.ExecContext(ctx, `TRUNCATE users, races`)
	require.NoError(t, err)
	return db
}

func insertUser(t *testing.T, db *database.DB, username string) string {
	t.Helper()
	id := uuid.NewString()
	_, err := db.ExecContext(context.Background(), `
		INSERT INTO users (id, username) VALUES ($1, $2)
	`, id, username)
	require.NoError(t, err)
	return id
}

func TestUserRepository(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	repo := NewUserRepository(db.DB)
	ctx := context.Background()
	id := insertUser(t, db, "alice")

	t.Run("finds user by username", func(t *testing.T) {
		user, err := repo.FindByUsername(ctx, "alice")
		require.NoError(t, err)
		require.NotNil(t, user)
		assert.Equal(t, id, user.ID)
		assert.Nil(t, user.Email)
	})

	t.Run("trims surrounding whitespace", func(t *testing.T) {
		user, err := repo.FindByUsername(ctx, "  alice ")
		require.NoError(t, err)
		require.NotNil(t, user)
		assert.Equal(t, "alice", user.Username)
	})

	t.Run("returns nil for unknown username", func(t *testing.T) {
		user, err := repo.FindByUsername(ctx, "nobody")
		require.NoError(t, err)
		assert.Nil(t, user)
	})

	t.Run("returns nil for blank username", func(t *testing.T) {
		user, err := repo.FindByUsername(ctx, "   ")
		require.NoError(t, err)
		assert.Nil(t, user)
	})

	t.Run("finds user by id", func(t *testing.T) {
		user, err := repo.FindByID(ctx, id)
		require.NoError(t, err)
		require.NotNil(t, user)
		assert.Equal(t, "alice", user.Username)
	})
}

func TestRaceRepository(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	repo := NewRaceRepository(db.DB)
	ctx := context.Background()

	t.Run("random on empty table returns nil", func(t *testing.T) {
		race, err := repo.FindRandom(ctx)
		require.NoError(t, err)
		assert.Nil(t, race)
	})

	created, err := repo.Create(ctx, model.CreateRaceContentParams{
		StartText: "hello world",
		GoalText:  "hello, world",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.False(t, created.CreatedAt.IsZero())

	t.Run("random returns the only row", func(t *testing.T) {
		race, err := repo.FindRandom(ctx)
		require.NoError(t, err)
		require.NotNil(t, race)
		assert.Equal(t, created.ID, race.ID)
	})

	t.Run("count", func(t *testing.T) {
		count, err := repo.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, count)
	})

	t.Run("rolled back transaction leaves no rows", func(t *testing.T) {
		err := db.WithTx(ctx, func(tx *sqlx.Tx) error {
			if _, err := repo.WithTx(tx).Create(ctx, model.CreateRaceContentParams{StartText: "a", GoalText: "b"}); err != nil {
				return err
			}
			return assert.AnError
		})
		assert.ErrorIs(t, err, assert.AnError)

		count, err := repo.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, count)
	})
}

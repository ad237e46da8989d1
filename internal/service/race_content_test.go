package service

import (
	"context"
	"errors"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/vimrace/race-server/internal/model"
	"github.com/vimrace/race-server/internal/repository"
)

type mockRaceRepo struct {
	mock.Mock
}

func (m *mockRaceRepo) FindRandom(ctx context.Context) (*model.RaceContent, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.RaceContent), args.Error(1)
}

func (m *mockRaceRepo) Create(ctx context.Context, params model.CreateRaceContentParams) (*model.RaceContent, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.RaceContent), args.Error(1)
}

func (m *mockRaceRepo) Count(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

func (m *mockRaceRepo) WithTx(tx *sqlx.Tx) repository.RaceRepository {
	return m
}

func TestRaceContentService_FetchRaceContent(t *testing.T) {
	ctx := context.Background()

	t.Run("returns a stored race", func(t *testing.T) {
		repo := new(mockRaceRepo)
		stored := &model.RaceContent{ID: "r1", StartText: "a", GoalText: "b"}
		repo.On("FindRandom", mock.Anything).Return(stored, nil)

		race, err := NewRaceContentService(repo, nil).FetchRaceContent(ctx)

		require.NoError(t, err)
		assert.Equal(t, stored, race)
		repo.AssertExpectations(t)
	})

	t.Run("falls back to builtin pool on empty table", func(t *testing.T) {
		repo := new(mockRaceRepo)
		repo.On("FindRandom", mock.Anything).Return(nil, nil)

		race, err := NewRaceContentService(repo, nil).FetchRaceContent(ctx)

		require.NoError(t, err)
		assert.Contains(t, builtinRaces, model.CreateRaceContentParams{StartText: race.StartText, GoalText: race.GoalText})
	})

	t.Run("falls back to builtin pool on database error", func(t *testing.T) {
		repo := new(mockRaceRepo)
		repo.On("FindRandom", mock.Anything).Return(nil, errors.New("connection refused"))

		race, err := NewRaceContentService(repo, nil).FetchRaceContent(ctx)

		require.NoError(t, err)
		assert.NotEmpty(t, race.GoalText)
	})

	t.Run("without a repository", func(t *testing.T) {
		race, err := NewRaceContentService(nil, nil).FetchRaceContent(ctx)
		require.NoError(t, err)
		assert.NotEqual(t, race.StartText, race.GoalText)
	})

	t.Run("cancelled context", func(t *testing.T) {
		cancelled, cancel := context.WithCancel(ctx)
		cancel()

		_, err := NewRaceContentService(nil, nil).FetchRaceContent(cancelled)
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestBuiltinRaces(t *testing.T) {
	for _, race := range builtinRaces {
		assert.NotEmpty(t, race.StartText)
		assert.NotEmpty(t, race.GoalText)
		assert.NotEqual(t, race.StartText, race.GoalText)
	}
}

func TestRaceContentService_SeedDefaultsWithoutDatabase(t *testing.T) {
	inserted, err := NewRaceContentService(new(mockRaceRepo), nil).SeedDefaults(context.Background())
	require.NoError(t, err)
	assert.Zero(t, inserted)
}

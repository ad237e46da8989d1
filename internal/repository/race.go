package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/vimrace/race-server/internal/model"
)

// RaceRepository stores the pool of race texts.
type RaceRepository interface {
	FindRandom(ctx context.Context) (*model.RaceContent, error)
	Create(ctx context.Context, params model.CreateRaceContentParams) (*model.RaceContent, error)
	Count(ctx context.Context) (int, error)
	// WithTx returns a new repository that uses the given transaction
	WithTx(tx *sqlx.Tx) RaceRepository
}

type raceRepo struct {
	db sqlxDB
}

func NewRaceRepository(db *sqlx.DB) RaceRepository {
	return &raceRepo{db: db}
}

func (r *raceRepo) WithTx(tx *sqlx.Tx) RaceRepository {
	return &raceRepo{db: tx}
}

func (r *raceRepo) FindRandom(ctx context.Context) (*model.RaceContent, error) {
	var race model.RaceContent
	err := r.db.GetContext(ctx, &race, `
		SELECT * FROM races ORDER BY random() LIMIT 1
	`)
	return HandleNotFound(&race, err)
}

func (r *raceRepo) Create(ctx context.Context, params model.CreateRaceContentParams) (*model.RaceContent, error) {
	var race model.RaceContent
	err := r.db.GetContext(ctx, &race, `
		INSERT INTO races (id, start_text, goal_text)
		VALUES ($1, $2, $3)
		RETURNING *
	`, uuid.NewString(), params.StartText, params.GoalText)
	if err != nil {
		return nil, err
	}
	return &race, nil
}

func (r *raceRepo) Count(ctx context.Context) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM races`)
	return count, err
}

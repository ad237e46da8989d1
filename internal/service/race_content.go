package service

import (
	"context"
	"fmt"
	"math/rand/v2"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"

	"github.com/vimrace/race-server/internal/database"
	"github.com/vimrace/race-server/internal/model"
	"github.com/vimrace/race-server/internal/repository"
)

// RaceContentSource supplies the start and goal texts for a new session.
type RaceContentSource interface {
	FetchRaceContent(ctx context.Context) (*model.RaceContent, error)
}

// builtinRaces is served when the races table is empty or unreachable, and
// is what SeedDefaults inserts.
var builtinRaces = []model.CreateRaceContentParams{
	{
		StartText: "func add(a int, b int) int {\n\treturn a - b\n}",
		GoalText:  "func add(a, b int) int {\n\treturn a + b\n}",
	},
	{
		StartText: "The quick brown fox jumps over the lazy dog.",
		GoalText:  "The quick red fox leaps over the sleeping dog.",
	},
	{
		StartText: "for i := 0; i < 10; i++ {\n\tfmt.Println(i)\n}",
		GoalText:  "for i := range 10 {\n\tfmt.Println(i)\n}",
	},
	{
		StartText: "apples\nbananas\ncherries\ndates",
		GoalText:  "dates\ncherries\nbananas\napples",
	},
	{
		StartText: "if err != nil {\n\tpanic(err)\n}",
		GoalText:  "if err != nil {\n\treturn fmt.Errorf(\"load config: %w\", err)\n}",
	},
	{
		StartText: "SELECT * FROM users",
		GoalText:  "SELECT id, username FROM users WHERE id = $1",
	},
}

type RaceContentService struct {
	raceRepo repository.RaceRepository
	db       *database.DB
}

// NewRaceContentService returns a content source backed by raceRepo. Both
// arguments may be nil, in which case only the builtin pool is served.
func NewRaceContentService(raceRepo repository.RaceRepository, db *database.DB) *RaceContentService {
	return &RaceContentService{
		raceRepo: raceRepo,
		db:       db,
	}
}

func (s *RaceContentService) FetchRaceContent(ctx context.Context) (*model.RaceContent, error) {
	if s.raceRepo != nil {
		race, err := s.raceRepo.FindRandom(ctx)
		if err != nil {
			log.Warn().Err(err).Msg("failed to fetch race content, using builtin pool")
		} else if race != nil {
			return race, nil
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("fetch race content: %w", err)
	}

	pick := builtinRaces[rand.IntN(len(builtinRaces))]
	return &model.RaceContent{
		StartText: pick.StartText,
		GoalText:  pick.GoalText,
	}, nil
}

// SeedDefaults inserts the builtin pool when the races table is empty. It
// returns the number of rows inserted.
func (s *RaceContentService) SeedDefaults(ctx context.Context) (int, error) {
	if s.db == nil || s.raceRepo == nil {
		return 0, nil
	}

	inserted := 0
	err := s.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		repo := s.raceRepo.WithTx(tx)

		count, err := repo.Count(ctx)
		if err != nil {
			return fmt.Errorf("count races: %w", err)
		}
		if count > 0 {
			return nil
		}

		for _, params := range builtinRaces {
			if _, err := repo.Create(ctx, params); err != nil {
				return fmt.Errorf("create race: %w", err)
			}
			inserted++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	if inserted > 0 {
		log.Info().Int("count", inserted).Msg("seeded race content")
	}
	return inserted, nil
}

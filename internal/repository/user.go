package repository

import (
	"context"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/vimrace/race-server/internal/model"
)

// UserRepository is the read side of the user directory.
type UserRepository interface {
	FindByID(ctx context.Context, id string) (*model.User, error)
	FindByUsername(ctx context.Context, username string) (*model.User, error)
}

type userRepo struct {
	db sqlxDB
}

func NewUserRepository(db *sqlx.DB) UserRepository {
	return &userRepo{db: db}
}

func (r *userRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	var user model.User
	err := r.db.GetContext(ctx, &user, `
		SELECT * FROM users WHERE id = $1
	`, id)
	return HandleNotFound(&user, err)
}

// FindByUsername matches the exact username after trimming surrounding
// whitespace. It returns nil, nil when no user has that name.
func (r *userRepo) FindByUsername(ctx context.Context, username string) (*model.User, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, nil
	}

	var user model.User
	err := r.db.GetContext(ctx, &user, `
		SELECT * FROM users WHERE username = $1
	`, username)
	return HandleNotFound(&user, err)
}

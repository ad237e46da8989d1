package model

import "time"

// RaceContent is the text pair a race is played on: players start from
// StartText and must edit it into GoalText.
type RaceContent struct {
	ID        string    `db:"id" json:"id"`
	StartText string    `db:"start_text" json:"startText"`
	GoalText  string    `db:"goal_text" json:"goalText"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}

type CreateRaceContentParams struct {
	StartText string
	GoalText  string
}

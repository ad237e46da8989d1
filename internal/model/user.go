package model

import "time"

// User is a directory row. Accounts are owned by the directory; the race
// server only reads them.
type User struct {
	ID                string     `db:"id" json:"id"`
	Username          string     `db:"username" json:"username"`
	Email             *string    `db:"email" json:"-"`
	ProfilePictureURL *string    `db:"profile_picture_url" json:"profilePictureUrl,omitempty"`
	VimrcText         *string    `db:"vimrc_text" json:"-"`
	LastSignInTime    *time.Time `db:"last_sign_in_time" json:"lastSignInTime,omitempty"`
}

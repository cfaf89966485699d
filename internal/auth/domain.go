package auth

import (
	"errors"
	"time"
)

// ErrUserNotFound is returned when no account matches the email.
var ErrUserNotFound = errors.New("auth: user not found")

// User represents an investigator account.
type User struct {
	ID           int64
	Email        string
	PasswordHash string
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/falco-investigation/falco/internal/auth"
)

// UserCreator persists a new account.
type UserCreator interface {
	CreateUser(ctx context.Context, email, passwordHash string) (int64, error)
}

// NewUser is the input of the create-user command.
type NewUser struct {
	Email    string `validate:"required,email"`
	Password string `validate:"required,min=8"`
}

var userValidator = validator.New()

// CreateUser validates the credentials, hashes the password and stores the account.
func CreateUser(ctx context.Context, store UserCreator, in NewUser) (int64, error) {
	if store == nil {
		return 0, errors.New("create user: store not configured")
	}
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	if err := userValidator.Struct(in); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return 0, fmt.Errorf("create user: invalid %s (%s)", strings.ToLower(verrs[0].Field()), verrs[0].Tag())
		}
		return 0, err
	}
	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return 0, err
	}
	return store.CreateUser(ctx, in.Email, hash)
}

// internal/database/users.go
package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jason-s-yu/neocascade/internal/auth"
	"github.com/jason-s-yu/neocascade/internal/models"
)

// ErrUserNotFound is returned when no user matches a lookup.
var ErrUserNotFound = errors.New("user not found")

// CreateUser hashes the user's password and inserts the row. Ephemeral users may have no password.
func CreateUser(ctx context.Context, user *models.User) error {
	db, err := pool()
	if err != nil {
		return err
	}
	if user.ID == uuid.Nil {
		id, err := uuid.NewRandom()
		if err != nil {
			return fmt.Errorf("failed to generate user id: %w", err)
		}
		user.ID = id
	}

	var email, password *string
	if user.Email != "" {
		email = &user.Email
	}
	if user.Password != "" {
		hash, err := auth.HashPassword(user.Password)
		if err != nil {
			return fmt.Errorf("failed to hash password: %w", err)
		}
		user.Password = hash
		password = &user.Password
	}

	q := `INSERT INTO users (id, email, password, username, avatar, is_ephemeral)
	      VALUES ($1, $2, $3, $4, $5, $6)`
	err = pgx.BeginTxFunc(ctx, db, pgx.TxOptions{}, func(tx pgx.Tx) error {
		_, execErr := tx.Exec(ctx, q, user.ID, email, password, user.Username, user.Avatar, user.IsEphemeral)
		return execErr
	})
	if err != nil {
		return fmt.Errorf("failed to insert user: %w", err)
	}
	return nil
}

const userColumns = `id, COALESCE(email, ''), COALESCE(password, ''), username, avatar, is_ephemeral`

func scanUser(row pgx.Row) (*models.User, error) {
	var u models.User
	err := row.Scan(&u.ID, &u.Email, &u.Password, &u.Username, &u.Avatar, &u.IsEphemeral)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	db, err := pool()
	if err != nil {
		return nil, err
	}
	return scanUser(db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email=$1`, email))
}

func GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	db, err := pool()
	if err != nil {
		return nil, err
	}
	return scanUser(db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id=$1`, id))
}

// AuthenticateUser checks the credentials and returns the user. Any mismatch is auth.ErrAuthFailure.
func AuthenticateUser(ctx context.Context, email, password string) (*models.User, error) {
	user, err := GetUserByEmail(ctx, email)
	if errors.Is(err, ErrUserNotFound) {
		return nil, fmt.Errorf("%w: invalid credentials", auth.ErrAuthFailure)
	}
	if err != nil {
		return nil, err
	}
	if user.Password == "" {
		return nil, fmt.Errorf("%w: invalid credentials", auth.ErrAuthFailure)
	}

	match, err := auth.VerifyPassword(password, user.Password)
	if err != nil || !match {
		return nil, fmt.Errorf("%w: invalid credentials", auth.ErrAuthFailure)
	}
	return user, nil
}

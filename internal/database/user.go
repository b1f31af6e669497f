// internal/database/user.go
package database

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/typemasterhq/typemaster/internal/auth"
	"github.com/typemasterhq/typemaster/internal/models"
)

func CreateUser(ctx context.Context, user *models.User) error {
	if user.ID == uuid.Nil {
		id, err := uuid.NewRandom()
		if err != nil {
			return fmt.Errorf("failed to generate user id: %w", err)
		}
		user.ID = id
	}

	hash, err := auth.CreateHash(user.Password)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	user.Password = hash

	q := `INSERT INTO users (id, email, password, username) VALUES ($1, $2, $3, $4)`
	err = pgx.BeginTxFunc(ctx, DB, pgx.TxOptions{}, func(tx pgx.Tx) error {
		_, execErr := tx.Exec(ctx, q, user.ID, user.Email, user.Password, user.Username)
		return execErr
	})
	if err != nil {
		return fmt.Errorf("failed to insert user: %w", err)
	}
	return nil
}

func GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var u models.User
	q := `SELECT id, email, password, username FROM users WHERE email=$1`
	err := DB.QueryRow(ctx, q, email).Scan(&u.ID, &u.Email, &u.Password, &u.Username)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var u models.User
	q := `SELECT id, email, password, username FROM users WHERE id=$1`
	err := DB.QueryRow(ctx, q, id).Scan(&u.ID, &u.Email, &u.Password, &u.Username)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// AuthenticateUser verifies credentials and returns a fresh JWT on success.
func AuthenticateUser(ctx context.Context, email, password string) (string, error) {
	user, err := GetUserByEmail(ctx, email)
	if err != nil {
		return "", fmt.Errorf("failed to find user: %w", err)
	}

	match, err := auth.ComparePasswordAndHash(password, user.Password)
	if err != nil {
		return "", fmt.Errorf("failed to verify password: %w", err)
	}
	if !match {
		return "", fmt.Errorf("invalid credentials")
	}

	token, err := auth.CreateJWT(user.ID.String())
	if err != nil {
		return "", fmt.Errorf("failed to create token: %w", err)
	}
	return token, nil
}

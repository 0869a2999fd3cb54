// Package users reads the user records owned by the account service.
package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/joao-fontenele/printhub/internal/apperror"
	"github.com/joao-fontenele/printhub/internal/database"
	"github.com/joao-fontenele/printhub/internal/domain"
)

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// GetUser joins the transaction on ctx when there is one.
func (r *Repository) GetUser(ctx context.Context, id string) (*domain.User, error) {
	var (
		user  domain.User
		email sql.NullString
		phone sql.NullString
	)
	err := database.Conn(ctx, r.db).QueryRowContext(ctx, `
		SELECT id, first_name, last_name, email, phone_number, role
		FROM users
		WHERE id = $1
	`, id).Scan(&user.ID, &user.FirstName, &user.LastName, &email, &phone, &user.Role)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("user not found")
		}
		return nil, fmt.Errorf("get user %s: %w", id, err)
	}
	user.Email = email.String
	user.PhoneNumber = phone.String
	return &user, nil
}

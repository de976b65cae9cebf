package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"

	"trailwatch.org/internal/auth"
)

// User is an account able to log in and report sightings.
type User struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Phone     string    `json:"phone,omitempty"`
	IsAdmin   bool      `json:"is_admin"`
	CreatedAt time.Time `json:"created_at"`
}

// CreateUser inserts u with an already hashed password. A taken email
// yields ErrConflict.
func (s *Store) CreateUser(ctx context.Context, u User, passwordHash string) error {
	_, err := s.exec(ctx, `
		insert into users(id, name, email, phone, password_hash, is_admin, created_at)
		values (?, ?, ?, ?, ?, ?, ?)`,
		u.ID, u.Name, strings.ToLower(strings.TrimSpace(u.Email)), nullString(u.Phone),
		passwordHash, u.IsAdmin, ts(u.CreatedAt),
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("user %s: %w", u.Email, ErrConflict)
	}
	return err
}

// FindCredentials implements auth.CredentialStore.
func (s *Store) FindCredentials(ctx context.Context, email string) (auth.Credentials, error) {
	var c auth.Credentials
	err := s.queryRow(ctx, `select id, password_hash, is_admin from users where email = ?`,
		strings.ToLower(strings.TrimSpace(email))).Scan(&c.UserID, &c.PasswordHash, &c.IsAdmin)
	if errors.Is(err, sql.ErrNoRows) {
		return auth.Credentials{}, auth.ErrInvalidCredentials
	}
	if err != nil {
		return auth.Credentials{}, err
	}
	return c, nil
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == 1062
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

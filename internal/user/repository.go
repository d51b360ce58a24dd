package user

import (
	"context"
	"errors"
	"fmt"

	"github.com/gofrs/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrNotFound    = errors.New("user not found")
	ErrEmailExists = errors.New("user with this email already exists")
	ErrPhoneExists = errors.New("user with this phone number already exists")
)

type Repository interface {
	Create(ctx context.Context, user *User) (uuid.UUID, error)
	GetByID(ctx context.Context, id uuid.UUID) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
}

type repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

func (r *repository) Create(ctx context.Context, user *User) (uuid.UUID, error) {
	id, err := uuid.NewV4()
	if err != nil {
		return uuid.Nil, fmt.Errorf("repository: failed to generate user ID: %w", err)
	}
	if user.Role == "" {
		user.Role = RoleUser
	}

	query := `
		INSERT INTO users (id, fullname, email, phone_number, password_hash, role)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at
	`
	err = r.db.QueryRow(ctx, query, id, user.Fullname, user.Email, user.PhoneNumber, user.PasswordHash, user.Role).
		Scan(&user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			switch pgErr.ConstraintName {
			case "users_email_key":
				return uuid.Nil, ErrEmailExists
			case "users_phone_number_key":
				return uuid.Nil, ErrPhoneExists
			}
		}
		return uuid.Nil, fmt.Errorf("repository: failed to insert user: %w", err)
	}

	return id, nil
}

const selectUser = `
	SELECT id, fullname, email, phone_number, password_hash, role, created_at, updated_at
	FROM users
`

func (r *repository) get(ctx context.Context, where string, arg any) (*User, error) {
	var u User
	err := r.db.QueryRow(ctx, selectUser+where, arg).Scan(
		&u.ID, &u.Fullname, &u.Email, &u.PhoneNumber, &u.PasswordHash, &u.Role, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("repository: failed to select user: %w", err)
	}
	return &u, nil
}

func (r *repository) GetByID(ctx context.Context, id uuid.UUID) (*User, error) {
	return r.get(ctx, "WHERE id = $1", id)
}

func (r *repository) GetByEmail(ctx context.Context, email string) (*User, error) {
	return r.get(ctx, "WHERE email = $1", email)
}

package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	pkgerrors "artspire/pkg/errors"
	"artspire/pkg/metrics"
)

const uniqueViolation = "23505"

type Repository interface {
	Create(ctx context.Context, user *User) error
	GetByID(ctx context.Context, id int) (*User, error)
	GetByUsername(ctx context.Context, username string) (*User, error)
	// ListByIDs returns the existing users among ids ordered by id.
	ListByIDs(ctx context.Context, ids []int) ([]User, error)
	UpdateProfileImage(ctx context.Context, id int, blobName string) error
}

type PostgresRepository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) Repository {
	return &PostgresRepository{db: db}
}

const userColumns = `id, username, email, password_hash, profile_image, is_active, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanUser(row rowScanner) (*User, error) {
	var (
		user         User
		profileImage sql.NullString
	)
	if err := row.Scan(
		&user.ID, &user.Username, &user.Email, &user.PasswordHash,
		&profileImage, &user.IsActive, &user.CreatedAt, &user.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if profileImage.Valid {
		user.ProfileImage = &profileImage.String
	}
	return &user, nil
}

func observe(op string, start time.Time, err error) {
	metrics.ObserveDatabaseQuery("auth-service", "postgres", op, err, time.Since(start))
}

func (r *PostgresRepository) Create(ctx context.Context, user *User) (err error) {
	defer func(start time.Time) { observe("create_user", start, err) }(time.Now())

	query := `
		INSERT INTO users (username, email, password_hash, is_active)
		VALUES ($1, $2, $3, TRUE)
		RETURNING id, created_at, updated_at
	`

	err = r.db.QueryRowContext(ctx, query, user.Username, user.Email, user.PasswordHash).
		Scan(&user.ID, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			field := "username"
			if pqErr.Constraint == "users_email_key" {
				field = "email"
			}
			return pkgerrors.ErrConflict.WithCause(err).WithDetail("message", fmt.Sprintf("%s already exists", field))
		}
		return fmt.Errorf("failed to create user: %w", err)
	}
	user.IsActive = true
	return nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id int) (user *User, err error) {
	defer func(start time.Time) { observe("get_user", start, err) }(time.Now())

	user, err = scanUser(r.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, pkgerrors.ErrNotFound.WithCause(err).WithDetail("message", fmt.Sprintf("user %d not found", id))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

func (r *PostgresRepository) GetByUsername(ctx context.Context, username string) (user *User, err error) {
	defer func(start time.Time) { observe("get_user_by_username", start, err) }(time.Now())

	user, err = scanUser(r.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE username = $1`, username))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, pkgerrors.ErrNotFound.WithCause(err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

func (r *PostgresRepository) ListByIDs(ctx context.Context, ids []int) (users []User, err error) {
	defer func(start time.Time) { observe("list_users", start, err) }(time.Now())

	if len(ids) == 0 {
		return []User{}, nil
	}

	ids64 := make([]int64, len(ids))
	for i, id := range ids {
		ids64[i] = int64(id)
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = ANY($1) ORDER BY id`,
		pq.Array(ids64),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	users = make([]User, 0, len(ids))
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, *user)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return users, nil
}

func (r *PostgresRepository) UpdateProfileImage(ctx context.Context, id int, blobName string) (err error) {
	defer func(start time.Time) { observe("update_profile_image", start, err) }(time.Now())

	res, err := r.db.ExecContext(ctx,
		`UPDATE users SET profile_image = $1, updated_at = NOW() WHERE id = $2`,
		blobName, id,
	)
	if err != nil {
		return fmt.Errorf("failed to update profile image: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return pkgerrors.ErrNotFound.WithDetail("message", fmt.Sprintf("user %d not found", id))
	}
	return nil
}

package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/freshcart-io/freshcart/internal/domain/user"
)

const (
	getUsersByIDSQL = `SELECT id, name, email, role FROM users WHERE id = ANY($1)`

	upsertUserSQL = `INSERT INTO users (id, name, email, role)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name, email = EXCLUDED.email, role = EXCLUDED.role`
)

var _ user.Repository = (*UserRepository)(nil)

// UserRepository implements user.Repository backed by PostgreSQL.
type UserRepository struct {
	pool *pgxpool.Pool
}

// NewUserRepository returns a UserRepository that uses the given pool.
func NewUserRepository(pool *pgxpool.Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

// GetByIDs returns users matching any of the given IDs.
func (r *UserRepository) GetByIDs(ctx context.Context, ids []string) ([]user.User, error) {
	rows, err := r.pool.Query(ctx, getUsersByIDSQL, ids)
	if err != nil {
		return nil, fmt.Errorf("getting users by ids: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (user.User, error) {
		var (
			u    user.User
			role string
		)
		err := row.Scan(&u.ID, &u.Name, &u.Email, &role)
		u.Role = user.Role(role)
		return u, err
	})
}

// Upsert inserts or replaces a user record.
func (r *UserRepository) Upsert(ctx context.Context, u *user.User) error {
	_, err := r.pool.Exec(ctx, upsertUserSQL, u.ID, u.Name, u.Email, string(u.Role))
	if err != nil {
		return fmt.Errorf("upserting user %q: %w", u.ID, err)
	}
	return nil
}

package user

import (
	"context"

	"github.com/go-faster/errors"
)

// ErrNotFound indicates the requested user does not exist.
var ErrNotFound = errors.New("user not found")

// Role classifies a user account.
type Role string

const (
	RoleCustomer Role = "customer"
	RoleDriver   Role = "driver"
	RoleAdmin    Role = "admin"
)

// User is a purchaser, delivery driver, or staff account. Orders reference
// users both as purchaser and as assigned driver.
type User struct {
	ID    string
	Name  string
	Email string
	Role  Role
}

// Repository defines persistence operations for users.
type Repository interface {
	GetByIDs(ctx context.Context, ids []string) ([]User, error)
	Upsert(ctx context.Context, u *User) error
}

package users

import (
	"time"

	"github.com/ledgergate/ledgergate/internal/authz"
)

// User represents a portal account, internal staff or external contact.
type User struct {
	ID           int64      `json:"id"`
	Email        string     `json:"email"`
	Name         string     `json:"name"`
	Role         authz.Role `json:"role"`
	CompanyIDs   []int64    `json:"company_ids"`
	IsActive     bool       `json:"is_active"`
	PasswordHash string     `json:"-"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// Principal converts the stored account into the request identity shape.
func (u User) Principal() authz.Principal {
	return authz.Principal{
		UserID:     u.ID,
		Role:       u.Role,
		CompanyIDs: append([]int64(nil), u.CompanyIDs...),
	}
}

// CreateInput carries the fields accepted when creating a user.
type CreateInput struct {
	Email      string
	Name       string
	Password   string
	Role       authz.Role
	CompanyIDs []int64
}

// UpdateInput carries the mutable profile fields.
type UpdateInput struct {
	Name  string
	Email string
}

// ListQuery restricts and pages a user listing.
type ListQuery struct {
	Search  string
	Page    int
	PerPage int
}

package companies

import (
	"time"

	"github.com/ledgergate/ledgergate/internal/authz"
)

// Company represents a tenant company in the billing hierarchy.
type Company struct {
	ID            int64             `json:"id"`
	Name          string            `json:"name"`
	Kind          authz.CompanyKind `json:"kind"`
	ParentID      int64             `json:"parent_id,omitempty"`
	Reference     string            `json:"reference"`
	NotifyByEmail bool              `json:"notify_by_email"`
	Active        bool              `json:"active"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
}

// Node converts the company into the hierarchy node shape the access
// engine consumes.
func (c Company) Node() authz.Company {
	return authz.Company{
		ID:       c.ID,
		Name:     c.Name,
		Kind:     c.Kind,
		ParentID: c.ParentID,
		Active:   c.Active,
	}
}

// CreateInput carries the fields accepted when creating a company.
type CreateInput struct {
	Name          string
	Kind          authz.CompanyKind
	ParentID      int64
	Reference     string
	NotifyByEmail bool
}

// UpdateInput carries the fields accepted when updating a company.
// ParentID may change, which re-parents the subtree.
type UpdateInput struct {
	Name          string
	ParentID      int64
	Reference     string
	NotifyByEmail bool
}

// ListQuery restricts and pages a company listing.
type ListQuery struct {
	Search          string
	IncludeInactive bool
	Page            int
	PerPage         int
}

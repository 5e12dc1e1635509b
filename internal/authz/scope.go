package authz

import (
	"context"
	"fmt"
	"sort"
)

// Principal is the authenticated actor attached to a request: the role, the
// user id, and the companies the user is directly assigned to. It is
// reconstructed per request from the session and never persisted here.
type Principal struct {
	UserID     int64
	Role       Role
	CompanyIDs []int64
}

// CompanySet is the computed visibility of a principal: either the
// unrestricted sentinel or an explicit, deduplicated set of company ids.
// The zero value is the empty explicit set, which matches nothing.
type CompanySet struct {
	unrestricted bool
	ids          map[int64]struct{}
}

// UnrestrictedSet returns the sentinel granting visibility of every company.
func UnrestrictedSet() CompanySet {
	return CompanySet{unrestricted: true}
}

// ExplicitSet returns a set containing exactly the given ids.
func ExplicitSet(ids ...int64) CompanySet {
	set := CompanySet{ids: make(map[int64]struct{}, len(ids))}
	for _, id := range ids {
		set.ids[id] = struct{}{}
	}
	return set
}

// IsUnrestricted reports whether the set is the unrestricted sentinel.
func (s CompanySet) IsUnrestricted() bool {
	return s.unrestricted
}

// Contains reports whether id is visible through the set.
func (s CompanySet) Contains(id int64) bool {
	if s.unrestricted {
		return true
	}
	_, ok := s.ids[id]
	return ok
}

// Len returns the number of explicit ids; zero for the unrestricted sentinel.
func (s CompanySet) Len() int {
	return len(s.ids)
}

// IDs returns the explicit ids in ascending order, nil when unrestricted.
func (s CompanySet) IDs() []int64 {
	if s.unrestricted || len(s.ids) == 0 {
		return nil
	}
	out := make([]int64, 0, len(s.ids))
	for id := range s.ids {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// TreeSource supplies the current company tree snapshot. Implementations
// may cache; the resolver only requires snapshot consistency, not
// linearizability.
type TreeSource interface {
	Snapshot(ctx context.Context) (*Snapshot, error)
}

// Resolver computes the accessible-company set for a principal.
type Resolver struct {
	cfg  *Config
	tree TreeSource
}

// NewResolver constructs a Resolver over the given tables and tree source.
func NewResolver(cfg *Config, tree TreeSource) *Resolver {
	return &Resolver{cfg: cfg, tree: tree}
}

// Resolve returns the principal's visibility. Internal staff roles
// (manager and above) are unrestricted; scoped roles see their assigned
// companies plus all descendants. A scoped principal with no assignments
// sees nothing, never everything.
func (r *Resolver) Resolve(ctx context.Context, p Principal) (CompanySet, error) {
	switch p.Role {
	case RoleGlobalAdmin, RoleAdministrator, RoleManager:
		return UnrestrictedSet(), nil
	case RoleCreditSenior, RoleCreditController, RoleExternalUser, RoleNotificationContact:
		if len(p.CompanyIDs) == 0 {
			return ExplicitSet(), nil
		}
		snap, err := r.tree.Snapshot(ctx)
		if err != nil {
			return CompanySet{}, fmt.Errorf("authz: load tree snapshot: %w", err)
		}
		ids, err := snap.ExpandToDescendantIDs(p.CompanyIDs)
		if err != nil {
			return CompanySet{}, err
		}
		return CompanySet{ids: ids}, nil
	default:
		return CompanySet{}, fmt.Errorf("%w: %d", ErrUnknownRole, p.Role)
	}
}

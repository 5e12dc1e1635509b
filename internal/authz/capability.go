package authz

import "fmt"

// Capability names a permission checked before an operation proceeds.
type Capability string

// Portal capabilities.
const (
	CapUsersView       Capability = "users.view"
	CapUsersManage     Capability = "users.manage"
	CapUsersDelete     Capability = "users.delete"
	CapCompaniesView   Capability = "companies.view"
	CapCompaniesManage Capability = "companies.manage"
	CapDocumentsView   Capability = "documents.view"
	CapDocumentsManage Capability = "documents.manage"
	CapDashboardView   Capability = "dashboard.view"
)

// capabilityRule grants a capability either to every role at or above a
// minimum level, or to an explicit allow-list of roles.
type capabilityRule struct {
	minLevel int
	allow    map[Role]struct{}
}

// Config is the immutable role-hierarchy and capability table consulted by
// the permission gate and the scope resolver. It is constructed once at
// startup and safe for unbounded concurrent reads.
type Config struct {
	levels       map[Role]int
	capabilities map[Capability]capabilityRule
}

// ConfigOption customizes a Config under construction. Used by tests to
// substitute alternate hierarchies without touching process-wide state.
type ConfigOption func(*Config)

// WithCapabilityMinLevel grants cap to every role at or above level.
func WithCapabilityMinLevel(cap Capability, level int) ConfigOption {
	return func(c *Config) {
		c.capabilities[cap] = capabilityRule{minLevel: level}
	}
}

// WithCapabilityRoles grants cap to exactly the listed roles.
func WithCapabilityRoles(cap Capability, roles ...Role) ConfigOption {
	return func(c *Config) {
		allow := make(map[Role]struct{}, len(roles))
		for _, r := range roles {
			allow[r] = struct{}{}
		}
		c.capabilities[cap] = capabilityRule{allow: allow}
	}
}

// NewConfig builds a Config over the standard seven-role hierarchy and the
// supplied capability grants.
func NewConfig(opts ...ConfigOption) *Config {
	cfg := &Config{
		levels: map[Role]int{
			RoleNotificationContact: 1,
			RoleExternalUser:        2,
			RoleCreditController:    3,
			RoleCreditSenior:        4,
			RoleManager:             5,
			RoleAdministrator:       6,
			RoleGlobalAdmin:         7,
		},
		capabilities: make(map[Capability]capabilityRule),
	}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// DefaultConfig returns the production capability table.
func DefaultConfig() *Config {
	return NewConfig(
		WithCapabilityMinLevel(CapUsersView, 5),
		WithCapabilityRoles(CapUsersManage, RoleGlobalAdmin, RoleAdministrator, RoleManager),
		WithCapabilityRoles(CapUsersDelete, RoleGlobalAdmin, RoleAdministrator),
		WithCapabilityMinLevel(CapCompaniesView, 3),
		WithCapabilityRoles(CapCompaniesManage, RoleGlobalAdmin, RoleAdministrator),
		WithCapabilityMinLevel(CapDocumentsView, 2),
		WithCapabilityRoles(CapDocumentsManage, RoleGlobalAdmin, RoleAdministrator),
		WithCapabilityMinLevel(CapDashboardView, 2),
	)
}

// HasCapability reports whether role holds cap per the static table.
func (c *Config) HasCapability(role Role, cap Capability) (bool, error) {
	rule, ok := c.capabilities[cap]
	if !ok {
		return false, fmt.Errorf("%w: %q", ErrUnknownCapability, cap)
	}
	level, err := c.Level(role)
	if err != nil {
		return false, err
	}
	if rule.allow != nil {
		_, allowed := rule.allow[role]
		return allowed, nil
	}
	return level >= rule.minLevel, nil
}

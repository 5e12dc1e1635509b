package authz

import (
	"fmt"
	"sort"
)

// Role is a closed enumeration of the seven portal roles.
type Role uint8

const (
	RoleUnknown Role = iota
	RoleNotificationContact
	RoleExternalUser
	RoleCreditController
	RoleCreditSenior
	RoleManager
	RoleAdministrator
	RoleGlobalAdmin
)

// String returns the stable wire name of a role.
func (r Role) String() string {
	switch r {
	case RoleGlobalAdmin:
		return "global_admin"
	case RoleAdministrator:
		return "administrator"
	case RoleManager:
		return "manager"
	case RoleCreditSenior:
		return "credit_senior"
	case RoleCreditController:
		return "credit_controller"
	case RoleExternalUser:
		return "external_user"
	case RoleNotificationContact:
		return "notification_contact"
	default:
		return "unknown"
	}
}

// MarshalText encodes the role by its wire name.
func (r Role) MarshalText() ([]byte, error) {
	if r == RoleUnknown {
		return nil, fmt.Errorf("%w: %d", ErrUnknownRole, r)
	}
	return []byte(r.String()), nil
}

// UnmarshalText decodes a role from its wire name.
func (r *Role) UnmarshalText(text []byte) error {
	parsed, err := ParseRole(string(text))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// ParseRole converts a stored role name into its Role value.
func ParseRole(name string) (Role, error) {
	switch name {
	case "global_admin":
		return RoleGlobalAdmin, nil
	case "administrator":
		return RoleAdministrator, nil
	case "manager":
		return RoleManager, nil
	case "credit_senior":
		return RoleCreditSenior, nil
	case "credit_controller":
		return RoleCreditController, nil
	case "external_user":
		return RoleExternalUser, nil
	case "notification_contact":
		return RoleNotificationContact, nil
	default:
		return RoleUnknown, fmt.Errorf("%w: %q", ErrUnknownRole, name)
	}
}

// Roles lists every defined role ordered from lowest to highest level.
func Roles() []Role {
	return []Role{
		RoleNotificationContact,
		RoleExternalUser,
		RoleCreditController,
		RoleCreditSenior,
		RoleManager,
		RoleAdministrator,
		RoleGlobalAdmin,
	}
}

// Level returns the hierarchy level of role (7 = highest).
func (c *Config) Level(role Role) (int, error) {
	level, ok := c.levels[role]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownRole, role)
	}
	return level, nil
}

// CanManage reports whether acting may manage target. Global admins manage
// everyone, themselves included; every other role manages strictly lower
// levels only, never a peer.
func (c *Config) CanManage(acting, target Role) (bool, error) {
	actingLevel, err := c.Level(acting)
	if err != nil {
		return false, err
	}
	targetLevel, err := c.Level(target)
	if err != nil {
		return false, err
	}
	if acting == RoleGlobalAdmin {
		return true, nil
	}
	return actingLevel > targetLevel, nil
}

// ManageableRoles returns every role acting may assign or administer,
// ordered from lowest to highest level.
func (c *Config) ManageableRoles(acting Role) ([]Role, error) {
	actingLevel, err := c.Level(acting)
	if err != nil {
		return nil, err
	}
	var out []Role
	for role, level := range c.levels {
		if acting == RoleGlobalAdmin || level < actingLevel {
			out = append(out, role)
		}
	}
	sort.Slice(out, func(i, j int) bool { return c.levels[out[i]] < c.levels[out[j]] })
	return out, nil
}

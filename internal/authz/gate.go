package authz

import (
	"errors"
	"fmt"
)

// DenyReason explains a negative gate decision.
type DenyReason string

const (
	DenyInsufficientRole  DenyReason = "insufficient_role"
	DenyUnknownCapability DenyReason = "unknown_capability"
)

// Decision is the outcome of a capability check. Denials are expected,
// non-exceptional values; callers surface them as authorization failures
// rather than errors.
type Decision struct {
	Allowed bool
	Reason  DenyReason
}

// Allow is the positive decision.
func Allow() Decision {
	return Decision{Allowed: true}
}

// Deny builds a negative decision with the given reason.
func Deny(reason DenyReason) Decision {
	return Decision{Reason: reason}
}

// Gate answers capability checks for principals. It is stateless and safe
// for concurrent use.
type Gate struct {
	cfg *Config
}

// NewGate constructs a Gate over the given tables.
func NewGate(cfg *Config) *Gate {
	return &Gate{cfg: cfg}
}

// Check decides whether the principal may exercise cap. It never fails for
// a recognized principal/capability pair; unknown roles deny rather than
// allow.
func (g *Gate) Check(p Principal, cap Capability) Decision {
	ok, err := g.cfg.HasCapability(p.Role, cap)
	if err != nil {
		if errors.Is(err, ErrUnknownCapability) {
			return Deny(DenyUnknownCapability)
		}
		return Deny(DenyInsufficientRole)
	}
	if !ok {
		return Deny(DenyInsufficientRole)
	}
	return Allow()
}

// Require is the error-shaped form of Check for service code that wants to
// propagate denials up the call chain.
func (g *Gate) Require(p Principal, cap Capability) error {
	decision := g.Check(p, cap)
	if decision.Allowed {
		return nil
	}
	if decision.Reason == DenyUnknownCapability {
		return fmt.Errorf("%w: %q", ErrUnknownCapability, cap)
	}
	return fmt.Errorf("%w: role %s lacks %q", ErrInsufficientRole, p.Role, cap)
}

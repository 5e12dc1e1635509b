package authz

import "errors"

var (
	// ErrUnknownRole indicates a role outside the closed enumeration.
	ErrUnknownRole = errors.New("authz: unknown role")
	// ErrUnknownCapability indicates a capability missing from the table.
	ErrUnknownCapability = errors.New("authz: unknown capability")
	// ErrUnknownCompany indicates a company id absent from the tree snapshot.
	ErrUnknownCompany = errors.New("authz: unknown company")
	// ErrCycleDetected indicates a parent chain that revisits a node.
	ErrCycleDetected = errors.New("authz: company hierarchy cycle detected")
	// ErrInsufficientRole indicates a denied capability check.
	ErrInsufficientRole = errors.New("authz: insufficient role")
)

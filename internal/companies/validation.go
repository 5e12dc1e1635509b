package companies

import (
	"fmt"
	"strings"

	"github.com/ledgergate/ledgergate/internal/authz"
	"github.com/ledgergate/ledgergate/internal/platform/httpx"
)

func validateCreate(input CreateInput) error {
	if strings.TrimSpace(input.Name) == "" {
		return fmt.Errorf("%w: company name is required", httpx.ErrValidation)
	}
	switch input.Kind {
	case authz.CompanyCorp:
		if input.ParentID != 0 {
			return fmt.Errorf("%w: a corporate root cannot have a parent", httpx.ErrValidation)
		}
	case authz.CompanySub, authz.CompanyBranch:
		if input.ParentID == 0 {
			return fmt.Errorf("%w: a %s company requires a parent", httpx.ErrValidation, strings.ToLower(string(input.Kind)))
		}
	default:
		return fmt.Errorf("%w: unknown company kind %q", httpx.ErrValidation, input.Kind)
	}
	return nil
}

func validateUpdate(existing Company, input UpdateInput) error {
	if strings.TrimSpace(input.Name) == "" {
		return fmt.Errorf("%w: company name is required", httpx.ErrValidation)
	}
	switch existing.Kind {
	case authz.CompanyCorp:
		if input.ParentID != 0 {
			return fmt.Errorf("%w: a corporate root cannot have a parent", httpx.ErrValidation)
		}
	case authz.CompanySub, authz.CompanyBranch:
		if input.ParentID == 0 {
			return fmt.Errorf("%w: a %s company requires a parent", httpx.ErrValidation, strings.ToLower(string(existing.Kind)))
		}
	}
	return nil
}

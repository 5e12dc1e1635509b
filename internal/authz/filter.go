package authz

import "fmt"

// Filter is the storage predicate derived from a CompanySet. It is opaque to
// the engine's callers: repositories combine it with their own clauses (soft
// delete, status) without interpreting it. An empty explicit set matches
// zero records; it never degrades to matching everything.
type Filter struct {
	unrestricted bool
	ids          []int64
}

// BuildFilter converts an accessible-company set into a query predicate.
func BuildFilter(set CompanySet) Filter {
	if set.IsUnrestricted() {
		return Filter{unrestricted: true}
	}
	return Filter{ids: set.IDs()}
}

// Unrestricted reports whether the filter matches every record.
func (f Filter) Unrestricted() bool {
	return f.unrestricted
}

// Matches evaluates the predicate against a record's company id.
func (f Filter) Matches(companyID int64) bool {
	if f.unrestricted {
		return true
	}
	for _, id := range f.ids {
		if id == companyID {
			return true
		}
	}
	return false
}

// CompanyIDs returns the explicit ids the filter admits, nil when
// unrestricted.
func (f Filter) CompanyIDs() []int64 {
	if f.unrestricted {
		return nil
	}
	return append([]int64(nil), f.ids...)
}

// SQLClause renders the predicate as a WHERE fragment for the given column.
// argIndex is the 1-based position of the next placeholder. The returned
// args slice is empty for the constant cases.
func (f Filter) SQLClause(column string, argIndex int) (string, []any) {
	if f.unrestricted {
		return "TRUE", nil
	}
	if len(f.ids) == 0 {
		return "FALSE", nil
	}
	clause := fmt.Sprintf("%s = ANY($%d)", column, argIndex)
	return clause, []any{f.ids}
}

package authz

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBuildFilterUnrestricted(t *testing.T) {
	f := BuildFilter(UnrestrictedSet())
	require.True(t, f.Unrestricted())
	require.True(t, f.Matches(1))
	require.True(t, f.Matches(98765))
	require.Nil(t, f.CompanyIDs())

	clause, args := f.SQLClause("company_id", 1)
	require.Equal(t, "TRUE", clause)
	require.Empty(t, args)
}

func TestBuildFilterEmptyMatchesNothing(t *testing.T) {
	f := BuildFilter(ExplicitSet())
	require.False(t, f.Unrestricted())
	require.False(t, f.Matches(1), "an empty scope must never widen to all records")
	require.False(t, f.Matches(0))

	clause, args := f.SQLClause("company_id", 1)
	require.Equal(t, "FALSE", clause)
	require.Empty(t, args)
}

func TestBuildFilterExplicit(t *testing.T) {
	f := BuildFilter(ExplicitSet(3, 1, 2))
	require.False(t, f.Unrestricted())
	require.True(t, f.Matches(2))
	require.False(t, f.Matches(4))
	require.Equal(t, []int64{1, 2, 3}, f.CompanyIDs())

	clause, args := f.SQLClause("d.company_id", 4)
	require.Equal(t, "d.company_id = ANY($4)", clause)
	require.Len(t, args, 1)
	require.Equal(t, []int64{1, 2, 3}, args[0])
}

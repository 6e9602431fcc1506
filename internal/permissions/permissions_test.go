package permissions

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEveryRoleHasPermissions(t *testing.T) {
	a, err := New()
	require.NoError(t, err)

	for _, role := range Roles() {
		perms := a.PermissionsFor(role)
		assert.NotEmpty(t, perms, "role %s has no permissions", role)
		for _, p := range perms {
			assert.Contains(t, All, p, "role %s grants undeclared permission %s", role, p)
		}
	}
}

func TestUnknownRoleHasNothing(t *testing.T) {
	a, err := New()
	require.NoError(t, err)

	assert.Empty(t, a.PermissionsFor(Role("intern")))
	for _, p := range All {
		assert.False(t, a.Allowed(Role("intern"), p))
	}
	assert.False(t, Allowed("", DashboardView))
}

func TestAdminAndOwnerHoldEverything(t *testing.T) {
	a, err := New()
	require.NoError(t, err)

	for _, p := range All {
		assert.True(t, a.Allowed(RoleAdmin, p), "admin missing %s", p)
		assert.True(t, a.Allowed(RoleOwner, p), "owner missing %s", p)
	}
}

func TestInheritanceAndSeparation(t *testing.T) {
	cases := []struct {
		role    string
		perm    string
		allowed bool
	}{
		{"sales_manager", CommissionsCreate, true},
		{"sales_manager", CommissionsApprove, true},
		{"sales_manager", CommissionsPay, false},
		{"sales_rep", CommissionsApprove, false},
		{"sales_rep", CommissionsViewAll, false},
		{"accounting", CommissionsPay, true},
		{"accounting", CommissionsApprove, false},
		{"production", DirectoryManage, true},
		{"office", UsersManage, false},
		{" Sales_Rep ", CommissionsCreate, true},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.allowed, Allowed(tc.role, tc.perm), "%s / %s", tc.role, tc.perm)
	}
}

func TestForIsSortedAndDeduplicated(t *testing.T) {
	perms := For("sales_manager")
	assert.IsNonDecreasing(t, perms)
	seen := map[string]bool{}
	for _, p := range perms {
		assert.False(t, seen[p], "duplicate %s", p)
		seen[p] = true
	}
	assert.Contains(t, perms, DrawsViewOwn)
}

// Package permissions holds the static role permission table and enforces it
// through a casbin RBAC model.
package permissions

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
)

type Role string

const (
	RoleAdmin        Role = "admin"
	RoleOwner        Role = "owner"
	RoleSalesManager Role = "sales_manager"
	RoleSalesRep     Role = "sales_rep"
	RoleAccounting   Role = "accounting"
	RoleProduction   Role = "production"
	RoleOffice       Role = "office"
)

const (
	DashboardView                = "dashboard.view"
	CommissionsCreate            = "commissions.create"
	CommissionsViewOwn           = "commissions.view_own"
	CommissionsViewAll           = "commissions.view_all"
	CommissionsApprove           = "commissions.approve"
	CommissionsAccountingApprove = "commissions.accounting_approve"
	CommissionsPay               = "commissions.pay"
	CommissionsExport            = "commissions.export"
	TiersManage                  = "tiers.manage"
	DrawsViewOwn                 = "draws.view_own"
	DrawsManage                  = "draws.manage"
	ComplianceView               = "compliance.view"
	ComplianceManage             = "compliance.manage"
	SOPsManage                   = "sops.manage"
	DirectoryView                = "directory.view"
	DirectoryManage              = "directory.manage"
	TrainingView                 = "training.view"
	TrainingManage               = "training.manage"
	UsersManage                  = "users.manage"
	CRMView                      = "crm.view"
	IntegrationsManage           = "integrations.manage"
)

// All lists every permission the portal checks.
var All = []string{
	DashboardView,
	CommissionsCreate, CommissionsViewOwn, CommissionsViewAll,
	CommissionsApprove, CommissionsAccountingApprove, CommissionsPay, CommissionsExport,
	TiersManage, DrawsViewOwn, DrawsManage,
	ComplianceView, ComplianceManage, SOPsManage,
	DirectoryView, DirectoryManage,
	TrainingView, TrainingManage,
	UsersManage, CRMView, IntegrationsManage,
}

// grants is the permission set each role holds directly. Inherited sets come
// from parents.
var grants = map[Role][]string{
	RoleAdmin: All,
	RoleOwner: {},
	RoleSalesRep: {
		DashboardView, CommissionsCreate, CommissionsViewOwn, DrawsViewOwn,
		DirectoryView, TrainingView, CRMView,
	},
	RoleSalesManager: {
		CommissionsViewAll, CommissionsApprove, CommissionsExport, ComplianceView,
	},
	RoleAccounting: {
		DashboardView, CommissionsViewOwn, CommissionsViewAll, CommissionsAccountingApprove,
		CommissionsPay, CommissionsExport, DrawsViewOwn, DrawsManage, ComplianceView,
		DirectoryView, TrainingView, CRMView,
	},
	RoleProduction: {
		DashboardView, DirectoryView, DirectoryManage, TrainingView, CRMView, ComplianceView,
	},
	RoleOffice: {
		DashboardView, DirectoryView, DirectoryManage, TrainingView, CRMView,
	},
}

// parents maps a role onto the roles whose permissions it inherits.
var parents = map[Role][]Role{
	RoleOwner:        {RoleAdmin},
	RoleSalesManager: {RoleSalesRep},
}

const rbacModel = `
[request_definition]
r = sub, obj

[policy_definition]
p = sub, obj

[role_definition]
g = _, _

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = g(r.sub, p.sub) && r.obj == p.obj
`

// Authorizer answers permission checks for roles.
type Authorizer struct {
	enforcer *casbin.Enforcer
}

// Roles returns every known role, sorted.
func Roles() []Role {
	out := make([]Role, 0, len(grants))
	for r := range grants {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// ParseRole normalizes a role name and reports whether it is known.
func ParseRole(raw string) (Role, bool) {
	r := Role(strings.ToLower(strings.TrimSpace(raw)))
	_, ok := grants[r]
	return r, ok
}

func subject(r Role) string { return "role:" + string(r) }

// New builds an Authorizer from the static table.
func New() (*Authorizer, error) {
	m, err := model.NewModelFromString(rbacModel)
	if err != nil {
		return nil, fmt.Errorf("permissions: load model: %w", err)
	}
	e, err := casbin.NewEnforcer(m)
	if err != nil {
		return nil, fmt.Errorf("permissions: create enforcer: %w", err)
	}

	for role, perms := range grants {
		for _, p := range perms {
			if _, err := e.AddPolicy(subject(role), p); err != nil {
				return nil, fmt.Errorf("permissions: add policy %s %s: %w", role, p, err)
			}
		}
	}
	for child, ps := range parents {
		for _, parent := range ps {
			if _, err := e.AddGroupingPolicy(subject(child), subject(parent)); err != nil {
				return nil, fmt.Errorf("permissions: inherit %s from %s: %w", child, parent, err)
			}
		}
	}

	return &Authorizer{enforcer: e}, nil
}

// Allowed reports whether role holds permission. Unknown roles hold nothing.
func (a *Authorizer) Allowed(role Role, permission string) bool {
	if _, ok := grants[role]; !ok {
		return false
	}
	ok, err := a.enforcer.Enforce(subject(role), permission)
	return err == nil && ok
}

// PermissionsFor returns the sorted effective permission set of role,
// inherited permissions included.
func (a *Authorizer) PermissionsFor(role Role) []string {
	if _, ok := grants[role]; !ok {
		return []string{}
	}
	rules, err := a.enforcer.GetImplicitPermissionsForUser(subject(role))
	if err != nil {
		return []string{}
	}
	seen := make(map[string]struct{}, len(rules))
	out := make([]string, 0, len(rules))
	for _, rule := range rules {
		if len(rule) < 2 {
			continue
		}
		if _, dup := seen[rule[1]]; dup {
			continue
		}
		seen[rule[1]] = struct{}{}
		out = append(out, rule[1])
	}
	sort.Strings(out)
	return out
}

var (
	defaultOnce sync.Once
	defaultAuth *Authorizer
	defaultErr  error
)

// Default returns the process-wide Authorizer, building it on first use.
func Default() *Authorizer {
	defaultOnce.Do(func() {
		defaultAuth, defaultErr = New()
	})
	if defaultErr != nil {
		panic(defaultErr)
	}
	return defaultAuth
}

// Allowed checks role against the default Authorizer. The role string is
// normalized first.
func Allowed(role string, permission string) bool {
	r, ok := ParseRole(role)
	if !ok {
		return false
	}
	return Default().Allowed(r, permission)
}

// For returns the default Authorizer's permission set for role.
func For(role string) []string {
	r, _ := ParseRole(role)
	return Default().PermissionsFor(r)
}

package domain

import (
	"fmt"
	"slices"
	"sort"
)

// Permission names an operation guarded by the access control gate.
type Permission string

// Known permissions.
const (
	PermissionIngest      Permission = "ingest_documents"
	PermissionQuery       Permission = "query_system"
	PermissionViewLogs    Permission = "view_logs"
	PermissionManageUsers Permission = "manage_users"
	PermissionConfigure   Permission = "configure_system"
)

// Role names in the default policy.
const (
	RoleAdmin     = "ADMIN"
	RoleAnalystTS = "ANALYST_TS"
	RoleAnalystS  = "ANALYST_S"
	RoleAnalystC  = "ANALYST_C"
	RoleOperator  = "OPERATOR"
)

// Role grants a set of permissions up to a maximum clearance.
type Role struct {
	Name        string
	Permissions []Permission
	Clearance   Classification
}

// Policy is an immutable role table. Build one with NewPolicy.
type Policy struct {
	roles map[string]Role
}

// NewPolicy builds a policy from role definitions.
// Role names must be unique and clearances valid.
func NewPolicy(roles ...Role) (*Policy, error) {
	table := make(map[string]Role, len(roles))
	for _, role := range roles {
		if role.Name == "" {
			return nil, fmt.Errorf("%w: role name is empty", ErrInvalidInput)
		}
		if _, dup := table[role.Name]; dup {
			return nil, fmt.Errorf("%w: duplicate role %s", ErrInvalidInput, role.Name)
		}
		if !role.Clearance.IsValid() {
			return nil, fmt.Errorf("%w: role %s", ErrInvalidClassification, role.Name)
		}
		role.Permissions = slices.Clone(role.Permissions)
		table[role.Name] = role
	}
	return &Policy{roles: table}, nil
}

// DefaultPolicy returns the standard five-role table.
func DefaultPolicy() *Policy {
	policy, err := NewPolicy(
		Role{
			Name: RoleAdmin,
			Permissions: []Permission{
				PermissionIngest, PermissionQuery, PermissionViewLogs,
				PermissionManageUsers, PermissionConfigure,
			},
			Clearance: TopSecret,
		},
		Role{Name: RoleAnalystTS, Permissions: []Permission{PermissionQuery, PermissionViewLogs}, Clearance: TopSecret},
		Role{Name: RoleAnalystS, Permissions: []Permission{PermissionQuery}, Clearance: Secret},
		Role{Name: RoleAnalystC, Permissions: []Permission{PermissionQuery}, Clearance: Confidential},
		Role{Name: RoleOperator, Permissions: []Permission{PermissionQuery}, Clearance: Unclassified},
	)
	if err != nil {
		panic("domain: default policy is invalid: " + err.Error())
	}
	return policy
}

// Role returns a copy of the named role.
func (p *Policy) Role(name string) (Role, bool) {
	role, ok := p.roles[name]
	if !ok {
		return Role{}, false
	}
	role.Permissions = slices.Clone(role.Permissions)
	return role, true
}

// RoleNames returns every role name in sorted order.
func (p *Policy) RoleNames() []string {
	names := make([]string, 0, len(p.roles))
	for name := range p.roles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Grants reports whether the named role holds the permission.
func (p *Policy) Grants(roleName string, perm Permission) bool {
	role, ok := p.roles[roleName]
	return ok && slices.Contains(role.Permissions, perm)
}

// Clearance returns the highest clearance across the named roles.
// Unknown role names are an error.
func (p *Policy) Clearance(roleNames ...string) (Classification, error) {
	clearance := Unclassified
	for _, name := range roleNames {
		role, ok := p.roles[name]
		if !ok {
			return Unclassified, fmt.Errorf("%w: %s", ErrUnknownRole, name)
		}
		clearance = MaxClassification(clearance, role.Clearance)
	}
	return clearance, nil
}

// User is an identity registered with the access control gate.
type User struct {
	// ID is the user identifier.
	ID string

	// Roles are role names from the policy.
	Roles []string

	// Clearance is the maximum role clearance unless explicitly overridden.
	Clearance Classification

	// Active users may pass permission and clearance checks.
	Active bool
}

// UserSpec describes a user to register, as read from configuration.
type UserSpec struct {
	ID    string
	Roles []string

	// Clearance overrides the role-derived clearance when non-empty.
	Clearance string

	// Disabled registers the user as inactive.
	Disabled bool
}

// DefaultUsers returns the users registered when none are configured.
func DefaultUsers() []UserSpec {
	return []UserSpec{
		{ID: "admin", Roles: []string{RoleAdmin}},
		{ID: "analyst_ts", Roles: []string{RoleAnalystTS}},
		{ID: "analyst_s", Roles: []string{RoleAnalystS}},
		{ID: "operator", Roles: []string{RoleOperator}},
	}
}

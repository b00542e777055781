package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/bastion/internal/core/domain"
)

func TestGate_DefaultUsersClearance(t *testing.T) {
	gate := newTestGate(t, &mockAuditLog{})

	tests := []struct {
		id   string
		want domain.Classification
	}{
		{"admin", domain.TopSecret},
		{"analyst_ts", domain.TopSecret},
		{"analyst_s", domain.Secret},
		{"operator", domain.Unclassified},
	}
	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			user, err := gate.User(tt.id)
			require.NoError(t, err)
			assert.Equal(t, tt.want, user.Clearance)
			assert.True(t, user.Active)
		})
	}
}

func TestGate_AddUser(t *testing.T) {
	gate := NewGate(nil)

	user, err := gate.AddUser("multi", []string{domain.RoleOperator, domain.RoleAnalystS}, nil)
	require.NoError(t, err)
	assert.Equal(t, domain.Secret, user.Clearance, "clearance is the highest across roles")

	override := domain.Confidential
	user, err = gate.AddUser("capped", []string{domain.RoleAnalystTS}, &override)
	require.NoError(t, err)
	assert.Equal(t, domain.Confidential, user.Clearance)

	_, err = gate.AddUser("ghost", []string{"WIZARD"}, nil)
	assert.ErrorIs(t, err, domain.ErrUnknownRole)

	_, err = gate.AddUser(" ", []string{domain.RoleOperator}, nil)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = gate.AddUser("noroles", nil, nil)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	bad := domain.Classification(9)
	_, err = gate.AddUser("bad", []string{domain.RoleOperator}, &bad)
	assert.ErrorIs(t, err, domain.ErrInvalidClassification)
}

func TestGate_UserIsACopy(t *testing.T) {
	gate := NewGate(nil)
	_, err := gate.AddUser("alice", []string{domain.RoleAnalystS}, nil)
	require.NoError(t, err)

	user, err := gate.User("alice")
	require.NoError(t, err)
	user.Roles[0] = domain.RoleAdmin

	again, err := gate.User("alice")
	require.NoError(t, err)
	assert.Equal(t, []string{domain.RoleAnalystS}, again.Roles)
}

func TestGate_RegisterUsers(t *testing.T) {
	gate := NewGate(nil)

	err := gate.RegisterUsers([]domain.UserSpec{
		{ID: "carol", Roles: []string{domain.RoleAnalystTS}, Clearance: "secret"},
		{ID: "dave", Roles: []string{domain.RoleOperator}, Disabled: true},
	})
	require.NoError(t, err)

	carol, err := gate.User("carol")
	require.NoError(t, err)
	assert.Equal(t, domain.Secret, carol.Clearance)

	dave, err := gate.User("dave")
	require.NoError(t, err)
	assert.False(t, dave.Active)

	users := gate.Users()
	require.Len(t, users, 2)
	assert.Equal(t, "carol", users[0].ID)

	err = gate.RegisterUsers([]domain.UserSpec{{ID: "eve", Roles: []string{domain.RoleOperator}, Clearance: "ultra"}})
	assert.ErrorIs(t, err, domain.ErrInvalidClassification)
}

func TestGate_Authenticate(t *testing.T) {
	log := &mockAuditLog{}
	gate := newTestGate(t, log)
	ctx := context.Background()

	user, err := gate.Authenticate(ctx, "analyst_s")
	require.NoError(t, err)
	assert.Equal(t, "analyst_s", user.ID)
	assert.Empty(t, log.events, "successful authentication is not audited")

	_, err = gate.Authenticate(ctx, "mallory")
	assert.ErrorIs(t, err, domain.ErrUnknownUser)
	require.Len(t, log.events, 1)
	assert.Equal(t, domain.AuditAuth, log.events[0].Kind)
	assert.False(t, log.events[0].Success)

	require.NoError(t, gate.SetActive("operator", false))
	_, err = gate.Authenticate(ctx, "operator")
	assert.ErrorIs(t, err, domain.ErrUserInactive)
	assert.Len(t, log.events, 2)

	assert.ErrorIs(t, gate.SetActive("mallory", true), domain.ErrUnknownUser)
}

func TestGate_AuthenticateAuditFailure(t *testing.T) {
	log := &mockAuditLog{appendErr: errors.New("disk full")}
	gate := newTestGate(t, log)

	_, err := gate.Authenticate(context.Background(), "mallory")

	assert.ErrorIs(t, err, domain.ErrAuditWrite)
}

func TestGate_CheckPermission(t *testing.T) {
	gate := newTestGate(t, &mockAuditLog{})

	admin, _ := gate.User("admin")
	operator, _ := gate.User("operator")
	analystTS, _ := gate.User("analyst_ts")

	assert.True(t, gate.CheckPermission(admin, domain.PermissionConfigure))
	assert.True(t, gate.CheckPermission(operator, domain.PermissionQuery))
	assert.False(t, gate.CheckPermission(operator, domain.PermissionIngest))
	assert.True(t, gate.CheckPermission(analystTS, domain.PermissionViewLogs))
	assert.False(t, gate.CheckPermission(analystTS, domain.PermissionIngest))

	admin.Active = false
	assert.False(t, gate.CheckPermission(admin, domain.PermissionQuery))
}

func TestGate_CheckClearance(t *testing.T) {
	gate := newTestGate(t, &mockAuditLog{})
	analystS, _ := gate.User("analyst_s")

	for _, level := range domain.Classifications() {
		want := level <= domain.Secret
		assert.Equal(t, want, gate.CheckClearance(analystS, level), level.String())
	}

	analystS.Active = false
	assert.False(t, gate.CheckClearance(analystS, domain.Unclassified))
}

func TestGate_CustomPolicy(t *testing.T) {
	policy, err := domain.NewPolicy(domain.Role{
		Name:        "READER",
		Permissions: []domain.Permission{domain.PermissionQuery},
		Clearance:   domain.Confidential,
	})
	require.NoError(t, err)
	gate := NewGate(policy)

	user, err := gate.AddUser("r", []string{"READER"}, nil)
	require.NoError(t, err)
	assert.Equal(t, domain.Confidential, user.Clearance)
	assert.Same(t, policy, gate.Policy())

	_, err = gate.AddUser("a", []string{domain.RoleAdmin}, nil)
	assert.ErrorIs(t, err, domain.ErrUnknownRole)
}

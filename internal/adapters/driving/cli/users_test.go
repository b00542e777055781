package cli

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/bastion/internal/core/domain"
)

func TestUsersListCmd_SortedTable(t *testing.T) {
	cleanup := setupTestServices()
	defer cleanup()
	current.access.users = []domain.User{
		{ID: "operator", Roles: []string{"operator"}, Clearance: domain.Unclassified, Active: true},
		{ID: "admin", Roles: []string{"admin"}, Clearance: domain.TopSecret, Active: true},
		{ID: "retired", Roles: []string{"analyst_s", "operator"}, Clearance: domain.Secret},
	}

	out, err := runCommand("users", "list")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 4)
	assert.Contains(t, lines[0], "CLEARANCE")
	assert.True(t, strings.HasPrefix(lines[1], "admin"))
	assert.True(t, strings.HasPrefix(lines[2], "operator"))
	assert.True(t, strings.HasPrefix(lines[3], "retired"))
	assert.Contains(t, lines[3], "no")
	assert.Contains(t, lines[3], "analyst_s,operator")
}

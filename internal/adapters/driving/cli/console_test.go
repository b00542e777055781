package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConsoleCmd_RequiresTerminal(t *testing.T) {
	cleanup := setupTestServices()
	defer cleanup()

	_, err := runCommand("console")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "interactive terminal")
}

func TestConsoleCmd_NotConfigured(t *testing.T) {
	cleanup := setupTestServices()
	defer cleanup()
	SetServices(nil)

	_, err := runCommand("console")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "query service not configured")
}

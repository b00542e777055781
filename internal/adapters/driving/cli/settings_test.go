package cli

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/bastion/internal/core/domain"
)

func TestSettingsShowCmd_Defaults(t *testing.T) {
	cleanup := setupTestServices()
	defer cleanup()

	out, err := runCommand("settings", "show")

	require.NoError(t, err)
	assert.Contains(t, out, "[Retrieval]")
	assert.Contains(t, out, "Top K: 5")
	assert.Contains(t, out, "Similarity threshold: 0.35")
	assert.Contains(t, out, "Key file: keys/master.key")
	assert.Contains(t, out, "Offline only: yes")
	assert.Contains(t, out, "Configuration is valid.")
	// Offline providers have no model or endpoint to show.
	assert.NotContains(t, out, "Base URL")
}

func TestSettingsCmd_ShowsByDefault(t *testing.T) {
	cleanup := setupTestServices()
	defer cleanup()

	out, err := runCommand("settings")

	require.NoError(t, err)
	assert.Contains(t, out, "Current Settings")
}

func TestSettingsShowCmd_OnlineProvider(t *testing.T) {
	cleanup := setupTestServices()
	defer cleanup()
	current.settings.settings.LLM.Provider = domain.AIProviderOllama
	current.settings.validateErr = errors.New("offline mode forbids network providers")

	out, err := runCommand("settings", "show")

	require.NoError(t, err)
	assert.Contains(t, out, "Model: llama3.2")
	assert.Contains(t, out, "Base URL: http://127.0.0.1:11434")
	assert.Contains(t, out, "Warning: offline mode forbids network providers")
}

func TestSettingsSetCmd(t *testing.T) {
	cleanup := setupTestServices()
	defer cleanup()

	out, err := runCommand("settings", "set", "-u", "admin", "retrieval.mode", "hybrid")

	require.NoError(t, err)
	assert.Equal(t, "retrieval.mode", current.settings.gotKey)
	assert.Equal(t, "hybrid", current.settings.gotValue)
	assert.Contains(t, out, "Set retrieval.mode = hybrid")
	assert.NotContains(t, out, "re-ingest")
}

func TestSettingsSetCmd_EmbeddingNote(t *testing.T) {
	cleanup := setupTestServices()
	defer cleanup()

	out, err := runCommand("settings", "set", "embedding.dimensions", "256")

	require.NoError(t, err)
	assert.Contains(t, out, "re-ingest to rebuild the index")
}

func TestSettingsSetCmd_Error(t *testing.T) {
	cleanup := setupTestServices()
	defer cleanup()
	current.settings.setErr = domain.ErrAccessDenied

	_, err := runCommand("settings", "set", "retrieval.top_k", "9")

	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrAccessDenied)
	assert.Contains(t, err.Error(), "failed to set retrieval.top_k")
}

func TestSettingsSetCmd_NeedsTwoArgs(t *testing.T) {
	cleanup := setupTestServices()
	defer cleanup()

	_, err := runCommand("settings", "set", "retrieval.mode")

	assert.Error(t, err)
	assert.Empty(t, current.settings.gotKey)
}

func TestConfirm(t *testing.T) {
	tests := []struct {
		input    string
		expected bool
	}{
		{input: "y\n", expected: true},
		{input: "YES\n", expected: true},
		{input: " yes \n", expected: true},
		{input: "n\n", expected: false},
		{input: "\n", expected: false},
		{input: "", expected: false},
	}

	for _, tt := range tests {
		t.Run(strings.TrimSpace(tt.input), func(t *testing.T) {
			cmd := &cobra.Command{}
			out := new(bytes.Buffer)
			cmd.SetOut(out)

			got := confirm(cmd, strings.NewReader(tt.input), "Continue?")

			assert.Equal(t, tt.expected, got)
			assert.Contains(t, out.String(), "Continue? [y/N]: ")
		})
	}
}

func TestIsInteractive_NonTerminal(t *testing.T) {
	assert.False(t, isInteractive(strings.NewReader("y\n")))
}

func TestYesNo(t *testing.T) {
	assert.Equal(t, "yes", yesNo(true))
	assert.Equal(t, "no", yesNo(false))
}

package file

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/bastion/internal/core/domain"
	"github.com/custodia-labs/bastion/internal/core/ports/driven"
)

func newTestPromptStore(t *testing.T) (*PromptStore, string) {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "prompts")
	store, err := NewPromptStore(dir)
	require.NoError(t, err)
	return store, dir
}

func TestNewPromptStore_NoIO(t *testing.T) {
	store, dir := newTestPromptStore(t)

	assert.Equal(t, dir, store.Dir())
	_, err := os.Stat(dir)
	assert.True(t, os.IsNotExist(err))
}

func TestNewPromptStore_DefaultDir(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("cannot determine home directory")
	}

	store, err := NewPromptStore("")

	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".bastion", "prompts"), store.Dir())
}

func TestPromptStore_Load_CreatesDefaultFiles(t *testing.T) {
	store, dir := newTestPromptStore(t)

	_, err := store.Load(driven.PromptRAGSystem)
	require.NoError(t, err)

	for _, f := range []string{"rag_system.txt", "rag_template.txt", "README.md"} {
		info, err := os.Stat(filepath.Join(dir, f))
		require.NoError(t, err, f)
		assert.Equal(t, os.FileMode(0600), info.Mode().Perm(), f)
	}
}

func TestPromptStore_Load_Defaults(t *testing.T) {
	store, _ := newTestPromptStore(t)

	system, err := store.Load(driven.PromptRAGSystem)
	require.NoError(t, err)
	assert.Equal(t, domain.DefaultSystemPrompt, system)

	template, err := store.Load(driven.PromptRAGTemplate)
	require.NoError(t, err)
	assert.Equal(t, domain.DefaultRAGTemplate, template)
	assert.Equal(t, 3, strings.Count(template, "%s"))
}

func TestPromptStore_Load_CustomContent(t *testing.T) {
	store, dir := newTestPromptStore(t)
	require.NoError(t, os.MkdirAll(dir, 0700))
	custom := "Answer tersely from the CONTEXT only."
	require.NoError(t, os.WriteFile(filepath.Join(dir, "rag_system.txt"), []byte("\n"+custom+"\n\n"), 0600))

	prompt, err := store.Load(driven.PromptRAGSystem)

	require.NoError(t, err)
	assert.Equal(t, custom, prompt)
}

func TestPromptStore_Load_FallsBackWhenFileRemoved(t *testing.T) {
	store, dir := newTestPromptStore(t)
	_, err := store.Load(driven.PromptRAGTemplate)
	require.NoError(t, err)

	require.NoError(t, os.Remove(filepath.Join(dir, "rag_template.txt")))
	store.Reload()

	prompt, err := store.Load(driven.PromptRAGTemplate)
	require.NoError(t, err)
	assert.Equal(t, domain.DefaultRAGTemplate, prompt)
}

func TestPromptStore_Load_UnknownPrompt(t *testing.T) {
	store, _ := newTestPromptStore(t)

	_, err := store.Load("query_rewrite")

	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestPromptStore_Load_InitFailureUsesDefaults(t *testing.T) {
	store, err := NewPromptStore("/dev/null/prompts")
	require.NoError(t, err)

	prompt, err := store.Load(driven.PromptRAGSystem)
	require.NoError(t, err)
	assert.Equal(t, domain.DefaultSystemPrompt, prompt)

	_, err = store.Load("unknown")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestPromptStore_CacheAndReload(t *testing.T) {
	store, dir := newTestPromptStore(t)
	_, err := store.Load(driven.PromptRAGSystem)
	require.NoError(t, err)

	path := filepath.Join(dir, "rag_system.txt")
	require.NoError(t, os.WriteFile(path, []byte("edited"), 0600))

	cached, err := store.Load(driven.PromptRAGSystem)
	require.NoError(t, err)
	assert.Equal(t, domain.DefaultSystemPrompt, cached)

	store.Reload()
	fresh, err := store.Load(driven.PromptRAGSystem)
	require.NoError(t, err)
	assert.Equal(t, "edited", fresh)
}

func TestPromptStore_DoesNotOverwriteExistingFiles(t *testing.T) {
	store, dir := newTestPromptStore(t)
	require.NoError(t, os.MkdirAll(dir, 0700))
	path := filepath.Join(dir, "rag_template.txt")
	require.NoError(t, os.WriteFile(path, []byte("mine %s %s %s"), 0600))

	_, err := store.Load(driven.PromptRAGSystem)
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "mine %s %s %s", string(data))
}

func TestPromptStore_Load_ConcurrentAccess(t *testing.T) {
	store, _ := newTestPromptStore(t)

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := store.Load(driven.PromptRAGTemplate); err != nil {
				errs <- err
			}
			store.Reload()
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
}

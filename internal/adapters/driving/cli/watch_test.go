package cli

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChangedFile(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "memo.md")
	hidden := filepath.Join(dir, ".draft.md")
	require.NoError(t, os.WriteFile(file, []byte("text"), 0o600))
	require.NoError(t, os.WriteFile(hidden, []byte("text"), 0o600))

	tests := []struct {
		name  string
		event fsnotify.Event
		want  bool
	}{
		{name: "write", event: fsnotify.Event{Name: file, Op: fsnotify.Write}, want: true},
		{name: "create", event: fsnotify.Event{Name: file, Op: fsnotify.Create}, want: true},
		{name: "remove", event: fsnotify.Event{Name: file, Op: fsnotify.Remove}},
		{name: "chmod", event: fsnotify.Event{Name: file, Op: fsnotify.Chmod}},
		{name: "hidden", event: fsnotify.Event{Name: hidden, Op: fsnotify.Write}},
		{name: "directory", event: fsnotify.Event{Name: dir, Op: fsnotify.Create}},
		{name: "vanished", event: fsnotify.Event{Name: filepath.Join(dir, "gone.md"), Op: fsnotify.Write}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path, ok := changedFile(tt.event)
			assert.Equal(t, tt.want, ok)
			if tt.want {
				assert.Equal(t, tt.event.Name, path)
			}
		})
	}
}

func TestIsHidden(t *testing.T) {
	assert.True(t, isHidden("/data/.git"))
	assert.True(t, isHidden(".env"))
	assert.False(t, isHidden("/data/notes.md"))
}

func TestWatchPaths_ReportsChangedFiles(t *testing.T) {
	dir := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changes := make(chan []string, 10)
	done := make(chan error, 1)
	go func() {
		done <- watchPaths(ctx, []string{dir}, 20*time.Millisecond, func(_ context.Context, changed []string) error {
			changes <- changed
			return nil
		})
	}()

	file := filepath.Join(dir, "report.txt")
	deadline := time.After(5 * time.Second)
	tick := time.NewTicker(50 * time.Millisecond)
	defer tick.Stop()

	var got []string
wait:
	for {
		select {
		case got = <-changes:
			break wait
		case <-tick.C:
			// The watcher may not be registered yet; keep writing until it sees one.
			require.NoError(t, os.WriteFile(file, []byte(time.Now().String()), 0o600))
		case <-deadline:
			t.Fatal("no change reported")
		}
	}
	assert.Equal(t, []string{file}, got)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not stop")
	}
}

func TestWatchPaths_MissingPath(t *testing.T) {
	err := watchPaths(context.Background(), []string{filepath.Join(t.TempDir(), "missing")},
		time.Millisecond, func(context.Context, []string) error { return nil })

	assert.Error(t, err)
}

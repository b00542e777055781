package cli

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/custodia-labs/bastion/internal/logger"
)

// watchDebounce collects bursts of events into one ingestion run.
const watchDebounce = 500 * time.Millisecond

// watchPaths watches files and directory trees and calls onChange with the
// files created or written since the last quiet period. Calls are
// sequential. It returns when ctx is done.
func watchPaths(
	ctx context.Context, paths []string, debounce time.Duration,
	onChange func(ctx context.Context, changed []string) error,
) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	for _, p := range paths {
		if err := addWatchTree(watcher, p); err != nil {
			return err
		}
	}

	pending := make(map[string]struct{})
	timer := time.NewTimer(debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Has(fsnotify.Create) && isDir(event.Name) && !isHidden(event.Name) {
				if err := addWatchTree(watcher, event.Name); err != nil {
					logger.Warn("watch: %v", err)
				}
				continue
			}
			path, ok := changedFile(event)
			if !ok {
				continue
			}
			pending[path] = struct{}{}
			timer.Reset(debounce)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("watch: %v", err)

		case <-timer.C:
			changed := make([]string, 0, len(pending))
			for p := range pending {
				changed = append(changed, p)
			}
			clear(pending)
			sort.Strings(changed)
			logger.Debug("watch: %d changed file(s)", len(changed))
			if err := onChange(ctx, changed); err != nil {
				logger.Error("watch: ingest failed: %v", err)
			}
		}
	}
}

// changedFile reports the file an event refers to when the event should
// trigger ingestion. Removals, renames, chmods, directories and hidden
// entries do not.
func changedFile(event fsnotify.Event) (string, bool) {
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
		return "", false
	}
	if isHidden(event.Name) {
		return "", false
	}
	info, err := os.Stat(event.Name)
	if err != nil || info.IsDir() {
		return "", false
	}
	return event.Name, true
}

// addWatchTree watches root and, when it is a directory, every
// non-hidden directory beneath it.
func addWatchTree(watcher *fsnotify.Watcher, root string) error {
	info, err := os.Stat(root)
	if err != nil {
		return fmt.Errorf("watch %s: %w", root, err)
	}
	if !info.IsDir() {
		return watcher.Add(root)
	}
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && isHidden(path) {
			return filepath.SkipDir
		}
		if err := watcher.Add(path); err != nil {
			return fmt.Errorf("watch %s: %w", path, err)
		}
		return nil
	})
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

func isHidden(path string) bool {
	return strings.HasPrefix(filepath.Base(path), ".")
}

package file

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/custodia-labs/bastion/internal/core/domain"
	"github.com/custodia-labs/bastion/internal/core/ports/driven"
)

// Ensure PromptStore implements the interface.
var _ driven.PromptStore = (*PromptStore)(nil)

// builtinPrompts are the prompts Bastion knows. Each is written to
// <name>.txt on first use and stands in when the file is missing.
var builtinPrompts = map[string]string{
	driven.PromptRAGSystem:   domain.DefaultSystemPrompt,
	driven.PromptRAGTemplate: domain.DefaultRAGTemplate,
}

var promptReadme = "# bastion prompts\n\n" +
	"Prompts used when generating answers from retrieved context.\n\n" +
	"- `rag_system.txt` is placed at the top of every prompt. It must keep the\n" +
	"  instruction to answer \"" + domain.InsufficientInformation + "\"\n" +
	"  when the context does not hold the answer; the safety filter relies on it.\n" +
	"- `rag_template.txt` lays out the final prompt. It needs exactly three\n" +
	"  `%s` placeholders: system prompt, context, query. A template with any\n" +
	"  other count is ignored.\n\n" +
	"Keep the `" + domain.PromptContextMarker + "` and `" + domain.PromptQueryMarker + "` markers: the offline\n" +
	"extractive generator finds the context and query by them.\n\n" +
	"Changes take effect on the next command.\n"

// PromptStore serves generation prompts from text files an operator may
// edit. The directory is seeded lazily so commands that never generate an
// answer leave no trace on disk.
type PromptStore struct {
	dir string

	seed    sync.Once
	seedErr error

	mu     sync.Mutex
	loaded map[string]string
}

// NewPromptStore uses dir, or ~/.bastion/prompts when dir is empty.
func NewPromptStore(dir string) (*PromptStore, error) {
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("get home directory: %w", err)
		}
		dir = filepath.Join(home, ".bastion", "prompts")
	}
	return &PromptStore{dir: dir, loaded: make(map[string]string)}, nil
}

func (s *PromptStore) Dir() string {
	return s.dir
}

// Load returns the named prompt. A file that cannot be read yields the
// built-in text; only names Bastion does not know are an error.
func (s *PromptStore) Load(name string) (string, error) {
	builtin, known := builtinPrompts[name]
	if !known {
		return "", fmt.Errorf("prompt %q: %w", name, domain.ErrNotFound)
	}

	s.seed.Do(func() { s.seedErr = s.writeDefaults() })
	if s.seedErr != nil {
		return builtin, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if text, ok := s.loaded[name]; ok {
		return text, nil
	}
	text := builtin
	if data, err := os.ReadFile(s.path(name)); err == nil {
		text = strings.TrimSpace(string(data))
	}
	s.loaded[name] = text
	return text, nil
}

// Reload drops cached prompts so the next Load reads the files again.
func (s *PromptStore) Reload() {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.loaded)
}

func (s *PromptStore) path(name string) string {
	return filepath.Join(s.dir, name+".txt")
}

// writeDefaults creates the directory, the built-in prompt files and a
// README. Existing files are left untouched.
func (s *PromptStore) writeDefaults() error {
	if err := os.MkdirAll(s.dir, 0o700); err != nil {
		return fmt.Errorf("create prompt directory: %w", err)
	}
	files := map[string]string{filepath.Join(s.dir, "README.md"): promptReadme}
	for name, text := range builtinPrompts {
		files[s.path(name)] = text
	}
	for path, content := range files {
		if err := writeIfMissing(path, content); err != nil {
			return err
		}
	}
	return nil
}

func writeIfMissing(path, content string) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if errors.Is(err, fs.ErrExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("create %s: %w", filepath.Base(path), err)
	}
	if _, err := f.WriteString(content); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	return f.Close()
}

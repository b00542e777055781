// Package loader reads files from disk into documents ready for ingestion.
package loader

import (
	"bufio"
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/custodia-labs/bastion/internal/core/domain"
	"github.com/custodia-labs/bastion/internal/core/ports/driven"
	"github.com/custodia-labs/bastion/internal/logger"
)

// Ensure Loader implements the interface.
var _ driven.DocumentLoader = (*Loader)(nil)

// MaxFileSize bounds how much of a single file is read into memory.
const MaxFileSize = 32 << 20

// MetaFileName is the metadata key holding the base file name.
const MetaFileName = "file_name"

// MetaTitle is the metadata key holding the normalised title.
const MetaTitle = "title"

// Loader reads a file, strips an optional front-matter header and extracts
// text with the normaliser registered for the file's extension.
type Loader struct {
	registry driven.NormaliserRegistry
}

// New creates a loader backed by registry.
func New(registry driven.NormaliserRegistry) *Loader {
	return &Loader{registry: registry}
}

// Supports reports whether the file extension has a normaliser.
func (l *Loader) Supports(path string) bool {
	return l.registry.Supports(path)
}

// Load reads path into a document. Metadata starts from defaults; source,
// file_name and title always come from the file.
//
// The classification is the higher of the file's own marking and
// defaults["classification"], so a caller can raise but never lower what
// a file declares.
func (l *Loader) Load(ctx context.Context, path string, defaults map[string]string) (*domain.Document, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", path, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%w: %s is a directory", domain.ErrInvalidInput, path)
	}
	if info.Size() > MaxFileSize {
		return nil, fmt.Errorf("%w: %s is larger than %d bytes", domain.ErrInvalidInput, path, MaxFileSize)
	}

	content, err := os.ReadFile(abs)
	if err != nil {
		return nil, err
	}

	header, body := splitFrontMatter(string(content))

	result, err := l.registry.Normalise(ctx, &domain.RawDocument{URI: abs, Content: []byte(body)})
	if err != nil {
		return nil, fmt.Errorf("normalise %s: %w", path, err)
	}

	meta := make(map[string]string, len(defaults)+4)
	for k, v := range defaults {
		if v != "" {
			meta[k] = v
		}
	}
	for k, v := range header {
		if _, set := meta[k]; !set {
			meta[k] = v
		}
	}

	level, err := resolveClassification(header[domain.MetaClassification], defaults[domain.MetaClassification])
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	meta[domain.MetaClassification] = level.String()

	if meta[domain.MetaDocumentType] == "" {
		meta[domain.MetaDocumentType] = documentType(abs)
	}
	meta[domain.MetaSource] = abs
	meta[MetaFileName] = filepath.Base(abs)
	if result.Title != "" {
		meta[MetaTitle] = result.Title
	}

	logger.Debug("loaded %s: %d bytes, classification %s", abs, len(result.Text), level)
	return domain.NewDocument(DocumentID(abs), result.Text, meta)
}

// DocumentID derives a stable id from an absolute path, so loading the
// same file again replaces its earlier chunks.
func DocumentID(absPath string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("file://"+filepath.ToSlash(absPath))).String()
}

// Expand turns a list of files and directories into the supported files
// beneath them, sorted and without duplicates. Hidden entries inside
// directories are skipped.
func (l *Loader) Expand(paths []string) ([]string, error) {
	seen := make(map[string]bool)
	var files []string
	add := func(p string) {
		if abs, err := filepath.Abs(p); err == nil && !seen[abs] {
			seen[abs] = true
			files = append(files, abs)
		}
	}

	for _, root := range paths {
		info, err := os.Stat(root)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			add(root)
			continue
		}
		err = filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if p != root && strings.HasPrefix(d.Name(), ".") {
				if d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
			if !d.IsDir() && l.Supports(p) {
				add(p)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	sort.Strings(files)
	return files, nil
}

func resolveClassification(marked, requested string) (domain.Classification, error) {
	var levels []domain.Classification
	for _, raw := range []string{marked, requested} {
		if strings.TrimSpace(raw) == "" {
			continue
		}
		level, err := domain.ParseClassification(raw)
		if err != nil {
			return 0, err
		}
		levels = append(levels, level)
	}
	if len(levels) == 0 {
		return 0, fmt.Errorf("%w: %s", domain.ErrMissingMetadata, domain.MetaClassification)
	}
	return domain.MaxClassification(levels...), nil
}

func documentType(path string) string {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	if ext == "" {
		return "text"
	}
	return ext
}

// splitFrontMatter separates a leading header from the body. Two forms are
// recognised: a block fenced by "---" lines holding "key: value" pairs,
// or a single first line "classification: LEVEL". Keys are lower-cased.
func splitFrontMatter(content string) (map[string]string, string) {
	content = strings.TrimPrefix(content, "\uFEFF")
	header := make(map[string]string)

	scanner := bufio.NewScanner(strings.NewReader(content))
	scanner.Buffer(make([]byte, 0, 64*1024), MaxFileSize)
	if !scanner.Scan() {
		return header, content
	}
	first := strings.TrimSpace(scanner.Text())

	if key, value, ok := parseField(first); ok && key == domain.MetaClassification {
		header[key] = value
		return header, dropLines(content, 1)
	}
	if first != "---" {
		return header, content
	}

	consumed := 1
	for scanner.Scan() {
		consumed++
		line := strings.TrimSpace(scanner.Text())
		if line == "---" {
			return header, dropLines(content, consumed)
		}
		if key, value, ok := parseField(line); ok {
			header[key] = value
		}
	}
	// Unterminated block: treat the file as having no header.
	return map[string]string{}, content
}

func parseField(line string) (key, value string, ok bool) {
	key, value, ok = strings.Cut(line, ":")
	if !ok {
		return "", "", false
	}
	key = strings.ToLower(strings.TrimSpace(key))
	value = strings.Trim(strings.TrimSpace(value), `"'`)
	if key == "" || value == "" || strings.ContainsAny(key, " \t") {
		return "", "", false
	}
	return key, value, true
}

func dropLines(content string, n int) string {
	for range n {
		i := strings.IndexByte(content, '\n')
		if i < 0 {
			return ""
		}
		content = content[i+1:]
	}
	return content
}

package runstore

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// FileMeta is the fixed metadata header prepended to every persisted file.
type FileMeta struct {
	Source     string
	URL        string
	CapturedAt time.Time
	Query      string
}

// Store writes collection runs under a root directory.
type Store struct {
	// Root is the output directory. Created on first use, parents
	// included.
	Root string
}

// Run is one run directory being written. Files are write-once per path:
// a second write to the same file is a programming error surfaced loudly
// rather than silently clobbered history.
type Run struct {
	Dir      string
	FolderID string

	written map[string]bool
}

// CreateRun creates the run directory for a query. Directory creation is
// idempotent; a FolderID collision (same query within the same second)
// reuses the directory, which is acceptable because file writes inside it
// remain write-once.
func (s *Store) CreateRun(query string, startedAt time.Time) (*Run, error) {
	folderID := FolderID(query, startedAt)
	dir := filepath.Join(s.Root, folderID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("runstore: create run dir: %w", err)
	}
	return &Run{Dir: dir, FolderID: folderID, written: make(map[string]bool)}, nil
}

// WriteQuery persists the original prompt as prompt.md.
func (r *Run) WriteQuery(meta FileMeta) error {
	return r.writeFile("prompt.md", meta, meta.Query)
}

// WriteAnswer persists one engine's answer as <slug>.md. An empty body
// writes the "no response collected" placeholder so every configured engine
// leaves a trace, even the failed ones.
func (r *Run) WriteAnswer(slug string, meta FileMeta, body string) error {
	if strings.TrimSpace(body) == "" {
		body = "(no response collected)"
	}
	return r.writeFile(slug+".md", meta, body)
}

// WriteSynthesis persists the cross-engine analysis as synthesis.md.
func (r *Run) WriteSynthesis(meta FileMeta, body string) error {
	return r.writeFile("synthesis.md", meta, body)
}

func (r *Run) writeFile(name string, meta FileMeta, body string) error {
	if r.written[name] {
		return fmt.Errorf("runstore: %s already written in this run", name)
	}

	var b strings.Builder
	b.WriteString("source: " + meta.Source + "\n")
	b.WriteString("url: " + meta.URL + "\n")
	b.WriteString("captured: " + meta.CapturedAt.UTC().Format(time.RFC3339) + "\n")
	b.WriteString("query: " + sanitizeHeaderValue(meta.Query) + "\n")
	b.WriteString("---\n\n")
	b.WriteString(body)
	if !strings.HasSuffix(body, "\n") {
		b.WriteByte('\n')
	}

	path := filepath.Join(r.Dir, name)
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("runstore: write %s: %w", name, err)
	}
	r.written[name] = true
	return nil
}

// Path returns the absolute path of a file previously written in this run.
func (r *Run) Path(name string) string {
	return filepath.Join(r.Dir, name)
}

// sanitizeHeaderValue keeps the one-line header format intact when the
// query itself contains newlines.
func sanitizeHeaderValue(s string) string {
	s = strings.ReplaceAll(s, "\n", " ")
	return strings.ReplaceAll(s, "\r", " ")
}

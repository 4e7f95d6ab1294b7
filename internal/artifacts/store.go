// Package artifacts owns the on-disk layout of a run's working directory and the
// atomic write primitives every other component writes through.
package artifacts

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// File names inside a working directory.
const (
	AnalysisFile        = "analysis.md"
	MetadataFile        = "metadata.json"
	FeedbackFile        = "reviewer_feedback.json"
	FactCheckFile       = "fact_check.json"
	HistoryFile         = "iteration_history.json"
	MessagesFile        = "messages.jsonl"
	SummaryFile         = "run_summary.json"
	IterationsDir       = "iterations"
	ArchiveDir          = ".archive"
	ArchiveMetadataFile = "archive_metadata.json"
)

// MinAnalysisBytes is the size below which an analysis file is treated as empty output.
const MinAnalysisBytes = 10

// Store resolves working directories below an output root (analyses/ by default).
type Store struct {
	Root string
}

// NewStore creates a store rooted at root.
func NewStore(root string) *Store {
	return &Store{Root: root}
}

// WorkingDir returns the layout for slug.
func (s *Store) WorkingDir(slug string) Dir {
	return Dir(filepath.Join(s.Root, slug))
}

// Slugs lists the working directories that currently exist below the root.
func (s *Store) Slugs() ([]string, error) {
	entries, err := os.ReadDir(s.Root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, &Error{Op: "list", Path: s.Root, Cause: err}
	}
	var slugs []string
	for _, e := range entries {
		if e.IsDir() && !strings.HasPrefix(e.Name(), ".") {
			slugs = append(slugs, e.Name())
		}
	}
	return slugs, nil
}

// Dir is the working directory of one idea.
type Dir string

func (d Dir) String() string          { return string(d) }
func (d Dir) Analysis() string        { return filepath.Join(string(d), AnalysisFile) }
func (d Dir) Metadata() string        { return filepath.Join(string(d), MetadataFile) }
func (d Dir) FeedbackMirror() string  { return filepath.Join(string(d), FeedbackFile) }
func (d Dir) FactCheckMirror() string { return filepath.Join(string(d), FactCheckFile) }
func (d Dir) History() string         { return filepath.Join(string(d), HistoryFile) }
func (d Dir) Messages() string        { return filepath.Join(string(d), MessagesFile) }
func (d Dir) Summary() string         { return filepath.Join(string(d), SummaryFile) }
func (d Dir) Iterations() string      { return filepath.Join(string(d), IterationsDir) }
func (d Dir) Archive() string         { return filepath.Join(string(d), ArchiveDir) }

// IterationAnalysis is the immutable markdown written for iteration n.
func (d Dir) IterationAnalysis(n int) string {
	return filepath.Join(d.Iterations(), fmt.Sprintf("iteration_%d.md", n))
}

// IterationFeedback is the reviewer output for iteration n.
func (d Dir) IterationFeedback(n int) string {
	return filepath.Join(d.Iterations(), fmt.Sprintf("reviewer_feedback_iteration_%d.json", n))
}

// IterationFactCheck is the fact-checker output for iteration n.
func (d Dir) IterationFactCheck(n int) string {
	return filepath.Join(d.Iterations(), fmt.Sprintf("fact_check_iteration_%d.json", n))
}

// Ensure creates the working directory and its iterations subdirectory.
func (d Dir) Ensure() error {
	if err := os.MkdirAll(d.Iterations(), 0o755); err != nil {
		return &Error{Op: "mkdir", Path: d.Iterations(), Cause: err}
	}
	return nil
}

// WriteFileAtomic writes data to a temp file in the destination directory and renames
// it into place, so readers observe either the old content or the new content.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return &Error{Op: "mkdir", Path: dir, Cause: err}
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return &Error{Op: "create temp", Path: path, Cause: err}
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return &Error{Op: "write", Path: path, Cause: err}
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return &Error{Op: "sync", Path: path, Cause: err}
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return &Error{Op: "close", Path: path, Cause: err}
	}
	if err := os.Chmod(tmpName, perm); err != nil {
		cleanup()
		return &Error{Op: "chmod", Path: path, Cause: err}
	}
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return &Error{Op: "rename", Path: path, Cause: err}
	}
	return nil
}

// WriteJSON marshals v with two-space indentation and writes it atomically.
func WriteJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return &Error{Op: "marshal", Path: path, Cause: err}
	}
	data = append(data, '\n')
	return WriteFileAtomic(path, data, 0o644)
}

// ReadJSON reads path and unmarshals it into v.
func ReadJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return &Error{Op: "read", Path: path, Cause: err}
	}
	if err := json.Unmarshal(data, v); err != nil {
		return &Error{Op: "unmarshal", Path: path, Cause: err}
	}
	return nil
}

// CopyFileAtomic mirrors src to dst through WriteFileAtomic.
func CopyFileAtomic(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return &Error{Op: "read", Path: src, Cause: err}
	}
	return WriteFileAtomic(dst, data, 0o644)
}

// AppendLine appends one line to path, creating it if needed.
func AppendLine(path string, line []byte) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return &Error{Op: "open", Path: path, Cause: err}
	}
	defer f.Close() //nolint:errcheck

	buf := make([]byte, 0, len(line)+1)
	buf = append(buf, line...)
	buf = append(buf, '\n')
	if _, err := f.Write(buf); err != nil {
		return &Error{Op: "append", Path: path, Cause: err}
	}
	return nil
}

// Exists reports whether path exists.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// NonTrivial reports whether path is a regular file holding at least minBytes bytes
// of non-whitespace content.
func NonTrivial(path string, minBytes int) bool {
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() || info.Size() < int64(minBytes) {
		return false
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return false
	}
	return len(strings.TrimSpace(string(data))) >= minBytes
}

// TextStats returns the word and character counts of content.
func TextStats(content string) (words, chars int) {
	return len(strings.Fields(content)), len([]rune(content))
}

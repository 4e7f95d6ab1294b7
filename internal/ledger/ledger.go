// Package ledger manages the markdown idea ledgers of a batch: pending.md,
// completed.md and failed.md. Each idea is a level-1 heading holding the title
// followed by its description.
package ledger

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"

	"github.com/jonathan/idea-forge/internal/artifacts"
	"github.com/jonathan/idea-forge/internal/types"
)

// Ledger file names.
const (
	PendingFile   = "pending.md"
	CompletedFile = "completed.md"
	FailedFile    = "failed.md"
)

var md = goldmark.New()

// ErrSplitsIdea is returned for an idea that would read back from a ledger as
// something other than itself, such as a description holding a level-1 heading.
var ErrSplitsIdea = errors.New("idea does not survive a ledger round trip")

// Files guards the three ledgers of one directory. Every rewrite goes through
// a temp file and a rename; a move touches two files and is not atomic as a whole.
type Files struct {
	Dir string
	mu  sync.Mutex
}

// NewFiles returns the ledgers stored in dir.
func NewFiles(dir string) *Files {
	return &Files{Dir: dir}
}

func (f *Files) path(name string) string {
	return filepath.Join(f.Dir, name)
}

// ReadPending returns the ideas waiting in pending.md, in file order.
func (f *Files) ReadPending() ([]types.Idea, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return readLedger(f.path(PendingFile))
}

// ReadCompleted returns the ideas recorded in completed.md.
func (f *Files) ReadCompleted() ([]types.Idea, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return readLedger(f.path(CompletedFile))
}

// ReadFailed returns the ideas recorded in failed.md.
func (f *Files) ReadFailed() ([]types.Idea, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return readLedger(f.path(FailedFile))
}

// AddPending appends idea to pending.md. Ideas rejected by CheckIdea are not written.
func (f *Files) AddPending(idea types.Idea) error {
	if err := CheckIdea(idea); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return appendIdea(f.path(PendingFile), idea)
}

// MoveToCompleted removes idea from pending.md and appends it to completed.md.
func (f *Files) MoveToCompleted(idea types.Idea) error {
	return f.move(idea, CompletedFile)
}

// MoveToFailed removes idea from pending.md and appends it to failed.md with
// the failure reason under its description.
func (f *Files) MoveToFailed(idea types.Idea, reason string) error {
	if reason != "" {
		idea.Description = strings.TrimSpace(idea.Description + "\n\nError: " + oneLine(reason))
	}
	return f.move(idea, FailedFile)
}

// move appends to the target before removing from pending, so a crash in
// between duplicates the idea instead of losing it.
func (f *Files) move(idea types.Idea, target string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := appendIdea(f.path(target), idea); err != nil {
		return err
	}

	pendingPath := f.path(PendingFile)
	pending, err := readLedger(pendingPath)
	if err != nil {
		return err
	}
	remaining, removed := removeFirst(pending, idea.Title)
	if !removed {
		return nil
	}
	return writeLedger(pendingPath, remaining)
}

// CheckIdea reports whether idea reads back from a ledger as exactly one idea
// with the same title. Titles are compared in their stored form, so inline
// markup and repeated spaces do not count as a difference.
func CheckIdea(idea types.Idea) error {
	ideas := Parse(Format([]types.Idea{idea}))
	if len(ideas) != 1 || ideas[0].Title != StoredTitle(idea.Title) || ideas[0].Title == "" {
		return fmt.Errorf("%w: %q", ErrSplitsIdea, oneLine(idea.Title))
	}
	return nil
}

// StoredTitle returns title as Parse reports it after Format writes it:
// whitespace collapsed and inline markdown reduced to its text.
func StoredTitle(title string) string {
	ideas := Parse(Format([]types.Idea{{Title: title}}))
	if len(ideas) == 0 {
		return oneLine(title)
	}
	return ideas[0].Title
}

func removeFirst(ideas []types.Idea, title string) ([]types.Idea, bool) {
	want := StoredTitle(title)
	for i, idea := range ideas {
		if StoredTitle(idea.Title) == want {
			out := make([]types.Idea, 0, len(ideas)-1)
			out = append(out, ideas[:i]...)
			return append(out, ideas[i+1:]...), true
		}
	}
	return ideas, false
}

func appendIdea(path string, idea types.Idea) error {
	ideas, err := readLedger(path)
	if err != nil {
		return err
	}
	return writeLedger(path, append(ideas, idea))
}

func readLedger(path string) ([]types.Idea, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read ledger %s: %w", path, err)
	}
	return Parse(data), nil
}

func writeLedger(path string, ideas []types.Idea) error {
	if err := artifacts.WriteFileAtomic(path, Format(ideas), 0o644); err != nil {
		return fmt.Errorf("failed to write ledger %s: %w", path, err)
	}
	return nil
}

// Parse splits a ledger into ideas. Only level-1 headings start a new idea;
// text before the first heading is ignored, and headings inside code blocks
// stay part of the description.
func Parse(src []byte) []types.Idea {
	doc := md.Parser().Parse(text.NewReader(src))

	type mark struct {
		title      string
		lineStart  int
		contentEnd int
	}
	var marks []mark
	for n := doc.FirstChild(); n != nil; n = n.NextSibling() {
		h, ok := n.(*ast.Heading)
		if !ok || h.Level != 1 || h.Lines().Len() == 0 {
			continue
		}
		seg := h.Lines().At(0)
		marks = append(marks, mark{
			title:      strings.TrimSpace(string(h.Text(src))),
			lineStart:  lineStart(src, seg.Start),
			contentEnd: skipSetextUnderline(src, lineEnd(src, seg.Stop)),
		})
	}

	ideas := make([]types.Idea, 0, len(marks))
	for i, m := range marks {
		end := len(src)
		if i+1 < len(marks) {
			end = marks[i+1].lineStart
		}
		desc := ""
		if m.contentEnd < end {
			desc = strings.TrimSpace(string(src[m.contentEnd:end]))
		}
		ideas = append(ideas, types.Idea{Title: m.title, Description: desc})
	}
	return ideas
}

// Format renders ideas as "# title\n\ndescription" blocks separated by a blank line.
func Format(ideas []types.Idea) []byte {
	var buf bytes.Buffer
	for i, idea := range ideas {
		if i > 0 {
			buf.WriteString("\n")
		}
		buf.WriteString("# ")
		buf.WriteString(oneLine(idea.Title))
		buf.WriteString("\n")
		if desc := strings.TrimSpace(idea.Description); desc != "" {
			buf.WriteString("\n")
			buf.WriteString(desc)
			buf.WriteString("\n")
		}
	}
	return buf.Bytes()
}

func lineStart(src []byte, pos int) int {
	for pos > 0 && src[pos-1] != '\n' {
		pos--
	}
	return pos
}

func lineEnd(src []byte, pos int) int {
	for pos < len(src) && src[pos] != '\n' {
		pos++
	}
	if pos < len(src) {
		pos++
	}
	return pos
}

// skipSetextUnderline steps over a "====" line that turns the previous line
// into a level-1 heading.
func skipSetextUnderline(src []byte, pos int) int {
	end := lineEnd(src, pos)
	line := strings.TrimSpace(string(src[pos:end]))
	if line != "" && strings.Trim(line, "=") == "" {
		return end
	}
	return pos
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

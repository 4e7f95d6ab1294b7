// Package archive moves a working directory's previous run into .archive/ before a
// new run starts, and enforces per-run-type retention.
package archive

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"time"

	"github.com/jonathan/idea-forge/internal/artifacts"
	"github.com/jonathan/idea-forge/internal/types"
)

// DefaultRetention is the number of archives kept per run type when none is configured.
const DefaultRetention = 5

// MigratedDir receives legacy files found in a working directory without a current analysis.
const MigratedDir = "migrated"

// knownFiles are the top-level run artifacts moved into an archive.
var knownFiles = []string{
	artifacts.AnalysisFile,
	artifacts.MetadataFile,
	artifacts.FeedbackFile,
	artifacts.FactCheckFile,
	artifacts.HistoryFile,
	artifacts.MessagesFile,
	artifacts.SummaryFile,
}

// legacyPatterns match artifacts left behind by the older flat layout.
var legacyPatterns = []string{
	"analysis_v*.md",
	"feedback_v*.json",
	"*_iteration_*.md",
}

var archiveNameRe = regexp.MustCompile(`^([a-z]+)_(\d{3,})_(\d{8}_\d{6})$`)

// Metadata is written as archive_metadata.json inside each archive.
type Metadata struct {
	ArchivedAt time.Time     `json:"archived_at"`
	RunType    types.RunType `json:"run_type"`
	RunNumber  int           `json:"run_number"`
	Files      []string      `json:"files"`
}

// Entry describes one archive directory.
type Entry struct {
	Name       string        `json:"name"`
	Path       string        `json:"path"`
	RunType    types.RunType `json:"run_type"`
	RunNumber  int           `json:"run_number"`
	ArchivedAt time.Time     `json:"archived_at"`
	Files      []string      `json:"files,omitempty"`
}

// Manager archives and prunes working directories.
// Sequence numbers come from the directory listing at call time, so two runs must
// never archive the same working directory concurrently.
type Manager struct {
	retention map[types.RunType]int
	logger    *slog.Logger
	now       func() time.Time
}

// NewManager creates a Manager. Run types missing from retention keep DefaultRetention archives.
func NewManager(retention map[types.RunType]int, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	caps := make(map[types.RunType]int, len(retention))
	for k, v := range retention {
		caps[k] = v
	}
	return &Manager{retention: caps, logger: logger, now: time.Now}
}

// Retention returns the archive cap for runType.
func (m *Manager) Retention(runType types.RunType) int {
	if n, ok := m.retention[runType]; ok && n > 0 {
		return n
	}
	return DefaultRetention
}

// ArchiveCurrent moves the previous run's artifacts out of workingDir.
// It returns the archive path, or "" when there was no previous run to archive.
// A failure part-way through leaves a partial archive behind; callers must not
// start writing into workingDir when an error is returned.
func (m *Manager) ArchiveCurrent(workingDir string, runType types.RunType) (string, error) {
	dir := artifacts.Dir(workingDir)

	if !artifacts.Exists(dir.Analysis()) {
		if err := m.migrateLegacy(dir); err != nil {
			return "", err
		}
		return "", nil
	}

	root := dir.Archive()
	if err := os.MkdirAll(root, 0o755); err != nil {
		return "", &Error{Op: "create archive root", Path: root, Cause: err}
	}

	seq, err := nextSequence(root, runType)
	if err != nil {
		return "", err
	}

	archivedAt := m.now()
	name := fmt.Sprintf("%s_%03d_%s", runType, seq, archivedAt.Format(types.RunIDLayout))
	dest := filepath.Join(root, name)
	if err := os.Mkdir(dest, 0o755); err != nil {
		return "", &Error{Op: "create archive", Path: dest, Cause: err}
	}

	var moved []string
	for _, file := range append(knownFiles, artifacts.IterationsDir) {
		src := filepath.Join(workingDir, file)
		if !artifacts.Exists(src) {
			continue
		}
		if err := os.Rename(src, filepath.Join(dest, file)); err != nil {
			return dest, &Error{Op: "move " + file, Path: dest, Cause: err}
		}
		moved = append(moved, file)
	}

	meta := Metadata{
		ArchivedAt: archivedAt.UTC(),
		RunType:    runType,
		RunNumber:  seq,
		Files:      moved,
	}
	if err := artifacts.WriteJSON(filepath.Join(dest, artifacts.ArchiveMetadataFile), meta); err != nil {
		return dest, &Error{Op: "write metadata", Path: dest, Cause: err}
	}

	m.logger.Info("archived previous run",
		"dir", workingDir, "archive", name, "files", len(moved))

	if _, err := m.pruneType(root, runType); err != nil {
		return dest, err
	}
	return dest, nil
}

// List returns the archives of workingDir, newest first.
func (m *Manager) List(workingDir string) ([]Entry, error) {
	root := artifacts.Dir(workingDir).Archive()
	entries, err := readEntries(root)
	if err != nil {
		return nil, err
	}
	sortNewestFirst(entries)
	return entries, nil
}

// Prune applies retention to every run type found in workingDir's archive and
// returns the removed archive paths.
func (m *Manager) Prune(workingDir string) ([]string, error) {
	root := artifacts.Dir(workingDir).Archive()
	entries, err := readEntries(root)
	if err != nil {
		return nil, err
	}

	seen := map[types.RunType]bool{}
	var removed []string
	for _, e := range entries {
		if seen[e.RunType] {
			continue
		}
		seen[e.RunType] = true
		paths, err := m.pruneType(root, e.RunType)
		removed = append(removed, paths...)
		if err != nil {
			return removed, err
		}
	}
	return removed, nil
}

func (m *Manager) pruneType(root string, runType types.RunType) ([]string, error) {
	entries, err := readEntries(root)
	if err != nil {
		return nil, err
	}

	var ofType []Entry
	for _, e := range entries {
		if e.RunType == runType {
			ofType = append(ofType, e)
		}
	}
	sortNewestFirst(ofType)

	keep := m.Retention(runType)
	if len(ofType) <= keep {
		return nil, nil
	}

	var removed []string
	for _, e := range ofType[keep:] {
		if err := os.RemoveAll(e.Path); err != nil {
			return removed, &Error{Op: "remove old archive", Path: e.Path, Cause: err}
		}
		removed = append(removed, e.Path)
		m.logger.Debug("pruned archive", "archive", e.Name, "run_type", runType)
	}
	return removed, nil
}

func (m *Manager) migrateLegacy(dir artifacts.Dir) error {
	var legacy []string
	for _, pattern := range legacyPatterns {
		matches, err := filepath.Glob(filepath.Join(dir.String(), pattern))
		if err != nil {
			return &Error{Op: "scan legacy files", Path: dir.String(), Cause: err}
		}
		legacy = append(legacy, matches...)
	}
	versions := filepath.Join(dir.String(), "versions")
	if info, err := os.Stat(versions); err == nil && info.IsDir() {
		legacy = append(legacy, versions)
	}
	if len(legacy) == 0 {
		return nil
	}

	dest := filepath.Join(dir.Archive(), MigratedDir)
	if err := os.MkdirAll(dest, 0o755); err != nil {
		return &Error{Op: "create migration dir", Path: dest, Cause: err}
	}
	for _, src := range legacy {
		target := filepath.Join(dest, filepath.Base(src))
		if artifacts.Exists(target) {
			continue
		}
		if err := os.Rename(src, target); err != nil {
			return &Error{Op: "migrate " + filepath.Base(src), Path: dest, Cause: err}
		}
	}
	m.logger.Info("migrated legacy artifacts", "dir", dir.String(), "files", len(legacy))
	return nil
}

func nextSequence(root string, runType types.RunType) (int, error) {
	entries, err := readEntries(root)
	if err != nil {
		return 0, err
	}
	highest := 0
	for _, e := range entries {
		if e.RunType == runType && e.RunNumber > highest {
			highest = e.RunNumber
		}
	}
	return highest + 1, nil
}

// readEntries parses every archive directory below root. Directories that do not
// follow the archive naming scheme, such as migrated/, are ignored.
func readEntries(root string) ([]Entry, error) {
	children, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, &Error{Op: "list archives", Path: root, Cause: err}
	}

	var entries []Entry
	for _, child := range children {
		if !child.IsDir() {
			continue
		}
		match := archiveNameRe.FindStringSubmatch(child.Name())
		if match == nil {
			continue
		}
		seq, _ := strconv.Atoi(match[2])
		entry := Entry{
			Name:      child.Name(),
			Path:      filepath.Join(root, child.Name()),
			RunType:   types.RunType(match[1]),
			RunNumber: seq,
		}

		var meta Metadata
		if err := artifacts.ReadJSON(filepath.Join(entry.Path, artifacts.ArchiveMetadataFile), &meta); err == nil && !meta.ArchivedAt.IsZero() {
			entry.ArchivedAt = meta.ArchivedAt
			entry.Files = meta.Files
		} else if info, err := child.Info(); err == nil {
			entry.ArchivedAt = info.ModTime()
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func sortNewestFirst(entries []Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].ArchivedAt.Equal(entries[j].ArchivedAt) {
			return entries[i].RunNumber > entries[j].RunNumber
		}
		return entries[i].ArchivedAt.After(entries[j].ArchivedAt)
	})
}

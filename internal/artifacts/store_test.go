package artifacts

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDir_Layout(t *testing.T) {
	store := NewStore("analyses")
	d := store.WorkingDir("ai-fitness-app")

	assert.Equal(t, filepath.Join("analyses", "ai-fitness-app", "analysis.md"), d.Analysis())
	assert.Equal(t, filepath.Join("analyses", "ai-fitness-app", "iterations", "iteration_2.md"), d.IterationAnalysis(2))
	assert.Equal(t, filepath.Join("analyses", "ai-fitness-app", "iterations", "reviewer_feedback_iteration_1.json"), d.IterationFeedback(1))
	assert.Equal(t, filepath.Join("analyses", "ai-fitness-app", "iterations", "fact_check_iteration_3.json"), d.IterationFactCheck(3))
	assert.Equal(t, filepath.Join("analyses", "ai-fitness-app", ".archive"), d.Archive())
}

func TestWriteFileAtomic_ReplacesContentWithoutTempLeftovers(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "out.md")

	require.NoError(t, WriteFileAtomic(path, []byte("first"), 0o644))
	require.NoError(t, WriteFileAtomic(path, []byte("second"), 0o644))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "second", string(data))

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "out.md", entries[0].Name())
}

func TestWriteFileAtomic_ConcurrentWritersLeaveWholeFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.txt")
	payloads := []string{strings.Repeat("a", 4096), strings.Repeat("b", 4096), strings.Repeat("c", 4096)}

	var wg sync.WaitGroup
	for _, p := range payloads {
		wg.Add(1)
		go func(p string) {
			defer wg.Done()
			assert.NoError(t, WriteFileAtomic(path, []byte(p), 0o644))
		}(p)
	}
	wg.Wait()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, payloads, string(data))
}

func TestWriteJSON_ReadJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "doc.json")
	in := map[string]any{"recommendation": "approve", "count": 2}

	require.NoError(t, WriteJSON(path, in))

	var out map[string]any
	require.NoError(t, ReadJSON(path, &out))
	assert.Equal(t, "approve", out["recommendation"])
	assert.Equal(t, float64(2), out["count"])
}

func TestReadJSON_Missing(t *testing.T) {
	var out map[string]any
	err := ReadJSON(filepath.Join(t.TempDir(), "missing.json"), &out)
	require.Error(t, err)

	var artErr *Error
	require.True(t, errors.As(err, &artErr))
	assert.Equal(t, "read", artErr.Op)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestCopyFileAtomic(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "iteration_1.md")
	dst := filepath.Join(dir, "analysis.md")
	require.NoError(t, os.WriteFile(src, []byte("# Analysis"), 0o644))

	require.NoError(t, CopyFileAtomic(src, dst))

	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "# Analysis", string(data))
}

func TestAppendLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "messages.jsonl")
	require.NoError(t, AppendLine(path, []byte(`{"n":1}`)))
	require.NoError(t, AppendLine(path, []byte(`{"n":2}`)))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "{\"n\":1}\n{\"n\":2}\n", string(data))
}

func TestNonTrivial(t *testing.T) {
	dir := t.TempDir()
	empty := filepath.Join(dir, "empty.md")
	blank := filepath.Join(dir, "blank.md")
	full := filepath.Join(dir, "full.md")
	require.NoError(t, os.WriteFile(empty, nil, 0o644))
	require.NoError(t, os.WriteFile(blank, []byte("   \n\n\t      \n"), 0o644))
	require.NoError(t, os.WriteFile(full, []byte("# Market analysis\n\nA real paragraph."), 0o644))

	assert.False(t, NonTrivial(empty, MinAnalysisBytes))
	assert.False(t, NonTrivial(blank, MinAnalysisBytes))
	assert.True(t, NonTrivial(full, MinAnalysisBytes))
	assert.False(t, NonTrivial(filepath.Join(dir, "missing.md"), MinAnalysisBytes))
	assert.False(t, NonTrivial(dir, MinAnalysisBytes))
}

func TestTextStats(t *testing.T) {
	words, chars := TextStats("one two  three\nfour")
	assert.Equal(t, 4, words)
	assert.Equal(t, 19, chars)
}

func TestStore_Slugs(t *testing.T) {
	root := t.TempDir()
	store := NewStore(root)
	require.NoError(t, store.WorkingDir("alpha").Ensure())
	require.NoError(t, store.WorkingDir("beta").Ensure())
	require.NoError(t, os.MkdirAll(filepath.Join(root, ".hidden"), 0o755))

	slugs, err := store.Slugs()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"alpha", "beta"}, slugs)

	missing := NewStore(filepath.Join(root, "nope"))
	slugs, err = missing.Slugs()
	require.NoError(t, err)
	assert.Empty(t, slugs)
}

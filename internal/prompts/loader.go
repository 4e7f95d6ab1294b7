// Package prompts provides a loader for externalized agent prompt templates.
// Prompts are stored as JSON files keyed by role and embedded at compile time;
// a directory of same-named files can override them.
package prompts

import (
	"embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

//go:embed *.json
var promptFiles embed.FS

// Loader reads and caches prompt files.
type Loader struct {
	dir string

	mu    sync.RWMutex
	cache map[string]map[string]string
}

// NewLoader creates a loader. dir may be empty to use only the embedded prompts.
func NewLoader(dir string) *Loader {
	return &Loader{dir: dir, cache: make(map[string]map[string]string)}
}

// Get retrieves a prompt by filename and key.
// The filename should not include the path (e.g., "reviewer.json").
func (l *Loader) Get(filename, key string) (string, error) {
	prompts, err := l.loadFile(filename)
	if err != nil {
		return "", err
	}

	prompt, exists := prompts[key]
	if !exists {
		return "", fmt.Errorf("prompt key %q not found in %s", key, filename)
	}
	return prompt, nil
}

// MustGet retrieves a prompt by filename and key, panicking if not found.
func (l *Loader) MustGet(filename, key string) string {
	prompt, err := l.Get(filename, key)
	if err != nil {
		panic(fmt.Sprintf("failed to load prompt: %v", err))
	}
	return prompt
}

// Render looks up a prompt and fills its placeholders from data.
func (l *Loader) Render(filename, key string, data map[string]string) (string, error) {
	tmpl, err := l.Get(filename, key)
	if err != nil {
		return "", err
	}
	return Format(tmpl, data), nil
}

// List returns the sorted prompt keys in a file.
func (l *Loader) List(filename string) ([]string, error) {
	prompts, err := l.loadFile(filename)
	if err != nil {
		return nil, err
	}

	keys := make([]string, 0, len(prompts))
	for key := range prompts {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys, nil
}

// ClearCache drops every parsed file so the next lookup re-reads it.
func (l *Loader) ClearCache() {
	l.mu.Lock()
	l.cache = make(map[string]map[string]string)
	l.mu.Unlock()
}

// Format replaces template placeholders in the form {{.Key}} with values from data.
func Format(template string, data map[string]string) string {
	result := template
	for key, value := range data {
		placeholder := fmt.Sprintf("{{.%s}}", key)
		result = strings.ReplaceAll(result, placeholder, value)
	}
	return result
}

func (l *Loader) loadFile(filename string) (map[string]string, error) {
	l.mu.RLock()
	if prompts, exists := l.cache[filename]; exists {
		l.mu.RUnlock()
		return prompts, nil
	}
	l.mu.RUnlock()

	data, err := l.read(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read prompt file %s: %w", filename, err)
	}

	var prompts map[string]string
	if err := json.Unmarshal(data, &prompts); err != nil {
		return nil, fmt.Errorf("failed to parse prompt file %s: %w", filename, err)
	}

	l.mu.Lock()
	l.cache[filename] = prompts
	l.mu.Unlock()
	return prompts, nil
}

func (l *Loader) read(filename string) ([]byte, error) {
	if l.dir != "" {
		data, err := os.ReadFile(filepath.Join(l.dir, filename))
		if err == nil {
			return data, nil
		}
		if !os.IsNotExist(err) {
			return nil, err
		}
	}
	return promptFiles.ReadFile(filename)
}

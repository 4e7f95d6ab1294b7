// Package schemas derives validation schemas from JSON templates and validates and
// repairs agent-produced JSON against them.
package schemas

import (
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

// Schema types with embedded default templates.
const (
	TypeReviewer    = "reviewer"
	TypeFactChecker = "fact_checker"
)

//go:embed templates/*.json
var templateFS embed.FS

// Registry loads and caches one Schema per schema type.
// Templates in the override directory win over the embedded defaults.
// A Schema is never mutated after derivation, so cached values are shared freely.
type Registry struct {
	dir string

	mu    sync.Mutex
	cache map[string]*Schema
}

// NewRegistry creates a registry. dir may be empty to use only embedded templates.
func NewRegistry(dir string) *Registry {
	return &Registry{
		dir:   dir,
		cache: make(map[string]*Schema),
	}
}

// Get returns the schema for schemaType, deriving it on first use.
func (r *Registry) Get(schemaType string) (*Schema, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.cache[schemaType]; ok {
		return s, nil
	}

	data, source, err := r.readTemplate(schemaType)
	if err != nil {
		return nil, err
	}

	s, err := Derive(schemaType, data)
	if err != nil {
		var loadErr *SchemaLoadError
		if errors.As(err, &loadErr) {
			loadErr.Path = source
		}
		return nil, err
	}

	r.cache[schemaType] = s
	return s, nil
}

// Register derives a schema from template bytes and caches it under schemaType.
func (r *Registry) Register(schemaType string, template []byte) error {
	s, err := Derive(schemaType, template)
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.cache[schemaType] = s
	r.mu.Unlock()
	return nil
}

// Types lists the schema types available from embedded templates, the override
// directory and explicit registrations.
func (r *Registry) Types() []string {
	seen := map[string]bool{}
	if entries, err := fs.ReadDir(templateFS, "templates"); err == nil {
		for _, e := range entries {
			seen[trimJSONExt(e.Name())] = true
		}
	}
	if r.dir != "" {
		if entries, err := os.ReadDir(r.dir); err == nil {
			for _, e := range entries {
				if !e.IsDir() && filepath.Ext(e.Name()) == ".json" {
					seen[trimJSONExt(e.Name())] = true
				}
			}
		}
	}
	r.mu.Lock()
	for k := range r.cache {
		seen[k] = true
	}
	r.mu.Unlock()

	types := make([]string, 0, len(seen))
	for k := range seen {
		types = append(types, k)
	}
	sort.Strings(types)
	return types
}

func (r *Registry) readTemplate(schemaType string) ([]byte, string, error) {
	name := schemaType + ".json"
	if r.dir != "" {
		path := filepath.Join(r.dir, name)
		data, err := os.ReadFile(path)
		if err == nil {
			return data, path, nil
		}
		if !os.IsNotExist(err) {
			return nil, path, &SchemaLoadError{Path: path, Message: "cannot read template", Cause: err}
		}
	}

	embedded := "templates/" + name
	data, err := templateFS.ReadFile(embedded)
	if err != nil {
		return nil, embedded, &SchemaLoadError{
			Path:    embedded,
			Message: fmt.Sprintf("unknown schema type %q", schemaType),
			Cause:   err,
		}
	}
	return data, embedded, nil
}

func trimJSONExt(name string) string {
	return name[:len(name)-len(filepath.Ext(name))]
}

// parseTemplate decodes a template document, which must be a JSON object.
func parseTemplate(data []byte) (map[string]any, error) {
	var tmpl map[string]any
	if err := json.Unmarshal(data, &tmpl); err != nil {
		return nil, err
	}
	if tmpl == nil {
		return nil, fmt.Errorf("template is not a JSON object")
	}
	return tmpl, nil
}

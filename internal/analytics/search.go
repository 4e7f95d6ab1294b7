package analytics

import (
	"encoding/json"
	"sort"
	"strings"
)

// ParseSearchResults extracts {title, url} hits from a search tool payload.
// The payload may be a JSON document or a JSON string holding one; every object
// with a non-empty url is collected, at any depth.
func ParseSearchResults(content json.RawMessage) []SearchResult {
	if len(content) == 0 {
		return nil
	}

	var doc any
	if err := json.Unmarshal(content, &doc); err != nil {
		return nil
	}
	if s, ok := doc.(string); ok {
		if err := json.Unmarshal([]byte(strings.TrimSpace(s)), &doc); err != nil {
			return nil
		}
	}

	var results []SearchResult
	collectResults(doc, &results)
	return results
}

func collectResults(v any, out *[]SearchResult) {
	switch t := v.(type) {
	case map[string]any:
		url, _ := t["url"].(string)
		if url != "" {
			title, _ := t["title"].(string)
			*out = append(*out, SearchResult{Title: title, URL: url})
			return
		}
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			collectResults(t[k], out)
		}
	case []any:
		for _, child := range t {
			collectResults(child, out)
		}
	}
}

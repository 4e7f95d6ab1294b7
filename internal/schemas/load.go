package schemas

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// LoadFile reads an agent-produced JSON document, tolerating markdown code fences
// and prose around the object.
func LoadFile(path string) (map[string]any, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return Parse(raw)
}

// Parse decodes agent output into a JSON object after cleaning it.
func Parse(raw []byte) (map[string]any, error) {
	cleaned := CleanJSONBlock(string(raw))
	if cleaned == "" {
		return nil, fmt.Errorf("document is empty")
	}

	var data map[string]any
	if err := json.Unmarshal([]byte(cleaned), &data); err != nil {
		return nil, fmt.Errorf("failed to parse JSON: %w", err)
	}
	if data == nil {
		return nil, fmt.Errorf("document is not a JSON object")
	}
	return data, nil
}

// CleanJSONBlock removes markdown code block wrappers and surrounding prose from JSON text.
func CleanJSONBlock(text string) string {
	text = strings.TrimSpace(text)

	if start := strings.Index(text, "```"); start >= 0 {
		body := text[start+3:]
		// Skip a language identifier on the fence line
		if idx := strings.Index(body, "\n"); idx >= 0 {
			firstLine := strings.TrimSpace(body[:idx])
			if len(firstLine) < 20 && !strings.Contains(firstLine, " ") && !strings.Contains(firstLine, "{") {
				body = body[idx+1:]
			}
		}
		if end := strings.Index(body, "```"); end >= 0 {
			body = body[:end]
		}
		return strings.TrimSpace(body)
	}

	if strings.HasPrefix(text, "{") {
		return text
	}
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		return text[start : end+1]
	}
	return text
}

package config

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	yaml "go.yaml.in/yaml/v3"
)

// toJSON converts .yaml/.yml content to JSON so a single strict decoder
// serves both formats. Anything else is assumed to be JSON already.
func toJSON(path string, data []byte) ([]byte, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
	default:
		return data, nil
	}

	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse yaml %s: %w", path, err)
	}
	if doc == nil {
		// empty file: keep every default
		return []byte("{}"), nil
	}
	out, err := json.Marshal(stringKeys(doc))
	if err != nil {
		return nil, fmt.Errorf("convert yaml %s: %w", path, err)
	}
	return out, nil
}

// stringKeys rewrites map[any]any nodes, which json.Marshal rejects.
func stringKeys(node any) any {
	switch n := node.(type) {
	case map[any]any:
		m := make(map[string]any, len(n))
		for k, v := range n {
			m[fmt.Sprint(k)] = stringKeys(v)
		}
		return m
	case map[string]any:
		for k, v := range n {
			n[k] = stringKeys(v)
		}
		return n
	case []any:
		for i, v := range n {
			n[i] = stringKeys(v)
		}
		return n
	default:
		return node
	}
}

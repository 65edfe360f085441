// Package document converts configuration payloads between their submitted
// YAML/JSON text, a normalized in-memory tree, and the canonical JSON form
// that is stored and rendered.
package document

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Document is a configuration tree whose root is a mapping.
type Document = map[string]any

// ErrEmpty is returned when the submitted text holds no document.
var ErrEmpty = errors.New("Empty YAML content") //nolint:revive,staticcheck // message is client-facing

// Parse parses YAML (JSON is accepted as a subset) into a normalized tree.
// Mappings become map[string]any and sequences []any.
func Parse(raw []byte) (any, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, ErrEmpty
	}
	var tree any
	if err := yaml.Unmarshal(raw, &tree); err != nil {
		return nil, fmt.Errorf("Invalid YAML: %w", err) //nolint:revive,staticcheck // message is client-facing
	}
	if tree == nil {
		return nil, ErrEmpty
	}
	return normalize(tree), nil
}

// AsDocument returns tree as a Document when its root is a mapping.
func AsDocument(tree any) (Document, bool) {
	doc, ok := tree.(map[string]any)
	return doc, ok
}

// Marshal renders tree as indented JSON without HTML escaping.
func Marshal(tree any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(tree); err != nil {
		return nil, fmt.Errorf("encoding document: %w", err)
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// Decode reads stored JSON back into a Document, keeping integers integral.
func Decode(data []byte) (Document, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var tree any
	if err := dec.Decode(&tree); err != nil {
		return nil, fmt.Errorf("decoding document: %w", err)
	}
	doc, ok := AsDocument(fromJSON(tree))
	if !ok {
		return nil, errors.New("decoding document: root is not an object")
	}
	return doc, nil
}

// Clone returns a deep copy of tree.
func Clone(tree any) any {
	switch v := tree.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, val := range v {
			out[k] = Clone(val)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, val := range v {
			out[i] = Clone(val)
		}
		return out
	default:
		return v
	}
}

func normalize(node any) any {
	switch v := node.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, val := range v {
			out[k] = normalize(val)
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(v))
		for k, val := range v {
			out[keyString(k)] = normalize(val)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, val := range v {
			out[i] = normalize(val)
		}
		return out
	case time.Time:
		return v.Format(time.RFC3339Nano)
	default:
		return v
	}
}

func keyString(k any) string {
	switch v := k.(type) {
	case nil:
		return "null"
	case string:
		return v
	case bool:
		return strings.ToLower(fmt.Sprint(v))
	default:
		return fmt.Sprint(v)
	}
}

func fromJSON(node any) any {
	switch v := node.(type) {
	case map[string]any:
		for k, val := range v {
			v[k] = fromJSON(val)
		}
		return v
	case []any:
		for i, val := range v {
			v[i] = fromJSON(val)
		}
		return v
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return i
		}
		f, _ := v.Float64()
		return f
	default:
		return v
	}
}

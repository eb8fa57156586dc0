// Package notebook decodes, encodes and lightly validates nbformat v4 documents.
package notebook

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"unicode/utf8"
)

// Current format version written by New.
const (
	Major = 4
	Minor = 5
)

// Notebook is a decoded notebook document. Keys are kept as-is so documents written
// by newer clients round-trip unchanged.
type Notebook map[string]any

var (
	ErrNotUTF8    = errors.New("notebook is not UTF-8 encoded")
	ErrNotObject  = errors.New("notebook is not a JSON object")
	ErrValidation = errors.New("notebook validation failed")
)

// New returns an empty v4.5 notebook.
func New() Notebook {
	return Notebook{
		"cells":          []any{},
		"metadata":       map[string]any{},
		"nbformat":       Major,
		"nbformat_minor": Minor,
	}
}

// Parse decodes raw bytes into a Notebook.
func Parse(data []byte) (Notebook, error) {
	if !utf8.Valid(data) {
		return nil, ErrNotUTF8
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("decode notebook: %w", err)
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, ErrNotObject
	}
	return Notebook(obj), nil
}

// FromContent converts client supplied content (already JSON-decoded) into a Notebook.
func FromContent(content any) (Notebook, error) {
	switch v := content.(type) {
	case Notebook:
		return v, nil
	case map[string]any:
		return Notebook(v), nil
	case string:
		return Parse([]byte(v))
	case json.RawMessage:
		return Parse(v)
	}
	return nil, ErrNotObject
}

// Encode serializes nb with one-space indentation and sorted keys, followed by a
// newline, the layout notebook tools write to disk.
func Encode(nb Notebook) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", " ")
	if err := enc.Encode(map[string]any(nb)); err != nil {
		return nil, fmt.Errorf("encode notebook: %w", err)
	}
	return buf.Bytes(), nil
}

var cellTypes = map[string]bool{"code": true, "markdown": true, "raw": true}

// Validate checks the structural rules of nbformat 4. It reports the first problem
// found, wrapped in ErrValidation.
func Validate(nb Notebook) error {
	major, ok := intValue(nb["nbformat"])
	if !ok {
		return fmt.Errorf("%w: missing nbformat", ErrValidation)
	}
	if major != Major {
		return fmt.Errorf("%w: unsupported nbformat %d", ErrValidation, major)
	}
	if _, ok := nb["metadata"].(map[string]any); !ok {
		return fmt.Errorf("%w: metadata must be an object", ErrValidation)
	}
	cells, ok := nb["cells"].([]any)
	if !ok {
		return fmt.Errorf("%w: cells must be a list", ErrValidation)
	}
	for i, raw := range cells {
		cell, ok := raw.(map[string]any)
		if !ok {
			return fmt.Errorf("%w: cell %d is not an object", ErrValidation, i)
		}
		ct, _ := cell["cell_type"].(string)
		if !cellTypes[ct] {
			return fmt.Errorf("%w: cell %d has unknown cell_type %q", ErrValidation, i, ct)
		}
		if !isSource(cell["source"]) {
			return fmt.Errorf("%w: cell %d source must be a string or list of strings", ErrValidation, i)
		}
		if ct == "code" {
			if _, ok := cell["outputs"].([]any); !ok {
				return fmt.Errorf("%w: code cell %d has no outputs list", ErrValidation, i)
			}
		}
	}
	return nil
}

func isSource(v any) bool {
	switch s := v.(type) {
	case string:
		return true
	case []any:
		for _, line := range s {
			if _, ok := line.(string); !ok {
				return false
			}
		}
		return true
	}
	return false
}

func intValue(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case float64:
		return int(n), n == float64(int(n))
	case json.Number:
		i, err := n.Int64()
		return int(i), err == nil
	}
	return 0, false
}

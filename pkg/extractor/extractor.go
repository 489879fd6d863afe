// Package extractor reads field values out of records using JMESPath expressions
// such as "email", "profile.name" or "skills[0]".
package extractor

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/jmespath/go-jmespath"

	"github.com/Ramsey-B/fern/pkg/models"
)

// Extractor evaluates field paths against records, caching compiled expressions.
type Extractor struct {
	cache map[string]*jmespath.JMESPath
	mu    sync.RWMutex
}

// New creates a new Extractor
func New() *Extractor {
	return &Extractor{
		cache: make(map[string]*jmespath.JMESPath),
	}
}

// Extract returns the raw value at path, or nil when the path matches nothing.
func (e *Extractor) Extract(record models.Record, path string) (any, error) {
	if path == "" {
		return nil, fmt.Errorf("field path is required")
	}

	compiled, err := e.getOrCompile(path)
	if err != nil {
		return nil, fmt.Errorf("invalid field path %q: %w", path, err)
	}

	// jmespath only walks plain maps
	value, err := compiled.Search(map[string]any(record))
	if err != nil {
		return nil, fmt.Errorf("failed to evaluate field path %q: %w", path, err)
	}
	return value, nil
}

// String returns the value at path rendered as a string. Missing values and
// values that fail to evaluate yield "".
func (e *Extractor) String(record models.Record, path string) string {
	value, err := e.Extract(record, path)
	if err != nil || value == nil {
		return ""
	}
	return toString(value)
}

// Validate reports whether path compiles.
func (e *Extractor) Validate(path string) error {
	if path == "" {
		return fmt.Errorf("field path is required")
	}
	_, err := e.getOrCompile(path)
	return err
}

func (e *Extractor) getOrCompile(expression string) (*jmespath.JMESPath, error) {
	e.mu.RLock()
	if compiled, ok := e.cache[expression]; ok {
		e.mu.RUnlock()
		return compiled, nil
	}
	e.mu.RUnlock()

	compiled, err := jmespath.Compile(expression)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	e.cache[expression] = compiled
	e.mu.Unlock()

	return compiled, nil
}

func toString(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case bool:
		return strconv.FormatBool(v)
	case []any:
		parts := make([]string, 0, len(v))
		for _, item := range v {
			if item == nil {
				continue
			}
			parts = append(parts, toString(item))
		}
		return strings.Join(parts, ", ")
	default:
		return fmt.Sprintf("%v", v)
	}
}

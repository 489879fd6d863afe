package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// readFile decodes a YAML document at path into T. JSON input works as well.
func readFile[T any](path string) (T, error) {
	var v T
	data, err := os.ReadFile(path)
	if err != nil {
		return v, fmt.Errorf("failed to read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &v); err != nil {
		return v, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return v, nil
}

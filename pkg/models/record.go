package models

import "fmt"

// Record is a single entity read from the record store.
type Record map[string]any

// ID returns the record's "id" field as a string, or "" when absent.
func (r Record) ID() string {
	v, ok := r["id"]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

// RecordRef points back at a record in the input set of an analysis.
type RecordRef struct {
	Position   int    `json:"position"`
	ID         string `json:"id,omitempty"`
	Identifier string `json:"identifier,omitempty"`
	Secondary  string `json:"secondary,omitempty"`
}

package oracle

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// ResponseItem is one scored item in an oracle response.
type ResponseItem struct {
	Index       int      `json:"index" validate:"min=1"`
	Score       *float64 `json:"score" validate:"required"`
	Explanation string   `json:"explanation"`
}

// ParseError is returned when a response body does not match the expected schema.
type ParseError struct {
	Reason string
}

func (e *ParseError) Error() string {
	return "unparseable oracle response: " + e.Reason
}

// ParseResponse strictly decodes an oracle response. The body must be a JSON
// array of items, or an object holding that array under "results", optionally
// wrapped in a markdown code fence. Every item needs an index >= 1 and a
// numeric score.
func ParseResponse(body []byte) ([]ResponseItem, error) {
	payload := stripCodeFence(body)
	if len(payload) == 0 {
		return nil, &ParseError{Reason: "empty body"}
	}

	var items []ResponseItem
	switch payload[0] {
	case '[':
		if err := json.Unmarshal(payload, &items); err != nil {
			return nil, &ParseError{Reason: err.Error()}
		}
	case '{':
		var wrapped struct {
			Results *[]ResponseItem `json:"results"`
		}
		if err := json.Unmarshal(payload, &wrapped); err != nil {
			return nil, &ParseError{Reason: err.Error()}
		}
		if wrapped.Results == nil {
			return nil, &ParseError{Reason: "object response has no results array"}
		}
		items = *wrapped.Results
	default:
		return nil, &ParseError{Reason: "body is not a JSON array or object"}
	}

	for i, item := range items {
		if err := validate.Struct(item); err != nil {
			return nil, &ParseError{Reason: fmt.Sprintf("item %d: %s", i, validationMessage(err))}
		}
	}

	return items, nil
}

func stripCodeFence(body []byte) []byte {
	payload := bytes.TrimSpace(body)
	if !bytes.HasPrefix(payload, []byte("```")) {
		return payload
	}

	payload = payload[3:]
	// drop an optional language tag such as ```json
	if nl := bytes.IndexByte(payload, '\n'); nl >= 0 {
		if tag := strings.TrimSpace(string(payload[:nl])); !strings.ContainsAny(tag, "[{") {
			payload = payload[nl+1:]
		}
	}
	payload = bytes.TrimSpace(payload)
	payload = bytes.TrimSuffix(payload, []byte("```"))
	return bytes.TrimSpace(payload)
}

func validationMessage(err error) string {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, fmt.Sprintf("field '%s' failed rule '%s'", fe.Field(), fe.Tag()))
	}
	return strings.Join(parts, "; ")
}

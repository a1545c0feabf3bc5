// Package genai: decision parsing for model output.
package genai

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/chatformhq/chatform/internal/models"
)

// Error variables for better error handling and testability
var (
	ErrAPIKeyMissing     = errors.New("OPENAI_API_KEY not set")
	ErrNoChoicesReturned = errors.New("no choices returned")
	ErrMissingReply      = errors.New("decision omits reply")
)

// decisionWire is the loosely-typed shape the model actually emits. Values
// are validated and narrowed before a Decision leaves this package.
type decisionWire struct {
	Reply                string                     `json:"reply"`
	ExtractedInformation map[string]json.RawMessage `json:"extracted_information"`
	UpdatedPhase         string                     `json:"updated_phase"`
	CurrentTopic         string                     `json:"current_topic"`
	Reasoning            string                     `json:"reasoning"`
	ServiceMismatch      bool                       `json:"service_mismatch"`
}

// ParseDecision parses raw model output into a Decision. Output that is not
// a JSON object or omits reply fails with a DecisionParseError; extraction
// values that are numbers or booleans are stringified rather than rejected,
// since the allow-list filter downstream is what guards correctness.
func ParseDecision(raw []byte) (*models.Decision, error) {
	trimmed := strings.TrimSpace(string(raw))
	// Models occasionally wrap JSON in a markdown fence despite JSON mode.
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(trimmed, "```")
	trimmed = strings.TrimSpace(trimmed)

	var wire decisionWire
	if err := json.Unmarshal([]byte(trimmed), &wire); err != nil {
		return nil, &models.DecisionParseError{Raw: trimmed, Err: err}
	}
	if strings.TrimSpace(wire.Reply) == "" {
		return nil, &models.DecisionParseError{Raw: trimmed, Err: ErrMissingReply}
	}

	extracted := make(map[string]string, len(wire.ExtractedInformation))
	for key, rawValue := range wire.ExtractedInformation {
		value, ok := stringifyValue(rawValue)
		if !ok {
			// Objects and arrays are never valid field values; drop them.
			continue
		}
		if value != "" {
			extracted[key] = value
		}
	}

	return &models.Decision{
		Reply:                wire.Reply,
		ExtractedInformation: extracted,
		UpdatedPhase:         models.Phase(strings.ToLower(strings.TrimSpace(wire.UpdatedPhase))),
		CurrentTopic:         wire.CurrentTopic,
		Reasoning:            wire.Reasoning,
		ServiceMismatch:      wire.ServiceMismatch,
	}, nil
}

// stringifyValue converts a scalar JSON value to its string form.
func stringifyValue(raw json.RawMessage) (string, bool) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, true
	}
	var n float64
	if err := json.Unmarshal(raw, &n); err == nil {
		return strings.TrimRight(strings.TrimRight(fmt.Sprintf("%f", n), "0"), "."), true
	}
	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		return fmt.Sprintf("%t", b), true
	}
	return "", false
}

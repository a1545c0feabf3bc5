// Package models defines the core data structures for chatform.
//
// It includes the bot schema types, the mutable conversation state, and the
// per-turn decision shape shared across modules.
package models

import (
	"bytes"
	"encoding/json"
	"sort"
)

// SchemaVersionAgenticV1 is the version tag carried by every agentic bot schema.
const SchemaVersionAgenticV1 = "agentic_v1"

// FieldType describes the semantic type of a required-info field, used for
// permissive format validation of extracted values.
type FieldType string

const (
	FieldTypeText   FieldType = "text"
	FieldTypeEmail  FieldType = "email"
	FieldTypePhone  FieldType = "phone"
	FieldTypeDate   FieldType = "date"
	FieldTypeNumber FieldType = "number"
	FieldTypeURL    FieldType = "url"
)

// IsValidFieldType checks if the given field type is supported.
func IsValidFieldType(ft FieldType) bool {
	switch ft {
	case FieldTypeText, FieldTypeEmail, FieldTypePhone, FieldTypeDate, FieldTypeNumber, FieldTypeURL:
		return true
	default:
		return false
	}
}

// RequiredInfoItem is one field the business wants collected. Immutable once
// the bot is configured.
type RequiredInfoItem struct {
	Description string    `json:"description"`       // human-readable label
	Critical    bool      `json:"critical"`          // must be gathered before confirmation
	Example     string    `json:"example,omitempty"` // illustrative value shown to the model
	Type        FieldType `json:"type,omitempty"`    // optional semantic type for validation
}

// AgenticBotSchema is the bot's goal definition. Created at bot-authoring
// time and read-only to the conversation engine.
type AgenticBotSchema struct {
	Goal          string                      `json:"goal"`
	SystemPrompt  string                      `json:"system_prompt"`
	RequiredInfo  map[string]RequiredInfoItem `json:"required_info"`
	SchemaVersion string                      `json:"schema_version"`
}

// schemaProbe is the minimal shape needed to discriminate agentic schemas.
type schemaProbe struct {
	Goal          *string                     `json:"goal"`
	SystemPrompt  *string                     `json:"system_prompt"`
	RequiredInfo  map[string]RequiredInfoItem `json:"required_info"`
	SchemaVersion string                      `json:"schema_version"`
}

// IsAgenticSchema reports whether raw is a non-array JSON object carrying
// goal, system_prompt, required_info, and the agentic_v1 version tag.
// Malformed input returns false; callers must treat a schema that fails both
// IsAgenticSchema and IsLegacySchema as an unrecoverable configuration error.
func IsAgenticSchema(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return false
	}
	var probe schemaProbe
	if err := json.Unmarshal(trimmed, &probe); err != nil {
		return false
	}
	if probe.Goal == nil || probe.SystemPrompt == nil || probe.RequiredInfo == nil {
		return false
	}
	return probe.SchemaVersion == SchemaVersionAgenticV1
}

// IsLegacySchema reports whether raw is a JSON array. Any array qualifies,
// including an empty one: an empty legacy schema is indistinguishable from
// "no schema", and callers must not rely on array emptiness to infer bot type.
func IsLegacySchema(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return false
	}
	var probe []json.RawMessage
	return json.Unmarshal(trimmed, &probe) == nil
}

// RequiredKeys returns the schema's field keys in sorted order for
// deterministic prompt construction and confirmation rendering.
func (s *AgenticBotSchema) RequiredKeys() []string {
	return sortedKeys(s.RequiredInfo)
}

// CriticalKeys returns the keys of all fields flagged critical, sorted.
func (s *AgenticBotSchema) CriticalKeys() []string {
	keys := make([]string, 0, len(s.RequiredInfo))
	for key, item := range s.RequiredInfo {
		if item.Critical {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys
}

// HasKey reports whether the schema defines the given field key.
func (s *AgenticBotSchema) HasKey(key string) bool {
	_, ok := s.RequiredInfo[key]
	return ok
}

// Validate ensures the schema is well formed enough to drive a conversation.
func (s *AgenticBotSchema) Validate() error {
	if s.SchemaVersion != SchemaVersionAgenticV1 {
		return ErrSchemaVersionUnknown
	}
	if len(s.RequiredInfo) == 0 {
		return ErrSchemaNoRequiredInfo
	}
	for key, item := range s.RequiredInfo {
		if key == "" {
			return ErrSchemaEmptyFieldKey
		}
		if item.Type != "" && !IsValidFieldType(item.Type) {
			return ErrSchemaInvalidFieldType
		}
	}
	return nil
}

func sortedKeys(m map[string]RequiredInfoItem) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

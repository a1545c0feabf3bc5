// Package models defines shared error values and typed errors for chatform.
package models

import (
	"errors"
	"fmt"
)

// Error variables for better error handling and testability
var (
	ErrSchemaVersionUnknown   = errors.New("schema version is not agentic_v1")
	ErrSchemaNoRequiredInfo   = errors.New("schema defines no required info fields")
	ErrSchemaEmptyFieldKey    = errors.New("schema contains an empty field key")
	ErrSchemaInvalidFieldType = errors.New("schema contains an invalid field type")
	ErrSchemaUnrecognized     = errors.New("bot schema is neither agentic nor legacy")
	ErrInvalidBotName         = errors.New("bot name is empty or too long")
	ErrBotNotFound            = errors.New("bot configuration not found")
	ErrConversationNotFound   = errors.New("conversation not found")
	ErrConversationCompleted  = errors.New("conversation has already completed")
	ErrEmptyMessage           = errors.New("message cannot be empty")
	ErrMessageTooLong         = errors.New("message exceeds maximum length")
)

// DecisionParseError signals that the model's output was not a usable
// decision: invalid JSON or a missing reply. Callers retry the turn with
// backoff; no default decision is ever synthesized in its place.
type DecisionParseError struct {
	Raw string // raw model output, retained for observability
	Err error
}

func (e *DecisionParseError) Error() string {
	return fmt.Sprintf("decision parse failed: %v", e.Err)
}

func (e *DecisionParseError) Unwrap() error { return e.Err }

// SubmissionError signals that the external submission sink rejected or
// failed a completed conversation's handoff. It is surfaced to the end user
// as a retryable apology, never as a fatal conversation state.
type SubmissionError struct {
	BotID string
	Err   error
}

func (e *SubmissionError) Error() string {
	return fmt.Sprintf("submission for bot %s failed: %v", e.BotID, e.Err)
}

func (e *SubmissionError) Unwrap() error { return e.Err }

// Package models defines bot configuration, conversation, and wire-format
// structures shared across chatform modules.
package models

import (
	"encoding/json"
	"time"
)

// Validation constants for input validation
const (
	// MaxUserMessageLength defines the maximum allowed length for one user message
	MaxUserMessageLength = 8192
	// MaxBotNameLength defines the maximum allowed length for a bot name
	MaxBotNameLength = 200
)

// BotConfig is one configured intake bot as provided by the bot
// configuration store. Read-only to the conversation engine.
type BotConfig struct {
	ID              string           `json:"id"`
	Name            string           `json:"name"`
	UserID          string           `json:"user_id"`
	Schema          AgenticBotSchema `json:"schema"`
	BusinessProfile string           `json:"business_profile,omitempty"`
	CreatedAt       time.Time        `json:"created_at"`
	UpdatedAt       time.Time        `json:"updated_at"`
}

// Validate ensures the bot configuration can drive a conversation.
func (b *BotConfig) Validate() error {
	if b.Name == "" || len(b.Name) > MaxBotNameLength {
		return ErrInvalidBotName
	}
	return b.Schema.Validate()
}

// Conversation is one live intake conversation: the transcript plus the
// authoritative state, keyed by conversation ID. Submitted guards the
// one-time submission handoff against reprocessing of a terminal state.
type Conversation struct {
	ID        string             `json:"id"`
	BotID     string             `json:"bot_id"`
	Messages  []Message          `json:"messages"`
	State     *ConversationState `json:"state"`
	Submitted bool               `json:"submitted"`
	CreatedAt time.Time          `json:"created_at"`
	UpdatedAt time.Time          `json:"updated_at"`
}

// Submission is the structured record handed to the submission sink when a
// conversation completes.
type Submission struct {
	ID                  string            `json:"id,omitempty"`
	BotID               string            `json:"bot_id"`
	GatheredInformation map[string]string `json:"gathered_information"`
	Transcript          []Message         `json:"transcript"`
	UploadedFiles       []UploadedFile    `json:"uploaded_files,omitempty"`
	CreatedAt           time.Time         `json:"created_at"`
}

// SubmissionResult is the submission sink's acknowledgement.
type SubmissionResult struct {
	Success      bool   `json:"success"`
	SubmissionID string `json:"submission_id,omitempty"`
}

// ChunkType discriminates stream chunks on the SSE wire.
type ChunkType string

const (
	ChunkTypeToken       ChunkType = "token"
	ChunkTypeToolCall    ChunkType = "tool_call"
	ChunkTypeStateUpdate ChunkType = "state_update"
	ChunkTypeDone        ChunkType = "done"
	ChunkTypeError       ChunkType = "error"
)

// ToolCallPayload is one fully-accumulated tool call surfaced to the client.
type ToolCallPayload struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// StreamChunk is the unit pushed to streaming clients. Exactly one done
// chunk terminates a successful stream; an error chunk appears instead of
// (never after) done.
type StreamChunk struct {
	Type     ChunkType          `json:"type"`
	Content  string             `json:"content,omitempty"`
	ToolCall *ToolCallPayload   `json:"toolCall,omitempty"`
	State    *ConversationState `json:"state,omitempty"`
	Error    string             `json:"error,omitempty"`
}

// ChatTurnRequest is the body of one user turn sent to the API.
type ChatTurnRequest struct {
	Message           string             `json:"message"`
	UploadedFiles     []UploadedFile     `json:"uploaded_files,omitempty"`
	UploadedDocuments []UploadedDocument `json:"uploaded_documents,omitempty"`
	ImageAnalysis     string             `json:"image_analysis,omitempty"`
}

// Validate performs basic request validation before the turn runs.
func (r *ChatTurnRequest) Validate() error {
	if r.Message == "" && len(r.UploadedFiles) == 0 && len(r.UploadedDocuments) == 0 {
		return ErrEmptyMessage
	}
	if len(r.Message) > MaxUserMessageLength {
		return ErrMessageTooLong
	}
	return nil
}

// ChatTurnResponse is the buffered (non-streaming) response for one turn.
type ChatTurnResponse struct {
	Reply           string             `json:"reply"`
	UpdatedState    *ConversationState `json:"updated_state"`
	ServiceMismatch bool               `json:"service_mismatch,omitempty"`
}

// API response status constants
const (
	APIStatusOK    = "ok"
	APIStatusError = "error"
)

// APIResponse is the JSON envelope for non-streaming management endpoints.
type APIResponse struct {
	Status  string      `json:"status"`
	Message string      `json:"message,omitempty"`
	Result  interface{} `json:"result,omitempty"`
}

// Success creates a successful API response with optional result data.
func Success(result interface{}) APIResponse {
	return APIResponse{Status: APIStatusOK, Result: result}
}

// SuccessWithMessage creates a successful API response with a message and optional result data.
func SuccessWithMessage(message string, result interface{}) APIResponse {
	return APIResponse{Status: APIStatusOK, Message: message, Result: result}
}

// Error creates an error API response with a message.
func Error(message string) APIResponse {
	return APIResponse{Status: APIStatusError, Message: message}
}

// ToJSON serializes the conversation for persistence.
func (c *Conversation) ToJSON() (string, error) {
	data, err := json.Marshal(c)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// FromJSON deserializes a conversation from its persisted form.
func (c *Conversation) FromJSON(raw string) error {
	return json.Unmarshal([]byte(raw), c)
}

// Package models defines conversation state structures for chatform intake flows.
package models

import "time"

// Phase identifies the conversation's position in the five-stage intake
// lifecycle. Transitions are corrected by the guardrail engine; the language
// model's proposed phase is only ever a hint.
type Phase string

const (
	PhaseIntroduction       Phase = "introduction"
	PhaseCollecting         Phase = "collecting"
	PhaseAnsweringQuestions Phase = "answering_questions"
	PhaseConfirmation       Phase = "confirmation"
	PhaseCompleted          Phase = "completed"
)

// IsValidPhase checks if the given phase is one of the five lifecycle stages.
func IsValidPhase(p Phase) bool {
	switch p {
	case PhaseIntroduction, PhaseCollecting, PhaseAnsweringQuestions, PhaseConfirmation, PhaseCompleted:
		return true
	default:
		return false
	}
}

// Message roles. The transcript only ever contains these two.
const (
	RoleUser = "user"
	RoleBot  = "bot"
)

// Message is one entry in the append-only conversation transcript.
type Message struct {
	Role    string `json:"role"` // "user" or "bot"
	Content string `json:"content"`
}

// UploadedFile holds the metadata tuple the core receives from the external
// file storage collaborator. The core never uploads or inspects file bytes.
type UploadedFile struct {
	URL        string    `json:"url"`
	Filename   string    `json:"filename"`
	Type       string    `json:"type"`
	UploadedAt time.Time `json:"uploaded_at"`
}

// UploadedDocument is an uploaded file whose text was extracted externally.
type UploadedDocument struct {
	UploadedFile
	ExtractedText string `json:"extracted_text"`
	TurnIndex     int    `json:"turn_index"` // transcript turn at which it was uploaded
}

// ConversationState is the single mutable source of truth for one
// conversation. It is created fresh at conversation start, mutated once per
// user turn by the session controller, and becomes terminal when Phase
// reaches completed.
type ConversationState struct {
	GatheredInformation map[string]string  `json:"gathered_information"`
	MissingInfo         []string           `json:"missing_info"`
	Phase               Phase              `json:"phase"`
	CurrentTopic        string             `json:"current_topic,omitempty"` // advisory only
	UploadedFiles       []UploadedFile     `json:"uploaded_files,omitempty"`
	UploadedDocuments   []UploadedDocument `json:"uploaded_documents,omitempty"`

	// Post-hoc analytics attached by an external enrichment step after
	// completion. Not consulted by the live state machine.
	Summary   string `json:"summary,omitempty"`
	Sentiment string `json:"sentiment,omitempty"`
	Urgency   string `json:"urgency,omitempty"`
}

// NewConversationState creates an empty state in the introduction phase.
func NewConversationState() *ConversationState {
	return &ConversationState{
		GatheredInformation: make(map[string]string),
		MissingInfo:         []string{},
		Phase:               PhaseIntroduction,
	}
}

// RecomputeMissingInfo derives MissingInfo from the schema's required keys
// and the currently gathered values. It is recomputed every turn rather than
// independently mutated.
func (cs *ConversationState) RecomputeMissingInfo(schema *AgenticBotSchema) {
	missing := []string{}
	for _, key := range schema.RequiredKeys() {
		if _, ok := cs.GatheredInformation[key]; !ok {
			missing = append(missing, key)
		}
	}
	cs.MissingInfo = missing
}

// Clone returns a deep copy of the state. The session controller merges
// extracted values into a working copy so a failed turn never leaves a
// partial mutation behind.
func (cs *ConversationState) Clone() *ConversationState {
	out := *cs
	out.GatheredInformation = make(map[string]string, len(cs.GatheredInformation))
	for k, v := range cs.GatheredInformation {
		out.GatheredInformation[k] = v
	}
	out.MissingInfo = append([]string(nil), cs.MissingInfo...)
	out.UploadedFiles = append([]UploadedFile(nil), cs.UploadedFiles...)
	out.UploadedDocuments = append([]UploadedDocument(nil), cs.UploadedDocuments...)
	return &out
}

// Decision is the language model's raw proposal for one turn. It is consumed
// immediately by the guardrail engine and never persisted.
type Decision struct {
	Reply                string            `json:"reply"`
	ExtractedInformation map[string]string `json:"extracted_information,omitempty"`
	UpdatedPhase         Phase             `json:"updated_phase,omitempty"`
	CurrentTopic         string            `json:"current_topic,omitempty"`
	Reasoning            string            `json:"reasoning,omitempty"`
	ServiceMismatch      bool              `json:"service_mismatch,omitempty"`
}

package prompt

import (
	"strings"
	"testing"
	"time"

	"github.com/chatformhq/chatform/internal/models"
)

func builderInput() Input {
	schema := &models.AgenticBotSchema{
		Goal:         "Collect plumbing job requests",
		SystemPrompt: "Be friendly but efficient.",
		RequiredInfo: map[string]models.RequiredInfoItem{
			"name":  {Description: "Full name", Critical: true, Type: models.FieldTypeText},
			"email": {Description: "Email address", Critical: true, Type: models.FieldTypeEmail, Example: "jane@example.com"},
			"issue": {Description: "What needs fixing", Type: models.FieldTypeText},
		},
		SchemaVersion: models.SchemaVersionAgenticV1,
	}
	state := models.NewConversationState()
	state.GatheredInformation["name"] = "Jane Doe"
	state.Phase = models.PhaseCollecting
	return Input{
		BusinessName:    "Acme Plumbing",
		Schema:          schema,
		BusinessProfile: "Residential plumbing, Monday to Friday.",
		State:           state,
		RequiredKeys:    schema.RequiredKeys(),
		MissingKeys:     []string{"email", "issue"},
		MessageHistory: []models.Message{
			{Role: models.RoleBot, Content: "Hi! What's your name?"},
			{Role: models.RoleUser, Content: "Jane Doe"},
		},
	}
}

func TestBuildIntakePromptIsDeterministic(t *testing.T) {
	in := builderInput()
	first := BuildIntakePrompt(in)
	for i := 0; i < 5; i++ {
		if got := BuildIntakePrompt(in); got != first {
			t.Fatal("identical input produced a different prompt")
		}
	}
}

func TestBuildIntakePromptBlockOrder(t *testing.T) {
	in := builderInput()
	in.ImageAnalysis = "Photo shows a leaking pipe joint."
	prompt := BuildIntakePrompt(in)

	headers := []string{
		"# WHO YOU ARE",
		"# INFORMATION STATUS",
		"# RECENT CONVERSATION",
		"# UPLOADED CONTEXT",
		"# EXTRACTION RULES",
		"# CONVERSATION PHASES",
		"# VALUE FORMATS",
		"# RESPONSE FORMAT",
	}
	last := -1
	for _, h := range headers {
		idx := strings.Index(prompt, h)
		if idx < 0 {
			t.Fatalf("missing block %q", h)
		}
		if idx < last {
			t.Errorf("block %q out of order", h)
		}
		last = idx
	}
}

func TestBuildIntakePromptIdentity(t *testing.T) {
	prompt := BuildIntakePrompt(builderInput())
	if !strings.Contains(prompt, "intake assistant for Acme Plumbing") {
		t.Error("missing business identity")
	}
	if !strings.Contains(prompt, "Goal of this intake: Collect plumbing job requests") {
		t.Error("missing goal line")
	}
	if !strings.Contains(prompt, "Be friendly but efficient.") {
		t.Error("missing business instructions")
	}
	if !strings.Contains(prompt, "Residential plumbing, Monday to Friday.") {
		t.Error("missing business profile")
	}
}

func TestBuildIntakePromptGatheredAndMissing(t *testing.T) {
	prompt := BuildIntakePrompt(builderInput())
	if !strings.Contains(prompt, "- name (Full name): Jane Doe") {
		t.Errorf("gathered field not listed: %s", prompt)
	}
	if !strings.Contains(prompt, "- email: Email address [critical] (e.g. jane@example.com)") {
		t.Errorf("missing field line malformed: %s", prompt)
	}
	if !strings.Contains(prompt, "- issue: What needs fixing\n") {
		t.Error("non-critical missing field must have no critical tag")
	}
}

func TestBuildIntakePromptEmptyState(t *testing.T) {
	in := builderInput()
	in.State = models.NewConversationState()
	in.MessageHistory = nil
	prompt := BuildIntakePrompt(in)
	if !strings.Contains(prompt, "(nothing gathered yet)") {
		t.Error("empty gathered listing missing placeholder")
	}
	if strings.Contains(prompt, "# RECENT CONVERSATION") {
		t.Error("recent window must be omitted with no history")
	}
	if strings.Contains(prompt, "# UPLOADED CONTEXT") {
		t.Error("media block must be omitted with no uploads")
	}
}

func TestBuildIntakePromptRecentWindowIsBounded(t *testing.T) {
	in := builderInput()
	history := make([]models.Message, 0, 10)
	for i := 0; i < 10; i++ {
		role := models.RoleUser
		if i%2 == 0 {
			role = models.RoleBot
		}
		history = append(history, models.Message{Role: role, Content: "turn " + string(rune('a'+i))})
	}
	in.MessageHistory = history
	prompt := BuildIntakePrompt(in)

	if strings.Contains(prompt, "turn a") {
		t.Error("messages beyond the window must be dropped")
	}
	for _, want := range []string{"turn e", "turn f", "turn g", "turn h", "turn i", "turn j"} {
		if !strings.Contains(prompt, want) {
			t.Errorf("window missing message %q", want)
		}
	}
}

func TestBuildIntakePromptDocumentContext(t *testing.T) {
	in := builderInput()
	uploaded := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	in.UploadedDocuments = []models.UploadedDocument{{
		UploadedFile:  models.UploadedFile{Filename: "quote.pdf", UploadedAt: uploaded},
		ExtractedText: "Previous quote: $450 for pipe replacement.",
	}}
	prompt := BuildIntakePrompt(in)
	if !strings.Contains(prompt, `Document "quote.pdf" (uploaded 2026-03-14T09:30:00Z):`) {
		t.Errorf("document header malformed: %s", prompt)
	}
	if !strings.Contains(prompt, "Previous quote: $450 for pipe replacement.") {
		t.Error("extracted text missing")
	}
}

func TestBuildIntakePromptExtractionAllowList(t *testing.T) {
	prompt := BuildIntakePrompt(builderInput())
	// RequiredKeys sorts alphabetically.
	if !strings.Contains(prompt, "The ONLY keys you may extract are: email, issue, name") {
		t.Errorf("allow-list line malformed: %s", prompt)
	}
}

func TestBuildIntakePromptValidationBlockOnlyForTypedFields(t *testing.T) {
	in := builderInput()
	prompt := BuildIntakePrompt(in)
	if !strings.Contains(prompt, "- email is a email field") {
		t.Error("typed field missing from value formats")
	}
	if strings.Contains(prompt, "- name is a") {
		t.Error("text fields must not appear in value formats")
	}

	// All-text schemas omit the block entirely.
	in.Schema = &models.AgenticBotSchema{
		Goal:         "g",
		SystemPrompt: "p",
		RequiredInfo: map[string]models.RequiredInfoItem{
			"notes": {Description: "Notes", Type: models.FieldTypeText},
		},
		SchemaVersion: models.SchemaVersionAgenticV1,
	}
	in.RequiredKeys = in.Schema.RequiredKeys()
	in.MissingKeys = []string{"notes"}
	if strings.Contains(BuildIntakePrompt(in), "# VALUE FORMATS") {
		t.Error("value formats block must be omitted for all-text schemas")
	}
}

func TestBuildIntakePromptResponseShape(t *testing.T) {
	prompt := BuildIntakePrompt(builderInput())
	for _, want := range []string{`"reply"`, `"extracted_information"`, `"updated_phase"`, `"service_mismatch"`} {
		if !strings.Contains(prompt, want) {
			t.Errorf("response shape missing %s", want)
		}
	}
}

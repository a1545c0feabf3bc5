// Package prompt renders the instruction text sent to the decision-making
// model for each intake turn.
//
// Building is a pure function of its input: identical inputs always produce
// an identical prompt string, which keeps turn behavior reproducible and the
// builder testable without any model in the loop.
package prompt

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/chatformhq/chatform/internal/models"
)

// RecentWindowSize is the number of trailing transcript messages quoted
// verbatim in the prompt so the model can spot information mentioned but not
// yet extracted.
const RecentWindowSize = 6

// Input carries everything the builder needs for one turn. All context is
// passed explicitly; the builder reads no ambient state.
type Input struct {
	BusinessName      string
	Schema            *models.AgenticBotSchema
	BusinessProfile   string
	State             *models.ConversationState
	UploadedDocuments []models.UploadedDocument
	RequiredKeys      []string
	MissingKeys       []string
	ImageAnalysis     string
	MessageHistory    []models.Message
}

// BuildIntakePrompt renders the full instruction string for the decision
// call. Block order is part of the contract: identity, gathered/missing
// listing, recent conversation window, optional image and document context,
// extraction allow-list, phase semantics, per-type validation semantics, and
// the JSON response shape.
func BuildIntakePrompt(in Input) string {
	var b strings.Builder

	writeIdentityBlock(&b, in)
	writeGatheredBlock(&b, in)
	writeRecentWindowBlock(&b, in.MessageHistory)
	writeMediaContextBlock(&b, in)
	writeExtractionContractBlock(&b, in)
	writePhaseSemanticsBlock(&b)
	writeValidationSemanticsBlock(&b, in.Schema)
	writeResponseShapeBlock(&b)

	return b.String()
}

// writeIdentityBlock states who the bot speaks for and what it is doing.
func writeIdentityBlock(b *strings.Builder, in Input) {
	b.WriteString("# WHO YOU ARE\n")
	fmt.Fprintf(b, "You are the intake assistant for %s. Your job is to gather the information listed below through a natural conversation, then confirm it with the user and finalize the request.\n", in.BusinessName)
	fmt.Fprintf(b, "Never repeat the business name twice in the same reply.\n")
	if in.Schema.Goal != "" {
		fmt.Fprintf(b, "Goal of this intake: %s\n", in.Schema.Goal)
	}
	if in.Schema.SystemPrompt != "" {
		b.WriteString("\n# BUSINESS INSTRUCTIONS\n")
		b.WriteString(strings.TrimSpace(in.Schema.SystemPrompt))
		b.WriteString("\n")
	}
	if in.BusinessProfile != "" {
		b.WriteString("\n# BUSINESS PROFILE\n")
		b.WriteString(strings.TrimSpace(in.BusinessProfile))
		b.WriteString("\n")
	}
	b.WriteString("\n")
}

// writeGatheredBlock lists every gathered field with its value and every
// still-missing field with its description. This listing is the primary
// defense against re-asking the user for known information.
func writeGatheredBlock(b *strings.Builder, in Input) {
	b.WriteString("# INFORMATION STATUS — READ THIS FIRST\n")
	b.WriteString("You already have the following information. Do NOT ask for any of it again:\n")
	gatheredKeys := make([]string, 0, len(in.State.GatheredInformation))
	for key := range in.State.GatheredInformation {
		gatheredKeys = append(gatheredKeys, key)
	}
	sort.Strings(gatheredKeys)
	if len(gatheredKeys) == 0 {
		b.WriteString("(nothing gathered yet)\n")
	}
	for _, key := range gatheredKeys {
		item := in.Schema.RequiredInfo[key]
		fmt.Fprintf(b, "- %s (%s): %s\n", key, item.Description, in.State.GatheredInformation[key])
	}

	b.WriteString("\nStill missing:\n")
	if len(in.MissingKeys) == 0 {
		b.WriteString("(nothing — every required field is gathered)\n")
	}
	for _, key := range in.MissingKeys {
		item := in.Schema.RequiredInfo[key]
		line := fmt.Sprintf("- %s: %s", key, item.Description)
		if item.Critical {
			line += " [critical]"
		}
		if item.Example != "" {
			line += fmt.Sprintf(" (e.g. %s)", item.Example)
		}
		b.WriteString(line + "\n")
	}
	b.WriteString("\n")
}

// writeRecentWindowBlock quotes the last few messages verbatim.
func writeRecentWindowBlock(b *strings.Builder, history []models.Message) {
	if len(history) == 0 {
		return
	}
	b.WriteString("# RECENT CONVERSATION\n")
	start := len(history) - RecentWindowSize
	if start < 0 {
		start = 0
	}
	for _, msg := range history[start:] {
		fmt.Fprintf(b, "%s: %s\n", msg.Role, msg.Content)
	}
	b.WriteString("\n")
}

// writeMediaContextBlock includes image analysis and extracted document
// text, each tagged with filename and upload timestamp. Omitted entirely
// when nothing was uploaded.
func writeMediaContextBlock(b *strings.Builder, in Input) {
	if in.ImageAnalysis == "" && len(in.UploadedDocuments) == 0 {
		return
	}
	b.WriteString("# UPLOADED CONTEXT\n")
	if in.ImageAnalysis != "" {
		b.WriteString("Image analysis:\n")
		b.WriteString(strings.TrimSpace(in.ImageAnalysis))
		b.WriteString("\n")
	}
	for _, doc := range in.UploadedDocuments {
		fmt.Fprintf(b, "Document %q (uploaded %s):\n", doc.Filename, doc.UploadedAt.UTC().Format(time.RFC3339))
		b.WriteString(strings.TrimSpace(doc.ExtractedText))
		b.WriteString("\n")
	}
	b.WriteString("\n")
}

// writeExtractionContractBlock pins the extractable keys to exactly the
// schema's required keys.
func writeExtractionContractBlock(b *strings.Builder, in Input) {
	b.WriteString("# EXTRACTION RULES\n")
	fmt.Fprintf(b, "The ONLY keys you may extract are: %s\n", strings.Join(in.RequiredKeys, ", "))
	b.WriteString("Never invent new keys. If the user volunteers information that does not fit one of these keys, acknowledge it in your reply but do not extract it.\n")
	b.WriteString("If the user corrects a previously given value, extract the corrected value under the same key.\n\n")
}

// writePhaseSemanticsBlock defines the five phases and the confirmation rule.
func writePhaseSemanticsBlock(b *strings.Builder) {
	b.WriteString("# CONVERSATION PHASES\n")
	b.WriteString("- introduction: greeting, before any information has been requested\n")
	b.WriteString("- collecting: actively gathering the required information\n")
	b.WriteString("- answering_questions: the user asked something; answer it, then steer back to collecting\n")
	b.WriteString("- confirmation: every required field is gathered; show a bulleted list of ALL gathered fields and ask the user to confirm\n")
	b.WriteString("- completed: ONLY after the user has affirmed a shown confirmation list\n")
	b.WriteString("Entering confirmation requires your reply to contain the bulleted list of every gathered field plus an explicit question such as \"does everything look correct?\".\n")
	b.WriteString("Never set completed unless the previous bot message showed that confirmation list and the user just affirmed it.\n")
	b.WriteString("If the business clearly cannot serve this request, say so politely and set service_mismatch to true.\n\n")
}

// writeValidationSemanticsBlock states the per-type format expectations for
// the fields that carry a semantic type.
func writeValidationSemanticsBlock(b *strings.Builder, schema *models.AgenticBotSchema) {
	typed := []string{}
	for _, key := range schema.RequiredKeys() {
		if item := schema.RequiredInfo[key]; item.Type != "" && item.Type != models.FieldTypeText {
			typed = append(typed, fmt.Sprintf("- %s is a %s field", key, item.Type))
		}
	}
	if len(typed) == 0 {
		return
	}
	b.WriteString("# VALUE FORMATS\n")
	for _, line := range typed {
		b.WriteString(line + "\n")
	}
	b.WriteString("Format expectations: an email needs an @ and a domain; a phone number needs digits in any international shape; a url looks like a web address; a date is any unambiguous date; a number contains a numeric token.\n")
	b.WriteString("If the user's answer is obviously invalid for its type, do not extract it — ask for a corrected value instead.\n\n")
}

// writeResponseShapeBlock pins the output to the decision JSON shape.
func writeResponseShapeBlock(b *strings.Builder) {
	b.WriteString("# RESPONSE FORMAT\n")
	b.WriteString("Respond with a single JSON object and nothing else:\n")
	b.WriteString(`{
  "reply": "your conversational reply to the user",
  "extracted_information": {"key": "value"},
  "updated_phase": "introduction|collecting|answering_questions|confirmation|completed",
  "current_topic": "optional short hint of the current topic",
  "reasoning": "optional one-sentence rationale",
  "service_mismatch": false
}`)
	b.WriteString("\nThe reply field is mandatory. extracted_information may be empty but never contains keys outside the allow-list.\n")
}

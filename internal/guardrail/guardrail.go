// Package guardrail corrects the language model's proposed phase transitions.
//
// The model is untrusted for phase transitions: its updated_phase is a hint,
// and Evaluate is the single authority for what phase a turn may legally end
// in. Evaluation is pure data-in/data-out, total over its input domain, and
// never performs I/O, so every rule is unit-testable with hand-written
// decision fixtures and no model calls.
package guardrail

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/chatformhq/chatform/internal/models"
)

// Input carries everything one guardrail evaluation needs. Merged is the
// union of the pre-turn gathered information and the turn's validated
// extraction; key membership in the schema is enforced upstream and not
// re-validated here.
type Input struct {
	Decision     *models.Decision
	CurrentPhase models.Phase
	History      []models.Message // full transcript, latest user message last
	Schema       *models.AgenticBotSchema
	Merged       map[string]string
}

// Result is the corrected outcome of one turn. Reply differs from the
// decision's reply only when a rule synthesized a replacement.
// EnforcementApplied is true whenever any rule overrode the model's proposal;
// it is retained for observability and must not be swallowed by callers.
type Result struct {
	FinalPhase         models.Phase
	Reply              string
	EnforcementApplied bool
}

// Evaluate runs the ordered correction rules. Each rule may override the
// phase set by a prior rule; later rules win. The ordering is a contract:
//
//  1. yes-man detection
//  2. confirmation requires a visible list
//  3. hard confirmation gate before completion (service_mismatch bypasses)
//  4. critical-field completeness veto
//  5. completion requires prior confirmation phase
//  6. closing-language alignment
//  7. full-field completeness gate
//
// Every fallback stays in place or goes backward; no rule ever advances the
// conversation on the model's behalf except rule 6, which only repairs a
// completion the user already signed off on.
func Evaluate(in Input) Result {
	proposed := normalizePhase(in.Decision.UpdatedPhase, in.CurrentPhase)
	phase := proposed
	reply := in.Decision.Reply
	enforced := proposed != in.Decision.UpdatedPhase && in.Decision.UpdatedPhase != ""

	lastUser := lastMessageByRole(in.History, models.RoleUser)
	prevBot := lastMessageByRole(in.History, models.RoleBot)

	// Rule 1: a bare "yes" answering a validation question ("did you mean
	// ...?") is not a sign-off. Reject any advance to confirmation or
	// completed and fall back to collecting.
	if (phase == models.PhaseConfirmation || phase == models.PhaseCompleted) &&
		IsBareAffirmation(lastUser) && IsValidationQuestion(prevBot) {
		phase = models.PhaseCollecting
		enforced = true
	}

	// Rule 2: confirmation is only real if the user can see it. The reply
	// itself must render the bulleted summary; a turn that gathers the last
	// missing field and renders the list in the same breath passes too.
	if phase == models.PhaseConfirmation && !IsConfirmationSummary(reply) {
		phase = models.PhaseCollecting
		enforced = true
	}

	// Rule 3: completion must be preceded by a shown confirmation list. If
	// the model jumped straight to completed, force confirmation and replace
	// the reply with a deterministic summary. A service_mismatch ending
	// bypasses the gate entirely.
	if phase == models.PhaseCompleted && !in.Decision.ServiceMismatch {
		if in.CurrentPhase != models.PhaseConfirmation || !IsConfirmationSummary(prevBot) {
			phase = models.PhaseConfirmation
			reply = BuildConfirmationReply(in.Schema, in.Merged)
			enforced = true
		}
	}

	// Rule 4: unconditional veto. Confirmation may not begin while any
	// critical field is still missing.
	if phase == models.PhaseConfirmation && len(missingCriticalKeys(in.Schema, in.Merged)) > 0 {
		phase = models.PhaseCollecting
		enforced = true
	}

	// Rule 5: redundant with rule 3 but explicit. Completed without a
	// pre-turn confirmation phase stays where it was, not back in collecting.
	if phase == models.PhaseCompleted && !in.Decision.ServiceMismatch && in.CurrentPhase != models.PhaseConfirmation {
		phase = in.CurrentPhase
		enforced = true
	}

	// Rule 6: the model sometimes narrates completion ("have a great day!")
	// without setting the phase field. When the user already saw and
	// affirmed a confirmation list, align the phase with the prose.
	if phase != models.PhaseCompleted && HasClosingLanguage(reply) &&
		in.CurrentPhase == models.PhaseConfirmation && IsConfirmationSummary(prevBot) {
		phase = models.PhaseCompleted
		enforced = true
	}

	// Rule 7: before completion every schema key must be gathered, not only
	// the critical ones. Optional fields are supplied or explicitly skipped,
	// never silently dropped.
	if phase == models.PhaseCompleted && !in.Decision.ServiceMismatch {
		for _, key := range in.Schema.RequiredKeys() {
			if _, ok := in.Merged[key]; !ok {
				phase = models.PhaseCollecting
				enforced = true
				break
			}
		}
	}

	if enforced {
		slog.Debug("guardrail.Evaluate: enforcement applied",
			"proposedPhase", in.Decision.UpdatedPhase,
			"currentPhase", in.CurrentPhase,
			"finalPhase", phase)
	}

	return Result{FinalPhase: phase, Reply: reply, EnforcementApplied: enforced}
}

// normalizePhase maps a missing or invalid proposed phase to the current
// phase. Staying put is always the safe fallback.
func normalizePhase(proposed, current models.Phase) models.Phase {
	if !models.IsValidPhase(proposed) {
		return current
	}
	return proposed
}

func lastMessageByRole(history []models.Message, role string) string {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == role {
			return history[i].Content
		}
	}
	return ""
}

func missingCriticalKeys(schema *models.AgenticBotSchema, merged map[string]string) []string {
	var missing []string
	for _, key := range schema.CriticalKeys() {
		if _, ok := merged[key]; !ok {
			missing = append(missing, key)
		}
	}
	return missing
}

// bareAffirmations are the normalized forms recognized as a plain "yes".
var bareAffirmations = map[string]struct{}{
	"yes": {}, "yeah": {}, "yep": {}, "yup": {}, "ya": {}, "sure": {},
	"ok": {}, "okay": {}, "correct": {}, "right": {}, "looks good": {},
	"looks right": {}, "that's correct": {}, "thats correct": {},
	"that's right": {}, "thats right": {}, "sounds good": {}, "perfect": {},
	"confirmed": {}, "yes please": {}, "all good": {}, "exactly": {},
}

// IsBareAffirmation reports whether the message is nothing more than an
// affirmation, with punctuation and case ignored.
func IsBareAffirmation(message string) bool {
	normalized := strings.ToLower(strings.TrimSpace(message))
	normalized = strings.TrimRight(normalized, ".!?")
	normalized = strings.TrimSpace(normalized)
	_, ok := bareAffirmations[normalized]
	return ok
}

// IsValidationQuestion reports whether the bot message reads as a
// spot-check question ("did you mean john@gmail.com?") rather than a
// confirmation summary. A qualifying confirmation summary never counts.
func IsValidationQuestion(message string) bool {
	if message == "" || IsConfirmationSummary(message) {
		return false
	}
	lower := strings.ToLower(message)
	if strings.Contains(lower, "did you mean") || strings.Contains(lower, "is that correct") {
		return true
	}
	trimmed := strings.TrimSpace(lower)
	return strings.HasSuffix(trimmed, "right?")
}

// confirmationPhrases mark a message as asking for final sign-off.
var confirmationPhrases = []string{
	"let me confirm",
	"does everything look correct",
	"does everything look right",
	"please confirm",
	"to confirm",
	"is everything correct",
	"before we finalize",
}

// IsConfirmationSummary reports whether the bot message is a genuine
// confirmation summary: at least two bulleted lines plus confirmation
// language.
func IsConfirmationSummary(message string) bool {
	if CountBulletLines(message) < 2 {
		return false
	}
	lower := strings.ToLower(message)
	for _, phrase := range confirmationPhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}

// CountBulletLines counts lines that start with a bullet marker.
func CountBulletLines(message string) int {
	count := 0
	for _, line := range strings.Split(message, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "- ") || strings.HasPrefix(trimmed, "* ") || strings.HasPrefix(trimmed, "• ") {
			count++
		}
	}
	return count
}

// closingPhrases are valedictions that signal the model considers the
// conversation over.
var closingPhrases = []string{
	"have a great day",
	"have a wonderful day",
	"have a good day",
	"we'll be in touch",
	"we will be in touch",
	"talk soon",
	"talk to you soon",
	"take care",
	"goodbye",
	"thanks for choosing",
}

// HasClosingLanguage reports whether the reply contains clear valedictory
// language.
func HasClosingLanguage(reply string) bool {
	lower := strings.ToLower(reply)
	for _, phrase := range closingPhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}

// BuildConfirmationReply renders the deterministic bulleted confirmation
// message from the merged gathered information, one line per gathered field
// in schema key order, labeled with the field's description.
func BuildConfirmationReply(schema *models.AgenticBotSchema, merged map[string]string) string {
	var b strings.Builder
	b.WriteString("Before we finish, let me confirm what I have:\n\n")
	for _, key := range schema.RequiredKeys() {
		value, ok := merged[key]
		if !ok {
			continue
		}
		label := schema.RequiredInfo[key].Description
		if label == "" {
			label = key
		}
		fmt.Fprintf(&b, "• %s: %s\n", label, value)
	}
	b.WriteString("\nDoes everything look correct before we finalize this?")
	return b.String()
}

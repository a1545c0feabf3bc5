// Package session orchestrates one intake conversation turn: prompt
// construction, decision generation, extraction filtering, guardrail
// correction, state commit, and the one-time submission handoff.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/openai/openai-go"

	"github.com/chatformhq/chatform/internal/genai"
	"github.com/chatformhq/chatform/internal/guardrail"
	"github.com/chatformhq/chatform/internal/models"
	"github.com/chatformhq/chatform/internal/prompt"
)

// SubmissionSink is the external collaborator that receives a completed
// conversation's structured record. Called exactly once per conversation.
type SubmissionSink interface {
	Submit(ctx context.Context, submission models.Submission) (models.SubmissionResult, error)
}

// Notifier is told about successful submissions. Best effort; a notifier
// failure never affects the conversation.
type Notifier interface {
	NotifySubmission(ctx context.Context, bot *models.BotConfig, submission models.Submission) error
}

// SubmissionApology is shown when the submission sink fails; the
// conversation rolls back to confirmation so the user can retry.
const SubmissionApology = "I'm sorry — something went wrong while finalizing your request. Everything you told me is saved; please say \"yes\" again in a moment to retry."

// Controller ties the per-turn pipeline together. One controller serves all
// conversations; per-conversation state is carried in the Conversation
// value, never on the controller, so independent sessions share nothing
// mutable.
type Controller struct {
	genaiClient genai.ClientInterface
	sink        SubmissionSink
	notifier    Notifier
	retry       retryConfig
}

// ControllerOption configures a Controller.
type ControllerOption func(*Controller)

// WithNotifier attaches a submission notifier.
func WithNotifier(n Notifier) ControllerOption {
	return func(c *Controller) { c.notifier = n }
}

// WithRetry overrides the decision-call retry policy.
func WithRetry(attempts int, baseDelay time.Duration) ControllerOption {
	return func(c *Controller) { c.retry = retryConfig{Attempts: attempts, BaseDelay: baseDelay} }
}

// NewController creates a session controller with dependencies.
func NewController(genaiClient genai.ClientInterface, sink SubmissionSink, opts ...ControllerOption) *Controller {
	c := &Controller{
		genaiClient: genaiClient,
		sink:        sink,
		retry:       retryConfig{Attempts: DefaultRetryAttempts, BaseDelay: DefaultRetryBaseDelay},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// TurnInput is everything one user turn brings to the controller.
type TurnInput struct {
	Bot               *models.BotConfig
	Conversation      *models.Conversation
	UserMessage       string
	UploadedFiles     []models.UploadedFile
	UploadedDocuments []models.UploadedDocument
	ImageAnalysis     string
	// Emit receives stream chunks as the turn progresses. Nil for buffered
	// turns. The controller emits token, tool_call, and state_update chunks;
	// the transport owns done and error framing.
	Emit func(models.StreamChunk)
}

// TurnResult is the finalized outcome of one turn.
type TurnResult struct {
	Reply              string
	State              *models.ConversationState
	ServiceMismatch    bool
	EnforcementApplied bool
	Submission         *models.SubmissionResult
}

// ProcessTurn runs one user turn end to end. On a decision failure the
// conversation is left completely unchanged (no message append, no merge,
// no phase transition) so the next successful turn resumes cleanly.
func (c *Controller) ProcessTurn(ctx context.Context, in TurnInput) (*TurnResult, error) {
	convo := in.Conversation
	state := convo.State
	slog.Debug("Controller.ProcessTurn: starting turn",
		"conversationID", convo.ID, "botID", in.Bot.ID, "phase", state.Phase, "messageCount", len(convo.Messages))

	// A terminal, already-submitted conversation is never reprocessed; a
	// retried request after a transient network failure must not reach the
	// submission sink a second time.
	if convo.Submitted {
		slog.Info("Controller.ProcessTurn: conversation already submitted, ignoring turn", "conversationID", convo.ID)
		return &TurnResult{Reply: "This conversation is already complete — thank you!", State: state}, nil
	}

	userContent := composeUserContent(in)

	// Work on staged copies; nothing below mutates the conversation until
	// the decision has fully resolved.
	history := append(append([]models.Message{}, convo.Messages...), models.Message{Role: models.RoleUser, Content: userContent})
	workingState := state.Clone()
	workingState.UploadedFiles = append(workingState.UploadedFiles, in.UploadedFiles...)
	for _, doc := range in.UploadedDocuments {
		doc.TurnIndex = len(history) - 1
		workingState.UploadedDocuments = append(workingState.UploadedDocuments, doc)
	}
	workingState.RecomputeMissingInfo(&in.Bot.Schema)

	decision, err := c.obtainDecision(ctx, in, workingState, history)
	if err != nil {
		slog.Error("Controller.ProcessTurn: decision unavailable after retries", "error", err, "conversationID", convo.ID)
		return nil, fmt.Errorf("failed to obtain decision: %w", err)
	}

	// Filter the extraction to the schema allow-list and per-type format
	// checks, then merge last-write-wins: a correction in a later turn
	// overwrites the earlier value for the same key.
	accepted := c.filterExtraction(in.Bot, decision.ExtractedInformation)
	merged := workingState.GatheredInformation
	for key, value := range accepted {
		merged[key] = value
	}

	verdict := guardrail.Evaluate(guardrail.Input{
		Decision:     decision,
		CurrentPhase: state.Phase,
		History:      history,
		Schema:       &in.Bot.Schema,
		Merged:       merged,
	})

	workingState.Phase = verdict.FinalPhase
	workingState.CurrentTopic = decision.CurrentTopic
	workingState.RecomputeMissingInfo(&in.Bot.Schema)

	// Commit: from here on the turn has happened.
	convo.Messages = append(history, models.Message{Role: models.RoleBot, Content: verdict.Reply})
	convo.State = workingState
	convo.UpdatedAt = time.Now()

	result := &TurnResult{
		Reply:              verdict.Reply,
		State:              workingState,
		ServiceMismatch:    decision.ServiceMismatch,
		EnforcementApplied: verdict.EnforcementApplied,
	}

	if workingState.Phase == models.PhaseCompleted {
		c.handleCompletion(ctx, in, result)
	}

	// The state update is emitted only after the reply text and state refer
	// to the same finalized decision.
	if in.Emit != nil {
		in.Emit(models.StreamChunk{Type: models.ChunkTypeStateUpdate, State: result.State})
	}

	slog.Info("Controller.ProcessTurn: turn finished",
		"conversationID", convo.ID, "finalPhase", workingState.Phase,
		"enforcementApplied", verdict.EnforcementApplied, "gathered", len(merged), "missing", len(workingState.MissingInfo))
	return result, nil
}

// obtainDecision wraps only the model call in the retry combinator. A
// streaming turn stops retrying as soon as any token has been flushed, since
// the client has already rendered partial output.
func (c *Controller) obtainDecision(ctx context.Context, in TurnInput, state *models.ConversationState, history []models.Message) (*models.Decision, error) {
	messages := c.buildModelMessages(in, state, history)

	var decision *models.Decision
	flushed := false
	err := withRetry(ctx, c.retry, func() bool { return !flushed }, func(ctx context.Context) error {
		var callErr error
		if in.Emit != nil {
			decision, callErr = c.genaiClient.GenerateDecisionStream(ctx, messages, func(ev genai.StreamEvent) {
				switch ev.Type {
				case genai.StreamEventToken:
					flushed = true
					in.Emit(models.StreamChunk{Type: models.ChunkTypeToken, Content: ev.Token})
				case genai.StreamEventToolCall:
					in.Emit(models.StreamChunk{Type: models.ChunkTypeToolCall, ToolCall: &models.ToolCallPayload{
						Name:      ev.ToolCall.Name,
						Arguments: ev.ToolCall.Arguments,
					}})
				}
			})
		} else {
			decision, callErr = c.genaiClient.GenerateDecision(ctx, messages)
		}
		return callErr
	})
	if err != nil {
		return nil, err
	}
	return decision, nil
}

// buildModelMessages assembles the system instruction plus the transcript.
func (c *Controller) buildModelMessages(in TurnInput, state *models.ConversationState, history []models.Message) []openai.ChatCompletionMessageParamUnion {
	instruction := prompt.BuildIntakePrompt(prompt.Input{
		BusinessName:      in.Bot.Name,
		Schema:            &in.Bot.Schema,
		BusinessProfile:   in.Bot.BusinessProfile,
		State:             state,
		UploadedDocuments: state.UploadedDocuments,
		RequiredKeys:      in.Bot.Schema.RequiredKeys(),
		MissingKeys:       state.MissingInfo,
		ImageAnalysis:     in.ImageAnalysis,
		MessageHistory:    history,
	})

	messages := []openai.ChatCompletionMessageParamUnion{openai.SystemMessage(instruction)}
	for _, msg := range history {
		if msg.Role == models.RoleUser {
			messages = append(messages, openai.UserMessage(msg.Content))
		} else {
			messages = append(messages, openai.AssistantMessage(msg.Content))
		}
	}
	return messages
}

// filterExtraction drops keys outside the schema (extraction violations,
// logged and silently discarded) and values that fail their type's format
// check (validation rejections).
func (c *Controller) filterExtraction(bot *models.BotConfig, extracted map[string]string) map[string]string {
	accepted := make(map[string]string, len(extracted))
	for key, value := range extracted {
		item, ok := bot.Schema.RequiredInfo[key]
		if !ok {
			slog.Warn("Controller.filterExtraction: extraction violation, key not in schema", "botID", bot.ID, "key", key)
			continue
		}
		if err := models.ValidateFieldValue(item.Type, value); err != nil {
			slog.Warn("Controller.filterExtraction: validation rejection", "botID", bot.ID, "key", key, "type", item.Type, "error", err)
			continue
		}
		accepted[key] = value
	}
	return accepted
}

// handleCompletion performs the one-time submission handoff. A sink failure
// rolls the conversation back to confirmation so the user can retry with a
// fresh affirmation; the submitted flag is only left set on success.
func (c *Controller) handleCompletion(ctx context.Context, in TurnInput, result *TurnResult) {
	convo := in.Conversation
	convo.Submitted = true

	submission := models.Submission{
		BotID:               in.Bot.ID,
		GatheredInformation: result.State.GatheredInformation,
		Transcript:          append([]models.Message{}, convo.Messages...),
		UploadedFiles:       append([]models.UploadedFile{}, result.State.UploadedFiles...),
		CreatedAt:           time.Now(),
	}

	sinkResult, err := c.sink.Submit(ctx, submission)
	if err != nil || !sinkResult.Success {
		if err == nil {
			err = fmt.Errorf("sink reported failure")
		}
		slog.Error("Controller.handleCompletion: submission failed, rolling back", "error", err, "conversationID", convo.ID)
		convo.Submitted = false
		result.State.Phase = models.PhaseConfirmation
		result.Reply = SubmissionApology
		if n := len(convo.Messages); n > 0 && convo.Messages[n-1].Role == models.RoleBot {
			convo.Messages[n-1].Content = SubmissionApology
		}
		return
	}

	result.Submission = &sinkResult
	slog.Info("Controller.handleCompletion: submission accepted", "conversationID", convo.ID, "submissionID", sinkResult.SubmissionID)

	if c.notifier != nil {
		if err := c.notifier.NotifySubmission(ctx, in.Bot, submission); err != nil {
			slog.Warn("Controller.handleCompletion: notifier failed", "error", err, "botID", in.Bot.ID)
		}
	}
}

// composeUserContent folds upload markers into the user's message so the
// transcript records what arrived on this turn.
func composeUserContent(in TurnInput) string {
	content := in.UserMessage
	for _, f := range in.UploadedFiles {
		if content != "" {
			content += "\n"
		}
		content += fmt.Sprintf("[uploaded file: %s]", f.Filename)
	}
	for _, d := range in.UploadedDocuments {
		if content != "" {
			content += "\n"
		}
		content += fmt.Sprintf("[uploaded document: %s]", d.Filename)
	}
	return content
}

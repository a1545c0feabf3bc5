// Package genai: streaming decision generation and tool-call accumulation.
package genai

import (
	"context"
	"log/slog"
	"sort"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/shared"

	"github.com/chatformhq/chatform/internal/models"
)

// DecisionToolName is the function name recognized as carrying the decision
// object when the model answers via a tool call instead of plain JSON.
const DecisionToolName = "submit_decision"

// StreamEventType discriminates events emitted during a streaming call.
type StreamEventType string

const (
	StreamEventToken    StreamEventType = "token"
	StreamEventToolCall StreamEventType = "tool_call"
)

// StreamEvent is one incremental unit surfaced to the caller while a
// streaming decision is being assembled.
type StreamEvent struct {
	Type     StreamEventType
	Token    string
	ToolCall *ToolCall
}

// ToolCall is one fully-accumulated function call from the stream.
type ToolCall struct {
	Index     int64
	ID        string
	Name      string
	Arguments string
}

// ToolCallAccumulator assembles tool-call argument fragments keyed by call
// index. Fragments for the same index concatenate in arrival order; distinct
// indices are tracked independently and resolved together at stream end.
type ToolCallAccumulator struct {
	calls map[int64]*ToolCall
}

// NewToolCallAccumulator creates an empty accumulator.
func NewToolCallAccumulator() *ToolCallAccumulator {
	return &ToolCallAccumulator{calls: make(map[int64]*ToolCall)}
}

// Add folds one delta fragment into the accumulator. ID and name arrive on
// the first fragment of a call; argument text may be spread over many.
func (a *ToolCallAccumulator) Add(index int64, id, name, argumentsFragment string) {
	call, ok := a.calls[index]
	if !ok {
		call = &ToolCall{Index: index}
		a.calls[index] = call
	}
	if id != "" {
		call.ID = id
	}
	if name != "" {
		call.Name = name
	}
	call.Arguments += argumentsFragment
}

// Finalize flushes every accumulated call, ordered by index so tool-call
// ordering is deterministic regardless of fragment interleaving.
func (a *ToolCallAccumulator) Finalize() []ToolCall {
	out := make([]ToolCall, 0, len(a.calls))
	for _, call := range a.calls {
		out = append(out, *call)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out
}

// GenerateDecisionStream performs one streaming chat completion, forwarding
// every content token through emit as soon as it arrives and accumulating
// tool-call fragments by index. After the upstream stream ends the full
// output is parsed into a decision: a submit_decision tool call wins if
// present, otherwise the concatenated content is parsed as decision JSON.
//
// Tokens already emitted are never followed by a panic or a second terminal
// signal; a mid-stream failure is returned as an error for the caller to
// frame as a typed error event.
func (c *Client) GenerateDecisionStream(ctx context.Context, messages []openai.ChatCompletionMessageParamUnion, emit func(StreamEvent)) (*models.Decision, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	params := openai.ChatCompletionNewParams{
		Model:    c.model,
		Messages: messages,
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		},
	}

	stream := c.chat.NewStreaming(ctx, params)
	defer stream.Close()

	var content strings.Builder
	acc := NewToolCallAccumulator()

	for stream.Next() {
		chunk := stream.Current()
		if len(chunk.Choices) == 0 {
			continue
		}
		delta := chunk.Choices[0].Delta
		if delta.Content != "" {
			content.WriteString(delta.Content)
			emit(StreamEvent{Type: StreamEventToken, Token: delta.Content})
		}
		for _, tc := range delta.ToolCalls {
			acc.Add(tc.Index, tc.ID, tc.Function.Name, tc.Function.Arguments)
		}
	}
	if err := stream.Err(); err != nil {
		slog.Error("genai.GenerateDecisionStream: stream failed", "error", err, "tokensFlushed", content.Len() > 0)
		return nil, err
	}

	// All accumulators resolve at stream end; surface them in index order.
	toolCalls := acc.Finalize()
	for i := range toolCalls {
		emit(StreamEvent{Type: StreamEventToolCall, ToolCall: &toolCalls[i]})
	}

	decisionSource := content.String()
	for _, call := range toolCalls {
		if call.Name == DecisionToolName {
			decisionSource = call.Arguments
			break
		}
	}

	decision, err := ParseDecision([]byte(decisionSource))
	if err != nil {
		slog.Warn("genai.GenerateDecisionStream: decision parse failed", "error", err, "sourceLength", len(decisionSource))
		return nil, err
	}
	slog.Debug("genai.GenerateDecisionStream: decision parsed", "proposedPhase", decision.UpdatedPhase, "toolCalls", len(toolCalls))
	return decision, nil
}

// Package genai wraps the OpenAI API for intake decision generation.
//
// The conversation engine never talks to the model directly; it goes through
// ClientInterface so tests can substitute hand-written decisions.
package genai

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/ssestream"
	"github.com/openai/openai-go/shared"

	"github.com/chatformhq/chatform/internal/models"
)

// DefaultDecisionTimeout bounds one model call. A timeout is treated
// identically to any other decision failure and follows the retry path.
const DefaultDecisionTimeout = 60 * time.Second

// chatService defines the minimal surface of the OpenAI chat completion
// service used by this package; the concrete client satisfies it.
type chatService interface {
	New(ctx context.Context, params openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error)
	NewStreaming(ctx context.Context, params openai.ChatCompletionNewParams, opts ...option.RequestOption) *ssestream.Stream[openai.ChatCompletionChunk]
}

// ClientInterface is the decision-generation contract consumed by the
// session controller.
type ClientInterface interface {
	// GenerateDecision performs one buffered decision call.
	GenerateDecision(ctx context.Context, messages []openai.ChatCompletionMessageParamUnion) (*models.Decision, error)
	// GenerateDecisionStream performs one streaming decision call, invoking
	// emit for every event in arrival order before returning the final
	// parsed decision.
	GenerateDecisionStream(ctx context.Context, messages []openai.ChatCompletionMessageParamUnion, emit func(StreamEvent)) (*models.Decision, error)
}

// Opts holds configuration options for the GenAI client.
type Opts struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

// Option defines a configuration option for the GenAI client.
type Option func(*Opts)

// WithAPIKey sets the OpenAI API key, overriding $OPENAI_API_KEY.
func WithAPIKey(key string) Option {
	return func(o *Opts) { o.APIKey = key }
}

// WithBaseURL points the client at a non-default API endpoint.
func WithBaseURL(url string) Option {
	return func(o *Opts) { o.BaseURL = url }
}

// WithModel overrides the chat model used for decision calls.
func WithModel(model string) Option {
	return func(o *Opts) { o.Model = model }
}

// WithTimeout overrides the per-call timeout.
func WithTimeout(d time.Duration) Option {
	return func(o *Opts) { o.Timeout = d }
}

// Client wraps the OpenAI chat completion service for intake decisions.
type Client struct {
	chat    chatService
	model   shared.ChatModel
	timeout time.Duration
}

// NewClient initializes a GenAI client. The API key falls back to the
// OPENAI_API_KEY environment variable when not provided via options.
func NewClient(opts ...Option) (*Client, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if cfg.APIKey == "" {
		return nil, ErrAPIKeyMissing
	}
	if cfg.Model == "" {
		cfg.Model = openai.ChatModelGPT4oMini
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultDecisionTimeout
	}

	reqOpts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.BaseURL))
	}
	cli := openai.NewClient(reqOpts...)

	slog.Debug("genai.NewClient: client created", "model", cfg.Model, "timeout", cfg.Timeout, "baseURL_set", cfg.BaseURL != "")
	return &Client{
		chat:    &cli.Chat.Completions,
		model:   shared.ChatModel(cfg.Model),
		timeout: cfg.Timeout,
	}, nil
}

// GenerateDecision performs one buffered chat completion in JSON mode and
// parses the result into a decision. A malformed result (bad JSON, missing
// reply) is returned as a DecisionParseError; no default decision is ever
// synthesized here.
func (c *Client) GenerateDecision(ctx context.Context, messages []openai.ChatCompletionMessageParamUnion) (*models.Decision, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	params := openai.ChatCompletionNewParams{
		Model:    c.model,
		Messages: messages,
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		},
	}

	resp, err := c.chat.New(ctx, params)
	if err != nil {
		slog.Error("genai.GenerateDecision: completion call failed", "error", err)
		return nil, err
	}
	if len(resp.Choices) == 0 {
		slog.Error("genai.GenerateDecision: no choices returned")
		return nil, ErrNoChoicesReturned
	}

	decision, err := ParseDecision([]byte(resp.Choices[0].Message.Content))
	if err != nil {
		slog.Warn("genai.GenerateDecision: decision parse failed", "error", err, "contentLength", len(resp.Choices[0].Message.Content))
		return nil, err
	}
	slog.Debug("genai.GenerateDecision: decision parsed", "proposedPhase", decision.UpdatedPhase, "extractedKeys", len(decision.ExtractedInformation))
	return decision, nil
}

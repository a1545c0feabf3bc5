// Package notify wraps the Twilio API for submission alerts in chatform.
//
// Bot owners get one SMS per completed submission. Delivery is best effort
// and never blocks or fails a conversation turn.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"

	"github.com/chatformhq/chatform/internal/models"
)

// Notifier delivers a submission alert to the bot owner.
type Notifier interface {
	NotifySubmission(ctx context.Context, bot *models.BotConfig, submission models.Submission) error
}

// Opts holds configuration options for the Twilio SMS client.
type Opts struct {
	AccountSID string
	AuthToken  string
	FromNumber string
	ToNumber   string
}

// Option defines a configuration option for the Twilio SMS client.
type Option func(*Opts)

func WithAccountSID(sid string) Option {
	return func(o *Opts) { o.AccountSID = sid }
}

func WithAuthToken(token string) Option {
	return func(o *Opts) { o.AuthToken = token }
}

func WithFromNumber(from string) Option {
	return func(o *Opts) { o.FromNumber = from }
}

func WithToNumber(to string) Option {
	return func(o *Opts) { o.ToNumber = to }
}

// Client wraps the Twilio REST API for SMS alerts.
type Client struct {
	client     *twilio.RestClient
	fromNumber string
	toNumber   string
}

func NewClient(opts ...Option) (*Client, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	// Fallback to environment variables if not provided via options
	if cfg.AccountSID == "" {
		cfg.AccountSID = os.Getenv("TWILIO_ACCOUNT_SID")
	}
	if cfg.AuthToken == "" {
		cfg.AuthToken = os.Getenv("TWILIO_AUTH_TOKEN")
	}
	if cfg.FromNumber == "" {
		cfg.FromNumber = os.Getenv("TWILIO_FROM_NUMBER")
	}
	if cfg.ToNumber == "" {
		cfg.ToNumber = os.Getenv("TWILIO_NOTIFY_NUMBER")
	}
	slog.Debug("Twilio client config loaded",
		"AccountSID_set", cfg.AccountSID != "",
		"AuthToken_set", cfg.AuthToken != "",
		"FromNumber_set", cfg.FromNumber != "",
		"ToNumber_set", cfg.ToNumber != "")

	if cfg.AccountSID == "" || cfg.AuthToken == "" {
		return nil, fmt.Errorf("account SID and auth token must be provided")
	}
	if cfg.FromNumber == "" || cfg.ToNumber == "" {
		return nil, fmt.Errorf("from and notify numbers must be provided")
	}

	client := twilio.NewRestClientWithParams(
		twilio.ClientParams{
			Username: cfg.AccountSID,
			Password: cfg.AuthToken,
		},
	)

	return &Client{
		client:     client,
		fromNumber: cfg.FromNumber,
		toNumber:   cfg.ToNumber,
	}, nil
}

// NotifySubmission sends one SMS summarizing the completed submission.
func (c *Client) NotifySubmission(ctx context.Context, bot *models.BotConfig, submission models.Submission) error {
	params := &twilioApi.CreateMessageParams{}
	params.SetTo(c.toNumber)
	params.SetFrom(c.fromNumber)
	params.SetBody(FormatSubmissionAlert(bot, submission))

	_, err := c.client.Api.CreateMessage(params)
	if err != nil {
		slog.Error("Twilio NotifySubmission failed", "botID", bot.ID, "error", err)
		return fmt.Errorf("failed to send submission alert for bot %s: %w", bot.ID, err)
	}

	slog.Debug("Twilio submission alert sent", "botID", bot.ID, "submissionID", submission.ID)
	return nil
}

// FormatSubmissionAlert renders the SMS body: one header line plus one line
// per gathered field, labeled with the field's schema description.
func FormatSubmissionAlert(bot *models.BotConfig, submission models.Submission) string {
	var b strings.Builder
	fmt.Fprintf(&b, "New submission for %s:\n", bot.Name)
	for _, key := range bot.Schema.RequiredKeys() {
		value, ok := submission.GatheredInformation[key]
		if !ok {
			continue
		}
		label := bot.Schema.RequiredInfo[key].Description
		if label == "" {
			label = key
		}
		fmt.Fprintf(&b, "%s: %s\n", label, value)
	}
	return strings.TrimRight(b.String(), "\n")
}

// MockClient records alerts for tests.
type MockClient struct {
	Alerts []Alert
	Err    error
}

// Alert is one recorded notification.
type Alert struct {
	BotID        string
	SubmissionID string
	Body         string
}

func NewMockClient() *MockClient {
	return &MockClient{Alerts: []Alert{}}
}

func (m *MockClient) NotifySubmission(ctx context.Context, bot *models.BotConfig, submission models.Submission) error {
	if m.Err != nil {
		return m.Err
	}
	m.Alerts = append(m.Alerts, Alert{
		BotID:        bot.ID,
		SubmissionID: submission.ID,
		Body:         FormatSubmissionAlert(bot, submission),
	})
	return nil
}

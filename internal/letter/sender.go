// Package letter delivers "dream letters": the closing line of a night's
// enrichment, sent by SMS the following morning.
package letter

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
)

// Sender sends a single dream letter.
type Sender interface {
	SendLetter(ctx context.Context, to string, body string) error
}

// Opts holds configuration options for the Twilio SMS sender.
type Opts struct {
	AccountSID string
	AuthToken  string
	FromNumber string
}

// Option defines a configuration option for the Twilio SMS sender.
type Option func(*Opts)

// WithAccountSID sets the Twilio account SID.
func WithAccountSID(sid string) Option {
	return func(o *Opts) { o.AccountSID = sid }
}

// WithAuthToken sets the Twilio auth token.
func WithAuthToken(token string) Option {
	return func(o *Opts) { o.AuthToken = token }
}

// WithFromNumber sets the sending phone number in E.164 format.
func WithFromNumber(from string) Option {
	return func(o *Opts) { o.FromNumber = from }
}

// TwilioSender sends dream letters over SMS via the Twilio REST API.
type TwilioSender struct {
	client     *twilio.RestClient
	fromNumber string
}

// NewTwilioSender creates a Twilio-backed sender. Options missing from the
// call fall back to the TWILIO_ACCOUNT_SID, TWILIO_AUTH_TOKEN, and
// TWILIO_FROM_NUMBER environment variables.
func NewTwilioSender(opts ...Option) (*TwilioSender, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.AccountSID == "" {
		cfg.AccountSID = os.Getenv("TWILIO_ACCOUNT_SID")
	}
	if cfg.AuthToken == "" {
		cfg.AuthToken = os.Getenv("TWILIO_AUTH_TOKEN")
	}
	if cfg.FromNumber == "" {
		cfg.FromNumber = os.Getenv("TWILIO_FROM_NUMBER")
	}
	slog.Debug("Twilio sender config loaded",
		"AccountSID_set", cfg.AccountSID != "",
		"AuthToken_set", cfg.AuthToken != "",
		"FromNumber_set", cfg.FromNumber != "")

	if cfg.AccountSID == "" || cfg.AuthToken == "" {
		return nil, fmt.Errorf("account SID and auth token must be provided")
	}
	if cfg.FromNumber == "" {
		return nil, fmt.Errorf("from number must be provided")
	}

	client := twilio.NewRestClientWithParams(
		twilio.ClientParams{
			Username: cfg.AccountSID,
			Password: cfg.AuthToken,
		},
	)

	return &TwilioSender{
		client:     client,
		fromNumber: cfg.FromNumber,
	}, nil
}

// SendLetter sends a dream letter SMS using the Twilio API.
func (s *TwilioSender) SendLetter(ctx context.Context, to string, body string) error {
	params := &twilioApi.CreateMessageParams{}
	params.SetTo(to)
	params.SetFrom(s.fromNumber)
	params.SetBody(body)

	_, err := s.client.Api.CreateMessage(params)
	if err != nil {
		slog.Error("Twilio SendLetter failed", "to", to, "error", err)
		return fmt.Errorf("failed to send letter to %s: %w", to, err)
	}

	slog.Debug("Twilio letter sent", "to", to)
	return nil
}

// SentLetter records a delivery made through the mock sender.
type SentLetter struct {
	To   string
	Body string
}

// MockSender records letters instead of sending them. Used in tests and as
// the default sender when Twilio credentials are absent.
type MockSender struct {
	SentLetters []SentLetter
	Err         error
}

func NewMockSender() *MockSender {
	return &MockSender{SentLetters: []SentLetter{}}
}

func (m *MockSender) SendLetter(ctx context.Context, to string, body string) error {
	if m.Err != nil {
		return m.Err
	}
	m.SentLetters = append(m.SentLetters, SentLetter{To: to, Body: body})
	return nil
}

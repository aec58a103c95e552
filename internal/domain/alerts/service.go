package alerts

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/slack-go/slack"
)

type WebhookPoster func(ctx context.Context, url string, msg *slack.WebhookMessage) error

type Recorder interface {
	AlertRaised(alertType string)
}

// Service is the alert sink: it persists alerts and fans new ones out to e-mail and Slack.
// Fan-out is best-effort; only the insert can fail a raise.
type Service struct {
	store    StoreAPI
	Mailer   Mailer
	From     string
	To       string
	Webhook  string
	post     WebhookPoster
	recorder Recorder
}

type Option func(*Service)

func WithMailer(mailer Mailer, from, to string) Option {
	return func(s *Service) {
		s.Mailer = mailer
		s.From = from
		s.To = to
	}
}

func WithSlackWebhook(url string) Option {
	return func(s *Service) { s.Webhook = url }
}

func WithWebhookPoster(post WebhookPoster) Option {
	return func(s *Service) { s.post = post }
}

func WithRecorder(r Recorder) Option {
	return func(s *Service) { s.recorder = r }
}

func New(store StoreAPI, opts ...Option) *Service {
	s := &Service{store: store, post: slack.PostWebhookContext}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) Raise(ctx context.Context, candidate Candidate) (Alert, error) {
	if strings.TrimSpace(candidate.Type) == "" || strings.TrimSpace(candidate.Message) == "" {
		return Alert{}, fmt.Errorf("alert type and message are required")
	}
	alert, err := s.store.Create(ctx, candidate)
	if err != nil {
		return Alert{}, err
	}
	if s.recorder != nil {
		s.recorder.AlertRaised(alert.Type)
	}
	s.fanOut(ctx, alert)
	return alert, nil
}

func (s *Service) fanOut(ctx context.Context, alert Alert) {
	subject := fmt.Sprintf("[%s] %s", alert.Source, alert.Type)
	if s.Mailer != nil && s.To != "" {
		if err := s.Mailer.Send(ctx, s.From, s.To, subject, alert.Message); err != nil {
			slog.Warn("alert email send failed", "alertId", alert.ID, "err", err)
		}
	}
	if s.Webhook != "" && s.post != nil {
		msg := &slack.WebhookMessage{Text: fmt.Sprintf("*%s*\n%s", subject, alert.Message)}
		if err := s.post(ctx, s.Webhook, msg); err != nil {
			slog.Warn("alert slack post failed", "alertId", alert.ID, "err", err)
		}
	}
}

func (s *Service) ListUnread(ctx context.Context, filter Filter) ([]Alert, error) {
	return s.store.ListUnread(ctx, filter)
}

func (s *Service) MarkRead(ctx context.Context, id string) error {
	return s.store.MarkRead(ctx, id)
}

func (s *Service) DismissByKey(ctx context.Context, recordType, recordKey string) (int64, error) {
	if recordType == "" || recordKey == "" {
		return 0, fmt.Errorf("record type and key are required")
	}
	return s.store.DismissByKey(ctx, recordType, recordKey)
}

package email

import (
	"context"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/ses"

	"detailpay/internal/platform/config"
)

func TestBuildMessageHeaders(t *testing.T) {
	msg := string(buildMessage("payroll@example.com", "owner@example.com", "Payroll overdue", "Jane is overdue"))
	if !strings.HasPrefix(msg, "From: payroll@example.com\r\nTo: owner@example.com\r\nSubject: Payroll overdue\r\n") {
		t.Fatalf("unexpected headers %q", msg)
	}
	if !strings.HasSuffix(msg, "\r\n\r\nJane is overdue") {
		t.Fatalf("expected body after blank line, got %q", msg)
	}
}

func TestNewReturnsNoopWhenDisabled(t *testing.T) {
	mailer := New(context.Background(), config.Config{EmailEnabled: false})
	if _, ok := mailer.(noopMailer); !ok {
		t.Fatalf("expected noop mailer, got %T", mailer)
	}
}

type fakeSES struct {
	input *ses.SendEmailInput
}

func (f *fakeSES) SendEmail(_ context.Context, params *ses.SendEmailInput, _ ...func(*ses.Options)) (*ses.SendEmailOutput, error) {
	f.input = params
	return &ses.SendEmailOutput{}, nil
}

func TestSESMailerSendsPlainText(t *testing.T) {
	client := &fakeSES{}
	mailer := &SESMailer{client: client}
	if err := mailer.Send(context.Background(), "a@example.com", "b@example.com", "subject", "body"); err != nil {
		t.Fatalf("send: %v", err)
	}
	if client.input == nil || client.input.Destination.ToAddresses[0] != "b@example.com" {
		t.Fatal("expected destination to be set")
	}
	if *client.input.Message.Body.Text.Data != "body" {
		t.Fatalf("unexpected body %q", *client.input.Message.Body.Text.Data)
	}
}

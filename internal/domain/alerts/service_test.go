package alerts

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/slack-go/slack"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryStore struct {
	alerts []Alert
	fail   error
}

func (m *memoryStore) Create(_ context.Context, c Candidate) (Alert, error) {
	if m.fail != nil {
		return Alert{}, m.fail
	}
	a := Alert{ID: fmt.Sprintf("a%d", len(m.alerts)+1), Type: c.Type, Message: c.Message, Source: c.Source, Payload: c.Payload, RecordType: c.RecordType, RecordKey: c.RecordKey, Timestamp: now}
	m.alerts = append(m.alerts, a)
	return a, nil
}

func (m *memoryStore) ListUnread(_ context.Context, f Filter) ([]Alert, error) {
	var out []Alert
	for _, a := range m.alerts {
		if a.Read || (f.Type != "" && a.Type != f.Type) {
			continue
		}
		out = append(out, a)
	}
	return out, nil
}

func (m *memoryStore) MarkRead(_ context.Context, id string) error {
	for i := range m.alerts {
		if m.alerts[i].ID == id {
			m.alerts[i].Read = true
			return nil
		}
	}
	return ErrNotFound
}

func (m *memoryStore) DismissByKey(_ context.Context, recordType, recordKey string) (int64, error) {
	var n int64
	for i := range m.alerts {
		if !m.alerts[i].Read && m.alerts[i].RecordType == recordType && m.alerts[i].RecordKey == recordKey {
			m.alerts[i].Read = true
			n++
		}
	}
	return n, nil
}

type recordingMailer struct {
	to, subject string
	err         error
}

func (r *recordingMailer) Send(_ context.Context, _, to, subject, _ string) error {
	r.to = to
	r.subject = subject
	return r.err
}

type countingRecorder struct{ raised map[string]int }

func (c *countingRecorder) AlertRaised(alertType string) { c.raised[alertType]++ }

func TestRaiseFansOutAndRecords(t *testing.T) {
	store := &memoryStore{}
	mailer := &recordingMailer{}
	recorder := &countingRecorder{raised: map[string]int{}}
	var posted *slack.WebhookMessage
	svc := New(store,
		WithMailer(mailer, "payroll@example.com", "owner@example.com"),
		WithSlackWebhook("https://hooks.slack.test/abc"),
		WithWebhookPoster(func(_ context.Context, _ string, msg *slack.WebhookMessage) error {
			posted = msg
			return nil
		}),
		WithRecorder(recorder),
	)

	alert, err := svc.Raise(context.Background(), Candidate{Type: TypePayrollDue, Message: "Payroll overdue for Jane", Source: SourcePayroll})
	require.NoError(t, err)
	assert.Equal(t, TypePayrollDue, alert.Type)
	assert.Equal(t, "owner@example.com", mailer.to)
	require.NotNil(t, posted)
	assert.Contains(t, posted.Text, "Payroll overdue for Jane")
	assert.Equal(t, 1, recorder.raised[TypePayrollDue])
}

func TestRaiseSurvivesFanOutFailures(t *testing.T) {
	store := &memoryStore{}
	svc := New(store,
		WithMailer(&recordingMailer{err: errors.New("smtp down")}, "a@example.com", "b@example.com"),
		WithSlackWebhook("https://hooks.slack.test/abc"),
		WithWebhookPoster(func(context.Context, string, *slack.WebhookMessage) error { return errors.New("slack down") }),
	)
	_, err := svc.Raise(context.Background(), Candidate{Type: TypePayrollPaid, Message: "Payroll paid", Source: SourcePayroll})
	require.NoError(t, err)
	assert.Len(t, store.alerts, 1)
}

func TestRaiseRejectsEmptyCandidate(t *testing.T) {
	svc := New(&memoryStore{})
	_, err := svc.Raise(context.Background(), Candidate{Type: TypePayrollPaid})
	assert.Error(t, err)
}

func TestDismissByKeyOnlyTouchesMatchingRecord(t *testing.T) {
	store := &memoryStore{}
	svc := New(store)
	ctx := context.Background()
	_, err := svc.Raise(ctx, Candidate{Type: TypePayrollDue, Message: "Jane due", RecordType: RecordTypeEmployee, RecordKey: "emp-1"})
	require.NoError(t, err)
	_, err = svc.Raise(ctx, Candidate{Type: TypePayrollDue, Message: "Sam due", RecordType: RecordTypeEmployee, RecordKey: "emp-2"})
	require.NoError(t, err)

	n, err := svc.DismissByKey(ctx, RecordTypeEmployee, "emp-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	unread, err := svc.ListUnread(ctx, Filter{Type: TypePayrollDue})
	require.NoError(t, err)
	require.Len(t, unread, 1)
	assert.Equal(t, "Sam due", unread[0].Message)

	_, err = svc.DismissByKey(ctx, "", "emp-1")
	assert.Error(t, err)
}

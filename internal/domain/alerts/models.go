package alerts

import (
	"context"
	"time"
)

type Alert struct {
	ID         string         `json:"id"`
	Type       string         `json:"type"`
	Message    string         `json:"message"`
	Source     string         `json:"source"`
	Payload    map[string]any `json:"payload"`
	RecordType string         `json:"recordType,omitempty"`
	RecordKey  string         `json:"recordKey,omitempty"`
	Read       bool           `json:"read"`
	Timestamp  time.Time      `json:"timestamp"`
}

// Candidate is an alert that has not been written yet.
type Candidate struct {
	Type       string
	Message    string
	Source     string
	Payload    map[string]any
	RecordType string
	RecordKey  string
}

type Filter struct {
	Type       string
	RecordType string
	RecordKey  string
}

type Mailer interface {
	Send(ctx context.Context, from, to, subject, body string) error
}

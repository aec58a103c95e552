package alerts

import (
	"strings"
	"time"
	"unicode"
	"unicode/utf8"
)

// Rule decides whether an existing alert already covers a candidate.
type Rule interface {
	Covers(existing Alert, candidate Candidate, now time.Time) bool
}

// ShouldCreate reports whether candidate may be written given the alerts that exist now.
// A nil rule never suppresses.
func ShouldCreate(existing []Alert, candidate Candidate, rule Rule, now time.Time) bool {
	if rule == nil {
		return true
	}
	for _, alert := range existing {
		if alert.Type != candidate.Type {
			continue
		}
		if rule.Covers(alert, candidate, now) {
			return false
		}
	}
	return true
}

// EmployeeWindow suppresses when an unread alert about the same employee was raised inside
// Window. Identity is the employee id on the record key when both sides have one, else the
// employee name in the payload. Alerts without that payload fall back to the name as a
// whole word in the message.
type EmployeeWindow struct {
	EmployeeID string
	Employee   string
	Window     time.Duration
}

func (r EmployeeWindow) Covers(existing Alert, _ Candidate, now time.Time) bool {
	if existing.Read || now.Sub(existing.Timestamp) > r.Window {
		return false
	}
	if r.EmployeeID != "" && employeeScoped(existing.RecordType) && existing.RecordKey != "" {
		return existing.RecordKey == r.EmployeeID
	}
	name := strings.TrimSpace(r.Employee)
	if name == "" {
		return false
	}
	if named := payloadString(existing.Payload, PayloadEmployee); named != "" {
		return strings.EqualFold(strings.TrimSpace(named), name)
	}
	return containsWord(existing.Message, name)
}

func employeeScoped(recordType string) bool {
	return recordType == RecordTypeEmployee || recordType == RecordTypeEmployeeDue
}

// containsWord reports whether word occurs in text, case-insensitively, with no letter or
// digit directly before or after it.
func containsWord(text, word string) bool {
	text, word = strings.ToLower(text), strings.ToLower(word)
	for offset := 0; ; {
		i := strings.Index(text[offset:], word)
		if i < 0 {
			return false
		}
		start := offset + i
		end := start + len(word)
		before, _ := utf8.DecodeLastRuneInString(text[:start])
		after, _ := utf8.DecodeRuneInString(text[end:])
		if (start == 0 || !isWordRune(before)) && (end == len(text) || !isWordRune(after)) {
			return true
		}
		offset = start + 1
	}
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

// PeriodKey suppresses when an alert already carries the exact period pair and message substring.
type PeriodKey struct {
	Start           string
	End             string
	MessageContains string
}

func (r PeriodKey) Covers(existing Alert, _ Candidate, _ time.Time) bool {
	if payloadString(existing.Payload, PayloadPeriodStart) != r.Start {
		return false
	}
	if payloadString(existing.Payload, PayloadPeriodEnd) != r.End {
		return false
	}
	return strings.Contains(existing.Message, r.MessageContains)
}

func payloadString(payload map[string]any, key string) string {
	if payload == nil {
		return ""
	}
	value, ok := payload[key].(string)
	if !ok {
		return ""
	}
	return value
}

// SameRecord suppresses when an unread alert already points at the same record.
type SameRecord struct {
	RecordType string
	RecordKey  string
}

func (r SameRecord) Covers(existing Alert, _ Candidate, _ time.Time) bool {
	return !existing.Read && existing.RecordType == r.RecordType && existing.RecordKey == r.RecordKey
}

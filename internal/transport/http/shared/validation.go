package shared

import (
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"detailpay/internal/transport/http/api"
)

type ValidationIssue struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

// QueryCheck reads optional query parameters and collects every problem instead of
// stopping at the first one.
type QueryCheck struct {
	values url.Values
	issues []ValidationIssue
}

func CheckQuery(r *http.Request) *QueryCheck {
	return &QueryCheck{values: r.URL.Query()}
}

func (c *QueryCheck) fail(field, reason string) {
	c.issues = append(c.issues, ValidationIssue{Field: field, Reason: reason})
}

func (c *QueryCheck) String(name string) string {
	return strings.TrimSpace(c.values.Get(name))
}

// OneOf returns the allowed spelling of a case-insensitive match, or "" when the parameter
// is absent or invalid.
func (c *QueryCheck) OneOf(name string, allowed ...string) string {
	raw := c.String(name)
	if raw == "" {
		return ""
	}
	for _, candidate := range allowed {
		if strings.EqualFold(raw, candidate) {
			return candidate
		}
	}
	c.fail(name, "must be one of "+strings.Join(allowed, ", "))
	return ""
}

func (c *QueryCheck) Date(name string) *time.Time {
	raw := c.String(name)
	if raw == "" {
		return nil
	}
	parsed, err := ParseDate(raw)
	if err != nil || parsed.IsZero() {
		c.fail(name, "must be a valid date in YYYY-MM-DD format")
		return nil
	}
	return &parsed
}

func (c *QueryCheck) Ordered(startName string, start *time.Time, endName string, end *time.Time) {
	if start == nil || end == nil || !end.Before(*start) {
		return
	}
	c.fail(startName, "must be on or before "+endName)
	c.fail(endName, "must be on or after "+startName)
}

// Issues are sorted by field so responses are stable.
func (c *QueryCheck) Issues() []ValidationIssue {
	if len(c.issues) == 0 {
		return nil
	}
	out := append([]ValidationIssue(nil), c.issues...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Field < out[j].Field })
	return out
}

func FailValidation(w http.ResponseWriter, requestID string, issues []ValidationIssue) {
	api.FailWithDetails(w, http.StatusBadRequest, "validation_error", "payload validation failed",
		map[string]any{"fields": issues}, requestID)
}

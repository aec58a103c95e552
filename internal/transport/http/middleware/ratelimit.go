package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"detailpay/internal/platform/cache"
	"detailpay/internal/transport/http/api"
	"detailpay/internal/transport/http/shared"
)

type RateLimitKeyFunc func(r *http.Request) string

// limiter applies one budget per key. Counts live in the shared counter so every instance
// behind the load balancer sees the same totals when Redis is configured.
type limiter struct {
	name    string
	limit   int
	window  time.Duration
	keyFn   RateLimitKeyFunc
	counter cache.Counter
}

// SensitiveMutationRateLimit throttles logins per IP and per e-mail, and throttles money
// moving or destructive payroll calls per operator. Everything else passes untouched.
func SensitiveMutationRateLimit(counter cache.Counter, baseLimit int, window time.Duration) func(http.Handler) http.Handler {
	authLimit := max(baseLimit/4, 1)
	mutationLimit := max(baseLimit/2, 1)
	login := []limiter{
		{name: "login-ip", limit: authLimit, window: window, keyFn: shared.ClientIP, counter: counter},
		{name: "login-email", limit: authLimit, window: window, keyFn: jsonFieldOrIPKey("email"), counter: counter},
	}
	payroll := []limiter{
		{name: "payroll", limit: mutationLimit, window: window, keyFn: actorOrIPKey, counter: counter},
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var chain []limiter
			switch sensitiveRateScope(r) {
			case sensitiveScopeAuth:
				chain = login
			case sensitiveScopeActor:
				chain = payroll
			}
			for _, l := range chain {
				if !l.allow(w, r) {
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

func jsonFieldOrIPKey(field string) RateLimitKeyFunc {
	return func(r *http.Request) string {
		value := peekJSONField(r, field)
		if value == "" {
			return shared.ClientIP(r)
		}
		return field + ":" + strings.ToLower(value)
	}
}

func actorOrIPKey(r *http.Request) string {
	if user, ok := GetUser(r.Context()); ok && user.UserID != "" {
		return "user:" + user.UserID
	}
	return shared.ClientIP(r)
}

// allow counts the request and writes the 429 itself when over budget. A counter outage
// lets the request through.
func (l limiter) allow(w http.ResponseWriter, r *http.Request) bool {
	if l.limit <= 0 {
		return true
	}
	key := l.keyFn(r)
	if key == "" {
		key = shared.ClientIP(r)
	}
	count, resetIn, err := l.counter.Hit(r.Context(), "ratelimit:"+l.name+":"+key, l.window)
	if err != nil {
		slog.Warn("rate limit counter failed", "limiter", l.name, "err", err)
		return true
	}
	resetSec := ceilSeconds(resetIn)

	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(l.limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(max(l.limit-int(count), 0)))
	w.Header().Set("X-RateLimit-Reset", strconv.Itoa(resetSec))

	if count <= int64(l.limit) {
		return true
	}
	w.Header().Set("Retry-After", strconv.Itoa(max(resetSec, 1)))
	slog.Warn("rate limit exceeded",
		"limiter", l.name,
		"key", key,
		"path", r.URL.Path,
		"method", r.Method,
		"limit", l.limit,
	)
	api.Fail(w, http.StatusTooManyRequests, "rate_limited", "too many requests", GetRequestID(r.Context()))
	return false
}

func ceilSeconds(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int((d + time.Second - 1) / time.Second)
}

// peekJSONField reads one string field from a JSON body and restores the body for the
// handler.
func peekJSONField(r *http.Request, field string) string {
	if r.Body == nil || !strings.Contains(strings.ToLower(r.Header.Get("Content-Type")), "application/json") {
		return ""
	}
	raw, err := io.ReadAll(io.LimitReader(r.Body, 64*1024))
	if err != nil {
		return ""
	}
	r.Body = io.NopCloser(bytes.NewReader(raw))
	var payload map[string]any
	if json.Unmarshal(raw, &payload) != nil {
		return ""
	}
	value, _ := payload[field].(string)
	return strings.TrimSpace(value)
}

type sensitiveScope string

const (
	sensitiveScopeNone  sensitiveScope = ""
	sensitiveScopeAuth  sensitiveScope = "auth"
	sensitiveScopeActor sensitiveScope = "actor"
)

var payrollMutations = map[string]bool{
	"/payroll/payments":           true,
	"/payroll/worksheet/finalize": true,
	"/payroll/history/update":     true,
	"/payroll/history/delete":     true,
}

func sensitiveRateScope(r *http.Request) sensitiveScope {
	switch r.Method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
	default:
		return sensitiveScopeNone
	}
	path := strings.TrimPrefix(r.URL.Path, "/api/v1")
	switch {
	case path == "/auth/login":
		return sensitiveScopeAuth
	case payrollMutations[path]:
		return sensitiveScopeActor
	case strings.HasPrefix(path, "/payroll/jobs/") && strings.HasSuffix(path, "/reopen"):
		return sensitiveScopeActor
	}
	return sensitiveScopeNone
}

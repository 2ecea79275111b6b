package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap/zaptest"
)

type fakeRateLimitStore struct {
	trimErr   error
	count     int
	countErr  error
	oldest    time.Time
	hasOldest bool
	recordErr error

	recordedKey string
	recordCalls int
}

func (f *fakeRateLimitStore) TrimWindow(ctx context.Context, identifier string, window time.Duration, reference time.Time) error {
	return f.trimErr
}

func (f *fakeRateLimitStore) CountAttempts(ctx context.Context, identifier string, window time.Duration, reference time.Time) (int, error) {
	return f.count, f.countErr
}

func (f *fakeRateLimitStore) RecordAttempt(ctx context.Context, identifier string, at time.Time) error {
	f.recordedKey = identifier
	f.recordCalls++
	return f.recordErr
}

func (f *fakeRateLimitStore) OldestAttempt(ctx context.Context, identifier string, window time.Duration, reference time.Time) (time.Time, bool, error) {
	return f.oldest, f.hasOldest, nil
}

func newRateLimitRouter(limiter *RateLimiter, rule RateLimitRule) *gin.Engine {
	gin.SetMode(gin.TestMode)

	router := gin.New()
	router.Use(limiter.RateLimit(rule))
	router.POST("/login", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	return router
}

func TestRateLimiterAllowsWhenBelowLimit(t *testing.T) {
	now := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	store := &fakeRateLimitStore{count: 2}

	limiter := NewRateLimiter(store, zaptest.NewLogger(t)).WithClock(func() time.Time { return now })
	router := newRateLimitRouter(limiter, RateLimitRule{Name: "login_ip", Limit: 5, Window: time.Minute})

	req := httptest.NewRequest(http.MethodPost, "/login", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if store.recordCalls != 1 {
		t.Fatalf("expected record attempt once, got %d", store.recordCalls)
	}
}

func TestRateLimiterRejectsAtLimit(t *testing.T) {
	now := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	store := &fakeRateLimitStore{
		count:     5,
		oldest:    now.Add(-20 * time.Second),
		hasOldest: true,
	}

	limiter := NewRateLimiter(store, zaptest.NewLogger(t)).WithClock(func() time.Time { return now })
	router := newRateLimitRouter(limiter, RateLimitRule{Name: "login_ip", Limit: 5, Window: time.Minute})

	req := httptest.NewRequest(http.MethodPost, "/login", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rr.Code)
	}
	if got := rr.Header().Get("Retry-After"); got != "40" {
		t.Fatalf("expected Retry-After 40, got %q", got)
	}

	var problem ProblemDetails
	if err := json.Unmarshal(rr.Body.Bytes(), &problem); err != nil {
		t.Fatalf("decode problem payload: %v", err)
	}
	if problem.Status != http.StatusTooManyRequests {
		t.Fatalf("expected problem status 429, got %d", problem.Status)
	}
	if problem.RetryAfter != 40 {
		t.Fatalf("expected retry_after 40, got %d", problem.RetryAfter)
	}
	if store.recordCalls != 0 {
		t.Fatalf("rejected request must not record an attempt, got %d", store.recordCalls)
	}
}

func TestRateLimiterFailsOpenOnStoreError(t *testing.T) {
	store := &fakeRateLimitStore{countErr: errors.New("redis down")}

	limiter := NewRateLimiter(store, zaptest.NewLogger(t))
	router := newRateLimitRouter(limiter, RateLimitRule{Name: "login_ip", Limit: 5, Window: time.Minute})

	req := httptest.NewRequest(http.MethodPost, "/login", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 on store failure, got %d", rr.Code)
	}
}

func TestRateLimiterScopesKeysByRuleName(t *testing.T) {
	store := &fakeRateLimitStore{}

	limiter := NewRateLimiter(store, zaptest.NewLogger(t))
	router := newRateLimitRouter(limiter, RateLimitRule{Name: "reset_ip", Limit: 3, Window: time.Hour})

	req := httptest.NewRequest(http.MethodPost, "/login", nil)
	req.RemoteAddr = "192.0.2.10:4455"
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if store.recordedKey != "reset_ip:192.0.2.10" {
		t.Fatalf("unexpected storage key %q", store.recordedKey)
	}
}

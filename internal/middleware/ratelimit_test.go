package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"
)

type fakeLimitRecorder struct {
	mu     sync.Mutex
	groups []string
}

func (f *fakeLimitRecorder) RecordRateLimited(group string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.groups = append(f.groups, group)
}

func newTestLimiter(t *testing.T, limit int, window time.Duration, recorder RateLimitRecorder) *RateLimiter {
	t.Helper()
	rl := NewRateLimiter(map[string]RateLimitGroup{
		GroupGeneral: {Name: GroupGeneral, Limit: limit, Window: window, Message: "Too many requests from this IP, please try again later."},
		GroupAuth:    {Name: GroupAuth, Limit: limit, Window: window, Message: "Too many authentication attempts, please try again later."},
	}, time.Minute, recorder)
	t.Cleanup(rl.Stop)
	return rl
}

func requestFrom(ip string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/api/test", nil)
	req.RemoteAddr = ip + ":12345"
	return req
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestRateLimiter_AllowsRequestsWithinLimit(t *testing.T) {
	rl := newTestLimiter(t, 5, time.Minute, nil)
	handler := rl.Middleware(GroupGeneral)(okHandler())

	for i := 0; i < 5; i++ {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, requestFrom("10.0.0.1"))

		if w.Code != http.StatusOK {
			t.Errorf("request %d: status = %d, want %d", i, w.Code, http.StatusOK)
		}
		if got, want := w.Header().Get("RateLimit-Remaining"), strconv.Itoa(4-i); got != want {
			t.Errorf("request %d: RateLimit-Remaining = %q, want %q", i, got, want)
		}
	}
}

func TestRateLimiter_Returns429WhenLimitExceeded(t *testing.T) {
	recorder := &fakeLimitRecorder{}
	rl := newTestLimiter(t, 2, 15*time.Minute, recorder)
	handler := rl.Middleware(GroupAuth)(okHandler())

	for i := 0; i < 2; i++ {
		handler.ServeHTTP(httptest.NewRecorder(), requestFrom("10.0.0.2"))
	}

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, requestFrom("10.0.0.2"))

	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusTooManyRequests)
	}

	retryAfter, err := strconv.Atoi(w.Header().Get("Retry-After"))
	if err != nil {
		t.Fatalf("Retry-After is not an integer: %q", w.Header().Get("Retry-After"))
	}
	if retryAfter < 1 || retryAfter > 900 {
		t.Errorf("Retry-After = %d, want within (0, 900]", retryAfter)
	}

	var body ErrorResponseBody
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response body: %v", err)
	}
	if body.Success {
		t.Error("success = true, want false")
	}
	if body.Message != "Too many authentication attempts, please try again later." {
		t.Errorf("message = %q", body.Message)
	}

	if len(recorder.groups) != 1 || recorder.groups[0] != GroupAuth {
		t.Errorf("recorded groups = %v, want [%s]", recorder.groups, GroupAuth)
	}
}

func TestRateLimiter_IndependentPerIP(t *testing.T) {
	rl := newTestLimiter(t, 1, time.Minute, nil)
	handler := rl.Middleware(GroupGeneral)(okHandler())

	w1 := httptest.NewRecorder()
	handler.ServeHTTP(w1, requestFrom("10.0.0.3"))
	w2 := httptest.NewRecorder()
	handler.ServeHTTP(w2, requestFrom("10.0.0.4"))

	if w1.Code != http.StatusOK || w2.Code != http.StatusOK {
		t.Errorf("statuses = %d, %d, want both 200", w1.Code, w2.Code)
	}
}

func TestRateLimiter_IndependentPerGroup(t *testing.T) {
	rl := newTestLimiter(t, 1, time.Minute, nil)
	general := rl.Middleware(GroupGeneral)(okHandler())
	authH := rl.Middleware(GroupAuth)(okHandler())

	general.ServeHTTP(httptest.NewRecorder(), requestFrom("10.0.0.5"))

	w := httptest.NewRecorder()
	authH.ServeHTTP(w, requestFrom("10.0.0.5"))
	if w.Code != http.StatusOK {
		t.Errorf("auth group status = %d, want %d", w.Code, http.StatusOK)
	}

	w = httptest.NewRecorder()
	general.ServeHTTP(w, requestFrom("10.0.0.5"))
	if w.Code != http.StatusTooManyRequests {
		t.Errorf("general group status = %d, want %d", w.Code, http.StatusTooManyRequests)
	}
}

func TestRateLimiter_WindowResets(t *testing.T) {
	rl := newTestLimiter(t, 1, time.Minute, nil)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }
	handler := rl.Middleware(GroupGeneral)(okHandler())

	handler.ServeHTTP(httptest.NewRecorder(), requestFrom("10.0.0.6"))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, requestFrom("10.0.0.6"))
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusTooManyRequests)
	}
	if got := w.Header().Get("Retry-After"); got != "60" {
		t.Errorf("Retry-After = %q, want %q", got, "60")
	}

	now = now.Add(time.Minute)
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, requestFrom("10.0.0.6"))
	if w.Code != http.StatusOK {
		t.Errorf("status after window = %d, want %d", w.Code, http.StatusOK)
	}
}

func TestRateLimiter_CleanupRemovesExpiredEntries(t *testing.T) {
	rl := newTestLimiter(t, 10, time.Minute, nil)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }
	handler := rl.Middleware(GroupGeneral)(okHandler())

	handler.ServeHTTP(httptest.NewRecorder(), requestFrom("10.0.0.7"))
	handler.ServeHTTP(httptest.NewRecorder(), requestFrom("10.0.0.8"))

	if got := rl.EntryCount(GroupGeneral); got != 2 {
		t.Fatalf("EntryCount = %d, want 2", got)
	}

	now = now.Add(2 * time.Minute)
	rl.cleanup()

	if got := rl.EntryCount(GroupGeneral); got != 0 {
		t.Errorf("EntryCount after cleanup = %d, want 0", got)
	}
}

func TestRateLimiter_UnknownGroupPassesThrough(t *testing.T) {
	rl := newTestLimiter(t, 1, time.Minute, nil)
	handler := rl.Middleware("missing")(okHandler())

	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, requestFrom("10.0.0.9"))
		if w.Code != http.StatusOK {
			t.Errorf("request %d: status = %d, want %d", i, w.Code, http.StatusOK)
		}
	}
}

func TestRateLimiter_ConcurrentAccess(t *testing.T) {
	rl := newTestLimiter(t, 50, time.Minute, nil)
	handler := rl.Middleware(GroupGeneral)(okHandler())

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		allowed int
	)
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, requestFrom("10.0.0.10"))
			if w.Code == http.StatusOK {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if allowed != 50 {
		t.Errorf("allowed = %d, want 50", allowed)
	}
}

func TestDefaultRateLimitGroups(t *testing.T) {
	groups := DefaultRateLimitGroups(100, 5, 20, 50)

	tests := []struct {
		name   string
		limit  int
		window time.Duration
	}{
		{GroupGeneral, 100, 15 * time.Minute},
		{GroupAuth, 5, 15 * time.Minute},
		{GroupUpload, 20, time.Hour},
		{GroupAI, 50, time.Hour},
	}
	for _, tt := range tests {
		g, ok := groups[tt.name]
		if !ok {
			t.Errorf("group %q missing", tt.name)
			continue
		}
		if g.Limit != tt.limit || g.Window != tt.window {
			t.Errorf("group %q = %d/%v, want %d/%v", tt.name, g.Limit, g.Window, tt.limit, tt.window)
		}
		if g.Message == "" {
			t.Errorf("group %q has empty message", tt.name)
		}
	}
}

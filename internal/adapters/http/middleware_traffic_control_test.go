package httpadapter

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/kirillkom/medical-doc-assistant/internal/config"
	"github.com/kirillkom/medical-doc-assistant/internal/core/domain"
)

func TestRateLimitMiddlewareReturns429(t *testing.T) {
	handler := newTestHandler(config.Config{
		APIRateLimitRPS:   1,
		APIRateLimitBurst: 1,
	}, Dependencies{})

	res1 := httptest.NewRecorder()
	handler.ServeHTTP(res1, newUserRequest(http.MethodGet, "/v1/categories", nil))
	if res1.Code != http.StatusOK {
		t.Fatalf("first request expected 200, got %d", res1.Code)
	}

	res2 := httptest.NewRecorder()
	handler.ServeHTTP(res2, newUserRequest(http.MethodGet, "/v1/categories", nil))
	if res2.Code != http.StatusTooManyRequests {
		t.Fatalf("second request expected 429, got %d", res2.Code)
	}
	if res2.Header().Get("Retry-After") == "" {
		t.Fatalf("expected Retry-After header for 429 response")
	}

	res3 := httptest.NewRecorder()
	handler.ServeHTTP(res3, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if res3.Code != http.StatusOK {
		t.Fatalf("healthz expected to bypass the limiter, got %d", res3.Code)
	}
}

func TestBackpressureMiddlewareReturns503WhenSaturated(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	done := make(chan int, 1)

	base := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started <- struct{}{}
		<-release
		w.WriteHeader(http.StatusNoContent)
	})
	handler := backpressureMiddleware(base, 1, 20*time.Millisecond)

	go func() {
		req := httptest.NewRequest(http.MethodPost, "/v1/analyses/stream", nil)
		res := httptest.NewRecorder()
		handler.ServeHTTP(res, req)
		done <- res.Code
	}()

	<-started

	req2 := httptest.NewRequest(http.MethodPost, "/v1/analyses/stream", nil)
	res2 := httptest.NewRecorder()
	handler.ServeHTTP(res2, req2)
	if res2.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 for saturated backpressure gate, got %d", res2.Code)
	}

	var resp map[string]any
	if err := json.NewDecoder(bytes.NewReader(res2.Body.Bytes())).Decode(&resp); err != nil {
		t.Fatalf("decode overload response: %v", err)
	}
	if resp["error"] == "" {
		t.Fatalf("expected overload error message in response")
	}

	close(release)

	select {
	case code := <-done:
		if code != http.StatusNoContent {
			t.Fatalf("first request expected 204, got %d", code)
		}
	case <-time.After(1 * time.Second):
		t.Fatalf("timed out waiting for first request completion")
	}
}

func TestAuthRequiresBearerKeyWhenConfigured(t *testing.T) {
	handler := newTestHandler(config.Config{APIKey: "secret"}, Dependencies{})

	res := httptest.NewRecorder()
	handler.ServeHTTP(res, newUserRequest(http.MethodGet, "/v1/categories", nil))
	if res.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without bearer token, got %d", res.Code)
	}

	req := newUserRequest(http.MethodGet, "/v1/categories", nil)
	req.Header.Set("Authorization", "Bearer secret")
	res = httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200 with bearer token, got %d", res.Code)
	}

	res = httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if res.Code != http.StatusOK {
		t.Fatalf("expected healthz without auth, got %d", res.Code)
	}
}

func TestPrincipalHeaderIsRequired(t *testing.T) {
	handler := newTestHandler(config.Config{}, Dependencies{})

	res := httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/v1/analyses", nil))
	if res.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without %s, got %d", userIDHeader, res.Code)
	}
	if res.Header().Get(requestIDHeader) == "" {
		t.Fatalf("expected request id header on every response")
	}
}

func TestPremiumTierMarksPrincipalPrivileged(t *testing.T) {
	sessions := &sessionsFake{}
	handler := newTestHandler(config.Config{APIKey: "gateway-key"}, Dependencies{Sessions: sessions})

	req := newUserRequest(http.MethodPost, "/v1/chat/sessions", nil)
	req.Header.Set("Authorization", "Bearer gateway-key")
	req.Header.Set(userTierHeader, "Premium")
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", res.Code)
	}
	want := domain.Principal{UserID: testUserID, Privileged: true}
	if sessions.principal != want {
		t.Fatalf("expected privileged principal, got %+v", sessions.principal)
	}
}

func TestTierHeaderIgnoredWithoutAPIKey(t *testing.T) {
	sessions := &sessionsFake{}
	handler := newTestHandler(config.Config{}, Dependencies{Sessions: sessions})

	req := newUserRequest(http.MethodPost, "/v1/chat/sessions", nil)
	req.Header.Set(userTierHeader, "premium")
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", res.Code)
	}
	if sessions.principal.Privileged {
		t.Fatalf("expected self-declared tier to be ignored, got %+v", sessions.principal)
	}
}

func TestRequestIDMiddlewarePropagatesOrMints(t *testing.T) {
	var seen string
	handler := requestIDMiddleware(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		seen = requestIDFromContext(r.Context())
	}))

	tests := []struct {
		name     string
		incoming string
		keep     bool
	}{
		{name: "caller id", incoming: "req-42", keep: true},
		{name: "missing", incoming: "", keep: false},
		{name: "too long", incoming: strings.Repeat("a", 65), keep: false},
		{name: "control characters", incoming: "req\x01", keep: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
			if tt.incoming != "" {
				req.Header.Set(requestIDHeader, tt.incoming)
			}
			res := httptest.NewRecorder()
			handler.ServeHTTP(res, req)

			got := res.Header().Get(requestIDHeader)
			if got != seen {
				t.Fatalf("header id %q differs from context id %q", got, seen)
			}
			if tt.keep && got != tt.incoming {
				t.Fatalf("id = %q, want %q", got, tt.incoming)
			}
			if !tt.keep && (got == "" || got == tt.incoming) {
				t.Fatalf("expected a minted id, got %q", got)
			}
		})
	}
}

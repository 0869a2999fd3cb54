package auth

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/joao-fontenele/printhub/internal/httpx"
)

const webhookSecret = "webhook-secret"

func newTestVerifier(t *testing.T, now time.Time) http.Handler {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	clock := func() time.Time { return now }
	v, err := NewWebhookVerifier(webhookSecret, NewInMemoryNonceStore(clock), httpx.NewResponder(logger, false), logger,
		WithClock(clock))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return v.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if len(body) == 0 {
			t.Error("expected body to be restored for the next handler")
		}
		w.WriteHeader(http.StatusOK)
	}))
}

func signedRequest(body, nonce string, at time.Time) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/payments/confirm", strings.NewReader(body))
	SignRequest(req, webhookSecret, nonce, []byte(body), at)
	return req
}

func TestWebhookVerifier(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	body := `{"transactionId":"AIRTEL-1","status":"success"}`

	t.Run("accepts a valid signature once", func(t *testing.T) {
		handler := newTestVerifier(t, now)

		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, signedRequest(body, "n-1", now))
		if rec.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
		}

		rec = httptest.NewRecorder()
		handler.ServeHTTP(rec, signedRequest(body, "n-1", now))
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("expected replay to be rejected, got %d", rec.Code)
		}
	})

	t.Run("rejects tampered body", func(t *testing.T) {
		handler := newTestVerifier(t, now)
		req := signedRequest(body, "n-2", now)
		req.Body = io.NopCloser(strings.NewReader(`{"transactionId":"AIRTEL-1","status":"failed"}`))

		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("expected status 401, got %d", rec.Code)
		}
	})

	t.Run("rejects stale timestamp", func(t *testing.T) {
		handler := newTestVerifier(t, now)

		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, signedRequest(body, "n-3", now.Add(-6*time.Minute)))
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("expected status 401, got %d", rec.Code)
		}
	})

	t.Run("replays stay rejected across the signature window", func(t *testing.T) {
		current := now
		clock := func() time.Time { return current }
		logger := slog.New(slog.NewTextHandler(io.Discard, nil))
		v, err := NewWebhookVerifier(webhookSecret, NewInMemoryNonceStore(clock), httpx.NewResponder(logger, false), logger,
			WithClock(clock))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		handler := v.Middleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
		}))

		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, signedRequest(body, "n-4", now))
		if rec.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rec.Code)
		}

		current = now.Add(4 * time.Minute)
		rec = httptest.NewRecorder()
		handler.ServeHTTP(rec, signedRequest(body, "n-4", now))
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("expected replay within the window to be rejected, got %d", rec.Code)
		}
	})

	t.Run("rejects missing headers", func(t *testing.T) {
		handler := newTestVerifier(t, now)

		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/payments/confirm", strings.NewReader(body)))
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("expected status 401, got %d", rec.Code)
		}
	})
}

func TestNewWebhookVerifier_RequiresSecret(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	if _, err := NewWebhookVerifier("", NewInMemoryNonceStore(nil), httpx.NewResponder(logger, false), logger); err == nil {
		t.Error("expected error for empty secret")
	}
}

func TestInMemoryNonceStore(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store := NewInMemoryNonceStore(func() time.Time { return now })
	ctx := context.Background()

	stored, err := store.UseNonce(ctx, "payments", "abc", now.Add(time.Minute))
	if err != nil || !stored {
		t.Fatalf("expected first use to be stored, got %v, %v", stored, err)
	}

	stored, _ = store.UseNonce(ctx, "payments", "abc", now.Add(time.Minute))
	if stored {
		t.Error("expected second use to be rejected")
	}

	stored, _ = store.UseNonce(ctx, "other", "abc", now.Add(time.Minute))
	if !stored {
		t.Error("expected scopes to be independent")
	}

	now = now.Add(2 * time.Minute)
	stored, _ = store.UseNonce(ctx, "payments", "abc", now.Add(time.Minute))
	if !stored {
		t.Error("expected expired nonce to be reusable")
	}
}

package email

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	h := NewHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), time.Millisecond, 0)
	mux := http.NewServeMux()
	mux.HandleFunc("POST /send", h.HandleSend)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestClient_Send(t *testing.T) {
	srv := newTestServer(t)
	client := NewClient(srv.URL, srv.Client())

	t.Run("returns the message id", func(t *testing.T) {
		id, err := client.Send(context.Background(), "chloe@example.com", "Order AD-1 update", "Shipped")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.HasPrefix(id, "EMAIL-") {
			t.Errorf("unexpected id: %s", id)
		}
	})

	t.Run("reports rejected messages", func(t *testing.T) {
		if _, err := client.Send(context.Background(), "not-an-address", "Subject", "Body"); err == nil {
			t.Error("expected error for invalid address")
		}
	})

	t.Run("honours context deadline", func(t *testing.T) {
		release := make(chan struct{})
		slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = io.Copy(io.Discard, r.Body)
			select {
			case <-release:
			case <-r.Context().Done():
			}
		}))
		defer slow.Close()
		defer close(release)

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()

		if _, err := NewClient(slow.URL, slow.Client()).Send(ctx, "chloe@example.com", "S", "B"); err == nil {
			t.Error("expected deadline error")
		}
	})
}

func TestHandler_HandleSend(t *testing.T) {
	srv := newTestServer(t)

	resp, err := srv.Client().Post(srv.URL+"/send", "application/json", strings.NewReader(`{"to":"a@b.co"}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected status 400 for missing subject, got %d", resp.StatusCode)
	}
}

package telegram

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

func TestSendPostsPlainMessage(t *testing.T) {
	t.Parallel()
	var (
		mu   sync.Mutex
		path string
		got  map[string]any
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		path = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true,"result":{"message_id":1,"date":0,"chat":{"id":42,"type":"private"}}}`))
	}))
	defer srv.Close()

	s, err := New(Config{Token: "123:abc", ChatID: 42, APIURL: srv.URL})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := s.Send(context.Background(), "*12:00:00*\n\nhello"); err != nil {
		t.Fatalf("Send: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if !strings.HasSuffix(path, "/bot123:abc/sendMessage") {
		t.Fatalf("path = %q", path)
	}
	if got["chat_id"] != "42" || got["text"] != "*12:00:00*\n\nhello" {
		t.Fatalf("payload = %v", got)
	}
	if _, ok := got["parse_mode"]; ok {
		t.Fatalf("parse_mode should be unset, payload = %v", got)
	}
}

func TestSendTruncatedReportAsPlainText(t *testing.T) {
	t.Parallel()
	var (
		mu  sync.Mutex
		got map[string]any
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true,"result":{"message_id":2,"date":0,"chat":{"id":42,"type":"private"}}}`))
	}))
	defer srv.Close()

	s, err := New(Config{Token: "123:abc", ChatID: 42, APIURL: srv.URL})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	// A partial report cut inside a code fence, with a stray emphasis marker.
	body := "*12:00:00* [partial]\n\n`svc-a`\n\n```\nERROR one\n```\n\n`svc_b`\n\n```\nERROR *two"
	if n := strings.Count(body, "```"); n%2 == 0 {
		t.Fatalf("body should have an unclosed fence, got %d fences", n)
	}
	if err := s.Send(context.Background(), body); err != nil {
		t.Fatalf("Send: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if got["text"] != body {
		t.Fatalf("text = %q", got["text"])
	}
	if pm, ok := got["parse_mode"]; ok && pm != "" {
		t.Fatalf("parse_mode = %v, want plain text", pm)
	}
}

func TestSendReturnsAPIError(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"ok":false,"error_code":400,"description":"Bad Request: chat not found"}`))
	}))
	defer srv.Close()

	s, err := New(Config{Token: "123:abc", ChatID: 7, APIURL: srv.URL})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := s.Send(context.Background(), "x"); err == nil {
		t.Fatal("want error")
	}
}

func TestSendHonoursCancelledContext(t *testing.T) {
	t.Parallel()
	s, err := New(Config{Token: "123:abc", ChatID: 7, APIURL: "http://127.0.0.1:1"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := s.Send(ctx, "x"); err != context.Canceled {
		t.Fatalf("Send = %v", err)
	}
}

func TestNewRequiresTokenAndChat(t *testing.T) {
	t.Parallel()
	if _, err := New(Config{ChatID: 1}); err == nil {
		t.Fatal("empty token accepted")
	}
	if _, err := New(Config{Token: "123:abc"}); err == nil {
		t.Fatal("empty chat accepted")
	}
}

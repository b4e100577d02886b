package apihttp

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestNormalizeRoute(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/metrics", "/metrics"},
		{"/healthz", "/healthz"},
		{"/api/voice/upload", "/api/voice/upload"},
		{"/api/voice/status/abc-123", "/api/voice/status/:id"},
		{"/api/voice/files/abc-123", "/api/voice/files/:id"},
		{"/api/voice/download_transcript/abc", "/api/voice/download_transcript/:id"},
		{"/api/voice/ws", "/api/voice/ws"},
		{"/favicon.ico", "/other"},
	}
	for _, tt := range tests {
		if got := normalizeRoute(tt.path); got != tt.want {
			t.Errorf("normalizeRoute(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}

func TestClientIP(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "10.0.0.7:1234"
	if got := clientIP(r); got != "10.0.0.7" {
		t.Fatalf("clientIP = %q", got)
	}

	r.Header.Set("X-Real-IP", "203.0.113.9")
	if got := clientIP(r); got != "203.0.113.9" {
		t.Fatalf("clientIP with X-Real-IP = %q", got)
	}

	r.Header.Set("X-Forwarded-For", "198.51.100.4, 10.0.0.1")
	if got := clientIP(r); got != "198.51.100.4" {
		t.Fatalf("clientIP with X-Forwarded-For = %q", got)
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("short", 10); got != "short" {
		t.Fatalf("truncate = %q", got)
	}
	if got := truncate("abcdefghij", 8); got != "abcde..." {
		t.Fatalf("truncate = %q", got)
	}
}

func TestPickRequestLogLevel(t *testing.T) {
	if lvl := pickRequestLogLevel("/api/voice/files", 500); lvl != slog.LevelError {
		t.Fatalf("5xx level = %v", lvl)
	}
	if lvl := pickRequestLogLevel("/api/voice/files", 404); lvl != slog.LevelWarn {
		t.Fatalf("4xx level = %v", lvl)
	}
	if lvl := pickRequestLogLevel("/healthz", 200); lvl != slog.LevelDebug {
		t.Fatalf("healthz level = %v", lvl)
	}
	if lvl := pickRequestLogLevel("/api/voice/status/x", 200); lvl != slog.LevelDebug {
		t.Fatalf("status poll level = %v", lvl)
	}
	if lvl := pickRequestLogLevel("/api/voice/files", 200); lvl != slog.LevelInfo {
		t.Fatalf("default level = %v", lvl)
	}
}

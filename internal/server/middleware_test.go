package server

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
}

func TestRequireDeviceKey(t *testing.T) {
	const key = "s3cret-watch-key"
	tests := []struct {
		name   string
		path   string
		header string
		want   int
	}{
		{"status page is public", "/", "", http.StatusNoContent},
		{"metrics are public", "/metrics", "", http.StatusNoContent},
		{"update without key", "/device/w1/update", "", http.StatusUnauthorized},
		{"update with bearer", "/device/w1/update", "Bearer " + key, http.StatusNoContent},
		{"update with wrong bearer", "/device/w1/update", "Bearer nope", http.StatusUnauthorized},
		{"sse with query key", "/sse/device/w1?key=" + key, "", http.StatusNoContent},
		{"sse with wrong query key", "/sse/device/w1?key=x", "", http.StatusUnauthorized},
		{"basic auth is not a bearer", "/device/w1/update", "Basic " + key, http.StatusUnauthorized},
	}
	h := requireDeviceKey(okHandler(), key)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", tt.path, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestRequireDeviceKey_Disabled(t *testing.T) {
	h := requireDeviceKey(okHandler(), "")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("POST", "/device/w1/update", nil))
	if rec.Code != http.StatusNoContent {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusNoContent)
	}
}

func TestSecurityHeaders(t *testing.T) {
	rec := httptest.NewRecorder()
	securityHeaders(okHandler()).ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))
	for header, want := range map[string]string{
		"X-Content-Type-Options": "nosniff",
		"X-Frame-Options":        "DENY",
		"Referrer-Policy":        "strict-origin-when-cross-origin",
	} {
		if got := rec.Header().Get(header); got != want {
			t.Errorf("%s = %q, want %q", header, got, want)
		}
	}
}

func TestStatusWriter(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	var flushed bool
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		f, ok := w.(http.Flusher)
		if !ok {
			t.Error("wrapped writer lost http.Flusher")
			return
		}
		f.Flush()
		flushed = true
	})
	rec := httptest.NewRecorder()
	requestLogger(inner, logger).ServeHTTP(rec, httptest.NewRequest("GET", "/x", nil))
	if rec.Code != http.StatusTeapot || !flushed {
		t.Errorf("code = %d, flushed = %v", rec.Code, flushed)
	}
}

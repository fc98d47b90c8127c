package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"keyshop-bot/internal/pkg/logging"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestSecretMiddleware(t *testing.T) {
	tests := []struct {
		name   string
		secret string
		header string
		want   int
	}{
		{"match", "s3cret", "s3cret", http.StatusOK},
		{"mismatch", "s3cret", "wrong", http.StatusForbidden},
		{"missing header", "s3cret", "", http.StatusForbidden},
		{"empty secret rejects empty header", "", "", http.StatusForbidden},
		{"empty secret rejects anything", "", "s3cret", http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rejected := 0
			called := false
			h := NewSecretMiddleware(SecretConfig{Secret: tt.secret, OnReject: func() { rejected++ }})(
				http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true }))

			req := httptest.NewRequest(http.MethodPost, "/webhook", nil)
			if tt.header != "" {
				req.Header.Set("x-secret", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
			if called != (tt.want == http.StatusOK) {
				t.Errorf("next called = %v", called)
			}
			if (rejected == 1) == (tt.want == http.StatusOK) {
				t.Errorf("rejections = %d", rejected)
			}
		})
	}
}

func TestLoggingStoresRequestLogger(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)

	var inner *zap.Logger
	h := RequestID(NewLogging(zap.New(core))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		inner = logging.FromContext(r.Context())
		w.WriteHeader(http.StatusTeapot)
	})))

	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	req.Header.Set("X-Request-ID", "req-1")
	h.ServeHTTP(httptest.NewRecorder(), req)

	if inner == nil {
		t.Fatal("no logger in context")
	}
	entries := logs.FilterMessage("http_request").All()
	if len(entries) != 1 {
		t.Fatalf("entries = %d", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["request_id"] != "req-1" || fields["status"] != int64(http.StatusTeapot) {
		t.Errorf("fields = %v", fields)
	}
}

func TestRecovery(t *testing.T) {
	h := Recovery(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d", rec.Code)
	}
}

func TestRequestIDReplacesUnusableHeader(t *testing.T) {
	var got string
	h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = GetRequestID(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "has spaces in it")
	h.ServeHTTP(httptest.NewRecorder(), req)
	if got == "" || got == "has spaces in it" {
		t.Errorf("request id = %q", got)
	}

	req.Header.Set("X-Request-ID", "sepay-123")
	h.ServeHTTP(httptest.NewRecorder(), req)
	if got != "sepay-123" {
		t.Errorf("request id = %q, want sepay-123", got)
	}
}

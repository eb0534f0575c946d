package trace

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	applog "painel/internal/log"
)

func TestMiddleware_AttachesRequestLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := applog.New(applog.Config{
		Component: applog.ComponentHTTP,
		Handler:   slog.NewTextHandler(&buf, nil),
	})
	m := NewMiddleware(logger, func(*http.Request) string { return "10.0.0.1" })

	var seenID string
	h := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenID = GetRequestID(r.Context())
		applog.FromContext(r.Context()).Info("inside handler")
		w.WriteHeader(http.StatusInternalServerError)
	}))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/dashboard", nil))

	if !strings.HasPrefix(seenID, "req_") {
		t.Fatalf("request id = %q", seenID)
	}
	if rr.Header().Get(RequestIDHeader) != seenID {
		t.Errorf("response header id = %q, want %q", rr.Header().Get(RequestIDHeader), seenID)
	}
	out := buf.String()
	if strings.Count(out, seenID) < 3 {
		t.Errorf("request id missing from log lines:\n%s", out)
	}
	if !strings.Contains(out, "inside handler") {
		t.Errorf("handler log line missing:\n%s", out)
	}

	got := m.GetMetrics()
	if got.TotalRequests != 1 || got.FailedRequests != 1 {
		t.Errorf("metrics = %+v", got)
	}
}

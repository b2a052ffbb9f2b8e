package logging

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestMiddleware_GeneratesRequestID(t *testing.T) {
	buf := &bytes.Buffer{}
	zerolog.SetGlobalLevel(zerolog.DebugLevel)
	logger := zerolog.New(buf)

	var inner string
	handler := Middleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logger := FromContext(r.Context(), zerolog.Nop())
		logger.Debug().Msg("inside handler")
		inner = w.Header().Get(RequestIDHeader)
		w.Header().Set("X-HTML-Edge-Cache-Status", "Hit")
		w.Write([]byte("ok"))
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/page", nil))

	id := rec.Header().Get(RequestIDHeader)
	if len(id) != 36 {
		t.Errorf("generated request id %q is not a UUID", id)
	}
	if inner != id {
		t.Errorf("handler saw id %q, response has %q", inner, id)
	}

	out := buf.String()
	if strings.Count(out, id) != 2 {
		t.Errorf("both log lines should carry the request id, got %q", out)
	}
	for _, want := range []string{`"status":200`, `"bytes":2`, `"cache_status":"Hit"`, `"path":"/page"`} {
		if !strings.Contains(out, want) {
			t.Errorf("access log missing %s: %q", want, out)
		}
	}
}

func TestMiddleware_ReusesRequestID(t *testing.T) {
	buf := &bytes.Buffer{}
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	handler := Middleware(zerolog.New(buf))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "upstream-123")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if got := rec.Header().Get(RequestIDHeader); got != "upstream-123" {
		t.Errorf("request id = %q, want upstream-123", got)
	}
	if !strings.Contains(buf.String(), `"status":204`) {
		t.Errorf("access log should record 204, got %q", buf.String())
	}
}

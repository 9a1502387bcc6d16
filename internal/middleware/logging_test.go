package middleware

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
)

func TestRequestLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	handler := RequestLogger(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		AnnotateRequest(r, slog.Int64("member_id", 7))
		w.WriteHeader(http.StatusTeapot)
		w.Write([]byte("short and stout"))
	}))

	req := httptest.NewRequest("GET", "/api/family", nil)
	req.RemoteAddr = "10.0.0.5:1234"
	handler.ServeHTTP(httptest.NewRecorder(), req)

	line := buf.String()
	for _, want := range []string{
		"method=GET",
		"path=/api/family",
		"status=418",
		"bytes=" + strconv.Itoa(len("short and stout")),
		"remote=10.0.0.5",
		"member_id=7",
		"level=WARN",
	} {
		if !strings.Contains(line, want) {
			t.Errorf("log line missing %q: %s", want, line)
		}
	}
}

func TestRequestLoggerActorAnnotation(t *testing.T) {
	ms, member := setupMembers(t)
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	handler := RequestLogger(logger)(RequireActor("gateway-secret", ms)(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		})))

	req := httptest.NewRequest("GET", "/api/members", nil)
	req.Header.Set("X-Tally-Gateway-Key", "gateway-secret")
	req.Header.Set("X-Tally-Member", strconv.FormatInt(member.ID, 10))
	handler.ServeHTTP(httptest.NewRecorder(), req)

	line := buf.String()
	if !strings.Contains(line, "member_id="+strconv.FormatInt(member.ID, 10)) {
		t.Errorf("log line missing member_id: %s", line)
	}
	if !strings.Contains(line, "role=parent") {
		t.Errorf("log line missing role: %s", line)
	}
}

func TestAnnotateRequestWithoutLogger(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	// Must not panic when no RequestLogger wrapped the request.
	AnnotateRequest(req, slog.String("k", "v"))
}

package apierror

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/keithlinneman/babyshower-web/internal/log"
	"github.com/keithlinneman/babyshower-web/internal/xerrors"
)

type spyLogger struct {
	log.Logger
	mu     sync.Mutex
	errors []error
}

func (s *spyLogger) With(...any) log.Logger { return s }

func (s *spyLogger) Error(_ context.Context, err error, _ string, _ ...any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errors = append(s.errors, err)
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &m); err != nil {
		t.Fatalf("decode body: %v\nraw: %s", err, rec.Body.String())
	}
	return m
}

func TestKindStatus(t *testing.T) {
	tests := []struct {
		kind Kind
		want int
	}{
		{KindRateLimit, 429},
		{KindValidation, 400},
		{KindAuth, 401},
		{KindForbidden, 403},
		{KindNotFound, 404},
		{KindInternal, 500},
		{KindBadRequest, 400},
		{KindPayloadTooLarge, 413},
		{Kind("SOMETHING_ELSE"), 500},
	}
	for _, tt := range tests {
		if got := tt.kind.Status(); got != tt.want {
			t.Errorf("%s.Status() = %d, want %d", tt.kind, got, tt.want)
		}
	}
}

func TestNew_DefaultMessage(t *testing.T) {
	if got := New(KindNotFound, "").Message; got != "Resource not found" {
		t.Fatalf("Message = %q", got)
	}
	if got := New(KindNotFound, "no such item").Message; got != "no such item" {
		t.Fatalf("Message = %q", got)
	}
}

func TestFrom(t *testing.T) {
	ae := Auth("token expired")
	if got := From(fmt.Errorf("handler: %w", ae)); got != ae {
		t.Fatal("From should find a wrapped *Error")
	}

	mbe := &http.MaxBytesError{Limit: 10}
	if got := From(fmt.Errorf("decode: %w", mbe)); got.Kind != KindPayloadTooLarge {
		t.Fatalf("MaxBytesError kind = %s", got.Kind)
	}

	plain := errors.New("db exploded")
	got := From(plain)
	if got.Kind != KindInternal {
		t.Fatalf("plain kind = %s", got.Kind)
	}
	if !errors.Is(got, plain) {
		t.Fatal("internal error should keep its cause")
	}
	if From(nil) != nil {
		t.Fatal("From(nil) should be nil")
	}
}

func TestWrite_ValidationEnvelope(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/rsvp", http.NoBody)

	Writer{Production: true}.Write(rec, req, Validation(map[string][]string{
		"email": {"A valid email address is required"},
	}))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "application/json") {
		t.Fatalf("Content-Type = %q", ct)
	}
	m := decode(t, rec)
	if m["success"] != false {
		t.Fatalf("success = %v", m["success"])
	}
	e := m["error"].(map[string]any)
	if e["type"] != "VALIDATION_ERROR" || e["message"] != "Validation failed" {
		t.Fatalf("error = %v", e)
	}
	details := e["details"].(map[string]any)
	if msgs := details["email"].([]any); len(msgs) != 1 {
		t.Fatalf("details = %v", details)
	}
	if _, ok := e["stack"]; ok {
		t.Fatal("no stack expected in production")
	}
}

func TestWrite_InternalHidesCause(t *testing.T) {
	spy := &spyLogger{Logger: log.Nop()}
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/me", http.NoBody)
	req = req.WithContext(log.WithContext(req.Context(), spy))

	Writer{Production: true}.Write(rec, req, errors.New("password=hunter2 connection refused"))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "hunter2") {
		t.Fatal("internal error text leaked to client")
	}
	e := decode(t, rec)["error"].(map[string]any)
	if e["type"] != "INTERNAL_SERVER_ERROR" || e["message"] != "Internal server error" {
		t.Fatalf("error = %v", e)
	}
	if len(spy.errors) != 1 {
		t.Fatalf("logged %d errors, want 1", len(spy.errors))
	}
}

func TestWrite_ClientErrorsNotLogged(t *testing.T) {
	spy := &spyLogger{Logger: log.Nop()}
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/x", http.NoBody)
	req = req.WithContext(log.WithContext(req.Context(), spy))

	Writer{}.Write(rec, req, NotFound(""))

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d", rec.Code)
	}
	if len(spy.errors) != 0 {
		t.Fatal("4xx should not be logged as errors")
	}
}

func TestWrite_StackOutsideProduction(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/me", http.NoBody)

	Writer{Production: false}.Write(rec, req, xerrors.New("boom"))

	e := decode(t, rec)["error"].(map[string]any)
	stack, ok := e["stack"].([]any)
	if !ok || len(stack) == 0 {
		t.Fatalf("expected stack in non-production, got %v", e)
	}
	if !strings.Contains(stack[0].(string), "TestWrite_StackOutsideProduction") {
		t.Fatalf("stack[0] = %v", stack[0])
	}
}

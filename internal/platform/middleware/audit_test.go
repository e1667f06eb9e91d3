package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/healthguard/healthguard/internal/platform/apperr"
	"github.com/healthguard/healthguard/internal/platform/auth"
)

// mockRecorder collects audit entries for assertions.
type mockRecorder struct {
	mu      sync.Mutex
	entries []AuditEntry
	err     error
}

func (m *mockRecorder) RecordAccess(entry AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, entry)
	return m.err
}

func (m *mockRecorder) last() AuditEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.entries[len(m.entries)-1]
}

func (m *mockRecorder) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

func newTestContext(method, path string, p *auth.Principal) (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	req := httptest.NewRequest(method, path, nil)
	if p != nil {
		req = req.WithContext(auth.WithPrincipal(req.Context(), *p))
	}
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func okHandler(c echo.Context) error {
	return c.String(http.StatusOK, "ok")
}

func TestAudit_PatientRead(t *testing.T) {
	rec := &mockRecorder{}
	c, _ := newTestContext(http.MethodGet, "/api/v1/patients/17", &auth.Principal{UserID: 5, Role: auth.RoleDoctor})
	c.Set("request_id", "req-abc")

	if err := Audit(zerolog.Nop(), rec)(okHandler)(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.count() != 1 {
		t.Fatalf("expected 1 audit entry, got %d", rec.count())
	}
	entry := rec.last()
	if entry.UserID != 5 || entry.Role != auth.RoleDoctor {
		t.Errorf("unexpected caller: %d %s", entry.UserID, entry.Role)
	}
	if entry.Resource != "patients" || entry.PatientID != 17 {
		t.Errorf("unexpected resource: %s %d", entry.Resource, entry.PatientID)
	}
	if entry.Action != "read" || entry.RequestID != "req-abc" || entry.StatusCode != http.StatusOK {
		t.Errorf("unexpected entry: %+v", entry)
	}
}

func TestAudit_DiagnosisUsesHandlerPatientID(t *testing.T) {
	rec := &mockRecorder{}
	c, _ := newTestContext(http.MethodPost, "/api/v1/diagnosis", &auth.Principal{UserID: 9, Role: auth.RolePatient})

	handler := func(c echo.Context) error {
		c.Set(AuditPatientKey, int64(33))
		return c.NoContent(http.StatusCreated)
	}
	if err := Audit(zerolog.Nop(), rec)(handler)(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	entry := rec.last()
	if entry.Action != "create" || entry.Resource != "diagnosis" || entry.PatientID != 33 {
		t.Errorf("unexpected entry: %+v", entry)
	}
}

func TestAudit_RecordsErrorStatus(t *testing.T) {
	rec := &mockRecorder{}
	c, _ := newTestContext(http.MethodGet, "/api/v1/diagnosis/4", &auth.Principal{UserID: 9, Role: auth.RolePatient})

	handler := func(c echo.Context) error {
		return apperr.NotFound("diagnosis not found")
	}
	err := Audit(zerolog.Nop(), rec)(handler)(c)
	if apperr.KindOf(err) != apperr.KindNotFound {
		t.Fatalf("expected error to pass through, got %v", err)
	}
	if got := rec.last().StatusCode; got != http.StatusNotFound {
		t.Errorf("expected audited status 404, got %d", got)
	}
}

func TestAudit_SkipsUnauditedPaths(t *testing.T) {
	for _, path := range []string{"/health", "/api/v1/auth/login", "/api/v1/patientsx"} {
		rec := &mockRecorder{}
		c, _ := newTestContext(http.MethodGet, path, nil)
		if err := Audit(zerolog.Nop(), rec)(okHandler)(c); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if rec.count() != 0 {
			t.Errorf("expected no audit entry for %s", path)
		}
	}
}

func TestAudit_RecorderFailureDoesNotFailRequest(t *testing.T) {
	rec := &mockRecorder{err: errors.New("disk full")}
	c, _ := newTestContext(http.MethodDelete, "/api/v1/patients/2", &auth.Principal{UserID: 1, Role: auth.RoleAdmin})
	if err := Audit(zerolog.Nop(), rec)(okHandler)(c); err != nil {
		t.Fatalf("recorder failure must not surface, got %v", err)
	}
	if rec.last().Action != "delete" {
		t.Errorf("expected delete action, got %s", rec.last().Action)
	}
}

func TestAuditRecorderFunc(t *testing.T) {
	var got AuditEntry
	f := AuditRecorderFunc(func(e AuditEntry) error { got = e; return nil })
	c, _ := newTestContext(http.MethodPut, "/api/v1/patients/me", &auth.Principal{UserID: 3, Role: auth.RolePatient})
	if err := Audit(zerolog.Nop(), f)(okHandler)(c); err != nil {
		t.Fatal(err)
	}
	if got.UserID != 3 || got.PatientID != 0 {
		t.Errorf("unexpected entry: %+v", got)
	}
}

package commandapi

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestHandleCommand_Accepted(t *testing.T) {
	svc := newTestService(func(_ string, _ []byte) error { return nil })
	handler := NewHandler(svc, "*")

	body := `{"userId":"user-1","command":{"entityType":"task","type":"create-task","data":{"title":"t"}}}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/commands", strings.NewReader(body))
	rec := httptest.NewRecorder()

	handler.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), `"commandId":"cmd-1"`) {
		t.Fatalf("unexpected body: %s", rec.Body.String())
	}
}

func TestHandleCommand_BadJSON(t *testing.T) {
	svc := newTestService(func(_ string, _ []byte) error { return nil })
	handler := NewHandler(svc, "*")

	req := httptest.NewRequest(http.MethodPost, "/api/v1/commands", strings.NewReader("{broken"))
	rec := httptest.NewRecorder()

	handler.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestHandleCommand_UnknownCommandIs400(t *testing.T) {
	svc := newTestService(func(_ string, _ []byte) error { return nil })
	handler := NewHandler(svc, "*")

	body := `{"userId":"user-1","command":{"entityType":"task","type":"archive-task"}}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/commands", strings.NewReader(body))
	rec := httptest.NewRecorder()

	handler.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestHandleCommand_MissingUserIs400(t *testing.T) {
	svc := newTestService(func(_ string, _ []byte) error { return nil })
	handler := NewHandler(svc, "*")

	body := `{"command":{"entityType":"task","type":"create-task","data":{"title":"t"}}}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/commands", strings.NewReader(body))
	rec := httptest.NewRecorder()

	handler.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

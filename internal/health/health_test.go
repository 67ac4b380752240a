package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/evakess/callsense/pkg/provider/llm"
	llmmock "github.com/evakess/callsense/pkg/provider/llm/mock"
)

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) (status string, checks map[string]string) {
	t.Helper()
	var body struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	return body.Status, body.Checks
}

func TestHealthz(t *testing.T) {
	t.Parallel()

	h := New()
	rec := httptest.NewRecorder()
	h.Healthz(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
	status, _ := decodeBody(t, rec)
	if status != "ok" {
		t.Errorf("body status = %q, want ok", status)
	}
}

func TestReadyzAllPass(t *testing.T) {
	t.Parallel()

	h := New(
		Checker{Name: "a", Check: func(context.Context) error { return nil }},
		Checker{Name: "b", Check: func(context.Context) error { return nil }},
	)
	rec := httptest.NewRecorder()
	h.Readyz(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
	status, checks := decodeBody(t, rec)
	if status != "ok" || checks["a"] != "ok" || checks["b"] != "ok" {
		t.Errorf("body = %q %v", status, checks)
	}
}

func TestReadyzFailure(t *testing.T) {
	t.Parallel()

	h := New(
		Checker{Name: "good", Check: func(context.Context) error { return nil }},
		Checker{Name: "bad", Check: func(context.Context) error { return errors.New("down") }},
	)
	rec := httptest.NewRecorder()
	h.Readyz(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
	status, checks := decodeBody(t, rec)
	if status != "fail" {
		t.Errorf("body status = %q, want fail", status)
	}
	if !strings.HasPrefix(checks["bad"], "fail:") {
		t.Errorf("checks[bad] = %q", checks["bad"])
	}
	if checks["good"] != "ok" {
		t.Errorf("checks[good] = %q", checks["good"])
	}
}

func TestStoreChecker(t *testing.T) {
	t.Parallel()

	ok := StoreChecker(t.TempDir())
	if err := ok.Check(context.Background()); err != nil {
		t.Errorf("writable dir failed: %v", err)
	}

	missing := StoreChecker(filepath.Join(t.TempDir(), "absent"))
	if err := missing.Check(context.Background()); err == nil {
		t.Error("missing dir passed")
	}
}

func TestOracleChecker(t *testing.T) {
	t.Parallel()

	if err := OracleChecker(nil).Check(context.Background()); err == nil {
		t.Error("nil provider passed")
	}

	noTools := &llmmock.Provider{}
	if err := OracleChecker(noTools).Check(context.Background()); err == nil {
		t.Error("provider without tool calling passed")
	}

	good := &llmmock.Provider{
		ModelCapabilities: llm.ModelCapabilities{SupportsToolCalling: true},
	}
	if err := OracleChecker(good).Check(context.Background()); err != nil {
		t.Errorf("capable provider failed: %v", err)
	}
}

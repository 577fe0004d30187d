package middleware

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hitoshi/reserv/internal/metrics"
	"github.com/prometheus/client_golang/prometheus"
)

func TestLoggingMiddleware_LogsRequestFields(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	mw := NewLoggingMiddleware(logger, nil)

	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/sessions/abc123/join", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	var logLine map[string]any
	if err := json.Unmarshal(buf.Bytes(), &logLine); err != nil {
		t.Fatalf("failed to parse log line: %v", err)
	}
	if logLine["method"] != "POST" {
		t.Errorf("method = %v, want POST", logLine["method"])
	}
	if logLine["path"] != "/api/sessions/abc123/join" {
		t.Errorf("path = %v, want /api/sessions/abc123/join", logLine["path"])
	}
	if logLine["status"] != float64(http.StatusCreated) {
		t.Errorf("status = %v, want %d", logLine["status"], http.StatusCreated)
	}
	if _, ok := logLine["duration_ms"]; !ok {
		t.Error("duration_ms should be logged")
	}
}

func TestLoggingMiddleware_AuthenticatedRequest_LogsUserID(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	mw := NewLoggingMiddleware(logger, nil)

	handler := mw(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/api/host/sessions", nil)
	req = req.WithContext(ContextWithUserID(req.Context(), "user-789"))
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	var logLine map[string]any
	if err := json.Unmarshal(buf.Bytes(), &logLine); err != nil {
		t.Fatalf("failed to parse log line: %v", err)
	}
	if logLine["user_id"] != "user-789" {
		t.Errorf("user_id = %v, want user-789", logLine["user_id"])
	}
}

func TestLoggingMiddleware_ServerError_LogsAtErrorLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	mw := NewLoggingMiddleware(logger, nil)

	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/sessions/abc123", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	var logLine map[string]any
	if err := json.Unmarshal(buf.Bytes(), &logLine); err != nil {
		t.Fatalf("failed to parse log line: %v", err)
	}
	if logLine["level"] != "ERROR" {
		t.Errorf("level = %v, want ERROR", logLine["level"])
	}
}

func TestLoggingMiddleware_ClientError_LogsAtWarnLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	mw := NewLoggingMiddleware(logger, nil)

	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/sessions/abc123", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	var logLine map[string]any
	if err := json.Unmarshal(buf.Bytes(), &logLine); err != nil {
		t.Fatalf("failed to parse log line: %v", err)
	}
	if logLine["level"] != "WARN" {
		t.Errorf("level = %v, want WARN", logLine["level"])
	}
}

func TestLoggingMiddleware_RecordsMetrics(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	mw := NewLoggingMiddleware(logger, collector)

	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/sessions/unknown", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	families, err := registry.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}

	var statusRecorded, latencyRecorded bool
	for _, mf := range families {
		switch mf.GetName() {
		case "reserv_http_status_total":
			statusRecorded = true
		case "reserv_request_latency_seconds":
			latencyRecorded = true
		}
	}
	if !statusRecorded {
		t.Error("reserv_http_status_total should be recorded")
	}
	if !latencyRecorded {
		t.Error("reserv_request_latency_seconds should be recorded")
	}
}

func TestStatusRecorder_DefaultsTo200OnWrite(t *testing.T) {
	rec := &statusRecorder{ResponseWriter: httptest.NewRecorder()}

	if _, err := rec.Write([]byte("hello")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.statusCode != http.StatusOK {
		t.Errorf("statusCode = %d, want %d", rec.statusCode, http.StatusOK)
	}
}

func TestRecoveryMiddleware_PanicReturns500(t *testing.T) {
	mw := NewRecoveryMiddleware()

	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/sessions/abc123", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusInternalServerError)
	}

	var body ErrorResponseBody
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if body.OK {
		t.Error("ok = true, want false")
	}
}

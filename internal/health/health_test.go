package health

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestRegistry_AllProbesPass(t *testing.T) {
	reg := NewRegistry("1.2.3")
	reg.Register("storage", func() error { return nil })
	reg.Register("broker", func() error { return nil })

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()
	reg.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var report Report
	if err := json.NewDecoder(w.Body).Decode(&report); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if report.Status != "ok" {
		t.Errorf("expected status ok, got %q", report.Status)
	}
	if report.Version != "1.2.3" {
		t.Errorf("expected version 1.2.3, got %q", report.Version)
	}
	if len(report.Probes) != 2 {
		t.Errorf("expected 2 probes, got %d", len(report.Probes))
	}
	if report.Probes["storage"].Status != "ok" {
		t.Errorf("storage probe: expected ok, got %q", report.Probes["storage"].Status)
	}
}

func TestRegistry_FailingProbeGives503(t *testing.T) {
	reg := NewRegistry("1.2.3")
	reg.Register("storage", func() error { return nil })
	reg.Register("broker", func() error { return errors.New("broker down") })

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()
	reg.ServeHTTP(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", w.Code)
	}

	var report Report
	if err := json.NewDecoder(w.Body).Decode(&report); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if report.Status != "fail" {
		t.Errorf("expected overall fail, got %q", report.Status)
	}
	if report.Probes["broker"].Error != "broker down" {
		t.Errorf("expected probe error surfaced, got %q", report.Probes["broker"].Error)
	}
	if report.Probes["storage"].Status != "ok" {
		t.Errorf("healthy probe must stay ok, got %q", report.Probes["storage"].Status)
	}
}

func TestRegistry_NoProbes(t *testing.T) {
	reg := NewRegistry("")

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()
	reg.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("empty registry must report 200, got %d", w.Code)
	}
}

func TestRegistry_Ready(t *testing.T) {
	reg := NewRegistry("dev")
	reg.Register("storage", func() error { return nil })

	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	w := httptest.NewRecorder()
	reg.Ready(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if w.Body.String() != "ready" {
		t.Errorf("expected body 'ready', got %q", w.Body.String())
	}
}

func TestRegistry_NotReady(t *testing.T) {
	reg := NewRegistry("dev")
	reg.Register("storage", func() error { return errors.New("connection refused") })

	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	w := httptest.NewRecorder()
	reg.Ready(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", w.Code)
	}
	if w.Body.String() != "not ready" {
		t.Errorf("expected body 'not ready', got %q", w.Body.String())
	}
}

func TestLiveness(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/livez", nil)
	w := httptest.NewRecorder()
	Liveness(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if w.Body.String() != "ok" {
		t.Errorf("expected body 'ok', got %q", w.Body.String())
	}
}

func TestRegistry_ProbeLatencyRecorded(t *testing.T) {
	reg := NewRegistry("dev")
	reg.Register("storage", func() error { return nil })

	report := reg.run()

	probe, ok := report.Probes["storage"]
	if !ok {
		t.Fatal("storage probe missing from report")
	}
	if probe.LatencyMs < 0 {
		t.Errorf("latency must be non-negative, got %d", probe.LatencyMs)
	}
	if report.UptimeSeconds < 0 {
		t.Errorf("uptime must be non-negative, got %d", report.UptimeSeconds)
	}
}

package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
)

func TestRecordCommandIncrementsCounter(t *testing.T) {
	m := New()
	m.RecordCommand("Api", "SetZoneVolume", true)
	m.RecordCommand("Mqtt", "SetZoneVolume", false)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/metrics", nil)
	m.Handler().ServeHTTP(rec, req)

	body := rec.Body.String()
	if !strings.Contains(body, `snapdog_commands_total{command="SetZoneVolume",outcome="ok",source="Api"} 1`) {
		t.Errorf("expected ok counter in output, got:\n%s", body)
	}
	if !strings.Contains(body, `snapdog_commands_total{command="SetZoneVolume",outcome="error",source="Mqtt"} 1`) {
		t.Errorf("expected error counter in output, got:\n%s", body)
	}
}

func TestRecordHTTPRequestIncrementsCounterAndHistogram(t *testing.T) {
	m := New()
	m.RecordHTTPRequest("GET", "/api/v1/zones", 200, 0.01)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/metrics", nil)
	m.Handler().ServeHTTP(rec, req)

	body := rec.Body.String()
	if !strings.Contains(body, "snapdog_http_requests_total{") {
		t.Errorf("expected http requests counter in output, got:\n%s", body)
	}
	if !strings.Contains(body, "snapdog_http_request_duration_seconds_bucket{") {
		t.Errorf("expected http request duration histogram in output, got:\n%s", body)
	}
}

package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/snapdog/snapdog/internal/client"
	"github.com/snapdog/snapdog/internal/commands"
	"github.com/snapdog/snapdog/internal/config"
	"github.com/snapdog/snapdog/internal/domain"
	"github.com/snapdog/snapdog/internal/grouping"
	"github.com/snapdog/snapdog/internal/mediator"
	"github.com/snapdog/snapdog/internal/orchestrator"
	"github.com/snapdog/snapdog/internal/result"
	"github.com/snapdog/snapdog/internal/zone"
)

func nilLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeSnapcastChecker struct {
	err error
}

func (f *fakeSnapcastChecker) GetServerStatus(ctx context.Context) ([]grouping.SnapcastGroup, error) {
	return nil, f.err
}

func newTestServer(t *testing.T, snapcast SnapcastStatusChecker) (*Server, *zone.Store, *client.Store) {
	t.Helper()
	med := mediator.New()
	zoneCfg := []config.ZoneConfig{{Name: "Kitchen"}, {Name: "Living Room", IconURL: "http://example.com/lr.png"}}
	clientCfg := []config.ClientConfig{{Name: "Speaker One"}}

	zones := zone.NewStore(zoneCfg, med)
	clients := client.NewStore(clientCfg, len(zoneCfg), med)

	mediator.RegisterHandler(med, "SetZoneVolume", func(ctx context.Context, cmd commands.SetZoneVolume) result.Result[domain.Zone] {
		return zones.Mutate(cmd.ZoneIndex, cmd.Source, func(z domain.Zone) (domain.Zone, error) {
			if err := zone.ValidateVolume(cmd.Volume); err != nil {
				return z, err
			}
			z.Volume = cmd.Volume
			return z, nil
		})
	})
	mediator.RegisterHandler(med, "SetZoneMute", func(ctx context.Context, cmd commands.SetZoneMute) result.Result[domain.Zone] {
		return zones.Mutate(cmd.ZoneIndex, cmd.Source, func(z domain.Zone) (domain.Zone, error) {
			z.Mute = cmd.Muted
			return z, nil
		})
	})
	mediator.RegisterHandler(med, "ZonePlayback", func(ctx context.Context, cmd commands.ZonePlayback) result.Result[domain.Zone] {
		return zones.Mutate(cmd.ZoneIndex, cmd.Source, func(z domain.Zone) (domain.Zone, error) {
			switch cmd.Action {
			case commands.ActionPlay:
				z.Playback = domain.PlaybackPlaying
			case commands.ActionPause:
				z.Playback = domain.PlaybackPaused
			case commands.ActionStop:
				z.Playback = domain.PlaybackStopped
			}
			return z, nil
		})
	})
	mediator.RegisterHandler(med, "SetZonePlaylist", func(ctx context.Context, cmd commands.SetZonePlaylist) result.Result[domain.Zone] {
		return zones.Mutate(cmd.ZoneIndex, cmd.Source, func(z domain.Zone) (domain.Zone, error) {
			return z, nil
		})
	})
	mediator.RegisterHandler(med, "SetClientVolume", func(ctx context.Context, cmd commands.SetClientVolume) result.Result[domain.Client] {
		return clients.Mutate(cmd.ClientIndex, cmd.Source, func(c domain.Client) (domain.Client, error) {
			if err := zone.ValidateVolume(cmd.Volume); err != nil {
				return c, err
			}
			c.Volume = cmd.Volume
			return c, nil
		})
	})
	mediator.RegisterHandler(med, "SetClientMute", func(ctx context.Context, cmd commands.SetClientMute) result.Result[domain.Client] {
		return clients.Mutate(cmd.ClientIndex, cmd.Source, func(c domain.Client) (domain.Client, error) {
			c.Mute = cmd.Muted
			return c, nil
		})
	})
	mediator.RegisterHandler(med, "SetClientZoneAssignment", func(ctx context.Context, cmd commands.SetClientZoneAssignment) result.Result[domain.Client] {
		zoneExists := cmd.ZoneIndex >= 1 && cmd.ZoneIndex <= len(zoneCfg)
		return clients.SetClientZone(cmd.ClientIndex, cmd.ZoneIndex, zoneExists, cmd.Source)
	})

	s := New("127.0.0.1", 0, zones, clients, med, zoneCfg, clientCfg, snapcast, nil, nil, nilLogger())
	return s, zones, clients
}

func decodeResponse(t *testing.T, rr *httptest.ResponseRecorder) Response {
	t.Helper()
	var resp Response
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	return resp
}

func TestZoneVolumeRoundTrip(t *testing.T) {
	s, _, _ := newTestServer(t, nil)
	mux := s.Mux()

	req := httptest.NewRequest(http.MethodPut, "/api/v1/zones/1/volume", bytes.NewBufferString(`{"volume":60}`))
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	resp := decodeResponse(t, rr)
	if !resp.Success {
		t.Fatalf("expected success, got %+v", resp)
	}

	getReq := httptest.NewRequest(http.MethodGet, "/api/v1/zones/1", nil)
	getRR := httptest.NewRecorder()
	mux.ServeHTTP(getRR, getReq)

	data, _ := json.Marshal(decodeResponse(t, getRR).Data)
	var got ZoneDTO
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("failed to unmarshal zone dto: %v", err)
	}
	if got.Volume != 60 {
		t.Errorf("expected volume 60, got %d", got.Volume)
	}
}

func TestZoneVolumeInvalidReturns400(t *testing.T) {
	s, _, _ := newTestServer(t, nil)
	mux := s.Mux()

	req := httptest.NewRequest(http.MethodPut, "/api/v1/zones/1/volume", bytes.NewBufferString(`{"volume":150}`))
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rr.Code, rr.Body.String())
	}
	resp := decodeResponse(t, rr)
	if resp.Success {
		t.Fatal("expected success=false")
	}
	if resp.Error == nil || resp.Error.Code != string(result.Invalid) {
		t.Fatalf("expected Invalid error, got %+v", resp.Error)
	}
}

func TestZoneGetUnknownReturns404(t *testing.T) {
	s, _, _ := newTestServer(t, nil)
	mux := s.Mux()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/zones/99", nil)
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
}

func TestClientZoneReassignment(t *testing.T) {
	s, _, _ := newTestServer(t, nil)
	mux := s.Mux()

	req := httptest.NewRequest(http.MethodPut, "/api/v1/clients/1/zone", bytes.NewBufferString(`{"zoneIndex":2}`))
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}

	// Reassigning to the same zone again must conflict, per SetClientZone's
	// already-assigned rule.
	rr2 := httptest.NewRecorder()
	mux.ServeHTTP(rr2, httptest.NewRequest(http.MethodPut, "/api/v1/clients/1/zone", bytes.NewBufferString(`{"zoneIndex":2}`)))
	if rr2.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d: %s", rr2.Code, rr2.Body.String())
	}
}

func TestSnapcastStatusUnavailable(t *testing.T) {
	s, _, _ := newTestServer(t, &fakeSnapcastChecker{err: errors.New("connection refused")})
	mux := s.Mux()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/snapcast/status", nil)
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestSnapcastStatusNotConfigured(t *testing.T) {
	s, _, _ := newTestServer(t, nil)
	mux := s.Mux()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/snapcast/status", nil)
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
}

func TestHealthEndpointsReflectOrchestratorState(t *testing.T) {
	s, _, _ := newTestServer(t, nil)
	mux := s.Mux()

	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 before orchestrator reports running, got %d", rr.Code)
	}

	liveRR := httptest.NewRecorder()
	mux.ServeHTTP(liveRR, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	if liveRR.Code != http.StatusOK {
		t.Fatalf("expected /health/live to always be 200, got %d", liveRR.Code)
	}

	s.med.Publish(orchestrator.StateChanged{State: orchestrator.StateRunning})

	rr2 := httptest.NewRecorder()
	mux.ServeHTTP(rr2, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	if rr2.Code != http.StatusOK {
		t.Fatalf("expected 200 once running, got %d", rr2.Code)
	}
}

func TestIconsEndpoint(t *testing.T) {
	s, _, _ := newTestServer(t, nil)
	mux := s.Mux()

	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/icons", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	resp := decodeResponse(t, rr)
	data, _ := json.Marshal(resp.Data)
	var icons struct {
		Zones   map[string]string `json:"zones"`
		Clients map[string]string `json:"clients"`
	}
	if err := json.Unmarshal(data, &icons); err != nil {
		t.Fatalf("failed to unmarshal icons: %v", err)
	}
	if icons.Zones["zone_2"] != "http://example.com/lr.png" {
		t.Errorf("expected zone_2 icon, got %+v", icons.Zones)
	}
	if _, ok := icons.Zones["zone_1"]; ok {
		t.Errorf("expected zone_1 to be absent (no icon configured), got %+v", icons.Zones)
	}
}

package wiring

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/snapdog/snapdog/internal/client"
	"github.com/snapdog/snapdog/internal/config"
	"github.com/snapdog/snapdog/internal/mediator"
	"github.com/snapdog/snapdog/internal/snapcast"
	"github.com/snapdog/snapdog/internal/zone"
)

func newTestDepsWithMac(snap Snapcast, mac string) (*Deps, *zone.Store, *client.Store) {
	med := mediator.New()
	zoneCfg := []config.ZoneConfig{{Name: "Kitchen"}}
	clientCfg := []config.ClientConfig{{Name: "Speaker One", Mac: mac}}

	zones := zone.NewStore(zoneCfg, med)
	clients := client.NewStore(clientCfg, len(zoneCfg), med)

	d := &Deps{Zones: zones, Clients: clients, Med: med, Snapcast: snap}
	Register(d)
	return d, zones, clients
}

func TestSnapcastClientOnConnectMatchesByMac(t *testing.T) {
	d, _, clients := newTestDepsWithMac(nil, "AA:BB:CC:DD:EE:FF")

	params, _ := json.Marshal(map[string]any{
		"id": "sc-42",
		"client": map[string]any{
			"id":   "sc-42",
			"host": map[string]any{"mac": "aa:bb:cc:dd:ee:ff"},
			"config": map[string]any{
				"volume": map[string]any{"percent": 55, "muted": true},
			},
		},
	})
	d.Med.Publish(snapcast.ServerNotification{Method: "Client.OnConnect", Params: params})

	cr := clients.GetClient(1)
	if !cr.IsOk() {
		t.Fatalf("client lookup failed: %v", cr.Err)
	}
	if cr.Value.SnapcastClientID != "sc-42" {
		t.Errorf("expected SnapcastClientID sc-42, got %q", cr.Value.SnapcastClientID)
	}
	if !cr.Value.Connected {
		t.Error("expected client marked connected")
	}
	if cr.Value.Volume != 55 || !cr.Value.Mute {
		t.Errorf("expected volume=55 muted=true, got volume=%d mute=%v", cr.Value.Volume, cr.Value.Mute)
	}
}

func TestSnapcastClientOnConnectClampsOutOfRangeVolume(t *testing.T) {
	d, _, clients := newTestDepsWithMac(nil, "AA:BB:CC:DD:EE:FF")

	params, _ := json.Marshal(map[string]any{
		"id": "sc-1",
		"client": map[string]any{
			"id":   "sc-1",
			"host": map[string]any{"mac": "AA:BB:CC:DD:EE:FF"},
			"config": map[string]any{
				"volume": map[string]any{"percent": 140, "muted": false},
			},
		},
	})
	d.Med.Publish(snapcast.ServerNotification{Method: "Client.OnConnect", Params: params})

	cr := clients.GetClient(1)
	if cr.Value.Volume != 100 {
		t.Errorf("expected clamped volume 100, got %d", cr.Value.Volume)
	}
}

func TestSnapcastClientOnConnectForUnmappedMacIsIgnored(t *testing.T) {
	d, _, clients := newTestDepsWithMac(nil, "AA:BB:CC:DD:EE:FF")

	params, _ := json.Marshal(map[string]any{
		"id": "sc-1",
		"client": map[string]any{
			"id":   "sc-1",
			"host": map[string]any{"mac": "00:00:00:00:00:00"},
		},
	})
	d.Med.Publish(snapcast.ServerNotification{Method: "Client.OnConnect", Params: params})

	cr := clients.GetClient(1)
	if cr.Value.SnapcastClientID != "" || cr.Value.Connected {
		t.Errorf("expected no change for unmapped client, got %+v", cr.Value)
	}
}

func TestSnapcastClientOnDisconnectMatchesBySnapcastID(t *testing.T) {
	d, _, clients := newTestDepsWithMac(nil, "AA:BB:CC:DD:EE:FF")
	setClientSnapcastID(t, clients, 1, "sc-99")

	params, _ := json.Marshal(map[string]any{
		"id":     "sc-99",
		"client": map[string]any{"id": "sc-99", "host": map[string]any{}},
	})
	d.Med.Publish(snapcast.ServerNotification{Method: "Client.OnDisconnect", Params: params})

	cr := clients.GetClient(1)
	if cr.Value.Connected {
		t.Error("expected client marked disconnected")
	}
}

func TestSnapcastVolumeChangedSkipsSnapcastPushAndClamps(t *testing.T) {
	snap := &fakeSnapcast{}
	d, _, clients := newTestDepsWithMac(snap, "AA:BB:CC:DD:EE:FF")
	setClientSnapcastID(t, clients, 1, "sc-7")

	params, _ := json.Marshal(map[string]any{
		"id":     "sc-7",
		"volume": map[string]any{"percent": -5, "muted": true},
	})
	d.Med.Publish(snapcast.ServerNotification{Method: "Client.OnVolumeChanged", Params: params})

	if len(snap.calls) != 0 {
		t.Errorf("expected no push back to snapcast, got %v", snap.calls)
	}
	cr := clients.GetClient(1)
	if cr.Value.Volume != 0 {
		t.Errorf("expected clamped volume 0, got %d", cr.Value.Volume)
	}
	if !cr.Value.Mute {
		t.Error("expected client muted")
	}
}

func TestSnapcastGroupStreamChangedTriggersReconciliation(t *testing.T) {
	rec := &fakeReconciler{called: make(chan struct{})}
	med := mediator.New()
	zoneCfg := []config.ZoneConfig{{Name: "Kitchen"}}
	clientCfg := []config.ClientConfig{{Name: "Speaker One"}}
	zones := zone.NewStore(zoneCfg, med)
	clients := client.NewStore(clientCfg, len(zoneCfg), med)
	d := &Deps{Zones: zones, Clients: clients, Med: med, Reconciler: rec}
	Register(d)

	params, _ := json.Marshal(map[string]any{"id": "group-1", "stream_id": "kitchen-stream"})
	med.Publish(snapcast.ServerNotification{Method: "Group.OnStreamChanged", Params: params})

	select {
	case <-rec.called:
	case <-time.After(time.Second):
		t.Fatal("expected reconciler to be triggered after stream change")
	}
}

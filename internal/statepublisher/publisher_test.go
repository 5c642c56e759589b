package statepublisher

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/snapdog/snapdog/internal/client"
	"github.com/snapdog/snapdog/internal/config"
	"github.com/snapdog/snapdog/internal/domain"
	"github.com/snapdog/snapdog/internal/mediator"
	"github.com/snapdog/snapdog/internal/zone"
)

type fakeMQTT struct {
	mu    sync.Mutex
	calls []string
}

func (f *fakeMQTT) PublishStatus(ctx context.Context, baseTopic, suffix, payload string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, baseTopic+"/"+suffix+"="+payload)
	return nil
}

func (f *fakeMQTT) has(substr string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.calls {
		if strings.Contains(c, substr) {
			return true
		}
	}
	return false
}

type fakeKNX struct {
	mu              sync.Mutex
	zoneVolumeCalls int
	clientZoneCalls int
}

func (f *fakeKNX) PublishZoneVolume(zoneIndex, volume int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.zoneVolumeCalls++
}
func (f *fakeKNX) PublishZoneMute(zoneIndex int, muted bool)     {}
func (f *fakeKNX) PublishZonePlayback(zoneIndex, code int)       {}
func (f *fakeKNX) PublishClientVolume(clientIndex, volume int)   {}
func (f *fakeKNX) PublishClientMute(clientIndex int, muted bool) {}
func (f *fakeKNX) PublishClientZone(clientIndex, zoneIndex int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.clientZoneCalls++
}

func setup(t *testing.T) (*mediator.Mediator, *zone.Store, *client.Store, *fakeMQTT, *fakeKNX, *Publisher) {
	t.Helper()
	med := mediator.New()
	zones := []config.ZoneConfig{{Name: "Living Room", MQTTBaseTopic: "snapdog/zones/1"}}
	clients := []config.ClientConfig{{Name: "Kitchen Speaker", MQTTBaseTopic: "snapdog/clients/1"}}
	zs := zone.NewStore(zones, med)
	cs := client.NewStore(clients, 1, med)
	mq := &fakeMQTT{}
	knx := &fakeKNX{}
	pub := New(zones, clients, zs, cs, med, mq, knx, nil)
	pub.Subscribe()
	return med, zs, cs, mq, knx, pub
}

func TestPublishStartupStatePublishesEveryZoneAndClient(t *testing.T) {
	_, _, _, mq, _, pub := setup(t)
	pub.PublishStartupState()

	if !mq.has("snapdog/zones/1/status=") {
		t.Error("expected an initial zone composite status publish")
	}
	if !mq.has("snapdog/clients/1/status=") {
		t.Error("expected an initial client composite status publish")
	}
	if pub.Failures() != 0 {
		t.Errorf("expected no startup failures, got %d", pub.Failures())
	}
}

func TestZoneVolumeChangeRepublishesToMQTTAndKNX(t *testing.T) {
	_, zs, _, mq, knx, _ := setup(t)

	zs.Mutate(1, mediator.SourceAPI, func(z domain.Zone) (domain.Zone, error) {
		z.Volume = 55
		return z, nil
	})

	if !mq.has("snapdog/zones/1/volume=55") {
		t.Errorf("expected volume republish, got calls: %v", mq.calls)
	}
	if knx.zoneVolumeCalls != 1 {
		t.Errorf("expected one KNX zone volume publish, got %d", knx.zoneVolumeCalls)
	}
}

func TestMQTTOriginatedChangeIsNotEchoedBackToMQTT(t *testing.T) {
	_, zs, _, mq, _, _ := setup(t)

	zs.Mutate(1, mediator.SourceMQTT, func(z domain.Zone) (domain.Zone, error) {
		z.Volume = 30
		return z, nil
	})

	if mq.has("zones/1/volume=30") {
		t.Error("expected no MQTT republish for a change that originated from MQTT")
	}
}

func TestClientZoneReassignmentRepublishesToKNX(t *testing.T) {
	_, _, cs, _, knx, _ := setup(t)

	cs.Mutate(1, mediator.SourceInternal, func(c domain.Client) (domain.Client, error) {
		c.CurrentZoneIndex = 2
		return c, nil
	})

	if knx.clientZoneCalls == 0 {
		t.Error("expected a KNX client zone publish after a zone reassignment")
	}
}

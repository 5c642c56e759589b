// Package statepublisher pushes zone/client state out to the MQTT and
// KNX control surfaces. It never reaches back into internal/zone or
// internal/client to mutate anything — it only subscribes to the
// notifications those stores already emit and calls narrow per-
// integration sink interfaces, keeping the store → publisher →
// adapter dependency strictly one-directional per spec.md §9.
package statepublisher

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"
	"time"

	"github.com/snapdog/snapdog/internal/client"
	"github.com/snapdog/snapdog/internal/config"
	"github.com/snapdog/snapdog/internal/domain"
	"github.com/snapdog/snapdog/internal/mediator"
	"github.com/snapdog/snapdog/internal/zone"
)

// publishTimeout bounds each individual sink call so a stalled broker
// or bus connection cannot hang the subscriber goroutine the mediator
// already bounds with its own subscriber timeout.
const publishTimeout = 5 * time.Second

// MQTTSink is the capability internal/mqttadapter.Adapter exposes for
// republishing retained status topics. Defined here, not imported
// from mqttadapter, so this package depends on a method set rather
// than a concrete adapter type.
type MQTTSink interface {
	PublishStatus(ctx context.Context, baseTopic, suffix, payload string) error
}

// KNXSink is the capability internal/knxadapter.Adapter exposes for
// writing status group values. Each call is fire-and-forget from the
// publisher's point of view; the adapter logs its own failures.
type KNXSink interface {
	PublishZoneVolume(zoneIndex, volume int)
	PublishZoneMute(zoneIndex int, muted bool)
	PublishZonePlayback(zoneIndex, code int)
	PublishClientVolume(clientIndex, volume int)
	PublishClientMute(clientIndex int, muted bool)
	PublishClientZone(clientIndex, zoneIndex int)
}

// Publisher owns the startup full-state dump and the steady-state
// per-integration re-publish subscriptions.
type Publisher struct {
	zones   []config.ZoneConfig
	clients []config.ClientConfig

	zoneStore   *zone.Store
	clientStore *client.Store
	med         *mediator.Mediator

	mqtt MQTTSink
	knx  KNXSink

	logger   *slog.Logger
	failures int
}

// New builds a Publisher. mqtt and knx may be nil when that
// integration is disabled in configuration; the corresponding
// republish branch is then a no-op.
func New(zones []config.ZoneConfig, clients []config.ClientConfig, zoneStore *zone.Store, clientStore *client.Store, med *mediator.Mediator, mqtt MQTTSink, knx KNXSink, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{
		zones:       zones,
		clients:     clients,
		zoneStore:   zoneStore,
		clientStore: clientStore,
		med:         med,
		mqtt:        mqtt,
		knx:         knx,
		logger:      logger,
	}
}

// Subscribe registers the steady-state listeners. Call once, before
// PublishStartupState: the startup snapshots reach the sinks through
// these same listeners.
func (p *Publisher) Subscribe() {
	mediator.Subscribe(p.med, "ZoneStateChanged", p.handleZoneStateChanged)
	mediator.Subscribe(p.med, "ClientStateChanged", p.handleClientStateChanged)
}

// PublishStartupState enumerates every configured zone and client and
// emits its current snapshot as a composite notification with Before
// equal to After. The steady-state subscribers therefore publish only
// each zone's and client's composite MQTT "status" topic; the per-field
// MQTT topics and the KNX status GAs are not written at startup, since
// the handlers see no field change. A failed GetZone/GetClient
// (should not occur for a valid index, but the store is still the
// source of truth) is counted, never fatal to startup.
func (p *Publisher) PublishStartupState() {
	for _, i := range p.zoneStore.Indices() {
		snap := p.zoneStore.GetZone(i)
		if !snap.IsOk() {
			p.failures++
			p.logger.Warn("statepublisher: could not snapshot zone at startup", "zone", i, "error", snap.Err)
			continue
		}
		p.med.Publish(zone.ZoneStateChanged{Index: i, Before: snap.Value, After: snap.Value, Source: mediator.SourceInternal})
	}
	for _, i := range p.clientStore.Indices() {
		snap := p.clientStore.GetClient(i)
		if !snap.IsOk() {
			p.failures++
			p.logger.Warn("statepublisher: could not snapshot client at startup", "client", i, "error", snap.Err)
			continue
		}
		p.med.Publish(client.ClientStateChanged{Index: i, Before: snap.Value, After: snap.Value, Source: mediator.SourceInternal})
	}
	p.med.Publish(GlobalStatusPublished{ZoneCount: len(p.zoneStore.Indices()), ClientCount: len(p.clientStore.Indices())})
}

// Failures reports how many startup snapshots could not be read. Kept
// for the orchestrator's Publishing-state health reporting.
func (p *Publisher) Failures() int { return p.failures }

func (p *Publisher) zoneBaseTopic(i int) (string, bool) {
	if i < 1 || i > len(p.zones) {
		return "", false
	}
	topic := p.zones[i-1].MQTTBaseTopic
	return topic, topic != ""
}

func (p *Publisher) clientBaseTopic(i int) (string, bool) {
	if i < 1 || i > len(p.clients) {
		return "", false
	}
	topic := p.clients[i-1].MQTTBaseTopic
	return topic, topic != ""
}

// zoneStatus is the JSON shape published to a zone's composite status
// topic. Clients is omitted: membership is derived, not authoritative
// state a control surface would subscribe to.
type zoneStatus struct {
	Name            string             `json:"name"`
	Playback        domain.Playback    `json:"playback"`
	Volume          int                `json:"volume"`
	Mute            bool               `json:"mute"`
	TrackRepeat     bool               `json:"trackRepeat"`
	PlaylistRepeat  bool               `json:"playlistRepeat"`
	PlaylistShuffle bool               `json:"playlistShuffle"`
	Playlist        *domain.PlaylistInfo `json:"playlist,omitempty"`
	Track           *domain.TrackInfo    `json:"track,omitempty"`
}

type clientStatus struct {
	Name      string `json:"name"`
	ZoneIndex int    `json:"zoneIndex"`
	Connected bool   `json:"connected"`
	Volume    int    `json:"volume"`
	Mute      bool   `json:"mute"`
	LatencyMs int    `json:"latencyMs"`
}

// playbackCode implements the KNX DPT 5.010 encoding spec.md §4.6
// assigns to transport state: 0=Stopped, 1=Playing, 2=Paused.
func playbackCode(p domain.Playback) int {
	switch p {
	case domain.PlaybackPlaying:
		return 1
	case domain.PlaybackPaused:
		return 2
	default:
		return 0
	}
}

func (p *Publisher) handleZoneStateChanged(n zone.ZoneStateChanged) {
	before, after := n.Before, n.After

	if p.mqtt != nil && n.Source != mediator.SourceMQTT {
		base, ok := p.zoneBaseTopic(n.Index)
		if ok {
			ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
			defer cancel()
			if before.Volume != after.Volume {
				p.mqttPublish(ctx, base, "volume", strconv.Itoa(after.Volume))
			}
			if before.Mute != after.Mute {
				p.mqttPublish(ctx, base, "mute", boolStr(after.Mute))
			}
			if before.Playback != after.Playback {
				p.mqttPublish(ctx, base, "playback", string(after.Playback))
			}
			if before.TrackRepeat != after.TrackRepeat {
				p.mqttPublish(ctx, base, "repeat/track", boolStr(after.TrackRepeat))
			}
			if before.PlaylistRepeat != after.PlaylistRepeat {
				p.mqttPublish(ctx, base, "repeat/playlist", boolStr(after.PlaylistRepeat))
			}
			if before.PlaylistShuffle != after.PlaylistShuffle {
				p.mqttPublish(ctx, base, "shuffle", boolStr(after.PlaylistShuffle))
			}
			payload, err := json.Marshal(zoneStatus{
				Name:            after.Name,
				Playback:        after.Playback,
				Volume:          after.Volume,
				Mute:            after.Mute,
				TrackRepeat:     after.TrackRepeat,
				PlaylistRepeat:  after.PlaylistRepeat,
				PlaylistShuffle: after.PlaylistShuffle,
				Playlist:        after.CurrentPlaylist,
				Track:           after.CurrentTrack,
			})
			if err == nil {
				p.mqttPublish(ctx, base, "status", string(payload))
			}
		}
	}

	if p.knx != nil && n.Source != mediator.SourceKNX {
		if before.Volume != after.Volume {
			p.knx.PublishZoneVolume(n.Index, after.Volume)
		}
		if before.Mute != after.Mute {
			p.knx.PublishZoneMute(n.Index, after.Mute)
		}
		if before.Playback != after.Playback {
			p.knx.PublishZonePlayback(n.Index, playbackCode(after.Playback))
		}
	}
}

func (p *Publisher) handleClientStateChanged(n client.ClientStateChanged) {
	before, after := n.Before, n.After

	if p.mqtt != nil && n.Source != mediator.SourceMQTT {
		base, ok := p.clientBaseTopic(n.Index)
		if ok {
			ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
			defer cancel()
			if before.Volume != after.Volume {
				p.mqttPublish(ctx, base, "volume", strconv.Itoa(after.Volume))
			}
			if before.Mute != after.Mute {
				p.mqttPublish(ctx, base, "mute", boolStr(after.Mute))
			}
			if before.CurrentZoneIndex != after.CurrentZoneIndex {
				p.mqttPublish(ctx, base, "zone", strconv.Itoa(after.CurrentZoneIndex))
			}
			payload, err := json.Marshal(clientStatus{
				Name:      after.Name,
				ZoneIndex: after.CurrentZoneIndex,
				Connected: after.Connected,
				Volume:    after.Volume,
				Mute:      after.Mute,
				LatencyMs: after.LatencyMs,
			})
			if err == nil {
				p.mqttPublish(ctx, base, "status", string(payload))
			}
		}
	}

	if p.knx != nil && n.Source != mediator.SourceKNX {
		if before.Volume != after.Volume {
			p.knx.PublishClientVolume(n.Index, after.Volume)
		}
		if before.Mute != after.Mute {
			p.knx.PublishClientMute(n.Index, after.Mute)
		}
		if before.CurrentZoneIndex != after.CurrentZoneIndex {
			p.knx.PublishClientZone(n.Index, after.CurrentZoneIndex)
		}
	}
}

func (p *Publisher) mqttPublish(ctx context.Context, base, suffix, payload string) {
	if err := p.mqtt.PublishStatus(ctx, base, suffix, payload); err != nil {
		p.logger.Warn("statepublisher: mqtt publish failed", "base", base, "suffix", suffix, "error", err)
	}
}


func boolStr(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

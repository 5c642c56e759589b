// Package mqttadapter bridges MQTT topics to mediator commands and
// republishes zone/client state to retained status topics. Connection
// management, discovery-style wiring, and the inbound rate limiter are
// grounded on internal/mqtt's Publisher/subscriber pair; the topic
// suffix table and command mapping are new, built to spec.md §4.5's
// closed set of recognized suffixes.
package mqttadapter

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/eclipse/paho.golang/autopaho"
	"github.com/eclipse/paho.golang/paho"

	"github.com/snapdog/snapdog/internal/commands"
	"github.com/snapdog/snapdog/internal/config"
	"github.com/snapdog/snapdog/internal/mediator"
	"github.com/snapdog/snapdog/internal/result"
)

// counter is the narrow capability Adapter needs from a Prometheus
// counter, satisfied structurally by *metrics.Metrics' counter fields
// without this package importing internal/metrics.
type counter interface{ Inc() }

// Adapter owns the MQTT broker connection and the zone/client topic
// namespace. It never touches zone/client state directly; every
// inbound command is dispatched through the mediator.
type Adapter struct {
	cfg    config.MQTTConfig
	zones  []config.ZoneConfig
	clnts  []config.ClientConfig
	med    *mediator.Mediator
	logger *slog.Logger

	cm          *autopaho.ConnectionManager
	rateLimiter *messageRateLimiter

	zoneByTopic   map[string]int
	clientByTopic map[string]int

	parseFailures counter
	dropCounter   counter

	mu sync.Mutex
}

func New(cfg config.MQTTConfig, zones []config.ZoneConfig, clients []config.ClientConfig, med *mediator.Mediator, logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.Default()
	}
	a := &Adapter{
		cfg:           cfg,
		zones:         zones,
		clnts:         clients,
		med:           med,
		logger:        logger,
		zoneByTopic:   make(map[string]int, len(zones)),
		clientByTopic: make(map[string]int, len(clients)),
	}
	for i, z := range zones {
		a.zoneByTopic[z.MQTTBaseTopic] = i + 1
	}
	for i, c := range clients {
		a.clientByTopic[c.MQTTBaseTopic] = i + 1
	}
	return a
}

// SetMetrics wires dropped-message and parse-failure counters in.
// Called once during startup wiring, before Run, so the rate limiter
// constructed on connect picks up dropCounter.
func (a *Adapter) SetMetrics(dropped, parseFailures counter) {
	a.parseFailures = parseFailures
	a.dropCounter = dropped
}

// Run connects to the broker, subscribes to every configured command
// topic, and blocks until ctx is cancelled.
func (a *Adapter) Run(ctx context.Context) error {
	brokerURL, err := url.Parse(a.cfg.BrokerURL)
	if err != nil {
		return fmt.Errorf("parse mqtt broker url: %w", err)
	}

	pahoCfg := autopaho.ClientConfig{
		ServerUrls:      []*url.URL{brokerURL},
		KeepAlive:       30,
		ConnectUsername: a.cfg.Username,
		ConnectPassword: []byte(a.cfg.Password.Reveal()),
		OnConnectionUp: func(cm *autopaho.ConnectionManager, _ *paho.Connack) {
			a.logger.Info("mqtt connected", "broker", a.cfg.BrokerURL)
			a.mu.Lock()
			a.cm = cm
			a.mu.Unlock()
			subCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			a.subscribeAll(subCtx, cm)
			a.PublishDiscovery(subCtx)
		},
		OnConnectError: func(err error) {
			a.logger.Warn("mqtt connection error", "error", err)
		},
		ClientConfig: paho.ClientConfig{
			ClientID: a.cfg.ClientID,
		},
	}
	if brokerURL.Scheme == "mqtts" || brokerURL.Scheme == "ssl" {
		pahoCfg.TlsCfg = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	cm, err := autopaho.NewConnection(ctx, pahoCfg)
	if err != nil {
		return fmt.Errorf("mqtt connect: %w", err)
	}
	a.cm = cm

	limit := int64(a.cfg.RateLimitMsg)
	if limit <= 0 {
		limit = 100
	}
	a.rateLimiter = newMessageRateLimiter(limit, time.Second, a.logger, a.dropCounter)
	go a.rateLimiter.start(ctx)

	cm.AddOnPublishReceived(func(pr autopaho.PublishReceived) (bool, error) {
		if !a.rateLimiter.allow() {
			return true, nil
		}
		a.handleMessage(pr.Packet.Topic, pr.Packet.Payload)
		return true, nil
	})

	connCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := cm.AwaitConnection(connCtx); err != nil {
		a.logger.Warn("mqtt initial connection timed out, retrying in background", "error", err)
	}

	<-ctx.Done()
	return nil
}

func (a *Adapter) subscribeAll(ctx context.Context, cm *autopaho.ConnectionManager) {
	var opts []paho.SubscribeOptions
	for _, z := range a.zones {
		opts = append(opts, paho.SubscribeOptions{Topic: z.MQTTBaseTopic + "/cmd/#", QoS: 1})
	}
	for _, c := range a.clnts {
		opts = append(opts, paho.SubscribeOptions{Topic: c.MQTTBaseTopic + "/cmd/#", QoS: 1})
	}
	if len(opts) == 0 {
		return
	}
	if _, err := cm.Subscribe(ctx, &paho.Subscribe{Subscriptions: opts}); err != nil {
		a.logger.Error("mqtt subscribe failed", "error", err)
	}
}

// handleMessage dispatches an inbound publish to its command handler.
// Parse failures publish to the entity's /error topic and drop the
// command, per spec.md §4.5.
func (a *Adapter) handleMessage(topic string, payload []byte) {
	defer func() {
		if r := recover(); r != nil {
			a.logger.Error("mqtt message handler panicked", "topic", topic, "panic", r)
		}
	}()

	base, suffix, ok := splitBaseAndSuffix(topic)
	if !ok {
		return
	}

	if zi, ok := a.zoneByTopic[base]; ok {
		if err := a.dispatchZone(zi, suffix, string(payload)); err != nil {
			a.publishError(base, err)
		}
		return
	}
	if ci, ok := a.clientByTopic[base]; ok {
		if err := a.dispatchClient(ci, suffix, string(payload)); err != nil {
			a.publishError(base, err)
		}
		return
	}
}

// splitBaseAndSuffix splits topic at its first "/cmd/" segment and
// returns the part before it as the base and the rest as the suffix
// ("/cmd/volume", etc).
func splitBaseAndSuffix(topic string) (base, suffix string, ok bool) {
	idx := strings.Index(topic, "/cmd/")
	if idx < 0 {
		return "", "", false
	}
	return topic[:idx], topic[idx:], true
}

func (a *Adapter) send(cmd mediator.Command) {
	r := mediator.Send[any](context.Background(), a.med, cmd)
	if !r.IsOk() {
		a.logger.Warn("mqtt command failed", "command", cmd.CommandName(), "error", r.Err)
	}
}

func (a *Adapter) dispatchZone(zi int, suffix, payload string) error {
	switch {
	case suffix == "/cmd/play":
		a.send(commands.ZonePlayback{ZoneIndex: zi, Action: commands.ActionPlay, Source: mediator.SourceMQTT})
	case suffix == "/cmd/pause":
		a.send(commands.ZonePlayback{ZoneIndex: zi, Action: commands.ActionPause, Source: mediator.SourceMQTT})
	case suffix == "/cmd/stop":
		a.send(commands.ZonePlayback{ZoneIndex: zi, Action: commands.ActionStop, Source: mediator.SourceMQTT})
	case suffix == "/cmd/next":
		a.send(commands.ZonePlayback{ZoneIndex: zi, Action: commands.ActionNext, Source: mediator.SourceMQTT})
	case suffix == "/cmd/prev":
		a.send(commands.ZonePlayback{ZoneIndex: zi, Action: commands.ActionPrev, Source: mediator.SourceMQTT})
	case suffix == "/cmd/track":
		n, err := strconv.Atoi(payload)
		if err != nil {
			return err
		}
		a.send(commands.SetZoneTrack{ZoneIndex: zi, TrackIndex: n, Source: mediator.SourceMQTT})
	case suffix == "/cmd/playlist":
		n, err := strconv.Atoi(payload)
		if err != nil {
			return err
		}
		a.send(commands.SetZonePlaylist{ZoneIndex: zi, PlaylistIndex: n, Source: mediator.SourceMQTT})
	case suffix == "/cmd/volume":
		n, err := strconv.Atoi(payload)
		if err != nil {
			return err
		}
		a.send(commands.SetZoneVolume{ZoneIndex: zi, Volume: n, Source: mediator.SourceMQTT})
	case suffix == "/cmd/mute":
		b, err := parseBoolFlag(payload)
		if err != nil {
			return err
		}
		a.send(commands.SetZoneMute{ZoneIndex: zi, Muted: b, Source: mediator.SourceMQTT})
	case suffix == "/cmd/repeat/track":
		b, err := parseBoolFlag(payload)
		if err != nil {
			return err
		}
		a.send(commands.SetZoneTrackRepeat{ZoneIndex: zi, Enabled: b, Source: mediator.SourceMQTT})
	case suffix == "/cmd/repeat/playlist":
		b, err := parseBoolFlag(payload)
		if err != nil {
			return err
		}
		a.send(commands.SetZonePlaylistRepeat{ZoneIndex: zi, Enabled: b, Source: mediator.SourceMQTT})
	case suffix == "/cmd/shuffle":
		b, err := parseBoolFlag(payload)
		if err != nil {
			return err
		}
		a.send(commands.SetZoneShuffle{ZoneIndex: zi, Enabled: b, Source: mediator.SourceMQTT})
	default:
		return fmt.Errorf("unrecognized zone command suffix %q", suffix)
	}
	return nil
}

func (a *Adapter) dispatchClient(ci int, suffix, payload string) error {
	switch suffix {
	case "/cmd/volume":
		n, err := strconv.Atoi(payload)
		if err != nil {
			return err
		}
		a.send(commands.SetClientVolume{ClientIndex: ci, Volume: n, Source: mediator.SourceMQTT})
	case "/cmd/mute":
		b, err := parseBoolFlag(payload)
		if err != nil {
			return err
		}
		a.send(commands.SetClientMute{ClientIndex: ci, Muted: b, Source: mediator.SourceMQTT})
	case "/cmd/zone":
		n, err := strconv.Atoi(payload)
		if err != nil {
			return err
		}
		a.send(commands.SetClientZoneAssignment{ClientIndex: ci, ZoneIndex: n, Source: mediator.SourceMQTT})
	default:
		return fmt.Errorf("unrecognized client command suffix %q", suffix)
	}
	return nil
}

func parseBoolFlag(payload string) (bool, error) {
	switch strings.TrimSpace(payload) {
	case "1", "true", "True":
		return true, nil
	case "0", "false", "False":
		return false, nil
	default:
		return false, fmt.Errorf("invalid boolean flag %q", payload)
	}
}

func (a *Adapter) publishError(base string, cause error) {
	a.logger.Warn("mqtt command parse failed", "base", base, "error", cause)
	if a.parseFailures != nil {
		a.parseFailures.Inc()
	}
	if a.cm == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, _ = a.cm.Publish(ctx, &paho.Publish{
		Topic:   base + "/error",
		Payload: []byte(cause.Error()),
		QoS:     0,
	})
}

// PublishStatus publishes a retained status value under
// base/<suffix>. Used by statepublisher for both zone and client
// composite and per-field state.
func (a *Adapter) PublishStatus(ctx context.Context, baseTopic, suffix, payload string) error {
	a.mu.Lock()
	cm := a.cm
	a.mu.Unlock()
	if cm == nil {
		return result.New(result.Unavailable, "mqtt: not connected")
	}
	_, err := cm.Publish(ctx, &paho.Publish{
		Topic:   baseTopic + "/" + suffix,
		Payload: []byte(payload),
		QoS:     0,
		Retain:  true,
	})
	return err
}

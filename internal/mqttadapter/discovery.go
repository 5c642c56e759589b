package mqttadapter

import (
	"context"
	"encoding/json"
	"time"

	"github.com/eclipse/paho.golang/paho"

	"github.com/snapdog/snapdog/internal/buildinfo"
)

// deviceInfo is the Home Assistant device registry block shared by
// every discovery payload this adapter publishes. Grounded on
// internal/mqtt/device.go's DeviceInfo, adapted from a single-device
// agent to one device per zone/client entity.
type deviceInfo struct {
	Identifiers  []string `json:"identifiers"`
	Name         string   `json:"name"`
	Manufacturer string   `json:"manufacturer"`
	Model        string   `json:"model"`
	SWVersion    string   `json:"sw_version"`
}

// numberConfig is an HA MQTT "number" discovery payload, used for
// volume controls.
type numberConfig struct {
	Name           string     `json:"name"`
	UniqueID       string     `json:"unique_id"`
	StateTopic     string     `json:"state_topic"`
	CommandTopic   string     `json:"command_topic"`
	Min            int        `json:"min"`
	Max            int        `json:"max"`
	Device         deviceInfo `json:"device"`
	EntityCategory string     `json:"entity_category,omitempty"`
}

type switchConfig struct {
	Name         string     `json:"name"`
	UniqueID     string     `json:"unique_id"`
	StateTopic   string     `json:"state_topic"`
	CommandTopic string     `json:"command_topic"`
	PayloadOn    string     `json:"payload_on"`
	PayloadOff   string     `json:"payload_off"`
	Device       deviceInfo `json:"device"`
}

// PublishDiscovery publishes HA MQTT discovery config for a zone's
// volume number and mute switch entities, for every configured zone.
// Called on every broker (re-)connect; a no-op unless discovery is
// enabled in config.
func (a *Adapter) PublishDiscovery(ctx context.Context) {
	if !a.cfg.Discovery || a.cm == nil {
		return
	}

	for _, z := range a.zones {
		dev := deviceInfo{
			Identifiers:  []string{"snapdog-zone-" + z.MQTTBaseTopic},
			Name:         z.Name,
			Manufacturer: "Snapdog",
			Model:        "Zone",
			SWVersion:    buildinfo.Version,
		}

		vol := numberConfig{
			Name:         z.Name + " Volume",
			UniqueID:     "snapdog_zone_" + z.MQTTBaseTopic + "_volume",
			StateTopic:   z.MQTTBaseTopic + "/volume",
			CommandTopic: z.MQTTBaseTopic + "/cmd/volume",
			Min:          0,
			Max:          100,
			Device:       dev,
		}
		a.publishDiscoveryPayload(ctx, "number", z.MQTTBaseTopic, "volume", vol)

		mute := switchConfig{
			Name:         z.Name + " Mute",
			UniqueID:     "snapdog_zone_" + z.MQTTBaseTopic + "_mute",
			StateTopic:   z.MQTTBaseTopic + "/mute",
			CommandTopic: z.MQTTBaseTopic + "/cmd/mute",
			PayloadOn:    "true",
			PayloadOff:   "false",
			Device:       dev,
		}
		a.publishDiscoveryPayload(ctx, "switch", z.MQTTBaseTopic, "mute", mute)
	}
}

func (a *Adapter) publishDiscoveryPayload(ctx context.Context, component, baseTopic, entity string, cfg any) {
	topic := "homeassistant/" + component + "/" + sanitizeTopicSegment(baseTopic) + "_" + entity + "/config"
	payload, err := json.Marshal(cfg)
	if err != nil {
		a.logger.Error("mqtt discovery marshal failed", "entity", entity, "error", err)
		return
	}
	pubCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if _, err := a.cm.Publish(pubCtx, &paho.Publish{
		Topic:   topic,
		Payload: payload,
		QoS:     1,
		Retain:  true,
	}); err != nil {
		a.logger.Warn("mqtt discovery publish failed", "entity", entity, "error", err)
	}
}

func sanitizeTopicSegment(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == '/' {
			out = append(out, '_')
			continue
		}
		out = append(out, c)
	}
	return string(out)
}

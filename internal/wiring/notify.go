package wiring

import (
	"context"
	"strings"

	"github.com/snapdog/snapdog/internal/commands"
	"github.com/snapdog/snapdog/internal/domain"
	"github.com/snapdog/snapdog/internal/mediator"
	"github.com/snapdog/snapdog/internal/snapcast"
)

// onSnapcastNotification decodes a raw Snapcast server push and turns
// it into a Source=Internal state change, per spec.md §4.4. Unknown
// methods (Server.OnUpdate and friends) are ignored; only the events
// that affect a zone/client's tracked state are handled.
func (d *Deps) onSnapcastNotification(n snapcast.ServerNotification) {
	switch n.Method {
	case "Client.OnConnect":
		d.handleSnapcastClientConnection(n, true)
	case "Client.OnDisconnect":
		d.handleSnapcastClientConnection(n, false)
	case "Client.OnVolumeChanged":
		d.handleSnapcastClientVolumeChanged(n)
	case "Group.OnStreamChanged":
		d.handleSnapcastGroupStreamChanged(n)
	}
}

// handleSnapcastClientConnection applies a Client.OnConnect or
// Client.OnDisconnect event. The first OnConnect seen for a MAC
// address learns that device's SnapcastClientID; every later event for
// the same client is matched by that ID instead, since Snapcast's
// client IDs are stable across reconnects but the MAC lookup is only
// needed once.
func (d *Deps) handleSnapcastClientConnection(n snapcast.ServerNotification, connected bool) {
	p, err := n.DecodeClientConnection()
	if err != nil {
		d.Logger.Warn("snapcast: failed to decode connection notification", "method", n.Method, "error", err)
		return
	}

	ci, ok := d.clientIndexBySnapcastID(p.ID)
	if !ok {
		ci, ok = d.clientIndexByMac(p.Client.Host.MAC)
	}
	if !ok {
		d.Logger.Warn("snapcast: connection event for unmapped client", "snapcast_id", p.ID, "mac", p.Client.Host.MAC)
		return
	}

	vol := domain.ClampVolume(p.Client.Config.Volume.Percent)
	d.Clients.Mutate(ci, mediator.SourceInternal, func(c domain.Client) (domain.Client, error) {
		c.SnapcastClientID = p.ID
		c.Connected = connected
		if connected {
			c.Volume = vol
			c.Mute = p.Client.Config.Volume.Muted
		}
		return c, nil
	})
}

// handleSnapcastClientVolumeChanged routes a Client.OnVolumeChanged
// event through the same SetClientVolume/SetClientMute handlers a
// locally-issued command uses, tagged Source=Internal so they clamp
// instead of reject and skip the redundant push back to Snapcast.
func (d *Deps) handleSnapcastClientVolumeChanged(n snapcast.ServerNotification) {
	p, err := n.DecodeClientVolume()
	if err != nil {
		d.Logger.Warn("snapcast: failed to decode volume notification", "error", err)
		return
	}
	ci, ok := d.clientIndexBySnapcastID(p.ID)
	if !ok {
		d.Logger.Warn("snapcast: volume event for unmapped client", "snapcast_id", p.ID)
		return
	}

	ctx := context.Background()
	mediator.Send[domain.Client](ctx, d.Med, commands.SetClientVolume{
		ClientIndex: ci,
		Volume:      p.Volume.Percent,
		Source:      mediator.SourceInternal,
	})
	mediator.Send[domain.Client](ctx, d.Med, commands.SetClientMute{
		ClientIndex: ci,
		Muted:       p.Volume.Muted,
		Source:      mediator.SourceInternal,
	})
}

// handleSnapcastGroupStreamChanged reacts to a group's stream
// reassignment by nudging the reconciler rather than mutating anything
// directly: zone-to-group membership is derived from
// domain.Zone.SnapcastSinkPath at reconcile time, there is no stored
// group entity to update here.
func (d *Deps) handleSnapcastGroupStreamChanged(n snapcast.ServerNotification) {
	if d.Reconciler == nil {
		return
	}
	if _, err := n.DecodeGroupStream(); err != nil {
		d.Logger.Warn("snapcast: failed to decode group stream notification", "error", err)
		return
	}
	go d.Reconciler.Reconcile(context.Background())
}

func (d *Deps) clientIndexByMac(mac string) (int, bool) {
	if mac == "" {
		return 0, false
	}
	for _, ci := range d.Clients.Indices() {
		cr := d.Clients.GetClient(ci)
		if cr.IsOk() && cr.Value.Mac != "" && strings.EqualFold(cr.Value.Mac, mac) {
			return ci, true
		}
	}
	return 0, false
}

func (d *Deps) clientIndexBySnapcastID(id string) (int, bool) {
	if id == "" {
		return 0, false
	}
	for _, ci := range d.Clients.Indices() {
		cr := d.Clients.GetClient(ci)
		if cr.IsOk() && cr.Value.SnapcastClientID == id {
			return ci, true
		}
	}
	return 0, false
}

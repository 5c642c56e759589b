package client

import (
	"github.com/snapdog/snapdog/internal/domain"
	"github.com/snapdog/snapdog/internal/mediator"
)

// ClientVolumeChanged fires when a client's Volume field changes.
type ClientVolumeChanged struct {
	Index                int
	OldVolume, NewVolume int
}

func (ClientVolumeChanged) NotificationName() string { return "ClientVolumeChanged" }

// ClientMuteChanged fires when a client's Mute field changes.
type ClientMuteChanged struct {
	Index            int
	OldMute, NewMute bool
}

func (ClientMuteChanged) NotificationName() string { return "ClientMuteChanged" }

// ClientConnectionChanged fires when a client connects to or
// disconnects from Snapcast.
type ClientConnectionChanged struct {
	Index     int
	Connected bool
}

func (ClientConnectionChanged) NotificationName() string { return "ClientConnectionChanged" }

// ClientZoneChanged fires when a client's CurrentZoneIndex changes,
// whether from a SetClientZone call or a Mutate that changes the field.
type ClientZoneChanged struct {
	Index                      int
	OldZoneIndex, NewZoneIndex int
}

func (ClientZoneChanged) NotificationName() string { return "ClientZoneChanged" }

// ClientLatencyChanged fires when a client's LatencyMs field changes.
type ClientLatencyChanged struct {
	Index     int
	LatencyMs int
}

func (ClientLatencyChanged) NotificationName() string { return "ClientLatencyChanged" }

// ClientStateChanged is the composite notification emitted alongside
// any of the above, carrying full before/after snapshots. Source
// identifies the control surface whose command produced the mutation.
type ClientStateChanged struct {
	Index         int
	Before, After domain.Client
	Source        mediator.Source
}

func (ClientStateChanged) NotificationName() string { return "ClientStateChanged" }

// Package commands defines the closed set of mediator commands that
// every control surface (HTTP, MQTT, KNX, Subsonic-driven automation)
// funnels into. Keeping them in one package means the zone and client
// state stores register exactly one handler per command regardless of
// which adapter produced it, and every command carries the Source tag
// statepublisher needs for echo suppression.
package commands

import "github.com/snapdog/snapdog/internal/mediator"

// PlaybackAction is the verb for ZonePlayback.
type PlaybackAction string

const (
	ActionPlay  PlaybackAction = "Play"
	ActionPause PlaybackAction = "Pause"
	ActionStop  PlaybackAction = "Stop"
	ActionNext  PlaybackAction = "Next"
	ActionPrev  PlaybackAction = "Prev"
)

// SetZoneVolume sets a zone's target volume (0-100).
type SetZoneVolume struct {
	ZoneIndex int
	Volume    int
	Source    mediator.Source
}

func (SetZoneVolume) CommandName() string { return "SetZoneVolume" }

// SetZoneMute sets a zone's mute flag.
type SetZoneMute struct {
	ZoneIndex int
	Muted     bool
	Source    mediator.Source
}

func (SetZoneMute) CommandName() string { return "SetZoneMute" }

// ZonePlayback issues a playback transition or track-navigation
// command to a zone.
type ZonePlayback struct {
	ZoneIndex int
	Action    PlaybackAction
	Source    mediator.Source
}

func (ZonePlayback) CommandName() string { return "ZonePlayback" }

// SetZoneTrack plays a specific track index within the current
// playlist.
type SetZoneTrack struct {
	ZoneIndex  int
	TrackIndex int
	Source     mediator.Source
}

func (SetZoneTrack) CommandName() string { return "SetZoneTrack" }

// SetZonePlaylist loads a playlist by index into a zone.
type SetZonePlaylist struct {
	ZoneIndex     int
	PlaylistIndex int
	Source        mediator.Source
}

func (SetZonePlaylist) CommandName() string { return "SetZonePlaylist" }

// SetZoneTrackRepeat toggles single-track repeat.
type SetZoneTrackRepeat struct {
	ZoneIndex int
	Enabled   bool
	Source    mediator.Source
}

func (SetZoneTrackRepeat) CommandName() string { return "SetZoneTrackRepeat" }

// SetZonePlaylistRepeat toggles whole-playlist repeat.
type SetZonePlaylistRepeat struct {
	ZoneIndex int
	Enabled   bool
	Source    mediator.Source
}

func (SetZonePlaylistRepeat) CommandName() string { return "SetZonePlaylistRepeat" }

// SetZoneShuffle toggles playlist shuffle.
type SetZoneShuffle struct {
	ZoneIndex int
	Enabled   bool
	Source    mediator.Source
}

func (SetZoneShuffle) CommandName() string { return "SetZoneShuffle" }

// SetClientVolume sets a client's volume (0-100).
type SetClientVolume struct {
	ClientIndex int
	Volume      int
	Source      mediator.Source
}

func (SetClientVolume) CommandName() string { return "SetClientVolume" }

// SetClientMute sets a client's mute flag. Per DESIGN.md's Open
// Question decision, muting preserves the pre-mute volume rather than
// zeroing it so unmuting restores the prior level.
type SetClientMute struct {
	ClientIndex int
	Muted       bool
	Source      mediator.Source
}

func (SetClientMute) CommandName() string { return "SetClientMute" }

// SetClientZoneAssignment reassigns a client to a different zone.
type SetClientZoneAssignment struct {
	ClientIndex int
	ZoneIndex   int
	Source      mediator.Source
}

func (SetClientZoneAssignment) CommandName() string { return "SetClientZoneAssignment" }

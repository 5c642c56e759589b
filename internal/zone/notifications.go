package zone

import (
	"github.com/snapdog/snapdog/internal/domain"
	"github.com/snapdog/snapdog/internal/mediator"
)

// ZoneVolumeChanged fires when a zone's Volume field changes.
type ZoneVolumeChanged struct {
	Index               int
	OldVolume, NewVolume int
}

func (ZoneVolumeChanged) NotificationName() string { return "ZoneVolumeChanged" }

// ZoneMuteChanged fires when a zone's Mute field changes.
type ZoneMuteChanged struct {
	Index           int
	OldMute, NewMute bool
}

func (ZoneMuteChanged) NotificationName() string { return "ZoneMuteChanged" }

// ZonePlaybackChanged fires when a zone transitions between Stopped,
// Playing, and Paused.
type ZonePlaybackChanged struct {
	Index                       int
	OldPlayback, NewPlayback domain.Playback
}

func (ZonePlaybackChanged) NotificationName() string { return "ZonePlaybackChanged" }

// ZoneModeChanged fires when any of TrackRepeat, PlaylistRepeat, or
// PlaylistShuffle changes. These three are reported together since
// they are usually set from the same UI control group.
type ZoneModeChanged struct {
	Index                                         int
	TrackRepeat, PlaylistRepeat, PlaylistShuffle bool
}

func (ZoneModeChanged) NotificationName() string { return "ZoneModeChanged" }

// ZonePlaylistChanged fires when a zone's CurrentPlaylist changes.
type ZonePlaylistChanged struct {
	Index    int
	Playlist *domain.PlaylistInfo
}

func (ZonePlaylistChanged) NotificationName() string { return "ZonePlaylistChanged" }

// ZoneTrackChanged fires when a zone's CurrentTrack identity changes
// (anything but PositionMs).
type ZoneTrackChanged struct {
	Index int
	Track *domain.TrackInfo
}

func (ZoneTrackChanged) NotificationName() string { return "ZoneTrackChanged" }

// ZonePositionChanged fires when only CurrentTrack.PositionMs moved by
// at least 500ms, or playback just transitioned, without any other
// track field changing.
type ZonePositionChanged struct {
	Index      int
	PositionMs int
}

func (ZonePositionChanged) NotificationName() string { return "ZonePositionChanged" }

// ZoneStateChanged is the composite notification emitted alongside any
// of the above, carrying full before/after snapshots for consumers
// that prefer coarse updates over field-level granularity. Source
// identifies the control surface whose command produced the mutation,
// letting a subscriber skip notifications it originated itself.
type ZoneStateChanged struct {
	Index         int
	Before, After domain.Zone
	Source        mediator.Source
}

func (ZoneStateChanged) NotificationName() string { return "ZoneStateChanged" }

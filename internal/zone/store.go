// Package zone owns the authoritative table of logical rooms. It is
// the only code allowed to hold a pointer to a live domain.Zone;
// everything else interacts through GetZone snapshots and Mutate.
package zone

import (
	"fmt"
	"time"

	"github.com/snapdog/snapdog/internal/config"
	"github.com/snapdog/snapdog/internal/domain"
	"github.com/snapdog/snapdog/internal/mediator"
	"github.com/snapdog/snapdog/internal/result"
)

// positionEpsilon is the minimum position delta that warrants its own
// ZonePositionChanged notification, per spec.md §4.2.
const positionEpsilon = 500 * time.Millisecond

// Store holds every configured zone, built once at startup with stable
// 1-based indices derived from configuration order. The map is never
// resized after NewStore returns.
type Store struct {
	med   *mediator.Mediator
	zones map[int]*domain.Zone
}

// NewStore builds a Store from the zones section of the configuration.
func NewStore(cfgZones []config.ZoneConfig, med *mediator.Mediator) *Store {
	zones := make(map[int]*domain.Zone, len(cfgZones))
	for i, zc := range cfgZones {
		index := i + 1
		zones[index] = &domain.Zone{
			Index:            index,
			Name:             zc.Name,
			SnapcastSinkPath: zc.SnapcastSinkPath,
			Clients:          make(map[int]struct{}),
			Playback:         domain.PlaybackStopped,
			LastMutated:      time.Now(),
		}
	}
	return &Store{med: med, zones: zones}
}

// GetZone returns a value-copy snapshot of zone i.
func (s *Store) GetZone(i int) result.Result[domain.Zone] {
	z, ok := s.zones[i]
	if !ok {
		return result.Err[domain.Zone](result.NotFound, "zone %d not found", i)
	}
	l := s.med.EntityLock(mediator.EntityZone, i)
	l.Lock()
	defer l.Unlock()
	return result.Ok(z.Clone())
}

// Indices returns every configured zone index, ascending.
func (s *Store) Indices() []int {
	out := make([]int, 0, len(s.zones))
	for i := range s.zones {
		out = append(out, i)
	}
	for a := 1; a < len(out); a++ {
		for b := a; b > 0 && out[b-1] > out[b]; b-- {
			out[b-1], out[b] = out[b], out[b-1]
		}
	}
	return out
}

// MutateFunc transforms a zone's value. It must be pure: no side
// effects, no blocking I/O — Mutate holds the entity lock for its
// entire duration.
type MutateFunc func(domain.Zone) (domain.Zone, error)

// Mutate applies fn to zone i under its per-entity lock, diffs the
// result field by field, and emits one typed notification per changed
// field plus a composite ZoneStateChanged. source tags the composite
// notification so statepublisher can suppress echoes back to the
// integration that issued the originating command. Returns the
// updated snapshot.
func (s *Store) Mutate(i int, source mediator.Source, fn MutateFunc) result.Result[domain.Zone] {
	z, ok := s.zones[i]
	if !ok {
		return result.Err[domain.Zone](result.NotFound, "zone %d not found", i)
	}

	l := s.med.EntityLock(mediator.EntityZone, i)
	l.Lock()
	defer l.Unlock()

	before := z.Clone()
	after, err := fn(before)
	if err != nil {
		return result.Err[domain.Zone](result.Invalid, "zone %d mutation rejected: %v", i, err)
	}
	after.Index = i
	after.LastMutated = time.Now()

	*z = after
	snapshot := z.Clone()

	s.emitDiff(i, source, before, snapshot)

	return result.Ok(snapshot)
}

func (s *Store) emitDiff(i int, source mediator.Source, before, after domain.Zone) {
	changed := false

	if before.Volume != after.Volume {
		changed = true
		s.med.Publish(ZoneVolumeChanged{Index: i, OldVolume: before.Volume, NewVolume: after.Volume})
	}
	if before.Mute != after.Mute {
		changed = true
		s.med.Publish(ZoneMuteChanged{Index: i, OldMute: before.Mute, NewMute: after.Mute})
	}
	if before.Playback != after.Playback {
		changed = true
		s.med.Publish(ZonePlaybackChanged{Index: i, OldPlayback: before.Playback, NewPlayback: after.Playback})
	}
	if before.TrackRepeat != after.TrackRepeat || before.PlaylistRepeat != after.PlaylistRepeat || before.PlaylistShuffle != after.PlaylistShuffle {
		changed = true
		s.med.Publish(ZoneModeChanged{
			Index:           i,
			TrackRepeat:     after.TrackRepeat,
			PlaylistRepeat:  after.PlaylistRepeat,
			PlaylistShuffle: after.PlaylistShuffle,
		})
	}
	if !playlistEqual(before.CurrentPlaylist, after.CurrentPlaylist) {
		changed = true
		s.med.Publish(ZonePlaylistChanged{Index: i, Playlist: after.CurrentPlaylist})
	}

	trackChanged, positionChanged := trackDiff(before.CurrentTrack, after.CurrentTrack, before.Playback != after.Playback)
	if trackChanged {
		changed = true
		s.med.Publish(ZoneTrackChanged{Index: i, Track: after.CurrentTrack})
	} else if positionChanged {
		changed = true
		s.med.Publish(ZonePositionChanged{Index: i, PositionMs: after.CurrentTrack.PositionMs})
	}

	if changed {
		s.med.Publish(ZoneStateChanged{Index: i, Before: before, After: after, Source: source})
	}
}

func playlistEqual(a, b *domain.PlaylistInfo) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}

// trackDiff reports whether the track identity changed, and
// independently whether only the position moved enough to warrant its
// own notification.
func trackDiff(before, after *domain.TrackInfo, playbackTransitioned bool) (trackChanged, positionChanged bool) {
	if before == nil && after == nil {
		return false, false
	}
	if before == nil || after == nil {
		return true, false
	}
	if !before.EqualIgnoringPosition(*after) {
		return true, false
	}
	delta := after.PositionMs - before.PositionMs
	if delta < 0 {
		delta = -delta
	}
	if time.Duration(delta)*time.Millisecond >= positionEpsilon || playbackTransitioned {
		return false, true
	}
	return false, false
}

// ValidateVolume enforces spec.md's ingress clamp/reject rule: values
// coming from an external command must be in range or rejected, never
// silently clipped (Snapcast-originated values are clamped instead by
// the caller that already knows the source was Snapcast).
func ValidateVolume(v int) error {
	if v < 0 || v > 100 {
		return fmt.Errorf("volume %d out of range [0,100]", v)
	}
	return nil
}

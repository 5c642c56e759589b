// Package wiring registers the mediator command handlers that connect
// every control surface (HTTP, MQTT, KNX) to the zone/client state
// stores and the Snapcast client's side-effecting RPCs. It is the
// composition root's last step: cmd/snapdogd builds every component
// first, then calls Register once all of them exist.
//
// Keeping this in its own package instead of inlining it in main.go
// mirrors internal/commands' own rationale: one place owns the
// mapping from a command name to its concrete effect, regardless of
// which adapter produced the command.
package wiring

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/snapdog/snapdog/internal/client"
	"github.com/snapdog/snapdog/internal/commands"
	"github.com/snapdog/snapdog/internal/domain"
	"github.com/snapdog/snapdog/internal/grouping"
	"github.com/snapdog/snapdog/internal/mediator"
	"github.com/snapdog/snapdog/internal/metrics"
	"github.com/snapdog/snapdog/internal/result"
	"github.com/snapdog/snapdog/internal/zone"
)

// Snapcast is the subset of internal/snapcast.Client's push RPCs
// command handlers need. Defined locally so this package, like every
// other internal package, depends on a capability rather than a
// concrete wire client.
type Snapcast interface {
	SetClientVolume(ctx context.Context, snapcastClientID string, percent int, muted bool) *result.Error
	SetClientMute(ctx context.Context, snapcastClientID string, muted bool) *result.Error
	SetClientLatency(ctx context.Context, snapcastClientID string, ms int) *result.Error
}

// Subsonic is the subset of internal/subsonic.Client playlist handlers
// need.
type Subsonic interface {
	GetPlaylists(ctx context.Context) ([]domain.PlaylistInfo, *result.Error)
	GetPlaylist(ctx context.Context, id string) (*domain.PlaylistInfo, *result.Error)
}

// Reconciler is the subset of internal/grouping.Reconciler needed to
// trigger an out-of-band reconciliation pass after a client changes
// zones.
type Reconciler interface {
	Reconcile(ctx context.Context) grouping.Health
}

// Deps bundles every collaborator the command handlers need. All
// fields except Zones, Clients, and Med are optional: Snapcast nil
// degrades volume/mute commands to local-state-only; Subsonic nil
// fails playlist commands with Unavailable; Reconciler nil skips the
// post-reassignment reconciliation trigger.
type Deps struct {
	Zones      *zone.Store
	Clients    *client.Store
	Med        *mediator.Mediator
	Snapcast   Snapcast
	Subsonic   Subsonic
	Reconciler Reconciler
	Metrics    *metrics.Metrics
	Logger     *slog.Logger
}

// Register installs every commands.* handler against d's stores and
// subscribes the zone-membership/reconciliation side effects that run
// off ClientZoneChanged. Panics via mediator.RegisterHandler if called
// twice against the same Mediator, same as any other wiring bug.
func Register(d *Deps) {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}

	mediator.RegisterHandler(d.Med, "SetZoneVolume", zoneMetric(d, "SetZoneVolume", d.handleSetZoneVolume))
	mediator.RegisterHandler(d.Med, "SetZoneMute", zoneMetric(d, "SetZoneMute", d.handleSetZoneMute))
	mediator.RegisterHandler(d.Med, "ZonePlayback", zoneMetric(d, "ZonePlayback", d.handleZonePlayback))
	mediator.RegisterHandler(d.Med, "SetZoneTrack", zoneMetric(d, "SetZoneTrack", d.handleSetZoneTrack))
	mediator.RegisterHandler(d.Med, "SetZonePlaylist", zoneMetric(d, "SetZonePlaylist", d.handleSetZonePlaylist))
	mediator.RegisterHandler(d.Med, "SetZoneTrackRepeat", zoneMetric(d, "SetZoneTrackRepeat", d.handleSetZoneTrackRepeat))
	mediator.RegisterHandler(d.Med, "SetZonePlaylistRepeat", zoneMetric(d, "SetZonePlaylistRepeat", d.handleSetZonePlaylistRepeat))
	mediator.RegisterHandler(d.Med, "SetZoneShuffle", zoneMetric(d, "SetZoneShuffle", d.handleSetZoneShuffle))

	mediator.RegisterHandler(d.Med, "SetClientVolume", clientMetric(d, "SetClientVolume", d.handleSetClientVolume))
	mediator.RegisterHandler(d.Med, "SetClientMute", clientMetric(d, "SetClientMute", d.handleSetClientMute))
	mediator.RegisterHandler(d.Med, "SetClientZoneAssignment", clientMetric(d, "SetClientZoneAssignment", d.handleSetClientZoneAssignment))

	mediator.Subscribe(d.Med, "ClientZoneChanged", d.onClientZoneChanged)
	mediator.Subscribe(d.Med, "SnapcastServerNotification", d.onSnapcastNotification)
}

// zoneMetric and clientMetric wrap a handler with a CommandsTotal
// observation. cmd.Source is read by sourceOf's type switch rather
// than threading a source parameter through every handler signature;
// sourced is the narrow shape every commands.* type satisfies.
type sourced interface {
	commands.Command
}

func zoneMetric[C sourced](d *Deps, name string, fn func(context.Context, C) result.Result[domain.Zone]) func(context.Context, C) result.Result[domain.Zone] {
	return func(ctx context.Context, cmd C) result.Result[domain.Zone] {
		r := fn(ctx, cmd)
		if d.Metrics != nil {
			d.Metrics.RecordCommand(sourceOf(cmd), name, r.IsOk())
		}
		return r
	}
}

func clientMetric[C sourced](d *Deps, name string, fn func(context.Context, C) result.Result[domain.Client]) func(context.Context, C) result.Result[domain.Client] {
	return func(ctx context.Context, cmd C) result.Result[domain.Client] {
		r := fn(ctx, cmd)
		if d.Metrics != nil {
			d.Metrics.RecordCommand(sourceOf(cmd), name, r.IsOk())
		}
		return r
	}
}

// sourceOf reads a command's Source field. Go has no way to express
// "has field Source" as a generic constraint, so this is a type
// switch instead.
func sourceOf(cmd commands.Command) string {
	switch c := cmd.(type) {
	case commands.SetZoneVolume:
		return string(c.Source)
	case commands.SetZoneMute:
		return string(c.Source)
	case commands.ZonePlayback:
		return string(c.Source)
	case commands.SetZoneTrack:
		return string(c.Source)
	case commands.SetZonePlaylist:
		return string(c.Source)
	case commands.SetZoneTrackRepeat:
		return string(c.Source)
	case commands.SetZonePlaylistRepeat:
		return string(c.Source)
	case commands.SetZoneShuffle:
		return string(c.Source)
	case commands.SetClientVolume:
		return string(c.Source)
	case commands.SetClientMute:
		return string(c.Source)
	case commands.SetClientZoneAssignment:
		return string(c.Source)
	default:
		return "unknown"
	}
}

// clientsInZone returns every client index currently assigned to zone
// zi. Zone-to-client membership has one source of truth,
// domain.Client.CurrentZoneIndex; domain.Zone.Clients is kept in sync
// for read-side consumers (the HTTP DTO) by onClientZoneChanged below.
func (d *Deps) clientsInZone(zi int) []int {
	var out []int
	for _, ci := range d.Clients.Indices() {
		cr := d.Clients.GetClient(ci)
		if cr.IsOk() && cr.Value.CurrentZoneIndex == zi {
			out = append(out, ci)
		}
	}
	return out
}

// pushZoneVolume pushes vol to every Snapcast client currently in zone
// zi, preserving each client's own mute flag. Returns the first
// failure encountered; per spec.md's end-to-end scenario 3, a command
// that cannot reach Snapcast must fail rather than silently drifting
// local state away from the hardware.
func (d *Deps) pushZoneVolume(ctx context.Context, zi, vol int) *result.Error {
	if d.Snapcast == nil {
		return nil
	}
	for _, ci := range d.clientsInZone(zi) {
		cr := d.Clients.GetClient(ci)
		if !cr.IsOk() || cr.Value.SnapcastClientID == "" {
			continue
		}
		if err := d.Snapcast.SetClientVolume(ctx, cr.Value.SnapcastClientID, vol, cr.Value.Mute); err != nil {
			return result.Wrap(result.Unavailable, err, "push volume to client %d", ci)
		}
	}
	return nil
}

func (d *Deps) pushZoneMute(ctx context.Context, zi int, muted bool) *result.Error {
	if d.Snapcast == nil {
		return nil
	}
	for _, ci := range d.clientsInZone(zi) {
		cr := d.Clients.GetClient(ci)
		if !cr.IsOk() || cr.Value.SnapcastClientID == "" {
			continue
		}
		if err := d.Snapcast.SetClientMute(ctx, cr.Value.SnapcastClientID, muted); err != nil {
			return result.Wrap(result.Unavailable, err, "push mute to client %d", ci)
		}
	}
	return nil
}

func (d *Deps) handleSetZoneVolume(ctx context.Context, cmd commands.SetZoneVolume) result.Result[domain.Zone] {
	if err := zone.ValidateVolume(cmd.Volume); err != nil {
		return result.Err[domain.Zone](result.Invalid, "%v", err)
	}
	if err := d.pushZoneVolume(ctx, cmd.ZoneIndex, cmd.Volume); err != nil {
		return result.ErrFrom[domain.Zone](err)
	}
	return d.Zones.Mutate(cmd.ZoneIndex, cmd.Source, func(z domain.Zone) (domain.Zone, error) {
		z.Volume = cmd.Volume
		return z, nil
	})
}

func (d *Deps) handleSetZoneMute(ctx context.Context, cmd commands.SetZoneMute) result.Result[domain.Zone] {
	if err := d.pushZoneMute(ctx, cmd.ZoneIndex, cmd.Muted); err != nil {
		return result.ErrFrom[domain.Zone](err)
	}
	return d.Zones.Mutate(cmd.ZoneIndex, cmd.Source, func(z domain.Zone) (domain.Zone, error) {
		z.Mute = cmd.Muted
		return z, nil
	})
}

// handleZonePlayback only ever touches local transport state: the
// Snapcast audio pipeline itself is out of scope, so Play/Pause/Stop
// are recorded here for status reporting and for whatever external
// source feeds Snapcast's named pipe to observe via the HTTP/MQTT/KNX
// surfaces. Next/Prev walk the current playlist's track list.
func (d *Deps) handleZonePlayback(ctx context.Context, cmd commands.ZonePlayback) result.Result[domain.Zone] {
	return d.Zones.Mutate(cmd.ZoneIndex, cmd.Source, func(z domain.Zone) (domain.Zone, error) {
		switch cmd.Action {
		case commands.ActionPlay:
			z.Playback = domain.PlaybackPlaying
		case commands.ActionPause:
			z.Playback = domain.PlaybackPaused
		case commands.ActionStop:
			z.Playback = domain.PlaybackStopped
		case commands.ActionNext, commands.ActionPrev:
			if z.CurrentPlaylist == nil || len(z.CurrentPlaylist.TrackIDs) == 0 {
				return z, fmt.Errorf("zone has no active playlist")
			}
			current := 0
			if z.CurrentTrack != nil {
				current = z.CurrentTrack.Index
			}
			z.CurrentTrack = advanceTrack(*z.CurrentPlaylist, current, cmd.Action == commands.ActionNext, z.PlaylistRepeat)
			z.Playback = domain.PlaybackPlaying
		default:
			return z, fmt.Errorf("unknown playback action %q", cmd.Action)
		}
		return z, nil
	})
}

func advanceTrack(playlist domain.PlaylistInfo, current int, forward, repeat bool) *domain.TrackInfo {
	last := len(playlist.TrackIDs) - 1
	next := current + 1
	if !forward {
		next = current - 1
	}
	switch {
	case next > last:
		if repeat {
			next = 0
		} else {
			next = last
		}
	case next < 0:
		if repeat {
			next = last
		} else {
			next = 0
		}
	}
	return &domain.TrackInfo{Index: next, SubsonicID: playlist.TrackIDs[next]}
}

func (d *Deps) handleSetZoneTrack(ctx context.Context, cmd commands.SetZoneTrack) result.Result[domain.Zone] {
	return d.Zones.Mutate(cmd.ZoneIndex, cmd.Source, func(z domain.Zone) (domain.Zone, error) {
		if z.CurrentPlaylist == nil {
			return z, fmt.Errorf("zone has no active playlist")
		}
		if cmd.TrackIndex < 0 || cmd.TrackIndex >= len(z.CurrentPlaylist.TrackIDs) {
			return z, fmt.Errorf("track index %d out of range", cmd.TrackIndex)
		}
		z.CurrentTrack = &domain.TrackInfo{Index: cmd.TrackIndex, SubsonicID: z.CurrentPlaylist.TrackIDs[cmd.TrackIndex]}
		z.Playback = domain.PlaybackPlaying
		return z, nil
	})
}

// handleSetZonePlaylist loads one playlist's full track listing from
// Subsonic and starts the zone on its first track. The Subsonic
// getPlaylist response carries only track IDs (see
// internal/subsonic.Client.GetPlaylist), not per-track title/artist
// metadata, so CurrentTrack is seeded with its SubsonicID only;
// statepublisher still has enough to report position and track index.
func (d *Deps) handleSetZonePlaylist(ctx context.Context, cmd commands.SetZonePlaylist) result.Result[domain.Zone] {
	if d.Subsonic == nil {
		return result.Err[domain.Zone](result.Unavailable, "subsonic is not configured")
	}
	playlists, err := d.Subsonic.GetPlaylists(ctx)
	if err != nil {
		return result.ErrFrom[domain.Zone](err)
	}
	if cmd.PlaylistIndex < 0 || cmd.PlaylistIndex >= len(playlists) {
		return result.Err[domain.Zone](result.Invalid, "playlist index %d out of range", cmd.PlaylistIndex)
	}
	detail, err := d.Subsonic.GetPlaylist(ctx, playlists[cmd.PlaylistIndex].ID)
	if err != nil {
		return result.ErrFrom[domain.Zone](err)
	}
	return d.Zones.Mutate(cmd.ZoneIndex, cmd.Source, func(z domain.Zone) (domain.Zone, error) {
		z.CurrentPlaylist = detail
		if len(detail.TrackIDs) > 0 {
			z.CurrentTrack = &domain.TrackInfo{Index: 0, SubsonicID: detail.TrackIDs[0]}
			z.Playback = domain.PlaybackPlaying
		} else {
			z.CurrentTrack = nil
			z.Playback = domain.PlaybackStopped
		}
		return z, nil
	})
}

func (d *Deps) handleSetZoneTrackRepeat(ctx context.Context, cmd commands.SetZoneTrackRepeat) result.Result[domain.Zone] {
	return d.Zones.Mutate(cmd.ZoneIndex, cmd.Source, func(z domain.Zone) (domain.Zone, error) {
		z.TrackRepeat = cmd.Enabled
		return z, nil
	})
}

func (d *Deps) handleSetZonePlaylistRepeat(ctx context.Context, cmd commands.SetZonePlaylistRepeat) result.Result[domain.Zone] {
	return d.Zones.Mutate(cmd.ZoneIndex, cmd.Source, func(z domain.Zone) (domain.Zone, error) {
		z.PlaylistRepeat = cmd.Enabled
		return z, nil
	})
}

func (d *Deps) handleSetZoneShuffle(ctx context.Context, cmd commands.SetZoneShuffle) result.Result[domain.Zone] {
	return d.Zones.Mutate(cmd.ZoneIndex, cmd.Source, func(z domain.Zone) (domain.Zone, error) {
		z.PlaylistShuffle = cmd.Enabled
		return z, nil
	})
}

// handleSetClientVolume pushes the new volume to Snapcast before
// mutating local state, so state never drifts from the hardware. The
// Source=Internal case is the exception: that volume already reflects
// what Snapcast itself reported (a Client.OnVolumeChanged echo), so
// pushing it back would be redundant, and per spec.md §3 a
// Snapcast-originated value is clamped rather than rejected.
func (d *Deps) handleSetClientVolume(ctx context.Context, cmd commands.SetClientVolume) result.Result[domain.Client] {
	vol := cmd.Volume
	if cmd.Source == mediator.SourceInternal {
		if clamped := domain.ClampVolume(vol); clamped != vol {
			d.Logger.Warn("snapcast reported out-of-range client volume, clamping", "client", cmd.ClientIndex, "volume", vol, "clamped", clamped)
			vol = clamped
		}
	} else if err := zone.ValidateVolume(vol); err != nil {
		return result.Err[domain.Client](result.Invalid, "%v", err)
	}

	cr := d.Clients.GetClient(cmd.ClientIndex)
	if !cr.IsOk() {
		return result.ErrFrom[domain.Client](cr.Err)
	}
	if cmd.Source != mediator.SourceInternal && d.Snapcast != nil && cr.Value.SnapcastClientID != "" {
		if err := d.Snapcast.SetClientVolume(ctx, cr.Value.SnapcastClientID, vol, cr.Value.Mute); err != nil {
			return result.ErrFrom[domain.Client](err)
		}
	}
	return d.Clients.Mutate(cmd.ClientIndex, cmd.Source, func(c domain.Client) (domain.Client, error) {
		c.Volume = vol
		return c, nil
	})
}

// handleSetClientMute preserves the pre-mute volume: only the Mute
// flag changes, Volume is left untouched so unmuting restores the
// prior level, per commands.SetClientMute's doc comment. Source=Internal
// skips the Snapcast push for the same reason handleSetClientVolume
// does: the mute state already came from Snapcast.
func (d *Deps) handleSetClientMute(ctx context.Context, cmd commands.SetClientMute) result.Result[domain.Client] {
	cr := d.Clients.GetClient(cmd.ClientIndex)
	if !cr.IsOk() {
		return result.ErrFrom[domain.Client](cr.Err)
	}
	if cmd.Source != mediator.SourceInternal && d.Snapcast != nil && cr.Value.SnapcastClientID != "" {
		if err := d.Snapcast.SetClientMute(ctx, cr.Value.SnapcastClientID, cmd.Muted); err != nil {
			return result.ErrFrom[domain.Client](err)
		}
	}
	return d.Clients.Mutate(cmd.ClientIndex, cmd.Source, func(c domain.Client) (domain.Client, error) {
		c.Mute = cmd.Muted
		return c, nil
	})
}

// handleSetClientZoneAssignment only updates the assignment; Snapcast
// group membership is corrected by the reconciler, triggered
// asynchronously from onClientZoneChanged below rather than inline
// here, so this handler's latency never depends on Snapcast's.
func (d *Deps) handleSetClientZoneAssignment(ctx context.Context, cmd commands.SetClientZoneAssignment) result.Result[domain.Client] {
	zoneExists := d.Zones.GetZone(cmd.ZoneIndex).IsOk()
	return d.Clients.SetClientZone(cmd.ClientIndex, cmd.ZoneIndex, zoneExists, cmd.Source)
}

// onClientZoneChanged keeps domain.Zone.Clients (the read-side
// membership set the HTTP DTO reports) in sync with
// domain.Client.CurrentZoneIndex (the write-side source of truth), and
// kicks an out-of-band reconciliation pass so Snapcast group
// membership converges without waiting for the next timer tick.
func (d *Deps) onClientZoneChanged(n client.ClientZoneChanged) {
	if n.OldZoneIndex > 0 {
		d.Zones.Mutate(n.OldZoneIndex, mediator.SourceInternal, func(z domain.Zone) (domain.Zone, error) {
			delete(z.Clients, n.Index)
			return z, nil
		})
	}
	if n.NewZoneIndex > 0 {
		d.Zones.Mutate(n.NewZoneIndex, mediator.SourceInternal, func(z domain.Zone) (domain.Zone, error) {
			if z.Clients == nil {
				z.Clients = make(map[int]struct{})
			}
			z.Clients[n.Index] = struct{}{}
			return z, nil
		})
	}
	if d.Reconciler != nil {
		go d.Reconciler.Reconcile(context.Background())
	}
}

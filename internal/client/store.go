// Package client owns the authoritative table of Snapcast playback
// endpoints. It is the only code allowed to hold a pointer to a live
// domain.Client; everything else interacts through GetClient snapshots,
// Mutate, and SetClientZone.
package client

import (
	"github.com/snapdog/snapdog/internal/config"
	"github.com/snapdog/snapdog/internal/domain"
	"github.com/snapdog/snapdog/internal/mediator"
	"github.com/snapdog/snapdog/internal/result"
)

// Store holds every configured client, built once at startup with
// stable 1-based indices derived from configuration order.
type Store struct {
	med     *mediator.Mediator
	clients map[int]*domain.Client
}

// NewStore builds a Store from the clients section of the
// configuration. DefaultZoneIndex and CurrentZoneIndex both start at
// zone 1 unless the deployment has zero zones, in which case clients
// start unassigned (index 0) until a SetClientZone call places them.
func NewStore(cfgClients []config.ClientConfig, zoneCount int, med *mediator.Mediator) *Store {
	defaultZone := 0
	if zoneCount > 0 {
		defaultZone = 1
	}

	clients := make(map[int]*domain.Client, len(cfgClients))
	for i, cc := range cfgClients {
		index := i + 1
		clients[index] = &domain.Client{
			Index:            index,
			Name:             cc.Name,
			Mac:              cc.Mac,
			DefaultZoneIndex: defaultZone,
			CurrentZoneIndex: defaultZone,
		}
	}
	return &Store{med: med, clients: clients}
}

// GetClient returns a value-copy snapshot of client i.
func (s *Store) GetClient(i int) result.Result[domain.Client] {
	c, ok := s.clients[i]
	if !ok {
		return result.Err[domain.Client](result.NotFound, "client %d not found", i)
	}
	l := s.med.EntityLock(mediator.EntityClient, i)
	l.Lock()
	defer l.Unlock()
	return result.Ok(c.Clone())
}

// Indices returns every configured client index, ascending.
func (s *Store) Indices() []int {
	out := make([]int, 0, len(s.clients))
	for i := range s.clients {
		out = append(out, i)
	}
	for a := 1; a < len(out); a++ {
		for b := a; b > 0 && out[b-1] > out[b]; b-- {
			out[b-1], out[b] = out[b], out[b-1]
		}
	}
	return out
}

// MutateFunc transforms a client's value. It must be pure.
type MutateFunc func(domain.Client) (domain.Client, error)

// Mutate applies fn to client i under its per-entity lock, diffs the
// result field by field, and emits one typed notification per changed
// field plus a composite ClientStateChanged tagged with source.
func (s *Store) Mutate(i int, source mediator.Source, fn MutateFunc) result.Result[domain.Client] {
	c, ok := s.clients[i]
	if !ok {
		return result.Err[domain.Client](result.NotFound, "client %d not found", i)
	}

	l := s.med.EntityLock(mediator.EntityClient, i)
	l.Lock()
	defer l.Unlock()

	before := c.Clone()
	after, err := fn(before)
	if err != nil {
		return result.Err[domain.Client](result.Invalid, "client %d mutation rejected: %v", i, err)
	}
	after.Index = i

	*c = after
	snapshot := c.Clone()

	s.emitDiff(i, source, before, snapshot)

	return result.Ok(snapshot)
}

func (s *Store) emitDiff(i int, source mediator.Source, before, after domain.Client) {
	changed := false

	if before.Volume != after.Volume {
		changed = true
		s.med.Publish(ClientVolumeChanged{Index: i, OldVolume: before.Volume, NewVolume: after.Volume})
	}
	if before.Mute != after.Mute {
		changed = true
		s.med.Publish(ClientMuteChanged{Index: i, OldMute: before.Mute, NewMute: after.Mute})
	}
	if before.Connected != after.Connected {
		changed = true
		s.med.Publish(ClientConnectionChanged{Index: i, Connected: after.Connected})
	}
	if before.CurrentZoneIndex != after.CurrentZoneIndex {
		changed = true
		s.med.Publish(ClientZoneChanged{Index: i, OldZoneIndex: before.CurrentZoneIndex, NewZoneIndex: after.CurrentZoneIndex})
	}
	if before.LatencyMs != after.LatencyMs {
		changed = true
		s.med.Publish(ClientLatencyChanged{Index: i, LatencyMs: after.LatencyMs})
	}

	if changed {
		s.med.Publish(ClientStateChanged{Index: i, Before: before, After: after, Source: source})
	}
}

// SetClientZone reassigns client ci to zone zi. zoneExists is supplied
// by the caller (the zone store) so this package does not need a
// dependency on internal/zone; it only needs to know the target is
// valid. Returns Conflict if the client is already in that zone, per
// spec.md's "AlreadyAssigned" error — reported as result.Conflict
// since that is the closest fit in the closed Kind set. The
// already-assigned check and the mutation happen under the same lock
// acquisition to avoid a race against a concurrent SetClientZone call.
func (s *Store) SetClientZone(ci, zi int, zoneExists bool, source mediator.Source) result.Result[domain.Client] {
	if !zoneExists {
		return result.Err[domain.Client](result.NotFound, "zone %d not found", zi)
	}

	c, ok := s.clients[ci]
	if !ok {
		return result.Err[domain.Client](result.NotFound, "client %d not found", ci)
	}

	l := s.med.EntityLock(mediator.EntityClient, ci)
	l.Lock()
	defer l.Unlock()

	before := c.Clone()
	if before.CurrentZoneIndex == zi {
		return result.Err[domain.Client](result.Conflict, "client %d already assigned to zone %d", ci, zi)
	}

	after := before
	after.CurrentZoneIndex = zi
	*c = after
	snapshot := c.Clone()

	s.emitDiff(ci, source, before, snapshot)

	return result.Ok(snapshot)
}

// Package grouping reconciles Snapcast's group membership against the
// logical zone-to-clients mapping. It owns no state of its own; it
// reads snapshots from the zone and client stores and issues Snapcast
// adapter calls to correct drift.
package grouping

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/snapdog/snapdog/internal/client"
	"github.com/snapdog/snapdog/internal/mediator"
	"github.com/snapdog/snapdog/internal/zone"
)

// SnapcastGroup is the subset of a Snapcast group's status this
// package needs to plan a reconciliation pass.
type SnapcastGroup struct {
	ID      string
	Stream  string
	Clients []string // Snapcast client IDs currently in this group
}

// SnapcastStatusProvider is the capability interface grouping needs
// from the Snapcast adapter. Expressed as an interface so this package
// can be built and tested before internal/snapcast exists, and so
// tests can supply a fake without a live connection.
type SnapcastStatusProvider interface {
	GetServerStatus(ctx context.Context) ([]SnapcastGroup, error)
	SetClientGroup(ctx context.Context, snapcastClientID, groupID string) error
	SetGroupStream(ctx context.Context, groupID, stream string) error
	CreateGroup(ctx context.Context, stream string) (groupID string, err error)
}

// Health is the outcome of a reconciliation pass.
type Health string

const (
	Healthy    Health = "Healthy"
	Reconciled Health = "Reconciled"
	Degraded   Health = "Degraded"
)

// Reconciler runs the zone-grouping algorithm on a timer, on-demand
// after SetClientZone, and once after Snapcast becomes reachable.
// Concurrent triggers coalesce into a single in-flight pass via
// singleflight, matching the "second caller awaits the in-flight run's
// outcome" requirement; the immediate-then-ticker loop shape is
// grounded on unifi.Poller.Start.
type Reconciler struct {
	snapcast SnapcastStatusProvider
	zones    *zone.Store
	clients  *client.Store
	med      *mediator.Mediator
	logger   *slog.Logger

	interval     time.Duration
	sf           singleflight.Group
	recordHealth func(health string)
}

// Option configures a Reconciler.
type Option func(*Reconciler)

func WithInterval(d time.Duration) Option {
	return func(r *Reconciler) { r.interval = d }
}

func WithLogger(l *slog.Logger) Option {
	return func(r *Reconciler) { r.logger = l }
}

// WithHealthRecorder wires a Prometheus-backed callback invoked with
// the string form of every pass's outcome, decoupling this package
// from internal/metrics' concrete type.
func WithHealthRecorder(fn func(health string)) Option {
	return func(r *Reconciler) { r.recordHealth = fn }
}

func New(snapcast SnapcastStatusProvider, zones *zone.Store, clients *client.Store, med *mediator.Mediator, opts ...Option) *Reconciler {
	r := &Reconciler{
		snapcast: snapcast,
		zones:    zones,
		clients:  clients,
		med:      med,
		logger:   slog.Default(),
		interval: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Start runs the reconciliation loop until ctx is cancelled. It blocks.
func (r *Reconciler) Start(ctx context.Context) {
	r.Reconcile(ctx)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Reconcile(ctx)
		}
	}
}

// Reconcile runs one reconciliation pass, or awaits an already
// in-flight one. Safe to call concurrently and synchronously (e.g.
// immediately after SetClientZone).
func (r *Reconciler) Reconcile(ctx context.Context) Health {
	v, _, _ := r.sf.Do("reconcile", func() (any, error) {
		return r.runPass(ctx), nil
	})
	health := v.(Health)
	if r.recordHealth != nil {
		r.recordHealth(string(health))
	}
	return health
}

func (r *Reconciler) runPass(ctx context.Context) Health {
	groups, err := r.snapcast.GetServerStatus(ctx)
	if err != nil {
		r.logger.Warn("reconciliation: failed to fetch snapcast status", "error", err)
		return Degraded
	}

	byStream := make(map[string]*SnapcastGroup, len(groups))
	byID := make(map[string]*SnapcastGroup, len(groups))
	for i := range groups {
		g := &groups[i]
		byID[g.ID] = g
		if existing, ok := byStream[g.Stream]; !ok || g.ID < existing.ID {
			byStream[g.Stream] = g
		}
	}

	mutated := false
	degraded := false

	zoneGroup := make(map[int]string, len(r.zones.Indices())) // zone index -> snapcast group id

	for _, zi := range r.zones.Indices() {
		zr := r.zones.GetZone(zi)
		if !zr.IsOk() {
			continue
		}
		z := zr.Value

		g, ok := byStream[z.SnapcastSinkPath]
		if ok {
			zoneGroup[zi] = g.ID
			continue
		}

		// No group currently streams this zone's sink. Re-purpose any
		// group that currently has no assigned clients, breaking ties
		// by lowest group id; otherwise create a new one.
		target := lowestEmptyGroup(groups)
		if target != nil {
			if err := r.snapcast.SetGroupStream(ctx, target.ID, z.SnapcastSinkPath); err != nil {
				r.logger.Warn("reconciliation: failed to retarget group stream", "zone", zi, "group", target.ID, "error", err)
				degraded = true
				continue
			}
			target.Stream = z.SnapcastSinkPath
			zoneGroup[zi] = target.ID
			mutated = true
			continue
		}

		newID, err := r.snapcast.CreateGroup(ctx, z.SnapcastSinkPath)
		if err != nil {
			r.logger.Warn("reconciliation: failed to create group", "zone", zi, "error", err)
			degraded = true
			continue
		}
		zoneGroup[zi] = newID
		byID[newID] = &SnapcastGroup{ID: newID, Stream: z.SnapcastSinkPath}
		mutated = true
	}

	for _, ci := range sortedClientIndices(r.clients) {
		cr := r.clients.GetClient(ci)
		if !cr.IsOk() {
			continue
		}
		c := cr.Value
		if !c.Connected || c.SnapcastClientID == "" {
			continue
		}

		desiredZone := c.CurrentZoneIndex
		if desiredZone == 0 {
			desiredZone = c.DefaultZoneIndex
		}
		desiredGroup, ok := zoneGroup[desiredZone]
		if !ok {
			continue
		}

		if currentGroup(groups, c.SnapcastClientID) == desiredGroup {
			continue
		}

		if err := r.snapcast.SetClientGroup(ctx, c.SnapcastClientID, desiredGroup); err != nil {
			r.logger.Warn("reconciliation: failed to move client", "client", ci, "group", desiredGroup, "error", err)
			degraded = true
			continue
		}
		mutated = true
	}

	switch {
	case degraded:
		r.med.Publish(ReconciliationCompleted{Health: Degraded})
		return Degraded
	case mutated:
		r.med.Publish(ReconciliationCompleted{Health: Reconciled})
		return Reconciled
	default:
		r.med.Publish(ReconciliationCompleted{Health: Healthy})
		return Healthy
	}
}

func lowestEmptyGroup(groups []SnapcastGroup) *SnapcastGroup {
	var best *SnapcastGroup
	for i := range groups {
		g := &groups[i]
		if len(g.Clients) != 0 {
			continue
		}
		if best == nil || g.ID < best.ID {
			best = g
		}
	}
	return best
}

func currentGroup(groups []SnapcastGroup, snapcastClientID string) string {
	for _, g := range groups {
		for _, cid := range g.Clients {
			if cid == snapcastClientID {
				return g.ID
			}
		}
	}
	return ""
}

func sortedClientIndices(s *client.Store) []int {
	idx := s.Indices()
	sort.Ints(idx)
	return idx
}

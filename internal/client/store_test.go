package client

import (
	"sync/atomic"
	"testing"

	"github.com/snapdog/snapdog/internal/config"
	"github.com/snapdog/snapdog/internal/domain"
	"github.com/snapdog/snapdog/internal/mediator"
)

func newTestStore(t *testing.T) (*Store, *mediator.Mediator) {
	t.Helper()
	med := mediator.New()
	cfg := []config.ClientConfig{
		{Name: "Kitchen Speaker"},
		{Name: "Bedroom Speaker"},
	}
	return NewStore(cfg, 2, med), med
}

func TestNewStoreDefaultsToZoneOne(t *testing.T) {
	s, _ := newTestStore(t)
	got := s.GetClient(1)
	if !got.IsOk() {
		t.Fatalf("GetClient(1) failed: %v", got.Err)
	}
	if got.Value.CurrentZoneIndex != 1 || got.Value.DefaultZoneIndex != 1 {
		t.Errorf("expected client to default to zone 1, got %+v", got.Value)
	}
}

func TestNewStoreNoZonesLeavesUnassigned(t *testing.T) {
	med := mediator.New()
	s := NewStore([]config.ClientConfig{{Name: "Orphan"}}, 0, med)
	got := s.GetClient(1)
	if !got.IsOk() {
		t.Fatalf("GetClient(1) failed: %v", got.Err)
	}
	if got.Value.CurrentZoneIndex != 0 {
		t.Errorf("expected unassigned client (zone 0), got %d", got.Value.CurrentZoneIndex)
	}
}

func TestSetClientZoneMoves(t *testing.T) {
	s, med := newTestStore(t)

	var zoneChangeFired atomic.Bool
	mediator.Subscribe(med, "ClientZoneChanged", func(n ClientZoneChanged) {
		if n.OldZoneIndex != 1 || n.NewZoneIndex != 2 {
			t.Errorf("unexpected zone change payload: %+v", n)
		}
		zoneChangeFired.Store(true)
	})

	got := s.SetClientZone(1, 2, true, mediator.SourceInternal)
	if !got.IsOk() {
		t.Fatalf("SetClientZone failed: %v", got.Err)
	}
	if got.Value.CurrentZoneIndex != 2 {
		t.Errorf("CurrentZoneIndex = %d, want 2", got.Value.CurrentZoneIndex)
	}
	if !zoneChangeFired.Load() {
		t.Error("expected ClientZoneChanged to fire")
	}
}

func TestSetClientZoneAlreadyAssignedIsConflict(t *testing.T) {
	s, _ := newTestStore(t)

	got := s.SetClientZone(1, 1, true, mediator.SourceInternal)
	if got.IsOk() {
		t.Fatal("expected Conflict for re-assigning the same zone")
	}
	if got.Err.Kind.HTTPStatus() != 409 {
		t.Errorf("expected HTTP 409 for Conflict, got %d", got.Err.Kind.HTTPStatus())
	}
}

func TestSetClientZoneUnknownZoneIsNotFound(t *testing.T) {
	s, _ := newTestStore(t)

	got := s.SetClientZone(1, 99, false, mediator.SourceInternal)
	if got.IsOk() {
		t.Fatal("expected NotFound for nonexistent zone")
	}
	if got.Err.Kind.HTTPStatus() != 404 {
		t.Errorf("expected HTTP 404 for NotFound, got %d", got.Err.Kind.HTTPStatus())
	}
}

func TestMutateEmitsConnectionChanged(t *testing.T) {
	s, med := newTestStore(t)

	var fired atomic.Bool
	mediator.Subscribe(med, "ClientConnectionChanged", func(n ClientConnectionChanged) {
		if !n.Connected {
			t.Error("expected Connected=true")
		}
		fired.Store(true)
	})

	got := s.Mutate(1, mediator.SourceInternal, func(c domain.Client) (domain.Client, error) {
		c.Connected = true
		c.SnapcastClientID = "abc123"
		return c, nil
	})
	if !got.IsOk() {
		t.Fatalf("Mutate failed: %v", got.Err)
	}
	if !fired.Load() {
		t.Error("expected ClientConnectionChanged to fire")
	}
}

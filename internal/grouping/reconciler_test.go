package grouping

import (
	"context"
	"sync"
	"testing"

	"github.com/snapdog/snapdog/internal/client"
	"github.com/snapdog/snapdog/internal/config"
	"github.com/snapdog/snapdog/internal/domain"
	"github.com/snapdog/snapdog/internal/mediator"
	"github.com/snapdog/snapdog/internal/zone"
)

type fakeSnapcast struct {
	groups        []SnapcastGroup
	setGroupCalls int
	createCalls   int
	streamCalls   int
	failStatus    bool
}

func (f *fakeSnapcast) GetServerStatus(ctx context.Context) ([]SnapcastGroup, error) {
	if f.failStatus {
		return nil, context.DeadlineExceeded
	}
	return f.groups, nil
}

func (f *fakeSnapcast) SetClientGroup(ctx context.Context, snapcastClientID, groupID string) error {
	f.setGroupCalls++
	for i := range f.groups {
		for j, cid := range f.groups[i].Clients {
			if cid == snapcastClientID {
				f.groups[i].Clients = append(f.groups[i].Clients[:j], f.groups[i].Clients[j+1:]...)
			}
		}
	}
	for i := range f.groups {
		if f.groups[i].ID == groupID {
			f.groups[i].Clients = append(f.groups[i].Clients, snapcastClientID)
		}
	}
	return nil
}

func (f *fakeSnapcast) SetGroupStream(ctx context.Context, groupID, stream string) error {
	f.streamCalls++
	for i := range f.groups {
		if f.groups[i].ID == groupID {
			f.groups[i].Stream = stream
		}
	}
	return nil
}

func (f *fakeSnapcast) CreateGroup(ctx context.Context, stream string) (string, error) {
	f.createCalls++
	id := "group-new"
	f.groups = append(f.groups, SnapcastGroup{ID: id, Stream: stream})
	return id, nil
}

func newTestReconciler(t *testing.T, snap *fakeSnapcast) (*Reconciler, *zone.Store, *client.Store) {
	t.Helper()
	med := mediator.New()
	zs := zone.NewStore([]config.ZoneConfig{{Name: "Kitchen", SnapcastSinkPath: "/snapsinks/kitchen"}}, med)
	cs := client.NewStore([]config.ClientConfig{{Name: "Speaker"}}, 1, med)
	r := New(snap, zs, cs, med)
	return r, zs, cs
}

func TestReconcileHealthyWhenNothingToDo(t *testing.T) {
	snap := &fakeSnapcast{groups: []SnapcastGroup{
		{ID: "g1", Stream: "/snapsinks/kitchen", Clients: []string{"sc-1"}},
	}}
	r, _, cs := newTestReconciler(t, snap)
	cs.Mutate(1, mediator.SourceInternal, func(c domain.Client) (domain.Client, error) {
		c.Connected = true
		c.SnapcastClientID = "sc-1"
		c.CurrentZoneIndex = 1
		return c, nil
	})

	h := r.Reconcile(context.Background())
	if h != Healthy {
		t.Errorf("expected Healthy, got %s", h)
	}
}

func TestReconcileMovesMisplacedClient(t *testing.T) {
	snap := &fakeSnapcast{groups: []SnapcastGroup{
		{ID: "g1", Stream: "/snapsinks/kitchen", Clients: nil},
		{ID: "g2", Stream: "/other", Clients: []string{"sc-1"}},
	}}
	r, _, cs := newTestReconciler(t, snap)
	cs.Mutate(1, mediator.SourceInternal, func(c domain.Client) (domain.Client, error) {
		c.Connected = true
		c.SnapcastClientID = "sc-1"
		c.CurrentZoneIndex = 1
		return c, nil
	})

	h := r.Reconcile(context.Background())
	if h != Reconciled {
		t.Errorf("expected Reconciled, got %s", h)
	}
	if snap.setGroupCalls != 1 {
		t.Errorf("expected one SetClientGroup call, got %d", snap.setGroupCalls)
	}
}

func TestReconcileCreatesGroupWhenNoneMatchesSink(t *testing.T) {
	snap := &fakeSnapcast{groups: []SnapcastGroup{
		{ID: "g1", Stream: "/other", Clients: []string{"sc-1"}},
	}}
	r, _, _ := newTestReconciler(t, snap)

	h := r.Reconcile(context.Background())
	if h != Reconciled {
		t.Errorf("expected Reconciled, got %s", h)
	}
	if snap.createCalls != 1 {
		t.Errorf("expected one CreateGroup call, got %d", snap.createCalls)
	}
}

func TestReconcileDegradedOnStatusFetchFailure(t *testing.T) {
	snap := &fakeSnapcast{failStatus: true}
	r, _, _ := newTestReconciler(t, snap)

	h := r.Reconcile(context.Background())
	if h != Degraded {
		t.Errorf("expected Degraded, got %s", h)
	}
}

func TestConcurrentReconcileCoalesces(t *testing.T) {
	snap := &fakeSnapcast{groups: []SnapcastGroup{
		{ID: "g1", Stream: "/snapsinks/kitchen"},
	}}
	r, _, _ := newTestReconciler(t, snap)

	var wg sync.WaitGroup
	results := make(chan Health, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- r.Reconcile(context.Background())
		}()
	}
	wg.Wait()
	close(results)
	for h := range results {
		if h == "" {
			t.Error("expected a valid health result")
		}
	}
}

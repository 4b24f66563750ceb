package syncq

import (
	"context"
	"testing"
	"time"

	"lapakpos/terminal/internal/api"
	"lapakpos/terminal/internal/domain"
	"lapakpos/terminal/internal/store/memory"
)

func TestMonitorTransitionTriggersSingleSync(t *testing.T) {
	st := memory.New()
	enqueue(t, st, completedSale("sale-m1"))

	healthy := false
	creates := 0
	client := &fakeClient{
		health: func() error {
			if healthy {
				return nil
			}
			return api.ErrUnreachable
		},
		createSale: func(api.CreateSaleRequest) (*api.Sale, error) {
			creates++
			return &api.Sale{ID: int64(creates)}, nil
		},
	}

	syncedCh := make(chan []domain.Sale, 1)
	m := NewMonitor(client, NewProcessor(st, client), time.Hour, time.Hour)
	m.OnSynced = func(sales []domain.Sale) { syncedCh <- sales }

	ctx := context.Background()

	m.probe(ctx)
	if m.Online() {
		t.Fatalf("monitor should start offline")
	}
	if creates != 0 {
		t.Fatalf("no sync may run while unreachable")
	}

	healthy = true
	m.probe(ctx)
	if !m.Online() {
		t.Fatalf("monitor should be online after a healthy probe")
	}
	var synced []domain.Sale
	select {
	case synced = <-syncedCh:
	case <-time.After(2 * time.Second):
		t.Fatalf("drain after the transition never delivered OnSynced")
	}
	if creates != 1 {
		t.Fatalf("the offline-to-online transition should drain exactly once, got %d", creates)
	}
	if len(synced) != 1 || synced[0].LocalKey != "sale-m1" {
		t.Fatalf("OnSynced not delivered: %+v", synced)
	}

	// A steady-state probe is not a transition and must not sync again.
	enqueue(t, st, completedSale("sale-m2"))
	m.probe(ctx)
	select {
	case extra := <-syncedCh:
		t.Fatalf("steady-state probe must not drain, synced %+v", extra)
	case <-time.After(100 * time.Millisecond):
	}
	actions, err := st.ListActions(ctx)
	if err != nil {
		t.Fatalf("list actions: %v", err)
	}
	if len(actions) != 1 {
		t.Fatalf("second sale must stay queued, got %d actions", len(actions))
	}
}

func TestMonitorOfflineTransitionReported(t *testing.T) {
	healthy := true
	client := &fakeClient{
		health: func() error {
			if healthy {
				return nil
			}
			return api.ErrUnreachable
		},
	}

	var statuses []bool
	m := NewMonitor(client, NewProcessor(memory.New(), client), time.Hour, time.Hour)
	m.OnStatus = func(online bool) { statuses = append(statuses, online) }

	ctx := context.Background()
	m.probe(ctx)
	healthy = false
	m.probe(ctx)
	m.probe(ctx)

	if len(statuses) != 2 || statuses[0] != true || statuses[1] != false {
		t.Fatalf("expected one up and one down transition, got %v", statuses)
	}
}

func TestSlowQueuePassDoesNotBlockStop(t *testing.T) {
	st := memory.New()
	enqueue(t, st, completedSale("sale-m3"))

	entered := make(chan struct{})
	release := make(chan struct{})
	client := &fakeClient{
		health: func() error { return nil },
		createSale: func(api.CreateSaleRequest) (*api.Sale, error) {
			close(entered)
			<-release
			return &api.Sale{ID: 1}, nil
		},
	}

	syncedCh := make(chan []domain.Sale, 1)
	m := NewMonitor(client, NewProcessor(st, client), time.Hour, time.Hour)
	m.OnSynced = func(sales []domain.Sale) { syncedCh <- sales }

	ctx := context.Background()
	m.Start(ctx)
	<-entered

	// The pass is stuck on the backend; the monitor goroutine must still be
	// free, so Stop returns promptly instead of waiting it out.
	stopped := make(chan struct{})
	go func() {
		m.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatalf("Stop blocked behind a slow queue pass")
	}

	close(release)
	select {
	case synced := <-syncedCh:
		if len(synced) != 1 || synced[0].LocalKey != "sale-m3" {
			t.Fatalf("unexpected synced set: %+v", synced)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("the in-flight pass never finished")
	}
}

func TestMonitorStartStop(t *testing.T) {
	client := &fakeClient{health: func() error { return nil }}
	m := NewMonitor(client, NewProcessor(memory.New(), client), time.Hour, time.Hour)

	ctx := context.Background()
	m.Start(ctx)
	m.Start(ctx) // second start is a no-op

	deadline := time.After(2 * time.Second)
	for !m.Online() {
		select {
		case <-deadline:
			t.Fatalf("monitor never came online")
		case <-time.After(5 * time.Millisecond):
		}
	}

	m.Stop()
	m.Stop() // second stop is a no-op
}

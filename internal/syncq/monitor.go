package syncq

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"lapakpos/terminal/internal/api"
	"lapakpos/terminal/internal/domain"
)

// Monitor probes backend reachability on its own cadence and drains the sync
// queue on another. The two tickers are independent so a slow probe never
// delays a due sync, and queue passes run on their own goroutine so a slow
// backend never delays a probe.
type Monitor struct {
	api       api.Client
	processor *Processor

	probeInterval time.Duration
	syncInterval  time.Duration

	// OnSynced receives the sales marked synced by each queue pass.
	OnSynced func(sales []domain.Sale)
	// OnStatus fires on every reachability transition.
	OnStatus func(online bool)

	mu      sync.Mutex
	online  bool
	started bool
	stop    chan struct{}
	done    chan struct{}
}

func NewMonitor(client api.Client, processor *Processor, probeInterval, syncInterval time.Duration) *Monitor {
	if probeInterval <= 0 {
		probeInterval = 20 * time.Second
	}
	if syncInterval <= 0 {
		syncInterval = time.Minute
	}
	return &Monitor{
		api:           client,
		processor:     processor,
		probeInterval: probeInterval,
		syncInterval:  syncInterval,
	}
}

func (m *Monitor) Online() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// Start probes once immediately, then keeps both tickers running until Stop.
// Calling Start on a running monitor is a no-op.
func (m *Monitor) Start(ctx context.Context) {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return
	}
	m.started = true
	m.stop = make(chan struct{})
	m.done = make(chan struct{})
	m.mu.Unlock()

	go m.run(ctx)
}

func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.started {
		m.mu.Unlock()
		return
	}
	m.started = false
	close(m.stop)
	done := m.done
	m.mu.Unlock()

	<-done
}

func (m *Monitor) run(ctx context.Context) {
	defer close(m.done)

	probe := time.NewTicker(m.probeInterval)
	defer probe.Stop()
	syncTick := time.NewTicker(m.syncInterval)
	defer syncTick.Stop()

	m.probe(ctx)

	for {
		select {
		case <-m.stop:
			return
		case <-ctx.Done():
			return
		case <-probe.C:
			m.probe(ctx)
		case <-syncTick.C:
			if m.Online() {
				go m.drain(ctx)
			}
		}
	}
}

// probe checks reachability and, on an offline-to-online transition, kicks
// exactly one queue pass without waiting for the sync ticker.
func (m *Monitor) probe(ctx context.Context) {
	// Health only errors when no HTTP response came back at all; an error
	// status from the backend still counts as up.
	online := m.api.Health(ctx) == nil

	m.mu.Lock()
	was := m.online
	m.online = online
	m.mu.Unlock()

	if was == online {
		return
	}
	if online {
		log.Printf("[monitor] backend reachable again, draining queue")
	} else {
		log.Printf("[monitor] WARN: backend unreachable, queueing locally")
	}
	if m.OnStatus != nil {
		m.OnStatus(online)
	}
	if online {
		go m.drain(ctx)
	}
}

// drain runs off the monitor goroutine so a slow queue pass never delays the
// next probe or blocks Stop. The processor's in-flight guard keeps
// overlapping passes from doubling work.
func (m *Monitor) drain(ctx context.Context) {
	result, err := m.processor.ProcessQueue(ctx)
	if err != nil {
		if !errors.Is(err, ErrSyncInFlight) {
			log.Printf("[monitor] WARN: queue pass failed: %v", err)
		}
		return
	}
	if len(result.Synced) > 0 && m.OnSynced != nil {
		m.OnSynced(result.Synced)
	}
}

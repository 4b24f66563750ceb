// Package terminal wires the offline sale engine together for a host UI:
// local store, backend client, draft session, sync queue and sales view,
// all chosen from configuration.
package terminal

import (
	"context"
	"log"
	"time"

	"lapakpos/terminal/internal/api"
	"lapakpos/terminal/internal/cache"
	"lapakpos/terminal/internal/cart"
	"lapakpos/terminal/internal/config"
	"lapakpos/terminal/internal/sales"
	"lapakpos/terminal/internal/session"
	"lapakpos/terminal/internal/store"
	"lapakpos/terminal/internal/store/memory"
	pgstore "lapakpos/terminal/internal/store/postgres"
	"lapakpos/terminal/internal/store/sqlite"
	"lapakpos/terminal/internal/syncq"
)

// Terminal is one register's engine instance. Create it with Open, call
// Start to begin probing and syncing, and Close on the way out.
type Terminal struct {
	Store       store.LocalStore
	API         api.Client
	Ledger      *cart.Ledger
	Session     *session.Session
	Sales       *sales.Partitioner
	Processor   *syncq.Processor
	Monitor     *syncq.Monitor
	WarehouseID int64

	closers []func() error
}

// Open builds a Terminal from configuration. DATABASE_URL selects the
// site-local Postgres store, otherwise the SQLite file is used; an empty
// SQLite path falls back to the seeded in-memory store for dev runs. Redis
// is optional: when absent or unreachable the last-good sales cache runs
// in process.
func Open(ctx context.Context, cfg config.Config) (*Terminal, error) {
	t := &Terminal{WarehouseID: cfg.WarehouseID}

	switch {
	case cfg.DatabaseURL != "":
		pg, err := pgstore.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		t.Store = pg
		t.closers = append(t.closers, pg.Close)
		log.Println("[terminal] store: postgres")
	case cfg.SQLitePath != "":
		sq, err := sqlite.New(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		t.Store = sq
		t.closers = append(t.closers, sq.Close)
		log.Println("[terminal] store: sqlite")
	default:
		t.Store = memory.NewSeeded()
		log.Println("[terminal] store: in-memory")
	}

	salesCache := cache.SalesCache(cache.NewMemorySalesCache())
	if cfg.RedisAddr != "" {
		redisCache := cache.NewRedisSalesCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err := redisCache.Ping(ctx); err != nil {
			log.Printf("[terminal] WARN: redis unavailable (%v), using in-memory sales cache", err)
		} else {
			salesCache = redisCache
			t.closers = append(t.closers, redisCache.Close)
			log.Println("[terminal] sales cache: redis")
		}
	}

	t.API = api.NewHTTPClient(cfg.APIBaseURL, cfg.APIToken, cfg.APITimeout)

	products, err := t.Store.ListProducts(ctx)
	if err != nil {
		t.Close()
		return nil, err
	}
	t.Ledger = cart.NewLedger(products)

	t.Session = session.New(t.Store, t.API, t.Ledger, cfg.AutosaveDelay)
	t.Sales = sales.NewPartitioner(t.Store, t.API, salesCache, sales.Options{
		ShiftMode:        cfg.ShiftMode,
		PerPage:          cfg.SalesPerPage,
		MinFetchInterval: cfg.MinFetchInterval,
		CacheTTL:         cfg.SalesCacheTTL,
	})

	t.Processor = syncq.NewProcessor(t.Store, t.API)
	t.Monitor = syncq.NewMonitor(t.API, t.Processor, cfg.ProbeInterval, cfg.SyncInterval)
	t.Monitor.OnSynced = t.Session.ApplySynced

	return t, nil
}

// Start begins connectivity probing and periodic queue drains.
func (t *Terminal) Start(ctx context.Context) {
	t.Monitor.Start(ctx)
}

// Close stops the monitor, flushes the open draft and releases every
// backing resource.
func (t *Terminal) Close() error {
	if t.Monitor != nil {
		t.Monitor.Stop()
	}
	if t.Session != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := t.Session.Flush(ctx); err != nil {
			log.Printf("[terminal] WARN: flush draft on close: %v", err)
		}
	}
	var firstErr error
	for _, closeFn := range t.closers {
		if err := closeFn(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

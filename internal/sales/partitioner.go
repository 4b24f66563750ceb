// Package sales assembles the terminal's sales view: unsynced sales straight
// from the local store, synced sales from the backend with a rate-limited
// fetch that degrades to the last good result instead of going blank.
package sales

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"lapakpos/terminal/internal/api"
	"lapakpos/terminal/internal/cache"
	"lapakpos/terminal/internal/domain"
	"lapakpos/terminal/internal/store"
)

// Scope selects which sales a view shows. Shift mode reads ShiftID and
// ignores Date; day mode reads Date and ignores ShiftID. A zero Date means
// today, so hosts can page back to any earlier day by setting it.
type Scope struct {
	ShiftID *int64
	Date    time.Time
}

// View is one assembled sales listing. Stale is set when the synced half
// came from cache because a backend fetch failed or was skipped. ShiftIDs is
// the selectable shift set: every shift id seen across pending and synced
// sales plus the currently open shift, ascending.
type View struct {
	Pending  []domain.Sale
	Synced   []api.Sale
	ShiftIDs []int64
	Stale    bool
}

type Partitioner struct {
	store store.LocalStore
	api   api.Client
	cache cache.SalesCache

	shiftMode        bool
	perPage          int
	minFetchInterval time.Duration
	cacheTTL         time.Duration
	now              func() time.Time

	mu        sync.Mutex
	fetching  bool
	lastKey   string
	lastFetch time.Time
	lastGood  []api.Sale
}

type Options struct {
	ShiftMode        bool
	PerPage          int
	MinFetchInterval time.Duration
	CacheTTL         time.Duration
}

func NewPartitioner(st store.LocalStore, client api.Client, salesCache cache.SalesCache, opts Options) *Partitioner {
	if opts.PerPage <= 0 {
		opts.PerPage = 100
	}
	if opts.MinFetchInterval <= 0 {
		opts.MinFetchInterval = 4 * time.Second
	}
	if salesCache == nil {
		salesCache = cache.NoopSalesCache{}
	}
	return &Partitioner{
		store:            st,
		api:              client,
		cache:            salesCache,
		shiftMode:        opts.ShiftMode,
		perPage:          opts.PerPage,
		minFetchInterval: opts.MinFetchInterval,
		cacheTTL:         opts.CacheTTL,
		now:              time.Now,
	}
}

// Refresh builds the view for the given scope. Back-to-back calls inside
// the minimum fetch interval, or calls landing while a fetch is in flight,
// reuse the last fetched set rather than hitting the backend again; a scope
// change (another shift, another date) always fetches.
func (p *Partitioner) Refresh(ctx context.Context, scope Scope) (View, error) {
	all, err := p.store.GetPendingSales(ctx)
	if err != nil {
		return View{}, fmt.Errorf("list pending sales: %w", err)
	}
	pending := p.filterPending(all, scope)

	key := p.scopeKey(scope)

	p.mu.Lock()
	sameScope := key == p.lastKey
	tooSoon := sameScope && p.now().Sub(p.lastFetch) < p.minFetchInterval
	if p.fetching || tooSoon {
		synced := append([]api.Sale(nil), p.lastGood...)
		p.mu.Unlock()
		return p.assemble(pending, all, synced, scope, !sameScope), nil
	}
	p.fetching = true
	p.mu.Unlock()

	synced, fetchErr := p.fetchSynced(ctx, scope)

	p.mu.Lock()
	p.fetching = false
	if fetchErr == nil {
		p.lastKey = key
		p.lastFetch = p.now()
		p.lastGood = synced
	}
	p.mu.Unlock()

	if fetchErr != nil {
		log.Printf("[sales] WARN: synced fetch failed, serving cached view: %v", fetchErr)
		cached, ok, cacheErr := p.cache.Get(ctx, key)
		if cacheErr != nil {
			log.Printf("[sales] WARN: cache read failed: %v", cacheErr)
		}
		if !ok {
			cached = nil
		}
		return p.assemble(pending, all, cached, scope, true), nil
	}

	if err := p.cache.Set(ctx, key, synced, p.cacheTTL); err != nil {
		log.Printf("[sales] WARN: cache write failed: %v", err)
	}
	return p.assemble(pending, all, synced, scope, false), nil
}

// assemble finishes a View: the shift-id set is the union of ids seen on any
// local pending sale, on the fetched synced sales, and the open shift.
func (p *Partitioner) assemble(pending, all []domain.Sale, synced []api.Sale, scope Scope, stale bool) View {
	view := View{Pending: pending, Synced: synced, Stale: stale}
	if !p.shiftMode {
		return view
	}

	seen := make(map[int64]bool)
	add := func(id *int64) {
		if id != nil && !seen[*id] {
			seen[*id] = true
			view.ShiftIDs = append(view.ShiftIDs, *id)
		}
	}
	add(scope.ShiftID)
	for _, sale := range all {
		add(sale.ShiftID)
	}
	for _, sale := range synced {
		add(sale.ShiftID)
	}
	sort.Slice(view.ShiftIDs, func(i, j int) bool { return view.ShiftIDs[i] < view.ShiftIDs[j] })
	return view
}

// day resolves the scope's calendar day, defaulting to today.
func (p *Partitioner) day(scope Scope) time.Time {
	if scope.Date.IsZero() {
		return p.now().UTC()
	}
	return scope.Date.UTC()
}

func (p *Partitioner) scopeKey(scope Scope) string {
	if p.shiftMode {
		if scope.ShiftID == nil {
			return "shift:none"
		}
		return fmt.Sprintf("shift:%d", *scope.ShiftID)
	}
	return "day:" + p.day(scope).Format("2006-01-02")
}

// filterPending keeps the unsynced sales in scope, newest first. Shift mode
// keeps the selected shift's sales (all of them while no shift is open); day
// mode keeps the sales dated on the selected day.
func (p *Partitioner) filterPending(all []domain.Sale, scope Scope) []domain.Sale {
	day := p.day(scope).Format("2006-01-02")
	out := make([]domain.Sale, 0, len(all))
	for _, sale := range all {
		if sale.IsSynced {
			continue
		}
		if p.shiftMode {
			if scope.ShiftID == nil || (sale.ShiftID != nil && *sale.ShiftID == *scope.ShiftID) {
				out = append(out, sale)
			}
			continue
		}
		if sale.SaleDate.UTC().Format("2006-01-02") == day {
			out = append(out, sale)
		}
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAtLocal.After(out[j].CreatedAtLocal)
	})
	return out
}

// fetchSynced pulls the backend's sales for the selected scope.
func (p *Partitioner) fetchSynced(ctx context.Context, scope Scope) ([]api.Sale, error) {
	if !p.shiftMode {
		day := p.day(scope)
		return p.api.ListSalesByDateRange(ctx, day, day, p.perPage)
	}
	if scope.ShiftID == nil {
		return nil, nil
	}
	return p.api.ListSalesByShift(ctx, *scope.ShiftID, p.perPage)
}

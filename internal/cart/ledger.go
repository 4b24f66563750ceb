package cart

import (
	"sync"

	"github.com/shopspring/decimal"

	"lapakpos/terminal/internal/domain"
)

// Ledger tracks the effective stock per product: the cached catalog quantity
// minus everything reserved by the open draft's lines. The catalog can be
// replaced wholesale when a sync refreshes it; reservations survive the
// refresh, so availability stays correct for the draft in progress.
//
// The effective stock is advisory. The backend re-validates quantities at
// sync time; the ledger only keeps the terminal from overselling between two
// syncs.
type Ledger struct {
	mu       sync.RWMutex
	products map[int64]domain.Product
	reserved map[int64]decimal.Decimal
}

func NewLedger(products []domain.Product) *Ledger {
	l := &Ledger{
		products: make(map[int64]domain.Product, len(products)),
		reserved: make(map[int64]decimal.Decimal, 8),
	}
	for _, p := range products {
		l.products[p.ID] = p
	}
	return l
}

// SetProducts replaces the cached catalog, keeping open reservations.
func (l *Ledger) SetProducts(products []domain.Product) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.products = make(map[int64]domain.Product, len(products))
	for _, p := range products {
		l.products[p.ID] = p
	}
}

// PatchProduct upserts one product, used when a sync pass reports
// server-corrected stock for the products it touched.
func (l *Ledger) PatchProduct(product domain.Product) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.products[product.ID] = product
}

func (l *Ledger) Product(id int64) (domain.Product, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	p, ok := l.products[id]
	return p, ok
}

// Available returns the effective stock in sellable units: catalog quantity
// minus the draft's current reservation.
func (l *Ledger) Available(id int64) decimal.Decimal {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return l.availableLocked(id)
}

func (l *Ledger) availableLocked(id int64) decimal.Decimal {
	p, ok := l.products[id]
	if !ok {
		return decimal.Zero
	}
	return p.StockQuantity.Sub(l.reserved[id])
}

// Reserve adjusts the reservation by delta sellable units. A positive delta
// reserves, a negative one releases. Reserving past the effective stock is
// rejected and leaves the ledger unchanged.
func (l *Ledger) Reserve(id int64, delta decimal.Decimal) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if delta.GreaterThan(l.availableLocked(id)) {
		return ErrInsufficientStock
	}
	next := l.reserved[id].Add(delta)
	if next.IsNegative() {
		next = decimal.Zero
	}
	l.reserved[id] = next
	return nil
}

// Reserved reports the draft's current reservation for a product.
func (l *Ledger) Reserved(id int64) decimal.Decimal {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return l.reserved[id]
}

// Snapshot returns the product with StockQuantity replaced by the effective
// stock, the shape stored into line-item snapshots.
func (l *Ledger) Snapshot(id int64) (domain.Product, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	p, ok := l.products[id]
	if !ok {
		return domain.Product{}, false
	}
	p.StockQuantity = l.availableLocked(id)
	return p, true
}

// Products lists the cached catalog with effective stock applied, the view
// the UI searches when adding lines.
func (l *Ledger) Products() []domain.Product {
	l.mu.RLock()
	defer l.mu.RUnlock()

	products := make([]domain.Product, 0, len(l.products))
	for id, p := range l.products {
		p.StockQuantity = l.availableLocked(id)
		products = append(products, p)
	}
	return products
}

// Package session drives one register's active draft sale: it applies cart
// mutations, persists the draft on a debounced autosave, and hands completed
// sales to the sync queue.
package session

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"lapakpos/terminal/internal/api"
	"lapakpos/terminal/internal/cart"
	"lapakpos/terminal/internal/domain"
	"lapakpos/terminal/internal/store"
)

var (
	ErrNoDraft      = errors.New("no active draft sale")
	ErrEmptySale    = errors.New("sale has no items")
	ErrNotSynced    = errors.New("sale is not synced yet")
	ErrAlreadyFinal = errors.New("sale already completed")
)

type Session struct {
	store         store.LocalStore
	api           api.Client
	ledger        *cart.Ledger
	autosaveDelay time.Duration

	mu       sync.Mutex
	sale     domain.Sale
	hasDraft bool
	timer    *time.Timer

	saveTimeout time.Duration
}

func New(st store.LocalStore, client api.Client, ledger *cart.Ledger, autosaveDelay time.Duration) *Session {
	if autosaveDelay <= 0 {
		autosaveDelay = 500 * time.Millisecond
	}
	return &Session{
		store:         st,
		api:           client,
		ledger:        ledger,
		autosaveDelay: autosaveDelay,
		saveTimeout:   5 * time.Second,
	}
}

// StartDraft opens a fresh draft for the shift and user. An existing draft
// is replaced in memory only; its persisted copy stays in the store.
func (s *Session) StartDraft(shiftID, userID *int64) domain.Sale {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cancelTimerLocked()
	s.sale = cart.NewDraft(shiftID, userID)
	s.hasDraft = true
	return s.sale
}

// Resume loads a persisted draft back into the session, picking up where an
// interrupted run left off. Ledger reservations are rebuilt from its lines.
func (s *Session) Resume(ctx context.Context, localKey string) (domain.Sale, error) {
	loaded, err := s.store.GetPendingSale(ctx, localKey)
	if err != nil {
		return domain.Sale{}, err
	}
	sale := *loaded

	for _, item := range sale.Items {
		if err := s.ledger.Reserve(item.ProductID, item.SellableQuantity()); err != nil {
			log.Printf("[session] WARN: could not re-reserve %s for product %d: %v", item.Quantity, item.ProductID, err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelTimerLocked()
	s.sale = sale
	s.hasDraft = true
	return s.sale, nil
}

// Sale returns the current draft.
func (s *Session) Sale() (domain.Sale, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sale, s.hasDraft
}

func (s *Session) AddProduct(productID int64, unit domain.UnitType) (domain.Sale, error) {
	product, ok := s.ledger.Product(productID)
	if !ok {
		return domain.Sale{}, store.ErrNotFound
	}
	return s.mutate(func(sale domain.Sale) (domain.Sale, error) {
		return cart.AddLine(sale, s.ledger, product, unit)
	})
}

func (s *Session) SetQuantity(ctx context.Context, productID int64, qty decimal.Decimal) (domain.Sale, error) {
	return s.mutateCtx(ctx, func(sale domain.Sale) (domain.Sale, error) {
		return cart.SetQuantity(sale, s.ledger, productID, qty)
	})
}

func (s *Session) SetUnitPrice(productID int64, price decimal.Decimal) (domain.Sale, error) {
	return s.mutate(func(sale domain.Sale) (domain.Sale, error) {
		return cart.SetUnitPrice(sale, productID, price)
	})
}

func (s *Session) SwitchUnitType(productID int64, unit domain.UnitType) (domain.Sale, error) {
	return s.mutate(func(sale domain.Sale) (domain.Sale, error) {
		return cart.SwitchUnitType(sale, s.ledger, productID, unit)
	})
}

func (s *Session) SetBatch(productID int64, batchID *int64, unitPrice decimal.Decimal) (domain.Sale, error) {
	return s.mutate(func(sale domain.Sale) (domain.Sale, error) {
		return cart.SetBatch(sale, productID, batchID, unitPrice)
	})
}

func (s *Session) RemoveLine(ctx context.Context, productID int64) (domain.Sale, error) {
	return s.mutateCtx(ctx, func(sale domain.Sale) (domain.Sale, error) {
		return cart.RemoveLine(sale, s.ledger, productID)
	})
}

func (s *Session) ApplyDiscount(amount decimal.Decimal, discountType string) (domain.Sale, error) {
	return s.mutate(func(sale domain.Sale) (domain.Sale, error) {
		return cart.ApplyDiscount(sale, amount, discountType)
	})
}

func (s *Session) SetClient(clientID *int64) (domain.Sale, error) {
	return s.mutate(func(sale domain.Sale) (domain.Sale, error) {
		sale.ClientID = clientID
		return sale, nil
	})
}

func (s *Session) SetNotes(notes string) (domain.Sale, error) {
	return s.mutate(func(sale domain.Sale) (domain.Sale, error) {
		sale.Notes = notes
		return sale, nil
	})
}

func (s *Session) mutate(fn func(domain.Sale) (domain.Sale, error)) (domain.Sale, error) {
	return s.mutateCtx(context.Background(), fn)
}

// mutateCtx applies one cart operation under the session lock. A rejected
// operation leaves the draft untouched and schedules nothing; a draft whose
// last line was just removed has its persisted record deleted instead of
// autosaved, so no empty sale lingers in the store.
func (s *Session) mutateCtx(ctx context.Context, fn func(domain.Sale) (domain.Sale, error)) (domain.Sale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.hasDraft {
		return domain.Sale{}, ErrNoDraft
	}
	if s.sale.Status != domain.SaleStatusDraft {
		return s.sale, ErrAlreadyFinal
	}

	hadItems := len(s.sale.Items) > 0

	next, err := fn(s.sale)
	if err != nil {
		return s.sale, err
	}
	s.sale = next

	if hadItems && len(next.Items) == 0 && !next.IsSynced {
		s.cancelTimerLocked()
		if err := s.store.DeletePendingSale(ctx, next.LocalKey); err != nil {
			log.Printf("[session] WARN: delete emptied sale %s: %v", next.LocalKey, err)
		}
		return s.sale, nil
	}

	s.scheduleAutosaveLocked()
	return s.sale, nil
}

func (s *Session) scheduleAutosaveLocked() {
	if s.timer != nil {
		s.timer.Reset(s.autosaveDelay)
		return
	}
	s.timer = time.AfterFunc(s.autosaveDelay, s.autosave)
}

func (s *Session) autosave() {
	ctx, cancel := context.WithTimeout(context.Background(), s.saveTimeout)
	defer cancel()

	s.mu.Lock()
	if !s.hasDraft || len(s.sale.Items) == 0 {
		s.mu.Unlock()
		return
	}
	sale := s.sale
	s.mu.Unlock()

	if err := s.store.SavePendingSale(ctx, sale); err != nil {
		log.Printf("[session] WARN: autosave of %s failed: %v", sale.LocalKey, err)
	}
}

// Flush persists the draft immediately, cancelling any pending autosave.
func (s *Session) Flush(ctx context.Context) error {
	s.mu.Lock()
	s.cancelTimerLocked()
	if !s.hasDraft || len(s.sale.Items) == 0 {
		s.mu.Unlock()
		return nil
	}
	sale := s.sale
	s.mu.Unlock()

	return s.store.SavePendingSale(ctx, sale)
}

func (s *Session) cancelTimerLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

// Discard drops the draft, releasing its reservations and deleting the
// persisted copy.
func (s *Session) Discard(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.hasDraft {
		return nil
	}
	s.cancelTimerLocked()

	for _, item := range s.sale.Items {
		if err := s.ledger.Reserve(item.ProductID, item.SellableQuantity().Neg()); err != nil {
			log.Printf("[session] WARN: release reservation for product %d: %v", item.ProductID, err)
		}
	}

	key := s.sale.LocalKey
	s.sale = domain.Sale{}
	s.hasDraft = false

	return s.store.DeletePendingSale(ctx, key)
}

// Complete marks the draft completed, records its payments, persists it and
// enqueues exactly one CREATE_SALE action. Local stock moves from reserved
// to sold so the effective figure stays put until the next catalog refresh.
func (s *Session) Complete(ctx context.Context, payments []domain.Payment) (domain.Sale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.hasDraft {
		return domain.Sale{}, ErrNoDraft
	}
	if s.sale.Status != domain.SaleStatusDraft {
		return s.sale, ErrAlreadyFinal
	}
	if len(s.sale.Items) == 0 {
		return s.sale, ErrEmptySale
	}

	s.cancelTimerLocked()

	sale := s.sale
	sale.Status = domain.SaleStatusCompleted
	sale.Payments = append([]domain.Payment(nil), payments...)
	sale = cart.RecomputeTotals(sale)

	if err := s.store.SavePendingSale(ctx, sale); err != nil {
		return s.sale, err
	}
	action := domain.SyncAction{
		Type:      domain.ActionCreateSale,
		Payload:   sale,
		CreatedAt: time.Now().UTC(),
	}
	if _, err := s.store.EnqueueAction(ctx, action); err != nil {
		return s.sale, err
	}

	for _, item := range sale.Items {
		qty := item.SellableQuantity()
		if product, ok := s.ledger.Product(item.ProductID); ok {
			product.StockQuantity = product.StockQuantity.Sub(qty)
			price := item.UnitPrice
			if item.UnitType == domain.UnitStocking && product.UnitsPerStockingUnit > 0 {
				price = price.DivRound(decimal.NewFromInt(product.UnitsPerStockingUnit), 4)
			}
			product.LastSalePrice = price
			s.ledger.PatchProduct(product)
		}
		if err := s.ledger.Reserve(item.ProductID, qty.Neg()); err != nil {
			log.Printf("[session] WARN: release reservation for product %d: %v", item.ProductID, err)
		}
	}

	s.sale = domain.Sale{}
	s.hasDraft = false
	return sale, nil
}

// PushPaymentDiff reconciles a synced sale's local payments with the
// backend: payments without a server id are created, server payments the
// local sale no longer carries are deleted. The updated sale is persisted
// and returned.
func (s *Session) PushPaymentDiff(ctx context.Context, sale domain.Sale, remote []api.Payment) (domain.Sale, error) {
	if !sale.IsSynced || sale.ServerID == nil {
		return sale, ErrNotSynced
	}
	saleID := *sale.ServerID

	for i := range sale.Payments {
		if sale.Payments[i].ServerID != nil {
			continue
		}
		p := sale.Payments[i]
		created, err := s.api.AddPayment(ctx, saleID, api.PaymentRequest{
			Method:      p.Method,
			Amount:      p.Amount,
			PaymentDate: p.PaymentDate.UTC().Format("2006-01-02"),
			Notes:       p.Notes,
		})
		if err != nil {
			return sale, err
		}
		id := created.ID
		sale.Payments[i].ServerID = &id
	}

	kept := make(map[int64]bool, len(sale.Payments))
	for _, p := range sale.Payments {
		if p.ServerID != nil {
			kept[*p.ServerID] = true
		}
	}
	for _, rp := range remote {
		if kept[rp.ID] {
			continue
		}
		if err := s.api.DeletePayment(ctx, saleID, rp.ID); err != nil {
			return sale, err
		}
	}

	sale = cart.RecomputeTotals(sale)
	if err := s.store.SavePendingSale(ctx, sale); err != nil {
		return sale, err
	}
	return sale, nil
}

// ApplySynced patches the session after a queue pass: if the in-memory
// draft's sale happens to be in the synced set (completed on another path),
// its server identity is merged in.
func (s *Session) ApplySynced(sales []domain.Sale) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.hasDraft {
		return
	}
	for _, synced := range sales {
		if synced.LocalKey == s.sale.LocalKey {
			s.sale.IsSynced = true
			s.sale.ServerID = synced.ServerID
			s.sale.InvoiceNumber = synced.InvoiceNumber
			return
		}
	}
}

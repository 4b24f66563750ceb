package memory

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"lapakpos/terminal/internal/domain"
	"lapakpos/terminal/internal/store"
)

// Store is the in-memory LocalStore used by tests and by terminals running
// without a durable database. All records are copied on the way in and out.
type Store struct {
	mu           sync.RWMutex
	products     map[int64]domain.Product
	clients      map[int64]domain.Client
	pendingSales map[string]domain.Sale
	queue        []domain.SyncAction
	nextActionID int64
}

func New() *Store {
	return &Store{
		products:     make(map[int64]domain.Product),
		clients:      make(map[int64]domain.Client),
		pendingSales: make(map[string]domain.Sale),
		queue:        make([]domain.SyncAction, 0, 16),
		nextActionID: 1,
	}
}

// NewSeeded returns a store preloaded with a small product catalog for dev
// and test use.
func NewSeeded() *Store {
	s := New()
	products := []domain.Product{
		{ID: 1, SKU: "SKU-MIE-01", Name: "Mie Goreng Instan", SellPrice: decimal.NewFromInt(3500), StockQuantity: decimal.NewFromInt(120), UnitsPerStockingUnit: 40, SellableUnitName: "pcs", StockingUnitName: "karton", Active: true},
		{ID: 2, SKU: "SKU-TELUR-01", Name: "Telur 10 Butir", SellPrice: decimal.NewFromInt(26500), StockQuantity: decimal.NewFromInt(60), UnitsPerStockingUnit: 12, SellableUnitName: "pak", StockingUnitName: "krat", Active: true},
		{ID: 3, SKU: "SKU-SUSU-01", Name: "Susu UHT 1L", SellPrice: decimal.NewFromInt(18900), StockQuantity: decimal.NewFromInt(48), UnitsPerStockingUnit: 12, SellableUnitName: "kotak", StockingUnitName: "karton", Active: true},
		{ID: 4, SKU: "SKU-AIR-01", Name: "Air Mineral 600ml", SellPrice: decimal.NewFromInt(3900), StockQuantity: decimal.NewFromInt(240), UnitsPerStockingUnit: 24, SellableUnitName: "botol", StockingUnitName: "dus", Active: true},
	}
	for _, p := range products {
		s.products[p.ID] = p
	}
	s.clients[1] = domain.Client{ID: 1, Name: "Pelanggan Umum", Phone: ""}
	return s
}

func (s *Store) UpsertProduct(_ context.Context, product domain.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if product.ID == 0 {
		return store.ErrInvalidSale
	}
	s.products[product.ID] = product
	return nil
}

func (s *Store) UpsertProducts(ctx context.Context, products []domain.Product) error {
	for _, p := range products {
		if err := s.UpsertProduct(ctx, p); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) GetProduct(_ context.Context, id int64) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	product, exists := s.products[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	copyProduct := product
	return &copyProduct, nil
}

func (s *Store) ListProducts(_ context.Context) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	products := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		products = append(products, p)
	}
	slices.SortFunc(products, func(a, b domain.Product) int {
		return cmpInt64(a.ID, b.ID)
	})
	return products, nil
}

func (s *Store) SearchProducts(_ context.Context, query string, limit int) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query = strings.ToLower(strings.TrimSpace(query))
	matches := make([]domain.Product, 0, 16)
	for _, p := range s.products {
		if query == "" ||
			strings.Contains(strings.ToLower(p.Name), query) ||
			strings.Contains(strings.ToLower(p.SKU), query) {
			matches = append(matches, p)
		}
	}
	slices.SortFunc(matches, func(a, b domain.Product) int {
		return strings.Compare(a.Name, b.Name)
	})
	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

func (s *Store) UpsertClient(_ context.Context, client domain.Client) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if client.ID == 0 {
		return store.ErrInvalidSale
	}
	s.clients[client.ID] = client
	return nil
}

func (s *Store) ListClients(_ context.Context) ([]domain.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	clients := make([]domain.Client, 0, len(s.clients))
	for _, c := range s.clients {
		clients = append(clients, c)
	}
	slices.SortFunc(clients, func(a, b domain.Client) int {
		return cmpInt64(a.ID, b.ID)
	})
	return clients, nil
}

func (s *Store) SearchClients(_ context.Context, query string, limit int) ([]domain.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query = strings.ToLower(strings.TrimSpace(query))
	matches := make([]domain.Client, 0, 16)
	for _, c := range s.clients {
		if query == "" || strings.Contains(strings.ToLower(c.Name), query) || strings.Contains(c.Phone, query) {
			matches = append(matches, c)
		}
	}
	slices.SortFunc(matches, func(a, b domain.Client) int {
		return strings.Compare(a.Name, b.Name)
	})
	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

func (s *Store) SavePendingSale(_ context.Context, sale domain.Sale) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sale.LocalKey == "" {
		return store.ErrInvalidSale
	}
	s.pendingSales[sale.LocalKey] = cloneSale(sale)
	return nil
}

func (s *Store) GetPendingSale(_ context.Context, localKey string) (*domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sale, exists := s.pendingSales[localKey]
	if !exists {
		return nil, store.ErrNotFound
	}
	copySale := cloneSale(sale)
	return &copySale, nil
}

func (s *Store) GetPendingSales(_ context.Context) ([]domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sales := make([]domain.Sale, 0, len(s.pendingSales))
	for _, sale := range s.pendingSales {
		sales = append(sales, cloneSale(sale))
	}
	slices.SortFunc(sales, func(a, b domain.Sale) int {
		if a.CreatedAtLocal.Equal(b.CreatedAtLocal) {
			return strings.Compare(a.LocalKey, b.LocalKey)
		}
		if a.CreatedAtLocal.Before(b.CreatedAtLocal) {
			return -1
		}
		return 1
	})
	return sales, nil
}

func (s *Store) DeletePendingSale(_ context.Context, localKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.pendingSales, localKey)
	return nil
}

func (s *Store) EnqueueAction(_ context.Context, action domain.SyncAction) (*domain.SyncAction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	action.ID = s.nextActionID
	s.nextActionID++
	if action.CreatedAt.IsZero() {
		action.CreatedAt = time.Now().UTC()
	}
	s.queue = append(s.queue, action)
	queued := action
	return &queued, nil
}

func (s *Store) ListActions(_ context.Context) ([]domain.SyncAction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	actions := make([]domain.SyncAction, len(s.queue))
	copy(actions, s.queue)
	return actions, nil
}

func (s *Store) DeleteAction(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, action := range s.queue {
		if action.ID == id {
			s.queue = append(s.queue[:i], s.queue[i+1:]...)
			return nil
		}
	}
	return store.ErrNotFound
}

func (s *Store) Close() error {
	return nil
}

// cloneSale deep-copies the slices so callers cannot mutate stored state.
func cloneSale(sale domain.Sale) domain.Sale {
	cloned := sale
	cloned.Items = make([]domain.SaleItem, len(sale.Items))
	copy(cloned.Items, sale.Items)
	cloned.Payments = make([]domain.Payment, len(sale.Payments))
	copy(cloned.Payments, sale.Payments)
	return cloned
}

func cmpInt64(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

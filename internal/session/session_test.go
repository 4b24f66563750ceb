package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"lapakpos/terminal/internal/api"
	"lapakpos/terminal/internal/cart"
	"lapakpos/terminal/internal/domain"
	"lapakpos/terminal/internal/store/memory"
)

type fakeClient struct {
	addPayment    func(saleID int64, req api.PaymentRequest) (*api.Payment, error)
	deletePayment func(saleID, paymentID int64) error
}

var errUnexpectedCall = errors.New("unexpected api call")

func (f *fakeClient) AddPayment(_ context.Context, saleID int64, req api.PaymentRequest) (*api.Payment, error) {
	if f.addPayment == nil {
		return nil, errUnexpectedCall
	}
	return f.addPayment(saleID, req)
}

func (f *fakeClient) DeletePayment(_ context.Context, saleID, paymentID int64) error {
	if f.deletePayment == nil {
		return errUnexpectedCall
	}
	return f.deletePayment(saleID, paymentID)
}

func (f *fakeClient) CreateSale(context.Context, api.CreateSaleRequest) (*api.Sale, error) {
	return nil, errUnexpectedCall
}

func (f *fakeClient) ListSalesByShift(context.Context, int64, int) ([]api.Sale, error) {
	return nil, errUnexpectedCall
}

func (f *fakeClient) ListSalesByDateRange(context.Context, time.Time, time.Time, int) ([]api.Sale, error) {
	return nil, errUnexpectedCall
}

func (f *fakeClient) CurrentShift(context.Context) (*domain.Shift, error) {
	return nil, errUnexpectedCall
}
func (f *fakeClient) OpenShift(context.Context) (*domain.Shift, error) { return nil, errUnexpectedCall }
func (f *fakeClient) CloseShift(context.Context) (*domain.Shift, error) {
	return nil, errUnexpectedCall
}
func (f *fakeClient) AvailableBatches(context.Context, int64, int64) ([]domain.Batch, error) {
	return nil, errUnexpectedCall
}
func (f *fakeClient) Health(context.Context) error { return nil }

// countingStore wraps the memory store to observe write traffic.
type countingStore struct {
	*memory.Store
	mu      sync.Mutex
	saves   int
	deletes int
}

func (c *countingStore) SavePendingSale(ctx context.Context, sale domain.Sale) error {
	c.mu.Lock()
	c.saves++
	c.mu.Unlock()
	return c.Store.SavePendingSale(ctx, sale)
}

func (c *countingStore) DeletePendingSale(ctx context.Context, localKey string) error {
	c.mu.Lock()
	c.deletes++
	c.mu.Unlock()
	return c.Store.DeletePendingSale(ctx, localKey)
}

func (c *countingStore) counts() (int, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.saves, c.deletes
}

func kopi(stock int64) domain.Product {
	return domain.Product{
		ID:                   1,
		SKU:                  "SKU-KOPI-01",
		Name:                 "Kopi Sachet",
		SellPrice:            decimal.RequireFromString("5.00"),
		StockQuantity:        decimal.NewFromInt(stock),
		UnitsPerStockingUnit: 12,
		Active:               true,
	}
}

func newTestSession(stock int64, delay time.Duration) (*Session, *countingStore, *cart.Ledger) {
	st := &countingStore{Store: memory.New()}
	led := cart.NewLedger([]domain.Product{kopi(stock)})
	return New(st, &fakeClient{}, led, delay), st, led
}

func TestAutosaveDebouncesBursts(t *testing.T) {
	sess, st, _ := newTestSession(10, 20*time.Millisecond)
	shiftID := int64(7)
	sess.StartDraft(&shiftID, nil)

	if _, err := sess.AddProduct(1, domain.UnitSellable); err != nil {
		t.Fatalf("add failed: %v", err)
	}
	if _, err := sess.SetQuantity(context.Background(), 1, decimal.NewFromInt(3)); err != nil {
		t.Fatalf("set quantity failed: %v", err)
	}

	time.Sleep(120 * time.Millisecond)

	saves, _ := st.counts()
	if saves != 1 {
		t.Fatalf("a burst of edits should persist once, got %d saves", saves)
	}

	sale, err := st.GetPendingSale(context.Background(), mustSale(t, sess).LocalKey)
	if err != nil {
		t.Fatalf("draft not persisted: %v", err)
	}
	if !sale.Items[0].Quantity.Equal(decimal.NewFromInt(3)) {
		t.Fatalf("persisted snapshot is stale: %s", sale.Items[0].Quantity)
	}
}

func TestRemovingLastLineDeletesPendingRecord(t *testing.T) {
	sess, st, led := newTestSession(10, 5*time.Millisecond)
	shiftID := int64(7)
	sess.StartDraft(&shiftID, nil)

	if _, err := sess.AddProduct(1, domain.UnitSellable); err != nil {
		t.Fatalf("add failed: %v", err)
	}
	time.Sleep(50 * time.Millisecond)
	key := mustSale(t, sess).LocalKey
	if _, err := st.GetPendingSale(context.Background(), key); err != nil {
		t.Fatalf("draft should be persisted before removal: %v", err)
	}

	if _, err := sess.RemoveLine(context.Background(), 1); err != nil {
		t.Fatalf("remove failed: %v", err)
	}

	if _, err := st.GetPendingSale(context.Background(), key); err == nil {
		t.Fatalf("emptied draft must be deleted from the store")
	}
	if !led.Reserved(1).IsZero() {
		t.Fatalf("removal must release the reservation")
	}

	// No autosave fires for the emptied draft.
	saves, _ := st.counts()
	time.Sleep(50 * time.Millisecond)
	if after, _ := st.counts(); after != saves {
		t.Fatalf("no save may run after the draft was emptied")
	}
}

func TestCompleteCashSale(t *testing.T) {
	sess, st, led := newTestSession(10, time.Hour)
	shiftID := int64(7)
	sess.StartDraft(&shiftID, nil)

	ctx := context.Background()
	if _, err := sess.AddProduct(1, domain.UnitSellable); err != nil {
		t.Fatalf("add failed: %v", err)
	}
	if _, err := sess.SetQuantity(ctx, 1, decimal.NewFromInt(3)); err != nil {
		t.Fatalf("set quantity failed: %v", err)
	}
	if _, err := sess.ApplyDiscount(decimal.NewFromInt(10), domain.DiscountPercentage); err != nil {
		t.Fatalf("discount failed: %v", err)
	}

	sale, err := sess.Complete(ctx, []domain.Payment{
		{Method: domain.PaymentCash, Amount: decimal.RequireFromString("13.50"), PaymentDate: time.Now().UTC()},
	})
	if err != nil {
		t.Fatalf("complete failed: %v", err)
	}

	if !sale.TotalAmount.Equal(decimal.RequireFromString("13.50")) {
		t.Fatalf("expected total 13.50, got %s", sale.TotalAmount)
	}
	if sale.Status != domain.SaleStatusCompleted {
		t.Fatalf("expected completed status, got %s", sale.Status)
	}
	if sale.ShiftID == nil || *sale.ShiftID != 7 {
		t.Fatalf("shift scope lost: %+v", sale.ShiftID)
	}

	actions, _ := st.ListActions(ctx)
	if len(actions) != 1 || actions[0].Type != domain.ActionCreateSale {
		t.Fatalf("expected exactly one queued create action, got %+v", actions)
	}
	if actions[0].Payload.LocalKey != sale.LocalKey {
		t.Fatalf("queued payload is not the completed sale")
	}

	stored, err := st.GetPendingSale(ctx, sale.LocalKey)
	if err != nil {
		t.Fatalf("completed sale not persisted: %v", err)
	}
	if stored.IsSynced {
		t.Fatalf("sale must stay unsynced until the queue drains")
	}

	if !led.Available(1).Equal(decimal.NewFromInt(7)) {
		t.Fatalf("expected local stock 7 after the sale, got %s", led.Available(1))
	}
	if !led.Reserved(1).IsZero() {
		t.Fatalf("completion must release the reservation")
	}
	if product, ok := led.Product(1); !ok || !product.LastSalePrice.Equal(decimal.RequireFromString("5.00")) {
		t.Fatalf("completion must record the sold unit price, got %+v", product.LastSalePrice)
	}

	// The session has no draft anymore; further edits are rejected.
	if _, err := sess.AddProduct(1, domain.UnitSellable); !errors.Is(err, ErrNoDraft) {
		t.Fatalf("expected ErrNoDraft after completion, got %v", err)
	}
}

func TestCompleteRejectsEmptySale(t *testing.T) {
	sess, st, _ := newTestSession(10, time.Hour)
	sess.StartDraft(nil, nil)

	if _, err := sess.Complete(context.Background(), nil); !errors.Is(err, ErrEmptySale) {
		t.Fatalf("expected ErrEmptySale, got %v", err)
	}
	actions, _ := st.ListActions(context.Background())
	if len(actions) != 0 {
		t.Fatalf("a rejected completion must not enqueue anything")
	}
}

func TestRejectedMutationLeavesDraftIntact(t *testing.T) {
	sess, _, _ := newTestSession(2, time.Hour)
	sess.StartDraft(nil, nil)

	if _, err := sess.AddProduct(1, domain.UnitSellable); err != nil {
		t.Fatalf("add failed: %v", err)
	}
	if _, err := sess.SetQuantity(context.Background(), 1, decimal.NewFromInt(5)); !errors.Is(err, cart.ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}

	sale := mustSale(t, sess)
	if !sale.Items[0].Quantity.Equal(decimal.NewFromInt(1)) {
		t.Fatalf("rejected mutation changed the draft: %s", sale.Items[0].Quantity)
	}
}

func TestResumeRebuildsReservations(t *testing.T) {
	sess, st, _ := newTestSession(10, time.Hour)
	shiftID := int64(7)
	sess.StartDraft(&shiftID, nil)
	if _, err := sess.AddProduct(1, domain.UnitSellable); err != nil {
		t.Fatalf("add failed: %v", err)
	}
	ctx := context.Background()
	if err := sess.Flush(ctx); err != nil {
		t.Fatalf("flush failed: %v", err)
	}
	key := mustSale(t, sess).LocalKey

	// A fresh session over the same store, as after a restart.
	led2 := cart.NewLedger([]domain.Product{kopi(10)})
	sess2 := New(st, &fakeClient{}, led2, time.Hour)
	sale, err := sess2.Resume(ctx, key)
	if err != nil {
		t.Fatalf("resume failed: %v", err)
	}
	if len(sale.Items) != 1 {
		t.Fatalf("resumed draft lost its lines")
	}
	if !led2.Reserved(1).Equal(decimal.NewFromInt(1)) {
		t.Fatalf("resume must rebuild reservations, got %s", led2.Reserved(1))
	}
}

func TestPushPaymentDiff(t *testing.T) {
	st := &countingStore{Store: memory.New()}
	var added []api.PaymentRequest
	var deleted []int64
	client := &fakeClient{
		addPayment: func(saleID int64, req api.PaymentRequest) (*api.Payment, error) {
			if saleID != 40 {
				t.Errorf("unexpected sale id %d", saleID)
			}
			added = append(added, req)
			return &api.Payment{ID: 11, Method: req.Method, Amount: req.Amount}, nil
		},
		deletePayment: func(saleID, paymentID int64) error {
			deleted = append(deleted, paymentID)
			return nil
		},
	}
	sess := New(st, client, cart.NewLedger(nil), time.Hour)

	serverID := int64(40)
	keptID := int64(9)
	sale := domain.Sale{
		LocalKey: "sale-paid",
		IsSynced: true,
		ServerID: &serverID,
		Status:   domain.SaleStatusCompleted,
		Payments: []domain.Payment{
			{ServerID: &keptID, Method: domain.PaymentCash, Amount: decimal.RequireFromString("10.00"), PaymentDate: time.Now().UTC()},
			{Method: domain.PaymentCard, Amount: decimal.RequireFromString("5.00"), PaymentDate: time.Now().UTC()},
		},
	}
	remote := []api.Payment{
		{ID: 9, Method: domain.PaymentCash, Amount: decimal.RequireFromString("10.00")},
		{ID: 13, Method: domain.PaymentTransfer, Amount: decimal.RequireFromString("2.00")},
	}

	updated, err := sess.PushPaymentDiff(context.Background(), sale, remote)
	if err != nil {
		t.Fatalf("push failed: %v", err)
	}

	if len(added) != 1 || added[0].Method != domain.PaymentCard {
		t.Fatalf("expected one created payment, got %+v", added)
	}
	if len(deleted) != 1 || deleted[0] != 13 {
		t.Fatalf("expected server payment 13 deleted, got %v", deleted)
	}
	if updated.Payments[1].ServerID == nil || *updated.Payments[1].ServerID != 11 {
		t.Fatalf("created payment id not merged: %+v", updated.Payments[1])
	}
	if !updated.PaidAmount.Equal(decimal.RequireFromString("15.00")) {
		t.Fatalf("expected paid amount 15.00, got %s", updated.PaidAmount)
	}

	if _, err := st.GetPendingSale(context.Background(), "sale-paid"); err != nil {
		t.Fatalf("updated sale not persisted: %v", err)
	}
}

func TestPushPaymentDiffRequiresSyncedSale(t *testing.T) {
	sess := New(memory.New(), &fakeClient{}, cart.NewLedger(nil), time.Hour)
	_, err := sess.PushPaymentDiff(context.Background(), domain.Sale{LocalKey: "sale-local"}, nil)
	if !errors.Is(err, ErrNotSynced) {
		t.Fatalf("expected ErrNotSynced, got %v", err)
	}
}

func mustSale(t *testing.T, sess *Session) domain.Sale {
	t.Helper()
	sale, ok := sess.Sale()
	if !ok {
		t.Fatalf("expected an active draft")
	}
	return sale
}

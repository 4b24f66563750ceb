package terminal

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"lapakpos/terminal/internal/config"
	"lapakpos/terminal/internal/domain"
)

func TestOpenWiresMemoryEngine(t *testing.T) {
	ctx := context.Background()
	term, err := Open(ctx, config.Config{AutosaveDelay: time.Hour})
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	defer term.Close()

	products := term.Ledger.Products()
	if len(products) == 0 {
		t.Fatalf("seeded catalog should be loaded into the ledger")
	}

	shiftID := int64(1)
	term.Session.StartDraft(&shiftID, nil)
	if _, err := term.Session.AddProduct(products[0].ID, domain.UnitSellable); err != nil {
		t.Fatalf("add failed: %v", err)
	}

	sale, err := term.Session.Complete(ctx, []domain.Payment{
		{Method: domain.PaymentCash, Amount: products[0].SellPrice, PaymentDate: time.Now().UTC()},
	})
	if err != nil {
		t.Fatalf("complete failed: %v", err)
	}
	if !sale.PaidAmount.Equal(products[0].SellPrice.Round(2)) {
		t.Fatalf("unexpected paid amount %s", sale.PaidAmount)
	}
	if sale.TotalAmount.LessThanOrEqual(decimal.Zero) {
		t.Fatalf("expected a positive total, got %s", sale.TotalAmount)
	}

	actions, err := term.Store.ListActions(ctx)
	if err != nil {
		t.Fatalf("list actions: %v", err)
	}
	if len(actions) != 1 || actions[0].Type != domain.ActionCreateSale {
		t.Fatalf("completion should queue one create action, got %+v", actions)
	}
}

package domain

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestUnitConversionRoundTrip(t *testing.T) {
	// 24 sellable units at 12 per stocking unit is exactly 2 stocking units.
	sellable := decimal.NewFromInt(24)
	stocking := FromSellable(sellable, UnitStocking, 12)
	if !stocking.Equal(decimal.NewFromInt(2)) {
		t.Fatalf("expected 2 stocking units, got %s", stocking)
	}
	back := ToSellable(stocking, UnitStocking, 12)
	if !back.Equal(sellable) {
		t.Fatalf("round trip changed the quantity: %s != %s", back, sellable)
	}
}

func TestFromSellableFloorsStockingUnits(t *testing.T) {
	got := FromSellable(decimal.NewFromInt(17), UnitStocking, 12)
	if !got.Equal(decimal.NewFromInt(1)) {
		t.Fatalf("expected floor to 1 stocking unit, got %s", got)
	}

	got = FromSellable(decimal.NewFromInt(5), UnitStocking, 12)
	if !got.IsZero() {
		t.Fatalf("expected unrepresentable conversion to floor to zero, got %s", got)
	}
}

func TestFromSellableRejectsBadBundleSize(t *testing.T) {
	if got := FromSellable(decimal.NewFromInt(10), UnitStocking, 0); !got.IsZero() {
		t.Fatalf("expected zero for bundle size 0, got %s", got)
	}
}

func TestStockingUnitPrice(t *testing.T) {
	p := Product{SellPrice: decimal.RequireFromString("2500"), UnitsPerStockingUnit: 12}
	if !p.StockingUnitPrice().Equal(decimal.RequireFromString("30000")) {
		t.Fatalf("expected 30000, got %s", p.StockingUnitPrice())
	}
	if !p.UnitPriceFor(UnitSellable).Equal(p.SellPrice) {
		t.Fatalf("sellable unit price should be the sell price")
	}
}

func TestUnitPricePrefersLastSalePrice(t *testing.T) {
	p := Product{
		SellPrice:            decimal.RequireFromString("2500"),
		LastSalePrice:        decimal.RequireFromString("2300"),
		UnitsPerStockingUnit: 12,
	}
	if !p.UnitPriceFor(UnitSellable).Equal(decimal.RequireFromString("2300")) {
		t.Fatalf("expected last sale price 2300, got %s", p.UnitPriceFor(UnitSellable))
	}
	if !p.StockingUnitPrice().Equal(decimal.RequireFromString("27600")) {
		t.Fatalf("expected 27600, got %s", p.StockingUnitPrice())
	}

	// A product that never sold falls back to the catalog price.
	p.LastSalePrice = decimal.Zero
	if !p.UnitPriceFor(UnitSellable).Equal(p.SellPrice) {
		t.Fatalf("expected catalog fallback, got %s", p.UnitPriceFor(UnitSellable))
	}
}

func TestSellableQuantityUsesSnapshotBundle(t *testing.T) {
	item := SaleItem{
		Product:  Product{UnitsPerStockingUnit: 6},
		Quantity: decimal.NewFromInt(3),
		UnitType: UnitStocking,
	}
	if !item.SellableQuantity().Equal(decimal.NewFromInt(18)) {
		t.Fatalf("expected 18 sellable units, got %s", item.SellableQuantity())
	}
}

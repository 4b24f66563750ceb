// Package cart owns every pure mutation of the Sale aggregate and the stock
// bookkeeping that goes with it. Operations take the current Sale and return
// the complete next Sale; on a business-rule rejection the input Sale is
// returned unchanged along with a sentinel error, never a panic. Nothing in
// this package touches the network or disk.
package cart

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"lapakpos/terminal/internal/domain"
	"lapakpos/terminal/internal/xid"
)

var (
	ErrInsufficientStock     = errors.New("insufficient stock")
	ErrInvalidUnitConversion = errors.New("quantity not representable in stocking units")
	ErrInvalidDiscount       = errors.New("invalid discount")
	ErrLineNotFound          = errors.New("line not found")
)

var oneHundred = decimal.NewFromInt(100)

// NewDraft creates an empty draft sale scoped to the given shift (nil in
// day mode).
func NewDraft(shiftID *int64, userID *int64) domain.Sale {
	now := time.Now().UTC()
	return domain.Sale{
		LocalKey:       xid.New("sale"),
		ShiftID:        shiftID,
		UserID:         userID,
		SaleDate:       now,
		CreatedAtLocal: now,
		Status:         domain.SaleStatusDraft,
		Items:          []domain.SaleItem{},
		Payments:       []domain.Payment{},
		DiscountType:   domain.DiscountFixed,
	}
}

// AddLine adds one unit of product in the requested unit type. If a line for
// the product already exists it is merged: both contributions are summed in
// sellable units and converted into the requested unit, so a product never
// has two lines differing only by unit type.
func AddLine(sale domain.Sale, led *Ledger, product domain.Product, unit domain.UnitType) (domain.Sale, error) {
	if !unit.Valid() {
		return sale, ErrInvalidUnitConversion
	}
	available := led.Available(product.ID)
	if !available.IsPositive() {
		return sale, ErrInsufficientStock
	}
	if unit == domain.UnitStocking {
		if !domain.FromSellable(available, domain.UnitStocking, product.UnitsPerStockingUnit).IsPositive() {
			return sale, ErrInsufficientStock
		}
	}

	addedSellable := domain.ToSellable(decimal.NewFromInt(1), unit, product.UnitsPerStockingUnit)

	idx := sale.FindItem(product.ID)
	if idx < 0 {
		if err := led.Reserve(product.ID, addedSellable); err != nil {
			return sale, err
		}
		next := cloneSale(sale)
		snapshot, _ := led.Snapshot(product.ID)
		next.Items = append(next.Items, domain.SaleItem{
			ProductID: product.ID,
			Product:   snapshot,
			Quantity:  decimal.NewFromInt(1),
			UnitType:  unit,
			UnitPrice: product.UnitPriceFor(unit),
		})
		return RecomputeTotals(next), nil
	}

	line := sale.Items[idx]
	oldSellable := line.SellableQuantity()
	totalSellable := oldSellable.Add(addedSellable)

	newQty := domain.FromSellable(totalSellable, unit, product.UnitsPerStockingUnit)
	if !newQty.IsPositive() {
		return sale, ErrInvalidUnitConversion
	}
	newSellable := domain.ToSellable(newQty, unit, product.UnitsPerStockingUnit)
	if err := led.Reserve(product.ID, newSellable.Sub(oldSellable)); err != nil {
		return sale, err
	}

	next := cloneSale(sale)
	item := &next.Items[idx]
	item.Quantity = newQty
	if item.UnitType != unit {
		item.UnitType = unit
		item.UnitPrice = product.UnitPriceFor(unit)
		item.BatchID = nil
	}
	syncSnapshot(&next, led, product.ID)
	return RecomputeTotals(next), nil
}

// SetQuantity sets a line's quantity in its current unit type. A quantity of
// zero or less removes the line.
func SetQuantity(sale domain.Sale, led *Ledger, productID int64, qty decimal.Decimal) (domain.Sale, error) {
	if !qty.IsPositive() {
		return RemoveLine(sale, led, productID)
	}
	idx := sale.FindItem(productID)
	if idx < 0 {
		return sale, ErrLineNotFound
	}

	line := sale.Items[idx]
	oldSellable := line.SellableQuantity()
	newSellable := domain.ToSellable(qty, line.UnitType, line.Product.UnitsPerStockingUnit)
	if err := led.Reserve(productID, newSellable.Sub(oldSellable)); err != nil {
		return sale, err
	}

	next := cloneSale(sale)
	next.Items[idx].Quantity = qty
	syncSnapshot(&next, led, productID)
	return RecomputeTotals(next), nil
}

// SetUnitPrice overrides a line's unit price unconditionally (manual edits).
func SetUnitPrice(sale domain.Sale, productID int64, price decimal.Decimal) (domain.Sale, error) {
	idx := sale.FindItem(productID)
	if idx < 0 {
		return sale, ErrLineNotFound
	}
	next := cloneSale(sale)
	next.Items[idx].UnitPrice = price
	return RecomputeTotals(next), nil
}

// SwitchUnitType converts a line to the other unit type via the sellable-unit
// round trip and re-derives its unit price. A conversion that floors to zero
// stocking units is rejected and the sale is returned unchanged.
func SwitchUnitType(sale domain.Sale, led *Ledger, productID int64, newType domain.UnitType) (domain.Sale, error) {
	if !newType.Valid() {
		return sale, ErrInvalidUnitConversion
	}
	idx := sale.FindItem(productID)
	if idx < 0 {
		return sale, ErrLineNotFound
	}
	line := sale.Items[idx]
	if line.UnitType == newType {
		return sale, nil
	}

	oldSellable := line.SellableQuantity()
	newQty := domain.FromSellable(oldSellable, newType, line.Product.UnitsPerStockingUnit)
	if !newQty.IsPositive() {
		return sale, ErrInvalidUnitConversion
	}
	// The stocking floor can shed a sellable remainder; release it.
	newSellable := domain.ToSellable(newQty, newType, line.Product.UnitsPerStockingUnit)
	if err := led.Reserve(productID, newSellable.Sub(oldSellable)); err != nil {
		return sale, err
	}

	next := cloneSale(sale)
	item := &next.Items[idx]
	item.Quantity = newQty
	item.UnitType = newType
	item.UnitPrice = item.Product.UnitPriceFor(newType)
	item.BatchID = nil
	syncSnapshot(&next, led, productID)
	return RecomputeTotals(next), nil
}

// RemoveLine drops a line and releases its reservation. Removing the last
// line of an unsynced pending sale obligates the caller to delete the
// persisted record; an empty pending sale is not a valid stored state.
func RemoveLine(sale domain.Sale, led *Ledger, productID int64) (domain.Sale, error) {
	idx := sale.FindItem(productID)
	if idx < 0 {
		return sale, ErrLineNotFound
	}
	released := sale.Items[idx].SellableQuantity().Neg()
	if err := led.Reserve(productID, released); err != nil {
		return sale, err
	}

	next := cloneSale(sale)
	next.Items = append(next.Items[:idx], next.Items[idx+1:]...)
	return RecomputeTotals(next), nil
}

// SetBatch pins a line to a purchase lot and fixes its price to the batch
// sale price. A nil batch id clears the linkage and re-derives the price
// from the product snapshot.
func SetBatch(sale domain.Sale, productID int64, batchID *int64, unitPrice decimal.Decimal) (domain.Sale, error) {
	idx := sale.FindItem(productID)
	if idx < 0 {
		return sale, ErrLineNotFound
	}
	next := cloneSale(sale)
	item := &next.Items[idx]
	item.BatchID = batchID
	if batchID != nil {
		item.UnitPrice = unitPrice
	} else {
		item.UnitPrice = item.Product.UnitPriceFor(item.UnitType)
	}
	return RecomputeTotals(next), nil
}

// ApplyDiscount stores the raw discount inputs; the totals invariant clamps
// the effective discount during recomputation.
func ApplyDiscount(sale domain.Sale, amount decimal.Decimal, discountType string) (domain.Sale, error) {
	if discountType != domain.DiscountPercentage && discountType != domain.DiscountFixed {
		return sale, ErrInvalidDiscount
	}
	if amount.IsNegative() {
		return sale, ErrInvalidDiscount
	}
	if discountType == domain.DiscountPercentage && amount.GreaterThan(oneHundred) {
		return sale, ErrInvalidDiscount
	}
	next := cloneSale(sale)
	next.DiscountAmount = amount
	next.DiscountType = discountType
	return RecomputeTotals(next), nil
}

// RecomputeTotals is the single place derived amounts come from. Line totals
// and payments are summed at full precision and rounded to two decimals once
// at the end; the effective discount never exceeds the subtotal, so the
// total never goes negative.
func RecomputeTotals(sale domain.Sale) domain.Sale {
	subtotal := sale.Subtotal()

	discount := sale.DiscountAmount
	if sale.DiscountType == domain.DiscountPercentage {
		discount = subtotal.Mul(sale.DiscountAmount).Div(oneHundred)
	}
	if discount.GreaterThan(subtotal) {
		discount = subtotal
	}
	if discount.IsNegative() {
		discount = decimal.Zero
	}

	total := subtotal.Sub(discount).Round(2)
	if total.IsNegative() {
		total = decimal.Zero
	}
	sale.TotalAmount = total

	paid := decimal.Zero
	for _, p := range sale.Payments {
		paid = paid.Add(p.Amount)
	}
	sale.PaidAmount = paid.Round(2)

	return sale
}

// syncSnapshot refreshes the denormalized product snapshot on every line of
// the product so its availability display matches the ledger.
func syncSnapshot(sale *domain.Sale, led *Ledger, productID int64) {
	snapshot, ok := led.Snapshot(productID)
	if !ok {
		return
	}
	for i := range sale.Items {
		if sale.Items[i].ProductID == productID {
			sale.Items[i].Product = snapshot
		}
	}
}

func cloneSale(sale domain.Sale) domain.Sale {
	next := sale
	next.Items = make([]domain.SaleItem, len(sale.Items))
	copy(next.Items, sale.Items)
	next.Payments = make([]domain.Payment, len(sale.Payments))
	copy(next.Payments, sale.Payments)
	return next
}

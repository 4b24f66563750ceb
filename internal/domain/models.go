package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	SaleStatusDraft     = "draft"
	SaleStatusCompleted = "completed"
)

const (
	DiscountPercentage = "percentage"
	DiscountFixed      = "fixed"
)

const (
	PaymentCash     = "cash"
	PaymentCard     = "card"
	PaymentTransfer = "transfer"
	PaymentRefund   = "refund"
)

const ActionCreateSale = "CREATE_SALE"

// UnitType tags the unit a line item is quantified in. A stocking unit
// bundles UnitsPerStockingUnit sellable units.
type UnitType string

const (
	UnitSellable UnitType = "sellable"
	UnitStocking UnitType = "stocking"
)

func (u UnitType) Valid() bool {
	return u == UnitSellable || u == UnitStocking
}

// ToSellable converts a quantity expressed in unit into sellable units.
func ToSellable(qty decimal.Decimal, unit UnitType, perStocking int64) decimal.Decimal {
	if unit == UnitStocking {
		return qty.Mul(decimal.NewFromInt(perStocking))
	}
	return qty
}

// FromSellable converts a sellable-unit quantity into unit. Stocking
// quantities are floored to whole units; a zero result means the conversion
// is not representable and the caller must reject it.
func FromSellable(qty decimal.Decimal, unit UnitType, perStocking int64) decimal.Decimal {
	if unit == UnitStocking {
		if perStocking < 1 {
			return decimal.Zero
		}
		return qty.Div(decimal.NewFromInt(perStocking)).Floor()
	}
	return qty
}

type Product struct {
	ID                   int64           `json:"id"`
	SKU                  string          `json:"sku"`
	Name                 string          `json:"name"`
	SellPrice            decimal.Decimal `json:"sell_price"`
	LastSalePrice        decimal.Decimal `json:"last_sale_price"`
	StockQuantity        decimal.Decimal `json:"stock_quantity"`
	UnitsPerStockingUnit int64           `json:"units_per_stocking_unit"`
	SellableUnitName     string          `json:"sellable_unit_name"`
	StockingUnitName     string          `json:"stocking_unit_name"`
	Active               bool            `json:"active"`
}

// baseUnitPrice is the sellable-unit price a new line starts from: the
// price this product last sold at, or the catalog price when it has not
// sold yet.
func (p Product) baseUnitPrice() decimal.Decimal {
	if p.LastSalePrice.IsPositive() {
		return p.LastSalePrice
	}
	return p.SellPrice
}

// StockingUnitPrice derives the price of one stocking unit from the
// sellable-unit price.
func (p Product) StockingUnitPrice() decimal.Decimal {
	return p.baseUnitPrice().Mul(decimal.NewFromInt(p.UnitsPerStockingUnit))
}

// UnitPriceFor returns the seed unit price for a line in the given unit.
func (p Product) UnitPriceFor(unit UnitType) decimal.Decimal {
	if unit == UnitStocking {
		return p.StockingUnitPrice()
	}
	return p.baseUnitPrice()
}

type Client struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Phone string `json:"phone"`
}

type Batch struct {
	ID          int64           `json:"id"`
	BatchNumber string          `json:"batch_number"`
	SalePrice   decimal.Decimal `json:"sale_price"`
	Quantity    decimal.Decimal `json:"quantity"`
}

// SaleItem is one line of a Sale. Product is a denormalized snapshot
// captured when the line is added and refreshed opportunistically; its
// StockQuantity mirrors the bookkeeping ledger so the line's own
// availability display stays correct after the catalog refreshes.
type SaleItem struct {
	ProductID int64           `json:"product_id"`
	Product   Product         `json:"product"`
	Quantity  decimal.Decimal `json:"quantity"`
	UnitType  UnitType        `json:"unit_type"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	BatchID   *int64          `json:"batch_id,omitempty"`
}

// SellableQuantity is the line quantity expressed in sellable units.
func (i SaleItem) SellableQuantity() decimal.Decimal {
	return ToSellable(i.Quantity, i.UnitType, i.Product.UnitsPerStockingUnit)
}

func (i SaleItem) LineTotal() decimal.Decimal {
	return i.UnitPrice.Mul(i.Quantity)
}

type Payment struct {
	ServerID    *int64          `json:"server_id,omitempty"`
	Method      string          `json:"method"`
	Amount      decimal.Decimal `json:"amount"`
	PaymentDate time.Time       `json:"payment_date"`
	Notes       string          `json:"notes,omitempty"`
}

// Sale is the aggregate root of the offline lifecycle. LocalKey is assigned
// at draft creation and never changes; it is the idempotency key for sync.
// TotalAmount and PaidAmount are derived, never hand-edited.
type Sale struct {
	LocalKey       string          `json:"local_key"`
	ServerID       *int64          `json:"server_id,omitempty"`
	InvoiceNumber  string          `json:"invoice_number,omitempty"`
	IsSynced       bool            `json:"is_synced"`
	ShiftID        *int64          `json:"shift_id,omitempty"`
	UserID         *int64          `json:"user_id,omitempty"`
	ClientID       *int64          `json:"client_id,omitempty"`
	SaleDate       time.Time       `json:"sale_date"`
	CreatedAtLocal time.Time       `json:"created_at_local"`
	Status         string          `json:"status"`
	Items          []SaleItem      `json:"items"`
	Payments       []Payment       `json:"payments"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
	DiscountType   string          `json:"discount_type"`
	TotalAmount    decimal.Decimal `json:"total_amount"`
	PaidAmount     decimal.Decimal `json:"paid_amount"`
	Notes          string          `json:"notes,omitempty"`
}

// FindItem returns the index of the line for productID, or -1.
func (s Sale) FindItem(productID int64) int {
	for i := range s.Items {
		if s.Items[i].ProductID == productID {
			return i
		}
	}
	return -1
}

// Subtotal sums the line totals without rounding; rounding happens once in
// the totals recomputation.
func (s Sale) Subtotal() decimal.Decimal {
	subtotal := decimal.Zero
	for _, item := range s.Items {
		subtotal = subtotal.Add(item.LineTotal())
	}
	return subtotal
}

// Shift is the consumed shape of the backend shift lifecycle.
type Shift struct {
	ID     int64 `json:"id"`
	IsOpen bool  `json:"is_open"`
}

// SyncAction is one durable entry of the sync queue. Payload is the full
// Sale snapshot taken at completion time.
type SyncAction struct {
	ID        int64     `json:"id"`
	Type      string    `json:"type"`
	Payload   Sale      `json:"payload"`
	CreatedAt time.Time `json:"created_at"`
}

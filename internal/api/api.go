// Package api is the adapter to the remote REST backend. Transport-shape
// ambiguity (enveloped vs bare payloads) is normalized here and nowhere
// else; the engine packages only ever see the canonical types below.
package api

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"lapakpos/terminal/internal/domain"
)

var (
	ErrAuthExpired = errors.New("auth token expired")
	ErrUnreachable = errors.New("backend unreachable")
)

// Client is the consumed surface of the backend. Implementations reject with
// transport errors; business rejections come back as *RequestError.
type Client interface {
	CreateSale(ctx context.Context, req CreateSaleRequest) (*Sale, error)
	ListSalesByShift(ctx context.Context, shiftID int64, perPage int) ([]Sale, error)
	ListSalesByDateRange(ctx context.Context, start, end time.Time, perPage int) ([]Sale, error)
	AddPayment(ctx context.Context, saleID int64, req PaymentRequest) (*Payment, error)
	DeletePayment(ctx context.Context, saleID int64, paymentID int64) error
	CurrentShift(ctx context.Context) (*domain.Shift, error)
	OpenShift(ctx context.Context) (*domain.Shift, error)
	CloseShift(ctx context.Context) (*domain.Shift, error)
	AvailableBatches(ctx context.Context, productID int64, warehouseID int64) ([]domain.Batch, error)
	Health(ctx context.Context) error
}

type CreateSaleRequest struct {
	ClientID *int64           `json:"client_id,omitempty"`
	SaleDate string           `json:"sale_date"`
	Status   string           `json:"status"`
	Notes    string           `json:"notes,omitempty"`
	ShiftID  *int64           `json:"shift_id,omitempty"`
	Items    []CreateSaleItem `json:"items"`
	Payments []PaymentRequest `json:"payments"`
}

type CreateSaleItem struct {
	ProductID      int64           `json:"product_id"`
	Quantity       decimal.Decimal `json:"quantity"`
	UnitPrice      decimal.Decimal `json:"unit_price"`
	PurchaseItemID *int64          `json:"purchase_item_id,omitempty"`
}

type PaymentRequest struct {
	Method      string          `json:"method"`
	Amount      decimal.Decimal `json:"amount"`
	PaymentDate string          `json:"payment_date"`
	Notes       string          `json:"notes,omitempty"`
}

// Sale is the backend's view of a sale, already unwrapped from whatever
// envelope the transport used.
type Sale struct {
	ID            int64           `json:"id"`
	InvoiceNumber string          `json:"invoice_number"`
	SaleDate      string          `json:"sale_date"`
	Status        string          `json:"status"`
	ShiftID       *int64          `json:"shift_id,omitempty"`
	ClientID      *int64          `json:"client_id,omitempty"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
	PaidAmount    decimal.Decimal `json:"paid_amount"`
	Items         []SaleItem      `json:"items"`
	Payments      []Payment       `json:"payments"`
}

type SaleItem struct {
	ProductID int64           `json:"product_id"`
	Quantity  decimal.Decimal `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Product   *domain.Product `json:"product,omitempty"`
}

type Payment struct {
	ID          int64           `json:"id"`
	Method      string          `json:"method"`
	Amount      decimal.Decimal `json:"amount"`
	PaymentDate string          `json:"payment_date"`
	Notes       string          `json:"notes,omitempty"`
}

// BuildCreateSaleRequest maps a completed local sale to the create-sale wire
// shape. Quantities go out in the backend's canonical sellable unit, blank
// and zero-amount payments are dropped, and the shift scope rides along when
// present.
func BuildCreateSaleRequest(sale domain.Sale) CreateSaleRequest {
	req := CreateSaleRequest{
		ClientID: sale.ClientID,
		SaleDate: sale.SaleDate.UTC().Format("2006-01-02"),
		Status:   sale.Status,
		Notes:    sale.Notes,
		ShiftID:  sale.ShiftID,
		Items:    make([]CreateSaleItem, 0, len(sale.Items)),
		Payments: make([]PaymentRequest, 0, len(sale.Payments)),
	}

	for _, item := range sale.Items {
		qty := item.SellableQuantity()
		price := item.UnitPrice
		if item.UnitType == domain.UnitStocking && item.Product.UnitsPerStockingUnit > 0 {
			price = item.UnitPrice.DivRound(decimal.NewFromInt(item.Product.UnitsPerStockingUnit), 4)
		}
		req.Items = append(req.Items, CreateSaleItem{
			ProductID:      item.ProductID,
			Quantity:       qty,
			UnitPrice:      price,
			PurchaseItemID: item.BatchID,
		})
	}

	for _, p := range sale.Payments {
		if p.Method == "" || p.Amount.IsZero() {
			continue
		}
		req.Payments = append(req.Payments, PaymentRequest{
			Method:      p.Method,
			Amount:      p.Amount,
			PaymentDate: p.PaymentDate.UTC().Format("2006-01-02"),
			Notes:       p.Notes,
		})
	}

	return req
}

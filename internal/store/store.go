package store

import (
	"context"
	"errors"

	"lapakpos/terminal/internal/domain"
)

var (
	ErrNotFound    = errors.New("not found")
	ErrInvalidSale = errors.New("invalid sale")
)

// LocalStore is the only component that touches disk. Writes are per-record
// atomic; callers never observe a torn record. SavePendingSale is an upsert
// keyed by the sale's local key, so repeated autosaves of one draft never
// create duplicates. GetPendingSales returns every record regardless of sync
// state; scope filtering is the partitioner's job.
type LocalStore interface {
	UpsertProduct(ctx context.Context, product domain.Product) error
	UpsertProducts(ctx context.Context, products []domain.Product) error
	GetProduct(ctx context.Context, id int64) (*domain.Product, error)
	ListProducts(ctx context.Context) ([]domain.Product, error)
	SearchProducts(ctx context.Context, query string, limit int) ([]domain.Product, error)

	UpsertClient(ctx context.Context, client domain.Client) error
	ListClients(ctx context.Context) ([]domain.Client, error)
	SearchClients(ctx context.Context, query string, limit int) ([]domain.Client, error)

	SavePendingSale(ctx context.Context, sale domain.Sale) error
	GetPendingSale(ctx context.Context, localKey string) (*domain.Sale, error)
	GetPendingSales(ctx context.Context) ([]domain.Sale, error)
	DeletePendingSale(ctx context.Context, localKey string) error

	EnqueueAction(ctx context.Context, action domain.SyncAction) (*domain.SyncAction, error)
	ListActions(ctx context.Context) ([]domain.SyncAction, error)
	DeleteAction(ctx context.Context, id int64) error

	Close() error
}

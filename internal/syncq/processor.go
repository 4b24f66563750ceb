// Package syncq drains the local action queue against the backend. Actions
// are replayed in insertion order, failures leave the action queued for the
// next pass, and nothing is ever dropped.
package syncq

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"lapakpos/terminal/internal/api"
	"lapakpos/terminal/internal/domain"
	"lapakpos/terminal/internal/store"
)

var ErrSyncInFlight = errors.New("sync already running")

// Result is the outcome of one queue pass.
type Result struct {
	Synced []domain.Sale
	Failed []FailedAction
}

type FailedAction struct {
	Action domain.SyncAction
	Err    error
}

type Processor struct {
	store store.LocalStore
	api   api.Client

	mu      sync.Mutex
	running bool

	// OnError is invoked per failed action, after the failure is recorded.
	OnError func(action domain.SyncAction, err error)
}

func NewProcessor(st store.LocalStore, client api.Client) *Processor {
	return &Processor{store: st, api: client}
}

// ProcessQueue replays every queued action once. A second call while a pass
// is running returns ErrSyncInFlight rather than racing it. One action
// failing never blocks the actions behind it.
func (p *Processor) ProcessQueue(ctx context.Context) (Result, error) {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return Result{}, ErrSyncInFlight
	}
	p.running = true
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		p.running = false
		p.mu.Unlock()
	}()

	actions, err := p.store.ListActions(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("list queued actions: %w", err)
	}

	var result Result
	for _, action := range actions {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		synced, err := p.processAction(ctx, action)
		if err != nil {
			log.Printf("[syncq] WARN: action %d (%s) failed, keeping it queued: %v", action.ID, action.Type, err)
			result.Failed = append(result.Failed, FailedAction{Action: action, Err: err})
			if p.OnError != nil {
				p.OnError(action, err)
			}
			continue
		}
		if synced != nil {
			result.Synced = append(result.Synced, *synced)
		}
	}

	return result, nil
}

func (p *Processor) processAction(ctx context.Context, action domain.SyncAction) (*domain.Sale, error) {
	switch action.Type {
	case domain.ActionCreateSale:
		return p.createSale(ctx, action)
	default:
		// Unknown action types stay queued; a newer build may understand them.
		return nil, fmt.Errorf("unknown action type %q", action.Type)
	}
}

func (p *Processor) createSale(ctx context.Context, action domain.SyncAction) (*domain.Sale, error) {
	req := api.BuildCreateSaleRequest(action.Payload)

	remote, err := p.api.CreateSale(ctx, req)
	if err != nil {
		return nil, err
	}

	sale := action.Payload
	if stored, err := p.store.GetPendingSale(ctx, sale.LocalKey); err == nil {
		sale = *stored
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("load pending sale %s: %w", sale.LocalKey, err)
	}

	sale.IsSynced = true
	sale.ServerID = &remote.ID
	sale.InvoiceNumber = remote.InvoiceNumber
	claimed := make(map[int64]bool, len(remote.Payments))
	for i := range sale.Payments {
		if sale.Payments[i].ServerID != nil {
			continue
		}
		for _, rp := range remote.Payments {
			if claimed[rp.ID] || sale.Payments[i].Method != rp.Method || !sale.Payments[i].Amount.Equal(rp.Amount) {
				continue
			}
			id := rp.ID
			sale.Payments[i].ServerID = &id
			claimed[rp.ID] = true
			break
		}
	}

	if err := p.store.SavePendingSale(ctx, sale); err != nil {
		return nil, fmt.Errorf("mark sale %s synced: %w", sale.LocalKey, err)
	}
	if err := p.store.DeleteAction(ctx, action.ID); err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("dequeue action %d: %w", action.ID, err)
	}

	return &sale, nil
}

package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"lapakpos/terminal/internal/domain"
	"lapakpos/terminal/internal/store"
)

// Store is a LocalStore backed by a site-local PostgreSQL instance, for
// counters that share one database on the shop LAN instead of keeping a
// per-device SQLite file. It is still "local" in the sync model: the remote
// REST backend stays the source of truth and the sync queue semantics are
// identical to the SQLite store.
type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(4)
	db.SetMaxOpenConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &Store{db: db}
	if err := s.initTables(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init postgres tables: %w", err)
	}
	return s, nil
}

func (s *Store) initTables(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS terminal_products (
			id BIGINT PRIMARY KEY,
			sku TEXT NOT NULL,
			name TEXT NOT NULL,
			payload JSONB NOT NULL
		);
		CREATE TABLE IF NOT EXISTS terminal_clients (
			id BIGINT PRIMARY KEY,
			name TEXT NOT NULL,
			phone TEXT NOT NULL DEFAULT '',
			payload JSONB NOT NULL
		);
		CREATE TABLE IF NOT EXISTS terminal_pending_sales (
			local_key TEXT PRIMARY KEY,
			is_synced BOOLEAN NOT NULL DEFAULT false,
			shift_id BIGINT,
			created_at_local TIMESTAMPTZ NOT NULL,
			payload JSONB NOT NULL
		);
		CREATE TABLE IF NOT EXISTS terminal_sync_queue (
			id BIGSERIAL PRIMARY KEY,
			type TEXT NOT NULL,
			payload JSONB NOT NULL,
			created_at TIMESTAMPTZ NOT NULL
		);
	`)
	return err
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) UpsertProduct(ctx context.Context, product domain.Product) error {
	if product.ID == 0 {
		return store.ErrInvalidSale
	}
	payload, err := json.Marshal(product)
	if err != nil {
		return fmt.Errorf("encode product: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO terminal_products (id, sku, name, payload) VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET sku = excluded.sku, name = excluded.name, payload = excluded.payload
	`, product.ID, product.SKU, product.Name, payload)
	if err != nil {
		return fmt.Errorf("upsert product %d: %w", product.ID, err)
	}
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

func (s *Store) GetProduct(ctx context.Context, id int64) (*domain.Product, error) {
	var payload []byte
	err := s.db.QueryRowContext(ctx, "SELECT payload FROM terminal_products WHERE id = $1", id).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get product %d: %w", id, err)
	}
	var product domain.Product
	if err := json.Unmarshal(payload, &product); err != nil {
		return nil, fmt.Errorf("decode product %d: %w", id, err)
	}
	return &product, nil
}

func (s *Store) ListProducts(ctx context.Context) ([]domain.Product, error) {
	return s.queryProducts(ctx, "SELECT payload FROM terminal_products ORDER BY id")
}

func (s *Store) SearchProducts(ctx context.Context, query string, limit int) ([]domain.Product, error) {
	if limit < 1 {
		limit = 50
	}
	pattern := "%" + strings.ToLower(strings.TrimSpace(query)) + "%"
	return s.queryProducts(ctx, `
		SELECT payload FROM terminal_products
		WHERE lower(name) LIKE $1 OR lower(sku) LIKE $1
		ORDER BY name LIMIT $2
	`, pattern, limit)
}

func (s *Store) queryProducts(ctx context.Context, query string, args ...any) ([]domain.Product, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query products: %w", err)
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 32)
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		var product domain.Product
		if err := json.Unmarshal(payload, &product); err != nil {
			return nil, fmt.Errorf("decode product: %w", err)
		}
		products = append(products, product)
	}
	return products, rows.Err()
}

func (s *Store) UpsertClient(ctx context.Context, client domain.Client) error {
	if client.ID == 0 {
		return store.ErrInvalidSale
	}
	payload, err := json.Marshal(client)
	if err != nil {
		return fmt.Errorf("encode client: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO terminal_clients (id, name, phone, payload) VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET name = excluded.name, phone = excluded.phone, payload = excluded.payload
	`, client.ID, client.Name, client.Phone, payload)
	if err != nil {
		return fmt.Errorf("upsert client %d: %w", client.ID, err)
	}
	return nil
}

func (s *Store) ListClients(ctx context.Context) ([]domain.Client, error) {
	return s.queryClients(ctx, "SELECT payload FROM terminal_clients ORDER BY id")
}

func (s *Store) SearchClients(ctx context.Context, query string, limit int) ([]domain.Client, error) {
	if limit < 1 {
		limit = 50
	}
	pattern := "%" + strings.ToLower(strings.TrimSpace(query)) + "%"
	return s.queryClients(ctx, `
		SELECT payload FROM terminal_clients
		WHERE lower(name) LIKE $1 OR phone LIKE $1
		ORDER BY name LIMIT $2
	`, pattern, limit)
}

func (s *Store) queryClients(ctx context.Context, query string, args ...any) ([]domain.Client, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query clients: %w", err)
	}
	defer rows.Close()

	clients := make([]domain.Client, 0, 16)
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan client: %w", err)
		}
		var client domain.Client
		if err := json.Unmarshal(payload, &client); err != nil {
			return nil, fmt.Errorf("decode client: %w", err)
		}
		clients = append(clients, client)
	}
	return clients, rows.Err()
}

func (s *Store) SavePendingSale(ctx context.Context, sale domain.Sale) error {
	if sale.LocalKey == "" {
		return store.ErrInvalidSale
	}
	payload, err := json.Marshal(sale)
	if err != nil {
		return fmt.Errorf("encode sale: %w", err)
	}
	var shiftID any
	if sale.ShiftID != nil {
		shiftID = *sale.ShiftID
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO terminal_pending_sales (local_key, is_synced, shift_id, created_at_local, payload)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (local_key) DO UPDATE SET
			is_synced = excluded.is_synced,
			shift_id = excluded.shift_id,
			payload = excluded.payload
	`, sale.LocalKey, sale.IsSynced, shiftID, sale.CreatedAtLocal.UTC(), payload)
	if err != nil {
		return fmt.Errorf("save pending sale %s: %w", sale.LocalKey, err)
	}
	return nil
}

func (s *Store) GetPendingSale(ctx context.Context, localKey string) (*domain.Sale, error) {
	var payload []byte
	err := s.db.QueryRowContext(ctx, "SELECT payload FROM terminal_pending_sales WHERE local_key = $1", localKey).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get pending sale %s: %w", localKey, err)
	}
	var sale domain.Sale
	if err := json.Unmarshal(payload, &sale); err != nil {
		return nil, fmt.Errorf("decode pending sale %s: %w", localKey, err)
	}
	return &sale, nil
}

func (s *Store) GetPendingSales(ctx context.Context) ([]domain.Sale, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT payload FROM terminal_pending_sales ORDER BY created_at_local, local_key")
	if err != nil {
		return nil, fmt.Errorf("query pending sales: %w", err)
	}
	defer rows.Close()

	sales := make([]domain.Sale, 0, 16)
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan pending sale: %w", err)
		}
		var sale domain.Sale
		if err := json.Unmarshal(payload, &sale); err != nil {
			return nil, fmt.Errorf("decode pending sale: %w", err)
		}
		sales = append(sales, sale)
	}
	return sales, rows.Err()
}

func (s *Store) DeletePendingSale(ctx context.Context, localKey string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM terminal_pending_sales WHERE local_key = $1", localKey)
	if err != nil {
		return fmt.Errorf("delete pending sale %s: %w", localKey, err)
	}
	return nil
}

func (s *Store) EnqueueAction(ctx context.Context, action domain.SyncAction) (*domain.SyncAction, error) {
	if action.CreatedAt.IsZero() {
		action.CreatedAt = time.Now().UTC()
	}
	payload, err := json.Marshal(action.Payload)
	if err != nil {
		return nil, fmt.Errorf("encode action payload: %w", err)
	}
	err = s.db.QueryRowContext(ctx, `
		INSERT INTO terminal_sync_queue (type, payload, created_at) VALUES ($1, $2, $3) RETURNING id
	`, action.Type, payload, action.CreatedAt.UTC()).Scan(&action.ID)
	if err != nil {
		return nil, fmt.Errorf("enqueue action: %w", err)
	}
	queued := action
	return &queued, nil
}

func (s *Store) ListActions(ctx context.Context) ([]domain.SyncAction, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id, type, payload, created_at FROM terminal_sync_queue ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("query sync queue: %w", err)
	}
	defer rows.Close()

	actions := make([]domain.SyncAction, 0, 8)
	for rows.Next() {
		var (
			action  domain.SyncAction
			payload []byte
		)
		if err := rows.Scan(&action.ID, &action.Type, &payload, &action.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan sync action: %w", err)
		}
		if err := json.Unmarshal(payload, &action.Payload); err != nil {
			return nil, fmt.Errorf("decode sync action %d: %w", action.ID, err)
		}
		actions = append(actions, action)
	}
	return actions, rows.Err()
}

func (s *Store) DeleteAction(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM terminal_sync_queue WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("delete sync action %d: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete sync action %d: %w", id, err)
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

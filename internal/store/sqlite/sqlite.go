package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"lapakpos/terminal/internal/domain"
	"lapakpos/terminal/internal/store"
)

// Store is the on-device LocalStore backed by a single SQLite file.
// Records are stored as JSON payloads next to the columns the store
// queries by, so schema churn in the domain types never needs a migration.
type Store struct {
	db *sql.DB
}

func New(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite store: %w", err)
	}
	// SQLite tolerates exactly one writer; a second connection would turn
	// upserts into busy-timeout races.
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.initTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("init sqlite tables: %w", err)
	}
	return s, nil
}

func (s *Store) initTables() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS products (
			id INTEGER PRIMARY KEY,
			sku TEXT NOT NULL,
			name TEXT NOT NULL,
			payload TEXT NOT NULL
		);
		CREATE TABLE IF NOT EXISTS clients (
			id INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			phone TEXT NOT NULL DEFAULT '',
			payload TEXT NOT NULL
		);
		CREATE TABLE IF NOT EXISTS pending_sales (
			local_key TEXT PRIMARY KEY,
			is_synced INTEGER NOT NULL DEFAULT 0,
			shift_id INTEGER,
			created_at_local DATETIME NOT NULL,
			payload TEXT NOT NULL
		);
		CREATE TABLE IF NOT EXISTS sync_queue (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			type TEXT NOT NULL,
			payload TEXT NOT NULL,
			created_at DATETIME NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_products_name ON products(name);
		CREATE INDEX IF NOT EXISTS idx_pending_sales_synced ON pending_sales(is_synced);
	`)
	return err
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
		INSERT INTO products (id, sku, name, payload) VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET sku = excluded.sku, name = excluded.name, payload = excluded.payload
	`, product.ID, product.SKU, product.Name, string(payload))
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
	var payload string
	err := s.db.QueryRowContext(ctx, "SELECT payload FROM products WHERE id = ?", id).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get product %d: %w", id, err)
	}
	return decodeProduct(payload)
}

func (s *Store) ListProducts(ctx context.Context) ([]domain.Product, error) {
	return s.queryProducts(ctx, "SELECT payload FROM products ORDER BY id")
}

func (s *Store) SearchProducts(ctx context.Context, query string, limit int) ([]domain.Product, error) {
	if limit < 1 {
		limit = 50
	}
	pattern := "%" + strings.ToLower(strings.TrimSpace(query)) + "%"
	return s.queryProducts(ctx, `
		SELECT payload FROM products
		WHERE lower(name) LIKE ? OR lower(sku) LIKE ?
		ORDER BY name LIMIT ?
	`, pattern, pattern, limit)
}

func (s *Store) queryProducts(ctx context.Context, query string, args ...any) ([]domain.Product, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query products: %w", err)
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 32)
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		product, err := decodeProduct(payload)
		if err != nil {
			return nil, err
		}
		products = append(products, *product)
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
		INSERT INTO clients (id, name, phone, payload) VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name, phone = excluded.phone, payload = excluded.payload
	`, client.ID, client.Name, client.Phone, string(payload))
	if err != nil {
		return fmt.Errorf("upsert client %d: %w", client.ID, err)
	}
	return nil
}

func (s *Store) ListClients(ctx context.Context) ([]domain.Client, error) {
	return s.queryClients(ctx, "SELECT payload FROM clients ORDER BY id")
}

func (s *Store) SearchClients(ctx context.Context, query string, limit int) ([]domain.Client, error) {
	if limit < 1 {
		limit = 50
	}
	pattern := "%" + strings.ToLower(strings.TrimSpace(query)) + "%"
	return s.queryClients(ctx, `
		SELECT payload FROM clients
		WHERE lower(name) LIKE ? OR phone LIKE ?
		ORDER BY name LIMIT ?
	`, pattern, pattern, limit)
}

func (s *Store) queryClients(ctx context.Context, query string, args ...any) ([]domain.Client, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query clients: %w", err)
	}
	defer rows.Close()

	clients := make([]domain.Client, 0, 16)
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan client: %w", err)
		}
		var client domain.Client
		if err := json.Unmarshal([]byte(payload), &client); err != nil {
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
		INSERT INTO pending_sales (local_key, is_synced, shift_id, created_at_local, payload)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(local_key) DO UPDATE SET
			is_synced = excluded.is_synced,
			shift_id = excluded.shift_id,
			payload = excluded.payload
	`, sale.LocalKey, sale.IsSynced, shiftID, sale.CreatedAtLocal.UTC().Format(time.RFC3339Nano), string(payload))
	if err != nil {
		return fmt.Errorf("save pending sale %s: %w", sale.LocalKey, err)
	}
	return nil
}

func (s *Store) GetPendingSale(ctx context.Context, localKey string) (*domain.Sale, error) {
	var payload string
	err := s.db.QueryRowContext(ctx, "SELECT payload FROM pending_sales WHERE local_key = ?", localKey).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get pending sale %s: %w", localKey, err)
	}
	var sale domain.Sale
	if err := json.Unmarshal([]byte(payload), &sale); err != nil {
		return nil, fmt.Errorf("decode pending sale %s: %w", localKey, err)
	}
	return &sale, nil
}

func (s *Store) GetPendingSales(ctx context.Context) ([]domain.Sale, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT payload FROM pending_sales ORDER BY created_at_local, local_key")
	if err != nil {
		return nil, fmt.Errorf("query pending sales: %w", err)
	}
	defer rows.Close()

	sales := make([]domain.Sale, 0, 16)
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan pending sale: %w", err)
		}
		var sale domain.Sale
		if err := json.Unmarshal([]byte(payload), &sale); err != nil {
			return nil, fmt.Errorf("decode pending sale: %w", err)
		}
		sales = append(sales, sale)
	}
	return sales, rows.Err()
}

func (s *Store) DeletePendingSale(ctx context.Context, localKey string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM pending_sales WHERE local_key = ?", localKey)
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
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO sync_queue (type, payload, created_at) VALUES (?, ?, ?)
	`, action.Type, string(payload), action.CreatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return nil, fmt.Errorf("enqueue action: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("enqueue action id: %w", err)
	}
	action.ID = id
	queued := action
	return &queued, nil
}

func (s *Store) ListActions(ctx context.Context) ([]domain.SyncAction, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id, type, payload, created_at FROM sync_queue ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("query sync queue: %w", err)
	}
	defer rows.Close()

	actions := make([]domain.SyncAction, 0, 8)
	for rows.Next() {
		var (
			action    domain.SyncAction
			payload   string
			createdAt string
		)
		if err := rows.Scan(&action.ID, &action.Type, &payload, &createdAt); err != nil {
			return nil, fmt.Errorf("scan sync action: %w", err)
		}
		if err := json.Unmarshal([]byte(payload), &action.Payload); err != nil {
			return nil, fmt.Errorf("decode sync action %d: %w", action.ID, err)
		}
		action.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		actions = append(actions, action)
	}
	return actions, rows.Err()
}

func (s *Store) DeleteAction(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM sync_queue WHERE id = ?", id)
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

func (s *Store) Close() error {
	return s.db.Close()
}

func decodeProduct(payload string) (*domain.Product, error) {
	var product domain.Product
	if err := json.Unmarshal([]byte(payload), &product); err != nil {
		return nil, fmt.Errorf("decode product: %w", err)
	}
	return &product, nil
}

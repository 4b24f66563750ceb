package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"lapakpos/terminal/internal/domain"
)

// RequestError is a non-2xx backend reply. Reaching it still counts as the
// backend being reachable.
type RequestError struct {
	StatusCode int
	Body       string
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("backend returned %d: %s", e.StatusCode, e.Body)
}

// HTTPClient talks to the backend REST API with a bearer token.
type HTTPClient struct {
	baseURL string
	token   string
	client  *http.Client
}

func NewHTTPClient(baseURL, token string, timeout time.Duration) *HTTPClient {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &HTTPClient{
		baseURL: baseURL,
		token:   token,
		client:  &http.Client{Timeout: timeout},
	}
}

// envelope matches the backend's {"data": ...} wrapper. Some endpoints nest
// it one level deeper, some skip it entirely.
type envelope struct {
	Data json.RawMessage `json:"data"`
}

// decodePayload unwraps zero, one or two data envelopes and decodes the
// innermost payload into out.
func decodePayload(raw []byte, out any) error {
	for i := 0; i < 2; i++ {
		var env envelope
		if err := json.Unmarshal(raw, &env); err != nil || len(env.Data) == 0 {
			break
		}
		raw = env.Data
	}
	return json.Unmarshal(raw, out)
}

func (c *HTTPClient) do(ctx context.Context, method, path string, query url.Values, body any, out any) error {
	if expired, err := tokenExpired(c.token); err == nil && expired {
		return ErrAuthExpired
	}

	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(buf)
	}

	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &RequestError{StatusCode: resp.StatusCode, Body: string(raw)}
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	return decodePayload(raw, out)
}

func (c *HTTPClient) CreateSale(ctx context.Context, req CreateSaleRequest) (*Sale, error) {
	var sale Sale
	if err := c.do(ctx, http.MethodPost, "/sales", nil, req, &sale); err != nil {
		return nil, err
	}
	return &sale, nil
}

func (c *HTTPClient) ListSalesByShift(ctx context.Context, shiftID int64, perPage int) ([]Sale, error) {
	q := url.Values{}
	q.Set("shift_id", strconv.FormatInt(shiftID, 10))
	if perPage > 0 {
		q.Set("per_page", strconv.Itoa(perPage))
	}
	var sales []Sale
	if err := c.do(ctx, http.MethodGet, "/sales", q, nil, &sales); err != nil {
		return nil, err
	}
	return sales, nil
}

func (c *HTTPClient) ListSalesByDateRange(ctx context.Context, start, end time.Time, perPage int) ([]Sale, error) {
	q := url.Values{}
	q.Set("start_date", start.UTC().Format("2006-01-02"))
	q.Set("end_date", end.UTC().Format("2006-01-02"))
	if perPage > 0 {
		q.Set("per_page", strconv.Itoa(perPage))
	}
	var sales []Sale
	if err := c.do(ctx, http.MethodGet, "/sales", q, nil, &sales); err != nil {
		return nil, err
	}
	return sales, nil
}

func (c *HTTPClient) AddPayment(ctx context.Context, saleID int64, req PaymentRequest) (*Payment, error) {
	var payment Payment
	path := fmt.Sprintf("/sales/%d/payments", saleID)
	if err := c.do(ctx, http.MethodPost, path, nil, req, &payment); err != nil {
		return nil, err
	}
	return &payment, nil
}

func (c *HTTPClient) DeletePayment(ctx context.Context, saleID int64, paymentID int64) error {
	path := fmt.Sprintf("/sales/%d/payments/%d", saleID, paymentID)
	return c.do(ctx, http.MethodDelete, path, nil, nil, nil)
}

func (c *HTTPClient) CurrentShift(ctx context.Context) (*domain.Shift, error) {
	var shift domain.Shift
	if err := c.do(ctx, http.MethodGet, "/shifts/current", nil, nil, &shift); err != nil {
		return nil, err
	}
	return &shift, nil
}

func (c *HTTPClient) OpenShift(ctx context.Context) (*domain.Shift, error) {
	var shift domain.Shift
	if err := c.do(ctx, http.MethodPost, "/shifts/open", nil, nil, &shift); err != nil {
		return nil, err
	}
	return &shift, nil
}

func (c *HTTPClient) CloseShift(ctx context.Context) (*domain.Shift, error) {
	var shift domain.Shift
	if err := c.do(ctx, http.MethodPost, "/shifts/close", nil, nil, &shift); err != nil {
		return nil, err
	}
	return &shift, nil
}

func (c *HTTPClient) AvailableBatches(ctx context.Context, productID int64, warehouseID int64) ([]domain.Batch, error) {
	q := url.Values{}
	q.Set("warehouse_id", strconv.FormatInt(warehouseID, 10))
	var batches []domain.Batch
	path := fmt.Sprintf("/products/%d/available-batches", productID)
	if err := c.do(ctx, http.MethodGet, path, q, nil, &batches); err != nil {
		return nil, err
	}
	return batches, nil
}

// Health reports reachability. Any HTTP status, including a 5xx, means the
// backend answered; only transport failures count as down.
func (c *HTTPClient) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	resp.Body.Close()
	return nil
}

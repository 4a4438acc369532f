// Package remote is the HTTP and websocket client of the marketplace
// backend. It implements the same interfaces as the in-process backend, so
// the sync core runs unchanged against either.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/aristath/agrimarket/internal/domain"
)

// Client talks to the backend API
type Client struct {
	baseURL string
	client  *http.Client
	log     zerolog.Logger
}

// NewClient creates a client for the backend at baseURL
func NewClient(baseURL string, log zerolog.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 15 * time.Second},
		log:     log.With().Str("client", "backend").Logger(),
	}
}

type apiError struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// sentinelFor maps a failed response to the error taxonomy. The code sent
// by the server wins; the status is the fallback.
func sentinelFor(status int, code string) error {
	if err := domain.ErrorForCode(code); err != nil {
		return err
	}
	switch {
	case status == http.StatusNotFound:
		return domain.ErrNotFound
	case status == http.StatusConflict:
		return domain.ErrInsufficientStock
	case status >= 400 && status < 500:
		return domain.ErrValidation
	default:
		return domain.ErrNetwork
	}
}

func filterQuery(filter domain.Filter) url.Values {
	q := url.Values{}
	for col, v := range filter {
		q.Set(col, fmt.Sprint(v))
	}
	return q
}

// do sends a JSON request and decodes the JSON response into out, if set.
// Transport failures wrap ErrNetwork.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	c.log.Debug().Str("method", method).Str("path", path).Msg("Calling backend")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %w", domain.ErrNetwork, method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var apiErr apiError
		if err := json.NewDecoder(resp.Body).Decode(&apiErr); err != nil || apiErr.Error == "" {
			apiErr.Error = resp.Status
		}
		return fmt.Errorf("%w: %s %s: %s", sentinelFor(resp.StatusCode, apiErr.Code), method, path, apiErr.Error)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: failed to parse response of %s %s: %w", domain.ErrNetwork, method, path, err)
	}
	return nil
}

func tablePath(table domain.Table) string {
	return "/api/tables/" + url.PathEscape(string(table))
}

// Query returns the rows of table matching filter
func (c *Client) Query(ctx context.Context, table domain.Table, filter domain.Filter) ([]domain.Row, error) {
	var rows []domain.Row
	if err := c.do(ctx, http.MethodGet, tablePath(table), filterQuery(filter), nil, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// Insert inserts rows and returns them as stored
func (c *Client) Insert(ctx context.Context, table domain.Table, rows []domain.Row) ([]domain.Row, error) {
	var inserted []domain.Row
	body := map[string]any{"rows": rows}
	if err := c.do(ctx, http.MethodPost, tablePath(table), nil, body, &inserted); err != nil {
		return nil, err
	}
	return inserted, nil
}

// Update applies patch to the rows matching filter
func (c *Client) Update(ctx context.Context, table domain.Table, patch domain.Row, filter domain.Filter) ([]domain.Row, error) {
	var updated []domain.Row
	body := map[string]any{"patch": patch, "filter": filter}
	if err := c.do(ctx, http.MethodPatch, tablePath(table), nil, body, &updated); err != nil {
		return nil, err
	}
	return updated, nil
}

// Delete removes the rows matching filter
func (c *Client) Delete(ctx context.Context, table domain.Table, filter domain.Filter) error {
	return c.do(ctx, http.MethodDelete, tablePath(table), filterQuery(filter), nil, nil)
}

// DecrementStock calls the atomic conditional decrement
func (c *Client) DecrementStock(ctx context.Context, productID string, quantity decimal.Decimal) (decimal.Decimal, error) {
	var resp struct {
		NewAvailable decimal.Decimal `json:"new_available"`
	}
	body := map[string]any{"product_id": productID, "quantity": quantity}
	if err := c.do(ctx, http.MethodPost, "/api/rpc/decrement_stock", nil, body, &resp); err != nil {
		return decimal.Zero, err
	}
	return resp.NewAvailable, nil
}

// PlaceOrder places an order in one server-side transaction
func (c *Client) PlaceOrder(ctx context.Context, req domain.OrderRequest) (domain.Placement, error) {
	var placement domain.Placement
	if err := c.do(ctx, http.MethodPost, "/api/rpc/place_order", nil, req, &placement); err != nil {
		return domain.Placement{}, err
	}
	return placement, nil
}

// MarkProductDepleted moves a product to its unavailable state
func (c *Client) MarkProductDepleted(ctx context.Context, productID string) error {
	body := map[string]any{"product_id": productID}
	return c.do(ctx, http.MethodPost, "/api/rpc/mark_depleted", nil, body, nil)
}

// Health reports whether the backend answers its health check
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/health", nil, nil, nil)
}

// Package exchange implements the wire client for the derivatives venue:
// a REST client for account/position truth and order submission, and a
// websocket stream for the push feed.
package exchange

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/rustyeddy/perptrader/market"
)

// Client is the surface the core depends on. The REST implementation below
// satisfies it; tests substitute fakes.
type Client interface {
	GetAccount(ctx context.Context) (AccountState, error)
	ListPositions(ctx context.Context) ([]PositionSnapshot, error)
	SubmitOrder(ctx context.Context, req OrderRequest) (OrderResult, error)
}

// RESTClient talks to the exchange's private REST API.
type RESTClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewRESTClient builds a client with a request timeout and a client-side
// rate limit so bursts of reconciliation pulls cannot trip the exchange's
// own limiter.
func NewRESTClient(baseURL, apiKey string, timeout time.Duration, rps float64) *RESTClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if rps <= 0 {
		rps = 5
	}
	return &RESTClient{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(rate.Limit(rps), int(rps)+1),
	}
}

type accountPayload struct {
	Equity     string `json:"equity"`
	MarginUsed string `json:"marginUsed"`
	Timestamp  int64  `json:"ts"`
}

type positionPayload struct {
	InstID        string `json:"instId"`
	PosSide       string `json:"posSide"` // "long" | "short"
	Size          string `json:"sz"`
	EntryPrice    string `json:"avgPx"`
	MarkPrice     string `json:"markPx"`
	UnrealizedPnL string `json:"upl"`
	Leverage      string `json:"lever"`
	MarginMode    string `json:"mgnMode"`
}

type orderPayload struct {
	OrderID     string `json:"ordId"`
	ClientKey   string `json:"clientOrderId"`
	Status      string `json:"state"`
	FilledUnits string `json:"accFillSz"`
	FillPrice   string `json:"avgPx"`
	Timestamp   int64  `json:"ts"`
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"msg"`
}

// GetAccount fetches the current equity figure. Consumers must treat the
// returned Time as the verification timestamp, not time.Now().
func (c *RESTClient) GetAccount(ctx context.Context) (AccountState, error) {
	var payload accountPayload
	if err := c.do(ctx, http.MethodGet, "/api/v1/account", nil, &payload); err != nil {
		return AccountState{}, err
	}

	equity, err := parseFloat(payload.Equity)
	if err != nil {
		return AccountState{}, fmt.Errorf("parse equity: %w", err)
	}
	used, err := parseFloat(payload.MarginUsed)
	if err != nil {
		return AccountState{}, fmt.Errorf("parse margin used: %w", err)
	}

	return AccountState{
		Equity:     equity,
		MarginUsed: used,
		Time:       time.UnixMilli(payload.Timestamp).UTC(),
	}, nil
}

// ListPositions returns the exchange's authoritative open-position list.
func (c *RESTClient) ListPositions(ctx context.Context) ([]PositionSnapshot, error) {
	var payload []positionPayload
	if err := c.do(ctx, http.MethodGet, "/api/v1/positions", nil, &payload); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	out := make([]PositionSnapshot, 0, len(payload))
	for _, p := range payload {
		size, err := parseFloat(p.Size)
		if err != nil {
			return nil, fmt.Errorf("parse size for %s: %w", p.InstID, err)
		}
		if p.PosSide == "short" {
			size = -size
		}
		entry, err := parseFloat(p.EntryPrice)
		if err != nil {
			return nil, fmt.Errorf("parse entry for %s: %w", p.InstID, err)
		}
		mark, _ := parseFloat(p.MarkPrice)
		upl, _ := parseFloat(p.UnrealizedPnL)
		lever, _ := parseFloat(p.Leverage)

		out = append(out, PositionSnapshot{
			Symbol:        trimContract(p.InstID),
			Units:         size,
			EntryPrice:    entry,
			MarkPrice:     mark,
			UnrealizedPnL: upl,
			Leverage:      lever,
			MarginMode:    p.MarginMode,
			Retrieved:     now,
		})
	}
	return out, nil
}

// SubmitOrder posts an order. The client key rides in both body and header
// so a retried submission after a timeout is recognized exchange-side.
func (c *RESTClient) SubmitOrder(ctx context.Context, req OrderRequest) (OrderResult, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return OrderResult{}, fmt.Errorf("encode order: %w", err)
	}

	var payload orderPayload
	if err := c.do(ctx, http.MethodPost, "/api/v1/orders", body, &payload); err != nil {
		return OrderResult{}, err
	}

	filled, _ := parseFloat(payload.FilledUnits)
	price, _ := parseFloat(payload.FillPrice)

	return OrderResult{
		OrderID:     payload.OrderID,
		ClientKey:   payload.ClientKey,
		Status:      payload.Status,
		FilledUnits: filled,
		FillPrice:   price,
		Time:        time.UnixMilli(payload.Timestamp).UTC(),
	}, nil
}

func (c *RESTClient) do(ctx context.Context, method, path string, body []byte, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransient, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		raw, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%w: status %d: %s", ErrTransient, resp.StatusCode, raw)
	default:
		var ae apiError
		raw, _ := io.ReadAll(resp.Body)
		if err := json.Unmarshal(raw, &ae); err != nil || ae.Code == "" {
			ae = apiError{Code: strconv.Itoa(resp.StatusCode), Message: string(raw)}
		}
		return &RejectionError{Code: ae.Code, Reason: ae.Message}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// trimContract strips the wire contract suffix back to the internal symbol.
func trimContract(instID string) string {
	for _, meta := range market.Instruments {
		full := meta.Name + meta.ContractSuffix
		if instID == full {
			return meta.Name
		}
	}
	return instID
}

func parseFloat(s string) (float64, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.ParseFloat(s, 64)
}

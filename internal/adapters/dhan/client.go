// Package dhan implements the broker ports against the Dhan HQ v2 API:
// order management over REST and the market/order-update websocket feeds.
// Wire-level SDK compatibility is deliberately thin; the core only relies on
// the narrow BrokerGateway surface.
package dhan

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jravi291980-star/ravinderalgo/internal/domain"
	"github.com/jravi291980-star/ravinderalgo/internal/ports"
)

const (
	defaultBaseURL = "https://api.dhan.co/v2"

	exchangeSegmentNSE = "NSE_EQ"
	productIntraday    = "INTRADAY"
	validityDay        = "DAY"
)

// Client implements ports.BrokerGateway over the Dhan REST API.
type Client struct {
	baseURL    string
	clientID   string
	httpClient *http.Client
	logger     ports.Logger

	mu    sync.RWMutex
	token string
}

// Config holds configuration for the Dhan client.
type Config struct {
	BaseURL     string
	ClientID    string
	AccessToken string // May be empty at boot; SetAccessToken arms it later
	Logger      ports.Logger
	Timeout     time.Duration
}

// New creates a Dhan API client.
func New(cfg Config) (*Client, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for dhan client")
	}
	if cfg.ClientID == "" {
		return nil, fmt.Errorf("%w: dhan client id is required", ports.ErrConfigurationError)
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:    baseURL,
		clientID:   cfg.ClientID,
		token:      cfg.AccessToken,
		httpClient: &http.Client{Timeout: timeout},
		logger:     cfg.Logger,
	}, nil
}

// SetAccessToken re-arms the client with a fresh session token.
func (c *Client) SetAccessToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

func (c *Client) accessToken() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

type placeOrderRequest struct {
	DhanClientID    string  `json:"dhanClientId"`
	CorrelationID   string  `json:"correlationId"`
	TransactionType string  `json:"transactionType"`
	ExchangeSegment string  `json:"exchangeSegment"`
	ProductType     string  `json:"productType"`
	OrderType       string  `json:"orderType"`
	Validity        string  `json:"validity"`
	SecurityID      string  `json:"securityId"`
	Quantity        int     `json:"quantity"`
	Price           float64 `json:"price"`
	TriggerPrice    float64 `json:"triggerPrice,omitempty"`
}

type orderResponse struct {
	OrderID     string `json:"orderId"`
	OrderStatus string `json:"orderStatus"`
}

type orderRecord struct {
	OrderID         string  `json:"orderId"`
	SecurityID      string  `json:"securityId"`
	TransactionType string  `json:"transactionType"`
	Quantity        int     `json:"quantity"`
	OrderStatus     string  `json:"orderStatus"`
	AveragePrice    float64 `json:"averageTradedPrice"`
	CreateTime      string  `json:"createTime"`
}

// PlaceOrder submits an order and returns the broker order id.
func (c *Client) PlaceOrder(ctx context.Context, req ports.OrderRequest) (string, error) {
	correlationID := req.CorrelationID
	if correlationID == "" {
		correlationID = uuid.NewString()
	}

	body := placeOrderRequest{
		DhanClientID:    c.clientID,
		CorrelationID:   correlationID,
		TransactionType: string(req.Side),
		ExchangeSegment: exchangeSegmentNSE,
		ProductType:     productIntraday,
		OrderType:       string(req.Type),
		Validity:        validityDay,
		SecurityID:      req.SecurityID,
		Quantity:        req.Quantity,
		TriggerPrice:    req.TriggerPrice,
	}

	var resp orderResponse
	if err := c.do(ctx, http.MethodPost, "/orders", body, &resp); err != nil {
		return "", fmt.Errorf("%w: %v", ports.ErrOrderPlacementFailed, err)
	}
	if resp.OrderID == "" {
		return "", fmt.Errorf("%w: broker returned no order id (status %q)", ports.ErrOrderPlacementFailed, resp.OrderStatus)
	}

	c.logger.Debug(ctx, "Order placed", map[string]interface{}{
		"orderID": resp.OrderID, "side": string(req.Side), "securityID": req.SecurityID,
		"qty": req.Quantity, "type": string(req.Type), "correlationID": correlationID,
	})
	return resp.OrderID, nil
}

// CancelOrder requests cancellation of a live order.
func (c *Client) CancelOrder(ctx context.Context, orderID string) error {
	if err := c.do(ctx, http.MethodDelete, "/orders/"+orderID, nil, nil); err != nil {
		return err
	}
	return nil
}

// ListOrders returns all of today's orders.
func (c *Client) ListOrders(ctx context.Context) ([]ports.OrderDetail, error) {
	var records []orderRecord
	if err := c.do(ctx, http.MethodGet, "/orders", nil, &records); err != nil {
		return nil, err
	}

	details := make([]ports.OrderDetail, 0, len(records))
	for _, rec := range records {
		placedAt, _ := time.Parse("2006-01-02 15:04:05", rec.CreateTime)
		details = append(details, ports.OrderDetail{
			OrderID:      rec.OrderID,
			SecurityID:   rec.SecurityID,
			Side:         domain.OrderSide(rec.TransactionType),
			Quantity:     rec.Quantity,
			Status:       mapOrderStatus(rec.OrderStatus),
			AvgFillPrice: rec.AveragePrice,
			PlacedAt:     placedAt,
		})
	}
	return details, nil
}

func mapOrderStatus(s string) domain.OrderStatus {
	switch s {
	case "TRADED":
		return domain.OrderStatusTraded
	case "CANCELLED":
		return domain.OrderStatusCancelled
	case "REJECTED":
		return domain.OrderStatusRejected
	case "EXPIRED":
		return domain.OrderStatusExpired
	default:
		return domain.OrderStatusPending
	}
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	token := c.accessToken()
	if token == "" {
		return fmt.Errorf("%w: no access token set", ports.ErrAuthenticationFailed)
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("access-token", token)
	req.Header.Set("client-id", c.clientID)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ports.ErrBrokerUnavailable, err)
	}
	defer resp.Body.Close()

	if err := c.checkStatus(resp); err != nil {
		return err
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decoding %s %s response: %w", method, path, err)
		}
	}
	return nil
}

// checkStatus translates HTTP failures into the standard port errors.
func (c *Client) checkStatus(resp *http.Response) error {
	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return ports.ErrAuthenticationFailed
	case resp.StatusCode == http.StatusTooManyRequests:
		return ports.ErrRateLimited
	case resp.StatusCode == http.StatusNotFound:
		return ports.ErrOrderNotFound
	default:
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: HTTP %d: %s", ports.ErrBrokerUnavailable, resp.StatusCode, string(detail))
	}
}

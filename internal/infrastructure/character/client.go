// Package character talks to the character service that owns character inventories and purses.
package character

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"time"

	"go.opentelemetry.io/otel/propagation"

	"github.com/tabletop-shop/shop-engine/internal/domain"
	"github.com/tabletop-shop/shop-engine/pkg/logging"
	"github.com/tabletop-shop/shop-engine/pkg/metrics"
	"github.com/tabletop-shop/shop-engine/pkg/resilience"
	"github.com/tabletop-shop/shop-engine/pkg/tracing"
)

var errUpstream = errors.New("character service unavailable")

// Config holds character service client configuration
type Config struct {
	BaseURL string
	Timeout time.Duration
	Retry   *resilience.RetryConfig
	Breaker *resilience.CircuitBreakerConfig
}

// DefaultConfig reads CHARACTER_SERVICE_URL
func DefaultConfig() *Config {
	baseURL := os.Getenv("CHARACTER_SERVICE_URL")
	if baseURL == "" {
		baseURL = "http://localhost:8030"
	}

	retry := resilience.DefaultRetryConfig()
	retry.RetryableErrors = func(err error) bool {
		return errors.Is(err, errUpstream)
	}

	return &Config{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
		Retry:   retry,
		Breaker: resilience.DefaultCircuitBreakerConfig("character-service"),
	}
}

// Client implements domain.InventoryExtractor and domain.CurrencySettler over HTTP
type Client struct {
	baseURL    string
	httpClient *http.Client
	breaker    *resilience.CircuitBreaker
	retry      *resilience.RetryConfig
	logger     *logging.Logger
}

// NewClient creates a character service client; m may be nil
func NewClient(config *Config, logger *logging.Logger, m *metrics.Metrics) *Client {
	defaults := DefaultConfig()
	if config.Retry == nil {
		config.Retry = defaults.Retry
	}
	if config.Breaker == nil {
		config.Breaker = defaults.Breaker
	}
	if config.Timeout == 0 {
		config.Timeout = defaults.Timeout
	}

	logger = logger.WithComponent("character-client")
	return &Client{
		baseURL:    config.BaseURL,
		httpClient: &http.Client{Timeout: config.Timeout},
		breaker:    resilience.NewCircuitBreaker(config.Breaker, logger.Logger, m),
		retry:      config.Retry,
		logger:     logger,
	}
}

type response struct {
	status int
	body   []byte
}

// do sends one request through the retry loop and the circuit breaker.
// Transport failures and 5xx answers are retried and count against the breaker;
// every other status is handed back to the caller to interpret.
func (c *Client) do(ctx context.Context, method, path string, payload any, headers map[string]string) (*response, error) {
	var body []byte
	if payload != nil {
		var err error
		if body, err = json.Marshal(payload); err != nil {
			return nil, fmt.Errorf("failed to encode request: %w", err)
		}
	}

	return resilience.RetryWithResult(ctx, c.retry, func() (*response, error) {
		result, err := c.breaker.Execute(ctx, func() (interface{}, error) {
			req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(body))
			if err != nil {
				return nil, fmt.Errorf("failed to create request: %w", err)
			}
			req.Header.Set("Accept", "application/json")
			if body != nil {
				req.Header.Set("Content-Type", "application/json")
			}
			for k, v := range headers {
				req.Header.Set(k, v)
			}
			tracing.InjectTraceContext(ctx, propagation.HeaderCarrier(req.Header))

			resp, err := c.httpClient.Do(req)
			if err != nil {
				return nil, fmt.Errorf("%w: %v", errUpstream, err)
			}
			defer resp.Body.Close()

			data, err := io.ReadAll(resp.Body)
			if err != nil {
				return nil, fmt.Errorf("%w: failed to read response: %v", errUpstream, err)
			}
			if resp.StatusCode >= http.StatusInternalServerError {
				return nil, fmt.Errorf("%w: status %d", errUpstream, resp.StatusCode)
			}
			return &response{status: resp.StatusCode, body: data}, nil
		})
		if err != nil {
			return nil, err
		}
		return result.(*response), nil
	})
}

type inventoryItemDTO struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Quantity int    `json:"quantity"`
	Price    string `json:"price"`
	Category string `json:"category,omitempty"`
	Rarity   string `json:"rarity,omitempty"`
}

type inventoryResponse struct {
	CharacterID string             `json:"characterId"`
	Items       []inventoryItemDTO `json:"items"`
}

// ExtractSellableItems lists the items characterID holds. Entries with no
// quantity or an unreadable price are skipped.
func (c *Client) ExtractSellableItems(ctx context.Context, characterID string) ([]domain.SellableItem, error) {
	path := fmt.Sprintf("/api/v1/characters/%s/inventory", url.PathEscape(characterID))

	resp, err := c.do(ctx, http.MethodGet, path, nil, nil)
	if err != nil {
		c.logger.Error("Failed to fetch inventory", "characterId", characterID, "error", err)
		return nil, fmt.Errorf("failed to fetch inventory: %w", err)
	}

	switch resp.status {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, fmt.Errorf("%w: %s", domain.ErrCharacterNotFound, characterID)
	default:
		return nil, fmt.Errorf("character service returned status %d", resp.status)
	}

	var inv inventoryResponse
	if err := json.Unmarshal(resp.body, &inv); err != nil {
		return nil, fmt.Errorf("failed to decode inventory response: %w", err)
	}

	items := make([]domain.SellableItem, 0, len(inv.Items))
	for _, it := range inv.Items {
		if it.Quantity <= 0 {
			continue
		}
		price, err := domain.ParseAmount(it.Price)
		if err != nil {
			c.logger.Warn("Skipping inventory item with unreadable price", "characterId", characterID, "itemId", it.ID, "price", it.Price)
			continue
		}
		items = append(items, domain.SellableItem{
			ID:       it.ID,
			Name:     it.Name,
			Quantity: it.Quantity,
			Price:    price,
			Category: it.Category,
			Rarity:   domain.Rarity(it.Rarity),
		})
	}
	return items, nil
}

type settlementLineDTO struct {
	ItemID   string `json:"itemId"`
	Name     string `json:"name"`
	Quantity int    `json:"quantity"`
	Price    string `json:"price"`
}

type settlementRequest struct {
	Reference string              `json:"reference"`
	NetCopper int                 `json:"netCopper"`
	Bought    []settlementLineDTO `json:"bought"`
	Sold      []settlementLineDTO `json:"sold"`
}

type settlementResponse struct {
	Before string `json:"before"`
	After  string `json:"after"`
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ApplySettlement moves coins and items on the character. The reference is sent
// as the idempotency key so a retried settlement is applied once.
func (c *Client) ApplySettlement(ctx context.Context, s domain.Settlement) (domain.SettlementResult, error) {
	req := settlementRequest{
		Reference: s.Reference,
		NetCopper: s.NetCopper,
		Bought:    make([]settlementLineDTO, 0, len(s.Bought)),
		Sold:      make([]settlementLineDTO, 0, len(s.Sold)),
	}
	for _, l := range s.Bought {
		req.Bought = append(req.Bought, settlementLineDTO{ItemID: l.ItemID, Name: l.Name, Quantity: l.Quantity, Price: l.Price.String()})
	}
	for _, l := range s.Sold {
		req.Sold = append(req.Sold, settlementLineDTO{ItemID: l.ItemID, Name: l.Name, Quantity: l.Quantity, Price: l.Price.String()})
	}

	path := fmt.Sprintf("/api/v1/characters/%s/settlements", url.PathEscape(s.CharacterID))
	resp, err := c.do(ctx, http.MethodPost, path, req, map[string]string{"Idempotency-Key": s.Reference})
	if err != nil {
		c.logger.Error("Failed to apply settlement", "characterId", s.CharacterID, "reference", s.Reference, "error", err)
		return domain.SettlementResult{}, fmt.Errorf("failed to apply settlement: %w", err)
	}

	switch resp.status {
	case http.StatusOK, http.StatusCreated:
	case http.StatusNotFound:
		return domain.SettlementResult{}, fmt.Errorf("%w: %s", domain.ErrCharacterNotFound, s.CharacterID)
	case http.StatusPaymentRequired, http.StatusConflict, http.StatusUnprocessableEntity:
		var e errorResponse
		_ = json.Unmarshal(resp.body, &e)
		return domain.SettlementResult{}, fmt.Errorf("%w: %s", domain.ErrInsufficientFunds, e.Message)
	default:
		return domain.SettlementResult{}, fmt.Errorf("character service returned status %d", resp.status)
	}

	var out settlementResponse
	if err := json.Unmarshal(resp.body, &out); err != nil {
		return domain.SettlementResult{}, fmt.Errorf("failed to decode settlement response: %w", err)
	}

	var result domain.SettlementResult
	if result.Before, err = parseOptionalAmount(out.Before); err != nil {
		return domain.SettlementResult{}, err
	}
	if result.After, err = parseOptionalAmount(out.After); err != nil {
		return domain.SettlementResult{}, err
	}

	c.logger.Info("Settlement applied", "characterId", s.CharacterID, "reference", s.Reference, "netCopper", s.NetCopper)
	return result, nil
}

func parseOptionalAmount(s string) (domain.Amount, error) {
	if s == "" {
		return domain.Amount{}, nil
	}
	a, err := domain.ParseAmount(s)
	if err != nil {
		return domain.Amount{}, fmt.Errorf("failed to decode settlement amount: %w", err)
	}
	return a, nil
}

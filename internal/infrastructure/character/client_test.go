package character

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tabletop-shop/shop-engine/internal/domain"
	"github.com/tabletop-shop/shop-engine/pkg/logging"
	"github.com/tabletop-shop/shop-engine/pkg/resilience"
)

func testClient(baseURL string) *Client {
	config := DefaultConfig()
	config.BaseURL = baseURL
	config.Retry.InitialDelay = time.Millisecond
	config.Retry.MaxDelay = time.Millisecond
	return NewClient(config, logging.Discard(), nil)
}

func TestClient_ExtractSellableItems(t *testing.T) {
	tests := []struct {
		name        string
		handler     http.HandlerFunc
		wantIDs     []string
		wantErr     error
		errContains string
	}{
		{
			name: "returns items with stock and a readable price",
			handler: func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodGet, r.Method)
				assert.Equal(t, "/api/v1/characters/thorin/inventory", r.URL.Path)
				assert.Equal(t, "application/json", r.Header.Get("Accept"))
				w.Header().Set("Content-Type", "application/json")
				w.Write([]byte(`{
					"characterId": "thorin",
					"items": [
						{"id": "warhammer", "name": "Warhammer", "quantity": 1, "price": "15gp", "category": "Weapons"},
						{"id": "empty-flask", "name": "Empty Flask", "quantity": 0, "price": "2cp"},
						{"id": "odd-gem", "name": "Odd Gem", "quantity": 1, "price": "priceless"},
						{"id": "gem", "name": "Gem", "quantity": 3, "price": "1pp 5gp", "rarity": "uncommon"}
					]
				}`))
			},
			wantIDs: []string{"warhammer", "gem"},
		},
		{
			name: "unknown character",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusNotFound)
			},
			wantErr: domain.ErrCharacterNotFound,
		},
		{
			name: "unexpected status",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusForbidden)
			},
			errContains: "returned status 403",
		},
		{
			name: "malformed body",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(`{"items": [`))
			},
			errContains: "failed to decode",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(tt.handler)
			defer server.Close()

			items, err := testClient(server.URL).ExtractSellableItems(context.Background(), "thorin")

			switch {
			case tt.wantErr != nil:
				assert.ErrorIs(t, err, tt.wantErr)
			case tt.errContains != "":
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errContains)
			default:
				require.NoError(t, err)
				var ids []string
				for _, it := range items {
					ids = append(ids, it.ID)
				}
				assert.Equal(t, tt.wantIDs, ids)
				assert.Equal(t, domain.Amount{PP: 1, GP: 5}, items[1].Price)
				assert.Equal(t, domain.RarityUncommon, items[1].Rarity)
			}
		})
	}
}

func TestClient_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"items": [{"id": "rope", "name": "Rope", "quantity": 1, "price": "1gp"}]}`))
	}))
	defer server.Close()

	items, err := testClient(server.URL).ExtractSellableItems(context.Background(), "thorin")
	require.NoError(t, err)
	assert.Len(t, items, 1)
	assert.Equal(t, int32(3), calls.Load())
}

func TestClient_DoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	_, err := testClient(server.URL).ExtractSellableItems(context.Background(), "ghost")
	assert.ErrorIs(t, err, domain.ErrCharacterNotFound)
	assert.Equal(t, int32(1), calls.Load())
}

func TestClient_CircuitOpensAfterRepeatedFailures(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	config := DefaultConfig()
	config.BaseURL = server.URL
	config.Retry.MaxAttempts = 1
	config.Breaker.FailureThreshold = 2
	client := NewClient(config, logging.Discard(), nil)

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		_, err := client.ExtractSellableItems(ctx, "thorin")
		require.Error(t, err)
	}

	_, err := client.ExtractSellableItems(ctx, "thorin")
	assert.ErrorIs(t, err, resilience.ErrCircuitOpen)
	assert.Equal(t, int32(2), calls.Load())
}

func TestClient_ApplySettlement(t *testing.T) {
	settlement := domain.Settlement{
		Reference:   "receipt-1",
		CharacterID: "thorin",
		NetCopper:   -1450,
		Bought: []domain.LineItem{
			{ItemID: "longsword", Name: "Longsword", Quantity: 1, Price: domain.Amount{GP: 15}},
		},
		Sold: []domain.SellLineItem{
			{LineItem: domain.LineItem{ItemID: "gem", Name: "Gem", Quantity: 1, Price: domain.Amount{SP: 5}}, CharacterID: "thorin"},
		},
	}

	t.Run("sends the settlement with an idempotency key", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "/api/v1/characters/thorin/settlements", r.URL.Path)
			assert.Equal(t, "receipt-1", r.Header.Get("Idempotency-Key"))
			assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

			var body settlementRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, -1450, body.NetCopper)
			require.Len(t, body.Bought, 1)
			assert.Equal(t, "15gp", body.Bought[0].Price)
			require.Len(t, body.Sold, 1)
			assert.Equal(t, "5sp", body.Sold[0].Price)

			w.WriteHeader(http.StatusCreated)
			w.Write([]byte(`{"before": "20gp", "after": "5gp 5sp"}`))
		}))
		defer server.Close()

		result, err := testClient(server.URL).ApplySettlement(context.Background(), settlement)
		require.NoError(t, err)
		assert.Equal(t, domain.Amount{GP: 20}, result.Before)
		assert.Equal(t, domain.Amount{GP: 5, SP: 5}, result.After)
	})

	t.Run("insufficient funds", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusPaymentRequired)
			w.Write([]byte(`{"code": "INSUFFICIENT_FUNDS", "message": "purse holds 3gp"}`))
		}))
		defer server.Close()

		_, err := testClient(server.URL).ApplySettlement(context.Background(), settlement)
		require.ErrorIs(t, err, domain.ErrInsufficientFunds)
		assert.Contains(t, err.Error(), "purse holds 3gp")
	})

	t.Run("missing character", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		}))
		defer server.Close()

		_, err := testClient(server.URL).ApplySettlement(context.Background(), settlement)
		assert.ErrorIs(t, err, domain.ErrCharacterNotFound)
	})
}

package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tabletop-shop/shop-engine/internal/application"
	"github.com/tabletop-shop/shop-engine/internal/domain"
	"github.com/tabletop-shop/shop-engine/pkg/logging"
	"github.com/tabletop-shop/shop-engine/pkg/middleware"
)

type mockStockService struct {
	StockService

	createShopFn      func(ctx context.Context, cmd application.CreateShopCommand) (*application.ShopDTO, error)
	getShopFn         func(ctx context.Context, shopID string) (*application.ShopDTO, error)
	listShopsFn       func(ctx context.Context) ([]*application.ShopDTO, error)
	addItemFn         func(ctx context.Context, cmd application.AddItemCommand) (*application.StockItemDTO, error)
	removeItemFn      func(ctx context.Context, cmd application.RemoveItemCommand) (*application.StockChangeDTO, error)
	setMaxStockFn     func(ctx context.Context, cmd application.SetMaxStockCommand) (*application.StockChangeDTO, error)
	setQuantityFn     func(ctx context.Context, cmd application.SetQuantityCommand) (*application.StockChangeDTO, error)
	generateStockFn   func(ctx context.Context, cmd application.GenerateStockCommand) (*application.GenerationResultDTO, error)
	formatInventoryFn func(ctx context.Context, shopID string) (*application.InventoryDTO, error)
}

func (m *mockStockService) CreateShop(ctx context.Context, cmd application.CreateShopCommand) (*application.ShopDTO, error) {
	if m.createShopFn == nil {
		panic("CreateShop not implemented")
	}
	return m.createShopFn(ctx, cmd)
}

func (m *mockStockService) GetShop(ctx context.Context, shopID string) (*application.ShopDTO, error) {
	if m.getShopFn == nil {
		panic("GetShop not implemented")
	}
	return m.getShopFn(ctx, shopID)
}

func (m *mockStockService) ListShops(ctx context.Context) ([]*application.ShopDTO, error) {
	if m.listShopsFn == nil {
		panic("ListShops not implemented")
	}
	return m.listShopsFn(ctx)
}

func (m *mockStockService) AddItem(ctx context.Context, cmd application.AddItemCommand) (*application.StockItemDTO, error) {
	if m.addItemFn == nil {
		panic("AddItem not implemented")
	}
	return m.addItemFn(ctx, cmd)
}

func (m *mockStockService) RemoveItem(ctx context.Context, cmd application.RemoveItemCommand) (*application.StockChangeDTO, error) {
	if m.removeItemFn == nil {
		panic("RemoveItem not implemented")
	}
	return m.removeItemFn(ctx, cmd)
}

func (m *mockStockService) SetMaxStock(ctx context.Context, cmd application.SetMaxStockCommand) (*application.StockChangeDTO, error) {
	if m.setMaxStockFn == nil {
		panic("SetMaxStock not implemented")
	}
	return m.setMaxStockFn(ctx, cmd)
}

func (m *mockStockService) SetQuantity(ctx context.Context, cmd application.SetQuantityCommand) (*application.StockChangeDTO, error) {
	if m.setQuantityFn == nil {
		panic("SetQuantity not implemented")
	}
	return m.setQuantityFn(ctx, cmd)
}

func (m *mockStockService) GenerateStock(ctx context.Context, cmd application.GenerateStockCommand) (*application.GenerationResultDTO, error) {
	if m.generateStockFn == nil {
		panic("GenerateStock not implemented")
	}
	return m.generateStockFn(ctx, cmd)
}

func (m *mockStockService) FormatInventory(ctx context.Context, shopID string) (*application.InventoryDTO, error) {
	if m.formatInventoryFn == nil {
		panic("FormatInventory not implemented")
	}
	return m.formatInventoryFn(ctx, shopID)
}

type routeRegistrar interface {
	RegisterRoutes(router *gin.RouterGroup)
}

func newTestRouter(registrars ...routeRegistrar) *gin.Engine {
	gin.SetMode(gin.TestMode)
	middleware.InitValidator()
	RegisterDomainErrors()

	router := gin.New()
	api := router.Group("/api/v1")
	for _, r := range registrars {
		r.RegisterRoutes(api)
	}
	return router
}

func performRequest(router *gin.Engine, method, path, body string, headers ...string) *httptest.ResponseRecorder {
	req, _ := http.NewRequest(method, path, bytes.NewBufferString(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) middleware.APIErrorResponse {
	t.Helper()
	var resp middleware.APIErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func newShopRouter(service StockService) *gin.Engine {
	return newTestRouter(NewShopHandlers(service, logging.Discard()))
}

func TestCreateShop(t *testing.T) {
	t.Run("owner defaults to acting user", func(t *testing.T) {
		var got application.CreateShopCommand
		router := newShopRouter(&mockStockService{
			createShopFn: func(ctx context.Context, cmd application.CreateShopCommand) (*application.ShopDTO, error) {
				got = cmd
				return &application.ShopDTO{ShopID: cmd.ShopID, Name: cmd.Name, OwnerID: cmd.OwnerID}, nil
			},
		})

		rec := performRequest(router, http.MethodPost, "/api/v1/shops",
			`{"shopId":"smithy","name":"The Anvil","sellModifier":0.5}`, UserHeader, "dm-1")

		assert.Equal(t, http.StatusCreated, rec.Code)
		assert.Equal(t, "dm-1", got.OwnerID)
		assert.Equal(t, 0.5, got.SellModifier)
	})

	t.Run("missing name", func(t *testing.T) {
		router := newShopRouter(&mockStockService{})

		rec := performRequest(router, http.MethodPost, "/api/v1/shops", `{"shopId":"smithy"}`)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		resp := decodeError(t, rec)
		assert.Equal(t, "VALIDATION_ERROR", resp.Code)
		assert.Contains(t, resp.Details, "name")
	})

	t.Run("modifier out of range", func(t *testing.T) {
		router := newShopRouter(&mockStockService{})

		rec := performRequest(router, http.MethodPost, "/api/v1/shops", `{"shopId":"smithy","name":"Anvil","sellModifier":1.5}`)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestGetShop(t *testing.T) {
	t.Run("includes rendered inventory", func(t *testing.T) {
		router := newShopRouter(&mockStockService{
			getShopFn: func(ctx context.Context, shopID string) (*application.ShopDTO, error) {
				return &application.ShopDTO{ShopID: shopID, Name: "The Anvil"}, nil
			},
			formatInventoryFn: func(ctx context.Context, shopID string) (*application.InventoryDTO, error) {
				return &application.InventoryDTO{ShopID: shopID, Rendered: "Weapons\n  Longsword x2"}, nil
			},
		})

		rec := performRequest(router, http.MethodGet, "/api/v1/shops/smithy", "")

		require.Equal(t, http.StatusOK, rec.Code)
		var resp map[string]any
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "smithy", resp["shopId"])
		assert.Equal(t, "Weapons\n  Longsword x2", resp["inventory"])
	})

	t.Run("unknown shop", func(t *testing.T) {
		router := newShopRouter(&mockStockService{
			getShopFn: func(ctx context.Context, shopID string) (*application.ShopDTO, error) {
				return nil, fmt.Errorf("%w: %s", domain.ErrShopNotConfigured, shopID)
			},
		})

		rec := performRequest(router, http.MethodGet, "/api/v1/shops/nowhere", "")

		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
		assert.Equal(t, "SHOP_NOT_CONFIGURED", decodeError(t, rec).Code)
	})
}

func TestFormatInventory_PlainText(t *testing.T) {
	router := newShopRouter(&mockStockService{
		formatInventoryFn: func(ctx context.Context, shopID string) (*application.InventoryDTO, error) {
			return &application.InventoryDTO{ShopID: shopID, Rendered: "(empty)"}, nil
		},
	})

	rec := performRequest(router, http.MethodGet, "/api/v1/shops/smithy/inventory", "", "Accept", "text/plain")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "(empty)", rec.Body.String())
}

func TestListShops(t *testing.T) {
	router := newShopRouter(&mockStockService{
		listShopsFn: func(ctx context.Context) ([]*application.ShopDTO, error) {
			return []*application.ShopDTO{{ShopID: "a"}, {ShopID: "b"}}, nil
		},
	})

	rec := performRequest(router, http.MethodGet, "/api/v1/shops", "")

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Total int `json:"total"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Total)
}

func TestAddItem(t *testing.T) {
	t.Run("custom price is parsed", func(t *testing.T) {
		var got application.AddItemCommand
		router := newShopRouter(&mockStockService{
			addItemFn: func(ctx context.Context, cmd application.AddItemCommand) (*application.StockItemDTO, error) {
				got = cmd
				return &application.StockItemDTO{ItemID: cmd.ItemID, Quantity: cmd.Quantity}, nil
			},
		})

		rec := performRequest(router, http.MethodPost, "/api/v1/shops/smithy/items",
			`{"itemId":"longsword","quantity":2,"price":"12gp 5sp"}`, UserHeader, "dm-1")

		require.Equal(t, http.StatusCreated, rec.Code)
		require.NotNil(t, got.CustomPrice)
		assert.Equal(t, 1250, got.CustomPrice.ToBaseUnits())
		assert.Equal(t, "smithy", got.ShopID)
		assert.Equal(t, "dm-1", got.UserID)
	})

	t.Run("catalog price when omitted", func(t *testing.T) {
		var got application.AddItemCommand
		router := newShopRouter(&mockStockService{
			addItemFn: func(ctx context.Context, cmd application.AddItemCommand) (*application.StockItemDTO, error) {
				got = cmd
				return &application.StockItemDTO{ItemID: cmd.ItemID}, nil
			},
		})

		rec := performRequest(router, http.MethodPost, "/api/v1/shops/smithy/items", `{"itemId":"longsword","quantity":1}`)

		require.Equal(t, http.StatusCreated, rec.Code)
		assert.Nil(t, got.CustomPrice)
	})

	t.Run("malformed price", func(t *testing.T) {
		router := newShopRouter(&mockStockService{})

		rec := performRequest(router, http.MethodPost, "/api/v1/shops/smithy/items", `{"itemId":"longsword","quantity":1,"price":"ten gold"}`)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, decodeError(t, rec).Details, "price")
	})

	t.Run("unknown catalog item", func(t *testing.T) {
		router := newShopRouter(&mockStockService{
			addItemFn: func(ctx context.Context, cmd application.AddItemCommand) (*application.StockItemDTO, error) {
				return nil, fmt.Errorf("%w: %s", domain.ErrItemNotFound, cmd.ItemID)
			},
		})

		rec := performRequest(router, http.MethodPost, "/api/v1/shops/smithy/items", `{"itemId":"vorpal","quantity":1}`)

		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Equal(t, "ITEM_NOT_FOUND", decodeError(t, rec).Code)
	})
}

func TestRemoveItem(t *testing.T) {
	t.Run("quantity from query", func(t *testing.T) {
		var got application.RemoveItemCommand
		router := newShopRouter(&mockStockService{
			removeItemFn: func(ctx context.Context, cmd application.RemoveItemCommand) (*application.StockChangeDTO, error) {
				got = cmd
				return &application.StockChangeDTO{ShopID: cmd.ShopID, ItemID: cmd.ItemID, Found: true}, nil
			},
		})

		rec := performRequest(router, http.MethodDelete, "/api/v1/shops/smithy/items/longsword?quantity=2", "")

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, 2, got.Quantity)
		assert.Equal(t, "longsword", got.ItemID)
	})

	t.Run("bad quantity", func(t *testing.T) {
		router := newShopRouter(&mockStockService{})

		rec := performRequest(router, http.MethodDelete, "/api/v1/shops/smithy/items/longsword?quantity=-1", "")

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("absent item", func(t *testing.T) {
		router := newShopRouter(&mockStockService{
			removeItemFn: func(ctx context.Context, cmd application.RemoveItemCommand) (*application.StockChangeDTO, error) {
				return &application.StockChangeDTO{ShopID: cmd.ShopID, ItemID: cmd.ItemID}, nil
			},
		})

		rec := performRequest(router, http.MethodDelete, "/api/v1/shops/smithy/items/longsword", "")

		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestSetMaxStockAndQuantity(t *testing.T) {
	t.Run("zero max stock is allowed", func(t *testing.T) {
		var got application.SetMaxStockCommand
		router := newShopRouter(&mockStockService{
			setMaxStockFn: func(ctx context.Context, cmd application.SetMaxStockCommand) (*application.StockChangeDTO, error) {
				got = cmd
				return &application.StockChangeDTO{Found: true, Deleted: true}, nil
			},
		})

		rec := performRequest(router, http.MethodPut, "/api/v1/shops/smithy/items/longsword/max-stock", `{"maxStock":0}`)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, 0, got.MaxStock)
	})

	t.Run("missing max stock", func(t *testing.T) {
		router := newShopRouter(&mockStockService{})

		rec := performRequest(router, http.MethodPut, "/api/v1/shops/smithy/items/longsword/max-stock", `{}`)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("quantity passes through", func(t *testing.T) {
		var got application.SetQuantityCommand
		router := newShopRouter(&mockStockService{
			setQuantityFn: func(ctx context.Context, cmd application.SetQuantityCommand) (*application.StockChangeDTO, error) {
				got = cmd
				return &application.StockChangeDTO{Found: true}, nil
			},
		})

		rec := performRequest(router, http.MethodPut, "/api/v1/shops/smithy/items/longsword/quantity", `{"quantity":7}`)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, 7, got.Quantity)
	})
}

func TestGenerateStock(t *testing.T) {
	t.Run("options are forwarded", func(t *testing.T) {
		var got application.GenerateStockCommand
		router := newShopRouter(&mockStockService{
			generateStockFn: func(ctx context.Context, cmd application.GenerateStockCommand) (*application.GenerationResultDTO, error) {
				got = cmd
				return &application.GenerationResultDTO{ShopID: cmd.ShopID, Items: []application.GeneratedItemDTO{{ItemID: "dagger"}}}, nil
			},
		})

		rec := performRequest(router, http.MethodPost, "/api/v1/shops/smithy/generate",
			`{"preset":"blacksmith","count":3,"rarityWeights":{"rare":10},"quantityDice":"2d4"}`)

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "blacksmith", got.Preset)
		assert.Equal(t, 3, got.Options.Count)
		assert.Equal(t, 10.0, got.Options.RarityWeights[domain.Rarity("rare")])
		assert.Equal(t, "2d4", got.Options.QuantityDice)
	})

	t.Run("empty draw is not an error", func(t *testing.T) {
		router := newShopRouter(&mockStockService{
			generateStockFn: func(ctx context.Context, cmd application.GenerateStockCommand) (*application.GenerationResultDTO, error) {
				return &application.GenerationResultDTO{ShopID: cmd.ShopID, Items: []application.GeneratedItemDTO{}, Empty: true}, domain.ErrCatalogEmpty
			},
		})

		rec := performRequest(router, http.MethodPost, "/api/v1/shops/smithy/generate", `{"count":3,"categories":["Nothing"]}`)

		require.Equal(t, http.StatusOK, rec.Code)
		var resp application.GenerationResultDTO
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.True(t, resp.Empty)
	})

	t.Run("bad dice", func(t *testing.T) {
		router := newShopRouter(&mockStockService{})

		rec := performRequest(router, http.MethodPost, "/api/v1/shops/smithy/generate", `{"count":3,"quantityDice":"lots"}`)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/tabletop-shop/shop-engine/internal/application"
	"github.com/tabletop-shop/shop-engine/internal/domain"
	"github.com/tabletop-shop/shop-engine/pkg/logging"
	"github.com/tabletop-shop/shop-engine/pkg/middleware"
)

// StockService is the stock use case surface the shop handlers need
type StockService interface {
	CreateShop(ctx context.Context, cmd application.CreateShopCommand) (*application.ShopDTO, error)
	GetShop(ctx context.Context, shopID string) (*application.ShopDTO, error)
	ListShops(ctx context.Context) ([]*application.ShopDTO, error)
	AddItem(ctx context.Context, cmd application.AddItemCommand) (*application.StockItemDTO, error)
	RemoveItem(ctx context.Context, cmd application.RemoveItemCommand) (*application.StockChangeDTO, error)
	SetMaxStock(ctx context.Context, cmd application.SetMaxStockCommand) (*application.StockChangeDTO, error)
	SetQuantity(ctx context.Context, cmd application.SetQuantityCommand) (*application.StockChangeDTO, error)
	SetPrice(ctx context.Context, cmd application.SetPriceCommand) (*application.StockChangeDTO, error)
	GenerateStock(ctx context.Context, cmd application.GenerateStockCommand) (*application.GenerationResultDTO, error)
	Restock(ctx context.Context, shopID, userID string) (*application.CountDTO, error)
	ClearAll(ctx context.Context, shopID, userID string) (*application.CountDTO, error)
	FormatInventory(ctx context.Context, shopID string) (*application.InventoryDTO, error)
}

// ShopHandlers contains handlers for shop and stock operations
type ShopHandlers struct {
	service StockService
	logger  *logging.Logger
}

// NewShopHandlers creates a new ShopHandlers
func NewShopHandlers(service StockService, logger *logging.Logger) *ShopHandlers {
	return &ShopHandlers{
		service: service,
		logger:  logger,
	}
}

// RegisterRoutes registers shop routes on the router
func (h *ShopHandlers) RegisterRoutes(router *gin.RouterGroup) {
	shops := router.Group("/shops")
	{
		shops.POST("", h.CreateShop)
		shops.GET("", h.ListShops)
		shops.GET("/:shopId", h.GetShop)
		shops.GET("/:shopId/inventory", h.FormatInventory)
		shops.POST("/:shopId/items", h.AddItem)
		shops.DELETE("/:shopId/items", h.ClearAll)
		shops.DELETE("/:shopId/items/:itemId", h.RemoveItem)
		shops.PUT("/:shopId/items/:itemId/max-stock", h.SetMaxStock)
		shops.PUT("/:shopId/items/:itemId/quantity", h.SetQuantity)
		shops.PUT("/:shopId/items/:itemId/price", h.SetPrice)
		shops.POST("/:shopId/generate", h.GenerateStock)
		shops.POST("/:shopId/restock", h.Restock)
	}
}

// ShopResponse is a shop with its rendered inventory
type ShopResponse struct {
	*application.ShopDTO
	Inventory string `json:"inventory"`
}

// CreateShop handles shop creation
func (h *ShopHandlers) CreateShop(c *gin.Context) {
	responder := middleware.NewErrorResponder(c, h.logger.Logger)

	var req CreateShopRequest
	if appErr := middleware.BindAndValidate(c, &req); appErr != nil {
		responder.RespondWithAppError(appErr)
		return
	}

	ownerID := req.OwnerID
	if ownerID == "" {
		ownerID = c.GetHeader(UserHeader)
	}

	shop, err := h.service.CreateShop(c.Request.Context(), application.CreateShopCommand{
		ShopID:       req.ShopID,
		Name:         req.Name,
		OwnerID:      ownerID,
		SellModifier: req.SellModifier,
	})
	if err != nil {
		responder.RespondWithError(err)
		return
	}

	c.JSON(http.StatusCreated, shop)
}

// ListShops handles listing every shop
func (h *ShopHandlers) ListShops(c *gin.Context) {
	shops, err := h.service.ListShops(c.Request.Context())
	if err != nil {
		middleware.NewErrorResponder(c, h.logger.Logger).RespondWithError(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"shops": shops, "total": len(shops)})
}

// GetShop returns the shop together with its formatted inventory
func (h *ShopHandlers) GetShop(c *gin.Context) {
	responder := middleware.NewErrorResponder(c, h.logger.Logger)
	shopID := c.Param("shopId")

	shop, err := h.service.GetShop(c.Request.Context(), shopID)
	if err != nil {
		responder.RespondWithError(err)
		return
	}

	inventory, err := h.service.FormatInventory(c.Request.Context(), shopID)
	if err != nil {
		responder.RespondWithError(err)
		return
	}

	c.JSON(http.StatusOK, ShopResponse{ShopDTO: shop, Inventory: inventory.Rendered})
}

// FormatInventory returns the rendered inventory only
func (h *ShopHandlers) FormatInventory(c *gin.Context) {
	inventory, err := h.service.FormatInventory(c.Request.Context(), c.Param("shopId"))
	if err != nil {
		middleware.NewErrorResponder(c, h.logger.Logger).RespondWithError(err)
		return
	}

	if c.NegotiateFormat(gin.MIMEJSON, gin.MIMEPlain) == gin.MIMEPlain {
		c.String(http.StatusOK, inventory.Rendered)
		return
	}
	c.JSON(http.StatusOK, inventory)
}

// AddItem stocks a catalog item
func (h *ShopHandlers) AddItem(c *gin.Context) {
	responder := middleware.NewErrorResponder(c, h.logger.Logger)

	var req AddItemRequest
	if appErr := middleware.BindAndValidate(c, &req); appErr != nil {
		responder.RespondWithAppError(appErr)
		return
	}

	middleware.AddSpanAttributes(c, map[string]interface{}{
		"item.id":       req.ItemID,
		"item.quantity": req.Quantity,
	})

	cmd := application.AddItemCommand{
		ShopID:   c.Param("shopId"),
		ItemID:   req.ItemID,
		Quantity: req.Quantity,
		UserID:   c.GetHeader(UserHeader),
	}
	if req.Price != "" {
		price, err := parseAmount("price", req.Price)
		if err != nil {
			responder.RespondWithError(err)
			return
		}
		cmd.CustomPrice = &price
	}

	item, err := h.service.AddItem(c.Request.Context(), cmd)
	if err != nil {
		responder.RespondWithError(err)
		return
	}

	c.JSON(http.StatusCreated, item)
}

// RemoveItem decrements an item by ?quantity=, or deletes it when quantity is 0 or absent
func (h *ShopHandlers) RemoveItem(c *gin.Context) {
	responder := middleware.NewErrorResponder(c, h.logger.Logger)

	quantity := 0
	if raw := c.Query("quantity"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			responder.RespondBadRequest("quantity must be a non-negative integer")
			return
		}
		quantity = n
	}

	change, err := h.service.RemoveItem(c.Request.Context(), application.RemoveItemCommand{
		ShopID:   c.Param("shopId"),
		ItemID:   c.Param("itemId"),
		Quantity: quantity,
		UserID:   c.GetHeader(UserHeader),
	})
	h.respondChange(c, responder, change, err)
}

// SetMaxStock sets an item's cap; 0 deletes the item
func (h *ShopHandlers) SetMaxStock(c *gin.Context) {
	responder := middleware.NewErrorResponder(c, h.logger.Logger)

	var req SetMaxStockRequest
	if appErr := middleware.BindAndValidate(c, &req); appErr != nil {
		responder.RespondWithAppError(appErr)
		return
	}

	change, err := h.service.SetMaxStock(c.Request.Context(), application.SetMaxStockCommand{
		ShopID:   c.Param("shopId"),
		ItemID:   c.Param("itemId"),
		MaxStock: *req.MaxStock,
		UserID:   c.GetHeader(UserHeader),
	})
	h.respondChange(c, responder, change, err)
}

// SetQuantity sets an item's current stock
func (h *ShopHandlers) SetQuantity(c *gin.Context) {
	responder := middleware.NewErrorResponder(c, h.logger.Logger)

	var req SetQuantityRequest
	if appErr := middleware.BindAndValidate(c, &req); appErr != nil {
		responder.RespondWithAppError(appErr)
		return
	}

	change, err := h.service.SetQuantity(c.Request.Context(), application.SetQuantityCommand{
		ShopID:   c.Param("shopId"),
		ItemID:   c.Param("itemId"),
		Quantity: *req.Quantity,
		UserID:   c.GetHeader(UserHeader),
	})
	h.respondChange(c, responder, change, err)
}

// SetPrice overwrites an item's price
func (h *ShopHandlers) SetPrice(c *gin.Context) {
	responder := middleware.NewErrorResponder(c, h.logger.Logger)

	var req SetPriceRequest
	if appErr := middleware.BindAndValidate(c, &req); appErr != nil {
		responder.RespondWithAppError(appErr)
		return
	}
	price, err := parseAmount("price", req.Price)
	if err != nil {
		responder.RespondWithError(err)
		return
	}

	change, err := h.service.SetPrice(c.Request.Context(), application.SetPriceCommand{
		ShopID: c.Param("shopId"),
		ItemID: c.Param("itemId"),
		Price:  price,
		UserID: c.GetHeader(UserHeader),
	})
	h.respondChange(c, responder, change, err)
}

// respondChange reports a missing item as 404 and everything else as the change itself
func (h *ShopHandlers) respondChange(c *gin.Context, responder *middleware.ErrorResponder, change *application.StockChangeDTO, err error) {
	if err != nil {
		responder.RespondWithError(err)
		return
	}
	if !change.Found {
		responder.RespondWithError(domain.ErrItemNotFound)
		return
	}
	c.JSON(http.StatusOK, change)
}

// GenerateStock draws random stock and stocks it. An empty draw is a 200 with empty set.
func (h *ShopHandlers) GenerateStock(c *gin.Context) {
	responder := middleware.NewErrorResponder(c, h.logger.Logger)

	var req GenerateStockRequest
	if appErr := middleware.BindAndValidate(c, &req); appErr != nil {
		responder.RespondWithAppError(appErr)
		return
	}

	opts := domain.GenerationOptions{
		Count:        req.Count,
		Categories:   req.Categories,
		QuantityDice: req.QuantityDice,
	}
	if len(req.RarityWeights) > 0 {
		opts.RarityWeights = make(map[domain.Rarity]float64, len(req.RarityWeights))
		for r, w := range req.RarityWeights {
			opts.RarityWeights[domain.Rarity(r)] = w
		}
	}

	middleware.AddSpanAttributes(c, map[string]interface{}{
		"generation.preset": req.Preset,
		"generation.count":  req.Count,
	})

	result, err := h.service.GenerateStock(c.Request.Context(), application.GenerateStockCommand{
		ShopID:  c.Param("shopId"),
		Preset:  req.Preset,
		Options: opts,
		UserID:  c.GetHeader(UserHeader),
	})
	if err != nil && !(errors.Is(err, domain.ErrCatalogEmpty) && result != nil) {
		responder.RespondWithError(err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// Restock refills every item to its cap
func (h *ShopHandlers) Restock(c *gin.Context) {
	count, err := h.service.Restock(c.Request.Context(), c.Param("shopId"), c.GetHeader(UserHeader))
	if err != nil {
		middleware.NewErrorResponder(c, h.logger.Logger).RespondWithError(err)
		return
	}

	c.JSON(http.StatusOK, count)
}

// ClearAll empties every category
func (h *ShopHandlers) ClearAll(c *gin.Context) {
	count, err := h.service.ClearAll(c.Request.Context(), c.Param("shopId"), c.GetHeader(UserHeader))
	if err != nil {
		middleware.NewErrorResponder(c, h.logger.Logger).RespondWithError(err)
		return
	}

	c.JSON(http.StatusOK, count)
}

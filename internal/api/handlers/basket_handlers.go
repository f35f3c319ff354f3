package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/tabletop-shop/shop-engine/internal/application"
	"github.com/tabletop-shop/shop-engine/pkg/logging"
	"github.com/tabletop-shop/shop-engine/pkg/middleware"
)

// BasketService is the basket use case surface the basket handlers need
type BasketService interface {
	GetBaskets(ctx context.Context, userID string) (*application.BasketDTO, error)
	AddToBuy(ctx context.Context, cmd application.AddToBuyCommand) (*application.BasketDTO, error)
	RemoveFromBuy(ctx context.Context, userID string, index int) (*application.BasketDTO, error)
	ClearBuy(ctx context.Context, userID string) (*application.CountDTO, error)
	BeginSellSession(ctx context.Context, cmd application.BeginSellSessionCommand) (*application.SellSessionDTO, error)
	AddToSell(ctx context.Context, cmd application.AddToSellCommand) (*application.BasketDTO, error)
	RemoveFromSell(ctx context.Context, userID string, index int) (*application.BasketDTO, error)
	ClearSell(ctx context.Context, userID string) (*application.CountDTO, error)
	ViewBuy(ctx context.Context, userID string) (*application.BasketViewDTO, error)
	ViewSell(ctx context.Context, userID string) (*application.BasketViewDTO, error)
	ViewMerged(ctx context.Context, userID string) (*application.BasketViewDTO, error)
	CanMerge(ctx context.Context, userID string) (*application.CanMergeDTO, error)
	Merge(ctx context.Context, userID string) (*application.BasketDTO, error)
	Unmerge(ctx context.Context, userID string) (*application.BasketDTO, error)
	RecordHaggle(ctx context.Context, cmd application.RecordHaggleCommand) (*application.BasketDTO, error)
}

// CheckoutStarter starts checkout settlement
type CheckoutStarter interface {
	StartCheckout(ctx context.Context, cmd application.CheckoutCommand) (*application.CheckoutDTO, error)
}

// BasketHandlers contains handlers for basket operations
type BasketHandlers struct {
	service  BasketService
	checkout CheckoutStarter
	logger   *logging.Logger
}

// NewBasketHandlers creates a new BasketHandlers
func NewBasketHandlers(service BasketService, checkout CheckoutStarter, logger *logging.Logger) *BasketHandlers {
	return &BasketHandlers{
		service:  service,
		checkout: checkout,
		logger:   logger,
	}
}

// RegisterRoutes registers basket routes on the router
func (h *BasketHandlers) RegisterRoutes(router *gin.RouterGroup) {
	baskets := router.Group("/baskets/:userId")
	{
		baskets.GET("", h.GetBaskets)

		baskets.GET("/buy", h.ViewBuy)
		baskets.POST("/buy", h.AddToBuy)
		baskets.DELETE("/buy", h.ClearBuy)
		baskets.DELETE("/buy/:index", h.RemoveFromBuy)

		baskets.POST("/sell/session", h.BeginSellSession)
		baskets.GET("/sell", h.ViewSell)
		baskets.POST("/sell", h.AddToSell)
		baskets.DELETE("/sell", h.ClearSell)
		baskets.DELETE("/sell/:index", h.RemoveFromSell)

		baskets.GET("/merged", h.ViewMerged)
		baskets.GET("/merge", h.CanMerge)
		baskets.POST("/merge", h.Merge)
		baskets.DELETE("/merge", h.Unmerge)

		baskets.PUT("/haggle", h.RecordHaggle)
		baskets.POST("/checkout", h.Checkout)
	}
}

// GetBaskets returns both baskets and the current quote
func (h *BasketHandlers) GetBaskets(c *gin.Context) {
	state, err := h.service.GetBaskets(c.Request.Context(), c.Param("userId"))
	if err != nil {
		middleware.NewErrorResponder(c, h.logger.Logger).RespondWithError(err)
		return
	}

	c.JSON(http.StatusOK, state)
}

// AddToBuy stages a shop item for purchase
func (h *BasketHandlers) AddToBuy(c *gin.Context) {
	responder := middleware.NewErrorResponder(c, h.logger.Logger)

	var req AddToBuyRequest
	if appErr := middleware.BindAndValidate(c, &req); appErr != nil {
		responder.RespondWithAppError(appErr)
		return
	}

	middleware.AddSpanAttributes(c, map[string]interface{}{
		"basket.user": c.Param("userId"),
		"shop.id":     req.ShopID,
		"item.id":     req.ItemID,
	})

	state, err := h.service.AddToBuy(c.Request.Context(), application.AddToBuyCommand{
		UserID:   c.Param("userId"),
		ShopID:   req.ShopID,
		ItemID:   req.ItemID,
		Quantity: req.Quantity,
	})
	if err != nil {
		responder.RespondWithError(err)
		return
	}

	c.JSON(http.StatusOK, state)
}

// RemoveFromBuy removes the buy line at the path index
func (h *BasketHandlers) RemoveFromBuy(c *gin.Context) {
	h.removeLine(c, h.service.RemoveFromBuy)
}

// RemoveFromSell removes the sell line at the path index
func (h *BasketHandlers) RemoveFromSell(c *gin.Context) {
	h.removeLine(c, h.service.RemoveFromSell)
}

func (h *BasketHandlers) removeLine(c *gin.Context, remove func(ctx context.Context, userID string, index int) (*application.BasketDTO, error)) {
	responder := middleware.NewErrorResponder(c, h.logger.Logger)

	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		responder.RespondBadRequest("index must be an integer")
		return
	}

	state, err := remove(c.Request.Context(), c.Param("userId"), index)
	if err != nil {
		responder.RespondWithError(err)
		return
	}

	c.JSON(http.StatusOK, state)
}

// ClearBuy empties the buy basket
func (h *BasketHandlers) ClearBuy(c *gin.Context) {
	h.clear(c, h.service.ClearBuy)
}

// ClearSell empties the sell basket
func (h *BasketHandlers) ClearSell(c *gin.Context) {
	h.clear(c, h.service.ClearSell)
}

func (h *BasketHandlers) clear(c *gin.Context, clear func(ctx context.Context, userID string) (*application.CountDTO, error)) {
	count, err := clear(c.Request.Context(), c.Param("userId"))
	if err != nil {
		middleware.NewErrorResponder(c, h.logger.Logger).RespondWithError(err)
		return
	}

	c.JSON(http.StatusOK, count)
}

// BeginSellSession binds a character as the sell source and lists what it can sell
func (h *BasketHandlers) BeginSellSession(c *gin.Context) {
	responder := middleware.NewErrorResponder(c, h.logger.Logger)

	var req SellSessionRequest
	if appErr := middleware.BindAndValidate(c, &req); appErr != nil {
		responder.RespondWithAppError(appErr)
		return
	}

	session, err := h.service.BeginSellSession(c.Request.Context(), application.BeginSellSessionCommand{
		UserID:      c.Param("userId"),
		CharacterID: req.CharacterID,
	})
	if err != nil {
		responder.RespondWithError(err)
		return
	}

	c.JSON(http.StatusOK, session)
}

// AddToSell stages a character item for sale
func (h *BasketHandlers) AddToSell(c *gin.Context) {
	responder := middleware.NewErrorResponder(c, h.logger.Logger)

	var req AddToSellRequest
	if appErr := middleware.BindAndValidate(c, &req); appErr != nil {
		responder.RespondWithAppError(appErr)
		return
	}

	state, err := h.service.AddToSell(c.Request.Context(), application.AddToSellCommand{
		UserID:   c.Param("userId"),
		ShopID:   req.ShopID,
		ItemID:   req.ItemID,
		Quantity: req.Quantity,
	})
	if err != nil {
		responder.RespondWithError(err)
		return
	}

	c.JSON(http.StatusOK, state)
}

// ViewBuy renders the buy basket
func (h *BasketHandlers) ViewBuy(c *gin.Context) {
	h.view(c, h.service.ViewBuy)
}

// ViewSell renders the sell basket
func (h *BasketHandlers) ViewSell(c *gin.Context) {
	h.view(c, h.service.ViewSell)
}

// ViewMerged renders both baskets with the net quote
func (h *BasketHandlers) ViewMerged(c *gin.Context) {
	h.view(c, h.service.ViewMerged)
}

func (h *BasketHandlers) view(c *gin.Context, view func(ctx context.Context, userID string) (*application.BasketViewDTO, error)) {
	rendered, err := view(c.Request.Context(), c.Param("userId"))
	if err != nil {
		middleware.NewErrorResponder(c, h.logger.Logger).RespondWithError(err)
		return
	}

	if c.NegotiateFormat(gin.MIMEJSON, gin.MIMEPlain) == gin.MIMEPlain {
		c.String(http.StatusOK, rendered.Rendered)
		return
	}
	c.JSON(http.StatusOK, rendered)
}

// CanMerge reports whether the baskets may be merged
func (h *BasketHandlers) CanMerge(c *gin.Context) {
	result, err := h.service.CanMerge(c.Request.Context(), c.Param("userId"))
	if err != nil {
		middleware.NewErrorResponder(c, h.logger.Logger).RespondWithError(err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// Merge locks both baskets into a merged transaction
func (h *BasketHandlers) Merge(c *gin.Context) {
	h.transition(c, h.service.Merge)
}

// Unmerge releases the lock
func (h *BasketHandlers) Unmerge(c *gin.Context) {
	h.transition(c, h.service.Unmerge)
}

func (h *BasketHandlers) transition(c *gin.Context, fn func(ctx context.Context, userID string) (*application.BasketDTO, error)) {
	state, err := fn(c.Request.Context(), c.Param("userId"))
	if err != nil {
		middleware.NewErrorResponder(c, h.logger.Logger).RespondWithError(err)
		return
	}

	c.JSON(http.StatusOK, state)
}

// RecordHaggle stores a haggle outcome on merged baskets
func (h *BasketHandlers) RecordHaggle(c *gin.Context) {
	responder := middleware.NewErrorResponder(c, h.logger.Logger)

	var req HaggleRequest
	if appErr := middleware.BindAndValidate(c, &req); appErr != nil {
		responder.RespondWithAppError(appErr)
		return
	}

	state, err := h.service.RecordHaggle(c.Request.Context(), application.RecordHaggleCommand{
		UserID:  c.Param("userId"),
		Percent: req.Percent,
		Note:    req.Note,
	})
	if err != nil {
		responder.RespondWithError(err)
		return
	}

	c.JSON(http.StatusOK, state)
}

// Checkout starts the settlement workflow for the user's baskets
func (h *BasketHandlers) Checkout(c *gin.Context) {
	responder := middleware.NewErrorResponder(c, h.logger.Logger)

	var req CheckoutRequest
	if c.Request.ContentLength > 0 {
		if appErr := middleware.BindAndValidate(c, &req); appErr != nil {
			responder.RespondWithAppError(appErr)
			return
		}
	}

	userID := c.Param("userId")
	middleware.AddSpanAttributes(c, map[string]interface{}{
		"basket.user":  userID,
		"character.id": req.CharacterID,
	})

	result, err := h.checkout.StartCheckout(c.Request.Context(), application.CheckoutCommand{
		UserID:       userID,
		ShopID:       req.ShopID,
		CharacterID:  req.CharacterID,
		OwnerID:      req.OwnerID,
		CustomerName: req.CustomerName,
	})
	if err != nil {
		responder.RespondWithError(err)
		return
	}

	h.logger.Info("Checkout accepted", "userId", userID, "workflowId", result.WorkflowID)
	c.JSON(http.StatusAccepted, result)
}
